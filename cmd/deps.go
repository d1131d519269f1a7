package main

import (
	"context"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"screenshot/internal/capture"
	"screenshot/internal/cleaner"
	"screenshot/internal/config"
	"screenshot/internal/limiter"
	"screenshot/internal/screenshot"
	"screenshot/internal/session"
	"screenshot/pkg/browser/chromedriver"
	"screenshot/pkg/cache"
	"screenshot/pkg/cache/filecache"
	"screenshot/pkg/logger"
)

// getPool creates the browser session pool and returns it along with a
// cleanup function that shuts the browser down.
func getPool(ctx context.Context, cfg *config.Config) (*session.Pool, func()) {
	engine := chromedriver.New(chromedriver.Options{
		Logf:   logger.Printf(ctx, zap.DebugLevel),
		Errorf: logger.Printf(ctx, zap.WarnLevel),
	})
	pool := session.New(engine, session.NewOptions(cfg))

	return pool, func() {
		logger.Info(ctx, "closing browser...")
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.GracefulShutdownTimeout)
		defer cancel()

		if err := pool.Close(closeCtx); err != nil {
			logger.Warn(ctx, "could not close browser", zap.Error(err))
		}
	}
}

// getCache creates the file-backed result cache on the local filesystem.
func getCache(ctx context.Context, cfg *config.Config) cache.Cache {
	c, err := filecache.New(afero.NewOsFs(), filecache.Options{
		Dir: cfg.Cache.Dir,
		TTL: cfg.Cache.TTL,
	})
	if err != nil {
		logger.Fatal(ctx, "could not create result cache", zap.Error(err))
	}

	return c
}

// getService wires the capture pipeline behind the cache and the limiter.
func getService(ctx context.Context, cfg *config.Config, pool *session.Pool, lim *limiter.Limiter) screenshot.Service {
	orchestrator, err := capture.New(pool, cleaner.New(cleaner.NewOptions(cfg)), capture.NewOptions(cfg))
	if err != nil {
		logger.Fatal(ctx, "could not create capture orchestrator", zap.Error(err))
	}

	return screenshot.New(getCache(ctx, cfg), lim, orchestrator)
}
