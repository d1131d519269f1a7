package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"screenshot/internal/api"
	"screenshot/internal/api/handler/v1handler"
	"screenshot/internal/config"
	"screenshot/internal/limiter"
	"screenshot/pkg/logger"
	"screenshot/pkg/metrics"
)

func serve(ctx context.Context, cfg *config.Config) error {
	mp, err := metrics.Setup(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal(ctx, "could not setup metrics", zap.Error(err))
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			logger.Warn(ctx, "could not stop meter provider", zap.Error(err))
		}
	}()

	pool, closePool := getPool(ctx, cfg)
	defer closePool()

	// the browser is launched eagerly so the first request does not pay for it
	logger.Info(ctx, "launching browser...")
	if err := pool.Init(ctx); err != nil {
		return fmt.Errorf("could not launch browser: %w", err)
	}

	lim := limiter.New(limiter.NewOptions(cfg))
	server := api.NewServer(api.Deps{Deps: v1handler.Deps{
		Screenshots: getService(ctx, cfg, pool, lim),
		Browser:     pool,
		Limiter:     lim,
	}}, api.NewOptions(cfg))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(ctx, "starting webserver...", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not start webserver: %w", err)
		}

		return nil
	})
	g.Go(func() error {
		// wait for interrupt
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
		defer cancel()

		logger.Info(ctx, "stopping webserver...")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop webserver: %w", err)
		}

		return nil
	})

	return g.Wait() //nolint: wrapcheck
}

func serveCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the screenshot API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := serve(ctx, a.cfg); err != nil {
				logger.Error(ctx, "server stopped", zap.Error(err))

				return err
			}

			return nil
		},
	}

	return cmd
}
