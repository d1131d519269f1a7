package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"screenshot/internal/limiter"
	"screenshot/pkg/domain"
	"screenshot/pkg/logger"
)

// captureCommand takes a single screenshot through the same pipeline the
// server uses, cache included, and writes the PNG to a file.
func captureCommand(a *app) *cobra.Command {
	var (
		url      string
		fullPage bool
		output   string
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Takes a single screenshot and writes it to a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, closePool := getPool(ctx, a.cfg)
			defer closePool()

			svc := getService(ctx, a.cfg, pool, limiter.New(limiter.NewOptions(a.cfg)))
			res, err := svc.Screenshot(ctx, domain.CaptureRequest{URL: url, FullPage: fullPage})
			if err != nil {
				return fmt.Errorf("could not take screenshot: %w", err)
			}

			if err := afero.WriteFile(afero.NewOsFs(), output, res.Image, 0o644); err != nil { //nolint: gosec
				return fmt.Errorf("could not write screenshot: %w", err)
			}
			logger.Info(ctx, "screenshot written",
				zap.String("path", output),
				zap.Int("bytes", len(res.Image)),
				zap.Bool("cacheHit", res.CacheHit))

			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Page URL to capture")
	cmd.Flags().BoolVar(&fullPage, "full-page", false, "Capture the full scrollable page")
	cmd.Flags().StringVarP(&output, "output", "o", "screenshot.png", "Output file path")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}
