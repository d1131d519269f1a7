package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"screenshot/pkg/logger"
)

func cacheCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manages the screenshot result cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Removes expired screenshots from the cache directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			removed, err := getCache(ctx, a.cfg).Prune(ctx)
			if err != nil {
				return fmt.Errorf("could not prune cache: %w", err)
			}
			logger.Info(ctx, "cache pruned",
				zap.String("dir", a.cfg.Cache.Dir),
				zap.Int("removed", removed))

			return nil
		},
	})

	return cmd
}
