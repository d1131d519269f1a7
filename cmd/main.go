// Package main provides the CLI entrypoint for the screenshot service.
// It wires subcommands (serve, capture, cache), loads configuration, and initializes logging.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"screenshot/internal/config"
	"screenshot/pkg/logger"
)

// app carries the loaded configuration to subcommands. It is filled in by
// the root command before any subcommand runs.
type app struct {
	configPath string
	cfg        *config.Config
}

func (a *app) load(_ *cobra.Command, _ []string) error {
	log.Println("loading config ...")
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err //nolint: wrapcheck
	}
	a.cfg = cfg

	logger.Setup(cfg.Environment)

	return nil
}

// main sets up the root Cobra command, loads the optional .env file and
// registers subcommands before executing the CLI.
func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal("could not load .env file: ", err)
	}

	a := &app{}
	rootCmd := &cobra.Command{
		Use:               "screenshot",
		Short:             "Headless browser screenshot service",
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}
	// an empty path reads the configuration from the environment only
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config File Path")

	ctx := context.Background()

	defer func() {
		if p := recover(); p != nil {
			logger.Error(ctx, "captured panic, exiting...", zap.Any("panic", p))
			logger.Sync()

			panic(p)
		}
	}()

	rootCmd.AddCommand(
		serveCommand(a),
		captureCommand(a),
		cacheCommand(a),
	)

	err := rootCmd.ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		os.Exit(1) //nolint: gocritic
	}
}
