package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"boundary-map/internal/app"
	"boundary-map/internal/config"
	"boundary-map/internal/datasource"
	"boundary-map/internal/logger"

	"github.com/spf13/cobra"
)

var (
	dataDir string
	dataURL string
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "boundaryctl",
	Short:         "Maintain boundary-map static data",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger.Setup(level, cfg.LogFormat)
		if cmd.Flags().Changed("data-dir") {
			cfg.DataDir = dataDir
			cfg.DataURL = ""
		}
		if cmd.Flags().Changed("data-url") {
			cfg.DataURL = dataURL
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Local data directory (overrides DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&dataURL, "data-url", "", "Remote data base URL (overrides DATA_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func source() datasource.Source {
	return app.OpenSource(cfg)
}

func logVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
