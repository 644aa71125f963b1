package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mbourse/masi-api/internal/config"
	"github.com/mbourse/masi-api/internal/logging"
)

var (
	configPath string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:          "masi-api",
	Short:        "Casablanca stock exchange quotes over HTTP",
	Long:         "Serves Moroccan market snapshots and OHLC history from a SQLite file and refreshes it from upstream providers.",
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logging.Setup(cfg.LogFormat, cfg.LogLevel, nil)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("MASI_CONFIG"),
		"TOML config file (or set MASI_CONFIG)")
}
