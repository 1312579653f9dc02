package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/fvg/config"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "fvg",
	Short: "Detect and analyze Fair Value Gaps in price data",
	Long: `fvg finds Fair Value Gaps (three-bar price imbalances) in OHLCV data,
tracks when each gap is filled, and summarizes the results.

It provides tools for:
  - Downloading minute bars from Yahoo Finance or loading them from CSV
  - Resampling to one or more timeframes
  - Detecting gaps and their fill times
  - Writing gap lists, insight reports and chart data
  - Browsing past runs stored in a SQLite journal`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	return setLevel(logLevel)
}

func setLevel(s string) error {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// loadConfig reads --config when given and falls back to defaults. The
// config's log level applies unless --log-level was set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(cfgFile); err != nil {
			return nil, err
		}
	}
	if !cmd.Flags().Changed("log-level") {
		if err := setLevel(cfg.Log.Level); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
