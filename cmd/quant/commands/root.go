package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	envFile      string
	env          string
	strategyPath string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Aegis T0 - T+0 rotation backtester",
	Long: `Aegis T0 Unified CLI

Replays intraday bars through a multi-factor ranking, a T+0 rotation
state machine and Kelly/ATR risk management.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant backtest run --data data/bars.csv
  go run ./cmd/quant score --date 2024-03-15
  go run ./cmd/quant config check --strategy configs/strategy.yaml
  go run ./cmd/quant api`,
	SilenceUsage: true,
}

// Execute runs the root command. Called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "config", "", "env file to load before the environment (default .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().StringVar(&strategyPath, "strategy", "", "strategy YAML (default STRATEGY_CONFIG or built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
