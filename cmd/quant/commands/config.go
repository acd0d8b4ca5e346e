package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-t0/internal/strategyconfig"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Strategy configuration tools",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a strategy YAML and print its hash",
	Long: `Loads the strategy (--strategy, STRATEGY_CONFIG or built-in defaults),
validates it and prints warnings for risky but legal values.

Example:
  go run ./cmd/quant config check --strategy configs/strategy.yaml`,
	RunE: runConfigCheck,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCheckCmd)
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	path := strategyPath
	cfg, _, err := strategyconfig.LoadOrDefault(path)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return err
	}

	if path == "" {
		path = "(built-in defaults)"
	}
	PrintHeader("Strategy Config")
	PrintKeyValue("File", path, 10)
	PrintKeyValue("Strategy", cfg.Meta.StrategyID, 10)
	PrintKeyValue("Version", cfg.Meta.Version, 10)
	PrintKeyValue("Hash", hash, 10)
	fmt.Println()

	warnings := strategyconfig.Warn(cfg)
	for _, w := range warnings {
		PrintWarning(fmt.Sprintf("[%s] %s", w.Code, w.Message))
	}
	PrintSuccess(fmt.Sprintf("Valid (%d warnings)", len(warnings)))
	return nil
}
