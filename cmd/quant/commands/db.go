package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Creates the data, selection, execution and audit schemas.

Example:
  go run ./cmd/quant db migrate`,
	RunE: runDBMigrate,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Ping the database and show pool statistics",
	RunE:  runDBStatus,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd, dbStatusCmd)
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	applied, err := a.db.Migrate(cmd.Context())
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		PrintInfo("Schema up to date")
		return nil
	}
	for _, v := range applied {
		PrintSuccess(fmt.Sprintf("Applied %s", v))
	}
	return nil
}

func runDBStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	status, err := a.db.HealthCheck(cmd.Context())
	if err != nil {
		PrintError(fmt.Sprintf("Database unhealthy: %v", err))
		return err
	}

	PrintHeader("Database Status")
	PrintKeyValue("Healthy", fmt.Sprintf("%v", status.Healthy), 16)
	PrintKeyValue("Response Time", status.ResponseTime.Round(time.Microsecond).String(), 16)
	PrintKeyValue("Max Conns", fmt.Sprintf("%d", status.Stats.MaxConns), 16)
	PrintKeyValue("Acquired Conns", fmt.Sprintf("%d", status.Stats.AcquiredConns), 16)
	PrintKeyValue("Idle Conns", fmt.Sprintf("%d", status.Stats.IdleConns), 16)
	return nil
}
