package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-t0/internal/audit"
	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/execution"
	"github.com/wonny/aegis-t0/internal/risk"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect archived backtest runs",
	Long: `Reads runs archived with --save (requires DATABASE_URL).

Commands:
  runs         list recent runs
  show         print the report of one run
  t0           print the T+0 outcomes of one session of a run
  montecarlo   resample the daily returns of one run`,
}

var (
	auditLimit int
	auditTop   int
	auditJSON  bool
	auditDate  string

	mcSimulations int
	mcHoldingDays int
	mcSeed        int64
)

var (
	auditRunsCmd = &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		RunE:  runAuditRuns,
	}

	auditShowCmd = &cobra.Command{
		Use:   "show [run_id]",
		Short: "Print the report of one run",
		Args:  cobra.ExactArgs(1),
		RunE:  runAuditShow,
	}

	auditT0Cmd = &cobra.Command{
		Use:   "t0 [run_id]",
		Short: "Print the T+0 outcomes of one session of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  runAuditT0,
	}

	auditMonteCarloCmd = &cobra.Command{
		Use:   "montecarlo [run_id]",
		Short: "Monte Carlo resampling of a run's daily returns",
		Long: `Resamples the archived daily returns with replacement.

Example:
  go run ./cmd/quant audit montecarlo 3f2a... --simulations 10000 --holding 20`,
		Args: cobra.ExactArgs(1),
		RunE: runAuditMonteCarlo,
	}
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditRunsCmd, auditShowCmd, auditT0Cmd, auditMonteCarloCmd)

	auditRunsCmd.Flags().IntVar(&auditLimit, "limit", 20, "runs to list")
	auditShowCmd.Flags().IntVar(&auditTop, "top", 5, "instruments listed in the contribution tables")
	auditShowCmd.Flags().BoolVar(&auditJSON, "json", false, "print the report as JSON")
	auditT0Cmd.Flags().StringVar(&auditDate, "date", "", "session date YYYY-MM-DD")
	auditT0Cmd.MarkFlagRequired("date")

	def := risk.DefaultMonteCarloConfig()
	auditMonteCarloCmd.Flags().IntVar(&mcSimulations, "simulations", def.NumSimulations, "number of paths")
	auditMonteCarloCmd.Flags().IntVar(&mcHoldingDays, "holding", 0, "days per path (0 = run length)")
	auditMonteCarloCmd.Flags().Int64Var(&mcSeed, "seed", def.Seed, "random seed (0 = wall clock)")
}

func runAuditRuns(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	runs, err := audit.NewRepository(a.db.Pool).ListRuns(cmd.Context(), auditLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		PrintInfo("No archived runs")
		return nil
	}

	widths := []int{36, 21, 10, 9, 8, 16}
	PrintTableHeader([]string{"Run ID", "Period", "Return", "Sharpe", "MDD", "Created"}, widths)
	for _, r := range runs {
		PrintTableRow([]string{
			r.RunID,
			fmt.Sprintf("%s~%s", contracts.SessionKey(r.StartDate), contracts.SessionKey(r.EndDate)),
			formatPct(r.Report.TotalReturn),
			fmt.Sprintf("%.2f", r.Report.SharpeRatio),
			fmt.Sprintf("%.1f%%", r.Report.MaxDrawdown*100),
			r.CreatedAt.Format("2006-01-02 15:04"),
		}, widths)
	}
	return nil
}

func runAuditShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	report, err := audit.NewArchive(a.db.Pool).LoadReport(cmd.Context(), args[0], auditTop)
	if err != nil {
		return err
	}
	if auditJSON {
		data, err := report.ToJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(report.ToSummary())
	return nil
}

func runAuditT0(cmd *cobra.Command, args []string) error {
	date, err := time.Parse("2006-01-02", auditDate)
	if err != nil {
		return fmt.Errorf("invalid --date %q: %w", auditDate, err)
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	outcomes, err := execution.NewRepository(a.db.Pool).GetOutcomesByDate(cmd.Context(), args[0], date)
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		PrintInfo(fmt.Sprintf("No T+0 activity on %s", auditDate))
		return nil
	}

	widths := []int{10, 12, 10, 10, 8, 10, 8, 12}
	PrintTableHeader([]string{"Code", "State", "Basis", "Sold", "Qty", "Rebuy", "Qty", "PnL"}, widths)
	total := 0.0
	for _, o := range outcomes {
		PrintTableRow([]string{
			o.InstrumentID,
			string(o.State),
			fmt.Sprintf("%.2f", o.CostBasis),
			fmt.Sprintf("%.2f", o.SoldPrice),
			fmt.Sprintf("%d", o.SoldQty),
			fmt.Sprintf("%.2f", o.RebuyPrice),
			fmt.Sprintf("%d", o.RebuyQty),
			fmt.Sprintf("%+.2f", o.RealizedPnL),
		}, widths)
		total += o.RealizedPnL
	}
	PrintSeparator()
	PrintKeyValue("Realized T+0 PnL", fmt.Sprintf("%+.2f", total), 18)
	return nil
}

func runAuditMonteCarlo(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	curve, err := audit.NewRepository(a.db.Pool).GetEquityCurve(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(curve) == 0 {
		return fmt.Errorf("run %s: %w", args[0], audit.ErrRunNotFound)
	}
	returns := make([]float64, len(curve))
	for i, pt := range curve {
		returns[i] = pt.Return
	}

	cfg := risk.DefaultMonteCarloConfig()
	cfg.NumSimulations = mcSimulations
	cfg.HoldingPeriod = mcHoldingDays
	cfg.Seed = mcSeed

	result, err := risk.RunMonteCarlo(returns, cfg)
	if err != nil {
		return err
	}
	result.RunID = args[0]
	printMonteCarloResult(result)
	return nil
}

func printMonteCarloResult(result *risk.MonteCarloResult) {
	PrintHeader("Monte Carlo Results")
	PrintKeyValue("Run ID", result.RunID, 14)
	PrintKeyValue("Paths", fmt.Sprintf("%d", result.Config.NumSimulations), 14)
	PrintKeyValue("Input Samples", fmt.Sprintf("%d", result.InputSampleCount), 14)

	fmt.Println("\n📊 Distribution")
	fmt.Printf("  Mean Return: %+.4f (%+.2f%%)\n", result.MeanReturn, result.MeanReturn*100)
	fmt.Printf("  Std Dev: %.4f (%.2f%%)\n", result.StdDev, result.StdDev*100)
	fmt.Printf("  P(loss): %.1f%%\n", result.ProbLoss*100)

	fmt.Println("\n📉 Risk Metrics (Loss as Positive)")
	fmt.Printf("  VaR 95%%: %.4f (%.2f%%)\n", result.VaR95, result.VaR95*100)
	fmt.Printf("  CVaR 95%%: %.4f (%.2f%%)\n", result.CVaR95, result.CVaR95*100)
	normal := risk.CalculateParametricVaR(result.StdDev, 0.95)
	fmt.Printf("  Normal VaR/CVaR 95%%: %.4f / %.4f\n", normal.VaR, normal.CVaR)

	fmt.Println("\n📊 Percentiles")
	for _, p := range []int{5, 25, 50, 75, 95} {
		if val, ok := result.Percentiles[p]; ok {
			fmt.Printf("  P%d: %+.4f\n", p, val)
		}
	}

	fmt.Println("\n💡 Interpretation")
	switch {
	case result.VaR95 < 0.03:
		fmt.Println("  ✅ Low risk (VaR95 < 3%)")
	case result.VaR95 < 0.05:
		fmt.Println("  ⚠️ Moderate risk (VaR95 3-5%)")
	default:
		fmt.Println("  ❌ High risk (VaR95 > 5%)")
	}

	fmt.Printf("\n✅ Simulation completed (seed: %d)\n", result.Config.Seed)
}
