package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-t0/internal/audit"
	"github.com/wonny/aegis-t0/internal/backtest"
	"github.com/wonny/aegis-t0/internal/s0_data"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
	"github.com/wonny/aegis-t0/pkg/metrics"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest the T+0 rotation strategy",
	Long: `Replays historical intraday bars session by session.

Every run reports:
- total and annualized return, Sharpe, max drawdown
- win rate and profit factor over round trips
- contribution by instrument and by trade kind
- Monte Carlo resampling of daily returns

Example:
  go run ./cmd/quant backtest run --data data/bars.csv --aux data/aux.csv
  go run ./cmd/quant backtest run --strategy configs/strategy.yaml --save`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "Run one backtest",
		Long: `Runs one backtest over the configured dataset.

Flags override DATA_PATH, AUX_PATH, INSTRUMENTS_PATH and BENCHMARK_ID.

Example:
  go run ./cmd/quant backtest run --data data/bars.parquet
  go run ./cmd/quant backtest run --equity 5000000 --signals-out signals.csv
  go run ./cmd/quant backtest run --strict --json`,
		RunE: runBacktest,
	}

	backtestData        string
	backtestAux         string
	backtestInstruments string
	backtestBenchmark   string
	backtestEquity      float64
	backtestSignalsOut  string
	backtestSave        bool
	backtestJSON        bool
	backtestStrict      bool
	backtestTop         int
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)

	f := backtestRunCmd.Flags()
	f.StringVar(&backtestData, "data", "", "intraday bars file (csv or parquet)")
	f.StringVar(&backtestAux, "aux", "", "auxiliary signals file")
	f.StringVar(&backtestInstruments, "instruments", "", "instrument metadata file")
	f.StringVar(&backtestBenchmark, "benchmark", "", "benchmark instrument id")
	f.Float64Var(&backtestEquity, "equity", 0, "initial equity (default: strategy backtest.initial_equity)")
	f.StringVar(&backtestSignalsOut, "signals-out", "", "write the signal log to this CSV file")
	f.BoolVar(&backtestSave, "save", false, "archive the run in the database")
	f.BoolVar(&backtestJSON, "json", false, "print the report as JSON")
	f.BoolVar(&backtestStrict, "strict", false, "abort on the first data integrity error")
	f.IntVar(&backtestTop, "top", 5, "instruments listed in the contribution tables")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	a, err := newApp(backtestSave)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	if backtestData != "" {
		a.cfg.Data.BarsPath = backtestData
		a.cfg.Data.Source = s0_data.FormatFromPath(backtestData)
	}
	if backtestAux != "" {
		a.cfg.Data.AuxPath = backtestAux
	}
	if backtestInstruments != "" {
		a.cfg.Data.Instruments = backtestInstruments
	}
	if backtestBenchmark != "" {
		a.cfg.Data.BenchmarkID = backtestBenchmark
	}

	strategy, yamlData, err := a.strategy()
	if err != nil {
		return err
	}
	if backtestStrict {
		strategy.Backtest.Strict = true
	}

	market, err := a.loadMarket(ctx)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	engine, err := backtest.NewEngine(strategy, backtest.Deps{
		Observer: backtest.MetricsObserver{Metrics: reg},
	}, a.log)
	if err != nil {
		return err
	}

	if !backtestJSON {
		PrintHeader("Aegis T0 Backtest")
		PrintKeyValue("Strategy", fmt.Sprintf("%s v%s", strategy.Meta.StrategyID, strategy.Meta.Version), 12)
		PrintKeyValue("Data", a.cfg.Data.BarsPath, 12)
		PrintKeyValue("Benchmark", market.BenchmarkID, 12)
		PrintKeyValue("Instruments", fmt.Sprintf("%d", len(market.Candidates())), 12)
		PrintKeyValue("Sessions", fmt.Sprintf("%d", len(market.Series.Sessions())), 12)
		fmt.Println()
		fmt.Println("🚀 Starting backtest...")
	}

	start := time.Now()
	res, err := engine.Run(ctx, backtest.Input{
		Series:        market.Series,
		Aux:           market.Aux,
		Universe:      market.Universe,
		BenchmarkID:   market.BenchmarkID,
		InitialEquity: backtestEquity,
	})
	reg.RecordRun(time.Since(start), err)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	if backtestSignalsOut != "" {
		if err := writeSignals(backtestSignalsOut, res); err != nil {
			return err
		}
	}

	if backtestSave {
		snapshot, err := strategyconfig.NewRunSnapshot(strategy, yamlData)
		if err != nil {
			return err
		}
		if err := audit.NewArchive(a.db.Pool).Save(ctx, res, snapshot); err != nil {
			return fmt.Errorf("archive run: %w", err)
		}
	}

	report := audit.NewRunReport(res, backtestTop)
	if backtestJSON {
		data, err := report.ToJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println()
	fmt.Println(report.ToSummary())
	if backtestSignalsOut != "" {
		PrintSuccess(fmt.Sprintf("%d signals written to %s", len(res.Signals), backtestSignalsOut))
	}
	if backtestSave {
		PrintSuccess(fmt.Sprintf("Run %s archived", res.RunID))
	}
	return nil
}

func writeSignals(path string, res *backtest.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create signals file: %w", err)
	}
	if err := s0_data.WriteSignalsCSV(f, res.Signals); err != nil {
		f.Close()
		return fmt.Errorf("write signals: %w", err)
	}
	return f.Close()
}
