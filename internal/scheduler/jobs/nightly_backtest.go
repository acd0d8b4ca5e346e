package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-t0/internal/audit"
	"github.com/wonny/aegis-t0/internal/backtest"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
	"github.com/wonny/aegis-t0/pkg/logger"
	"github.com/wonny/aegis-t0/pkg/metrics"
)

// NightlyBacktestJob replays the full history with the configured strategy
// and archives the run, so drift in the live strategy shows up in the audit
// tables day by day.
type NightlyBacktestJob struct {
	load     MarketLoader
	cfg      *strategyconfig.Config
	snapshot *strategyconfig.RunSnapshot
	archive  *audit.Archive
	metrics  *metrics.Registry
	schedule string
	logger   *logger.Logger
}

// NewNightlyBacktestJob runs at 02:00 unless schedule is set. archive may be
// nil, then the report is only logged.
func NewNightlyBacktestJob(load MarketLoader, cfg *strategyconfig.Config, yamlData []byte, archive *audit.Archive, m *metrics.Registry, schedule string, log *logger.Logger) (*NightlyBacktestJob, error) {
	if err := strategyconfig.Validate(cfg); err != nil {
		return nil, err
	}
	snapshot, err := strategyconfig.NewRunSnapshot(cfg, yamlData)
	if err != nil {
		return nil, err
	}
	if schedule == "" {
		schedule = "0 0 2 * * *"
	}
	return &NightlyBacktestJob{
		load:     load,
		cfg:      cfg,
		snapshot: snapshot,
		archive:  archive,
		metrics:  m,
		schedule: schedule,
		logger:   log.WithComponent("job.nightly_backtest"),
	}, nil
}

func (j *NightlyBacktestJob) Name() string     { return "nightly_backtest" }
func (j *NightlyBacktestJob) Schedule() string { return j.schedule }

func (j *NightlyBacktestJob) Run(ctx context.Context) error {
	market, err := j.load(ctx)
	if err != nil {
		return fmt.Errorf("load market: %w", err)
	}

	deps := backtest.Deps{}
	if j.metrics != nil {
		deps.Observer = backtest.MetricsObserver{Metrics: j.metrics}
	}
	engine, err := backtest.NewEngine(j.cfg, deps, j.logger)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := engine.Run(ctx, backtest.Input{
		Series:      market.Series,
		Aux:         market.Aux,
		Universe:    market.Universe,
		BenchmarkID: market.BenchmarkID,
	})
	if j.metrics != nil {
		j.metrics.RecordRun(time.Since(start), err)
	}
	if err != nil {
		return err
	}

	if j.archive != nil {
		if err := j.archive.Save(ctx, res, j.snapshot); err != nil {
			return fmt.Errorf("archive run %s: %w", res.RunID, err)
		}
	}

	report := audit.NewRunReport(res, 3)
	j.logger.WithFields(map[string]interface{}{
		"run_id":       report.RunID,
		"archived":     j.archive != nil,
		"total_return": report.Performance.TotalReturn,
		"sharpe":       report.Performance.SharpeRatio,
		"max_drawdown": report.Performance.MaxDrawdown,
		"round_trips":  report.Performance.TradeCount,
	}).Info("Nightly backtest completed")
	return nil
}
