package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-t0/internal/backtest"
	"github.com/wonny/aegis-t0/internal/execution"
	"github.com/wonny/aegis-t0/internal/s0_data/quality"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
)

// Archive persists everything one run produced: the run itself, its T+0
// session outcomes and its data quality snapshots.
type Archive struct {
	Runs    *Repository
	T0      *execution.Repository
	Quality *quality.Repository
}

func NewArchive(pool *pgxpool.Pool) *Archive {
	return &Archive{
		Runs:    NewRepository(pool),
		T0:      execution.NewRepository(pool),
		Quality: quality.NewRepository(pool),
	}
}

// Save stores res under its run id. snapshot pins the strategy config.
func (a *Archive) Save(ctx context.Context, res *backtest.Result, snapshot *strategyconfig.RunSnapshot) error {
	configJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal config snapshot: %w", err)
	}
	if err := a.Runs.SaveRun(ctx, res, configJSON); err != nil {
		return err
	}
	if err := a.T0.SaveOutcomes(ctx, res.RunID, res.T0Outcomes); err != nil {
		return fmt.Errorf("save t0 outcomes: %w", err)
	}
	if err := a.Quality.SaveSnapshots(ctx, res.RunID, res.Quality); err != nil {
		return fmt.Errorf("save quality snapshots: %w", err)
	}
	return nil
}

// LoadReport rebuilds the report of a persisted run. Returns ErrRunNotFound
// for unknown ids.
func (a *Archive) LoadReport(ctx context.Context, runID string, limit int) (*RunReport, error) {
	rec, err := a.Runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	signals, err := a.Runs.GetSignals(ctx, runID)
	if err != nil {
		return nil, err
	}
	trips, err := a.Runs.GetRoundTrips(ctx, runID)
	if err != nil {
		return nil, err
	}
	curve, err := a.Runs.GetEquityCurve(ctx, runID)
	if err != nil {
		return nil, err
	}

	report := NewRunReport(&backtest.Result{
		RunID:       rec.RunID,
		ConfigHash:  rec.ConfigHash,
		StartDate:   rec.StartDate,
		EndDate:     rec.EndDate,
		Report:      rec.Report,
		Signals:     signals,
		RoundTrips:  trips,
		EquityCurve: curve,
		MonteCarlo:  rec.MonteCarlo,
	}, limit)
	report.ReportDate = rec.CreatedAt
	return report, nil
}
