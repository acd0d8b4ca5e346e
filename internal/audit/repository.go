package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-t0/internal/backtest"
	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/risk"
)

// ErrRunNotFound is returned when no run has the requested id
var ErrRunNotFound = errors.New("run not found")

// Repository handles backtest run persistence
// ⭐ SSOT: audit.* tables are written/read only here
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new audit repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RunRecord is a persisted run header
type RunRecord struct {
	RunID      string                      `json:"run_id"`
	ConfigHash string                      `json:"config_hash"`
	Config     json.RawMessage             `json:"config"`
	StartDate  time.Time                   `json:"start_date"`
	EndDate    time.Time                   `json:"end_date"`
	Report     contracts.PerformanceReport `json:"report"`
	MonteCarlo *risk.MonteCarloResult      `json:"monte_carlo,omitempty"`
	CreatedAt  time.Time                   `json:"created_at"`
}

// SaveRun stores the run header, signals, round trips and equity curve in one
// transaction. configJSON is the strategy config snapshot the run used.
func (r *Repository) SaveRun(ctx context.Context, res *backtest.Result, configJSON []byte) error {
	reportJSON, err := json.Marshal(res.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	var mcJSON []byte
	if res.MonteCarlo != nil {
		if mcJSON, err = json.Marshal(res.MonteCarlo); err != nil {
			return fmt.Errorf("failed to marshal monte carlo: %w", err)
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO audit.backtest_runs (
			run_id, config_hash, config, start_date, end_date, report, monte_carlo
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, res.RunID, res.ConfigHash, configJSON, res.StartDate, res.EndDate, reportJSON, mcJSON)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	batch := &pgx.Batch{}
	for _, s := range res.Signals {
		batch.Queue(`
			INSERT INTO audit.signals (run_id, seq, stock_code, ts, action, quantity, reason, price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, res.RunID, s.Seq, s.InstrumentID, s.Timestamp, string(s.Action), s.Quantity, string(s.Reason), s.Price)
	}
	for i, t := range res.RoundTrips {
		batch.Queue(`
			INSERT INTO audit.round_trips (
				run_id, idx, stock_code, kind, opened_at, closed_at, quantity, open_price, close_price, pnl
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, res.RunID, i, t.InstrumentID, string(t.Kind), t.OpenedAt, t.ClosedAt, t.Quantity, t.OpenPrice, t.ClosePrice, t.PnL)
	}
	for _, p := range res.EquityCurve {
		batch.Queue(`
			INSERT INTO audit.equity_curve (run_id, date, equity, cash, daily_return)
			VALUES ($1, $2, $3, $4, $5)
		`, res.RunID, p.Date, p.Equity, p.Cash, p.Return)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to insert run row %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRun retrieves a run header by id
func (r *Repository) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	query := `
		SELECT run_id, config_hash, config, start_date, end_date, report, monte_carlo, created_at
		FROM audit.backtest_runs
		WHERE run_id = $1
	`

	var rec RunRecord
	var reportJSON, mcJSON []byte
	err := r.pool.QueryRow(ctx, query, runID).Scan(
		&rec.RunID, &rec.ConfigHash, &rec.Config, &rec.StartDate, &rec.EndDate,
		&reportJSON, &mcJSON, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if err := json.Unmarshal(reportJSON, &rec.Report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	if len(mcJSON) > 0 {
		rec.MonteCarlo = &risk.MonteCarloResult{}
		if err := json.Unmarshal(mcJSON, rec.MonteCarlo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal monte carlo: %w", err)
		}
	}
	return &rec, nil
}

// ListRuns returns the latest run headers, newest first
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT run_id, config_hash, start_date, end_date, report, created_at
		FROM audit.backtest_runs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0)
	for rows.Next() {
		var rec RunRecord
		var reportJSON []byte
		if err := rows.Scan(&rec.RunID, &rec.ConfigHash, &rec.StartDate, &rec.EndDate, &reportJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := json.Unmarshal(reportJSON, &rec.Report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
		runs = append(runs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return runs, nil
}

// GetSignals retrieves the signal log of a run in sequence order
func (r *Repository) GetSignals(ctx context.Context, runID string) ([]contracts.Signal, error) {
	query := `
		SELECT seq, stock_code, ts, action, quantity, reason, price
		FROM audit.signals
		WHERE run_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	signals := make([]contracts.Signal, 0)
	for rows.Next() {
		var s contracts.Signal
		var action, reason string
		if err := rows.Scan(&s.Seq, &s.InstrumentID, &s.Timestamp, &action, &s.Quantity, &reason, &s.Price); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		s.Action = contracts.Action(action)
		s.Reason = contracts.ReasonCode(reason)
		signals = append(signals, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return signals, nil
}

// GetRoundTrips retrieves the closed trades of a run in booking order
func (r *Repository) GetRoundTrips(ctx context.Context, runID string) ([]contracts.RoundTrip, error) {
	query := `
		SELECT stock_code, kind, opened_at, closed_at, quantity, open_price, close_price, pnl
		FROM audit.round_trips
		WHERE run_id = $1
		ORDER BY idx ASC
	`

	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query round trips: %w", err)
	}
	defer rows.Close()

	trips := make([]contracts.RoundTrip, 0)
	for rows.Next() {
		var t contracts.RoundTrip
		var kind string
		if err := rows.Scan(&t.InstrumentID, &kind, &t.OpenedAt, &t.ClosedAt, &t.Quantity, &t.OpenPrice, &t.ClosePrice, &t.PnL); err != nil {
			return nil, fmt.Errorf("failed to scan round trip: %w", err)
		}
		t.Kind = contracts.RoundTripKind(kind)
		trips = append(trips, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return trips, nil
}

// GetEquityCurve retrieves the daily valuations of a run
func (r *Repository) GetEquityCurve(ctx context.Context, runID string) ([]contracts.EquityPoint, error) {
	query := `
		SELECT date, equity, cash, daily_return
		FROM audit.equity_curve
		WHERE run_id = $1
		ORDER BY date ASC
	`

	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity curve: %w", err)
	}
	defer rows.Close()

	curve := make([]contracts.EquityPoint, 0)
	for rows.Next() {
		var p contracts.EquityPoint
		if err := rows.Scan(&p.Date, &p.Equity, &p.Cash, &p.Return); err != nil {
			return nil, fmt.Errorf("failed to scan equity point: %w", err)
		}
		curve = append(curve, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return curve, nil
}
