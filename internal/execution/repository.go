package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-t0/internal/contracts"
)

// Repository persists T+0 session outcomes
// ⭐ SSOT: execution.t0_sessions is written only here
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new execution repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveOutcomes upserts the outcomes of a run in one batch
func (r *Repository) SaveOutcomes(ctx context.Context, runID string, outcomes []SessionOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	query := `
		INSERT INTO execution.t0_sessions (
			run_id, session_date, stock_code, state, cost_basis,
			sold_price, sold_qty, sold_at, rebuy_price, rebuy_qty, realized_pnl
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id, session_date, stock_code) DO UPDATE SET
			state = EXCLUDED.state,
			sold_price = EXCLUDED.sold_price,
			sold_qty = EXCLUDED.sold_qty,
			sold_at = EXCLUDED.sold_at,
			rebuy_price = EXCLUDED.rebuy_price,
			rebuy_qty = EXCLUDED.rebuy_qty,
			realized_pnl = EXCLUDED.realized_pnl
	`

	batch := &pgx.Batch{}
	for _, o := range outcomes {
		o := o // per-iteration copy: &o.SoldAt is retained by the batch
		var soldAt *time.Time
		if !o.SoldAt.IsZero() {
			soldAt = &o.SoldAt
		}
		batch.Queue(query,
			runID, o.SessionDate, o.InstrumentID, string(o.State), o.CostBasis,
			o.SoldPrice, o.SoldQty, soldAt, o.RebuyPrice, o.RebuyQty, o.RealizedPnL,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to save t0 outcome %d: %w", i, err)
		}
	}
	return nil
}

// GetOutcomesByDate retrieves the outcomes of one session of a run
func (r *Repository) GetOutcomesByDate(ctx context.Context, runID string, date time.Time) ([]SessionOutcome, error) {
	query := `
		SELECT session_date, stock_code, state, cost_basis,
		       sold_price, sold_qty, sold_at, rebuy_price, rebuy_qty, realized_pnl
		FROM execution.t0_sessions
		WHERE run_id = $1 AND session_date = $2
		ORDER BY stock_code ASC
	`

	rows, err := r.pool.Query(ctx, query, runID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query t0 outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := make([]SessionOutcome, 0)
	for rows.Next() {
		var (
			o      SessionOutcome
			state  string
			soldAt *time.Time
		)
		if err := rows.Scan(
			&o.SessionDate, &o.InstrumentID, &state, &o.CostBasis,
			&o.SoldPrice, &o.SoldQty, &soldAt, &o.RebuyPrice, &o.RebuyQty, &o.RealizedPnL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan t0 outcome: %w", err)
		}
		o.State = contracts.IntradayState(state)
		if soldAt != nil {
			o.SoldAt = *soldAt
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate t0 outcomes: %w", err)
	}

	return outcomes, nil
}
