package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-t0/internal/contracts"
)

// Repository handles data quality snapshot persistence
// ⭐ SSOT: per-run session quality storage
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new quality repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveSnapshots stores the gate result of every session of a run, one row per
// session plus one row per exclusion.
func (r *Repository) SaveSnapshots(ctx context.Context, runID string, snapshots []contracts.DataQualitySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	queued := 0
	for _, s := range snapshots {
		batch.Queue(`
			INSERT INTO audit.data_quality_snapshots
				(run_id, snapshot_date, total, valid, coverage, regime, benchmark_ok)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (run_id, snapshot_date) DO UPDATE SET
				total = EXCLUDED.total,
				valid = EXCLUDED.valid,
				coverage = EXCLUDED.coverage,
				regime = EXCLUDED.regime,
				benchmark_ok = EXCLUDED.benchmark_ok`,
			runID, s.Date, s.Total, s.Valid, s.Coverage(), s.Regime, s.Benchmark)
		queued++

		for _, e := range s.Exclusions {
			batch.Queue(`
				INSERT INTO audit.data_exclusions (run_id, session_date, instrument_id, reason)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT DO NOTHING`,
				runID, e.SessionDate, e.InstrumentID, e.Reason)
			queued++
		}
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save quality snapshot: %w", err)
		}
	}
	return nil
}

// GetExclusions retrieves the exclusions recorded for a run and session
func (r *Repository) GetExclusions(ctx context.Context, runID string, date time.Time) ([]contracts.Exclusion, error) {
	query := `
		SELECT instrument_id, session_date, reason
		FROM audit.data_exclusions
		WHERE run_id = $1 AND session_date = $2
		ORDER BY instrument_id
	`

	rows, err := r.pool.Query(ctx, query, runID, date)
	if err != nil {
		return nil, fmt.Errorf("query exclusions: %w", err)
	}
	defer rows.Close()

	var out []contracts.Exclusion
	for rows.Next() {
		var e contracts.Exclusion
		if err := rows.Scan(&e.InstrumentID, &e.SessionDate, &e.Reason); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
