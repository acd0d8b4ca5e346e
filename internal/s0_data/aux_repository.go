package s0_data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-t0/internal/contracts"
)

// AuxRepository stores the externally produced capital-flow and sentiment signals
// ⭐ SSOT: aux signal storage lives here only
type AuxRepository struct {
	pool *pgxpool.Pool
}

// NewAuxRepository creates a new aux signal repository
func NewAuxRepository(pool *pgxpool.Pool) *AuxRepository {
	return &AuxRepository{pool: pool}
}

// GetByDate retrieves every instrument's aux record for one session
func (r *AuxRepository) GetByDate(ctx context.Context, date time.Time) ([]contracts.AuxSignals, error) {
	return r.GetRange(ctx, date, date)
}

// GetRange retrieves aux records with session_date in [from, to]. Zero bounds are open.
func (r *AuxRepository) GetRange(ctx context.Context, from, to time.Time) ([]contracts.AuxSignals, error) {
	query := `
		SELECT instrument_id, session_date, main_inflow, northbound, market_heat, sector_rotation
		FROM data.aux_signals
		WHERE ($1::date IS NULL OR session_date >= $1)
		  AND ($2::date IS NULL OR session_date <= $2)
		ORDER BY session_date, instrument_id
	`

	rows, err := r.pool.Query(ctx, query, nullableDate(from), nullableDate(to))
	if err != nil {
		return nil, fmt.Errorf("query aux signals: %w", err)
	}
	defer rows.Close()

	var out []contracts.AuxSignals
	for rows.Next() {
		var a contracts.AuxSignals
		if err := rows.Scan(&a.InstrumentID, &a.SessionDate,
			&a.MainInflow, &a.Northbound, &a.MarketHeat, &a.SectorRotation); err != nil {
			return nil, fmt.Errorf("scan aux signal: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveBatch upserts aux records
func (r *AuxRepository) SaveBatch(ctx context.Context, records []contracts.AuxSignals) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO data.aux_signals
			(instrument_id, session_date, main_inflow, northbound, market_heat, sector_rotation)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (instrument_id, session_date) DO UPDATE SET
			main_inflow = EXCLUDED.main_inflow,
			northbound = EXCLUDED.northbound,
			market_heat = EXCLUDED.market_heat,
			sector_rotation = EXCLUDED.sector_rotation`

	for _, a := range records {
		batch.Queue(query, a.InstrumentID, a.SessionDate,
			a.MainInflow, a.Northbound, a.MarketHeat, a.SectorRotation)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save aux signals: %w", err)
		}
	}
	return nil
}
