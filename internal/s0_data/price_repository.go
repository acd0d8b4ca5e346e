package s0_data

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-t0/internal/contracts"
)

// PriceRepository stores intraday bars and instrument metadata in Postgres
// ⭐ SSOT: bar storage lives here only
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

// GetBars retrieves all bars with session_date in [from, to], ordered by
// instrument and timestamp. Zero bounds are open.
func (r *PriceRepository) GetBars(ctx context.Context, from, to time.Time) ([]contracts.Bar, error) {
	query := `
		SELECT instrument_id, session_date, ts, open, high, low, close, pre_close, volume
		FROM data.intraday_bars
		WHERE ($1::date IS NULL OR session_date >= $1)
		  AND ($2::date IS NULL OR session_date <= $2)
		ORDER BY instrument_id, ts
	`

	rows, err := r.pool.Query(ctx, query, nullableDate(from), nullableDate(to))
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []contracts.Bar
	for rows.Next() {
		var b contracts.Bar
		var preClose *float64
		if err := rows.Scan(&b.InstrumentID, &b.SessionDate, &b.Timestamp,
			&b.Open, &b.High, &b.Low, &b.Close, &preClose, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		// NULL pre_close stays 0 and fails the integrity gate
		if preClose != nil {
			b.PreClose = *preClose
		}
		// align the session date with the bar's zone so SessionKey matches
		b.Timestamp = b.Timestamp.In(b.SessionDate.Location())
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// SaveBars upserts bars in one batch
func (r *PriceRepository) SaveBars(ctx context.Context, bars []contracts.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO data.intraday_bars
			(instrument_id, session_date, ts, open, high, low, close, pre_close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (instrument_id, ts) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			pre_close = EXCLUDED.pre_close,
			volume = EXCLUDED.volume`

	for _, b := range bars {
		batch.Queue(query, b.InstrumentID, b.SessionDate, b.Timestamp,
			b.Open, b.High, b.Low, b.Close, b.PreClose, b.Volume)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range bars {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save bars: %w", err)
		}
	}
	return nil
}

// GetInstruments retrieves instrument metadata
func (r *PriceRepository) GetInstruments(ctx context.Context) ([]contracts.Instrument, error) {
	query := `
		SELECT id, COALESCE(sector, ''), COALESCE(float_shares, 0)
		FROM data.instruments
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	var out []contracts.Instrument
	for rows.Next() {
		var inst contracts.Instrument
		if err := rows.Scan(&inst.ID, &inst.Sector, &inst.FloatShares); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// SaveInstruments upserts instrument metadata
func (r *PriceRepository) SaveInstruments(ctx context.Context, instruments []contracts.Instrument) error {
	if len(instruments) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, in := range instruments {
		batch.Queue(`
			INSERT INTO data.instruments (id, sector, float_shares)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET
				sector = EXCLUDED.sector,
				float_shares = EXCLUDED.float_shares`,
			in.ID, in.Sector, in.FloatShares)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range instruments {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to save instrument: %w", err)
		}
	}
	return nil
}

// PostgresSource loads a Dataset for a session range from Postgres.
type PostgresSource struct {
	Prices   *PriceRepository
	Aux      *AuxRepository
	From, To time.Time
}

// NewPostgresSource wires both repositories on one pool.
func NewPostgresSource(pool *pgxpool.Pool, from, to time.Time) *PostgresSource {
	return &PostgresSource{
		Prices: NewPriceRepository(pool),
		Aux:    NewAuxRepository(pool),
		From:   from,
		To:     to,
	}
}

// Load implements Source
func (s *PostgresSource) Load(ctx context.Context) (*Dataset, error) {
	bars, err := s.Prices.GetBars(ctx, s.From, s.To)
	if err != nil {
		return nil, err
	}
	aux, err := s.Aux.GetRange(ctx, s.From, s.To)
	if err != nil {
		return nil, err
	}
	instruments, err := s.Prices.GetInstruments(ctx)
	if err != nil {
		return nil, err
	}
	return &Dataset{Bars: bars, Aux: aux, Instruments: instruments}, nil
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
