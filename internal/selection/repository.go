package selection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/s2_signals"
)

// Repository handles ranking persistence. Each session gets new rows; older
// sessions are kept for audit.
// ⭐ SSOT: ranking storage lives here only
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new selection repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveRanking replaces the stored ranking of (config hash, session)
func (r *Repository) SaveRanking(ctx context.Context, configHash string, ranking *Ranking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		"DELETE FROM selection.composite_scores WHERE config_hash = $1 AND rank_date = $2",
		configHash, ranking.AsOf)
	if err != nil {
		return fmt.Errorf("failed to delete old results: %w", err)
	}

	query := `
		INSERT INTO selection.composite_scores (
			config_hash, rank_date, instrument_id, rank, score, regime, categories, factors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, s := range ranking.Scores {
		categories, err := json.Marshal(s.Categories)
		if err != nil {
			return fmt.Errorf("failed to marshal categories: %w", err)
		}
		factors, err := json.Marshal(s.Factors)
		if err != nil {
			return fmt.Errorf("failed to marshal factors: %w", err)
		}
		if _, err := tx.Exec(ctx, query,
			configHash, ranking.AsOf, s.InstrumentID, s.Rank, s.Score,
			string(ranking.Regime), categories, factors,
		); err != nil {
			return fmt.Errorf("failed to insert composite score: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRanking loads a stored ranking, ordered by rank
func (r *Repository) GetRanking(ctx context.Context, configHash string, date time.Time) (*Ranking, error) {
	query := `
		SELECT instrument_id, rank, score, regime, categories, factors
		FROM selection.composite_scores
		WHERE config_hash = $1 AND rank_date = $2
		ORDER BY rank
	`

	rows, err := r.pool.Query(ctx, query, configHash, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query ranking: %w", err)
	}
	defer rows.Close()

	ranking := &Ranking{AsOf: date}
	for rows.Next() {
		s := contracts.CompositeScore{SessionDate: date}
		var regime string
		var categories, factors []byte
		if err := rows.Scan(&s.InstrumentID, &s.Rank, &s.Score, &regime, &categories, &factors); err != nil {
			return nil, fmt.Errorf("failed to scan composite score: %w", err)
		}
		if err := json.Unmarshal(categories, &s.Categories); err != nil {
			return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
		}
		if err := json.Unmarshal(factors, &s.Factors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal factors: %w", err)
		}
		ranking.Regime = s2_signals.Regime(regime)
		ranking.Scores = append(ranking.Scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ranking.Scores) == 0 {
		return nil, fmt.Errorf("no ranking found for date %s", contracts.SessionKey(date))
	}
	return ranking, nil
}
