package selection

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/s0_data"
	"github.com/wonny/aegis-t0/internal/s2_signals"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
	"github.com/wonny/aegis-t0/pkg/logger"
)

// Scorer computes the ranking of one session outside a backtest (CLI, API,
// scheduler), through the cache and into the repository when configured.
type Scorer struct {
	model  *s2_signals.Model
	ranker *Ranker
	cache  *RankingCache
	repo   *Repository
	hash   string
	logger *logger.Logger
}

// NewScorer validates cfg and builds the factor model
func NewScorer(cfg *strategyconfig.Config, log *logger.Logger) (*Scorer, error) {
	if err := strategyconfig.Validate(cfg); err != nil {
		return nil, err
	}
	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return nil, fmt.Errorf("hash strategy config: %w", err)
	}
	log = log.WithComponent("scorer")
	model, err := s2_signals.NewModel(cfg.Factors, log)
	if err != nil {
		return nil, err
	}
	return &Scorer{
		model:  model,
		ranker: NewRanker(log),
		hash:   hash,
		logger: log,
	}, nil
}

// WithCache serves and stores rankings through c
func (s *Scorer) WithCache(c *RankingCache) *Scorer {
	s.cache = c
	return s
}

// WithRepository persists every computed ranking
func (s *Scorer) WithRepository(r *Repository) *Scorer {
	s.repo = r
	return s
}

// ConfigHash is the cache key prefix of this scorer's rankings
func (s *Scorer) ConfigHash() string {
	return s.hash
}

// Score ranks the instruments that traded on date using only data up to date
func (s *Scorer) Score(ctx context.Context, m *s0_data.Market, date time.Time) (*Ranking, error) {
	if s.cache == nil {
		return s.compute(ctx, m, date)
	}
	return s.cache.GetOrCompute(ctx, s.hash, date, func() (*Ranking, error) {
		return s.compute(ctx, m, date)
	})
}

func (s *Scorer) compute(ctx context.Context, m *s0_data.Market, date time.Time) (*Ranking, error) {
	var inputs []s2_signals.Input
	for _, id := range m.Candidates() {
		if !m.Series.HasSession(id, date) {
			continue
		}
		history := m.Series.DailyHistory(id, date)
		if len(history) == 0 {
			continue
		}
		in := s2_signals.Input{Instrument: m.Universe.Lookup(id), History: history}
		if aux, ok := m.Aux.Get(id, date); ok {
			in.Aux = &aux
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no instrument traded on %s", contracts.ErrDataIntegrity, contracts.SessionKey(date))
	}

	res, err := s.model.Compute(ctx, date, m.Series.DailyHistory(m.BenchmarkID, date), inputs)
	if err != nil {
		return nil, err
	}
	ranking := s.ranker.Rank(ctx, res)

	if s.repo != nil {
		if err := s.repo.SaveRanking(ctx, s.hash, ranking); err != nil {
			return nil, fmt.Errorf("save ranking: %w", err)
		}
	}
	return ranking, nil
}
