package selection

import (
	"context"
	"sort"
	"time"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/s2_signals"
	"github.com/wonny/aegis-t0/pkg/logger"
)

// Ranking is the ordered cross-section of one session.
type Ranking struct {
	AsOf   time.Time                  `json:"as_of"`
	Regime s2_signals.Regime          `json:"regime"`
	Scores []contracts.CompositeScore `json:"scores"` // by rank
}

// Rank orders scores descending, ties broken by the lower instrument id, and
// assigns 1-based ranks. The input slice is not modified.
func Rank(asOf time.Time, scores []contracts.CompositeScore) *Ranking {
	ranked := make([]contracts.CompositeScore, len(scores))
	copy(ranked, scores)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].InstrumentID < ranked[j].InstrumentID
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	return &Ranking{AsOf: asOf, Scores: ranked}
}

// Get returns the ranked composite score of id.
func (r *Ranking) Get(id string) (contracts.CompositeScore, bool) {
	for _, s := range r.Scores {
		if s.InstrumentID == id {
			return s, true
		}
	}
	return contracts.CompositeScore{}, false
}

// Top returns the best n scores (all when n exceeds the universe).
func (r *Ranking) Top(n int) []contracts.CompositeScore {
	if n > len(r.Scores) {
		n = len(r.Scores)
	}
	if n < 0 {
		n = 0
	}
	return r.Scores[:n:n]
}

// Ranker turns a factor model result into a Ranking
// ⭐ SSOT: ranking order is decided here only
type Ranker struct {
	logger *logger.Logger
}

// NewRanker creates a new ranker
func NewRanker(logger *logger.Logger) *Ranker {
	return &Ranker{
		logger: logger,
	}
}

// Rank ranks a model result
func (r *Ranker) Rank(ctx context.Context, res *s2_signals.Result) *Ranking {
	ranking := Rank(res.AsOf, res.Scores)
	ranking.Regime = res.Regime

	if len(ranking.Scores) > 0 {
		r.logger.WithFields(map[string]interface{}{
			"date":         contracts.SessionKey(res.AsOf),
			"total_stocks": len(ranking.Scores),
			"top_score":    ranking.Scores[0].Score,
			"top_code":     ranking.Scores[0].InstrumentID,
		}).Debug("Ranking completed")
	}

	return ranking
}
