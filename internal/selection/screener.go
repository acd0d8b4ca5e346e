package selection

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/pkg/logger"
)

// Selector decides which instruments the portfolio should hold after a session.
// Held positions not returned are exited; returned ids not held are entered.
type Selector interface {
	Select(ctx context.Context, ranking *Ranking, held []string) ([]string, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(ctx context.Context, ranking *Ranking, held []string) ([]string, error)

// Select implements Selector
func (f SelectorFunc) Select(ctx context.Context, ranking *Ranking, held []string) ([]string, error) {
	return f(ctx, ranking, held)
}

// ScreenerConfig defines hard cuts applied before picking
type ScreenerConfig struct {
	MinScore float64  // composite score floor, 0 disables
	Exclude  []string // never selected
}

// TopN keeps the N best ranked instruments that pass the screen
// ⭐ SSOT: default selection policy
type TopN struct {
	N      int
	Screen ScreenerConfig
	logger *logger.Logger
}

// NewTopN creates a TopN selector
func NewTopN(n int, screen ScreenerConfig, log *logger.Logger) *TopN {
	return &TopN{N: n, Screen: screen, logger: log}
}

// Select implements Selector
func (s *TopN) Select(ctx context.Context, ranking *Ranking, held []string) ([]string, error) {
	if s.N < 1 {
		return nil, fmt.Errorf("top_n must be >= 1, got %d", s.N)
	}

	excluded := make(map[string]bool, len(s.Screen.Exclude))
	for _, id := range s.Screen.Exclude {
		excluded[id] = true
	}

	var picked []string
	filtered := map[string]int{}
	for _, sc := range ranking.Scores {
		if len(picked) == s.N {
			break
		}
		switch {
		case excluded[sc.InstrumentID]:
			filtered["excluded"]++
		case s.Screen.MinScore > 0 && sc.Score < s.Screen.MinScore:
			filtered["min_score"]++
		default:
			picked = append(picked, sc.InstrumentID)
		}
	}

	if s.logger != nil {
		s.logger.WithFields(map[string]interface{}{
			"date":     contracts.SessionKey(ranking.AsOf),
			"selected": picked,
			"filtered": filtered,
		}).Debug("Selection completed")
	}

	return picked, nil
}

// Static always selects the same instruments, in the given order, when they
// are ranked that session.
type Static struct {
	IDs []string
}

// Select implements Selector
func (s Static) Select(ctx context.Context, ranking *Ranking, held []string) ([]string, error) {
	var out []string
	for _, id := range s.IDs {
		if _, ok := ranking.Get(id); ok {
			out = append(out, id)
		}
	}
	return out, nil
}
