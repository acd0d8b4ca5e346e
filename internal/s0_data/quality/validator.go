package quality

import (
	"errors"
	"fmt"
	"time"

	"github.com/wonny/aegis-t0/internal/contracts"
)

// SessionBars is what the gate needs from a price series.
type SessionBars interface {
	SessionBars(id string, session time.Time) []contracts.Bar
}

// QualityGate validates one session's bars per instrument before the engine uses them
type QualityGate struct {
	config Config
}

// Config holds quality gate thresholds
type Config struct {
	MinBarsPerSession int     `yaml:"min_bars_per_session"` // fewer bars → excluded
	MinCoverage       float64 `yaml:"min_coverage"`         // below → Snapshot.Passed false (advisory)
}

// DefaultConfig accepts any session with at least one valid bar
func DefaultConfig() Config {
	return Config{MinBarsPerSession: 1, MinCoverage: 0}
}

// NewQualityGate creates a new QualityGate instance
func NewQualityGate(config Config) *QualityGate {
	if config.MinBarsPerSession < 1 {
		config.MinBarsPerSession = 1
	}
	return &QualityGate{config: config}
}

// Result is the gate outcome for one session.
type Result struct {
	Snapshot *contracts.DataQualitySnapshot
	Valid    map[string][]contracts.Bar // instrument → validated bars
	Errors   map[string]error           // instrument → first integrity error
	Passed   bool                       // coverage ≥ MinCoverage
}

// Check validates every instrument in ids for the session
// ⭐ SSOT: S0 → engine integrity gate
//
// Instruments without bars that day are not counted (not trading is not a
// data error). The benchmark is checked the same way and reported separately.
func (g *QualityGate) Check(series SessionBars, session time.Time, ids []string, benchmarkID string) *Result {
	res := &Result{
		Snapshot: &contracts.DataQualitySnapshot{Date: session},
		Valid:    make(map[string][]contracts.Bar),
		Errors:   make(map[string]error),
	}

	for _, id := range ids {
		bars := series.SessionBars(id, session)
		if len(bars) == 0 {
			continue
		}
		if id != benchmarkID {
			res.Snapshot.Total++
		}

		if err := g.validate(id, session, bars); err != nil {
			res.Errors[id] = err
			if id != benchmarkID {
				res.Snapshot.Exclusions = append(res.Snapshot.Exclusions, contracts.Exclusion{
					InstrumentID: id,
					SessionDate:  session,
					Reason:       reason(err),
				})
			}
			continue
		}

		res.Valid[id] = bars
		if id == benchmarkID {
			res.Snapshot.Benchmark = true
		} else {
			res.Snapshot.Valid++
		}
	}

	res.Passed = res.Snapshot.Total == 0 || res.Snapshot.Coverage() >= g.config.MinCoverage
	return res
}

func (g *QualityGate) validate(id string, session time.Time, bars []contracts.Bar) error {
	if len(bars) < g.config.MinBarsPerSession {
		return contracts.NewIntegrityError(id, session, "only %d bars, need %d", len(bars), g.config.MinBarsPerSession)
	}
	if err := contracts.ValidateSession(bars); err != nil {
		return err
	}
	for _, b := range bars {
		if !contracts.SameSession(b.SessionDate, session) {
			return contracts.NewIntegrityError(id, session, "bar dated %s in session", contracts.SessionKey(b.SessionDate))
		}
	}
	return nil
}

func reason(err error) string {
	var die *contracts.DataIntegrityError
	if errors.As(err, &die) {
		return die.Reason
	}
	return fmt.Sprint(err)
}
