package audit

import (
	"sort"

	"github.com/wonny/aegis-t0/internal/contracts"
)

// Attribution is the realized P&L contribution of one group of round trips
type Attribution struct {
	Key          string  `json:"key"`
	Contribution float64 `json:"contribution"` // realized P&L
	Share        float64 `json:"share"`        // of total |P&L|
	Trades       int     `json:"trades"`
	WinRate      float64 `json:"win_rate"`
}

// AttributeByInstrument groups realized P&L per instrument
func AttributeByInstrument(trips []contracts.RoundTrip) []Attribution {
	return attribute(trips, func(t contracts.RoundTrip) string { return t.InstrumentID })
}

// AttributeByKind groups realized P&L per round-trip kind (T+0 rotation,
// T+0 flat, exit)
func AttributeByKind(trips []contracts.RoundTrip) []Attribution {
	return attribute(trips, func(t contracts.RoundTrip) string { return string(t.Kind) })
}

func attribute(trips []contracts.RoundTrip, key func(contracts.RoundTrip) string) []Attribution {
	byKey := make(map[string]*Attribution)
	wins := make(map[string]int)
	var gross float64

	for _, t := range trips {
		k := key(t)
		a, ok := byKey[k]
		if !ok {
			a = &Attribution{Key: k}
			byKey[k] = a
		}
		a.Contribution += t.PnL
		a.Trades++
		if t.IsWin() {
			wins[k]++
		}
		if t.PnL < 0 {
			gross -= t.PnL
		} else {
			gross += t.PnL
		}
	}

	attrs := make([]Attribution, 0, len(byKey))
	for k, a := range byKey {
		a.WinRate = float64(wins[k]) / float64(a.Trades)
		if gross > 0 {
			a.Share = a.Contribution / gross
		}
		attrs = append(attrs, *a)
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })
	return attrs
}

// TopContributors returns the best contributors, highest first
func TopContributors(attrs []Attribution, limit int) []Attribution {
	return ranked(attrs, limit, func(a, b Attribution) bool { return a.Contribution > b.Contribution })
}

// BottomContributors returns the worst contributors, lowest first
func BottomContributors(attrs []Attribution, limit int) []Attribution {
	return ranked(attrs, limit, func(a, b Attribution) bool { return a.Contribution < b.Contribution })
}

func ranked(attrs []Attribution, limit int, less func(a, b Attribution) bool) []Attribution {
	sorted := make([]Attribution, len(attrs))
	copy(sorted, attrs)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	if limit < 0 || limit > len(sorted) {
		limit = len(sorted)
	}
	return sorted[:limit]
}
