package s2_signals

import "github.com/wonny/aegis-t0/internal/contracts"

// Regime is the market state read off the benchmark.
type Regime string

const (
	RegimeBull  Regime = "bull"
	RegimeRange Regime = "range"
	RegimeBear  Regime = "bear"
)

// Moving-average windows of the regime filter
const (
	regimeFast = 20
	regimeSlow = 60
)

// DetectRegime classifies the benchmark's daily history:
// bull when close > MA20 > MA60, bear when close < MA20 < MA60, range otherwise
// (including too little history).
func DetectRegime(benchmark []contracts.Bar) Regime {
	c := closes(benchmark)
	fast, ok1 := MovingAverage(c, regimeFast)
	slow, ok2 := MovingAverage(c, regimeSlow)
	if !ok1 || !ok2 {
		return RegimeRange
	}
	last := c[len(c)-1]
	switch {
	case last > fast && fast > slow:
		return RegimeBull
	case last < fast && fast < slow:
		return RegimeBear
	}
	return RegimeRange
}
