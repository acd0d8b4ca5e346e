package s2_signals

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/wonny/aegis-t0/internal/contracts"
)

// Indicator helpers over daily bars (oldest first).
// Each returns ok=false when the history is too short instead of a misleading zero.

func closes(bars []contracts.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func highs(bars []contracts.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

func lows(bars []contracts.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// Return is close_t / close_{t-days} - 1.
func Return(c []float64, days int) (float64, bool) {
	if days < 1 || len(c) < days+1 {
		return 0, false
	}
	past := c[len(c)-1-days]
	if past <= 0 {
		return 0, false
	}
	return c[len(c)-1]/past - 1, true
}

// MACD returns the last DIF and DEA lines.
func MACD(c []float64, fast, slow, signal int) (dif, dea float64, ok bool) {
	if len(c) < slow+signal {
		return 0, 0, false
	}
	macd, sig, _ := talib.Macd(c, fast, slow, signal)
	last := len(c) - 1
	if math.IsNaN(macd[last]) || math.IsNaN(sig[last]) {
		return 0, 0, false
	}
	return macd[last], sig[last], true
}

// BollingerPosition is (close - lower)/(upper - lower) of the last bar.
// A collapsed band reads 0.5 (price at the middle).
func BollingerPosition(c []float64, period int, k float64) (float64, bool) {
	if period < 2 || len(c) < period {
		return 0, false
	}
	upper, _, lower := talib.BBands(c, period, k, k, talib.SMA)
	last := len(c) - 1
	width := upper[last] - lower[last]
	if math.IsNaN(width) {
		return 0, false
	}
	if width <= 0 {
		return 0.5, true
	}
	return (c[last] - lower[last]) / width, true
}

// KDJ computes the K, D and J series with K and D seeded at 50.
// RSV = (C - LLV(L,n)) / (HHV(H,n) - LLV(L,n)) × 100; a flat window reads 50.
// The slices start at bar n-1.
func KDJ(h, l, c []float64, n, m1, m2 int) (k, d, j []float64) {
	if n < 1 || len(c) < n {
		return nil, nil, nil
	}
	prevK, prevD := 50.0, 50.0
	for t := n - 1; t < len(c); t++ {
		hh, ll := h[t], l[t]
		for i := t - n + 1; i < t; i++ {
			hh = math.Max(hh, h[i])
			ll = math.Min(ll, l[i])
		}
		rsv := 50.0
		if hh > ll {
			rsv = (c[t] - ll) / (hh - ll) * 100
		}
		kt := (float64(m1-1)*prevK + rsv) / float64(m1)
		dt := (float64(m2-1)*prevD + kt) / float64(m2)
		k = append(k, kt)
		d = append(d, dt)
		j = append(j, 3*kt-2*dt)
		prevK, prevD = kt, dt
	}
	return k, d, j
}

// KDJCross scores the last KDJ state:
// +1 golden cross (K crosses above D), -1 death cross, otherwise ±0.5 by K vs D.
func KDJCross(h, l, c []float64, n, m1, m2 int) (float64, bool) {
	k, d, _ := KDJ(h, l, c, n, m1, m2)
	if len(k) < 2 {
		return 0, false
	}
	last := len(k) - 1
	prevDiff := k[last-1] - d[last-1]
	diff := k[last] - d[last]
	switch {
	case prevDiff <= 0 && diff > 0:
		return 1, true
	case prevDiff >= 0 && diff < 0:
		return -1, true
	case diff > 0:
		return 0.5, true
	case diff < 0:
		return -0.5, true
	}
	return 0, true
}

// trueRange of bar b given the previous close.
func trueRange(b contracts.Bar, prevClose float64) float64 {
	return math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
}

// ATR is Wilder's average true range over n daily bars. With a shorter history
// it falls back to the mean true range of what is there (the first bar uses
// its pre_close). Returns 0 for an empty history.
func ATR(bars []contracts.Bar, n int) float64 {
	if len(bars) == 0 || n < 1 {
		return 0
	}
	if len(bars) > n+1 {
		atr := talib.Atr(highs(bars), lows(bars), closes(bars), n)
		if v := atr[len(atr)-1]; v > 0 && !math.IsNaN(v) {
			return v
		}
	}

	var sum float64
	for i, b := range bars {
		prev := b.PreClose
		if i > 0 {
			prev = bars[i-1].Close
		}
		sum += trueRange(b, prev)
	}
	return sum / float64(len(bars))
}

// MovingAverage is the simple moving average of the last period closes.
func MovingAverage(c []float64, period int) (float64, bool) {
	if period < 1 || len(c) < period {
		return 0, false
	}
	if period == 1 {
		return c[len(c)-1], true
	}
	sma := talib.Sma(c, period)
	return sma[len(sma)-1], true
}
