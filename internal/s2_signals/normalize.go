package s2_signals

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/aegis-t0/internal/strategyconfig"
)

// Normalize maps one factor's cross-section onto a common scale.
// NaN entries are missing: they receive the median of the normalized present
// values and imputed[i] = true. When every entry is missing all of them get
// the neutral value (0.5 for rank, 0 for z-score).
// Median imputation (never zero) is a deliberate policy choice.
func Normalize(method string, values []float64) (out []float64, imputed []bool) {
	out = make([]float64, len(values))
	imputed = make([]bool, len(values))

	var idx []int
	var present []float64
	for i, v := range values {
		if math.IsNaN(v) {
			imputed[i] = true
			continue
		}
		idx = append(idx, i)
		present = append(present, v)
	}

	var norm []float64
	neutral := 0.5
	switch method {
	case strategyconfig.NormalizeZScore:
		norm = zscore(present)
		neutral = 0
	default:
		norm = rank(present)
	}

	for k, i := range idx {
		out[i] = norm[k]
	}
	fillMissing(out, imputed, norm, neutral)
	return out, imputed
}

// Impute keeps present values as they are and fills NaN entries with the
// median of the present ones. It is the missing-value policy of factors that
// arrive already normalized.
func Impute(method string, values []float64) (out []float64, imputed []bool) {
	out = make([]float64, len(values))
	imputed = make([]bool, len(values))

	var present []float64
	for i, v := range values {
		if math.IsNaN(v) {
			imputed[i] = true
			continue
		}
		out[i] = v
		present = append(present, v)
	}

	neutral := 0.5
	if method == strategyconfig.NormalizeZScore {
		neutral = 0
	}
	fillMissing(out, imputed, present, neutral)
	return out, imputed
}

// fillMissing sets imputed entries to the median of present, or neutral when
// nothing is present.
func fillMissing(out []float64, imputed []bool, present []float64, neutral float64) {
	fill := neutral
	if len(present) > 0 {
		fill = median(present)
	}
	for i := range out {
		if imputed[i] {
			out[i] = fill
		}
	}
}

// rank maps values to [0,1] by ascending rank; ties share the average rank.
// A single value maps to 0.5.
func rank(values []float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if n == 1 {
		out[0] = 0.5
		return out
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })

	for start := 0; start < n; {
		end := start + 1
		for end < n && values[order[end]] == values[order[start]] {
			end++
		}
		// positions start..end-1 share the 0-based average rank
		avg := float64(start+end-1) / 2
		for p := start; p < end; p++ {
			out[order[p]] = avg / float64(n-1)
		}
		start = end
	}
	return out
}

// zscore standardizes with the sample standard deviation. Zero dispersion
// (or fewer than two values) maps everything to 0.
func zscore(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) < 2 {
		return out
	}
	mean, sd := stat.MeanStdDev(values, nil)
	if sd == 0 || math.IsNaN(sd) {
		return out
	}
	for i, v := range values {
		out[i] = (v - mean) / sd
	}
	return out
}

func median(values []float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
