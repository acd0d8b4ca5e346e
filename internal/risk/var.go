package risk

import (
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// =============================================================================
// VaR (Value at Risk) Calculation
// =============================================================================

// CalculateVaR computes historical-simulation VaR and CVaR.
// returns: daily returns (positive = gain, negative = loss)
// confidence: e.g. 0.95, 0.99
// The tail is every return at or below the empirical (1-confidence) quantile.
func CalculateVaR(returns []float64, confidence float64) VaRResult {
	if len(returns) == 0 {
		return VaRResult{Confidence: confidence}
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	q := stat.Quantile(1-confidence, stat.Empirical, sorted, nil)

	return VaRResult{
		Confidence: confidence,
		VaR:        asLoss(q),
		CVaR:       CalculateCVaR(sorted, q),
	}
}

// CalculateCVaR is the mean loss of the returns at or below the VaR quantile.
// sorted must be ascending.
func CalculateCVaR(sorted []float64, quantile float64) float64 {
	n := sort.Search(len(sorted), func(i int) bool { return sorted[i] > quantile })
	if n == 0 {
		return 0
	}
	return asLoss(stat.Mean(sorted[:n], nil))
}

// =============================================================================
// Parametric VaR (normal assumption)
// =============================================================================

// CalculateParametricVaR computes VaR = z × σ and the normal expected shortfall
// CVaR = σ × φ(z) / (1 - confidence). The mean is ignored for daily horizons.
func CalculateParametricVaR(stdDev, confidence float64) VaRResult {
	if stdDev <= 0 || confidence <= 0 || confidence >= 1 {
		return VaRResult{Confidence: confidence}
	}
	norm := distuv.UnitNormal
	z := norm.Quantile(confidence)

	return VaRResult{
		Confidence: confidence,
		VaR:        z * stdDev,
		CVaR:       stdDev * norm.Prob(z) / (1 - confidence),
	}
}

// asLoss flips a return into a positive loss (gains map to 0)
func asLoss(r float64) float64 {
	if r < 0 {
		return -r
	}
	return 0
}
