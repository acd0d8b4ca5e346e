package s2_signals

import (
	"context"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
	"github.com/wonny/aegis-t0/pkg/logger"
)

// VolumePriceCalculator calculates volume-price factors
type VolumePriceCalculator struct {
	days   int
	logger *logger.Logger
}

// NewVolumePriceCalculator creates a new volume-price calculator
func NewVolumePriceCalculator(cfg strategyconfig.Factors, log *logger.Logger) *VolumePriceCalculator {
	return &VolumePriceCalculator{
		days:   cfg.VolumeRatioDays,
		logger: log,
	}
}

// Calculate returns volume_ratio, turnover and divergence.
// Turnover needs float shares; it is missing when they are unknown.
func (c *VolumePriceCalculator) Calculate(ctx context.Context, inst contracts.Instrument, bars []contracts.Bar) RawFactors {
	raw := RawFactors{}
	n := len(bars)
	if n == 0 {
		return raw
	}
	today := bars[n-1]

	// today / mean of the previous N sessions
	if n >= c.days+1 {
		var sum float64
		for _, b := range bars[n-1-c.days : n-1] {
			sum += b.Volume
		}
		if avg := sum / float64(c.days); avg > 0 {
			raw[contracts.FactorVolumeRatio] = today.Volume / avg
		}
	}

	if inst.FloatShares > 0 {
		raw[contracts.FactorTurnover] = today.Volume / inst.FloatShares
	}

	// -1 when price and volume move in opposite directions
	if n >= 2 {
		prev := bars[n-2]
		dp := today.Close - prev.Close
		dv := today.Volume - prev.Volume
		div := 0.0
		if (dp > 0 && dv < 0) || (dp < 0 && dv > 0) {
			div = -1
		}
		raw[contracts.FactorDivergence] = div
	}

	c.logger.WithFields(map[string]interface{}{
		"code":    inst.ID,
		"factors": raw,
	}).Debug("Calculated volume-price factors")

	return raw
}
