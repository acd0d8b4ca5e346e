package s2_signals

import (
	"context"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
	"github.com/wonny/aegis-t0/pkg/logger"
)

// MomentumCalculator calculates momentum factors
// ⭐ SSOT: momentum factors are computed here only
type MomentumCalculator struct {
	short, long int
	logger      *logger.Logger
}

// NewMomentumCalculator creates a new momentum calculator
func NewMomentumCalculator(cfg strategyconfig.Factors, log *logger.Logger) *MomentumCalculator {
	return &MomentumCalculator{
		short:  cfg.ShortLookback,
		long:   cfg.LongLookback,
		logger: log,
	}
}

// Calculate returns momentum_5d, momentum_20d and relative_strength.
// relative_strength is the long-lookback return in excess of the benchmark's.
func (c *MomentumCalculator) Calculate(ctx context.Context, code string, prices, benchmark []float64) RawFactors {
	raw := RawFactors{}

	if v, ok := Return(prices, c.short); ok {
		raw[contracts.FactorMomentum5D] = v
	}
	long, ok := Return(prices, c.long)
	if ok {
		raw[contracts.FactorMomentum20D] = long
	}
	if bench, bok := Return(benchmark, c.long); ok && bok {
		raw[contracts.FactorRelativeStrength] = long - bench
	}

	c.logger.WithFields(map[string]interface{}{
		"code":    code,
		"factors": raw,
	}).Debug("Calculated momentum factors")

	return raw
}
