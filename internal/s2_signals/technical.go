package s2_signals

import (
	"context"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
	"github.com/wonny/aegis-t0/pkg/logger"
)

// TechnicalCalculator calculates technical factors
// ⭐ SSOT: technical indicator factors are computed here only
type TechnicalCalculator struct {
	cfg    strategyconfig.Factors
	logger *logger.Logger
}

// NewTechnicalCalculator creates a new technical calculator
func NewTechnicalCalculator(cfg strategyconfig.Factors, log *logger.Logger) *TechnicalCalculator {
	return &TechnicalCalculator{
		cfg:    cfg,
		logger: log,
	}
}

// Calculate returns macd, kdj_cross and boll_position for a daily history.
//
//	macd          (DIF - DEA) / close, so instruments at different price levels compare
//	kdj_cross     +1 golden cross, -1 death cross, ±0.5 by K vs D otherwise
//	boll_position (close - lower) / (upper - lower)
func (c *TechnicalCalculator) Calculate(ctx context.Context, code string, bars []contracts.Bar) RawFactors {
	raw := RawFactors{}
	if len(bars) == 0 {
		return raw
	}

	cl := closes(bars)
	last := cl[len(cl)-1]

	if dif, dea, ok := MACD(cl, c.cfg.MACD.Fast, c.cfg.MACD.Slow, c.cfg.MACD.Signal); ok && last > 0 {
		raw[contracts.FactorMACD] = (dif - dea) / last
	}

	if v, ok := KDJCross(highs(bars), lows(bars), cl, c.cfg.KDJ.N, c.cfg.KDJ.M1, c.cfg.KDJ.M2); ok {
		raw[contracts.FactorKDJCross] = v
	}

	if v, ok := BollingerPosition(cl, c.cfg.Bollinger.Period, c.cfg.Bollinger.K); ok {
		raw[contracts.FactorBollPosition] = v
	}

	c.logger.WithFields(map[string]interface{}{
		"code":    code,
		"factors": raw,
	}).Debug("Calculated technical factors")

	return raw
}
