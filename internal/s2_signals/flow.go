package s2_signals

import (
	"context"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/pkg/logger"
)

// FlowCalculator maps the externally supplied aux signals onto the
// capital-flow and sentiment factors. Values arrive already normalized by the
// producer; nil fields stay missing and are imputed in pass 2.
// ⭐ SSOT: aux signals enter the factor model here only
type FlowCalculator struct {
	logger *logger.Logger
}

// NewFlowCalculator creates a new flow calculator
func NewFlowCalculator(log *logger.Logger) *FlowCalculator {
	return &FlowCalculator{
		logger: log,
	}
}

// Calculate returns main_inflow, northbound, market_heat and sector_rotation.
func (c *FlowCalculator) Calculate(ctx context.Context, code string, aux *contracts.AuxSignals) RawFactors {
	raw := RawFactors{}
	if aux == nil {
		return raw
	}

	for _, f := range []struct {
		name contracts.FactorName
		v    *float64
	}{
		{contracts.FactorMainInflow, aux.MainInflow},
		{contracts.FactorNorthbound, aux.Northbound},
		{contracts.FactorMarketHeat, aux.MarketHeat},
		{contracts.FactorSectorRotation, aux.SectorRotation},
	} {
		if f.v != nil {
			raw[f.name] = *f.v
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"code":    code,
		"factors": raw,
	}).Debug("Mapped flow and sentiment signals")

	return raw
}
