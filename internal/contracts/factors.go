package contracts

import "time"

// Category groups factors that share one composite weight.
type Category string

const (
	CategoryMomentum    Category = "momentum"
	CategoryTechnical   Category = "technical"
	CategoryVolumePrice Category = "volume_price"
	CategoryCapitalFlow Category = "capital_flow"
	CategorySentiment   Category = "sentiment"
)

// Categories lists every category in report order.
var Categories = []Category{
	CategoryMomentum,
	CategoryTechnical,
	CategoryVolumePrice,
	CategoryCapitalFlow,
	CategorySentiment,
}

// FactorName identifies one raw factor.
type FactorName string

const (
	FactorMomentum5D       FactorName = "momentum_5d"
	FactorMomentum20D      FactorName = "momentum_20d"
	FactorRelativeStrength FactorName = "relative_strength"
	FactorMACD             FactorName = "macd"
	FactorKDJCross         FactorName = "kdj_cross"
	FactorBollPosition     FactorName = "boll_position"
	FactorVolumeRatio      FactorName = "volume_ratio"
	FactorTurnover         FactorName = "turnover"
	FactorDivergence       FactorName = "divergence"
	FactorMainInflow       FactorName = "main_inflow"
	FactorNorthbound       FactorName = "northbound"
	FactorMarketHeat       FactorName = "market_heat"
	FactorSectorRotation   FactorName = "sector_rotation"
)

// Factors lists every factor in a fixed order. Normalization and reports
// iterate this slice so output never depends on map order.
var Factors = []FactorName{
	FactorMomentum5D, FactorMomentum20D, FactorRelativeStrength,
	FactorMACD, FactorKDJCross, FactorBollPosition,
	FactorVolumeRatio, FactorTurnover, FactorDivergence,
	FactorMainInflow, FactorNorthbound,
	FactorMarketHeat, FactorSectorRotation,
}

var factorCategory = map[FactorName]Category{
	FactorMomentum5D:       CategoryMomentum,
	FactorMomentum20D:      CategoryMomentum,
	FactorRelativeStrength: CategoryMomentum,
	FactorMACD:             CategoryTechnical,
	FactorKDJCross:         CategoryTechnical,
	FactorBollPosition:     CategoryTechnical,
	FactorVolumeRatio:      CategoryVolumePrice,
	FactorTurnover:         CategoryVolumePrice,
	FactorDivergence:       CategoryVolumePrice,
	FactorMainInflow:       CategoryCapitalFlow,
	FactorNorthbound:       CategoryCapitalFlow,
	FactorMarketHeat:       CategorySentiment,
	FactorSectorRotation:   CategorySentiment,
}

// prenormalized factors come from the aux feed already on a common scale.
var prenormalized = map[FactorName]bool{
	FactorMainInflow:     true,
	FactorNorthbound:     true,
	FactorMarketHeat:     true,
	FactorSectorRotation: true,
}

// Prenormalized reports whether the factor is used as supplied instead of
// being normalized across instruments.
func (f FactorName) Prenormalized() bool {
	return prenormalized[f]
}

// Category returns the category the factor belongs to.
func (f FactorName) Category() Category {
	return factorCategory[f]
}

// FactorScore is one factor of one instrument on one session.
// Produced once per instrument per day, never mutated.
type FactorScore struct {
	InstrumentID string     `json:"instrument_id"`
	SessionDate  time.Time  `json:"session_date"`
	Factor       FactorName `json:"factor"`
	Raw          float64    `json:"raw"`        // 0 when Imputed
	Normalized   float64    `json:"normalized"` // [0,1] for rank, z-score otherwise
	Imputed      bool       `json:"imputed"`    // raw value was unavailable
}

// CompositeScore is the weighted ranking score of an instrument on a session.
// ⭐ SSOT: FactorModel → Selection
type CompositeScore struct {
	InstrumentID string               `json:"instrument_id"`
	SessionDate  time.Time            `json:"session_date"`
	Score        float64              `json:"score"`
	Rank         int                  `json:"rank"` // 1-based, 0 = not ranked yet
	Categories   map[Category]float64 `json:"categories"`
	Factors      []FactorScore        `json:"factors"`
}

// IsTopRanked checks if the instrument is in the top n ranks
func (c *CompositeScore) IsTopRanked(n int) bool {
	return c.Rank > 0 && c.Rank <= n
}
