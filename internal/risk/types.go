package risk

import "time"

// =============================================================================
// Sizing Types
// =============================================================================

// ProposalKind tells the manager which rules apply to a proposal
type ProposalKind string

const (
	KindEntry ProposalKind = "entry" // new position
	KindExit  ProposalKind = "exit"  // reduce or close (includes the T+0 sell leg)
	KindRebuy ProposalKind = "rebuy" // T+0 buy-back restoring a rotated holding
)

// Proposal is a position change asked of the manager
type Proposal struct {
	InstrumentID string       `json:"instrument_id"`
	Sector       string       `json:"sector"`
	Kind         ProposalKind `json:"kind"`
	Price        float64      `json:"price"`
	RequestedQty int64        `json:"requested_qty"` // 0 = let the manager size it (entries)
	WinProb      float64      `json:"win_prob"`      // 0 = configured default
	PayoffRatio  float64      `json:"payoff_ratio"`  // 0 = configured default
}

// Portfolio is the state the manager sizes against. Exposures are market values.
type Portfolio struct {
	Equity       float64            `json:"equity"`
	Cash         float64            `json:"cash"`
	PeakEquity   float64            `json:"peak_equity"`
	ByInstrument map[string]float64 `json:"by_instrument"`
	BySector     map[string]float64 `json:"by_sector"`
}

// Drawdown is the current decline from the equity peak (0 when at the peak)
func (p Portfolio) Drawdown() float64 {
	if p.PeakEquity <= 0 || p.Equity >= p.PeakEquity {
		return 0
	}
	return (p.PeakEquity - p.Equity) / p.PeakEquity
}

// Verdict of a sizing call
type Verdict string

const (
	Approved Verdict = "APPROVED"
	Rejected Verdict = "REJECTED"
)

// Reject reasons. A rejection is an advisory outcome, never an error.
const (
	ReasonZeroEdge            = "zero-edge"
	ReasonBelowLot            = "below-lot"
	ReasonBelowMinAmount      = "below-min-amount"
	ReasonConcentrationName   = "concentration-name"
	ReasonConcentrationSector = "concentration-sector"
	ReasonReduceOnly          = "reduce-only"
	ReasonDrawdownHalt        = "drawdown-halt"
)

// Decision is the outcome of Manager.Size
// ⭐ SSOT: ApprovedQty = 0 ⇔ Verdict = Rejected
type Decision struct {
	Verdict     Verdict `json:"verdict"`
	ApprovedQty int64   `json:"approved_qty"`
	Fraction    float64 `json:"fraction"` // capital fraction (entries)
	StopPrice   float64 `json:"stop_price"`
	TakePrice   float64 `json:"take_price"`
	Reason      string  `json:"reason,omitempty"`
}

// IsApproved reports whether any quantity was approved
func (d Decision) IsApproved() bool {
	return d.Verdict == Approved && d.ApprovedQty > 0
}

func reject(reason string) Decision {
	return Decision{Verdict: Rejected, Reason: reason}
}

// =============================================================================
// VaR/CVaR Types
// =============================================================================

// VaRResult holds historical VaR and CVaR
// ⭐ SSOT: losses are positive (VaR=0.05 → a 5% loss at the confidence level)
type VaRResult struct {
	Confidence float64 `json:"confidence"`
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"` // mean loss in the tail beyond VaR
}

// =============================================================================
// Monte Carlo Types
// =============================================================================

// MonteCarloConfig configures the bootstrap of daily returns
// ⭐ SSOT: every setting is recorded for reproducibility
type MonteCarloConfig struct {
	NumSimulations int   `json:"num_simulations"`
	HoldingPeriod  int   `json:"holding_period"` // days per path, 0 = length of the input
	Seed           int64 `json:"seed"`
	MinSamples     int   `json:"min_samples"` // fail-closed below this many returns
}

// DefaultMonteCarloConfig returns 1000 paths, seed 42
func DefaultMonteCarloConfig() MonteCarloConfig {
	return MonteCarloConfig{
		NumSimulations: 1000,
		Seed:           42,
		MinSamples:     2,
	}
}

// MonteCarloResult summarizes the simulated final-return distribution
type MonteCarloResult struct {
	RunID            string           `json:"run_id"`
	Config           MonteCarloConfig `json:"config"`
	InputSampleCount int              `json:"input_sample_count"`
	MeanReturn       float64          `json:"mean_return"`
	StdDev           float64          `json:"std_dev"`
	VaR95            float64          `json:"var_95"`
	CVaR95           float64          `json:"cvar_95"`
	ProbLoss         float64          `json:"prob_loss"`   // share of paths ending below 0
	Percentiles      map[int]float64  `json:"percentiles"` // 5, 25, 50, 75, 95
	CreatedAt        time.Time        `json:"created_at"`
}
