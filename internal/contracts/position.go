package contracts

import "time"

// IntradayState is the T+0 state of a held position within one session.
type IntradayState string

const (
	// StateUntracked: no overnight quantity, T+0 ignores the position today
	StateUntracked IntradayState = ""

	StateHoldingOvernight IntradayState = "HOLDING_OVERNIGHT"
	StateSoldIntraday     IntradayState = "SOLD_INTRADAY"
	StateRebought         IntradayState = "REBOUGHT"
	StateClosedNoRebuy    IntradayState = "CLOSED_NO_REBUY"
)

// IsTerminal reports whether no further intraday action is possible today.
func (s IntradayState) IsTerminal() bool {
	return s == StateRebought || s == StateClosedNoRebuy
}

// Position is an overnight holding driven by the T+0 state machine.
// Mutated only through T+0 transitions and risk-approved fills.
type Position struct {
	InstrumentID string        `json:"instrument_id"`
	Sector       string        `json:"sector"`
	OvernightQty int64         `json:"overnight_qty"`
	State        IntradayState `json:"state"`
	EntryPrice   float64       `json:"entry_price"`
	CostBasis    float64       `json:"cost_basis"` // per share, unchanged by rotations
	EntryDate    time.Time     `json:"entry_date"`

	// Intraday leg, reset every session
	SoldPrice  *float64  `json:"sold_price,omitempty"`
	SoldQty    int64     `json:"sold_qty"`
	SoldAt     time.Time `json:"sold_at,omitempty"`
	RebuyPrice *float64  `json:"rebuy_price,omitempty"`
	RebuyQty   int64     `json:"rebuy_qty"`
}

// ResetIntraday clears the intraday leg before a new session.
func (p *Position) ResetIntraday() {
	p.SoldPrice = nil
	p.SoldQty = 0
	p.SoldAt = time.Time{}
	p.RebuyPrice = nil
	p.RebuyQty = 0
	if p.OvernightQty > 0 {
		p.State = StateHoldingOvernight
	} else {
		p.State = StateUntracked
	}
}

// HeldQty is the quantity currently held, including the intraday leg.
func (p *Position) HeldQty() int64 {
	return p.OvernightQty - p.SoldQty + p.RebuyQty
}
