package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/execution"
	"github.com/wonny/aegis-t0/internal/risk"
	"github.com/wonny/aegis-t0/internal/s0_data"
	"github.com/wonny/aegis-t0/pkg/logger"
)

// Simulator is the simulated portfolio of one run
// ⭐ SSOT: cash, holdings and realized P&L change only here
type Simulator struct {
	logger   *logger.Logger
	universe s0_data.Universe

	cash       float64
	lastEquity float64
	positions  map[string]*contracts.Position
	stops      map[string]risk.Stop
	marks      map[string]float64 // last seen close
	legs       map[string]t0Leg   // open T+0 sell legs of the session
	roundTrips []contracts.RoundTrip
	commission float64
}

type t0Leg struct {
	price      float64
	qty        int64
	commission float64
	at         time.Time
}

// NewSimulator creates a flat portfolio with initial cash
func NewSimulator(initial float64, universe s0_data.Universe, log *logger.Logger) *Simulator {
	return &Simulator{
		logger:     log,
		universe:   universe,
		cash:       initial,
		lastEquity: initial,
		positions:  make(map[string]*contracts.Position),
		stops:      make(map[string]risk.Stop),
		marks:      make(map[string]float64),
		legs:       make(map[string]t0Leg),
	}
}

// Cash returns the cash balance
func (s *Simulator) Cash() float64 { return s.cash }

// Position returns the holding of id
func (s *Simulator) Position(id string) (*contracts.Position, bool) {
	p, ok := s.positions[id]
	return p, ok
}

// Positions returns every holding ordered by instrument id
func (s *Simulator) Positions() []*contracts.Position {
	out := make([]*contracts.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out
}

// HeldIDs returns the held instrument ids, sorted
func (s *Simulator) HeldIDs() []string {
	ids := make([]string, 0, len(s.positions))
	for id := range s.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Mark records the latest price of id
func (s *Simulator) Mark(id string, price float64) {
	s.marks[id] = price
}

// Equity is cash plus held quantity at the latest marks
func (s *Simulator) Equity() float64 {
	equity := s.cash
	for id, p := range s.positions {
		equity += float64(p.HeldQty()) * s.marks[id]
	}
	return equity
}

// Portfolio builds the risk view of the current holdings
func (s *Simulator) Portfolio(peak float64) risk.Portfolio {
	pf := risk.Portfolio{
		Cash:         s.cash,
		PeakEquity:   peak,
		ByInstrument: make(map[string]float64, len(s.positions)),
		BySector:     make(map[string]float64),
	}
	pf.Equity = s.cash
	for _, id := range s.HeldIDs() {
		value := float64(s.positions[id].HeldQty()) * s.marks[id]
		pf.Equity += value
		pf.ByInstrument[id] = value
		if sector := s.universe.Lookup(id).Sector; sector != "" {
			pf.BySector[sector] += value
		}
	}
	return pf
}

// Buy opens or adds to a position at the close
func (s *Simulator) Buy(id string, qty int64, f Fill, at time.Time, stop risk.Stop) {
	cost := float64(qty)*f.Price + f.Commission
	s.cash -= cost
	s.commission += f.Commission
	s.marks[id] = f.Price

	if p, ok := s.positions[id]; ok {
		total := p.CostBasis*float64(p.OvernightQty) + float64(qty)*f.Price
		p.OvernightQty += qty
		p.CostBasis = total / float64(p.OvernightQty)
		return
	}
	s.positions[id] = &contracts.Position{
		InstrumentID: id,
		Sector:       s.universe.Lookup(id).Sector,
		OvernightQty: qty,
		EntryPrice:   f.Price,
		CostBasis:    f.Price,
		EntryDate:    at,
	}
	s.stops[id] = stop
}

// Sell closes (part of) a position at the close and books an exit round trip
func (s *Simulator) Sell(id string, qty int64, f Fill, at time.Time) error {
	p, ok := s.positions[id]
	if !ok || qty > p.OvernightQty {
		return fmt.Errorf("sell %d %s: not enough held", qty, id)
	}
	s.cash += float64(qty)*f.Price - f.Commission
	s.commission += f.Commission
	s.marks[id] = f.Price

	s.roundTrips = append(s.roundTrips, contracts.RoundTrip{
		InstrumentID: id,
		Kind:         contracts.RoundTripExit,
		OpenedAt:     p.EntryDate,
		ClosedAt:     at,
		Quantity:     qty,
		OpenPrice:    p.CostBasis,
		ClosePrice:   f.Price,
		PnL:          (f.Price-p.CostBasis)*float64(qty) - f.Commission,
	})

	p.OvernightQty -= qty
	if p.OvernightQty == 0 {
		delete(s.positions, id)
		delete(s.stops, id)
	}
	return nil
}

// ApplyT0 books the cash of a T+0 leg. Quantities live on the Position, which
// the strategy has already moved.
func (s *Simulator) ApplyT0(sig contracts.Signal, f Fill) {
	qty := float64(sig.Quantity)
	s.commission += f.Commission
	s.marks[sig.InstrumentID] = f.Price

	switch sig.Action {
	case contracts.ActionSell:
		s.cash += qty*f.Price - f.Commission
		s.legs[sig.InstrumentID] = t0Leg{price: f.Price, qty: sig.Quantity, commission: f.Commission, at: sig.Timestamp}

	case contracts.ActionBuy:
		s.cash -= qty*f.Price + f.Commission
		leg := s.legs[sig.InstrumentID]
		s.roundTrips = append(s.roundTrips, contracts.RoundTrip{
			InstrumentID: sig.InstrumentID,
			Kind:         contracts.RoundTripT0Rotation,
			OpenedAt:     leg.at,
			ClosedAt:     sig.Timestamp,
			Quantity:     sig.Quantity,
			OpenPrice:    leg.price,
			ClosePrice:   f.Price,
			PnL:          (leg.price-f.Price)*qty - f.Commission - leg.share(sig.Quantity),
		})
	}
}

// SettleT0 books the sold-but-not-rebought remainder of every outcome as a
// flat round trip against cost basis and drops positions left empty.
func (s *Simulator) SettleT0(outcomes []execution.SessionOutcome) {
	for _, o := range outcomes {
		leg, ok := s.legs[o.InstrumentID]
		if rem := o.SoldQty - o.RebuyQty; ok && rem > 0 {
			p := s.positions[o.InstrumentID]
			openedAt := o.SoldAt
			if p != nil {
				openedAt = p.EntryDate
			}
			s.roundTrips = append(s.roundTrips, contracts.RoundTrip{
				InstrumentID: o.InstrumentID,
				Kind:         contracts.RoundTripT0Flat,
				OpenedAt:     openedAt,
				ClosedAt:     o.SoldAt,
				Quantity:     rem,
				OpenPrice:    o.CostBasis,
				ClosePrice:   leg.price,
				PnL:          (leg.price-o.CostBasis)*float64(rem) - leg.share(rem),
			})
		}
		if p, ok := s.positions[o.InstrumentID]; ok && p.OvernightQty == 0 {
			delete(s.positions, o.InstrumentID)
			delete(s.stops, o.InstrumentID)
		}
	}
	s.legs = make(map[string]t0Leg)
}

// Stop returns the ATR stop of id
func (s *Simulator) Stop(id string) risk.Stop {
	return s.stops[id]
}

// SetStop replaces the ATR stop of id
func (s *Simulator) SetStop(id string, stop risk.Stop) {
	if _, ok := s.positions[id]; ok {
		s.stops[id] = stop
	}
}

// MarkToMarket values the portfolio at the session close
func (s *Simulator) MarkToMarket(date time.Time) contracts.EquityPoint {
	equity := s.Equity()
	pt := contracts.EquityPoint{Date: date, Equity: equity, Cash: s.cash}
	if s.lastEquity != 0 {
		pt.Return = equity/s.lastEquity - 1
	}
	s.lastEquity = equity
	return pt
}

// RoundTrips returns the closed trades in booking order
func (s *Simulator) RoundTrips() []contracts.RoundTrip {
	out := make([]contracts.RoundTrip, len(s.roundTrips))
	copy(out, s.roundTrips)
	return out
}

// Commission returns the total commission paid
func (s *Simulator) Commission() float64 { return s.commission }

// share prorates the sell-leg commission over qty shares
func (l t0Leg) share(qty int64) float64 {
	if l.qty == 0 {
		return 0
	}
	return l.commission * float64(qty) / float64(l.qty)
}
