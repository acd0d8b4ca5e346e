// Package execution - t0_strategy.go
// T+0 rotation of overnight holdings:
// - sell into intraday strength (spike-and-fade, gap-up-fade, take-profit)
// - buy back on weakness (pullback-below-sale, undercut-and-recover, optional forced rebuy)
// - never holds more than the overnight quantity, only rotates it
package execution

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/risk"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
	"github.com/wonny/aegis-t0/pkg/logger"
)

// Sizer approves quantities (risk.Bound)
type Sizer interface {
	Size(p risk.Proposal) (risk.Decision, error)
}

// SessionOutcome is the end-of-day record of one tracked position
type SessionOutcome struct {
	SessionDate  time.Time               `json:"session_date"`
	InstrumentID string                  `json:"instrument_id"`
	State        contracts.IntradayState `json:"state"`
	CostBasis    float64                 `json:"cost_basis"`
	SoldPrice    float64                 `json:"sold_price"`
	SoldQty      int64                   `json:"sold_qty"`
	SoldAt       time.Time               `json:"sold_at"`
	RebuyPrice   float64                 `json:"rebuy_price"`
	RebuyQty     int64                   `json:"rebuy_qty"`
	RealizedPnL  float64                 `json:"realized_pnl"` // CLOSED_NO_REBUY only: (sold - cost) × qty
}

type tracked struct {
	pos   *contracts.Position
	quote Quote
}

// T0Strategy runs the intraday state machine for every held position of one session.
// Not safe for concurrent use; the session loop drives it bar by bar.
type T0Strategy struct {
	cfg    strategyconfig.T0
	lot    int64
	rules  Rules
	logger *logger.Logger

	session   time.Time
	sizer     Sizer
	positions map[string]*tracked
}

// NewT0Strategy creates the strategy
func NewT0Strategy(cfg strategyconfig.T0, lotSize int64, log *logger.Logger) *T0Strategy {
	if lotSize < 1 {
		lotSize = 1
	}
	return &T0Strategy{
		cfg:       cfg,
		lot:       lotSize,
		rules:     NewRules(cfg),
		logger:    log.WithComponent("t0_strategy"),
		positions: make(map[string]*tracked),
	}
}

// BeginSession resets every position's intraday leg and tracks those with an
// overnight quantity. Positions are mutated in place.
func (s *T0Strategy) BeginSession(date time.Time, positions []*contracts.Position, sizer Sizer) {
	s.session = date
	s.sizer = sizer
	s.positions = make(map[string]*tracked, len(positions))

	for _, p := range positions {
		p.ResetIntraday()
		if p.State != contracts.StateHoldingOvernight {
			continue
		}
		s.positions[p.InstrumentID] = &tracked{pos: p}
	}

	s.logger.WithFields(map[string]interface{}{
		"date":    contracts.SessionKey(date),
		"tracked": len(s.positions),
	}).Debug("T+0 session started")
}

// Tracking reports whether id is driven by the state machine this session
func (s *T0Strategy) Tracking(id string) bool {
	_, ok := s.positions[id]
	return ok
}

// OnBar steps the state machine of bar's instrument. It returns the approved
// signal, or nil when nothing fired or risk approved nothing.
func (s *T0Strategy) OnBar(bar contracts.Bar) (*contracts.Signal, error) {
	barKey, sessionKey := contracts.SessionKey(bar.SessionDate), contracts.SessionKey(s.session)
	switch {
	case barKey > sessionKey:
		return nil, &contracts.LookaheadViolation{Component: "t0_strategy", AsOf: s.session, Seen: bar.Timestamp}
	case barKey < sessionKey:
		return nil, contracts.NewIntegrityError(bar.InstrumentID, bar.SessionDate,
			"bar from a past session during %s", sessionKey)
	}

	t, ok := s.positions[bar.InstrumentID]
	if !ok {
		return nil, nil
	}
	if !t.quote.Time.IsZero() && !bar.Timestamp.After(t.quote.Time) {
		return nil, contracts.NewIntegrityError(bar.InstrumentID, bar.SessionDate,
			"non-increasing timestamp %s after %s", bar.Timestamp.Format(time.RFC3339), t.quote.Time.Format(time.RFC3339))
	}
	t.quote.Update(bar)

	switch t.pos.State {
	case contracts.StateHoldingOvernight:
		return s.trySell(t)
	case contracts.StateSoldIntraday:
		return s.tryRebuy(t)
	}
	return nil, nil
}

func (s *T0Strategy) trySell(t *tracked) (*contracts.Signal, error) {
	reason, ok := s.rules.SellReason(t.quote)
	if !ok {
		return nil, nil
	}

	requested := s.roundLot(float64(t.pos.OvernightQty) * s.cfg.MaxT0Ratio)
	if requested <= 0 {
		s.advisory(t, reason, "rotation below one lot")
		return nil, nil
	}
	d, err := s.sizer.Size(risk.Proposal{
		InstrumentID: t.pos.InstrumentID,
		Sector:       t.pos.Sector,
		Kind:         risk.KindExit,
		Price:        t.quote.Current,
		RequestedQty: requested,
	})
	if err != nil {
		return nil, fmt.Errorf("size t0 sell %s: %w", t.pos.InstrumentID, err)
	}
	if !d.IsApproved() {
		s.advisory(t, reason, d.Reason)
		return nil, nil
	}

	next, err := Transition(t.pos.State, EventSell)
	if err != nil {
		return nil, err
	}
	qty := minInt64(d.ApprovedQty, requested)
	price := t.quote.Current
	t.pos.State = next
	t.pos.SoldPrice = &price
	t.pos.SoldQty = qty
	t.pos.SoldAt = t.quote.Time

	return s.emit(t, contracts.ActionSell, qty, reason), nil
}

func (s *T0Strategy) tryRebuy(t *tracked) (*contracts.Signal, error) {
	reason, ok := s.rules.BuybackReason(t.quote, *t.pos.SoldPrice)
	if !ok {
		return nil, nil
	}

	d, err := s.sizer.Size(risk.Proposal{
		InstrumentID: t.pos.InstrumentID,
		Sector:       t.pos.Sector,
		Kind:         risk.KindRebuy,
		Price:        t.quote.Current,
		RequestedQty: t.pos.SoldQty,
	})
	if err != nil {
		return nil, fmt.Errorf("size t0 rebuy %s: %w", t.pos.InstrumentID, err)
	}
	if !d.IsApproved() {
		s.advisory(t, reason, d.Reason)
		return nil, nil
	}

	next, err := Transition(t.pos.State, EventRebuy)
	if err != nil {
		return nil, err
	}
	// Bounded by the quantity sold: rotation never grows the holding
	qty := minInt64(d.ApprovedQty, t.pos.SoldQty)
	price := t.quote.Current
	t.pos.State = next
	t.pos.RebuyPrice = &price
	t.pos.RebuyQty = qty

	return s.emit(t, contracts.ActionBuy, qty, reason), nil
}

// EndSession rolls every tracked position through SESSION_END, reports the
// outcomes in instrument order and reconciles the overnight quantity for the
// next session.
func (s *T0Strategy) EndSession() ([]SessionOutcome, error) {
	ids := make([]string, 0, len(s.positions))
	for id := range s.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	outcomes := make([]SessionOutcome, 0, len(ids))
	for _, id := range ids {
		p := s.positions[id].pos
		next, err := Transition(p.State, EventSessionEnd)
		if err != nil {
			return nil, err
		}
		p.State = next

		o := SessionOutcome{
			SessionDate:  s.session,
			InstrumentID: id,
			State:        next,
			CostBasis:    p.CostBasis,
			SoldQty:      p.SoldQty,
			SoldAt:       p.SoldAt,
			RebuyQty:     p.RebuyQty,
		}
		if p.SoldPrice != nil {
			o.SoldPrice = *p.SoldPrice
		}
		if p.RebuyPrice != nil {
			o.RebuyPrice = *p.RebuyPrice
		}
		if next == contracts.StateClosedNoRebuy {
			o.RealizedPnL = (o.SoldPrice - p.CostBasis) * float64(p.SoldQty)
			s.logger.WithFields(map[string]interface{}{
				"code":       id,
				"sold_price": o.SoldPrice,
				"qty":        p.SoldQty,
				"pnl":        o.RealizedPnL,
			}).Info("T+0 closed without buy-back")
		}
		outcomes = append(outcomes, o)

		p.OvernightQty = p.HeldQty()
		p.SoldQty, p.RebuyQty = 0, 0
	}

	s.positions = make(map[string]*tracked)
	return outcomes, nil
}

func (s *T0Strategy) emit(t *tracked, action contracts.Action, qty int64, reason contracts.ReasonCode) *contracts.Signal {
	s.logger.WithFields(map[string]interface{}{
		"code":   t.pos.InstrumentID,
		"action": action,
		"qty":    qty,
		"price":  t.quote.Current,
		"reason": reason,
		"state":  t.pos.State,
		"window": s.cfg.WindowAt(t.quote.Time),
	}).Info("T+0 signal")

	return &contracts.Signal{
		InstrumentID: t.pos.InstrumentID,
		Timestamp:    t.quote.Time,
		Action:       action,
		Quantity:     qty,
		Reason:       reason,
		Price:        t.quote.Current,
	}
}

// advisory logs a rule that fired without an approved quantity; the state stays put
func (s *T0Strategy) advisory(t *tracked, reason contracts.ReasonCode, why string) {
	s.logger.WithFields(map[string]interface{}{
		"code":   t.pos.InstrumentID,
		"rule":   reason,
		"state":  t.pos.State,
		"why":    why,
		"window": s.cfg.WindowAt(t.quote.Time),
	}).Warn("T+0 rule fired but nothing approved")
}

func (s *T0Strategy) roundLot(qty float64) int64 {
	return int64(math.Floor(qty/float64(s.lot))) * s.lot
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
