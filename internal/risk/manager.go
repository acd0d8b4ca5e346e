package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
	"github.com/wonny/aegis-t0/pkg/logger"
)

// =============================================================================
// Manager
// ⭐ SSOT: every quantity that reaches the portfolio is approved here
// =============================================================================

// Manager sizes and gates position changes for both strategies.
// Session state (reduce-only) is touched only from the engine's session loop.
type Manager struct {
	cfg    strategyconfig.Risk
	logger *logger.Logger

	session    time.Time
	reduceOnly bool
}

// NewManager creates a risk manager
func NewManager(cfg strategyconfig.Risk, log *logger.Logger) *Manager {
	if cfg.LotSize < 1 {
		cfg.LotSize = 1
	}
	return &Manager{
		cfg:    cfg,
		logger: log.WithComponent("risk"),
	}
}

// BeginSession clears the per-session black-swan latch
func (m *Manager) BeginSession(date time.Time) {
	m.session = date
	m.reduceOnly = false
}

// ObserveBenchmark feeds a benchmark bar to the black-swan gate. A move of
// |close/pre_close - 1| beyond the threshold switches the rest of the session
// to reduce-only. Returns the gate state.
func (m *Manager) ObserveBenchmark(bar contracts.Bar) bool {
	if m.reduceOnly || bar.PreClose <= 0 {
		return m.reduceOnly
	}
	move := math.Abs(bar.Close/bar.PreClose - 1)
	if move > m.cfg.BlackSwanMove {
		m.reduceOnly = true
		m.logger.WithFields(map[string]interface{}{
			"date":      contracts.SessionKey(m.session),
			"benchmark": bar.InstrumentID,
			"move":      move,
			"threshold": m.cfg.BlackSwanMove,
			"at":        bar.Timestamp.Format("15:04"),
		}).Warn("Black-swan gate tripped: reduce-only for the rest of the session")
	}
	return m.reduceOnly
}

// ReduceOnly reports whether new exposure is blocked this session
func (m *Manager) ReduceOnly() bool {
	return m.reduceOnly
}

// Size approves a quantity for the proposal. Rejections come back as a
// Decision with ApprovedQty 0; the error is reserved for invalid input.
func (m *Manager) Size(p Proposal, pf Portfolio, atr float64) (Decision, error) {
	if !(p.Price > 0) || math.IsInf(p.Price, 0) {
		return Decision{}, fmt.Errorf("risk: invalid price %v for %s", p.Price, p.InstrumentID)
	}

	var d Decision
	switch p.Kind {
	case KindExit:
		d = m.sizeExit(p)
	case KindRebuy:
		d = m.sizeRebuy(p, pf)
	case KindEntry:
		d = m.sizeEntry(p, pf, atr)
	default:
		return Decision{}, fmt.Errorf("risk: unknown proposal kind %q", p.Kind)
	}

	if d.Verdict == Rejected {
		m.logger.WithFields(map[string]interface{}{
			"code":   p.InstrumentID,
			"kind":   p.Kind,
			"price":  p.Price,
			"reason": d.Reason,
		}).Info("Risk rejected proposal")
	}
	return d, nil
}

func (m *Manager) sizeExit(p Proposal) Decision {
	if p.RequestedQty <= 0 {
		return reject(ReasonBelowLot)
	}
	if m.belowMinAmount(p.RequestedQty, p.Price) {
		return reject(ReasonBelowMinAmount)
	}
	return Decision{Verdict: Approved, ApprovedQty: p.RequestedQty}
}

func (m *Manager) sizeRebuy(p Proposal, pf Portfolio) Decision {
	if m.reduceOnly {
		return reject(ReasonReduceOnly)
	}
	qty := m.capByCash(p.RequestedQty, p.Price, pf.Cash)
	if qty <= 0 {
		return reject(ReasonBelowLot)
	}
	if m.belowMinAmount(qty, p.Price) {
		return reject(ReasonBelowMinAmount)
	}
	return Decision{Verdict: Approved, ApprovedQty: qty}
}

func (m *Manager) sizeEntry(p Proposal, pf Portfolio, atr float64) Decision {
	if m.reduceOnly {
		return reject(ReasonReduceOnly)
	}
	if m.cfg.MaxDrawdown > 0 && pf.Drawdown() > m.cfg.MaxDrawdown {
		return reject(ReasonDrawdownHalt)
	}

	fraction := m.KellyFraction(p.WinProb, p.PayoffRatio)
	if fraction <= 0 {
		return reject(ReasonZeroEdge)
	}

	qty := m.roundLot(fraction * pf.Equity / p.Price)
	if p.RequestedQty > 0 && p.RequestedQty < qty {
		qty = m.roundLot(float64(p.RequestedQty))
	}
	qty = m.capByCash(qty, p.Price, pf.Cash)
	if qty <= 0 {
		return reject(ReasonBelowLot)
	}
	if m.belowMinAmount(qty, p.Price) {
		return reject(ReasonBelowMinAmount)
	}

	// Diversification gate: exposure after the fill
	value := float64(qty) * p.Price
	if pf.Equity > 0 {
		if (pf.ByInstrument[p.InstrumentID]+value)/pf.Equity > m.cfg.MaxSingleNamePct {
			return reject(ReasonConcentrationName)
		}
		if p.Sector != "" && (pf.BySector[p.Sector]+value)/pf.Equity > m.cfg.MaxSectorPct {
			return reject(ReasonConcentrationSector)
		}
	}

	stop := m.InitStop(p.Price, atr)
	return Decision{
		Verdict:     Approved,
		ApprovedQty: qty,
		Fraction:    fraction,
		StopPrice:   stop.Price,
		TakePrice:   stop.Take,
	}
}

// KellyFraction is clamp(kelly_fraction × edge, 0, max_position_fraction)
// with edge = W - (1-W)/R. Zero inputs take the configured defaults.
func (m *Manager) KellyFraction(winProb, payoff float64) float64 {
	if winProb <= 0 {
		winProb = m.cfg.DefaultWinRate
	}
	if payoff <= 0 {
		payoff = m.cfg.DefaultPayoffRatio
	}
	edge := winProb - (1-winProb)/payoff
	return math.Max(0, math.Min(m.cfg.KellyFraction*edge, m.cfg.MaxPositionFraction))
}

func (m *Manager) roundLot(qty float64) int64 {
	if qty <= 0 || math.IsNaN(qty) {
		return 0
	}
	lots := int64(math.Floor(qty / float64(m.cfg.LotSize)))
	return lots * m.cfg.LotSize
}

// capByCash shrinks qty to whole lots the cash can pay for
func (m *Manager) capByCash(qty int64, price, cash float64) int64 {
	if float64(qty)*price <= cash {
		return qty
	}
	return m.roundLot(cash / price)
}

func (m *Manager) belowMinAmount(qty int64, price float64) bool {
	return m.cfg.MinTradeAmount > 0 && float64(qty)*price < m.cfg.MinTradeAmount
}

// =============================================================================
// Bound sizer
// =============================================================================

// Bound is a Manager bound to a live portfolio snapshot, the shape the T+0
// strategy consumes.
type Bound struct {
	m        *Manager
	snapshot func() Portfolio
}

// Bind returns a sizer that reads the portfolio through snapshot on every call
func (m *Manager) Bind(snapshot func() Portfolio) *Bound {
	return &Bound{m: m, snapshot: snapshot}
}

// Size sizes p against the current snapshot (no ATR: intraday legs carry no stop)
func (b *Bound) Size(p Proposal) (Decision, error) {
	return b.m.Size(p, b.snapshot(), 0)
}
