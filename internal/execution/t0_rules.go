package execution

import (
	"math"
	"time"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
)

// =============================================================================
// Quote
// =============================================================================

// Quote is the running intraday view of one instrument
type Quote struct {
	Open     float64   // first bar's open
	High     float64   // running session high
	Low      float64   // running session low
	PreClose float64   // previous session close
	Current  float64   // latest bar close
	Time     time.Time // latest bar timestamp
}

// Update folds bar into the quote
func (q *Quote) Update(bar contracts.Bar) {
	if q.Time.IsZero() {
		q.Open = bar.Open
		q.High = bar.High
		q.Low = bar.Low
		q.PreClose = bar.PreClose
	} else {
		q.High = math.Max(q.High, bar.High)
		q.Low = math.Min(q.Low, bar.Low)
	}
	q.Current = bar.Close
	q.Time = bar.Timestamp
}

// =============================================================================
// Rules
// ⭐ SSOT: T+0 sell/buy-back conditions, evaluated in a fixed order
// =============================================================================

// Rules evaluates the T+0 conditions against a quote
type Rules struct {
	cfg strategyconfig.T0
}

// NewRules creates the rule set
func NewRules(cfg strategyconfig.T0) Rules {
	return Rules{cfg: cfg}
}

// SellReason returns the first sell rule that fires:
//  1. spike-and-fade: high/open > spike && current < high × fade
//  2. gap-up-fade:    open/pre_close > gap_up && current < open
//  3. take-profit:    current/pre_close > take_profit
func (r Rules) SellReason(q Quote) (contracts.ReasonCode, bool) {
	if q.Open <= 0 || q.PreClose <= 0 {
		return "", false
	}
	switch {
	case q.High/q.Open > r.cfg.SpikeRatio && q.Current < q.High*r.cfg.FadeRatio:
		return contracts.ReasonSpikeAndFade, true
	case q.Open/q.PreClose > r.cfg.GapUpRatio && q.Current < q.Open:
		return contracts.ReasonGapUpFade, true
	case q.Current/q.PreClose > r.cfg.TakeProfitRatio:
		return contracts.ReasonTakeProfit, true
	}
	return "", false
}

// BuybackReason returns the first buy-back rule that fires:
//  1. pullback-below-sale:  current < sold × pullback (strict)
//  2. undercut-and-recover: low/pre_close < undercut && current > low × recover
//  3. force-rebuy:          at or after force_rebuy_at, when configured
func (r Rules) BuybackReason(q Quote, soldPrice float64) (contracts.ReasonCode, bool) {
	switch {
	case q.Current < soldPrice*r.cfg.PullbackRatio:
		return contracts.ReasonPullbackBelowSale, true
	case q.PreClose > 0 && q.Low/q.PreClose < r.cfg.UndercutRatio && q.Current > q.Low*r.cfg.RecoverRatio:
		return contracts.ReasonUndercutAndRecover, true
	}
	if minute, ok := r.cfg.ForceRebuyMinute(); ok && q.Time.Hour()*60+q.Time.Minute() >= minute {
		return contracts.ReasonForceRebuy, true
	}
	return "", false
}
