package backtest

import (
	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/risk"
	"github.com/wonny/aegis-t0/pkg/metrics"
)

// Observer receives run events as they happen. Calls come from the session
// loop, in order; implementations must not block it for long.
type Observer interface {
	OnSignal(runID string, sig contracts.Signal)
	OnRejection(runID string, p risk.Proposal, d risk.Decision)
	OnExclusion(runID string, ex contracts.Exclusion)
	OnSessionEnd(runID string, pt contracts.EquityPoint)
}

// NopObserver ignores every event
type NopObserver struct{}

func (NopObserver) OnSignal(string, contracts.Signal)                {}
func (NopObserver) OnRejection(string, risk.Proposal, risk.Decision) {}
func (NopObserver) OnExclusion(string, contracts.Exclusion)          {}
func (NopObserver) OnSessionEnd(string, contracts.EquityPoint)       {}

// MultiObserver fans events out in order
type MultiObserver []Observer

func (m MultiObserver) OnSignal(runID string, sig contracts.Signal) {
	for _, o := range m {
		o.OnSignal(runID, sig)
	}
}

func (m MultiObserver) OnRejection(runID string, p risk.Proposal, d risk.Decision) {
	for _, o := range m {
		o.OnRejection(runID, p, d)
	}
}

func (m MultiObserver) OnExclusion(runID string, ex contracts.Exclusion) {
	for _, o := range m {
		o.OnExclusion(runID, ex)
	}
}

func (m MultiObserver) OnSessionEnd(runID string, pt contracts.EquityPoint) {
	for _, o := range m {
		o.OnSessionEnd(runID, pt)
	}
}

// observingSizer reports T+0 rejections to the observer
type observingSizer struct {
	bound    *risk.Bound
	observer Observer
	runID    string
}

func (s observingSizer) Size(p risk.Proposal) (risk.Decision, error) {
	d, err := s.bound.Size(p)
	if err == nil && !d.IsApproved() {
		s.observer.OnRejection(s.runID, p, d)
	}
	return d, err
}

// MetricsObserver exports run events to Prometheus
type MetricsObserver struct {
	Metrics *metrics.Registry
}

func (m MetricsObserver) OnSignal(_ string, sig contracts.Signal) {
	m.Metrics.SignalsTotal.WithLabelValues(string(sig.Action), string(sig.Reason)).Inc()
}

func (m MetricsObserver) OnRejection(_ string, p risk.Proposal, d risk.Decision) {
	m.Metrics.RejectionsTotal.WithLabelValues(string(p.Kind), d.Reason).Inc()
}

func (m MetricsObserver) OnExclusion(string, contracts.Exclusion) {
	m.Metrics.ExclusionsTotal.Inc()
}

func (m MetricsObserver) OnSessionEnd(_ string, pt contracts.EquityPoint) {
	m.Metrics.SessionsTotal.Inc()
	m.Metrics.Equity.Set(pt.Equity)
}
