package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/execution"
	"github.com/wonny/aegis-t0/internal/risk"
	"github.com/wonny/aegis-t0/internal/s0_data"
	"github.com/wonny/aegis-t0/internal/s0_data/quality"
	"github.com/wonny/aegis-t0/internal/s2_signals"
	"github.com/wonny/aegis-t0/internal/selection"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
	"github.com/wonny/aegis-t0/pkg/logger"
)

// Engine replays historical sessions through the factor model, the T+0
// strategy and the risk manager
// ⭐ SSOT: backtest execution lives here only
type Engine struct {
	cfg  *strategyconfig.Config
	hash string

	model    *s2_signals.Model
	ranker   *selection.Ranker
	t0       *execution.T0Strategy
	risk     *risk.Manager
	selector selection.Selector
	gate     *quality.QualityGate
	fill     FillFunc
	observer Observer

	logger *logger.Logger
}

// Deps are the substitutable parts of the engine. Nil fields are built from
// the strategy config.
type Deps struct {
	Model    *s2_signals.Model
	T0       *execution.T0Strategy
	Risk     *risk.Manager
	Selector selection.Selector
	Gate     *quality.QualityGate
	Fill     FillFunc
	Observer Observer
}

// Input is the data of one run
type Input struct {
	Series        *s0_data.PriceSeries
	Aux           *s0_data.AuxIndex
	Universe      s0_data.Universe
	BenchmarkID   string
	InitialEquity float64 // 0 = backtest.initial_equity
}

// Result holds everything a run produced
type Result struct {
	RunID       string                          `json:"run_id"`
	ConfigHash  string                          `json:"config_hash"`
	StartDate   time.Time                       `json:"start_date"`
	EndDate     time.Time                       `json:"end_date"`
	Duration    time.Duration                   `json:"duration"`
	Report      contracts.PerformanceReport     `json:"report"`
	Signals     []contracts.Signal              `json:"signals"`
	RoundTrips  []contracts.RoundTrip           `json:"round_trips"`
	EquityCurve []contracts.EquityPoint         `json:"equity_curve"`
	Exclusions  []contracts.Exclusion           `json:"exclusions"`
	Quality     []contracts.DataQualitySnapshot `json:"quality"`
	T0Outcomes  []execution.SessionOutcome      `json:"t0_outcomes"`
	MonteCarlo  *risk.MonteCarloResult          `json:"monte_carlo,omitempty"`
	Commission  float64                         `json:"commission"`
}

// NewEngine validates cfg and wires the engine
func NewEngine(cfg *strategyconfig.Config, deps Deps, log *logger.Logger) (*Engine, error) {
	if err := strategyconfig.Validate(cfg); err != nil {
		return nil, err
	}
	hash, err := strategyconfig.Hash(cfg)
	if err != nil {
		return nil, fmt.Errorf("hash strategy config: %w", err)
	}
	log = log.WithComponent("backtest")

	if deps.Model == nil {
		if deps.Model, err = s2_signals.NewModel(cfg.Factors, log); err != nil {
			return nil, err
		}
	}
	if deps.Risk == nil {
		deps.Risk = risk.NewManager(cfg.Risk, log)
	}
	if deps.T0 == nil {
		deps.T0 = execution.NewT0Strategy(cfg.T0, cfg.Risk.LotSize, log)
	}
	if deps.Selector == nil {
		deps.Selector = selection.NewTopN(cfg.Backtest.TopN, selection.ScreenerConfig{}, log)
	}
	if deps.Gate == nil {
		deps.Gate = quality.NewQualityGate(quality.DefaultConfig())
	}
	if deps.Fill == nil {
		deps.Fill = CloseFill
		if cfg.Backtest.SlippageBps > 0 || cfg.Backtest.CommissionBps > 0 {
			deps.Fill = SlippageFill(cfg.Backtest.SlippageBps, cfg.Backtest.CommissionBps)
		}
	}
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}

	return &Engine{
		cfg:      cfg,
		hash:     hash,
		model:    deps.Model,
		ranker:   selection.NewRanker(log),
		t0:       deps.T0,
		risk:     deps.Risk,
		selector: deps.Selector,
		gate:     deps.Gate,
		fill:     deps.Fill,
		observer: deps.Observer,
		logger:   log,
	}, nil
}

// run is the mutable state of one Run call
type run struct {
	id         string
	in         Input
	sim        *Simulator
	signals    contracts.SignalLog
	peak       float64
	candidates []string
	stopped    map[string]bool // stopped out this session, no re-entry
	result     *Result
}

// Run replays every session of the series in order
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	if in.Series == nil {
		return nil, fmt.Errorf("backtest: %w: no price series", contracts.ErrDataIntegrity)
	}
	equity := in.InitialEquity
	if equity <= 0 {
		equity = e.cfg.Backtest.InitialEquity
	}

	sessions := in.Series.Sessions()
	r := &run{
		id:   uuid.New().String(),
		in:   in,
		sim:  NewSimulator(equity, in.Universe, e.logger),
		peak: equity,
		result: &Result{
			ConfigHash: e.hash,
		},
	}
	r.result.RunID = r.id
	for _, id := range in.Series.Instruments() {
		if id != in.BenchmarkID {
			r.candidates = append(r.candidates, id)
		}
	}
	if len(sessions) > 0 {
		r.result.StartDate = sessions[0]
		r.result.EndDate = sessions[len(sessions)-1]
	}

	e.logger.WithFields(map[string]interface{}{
		"run_id":         r.id,
		"sessions":       len(sessions),
		"instruments":    len(r.candidates),
		"benchmark":      in.BenchmarkID,
		"initial_equity": equity,
		"config_hash":    e.hash,
	}).Info("Starting backtest")

	started := time.Now()
	for _, session := range sessions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.runSession(ctx, r, session); err != nil {
			return nil, fmt.Errorf("session %s: %w", contracts.SessionKey(session), err)
		}
	}

	res := r.result
	res.Duration = time.Since(started)
	res.Signals = r.signals.Signals()
	res.RoundTrips = r.sim.RoundTrips()
	res.Commission = r.sim.Commission()
	res.Report = BuildReport(equity, res.EquityCurve, res.RoundTrips, e.cfg.Backtest)
	res.MonteCarlo = e.monteCarlo(res)

	e.logger.WithFields(map[string]interface{}{
		"run_id":       r.id,
		"duration":     res.Duration.Seconds(),
		"trading_days": res.Report.TradingDays,
		"trades":       res.Report.TradeCount,
		"total_return": fmt.Sprintf("%.2f%%", res.Report.TotalReturn*100),
		"sharpe_ratio": fmt.Sprintf("%.2f", res.Report.SharpeRatio),
		"max_drawdown": fmt.Sprintf("%.2f%%", res.Report.MaxDrawdown*100),
	}).Info("Backtest completed")

	return res, nil
}

func (e *Engine) runSession(ctx context.Context, r *run, session time.Time) error {
	e.risk.BeginSession(session)
	r.stopped = make(map[string]bool)

	// 1. Integrity gate
	ids := append(append([]string{}, r.candidates...), r.in.BenchmarkID)
	gate := e.gate.Check(r.in.Series, session, ids, r.in.BenchmarkID)
	if err := e.handleExclusions(r, session, gate); err != nil {
		return err
	}

	// 2. T+0 over the merged intraday stream
	sizer := observingSizer{
		bound:    e.risk.Bind(func() risk.Portfolio { return r.sim.Portfolio(r.peak) }),
		observer: e.observer,
		runID:    r.id,
	}
	e.t0.BeginSession(session, r.sim.Positions(), sizer)

	for _, bar := range e.intradayStream(r, gate) {
		r.sim.Mark(bar.InstrumentID, bar.Close)
		if bar.InstrumentID == r.in.BenchmarkID {
			e.risk.ObserveBenchmark(bar)
			continue
		}
		sig, err := e.t0.OnBar(bar)
		if err != nil {
			return err
		}
		if sig != nil {
			fill := e.fill(*sig, bar)
			r.sim.ApplyT0(*sig, fill)
			e.record(r, *sig, fill)
		}
	}

	// 3. Roll T+0 states
	outcomes, err := e.t0.EndSession()
	if err != nil {
		return err
	}
	r.sim.SettleT0(outcomes)
	r.result.T0Outcomes = append(r.result.T0Outcomes, outcomes...)

	// 4. Close: stops, scoring, selection, rebalancing
	closes := make(map[string]contracts.Bar, len(gate.Valid))
	for id, bars := range gate.Valid {
		last := bars[len(bars)-1]
		closes[id] = last
		r.sim.Mark(id, last.Close)
	}
	if err := e.applyStops(r, session, closes); err != nil {
		return err
	}
	if err := e.rebalance(ctx, r, session, gate, closes); err != nil {
		return err
	}
	r.result.Quality = append(r.result.Quality, *gate.Snapshot)

	// 5. Mark-to-market
	pt := r.sim.MarkToMarket(session)
	if pt.Equity > r.peak {
		r.peak = pt.Equity
	}
	r.result.EquityCurve = append(r.result.EquityCurve, pt)
	e.observer.OnSessionEnd(r.id, pt)

	e.logger.WithFields(map[string]interface{}{
		"date":        contracts.SessionKey(session),
		"equity":      pt.Equity,
		"cash":        pt.Cash,
		"held":        len(r.sim.HeldIDs()),
		"reduce_only": e.risk.ReduceOnly(),
	}).Debug("Session closed")

	return nil
}

func (e *Engine) handleExclusions(r *run, session time.Time, gate *quality.Result) error {
	errIDs := make([]string, 0, len(gate.Errors))
	for id := range gate.Errors {
		errIDs = append(errIDs, id)
	}
	sort.Strings(errIDs)

	if e.cfg.Backtest.Strict && len(errIDs) > 0 {
		return gate.Errors[errIDs[0]]
	}

	for _, ex := range gate.Snapshot.Exclusions {
		r.result.Exclusions = append(r.result.Exclusions, ex)
		e.observer.OnExclusion(r.id, ex)
		e.logger.WithFields(map[string]interface{}{
			"code":   ex.InstrumentID,
			"date":   contracts.SessionKey(session),
			"reason": ex.Reason,
		}).Warn("Instrument excluded for the session")
	}
	if err, ok := gate.Errors[r.in.BenchmarkID]; ok {
		e.logger.WithError(err).Warn("Benchmark bars rejected: black-swan gate blind this session")
	}
	if !gate.Passed {
		e.logger.WithFields(map[string]interface{}{
			"date":     contracts.SessionKey(session),
			"coverage": gate.Snapshot.Coverage(),
		}).Warn("Data coverage below threshold")
	}
	return nil
}

// intradayStream merges the benchmark and held-instrument bars by (timestamp, id)
func (e *Engine) intradayStream(r *run, gate *quality.Result) []contracts.Bar {
	var stream []contracts.Bar
	stream = append(stream, gate.Valid[r.in.BenchmarkID]...)
	for _, id := range r.sim.HeldIDs() {
		if e.t0.Tracking(id) {
			stream = append(stream, gate.Valid[id]...)
		}
	}
	sort.SliceStable(stream, func(i, j int) bool {
		if !stream[i].Timestamp.Equal(stream[j].Timestamp) {
			return stream[i].Timestamp.Before(stream[j].Timestamp)
		}
		return stream[i].InstrumentID < stream[j].InstrumentID
	})
	return stream
}

// applyStops exits holdings whose close breached yesterday's stop and
// ratchets the rest
func (e *Engine) applyStops(r *run, session time.Time, closes map[string]contracts.Bar) error {
	for _, id := range r.sim.HeldIDs() {
		last, ok := closes[id]
		if !ok {
			continue
		}
		stop := r.sim.Stop(id)
		if stop.Hit(last.Close) {
			if err := e.exit(r, id, last, contracts.ReasonATRStop); err != nil {
				return err
			}
			r.stopped[id] = true
			continue
		}
		atr := s2_signals.ATR(r.in.Series.DailyHistory(id, session), e.cfg.Risk.ATR.N)
		r.sim.SetStop(id, e.risk.UpdateStop(stop, last.Close, atr))
	}
	return nil
}

// rebalance scores the universe as of the session, exits deselected holdings
// and enters new targets through the risk manager
func (e *Engine) rebalance(ctx context.Context, r *run, session time.Time, gate *quality.Result, closes map[string]contracts.Bar) error {
	inputs := make([]s2_signals.Input, 0, len(r.candidates))
	for _, id := range r.candidates {
		if gate.Snapshot.IsExcluded(id) {
			continue
		}
		history := r.in.Series.DailyHistory(id, session)
		if len(history) == 0 {
			continue
		}
		in := s2_signals.Input{Instrument: r.in.Universe.Lookup(id), History: history}
		if aux, ok := r.in.Aux.Get(id, session); ok {
			in.Aux = &aux
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return nil
	}

	scored, err := e.model.Compute(ctx, session, r.in.Series.DailyHistory(r.in.BenchmarkID, session), inputs)
	if err != nil {
		return err
	}
	gate.Snapshot.Regime = string(scored.Regime)

	ranking := e.ranker.Rank(ctx, scored)
	targets, err := e.selector.Select(ctx, ranking, r.sim.HeldIDs())
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}
	want := make(map[string]bool, len(targets))
	for _, id := range targets {
		want[id] = true
	}

	for _, id := range r.sim.HeldIDs() {
		last, ok := closes[id]
		if want[id] || !ok {
			continue
		}
		if err := e.exit(r, id, last, contracts.ReasonExitDeselected); err != nil {
			return err
		}
	}

	for _, id := range targets {
		last, ok := closes[id]
		if _, held := r.sim.Position(id); held || !ok || r.stopped[id] {
			continue
		}
		if err := e.enter(r, session, id, last); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) enter(r *run, session time.Time, id string, last contracts.Bar) error {
	atr := s2_signals.ATR(r.in.Series.DailyHistory(id, session), e.cfg.Risk.ATR.N)
	p := risk.Proposal{
		InstrumentID: id,
		Sector:       r.in.Universe.Lookup(id).Sector,
		Kind:         risk.KindEntry,
		Price:        last.Close,
	}
	d, err := e.risk.Size(p, r.sim.Portfolio(r.peak), atr)
	if err != nil {
		return err
	}
	if !d.IsApproved() {
		e.observer.OnRejection(r.id, p, d)
		return nil
	}

	sig := contracts.Signal{
		InstrumentID: id,
		Timestamp:    last.Timestamp,
		Action:       contracts.ActionBuy,
		Quantity:     d.ApprovedQty,
		Reason:       contracts.ReasonEntry,
		Price:        last.Close,
	}
	fill := e.fill(sig, last)
	r.sim.Buy(id, d.ApprovedQty, fill, session, e.risk.InitStop(fill.Price, atr))
	e.record(r, sig, fill)
	return nil
}

func (e *Engine) exit(r *run, id string, last contracts.Bar, reason contracts.ReasonCode) error {
	pos, ok := r.sim.Position(id)
	if !ok {
		return nil
	}
	p := risk.Proposal{
		InstrumentID: id,
		Sector:       pos.Sector,
		Kind:         risk.KindExit,
		Price:        last.Close,
		RequestedQty: pos.OvernightQty,
	}
	d, err := e.risk.Size(p, r.sim.Portfolio(r.peak), 0)
	if err != nil {
		return err
	}
	if !d.IsApproved() {
		e.observer.OnRejection(r.id, p, d)
		return nil
	}

	sig := contracts.Signal{
		InstrumentID: id,
		Timestamp:    last.Timestamp,
		Action:       contracts.ActionSell,
		Quantity:     d.ApprovedQty,
		Reason:       reason,
		Price:        last.Close,
	}
	fill := e.fill(sig, last)
	if err := r.sim.Sell(id, d.ApprovedQty, fill, last.Timestamp); err != nil {
		return err
	}
	e.record(r, sig, fill)
	return nil
}

// record appends the filled signal to the log
func (e *Engine) record(r *run, sig contracts.Signal, fill Fill) {
	sig.Price = fill.Price
	logged := r.signals.Append(sig)
	e.observer.OnSignal(r.id, logged)
}

func (e *Engine) monteCarlo(res *Result) *risk.MonteCarloResult {
	mc := e.cfg.Backtest.MonteCarlo
	if mc.Paths <= 0 {
		return nil
	}
	returns := make([]float64, len(res.EquityCurve))
	for i, p := range res.EquityCurve {
		returns[i] = p.Return
	}
	out, err := risk.RunMonteCarlo(returns, risk.MonteCarloConfig{
		NumSimulations: mc.Paths,
		Seed:           mc.Seed,
		MinSamples:     2,
	})
	if err != nil {
		if !errors.Is(err, risk.ErrInsufficientData) {
			e.logger.WithError(err).Warn("Monte Carlo skipped")
		}
		return nil
	}
	return out
}
