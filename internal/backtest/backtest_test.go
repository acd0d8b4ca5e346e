package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/execution"
	"github.com/wonny/aegis-t0/internal/risk"
	"github.com/wonny/aegis-t0/internal/s0_data"
	"github.com/wonny/aegis-t0/internal/strategyconfig"
	"github.com/wonny/aegis-t0/pkg/logger"
)

const (
	stockID     = "600001"
	benchmarkID = "000300"
)

func day(n int) time.Time {
	return time.Date(2024, 3, 10+n, 0, 0, 0, 0, time.UTC)
}

func ohlc(id string, session time.Time, hhmm string, o, h, l, c, pre float64) contracts.Bar {
	t, _ := time.Parse("15:04", hhmm)
	return contracts.Bar{
		InstrumentID: id,
		SessionDate:  session,
		Timestamp:    session.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute),
		Open:         o, High: h, Low: l, Close: c,
		PreClose: pre,
		Volume:   10_000,
	}
}

func flat(id string, session time.Time, price float64) []contracts.Bar {
	return []contracts.Bar{
		ohlc(id, session, "09:30", price, price, price, price, price),
		ohlc(id, session, "14:00", price, price, price, price, price),
	}
}

// rotationBars: five flat sessions with a spike-and-fade then pullback on day 3
func rotationBars() []contracts.Bar {
	var bars []contracts.Bar
	for n := 1; n <= 5; n++ {
		bars = append(bars, flat(benchmarkID, day(n), 3500)...)
		if n != 3 {
			bars = append(bars, flat(stockID, day(n), 10)...)
			continue
		}
		d := day(3)
		bars = append(bars,
			ohlc(stockID, d, "09:30", 10, 10, 10, 10, 10),
			ohlc(stockID, d, "10:00", 10, 10.5, 10, 10.4, 10),
			ohlc(stockID, d, "10:30", 10.4, 10.4, 10.2, 10.2, 10), // spike-and-fade
			ohlc(stockID, d, "11:00", 10.2, 10.2, 9.8, 9.8, 10),   // pullback below sale
			ohlc(stockID, d, "14:00", 9.8, 10, 9.8, 10, 10),
		)
	}
	return bars
}

func testConfig() *strategyconfig.Config {
	cfg := strategyconfig.Default()
	cfg.Backtest.TopN = 1
	return cfg
}

func testInput(bars []contracts.Bar) Input {
	return Input{
		Series: s0_data.NewPriceSeries(bars),
		Universe: s0_data.NewUniverse([]contracts.Instrument{
			{ID: stockID, Sector: "bank"},
			{ID: "600002", Sector: "energy"},
		}),
		BenchmarkID:   benchmarkID,
		InitialEquity: 1_000_000,
	}
}

// recorder keeps every observed event
type recorder struct {
	signals    []contracts.Signal
	rejections []risk.Decision
	exclusions []contracts.Exclusion
	points     []contracts.EquityPoint
}

func (r *recorder) OnSignal(_ string, sig contracts.Signal) { r.signals = append(r.signals, sig) }
func (r *recorder) OnRejection(_ string, _ risk.Proposal, d risk.Decision) {
	r.rejections = append(r.rejections, d)
}
func (r *recorder) OnExclusion(_ string, ex contracts.Exclusion) {
	r.exclusions = append(r.exclusions, ex)
}
func (r *recorder) OnSessionEnd(_ string, pt contracts.EquityPoint) { r.points = append(r.points, pt) }

func newEngine(t *testing.T, cfg *strategyconfig.Config, obs Observer) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, Deps{Observer: obs}, logger.NewNop())
	require.NoError(t, err)
	return e
}

// =============================================================================
// Engine
// =============================================================================

func TestEngine_RotationRoundTrip(t *testing.T) {
	rec := &recorder{}
	e := newEngine(t, testConfig(), rec)

	res, err := e.Run(context.Background(), testInput(rotationBars()))
	require.NoError(t, err)

	require.Len(t, res.Signals, 3)
	entry, sell, rebuy := res.Signals[0], res.Signals[1], res.Signals[2]

	assert.Equal(t, contracts.ActionBuy, entry.Action)
	assert.Equal(t, contracts.ReasonEntry, entry.Reason)
	assert.Equal(t, int64(10_000), entry.Quantity) // 0.5 × 0.25 Kelly capped at 10%
	assert.True(t, contracts.SameSession(entry.Timestamp, day(1)))

	assert.Equal(t, contracts.ActionSell, sell.Action)
	assert.Equal(t, contracts.ReasonSpikeAndFade, sell.Reason)
	assert.InDelta(t, 10.2, sell.Price, 1e-9)

	assert.Equal(t, contracts.ActionBuy, rebuy.Action)
	assert.Equal(t, contracts.ReasonPullbackBelowSale, rebuy.Reason)
	assert.InDelta(t, 9.8, rebuy.Price, 1e-9)

	for i, s := range res.Signals {
		assert.Equal(t, i+1, s.Seq)
	}
	assert.Equal(t, res.Signals, rec.signals)

	require.Len(t, res.RoundTrips, 1)
	assert.Equal(t, contracts.RoundTripT0Rotation, res.RoundTrips[0].Kind)
	assert.InDelta(t, 4000, res.RoundTrips[0].PnL, 1e-6)

	require.Len(t, res.EquityCurve, 5)
	assert.Equal(t, res.EquityCurve, rec.points)
	assert.InDelta(t, 1_004_000, res.Report.FinalEquity, 1e-6)
	assert.InDelta(t, 0.004, res.Report.TotalReturn, 1e-9)
	assert.Equal(t, 1, res.Report.TradeCount)
	assert.Equal(t, 1.0, res.Report.WinRate)
	assert.Equal(t, 5, res.Report.TradingDays)
	assert.Len(t, res.Quality, 5)
	assert.Empty(t, res.Exclusions)

	// one outcome per held session (days 2-5), day 3 rebought
	require.Len(t, res.T0Outcomes, 4)
	assert.Equal(t, contracts.StateRebought, res.T0Outcomes[1].State)
	assert.Equal(t, int64(10_000), res.T0Outcomes[1].RebuyQty)
}

func TestEngine_Deterministic(t *testing.T) {
	run := func() *Result {
		res, err := newEngine(t, testConfig(), nil).Run(context.Background(), testInput(rotationBars()))
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()

	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.ConfigHash, b.ConfigHash)
	assert.Equal(t, a.Signals, b.Signals)
	assert.Equal(t, a.EquityCurve, b.EquityCurve)
	assert.Equal(t, a.Report, b.Report)
}

func TestEngine_BlackSwanBlocksEntries(t *testing.T) {
	bars := []contracts.Bar{
		ohlc(benchmarkID, day(1), "09:30", 3500, 3500, 3500, 3500, 3500),
		ohlc(benchmarkID, day(1), "10:00", 3500, 3500, 3300, 3300, 3500), // -5.7%
	}
	bars = append(bars, flat(stockID, day(1), 10)...)
	bars = append(bars, flat(benchmarkID, day(2), 3300)...)
	bars = append(bars, flat(stockID, day(2), 10)...)

	rec := &recorder{}
	res, err := newEngine(t, testConfig(), rec).Run(context.Background(), testInput(bars))
	require.NoError(t, err)

	require.NotEmpty(t, rec.rejections)
	assert.Equal(t, risk.ReasonReduceOnly, rec.rejections[0].Reason)

	// the latch clears with the next session
	require.Len(t, res.Signals, 1)
	assert.True(t, contracts.SameSession(res.Signals[0].Timestamp, day(2)))
	assert.Equal(t, contracts.ReasonEntry, res.Signals[0].Reason)
}

func TestEngine_Exclusions(t *testing.T) {
	bars := rotationBars()
	for n := 1; n <= 3; n++ {
		bars = append(bars, flat("600002", day(n), 20)...)
	}
	// high below close
	bars[len(bars)-3].High = 19

	t.Run("lenient run excludes the session", func(t *testing.T) {
		rec := &recorder{}
		res, err := newEngine(t, testConfig(), rec).Run(context.Background(), testInput(bars))
		require.NoError(t, err)

		require.Len(t, res.Exclusions, 1)
		assert.Equal(t, "600002", res.Exclusions[0].InstrumentID)
		assert.True(t, contracts.SameSession(res.Exclusions[0].SessionDate, day(2)))
		assert.Equal(t, res.Exclusions, rec.exclusions)
		assert.True(t, res.Quality[1].IsExcluded("600002"))
	})

	t.Run("strict run aborts", func(t *testing.T) {
		cfg := testConfig()
		cfg.Backtest.Strict = true
		_, err := newEngine(t, cfg, nil).Run(context.Background(), testInput(bars))
		require.Error(t, err)
		assert.ErrorIs(t, err, contracts.ErrDataIntegrity)
	})
}

func TestEngine_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(t, testConfig(), nil).Run(ctx, testInput(rotationBars()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Factors.Weights.Momentum += 0.1

	_, err := NewEngine(cfg, Deps{}, logger.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrConfiguration)
}

// =============================================================================
// Simulator
// =============================================================================

func TestSimulator_ExitRoundTrip(t *testing.T) {
	sim := NewSimulator(100_000, nil, logger.NewNop())

	sim.Buy(stockID, 1000, Fill{Price: 10, Commission: 5}, day(1), risk.Stop{})
	assert.InDelta(t, 89_995, sim.Cash(), 1e-9)

	require.NoError(t, sim.Sell(stockID, 1000, Fill{Price: 11, Commission: 5}, day(2)))
	assert.InDelta(t, 100_990, sim.Cash(), 1e-9)
	assert.Empty(t, sim.HeldIDs())
	assert.InDelta(t, 10, sim.Commission(), 1e-9)

	trips := sim.RoundTrips()
	require.Len(t, trips, 1)
	assert.Equal(t, contracts.RoundTripExit, trips[0].Kind)
	assert.InDelta(t, 995, trips[0].PnL, 1e-9)

	assert.Error(t, sim.Sell(stockID, 1, Fill{Price: 11}, day(2)))
}

func TestSimulator_T0FlatSettlement(t *testing.T) {
	sim := NewSimulator(100_000, nil, logger.NewNop())
	sim.Buy(stockID, 1000, Fill{Price: 10}, day(1), risk.Stop{})

	pos, ok := sim.Position(stockID)
	require.True(t, ok)
	soldAt := day(2).Add(10 * time.Hour)
	sim.ApplyT0(contracts.Signal{InstrumentID: stockID, Action: contracts.ActionSell, Quantity: 1000, Timestamp: soldAt}, Fill{Price: 10.5})

	// strategy moved the quantities and closed the day without a rebuy
	pos.OvernightQty = 0
	sim.SettleT0([]execution.SessionOutcome{{
		InstrumentID: stockID,
		State:        contracts.StateClosedNoRebuy,
		CostBasis:    10,
		SoldQty:      1000,
		SoldPrice:    10.5,
		SoldAt:       soldAt,
	}})

	assert.Empty(t, sim.HeldIDs())
	assert.InDelta(t, 100_500, sim.Cash(), 1e-9)

	trips := sim.RoundTrips()
	require.Len(t, trips, 1)
	assert.Equal(t, contracts.RoundTripT0Flat, trips[0].Kind)
	assert.InDelta(t, 500, trips[0].PnL, 1e-9)
}

func TestSimulator_MarkToMarket(t *testing.T) {
	sim := NewSimulator(10_000, nil, logger.NewNop())
	sim.Buy(stockID, 100, Fill{Price: 10}, day(1), risk.Stop{})
	sim.Mark(stockID, 12)

	pt := sim.MarkToMarket(day(1))
	assert.InDelta(t, 10_200, pt.Equity, 1e-9)
	assert.InDelta(t, 9_000, pt.Cash, 1e-9)
	assert.InDelta(t, 0.02, pt.Return, 1e-9)

	pf := sim.Portfolio(10_200)
	assert.InDelta(t, 1_200, pf.ByInstrument[stockID], 1e-9)
	assert.InDelta(t, 0, pf.Drawdown(), 1e-9)
}

// =============================================================================
// Fills and metrics
// =============================================================================

func TestSlippageFill(t *testing.T) {
	bar := contracts.Bar{Close: 10}
	fill := SlippageFill(10, 5)

	buy := fill(contracts.Signal{Action: contracts.ActionBuy, Quantity: 100}, bar)
	assert.InDelta(t, 10.01, buy.Price, 1e-9)
	assert.InDelta(t, 0.5005, buy.Commission, 1e-9)

	sell := fill(contracts.Signal{Action: contracts.ActionSell, Quantity: 100}, bar)
	assert.InDelta(t, 9.99, sell.Price, 1e-9)

	assert.Equal(t, Fill{Price: 10}, CloseFill(contracts.Signal{}, bar))
}

func TestMetrics(t *testing.T) {
	equity := []float64{100, 110, 99, 108.9}

	returns := Returns(equity)
	require.Len(t, returns, 3)
	assert.InDelta(t, 0.1, returns[0], 1e-9)
	assert.InDelta(t, -0.1, returns[1], 1e-9)
	assert.InDelta(t, 0.1, returns[2], 1e-9)

	assert.InDelta(t, 4.5826, SharpeRatio(returns, 0, 252), 1e-3)
	assert.InDelta(t, 0.1, MaxDrawdown(equity), 1e-9)

	tests := []struct {
		name  string
		total float64
		days  int
		want  float64
	}{
		{"full year", 0.1, 252, 0.1},
		{"half year compounds", 0.1, 126, 0.21},
		{"no days", 0.1, 0, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AnnualizedReturn(tt.total, tt.days, 252), 1e-9)
		})
	}

	assert.Zero(t, SharpeRatio([]float64{0.01}, 0, 252))
	assert.Zero(t, SharpeRatio([]float64{0.01, 0.01, 0.01}, 0, 252))
	assert.Zero(t, MaxDrawdown(nil))
}

func TestBuildReport(t *testing.T) {
	curve := []contracts.EquityPoint{{Equity: 110}, {Equity: 99}, {Equity: 108.9}}
	trips := []contracts.RoundTrip{{PnL: 30}, {PnL: -10}, {PnL: 10}, {PnL: 0}}

	r := BuildReport(100, curve, trips, strategyconfig.Default().Backtest)

	assert.InDelta(t, 0.089, r.TotalReturn, 1e-9)
	assert.InDelta(t, 0.1, r.MaxDrawdown, 1e-9)
	assert.Equal(t, 4, r.TradeCount)
	assert.Equal(t, 3, r.TradingDays)
	assert.InDelta(t, 0.5, r.WinRate, 1e-9)
	assert.InDelta(t, 20, r.AvgWin, 1e-9)
	assert.InDelta(t, 10, r.AvgLoss, 1e-9)
	assert.InDelta(t, 4, r.ProfitFactor, 1e-9)

	t.Run("profit factor undefined without losses", func(t *testing.T) {
		r := BuildReport(100, curve, []contracts.RoundTrip{{PnL: 5}}, strategyconfig.Default().Backtest)
		assert.Zero(t, r.ProfitFactor)
	})
}
