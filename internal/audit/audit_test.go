package audit

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-t0/internal/backtest"
	"github.com/wonny/aegis-t0/internal/contracts"
)

var trips = []contracts.RoundTrip{
	{InstrumentID: "600001", Kind: contracts.RoundTripT0Rotation, PnL: 400},
	{InstrumentID: "600001", Kind: contracts.RoundTripExit, PnL: -100},
	{InstrumentID: "600002", Kind: contracts.RoundTripT0Flat, PnL: 300},
	{InstrumentID: "600003", Kind: contracts.RoundTripExit, PnL: -200},
}

func TestAttributeByInstrument(t *testing.T) {
	attrs := AttributeByInstrument(trips)
	require.Len(t, attrs, 3)

	assert.Equal(t, "600001", attrs[0].Key)
	assert.InDelta(t, 300, attrs[0].Contribution, 1e-9)
	assert.Equal(t, 2, attrs[0].Trades)
	assert.InDelta(t, 0.5, attrs[0].WinRate, 1e-9)
	assert.InDelta(t, 0.3, attrs[0].Share, 1e-9) // 300 / 1000

	top := TopContributors(attrs, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "600001", top[0].Key)
	assert.Equal(t, "600002", top[1].Key)

	bottom := BottomContributors(attrs, 1)
	require.Len(t, bottom, 1)
	assert.Equal(t, "600003", bottom[0].Key)

	assert.Len(t, TopContributors(attrs, 10), 3)
	assert.Empty(t, AttributeByInstrument(nil))
}

func TestAttributeByKind(t *testing.T) {
	attrs := AttributeByKind(trips)
	require.Len(t, attrs, 3)

	byKey := make(map[string]Attribution)
	for _, a := range attrs {
		byKey[a.Key] = a
	}
	assert.InDelta(t, -300, byKey[string(contracts.RoundTripExit)].Contribution, 1e-9)
	assert.Equal(t, 2, byKey[string(contracts.RoundTripExit)].Trades)
	assert.InDelta(t, 400, byKey[string(contracts.RoundTripT0Rotation)].Contribution, 1e-9)
}

func sampleResult() *backtest.Result {
	from := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	return &backtest.Result{
		RunID:      "run-1",
		ConfigHash: "abc123",
		StartDate:  from,
		EndDate:    from.AddDate(0, 0, 4),
		Report: contracts.PerformanceReport{
			InitialEquity: 1_000_000,
			FinalEquity:   1_004_000,
			TotalReturn:   0.004,
			TradeCount:    4,
			WinRate:       0.5,
		},
		RoundTrips: trips,
		Signals:    make([]contracts.Signal, 7),
		Quality: []contracts.DataQualitySnapshot{
			{Regime: "bull"}, {Regime: "bull"}, {Regime: "range"}, {},
		},
		Exclusions: []contracts.Exclusion{{InstrumentID: "600009"}},
	}
}

func TestNewRunReport(t *testing.T) {
	report := NewRunReport(sampleResult(), 2)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 7, report.Signals)
	assert.Equal(t, 1, report.Exclusions)
	assert.Equal(t, map[string]int{"bull": 2, "range": 1}, report.Regimes)
	assert.Len(t, report.ByKind, 3)
	require.Len(t, report.Top, 2)
	assert.Equal(t, "600001", report.Top[0].Key)

	summary := report.ToSummary()
	assert.Contains(t, summary, "2024-03-11 ~ 2024-03-15")
	assert.Contains(t, summary, "Total Return: 0.40%")
	assert.Contains(t, summary, "Round Trips: 4")
	assert.Contains(t, summary, "bull: 2")
	assert.Contains(t, summary, "Below health thresholds")

	data, err := report.ToJSON()
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "abc123", decoded["config_hash"])
}

func TestRepository_SaveAndGetRun(t *testing.T) {
	// Skip if DATABASE_URL is not set
	url := os.Getenv("DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	repo := NewRepository(pool)
	res := sampleResult()
	res.RunID = "test-" + time.Now().Format("20060102150405.000000")
	res.Signals = []contracts.Signal{{Seq: 1, InstrumentID: "600001", Timestamp: res.StartDate, Action: contracts.ActionBuy, Quantity: 100, Reason: contracts.ReasonEntry, Price: 10}}
	res.EquityCurve = []contracts.EquityPoint{{Date: res.StartDate, Equity: 1_000_000, Cash: 999_000}}

	require.NoError(t, repo.SaveRun(ctx, res, []byte(`{"meta":{}}`)))

	rec, err := repo.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.ConfigHash, rec.ConfigHash)
	assert.InDelta(t, res.Report.FinalEquity, rec.Report.FinalEquity, 1e-9)

	signals, err := repo.GetSignals(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, signals, 1)

	got, err := repo.GetRoundTrips(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, got, len(trips))

	_, err = repo.GetRun(ctx, "missing-run")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}
