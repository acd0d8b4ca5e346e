package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-t0/internal/contracts"
)

type fakeSeries map[string][]contracts.Bar

func (f fakeSeries) SessionBars(id string, _ time.Time) []contracts.Bar { return f[id] }

var session = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func mkBar(id string, minute int, price float64) contracts.Bar {
	return contracts.Bar{
		InstrumentID: id,
		SessionDate:  session,
		Timestamp:    session.Add(9*time.Hour + 30*time.Minute + time.Duration(minute)*time.Minute),
		Open:         price, High: price, Low: price, Close: price,
		PreClose: price,
		Volume:   100,
	}
}

func TestQualityGate_Check(t *testing.T) {
	missingPreClose := mkBar("000003", 0, 10)
	missingPreClose.PreClose = 0

	series := fakeSeries{
		"000001": {mkBar("000001", 0, 10), mkBar("000001", 1, 10)},
		"000002": {mkBar("000002", 1, 10), mkBar("000002", 0, 10)}, // out of order
		"000003": {missingPreClose},
		"000300": {mkBar("000300", 0, 3500)},
	}

	gate := NewQualityGate(DefaultConfig())
	res := gate.Check(series, session, []string{"000001", "000002", "000003", "000004", "000300"}, "000300")

	require.NotNil(t, res.Snapshot)
	assert.Equal(t, 3, res.Snapshot.Total, "000004 has no bars and the benchmark is not counted")
	assert.Equal(t, 1, res.Snapshot.Valid)
	assert.True(t, res.Snapshot.Benchmark)
	assert.Len(t, res.Snapshot.Exclusions, 2)
	assert.True(t, res.Snapshot.IsExcluded("000002"))
	assert.True(t, res.Snapshot.IsExcluded("000003"))

	assert.Contains(t, res.Valid, "000001")
	assert.ErrorIs(t, res.Errors["000002"], contracts.ErrDataIntegrity)
	assert.Contains(t, res.Snapshot.Exclusions[1].Reason, "pre_close")
}

func TestQualityGate_MinBars(t *testing.T) {
	series := fakeSeries{"000001": {mkBar("000001", 0, 10)}}

	gate := NewQualityGate(Config{MinBarsPerSession: 2, MinCoverage: 0.5})
	res := gate.Check(series, session, []string{"000001"}, "000300")

	assert.Equal(t, 0, res.Snapshot.Valid)
	assert.False(t, res.Passed)
	assert.False(t, res.Snapshot.Benchmark)
}
