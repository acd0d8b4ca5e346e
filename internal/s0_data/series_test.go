package s0_data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-t0/internal/contracts"
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func bar(id string, session time.Time, hhmm string, o, h, l, c, pre, vol float64) contracts.Bar {
	t, _ := time.Parse("15:04", hhmm)
	return contracts.Bar{
		InstrumentID: id,
		SessionDate:  session,
		Timestamp:    session.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute),
		Open:         o, High: h, Low: l, Close: c,
		PreClose: pre,
		Volume:   vol,
	}
}

func TestNewPriceSeries(t *testing.T) {
	bars := []contracts.Bar{
		bar("B", day(5), "10:00", 20, 21, 19, 20.5, 20, 50),
		bar("A", day(5), "10:00", 10, 10.8, 9.9, 10.5, 10, 200),
		bar("A", day(4), "09:30", 9.8, 10, 9.7, 10, 9.8, 100),
		bar("A", day(5), "09:30", 10, 10.2, 9.9, 10.1, 10, 100),
	}

	s := NewPriceSeries(bars)

	assert.Equal(t, []string{"A", "B"}, s.Instruments())
	require.Len(t, s.Sessions(), 2)
	assert.Equal(t, day(4), s.Sessions()[0])

	sb := s.SessionBars("A", day(5))
	require.Len(t, sb, 2)
	assert.True(t, sb[0].Timestamp.Before(sb[1].Timestamp), "sorted by timestamp")

	assert.True(t, s.HasSession("B", day(5)))
	assert.False(t, s.HasSession("B", day(4)))
}

func TestPriceSeries_DailyHistory(t *testing.T) {
	bars := []contracts.Bar{
		bar("A", day(4), "09:30", 9.8, 10, 9.7, 10, 9.8, 100),
		bar("A", day(5), "09:30", 10, 10.2, 9.9, 10.1, 10, 100),
		bar("A", day(5), "10:00", 10.1, 10.8, 10, 10.5, 10, 200),
		bar("A", day(6), "09:30", 10.5, 11, 10.4, 10.9, 10.5, 300),
	}
	s := NewPriceSeries(bars)

	t.Run("truncated at asOf", func(t *testing.T) {
		h := s.DailyHistory("A", day(5))
		require.Len(t, h, 2)
		d := h[1]
		assert.Equal(t, 10.0, d.Open)
		assert.Equal(t, 10.8, d.High)
		assert.Equal(t, 9.9, d.Low)
		assert.Equal(t, 10.5, d.Close)
		assert.Equal(t, 300.0, d.Volume)
	})

	t.Run("append does not leak into series", func(t *testing.T) {
		h := s.DailyHistory("A", day(4))
		_ = append(h, contracts.Bar{Close: -1})
		assert.Equal(t, 10.9, s.DailyHistory("A", day(6))[2].Close)
	})

	t.Run("unknown instrument", func(t *testing.T) {
		assert.Empty(t, s.DailyHistory("Z", day(6)))
	})
}

func TestPriceSeries_InvalidSessionSkippedInDaily(t *testing.T) {
	bad := bar("A", day(5), "09:30", 10, 9, 9.5, 10, 10, 100) // high < open
	bars := []contracts.Bar{
		bar("A", day(4), "09:30", 9.8, 10, 9.7, 10, 9.8, 100),
		bad,
		bar("A", day(6), "09:30", 10.5, 11, 10.4, 10.9, 10.5, 300),
	}
	s := NewPriceSeries(bars)

	h := s.DailyHistory("A", day(6))
	require.Len(t, h, 2)
	assert.Equal(t, day(6), h[1].SessionDate)
	assert.Len(t, s.SessionBars("A", day(5)), 1, "raw bars are still visible to the gate")
}

func TestAuxIndexAndUniverse(t *testing.T) {
	idx := NewAuxIndex([]contracts.AuxSignals{
		{InstrumentID: "A", SessionDate: day(5), MainInflow: contracts.Float(0.4)},
		{InstrumentID: "A", SessionDate: day(5), MainInflow: contracts.Float(0.6)},
	})
	a, ok := idx.Get("A", day(5))
	require.True(t, ok)
	assert.Equal(t, 0.6, *a.MainInflow)

	_, ok = idx.Get("A", day(6))
	assert.False(t, ok)

	var nilIdx *AuxIndex
	_, ok = nilIdx.Get("A", day(5))
	assert.False(t, ok)

	u := NewUniverse([]contracts.Instrument{{ID: "A", Sector: "bank", FloatShares: 1e9}})
	assert.Equal(t, "bank", u.Lookup("A").Sector)
	assert.Equal(t, contracts.Instrument{ID: "B"}, u.Lookup("B"))
}

func TestMarket(t *testing.T) {
	m := NewMarket(&Dataset{
		Bars: []contracts.Bar{
			bar("B", day(4), "09:30", 10, 10, 10, 10, 10, 100),
			bar("IDX", day(5), "09:30", 3500, 3500, 3500, 3500, 3500, 0),
			bar("A", day(5), "09:30", 10, 10, 10, 10, 10, 100),
		},
		Instruments: []contracts.Instrument{{ID: "A", Sector: "bank"}},
	}, "IDX")

	assert.Equal(t, []string{"A", "B"}, m.Candidates())
	assert.Equal(t, "bank", m.Universe.Lookup("A").Sector)

	latest, ok := m.LatestSession()
	require.True(t, ok)
	assert.True(t, contracts.SameSession(latest, day(5)))

	_, ok = NewMarket(&Dataset{}, "IDX").LatestSession()
	assert.False(t, ok)
}
