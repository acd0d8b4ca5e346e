package contracts

import (
	"math"
	"time"
)

// SessionLayout is the canonical trading-session date format.
const SessionLayout = "2006-01-02"

// SessionKey returns the session date of t in t's own location.
func SessionKey(t time.Time) string {
	return t.Format(SessionLayout)
}

// SameSession reports whether a and b fall on the same trading date.
func SameSession(a, b time.Time) bool {
	return SessionKey(a) == SessionKey(b)
}

// Bar is one normalized OHLCV bar of an instrument within a trading session.
// ⭐ SSOT: the only price shape the core consumes (S0 → everything)
type Bar struct {
	InstrumentID string    `json:"instrument_id"`
	SessionDate  time.Time `json:"session_date"`
	Timestamp    time.Time `json:"timestamp"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	PreClose     float64   `json:"pre_close"` // previous session close
	Volume       float64   `json:"volume"`
}

// Validate checks the single-bar invariant:
// high ≥ max(open,close) ≥ min(open,close) ≥ low ≥ 0 and pre_close > 0.
func (b Bar) Validate() error {
	if b.InstrumentID == "" {
		return NewIntegrityError(b.InstrumentID, b.SessionDate, "empty instrument id")
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.PreClose, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewIntegrityError(b.InstrumentID, b.SessionDate, "non-finite value at %s", b.Timestamp.Format(time.RFC3339))
		}
	}
	if b.PreClose <= 0 {
		return NewIntegrityError(b.InstrumentID, b.SessionDate, "missing pre_close at %s", b.Timestamp.Format(time.RFC3339))
	}
	if b.Low < 0 || b.Volume < 0 {
		return NewIntegrityError(b.InstrumentID, b.SessionDate, "negative low or volume at %s", b.Timestamp.Format(time.RFC3339))
	}
	if b.High < math.Max(b.Open, b.Close) || math.Min(b.Open, b.Close) < b.Low {
		return NewIntegrityError(b.InstrumentID, b.SessionDate,
			"OHLC out of order at %s (o=%g h=%g l=%g c=%g)", b.Timestamp.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close)
	}
	if !SameSession(b.Timestamp, b.SessionDate) {
		return NewIntegrityError(b.InstrumentID, b.SessionDate, "timestamp %s outside session", b.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// ValidateSession checks every bar plus the session-level invariant:
// timestamps strictly increasing and one instrument per slice.
func ValidateSession(bars []Bar) error {
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return err
		}
		if i == 0 {
			continue
		}
		prev := bars[i-1]
		if b.InstrumentID != prev.InstrumentID {
			return NewIntegrityError(b.InstrumentID, b.SessionDate, "mixed instruments in session (%s)", prev.InstrumentID)
		}
		if !SameSession(b.SessionDate, prev.SessionDate) {
			return NewIntegrityError(b.InstrumentID, b.SessionDate, "bars span sessions")
		}
		if !b.Timestamp.After(prev.Timestamp) {
			return NewIntegrityError(b.InstrumentID, b.SessionDate,
				"non-increasing timestamp %s after %s", b.Timestamp.Format(time.RFC3339), prev.Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// AuxSignals carries externally produced, already normalized capital-flow and
// sentiment inputs. A nil field means the producer had nothing for that day.
type AuxSignals struct {
	InstrumentID   string    `json:"instrument_id"`
	SessionDate    time.Time `json:"session_date"`
	MainInflow     *float64  `json:"main_inflow,omitempty"`
	Northbound     *float64  `json:"northbound,omitempty"`
	MarketHeat     *float64  `json:"market_heat,omitempty"`
	SectorRotation *float64  `json:"sector_rotation,omitempty"`
}

// Instrument is static metadata about a tradable instrument.
type Instrument struct {
	ID          string  `json:"id"`
	Sector      string  `json:"sector"`
	FloatShares float64 `json:"float_shares"` // 0 = unknown
}

// Float returns a pointer to v. Handy when building AuxSignals.
func Float(v float64) *float64 { return &v }
