package contracts

import "time"

// Exclusion records an instrument dropped from one session by the integrity gate.
type Exclusion struct {
	InstrumentID string    `json:"instrument_id"`
	SessionDate  time.Time `json:"session_date"`
	Reason       string    `json:"reason"`
}

// DataQualitySnapshot summarizes the integrity gate for one session
// ⭐ SSOT: S0 → engine data quality hand-off
type DataQualitySnapshot struct {
	Date       time.Time   `json:"date"`
	Total      int         `json:"total"`
	Valid      int         `json:"valid"`
	Exclusions []Exclusion `json:"exclusions,omitempty"`
	Regime     string      `json:"regime,omitempty"` // bull, range, bear
	Benchmark  bool        `json:"benchmark"`        // benchmark bars passed the gate
}

// Coverage returns the fraction of instruments that passed the gate.
func (d *DataQualitySnapshot) Coverage() float64 {
	if d.Total == 0 {
		return 0.0
	}
	return float64(d.Valid) / float64(d.Total)
}

// IsExcluded reports whether id was dropped from the session.
func (d *DataQualitySnapshot) IsExcluded(id string) bool {
	for _, e := range d.Exclusions {
		if e.InstrumentID == id {
			return true
		}
	}
	return false
}
