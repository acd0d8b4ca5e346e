package s0_data

import "time"

// Market bundles the indexed inputs of one loaded dataset
type Market struct {
	Series      *PriceSeries
	Aux         *AuxIndex
	Universe    Universe
	BenchmarkID string
}

// NewMarket indexes ds. The benchmark is kept in the series but is never a
// candidate.
func NewMarket(ds *Dataset, benchmarkID string) *Market {
	return &Market{
		Series:      NewPriceSeries(ds.Bars),
		Aux:         NewAuxIndex(ds.Aux),
		Universe:    NewUniverse(ds.Instruments),
		BenchmarkID: benchmarkID,
	}
}

// Candidates returns the non-benchmark instruments, sorted
func (m *Market) Candidates() []string {
	var out []string
	for _, id := range m.Series.Instruments() {
		if id != m.BenchmarkID {
			out = append(out, id)
		}
	}
	return out
}

// LatestSession returns the last session of the series, or false when empty
func (m *Market) LatestSession() (time.Time, bool) {
	sessions := m.Series.Sessions()
	if len(sessions) == 0 {
		return time.Time{}, false
	}
	return sessions[len(sessions)-1], true
}
