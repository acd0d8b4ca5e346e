package s0_data

import (
	"sort"
	"time"

	"github.com/wonny/aegis-t0/internal/contracts"
)

// PriceSeries indexes intraday bars by instrument and session.
// ⭐ SSOT: the only place bars are grouped, sorted and aggregated to daily bars
type PriceSeries struct {
	bars        map[string]map[string][]contracts.Bar // id → session key → bars by timestamp
	daily       map[string][]contracts.Bar            // id → one aggregated bar per valid session
	sessions    []time.Time
	instruments []string
}

// NewPriceSeries groups bars by instrument and session. Bars are stably
// sorted by timestamp; duplicates are kept so the integrity gate can see them.
func NewPriceSeries(bars []contracts.Bar) *PriceSeries {
	s := &PriceSeries{
		bars:  make(map[string]map[string][]contracts.Bar),
		daily: make(map[string][]contracts.Bar),
	}

	sessionDates := make(map[string]time.Time)
	for _, b := range bars {
		byID, ok := s.bars[b.InstrumentID]
		if !ok {
			byID = make(map[string][]contracts.Bar)
			s.bars[b.InstrumentID] = byID
			s.instruments = append(s.instruments, b.InstrumentID)
		}
		key := contracts.SessionKey(b.SessionDate)
		byID[key] = append(byID[key], b)
		if _, seen := sessionDates[key]; !seen {
			sessionDates[key] = b.SessionDate
		}
	}

	for key := range sessionDates {
		s.sessions = append(s.sessions, sessionDates[key])
	}
	sort.Slice(s.sessions, func(i, j int) bool { return s.sessions[i].Before(s.sessions[j]) })
	sort.Strings(s.instruments)

	for _, id := range s.instruments {
		byID := s.bars[id]
		for _, session := range s.sessions {
			key := contracts.SessionKey(session)
			sessionBars, ok := byID[key]
			if !ok {
				continue
			}
			sort.SliceStable(sessionBars, func(i, j int) bool {
				return sessionBars[i].Timestamp.Before(sessionBars[j].Timestamp)
			})
			// sessions failing the integrity check never enter the daily history
			if contracts.ValidateSession(sessionBars) != nil {
				continue
			}
			if day, ok := AggregateSession(sessionBars); ok {
				s.daily[id] = append(s.daily[id], day)
			}
		}
	}

	return s
}

// Instruments returns every instrument id, sorted.
func (s *PriceSeries) Instruments() []string {
	out := make([]string, len(s.instruments))
	copy(out, s.instruments)
	return out
}

// Sessions returns every session date, ascending.
func (s *PriceSeries) Sessions() []time.Time {
	out := make([]time.Time, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// SessionBars returns the instrument's bars for one session in timestamp order.
func (s *PriceSeries) SessionBars(id string, session time.Time) []contracts.Bar {
	bars := s.bars[id][contracts.SessionKey(session)]
	out := make([]contracts.Bar, len(bars))
	copy(out, bars)
	return out
}

// HasSession reports whether the instrument traded on the session.
func (s *PriceSeries) HasSession(id string, session time.Time) bool {
	return len(s.bars[id][contracts.SessionKey(session)]) > 0
}

// DailyHistory returns one aggregated bar per valid session with
// session date ≤ asOf, oldest first.
func (s *PriceSeries) DailyHistory(id string, asOf time.Time) []contracts.Bar {
	days := s.daily[id]
	asOfKey := contracts.SessionKey(asOf)
	n := sort.Search(len(days), func(i int) bool {
		return contracts.SessionKey(days[i].SessionDate) > asOfKey
	})
	return days[:n:n]
}

// AggregateSession folds a session's intraday bars into one daily bar.
func AggregateSession(bars []contracts.Bar) (contracts.Bar, bool) {
	if len(bars) == 0 {
		return contracts.Bar{}, false
	}
	first, last := bars[0], bars[len(bars)-1]
	day := contracts.Bar{
		InstrumentID: first.InstrumentID,
		SessionDate:  first.SessionDate,
		Timestamp:    last.Timestamp,
		Open:         first.Open,
		High:         first.High,
		Low:          first.Low,
		Close:        last.Close,
		PreClose:     first.PreClose,
	}
	for _, b := range bars {
		if b.High > day.High {
			day.High = b.High
		}
		if b.Low < day.Low {
			day.Low = b.Low
		}
		day.Volume += b.Volume
	}
	return day, true
}

// AuxIndex looks up auxiliary signals by instrument and session.
type AuxIndex struct {
	byKey map[string]map[string]contracts.AuxSignals
}

// NewAuxIndex indexes aux records. A later record for the same key wins.
func NewAuxIndex(records []contracts.AuxSignals) *AuxIndex {
	idx := &AuxIndex{byKey: make(map[string]map[string]contracts.AuxSignals)}
	for _, r := range records {
		byID, ok := idx.byKey[r.InstrumentID]
		if !ok {
			byID = make(map[string]contracts.AuxSignals)
			idx.byKey[r.InstrumentID] = byID
		}
		byID[contracts.SessionKey(r.SessionDate)] = r
	}
	return idx
}

// Get returns the aux record of id on session.
func (a *AuxIndex) Get(id string, session time.Time) (contracts.AuxSignals, bool) {
	if a == nil {
		return contracts.AuxSignals{}, false
	}
	r, ok := a.byKey[id][contracts.SessionKey(session)]
	return r, ok
}

// Universe maps instrument ids to metadata.
type Universe map[string]contracts.Instrument

// NewUniverse indexes instrument metadata by id.
func NewUniverse(instruments []contracts.Instrument) Universe {
	u := make(Universe, len(instruments))
	for _, inst := range instruments {
		u[inst.ID] = inst
	}
	return u
}

// Lookup returns metadata for id, or a bare Instrument when unknown.
func (u Universe) Lookup(id string) contracts.Instrument {
	if inst, ok := u[id]; ok {
		return inst
	}
	return contracts.Instrument{ID: id}
}
