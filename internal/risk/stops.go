package risk

import "math"

// Stop is the ATR stop of one position.
//
// Until the position has ever closed above its entry the stop follows ATR both
// ways from the entry price. From the first profitable close it trails the
// high-water close and only moves up.
type Stop struct {
	Entry      float64 `json:"entry"`
	Price      float64 `json:"price"` // 0 = no stop (no ATR yet)
	Take       float64 `json:"take"`
	HighWater  float64 `json:"high_water"`
	Profitable bool    `json:"profitable"`
}

// InitStop sets stop = entry - k × ATR and take = entry + take_multiple × ATR
func (m *Manager) InitStop(entry, atr float64) Stop {
	s := Stop{Entry: entry, HighWater: entry}
	if atr > 0 {
		s.Price = math.Max(0, entry-m.cfg.ATR.K*atr)
		s.Take = entry + m.cfg.ATR.TakeMultiple*atr
	}
	return s
}

// UpdateStop recomputes the stop at a daily close. Never loosens once profitable.
func (m *Manager) UpdateStop(s Stop, close, atr float64) Stop {
	if close > s.HighWater {
		s.HighWater = close
	}
	if close > s.Entry {
		s.Profitable = true
	}
	if atr <= 0 {
		return s
	}

	if !s.Profitable {
		s.Price = math.Max(0, s.Entry-m.cfg.ATR.K*atr)
		return s
	}
	if trail := s.HighWater - m.cfg.ATR.K*atr; trail > s.Price {
		s.Price = trail
	}
	return s
}

// Hit reports whether price is at or below an active stop
func (s Stop) Hit(price float64) bool {
	return s.Price > 0 && price <= s.Price
}
