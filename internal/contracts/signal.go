package contracts

import "time"

// Action is what a signal asks the portfolio to do.
type Action string

const (
	ActionSell Action = "SELL"
	ActionBuy  Action = "BUY"
	ActionHold Action = "HOLD"
)

// ReasonCode explains why a signal was emitted.
type ReasonCode string

const (
	// T+0 sell rules
	ReasonSpikeAndFade ReasonCode = "spike-and-fade"
	ReasonGapUpFade    ReasonCode = "gap-up-fade"
	ReasonTakeProfit   ReasonCode = "take-profit"

	// T+0 buy-back rules
	ReasonPullbackBelowSale  ReasonCode = "pullback-below-sale"
	ReasonUndercutAndRecover ReasonCode = "undercut-and-recover"
	ReasonForceRebuy         ReasonCode = "force-rebuy"
	ReasonSessionEndFlat     ReasonCode = "session-end-flat"

	// Portfolio level
	ReasonEntry          ReasonCode = "entry"
	ReasonExitDeselected ReasonCode = "exit-deselected"
	ReasonATRStop        ReasonCode = "atr-stop"
)

// Signal is an immutable order event. Once appended to a SignalLog it is
// never edited.
type Signal struct {
	Seq          int        `json:"seq"`
	InstrumentID string     `json:"instrument_id"`
	Timestamp    time.Time  `json:"timestamp"`
	Action       Action     `json:"action"`
	Quantity     int64      `json:"quantity"`
	Reason       ReasonCode `json:"reason"`
	Price        float64    `json:"price"`
}

// SignalLog is the ordered, append-only record of emitted signals.
type SignalLog struct {
	signals []Signal
}

// Append stamps the next sequence number on s and records it.
func (l *SignalLog) Append(s Signal) Signal {
	s.Seq = len(l.signals) + 1
	l.signals = append(l.signals, s)
	return s
}

// Signals returns a copy of the log.
func (l *SignalLog) Signals() []Signal {
	out := make([]Signal, len(l.signals))
	copy(out, l.signals)
	return out
}

// Len returns the number of recorded signals.
func (l *SignalLog) Len() int {
	return len(l.signals)
}
