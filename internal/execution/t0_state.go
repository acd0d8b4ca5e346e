package execution

import (
	"errors"
	"fmt"

	"github.com/wonny/aegis-t0/internal/contracts"
)

// Event drives the intraday state machine
type Event string

const (
	EventSell       Event = "SELL"        // a sell rule fired and risk approved
	EventRebuy      Event = "REBUY"       // a buy-back rule fired and risk approved
	EventSessionEnd Event = "SESSION_END" // the close window ended
)

// ErrInvalidTransition is returned for a (state, event) pair the machine does not define.
var ErrInvalidTransition = errors.New("invalid T+0 transition")

// Transition returns the next state. It covers every (state, event) pair:
//
//	HOLDING_OVERNIGHT + SELL        → SOLD_INTRADAY
//	HOLDING_OVERNIGHT + SESSION_END → HOLDING_OVERNIGHT
//	SOLD_INTRADAY     + REBUY       → REBOUGHT
//	SOLD_INTRADAY     + SESSION_END → CLOSED_NO_REBUY
//	REBOUGHT          + SESSION_END → REBOUGHT
//	CLOSED_NO_REBUY   + SESSION_END → CLOSED_NO_REBUY
//
// Anything else, including every event on an untracked position, is an error.
func Transition(from contracts.IntradayState, ev Event) (contracts.IntradayState, error) {
	switch from {
	case contracts.StateHoldingOvernight:
		switch ev {
		case EventSell:
			return contracts.StateSoldIntraday, nil
		case EventSessionEnd:
			return contracts.StateHoldingOvernight, nil
		}
	case contracts.StateSoldIntraday:
		switch ev {
		case EventRebuy:
			return contracts.StateRebought, nil
		case EventSessionEnd:
			return contracts.StateClosedNoRebuy, nil
		}
	case contracts.StateRebought, contracts.StateClosedNoRebuy:
		if ev == EventSessionEnd {
			return from, nil
		}
	}
	return from, fmt.Errorf("%w: %s on %q", ErrInvalidTransition, ev, from)
}
