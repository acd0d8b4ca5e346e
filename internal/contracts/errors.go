package contracts

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds shared by every stage.
// ⭐ SSOT: callers classify failures with errors.Is against these sentinels
var (
	// ErrConfiguration marks a configuration the engine refuses to run with.
	ErrConfiguration = errors.New("configuration error")

	// ErrDataIntegrity marks input bars that break the bar/session invariants.
	ErrDataIntegrity = errors.New("data integrity error")

	// ErrLookahead marks an attempt to read data past the as-of date.
	// It is always a programming defect and always aborts.
	ErrLookahead = errors.New("lookahead violation")
)

// DataIntegrityError describes one rejected bar or session.
type DataIntegrityError struct {
	InstrumentID string
	SessionDate  time.Time
	Reason       string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity: %s %s: %s", e.InstrumentID, SessionKey(e.SessionDate), e.Reason)
}

func (e *DataIntegrityError) Unwrap() error { return ErrDataIntegrity }

// NewIntegrityError is a shorthand used by validators.
func NewIntegrityError(instrumentID string, session time.Time, format string, args ...interface{}) *DataIntegrityError {
	return &DataIntegrityError{
		InstrumentID: instrumentID,
		SessionDate:  session,
		Reason:       fmt.Sprintf(format, args...),
	}
}

// LookaheadViolation is raised when Component saw data stamped Seen while
// computing as of AsOf.
type LookaheadViolation struct {
	Component string
	AsOf      time.Time
	Seen      time.Time
}

func (e *LookaheadViolation) Error() string {
	return fmt.Sprintf("lookahead: %s computing as of %s read data from %s",
		e.Component, SessionKey(e.AsOf), e.Seen.Format(time.RFC3339))
}

func (e *LookaheadViolation) Unwrap() error { return ErrLookahead }
