package negotiation

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedSignal  = errors.New("unexpected signal")
	ErrConnectTimeout    = errors.New("peer connection not established in time")
	ErrMediaUnavailable  = errors.New("local media unavailable")
	ErrTransportDegraded = errors.New("peer transport degraded")
	ErrChannelNotOpen    = errors.New("control channel not open")
	ErrAlreadyStarted    = errors.New("negotiation already started")
	ErrClosed            = errors.New("negotiation closed")
)

// Error records the negotiation step that failed.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
