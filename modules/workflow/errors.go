package workflow

import "errors"

var (
	// ErrInvalidStep - the transition is not valid in the current step
	ErrInvalidStep = errors.New("operation not valid in the current step")
	// ErrBusy - a generation request is already in flight
	ErrBusy = errors.New("a request is already in progress")
	// ErrMissingTemplates - generation needs both style templates
	ErrMissingTemplates = errors.New("visual and script style templates are required")
	// ErrStaleResult - the call finished after the state it belonged to was left
	ErrStaleResult = errors.New("result no longer relevant to the current state")
	// ErrClosed - the session behind the controller was discarded
	ErrClosed = errors.New("session closed")
)

// MsgInterrupted is stored when a snapshot is restored with a call still marked in flight.
const MsgInterrupted = "The previous request was interrupted. Please try again."
