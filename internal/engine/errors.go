package engine

import (
    "errors"
    "fmt"
)

// ErrInvalidTransition is returned when a caller attempts a transition
// that is not legal from the pass's current status, including losing a
// compare-and-swap race to a concurrent writer.  Callers should
// re-fetch the pass and decide whether to retry with fresh state.
// Handlers translate it into an HTTP 409 response.
var ErrInvalidTransition = errors.New("invalid transition for current pass status")

// ErrAwaitingApproval is the depart-specific form of
// ErrInvalidTransition: the pass exists and belongs to the caller, but
// staff have not approved it yet.  Wrapping keeps errors.Is checks for
// ErrInvalidTransition working while letting handlers surface a more
// useful message than a bare conflict.
var ErrAwaitingApproval = fmt.Errorf("pass is awaiting approval: %w", ErrInvalidTransition)

// ErrStoreUnavailable is returned when a store read or conditional
// write could not complete within its timeout.  Transitions fail
// closed: the engine never assumes a timed-out write succeeded, and a
// timed-out admission check is a denial, never an allow.
var ErrStoreUnavailable = errors.New("pass store unavailable")

// ErrInvalidRequest is returned when a pass request fails structural
// validation (unknown student or location, inactive destination, time
// limit out of range) before any policy check runs.
var ErrInvalidRequest = errors.New("invalid pass request")
