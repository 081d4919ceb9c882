package generator

import (
	"errors"
	"fmt"
)

// Reason classifies why a generation attempt produced no usable text.
type Reason string

const (
	// ReasonTransport covers network errors and backend-side faults.
	ReasonTransport Reason = "transport"
	// ReasonBlocked means the safety filter rejected the prompt or completion.
	ReasonBlocked Reason = "blocked"
	// ReasonTimeout means the backend did not answer within the deadline.
	ReasonTimeout Reason = "timeout"
	// ReasonEmpty means the backend answered with no usable text.
	ReasonEmpty Reason = "empty"
)

// Sentinel errors returned by backends so the generator can classify them.
var (
	ErrBlocked         = errors.New("completion blocked by safety filter")
	ErrEmptyCompletion = errors.New("backend returned empty completion")
)

// Failure is the error type every failed Generate call resolves to.
type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("generation failed (%s)", f.Reason)
	}
	return fmt.Sprintf("generation failed (%s): %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// ReasonOf extracts the failure reason from an error returned by Generate.
// Errors that are not a *Failure count as transport faults.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ReasonTransport
}
