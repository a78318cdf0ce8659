package dispatch

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a per-attempt failure.
type ErrorKind string

const (
	KindTimeout  ErrorKind = "timeout"  // the per-attempt timeout elapsed
	KindUpstream ErrorKind = "upstream" // the provider reported an error
	KindNetwork  ErrorKind = "network"  // transport failure before a response
)

// ProviderError is one candidate's failure. It is always absorbed locally by
// the dispatcher (recorded to health and the ledger, then failover advances)
// and only ever surfaces wrapped inside ExhaustedError.
type ProviderError struct {
	ProviderID string
	Model      string
	Kind       ErrorKind
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s (%s) failed [%s]: %v", e.ProviderID, e.Model, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ExhaustedError means every ranked candidate failed. It carries the last
// underlying provider error.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d providers exhausted, last error: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// DeadlineError means the caller-supplied deadline elapsed mid-failover.
// Remaining candidates were not attempted.
type DeadlineError struct {
	Attempts int
	LastErr  error
}

func (e *DeadlineError) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("deadline exceeded after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("deadline exceeded after %d attempts, last error: %v", e.Attempts, e.LastErr)
}

func (e *DeadlineError) Unwrap() error { return e.LastErr }

// ErrNoCandidates is returned when Execute is entered with an empty ranked
// list. Kept distinct from ExhaustedError so callers can separate
// access-denied from infrastructure failure.
var ErrNoCandidates = errors.New("dispatch: no candidates to execute")
