package router

import "fmt"

// TrustUnavailableError means the trust lookup itself failed. It surfaces
// immediately; the gateway never retries identity internally.
type TrustUnavailableError struct {
	CallerID string
	Err      error
}

func (e *TrustUnavailableError) Error() string {
	return fmt.Sprintf("trust lookup unavailable for caller %s: %v", e.CallerID, e.Err)
}

func (e *TrustUnavailableError) Unwrap() error { return e.Err }

// NoEligibleProviderError means the catalog produced an empty candidate set:
// trust too low, or every provider inactive or unhealthy. Distinct from an
// infrastructure failure so the transport can answer with access semantics.
type NoEligibleProviderError struct {
	CallerID   string
	TrustScore int
}

func (e *NoEligibleProviderError) Error() string {
	return fmt.Sprintf("no eligible provider for caller %s at trust %d", e.CallerID, e.TrustScore)
}
