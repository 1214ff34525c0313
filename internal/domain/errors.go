package domain

import "errors"

// Error taxonomy shared by services and handlers. Services wrap these with
// context via fmt.Errorf("%w: ..."); handlers branch on errors.Is.
var (
	// ErrNotFound covers missing rows and rows scoped to a different landlord.
	ErrNotFound = errors.New("not found")

	// ErrConflict covers state-machine violations: void with allocations,
	// double void, over-allocation, allocation above invoice balance.
	ErrConflict = errors.New("conflict")

	// ErrUnauthorized is returned for webhook payloads whose signature does
	// not verify.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUpstream wraps provider API failures (non-2xx or transport errors).
	// Callers decide whether to retry.
	ErrUpstream = errors.New("upstream provider error")
)
