package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, caches and outbound
// clients return these (optionally wrapped) so services can translate them
// into domain errors or degraded outcomes.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the store or cache
// - ErrUnavailable: backing service temporarily unavailable
// - ErrTimeout: call exceeded its deadline
// - ErrCircuitOpen: caller short-circuited by an open breaker
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrTimeout      = errors.New("timeout")
	ErrCircuitOpen  = errors.New("circuit open")
)
