package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and sinks return these (optionally
// wrapped) so handlers can translate them into responses:
// - ErrNotFound: record does not exist in store
// - ErrConflict: record already exists with different content
// - ErrUnavailable: sink or backing service temporarily unavailable
// - ErrInvalidInput: caller supplied a malformed identifier or parameter
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidInput = errors.New("invalid input")
)
