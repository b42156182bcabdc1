package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and adapters return these
// (optionally wrapped) so services can translate them into domain errors or
// user-facing replies.
//
//   - ErrNotFound: the record or file does not exist
//   - ErrConflict: a compare-and-swap lost against a concurrent writer
//   - ErrUnavailable: a collaborator failed or timed out; the call may be retried
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
