package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across services and handlers. Repositories and
// services wrap these sentinels with fmt.Errorf("%w: detail") so callers
// can branch with errors.Is while keeping messages specific.
var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrStateConflict = errors.New("state conflict")
	ErrAuthorization = errors.New("authorization error")
	ErrIntegrity     = errors.New("integrity error")
	ErrTransient     = errors.New("transient error")
)

// Named state conflicts for the report and evaluation lifecycles.
var (
	ErrAlreadyEmitted   = fmt.Errorf("%w: report already emitted", ErrStateConflict)
	ErrNotEmittedYet    = fmt.Errorf("%w: report not emitted yet", ErrStateConflict)
	ErrAlreadyDelivered = fmt.Errorf("%w: report already delivered", ErrStateConflict)
	ErrAlreadyReset     = fmt.Errorf("%w: evaluation already open", ErrStateConflict)
)

// IsRetryable reports whether a failure should be retried by the emission
// queue instead of being surfaced as terminal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
