package domain

import "errors"

var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid spot transition")

	// ErrNoActiveSession means the registry says a spot is occupied but the ledger has no open session for it.
	ErrNoActiveSession = errors.New("no active session for spot")

	// ErrDuplicateActiveSession and ErrInconsistentState indicate the registry and ledger
	// disagree. They are defects, never a user error.
	ErrDuplicateActiveSession = errors.New("spot already has an active session")
	ErrInconsistentState      = errors.New("inconsistent parking state")
)

// IsInternal reports whether err is a ledger/registry consistency defect.
func IsInternal(err error) bool {
	return errors.Is(err, ErrDuplicateActiveSession) || errors.Is(err, ErrInconsistentState)
}
