package domain

import "errors"

// Error kinds. Every specific error below wraps exactly one of these so callers can
// branch on the kind with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
	ErrTransient    = errors.New("transient failure")
)

// Domain errors
var (
	ErrSquadNotFound  = newError(ErrNotFound, "squad not found")
	ErrMemberNotFound = newError(ErrNotFound, "member not found")
	ErrUserNotFound   = newError(ErrNotFound, "user not found")
	ErrNotAMember     = newError(ErrNotFound, "user is not a member of this squad")

	ErrDuplicateSlug   = newError(ErrConflict, "slug already exists")
	ErrAlreadyInSquad  = newError(ErrConflict, "user is already in a squad")
	ErrVersionConflict = newError(ErrConflict, "squad was modified concurrently")

	ErrMissingIdentity = newError(ErrUnauthorized, "missing acting identity")
	ErrNotSquadOwner   = newError(ErrUnauthorized, "only the squad owner can do this")
	ErrNotService      = newError(ErrUnauthorized, "service credential required")

	ErrInvalidOutcome = newError(ErrInvalidInput, "invalid pick outcome")
	ErrInvalidSquad   = newError(ErrInvalidInput, "invalid squad")
	ErrInvalidRequest = newError(ErrInvalidInput, "invalid request")

	ErrRetriesExhausted = newError(ErrTransient, "write retries exhausted")

	ErrInternalError = errors.New("internal server error")
)

type kindError struct {
	kind error
	msg  string
}

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// KindOf returns the error kind err belongs to, or nil for unclassified errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrUnauthorized, ErrInvalidInput, ErrTransient} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
