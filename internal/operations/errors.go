package operations

import (
	"errors"

	"campusportal/internal/model"
)

const (
	CodeUnauthenticated = "unauthenticated"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeTransientIO     = "transient_io"
	CodeValidation      = "validation"
	CodeStaleSession    = "stale_session"
)

type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so callers can compare
// against the sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrConflict        = &Error{Code: CodeConflict}
	ErrTransientIO     = &Error{Code: CodeTransientIO}
	ErrValidation      = &Error{Code: CodeValidation}
	ErrStaleSession    = &Error{Code: CodeStaleSession}
)

func New(code string, err error) error {
	return &Error{Code: code, Err: err}
}

// Code returns the taxonomy code of err, or "" when err carries none.
func Code(err error) string {
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr.Code
	}
	return ""
}

// SetupAllowed reports whether a failed resolution may send the caller to the
// profile-setup flow. Only a missing profile qualifies, and only for sessions
// claiming a role that owns a profile table.
func SetupAllowed(role model.Role, err error) bool {
	return errors.Is(err, ErrNotFound) && role.HasProfile()
}
