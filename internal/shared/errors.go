package shared

import "errors"

var (
	// ErrNotFound indicates the requested account does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique constraint was violated.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// DeniedError carries the decision engine's denial reason across the
// service boundary so the transport layer can surface it as a 403.
type DeniedError struct {
	Why string
}

func (e *DeniedError) Error() string {
	return e.Why
}

// Denied wraps a denial reason as an error.
func Denied(reason string) error {
	return &DeniedError{Why: reason}
}

// DenialReason extracts the denial reason when err is a DeniedError.
func DenialReason(err error) (string, bool) {
	var d *DeniedError
	if errors.As(err, &d) {
		return d.Why, true
	}
	return "", false
}
