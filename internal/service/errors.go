package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes callers need to tell apart.
var (
	// ErrReauthRequired means the platform credential is missing, expired or
	// revoked. The UI shows a reconnect prompt instead of a generic failure.
	ErrReauthRequired = errors.New("platform credential invalid, reauthentication required")

	// ErrNoLinkedAccount means the selected page has no linked business media
	// account. Kept distinct so a both-platform post can still succeed on the
	// feed side.
	ErrNoLinkedAccount = errors.New("no linked business media account")

	// ErrProcessingTimeout means the poll budget expired before the container
	// reached a terminal status. Unlike a platform-reported error this is
	// potentially retryable with a fresh attempt.
	ErrProcessingTimeout = errors.New("media processing timed out")

	ErrInsufficientCredits = errors.New("insufficient credits")
)

// ValidationError is a client-side rejection. It never reaches an adapter.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PlatformError preserves the platform's raw error message verbatim for
// user display.
type PlatformError struct {
	Platform  string
	Message   string
	Code      int
	Transient bool
}

func (e *PlatformError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s returned an error (code %d)", e.Platform, e.Code)
	}
	return e.Message
}
