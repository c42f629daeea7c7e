package outcome

import (
	"errors"
	"fmt"
)

// BuildError reports that local data was insufficient or malformed to build a
// fiscal document. A BuildError is never transmitted to SEFAZ.
type BuildError struct {
	Field  string
	Reason string
}

func (e *BuildError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("build invalid: %s", e.Reason)
	}
	return fmt.Sprintf("build invalid: %s: %s", e.Field, e.Reason)
}

// NewBuildError creates a BuildError for the given field.
func NewBuildError(field, reason string) *BuildError {
	return &BuildError{Field: field, Reason: reason}
}

// IsBuildError reports whether err is (or wraps) a BuildError.
func IsBuildError(err error) bool {
	var be *BuildError
	return errors.As(err, &be)
}

// CredentialError reports that signing cannot proceed.
type CredentialError struct {
	Op  string
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential %s: %v", e.Op, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

var (
	// ErrCredentialExpired indicates the certificate validity window has passed.
	ErrCredentialExpired = errors.New("credential expired")
	// ErrCredentialUnavailable indicates no credential could be bound (no token
	// present, library path missing, bad slot).
	ErrCredentialUnavailable = errors.New("credential unavailable")
	// ErrMechanismUnavailable indicates the token does not support the
	// required signing mechanism.
	ErrMechanismUnavailable = errors.New("signature mechanism unavailable")
	// ErrCheckDigitMismatch indicates the access key check digit recomputation
	// disagreed with the generated key. Internal invariant, never expected.
	ErrCheckDigitMismatch = errors.New("access key check digit mismatch")
)

// TransportError reports that no interpretable SEFAZ reply was obtained.
// Transport failures are safe to retry with the exact same signed bytes
// because SEFAZ de-duplicates by access key.
type TransportError struct {
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transport: %s", e.Reason)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
