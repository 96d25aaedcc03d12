// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

package webauthn

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony operations. Every failure a ceremony can
// produce maps to exactly one of these, so callers match with errors.Is
// instead of inspecting strings.
var (
	// ErrInvalidInput is returned when a request field is missing or malformed
	// (empty username, nil response).
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotRegistered is returned when authentication is requested for a user
	// with no registered credentials.
	ErrNotRegistered = errors.New("user not registered")

	// ErrNoActiveCeremony is returned when a verification arrives without a
	// matching pending challenge: none was issued, it was already consumed, or
	// it expired.
	ErrNoActiveCeremony = errors.New("no active ceremony")

	// ErrVerificationFailed is returned when the cryptographic verification of
	// a response fails, including challenge, origin, or RP ID mismatches.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrCloneDetected is returned when an assertion's signature counter did
	// not advance past the stored value, a strong signal of a cloned
	// authenticator. The credential is flagged for review.
	ErrCloneDetected = errors.New("cloned authenticator detected")

	// ErrCredentialExists is returned when registering a credential whose ID
	// is already stored, for any user. Credential IDs are globally unique.
	ErrCredentialExists = errors.New("credential already exists")

	// ErrUserNotFound is returned when a user cannot be found.
	ErrUserNotFound = errors.New("user not found")

	// ErrCredentialNotFound is returned when a credential cannot be found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrNotConfigured is returned when the service is not properly configured.
	ErrNotConfigured = errors.New("webauthn service not configured")
)

// CeremonyError wraps an error with the operation that produced it.
type CeremonyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new CeremonyError with the given operation and error.
func NewError(op string, err error) error {
	return &CeremonyError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// rejection tags an operation's underlying failure with ErrVerificationFailed
// while preserving the verifier's detail for server-side logging.
func rejection(op string, cause error) error {
	return NewError(op, fmt.Errorf("%w: %v", ErrVerificationFailed, cause))
}

// IsInvalidInput returns true if the error indicates a missing or malformed field.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsNoActiveCeremony returns true if the error indicates a missing or consumed
// pending challenge.
func IsNoActiveCeremony(err error) bool {
	return errors.Is(err, ErrNoActiveCeremony)
}

// IsVerificationFailed returns true if the error indicates verification failed.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}

// IsCloneDetected returns true if the error indicates a counter regression.
func IsCloneDetected(err error) bool {
	return errors.Is(err, ErrCloneDetected)
}

// IsNotRegistered returns true if the error indicates a user without credentials.
func IsNotRegistered(err error) bool {
	return errors.Is(err, ErrNotRegistered)
}

// IsUserNotFound returns true if the error indicates a user was not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsCredentialExists returns true if the error indicates a duplicate credential ID.
func IsCredentialExists(err error) bool {
	return errors.Is(err, ErrCredentialExists)
}
