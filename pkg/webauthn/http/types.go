// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

package http

import "encoding/json"

// OptionsRequest is the request body for the options endpoints.
type OptionsRequest struct {
	// Username identifies the account (required).
	Username string `json:"username"`
}

// VerifyRequest is the request body for the verify endpoints.
type VerifyRequest struct {
	// Username identifies the account (required).
	Username string `json:"username"`

	// Response is the authenticator's credential response as produced by
	// navigator.credentials.create() or .get().
	Response json.RawMessage `json:"response"`
}

// VerifyResponse reports the outcome of a verify endpoint.
type VerifyResponse struct {
	// Verified is true when the ceremony completed successfully.
	Verified bool `json:"verified"`

	// Error carries a stable error code when Verified is false.
	Error string `json:"error,omitempty"`
}

// RegistrationStatusResponse is the response for the status endpoint.
type RegistrationStatusResponse struct {
	// Registered indicates the user has at least one credential.
	Registered bool `json:"registered"`
}

// ErrorResponse is the response format for the options endpoints.
type ErrorResponse struct {
	// Error is a human-readable error message.
	Error string `json:"error"`
}

// Error codes returned in VerifyResponse.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeNoActiveCeremony   = "no_active_ceremony"
	ErrorCodeNotRegistered      = "not_registered"
	ErrorCodeVerificationFailed = "verification_failed"
	ErrorCodeCredentialExists   = "credential_exists"
	ErrorCodeCloneDetected      = "clone_detected"
	ErrorCodeInternalError      = "internal_error"
)
