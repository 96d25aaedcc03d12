// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

package webauthn

import (
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// LibraryVerifier implements ResponseVerifier on top of go-webauthn. All
// cryptographic checks (signature, challenge, origin, RP ID hash, flags)
// happen inside the library; this type only adapts the call surface.
type LibraryVerifier struct {
	web *webauthn.WebAuthn
}

// NewLibraryVerifier creates a verifier from the validated service config.
func NewLibraryVerifier(config *Config) (*LibraryVerifier, error) {
	web, err := webauthn.New(config.ToWebAuthnConfig())
	if err != nil {
		return nil, WrapError("webauthn.NewLibraryVerifier", err)
	}
	return &LibraryVerifier{web: web}, nil
}

// VerifyRegistration validates an attestation response and returns the
// credential it attests to.
func (v *LibraryVerifier) VerifyRegistration(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	return v.web.CreateCredential(user, session, response)
}

// VerifyAuthentication validates an assertion response and returns the
// credential that signed it.
func (v *LibraryVerifier) VerifyAuthentication(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	return v.web.ValidateLogin(user, session, response)
}
