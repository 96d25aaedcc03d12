// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

// Package webauthn implements the Relying Party side of the WebAuthn
// registration and authentication ceremonies.
//
// This package wraps the go-webauthn/webauthn library and provides:
//   - A ceremony service that issues challenges and verifies responses
//   - A pluggable CredentialStore owning all per-user ceremony state
//   - An in-memory store implementation with per-user locking
//   - Strict signature-counter enforcement for cloned-authenticator detection
//
// # Architecture
//
// The package is layered:
//
//  1. Service - challenge issuance and the ceremony state machine
//  2. ResponseVerifier - adapter over the cryptographic verifier
//  3. CredentialStore - pluggable persistence for users, credentials, and
//     pending challenges
//
// A ceremony is a two-phase exchange: the service issues options carrying a
// fresh random challenge bound to one user and one ceremony type, and later
// verifies the client's response against exactly that challenge. A pending
// challenge is consumed at most once; a verification attempt clears it whether
// or not it succeeds.
//
// # Usage
//
//	svc, err := webauthn.NewService(webauthn.ServiceParams{
//	    Config: &webauthn.Config{
//	        RPID:          "localhost",
//	        RPDisplayName: "WebAuthn Demo",
//	        RPOrigins:     []string{"http://localhost:5173"},
//	    },
//	    Store: webauthn.NewMemoryStore(),
//	})
//
// For production, implement CredentialStore with your database. The http
// subpackage provides handlers that can be mounted on any router.
//
// # WebAuthn Specification Compliance
//
// This implementation follows the W3C Web Authentication specification:
//   - https://www.w3.org/TR/webauthn-2/
//   - https://www.w3.org/TR/webauthn-3/
//
// Note: WebAuthn requires HTTPS for all operations. Browsers will only
// expose the WebAuthn API in secure contexts (localhost excepted).
package webauthn
