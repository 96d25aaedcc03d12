// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

package webauthn

import (
	"context"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// CredentialStore is the single persistence interface for ceremony state:
// accounts, their credentials, and pending challenges. The service talks only
// to this interface, so backends (in-memory, Postgres) are interchangeable.
//
// Implementations must serialize operations touching the same username;
// operations on different usernames may proceed in parallel.
type CredentialStore interface {
	// GetAccount retrieves an account by username.
	// Returns ErrUserNotFound if no account exists.
	GetAccount(ctx context.Context, username string) (*Account, error)

	// EnsureAccount retrieves the account for username, creating an empty one
	// if none exists yet.
	EnsureAccount(ctx context.Context, username string) (*Account, error)

	// AddCredential attaches a verified credential to the account.
	// Returns ErrUserNotFound if the account does not exist and
	// ErrCredentialExists if the credential ID is already registered,
	// under this account or any other.
	AddCredential(ctx context.Context, username string, cred *Credential) error

	// UpdateSignCount advances the stored signature counter for a credential
	// after a successful assertion. The update is accepted only when newCount
	// is strictly greater than the stored value; otherwise the credential is
	// flagged, the stored counter stays put, and ErrCloneDetected is returned.
	// Returns ErrCredentialNotFound if the credential is not registered.
	UpdateSignCount(ctx context.Context, username string, credentialID []byte, newCount uint32) error

	// PutChallenge stores the pending challenge for username. A user holds
	// at most one pending challenge; a new issuance replaces the previous
	// one regardless of ceremony type.
	PutChallenge(ctx context.Context, username string, challenge *PendingChallenge) error

	// ConsumeChallenge atomically retrieves and clears the pending challenge
	// for username. Returns ErrNoActiveCeremony if none is stored, the
	// stored one belongs to a different ceremony, or it has expired. A
	// challenge can be consumed at most once.
	ConsumeChallenge(ctx context.Context, username string, ceremony CeremonyType) (*PendingChallenge, error)

	// SweepChallenges removes pending challenges that expired before now and
	// returns how many were removed.
	SweepChallenges(ctx context.Context, now time.Time) (int, error)
}

// ResponseVerifier checks an authenticator response against the challenge it
// was issued for. The production implementation delegates to the go-webauthn
// library; tests may substitute their own.
type ResponseVerifier interface {
	// VerifyRegistration validates an attestation response against the
	// session's challenge, origin, and RP ID, and returns the new credential.
	VerifyRegistration(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)

	// VerifyAuthentication validates an assertion response against the
	// session's challenge, origin, RP ID, and allowed credential list, and
	// returns the credential that signed it with the reported sign count.
	VerifyAuthentication(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

// RegistrationResult reports a completed registration ceremony.
type RegistrationResult struct {
	// Username identifies the account the credential was added to.
	Username string `json:"username"`

	// Credential is the stored credential record.
	Credential *Credential `json:"credential"`
}

// AuthenticationResult reports a completed authentication ceremony.
type AuthenticationResult struct {
	// Username identifies the authenticated account.
	Username string `json:"username"`

	// CredentialID identifies the credential that produced the assertion.
	CredentialID []byte `json:"credential_id"`

	// SignCount is the counter value accepted from this assertion.
	SignCount uint32 `json:"sign_count"`
}
