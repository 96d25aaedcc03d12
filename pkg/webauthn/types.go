// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

package webauthn

import (
	"crypto/sha256"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// CeremonyType identifies which of the two WebAuthn ceremonies a pending
// challenge belongs to. A registration challenge cannot be redeemed by an
// authentication response or vice versa.
type CeremonyType string

const (
	// CeremonyRegistration is the attestation (credential creation) ceremony.
	CeremonyRegistration CeremonyType = "registration"

	// CeremonyAuthentication is the assertion (login) ceremony.
	CeremonyAuthentication CeremonyType = "authentication"
)

// DeriveUserID derives a stable WebAuthn user handle from a username.
// The handle is the SHA-256 digest of the username, giving a fixed 32-byte
// value well under WebAuthn's 64-byte limit with no collision concerns.
func DeriveUserID(username string) []byte {
	sum := sha256.Sum256([]byte(username))
	return sum[:]
}

// Credential represents a registered WebAuthn credential as stored by the
// Relying Party. It wraps the go-webauthn credential with the bookkeeping the
// store needs for replay protection.
type Credential struct {
	// ID is the credential identifier assigned by the authenticator.
	// Credential IDs are globally unique across all users.
	ID []byte `json:"id"`

	// UserID is the user handle this credential belongs to.
	UserID []byte `json:"user_id"`

	// PublicKey is the credential's public key in COSE format.
	PublicKey []byte `json:"public_key"`

	// AttestationType indicates the type of attestation used at registration.
	AttestationType string `json:"attestation_type"`

	// Transports lists the transports reported by the authenticator. If the
	// registration response carried none, the configured defaults apply.
	Transports []protocol.AuthenticatorTransport `json:"transports,omitempty"`

	// AAGUID is the authenticator model identifier.
	AAGUID []byte `json:"aaguid,omitempty"`

	// SignCount is the last signature counter accepted for this credential.
	// An assertion must report a strictly greater value to be accepted.
	SignCount uint32 `json:"sign_count"`

	// CloneFlagged is set when an assertion reported a counter that did not
	// advance past SignCount. Flagged credentials stay usable but should be
	// surfaced for operator review.
	CloneFlagged bool `json:"clone_flagged"`

	// BackupEligible indicates the credential can be synced between devices.
	BackupEligible bool `json:"backup_eligible"`

	// BackupState indicates the credential is currently backed up.
	BackupState bool `json:"backup_state"`

	// CreatedAt is when the credential was registered.
	CreatedAt time.Time `json:"created_at"`

	// LastUsedAt is when the credential last passed authentication.
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
}

// ToLibrary converts the Credential to the go-webauthn library's type.
func (c *Credential) ToLibrary() webauthn.Credential {
	return webauthn.Credential{
		ID:              c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       c.Transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:       c.AAGUID,
			SignCount:    c.SignCount,
			CloneWarning: c.CloneFlagged,
		},
	}
}

// Descriptor returns the credential as a descriptor for exclude and allow
// lists in ceremony options.
func (c *Credential) Descriptor() protocol.CredentialDescriptor {
	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: c.ID,
		Transport:    c.Transports,
	}
}

// FromLibraryCredential builds a Credential record from a freshly verified
// go-webauthn credential. Registration responses from platform authenticators
// frequently omit transports, so fallbackTransports fills the gap to keep
// later allow lists useful.
func FromLibraryCredential(userID []byte, wc *webauthn.Credential, fallbackTransports []protocol.AuthenticatorTransport) *Credential {
	transports := wc.Transport
	if len(transports) == 0 {
		transports = fallbackTransports
	}
	return &Credential{
		ID:              wc.ID,
		UserID:          userID,
		PublicKey:       wc.PublicKey,
		AttestationType: wc.AttestationType,
		Transports:      transports,
		AAGUID:          wc.Authenticator.AAGUID,
		SignCount:       wc.Authenticator.SignCount,
		BackupEligible:  wc.Flags.BackupEligible,
		BackupState:     wc.Flags.BackupState,
		CreatedAt:       time.Now().UTC(),
	}
}

// Account is the Relying Party's view of a user: a stable handle, the
// username it was derived from, and the registered credentials. It implements
// webauthn.User so it can be handed straight to the library.
type Account struct {
	// ID is the WebAuthn user handle, derived from the username.
	ID []byte `json:"id"`

	// Username is the unique account name presented at the API.
	Username string `json:"username"`

	// DisplayName is the human-friendly name shown in authenticator prompts.
	DisplayName string `json:"display_name"`

	// Credentials are the account's registered credentials.
	Credentials []*Credential `json:"credentials"`

	// CreatedAt is when the account was first seen.
	CreatedAt time.Time `json:"created_at"`
}

// NewAccount creates an Account with a handle derived from the username.
func NewAccount(username string) *Account {
	return &Account{
		ID:          DeriveUserID(username),
		Username:    username,
		DisplayName: username,
		Credentials: make([]*Credential, 0),
		CreatedAt:   time.Now().UTC(),
	}
}

// WebAuthnID returns the user handle.
func (a *Account) WebAuthnID() []byte {
	return a.ID
}

// WebAuthnName returns the username.
func (a *Account) WebAuthnName() string {
	return a.Username
}

// WebAuthnDisplayName returns the display name, falling back to the username.
func (a *Account) WebAuthnDisplayName() string {
	if a.DisplayName == "" {
		return a.Username
	}
	return a.DisplayName
}

// WebAuthnCredentials returns the registered credentials in library form.
func (a *Account) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(a.Credentials))
	for i, c := range a.Credentials {
		creds[i] = c.ToLibrary()
	}
	return creds
}

// CredentialDescriptors returns descriptors for all registered credentials,
// used as the exclude list at registration and the allow list at login.
func (a *Account) CredentialDescriptors() []protocol.CredentialDescriptor {
	descs := make([]protocol.CredentialDescriptor, len(a.Credentials))
	for i, c := range a.Credentials {
		descs[i] = c.Descriptor()
	}
	return descs
}

// Credential returns the registered credential with the given ID, or nil.
func (a *Account) Credential(id []byte) *Credential {
	for _, c := range a.Credentials {
		if string(c.ID) == string(id) {
			return c
		}
	}
	return nil
}

// PendingChallenge is an issued, not-yet-redeemed challenge for a single
// user. At most one exists per user; issuing a new one, for either ceremony,
// replaces it.
type PendingChallenge struct {
	// Ceremony is the ceremony type the challenge was issued for.
	Ceremony CeremonyType `json:"ceremony"`

	// Session is the library session data holding the challenge bytes,
	// user handle, allowed credentials, and expiry.
	Session webauthn.SessionData `json:"session"`

	// IssuedAt is when the challenge was created.
	IssuedAt time.Time `json:"issued_at"`

	// ExpiresAt is when the challenge stops being redeemable.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the challenge is past its expiry at the given time.
func (p *PendingChallenge) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}
