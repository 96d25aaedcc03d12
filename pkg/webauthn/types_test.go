// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

package webauthn

import (
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	webauthnlib "github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveUserID(t *testing.T) {
	id := DeriveUserID("alice")
	assert.Len(t, id, 32)

	// Deterministic per username, distinct across usernames.
	assert.Equal(t, id, DeriveUserID("alice"))
	assert.NotEqual(t, id, DeriveUserID("bob"))
	assert.NotEqual(t, id, DeriveUserID("Alice"))
}

func TestNewAccount(t *testing.T) {
	account := NewAccount("alice")
	assert.Equal(t, "alice", account.Username)
	assert.Equal(t, DeriveUserID("alice"), account.ID)
	assert.Equal(t, "alice", account.DisplayName)
	assert.NotNil(t, account.Credentials)
	assert.Empty(t, account.Credentials)
	assert.False(t, account.CreatedAt.IsZero())
}

func TestAccount_WebAuthnUser(t *testing.T) {
	account := NewAccount("alice")
	account.Credentials = []*Credential{testCredential("cred-1", 7)}

	assert.Equal(t, account.ID, account.WebAuthnID())
	assert.Equal(t, "alice", account.WebAuthnName())
	assert.Equal(t, "alice", account.WebAuthnDisplayName())

	account.DisplayName = "Alice Example"
	assert.Equal(t, "Alice Example", account.WebAuthnDisplayName())

	creds := account.WebAuthnCredentials()
	require.Len(t, creds, 1)
	assert.Equal(t, []byte("cred-1"), creds[0].ID)
	assert.Equal(t, uint32(7), creds[0].Authenticator.SignCount)
}

func TestAccount_CredentialLookup(t *testing.T) {
	account := NewAccount("alice")
	account.Credentials = []*Credential{
		testCredential("cred-1", 0),
		testCredential("cred-2", 0),
	}

	assert.NotNil(t, account.Credential([]byte("cred-2")))
	assert.Nil(t, account.Credential([]byte("cred-3")))

	descs := account.CredentialDescriptors()
	require.Len(t, descs, 2)
	assert.Equal(t, protocol.PublicKeyCredentialType, descs[0].Type)
	assert.Equal(t, protocol.URLEncodedBase64([]byte("cred-1")), descs[0].CredentialID)
}

func TestCredential_ToLibrary(t *testing.T) {
	cred := &Credential{
		ID:              []byte("cred-1"),
		PublicKey:       []byte("cose-key"),
		AttestationType: "none",
		Transports:      []protocol.AuthenticatorTransport{protocol.Internal},
		AAGUID:          []byte("0123456789abcdef"),
		SignCount:       42,
		CloneFlagged:    true,
		BackupEligible:  true,
		BackupState:     true,
	}

	lib := cred.ToLibrary()
	assert.Equal(t, cred.ID, lib.ID)
	assert.Equal(t, cred.PublicKey, lib.PublicKey)
	assert.Equal(t, "none", lib.AttestationType)
	assert.Equal(t, cred.Transports, lib.Transport)
	assert.Equal(t, cred.AAGUID, lib.Authenticator.AAGUID)
	assert.Equal(t, uint32(42), lib.Authenticator.SignCount)
	assert.True(t, lib.Authenticator.CloneWarning)
	assert.True(t, lib.Flags.BackupEligible)
	assert.True(t, lib.Flags.BackupState)
}

func TestFromLibraryCredential(t *testing.T) {
	fallback := []protocol.AuthenticatorTransport{protocol.Internal}
	userID := DeriveUserID("alice")

	wc := &webauthnlib.Credential{
		ID:              []byte("cred-1"),
		PublicKey:       []byte("cose-key"),
		AttestationType: "none",
		Transport:       []protocol.AuthenticatorTransport{protocol.USB},
		Flags:           webauthnlib.CredentialFlags{BackupEligible: true},
		Authenticator: webauthnlib.Authenticator{
			AAGUID:    []byte("0123456789abcdef"),
			SignCount: 3,
		},
	}

	cred := FromLibraryCredential(userID, wc, fallback)
	assert.Equal(t, []byte("cred-1"), cred.ID)
	assert.Equal(t, userID, cred.UserID)
	assert.Equal(t, uint32(3), cred.SignCount)
	assert.True(t, cred.BackupEligible)
	assert.False(t, cred.CreatedAt.IsZero())

	// Reported transports win over the fallback.
	assert.Equal(t, []protocol.AuthenticatorTransport{protocol.USB}, cred.Transports)

	// Platform authenticators often report no transports; the configured
	// defaults fill the gap.
	wc.Transport = nil
	cred = FromLibraryCredential(userID, wc, fallback)
	assert.Equal(t, fallback, cred.Transports)
}

func TestPendingChallenge_Expired(t *testing.T) {
	now := time.Now()

	challenge := &PendingChallenge{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, challenge.Expired(now))
	assert.True(t, challenge.Expired(now.Add(2*time.Minute)))

	// A zero expiry never expires.
	challenge = &PendingChallenge{}
	assert.False(t, challenge.Expired(now.Add(24*time.Hour)))
}
