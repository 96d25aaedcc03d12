// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

package webauthn

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMockAuthenticator(t *testing.T) {
	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	assert.Len(t, mock.AAGUID, 16)
	assert.Len(t, mock.CredentialID, 32)
	assert.Equal(t, uint32(0), mock.SignCount)
	assert.True(t, mock.UserPresent)
	assert.True(t, mock.UserVerified)

	// Options override the defaults.
	custom, err := NewMockAuthenticator("example.com",
		WithAAGUID(bytes.Repeat([]byte{0xAB}, 16)),
		WithCredentialID([]byte("fixed-credential-id")),
		WithSignCount(9),
		WithUserVerified(false),
	)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0xAB}, 16), custom.AAGUID)
	assert.Equal(t, []byte("fixed-credential-id"), custom.CredentialID)
	assert.Equal(t, uint32(9), custom.SignCount)
	assert.False(t, custom.UserVerified)
}

func TestMockAuthenticator_PublicKeyBytes(t *testing.T) {
	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	keyBytes, err := mock.PublicKeyBytes()
	require.NoError(t, err)
	require.NotEmpty(t, keyBytes)

	// The COSE encoding must parse back into an EC2 key.
	parsed, err := webauthncose.ParsePublicKey(keyBytes)
	require.NoError(t, err)
	_, ok := parsed.(webauthncose.EC2PublicKeyData)
	assert.True(t, ok)
}

func TestMockAuthenticator_RegistrationResponse(t *testing.T) {
	mock, err := NewMockAuthenticator("example.com", WithSignCount(2))
	require.NoError(t, err)

	challenge := []byte("registration-challenge")
	resp, err := mock.CreateRegistrationResponse(challenge, "https://example.com")
	require.NoError(t, err)

	assert.Equal(t, "webauthn.create", string(resp.Response.CollectedClientData.Type))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(challenge),
		resp.Response.CollectedClientData.Challenge)
	assert.Equal(t, "https://example.com", resp.Response.CollectedClientData.Origin)

	authData := resp.Response.AttestationObject.AuthData
	rpIDHash := sha256.Sum256([]byte("example.com"))
	assert.Equal(t, rpIDHash[:], authData.RPIDHash)
	assert.Equal(t, uint32(2), authData.Counter)
	assert.True(t, authData.Flags.UserPresent())
	assert.True(t, authData.Flags.UserVerified())
	assert.True(t, authData.Flags.HasAttestedCredentialData())
	assert.Equal(t, mock.CredentialID, authData.AttData.CredentialID)
	assert.Equal(t, "none", resp.Response.AttestationObject.Format)
}

func TestMockAuthenticator_RegistrationResponseRoundTrip(t *testing.T) {
	// The raw response must survive the wire format a browser would produce.
	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	resp, err := mock.CreateRegistrationResponse([]byte("challenge"), "https://example.com")
	require.NoError(t, err)

	body, err := json.Marshal(resp.Raw)
	require.NoError(t, err)

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, mock.CredentialID, []byte(parsed.RawID))
	assert.Equal(t, "none", parsed.Response.AttestationObject.Format)
	assert.Equal(t, mock.CredentialID, parsed.Response.AttestationObject.AuthData.AttData.CredentialID)
}

func TestMockAuthenticator_AssertionSignature(t *testing.T) {
	mock, err := NewMockAuthenticator("example.com", WithSignCount(4))
	require.NoError(t, err)

	challenge := []byte("assertion-challenge")
	resp, err := mock.CreateAuthenticationResponse(challenge, DeriveUserID("alice"), "https://example.com")
	require.NoError(t, err)

	assert.Equal(t, "webauthn.get", string(resp.Response.CollectedClientData.Type))
	assert.Equal(t, uint32(4), resp.Response.AuthenticatorData.Counter)
	assert.Equal(t, DeriveUserID("alice"), []byte(resp.Response.UserHandle))

	// The signature must verify against the COSE public key over
	// authData || SHA-256(clientDataJSON).
	keyBytes, err := mock.PublicKeyBytes()
	require.NoError(t, err)
	parsedKey, err := webauthncose.ParsePublicKey(keyBytes)
	require.NoError(t, err)

	clientDataHash := sha256.Sum256(resp.Raw.AssertionResponse.ClientDataJSON)
	signedData := append([]byte{}, resp.Raw.AssertionResponse.AuthenticatorData...)
	signedData = append(signedData, clientDataHash[:]...)

	valid, err := webauthncose.VerifySignature(parsedKey, signedData, resp.Response.Signature)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestMockAuthenticator_SetSignCount(t *testing.T) {
	mock, err := NewMockAuthenticator("example.com")
	require.NoError(t, err)

	mock.SetSignCount(7)
	resp, err := mock.CreateAuthenticationResponse([]byte("c"), nil, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), resp.Response.AuthenticatorData.Counter)

	// The counter is caller controlled and does not advance on its own.
	resp, err = mock.CreateAuthenticationResponse([]byte("c"), nil, "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), resp.Response.AuthenticatorData.Counter)
}
