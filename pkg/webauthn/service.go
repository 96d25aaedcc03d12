// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

package webauthn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Service orchestrates the registration and authentication ceremonies.
//
// Each ceremony is a strict two-phase exchange per user: Begin issues options
// with a fresh challenge and records it as the user's pending challenge for
// that ceremony type; Finish consumes the pending challenge and verifies the
// response against it. The pending challenge is consumed before verification,
// so a failed attempt cannot be retried against the same challenge.
type Service struct {
	web        *webauthn.WebAuthn
	config     *Config
	store      CredentialStore
	verifier   ResponseVerifier
	logger     *slog.Logger
	configured bool
}

// ServiceParams contains dependencies for creating a ceremony service.
type ServiceParams struct {
	// Config is the WebAuthn configuration (required).
	Config *Config

	// Store owns accounts, credentials, and pending challenges (required).
	Store CredentialStore

	// Verifier validates authenticator responses. If nil, the go-webauthn
	// library verifier built from Config is used.
	Verifier ResponseVerifier

	// Logger receives ceremony diagnostics. If nil, logging is disabled.
	Logger *slog.Logger
}

// NewService creates a ceremony service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	web, err := webauthn.New(params.Config.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	verifier := params.Verifier
	if verifier == nil {
		verifier = &LibraryVerifier{web: web}
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Service{
		web:        web,
		config:     params.Config,
		store:      params.Store,
		verifier:   verifier,
		logger:     logger,
		configured: true,
	}, nil
}

// BeginRegistration starts the registration ceremony for username. The
// account is created on first contact. Options carry a fresh challenge and an
// exclude list with every credential the account already has, and the
// challenge becomes the account's single pending challenge, replacing any
// earlier one from either ceremony.
func (s *Service) BeginRegistration(ctx context.Context, username string) (*protocol.CredentialCreation, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if username == "" {
		return nil, NewError("webauthn.BeginRegistration", fmt.Errorf("%w: username is required", ErrInvalidInput))
	}

	account, err := s.store.EnsureAccount(ctx, username)
	if err != nil {
		return nil, WrapError("webauthn.BeginRegistration: ensure account", err)
	}

	options, session, err := s.web.BeginRegistration(account,
		webauthn.WithExclusions(account.CredentialDescriptors()),
	)
	if err != nil {
		return nil, WrapError("webauthn.BeginRegistration", err)
	}

	if err := s.putChallenge(ctx, username, CeremonyRegistration, session); err != nil {
		return nil, err
	}

	s.logger.Debug("registration ceremony started",
		slog.String("username", username),
		slog.Int("excluded", len(account.Credentials)))

	return options, nil
}

// FinishRegistration completes the registration ceremony. The pending
// registration challenge is consumed whether or not verification succeeds.
// On success the new credential is attached to the account with its initial
// signature counter taken from the attestation.
func (s *Service) FinishRegistration(ctx context.Context, username string, response *protocol.ParsedCredentialCreationData) (*RegistrationResult, error) {
	const op = "webauthn.FinishRegistration"

	if !s.configured {
		return nil, ErrNotConfigured
	}
	if username == "" {
		return nil, NewError(op, fmt.Errorf("%w: username is required", ErrInvalidInput))
	}
	if response == nil {
		return nil, NewError(op, fmt.Errorf("%w: response is required", ErrInvalidInput))
	}

	account, err := s.store.GetAccount(ctx, username)
	if err != nil {
		if IsUserNotFound(err) {
			return nil, NewError(op, ErrNoActiveCeremony)
		}
		return nil, WrapError(op+": get account", err)
	}

	challenge, err := s.store.ConsumeChallenge(ctx, username, CeremonyRegistration)
	if err != nil {
		return nil, WrapError(op, err)
	}

	verified, err := s.verifier.VerifyRegistration(account, challenge.Session, response)
	if err != nil {
		s.logger.Warn("registration verification failed",
			slog.String("username", username),
			slog.String("error", err.Error()))
		return nil, rejection(op, err)
	}

	cred := FromLibraryCredential(account.ID, verified, s.config.defaultTransports())
	if err := s.store.AddCredential(ctx, username, cred); err != nil {
		return nil, WrapError(op+": store credential", err)
	}

	s.logger.Info("credential registered",
		slog.String("username", username),
		slog.Int("credential_id_len", len(cred.ID)),
		slog.Uint64("sign_count", uint64(cred.SignCount)))

	return &RegistrationResult{Username: username, Credential: cred}, nil
}

// BeginAuthentication starts the authentication ceremony for username.
// Returns ErrNotRegistered when the account is unknown or has no credentials.
// Options carry a fresh challenge and an allow list restricted to the
// account's credentials, and the challenge becomes the account's single
// pending challenge, replacing any earlier one from either ceremony.
func (s *Service) BeginAuthentication(ctx context.Context, username string) (*protocol.CredentialAssertion, error) {
	const op = "webauthn.BeginAuthentication"

	if !s.configured {
		return nil, ErrNotConfigured
	}
	if username == "" {
		return nil, NewError(op, fmt.Errorf("%w: username is required", ErrInvalidInput))
	}

	account, err := s.store.GetAccount(ctx, username)
	if err != nil {
		if IsUserNotFound(err) {
			return nil, NewError(op, ErrNotRegistered)
		}
		return nil, WrapError(op+": get account", err)
	}
	if len(account.Credentials) == 0 {
		return nil, NewError(op, ErrNotRegistered)
	}

	options, session, err := s.web.BeginLogin(account)
	if err != nil {
		return nil, WrapError(op, err)
	}

	if err := s.putChallenge(ctx, username, CeremonyAuthentication, session); err != nil {
		return nil, err
	}

	s.logger.Debug("authentication ceremony started",
		slog.String("username", username),
		slog.Int("allowed", len(account.Credentials)))

	return options, nil
}

// FinishAuthentication completes the authentication ceremony. The pending
// authentication challenge is consumed whether or not verification succeeds.
// After cryptographic verification the stored signature counter must advance
// strictly; a counter that stays or regresses flags the credential and fails
// the ceremony with ErrCloneDetected.
func (s *Service) FinishAuthentication(ctx context.Context, username string, response *protocol.ParsedCredentialAssertionData) (*AuthenticationResult, error) {
	const op = "webauthn.FinishAuthentication"

	if !s.configured {
		return nil, ErrNotConfigured
	}
	if username == "" {
		return nil, NewError(op, fmt.Errorf("%w: username is required", ErrInvalidInput))
	}
	if response == nil {
		return nil, NewError(op, fmt.Errorf("%w: response is required", ErrInvalidInput))
	}

	account, err := s.store.GetAccount(ctx, username)
	if err != nil {
		if IsUserNotFound(err) {
			return nil, NewError(op, ErrNotRegistered)
		}
		return nil, WrapError(op+": get account", err)
	}
	if len(account.Credentials) == 0 {
		return nil, NewError(op, ErrNotRegistered)
	}

	challenge, err := s.store.ConsumeChallenge(ctx, username, CeremonyAuthentication)
	if err != nil {
		return nil, WrapError(op, err)
	}

	verified, err := s.verifier.VerifyAuthentication(account, challenge.Session, response)
	if err != nil {
		s.logger.Warn("authentication verification failed",
			slog.String("username", username),
			slog.String("error", err.Error()))
		return nil, rejection(op, err)
	}

	newCount := verified.Authenticator.SignCount
	if err := s.store.UpdateSignCount(ctx, username, verified.ID, newCount); err != nil {
		if IsCloneDetected(err) {
			s.logger.Warn("signature counter did not advance",
				slog.String("username", username),
				slog.Uint64("reported", uint64(newCount)))
		}
		return nil, WrapError(op, err)
	}

	s.logger.Info("authentication verified",
		slog.String("username", username),
		slog.Uint64("sign_count", uint64(newCount)))

	return &AuthenticationResult{
		Username:     username,
		CredentialID: verified.ID,
		SignCount:    newCount,
	}, nil
}

// IsRegistered reports whether username has at least one credential.
func (s *Service) IsRegistered(ctx context.Context, username string) (bool, error) {
	if !s.configured {
		return false, ErrNotConfigured
	}
	if username == "" {
		return false, NewError("webauthn.IsRegistered", fmt.Errorf("%w: username is required", ErrInvalidInput))
	}

	account, err := s.store.GetAccount(ctx, username)
	if err != nil {
		if IsUserNotFound(err) {
			return false, nil
		}
		return false, WrapError("webauthn.IsRegistered", err)
	}
	return len(account.Credentials) > 0, nil
}

// SweepExpiredChallenges drops expired pending challenges from the store.
func (s *Service) SweepExpiredChallenges(ctx context.Context) (int, error) {
	if !s.configured {
		return 0, ErrNotConfigured
	}
	removed, err := s.store.SweepChallenges(ctx, time.Now())
	if err != nil {
		return 0, WrapError("webauthn.SweepExpiredChallenges", err)
	}
	if removed > 0 {
		s.logger.Debug("expired challenges swept", slog.Int("removed", removed))
	}
	return removed, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// putChallenge records session as the pending challenge for (username,
// ceremony) with the configured TTL.
func (s *Service) putChallenge(ctx context.Context, username string, ceremony CeremonyType, session *webauthn.SessionData) error {
	now := time.Now().UTC()
	expires := now.Add(s.config.ChallengeTTL)
	if !session.Expires.IsZero() && session.Expires.Before(expires) {
		expires = session.Expires
	}

	challenge := &PendingChallenge{
		Ceremony:  ceremony,
		Session:   *session,
		IssuedAt:  now,
		ExpiresAt: expires,
	}
	if err := s.store.PutChallenge(ctx, username, challenge); err != nil {
		return WrapError("webauthn.putChallenge", err)
	}
	return nil
}
