// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/passkeyd/passkeyd/pkg/metrics"
	"github.com/passkeyd/passkeyd/pkg/webauthn"
)

// Handler provides HTTP handlers for the WebAuthn ceremony endpoints.
// These handlers can be mounted on any HTTP router.
type Handler struct {
	service *webauthn.Service
	logger  *slog.Logger
}

// NewHandler creates a new ceremony HTTP handler.
func NewHandler(service *webauthn.Service) *Handler {
	return &Handler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the handler.
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// RegisterOptions handles POST /register/options
//
// Request body:
//
//	{"username": "alice"}
//
// Response: WebAuthn PublicKeyCredentialCreationOptions. The account is
// created on first contact; re-registering an existing account adds a
// credential, with existing ones excluded.
func (h *Handler) RegisterOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req OptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		h.writeError(w, http.StatusBadRequest, "Username required")
		return
	}

	start := time.Now()
	options, err := h.service.BeginRegistration(r.Context(), req.Username)
	if err != nil {
		metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.PhaseOptions, metrics.StatusError, time.Since(start).Seconds())
		h.handleOptionsError(w, err)
		return
	}
	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.PhaseOptions, metrics.StatusSuccess, time.Since(start).Seconds())

	h.writeJSON(w, http.StatusOK, options)
}

// RegisterVerify handles POST /register/verify
//
// Request body:
//
//	{"username": "alice", "response": {...authenticator attestation...}}
//
// Response: {"verified": true} on success, otherwise
// {"verified": false, "error": "<code>"} with status 400.
func (h *Handler) RegisterVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeVerifyFailure(w, metrics.CeremonyRegistration, webauthn.ErrInvalidInput)
		return
	}
	if req.Username == "" {
		h.writeError(w, http.StatusBadRequest, "Username required")
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		h.writeVerifyFailure(w, metrics.CeremonyRegistration, webauthn.ErrInvalidInput)
		return
	}

	start := time.Now()
	if _, err := h.service.FinishRegistration(r.Context(), req.Username, response); err != nil {
		metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.PhaseVerify, metrics.StatusError, time.Since(start).Seconds())
		h.writeVerifyFailure(w, metrics.CeremonyRegistration, err)
		return
	}
	metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.PhaseVerify, metrics.StatusSuccess, time.Since(start).Seconds())

	h.writeJSON(w, http.StatusOK, VerifyResponse{Verified: true})
}

// LoginOptions handles POST /login/options
//
// Request body:
//
//	{"username": "alice"}
//
// Response: WebAuthn PublicKeyCredentialRequestOptions with the allow list
// restricted to the account's credentials. A user without credentials gets
// status 400 before any challenge is issued.
func (h *Handler) LoginOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req OptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		h.writeError(w, http.StatusBadRequest, "Username required")
		return
	}

	start := time.Now()
	options, err := h.service.BeginAuthentication(r.Context(), req.Username)
	if err != nil {
		metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.PhaseOptions, metrics.StatusError, time.Since(start).Seconds())
		h.handleOptionsError(w, err)
		return
	}
	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.PhaseOptions, metrics.StatusSuccess, time.Since(start).Seconds())

	h.writeJSON(w, http.StatusOK, options)
}

// LoginVerify handles POST /login/verify
//
// Request body:
//
//	{"username": "alice", "response": {...authenticator assertion...}}
//
// Response: {"verified": true} on success, otherwise
// {"verified": false, "error": "<code>"} with status 400.
func (h *Handler) LoginVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeVerifyFailure(w, metrics.CeremonyAuthentication, webauthn.ErrInvalidInput)
		return
	}
	if req.Username == "" {
		h.writeError(w, http.StatusBadRequest, "Username required")
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		h.writeVerifyFailure(w, metrics.CeremonyAuthentication, webauthn.ErrInvalidInput)
		return
	}

	start := time.Now()
	if _, err := h.service.FinishAuthentication(r.Context(), req.Username, response); err != nil {
		metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.PhaseVerify, metrics.StatusError, time.Since(start).Seconds())
		h.writeVerifyFailure(w, metrics.CeremonyAuthentication, err)
		return
	}
	metrics.RecordCeremony(metrics.CeremonyAuthentication, metrics.PhaseVerify, metrics.StatusSuccess, time.Since(start).Seconds())

	h.writeJSON(w, http.StatusOK, VerifyResponse{Verified: true})
}

// RegistrationStatus handles GET /register/status
//
// Query param: username
// Response: {"registered": true/false}
func (h *Handler) RegistrationStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	username := r.URL.Query().Get("username")
	if username == "" {
		h.writeError(w, http.StatusBadRequest, "Username required")
		return
	}

	registered, err := h.service.IsRegistered(r.Context(), username)
	if err != nil {
		h.handleOptionsError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, RegistrationStatusResponse{Registered: registered})
}

// handleOptionsError maps service errors on the options endpoints.
func (h *Handler) handleOptionsError(w http.ResponseWriter, err error) {
	switch {
	case webauthn.IsNotRegistered(err):
		h.writeError(w, http.StatusBadRequest, "User not registered")
	case webauthn.IsInvalidInput(err):
		h.writeError(w, http.StatusBadRequest, "Username required")
	default:
		h.logger.Error("ceremony options failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeVerifyFailure maps a failed verification to the verify response shape.
// Detail stays in the server log; the client only sees a stable code.
func (h *Handler) writeVerifyFailure(w http.ResponseWriter, ceremony string, err error) {
	status := http.StatusBadRequest
	var code string
	switch {
	case webauthn.IsCloneDetected(err):
		code = ErrorCodeCloneDetected
		metrics.RecordCloneDetected()
	case webauthn.IsNoActiveCeremony(err):
		code = ErrorCodeNoActiveCeremony
	case webauthn.IsNotRegistered(err):
		code = ErrorCodeNotRegistered
	case webauthn.IsCredentialExists(err):
		code = ErrorCodeCredentialExists
	case webauthn.IsVerificationFailed(err):
		code = ErrorCodeVerificationFailed
	case webauthn.IsInvalidInput(err):
		code = ErrorCodeInvalidRequest
	default:
		h.logger.Error("ceremony verification failed", "error", err)
		status = http.StatusInternalServerError
		code = ErrorCodeInternalError
	}
	metrics.RecordVerificationError(ceremony, code)

	if status == http.StatusBadRequest {
		h.logger.Warn("ceremony rejected", "code", code, "error", err)
	}
	h.writeJSON(w, status, VerifyResponse{Verified: false, Error: code})
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.logger.Error("failed to encode JSON response",
			"error", err,
			"status", status)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: message})
}
