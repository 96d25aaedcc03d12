// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts the ceremony routes on a chi router.
//
// Example:
//
//	handler := webauthnhttp.NewHandler(svc)
//	r.Route("/api", func(r chi.Router) {
//	    webauthnhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/register/options", h.RegisterOptions)
	r.Post("/register/verify", h.RegisterVerify)
	r.Get("/register/status", h.RegistrationStatus)
	r.Post("/login/options", h.LoginOptions)
	r.Post("/login/verify", h.LoginVerify)
}

// MountStdlib mounts the ceremony routes on a stdlib http.ServeMux.
// The prefix should not include a trailing slash. Method checking is done
// inside the handlers.
//
// Example:
//
//	handler := webauthnhttp.NewHandler(svc)
//	webauthnhttp.MountStdlib(mux, "/api", handler)
func MountStdlib(mux *http.ServeMux, prefix string, h *Handler) {
	mux.HandleFunc(prefix+"/register/options", h.RegisterOptions)
	mux.HandleFunc(prefix+"/register/verify", h.RegisterVerify)
	mux.HandleFunc(prefix+"/register/status", h.RegistrationStatus)
	mux.HandleFunc(prefix+"/login/options", h.LoginOptions)
	mux.HandleFunc(prefix+"/login/verify", h.LoginVerify)
}

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Routes returns the route table for manual mounting on other routers.
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: "POST", Path: "/register/options", Handler: h.RegisterOptions},
		{Method: "POST", Path: "/register/verify", Handler: h.RegisterVerify},
		{Method: "GET", Path: "/register/status", Handler: h.RegistrationStatus},
		{Method: "POST", Path: "/login/options", Handler: h.LoginOptions},
		{Method: "POST", Path: "/login/verify", Handler: h.LoginVerify},
	}
}
