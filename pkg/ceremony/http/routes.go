// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts ceremony routes on a chi router.
//
// Example:
//
//	handler := ceremonyhttp.NewHandler(engine)
//	r.Route("/api/v1/webauthn", func(r chi.Router) {
//	    ceremonyhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/registration/begin", h.BeginRegistration)
	r.Post("/registration/finish", h.FinishRegistration)
	r.Get("/registration/status", h.RegistrationStatus)
	r.Post("/authentication/begin", h.BeginAuthentication)
	r.Post("/authentication/finish", h.FinishAuthentication)
}

// MountStdlib mounts ceremony routes on a stdlib http.ServeMux.
// The prefix should not include a trailing slash.
//
// Note: For proper method routing with Go 1.22+, the mux should be configured
// to support method patterns. Otherwise, method checking is done in handlers.
//
// Example:
//
//	handler := ceremonyhttp.NewHandler(engine)
//	ceremonyhttp.MountStdlib(mux, "/api/v1/webauthn", handler)
func MountStdlib(mux *http.ServeMux, prefix string, h *Handler) {
	mux.HandleFunc(prefix+"/registration/begin", h.BeginRegistration)
	mux.HandleFunc(prefix+"/registration/finish", h.FinishRegistration)
	mux.HandleFunc(prefix+"/registration/status", h.RegistrationStatus)
	mux.HandleFunc(prefix+"/authentication/begin", h.BeginAuthentication)
	mux.HandleFunc(prefix+"/authentication/finish", h.FinishAuthentication)
}

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Routes returns a slice of route entries for manual mounting.
// Useful for frameworks not directly supported.
//
// Example:
//
//	handler := ceremonyhttp.NewHandler(engine)
//	for _, route := range handler.Routes() {
//	    router.Add(route.Method, "/webauthn"+route.Path, route.Handler)
//	}
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: "POST", Path: "/registration/begin", Handler: h.BeginRegistration},
		{Method: "POST", Path: "/registration/finish", Handler: h.FinishRegistration},
		{Method: "GET", Path: "/registration/status", Handler: h.RegistrationStatus},
		{Method: "POST", Path: "/authentication/begin", Handler: h.BeginAuthentication},
		{Method: "POST", Path: "/authentication/finish", Handler: h.FinishAuthentication},
	}
}

// HandlerFunc returns a single http.HandlerFunc that routes based on path.
// This is useful when you want a single handler for a path prefix.
//
// Note: This requires the request path to have the prefix already stripped.
//
// Example:
//
//	handler := ceremonyhttp.NewHandler(engine)
//	mux.Handle("/api/v1/webauthn/", http.StripPrefix("/api/v1/webauthn", handler.HandlerFunc()))
func (h *Handler) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/registration/begin":
			h.BeginRegistration(w, r)
		case "/registration/finish":
			h.FinishRegistration(w, r)
		case "/registration/status":
			h.RegistrationStatus(w, r)
		case "/authentication/begin":
			h.BeginAuthentication(w, r)
		case "/authentication/finish":
			h.FinishAuthentication(w, r)
		default:
			http.NotFound(w, r)
		}
	}
}
