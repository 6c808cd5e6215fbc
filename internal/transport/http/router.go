// Package httptransport mounts the audit pipeline into the HTTP middleware
// chain. The staff-management endpoints themselves are owned by other
// services; they appear here as stubs so the chain has routes to wrap.
package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the middleware chain and the known route shapes of the
// staff-management API. Middleware order matters: principal extraction must
// run before the audit middleware so events carry identity.
func NewRouter(principal, auditor func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(principal)
	r.Use(auditor)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/sign-in", stub("auth.sign-in"))
		r.Post("/sign-up", stub("auth.sign-up"))
		r.Post("/logout", stub("auth.logout"))
		r.Post("/verify-email", stub("auth.verify-email"))
		r.Post("/resend-verification-code", stub("auth.resend-verification-code"))
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/search", stub("users.search"))
		r.Post("/", stub("users.create"))
		r.Get("/{id}", stub("users.get"))
		r.Put("/{id}", stub("users.update"))
		r.Put("/{userId}/password", stub("users.password"))
		r.Put("/{userId}/role", stub("users.role"))
		r.Put("/{userId}/status", stub("users.status"))
	})

	r.Route("/patients", func(r chi.Router) {
		r.Get("/search", stub("patients.search"))
		r.Post("/", stub("patients.create"))
		r.Get("/{id}", stub("patients.get"))
	})

	r.Post("/admin/bulk-upload", stub("admin.bulk-upload"))

	return r
}

// stub stands in for the externally owned controllers until this harness is
// deployed alongside them.
func stub(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotImplemented)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"message":  "handled by the staff-management services",
			"endpoint": endpoint,
		})
	}
}
