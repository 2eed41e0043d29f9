// Package httpapi exposes the account, session and note services over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/and161185/secure-notes/internal/metrics"
	"github.com/and161185/secure-notes/internal/service"
)

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Accounts service.AccountService
	Sessions service.SessionService
	Notes    service.NoteService
	Metrics  metrics.Recorder
	// MetricsHandler serves /metrics; nil leaves the route out.
	MetricsHandler http.Handler
	// Ready backs /healthz; nil always reports ok.
	Ready     func(context.Context) error
	AuthLimit RateConfig
	// RequestTimeout bounds each request; 0 leaves requests unbounded.
	RequestTimeout time.Duration
	Log            *zap.Logger
}

type api struct {
	accounts service.AccountService
	sessions service.SessionService
	notes    service.NoteService
	log      *zap.Logger
}

// NewRouter wires routes and middleware.
func NewRouter(d Deps) http.Handler {
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	a := &api{accounts: d.Accounts, sessions: d.Sessions, notes: d.Notes, log: d.Log}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(accessLog(d.Log, d.Metrics))
	r.Use(recoverer(d.Log))
	if d.RequestTimeout > 0 {
		r.Use(chimw.Timeout(d.RequestTimeout))
	}

	r.Get("/healthz", healthz(d.Ready))
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		if d.AuthLimit.RPS > 0 {
			r.Use(newIPRateLimiter(d.AuthLimit).middleware(d.Log))
		}
		r.Post("/signup", a.signup)
		r.Put("/verify-account", a.verifyAccount)
		r.Put("/regenerate-otp", a.regenerateOTP)
		r.Post("/login", a.login)
		r.Post("/refresh", a.refresh)
		r.With(bearerAuth(d.Sessions, d.Log)).Post("/logout", a.logout)
	})

	r.Route("/notes", func(r chi.Router) {
		r.Use(bearerAuth(d.Sessions, d.Log))
		r.Post("/", a.createNote)
		r.Get("/", a.listNotes)
		r.Get("/search", a.searchNotes)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getNote)
			r.Put("/", a.updateNote)
			r.Delete("/", a.deleteNote)
			r.Put("/password", a.setNotePassword)
			r.Delete("/password", a.clearNotePassword)
		})
	})

	return r
}

func healthz(ready func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
