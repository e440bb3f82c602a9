// Package httpapi exposes the coordinator over HTTP: a small JSON API for
// session and whitelist management plus a WebSocket feed of classification
// verdicts.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/karstvig/focusd/coordinator"
)

// Server wires the coordinator's operations onto a chi router.
type Server struct {
	coord  *coordinator.Coordinator
	hub    *Hub
	logger *slog.Logger

	// passwordHash guards every route when set. Empty means open,
	// which is fine for a loopback-only listener.
	passwordHash []byte
}

type Option func(*Server)

// WithPasswordHash enables Basic Auth with the given bcrypt hash.
func WithPasswordHash(hash []byte) Option {
	return func(s *Server) { s.passwordHash = hash }
}

func New(coord *coordinator.Coordinator, hub *Hub, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{coord: coord, hub: hub, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the fully routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/ws", s.hub.ServeHTTP)

		r.Route("/api/session", func(r chi.Router) {
			r.Post("/", s.handleStartSession)
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleEndSession)
			r.Post("/pause", s.handlePauseSession)
			r.Post("/resume", s.handleResumeSession)
		})

		r.Route("/api/whitelist", func(r chi.Router) {
			r.Get("/", s.handleListWhitelist)
			r.Post("/", s.handleAddWhitelist)
			r.Delete("/", s.handleRemoveWhitelist)
		})

		r.Get("/api/focus/daily", s.handleDailyFocus)
		r.Post("/api/limit/reset", s.handleResetLimit)
		r.Post("/api/badge", s.handleSetBadge)
	})

	return r
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.passwordHash) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		_, pass, ok := r.BasicAuth()
		if !ok || bcrypt.CompareHashAndPassword(s.passwordHash, []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="focusd"`)
			writeJSON(w, 401, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Focus string `json:"focus"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	if req.Focus == "" {
		writeJSON(w, 400, map[string]string{"error": "focus required"})
		return
	}
	sess, err := s.coord.StartSession(r.Context(), req.Focus)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.hub.Broadcast("session", sess)
	writeJSON(w, 201, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.coord.Session(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, 200, sess)
}

func (s *Server) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.coord.PauseSession(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.hub.Broadcast("session", sess)
	writeJSON(w, 200, sess)
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.coord.ResumeSession(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.hub.Broadcast("session", sess)
	writeJSON(w, 200, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.coord.EndSession(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.hub.Broadcast("session", sess)
	writeJSON(w, 200, sess)
}

func (s *Server) handleListWhitelist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.coord.Whitelist(r.Context())
	if err != nil {
		writeError(w, 500, err)
		return
	}
	if entries == nil {
		entries = []string{}
	}
	writeJSON(w, 200, entries)
}

func (s *Server) handleAddWhitelist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	if req.URL == "" {
		writeJSON(w, 400, map[string]string{"error": "url required"})
		return
	}
	if err := s.coord.AddToWhitelist(r.Context(), req.URL); err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 201, map[string]string{"status": "added"})
}

// handleRemoveWhitelist takes the entry as a query parameter, since a
// URL entry cannot travel in a path segment.
func (s *Server) handleRemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	entry := r.URL.Query().Get("url")
	if entry == "" {
		writeJSON(w, 400, map[string]string{"error": "url required"})
		return
	}
	if err := s.coord.RemoveFromWhitelist(r.Context(), entry); err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "removed"})
}

func (s *Server) handleDailyFocus(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	if from == "" {
		day, err := s.coord.DailyFocus(r.Context(), time.Now().Format("2006-01-02"))
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, day)
		return
	}
	days, err := s.coord.DailyFocusSince(r.Context(), from)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, days)
}

func (s *Server) handleSetBadge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	if err := s.coord.SetActiveBadge(r.Context(), req.State); err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) handleResetLimit(w http.ResponseWriter, _ *http.Request) {
	s.coord.ResetLimit()
	writeJSON(w, 200, map[string]string{"status": "reset"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrNoSession):
		return 404
	case errors.Is(err, coordinator.ErrSessionExists),
		errors.Is(err, coordinator.ErrAlreadyPaused),
		errors.Is(err, coordinator.ErrNotPaused):
		return 409
	default:
		return 500
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
