// Package api is the browser-facing HTTP surface: call lifecycle, persona
// listing and the admin settings swap.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/dialogue"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/errorsx"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/escalation"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/persona"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/session"
	"github.com/ruturajsolanki/circle-for-life-sub000/pkg/settings"
)

// Calls is the slice of dialogue.Service the API drives.
type Calls interface {
	Start(ctx context.Context, p dialogue.StartParams) (session.CallSession, error)
	ProcessTurn(ctx context.Context, id, requester, text string) (dialogue.TurnResult, error)
	Transcript(id, requester string) (session.CallSession, error)
	Escalate(ctx context.Context, id, requester, reason string) (escalation.Result, error)
	End(ctx context.Context, id, requester string) (session.CallSession, error)
}

// Mounter adds extra routes, such as the voice webhooks.
type Mounter interface {
	Register(mux *http.ServeMux)
}

type Server struct {
	calls    Calls
	personas *persona.Registry
	settings *settings.Store
	auth     *Authenticator
	validate *validator.Validate
	logger   *slog.Logger
	mounts   []Mounter
}

type Option func(*Server)

// WithMount registers additional routes on the same mux.
func WithMount(m Mounter) Option {
	return func(s *Server) { s.mounts = append(s.mounts, m) }
}

func NewServer(calls Calls, personas *persona.Registry, store *settings.Store, auth *Authenticator, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		calls:    calls,
		personas: personas,
		settings: store,
		auth:     auth,
		validate: newValidator(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /api/personas", s.listPersonas)

	mux.Handle("POST /api/calls", s.authed(s.startCall))
	mux.Handle("GET /api/calls/{id}", s.authed(s.getCall))
	mux.Handle("POST /api/calls/{id}/turns", s.authed(s.sendTurn))
	mux.Handle("POST /api/calls/{id}/end", s.authed(s.endCall))
	mux.Handle("POST /api/calls/{id}/escalate", s.authed(s.escalateCall))

	mux.Handle("GET /api/admin/settings", s.admin(s.getSettings))
	mux.Handle("PUT /api/admin/settings", s.admin(s.putSettings))

	for _, m := range s.mounts {
		m.Register(mux)
	}
	return s.accessLog(mux)
}

func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearer(r)
		if raw == "" {
			s.writeError(w, r, errorsx.ErrUnauthorized)
			return
		}
		id, err := s.auth.Verify(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

func (s *Server) admin(next http.HandlerFunc) http.Handler {
	return s.authed(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		if id.Role != RoleAdmin {
			s.writeError(w, r, errorsx.ErrForbidden)
			return
		}
		next(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(started)))
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
