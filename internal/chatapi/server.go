// Package chatapi is the HTTP surface for interactive persona chat:
// session management, one-shot replies, and streamed replies over SSE
// or websocket.
package chatapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lioneltchami/scribepod/internal/persona"
	"github.com/lioneltchami/scribepod/internal/session"
	"github.com/lioneltchami/scribepod/internal/stream"
)

// Server holds the handler dependencies. Construct with NewServer and
// mount Router on an http.Server.
type Server struct {
	store     *session.Store
	responder *stream.Responder
	personas  *persona.MemoryStore
	cfg       session.Config
	log       *slog.Logger
}

func NewServer(store *session.Store, responder *stream.Responder, personas *persona.MemoryStore, cfg session.Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:     store,
		responder: responder,
		personas:  personas,
		cfg:       cfg,
		log:       log,
	}
}

// Router wires all routes behind standard middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", s.handleHealth)
		api.Get("/personas", s.handleListPersonas)

		api.Post("/sessions", s.handleCreateSession)
		api.Route("/sessions/{sessionID}", func(sr chi.Router) {
			sr.Post("/messages", s.handleMessage)
			sr.Post("/stream", s.handleStream)
			sr.Get("/history", s.handleHistory)
			sr.Get("/stats", s.handleStats)
			sr.Post("/persona", s.handleSwitchPersona)
			sr.Delete("/", s.handleDeleteSession)
		})
	})

	r.Get("/ws/sessions/{sessionID}", s.handleWebsocket)

	return r
}

// SweepLoop removes expired sessions every interval until ctx ends. The
// store never sweeps itself; the server owns the schedule.
func (s *Server) SweepLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.store.SweepExpired(ctx, time.Now().UTC()); n > 0 {
				s.log.InfoContext(ctx, "swept expired sessions", "count", n)
			}
		}
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
