package chatapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lioneltchami/scribepod/internal/persona"
	"github.com/lioneltchami/scribepod/internal/session"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.store.Count(),
	})
}

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"personas": s.personas.List()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaIDs []string `json:"personaIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cast, err := s.resolveCast(payload.PersonaIDs)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.store.Create(r.Context(), cast, s.cfg)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	s.log.InfoContext(r.Context(), "session created",
		"session_id", sess.ID,
		"personas", len(sess.Personas))

	respondJSON(w, http.StatusCreated, map[string]any{
		"session":  sess,
		"greeting": persona.Greeting(cast[0]),
	})
}

// resolveCast maps requested persona ids onto stored profiles. An empty
// request means the full roster.
func (s *Server) resolveCast(ids []string) ([]persona.Profile, error) {
	if len(ids) == 0 {
		return s.personas.List(), nil
	}
	cast := make([]persona.Profile, 0, len(ids))
	for _, id := range ids {
		p, ok := s.personas.FindByID(id)
		if !ok {
			return nil, errors.New("unknown persona " + id)
		}
		cast = append(cast, p)
	}
	return cast, nil
}

// handleMessage serves the non-streaming exchange: the server drains the
// reply stream itself and answers with the finished text.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		respondError(w, http.StatusBadRequest, "message is required")
		return
	}

	events, err := s.responder.StreamReply(r.Context(), sessionID, payload.Message)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	var (
		reply      strings.Builder
		tokenCount int64
	)
	for ev := range events {
		switch {
		case ev.Err != nil:
			s.log.ErrorContext(r.Context(), "reply failed",
				"session_id", sessionID, "error", ev.Err)
			respondError(w, http.StatusBadGateway, ev.Err.Error())
			return
		case ev.Done:
			tokenCount = ev.TokenCount
		default:
			reply.WriteString(ev.Delta)
		}
	}

	sess, err := s.store.Get(r.Context(), sessionID)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"reply":      reply.String(),
		"personaId":  sess.CurrentPersonaID,
		"tokenCount": tokenCount,
		"session":    sess,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	history, err := s.store.History(r.Context(), chi.URLParam(r, "sessionID"), limit, offset)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": history})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSwitchPersona(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		PersonaID string `json:"personaId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.PersonaID == "" {
		respondError(w, http.StatusBadRequest, "personaId is required")
		return
	}

	sess, err := s.store.SwitchPersona(r.Context(), sessionID, payload.PersonaID)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	greeting := ""
	if p, ok := sess.Persona(sess.CurrentPersonaID); ok {
		greeting = persona.Greeting(p)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session":  sess,
		"greeting": greeting,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		respondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondSessionError maps session sentinels onto HTTP statuses.
func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrSessionExpired):
		respondError(w, http.StatusGone, err.Error())
	case errors.Is(err, session.ErrSessionFull):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrPersonaNotInSession), errors.Is(err, session.ErrNoPersonas):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
