package chatapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lioneltchami/scribepod/internal/emotion"
)

// sseFrame is one server-sent event. Event is start, delta, emotion,
// end or error.
type sseFrame struct {
	Event      string  `json:"event"`
	SessionID  string  `json:"sessionId,omitempty"`
	PersonaID  string  `json:"personaId,omitempty"`
	Content    string  `json:"content,omitempty"`
	Emotion    string  `json:"emotion,omitempty"`
	Scale      float32 `json:"scale,omitempty"`
	TokenCount int64   `json:"tokenCount,omitempty"`
	Finished   bool    `json:"finished,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// handleStream relays one reply over SSE. Errors before the first byte
// use plain JSON statuses; once the stream is open they become error
// frames on the stream itself.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

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

	sess, err := s.store.Get(r.Context(), sessionID)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	events, err := s.responder.StreamReply(r.Context(), sessionID, payload.Message)
	if err != nil {
		respondSessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sendSSE(w, flusher, sseFrame{
		Event:     "start",
		SessionID: sessionID,
		PersonaID: sess.CurrentPersonaID,
	})

	var full strings.Builder
	for ev := range events {
		switch {
		case ev.Err != nil:
			s.log.ErrorContext(r.Context(), "stream failed",
				"session_id", sessionID, "error", ev.Err)
			sendSSE(w, flusher, sseFrame{Event: "error", SessionID: sessionID, Error: ev.Err.Error()})
			return
		case ev.Done:
			decision := emotion.Analyze(payload.Message, full.String())
			sendSSE(w, flusher, sseFrame{
				Event:     "emotion",
				SessionID: sessionID,
				Emotion:   string(decision.Emotion),
				Scale:     decision.Scale,
			})
			sendSSE(w, flusher, sseFrame{
				Event:      "end",
				SessionID:  sessionID,
				TokenCount: ev.TokenCount,
				Finished:   true,
			})
			return
		case ev.Delta != "":
			full.WriteString(ev.Delta)
			sendSSE(w, flusher, sseFrame{Event: "delta", SessionID: sessionID, Content: ev.Delta})
		}
	}
	// Relay closed without a terminal frame; the client context is gone,
	// so there is nobody left to notify.
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, frame sseFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
