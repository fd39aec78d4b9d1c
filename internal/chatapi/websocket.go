package chatapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/lioneltchami/scribepod/internal/emotion"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsInbound struct {
	Message string `json:"message"`
}

// handleWebsocket serves the same reply stream over a websocket. The
// client sends {"message": "..."} frames; each one produces a start /
// delta* / emotion / end sequence (or an error frame). Replies are
// sequential per connection.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := s.store.Get(r.Context(), sessionID); err != nil {
		respondSessionError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.ErrorContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.InfoContext(r.Context(), "websocket closed", "session_id", sessionID, "error", err)
			}
			return
		}
		if strings.TrimSpace(in.Message) == "" {
			if err := conn.WriteJSON(sseFrame{Event: "error", SessionID: sessionID, Error: "message is required"}); err != nil {
				return
			}
			continue
		}
		if !s.relayOverWebsocket(conn, r, sessionID, in.Message) {
			return
		}
	}
}

// relayOverWebsocket runs one exchange. It returns false when the
// connection is no longer usable.
func (s *Server) relayOverWebsocket(conn *websocket.Conn, r *http.Request, sessionID, message string) bool {
	sess, err := s.store.Get(r.Context(), sessionID)
	if err != nil {
		return conn.WriteJSON(sseFrame{Event: "error", SessionID: sessionID, Error: err.Error()}) == nil
	}

	events, err := s.responder.StreamReply(r.Context(), sessionID, message)
	if err != nil {
		return conn.WriteJSON(sseFrame{Event: "error", SessionID: sessionID, Error: err.Error()}) == nil
	}

	if err := conn.WriteJSON(sseFrame{Event: "start", SessionID: sessionID, PersonaID: sess.CurrentPersonaID}); err != nil {
		return false
	}

	var full strings.Builder
	for ev := range events {
		switch {
		case ev.Err != nil:
			return conn.WriteJSON(sseFrame{Event: "error", SessionID: sessionID, Error: ev.Err.Error()}) == nil
		case ev.Done:
			decision := emotion.Analyze(message, full.String())
			if err := conn.WriteJSON(sseFrame{
				Event:     "emotion",
				SessionID: sessionID,
				Emotion:   string(decision.Emotion),
				Scale:     decision.Scale,
			}); err != nil {
				return false
			}
			return conn.WriteJSON(sseFrame{
				Event:      "end",
				SessionID:  sessionID,
				TokenCount: ev.TokenCount,
				Finished:   true,
			}) == nil
		case ev.Delta != "":
			full.WriteString(ev.Delta)
			if err := conn.WriteJSON(sseFrame{Event: "delta", SessionID: sessionID, Content: ev.Delta}); err != nil {
				return false
			}
		}
	}
	return true
}
