package chatapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lioneltchami/scribepod/internal/completion"
	"github.com/lioneltchami/scribepod/internal/persona"
	"github.com/lioneltchami/scribepod/internal/session"
	"github.com/lioneltchami/scribepod/internal/stream"
)

type fakePort struct {
	deltas []string
	usage  completion.Usage
}

func (p *fakePort) Complete(_ context.Context, _ completion.Params) (completion.Result, error) {
	return completion.Result{Text: strings.Join(p.deltas, ""), Usage: p.usage}, nil
}

func (p *fakePort) CompleteStream(_ context.Context, _ completion.Params) (<-chan completion.StreamEvent, error) {
	ch := make(chan completion.StreamEvent, len(p.deltas)+1)
	for _, d := range p.deltas {
		ch <- completion.StreamEvent{Text: d}
	}
	ch <- completion.StreamEvent{Done: true, Usage: p.usage}
	close(ch)
	return ch, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := session.NewStore()
	port := &fakePort{
		deltas: []string{"Glad you asked! ", "The tricky part is ", "cache invalidation."},
		usage:  completion.Usage{InputTokens: 40, OutputTokens: 12},
	}
	responder := stream.NewResponder(port, store, stream.Config{})
	personas := persona.NewMemoryStore(persona.Seed())
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := NewServer(store, responder, personas, session.DefaultConfig(), log)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func createSession(t *testing.T, ts *httptest.Server, ids ...string) string {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/sessions", map[string]any{"personaIds": ids})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Session  session.Session `json:"session"`
		Greeting string          `json:"greeting"`
	}
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.Session.ID)
	return created.Session.ID
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestListPersonas(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/personas")
	require.NoError(t, err)

	var body struct {
		Personas []persona.Profile `json:"personas"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Personas, 3)
	assert.Equal(t, "alex", body.Personas[0].ID)
}

func TestCreateSessionReturnsGreeting(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/sessions", map[string]any{"personaIds": []string{"alex", "sam"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Session  session.Session `json:"session"`
		Greeting string          `json:"greeting"`
	}
	decodeBody(t, resp, &created)
	assert.Equal(t, "alex", created.Session.CurrentPersonaID)
	assert.Len(t, created.Session.Personas, 2)
	assert.Contains(t, created.Greeting, "Alex")
}

func TestCreateSessionUnknownPersona(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/sessions", map[string]any{"personaIds": []string{"nobody"}})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessageRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts, "alex")

	resp := postJSON(t, ts.URL+"/api/sessions/"+id+"/messages", map[string]string{"message": "what is hard about caching?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Reply      string          `json:"reply"`
		PersonaID  string          `json:"personaId"`
		TokenCount int64           `json:"tokenCount"`
		Session    session.Session `json:"session"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "Glad you asked! The tricky part is cache invalidation.", body.Reply)
	assert.Equal(t, "alex", body.PersonaID)
	assert.Positive(t, body.TokenCount)
	assert.Equal(t, 2, body.Session.MessageCount)

	histResp, err := http.Get(ts.URL + "/api/sessions/" + id + "/history")
	require.NoError(t, err)
	var hist struct {
		Messages []session.Message `json:"messages"`
	}
	decodeBody(t, histResp, &hist)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, session.RoleUser, hist.Messages[0].Role)
	assert.Equal(t, session.RoleAssistant, hist.Messages[1].Role)
	assert.Equal(t, "alex", hist.Messages[1].PersonaID)
}

func TestHistoryPagination(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts, "alex")

	for _, msg := range []string{"first question", "second question"} {
		resp := postJSON(t, ts.URL+"/api/sessions/"+id+"/messages", map[string]string{"message": msg})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/api/sessions/" + id + "/history?limit=2&offset=1")
	require.NoError(t, err)
	var hist struct {
		Messages []session.Message `json:"messages"`
	}
	decodeBody(t, resp, &hist)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, session.RoleAssistant, hist.Messages[0].Role)
	assert.Equal(t, "second question", hist.Messages[1].Content)

	// Garbage parameters fall back to the full transcript.
	resp, err = http.Get(ts.URL + "/api/sessions/" + id + "/history?limit=nope")
	require.NoError(t, err)
	decodeBody(t, resp, &hist)
	assert.Len(t, hist.Messages, 4)
}

func TestSwitchPersonaAndStats(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts, "alex", "jordan")

	resp := postJSON(t, ts.URL+"/api/sessions/"+id+"/persona", map[string]string{"personaId": "jordan"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var switched struct {
		Session  session.Session `json:"session"`
		Greeting string          `json:"greeting"`
	}
	decodeBody(t, resp, &switched)
	assert.Equal(t, "jordan", switched.Session.CurrentPersonaID)
	assert.Contains(t, switched.Greeting, "Jordan")

	badResp := postJSON(t, ts.URL+"/api/sessions/"+id+"/persona", map[string]string{"personaId": "sam"})
	defer badResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode, "sam is not in this session")

	statsResp, err := http.Get(ts.URL + "/api/sessions/" + id + "/stats")
	require.NoError(t, err)
	var stats session.Stats
	decodeBody(t, statsResp, &stats)
	assert.Equal(t, "jordan", stats.CurrentPersonaID)
	assert.ElementsMatch(t, []string{"alex", "jordan"}, stats.PersonaIDs)
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts, "alex")

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/sessions/"+id, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	statsResp, err := http.Get(ts.URL + "/api/sessions/" + id + "/stats")
	require.NoError(t, err)
	statsResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, statsResp.StatusCode)
}

func readSSEFrames(t *testing.T, body io.Reader) []sseFrame {
	t.Helper()
	var frames []sseFrame
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame sseFrame
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		frames = append(frames, frame)
	}
	return frames
}

func TestStreamSSE(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts, "alex")

	resp := postJSON(t, ts.URL+"/api/sessions/"+id+"/stream", map[string]string{"message": "walk me through it"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	frames := readSSEFrames(t, resp.Body)
	require.GreaterOrEqual(t, len(frames), 4, "start, deltas, emotion, end")

	assert.Equal(t, "start", frames[0].Event)
	assert.Equal(t, "alex", frames[0].PersonaID)

	var deltas []string
	for _, f := range frames {
		if f.Event == "delta" {
			deltas = append(deltas, f.Content)
		}
	}
	assert.Equal(t, "Glad you asked! The tricky part is cache invalidation.", strings.Join(deltas, ""))

	emotionFrame := frames[len(frames)-2]
	assert.Equal(t, "emotion", emotionFrame.Event)
	assert.NotEmpty(t, emotionFrame.Emotion)

	end := frames[len(frames)-1]
	assert.Equal(t, "end", end.Event)
	assert.True(t, end.Finished)
	assert.Positive(t, end.TokenCount)

	// The exchange was committed once the stream finished.
	histResp, err := http.Get(ts.URL + "/api/sessions/" + id + "/history")
	require.NoError(t, err)
	var hist struct {
		Messages []session.Message `json:"messages"`
	}
	decodeBody(t, histResp, &hist)
	assert.Len(t, hist.Messages, 2)
}

func TestStreamSSEUnknownSession(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/sessions/ghost/stream", map[string]string{"message": "hello"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebsocketChat(t *testing.T) {
	ts := newTestServer(t)
	id := createSession(t, ts, "alex")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/sessions/" + id
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "give me the short version"}))

	var frames []sseFrame
	for {
		var frame sseFrame
		require.NoError(t, conn.ReadJSON(&frame))
		frames = append(frames, frame)
		if frame.Event == "end" || frame.Event == "error" {
			break
		}
	}

	require.GreaterOrEqual(t, len(frames), 4)
	assert.Equal(t, "start", frames[0].Event)
	assert.Equal(t, "emotion", frames[len(frames)-2].Event)
	assert.Equal(t, "end", frames[len(frames)-1].Event)

	var deltas []string
	for _, f := range frames {
		if f.Event == "delta" {
			deltas = append(deltas, f.Content)
		}
	}
	assert.Equal(t, "Glad you asked! The tricky part is cache invalidation.", strings.Join(deltas, ""))

	// A blank message draws an error frame but keeps the connection.
	require.NoError(t, conn.WriteJSON(map[string]string{"message": "   "}))
	var errFrame sseFrame
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, "error", errFrame.Event)

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "and one more thing"}))
	var second sseFrame
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "start", second.Event)
}
