package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lioneltchami/scribepod/internal/persona"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	current := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	st := NewStore()
	st.now = func() time.Time { return current }
	return st, &current
}

func TestCreateAndGet(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := st.Create(ctx, persona.Seed(), Config{})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "alex", sess.CurrentPersonaID, "first persona starts active")
	assert.Equal(t, 200, sess.Config.MaxMessages, "zero config takes defaults")
	assert.Equal(t, 30*time.Minute, sess.Config.TTL)

	got, err := st.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Len(t, got.Personas, 3)

	// Snapshots are isolated from store state.
	got.Personas[0].Name = "Mallory"
	again, err := st.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alex Chen", again.Personas[0].Name)

	_, err = st.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = st.Create(ctx, nil, Config{})
	assert.ErrorIs(t, err, ErrNoPersonas)
}

func TestMessageCapEnforced(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := st.Create(ctx, persona.Seed(), Config{MaxMessages: 2})
	require.NoError(t, err)

	_, err = st.AddUserMessage(ctx, sess.ID, "what got you into distributed systems?")
	require.NoError(t, err)
	_, err = st.AddAssistantMessage(ctx, sess.ID, "A pager and a bad replication bug, honestly.", 12)
	require.NoError(t, err)

	_, err = st.AddUserMessage(ctx, sess.ID, "tell me more")
	assert.ErrorIs(t, err, ErrSessionFull)

	stats, err := st.Stats(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MessageCount, "rejected message leaves counters untouched")
}

func TestTokenBudgetEnforced(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := st.Create(ctx, persona.Seed(), Config{MaxTokens: 10})
	require.NoError(t, err)

	// 28 chars estimates to 7 tokens.
	_, err = st.AddUserMessage(ctx, sess.ID, "a message of twenty-eight ch")
	require.NoError(t, err)

	_, err = st.AddUserMessage(ctx, sess.ID, "this one pushes the total over")
	assert.ErrorIs(t, err, ErrSessionFull)

	stats, err := st.Stats(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.TotalTokens)
	assert.Equal(t, 1, stats.MessageCount)
}

func TestSwitchPersona(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := st.Create(ctx, persona.Seed(), Config{})
	require.NoError(t, err)

	_, err = st.SwitchPersona(ctx, sess.ID, "nobody")
	assert.ErrorIs(t, err, ErrPersonaNotInSession)

	got, err := st.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "alex", got.CurrentPersonaID, "failed switch leaves the speaker unchanged")

	switched, err := st.SwitchPersona(ctx, sess.ID, "jordan")
	require.NoError(t, err)
	assert.Equal(t, "jordan", switched.CurrentPersonaID)

	reply, err := st.AddAssistantMessage(ctx, sess.ID, "Happy to jump in here.", 6)
	require.NoError(t, err)
	assert.Equal(t, "jordan", reply.PersonaID, "replies are attributed to the active persona")
}

func TestAppendExchangeAtomic(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := st.Create(ctx, persona.Seed(), Config{MaxMessages: 3})
	require.NoError(t, err)

	user, reply, err := st.AppendExchange(ctx, sess.ID, "how do you two disagree productively?", "Loudly, then we benchmark it.", 9)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, user.Role)
	assert.Equal(t, RoleAssistant, reply.Role)
	assert.Equal(t, "alex", reply.PersonaID)

	// Two messages are in; a third slot remains. The pair needs two, so
	// nothing at all must land.
	before, err := st.Stats(ctx, sess.ID)
	require.NoError(t, err)

	_, _, err = st.AppendExchange(ctx, sess.ID, "one more?", "No room for my half.", 5)
	assert.ErrorIs(t, err, ErrSessionFull)

	after, err := st.Stats(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, before.MessageCount, after.MessageCount)
	assert.Equal(t, before.TotalTokens, after.TotalTokens)

	history, err := st.History(ctx, sess.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, user.ID, history[0].ID)
	assert.Equal(t, reply.ID, history[1].ID)
}

func TestHistoryWindow(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := st.Create(ctx, persona.Seed(), Config{})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err = st.AddUserMessage(ctx, sess.ID, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	page, err := st.History(ctx, sess.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "message 1", page[0].Content)
	assert.Equal(t, "message 2", page[1].Content)

	tail, err := st.History(ctx, sess.ID, 10, 3)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "message 3", tail[0].Content)

	// Out-of-range offsets and non-positive limits degrade, not fail.
	empty, err := st.History(ctx, sess.ID, 2, 99)
	require.NoError(t, err)
	assert.Empty(t, empty)

	all, err := st.History(ctx, sess.ID, 0, -1)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestHistoryIsACopy(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := st.Create(ctx, persona.Seed(), Config{})
	require.NoError(t, err)
	_, err = st.AddUserMessage(ctx, sess.ID, "original content")
	require.NoError(t, err)

	history, err := st.History(ctx, sess.ID, 0, 0)
	require.NoError(t, err)
	history[0].Content = "tampered"

	fresh, err := st.History(ctx, sess.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "original content", fresh[0].Content)
}

func TestTTLExpiryAndSweep(t *testing.T) {
	st, clock := newTestStore(t)
	ctx := context.Background()
	ttl := 10 * time.Minute
	start := *clock

	idle, err := st.Create(ctx, persona.Seed(), Config{TTL: ttl})
	require.NoError(t, err)
	active, err := st.Create(ctx, persona.Seed(), Config{TTL: ttl})
	require.NoError(t, err)

	// Activity one second before expiry refreshes the active session.
	*clock = start.Add(ttl - time.Second)
	_, err = st.AddUserMessage(ctx, active.ID, "still here")
	require.NoError(t, err)

	// At exactly the deadline a session is still alive.
	*clock = start.Add(ttl)
	_, err = st.Get(ctx, idle.ID)
	assert.NoError(t, err)

	*clock = start.Add(ttl + time.Second)

	// Before the sweep, the lapsed session is rejected but resident.
	_, err = st.Get(ctx, idle.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = st.AddUserMessage(ctx, idle.ID, "too late")
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = st.History(ctx, idle.ID, 0, 0)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, 2, st.Count())

	removed := st.SweepExpired(ctx, *clock)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, st.Count())

	_, err = st.Get(ctx, idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = st.Get(ctx, active.ID)
	assert.NoError(t, err, "refreshed session survives the sweep")
}

func TestDelete(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := st.Create(ctx, persona.Seed(), Config{})
	require.NoError(t, err)

	require.NoError(t, st.Delete(ctx, sess.ID))
	_, err = st.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, st.Delete(ctx, sess.ID), ErrSessionNotFound)
}

func TestConcurrentAddsCountExactly(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := st.Create(ctx, persona.Seed(), Config{})
	require.NoError(t, err)

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := st.AddUserMessage(ctx, sess.ID, "hello world")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := st.Stats(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, stats.MessageCount)
	// "hello world" estimates to 2 tokens.
	assert.Equal(t, int64(2*workers), stats.TotalTokens)

	history, err := st.History(ctx, sess.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, history, workers)
}
