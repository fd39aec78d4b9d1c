package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lioneltchami/scribepod/internal/completion"
	"github.com/lioneltchami/scribepod/internal/persona"
)

// shardCount spreads sessions across independently locked maps so
// traffic on one session never blocks another.
const shardCount = 32

type entry struct {
	mu      sync.Mutex
	sess    Session
	history []Message
	deleted bool
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// Store holds live sessions in memory. Operations on the same session
// id are linearizable; operations on different ids run concurrently.
// The store never expires sessions on its own: callers decide when to
// run SweepExpired.
type Store struct {
	shards [shardCount]*shard
	now    func() time.Time
}

func NewStore() *Store {
	s := &Store{now: func() time.Time { return time.Now().UTC() }}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*entry)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.shards[h.Sum32()%shardCount]
}

func (s *Store) lookup(id string) (*entry, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	e, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// Create provisions a session over the given personas. The first
// persona starts as the active speaker.
func (s *Store) Create(_ context.Context, personas []persona.Profile, cfg Config) (Session, error) {
	if len(personas) == 0 {
		return Session{}, ErrNoPersonas
	}

	now := s.now()
	sess := Session{
		ID:               uuid.NewString(),
		Personas:         append([]persona.Profile(nil), personas...),
		CurrentPersonaID: personas[0].ID,
		CreatedAt:        now,
		LastActivityAt:   now,
		Config:           cfg.withDefaults(),
	}

	sh := s.shardFor(sess.ID)
	sh.mu.Lock()
	sh.sessions[sess.ID] = &entry{sess: sess, history: make([]Message, 0, 16)}
	sh.mu.Unlock()

	return snapshot(sess), nil
}

// Get returns a point-in-time copy of the session.
func (s *Store) Get(_ context.Context, id string) (Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return Session{}, ErrSessionNotFound
	}
	if e.sess.expiredAt(s.now()) {
		return Session{}, ErrSessionExpired
	}
	return snapshot(e.sess), nil
}

// AddUserMessage appends a user message, charging its estimated tokens
// against the session budget.
func (s *Store) AddUserMessage(_ context.Context, id, content string) (Message, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Message{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	tokens := completion.EstimateTokens(content)
	if err := s.admit(e, 1, tokens); err != nil {
		return Message{}, err
	}
	return s.append(e, RoleUser, "", content, tokens), nil
}

// AddAssistantMessage appends a reply spoken by the session's current
// persona. Pass the provider-reported token count when available; zero
// falls back to an estimate.
func (s *Store) AddAssistantMessage(_ context.Context, id, content string, tokens int64) (Message, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Message{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if tokens <= 0 {
		tokens = completion.EstimateTokens(content)
	}
	if err := s.admit(e, 1, tokens); err != nil {
		return Message{}, err
	}
	return s.append(e, RoleAssistant, e.sess.CurrentPersonaID, content, tokens), nil
}

// AppendExchange commits a user message and the assistant reply it
// produced as one unit. Either both messages land and the counters move
// once, or the session is untouched. This is what streaming callers use
// so an aborted stream leaves no half-recorded exchange.
func (s *Store) AppendExchange(_ context.Context, id, userContent, assistantContent string, assistantTokens int64) (Message, Message, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Message{}, Message{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	userTokens := completion.EstimateTokens(userContent)
	if assistantTokens <= 0 {
		assistantTokens = completion.EstimateTokens(assistantContent)
	}
	if err := s.admit(e, 2, userTokens+assistantTokens); err != nil {
		return Message{}, Message{}, err
	}

	user := s.append(e, RoleUser, "", userContent, userTokens)
	reply := s.append(e, RoleAssistant, e.sess.CurrentPersonaID, assistantContent, assistantTokens)
	return user, reply, nil
}

// admit checks liveness and budgets for n incoming messages. Callers
// hold the entry lock.
func (s *Store) admit(e *entry, n int, tokens int64) error {
	if e.deleted {
		return ErrSessionNotFound
	}
	if e.sess.expiredAt(s.now()) {
		return ErrSessionExpired
	}
	if e.sess.MessageCount+n > e.sess.Config.MaxMessages {
		return ErrSessionFull
	}
	if e.sess.TotalTokens+tokens > e.sess.Config.MaxTokens {
		return ErrSessionFull
	}
	return nil
}

// append records one message and bumps the counters. Callers hold the
// entry lock and have already run admit.
func (s *Store) append(e *entry, role Role, personaID, content string, tokens int64) Message {
	now := s.now()
	msg := Message{
		ID:        uuid.NewString(),
		SessionID: e.sess.ID,
		Role:      role,
		PersonaID: personaID,
		Content:   content,
		Tokens:    tokens,
		CreatedAt: now,
	}
	e.history = append(e.history, msg)
	e.sess.MessageCount++
	e.sess.TotalTokens += tokens
	e.sess.LastActivityAt = now
	return msg
}

// SwitchPersona hands the conversation to another persona in the
// session. An unknown persona leaves the current speaker unchanged.
func (s *Store) SwitchPersona(_ context.Context, id, personaID string) (Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return Session{}, ErrSessionNotFound
	}
	if e.sess.expiredAt(s.now()) {
		return Session{}, ErrSessionExpired
	}
	if !e.sess.HasPersona(personaID) {
		return Session{}, ErrPersonaNotInSession
	}

	e.sess.CurrentPersonaID = personaID
	e.sess.LastActivityAt = s.now()
	return snapshot(e.sess), nil
}

// History returns a copy of a window of the session transcript. offset is
// counted from the start of the transcript; limit <= 0 means no cap.
func (s *Store) History(_ context.Context, id string, limit, offset int) ([]Message, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return nil, ErrSessionNotFound
	}
	if e.sess.expiredAt(s.now()) {
		return nil, ErrSessionExpired
	}

	if offset < 0 {
		offset = 0
	}
	if offset > len(e.history) {
		offset = len(e.history)
	}
	window := e.history[offset:]
	if limit > 0 && limit < len(window) {
		window = window[:limit]
	}

	copied := make([]Message, len(window))
	copy(copied, window)
	return copied, nil
}

// Stats returns the counter view of a session.
func (s *Store) Stats(_ context.Context, id string) (Stats, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Stats{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return Stats{}, ErrSessionNotFound
	}
	if e.sess.expiredAt(s.now()) {
		return Stats{}, ErrSessionExpired
	}

	ids := make([]string, len(e.sess.Personas))
	for i, p := range e.sess.Personas {
		ids[i] = p.ID
	}
	return Stats{
		SessionID:        e.sess.ID,
		MessageCount:     e.sess.MessageCount,
		TotalTokens:      e.sess.TotalTokens,
		CurrentPersonaID: e.sess.CurrentPersonaID,
		PersonaIDs:       ids,
		CreatedAt:        e.sess.CreatedAt,
		LastActivityAt:   e.sess.LastActivityAt,
		ExpiresAt:        e.sess.ExpiresAt(),
	}, nil
}

// Delete removes a session immediately, expired or not.
func (s *Store) Delete(_ context.Context, id string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	e, ok := sh.sessions[id]
	if ok {
		delete(sh.sessions, id)
	}
	sh.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	return nil
}

// SweepExpired removes every session whose TTL has lapsed as of now and
// reports how many were dropped.
func (s *Store) SweepExpired(_ context.Context, now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, e := range sh.sessions {
			e.mu.Lock()
			if e.sess.expiredAt(now) {
				e.deleted = true
				delete(sh.sessions, id)
				removed++
			}
			e.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	return removed
}

// Count reports how many sessions are resident, expired or not.
func (s *Store) Count() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return total
}

func snapshot(sess Session) Session {
	sess.Personas = append([]persona.Profile(nil), sess.Personas...)
	return sess
}
