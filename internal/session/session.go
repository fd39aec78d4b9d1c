// Package session manages interactive persona chat sessions: bounded
// in-memory conversations with per-session budgets and TTL expiry.
package session

import (
	"errors"
	"time"

	"github.com/lioneltchami/scribepod/internal/persona"
)

var (
	ErrNoPersonas          = errors.New("session needs at least one persona")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExpired      = errors.New("session expired")
	ErrSessionFull         = errors.New("session budget exhausted")
	ErrPersonaNotInSession = errors.New("persona not in session")
)

// Role labels who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a session history. Assistant messages carry
// the persona that spoke them.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      Role      `json:"role"`
	PersonaID string    `json:"personaId,omitempty"`
	Content   string    `json:"content"`
	Tokens    int64     `json:"tokens"`
	CreatedAt time.Time `json:"createdAt"`
}

// Config bounds one session. Zero values take defaults at creation.
type Config struct {
	MaxMessages int           `json:"maxMessages"`
	MaxTokens   int64         `json:"maxTokens"`
	TTL         time.Duration `json:"ttl"`
}

// DefaultConfig returns the budgets applied when a caller leaves a
// field unset.
func DefaultConfig() Config {
	return Config{
		MaxMessages: 200,
		MaxTokens:   100_000,
		TTL:         30 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxMessages <= 0 {
		c.MaxMessages = d.MaxMessages
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	return c
}

// Session is the metadata view of a conversation. History is stored
// separately and fetched through Store.History.
type Session struct {
	ID               string            `json:"id"`
	Personas         []persona.Profile `json:"personas"`
	CurrentPersonaID string            `json:"currentPersonaId"`
	MessageCount     int               `json:"messageCount"`
	TotalTokens      int64             `json:"totalTokens"`
	CreatedAt        time.Time         `json:"createdAt"`
	LastActivityAt   time.Time         `json:"lastActivityAt"`
	Config           Config            `json:"config"`
}

// ExpiresAt is the moment the session dies absent further activity.
func (s Session) ExpiresAt() time.Time {
	return s.LastActivityAt.Add(s.Config.TTL)
}

func (s Session) expiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt())
}

// HasPersona reports whether the given persona belongs to the session.
func (s Session) HasPersona(id string) bool {
	for _, p := range s.Personas {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Persona returns the profile behind an id.
func (s Session) Persona(id string) (persona.Profile, bool) {
	for _, p := range s.Personas {
		if p.ID == id {
			return p, true
		}
	}
	return persona.Profile{}, false
}

// Stats is the read-only counter view exposed to clients.
type Stats struct {
	SessionID        string    `json:"sessionId"`
	MessageCount     int       `json:"messageCount"`
	TotalTokens      int64     `json:"totalTokens"`
	CurrentPersonaID string    `json:"currentPersonaId"`
	PersonaIDs       []string  `json:"personaIds"`
	CreatedAt        time.Time `json:"createdAt"`
	LastActivityAt   time.Time `json:"lastActivityAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
}
