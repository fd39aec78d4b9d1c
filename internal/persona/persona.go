package persona

import (
	"fmt"
	"strings"
)

// Role places a speaker in the conversation dynamic.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// SentenceLength controls how long a speaker's sentences tend to run.
type SentenceLength string

const (
	SentenceShort  SentenceLength = "short"
	SentenceMedium SentenceLength = "medium"
	SentenceLong   SentenceLength = "long"
)

// Vocabulary controls the register of word choice.
type Vocabulary string

const (
	VocabSimple    Vocabulary = "simple"
	VocabAcademic  Vocabulary = "academic"
	VocabTechnical Vocabulary = "technical"
)

// Expressiveness controls emotional range in delivery.
type Expressiveness string

const (
	ExpressMonotone Expressiveness = "monotone"
	ExpressVaried   Expressiveness = "varied"
	ExpressDramatic Expressiveness = "dramatic"
)

// Pace controls speaking tempo.
type Pace string

const (
	PaceSlow   Pace = "slow"
	PaceMedium Pace = "medium"
	PaceFast   Pace = "fast"
)

// Personality holds the five behavioral scalars, each in [0,1].
type Personality struct {
	Formality    float64 `json:"formality"`
	Enthusiasm   float64 `json:"enthusiasm"`
	Humor        float64 `json:"humor"`
	Expertise    float64 `json:"expertiseLevel"`
	Interruption float64 `json:"interruption"`
}

// SpeechStyle holds the four discrete delivery axes.
type SpeechStyle struct {
	SentenceLength SentenceLength `json:"sentenceLength"`
	Vocabulary     Vocabulary     `json:"vocabulary"`
	Expressiveness Expressiveness `json:"expressiveness"`
	Pace           Pace           `json:"pace"`
}

// Profile defines a speaker's identity, personality, and delivery style.
type Profile struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Role        Role        `json:"role"`
	Bio         string      `json:"bio"`
	Expertise   []string    `json:"expertise,omitempty"`
	Personality Personality `json:"personality"`
	Style       SpeechStyle `json:"style"`
}

// Validate reports the first structural problem with the profile, or nil.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("persona has empty id")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("persona %s has empty name", p.ID)
	}
	if p.Role != RoleHost && p.Role != RoleGuest {
		return fmt.Errorf("persona %s has invalid role %q (must be host or guest)", p.ID, p.Role)
	}
	for _, s := range []struct {
		name  string
		value float64
	}{
		{"formality", p.Personality.Formality},
		{"enthusiasm", p.Personality.Enthusiasm},
		{"humor", p.Personality.Humor},
		{"expertiseLevel", p.Personality.Expertise},
		{"interruption", p.Personality.Interruption},
	} {
		if s.value < 0 || s.value > 1 {
			return fmt.Errorf("persona %s: %s %.2f out of range [0,1]", p.ID, s.name, s.value)
		}
	}
	if err := p.Style.validate(); err != nil {
		return fmt.Errorf("persona %s: %w", p.ID, err)
	}
	return nil
}

func (s SpeechStyle) validate() error {
	switch s.SentenceLength {
	case SentenceShort, SentenceMedium, SentenceLong:
	default:
		return fmt.Errorf("invalid sentenceLength %q", s.SentenceLength)
	}
	switch s.Vocabulary {
	case VocabSimple, VocabAcademic, VocabTechnical:
	default:
		return fmt.Errorf("invalid vocabulary %q", s.Vocabulary)
	}
	switch s.Expressiveness {
	case ExpressMonotone, ExpressVaried, ExpressDramatic:
	default:
		return fmt.Errorf("invalid expressiveness %q", s.Expressiveness)
	}
	switch s.Pace {
	case PaceSlow, PaceMedium, PaceFast:
	default:
		return fmt.Errorf("invalid pace %q", s.Pace)
	}
	return nil
}

// Clamp returns a copy with every personality scalar forced into [0,1].
func (p Profile) Clamp() Profile {
	p.Personality.Formality = clamp01(p.Personality.Formality)
	p.Personality.Enthusiasm = clamp01(p.Personality.Enthusiasm)
	p.Personality.Humor = clamp01(p.Personality.Humor)
	p.Personality.Expertise = clamp01(p.Personality.Expertise)
	p.Personality.Interruption = clamp01(p.Personality.Interruption)
	return p
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
