package persona

import (
	"fmt"
	"strings"
)

// Greeting synthesizes a deterministic opening line for an interactive
// session with the profile. No model call involved.
func Greeting(p Profile) string {
	intro := firstSentence(p.Bio)

	switch bucket(p.Personality.Enthusiasm) {
	case bucketHigh:
		if intro != "" {
			return fmt.Sprintf("Hey, I'm %s! %s What should we dig into?", p.Name, intro)
		}
		return fmt.Sprintf("Hey, I'm %s! What should we dig into?", p.Name)
	case bucketLow:
		if intro != "" {
			return fmt.Sprintf("I'm %s. %s What would you like to discuss?", p.Name, intro)
		}
		return fmt.Sprintf("I'm %s. What would you like to discuss?", p.Name)
	default:
		if intro != "" {
			return fmt.Sprintf("Hi, I'm %s. %s What's on your mind?", p.Name, intro)
		}
		return fmt.Sprintf("Hi, I'm %s. What's on your mind?", p.Name)
	}
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if i := strings.IndexAny(s, ".!?"); i >= 0 {
		return s[:i+1]
	}
	return s
}
