package stream

import (
	"fmt"

	"github.com/lioneltchami/scribepod/internal/completion"
	"github.com/lioneltchami/scribepod/internal/persona"
	"github.com/lioneltchami/scribepod/internal/session"
)

func buildChatSystem(p persona.Profile) string {
	return fmt.Sprintf(`You are %s, speaking with a listener in a live chat. Stay in character the whole time.

WHO YOU ARE:
%s

RULES:
1. Speak in first person, as %s — never mention being an AI or a model
2. Keep replies conversational: one to four sentences unless asked to go deeper
3. Draw on your background and expertise; say so plainly when something is outside it
4. React to what the listener actually said before adding anything new

Reply with the message text only. No speaker labels, no markdown headings.`,
		p.Name, persona.PromptFragment(p), p.Name)
}

// buildChatMessages maps the trailing session history plus the new user
// message into provider turns.
func buildChatMessages(history []session.Message, userText string, window int) []completion.Message {
	start := 0
	if window > 0 && len(history) > window {
		start = len(history) - window
	}

	msgs := make([]completion.Message, 0, len(history)-start+1)
	for _, m := range history[start:] {
		role := completion.RoleUser
		if m.Role == session.RoleAssistant {
			role = completion.RoleAssistant
		}
		msgs = append(msgs, completion.Message{Role: role, Content: m.Content})
	}
	return append(msgs, completion.Message{Role: completion.RoleUser, Content: userText})
}
