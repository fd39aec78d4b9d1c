package dialogue

import (
	"fmt"
	"strings"

	"github.com/lioneltchami/scribepod/internal/persona"
)

// historyWindow bounds how many trailing turns ride along in a segment
// prompt so context stays fresh without blowing the token budget.
const historyWindow = 10

func buildSystemPrompt(cast []persona.Profile) string {
	var b strings.Builder
	b.WriteString("You are a dialogue writer for a multi-speaker podcast. You write natural spoken conversation between the speakers below.\n\nSPEAKERS:\n")
	for _, p := range cast {
		fmt.Fprintf(&b, "[id: %s]\n%s\n\n", p.ID, persona.PromptFragment(p))
	}

	b.WriteString(`RULES:
1. Every line must be grounded in the facts you are given — do not invent information
2. Use only the speaker ids listed above, exactly as written
3. Each turn is 1-3 sentences of natural speech (not paragraphs)
4. Stay true to each speaker's voice and manner throughout
5. Use natural conversational language — contractions, informal phrasing, brief reactions
6. Transitions between points should feel organic, not forced

OUTPUT FORMAT:
Return ONLY valid JSON matching this exact structure (no markdown fences, no extra text):
{
  "turns": [
    {"speaker": "<id>", "text": "...", "emotion": "curious"}
  ]
}
The emotion field is optional: one lowercase word for how the line is delivered.

IMPORTANT: Output raw JSON only. No markdown code fences. No text before or after the JSON.`)
	return b.String()
}

func buildSegmentPrompt(req TurnRequest) string {
	switch req.Kind {
	case SegmentIntro:
		return buildIntroPrompt(req)
	case SegmentOutro:
		return buildOutroPrompt(req)
	default:
		return buildBodyPrompt(req)
	}
}

func buildIntroPrompt(req TurnRequest) string {
	lead := displayName(req.Cast, req.LeadID)

	prompt := fmt.Sprintf(`<scratchpad>
Before writing, plan the opening:
1. How does %s welcome listeners and set the scene?
2. Which speakers get introduced, and in what order?
3. Which upcoming themes deserve a teaser mention?
</scratchpad>

Write the opening of the conversation. %s greets the audience, introduces the other speakers, and hands off into the first topic.

`, lead, lead)

	if req.Topic != "" {
		prompt += fmt.Sprintf("TOPIC: %s\n\n", req.Topic)
	}
	prompt += fmt.Sprintf("TONE: %s\n\n", toneDescription(req.Tone))
	prompt += fmt.Sprintf("TARGET LENGTH: %d-%d turns", req.MinTurns, req.MaxTurns)
	return prompt
}

func buildBodyPrompt(req TurnRequest) string {
	lead := displayName(req.Cast, req.LeadID)

	prompt := fmt.Sprintf(`<scratchpad>
Before writing, plan the exchange:
1. How does %s pick up from the last turn?
2. Which fact anchors each turn, and who reacts to it?
3. Where can speakers disagree, build on each other, or ask questions?
</scratchpad>

Continue the conversation. %s leads this exchange; the others react, question, and add depth.

`, lead, lead)

	prompt += fmt.Sprintf("MOOD: %s\n\n", moodDirective(req.Mood))

	if len(req.Facts) > 0 {
		prompt += "FACTS TO COVER (work every one in naturally):\n"
		for _, f := range req.Facts {
			prompt += fmt.Sprintf("- [%s] %s (importance %.1f)\n", f.ID, f.Text, f.Importance)
		}
		prompt += "\n"
	}

	if recent := recentTurns(req.History); recent != "" {
		prompt += fmt.Sprintf("RECENT TURNS:\n%s\n", recent)
	}

	if req.Topic != "" {
		prompt += fmt.Sprintf("FOCUS: Center the exchange on: %s\n\n", req.Topic)
	}
	prompt += fmt.Sprintf("TONE: %s\n\n", toneDescription(req.Tone))
	prompt += fmt.Sprintf("TARGET LENGTH: %d-%d turns", req.MinTurns, req.MaxTurns)
	return prompt
}

func buildOutroPrompt(req TurnRequest) string {
	lead := displayName(req.Cast, req.LeadID)

	prompt := fmt.Sprintf(`<scratchpad>
Before writing, plan the close:
1. Which takeaways from the conversation deserve a final mention?
2. How does each speaker get a last word?
3. How does %s sign off?
</scratchpad>

Write the closing of the conversation. %s draws the threads together, thanks the other speakers, and signs off warmly.

`, lead, lead)

	if recent := recentTurns(req.History); recent != "" {
		prompt += fmt.Sprintf("RECENT TURNS:\n%s\n", recent)
	}
	prompt += fmt.Sprintf("TONE: %s\n\n", toneDescription(req.Tone))
	prompt += fmt.Sprintf("TARGET LENGTH: %d-%d turns", req.MinTurns, req.MaxTurns)
	return prompt
}

func recentTurns(history []Turn) string {
	if len(history) == 0 {
		return ""
	}
	start := 0
	if len(history) > historyWindow {
		start = len(history) - historyWindow
	}
	var b strings.Builder
	for _, t := range history[start:] {
		fmt.Fprintf(&b, "%s: %s\n", t.SpeakerID, t.Text)
	}
	return b.String()
}

func displayName(cast []persona.Profile, id string) string {
	for _, p := range cast {
		if p.ID == id {
			return p.Name
		}
	}
	return id
}

func moodDirective(m Mood) string {
	switch m {
	case MoodBuilding:
		return "Momentum is building. Connect points, raise questions, start digging into specifics."
	case MoodPeak:
		return "This is the heart of the conversation. Go deep, challenge claims, let speakers push each other."
	case MoodWindingDown:
		return "Start drawing threads together. Reflect on what the discussion settled and what stays open."
	case MoodOutro:
		return "Wrap up. Summarize takeaways and close warmly."
	default: // intro
		return "Warm-up. Ease in, set context, keep the stakes light."
	}
}

func toneDescription(tone string) string {
	switch tone {
	case "technical":
		return "Technical and precise. Use domain-specific terminology. Assume the listener has relevant background knowledge. Focus on accuracy and nuance."
	case "educational":
		return "Educational and accessible. Explain concepts clearly for a general audience. Use analogies and examples. Build understanding progressively."
	default: // casual
		return "Casual and conversational. Keep it light and engaging. Use everyday language. Make complex ideas approachable."
	}
}
