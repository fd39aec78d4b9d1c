package persona

import (
	"fmt"
	"strings"
)

// traitBucket discretizes a [0,1] scalar into three levels.
type traitBucket int

const (
	bucketLow traitBucket = iota
	bucketMid
	bucketHigh
)

// Bucket thresholds. Values exactly on a boundary land in the higher bucket.
const (
	lowCutoff  = 0.34
	highCutoff = 0.67
)

func bucket(v float64) traitBucket {
	switch {
	case v < lowCutoff:
		return bucketLow
	case v < highCutoff:
		return bucketMid
	default:
		return bucketHigh
	}
}

var formalityDirectives = map[traitBucket]string{
	bucketLow:  "Keep it loose and informal. Contractions, casual asides, everyday phrasing.",
	bucketMid:  "Conversational but composed. Contractions are fine, slang only when it earns its place.",
	bucketHigh: "Polished and professional. Complete sentences, no slang, measured phrasing.",
}

var enthusiasmDirectives = map[traitBucket]string{
	bucketLow:  "Understated delivery. React with quiet interest rather than excitement.",
	bucketMid:  "Engaged and warm. Show genuine interest when a point lands.",
	bucketHigh: "High energy. Get audibly excited about ideas and lean into big reactions.",
}

var humorDirectives = map[traitBucket]string{
	bucketLow:  "Play it straight. No jokes or wordplay.",
	bucketMid:  "Light touches of humor where they fit naturally.",
	bucketHigh: "Joke freely. Wordplay, playful jabs, comic timing between points.",
}

var expertiseDirectives = map[traitBucket]string{
	bucketLow:  "Approach the material as a curious outsider. Ask for clarification, reach for everyday comparisons.",
	bucketMid:  "Comfortable with the material. Explain clearly with occasional technical detail.",
	bucketHigh: "Speak as a domain expert. Precise terminology, first-hand depth, concrete specifics.",
}

var interruptionDirectives = map[traitBucket]string{
	bucketLow:  "Let others finish their thoughts. Never cut in.",
	bucketMid:  "Occasionally jump in when a point genuinely demands a reaction.",
	bucketHigh: "Interject often. Cut in with reactions, finish others' sentences when the momentum calls for it.",
}

var sentenceDirectives = map[SentenceLength]string{
	SentenceShort:  "Short, punchy sentences.",
	SentenceMedium: "Medium-length sentences with a natural spoken rhythm.",
	SentenceLong:   "Long, rolling sentences that build toward a point.",
}

var vocabularyDirectives = map[Vocabulary]string{
	VocabSimple:    "Everyday vocabulary a general listener follows without effort.",
	VocabAcademic:  "Academic vocabulary with careful qualifications and structured argument.",
	VocabTechnical: "Technical vocabulary, exact terms of art, no watering down.",
}

var expressivenessDirectives = map[Expressiveness]string{
	ExpressMonotone: "Flat, even delivery with minimal emotional coloring.",
	ExpressVaried:   "Varied delivery that shifts tone with the content.",
	ExpressDramatic: "Dramatic delivery. Big dynamic swings, pauses for effect, emphasis on reveals.",
}

var paceDirectives = map[Pace]string{
	PaceSlow:   "Slow tempo. Let ideas breathe, pause between thoughts.",
	PaceMedium: "Moderate tempo with a steady conversational flow.",
	PaceFast:   "Fast tempo. Quick transitions, rapid-fire delivery.",
}

// PromptFragment renders the profile as speaking directives for a system
// prompt. The mapping is pure: same profile in, same text out.
func PromptFragment(p Profile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s (%s)", p.Name, p.Role)
	if p.Bio != "" {
		fmt.Fprintf(&b, ": %s", p.Bio)
	}
	b.WriteString("\n")

	if len(p.Expertise) > 0 {
		fmt.Fprintf(&b, "Knows deeply: %s.\n", strings.Join(p.Expertise, ", "))
	}

	b.WriteString("Voice and manner:\n")
	for _, line := range []string{
		formalityDirectives[bucket(p.Personality.Formality)],
		enthusiasmDirectives[bucket(p.Personality.Enthusiasm)],
		humorDirectives[bucket(p.Personality.Humor)],
		expertiseDirectives[bucket(p.Personality.Expertise)],
		interruptionDirectives[bucket(p.Personality.Interruption)],
		sentenceDirectives[p.Style.SentenceLength],
		vocabularyDirectives[p.Style.Vocabulary],
		expressivenessDirectives[p.Style.Expressiveness],
		paceDirectives[p.Style.Pace],
	} {
		fmt.Fprintf(&b, "- %s\n", line)
	}

	return b.String()
}
