// Package emotion infers delivery tags for dialogue turns and chat
// replies from keyword and punctuation signals.
package emotion

import "strings"

// Label is an emotion tag attached to spoken text.
type Label string

const (
	Neutral    Label = "neutral"
	Happy      Label = "happy"
	Sad        Label = "sad"
	Angry      Label = "angry"
	Excited    Label = "excited"
	Curious    Label = "curious"
	Amused     Label = "amused"
	Thoughtful Label = "thoughtful"
	Reassuring Label = "reassuring"
	Serious    Label = "serious"
)

// labelOrder fixes scan order so tied scores resolve the same way
// every run.
var labelOrder = []Label{
	Happy, Sad, Angry, Excited, Curious, Amused, Thoughtful, Reassuring, Serious,
}

// Decision is an inferred emotion with a delivery intensity in [1,5].
type Decision struct {
	Emotion Label   `json:"emotion"`
	Scale   float32 `json:"scale"`
	Score   int     `json:"-"`
}

var keywordBuckets = map[Label][]string{
	Happy: {
		"glad", "love", "wonderful", "delighted", "thrilled", "fantastic",
		"happy", "enjoy", "great news", "sweet", "perfect", "made my day",
	},
	Sad: {
		"sad", "sorry to hear", "miss", "unfortunate", "disappointing",
		"heartbreaking", "grieving", "rough week", "feeling down", "painful",
	},
	Angry: {
		"angry", "furious", "fed up", "outraged", "annoyed", "frustrated",
		"infuriating", "mad", "unacceptable", "sick of",
	},
	Excited: {
		"can't wait", "incredible", "unbelievable", "wow", "breakthrough",
		"game changer", "blown away", "amazing", "huge deal", "finally shipped",
	},
	Curious: {
		"why", "how does", "what if", "wonder", "curious", "intrigued",
		"tell me more", "dig into", "how come", "what about",
	},
	Amused: {
		"funny", "hilarious", "haha", "lol", "joking", "kidding",
		"laugh", "witty", "absurd",
	},
	Thoughtful: {
		"let me think", "on reflection", "tradeoff", "nuance", "on one hand",
		"weigh", "it depends", "complicated", "subtle", "worth considering",
	},
	Reassuring: {
		"don't worry", "it's okay", "no rush", "we can fix", "take your time",
		"here to help", "one step at a time", "not your fault", "you'll be fine",
	},
	Serious: {
		"important", "critical", "must", "careful", "risk", "warning",
		"urgent", "pay attention", "deadline", "strictly",
	},
}

const (
	keywordWeight    = 3
	exclamationBoost = 3
	singleBangBoost  = 2
	questionBoost    = 2
)

// Analyze picks the voice emotion for a reply. When the reply itself
// reads flat, the listener's emotion steers the choice so the persona
// answers a sad message gently and an angry one soberly.
func Analyze(userUtterance, reply string) Decision {
	userScore := scoreText(userUtterance)
	replyScore := scoreText(reply)

	final := replyScore
	if final.Score == 0 && userScore.Score > 0 {
		final = coerceFromUser(userScore)
	}
	if final.Score == 0 {
		return Decision{Emotion: Neutral, Scale: 3}
	}

	scale := 2 + float32(final.Score)/4
	switch final.Emotion {
	case Excited:
		scale++
	case Reassuring, Thoughtful:
		if scale > 3.5 {
			scale = 3.5
		}
	case Serious:
		if scale > 4 {
			scale = 4
		}
	}
	if scale < 1 {
		scale = 1
	}
	if scale > 5 {
		scale = 5
	}

	return Decision{Emotion: final.Emotion, Scale: scale, Score: final.Score}
}

// Tag returns the dominant emotion of a single line as turn tags, or
// nil when nothing stands out.
func Tag(text string) []string {
	d := scoreText(text)
	if d.Score == 0 {
		return nil
	}
	return []string{string(d.Emotion)}
}

func scoreText(text string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(text))
	if normalized == "" {
		return Decision{Emotion: Neutral}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label] += keywordWeight
			}
		}
	}

	if bangs := strings.Count(text, "!"); bangs > 0 {
		scores[Excited] += bangs * exclamationBoost
		if bangs == 1 {
			scores[Happy] += singleBangBoost
		}
	}
	if strings.Count(text, "?") > 0 {
		scores[Curious] += questionBoost
	}

	best := Neutral
	bestScore := 0
	for _, label := range labelOrder {
		if scores[label] > bestScore {
			bestScore = scores[label]
			best = label
		}
	}
	return Decision{Emotion: best, Score: bestScore}
}

// coerceFromUser maps the listener's state to the register a reply
// should land in.
func coerceFromUser(user Decision) Decision {
	switch user.Emotion {
	case Sad:
		return Decision{Emotion: Reassuring, Score: user.Score}
	case Angry:
		return Decision{Emotion: Serious, Score: user.Score}
	case Curious:
		return Decision{Emotion: Thoughtful, Score: user.Score}
	case Happy, Excited, Amused:
		return Decision{Emotion: user.Emotion, Score: user.Score}
	default:
		return user
	}
}
