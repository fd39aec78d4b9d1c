package persona

// DefaultAlex is the default host profile: drives topics, keeps momentum.
var DefaultAlex = Profile{
	ID:   "alex",
	Name: "Alex Chen",
	Role: RoleHost,
	Bio: "Former tech journalist at Wired and The Verge, now an independent show host. " +
		"Started as a software engineer before pivoting to media. Known for explanations " +
		"that make dense technical concepts click.",
	Expertise: []string{"technology trends", "product strategy", "startup ecosystems", "AI/ML", "developer tools"},
	Personality: Personality{
		Formality:    0.35,
		Enthusiasm:   0.85,
		Humor:        0.60,
		Expertise:    0.55,
		Interruption: 0.40,
	},
	Style: SpeechStyle{
		SentenceLength: SentenceMedium,
		Vocabulary:     VocabSimple,
		Expressiveness: ExpressVaried,
		Pace:           PaceFast,
	},
}

// DefaultSam is the default analyst guest: probes, stress-tests, adds depth.
var DefaultSam = Profile{
	ID:   "sam",
	Name: "Sam Rivera",
	Role: RoleGuest,
	Bio: "Former industry analyst at Gartner, then lead researcher at a policy think tank " +
		"focused on emerging technology. Has a PhD in computer science but wears it lightly. " +
		"Finds the non-obvious angle everyone else missed.",
	Expertise: []string{"market analysis", "policy implications", "competitive dynamics", "risk assessment"},
	Personality: Personality{
		Formality:    0.65,
		Enthusiasm:   0.45,
		Humor:        0.30,
		Expertise:    0.90,
		Interruption: 0.25,
	},
	Style: SpeechStyle{
		SentenceLength: SentenceLong,
		Vocabulary:     VocabAcademic,
		Expressiveness: ExpressVaried,
		Pace:           PaceMedium,
	},
}

// DefaultJordan is the default contrarian guest for three-speaker shows.
var DefaultJordan = Profile{
	ID:   "jordan",
	Name: "Jordan Park",
	Role: RoleGuest,
	Bio: "Former startup founder with two exits and one flameout, then a venture partner " +
		"for three years. Brings operator war stories that ground abstract discussions, " +
		"and enough humility about predictions to still swing big on hot takes.",
	Expertise: []string{"startup operations", "fundraising", "product-market fit", "founder psychology"},
	Personality: Personality{
		Formality:    0.20,
		Enthusiasm:   0.70,
		Humor:        0.75,
		Expertise:    0.70,
		Interruption: 0.80,
	},
	Style: SpeechStyle{
		SentenceLength: SentenceShort,
		Vocabulary:     VocabSimple,
		Expressiveness: ExpressDramatic,
		Pace:           PaceFast,
	},
}

// Seed returns the built-in profiles used when no custom cast is supplied.
func Seed() []Profile {
	return []Profile{DefaultAlex, DefaultSam, DefaultJordan}
}

// CastForCount returns the default cast for the requested speaker count,
// always leading with the host. Counts outside [1,3] clamp to that range.
func CastForCount(n int) []Profile {
	switch {
	case n <= 1:
		return []Profile{DefaultAlex}
	case n == 2:
		return []Profile{DefaultAlex, DefaultSam}
	default:
		return []Profile{DefaultAlex, DefaultSam, DefaultJordan}
	}
}
