package dialogue

import (
	"fmt"
	"math"
	"strings"

	"github.com/lioneltchami/scribepod/internal/persona"
)

// Severity ranks how much an issue hurts the dialogue. A blocking issue
// fails the report outright regardless of score.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// IssueKind categorizes validator findings.
type IssueKind string

const (
	IssueTurnCount  IssueKind = "turn_count"
	IssueBalance    IssueKind = "balance"
	IssueRepetition IssueKind = "repetition"
	IssueFiller     IssueKind = "filler"
	IssueVariance   IssueKind = "variance"
	IssueFormat     IssueKind = "format"
)

// Issue describes one quality problem, pointing at the turns involved.
type Issue struct {
	Kind        IssueKind `json:"kind"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	TurnIndices []int     `json:"turnIndices,omitempty"`
}

// QualityReport is the validator's verdict on a dialogue body.
type QualityReport struct {
	Score  int     `json:"score"`
	Passed bool    `json:"passed"`
	Issues []Issue `json:"issues,omitempty"`
}

// Score deductions per issue severity.
const (
	blockingPenalty = 40
	majorPenalty    = 15
	minorPenalty    = 5
)

// ValidatorConfig tunes the quality checks.
type ValidatorConfig struct {
	MinTurns         int     // below this the dialogue is rejected outright
	PassThreshold    int     // minimum score to pass
	MaxBalancePts    float64 // allowed turn-share deviation, in percentage points
	SimilarityCutoff float64 // word overlap above this marks near-duplicate turns
	MinLengthStdDev  float64 // word-count spread below this reads as robotic
}

func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MinTurns:         6,
		PassThreshold:    70,
		MaxBalancePts:    15,
		SimilarityCutoff: 0.8,
		MinLengthStdDev:  2.0,
	}
}

// Validator runs heuristic quality checks over a dialogue body.
// Intro and outro turns are scored separately by callers that want
// them checked; balance and coverage only make sense over the body.
type Validator struct {
	cfg     ValidatorConfig
	targets map[string]shareTarget
}

func NewValidator(cast []persona.Profile, cfg ValidatorConfig) *Validator {
	if cfg.MinTurns == 0 {
		cfg = DefaultValidatorConfig()
	}
	return &Validator{cfg: cfg, targets: computeTargets(cast)}
}

// Validate scores the turns and reports every issue found.
func (v *Validator) Validate(turns []Turn) QualityReport {
	var issues []Issue
	issues = append(issues, v.checkTurnCount(turns)...)
	issues = append(issues, v.checkFormat(turns)...)
	issues = append(issues, v.checkBalance(turns)...)
	issues = append(issues, v.checkRepetition(turns)...)
	issues = append(issues, v.checkFiller(turns)...)
	issues = append(issues, v.checkVariance(turns)...)

	score := 100
	blocked := false
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityBlocking:
			score -= blockingPenalty
			blocked = true
		case SeverityMajor:
			score -= majorPenalty
		case SeverityMinor:
			score -= minorPenalty
		}
	}
	if score < 0 {
		score = 0
	}

	return QualityReport{
		Score:  score,
		Passed: score >= v.cfg.PassThreshold && !blocked,
		Issues: issues,
	}
}

func (v *Validator) checkTurnCount(turns []Turn) []Issue {
	if len(turns) >= v.cfg.MinTurns {
		return nil
	}
	return []Issue{{
		Kind:     IssueTurnCount,
		Severity: SeverityBlocking,
		Message:  fmt.Sprintf("dialogue has %d turns, minimum is %d", len(turns), v.cfg.MinTurns),
	}}
}

func (v *Validator) checkFormat(turns []Turn) []Issue {
	var issues []Issue
	for i, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			issues = append(issues, Issue{
				Kind:        IssueFormat,
				Severity:    SeverityBlocking,
				Message:     fmt.Sprintf("turn %d is empty", i),
				TurnIndices: []int{i},
			})
			continue
		}
		if _, ok := v.targets[t.SpeakerID]; !ok {
			issues = append(issues, Issue{
				Kind:        IssueFormat,
				Severity:    SeverityBlocking,
				Message:     fmt.Sprintf("turn %d has speaker %q outside the cast", i, t.SpeakerID),
				TurnIndices: []int{i},
			})
		}
	}
	return issues
}

func (v *Validator) checkBalance(turns []Turn) []Issue {
	if len(turns) == 0 {
		return nil
	}

	stats := make(map[string]SpeakerStat)
	for _, t := range turns {
		s := stats[t.SpeakerID]
		s.Turns++
		s.Words += t.Words()
		stats[t.SpeakerID] = s
	}

	var issues []Issue
	for _, id := range sortSpeakerIDs(stats) {
		target, ok := v.targets[id]
		if !ok {
			continue // format check already flagged it
		}
		actual := 100 * float64(stats[id].Turns) / float64(len(turns))
		want := 100 * target.turn
		if math.Abs(actual-want) > v.cfg.MaxBalancePts {
			issues = append(issues, Issue{
				Kind:     IssueBalance,
				Severity: SeverityMajor,
				Message:  fmt.Sprintf("%s has %.0f%% of turns, target is %.0f%% (±%.0f points)", id, actual, want, v.cfg.MaxBalancePts),
			})
		}
	}
	return issues
}

// repetitionWindow is how far apart two turns can be and still count as
// near-duplicates of each other.
const repetitionWindow = 6

func (v *Validator) checkRepetition(turns []Turn) []Issue {
	var issues []Issue
	for i := range turns {
		for j := i + 1; j < len(turns) && j <= i+repetitionWindow; j++ {
			if similarity(turns[i].Text, turns[j].Text) >= v.cfg.SimilarityCutoff {
				issues = append(issues, Issue{
					Kind:        IssueRepetition,
					Severity:    SeverityMajor,
					Message:     fmt.Sprintf("turns %d and %d are near-duplicates", i, j),
					TurnIndices: []int{i, j},
				})
			}
		}
	}
	return issues
}

// bannedPhrases is the list of filler reactions to scan for.
var bannedPhrases = []string{
	"that's a great point",
	"absolutely",
	"exactly",
	"that's fascinating",
	"i love that",
	"so true",
	"100 percent",
	"you nailed it",
	"that's so interesting",
	"right, right",
	"great question",
	"that's a really good question",
	"i couldn't agree more",
	"you're so right",
	"that's brilliant",
	"oh wow",
	"amazing point",
	"that's spot on",
	"couldn't have said it better",
	"you hit the nail on the head",
	"that's exactly right",
}

func (v *Validator) checkFiller(turns []Turn) []Issue {
	var hits []int
	for i, t := range turns {
		lower := strings.ToLower(t.Text)
		for _, phrase := range bannedPhrases {
			if strings.Contains(lower, phrase) {
				hits = append(hits, i)
				break // count once per turn at most
			}
		}
	}
	if len(hits) == 0 {
		return nil
	}
	severity := SeverityMinor
	if len(hits) > 5 {
		severity = SeverityMajor
	}
	return []Issue{{
		Kind:        IssueFiller,
		Severity:    severity,
		Message:     fmt.Sprintf("found %d turns with filler phrases", len(hits)),
		TurnIndices: hits,
	}}
}

// varianceFloorTurns is the minimum dialogue length before uniform turn
// lengths are worth flagging.
const varianceFloorTurns = 8

func (v *Validator) checkVariance(turns []Turn) []Issue {
	if len(turns) < varianceFloorTurns {
		return nil
	}

	mean := 0.0
	for _, t := range turns {
		mean += float64(t.Words())
	}
	mean /= float64(len(turns))

	variance := 0.0
	for _, t := range turns {
		d := float64(t.Words()) - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(len(turns)))

	if stddev < v.cfg.MinLengthStdDev {
		return []Issue{{
			Kind:     IssueVariance,
			Severity: SeverityMinor,
			Message:  fmt.Sprintf("turn lengths are near-uniform (stddev %.1f words), pacing will sound robotic", stddev),
		}}
	}
	return nil
}

// similarity measures word-set overlap between two texts in [0,1].
func similarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	shared := 0
	for w := range setA {
		if setB[w] {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	return float64(shared) / float64(union)
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(w, ".,!?;:'\"")] = true
	}
	return set
}

// FilterLowQualityTurns drops the turns behind blocking format issues
// and the later half of each near-duplicate pair, then renumbers. This
// is the cheap repair tried before a full regeneration.
func FilterLowQualityTurns(turns []Turn, report QualityReport) []Turn {
	drop := make(map[int]bool)
	for _, issue := range report.Issues {
		switch issue.Kind {
		case IssueFormat:
			for _, idx := range issue.TurnIndices {
				drop[idx] = true
			}
		case IssueRepetition:
			// keep the first occurrence, drop the echoes
			for _, idx := range issue.TurnIndices[1:] {
				drop[idx] = true
			}
		}
	}
	if len(drop) == 0 {
		return turns
	}

	kept := make([]Turn, 0, len(turns))
	for i, t := range turns {
		if !drop[i] {
			kept = append(kept, t)
		}
	}
	EstimateOffsets(kept)
	return kept
}
