package dialogue

import (
	"sort"

	"github.com/lioneltchami/scribepod/internal/content"
	"github.com/lioneltchami/scribepod/internal/persona"
)

// Share targets for a cast with at least one host and one guest. Hosts
// steer more than they talk, so their word share runs above their turn
// share. Guests split the remainder evenly.
const (
	hostTurnShare = 0.30
	hostWordShare = 0.35
)

// TrackerConfig tunes conversation pacing.
type TrackerConfig struct {
	// TargetTurns is the expected dialogue length used for mood
	// progression. Zero means facts alone drive the arc.
	TargetTurns int

	// MoodBoundaries are progress thresholds for entering building,
	// peak, windingDown and outro respectively.
	MoodBoundaries [4]float64
}

// DefaultTrackerConfig returns the standard pacing thresholds.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		TargetTurns:    20,
		MoodBoundaries: [4]float64{0.10, 0.35, 0.70, 0.90},
	}
}

// SpeakerStat reports one speaker's share of the conversation so far.
// Percentages across all speakers sum to 100 when any turns exist.
type SpeakerStat struct {
	Turns       int     `json:"turns"`
	Words       int     `json:"words"`
	TurnPercent float64 `json:"turnPercent"`
	WordPercent float64 `json:"wordPercent"`
}

type speakerCount struct {
	turns     int
	words     int
	lastSpoke int
}

type shareTarget struct {
	turn float64
	word float64
}

// Tracker maintains the evolving state of one dialogue: who has spoken
// how much, which facts are spent, and where the arc stands. It is not
// safe for concurrent use.
type Tracker struct {
	cast       []persona.Profile
	facts      []content.Fact
	discussed  map[string]bool
	counts     map[string]*speakerCount
	targets    map[string]shareTarget
	totalTurns int
	totalWords int
	mood       Mood
	cfg        TrackerConfig
}

// NewTracker builds a tracker over a cast and fact pool. Facts are
// re-sorted by importance internally; the caller's slice is untouched.
func NewTracker(cast []persona.Profile, facts []content.Fact, cfg TrackerConfig) *Tracker {
	if cfg.MoodBoundaries == [4]float64{} {
		cfg.MoodBoundaries = DefaultTrackerConfig().MoodBoundaries
	}
	sorted := append([]content.Fact(nil), facts...)
	content.SortByImportance(sorted)

	t := &Tracker{
		cast:      append([]persona.Profile(nil), cast...),
		facts:     sorted,
		discussed: make(map[string]bool),
		counts:    make(map[string]*speakerCount),
		mood:      MoodIntro,
		cfg:       cfg,
	}
	t.targets = computeTargets(t.cast)
	for _, p := range t.cast {
		t.counts[p.ID] = &speakerCount{lastSpoke: -1}
	}
	return t
}

// computeTargets splits turn and word shares across the cast. Hosts
// collectively take the host share; guests divide the rest evenly. A
// cast without guests (or without hosts) divides everything evenly.
func computeTargets(cast []persona.Profile) map[string]shareTarget {
	targets := make(map[string]shareTarget, len(cast))
	if len(cast) == 0 {
		return targets
	}

	hosts := 0
	for _, p := range cast {
		if p.Role == persona.RoleHost {
			hosts++
		}
	}
	guests := len(cast) - hosts

	if hosts == 0 || guests == 0 {
		even := 1.0 / float64(len(cast))
		for _, p := range cast {
			targets[p.ID] = shareTarget{turn: even, word: even}
		}
		return targets
	}

	for _, p := range cast {
		if p.Role == persona.RoleHost {
			targets[p.ID] = shareTarget{
				turn: hostTurnShare / float64(hosts),
				word: hostWordShare / float64(hosts),
			}
		} else {
			targets[p.ID] = shareTarget{
				turn: (1 - hostTurnShare) / float64(guests),
				word: (1 - hostWordShare) / float64(guests),
			}
		}
	}
	return targets
}

// RecordTurn folds a turn into the running stats. Turns from speakers
// outside the cast are counted too so the validator can see them.
func (t *Tracker) RecordTurn(turn Turn) {
	c, ok := t.counts[turn.SpeakerID]
	if !ok {
		c = &speakerCount{lastSpoke: -1}
		t.counts[turn.SpeakerID] = c
	}
	c.turns++
	c.words += turn.Words()
	c.lastSpoke = turn.Ordinal
	t.totalTurns++
	t.totalWords += turn.Words()
}

// MarkDiscussed retires facts from the undiscussed pool. Unknown ids
// are ignored.
func (t *Tracker) MarkDiscussed(factIDs ...string) {
	known := make(map[string]bool, len(t.facts))
	for _, f := range t.facts {
		known[f.ID] = true
	}
	for _, id := range factIDs {
		if known[id] {
			t.discussed[id] = true
		}
	}
}

// NextFacts returns up to n undiscussed facts in descending importance.
// Equal importance preserves intake order, so repeated calls walk a
// stable prefix. An empty result means the fact pool is exhausted.
func (t *Tracker) NextFacts(n int) []content.Fact {
	out := make([]content.Fact, 0, n)
	for _, f := range t.facts {
		if len(out) == n {
			break
		}
		if !t.discussed[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

// FactsRemaining counts facts not yet discussed.
func (t *Tracker) FactsRemaining() int {
	remaining := 0
	for _, f := range t.facts {
		if !t.discussed[f.ID] {
			remaining++
		}
	}
	return remaining
}

// PickNextSpeaker selects the cast member furthest below target,
// combining turn and word share deficits. Ties go to whoever spoke
// least recently, then to the lowest persona id.
func (t *Tracker) PickNextSpeaker() string {
	if len(t.cast) == 0 {
		return ""
	}

	const epsilon = 1e-9
	best := ""
	bestDeficit := 0.0
	bestLast := 0

	for _, p := range t.cast {
		c := t.counts[p.ID]
		target := t.targets[p.ID]

		var turnShare, wordShare float64
		if t.totalTurns > 0 {
			turnShare = float64(c.turns) / float64(t.totalTurns)
		}
		if t.totalWords > 0 {
			wordShare = float64(c.words) / float64(t.totalWords)
		}
		deficit := (target.turn - turnShare) + (target.word - wordShare)

		switch {
		case best == "":
		case deficit > bestDeficit+epsilon:
		case deficit < bestDeficit-epsilon:
			continue
		case c.lastSpoke < bestLast:
		case c.lastSpoke > bestLast:
			continue
		case p.ID < best:
		default:
			continue
		}
		best = p.ID
		bestDeficit = deficit
		bestLast = c.lastSpoke
	}
	return best
}

// SpeakerStats snapshots per-speaker counts and percentage shares.
func (t *Tracker) SpeakerStats() map[string]SpeakerStat {
	stats := make(map[string]SpeakerStat, len(t.counts))
	for id, c := range t.counts {
		s := SpeakerStat{Turns: c.turns, Words: c.words}
		if t.totalTurns > 0 {
			s.TurnPercent = 100 * float64(c.turns) / float64(t.totalTurns)
		}
		if t.totalWords > 0 {
			s.WordPercent = 100 * float64(c.words) / float64(t.totalWords)
		}
		stats[id] = s
	}
	return stats
}

// TotalTurns reports how many turns have been recorded.
func (t *Tracker) TotalTurns() int {
	return t.totalTurns
}

// Progress reports arc position in [0,1]: the further along of fact
// coverage and turn count relative to target.
func (t *Tracker) Progress() float64 {
	var factProgress, turnProgress float64
	if len(t.facts) > 0 {
		factProgress = float64(len(t.discussed)) / float64(len(t.facts))
	}
	if t.cfg.TargetTurns > 0 {
		turnProgress = float64(t.totalTurns) / float64(t.cfg.TargetTurns)
	}
	p := factProgress
	if turnProgress > p {
		p = turnProgress
	}
	if p > 1 {
		p = 1
	}
	return p
}

// Mood returns the current arc stage.
func (t *Tracker) Mood() Mood {
	return t.mood
}

// AdvanceMood recomputes the stage from progress. The stage never moves
// backward: a progress dip leaves the mood where it is.
func (t *Tracker) AdvanceMood() Mood {
	p := t.Progress()
	computed := MoodIntro
	b := t.cfg.MoodBoundaries
	switch {
	case p >= b[3]:
		computed = MoodOutro
	case p >= b[2]:
		computed = MoodWindingDown
	case p >= b[1]:
		computed = MoodPeak
	case p >= b[0]:
		computed = MoodBuilding
	}
	if computed.index() > t.mood.index() {
		t.mood = computed
	}
	return t.mood
}

// sortSpeakerIDs returns cast ids in ascending order, used by prompts
// and the validator to keep output deterministic.
func sortSpeakerIDs(stats map[string]SpeakerStat) []string {
	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
