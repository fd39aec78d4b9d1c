package dialogue

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lioneltchami/scribepod/internal/content"
	"github.com/lioneltchami/scribepod/internal/persona"
)

func guestOnly(ids ...string) []persona.Profile {
	cast := make([]persona.Profile, len(ids))
	for i, id := range ids {
		cast[i] = persona.Profile{ID: id, Name: id, Role: persona.RoleGuest}
	}
	return cast
}

func factPool(importances ...float64) []content.Fact {
	facts := make([]content.Fact, len(importances))
	for i, imp := range importances {
		facts[i] = content.Fact{
			ID:         fmt.Sprintf("f%d", i+1),
			Text:       fmt.Sprintf("fact number %d", i+1),
			Importance: imp,
		}
	}
	return facts
}

func TestPickNextSpeakerConvergesToTargets(t *testing.T) {
	cast := persona.Seed() // alex hosts, sam and jordan guest
	tracker := NewTracker(cast, nil, TrackerConfig{TargetTurns: 20})

	counts := map[string]int{}
	for i := 0; i < 20; i++ {
		id := tracker.PickNextSpeaker()
		require.NotEmpty(t, id)
		counts[id]++
		tracker.RecordTurn(Turn{
			SpeakerID: id,
			Ordinal:   i,
			Text:      "one two three four five six seven eight nine ten",
		})
	}

	assert.Equal(t, 6, counts["alex"], "host should land on 30%% of 20 turns")
	assert.Equal(t, 7, counts["sam"])
	assert.Equal(t, 7, counts["jordan"])
}

func TestSpeakerStatsPercentagesSumTo100(t *testing.T) {
	cast := persona.Seed()
	tracker := NewTracker(cast, nil, DefaultTrackerConfig())

	tracker.RecordTurn(Turn{SpeakerID: "alex", Ordinal: 0, Text: "short one"})
	tracker.RecordTurn(Turn{SpeakerID: "sam", Ordinal: 1, Text: "a noticeably longer reply with several words in it"})
	tracker.RecordTurn(Turn{SpeakerID: "jordan", Ordinal: 2, Text: "medium length reply here"})
	tracker.RecordTurn(Turn{SpeakerID: "sam", Ordinal: 3, Text: "again"})

	stats := tracker.SpeakerStats()
	var turnSum, wordSum float64
	for _, s := range stats {
		turnSum += s.TurnPercent
		wordSum += s.WordPercent
	}
	assert.InDelta(t, 100, turnSum, 1e-9)
	assert.InDelta(t, 100, wordSum, 1e-9)
	assert.Equal(t, 2, stats["sam"].Turns)
}

func TestPickNextSpeakerTieBreaks(t *testing.T) {
	// Guests only, so every target is even and the opening pick is a
	// pure tie.
	tracker := NewTracker(guestOnly("zed", "amy"), nil, DefaultTrackerConfig())
	assert.Equal(t, "amy", tracker.PickNextSpeaker(), "opening tie goes to the lowest id")

	tracker.RecordTurn(Turn{SpeakerID: "amy", Ordinal: 0, Text: "hello there friends"})
	assert.Equal(t, "zed", tracker.PickNextSpeaker())
	tracker.RecordTurn(Turn{SpeakerID: "zed", Ordinal: 1, Text: "hello right back"})

	// Equal counts and equal words again. Amy spoke longer ago.
	assert.Equal(t, "amy", tracker.PickNextSpeaker(), "even tie goes to whoever spoke least recently")
}

func TestNextFactsStablePrefix(t *testing.T) {
	facts := []content.Fact{
		{ID: "b", Text: "medium fact", Importance: 0.5},
		{ID: "a", Text: "big fact", Importance: 0.9},
		{ID: "c", Text: "other big fact", Importance: 0.9},
	}
	tracker := NewTracker(guestOnly("g1"), facts, DefaultTrackerConfig())

	first := tracker.NextFacts(2)
	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0].ID, "ties keep intake order")
	assert.Equal(t, "c", first[1].ID)

	again := tracker.NextFacts(2)
	assert.Equal(t, first, again, "repeated calls walk the same prefix")

	tracker.MarkDiscussed("a")
	next := tracker.NextFacts(2)
	require.Len(t, next, 2)
	assert.Equal(t, "c", next[0].ID)
	assert.Equal(t, "b", next[1].ID)

	tracker.MarkDiscussed("c", "b", "nonexistent")
	assert.Empty(t, tracker.NextFacts(2), "exhausted pool yields an empty slice, not an error")
	assert.Equal(t, 0, tracker.FactsRemaining())
}

func TestMoodAdvancesThroughBoundaries(t *testing.T) {
	tracker := NewTracker(guestOnly("g1"), nil, TrackerConfig{TargetTurns: 20})

	assert.Equal(t, MoodIntro, tracker.Mood())

	record := func(n int) {
		for i := 0; i < n; i++ {
			tracker.RecordTurn(Turn{SpeakerID: "g1", Ordinal: tracker.TotalTurns(), Text: "words"})
		}
		tracker.AdvanceMood()
	}

	record(2) // progress 0.10, boundary is inclusive
	assert.Equal(t, MoodBuilding, tracker.Mood())
	record(5) // 0.35
	assert.Equal(t, MoodPeak, tracker.Mood())
	record(7) // 0.70
	assert.Equal(t, MoodWindingDown, tracker.Mood())
	record(4) // 0.90
	assert.Equal(t, MoodOutro, tracker.Mood())
	record(5)
	assert.Equal(t, MoodOutro, tracker.Mood(), "mood saturates at outro")
}

func TestMoodNeverRegresses(t *testing.T) {
	tracker := NewTracker(guestOnly("g1"), factPool(0.9, 0.8, 0.7, 0.6), TrackerConfig{TargetTurns: 100})

	tracker.MarkDiscussed("f1", "f2", "f3")
	tracker.AdvanceMood() // fact coverage 0.75 puts us at windingDown
	require.Equal(t, MoodWindingDown, tracker.Mood())

	last := tracker.Mood().index()
	for i := 0; i < 10; i++ {
		tracker.RecordTurn(Turn{SpeakerID: "g1", Ordinal: i, Text: "more"})
		got := tracker.AdvanceMood().index()
		assert.GreaterOrEqual(t, got, last)
		last = got
	}
}

func TestMoodUsesFurthestProgressSignal(t *testing.T) {
	// Few turns but most facts spent: coverage should drive the arc.
	tracker := NewTracker(guestOnly("g1"), factPool(0.9, 0.8), TrackerConfig{TargetTurns: 100})
	tracker.MarkDiscussed("f1")
	tracker.AdvanceMood()
	assert.Equal(t, MoodPeak, tracker.Mood(), "50%% fact coverage outweighs 0%% turn progress")
}

func TestComputeTargetsSoloAndEvenCasts(t *testing.T) {
	solo := computeTargets([]persona.Profile{{ID: "only", Role: persona.RoleHost}})
	assert.InDelta(t, 1.0, solo["only"].turn, 1e-9)
	assert.InDelta(t, 1.0, solo["only"].word, 1e-9)

	mixed := computeTargets(persona.Seed())
	assert.InDelta(t, 0.30, mixed["alex"].turn, 1e-9)
	assert.InDelta(t, 0.35, mixed["alex"].word, 1e-9)
	assert.InDelta(t, 0.35, mixed["sam"].turn, 1e-9)
	assert.InDelta(t, 0.325, mixed["jordan"].word, 1e-9)
}
