package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lioneltchami/scribepod/internal/persona"
)

func turnsFrom(specs []struct {
	speaker string
	text    string
}) []Turn {
	turns := make([]Turn, len(specs))
	for i, s := range specs {
		turns[i] = Turn{SpeakerID: s.speaker, Ordinal: i, Text: s.text}
	}
	return turns
}

func goodNineTurns() []Turn {
	return turnsFrom([]struct {
		speaker string
		text    string
	}{
		{"alex", "Let's dig into the cache rework."},
		{"sam", "The headline number is a forty percent latency drop, but the tail behavior matters more for the user experience."},
		{"jordan", "I'd push back on celebrating yet."},
		{"alex", "Why the skepticism, when the p99 chart looks this clean across every region we serve?"},
		{"sam", "Because the benchmark ran on synthetic traffic."},
		{"jordan", "Production load has bursts and cold keys, and synthetic suites rarely model either of those patterns well."},
		{"alex", "Fair, so what would convince you?"},
		{"sam", "A week of shadow traffic with the old path still serving as the baseline comparison."},
		{"jordan", "And a rollback drill before anyone widens the rollout."},
	})
}

func TestValidatePassingDialogue(t *testing.T) {
	v := NewValidator(persona.Seed(), DefaultValidatorConfig())

	report := v.Validate(goodNineTurns())
	assert.True(t, report.Passed)
	assert.Equal(t, 100, report.Score)
	assert.Empty(t, report.Issues)
}

func TestValidateTooFewTurnsBlocks(t *testing.T) {
	v := NewValidator(persona.Seed(), DefaultValidatorConfig())

	report := v.Validate(goodNineTurns()[:3])
	assert.False(t, report.Passed)

	var blocking []Issue
	for _, issue := range report.Issues {
		if issue.Severity == SeverityBlocking {
			blocking = append(blocking, issue)
		}
	}
	require.NotEmpty(t, blocking)
	assert.Equal(t, IssueTurnCount, blocking[0].Kind)
}

func TestValidateBalanceDeviation(t *testing.T) {
	v := NewValidator(persona.Seed(), DefaultValidatorConfig())

	turns := turnsFrom([]struct {
		speaker string
		text    string
	}{
		{"alex", "First point about the migration."},
		{"alex", "Second point, this time on the cutover window and the paging rotation."},
		{"alex", "Third observation."},
		{"alex", "Fourth item covers the dual-write phase in some depth for the listeners."},
		{"alex", "Fifth note on validation queries."},
		{"alex", "Sixth remark closes the checklist."},
		{"sam", "One brief reaction from me."},
		{"jordan", "A single counterpoint before we move along to the next theme."},
	})

	report := v.Validate(turns)
	assert.False(t, report.Passed)
	require.Len(t, report.Issues, 3)
	for _, issue := range report.Issues {
		assert.Equal(t, IssueBalance, issue.Kind)
		assert.Equal(t, SeverityMajor, issue.Severity)
	}
	assert.Equal(t, 55, report.Score)
}

func TestValidateRepetitionAndRepair(t *testing.T) {
	v := NewValidator(persona.Seed(), DefaultValidatorConfig())

	dup := "The replication lag never exceeded two seconds during the test."
	turns := turnsFrom([]struct {
		speaker string
		text    string
	}{
		{"alex", "Walk me through the failover numbers."},
		{"sam", "Promotion took eleven seconds on average across the drills."},
		{"jordan", dup},
		{"alex", "How did reads behave while the promotion was in flight?"},
		{"sam", dup},
		{"jordan", "Stale reads spiked briefly, then settled once the new primary took over."},
		{"alex", "So the budget held."},
	})

	report := v.Validate(turns)
	var rep *Issue
	for i := range report.Issues {
		if report.Issues[i].Kind == IssueRepetition {
			rep = &report.Issues[i]
		}
	}
	require.NotNil(t, rep)
	assert.Equal(t, []int{2, 4}, rep.TurnIndices)

	repaired := FilterLowQualityTurns(turns, report)
	require.Len(t, repaired, 6)
	assert.Equal(t, dup, repaired[2].Text, "first occurrence survives")
	for i, turn := range repaired {
		assert.Equal(t, i, turn.Ordinal, "repair renumbers ordinals")
	}
}

func TestValidateFillerSeverity(t *testing.T) {
	v := NewValidator(persona.Seed(), DefaultValidatorConfig())

	heavy := turnsFrom([]struct {
		speaker string
		text    string
	}{
		{"alex", "That's a great point about the quota system."},
		{"sam", "Absolutely, the limits were the issue."},
		{"jordan", "Exactly, and the retries made it worse."},
		{"alex", "Oh wow, I had not seen the second graph."},
		{"sam", "So true, the burst pattern repeats."},
		{"jordan", "You nailed it with the queue theory."},
	})
	report := v.Validate(heavy)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, IssueFiller, report.Issues[0].Kind)
	assert.Equal(t, SeverityMajor, report.Issues[0].Severity)
	assert.Len(t, report.Issues[0].TurnIndices, 6)

	light := goodNineTurns()
	light[4].Text = "Absolutely, because the benchmark ran on synthetic traffic."
	report = v.Validate(light)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, IssueFiller, report.Issues[0].Kind)
	assert.Equal(t, SeverityMinor, report.Issues[0].Severity)
	assert.True(t, report.Passed, "a stray filler line alone should not fail the dialogue")
}

func TestValidateFormatBlocks(t *testing.T) {
	v := NewValidator(persona.Seed(), DefaultValidatorConfig())

	turns := goodNineTurns()
	turns[3].Text = "   "
	turns[6].SpeakerID = "ghost"

	report := v.Validate(turns)
	assert.False(t, report.Passed)

	kinds := map[IssueKind]int{}
	for _, issue := range report.Issues {
		kinds[issue.Kind]++
	}
	assert.Equal(t, 2, kinds[IssueFormat])

	repaired := FilterLowQualityTurns(turns, report)
	assert.Len(t, repaired, 7)
	for _, turn := range repaired {
		assert.NotEqual(t, "ghost", turn.SpeakerID)
		assert.NotEqual(t, "   ", turn.Text)
	}
}

func TestValidateUniformLengthsFlaggedMinor(t *testing.T) {
	v := NewValidator(persona.Seed(), DefaultValidatorConfig())

	turns := turnsFrom([]struct {
		speaker string
		text    string
	}{
		{"alex", "Metrics dropped during initial rollout."},
		{"sam", "Latency spiked across eastern regions."},
		{"jordan", "Alerts fired before customers noticed."},
		{"alex", "Capacity planning missed weekend traffic."},
		{"sam", "Caching opened headroom almost immediately."},
		{"jordan", "Budgets recovered within three days."},
		{"sam", "Postmortem listed four concrete actions."},
		{"jordan", "Ownership moved to platform team."},
	})

	report := v.Validate(turns)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, IssueVariance, report.Issues[0].Kind)
	assert.Equal(t, SeverityMinor, report.Issues[0].Severity)
	assert.True(t, report.Passed)
	assert.Equal(t, 95, report.Score)
}
