package persona

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketBoundaries(t *testing.T) {
	assert.Equal(t, bucketLow, bucket(0))
	assert.Equal(t, bucketLow, bucket(0.33))
	assert.Equal(t, bucketMid, bucket(0.34))
	assert.Equal(t, bucketMid, bucket(0.5))
	assert.Equal(t, bucketMid, bucket(0.66))
	assert.Equal(t, bucketHigh, bucket(0.67))
	assert.Equal(t, bucketHigh, bucket(1))
}

func TestPromptFragmentDeterministic(t *testing.T) {
	a := PromptFragment(DefaultAlex)
	b := PromptFragment(DefaultAlex)
	assert.Equal(t, a, b)
}

func TestPromptFragmentReflectsTraits(t *testing.T) {
	p := DefaultSam
	p.Personality.Humor = 0.9
	frag := PromptFragment(p)
	assert.Contains(t, frag, "Joke freely")

	p.Personality.Humor = 0.1
	frag = PromptFragment(p)
	assert.Contains(t, frag, "Play it straight")
	assert.Contains(t, frag, p.Name)
}

func TestPromptFragmentCoversEveryAxis(t *testing.T) {
	frag := PromptFragment(DefaultJordan)
	// five personality lines + four style lines
	assert.Equal(t, 9, strings.Count(frag, "- "))
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultAlex.Validate())
	require.NoError(t, DefaultSam.Validate())
	require.NoError(t, DefaultJordan.Validate())

	bad := DefaultAlex
	bad.ID = ""
	assert.Error(t, bad.Validate())

	bad = DefaultAlex
	bad.Role = "moderator"
	assert.Error(t, bad.Validate())

	bad = DefaultAlex
	bad.Personality.Enthusiasm = 1.2
	assert.Error(t, bad.Validate())

	bad = DefaultAlex
	bad.Style.Pace = "frantic"
	assert.Error(t, bad.Validate())
}

func TestClamp(t *testing.T) {
	p := DefaultAlex
	p.Personality.Humor = 1.7
	p.Personality.Formality = -0.3
	p = p.Clamp()
	assert.Equal(t, 1.0, p.Personality.Humor)
	assert.Equal(t, 0.0, p.Personality.Formality)
	require.NoError(t, p.Validate())
}

func TestGreeting(t *testing.T) {
	g := Greeting(DefaultAlex)
	assert.Contains(t, g, DefaultAlex.Name)
	assert.Equal(t, g, Greeting(DefaultAlex))

	quiet := DefaultSam
	quiet.Personality.Enthusiasm = 0.1
	assert.Contains(t, Greeting(quiet), "What would you like to discuss?")
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(Seed())

	got, ok := store.FindByID("sam")
	require.True(t, ok)
	assert.Equal(t, "Sam Rivera", got.Name)

	_, ok = store.FindByID("nobody")
	assert.False(t, ok)

	list := store.List()
	require.Len(t, list, 3)
	list[0].Name = "mutated"
	again := store.List()
	assert.Equal(t, "Alex Chen", again[0].Name)
}

func TestCastForCount(t *testing.T) {
	assert.Len(t, CastForCount(0), 1)
	assert.Len(t, CastForCount(2), 2)
	assert.Len(t, CastForCount(7), 3)
	assert.Equal(t, RoleHost, CastForCount(3)[0].Role)
}
