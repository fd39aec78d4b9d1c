package progress

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderBar(t *testing.T) {
	assert.Equal(t, "[##########]", renderBar(1.0, 10))
	assert.Equal(t, "[#####.....]", renderBar(0.5, 10))
	assert.Equal(t, "[..........]", renderBar(0, 10))
	assert.Equal(t, "[..........]", renderBar(-0.3, 10))
	assert.Equal(t, "[##########]", renderBar(1.7, 10))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0:05", formatElapsed(5*time.Second))
	assert.Equal(t, "2:03", formatElapsed(123*time.Second))
	assert.Equal(t, "12:00", formatElapsed(12*time.Minute))
}

func TestNewEvent(t *testing.T) {
	start := time.Now().Add(-2 * time.Second)
	e := NewEvent(StageDialogue, "generating chunk 2/5", 0.4, start)
	assert.Equal(t, StageDialogue, e.Stage)
	assert.Equal(t, "generating chunk 2/5", e.Message)
	assert.InDelta(t, 0.4, e.Percent, 1e-9)
	assert.GreaterOrEqual(t, e.Elapsed, 2*time.Second)
}

// Regular files are not TTYs, so this exercises the plain renderer.
func TestBarRendererPlainMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	r := NewBarRenderer(f)
	require.False(t, r.isTTY)

	r.Handle(Event{Stage: StageIngest, Message: "fetching article", Percent: 0.1})
	r.Handle(Event{Stage: StageComplete, Message: "done", OutputFile: "ep.json", Duration: "12:34", SizeMB: 0.2})
	r.Finish()

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "fetching article")
	assert.Contains(t, s, "Transcript saved to ep.json")
	assert.Contains(t, s, "12:34")
}
