package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
)

const (
	minBarWidth = 20
	maxBarWidth = 60
	// barChrome is the width spent on indent, brackets, the percent
	// column and the elapsed clock around the bar itself.
	barChrome = 16
)

// BarRenderer draws pipeline progress. On a TTY it repaints a two-line
// display (status plus bar) in place; anywhere else it emits one
// timestamped line per event so piped output stays readable.
type BarRenderer struct {
	out   io.Writer
	start time.Time
	isTTY bool
	width int
	last  Event
	drawn int
}

// NewBarRenderer builds a renderer for out, probing TTY-ness and
// terminal width once up front.
func NewBarRenderer(out *os.File) *BarRenderer {
	tty := isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())

	width := 80
	if tty {
		if w, _, err := term.GetSize(out.Fd()); err == nil && w > 0 {
			width = w
		}
	}

	return &BarRenderer{out: out, start: time.Now(), isTTY: tty, width: width}
}

// Handle processes one progress event. It satisfies Callback.
func (r *BarRenderer) Handle(e Event) {
	e.Elapsed = time.Since(r.start)
	if e.Stage == StageComplete {
		e.Percent = 1
	}
	r.last = e

	if !r.isTTY {
		fmt.Fprintf(r.out, "[%s] %s\n", formatElapsed(e.Elapsed), e.Message)
		return
	}

	r.erase()
	bar := renderBar(e.Percent, r.barWidth())
	fmt.Fprintf(r.out, "  %s\n  %s %3d%%  %s",
		e.Message, bar, int(e.Percent*100), formatElapsed(e.Elapsed))
	r.drawn = 2
}

// Finish replaces the live display with the closing summary.
func (r *BarRenderer) Finish() {
	e := r.last
	if r.isTTY {
		r.erase()
	}

	switch {
	case e.Error != nil:
		fmt.Fprintf(r.out, "\n  Error: %v\n", e.Error)
	case e.Stage != StageComplete:
		// Interrupted mid-pipeline; nothing to summarize.
	case e.OutputFile == "":
		fmt.Fprintf(r.out, "\n  %s (%s)\n", e.Message, formatElapsed(e.Elapsed))
		if e.LogFile != "" {
			fmt.Fprintf(r.out, "  Log: %s\n", e.LogFile)
		}
	default:
		if e.Duration != "" {
			fmt.Fprintf(r.out, "\n  Transcript saved to %s (~%s listen, %.1f MB)\n", e.OutputFile, e.Duration, e.SizeMB)
		} else if e.SizeMB > 0 {
			fmt.Fprintf(r.out, "\n  Transcript saved to %s (%.1f MB)\n", e.OutputFile, e.SizeMB)
		} else {
			fmt.Fprintf(r.out, "\n  %s\n", e.Message)
		}
		if e.LogFile != "" {
			fmt.Fprintf(r.out, "  Log: %s  |  Total: %s\n", e.LogFile, formatElapsed(e.Elapsed))
		}
	}
}

// erase wipes the lines of the previous repaint.
func (r *BarRenderer) erase() {
	if r.drawn == 0 {
		return
	}
	fmt.Fprint(r.out, "\r\033[2K")
	for i := 1; i < r.drawn; i++ {
		fmt.Fprint(r.out, "\033[A\033[2K")
	}
	fmt.Fprint(r.out, "\r")
	r.drawn = 0
}

func (r *BarRenderer) barWidth() int {
	w := r.width - barChrome
	if w < minBarWidth {
		return minBarWidth
	}
	if w > maxBarWidth {
		return maxBarWidth
	}
	return w
}

// renderBar draws a [####....] bar. Percent is clamped into [0,1].
func renderBar(pct float64, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// formatElapsed renders a duration as M:SS.
func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
