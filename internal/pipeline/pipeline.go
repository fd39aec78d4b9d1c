// Package pipeline chains ingestion, fact extraction, dialogue
// generation and transcript output into one run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lioneltchami/scribepod/internal/completion"
	"github.com/lioneltchami/scribepod/internal/content"
	"github.com/lioneltchami/scribepod/internal/dialogue"
	"github.com/lioneltchami/scribepod/internal/emotion"
	"github.com/lioneltchami/scribepod/internal/ingest"
	"github.com/lioneltchami/scribepod/internal/persona"
	"github.com/lioneltchami/scribepod/internal/progress"
)

// minSourceWords is the smallest input worth building a conversation on.
const minSourceWords = 100

type Options struct {
	// Input is a URL or file path. Ignored when RawText or FromFacts is set.
	Input string
	// RawText carries inline source material (API and job submissions).
	RawText string
	// Output is the transcript destination, or the fact file when
	// FactsOnly is set. Empty means do not write a file.
	Output string

	Topic string
	Tone  string
	Model string

	// Speakers picks a default cast size. Cast overrides it when non-empty.
	Speakers int
	Cast     []persona.Profile

	FactLimit     int
	FactsPerChunk int

	// FactsOnly stops after extraction and saves the fact file.
	FactsOnly bool
	// FromFacts skips ingestion and extraction, loading a saved fact file.
	FromFacts string

	SkipIntro bool
	SkipOutro bool

	// LogFile is surfaced on the completion event so the renderer can
	// point at it. The pipeline does not write it.
	LogFile string

	Logger *slog.Logger

	// Port overrides the model-derived provider, mainly for tests.
	Port completion.Port
}

type PipelineError struct {
	Stage   string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Run executes the pipeline and returns the transcript. When FactsOnly
// is set the transcript is nil and Output receives the fact file. A nil
// notify callback is allowed.
func Run(ctx context.Context, opts Options, notify progress.Callback) (*dialogue.Transcript, error) {
	start := time.Now()
	if notify == nil {
		notify = progress.NopCallback
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	port, err := resolvePort(ctx, opts)
	if err != nil {
		return nil, &PipelineError{Stage: "ingest", Message: "failed to initialize model", Err: err}
	}

	facts, title, err := acquireFacts(ctx, opts, port, notify, log, start)
	if err != nil {
		return nil, err
	}

	if opts.FactsOnly {
		if opts.Output != "" {
			if err := content.SaveFacts(facts, opts.Output); err != nil {
				return nil, &PipelineError{Stage: "extract", Message: "failed to save facts", Err: err}
			}
		}
		done := progress.NewEvent(progress.StageComplete, fmt.Sprintf("extracted %d facts", len(facts)), 1, start)
		done.OutputFile = opts.Output
		done.LogFile = opts.LogFile
		notify(done)
		return nil, nil
	}

	cast := opts.Cast
	if len(cast) == 0 {
		cast = persona.CastForCount(opts.Speakers)
	}
	if opts.Topic != "" {
		title = opts.Topic
	}

	notify(progress.NewEvent(progress.StageDialogue, fmt.Sprintf("generating dialogue (%d speakers, %d facts)", len(cast), len(facts)), 0.45, start))

	orch := dialogue.NewOrchestrator(dialogue.NewLLMGenerator(port), dialogue.Config{
		FactsPerChunk: opts.FactsPerChunk,
		SkipIntro:     opts.SkipIntro,
		SkipOutro:     opts.SkipOutro,
		Tagger:        emotion.Tag,
		Logger:        log,
		OnChunk: func(covered, total int) {
			e := progress.NewEvent(progress.StageDialogue,
				fmt.Sprintf("covered %d/%d facts", covered, total),
				0.45+0.45*float64(covered)/float64(total), start)
			e.ChunkNum = covered
			e.ChunkTotal = total
			notify(e)
		},
	})

	tr, err := orch.Generate(ctx, dialogue.Request{
		Cast:  cast,
		Facts: facts,
		Topic: opts.Topic,
		Tone:  opts.Tone,
		Title: title,
	})
	if err != nil {
		return nil, &PipelineError{Stage: "dialogue", Message: "failed to generate dialogue", Err: err}
	}

	verdict := "passed"
	if !tr.Report.Passed {
		verdict = "accepted degraded"
	}
	notify(progress.NewEvent(progress.StageValidate,
		fmt.Sprintf("quality score %d (%s, %d issues)", tr.Report.Score, verdict, len(tr.Report.Issues)), 0.95, start))

	var sizeMB float64
	if opts.Output != "" {
		if err := dialogue.SaveTranscript(tr, opts.Output); err != nil {
			return nil, &PipelineError{Stage: "save", Message: "failed to save transcript", Err: err}
		}
		if info, err := os.Stat(opts.Output); err == nil {
			sizeMB = float64(info.Size()) / (1024 * 1024)
		}
	}

	done := progress.NewEvent(progress.StageComplete,
		fmt.Sprintf("generated %d turns", len(tr.Turns)), 1, start)
	done.OutputFile = opts.Output
	done.Duration = fmt.Sprintf("%d min", tr.EstimateMinutes())
	done.SizeMB = sizeMB
	done.LogFile = opts.LogFile
	notify(done)

	return tr, nil
}

// acquireFacts returns the fact pool and a provisional title, from a
// saved fact file or by ingesting and extracting the source.
func acquireFacts(ctx context.Context, opts Options, port completion.Port, notify progress.Callback, log *slog.Logger, start time.Time) ([]content.Fact, string, error) {
	if opts.FromFacts != "" {
		notify(progress.NewEvent(progress.StageExtract, fmt.Sprintf("loading facts from %s", opts.FromFacts), 0.3, start))
		facts, err := content.LoadFacts(opts.FromFacts)
		if err != nil {
			return nil, "", &PipelineError{Stage: "extract", Message: "failed to load facts", Err: err}
		}
		log.Debug("loaded saved facts", "path", opts.FromFacts, "count", len(facts))
		return facts, "", nil
	}

	notify(progress.NewEvent(progress.StageIngest, "ingesting source material", 0.05, start))

	var (
		c   *ingest.Content
		err error
	)
	if opts.RawText != "" {
		c, err = ingest.FromString(opts.RawText, opts.Topic)
	} else {
		c, err = ingest.NewIngester(opts.Input).Ingest(ctx, opts.Input)
	}
	if err != nil {
		return nil, "", &PipelineError{Stage: "ingest", Message: "failed to extract content", Err: err}
	}
	log.Debug("ingested source",
		"title", c.Title,
		"source", c.Source,
		"words", c.WordCount,
		"bytes", len(c.Text))

	if c.WordCount < minSourceWords {
		return nil, "", &PipelineError{
			Stage:   "ingest",
			Message: fmt.Sprintf("input too short (%d words, need at least %d for a meaningful conversation)", c.WordCount, minSourceWords),
		}
	}
	notify(progress.NewEvent(progress.StageIngest, fmt.Sprintf("ingested %d words from %s", c.WordCount, c.Source), 0.15, start))

	notify(progress.NewEvent(progress.StageExtract, "extracting facts", 0.2, start))
	facts, err := content.NewExtractor(port).Extract(ctx, c.Text, opts.FactLimit)
	if err != nil {
		return nil, "", &PipelineError{Stage: "extract", Message: "failed to extract facts", Err: err}
	}
	log.Debug("extracted facts", "count", len(facts))
	notify(progress.NewEvent(progress.StageExtract, fmt.Sprintf("extracted %d facts", len(facts)), 0.4, start))

	return facts, c.Title, nil
}

func resolvePort(ctx context.Context, opts Options) (completion.Port, error) {
	if opts.Port != nil {
		return opts.Port, nil
	}
	return completion.NewPort(ctx, opts.Model)
}
