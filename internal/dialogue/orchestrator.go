package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lioneltchami/scribepod/internal/content"
	"github.com/lioneltchami/scribepod/internal/persona"
)

var (
	ErrNoCast  = errors.New("dialogue needs at least one persona")
	ErrNoFacts = errors.New("dialogue needs at least one fact")
)

// Config tunes orchestration. Zero-valued fields take defaults.
type Config struct {
	// FactsPerChunk is how many facts each body segment covers.
	FactsPerChunk int

	// MaxRegenerations bounds quality-driven body rewrites after the
	// initial generation.
	MaxRegenerations int

	// SkipIntro and SkipOutro drop the framing segments. The body is
	// produced either way.
	SkipIntro bool
	SkipOutro bool

	Tracker   TrackerConfig
	Validator ValidatorConfig

	// Tagger fills in emotion tags for turns the model left untagged.
	Tagger func(text string) []string

	// OnChunk, when set, is called after each body chunk with the count
	// of facts covered so far and the pool total.
	OnChunk func(covered, total int)

	Logger *slog.Logger
}

const (
	defaultFactsPerChunk    = 3
	defaultMaxRegenerations = 3
)

// Request describes one dialogue to produce.
type Request struct {
	Cast  []persona.Profile
	Facts []content.Fact
	Topic string
	Tone  string
	Title string
}

// Orchestrator drives a TurnGenerator through intro, fact-chunked body
// segments and outro, validating the body and regenerating it when the
// quality report fails. The best-scoring body is kept even when every
// attempt fails, with Passed left false on the report.
type Orchestrator struct {
	gen TurnGenerator
	cfg Config
	log *slog.Logger
}

func NewOrchestrator(gen TurnGenerator, cfg Config) *Orchestrator {
	if cfg.FactsPerChunk <= 0 {
		cfg.FactsPerChunk = defaultFactsPerChunk
	}
	if cfg.MaxRegenerations <= 0 {
		cfg.MaxRegenerations = defaultMaxRegenerations
	}
	if cfg.Tracker.TargetTurns == 0 {
		cfg.Tracker = DefaultTrackerConfig()
	}
	if cfg.Validator.MinTurns == 0 {
		cfg.Validator = DefaultValidatorConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{gen: gen, cfg: cfg, log: log}
}

// Generate produces a full transcript for the request. Validation and
// regeneration apply to the body only; intro and outro are framing and
// generated once each.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Transcript, error) {
	if len(req.Cast) == 0 {
		return nil, ErrNoCast
	}
	if len(req.Facts) == 0 {
		return nil, ErrNoFacts
	}
	for _, p := range req.Cast {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("persona %s: %w", p.ID, err)
		}
	}

	host := findHost(req.Cast)
	validator := NewValidator(req.Cast, o.cfg.Validator)

	var intro []Turn
	if !o.cfg.SkipIntro {
		turns, err := o.gen.GenerateTurns(ctx, TurnRequest{
			Kind:     SegmentIntro,
			Cast:     req.Cast,
			LeadID:   host,
			Mood:     MoodIntro,
			Topic:    req.Topic,
			Tone:     req.Tone,
			MinTurns: 2,
			MaxTurns: framingMaxTurns(req.Cast),
		})
		if err != nil {
			return nil, fmt.Errorf("intro: %w", err)
		}
		intro = turns
	}

	bestBody, bestReport, err := o.generateValidatedBody(ctx, req, intro, validator)
	if err != nil {
		return nil, err
	}

	turns := append([]Turn{}, intro...)
	turns = append(turns, bestBody...)

	if !o.cfg.SkipOutro {
		outro, err := o.gen.GenerateTurns(ctx, TurnRequest{
			Kind:     SegmentOutro,
			Cast:     req.Cast,
			LeadID:   host,
			Mood:     MoodOutro,
			History:  turns,
			Tone:     req.Tone,
			MinTurns: 2,
			MaxTurns: framingMaxTurns(req.Cast),
		})
		if err != nil {
			return nil, fmt.Errorf("outro: %w", err)
		}
		turns = append(turns, outro...)
	}

	EstimateOffsets(turns)
	o.tagUntagged(turns)

	return &Transcript{
		Title:  req.Title,
		Turns:  turns,
		Report: bestReport,
	}, nil
}

// generateValidatedBody runs the generate-validate-regenerate loop and
// returns the best body seen. A failed validation first tries the cheap
// repair of dropping flagged turns before spending a regeneration.
func (o *Orchestrator) generateValidatedBody(ctx context.Context, req Request, intro []Turn, validator *Validator) ([]Turn, QualityReport, error) {
	var bestBody []Turn
	bestReport := QualityReport{Score: -1}

	record := func(body []Turn, report QualityReport) {
		if report.Score > bestReport.Score {
			bestBody = body
			bestReport = report
		}
	}

	for regens := 0; ; regens++ {
		body, err := o.generateBody(ctx, req, intro)
		if err != nil {
			return nil, QualityReport{}, err
		}

		report := validator.Validate(body)
		record(body, report)
		if report.Passed {
			return body, report, nil
		}

		if filtered := FilterLowQualityTurns(body, report); len(filtered) != len(body) {
			filteredReport := validator.Validate(filtered)
			record(filtered, filteredReport)
			if filteredReport.Passed {
				return filtered, filteredReport, nil
			}
		}

		if regens == o.cfg.MaxRegenerations {
			o.log.Warn("accepting degraded dialogue",
				"score", bestReport.Score,
				"regenerations", regens,
				"issues", len(bestReport.Issues))
			return bestBody, bestReport, nil
		}
		o.log.Info("dialogue failed validation, regenerating",
			"attempt", regens+1,
			"score", report.Score)
	}
}

// generateBody walks the fact pool chunk by chunk until it is spent.
// Each chunk is one generator call, so a transient failure costs only
// that chunk's retries, not the whole body.
func (o *Orchestrator) generateBody(ctx context.Context, req Request, intro []Turn) ([]Turn, error) {
	tracker := NewTracker(req.Cast, req.Facts, o.cfg.Tracker)
	history := append([]Turn{}, intro...)
	ordinal := len(intro)

	var body []Turn
	for chunkIdx := 0; ; chunkIdx++ {
		chunk := tracker.NextFacts(o.cfg.FactsPerChunk)
		if len(chunk) == 0 {
			break
		}

		turns, err := o.gen.GenerateTurns(ctx, TurnRequest{
			Kind:     SegmentBody,
			Cast:     req.Cast,
			LeadID:   tracker.PickNextSpeaker(),
			Facts:    chunk,
			Mood:     tracker.Mood(),
			History:  history,
			Topic:    req.Topic,
			Tone:     req.Tone,
			MinTurns: 2 * len(chunk),
			MaxTurns: 3 * len(chunk),
		})
		if err != nil {
			return nil, fmt.Errorf("body chunk %d: %w", chunkIdx, err)
		}

		for i := range turns {
			turns[i].Ordinal = ordinal
			ordinal++
			tracker.RecordTurn(turns[i])
		}
		ids := make([]string, len(chunk))
		for i, f := range chunk {
			ids[i] = f.ID
		}
		tracker.MarkDiscussed(ids...)
		tracker.AdvanceMood()

		history = append(history, turns...)
		body = append(body, turns...)

		if o.cfg.OnChunk != nil {
			o.cfg.OnChunk(len(req.Facts)-tracker.FactsRemaining(), len(req.Facts))
		}
	}
	return body, nil
}

func (o *Orchestrator) tagUntagged(turns []Turn) {
	if o.cfg.Tagger == nil {
		return
	}
	for i := range turns {
		if len(turns[i].Emotions) == 0 {
			turns[i].Emotions = o.cfg.Tagger(turns[i].Text)
		}
	}
}

// findHost returns the first host's id, falling back to the first cast
// member when nobody carries the host role.
func findHost(cast []persona.Profile) string {
	for _, p := range cast {
		if p.Role == persona.RoleHost {
			return p.ID
		}
	}
	return cast[0].ID
}

func framingMaxTurns(cast []persona.Profile) int {
	n := len(cast) + 1
	if n < 2 {
		n = 2
	}
	return n
}
