package jobserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lioneltchami/scribepod/internal/observability"
	"github.com/lioneltchami/scribepod/internal/pipeline"
	"github.com/lioneltchami/scribepod/internal/progress"
)

// GenerateRequest holds parameters for a dialogue generation job.
type GenerateRequest struct {
	InputURL  string
	InputText string
	Model     string
	Tone      string
	Topic     string
	Speakers  int
	FactLimit int
	Owner     string
	UserID    string // authenticated user ID (empty for anonymous)
}

// TaskManager manages async dialogue generation jobs.
type TaskManager struct {
	store   *Store
	archive *Archive
	log     *slog.Logger
	baseCtx context.Context // cancelled on SIGTERM for graceful shutdown

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	maxJobs int
	running int
}

// NewTaskManager creates a task manager.
// baseCtx should be cancelled on SIGTERM so job goroutines can clean up.
func NewTaskManager(baseCtx context.Context, store *Store, archive *Archive, maxJobs int, logger *slog.Logger) *TaskManager {
	if maxJobs <= 0 {
		maxJobs = 5
	}
	return &TaskManager{
		store:   store,
		archive: archive,
		log:     logger,
		baseCtx: baseCtx,
		cancels: make(map[string]context.CancelFunc),
		maxJobs: maxJobs,
	}
}

// StartJob creates a DynamoDB record and runs the pipeline in a goroutine.
// Returns the dialogue ID immediately.
func (tm *TaskManager) StartJob(ctx context.Context, req GenerateRequest) (string, error) {
	id, err := NewDialogueID()
	if err != nil {
		return "", err
	}

	tm.mu.Lock()
	if tm.running >= tm.maxJobs {
		tm.mu.Unlock()
		return "", fmt.Errorf("max concurrent jobs reached (%d)", tm.maxJobs)
	}
	tm.running++

	// Derive the goroutine context from baseCtx (cancelled on SIGTERM) rather
	// than the HTTP request context (cancelled when the response is sent).
	// Carry the trace span from the request for observability linking.
	jobCtx := observability.DetachTraceContextFrom(ctx, tm.baseCtx)
	jobCtx, cancel := context.WithCancel(jobCtx)
	tm.cancels[id] = cancel
	tm.mu.Unlock()

	if err := tm.store.CreateJob(ctx, id, req.Owner, req.InputURL, req.Topic, req.Model, req.Tone, req.Speakers); err != nil {
		cancel()
		tm.mu.Lock()
		delete(tm.cancels, id)
		tm.running--
		tm.mu.Unlock()
		return "", fmt.Errorf("create job: %w", err)
	}

	go tm.runJob(jobCtx, id, req)

	return id, nil
}

// CancelJob cancels a running job.
func (tm *TaskManager) CancelJob(id string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if cancel, ok := tm.cancels[id]; ok {
		cancel()
	}
}

func (tm *TaskManager) runJob(ctx context.Context, id string, req GenerateRequest) {
	ctx, span := tracer.Start(ctx, "job.run",
		trace.WithAttributes(attribute.String("dialogue_id", id)),
	)
	defer span.End()

	defer func() {
		// On shutdown (SIGTERM), mark any in-progress job as failed so it
		// doesn't appear stuck in "generating" forever.
		if ctx.Err() != nil {
			failCtx, failCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer failCancel()
			tm.store.FailJob(failCtx, id, "server shutdown during processing")
			tm.log.Info("marked job failed on shutdown", "dialogue_id", id)
		}
		tm.mu.Lock()
		delete(tm.cancels, id)
		tm.running--
		tm.mu.Unlock()
	}()

	log := tm.log.With("dialogue_id", id)

	// Throttle DynamoDB writes: max 1 per 2 seconds except on stage transitions.
	var lastWrite time.Time
	var lastStage progress.Stage

	notify := func(evt progress.Event) {
		now := time.Now()
		stageChanged := evt.Stage != lastStage
		throttled := now.Sub(lastWrite) < 2*time.Second

		if throttled && !stageChanged {
			return
		}

		if stageChanged {
			log.DebugContext(ctx, "stage transition", "stage", evt.Stage, "message", evt.Message, "percent", evt.Percent)
			span.AddEvent("stage_transition",
				trace.WithAttributes(
					attribute.String("stage", string(evt.Stage)),
					attribute.Float64("percent", evt.Percent),
				),
			)
		}

		status := mapStage(evt.Stage)
		if err := tm.store.UpdateProgress(ctx, id, status, evt.Percent, evt.Message); err != nil {
			log.WarnContext(ctx, "update progress failed", "error", err)
		}
		lastWrite = now
		lastStage = evt.Stage
	}

	workDir, err := os.MkdirTemp("", "scribepod-job-*")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create work dir failed")
		tm.store.FailJob(ctx, id, fmt.Sprintf("create work dir: %v", err))
		return
	}
	defer os.RemoveAll(workDir)

	if req.InputURL == "" && req.InputText == "" {
		span.SetStatus(codes.Error, "no input")
		tm.store.FailJob(ctx, id, "no input provided")
		return
	}

	model := req.Model
	if model == "" {
		model = "haiku"
	}
	tone := req.Tone
	if tone == "" {
		tone = "casual"
	}
	speakers := req.Speakers
	if speakers == 0 {
		speakers = 2
	}

	outputPath := filepath.Join(workDir, id+".json")
	opts := pipeline.Options{
		Input:     req.InputURL,
		RawText:   req.InputText,
		Output:    outputPath,
		Topic:     req.Topic,
		Tone:      tone,
		Model:     model,
		Speakers:  speakers,
		FactLimit: req.FactLimit,
		Logger:    log,
	}

	jobStart := time.Now()
	log.InfoContext(ctx, "job starting",
		"model", model, "tone", tone, "speakers", speakers, "input_url", req.InputURL)

	tr, err := pipeline.Run(ctx, opts, notify)
	if err != nil {
		elapsed := time.Since(jobStart).Round(time.Second)
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		log.ErrorContext(ctx, "job failed", "error", err, "elapsed", elapsed.String())
		tm.store.FailJob(ctx, id, err.Error())
		return
	}

	transcriptJSON, err := json.Marshal(tr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal transcript failed")
		tm.store.FailJob(ctx, id, fmt.Sprintf("marshal transcript: %v", err))
		return
	}

	var sizeMB float64
	if info, err := os.Stat(outputPath); err == nil {
		sizeMB = float64(info.Size()) / (1024 * 1024)
	}

	tm.store.UpdateProgress(ctx, id, JobStatusValidating, 0.97, "Archiving transcript...")
	key, url, err := tm.archive.Upload(ctx, id, outputPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "archive failed")
		log.ErrorContext(ctx, "transcript archive failed", "error", err)
		tm.store.FailJob(ctx, id, fmt.Sprintf("archive transcript: %v", err))
		return
	}

	result := JobResult{
		Title:          tr.Title,
		Summary:        tr.Summary,
		TranscriptKey:  key,
		TranscriptURL:  url,
		TranscriptJSON: string(transcriptJSON),
		Duration:       fmt.Sprintf("%d min", tr.EstimateMinutes()),
		TurnCount:      len(tr.Turns),
		Score:          tr.Report.Score,
		Passed:         tr.Report.Passed,
		SizeMB:         sizeMB,
	}
	if err := tm.store.CompleteJob(ctx, id, result); err != nil {
		log.ErrorContext(ctx, "complete job failed", "error", err)
	}

	if req.UserID != "" {
		inputChars := len(req.InputText)
		if inputChars == 0 && req.InputURL != "" {
			inputChars = 5000 // estimate for URL-sourced content
		}
		outputChars := 0
		for _, turn := range tr.Turns {
			outputChars += len(turn.Text)
		}

		if err := tm.store.RecordUsage(ctx, id, req.UserID, model, inputChars, outputChars, len(tr.Turns)); err != nil {
			log.WarnContext(ctx, "record usage failed", "error", err)
		} else {
			cost := EstimateCost(model, inputChars, outputChars)
			log.InfoContext(ctx, "usage recorded", "user_id", req.UserID, "cost_usd", cost)
		}
	}

	elapsed := time.Since(jobStart).Round(time.Second)
	span.SetAttributes(
		attribute.String("title", tr.Title),
		attribute.String("transcript_url", url),
		attribute.Int("turn_count", len(tr.Turns)),
		attribute.Int("quality_score", tr.Report.Score),
	)
	span.SetStatus(codes.Ok, "complete")
	log.InfoContext(ctx, "job complete",
		"title", tr.Title, "transcript_url", url, "turns", len(tr.Turns),
		"score", tr.Report.Score, "elapsed", elapsed.String())
}

// mapStage maps a pipeline progress stage to a job status.
func mapStage(stage progress.Stage) JobStatus {
	switch stage {
	case progress.StageIngest:
		return JobStatusIngesting
	case progress.StageExtract:
		return JobStatusExtracting
	case progress.StageDialogue:
		return JobStatusGenerating
	case progress.StageValidate:
		return JobStatusValidating
	case progress.StageComplete:
		return JobStatusComplete
	default:
		return JobStatusSubmitted
	}
}
