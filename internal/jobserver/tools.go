package jobserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scribepod-mcp")

// ToolDefs returns the MCP tool definitions.
func ToolDefs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "generate_dialogue",
			Description: "Generate a multi-speaker dialogue from a URL or text input. Starts an async job and returns a dialogue ID. Use get_dialogue to check progress.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"input_url": map[string]any{
						"type":        "string",
						"description": "URL of content to turn into a dialogue",
					},
					"input_text": map[string]any{
						"type":        "string",
						"description": "Raw text to turn into a dialogue (alternative to input_url)",
					},
					"model": map[string]any{
						"type":        "string",
						"description": "Generation model: haiku, sonnet, nova-lite, gemini-flash, gemini-pro",
						"default":     "haiku",
					},
					"tone": map[string]any{
						"type":        "string",
						"description": "Conversation tone: casual, technical, educational",
						"default":     "casual",
					},
					"speakers": map[string]any{
						"type":        "integer",
						"description": "Number of speakers (1-3)",
						"default":     2,
					},
					"topic": map[string]any{
						"type":        "string",
						"description": "Focus topic to emphasize in the conversation",
					},
					"fact_limit": map[string]any{
						"type":        "integer",
						"description": "Maximum facts to extract from the source (0 = no cap)",
						"default":     0,
					},
				},
			},
		},
		{
			Name:        "get_dialogue",
			Description: "Get the status and details of a dialogue by ID. Use this to check on a running generation or retrieve a completed transcript's URL.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"dialogue_id": map[string]any{
						"type":        "string",
						"description": "The dialogue ID returned from generate_dialogue",
					},
				},
				Required: []string{"dialogue_id"},
			},
		},
		{
			Name:        "list_dialogues",
			Description: "List all generated dialogues, newest first. Returns dialogue IDs, titles, status, and transcript URLs.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results (default 20)",
						"default":     20,
					},
					"cursor": map[string]any{
						"type":        "string",
						"description": "Pagination cursor from a previous list_dialogues call",
					},
				},
			},
		},
	}
}

// Handlers contains tool handler implementations.
type Handlers struct {
	tasks *TaskManager
	store *Store
	log   *slog.Logger
}

// NewHandlers creates tool handlers.
func NewHandlers(tasks *TaskManager, store *Store, logger *slog.Logger) *Handlers {
	return &Handlers{tasks: tasks, store: store, log: logger}
}

// HandleGenerateDialogue starts a dialogue generation job.
func (h *Handlers) HandleGenerateDialogue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.generate_dialogue")
	defer span.End()

	auth := AuthFromContext(ctx)
	genReq := GenerateRequest{
		InputURL:  mcp.ParseString(req, "input_url", ""),
		InputText: mcp.ParseString(req, "input_text", ""),
		Model:     mcp.ParseString(req, "model", "haiku"),
		Tone:      mcp.ParseString(req, "tone", "casual"),
		Topic:     mcp.ParseString(req, "topic", ""),
		Speakers:  parseIntParam(req, "speakers", 2),
		FactLimit: parseIntParam(req, "fact_limit", 0),
		Owner:     "mcp-server",
		UserID:    auth.UserID,
	}

	span.SetAttributes(
		attribute.String("input_url", genReq.InputURL),
		attribute.String("model", genReq.Model),
		attribute.String("tone", genReq.Tone),
		attribute.Int("speakers", genReq.Speakers),
	)

	if genReq.InputURL == "" && genReq.InputText == "" {
		span.SetStatus(codes.Error, "missing input")
		return mcp.NewToolResultError("either input_url or input_text is required"), nil
	}

	id, err := h.tasks.StartJob(ctx, genReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start job failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to start job: %v", err)), nil
	}

	span.SetAttributes(attribute.String("dialogue_id", id))
	h.log.InfoContext(ctx, "dialogue generation started",
		"dialogue_id", id, "model", genReq.Model, "user_id", auth.UserID)

	result := map[string]any{
		"dialogue_id": id,
		"status":      "submitted",
		"message":     "Dialogue generation started. Use get_dialogue with this dialogue_id to check progress.",
	}
	return jsonResult(result)
}

// HandleGetDialogue returns dialogue details.
func (h *Handlers) HandleGetDialogue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_dialogue")
	defer span.End()

	id := mcp.ParseString(req, "dialogue_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing dialogue_id")
		return mcp.NewToolResultError("dialogue_id is required"), nil
	}

	span.SetAttributes(attribute.String("dialogue_id", id))

	item, err := h.store.GetDialogue(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get dialogue failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to get dialogue: %v", err)), nil
	}
	if item == nil {
		span.SetStatus(codes.Error, "not found")
		return mcp.NewToolResultError(fmt.Sprintf("dialogue %s not found", id)), nil
	}

	result := map[string]any{
		"dialogue_id":      item.DialogueID,
		"status":           item.Status,
		"progress_percent": item.ProgressPercent,
		"stage_message":    item.StageMessage,
		"created_at":       item.CreatedAt,
	}

	if item.Title != "" {
		result["title"] = item.Title
	}
	if item.Summary != "" {
		result["summary"] = item.Summary
	}
	if item.TranscriptURL != "" {
		result["transcript_url"] = item.TranscriptURL
	}
	if item.Duration != "" {
		result["duration"] = item.Duration
	}
	if item.TurnCount > 0 {
		result["turn_count"] = item.TurnCount
		result["quality_score"] = item.QualityScore
		result["passed"] = item.Passed
	}
	if item.ErrorMessage != "" {
		result["error"] = item.ErrorMessage
	}
	if item.Model != "" {
		result["model"] = item.Model
	}
	if item.Tone != "" {
		result["tone"] = item.Tone
	}
	if item.Speakers > 0 {
		result["speakers"] = item.Speakers
	}

	return jsonResult(result)
}

// HandleListDialogues returns a paginated list of dialogues.
func (h *Handlers) HandleListDialogues(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.list_dialogues")
	defer span.End()

	limit := parseIntParam(req, "limit", 20)
	cursor := mcp.ParseString(req, "cursor", "")

	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.String("cursor", cursor),
	)

	items, nextCursor, err := h.store.ListDialogues(ctx, limit, cursor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list dialogues failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to list dialogues: %v", err)), nil
	}

	span.SetAttributes(attribute.Int("result_count", len(items)))

	dialogues := make([]map[string]any, 0, len(items))
	for _, item := range items {
		d := map[string]any{
			"dialogue_id": item.DialogueID,
			"status":      item.Status,
			"created_at":  item.CreatedAt,
		}
		if item.Title != "" {
			d["title"] = item.Title
		}
		if item.TranscriptURL != "" {
			d["transcript_url"] = item.TranscriptURL
		}
		if item.Duration != "" {
			d["duration"] = item.Duration
		}
		if item.TurnCount > 0 {
			d["turn_count"] = item.TurnCount
		}
		dialogues = append(dialogues, d)
	}

	result := map[string]any{
		"dialogues": dialogues,
		"count":     len(dialogues),
	}
	if nextCursor != "" {
		result["next_cursor"] = nextCursor
	}

	return jsonResult(result)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseIntParam(req mcp.CallToolRequest, key string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	raw, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultVal
	}
}
