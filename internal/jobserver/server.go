// Package jobserver exposes async dialogue generation as MCP tools over
// streamable HTTP, backed by DynamoDB job records and an S3 transcript
// archive.
package jobserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
)

// Config holds server configuration.
type Config struct {
	Port          int
	TableName     string
	S3Bucket      string
	PublicBaseURL string
	AWSRegion     string
	MaxJobs       int
	SecretPrefix  string // e.g. "/scribepod/mcp/"
	RequireAuth   bool
}

// DefaultConfig returns a Config populated from environment variables.
func DefaultConfig() Config {
	return Config{
		Port:          8000,
		TableName:     envOr("DYNAMODB_TABLE", "scribepod-dialogues"),
		S3Bucket:      envOr("S3_BUCKET", ""),
		PublicBaseURL: envOr("TRANSCRIPT_BASE_URL", ""),
		AWSRegion:     envOr("AWS_REGION", "us-east-1"),
		MaxJobs:       5,
		SecretPrefix:  envOr("SECRET_PREFIX", "/scribepod/mcp/"),
		RequireAuth:   envOr("REQUIRE_AUTH", "false") == "true",
	}
}

// Server is the MCP server for dialogue generation jobs.
type Server struct {
	cfg      Config
	mcp      *server.MCPServer
	store    *Store
	handlers *Handlers
	log      *slog.Logger
}

// New creates and configures the MCP job server.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Server, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	// Fetch secrets if running in AWS
	if cfg.SecretPrefix != "" {
		if err := loadSecrets(ctx, awsCfg, cfg.SecretPrefix, logger); err != nil {
			logger.Warn("failed to load secrets from Secrets Manager, falling back to env vars",
				"error", err)
		}
	}

	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET environment variable is required")
	}

	ddbClient := dynamodb.NewFromConfig(awsCfg)
	s3Client := s3.NewFromConfig(awsCfg)

	store := NewStore(ddbClient, cfg.TableName)
	archive := NewArchive(s3Client, cfg.S3Bucket, cfg.PublicBaseURL)
	taskMgr := NewTaskManager(ctx, store, archive, cfg.MaxJobs, logger)
	handlers := NewHandlers(taskMgr, store, logger)

	mcpServer := server.NewMCPServer(
		"scribepod",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	tools := ToolDefs()
	mcpServer.AddTool(tools[0], handlers.HandleGenerateDialogue)
	mcpServer.AddTool(tools[1], handlers.HandleGetDialogue)
	mcpServer.AddTool(tools[2], handlers.HandleListDialogues)

	return &Server{
		cfg:      cfg,
		mcp:      mcpServer,
		store:    store,
		handlers: handlers,
		log:      logger,
	}, nil
}

// Start runs the HTTP MCP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)

	// Stateless: every tool call carries what it needs, so no MCP session
	// affinity is required across requests.
	httpServer := server.NewStreamableHTTPServer(s.mcp,
		server.WithStateLess(true),
	)

	var handler http.Handler = httpServer
	if s.cfg.RequireAuth {
		handler = RequireAPIKey(s.store, s.log, handler)
	}

	s.log.Info("starting MCP job server", "addr", addr, "auth", s.cfg.RequireAuth)
	return http.ListenAndServe(addr, handler)
}

// loadSecrets fetches API keys from Secrets Manager and sets them as env vars.
func loadSecrets(ctx context.Context, cfg aws.Config, prefix string, logger *slog.Logger) error {
	client := secretsmanager.NewFromConfig(cfg)

	secrets := map[string]string{
		"ANTHROPIC_API_KEY": prefix + "ANTHROPIC_API_KEY",
		"GEMINI_API_KEY":    prefix + "GEMINI_API_KEY",
	}

	for envVar, secretID := range secrets {
		// Skip if already set in environment
		if os.Getenv(envVar) != "" {
			continue
		}

		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: &secretID,
		})
		if err != nil {
			logger.Info("secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if result.SecretString != nil {
			os.Setenv(envVar, *result.SecretString)
			logger.Info("loaded secret", "secret_id", secretID)
		}
	}

	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
