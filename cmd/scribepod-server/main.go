package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lioneltchami/scribepod/internal/chatapi"
	"github.com/lioneltchami/scribepod/internal/completion"
	"github.com/lioneltchami/scribepod/internal/observability"
	"github.com/lioneltchami/scribepod/internal/persona"
	"github.com/lioneltchami/scribepod/internal/session"
	"github.com/lioneltchami/scribepod/internal/stream"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	logger := observability.InitLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := observability.InitTracer(ctx, "scribepod-server", "1.0.0")
	if err != nil {
		logger.Warn("Failed to init tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("Tracer shutdown error", "error", err)
			}
		}()
	}

	model := envOr("MODEL", "haiku")
	port, err := completion.NewPort(ctx, model)
	if err != nil {
		logger.Error("Failed to create completion port", "model", model, "error", err)
		os.Exit(1)
	}

	sessCfg := session.DefaultConfig()
	sessCfg.TTL = envDuration("SESSION_TTL", sessCfg.TTL)
	sessCfg.MaxMessages = envInt("SESSION_MAX_MESSAGES", sessCfg.MaxMessages)
	sessCfg.MaxTokens = envInt64("SESSION_MAX_TOKENS", sessCfg.MaxTokens)

	store := session.NewStore()
	responder := stream.NewResponder(port, store, stream.Config{})
	personas := persona.NewMemoryStore(persona.Seed())

	srv := chatapi.NewServer(store, responder, personas, sessCfg, logger)

	sweepEvery := envDuration("SWEEP_INTERVAL", 5*time.Minute)
	go func() {
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := store.SweepExpired(ctx, now.UTC()); n > 0 {
					logger.Info("Swept expired sessions", "count", n)
				}
			}
		}
	}()

	httpSrv := &http.Server{
		Addr:              ":" + envOr("PORT", "8080"),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("Chat API listening", "addr", httpSrv.Addr, "model", model, "session_ttl", sessCfg.TTL)

	if err := runServer(ctx, httpSrv); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
