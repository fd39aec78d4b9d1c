package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lioneltchami/scribepod/internal/chatapi"
	"github.com/lioneltchami/scribepod/internal/completion"
	"github.com/lioneltchami/scribepod/internal/observability"
	"github.com/lioneltchami/scribepod/internal/persona"
	"github.com/lioneltchami/scribepod/internal/session"
	"github.com/lioneltchami/scribepod/internal/stream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the interactive chat API over HTTP",
	RunE:  runServe,
}

var (
	flagServeAddr        string
	flagServeModel       string
	flagServeTTL         time.Duration
	flagServeMaxMessages int
	flagServeMaxTokens   int64
	flagServeSweepEvery  time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVarP(&flagServeModel, "model", "m", "haiku", "Reply model: "+strings.Join(completion.ModelNames(), ", "))
	serveCmd.Flags().DurationVar(&flagServeTTL, "session-ttl", 0, "Idle session lifetime (0 = default)")
	serveCmd.Flags().IntVar(&flagServeMaxMessages, "max-messages", 0, "Per-session message cap (0 = default)")
	serveCmd.Flags().Int64Var(&flagServeMaxTokens, "max-tokens", 0, "Per-session token budget (0 = default)")
	serveCmd.Flags().DurationVar(&flagServeSweepEvery, "sweep-every", 5*time.Minute, "Expired session sweep interval")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := validateModel(flagServeModel); err != nil {
		return err
	}
	if err := checkAPIKeys(flagServeModel); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := observability.InitLogger()

	port, err := completion.NewPort(ctx, flagServeModel)
	if err != nil {
		return err
	}

	store := session.NewStore()
	responder := stream.NewResponder(port, store, stream.Config{})
	personas := persona.NewMemoryStore(persona.Seed())
	cfg := session.Config{
		MaxMessages: flagServeMaxMessages,
		MaxTokens:   flagServeMaxTokens,
		TTL:         flagServeTTL,
	}

	srv := chatapi.NewServer(store, responder, personas, cfg, log)

	// The store never expires sessions on its own; the serving process
	// owns the sweep.
	go func() {
		ticker := time.NewTicker(flagServeSweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := store.SweepExpired(ctx, now.UTC()); n > 0 {
					log.Info("swept expired sessions", "count", n)
				}
			}
		}
	}()

	httpSrv := &http.Server{
		Addr:              flagServeAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("chat API listening", "addr", flagServeAddr, "model", flagServeModel)
	return serveHTTP(ctx, httpSrv)
}

// serveHTTP runs the server until ctx cancels, then drains connections.
func serveHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
