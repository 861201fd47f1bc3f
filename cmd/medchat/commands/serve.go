package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/medchat-go/internal/audit"
	"github.com/54b3r/medchat-go/internal/ingestion"
	"github.com/54b3r/medchat-go/internal/logging"
	"github.com/54b3r/medchat-go/internal/server"
	"github.com/54b3r/medchat-go/internal/store"
	"github.com/54b3r/medchat-go/internal/tracing"
)

// NewServeCmd constructs the `medchat serve` command, which starts the HTTP
// server.
func NewServeCmd() *cobra.Command {
	var (
		host     string
		port     int
		watch    string
		debounce time.Duration
		chunker  ingestion.Chunker
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MedChat HTTP server",
		Long: `Start the MedChat HTTP server.

The server exposes a JSON and SSE API for asking questions, reading chat
history and managing the knowledge base, plus health, readiness and
Prometheus metrics endpoints. The knowledge base is loaded in the
background; until it is ready medical questions are answered without
references.

With --watch, the given dataset file or directory is re-ingested and the
index rebuilt whenever it changes.

Examples:
  medchat serve
  medchat serve --port 9090
  medchat serve --watch ./dataset
  MODEL_PROVIDER=ollama medchat serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("MEDCHAT_HOST", "127.0.0.1")
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("MEDCHAT_PORT", 8080)
			}

			if flush, ok := tracing.Enable(); ok {
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			svc, err := buildService(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer svc.close()

			history, closeHistory := openHistory(log)
			defer closeHistory()

			go func() {
				ready := svc.pipeline.InitRAG(ctx)
				log.Info("knowledge base warm-up finished", slog.Bool("ready", ready))
			}()

			if watch != "" {
				if err := startWatcher(ctx, svc, watch, debounce, chunker, log); err != nil {
					return fmt.Errorf("serve: %w", err)
				}
			}

			srv, err := server.New(svc.pipeline, history, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: buildPingers(svc),
				APIKey:  os.Getenv("MEDCHAT_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx) //nolint:wrapcheck // CLI entry point
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (env: MEDCHAT_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (env: MEDCHAT_PORT)")
	cmd.Flags().StringVar(&watch, "watch", "", "Dataset file or directory to re-ingest on change")
	cmd.Flags().DurationVar(&debounce, "watch-debounce", ingestion.DefaultDebounce, "Quiet period before a change triggers a rebuild")
	addChunkerFlags(cmd, &chunker)

	return cmd
}

// openHistory opens the conversation store. MEDCHAT_HISTORY_DB overrides
// the default path (~/.medchat/history.db); "disabled" turns history off.
// Failures disable history rather than the server.
func openHistory(log *slog.Logger) (store.ConversationStore, func()) {
	noop := func() {}
	dbPath := os.Getenv("MEDCHAT_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via MEDCHAT_HISTORY_DB=disabled")
		return nil, noop
	}
	if dbPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, noop
		}
		dbPath = p
	}

	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, noop
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}

// buildPingers returns the readiness probes for the wired dependencies.
func buildPingers(svc *service) []server.Pinger {
	pingers := []server.Pinger{
		server.NewLLMPinger(svc.provider.HealthCheck(), svc.model, string(svc.provider.Backend)),
	}
	if svc.kb != nil {
		if svc.kb.qdrant != nil {
			pingers = append(pingers, server.NewQdrantPinger(svc.kb.qdrant.Client()))
		}
		pingers = append(pingers, server.NewIndexPinger(svc.kb.manager))
	}
	return pingers
}

// startWatcher rebuilds the index from source whenever it changes.
func startWatcher(ctx context.Context, svc *service, source string, debounce time.Duration, chunker ingestion.Chunker, log *slog.Logger) error {
	if svc.kb == nil {
		return fmt.Errorf("--watch requires retrieval to be enabled (USE_RAG)")
	}
	exclude := persistedFiles(svc.kb)
	w, err := ingestion.NewWatcher(source, debounce, exclude, log)
	if err != nil {
		return err
	}

	go func() {
		err := w.Run(ctx, func(ctx context.Context) error {
			chunks, err := ingestion.Load(ctx, source, &ingestion.Config{Chunker: chunker, Exclude: exclude, Logger: log})
			if err != nil {
				return err
			}
			if _, err := svc.pipeline.RebuildIndex(ctx, chunks); err != nil {
				return err
			}
			st := svc.pipeline.Status()
			audit.LogRebuild(log, audit.Rebuild{
				Origin:    "watch",
				Source:    source,
				Backend:   st.Backend,
				Chunks:    st.ChunksCount,
				Dimension: st.Dimension,
			})
			return nil
		})
		if err != nil {
			log.Error("dataset watcher stopped", slog.Any("error", err))
		}
	}()
	log.Info("watching dataset for changes", slog.String("source", source), slog.Duration("debounce", debounce))
	return nil
}
