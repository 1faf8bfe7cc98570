package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/robolabs/robotutor/internal/logging"
	"github.com/robolabs/robotutor/internal/server"
	"github.com/robolabs/robotutor/internal/tracing"
)

// NewServeCmd constructs the `robotutor serve` command, which starts the
// HTTP question answering API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the robotutor HTTP server",
		Long: `Start the robotutor HTTP server on localhost.

The server exposes POST /api/ask and POST /api/ingest plus health, stats,
and Prometheus metrics endpoints. Set ROBOTUTOR_SNAPSHOT to preload a
saved index at startup.

Examples:
  robotutor serve
  robotutor serve --port 9090
  ROBOTUTOR_SNAPSHOT=index.json MODEL_PROVIDER=openai robotutor serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Flags win over config; config (via env) wins over the defaults.
			if !cmd.Flags().Changed("host") {
				if v := os.Getenv("SERVER_HOST"); v != "" {
					host = v
				}
			}
			if !cmd.Flags().Changed("port") {
				if v := envInt("SERVER_PORT", 0); v > 0 {
					port = v
				}
			}

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Langfuse tracing is opt-in and a no-op when keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			pieces, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer pieces.close()

			srv, err := server.New(pieces.engine, &server.Config{
				Host:   host,
				Port:   port,
				Logger: log,
				Pingers: []server.Pinger{
					server.NewEmbedderPinger(pieces.embedder, "embedder"),
					server.NewLLMPinger(pieces.completer, "llm"),
				},
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
