package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/robolabs/robotutor/internal/engine"
	"github.com/robolabs/robotutor/internal/index"
	"github.com/robolabs/robotutor/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// Registry receives the server's Prometheus metrics. If nil, a private
	// registry is created and /metrics serves only this server's metrics.
	Registry *prometheus.Registry
}

// answerer is the interface the ask and ingest handlers call.
// *engine.Engine satisfies it; tests inject a fake.
type answerer interface {
	Ask(ctx context.Context, query string) (*rag.GeneratedResponse, error)
	AskHybrid(ctx context.Context, query string) (*rag.GeneratedResponse, error)
	AskMultiQuery(ctx context.Context, query string) (*rag.GeneratedResponse, error)
	Ingest(ctx context.Context, text, sourcePath string) (*engine.IngestResult, error)
	Stats() index.Stats
}

// Server is the HTTP server that wraps the question answering engine.
type Server struct {
	// engine handles ask and ingest requests.
	engine answerer
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus metrics for this server instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// Mode selects the retrieval strategy: "plain" (default), "hybrid",
	// or "multi".
	Mode string `json:"mode,omitempty"`
}

// askResponse is the JSON response for POST /api/ask.
type askResponse struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Sources are the citations backing the answer.
	Sources []rag.Source `json:"sources"`
	// RetrievedChunks is the number of evidence chunks used.
	RetrievedChunks int `json:"retrieved_chunks"`
}

// ingestRequest is the JSON body for POST /api/ingest.
type ingestRequest struct {
	// Content is the raw document text.
	Content string `json:"content"`
	// Source is the document path used as the chunk ID prefix.
	Source string `json:"source"`
}

// errorResponse is the JSON body for error replies.
type errorResponse struct {
	// Error is the human-readable failure description.
	Error string `json:"error"`
}
