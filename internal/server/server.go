// Package server implements the HTTP server that exposes the question
// answering engine via a small JSON API. The server is started by the
// `robotutor serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robolabs/robotutor/internal/logging"
	"github.com/robolabs/robotutor/internal/rag"
)

// New constructs a Server from the provided engine and config.
func New(eng answerer, cfg *Config) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full retrieval plus generation round.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		engine:  eng,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(reg),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stopRL

	wrap := func(name string, h http.HandlerFunc) http.Handler {
		return requestLogger(cfg.Logger, s.metrics, name, rl.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", wrap("ask", s.handleAsk))
	mux.Handle("POST /api/ingest", wrap("ingest", s.handleIngest))
	mux.Handle("GET /api/stats", wrap("stats", s.handleStats))
	mux.Handle("GET /api/health", requestLogger(cfg.Logger, s.metrics, "health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", requestLogger(cfg.Logger, s.metrics, "ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the server's HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAsk handles POST /api/ask requests.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = "plain"
	}

	start := time.Now()
	var (
		resp *rag.GeneratedResponse
		err  error
	)
	switch mode {
	case "plain":
		resp, err = s.engine.Ask(r.Context(), req.Question)
	case "hybrid":
		resp, err = s.engine.AskHybrid(r.Context(), req.Question)
	case "multi":
		resp, err = s.engine.AskMultiQuery(r.Context(), req.Question)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q (valid: plain, hybrid, multi)", req.Mode))
		return
	}
	elapsed := time.Since(start)
	s.metrics.askDurationSeconds.WithLabelValues(mode).Observe(elapsed.Seconds())

	if err != nil {
		s.metrics.askRequestsTotal.WithLabelValues(mode, "error").Inc()
		log.Error("ask failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.metrics.askRequestsTotal.WithLabelValues(mode, "ok").Inc()

	writeJSON(w, http.StatusOK, askResponse{
		Answer:          resp.Answer,
		Sources:         resp.Sources,
		RetrievedChunks: resp.RetrievedChunks,
	})
}

// handleIngest handles POST /api/ingest requests.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	res, err := s.engine.Ingest(r.Context(), req.Content, req.Source)
	if err != nil {
		s.metrics.ingestRequestsTotal.WithLabelValues("error").Inc()
		log.Error("ingest failed", slog.String("source", req.Source), slog.Any("error", err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.metrics.ingestRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.ingestChunksTotal.Add(float64(res.ChunksProcessed))

	s.metrics.indexVectors.Set(float64(s.engine.Stats().TotalVectors))
	writeJSON(w, http.StatusOK, res)
}

// handleStats handles GET /api/stats requests.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.engine.Stats()
	s.metrics.indexVectors.Set(float64(stats.TotalVectors))
	writeJSON(w, http.StatusOK, stats)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
