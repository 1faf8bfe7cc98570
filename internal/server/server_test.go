package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/robolabs/robotutor/internal/engine"
	"github.com/robolabs/robotutor/internal/index"
	"github.com/robolabs/robotutor/internal/rag"
)

// ---------------------------------------------------------------------------
// Fake answerer for handler tests
// ---------------------------------------------------------------------------

// fakeAnswerer implements the answerer interface for tests. It records the
// last method invoked and returns configurable values.
type fakeAnswerer struct {
	// lastMethod records which Ask variant or operation was called.
	lastMethod string
	// lastQuestion records the question passed to the Ask variants.
	lastQuestion string
	// resp is returned by the Ask variants when err is nil.
	resp *rag.GeneratedResponse
	// ingestResult is returned by Ingest when err is nil.
	ingestResult *engine.IngestResult
	// stats is returned by Stats.
	stats index.Stats
	// err is returned by every fallible method.
	err error
}

func (f *fakeAnswerer) Ask(_ context.Context, q string) (*rag.GeneratedResponse, error) {
	f.lastMethod, f.lastQuestion = "plain", q
	return f.resp, f.err
}

func (f *fakeAnswerer) AskHybrid(_ context.Context, q string) (*rag.GeneratedResponse, error) {
	f.lastMethod, f.lastQuestion = "hybrid", q
	return f.resp, f.err
}

func (f *fakeAnswerer) AskMultiQuery(_ context.Context, q string) (*rag.GeneratedResponse, error) {
	f.lastMethod, f.lastQuestion = "multi", q
	return f.resp, f.err
}

func (f *fakeAnswerer) Ingest(_ context.Context, _, source string) (*engine.IngestResult, error) {
	f.lastMethod, f.lastQuestion = "ingest", source
	return f.ingestResult, f.err
}

func (f *fakeAnswerer) Stats() index.Stats { return f.stats }

// newTestServer builds a *Server with a fake engine and a private metrics
// registry, bypassing New so handlers can be invoked directly.
func newTestServer(eng answerer) *Server {
	return &Server{
		engine:  eng,
		cfg:     &Config{Port: 8080},
		log:     slog.New(slog.DiscardHandler),
		metrics: newServerMetrics(prometheus.NewRegistry()),
	}
}

func answerFixture() *rag.GeneratedResponse {
	return &rag.GeneratedResponse{
		Answer:          "SLAM builds a map while localizing in it.",
		Sources:         []rag.Source{{Title: "SLAM Fundamentals", Path: "slam.md"}},
		RetrievedChunks: 2,
	}
}

// ---------------------------------------------------------------------------
// POST /api/ask
// ---------------------------------------------------------------------------

func TestHandleAsk_Plain(t *testing.T) {
	t.Parallel()

	fake := &fakeAnswerer{resp: answerFixture()}
	s := newTestServer(fake)
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question":"what is SLAM?"}`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}
	if fake.lastMethod != "plain" {
		t.Errorf("expected plain mode, got %q", fake.lastMethod)
	}
	if fake.lastQuestion != "what is SLAM?" {
		t.Errorf("question = %q", fake.lastQuestion)
	}

	var resp askResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != "SLAM builds a map while localizing in it." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Path != "slam.md" {
		t.Errorf("sources = %+v", resp.Sources)
	}
	if resp.RetrievedChunks != 2 {
		t.Errorf("retrieved_chunks = %d, want 2", resp.RetrievedChunks)
	}
}

func TestHandleAsk_ModeSelection(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{"hybrid", "multi"} {
		fake := &fakeAnswerer{resp: answerFixture()}
		s := newTestServer(fake)
		req := httptest.NewRequest(http.MethodPost, "/api/ask",
			strings.NewReader(`{"question":"q","mode":"`+mode+`"}`))
		w := httptest.NewRecorder()

		s.handleAsk(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("mode %s: expected 200, got %d", mode, w.Code)
		}
		if fake.lastMethod != mode {
			t.Errorf("mode %s: engine saw %q", mode, fake.lastMethod)
		}
	}
}

func TestHandleAsk_UnknownMode(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeAnswerer{resp: answerFixture()})
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question":"q","mode":"psychic"}`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleAsk_MissingQuestion(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeAnswerer{})
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question":"   "}`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleAsk_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeAnswerer{})
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`not-json`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleAsk_EngineError(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeAnswerer{err: errors.New("model unavailable")})
	req := httptest.NewRequest(http.MethodPost, "/api/ask",
		strings.NewReader(`{"question":"q"}`))
	w := httptest.NewRecorder()

	s.handleAsk(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == "" {
		t.Error("expected non-empty error field")
	}
}

// ---------------------------------------------------------------------------
// POST /api/ingest
// ---------------------------------------------------------------------------

func TestHandleIngest_OK(t *testing.T) {
	t.Parallel()

	fake := &fakeAnswerer{
		ingestResult: &engine.IngestResult{ChunksProcessed: 3, VectorsStored: 3},
		stats:        index.Stats{TotalVectors: 3},
	}
	s := newTestServer(fake)
	req := httptest.NewRequest(http.MethodPost, "/api/ingest",
		strings.NewReader(`{"content":"Robots are nice.","source":"intro.md"}`))
	w := httptest.NewRecorder()

	s.handleIngest(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body: %s", w.Code, w.Body.String())
	}
	if fake.lastQuestion != "intro.md" {
		t.Errorf("source = %q", fake.lastQuestion)
	}

	var res engine.IngestResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ChunksProcessed != 3 || res.VectorsStored != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestHandleIngest_MissingSource(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeAnswerer{})
	req := httptest.NewRequest(http.MethodPost, "/api/ingest",
		strings.NewReader(`{"content":"text"}`))
	w := httptest.NewRecorder()

	s.handleIngest(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleIngest_EngineError(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeAnswerer{err: errors.New("embedding service down")})
	req := httptest.NewRequest(http.MethodPost, "/api/ingest",
		strings.NewReader(`{"content":"text","source":"a.md"}`))
	w := httptest.NewRecorder()

	s.handleIngest(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GET /api/stats
// ---------------------------------------------------------------------------

func TestHandleStats(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeAnswerer{
		stats: index.Stats{TotalVectors: 42, Dimensions: 768},
	})
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()

	s.handleStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats index.Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalVectors != 42 || stats.Dimensions != 768 {
		t.Errorf("stats = %+v", stats)
	}
}

// ---------------------------------------------------------------------------
// Routing through New
// ---------------------------------------------------------------------------

func TestNew_Routes(t *testing.T) {
	t.Parallel()

	s, err := New(&fakeAnswerer{resp: answerFixture()}, &Config{
		Logger: slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	for _, tc := range []struct {
		method, path string
		body         string
		wantCode     int
	}{
		{http.MethodPost, "/api/ask", `{"question":"q"}`, http.StatusOK},
		{http.MethodGet, "/api/ask", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/health", "", http.StatusOK},
		{http.MethodGet, "/api/ready", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	} {
		req, err := http.NewRequest(tc.method, ts.URL+tc.path, strings.NewReader(tc.body))
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.wantCode {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.wantCode, resp.StatusCode)
		}
	}
}

func TestNew_NilEngine(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error for nil engine")
	}
}
