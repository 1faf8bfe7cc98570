package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	name string
	err  error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// probeReady runs handleReady on a server carrying the given pingers and
// returns the status code with the decoded body.
func probeReady(t *testing.T, pingers ...Pinger) (int, readyResponse) {
	t.Helper()

	s := newTestServer(&fakeAnswerer{})
	s.pingers = pingers

	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return w.Code, resp
}

func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeAnswerer{})
	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d, body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status: expected %q, got %q", "ok", body["status"])
	}
}

func TestHandleReady_NoPingers(t *testing.T) {
	t.Parallel()

	code, resp := probeReady(t)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !resp.Ready {
		t.Errorf("expected ready:true with no pingers")
	}
	if len(resp.Checks) != 0 {
		t.Errorf("expected 0 checks, got %d", len(resp.Checks))
	}
}

func TestHandleReady_AllHealthy(t *testing.T) {
	t.Parallel()

	code, resp := probeReady(t,
		&fakePinger{name: "embedder"},
		&fakePinger{name: "llm"},
	)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if !resp.Ready {
		t.Errorf("expected ready:true")
	}
	if len(resp.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(resp.Checks))
	}
	for _, c := range resp.Checks {
		if !c.OK {
			t.Errorf("check %q: expected ok:true", c.Name)
		}
		if c.Error != "" {
			t.Errorf("check %q: expected no error, got %q", c.Name, c.Error)
		}
	}
}

func TestHandleReady_OneFailing(t *testing.T) {
	t.Parallel()

	code, resp := probeReady(t,
		&fakePinger{name: "embedder"},
		&fakePinger{name: "llm", err: errors.New("connection refused")},
	)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if resp.Ready {
		t.Errorf("expected ready:false")
	}

	var llmCheck *readyCheck
	for i := range resp.Checks {
		if resp.Checks[i].Name == "llm" {
			llmCheck = &resp.Checks[i]
		}
	}
	if llmCheck == nil {
		t.Fatal("llm check missing from response")
	}
	if llmCheck.OK {
		t.Errorf("llm check: expected ok:false")
	}
	if llmCheck.Error == "" {
		t.Errorf("llm check: expected non-empty error")
	}
}

func TestHandleReady_AllFailing(t *testing.T) {
	t.Parallel()

	code, resp := probeReady(t,
		&fakePinger{name: "embedder", err: errors.New("timeout")},
		&fakePinger{name: "llm", err: errors.New("connection refused")},
	)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if resp.Ready {
		t.Errorf("expected ready:false")
	}
	for _, c := range resp.Checks {
		if c.OK {
			t.Errorf("check %q: expected ok:false", c.Name)
		}
	}
}

func TestHandleReady_ContentType(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeAnswerer{})
	s.pingers = []Pinger{&fakePinger{name: "llm", err: errors.New("down")}}

	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
}
