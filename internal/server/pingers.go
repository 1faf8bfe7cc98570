package server

import (
	"context"
	"fmt"

	"github.com/robolabs/robotutor/internal/rag"
)

// EmbedderPinger probes the embedding backend by embedding a single short
// text. It satisfies the Pinger interface and is used by GET /api/ready.
type EmbedderPinger struct {
	// embedder is the embedding provider to probe.
	embedder rag.Embedder
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewEmbedderPinger constructs an EmbedderPinger for the given embedder and
// backend name.
func NewEmbedderPinger(e rag.Embedder, name string) *EmbedderPinger {
	return &EmbedderPinger{embedder: e, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *EmbedderPinger) Name() string { return p.name }

// Ping embeds a single token and checks the result shape.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	out, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(out) != 1 || len(out[0]) == 0 {
		return fmt.Errorf("embed returned no vector")
	}
	return nil
}

// LLMPinger probes the chat backend by requesting a minimal completion.
// Each probe consumes a handful of tokens; keep readiness polling modest.
type LLMPinger struct {
	// completer is the chat provider to probe.
	completer rag.Completer
	// name identifies the backend in readiness responses.
	name string
}

// NewLLMPinger constructs an LLMPinger for the given completer and backend
// name.
func NewLLMPinger(c rag.Completer, name string) *LLMPinger {
	return &LLMPinger{completer: c, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping requests a single-token completion.
func (p *LLMPinger) Ping(ctx context.Context) error {
	_, err := p.completer.Complete(ctx, []rag.Message{
		{Role: "user", Content: "ping"},
	}, rag.CompletionOptions{MaxTokens: 1})
	if err != nil {
		return fmt.Errorf("completion failed: %w", err)
	}
	return nil
}
