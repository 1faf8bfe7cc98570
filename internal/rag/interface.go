// Package rag defines the shared data model and collaborator interfaces for
// the retrieval-augmented generation engine: document chunks, search results,
// retrieval output, and the embedding/completion providers.
// Concrete implementations (index, retriever, generator, providers) depend on
// this package so no layer ever depends on a specific backend.
package rag

import (
	"context"
)

// DocumentChunk is one retrievable text unit produced by the chunker.
// Chunks are created once per ingested document, embedded immediately, and
// never mutated afterwards.
type DocumentChunk struct {
	// ID uniquely identifies the chunk: "<sourcePath>-chunk-<seq>".
	ID string

	// Content is the raw text of the chunk.
	Content string

	// Metadata holds chunk provenance: "source" (always set), and optionally
	// "chapter_title" and "section".
	Metadata map[string]string

	// WordCount is the number of whitespace-separated words in Content.
	WordCount int
}

// SearchResult is a scored retrieval hit returned by the vector index.
type SearchResult struct {
	// ID is the stored entry's identifier.
	ID string

	// Content is the stored text content.
	Content string

	// Metadata holds the entry's open key-value metadata.
	Metadata map[string]string

	// Score is the cosine similarity against the query embedding, nominally
	// in [-1, 1]. NaN for zero-magnitude vectors.
	Score float64
}

// Source identifies a document that contributed results to a retrieval.
type Source struct {
	// Title is the human-readable title (chapter title when known, otherwise
	// the source path).
	Title string `json:"title"`

	// Path is the source document path the chunk came from.
	Path string `json:"source"`
}

// RetrievalResult is the output of one retrieval strategy, ready to be fed
// into the answer generator. It is ephemeral and owned by the caller.
type RetrievalResult struct {
	// Query is the query text (or " | "-joined queries for multi-query runs;
	// diagnostic only).
	Query string

	// Results are the surviving hits, sorted by score descending.
	Results []SearchResult

	// Context is the formatted evidence text handed to the LLM, or the
	// sentinel "No relevant context found in the knowledge base." when no
	// results survived filtering.
	Context string

	// Sources lists the contributing documents, deduplicated by path with the
	// first-seen title preserved.
	Sources []Source
}

// GeneratedResponse is the final answer to a user question.
type GeneratedResponse struct {
	// Answer is the generated answer text. Non-empty even when retrieval
	// found nothing.
	Answer string `json:"answer"`

	// Sources lists the documents cited by the answer.
	Sources []Source `json:"sources"`

	// RetrievedChunks is the number of chunks that backed the answer.
	RetrievedChunks int `json:"retrievedChunks"`
}

// Message is one turn handed to the chat-completion provider.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// CompletionOptions tune a single chat-completion call.
type CompletionOptions struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32

	// MaxTokens caps the number of tokens generated for this call.
	MaxTokens int
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer produces a chat completion for a message list. Implementations
// bound their own concurrency and apply retry/backoff and per-call timeouts;
// callers treat a returned error as opaque and final.
// Implementations must be safe to call from multiple goroutines.
type Completer interface {
	// Complete returns the assistant text for the given messages.
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
}
