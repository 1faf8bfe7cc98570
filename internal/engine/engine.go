// Package engine orchestrates the question answering pipeline: ingest
// (chunk, embed, index), retrieve, and generate. It owns the in-memory
// vector index and exposes the operations the CLI and HTTP server surface.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/robolabs/robotutor/internal/chunker"
	"github.com/robolabs/robotutor/internal/generator"
	"github.com/robolabs/robotutor/internal/index"
	"github.com/robolabs/robotutor/internal/rag"
	"github.com/robolabs/robotutor/internal/retriever"
	"github.com/robolabs/robotutor/internal/store"
)

// embedBatchSize caps how many chunks are sent to the embedding provider in
// a single request.
const embedBatchSize = 32

// Options configure an Engine.
type Options struct {
	// Logger receives pipeline progress and soft-failure warnings.
	// Defaults to slog.Default.
	Logger *slog.Logger

	// Chunking tunes document splitting.
	Chunking chunker.Options

	// Retrieval tunes plain search defaults.
	Retrieval retriever.Options

	// Generation tunes answer generation.
	Generation generator.Options

	// History, when non-nil, records every answered question. Failures are
	// logged and never surface to the caller.
	History store.HistoryStore
}

// Engine is the question answering pipeline handle. It is safe for
// concurrent use; ingestion and queries may interleave.
type Engine struct {
	log       *slog.Logger
	embedder  rag.Embedder
	idx       *index.Index
	retriever *retriever.Retriever
	generator *generator.Generator
	opts      Options
}

// IngestResult summarizes a completed ingestion.
type IngestResult struct {
	// ChunksProcessed is the number of chunks produced from the document.
	ChunksProcessed int `json:"chunks_processed"`
	// VectorsStored is the number of vectors written to the index.
	VectorsStored int `json:"vectors_stored"`
}

// New constructs an Engine over the given providers and index.
func New(embedder rag.Embedder, completer rag.Completer, idx *index.Index, opts Options) (*Engine, error) {
	if idx == nil {
		return nil, fmt.Errorf("engine: index must not be nil")
	}
	r, err := retriever.New(embedder, idx)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	g, err := generator.New(completer)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Generation == (generator.Options{}) {
		opts.Generation = generator.DefaultOptions()
	}
	return &Engine{
		log:       opts.Logger,
		embedder:  embedder,
		idx:       idx,
		retriever: r,
		generator: g,
		opts:      opts,
	}, nil
}

// Ingest splits text into chunks, embeds them, and stores the vectors.
// Existing chunks from the same source are removed first, so re-ingesting a
// revised document replaces it rather than duplicating it.
func (e *Engine) Ingest(ctx context.Context, text, sourcePath string) (*IngestResult, error) {
	if removed := e.idx.DeleteByPrefix(sourcePath + "-chunk-"); removed > 0 {
		e.log.Info("engine: replaced existing document chunks",
			slog.String("source", sourcePath),
			slog.Int("removed", removed),
		)
	}

	chunks := chunker.Chunk(text, sourcePath, e.opts.Chunking)
	if len(chunks) == 0 {
		return &IngestResult{}, nil
	}

	stored := 0
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		embeddings, err := e.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("engine: embedding batch failed: %w", err)
		}
		if len(embeddings) != len(batch) {
			return nil, fmt.Errorf("engine: expected %d embeddings, got %d", len(batch), len(embeddings))
		}

		entries := make([]index.Entry, len(batch))
		for i, c := range batch {
			entries[i] = index.Entry{
				ID:        c.ID,
				Embedding: embeddings[i],
				Content:   c.Content,
				Metadata:  c.Metadata,
			}
		}
		if err := e.idx.AddBatch(entries); err != nil {
			return nil, fmt.Errorf("engine: indexing batch failed: %w", err)
		}
		stored += len(entries)
	}

	e.log.Info("engine: document ingested",
		slog.String("source", sourcePath),
		slog.Int("chunks", len(chunks)),
		slog.Int("vectors", stored),
	)
	return &IngestResult{ChunksProcessed: len(chunks), VectorsStored: stored}, nil
}

// IngestFile reads a document from disk and ingests it. The file's path is
// used as the chunk ID prefix and source metadata.
func (e *Engine) IngestFile(ctx context.Context, path string) (*IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine: read %s: %w", path, err)
	}
	return e.Ingest(ctx, string(data), filepath.ToSlash(path))
}

// Ask retrieves evidence for query and generates a grounded answer.
func (e *Engine) Ask(ctx context.Context, query string) (*rag.GeneratedResponse, error) {
	retrieval, err := e.retriever.Retrieve(ctx, query, e.opts.Retrieval)
	if err != nil {
		return nil, err
	}
	return e.answer(ctx, query, retrieval)
}

// AskHybrid answers query using combined semantic and keyword retrieval.
func (e *Engine) AskHybrid(ctx context.Context, query string) (*rag.GeneratedResponse, error) {
	retrieval, err := e.retriever.HybridSearch(ctx, query, retriever.HybridOptions{
		TopK: e.opts.Retrieval.TopK,
	})
	if err != nil {
		return nil, err
	}
	return e.answer(ctx, query, retrieval)
}

// AskMultiQuery expands query into variants, retrieves for each, and answers
// from the merged evidence.
func (e *Engine) AskMultiQuery(ctx context.Context, query string) (*rag.GeneratedResponse, error) {
	queries := e.retriever.ExpandQuery(query)
	retrieval, err := e.retriever.MultiQuery(ctx, queries, e.opts.Retrieval)
	if err != nil {
		return nil, err
	}
	return e.answer(ctx, query, retrieval)
}

// answer generates the final response and records it in history when a
// store is configured. History failures are soft: log and move on.
func (e *Engine) answer(ctx context.Context, query string, retrieval *rag.RetrievalResult) (*rag.GeneratedResponse, error) {
	resp, err := e.generator.Generate(ctx, query, retrieval, e.opts.Generation)
	if err != nil {
		return nil, err
	}

	if e.opts.History != nil {
		rec := store.Record{
			Question: query,
			Answer:   resp.Answer,
			Sources:  resp.Sources,
			Chunks:   resp.RetrievedChunks,
		}
		if err := e.opts.History.Append(ctx, rec); err != nil {
			e.log.Warn("engine: failed to record history", slog.Any("error", err))
		}
	}
	return resp, nil
}

// FollowUps suggests follow-up questions for an answered turn. Returns nil
// when the model call fails or produces nothing usable.
func (e *Engine) FollowUps(ctx context.Context, question, answer string) []string {
	return e.generator.FollowUpQuestions(ctx, question, answer, 0)
}

// Stats reports the current index statistics.
func (e *Engine) Stats() index.Stats {
	return e.idx.Stats()
}

// Clear removes every vector from the index.
func (e *Engine) Clear() {
	e.idx.Clear()
	e.log.Info("engine: index cleared")
}

// FindDuplicates scans the index for near-identical chunk pairs.
func (e *Engine) FindDuplicates(threshold float64) []index.Duplicate {
	return e.idx.FindDuplicates(threshold)
}

// SaveSnapshot writes the index to path as JSON.
func (e *Engine) SaveSnapshot(path string) error {
	data, err := e.idx.ExportJSON()
	if err != nil {
		return fmt.Errorf("engine: export snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("engine: write snapshot %s: %w", path, err)
	}
	e.log.Info("engine: snapshot saved", slog.String("path", path), slog.Int("vectors", e.idx.Len()))
	return nil
}

// LoadSnapshot replaces the index contents with a JSON snapshot from path.
func (e *Engine) LoadSnapshot(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("engine: read snapshot %s: %w", path, err)
	}
	loaded, err := e.idx.ImportJSON(data, e.log)
	if err != nil {
		return 0, fmt.Errorf("engine: import snapshot: %w", err)
	}
	e.log.Info("engine: snapshot loaded", slog.String("path", path), slog.Int("vectors", loaded))
	return loaded, nil
}
