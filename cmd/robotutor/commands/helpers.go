package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/robolabs/robotutor/internal/chunker"
	"github.com/robolabs/robotutor/internal/embedder"
	"github.com/robolabs/robotutor/internal/engine"
	"github.com/robolabs/robotutor/internal/index"
	"github.com/robolabs/robotutor/internal/provider"
	"github.com/robolabs/robotutor/internal/rag"
	"github.com/robolabs/robotutor/internal/retriever"
	"github.com/robolabs/robotutor/internal/store"
)

// enginePieces bundles the engine with the collaborators commands need to
// hand to the server, plus the cleanup for owned resources.
type enginePieces struct {
	// engine is the fully wired question answering pipeline.
	engine *engine.Engine
	// embedder is the embedding client the engine was built with.
	embedder rag.Embedder
	// completer is the bounded chat-completion client the engine was built with.
	completer rag.Completer
	// close releases owned resources (history store). Always safe to call.
	close func()
}

// buildEngine wires an Engine from environment configuration: embedding
// client, chat provider, empty index sized to the embedder, optional history
// store, and the snapshot autoload when ROBOTUTOR_SNAPSHOT names a file that
// exists.
func buildEngine(ctx context.Context, log *slog.Logger) (*enginePieces, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, fmt.Errorf("commands: %w", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("commands: failed to initialise embedder: %w", err)
	}
	backend := embedder.ResolveBackend()
	log.Info("embedder initialised", slog.String("provider", backend))

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("commands: failed to initialise model provider: %w", err)
	}
	completer, err := provider.NewCompleter(chatModel, provider.CompleterOptions{})
	if err != nil {
		return nil, fmt.Errorf("commands: %w", err)
	}

	idx := index.New(embedder.DefaultDimensions(backend))

	history, closeHistory := openHistory(log)

	eng, err := engine.New(emb, completer, idx, engine.Options{
		Logger:    log,
		Chunking:  chunkingFromEnv(),
		Retrieval: retrievalFromEnv(),
		History:   history,
	})
	if err != nil {
		closeHistory()
		return nil, fmt.Errorf("commands: %w", err)
	}

	if path := os.Getenv("ROBOTUTOR_SNAPSHOT"); path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			if _, loadErr := eng.LoadSnapshot(path); loadErr != nil {
				log.Warn("snapshot: autoload failed", slog.String("path", path), slog.Any("error", loadErr))
			}
		}
	}

	return &enginePieces{
		engine:    eng,
		embedder:  emb,
		completer: completer,
		close:     closeHistory,
	}, nil
}

// openHistory opens the SQLite Q&A history store. ROBOTUTOR_HISTORY_DB
// overrides the default path (~/.robotutor/history.db); set it to "disabled"
// to turn history off. Failures disable history rather than aborting the
// command.
func openHistory(log *slog.Logger) (store.HistoryStore, func()) {
	noop := func() {}

	dbPath := os.Getenv("ROBOTUTOR_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via ROBOTUTOR_HISTORY_DB=disabled")
		return nil, noop
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil, noop
		}
	}

	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil, noop
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs, func() { _ = hs.Close() }
}

// chunkingFromEnv reads the chunking tunables the config layer may have set.
func chunkingFromEnv() chunker.Options {
	return chunker.Options{
		MaxWords:     envInt("CHUNK_MAX_WORDS", 0),
		MinWords:     envInt("CHUNK_MIN_WORDS", 0),
		OverlapWords: envInt("CHUNK_OVERLAP_WORDS", 0),
	}
}

// retrievalFromEnv reads the retrieval tunables the config layer may have set.
// An explicit RETRIEVAL_MIN_SCORE, including 0, overrides the default floor.
func retrievalFromEnv() retriever.Options {
	opts := retriever.Options{
		TopK: envInt("RETRIEVAL_TOP_K", 0),
	}
	if v := os.Getenv("RETRIEVAL_MIN_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			opts = opts.WithMinScore(f)
		}
	}
	return opts
}

// answerWith runs the retrieval strategy selected by the flags.
func answerWith(ctx context.Context, pieces *enginePieces, question string, hybrid, multi bool) (*rag.GeneratedResponse, error) {
	switch {
	case hybrid:
		return pieces.engine.AskHybrid(ctx, question)
	case multi:
		return pieces.engine.AskMultiQuery(ctx, question)
	default:
		return pieces.engine.Ask(ctx, question)
	}
}

// envInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
