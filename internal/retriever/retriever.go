// Package retriever turns a natural-language query into a ranked, filtered,
// context-formatted retrieval result. It embeds the query through the
// external embedding provider and delegates similarity search to the
// in-memory index, then offers four strategies on top: plain semantic
// search, hybrid keyword+semantic scoring, multi-query merging, and a
// heuristic rerank pass.
package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/robolabs/robotutor/internal/index"
	"github.com/robolabs/robotutor/internal/rag"
)

// NoContextSentinel is the context placeholder handed to the generator when
// no results survive score filtering. The generator's prompt instructs the
// model to say so rather than invent an answer.
const NoContextSentinel = "No relevant context found in the knowledge base."

// Default retrieval parameters.
const (
	// DefaultTopK is the number of results returned when the caller passes 0.
	DefaultTopK = 5

	// DefaultMinScore is the similarity floor below which results are
	// dropped. NaN scores (zero vectors) never pass this comparison.
	DefaultMinScore = 0.5
)

// Options tune a plain retrieval.
type Options struct {
	// TopK is the maximum number of results to return (default 5).
	TopK int

	// MinScore drops results scoring below it (default 0.5). Set to any
	// negative value to disable filtering.
	MinScore float64

	// minScoreSet distinguishes an explicit zero from the default.
	// Callers use WithMinScore to set it.
	minScoreSet bool

	// Filter optionally restricts candidates by metadata.
	Filter index.Filter
}

// WithMinScore returns a copy of o with an explicit similarity floor,
// including zero.
func (o Options) WithMinScore(minScore float64) Options {
	o.MinScore = minScore
	o.minScoreSet = true
	return o
}

// HybridOptions tune a hybrid keyword+semantic retrieval.
type HybridOptions struct {
	// TopK is the maximum number of results to return (default 5).
	TopK int

	// SemanticWeight scales the embedding similarity score (default 0.7).
	SemanticWeight float64

	// KeywordWeight scales the keyword coverage score (default 0.3).
	KeywordWeight float64
}

// RerankOptions tune the heuristic rerank pass.
type RerankOptions struct {
	// SimilarityWeight scales the original similarity score (default 0.7).
	SimilarityWeight float64

	// RecencyWeight scales the rank-position score (default 0.2). The name
	// is kept for config compatibility: no timestamp is consulted; the
	// score is 1 - rank/len, a positional proxy.
	RecencyWeight float64

	// DiversityWeight scales the repeated-source penalty (default 0.1).
	DiversityWeight float64
}

// Retriever embeds queries and searches the vector index.
// It is safe to call from multiple goroutines.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder rag.Embedder

	// idx is the in-memory vector index searched per query.
	idx *index.Index
}

// New constructs a Retriever from the given embedder and index.
func New(embedder rag.Embedder, idx *index.Index) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retriever: embedder must not be nil")
	}
	if idx == nil {
		return nil, fmt.Errorf("retriever: index must not be nil")
	}
	return &Retriever{embedder: embedder, idx: idx}, nil
}

// Retrieve embeds the query, searches the index, drops results below the
// similarity floor, and formats the surviving evidence into a context block
// with deduplicated sources.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) (*rag.RetrievalResult, error) {
	opts = r.normalize(opts)

	results, err := r.search(ctx, query, opts.TopK, opts)
	if err != nil {
		return nil, err
	}

	return buildResult(query, results), nil
}

// HybridSearch combines semantic similarity with lexical keyword coverage.
// It over-fetches topK×2 semantic candidates, scores each by the fraction of
// lower-cased query terms appearing as substrings of its content, combines
// the two scores by weight, and re-sorts.
func (r *Retriever) HybridSearch(ctx context.Context, query string, opts HybridOptions) (*rag.RetrievalResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.SemanticWeight == 0 && opts.KeywordWeight == 0 {
		opts.SemanticWeight = 0.7
		opts.KeywordWeight = 0.3
	}

	plain := Options{TopK: opts.TopK * 2}
	results, err := r.search(ctx, query, plain.TopK, r.normalize(plain))
	if err != nil {
		return nil, err
	}

	terms := strings.Fields(strings.ToLower(query))
	for i := range results {
		kw := keywordCoverage(results[i].Content, terms)
		results[i].Score = results[i].Score*opts.SemanticWeight + kw*opts.KeywordWeight
	}
	sortByScore(results)

	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return buildResult(query, results), nil
}

// MultiQuery runs a plain retrieval per query and merges the hits by id,
// keeping the maximum score each id achieved across queries. The merged set
// is sorted, truncated to topK, and reformatted. The composite query field
// is the " | "-joined input, for diagnostics only.
func (r *Retriever) MultiQuery(ctx context.Context, queries []string, opts Options) (*rag.RetrievalResult, error) {
	opts = r.normalize(opts)
	if len(queries) == 0 {
		return buildResult("", nil), nil
	}

	// Over-fetch per sub-query so the merged set can still fill topK after
	// deduplication.
	perQuery := int(math.Ceil(float64(opts.TopK)/float64(len(queries)))) * 2

	merged := make(map[string]rag.SearchResult)
	for _, q := range queries {
		results, err := r.search(ctx, q, perQuery, opts)
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			if prev, ok := merged[res.ID]; !ok || res.Score > prev.Score {
				merged[res.ID] = res
			}
		}
	}

	results := make([]rag.SearchResult, 0, len(merged))
	for _, res := range merged {
		results = append(results, res)
	}
	sortByScore(results)
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	return buildResult(strings.Join(queries, " | "), results), nil
}

// Rerank applies a second-pass score adjustment to an already-ranked result
// list: the original similarity, a rank-position score (1 - rank/len), and a
// diversity penalty 1/(1 + priorHitsFromSameSource) are combined by weight
// and the list is re-sorted. The input slice is not modified.
func (r *Retriever) Rerank(results []rag.SearchResult, opts RerankOptions) []rag.SearchResult {
	if opts.SimilarityWeight == 0 && opts.RecencyWeight == 0 && opts.DiversityWeight == 0 {
		opts.SimilarityWeight = 0.7
		opts.RecencyWeight = 0.2
		opts.DiversityWeight = 0.1
	}
	if len(results) == 0 {
		return nil
	}

	reranked := make([]rag.SearchResult, len(results))
	copy(reranked, results)

	seen := make(map[string]int)
	n := float64(len(reranked))
	for i := range reranked {
		source := reranked[i].Metadata["source"]
		diversity := 1.0 / float64(1+seen[source])
		seen[source]++

		position := 1.0 - float64(i)/n

		reranked[i].Score = reranked[i].Score*opts.SimilarityWeight +
			position*opts.RecencyWeight +
			diversity*opts.DiversityWeight
	}
	sortByScore(reranked)
	return reranked
}

// ExpandQuery returns the query plus a lower-cased variant when different.
// Deliberately minimal: a placeholder for synonym/related-term expansion.
func (r *Retriever) ExpandQuery(query string) []string {
	expanded := []string{query}
	if lower := strings.ToLower(query); lower != query {
		expanded = append(expanded, lower)
	}
	return expanded
}

// normalize fills option defaults.
func (r *Retriever) normalize(opts Options) Options {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if !opts.minScoreSet && opts.MinScore == 0 {
		opts.MinScore = DefaultMinScore
	}
	return opts
}

// search embeds query, runs the index search, and applies the score floor.
func (r *Retriever) search(ctx context.Context, query string, topK int, opts Options) ([]rag.SearchResult, error) {
	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("retriever: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("retriever: embedder returned no vector for query")
	}

	hits, err := r.idx.Search(embeddings[0], topK, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("retriever: index search failed: %w", err)
	}

	results := make([]rag.SearchResult, 0, len(hits))
	for _, h := range hits {
		// NaN scores fail this comparison and are dropped with the rest.
		if !(h.Score >= opts.MinScore) {
			continue
		}
		results = append(results, rag.SearchResult{
			ID:       h.ID,
			Content:  h.Content,
			Metadata: h.Metadata,
			Score:    h.Score,
		})
	}
	return results, nil
}

// keywordCoverage returns the fraction of query terms found as substrings of
// the lower-cased content.
func keywordCoverage(content string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	matched := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

// sortByScore orders results by (score desc, id asc).
func sortByScore(results []rag.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

// buildResult formats the final context block and deduplicated source list.
func buildResult(query string, results []rag.SearchResult) *rag.RetrievalResult {
	out := &rag.RetrievalResult{
		Query:   query,
		Results: results,
		Context: NoContextSentinel,
	}
	if len(results) == 0 {
		return out
	}

	blocks := make([]string, 0, len(results))
	seen := make(map[string]bool)
	for i, res := range results {
		title := res.Metadata["chapter_title"]
		if title == "" {
			title = res.Metadata["source"]
		}
		blocks = append(blocks, fmt.Sprintf("[Context %d - %s] (Relevance: %.1f%%)\n%s",
			i+1, title, res.Score*100, res.Content))

		source := res.Metadata["source"]
		if source != "" && !seen[source] {
			seen[source] = true
			out.Sources = append(out.Sources, rag.Source{Title: title, Path: source})
		}
	}
	out.Context = strings.Join(blocks, "\n\n---\n\n")
	return out
}
