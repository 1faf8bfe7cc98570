// Package index implements the in-memory vector index at the heart of the
// engine: a map of embedded document chunks searched by linear-scan cosine
// similarity. It is intended for small-to-medium corpora (thousands of
// chunks) where a full scan per query is acceptable; there is no ANN
// structure and no on-disk format beyond the JSON snapshot.
package index

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Entry is one stored chunk: its embedding, content, and open metadata.
type Entry struct {
	// ID uniquely identifies the entry within the index.
	ID string

	// Embedding is the entry's vector; its length always equals the index
	// dimensionality.
	Embedding []float32

	// Content is the chunk text returned with search hits.
	Content string

	// Metadata holds open key-value metadata used for filtering.
	Metadata map[string]string

	// Timestamp records when the entry was last upserted.
	Timestamp time.Time
}

// SearchResult is a scored hit from Search.
type SearchResult struct {
	// ID is the matched entry's identifier.
	ID string

	// Content is the matched entry's text.
	Content string

	// Metadata is the matched entry's metadata map.
	Metadata map[string]string

	// Score is the cosine similarity against the query embedding.
	Score float64
}

// Stats summarizes the index for operators.
type Stats struct {
	// TotalVectors is the number of stored entries.
	TotalVectors int `json:"totalVectors"`

	// Dimensions is the fixed embedding dimensionality.
	Dimensions int `json:"dimensions"`

	// ApproxMemoryMB estimates resident size: 4 bytes per embedding
	// component plus the serialized metadata length, per entry.
	ApproxMemoryMB float64 `json:"approxMemoryUsageMB"`
}

// Duplicate is a pair of entries whose similarity exceeds the duplicate
// detection threshold.
type Duplicate struct {
	// ID1 and ID2 identify the near-identical entries.
	ID1 string `json:"id1"`
	ID2 string `json:"id2"`

	// Similarity is the cosine similarity between the pair.
	Similarity float64 `json:"similarity"`
}

// Filter decides whether an entry participates in a search, based on its
// metadata. A nil Filter admits everything.
type Filter func(metadata map[string]string) bool

// Index is an in-memory vector store with linear-scan cosine search.
// All methods are safe for concurrent use. Concurrent Add calls on the same
// ID race last-write-wins at entry granularity, and AddBatch is not atomic;
// callers needing atomic multi-entry ingestion must serialize externally.
type Index struct {
	// mu guards entries.
	mu sync.RWMutex

	// entries maps entry ID to the stored entry.
	entries map[string]*Entry

	// dimensions is the embedding length enforced on every Add and Search.
	dimensions int
}

// New constructs an empty Index whose entries must all have embeddings of
// the given length (e.g. 1536 for text-embedding-3-small).
func New(dimensions int) *Index {
	return &Index{
		entries:    make(map[string]*Entry),
		dimensions: dimensions,
	}
}

// Dimensions returns the embedding length fixed at creation.
func (ix *Index) Dimensions() int { return ix.dimensions }

// Add upserts an entry. It returns ErrDimensionMismatch when the embedding's
// length disagrees with the index dimensionality, leaving the index
// unchanged. On success the entry's timestamp is set to the current time.
func (ix *Index) Add(id string, embedding []float32, content string, metadata map[string]string) error {
	if len(embedding) != ix.dimensions {
		return fmt.Errorf("index: add %q: %w: got %d, want %d", id, ErrDimensionMismatch, len(embedding), ix.dimensions)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.entries[id] = &Entry{
		ID:        id,
		Embedding: embedding,
		Content:   content,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}
	return nil
}

// AddBatch adds entries sequentially. It is not atomic: on the first failure
// it returns immediately and all previously added entries stay committed.
func (ix *Index) AddBatch(entries []Entry) error {
	for i, e := range entries {
		if err := ix.Add(e.ID, e.Embedding, e.Content, e.Metadata); err != nil {
			return fmt.Errorf("index: batch entry %d: %w", i, err)
		}
	}
	return nil
}

// Search scans every stored entry passing the optional filter, scores it by
// cosine similarity against queryEmbedding, and returns the top topK results
// sorted by (score descending, id ascending). Entries scoring NaN (zero
// magnitude on either side) sort below every finite score.
func (ix *Index) Search(queryEmbedding []float32, topK int, filter Filter) ([]SearchResult, error) {
	if len(queryEmbedding) != ix.dimensions {
		return nil, fmt.Errorf("index: search: %w: got %d, want %d", ErrDimensionMismatch, len(queryEmbedding), ix.dimensions)
	}
	if topK <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]SearchResult, 0, len(ix.entries))
	for _, e := range ix.entries {
		if filter != nil && !filter(e.Metadata) {
			continue
		}
		results = append(results, SearchResult{
			ID:       e.ID,
			Content:  e.Content,
			Metadata: e.Metadata,
			Score:    Cosine(queryEmbedding, e.Embedding),
		})
	}

	sortResults(results)

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// sortResults orders results by score descending, breaking ties (and NaN
// pairs) by id ascending. NaN scores sink to the end.
func sortResults(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		si, sj := results[i].Score, results[j].Score
		iNaN, jNaN := math.IsNaN(si), math.IsNaN(sj)
		switch {
		case iNaN && jNaN:
			return results[i].ID < results[j].ID
		case iNaN:
			return false
		case jNaN:
			return true
		case si != sj:
			return si > sj
		default:
			return results[i].ID < results[j].ID
		}
	})
}

// Delete removes the entry with the given id, reporting whether it existed.
func (ix *Index) Delete(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.entries[id]; !ok {
		return false
	}
	delete(ix.entries, id)
	return true
}

// DeleteByPrefix removes every entry whose id starts with prefix and returns
// the number removed. Used to drop a whole document before re-ingestion.
func (ix *Index) DeleteByPrefix(prefix string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	removed := 0
	for id := range ix.entries {
		if len(id) >= len(prefix) && id[:len(prefix)] == prefix {
			delete(ix.entries, id)
			removed++
		}
	}
	return removed
}

// Clear removes all entries.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = make(map[string]*Entry)
}

// Len returns the number of stored entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Stats returns entry count, dimensionality, and the approximate memory
// footprint in megabytes.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	bytes := 0
	for _, e := range ix.entries {
		bytes += 4 * len(e.Embedding)
		if meta, err := json.Marshal(e.Metadata); err == nil {
			bytes += len(meta)
		}
	}

	return Stats{
		TotalVectors:   len(ix.entries),
		Dimensions:     ix.dimensions,
		ApproxMemoryMB: float64(bytes) / (1024 * 1024),
	}
}

// FindDuplicates scans all entry pairs and reports those whose cosine
// similarity is at least threshold (0.99 when threshold is zero or out of
// range). This is O(n²) and intended as an offline maintenance operation,
// never on the query path. Pairs are ordered (id1 < id2).
func (ix *Index) FindDuplicates(threshold float64) []Duplicate {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.99
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ids := make([]string, 0, len(ix.entries))
	for id := range ix.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var dups []Duplicate
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			sim := Cosine(ix.entries[ids[i]].Embedding, ix.entries[ids[j]].Embedding)
			if sim >= threshold {
				dups = append(dups, Duplicate{ID1: ids[i], ID2: ids[j], Similarity: sim})
			}
		}
	}
	return dups
}

// Cosine returns the cosine similarity dot(a,b)/(‖a‖·‖b‖) of two vectors.
// When either vector has zero magnitude the result is NaN, an accepted
// degenerate output, not an error: minScore comparisons are false for NaN,
// so such entries never survive score filtering.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
