package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/robolabs/robotutor/internal/index"
	"github.com/robolabs/robotutor/internal/rag"
)

// fakeEmbedder returns canned vectors per input text and errors for
// unknown inputs unless a fallback vector is set.
type fakeEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	err      error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			if f.fallback == nil {
				return nil, fmt.Errorf("no vector for %q", t)
			}
			v = f.fallback
		}
		out = append(out, v)
	}
	return out, nil
}

// seedIndex adds three well-separated chunks along the axes of a 3-d space.
func seedIndex(t *testing.T) *index.Index {
	t.Helper()
	idx := index.New(3)
	entries := []index.Entry{
		{
			ID:        "slam.md-chunk-0",
			Embedding: []float32{1, 0, 0},
			Content:   "SLAM builds a map while localizing the robot within it.",
			Metadata:  map[string]string{"source": "slam.md", "chapter_title": "SLAM Fundamentals"},
		},
		{
			ID:        "slam.md-chunk-1",
			Embedding: []float32{0.9, 0.1, 0},
			Content:   "Loop closure corrects accumulated drift in the pose graph.",
			Metadata:  map[string]string{"source": "slam.md", "chapter_title": "SLAM Fundamentals"},
		},
		{
			ID:        "ros2.md-chunk-0",
			Embedding: []float32{0, 1, 0},
			Content:   "ROS2 nodes communicate over DDS topics and services.",
			Metadata:  map[string]string{"source": "ros2.md", "chapter_title": "ROS2 Basics"},
		},
	}
	for _, e := range entries {
		if err := idx.Add(e.ID, e.Embedding, e.Content, e.Metadata); err != nil {
			t.Fatalf("Add(%s): %v", e.ID, err)
		}
	}
	return idx
}

func TestNew_NilArguments(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, index.New(3)); err == nil {
		t.Fatal("New with nil embedder: want error")
	}
	if _, err := New(&fakeEmbedder{}, nil); err == nil {
		t.Fatal("New with nil index: want error")
	}
}

func TestRetrieve_RanksAndFormats(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"what is slam": {1, 0, 0},
	}}
	r, err := New(emb, idx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := r.Retrieve(context.Background(), "what is slam", Options{TopK: 2})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(result.Results))
	}
	if result.Results[0].ID != "slam.md-chunk-0" || result.Results[1].ID != "slam.md-chunk-1" {
		t.Fatalf("unexpected order: %s, %s", result.Results[0].ID, result.Results[1].ID)
	}
	if !strings.HasPrefix(result.Context, "[Context 1 - SLAM Fundamentals] (Relevance: 100.0%)\n") {
		t.Errorf("context block header malformed:\n%s", result.Context)
	}
	if !strings.Contains(result.Context, "\n\n---\n\n[Context 2 - SLAM Fundamentals]") {
		t.Errorf("context blocks not joined by separator:\n%s", result.Context)
	}
	if len(result.Sources) != 1 {
		t.Fatalf("got %d sources, want 1 (deduplicated)", len(result.Sources))
	}
	if result.Sources[0].Path != "slam.md" || result.Sources[0].Title != "SLAM Fundamentals" {
		t.Errorf("unexpected source: %+v", result.Sources[0])
	}
}

func TestRetrieve_MinScoreFiltersAll(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)
	// Orthogonal to every stored vector: all scores ~0, all filtered.
	emb := &fakeEmbedder{fallback: []float32{0, 0, 1}}
	r, err := New(emb, idx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := r.Retrieve(context.Background(), "underwater basket weaving", Options{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Results) != 0 {
		t.Fatalf("got %d results, want 0", len(result.Results))
	}
	if result.Context != NoContextSentinel {
		t.Errorf("context = %q, want sentinel", result.Context)
	}
	if len(result.Sources) != 0 {
		t.Errorf("got %d sources, want 0", len(result.Sources))
	}
}

func TestRetrieve_ExplicitZeroMinScore(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)
	emb := &fakeEmbedder{fallback: []float32{0, 1, 0}}
	r, err := New(emb, idx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := r.Retrieve(context.Background(), "ros2 topics", Options{TopK: 3}.WithMinScore(0))
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	// Zero-score orthogonal hits survive an explicit zero floor.
	if len(result.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(result.Results))
	}
}

func TestRetrieve_EmbedderError(t *testing.T) {
	t.Parallel()

	r, err := New(&fakeEmbedder{err: errors.New("provider down")}, seedIndex(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "anything", Options{}); err == nil {
		t.Fatal("Retrieve: want error from embedder")
	}
}

func TestHybridSearch_KeywordBoost(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)
	// Query vector slightly favors the SLAM chunks semantically, but every
	// query term appears in the ROS2 chunk.
	emb := &fakeEmbedder{fallback: []float32{0.7, 0.72, 0}}
	r, err := New(emb, idx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := r.HybridSearch(context.Background(), "ros2 topics", HybridOptions{TopK: 3})
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(result.Results) == 0 {
		t.Fatal("no results")
	}
	if result.Results[0].ID != "ros2.md-chunk-0" {
		t.Errorf("top result = %s, want ros2.md-chunk-0 (keyword coverage 1.0)", result.Results[0].ID)
	}
}

func TestMultiQuery_MergesByMaxScore(t *testing.T) {
	t.Parallel()

	idx := seedIndex(t)
	// Both query vectors retrieve slam.md-chunk-0 above the score floor: the
	// first scores it 1.0 (exact match), the second roughly 0.6. The merged
	// entry must carry the higher of the two.
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"mapping":      {1, 0, 0},
		"localization": {0.6, 0.8, 0},
	}}
	r, err := New(emb, idx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := r.MultiQuery(context.Background(), []string{"mapping", "localization"}, Options{TopK: 3})
	if err != nil {
		t.Fatalf("MultiQuery: %v", err)
	}
	if result.Query != "mapping | localization" {
		t.Errorf("composite query = %q", result.Query)
	}

	ids := make(map[string]float64)
	for _, res := range result.Results {
		if _, dup := ids[res.ID]; dup {
			t.Fatalf("duplicate id %s in merged results", res.ID)
		}
		ids[res.ID] = res.Score
	}
	if _, ok := ids["ros2.md-chunk-0"]; !ok {
		t.Errorf("merged results missing second query's hit: %v", ids)
	}

	score, ok := ids["slam.md-chunk-0"]
	if !ok {
		t.Fatalf("merged results missing shared hit: %v", ids)
	}
	if score < 0.999 {
		t.Errorf("shared hit score = %v, want the maximum across queries (~1.0)", score)
	}
}

func TestMultiQuery_Empty(t *testing.T) {
	t.Parallel()

	r, err := New(&fakeEmbedder{}, seedIndex(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := r.MultiQuery(context.Background(), nil, Options{})
	if err != nil {
		t.Fatalf("MultiQuery: %v", err)
	}
	if len(result.Results) != 0 || result.Context != NoContextSentinel {
		t.Errorf("empty queries: got %d results, context %q", len(result.Results), result.Context)
	}
}

func TestRerank_DiversityPenalty(t *testing.T) {
	t.Parallel()

	r, err := New(&fakeEmbedder{}, index.New(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results := []rag.SearchResult{
		{ID: "a-0", Score: 0.90, Metadata: map[string]string{"source": "a.md"}},
		{ID: "a-1", Score: 0.89, Metadata: map[string]string{"source": "a.md"}},
		{ID: "b-0", Score: 0.85, Metadata: map[string]string{"source": "b.md"}},
	}
	reranked := r.Rerank(results, RerankOptions{})

	if len(reranked) != 3 {
		t.Fatalf("got %d results, want 3", len(reranked))
	}
	// a-0: 0.90*0.7 + 1.0*0.2 + 1.0*0.1      = 0.930
	// a-1: 0.89*0.7 + (2/3)*0.2 + 0.5*0.1    = 0.806
	// b-0: 0.85*0.7 + (1/3)*0.2 + 1.0*0.1    = 0.762
	if reranked[0].ID != "a-0" {
		t.Errorf("top after rerank = %s, want a-0", reranked[0].ID)
	}
	// Input untouched.
	if results[0].Score != 0.90 {
		t.Errorf("input slice modified: %v", results[0].Score)
	}
}

func TestExpandQuery(t *testing.T) {
	t.Parallel()

	r, err := New(&fakeEmbedder{}, index.New(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := r.ExpandQuery("What Is SLAM")
	if len(got) != 2 || got[0] != "What Is SLAM" || got[1] != "what is slam" {
		t.Errorf("ExpandQuery = %v", got)
	}
	if got := r.ExpandQuery("already lower"); len(got) != 1 {
		t.Errorf("lowercase query expanded to %v", got)
	}
}
