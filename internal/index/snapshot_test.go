package index

import (
	"log/slog"
	"testing"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	t.Parallel()

	src := New(3)
	_ = src.Add("a", []float32{1, 0, 0}, "alpha", map[string]string{"source": "doc-a"})
	_ = src.Add("b", []float32{0, 1, 0}, "beta", map[string]string{"source": "doc-b"})

	data, err := src.ExportJSON()
	if err != nil {
		t.Fatal(err)
	}

	dst := New(3)
	_ = dst.Add("stale", []float32{0, 0, 1}, "to be replaced", nil)

	loaded, err := dst.ImportJSON(data, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if loaded != 2 {
		t.Fatalf("want 2 entries loaded, got %d", loaded)
	}
	if dst.Len() != 2 {
		t.Fatalf("import must be destructive: want 2 entries, got %d", dst.Len())
	}

	dst.mu.RLock()
	defer dst.mu.RUnlock()
	for id, want := range map[string]string{"a": "alpha", "b": "beta"} {
		e, ok := dst.entries[id]
		if !ok {
			t.Fatalf("entry %q missing after import", id)
		}
		if e.Content != want {
			t.Errorf("entry %q: content %q, want %q", id, e.Content, want)
		}
		if len(e.Embedding) != 3 {
			t.Errorf("entry %q: embedding length %d", id, len(e.Embedding))
		}
		if src.entries[id].Timestamp.Unix() != e.Timestamp.Unix() {
			t.Errorf("entry %q: timestamp lost second precision", id)
		}
	}
}

func TestImportJSON_SkipsMalformedEntries(t *testing.T) {
	t.Parallel()

	snapshot := `[
		{"id": "good", "embedding": [1, 0], "content": "kept", "timestamp": "2025-06-01T12:00:00Z"},
		{"id": "", "embedding": [1, 0], "content": "no id"},
		{"id": "no-embedding", "content": "skipped"},
		{"id": "no-content", "embedding": [0, 1]},
		{"id": "wrong-dims", "embedding": [1, 2, 3], "content": "skipped"}
	]`

	ix := New(2)
	loaded, err := ix.ImportJSON([]byte(snapshot), slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if loaded != 1 {
		t.Errorf("want 1 entry loaded, got %d", loaded)
	}
	if ix.Len() != 1 {
		t.Errorf("want 1 entry in index, got %d", ix.Len())
	}
}

func TestImportJSON_MalformedDocumentFails(t *testing.T) {
	t.Parallel()

	ix := New(2)
	_ = ix.Add("keep", []float32{1, 0}, "content", nil)

	if _, err := ix.ImportJSON([]byte("{not json"), slog.Default()); err == nil {
		t.Fatal("want error for malformed snapshot document")
	}
}
