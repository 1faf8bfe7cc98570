package index

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// snapshotEntry is the wire form of one entry in a JSON snapshot.
type snapshotEntry struct {
	ID        string            `json:"id"`
	Embedding []float32         `json:"embedding"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// ExportJSON serializes every entry as a JSON array of
// {id, embedding, content, metadata, timestamp} objects, ordered by id for
// deterministic output. Timestamps are RFC 3339 UTC at second precision.
func (ix *Index) ExportJSON() ([]byte, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	entries := make([]snapshotEntry, 0, len(ix.entries))
	for _, e := range ix.entries {
		entries = append(entries, snapshotEntry{
			ID:        e.ID,
			Embedding: e.Embedding,
			Content:   e.Content,
			Metadata:  e.Metadata,
			Timestamp: e.Timestamp.UTC().Truncate(time.Second).Format(time.RFC3339),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("index: export: %w", err)
	}
	return data, nil
}

// ImportJSON replaces the whole index with the entries in data. The load is
// destructive (existing entries are discarded first) and lenient: entries
// missing an id, embedding, or content, or carrying an embedding of the
// wrong length, are skipped with a warning rather than aborting the load.
// An index created with dimensions 0 adopts the dimensionality of the first
// well-formed entry. Returns the number of entries actually loaded.
func (ix *Index) ImportJSON(data []byte, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}

	var entries []snapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, fmt.Errorf("index: import: malformed snapshot: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.entries = make(map[string]*Entry, len(entries))
	loaded := 0
	for i, se := range entries {
		if se.ID == "" || len(se.Embedding) == 0 || se.Content == "" {
			log.Warn("index: skipping malformed snapshot entry",
				slog.Int("position", i),
				slog.String("id", se.ID),
			)
			continue
		}
		if ix.dimensions == 0 {
			ix.dimensions = len(se.Embedding)
		}
		if len(se.Embedding) != ix.dimensions {
			log.Warn("index: skipping snapshot entry with wrong dimensionality",
				slog.String("id", se.ID),
				slog.Int("got", len(se.Embedding)),
				slog.Int("want", ix.dimensions),
			)
			continue
		}

		ts, err := time.Parse(time.RFC3339, se.Timestamp)
		if err != nil {
			ts = time.Now()
		}

		ix.entries[se.ID] = &Entry{
			ID:        se.ID,
			Embedding: se.Embedding,
			Content:   se.Content,
			Metadata:  se.Metadata,
			Timestamp: ts,
		}
		loaded++
	}

	return loaded, nil
}
