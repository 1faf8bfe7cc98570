// Package chunker splits raw document text into overlapping word-bounded
// chunks suitable for embedding and retrieval. Splitting happens at paragraph
// granularity only: a single paragraph longer than the configured maximum is
// never cut mid-paragraph.
package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robolabs/robotutor/internal/rag"
)

// Default chunking parameters, in words.
const (
	// DefaultMaxWords is the soft upper bound on chunk size. Exceeded only
	// when a single paragraph is itself longer than the bound.
	DefaultMaxWords = 800

	// DefaultMinWords anchors the lower bound: chunks under half this value
	// are dropped, and a buffer is finalized eagerly once it reaches 1.5×.
	DefaultMinWords = 200

	// DefaultOverlapWords is how many trailing words of a finalized chunk
	// are carried into the next chunk to preserve local context.
	DefaultOverlapWords = 100
)

// Options configure document splitting. Zero values select the defaults.
type Options struct {
	// MaxWords is the soft maximum chunk size in words.
	MaxWords int

	// MinWords is the nominal minimum chunk size in words. Finalized chunks
	// below MinWords/2 are discarded.
	MinWords int

	// OverlapWords is the number of words carried across chunk boundaries.
	OverlapWords int
}

// withDefaults returns a copy of o with zero fields replaced by defaults.
func (o Options) withDefaults() Options {
	if o.MaxWords <= 0 {
		o.MaxWords = DefaultMaxWords
	}
	if o.MinWords <= 0 {
		o.MinWords = DefaultMinWords
	}
	if o.OverlapWords <= 0 {
		o.OverlapWords = DefaultOverlapWords
	}
	if o.OverlapWords >= o.MinWords {
		o.OverlapWords = o.MinWords / 2
	}
	return o
}

// chapterPattern extracts a chapter number from a source path,
// e.g. "docs/chapter-3-slam.md" or "Chapter 12".
var chapterPattern = regexp.MustCompile(`(?i)chapter[\s_-]*(\d+)`)

// Split splits text into overlapping chunks and returns their contents.
//
// Paragraphs (blank-line separated) are accumulated into a buffer. When the
// next paragraph would push the buffer over MaxWords, the buffer is finalized
// and the next buffer is seeded with the last OverlapWords words followed by
// the triggering paragraph. Independently, the buffer is finalized eagerly
// once it reaches 1.5×MinWords. Finalized chunks under MinWords/2 are
// dropped. Empty input yields nil.
func Split(text string, opts Options) []string {
	opts = opts.withDefaults()
	eagerCap := opts.MinWords * 3 / 2

	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var chunks []string

	// parts holds the current buffer: an optional overlap seed followed by
	// whole paragraphs. fresh tracks whether any real paragraph has been
	// added since the last seed, so a leftover seed alone is never emitted.
	var parts []string
	words := 0
	fresh := false

	finalize := func() string {
		content := strings.Join(parts, "\n\n")
		chunks = append(chunks, content)

		tail := lastWords(content, opts.OverlapWords)
		parts = parts[:0]
		words = 0
		fresh = false
		if tail != "" {
			parts = append(parts, tail)
			words = len(strings.Fields(tail))
		}
		return content
	}

	for _, p := range paragraphs {
		pw := len(strings.Fields(p))

		if fresh && words+pw > opts.MaxWords {
			finalize()
		}

		parts = append(parts, p)
		words += pw
		fresh = true

		if words >= eagerCap {
			finalize()
		}
	}

	if fresh && words > 0 {
		chunks = append(chunks, strings.Join(parts, "\n\n"))
	}

	// Drop undersized chunks (typically a short trailing remainder).
	minKeep := opts.MinWords / 2
	kept := chunks[:0]
	for _, c := range chunks {
		if len(strings.Fields(c)) >= minKeep {
			kept = append(kept, c)
		}
	}
	return kept
}

// Chunk splits text and wraps each piece as a rag.DocumentChunk with
// provenance metadata. IDs are "<sourcePath>-chunk-<seq>" so a whole
// document can later be removed with a single prefix delete.
//
// Metadata: "source" is always set; "chapter_title" is the text of the first
// first-level markdown heading, when present; "section" is the chapter
// number matched in sourcePath, when present.
func Chunk(text, sourcePath string, opts Options) []rag.DocumentChunk {
	contents := Split(text, opts)
	if len(contents) == 0 {
		return nil
	}

	title := chapterTitle(text)
	section := ""
	if m := chapterPattern.FindStringSubmatch(sourcePath); m != nil {
		section = m[1]
	}

	chunks := make([]rag.DocumentChunk, 0, len(contents))
	for i, content := range contents {
		meta := map[string]string{"source": sourcePath}
		if title != "" {
			meta["chapter_title"] = title
		}
		if section != "" {
			meta["section"] = section
		}
		chunks = append(chunks, rag.DocumentChunk{
			ID:        fmt.Sprintf("%s-chunk-%d", sourcePath, i),
			Content:   content,
			Metadata:  meta,
			WordCount: len(strings.Fields(content)),
		})
	}
	return chunks
}

// splitParagraphs splits text on blank-line boundaries, trimming each
// paragraph and dropping empty ones.
func splitParagraphs(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	paragraphs := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// lastWords returns the last n whitespace-separated words of text joined by
// single spaces, or the whole text when it has fewer than n words.
func lastWords(text string, n int) string {
	if n <= 0 {
		return ""
	}
	fields := strings.Fields(text)
	if len(fields) > n {
		fields = fields[len(fields)-n:]
	}
	return strings.Join(fields, " ")
}

// chapterTitle returns the text of the first first-level markdown heading
// ("# Title"), or empty string when none is present.
func chapterTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}
