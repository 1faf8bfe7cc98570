package chunker

import (
	"fmt"
	"strings"
	"testing"
)

// paragraph returns a paragraph of n distinct words so overlap regions can
// be identified unambiguously in assertions.
func paragraph(prefix string, n int) string {
	words := make([]string, n)
	for i := range n {
		words[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(words, " ")
}

func wordCount(s string) int { return len(strings.Fields(s)) }

func TestSplit_EmptyInput(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "   ", "\n\n\n"} {
		if got := Split(input, Options{}); len(got) != 0 {
			t.Errorf("Split(%q): want no chunks, got %d", input, len(got))
		}
	}
}

func TestSplit_SingleShortDocumentIsOneChunk(t *testing.T) {
	t.Parallel()

	text := paragraph("a", 150) + "\n\n" + paragraph("b", 120)
	chunks := Split(text, Options{})
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	if wc := wordCount(chunks[0]); wc != 270 {
		t.Errorf("want 270 words, got %d", wc)
	}
}

func TestSplit_OverlapCarriedAcrossBoundaries(t *testing.T) {
	t.Parallel()

	// 3000 words across 20 paragraphs of 150 words each.
	var paras []string
	for i := range 20 {
		paras = append(paras, paragraph(fmt.Sprintf("p%d_", i), 150))
	}
	text := strings.Join(paras, "\n\n")

	chunks := Split(text, Options{MaxWords: 800, MinWords: 200, OverlapWords: 100})
	if len(chunks) < 3 {
		t.Fatalf("want at least 3 chunks for a 3000-word document, got %d", len(chunks))
	}

	for i, c := range chunks {
		if wc := wordCount(c); wc < 100 {
			t.Errorf("chunk %d: %d words, below the minimum of 100", i, wc)
		}
	}

	// The last 100 words of chunk i must reappear at the head of chunk i+1.
	for i := 0; i < len(chunks)-1; i++ {
		tail := strings.Fields(chunks[i])
		tail = tail[len(tail)-100:]
		head := strings.Fields(chunks[i+1])[:100]
		for j := range tail {
			if tail[j] != head[j] {
				t.Fatalf("chunk %d→%d: overlap word %d: want %q, got %q", i, i+1, j, tail[j], head[j])
			}
		}
	}
}

func TestSplit_EagerFinalizeAtOneAndAHalfMin(t *testing.T) {
	t.Parallel()

	// Paragraphs of 80 words: the buffer crosses 300 (1.5×200) after every
	// fourth paragraph, well before the 800-word maximum.
	var paras []string
	for i := range 12 {
		paras = append(paras, paragraph(fmt.Sprintf("q%d_", i), 80))
	}
	chunks := Split(strings.Join(paras, "\n\n"), Options{MaxWords: 800, MinWords: 200, OverlapWords: 100})

	if len(chunks) < 2 {
		t.Fatalf("want eager finalization to produce multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		// 1.5×min plus at most one paragraph and the overlap seed.
		if wc := wordCount(c); wc > 500 {
			t.Errorf("chunk %d: %d words, eager cap not applied", i, wc)
		}
	}
}

func TestSplit_OversizedParagraphNeverSplit(t *testing.T) {
	t.Parallel()

	// A single 1200-word paragraph exceeds MaxWords but must stay whole.
	text := paragraph("big", 1200)
	chunks := Split(text, Options{MaxWords: 800, MinWords: 200, OverlapWords: 100})
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	if wc := wordCount(chunks[0]); wc != 1200 {
		t.Errorf("want the paragraph intact at 1200 words, got %d", wc)
	}
}

func TestSplit_DropsUndersizedTrailingChunk(t *testing.T) {
	t.Parallel()

	// 320 words trigger an eager finalize; the trailing 30-word paragraph
	// would form a chunk below MinWords/2 and must be dropped together with
	// its overlap seed only when undersized; here seed(100)+30 = 130 ≥ 100,
	// so it is kept; a bare 30-word document is dropped.
	chunks := Split(paragraph("tiny", 30), Options{MaxWords: 800, MinWords: 200, OverlapWords: 100})
	if len(chunks) != 0 {
		t.Errorf("want a 30-word document dropped entirely, got %d chunks", len(chunks))
	}
}

func TestChunk_MetadataAndIDs(t *testing.T) {
	t.Parallel()

	text := "# ROS2 Navigation\n\n" + paragraph("nav", 200)
	chunks := Chunk(text, "textbook/chapter-4-navigation.md", Options{})

	if len(chunks) == 0 {
		t.Fatal("want at least one chunk")
	}
	first := chunks[0]
	if first.ID != "textbook/chapter-4-navigation.md-chunk-0" {
		t.Errorf("unexpected chunk ID %q", first.ID)
	}
	if got := first.Metadata["source"]; got != "textbook/chapter-4-navigation.md" {
		t.Errorf("source: got %q", got)
	}
	if got := first.Metadata["chapter_title"]; got != "ROS2 Navigation" {
		t.Errorf("chapter_title: got %q", got)
	}
	if got := first.Metadata["section"]; got != "4" {
		t.Errorf("section: got %q", got)
	}
	if first.WordCount != wordCount(first.Content) {
		t.Errorf("WordCount %d does not match content (%d words)", first.WordCount, wordCount(first.Content))
	}
}

func TestChunk_NoHeadingNoSection(t *testing.T) {
	t.Parallel()

	chunks := Chunk(paragraph("w", 150), "notes.txt", Options{})
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	if _, ok := chunks[0].Metadata["chapter_title"]; ok {
		t.Error("chapter_title must be absent without a heading")
	}
	if _, ok := chunks[0].Metadata["section"]; ok {
		t.Error("section must be absent without a chapter pattern in the path")
	}
}

func TestChunk_SequentialIDs(t *testing.T) {
	t.Parallel()

	var paras []string
	for i := range 10 {
		paras = append(paras, paragraph(fmt.Sprintf("s%d_", i), 150))
	}
	chunks := Chunk(strings.Join(paras, "\n\n"), "doc.md", Options{})
	for i, c := range chunks {
		want := fmt.Sprintf("doc.md-chunk-%d", i)
		if c.ID != want {
			t.Errorf("chunk %d: want ID %q, got %q", i, want, c.ID)
		}
	}
}
