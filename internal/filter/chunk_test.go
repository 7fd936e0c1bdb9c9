package filter

import (
	"strings"
	"testing"

	"github.com/loqalabs/loqa-reader/internal/tracked"
)

func TestSplitSingleChunk(t *testing.T) {
	chunks := Split(tracked.New("short text", 0), 40, 0)
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if chunks[0].Base != 40 || chunks[0].Text != "short text" {
		t.Fatalf("unexpected chunk %+v", chunks[0])
	}
	if from, _ := chunks[0].DocumentOffset(0); from != 40 {
		t.Fatalf("expected document offset 40, got %d", from)
	}
}

func TestSplitHardCut(t *testing.T) {
	src := strings.Repeat("a", 300) + strings.Repeat("b", 100)
	chunks := Split(tracked.New(src, 0), 0, 300)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	second := chunks[1]
	if !strings.HasPrefix(second.Text, "b") {
		t.Fatalf("second chunk should start with b, got %q", second.Text[:5])
	}
	if second.Map[0] != strings.Index(src, "b") {
		t.Fatalf("second chunk map[0]=%d, want %d", second.Map[0], strings.Index(src, "b"))
	}
	if second.Index != 1 {
		t.Fatalf("unexpected index %d", second.Index)
	}
}

func TestSplitPrefersStrongestBoundary(t *testing.T) {
	// A paragraph break, a sentence end and a comma all fall in the window.
	body := strings.Repeat("x", 80) + "\n\n" + strings.Repeat("y", 5) + ". " + strings.Repeat("z", 5) + ", " + strings.Repeat("w", 40)
	chunks := Split(tracked.New(body, 0), 0, 100)
	if !strings.HasSuffix(chunks[0].Text, "\n\n") {
		t.Fatalf("expected cut after paragraph break, got %q", chunks[0].Text)
	}

	body = strings.Repeat("x", 85) + ". " + strings.Repeat("z", 5) + ", " + strings.Repeat("w", 40)
	chunks = Split(tracked.New(body, 0), 0, 100)
	if !strings.HasSuffix(chunks[0].Text, ". ") {
		t.Fatalf("expected cut after sentence end, got %q", chunks[0].Text)
	}
}

func TestSplitIgnoresBoundariesOutsideWindow(t *testing.T) {
	body := strings.Repeat("x", 10) + ". " + strings.Repeat("y", 200)
	chunks := Split(tracked.New(body, 0), 0, 100)
	if chunks[0].Len() != 100 {
		t.Fatalf("expected hard cut at 100, got %d", chunks[0].Len())
	}
}

func TestSplitPreservesEveryRune(t *testing.T) {
	src := strings.Repeat("word, and more words. ", 40)
	text := Apply(src, DefaultOptions())
	chunks := Split(text, 7, 120)
	var joined strings.Builder
	var total int
	for i, c := range chunks {
		if c.Len() > 120 {
			t.Fatalf("chunk %d too long: %d", i, c.Len())
		}
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
		joined.WriteString(c.Text)
		total += c.Len()
	}
	if joined.String() != text.Text || total != text.Len() {
		t.Fatalf("chunks do not reassemble the text")
	}
}

func TestDocumentRange(t *testing.T) {
	c := Split(tracked.New("hello world", 0), 10, 0)[0]
	from, to, ok := c.DocumentRange(6, 5)
	if !ok || from != 16 || to != 21 {
		t.Fatalf("unexpected range %d-%d ok=%v", from, to, ok)
	}
	if _, _, ok := c.DocumentRange(20, 2); ok {
		t.Fatalf("expected miss for out-of-range start")
	}
}
