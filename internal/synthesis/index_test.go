package synthesis

import (
	"testing"

	"github.com/loqalabs/loqa-reader/internal/timeline"
)

func sec(s float64) timeline.Ticks { return timeline.FromSeconds(s) }

func word(chunk int, start, length float64, textOffset int, text string) Event {
	return Event{
		Offset:     sec(start),
		Duration:   sec(length),
		Text:       text,
		TextOffset: textOffset,
		WordLength: len(text),
		ChunkIndex: chunk,
	}
}

func TestFindActiveSingleChunk(t *testing.T) {
	x := NewIndex()
	x.Add(word(0, 0.5, 0.4, 6, "world"), word(0, 0, 0.4, 0, "Hello"))

	got, ok := x.FindActive(sec(0.2))
	if !ok || got.Text != "Hello" {
		t.Fatalf("expected Hello, got %+v ok=%v", got, ok)
	}
	got, ok = x.FindActive(sec(0.6))
	if !ok || got.Text != "world" {
		t.Fatalf("expected world, got %+v ok=%v", got, ok)
	}
	if _, ok := x.FindActive(sec(0.45)); ok {
		t.Fatalf("expected no active word in the gap")
	}
	if x.LastChunk() != 0 {
		t.Fatalf("expected last chunk 0, got %d", x.LastChunk())
	}
}

func TestFindActivePrefersCurrentChunk(t *testing.T) {
	x := NewIndex()
	x.Add(word(0, 0.8, 1.2, 0, "zero"))
	x.Add(word(1, 1, 2, 0, "one"))

	got, ok := x.FindActive(sec(0.9))
	if !ok || got.ChunkIndex != 0 {
		t.Fatalf("expected chunk 0, got %+v", got)
	}
	// Both overlap; the chunk already being highlighted stays.
	got, ok = x.FindActive(sec(1.5))
	if !ok || got.ChunkIndex != 0 {
		t.Fatalf("expected stability on chunk 0, got %+v", got)
	}
	got, ok = x.FindActive(sec(2.5))
	if !ok || got.ChunkIndex != 1 {
		t.Fatalf("expected chunk 1, got %+v", got)
	}
}

func TestFindActiveNeverRegresses(t *testing.T) {
	x := NewIndex()
	x.Add(word(0, 0.8, 1.2, 0, "zero"))
	x.Add(word(1, 1.5, 1.5, 0, "one"))

	got, ok := x.FindActive(sec(1.6))
	if !ok || got.ChunkIndex != 1 {
		t.Fatalf("expected highest chunk on first overlap, got %+v", got)
	}
	if got, ok := x.FindActive(sec(0.9)); ok {
		t.Fatalf("expected no event after progressing to chunk 1, got %+v", got)
	}
	if x.LastChunk() != 1 {
		t.Fatalf("a miss must not change the last chunk, got %d", x.LastChunk())
	}
}

func TestFindActiveSameOffsetPrefersHigherChunk(t *testing.T) {
	x := NewIndex()
	x.Add(word(0, 1, 1, 0, "stale"))
	x.Add(word(2, 1, 1, 0, "fresh"))
	got, ok := x.FindActive(sec(1.2))
	if !ok || got.Text != "fresh" {
		t.Fatalf("expected fresh, got %+v", got)
	}
}

func TestFindClosest(t *testing.T) {
	x := NewIndex()
	x.Add(word(0, 0, 0.2, 0, "a"), word(0, 1, 0.2, 2, "b"))
	if _, ok := x.FindClosest(sec(-1)); ok {
		t.Fatalf("expected miss before the first event")
	}
	got, ok := x.FindClosest(sec(0.7))
	if !ok || got.Text != "a" {
		t.Fatalf("expected a, got %+v", got)
	}
	got, _ = x.FindClosest(sec(5))
	if got.Text != "b" {
		t.Fatalf("expected b, got %+v", got)
	}
}

func TestFindByTextOffset(t *testing.T) {
	x := NewIndex()
	x.Add(
		word(0, 0, 0.3, 0, "Sentence"),
		word(0, 0.4, 0.3, 9, "one"),
		word(0, 1, 0.3, 14, "Two"),
		word(1, 2, 0.3, 0, "Other"),
		Event{Offset: sec(3), Duration: sec(1), Text: "loose", TextOffset: NoTextOffset, ChunkIndex: 0},
	)
	got, ok := x.FindByTextOffset(13, 0)
	if !ok || got.Text != "one" {
		t.Fatalf("expected one, got %+v", got)
	}
	got, ok = x.FindByTextOffset(14, 0)
	if !ok || got.Text != "Two" {
		t.Fatalf("expected Two, got %+v", got)
	}
	if _, ok := x.FindByTextOffset(5, 3); ok {
		t.Fatalf("expected miss for unknown chunk")
	}
}

func TestRemoveChunkAndReset(t *testing.T) {
	x := NewIndex()
	x.Add(word(0, 0, 1, 0, "a"), word(1, 0.5, 1, 0, "b"), word(1, 2, 1, 2, "c"))
	x.RemoveChunk(1)
	if x.Len() != 1 {
		t.Fatalf("expected 1 event left, got %d", x.Len())
	}
	if _, ok := x.FindActive(sec(2.5)); ok {
		t.Fatalf("evicted events must not be returned")
	}
	x.FindActive(sec(0.1))
	x.Reset()
	if x.Len() != 0 || x.LastChunk() != NoChunk {
		t.Fatalf("reset left state behind: len=%d last=%d", x.Len(), x.LastChunk())
	}
}
