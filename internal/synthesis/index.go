// Package synthesis keeps the word boundaries of a reading session ordered on
// the playback timeline and answers which word is being spoken.
//
// An Index is owned by a single goroutine and is not safe for concurrent use.
package synthesis

import (
	"slices"
	"sort"

	"github.com/loqalabs/loqa-reader/internal/timeline"
)

// NoChunk marks an event that is not tied to a chunk, and the initial
// resolution state of an Index.
const NoChunk = -1

// NoTextOffset marks an event whose position in the chunk text is unknown.
const NoTextOffset = -1

// Overlap candidates further back than this from the query time are not considered.
const lookbehind = timeline.Ticks(timeline.TicksPerSecond)

// Event is a word boundary placed on the playback timeline.
type Event struct {
	Offset   timeline.Ticks
	Duration timeline.Ticks
	Text     string
	// TextOffset is a rune index into the owning chunk's text, or NoTextOffset.
	TextOffset int
	WordLength int
	ChunkIndex int
}

// End returns the first tick after the event.
func (e Event) End() timeline.Ticks { return e.Offset + e.Duration }

// Covers reports whether t falls inside [Offset, Offset+Duration).
func (e Event) Covers(t timeline.Ticks) bool { return t >= e.Offset && t < e.End() }

// HasTextOffset reports whether the event is anchored in the chunk text.
func (e Event) HasTextOffset() bool { return e.TextOffset != NoTextOffset }

// Index is an offset-ordered set of events plus the chunk of the last resolved event.
type Index struct {
	events    []Event
	lastChunk int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{lastChunk: NoChunk}
}

// Len returns the number of stored events.
func (x *Index) Len() int { return len(x.events) }

// LastChunk returns the chunk of the last event returned by FindActive.
func (x *Index) LastChunk() int { return x.lastChunk }

// Add merges events into the index. Events with equal offsets keep their
// arrival order.
func (x *Index) Add(events ...Event) {
	if len(events) == 0 {
		return
	}
	x.events = append(x.events, events...)
	slices.SortStableFunc(x.events, func(a, b Event) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		}
		return 0
	})
}

// FindActive returns the event being spoken at t. When events of several
// chunks overlap, the chunk of the previous answer wins, then the highest
// chunk at or after it. Events of chunks before the previous answer are never
// returned, so a stale chunk cannot pull the highlight backwards.
func (x *Index) FindActive(t timeline.Ticks) (Event, bool) {
	// Position of the first event starting after t.
	upper := sort.Search(len(x.events), func(i int) bool { return x.events[i].Offset > t })
	if upper == 0 {
		return Event{}, false
	}

	var candidates []Event
	for i := upper - 1; i >= 0; i-- {
		e := x.events[i]
		if t-e.Offset > lookbehind {
			break
		}
		if e.Covers(t) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return Event{}, false
	}

	winner, ok := x.resolve(candidates)
	if !ok {
		return Event{}, false
	}
	x.lastChunk = winner.ChunkIndex
	return winner, true
}

// resolve picks among overlapping candidates. Candidates are ordered from the
// latest offset to the earliest.
func (x *Index) resolve(candidates []Event) (Event, bool) {
	for _, c := range candidates {
		if c.ChunkIndex == x.lastChunk {
			return c, true
		}
	}
	var best Event
	found := false
	for _, c := range candidates {
		if c.ChunkIndex < x.lastChunk {
			continue
		}
		if !found || c.ChunkIndex > best.ChunkIndex {
			best = c
			found = true
		}
	}
	return best, found
}

// FindClosest returns the latest event starting at or before t. It is the
// fallback for silences between words.
func (x *Index) FindClosest(t timeline.Ticks) (Event, bool) {
	upper := sort.Search(len(x.events), func(i int) bool { return x.events[i].Offset > t })
	if upper == 0 {
		return Event{}, false
	}
	return x.events[upper-1], true
}

// FindByTextOffset returns the event of chunk with the greatest text offset
// not beyond textOffset.
func (x *Index) FindByTextOffset(textOffset, chunk int) (Event, bool) {
	var best Event
	found := false
	for _, e := range x.events {
		if e.ChunkIndex != chunk || !e.HasTextOffset() || e.TextOffset > textOffset {
			continue
		}
		if !found || e.TextOffset > best.TextOffset {
			best = e
			found = true
		}
	}
	return best, found
}

// RemoveChunk drops every event of chunk.
func (x *Index) RemoveChunk(chunk int) {
	x.events = slices.DeleteFunc(x.events, func(e Event) bool { return e.ChunkIndex == chunk })
}

// Reset clears all events and the resolution state.
func (x *Index) Reset() {
	x.events = nil
	x.lastChunk = NoChunk
}
