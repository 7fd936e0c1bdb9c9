// Package recovery decides where to resume a chunk whose synthesis stream was
// interrupted, both in the chunk text and on the playback timeline.
package recovery

import (
	"strings"
	"unicode"

	"github.com/loqalabs/loqa-reader/internal/synthesis"
	"github.com/loqalabs/loqa-reader/internal/timeline"
)

// DefaultLookback is how far back a sentence end is still preferred.
const DefaultLookback = 50

// Chunks exposes the session's chunk state to the planner.
type Chunks interface {
	// ChunkText returns the speakable text of a chunk.
	ChunkText(index int) (string, bool)
	// ChunkBase returns where the chunk's audio starts on the playback timeline.
	ChunkBase(index int) timeline.Ticks
	// LastProcessed returns the last text index highlighted in the chunk.
	LastProcessed(index int) int
}

// Plan describes how to resume an interrupted chunk.
type Plan struct {
	ChunkIndex int
	// RestartIndex is the rune index in the chunk text where reading resumes.
	RestartIndex int
	// ResendOffset is the rune index of the first character of Resend. It is
	// RestartIndex plus any skipped leading white space.
	ResendOffset int
	Resend       string
	// Anchor is the absolute playback position the resumed audio starts at.
	Anchor timeline.Ticks
	// Advance is set when nothing of the chunk is left to send.
	Advance bool
	// Matched reports whether the plan was derived from a timeline event.
	Matched bool
}

// Planner computes recovery plans.
type Planner struct {
	Lookback int
}

// Plan picks the resumption point for the chunk being played at now.
// fallbackChunk is used only when no event is known at all.
func (p Planner) Plan(idx *synthesis.Index, chunks Chunks, now timeline.Ticks, fallbackChunk int) Plan {
	lookback := p.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	ev, ok := idx.FindActive(now)
	if !ok {
		ev, ok = idx.FindClosest(now)
	}

	plan := Plan{ChunkIndex: fallbackChunk}
	if ok && ev.ChunkIndex != synthesis.NoChunk {
		plan.ChunkIndex = ev.ChunkIndex
		plan.Matched = true
	}

	text, found := chunks.ChunkText(plan.ChunkIndex)
	if !found {
		plan.Advance = true
		return plan
	}
	runes := []rune(text)

	scanStart := chunks.LastProcessed(plan.ChunkIndex)
	if plan.Matched && ev.HasTextOffset() {
		scanStart = ev.TextOffset
	}

	plan.RestartIndex = RestartIndex(runes, scanStart, lookback)
	plan.Anchor = chunks.ChunkBase(plan.ChunkIndex)
	if plan.RestartIndex > 0 {
		// Event offsets are already on the playback timeline.
		if anchor, ok := idx.FindByTextOffset(plan.RestartIndex, plan.ChunkIndex); ok {
			plan.Anchor = anchor.Offset
		}
	}

	offset := plan.RestartIndex
	for offset < len(runes) && unicode.IsSpace(runes[offset]) {
		offset++
	}
	plan.ResendOffset = offset
	plan.Resend = strings.TrimRightFunc(string(runes[offset:]), unicode.IsSpace)
	plan.Advance = plan.Resend == ""
	return plan
}

// RestartIndex scans backwards from scanStart for the nearest sentence end.
// One within lookback runes wins. Otherwise a clause break nearer than the
// sentence end is used, and failing that reading restarts at 0.
func RestartIndex(runes []rune, scanStart, lookback int) int {
	if scanStart > len(runes) {
		scanStart = len(runes)
	}
	strong, weak := -1, -1
	for i := scanStart - 1; i >= 0; i-- {
		r := runes[i]
		if isStrong(r) {
			strong = i
			break
		}
		if weak < 0 && isWeak(r) {
			weak = i
		}
	}
	if strong >= 0 && scanStart-strong <= lookback {
		return strong + 1
	}
	if weak >= 0 {
		return weak + 1
	}
	return 0
}

func isStrong(r rune) bool {
	switch r {
	case '.', '!', '?', '\n', '…', '。', '！', '？':
		return true
	}
	return false
}

func isWeak(r rune) bool {
	switch r {
	case ',', ';', ':', '，', '；', '：', '、':
		return true
	}
	return false
}
