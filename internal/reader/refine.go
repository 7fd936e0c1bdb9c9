package reader

import (
	"strings"
	"unicode"

	"github.com/loqalabs/loqa-reader/internal/metadata"
	"github.com/loqalabs/loqa-reader/internal/synthesis"
)

const (
	// How far ahead of the scan cursor a reported word may be found.
	matchLookahead = 120
	// How far behind the scan cursor to look when the cursor overshot.
	matchLookbehind = 24
)

// refine turns a parsed word boundary into an index event of chunk c.
func (c *chunkState) refine(b metadata.Boundary) synthesis.Event {
	ev := synthesis.Event{
		Offset:     c.base.Advance(b.Offset),
		Duration:   b.Duration,
		Text:       b.Text,
		TextOffset: synthesis.NoTextOffset,
		WordLength: b.WordLength,
		ChunkIndex: c.Index,
	}

	start, length := -1, 0
	if b.HasTextOffset() {
		// Offsets reported for a resent tail are relative to the tail.
		if at := b.TextOffset + c.resendOffset; c.wordAt(at, b.Text) {
			start, length = at, len([]rune(b.Text))
		}
	}
	if start < 0 {
		start, length = c.match(b.Text)
	}
	if start < 0 {
		return ev
	}
	start, length = c.expand(start, length)
	ev.TextOffset = start
	ev.WordLength = length
	c.cursor = start + length
	return ev
}

// wordAt reports whether word occurs at rune index at, ignoring case.
func (c *chunkState) wordAt(at int, word string) bool {
	w := []rune(word)
	if at < 0 || len(w) == 0 || at+len(w) > len(c.runes) {
		return false
	}
	return strings.EqualFold(string(c.runes[at:at+len(w)]), word)
}

// match locates word near the scan cursor, ignoring case. A word the text
// does not contain verbatim is retried without its punctuation, then in a
// small window behind the cursor.
func (c *chunkState) match(word string) (int, int) {
	w := []rune(word)
	if len(w) == 0 {
		return -1, 0
	}
	from := min(c.cursor, len(c.runes))
	to := min(from+matchLookahead, len(c.runes))

	if i := c.find(w, from, to); i >= 0 {
		return i, len(w)
	}
	stripped := []rune(strings.TrimFunc(word, unicode.IsPunct))
	if len(stripped) == 0 {
		return -1, 0
	}
	if len(stripped) != len(w) {
		if i := c.find(stripped, from, to); i >= 0 {
			return i, len(stripped)
		}
	}
	back := max(from-matchLookbehind, 0)
	if i := c.find(stripped, back, from); i >= 0 {
		return i, len(stripped)
	}
	return -1, 0
}

// find returns the first index in [from, to) where w starts.
func (c *chunkState) find(w []rune, from, to int) int {
	for i := from; i < to && i+len(w) <= len(c.runes); i++ {
		if equalFold(c.runes[i:i+len(w)], w) {
			return i
		}
	}
	return -1
}

func equalFold(a, b []rune) bool {
	for i := range b {
		if a[i] != b[i] && !strings.EqualFold(string(a[i]), string(b[i])) {
			return false
		}
	}
	return true
}

// expand grows a match to the whole token around it. Han and kana text has
// no word separators, so matches there are kept as reported.
func (c *chunkState) expand(start, length int) (int, int) {
	if length == 0 || isIdeographic(c.runes[start]) {
		return start, length
	}
	end := start + length
	for start > 0 && isTokenRune(c.runes[start-1]) && !isIdeographic(c.runes[start-1]) {
		start--
	}
	for end < len(c.runes) && isTokenRune(c.runes[end]) && !isIdeographic(c.runes[end]) {
		end++
	}
	return start, end - start
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '\'' || r == '’'
}

func isIdeographic(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana)
}
