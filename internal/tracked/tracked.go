// Package tracked implements text that remembers where every character came from.
//
// A Text pairs a string with a map holding, for each rune of the string, the
// offset of that rune in the original document. Every operation returns a new
// Text and keeps len(Map) equal to the rune count of the string.
package tracked

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Text is a string plus the original offset of each of its runes.
type Text struct {
	Text string
	Map  []int
}

// New wraps s with an identity map starting at base.
func New(s string, base int) Text {
	n := utf8.RuneCountInString(s)
	m := make([]int, n)
	for i := range m {
		m[i] = base + i
	}
	return Text{Text: s, Map: m}
}

// Len returns the number of runes.
func (t Text) Len() int { return len(t.Map) }

// Runes returns the text as runes; index i corresponds to Map[i].
func (t Text) Runes() []rune { return []rune(t.Text) }

// Remove deletes every match of re. Surviving runes keep their offsets.
func (t Text) Remove(re *regexp.Regexp) Text {
	return t.Replace(re, "")
}

// Replace substitutes every non-overlapping match of re with the literal repl.
// Each rune of repl is mapped to the original offset of the first matched rune.
func (t Text) Replace(re *regexp.Regexp, repl string) Text {
	return t.ReplaceFunc(re, func(string) string { return repl })
}

// ReplaceFunc is Replace with the replacement computed from the matched text.
func (t Text) ReplaceFunc(re *regexp.Regexp, fn func(match string) string) Text {
	locs := re.FindAllStringIndex(t.Text, -1)
	if len(locs) == 0 {
		return t
	}
	idx := runeIndex(t.Text)

	var b strings.Builder
	b.Grow(len(t.Text))
	m := make([]int, 0, len(t.Map))
	prev := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		b.WriteString(t.Text[prev:start])
		m = append(m, t.Map[idx[prev]:idx[start]]...)

		repl := fn(t.Text[start:end])
		if repl != "" {
			anchor, ok := t.anchor(idx[start])
			if ok {
				b.WriteString(repl)
				for range utf8.RuneCountInString(repl) {
					m = append(m, anchor)
				}
			}
		}
		prev = end
	}
	b.WriteString(t.Text[prev:])
	m = append(m, t.Map[idx[prev]:]...)
	return Text{Text: b.String(), Map: m}
}

// anchor returns the offset inserted text at rune position i inherits. An
// empty match at the very end borrows the last rune's offset.
func (t Text) anchor(i int) (int, bool) {
	if i < len(t.Map) {
		return t.Map[i], true
	}
	if len(t.Map) > 0 {
		return t.Map[len(t.Map)-1], true
	}
	return 0, false
}

// KeepGroup1 replaces every match of re with the text of its first capture
// group. Kept runes retain their own offsets. A match whose group did not
// participate is removed.
func (t Text) KeepGroup1(re *regexp.Regexp) Text {
	locs := re.FindAllStringSubmatchIndex(t.Text, -1)
	if len(locs) == 0 {
		return t
	}
	idx := runeIndex(t.Text)

	var b strings.Builder
	b.Grow(len(t.Text))
	m := make([]int, 0, len(t.Map))
	prev := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		b.WriteString(t.Text[prev:start])
		m = append(m, t.Map[idx[prev]:idx[start]]...)
		if len(loc) >= 4 && loc[2] >= 0 {
			gs, ge := loc[2], loc[3]
			b.WriteString(t.Text[gs:ge])
			m = append(m, t.Map[idx[gs]:idx[ge]]...)
		}
		prev = end
	}
	b.WriteString(t.Text[prev:])
	m = append(m, t.Map[idx[prev]:]...)
	return Text{Text: b.String(), Map: m}
}

// Slice returns runes [start, end) with their offsets. Bounds are clamped.
func (t Text) Slice(start, end int) Text {
	n := len(t.Map)
	start = clamp(start, 0, n)
	end = clamp(end, start, n)
	runes := []rune(t.Text)
	m := make([]int, end-start)
	copy(m, t.Map[start:end])
	return Text{Text: string(runes[start:end]), Map: m}
}

// TrimSpace removes leading and trailing white space from the text and the map.
func (t Text) TrimSpace() Text {
	runes := []rune(t.Text)
	start, end := 0, len(runes)
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	if start == 0 && end == len(runes) {
		return t
	}
	m := make([]int, end-start)
	copy(m, t.Map[start:end])
	return Text{Text: string(runes[start:end]), Map: m}
}

// Valid reports whether the map has exactly one entry per rune.
func (t Text) Valid() bool {
	return utf8.RuneCountInString(t.Text) == len(t.Map)
}

// runeIndex maps every byte offset of s (and len(s)) to a rune index.
func runeIndex(s string) []int {
	idx := make([]int, len(s)+1)
	for i := range idx {
		idx[i] = -1
	}
	r := 0
	for i := range s {
		idx[i] = r
		r++
	}
	for i := 1; i < len(s); i++ {
		if idx[i] < 0 {
			idx[i] = idx[i-1]
		}
	}
	idx[len(s)] = r
	return idx
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
