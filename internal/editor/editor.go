// Package editor connects the reader to the text being read and to whatever
// renders the highlight.
package editor

import "unicode/utf8"

// Source is the document being read. Offsets are rune offsets.
type Source interface {
	Value() string
	CursorOffset() int
	Selection() (from, to int, ok bool)
}

// Highlighter shows which document range is being spoken.
type Highlighter interface {
	HighlightRange(from, to int)
	ClearHighlight()
}

// HighlighterFunc adapts a function to Highlighter. Clearing calls it with
// from and to both -1.
type HighlighterFunc func(from, to int)

func (f HighlighterFunc) HighlightRange(from, to int) { f(from, to) }

func (f HighlighterFunc) ClearHighlight() { f(-1, -1) }

// Document is a static Source.
type Document struct {
	Text   string
	Cursor int
	// SelectFrom and SelectTo mark a selection when SelectTo > SelectFrom.
	SelectFrom int
	SelectTo   int
}

func (d Document) Value() string { return d.Text }

func (d Document) CursorOffset() int {
	n := utf8.RuneCountInString(d.Text)
	switch {
	case d.Cursor < 0:
		return 0
	case d.Cursor > n:
		return n
	}
	return d.Cursor
}

func (d Document) Selection() (int, int, bool) {
	if d.SelectTo <= d.SelectFrom {
		return 0, 0, false
	}
	n := utf8.RuneCountInString(d.Text)
	from, to := max(d.SelectFrom, 0), min(d.SelectTo, n)
	if to <= from {
		return 0, 0, false
	}
	return from, to, true
}
