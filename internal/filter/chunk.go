package filter

import (
	"github.com/loqalabs/loqa-reader/internal/tracked"
)

// DefaultMaxChunkLength is the largest chunk sent in one synthesis request.
const DefaultMaxChunkLength = 2500

// Soft boundaries in priority order.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune(". "),
	[]rune(", "),
	[]rune(" "),
}

// Chunk is one independently synthesized piece of speakable text.
type Chunk struct {
	Index int
	// Base is the document offset of the filtered source; Map values are
	// relative to it.
	Base int
	Text string
	Map  []int
}

func newChunk(index, base int, t tracked.Text) Chunk {
	return Chunk{Index: index, Base: base, Text: t.Text, Map: t.Map}
}

// Len returns the number of runes in the chunk text.
func (c Chunk) Len() int { return len(c.Map) }

// DocumentOffset returns the document offset of rune i of the chunk text.
func (c Chunk) DocumentOffset(i int) (int, bool) {
	if i < 0 || i >= len(c.Map) {
		return 0, false
	}
	return c.Base + c.Map[i], true
}

// DocumentRange maps runes [start, start+length) to a document range.
func (c Chunk) DocumentRange(start, length int) (from, to int, ok bool) {
	if length <= 0 {
		return 0, 0, false
	}
	from, ok = c.DocumentOffset(start)
	if !ok {
		return 0, 0, false
	}
	last, ok := c.DocumentOffset(start + length - 1)
	if !ok {
		last, _ = c.DocumentOffset(len(c.Map) - 1)
	}
	if last < from {
		last = from
	}
	return from, last + 1, true
}

// Split cuts t into chunks of at most max runes, preferring to cut after a
// paragraph break, then a sentence end, a comma and finally any space found in
// the last fifth of the allowed length.
func Split(t tracked.Text, base, max int) []Chunk {
	if max <= 0 {
		max = DefaultMaxChunkLength
	}
	var chunks []Chunk
	rest := t
	for rest.Len() > 0 {
		if rest.Len() <= max {
			chunks = append(chunks, newChunk(len(chunks), base, rest))
			break
		}
		cut := cutPoint(rest.Runes(), max)
		chunks = append(chunks, newChunk(len(chunks), base, rest.Slice(0, cut)))
		rest = rest.Slice(cut, rest.Len())
	}
	return chunks
}

func cutPoint(runes []rune, max int) int {
	window := max / 5
	if window < 1 {
		window = 1
	}
	lo := max - window
	for _, sep := range separators {
		for i := max - len(sep); i >= lo; i-- {
			if hasPrefix(runes[i:], sep) {
				return i + len(sep)
			}
		}
	}
	return max
}

func hasPrefix(runes, prefix []rune) bool {
	if len(runes) < len(prefix) {
		return false
	}
	for i, r := range prefix {
		if runes[i] != r {
			return false
		}
	}
	return true
}
