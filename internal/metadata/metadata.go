// Package metadata decodes word boundary payloads sent by the speech service.
//
// The service uses two shapes for a boundary. The nested shape carries a
// sub-object under "text" whose own offset is a text offset inside the spoken
// phrase. The flat shape puts every field on the event; its "Offset" is an
// audio offset and only an explicitly named text offset field may set the
// text offset. Decoding both shapes happens here and nowhere else.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/loqalabs/loqa-reader/internal/timeline"
)

// TypeWordBoundary is the only metadata type that yields boundaries.
const TypeWordBoundary = "WordBoundary"

// NoTextOffset marks a boundary whose text position is unknown.
const NoTextOffset = -1

// Boundary is one word boundary relative to the stream that produced it.
type Boundary struct {
	Offset   timeline.StreamTicks
	Duration timeline.Ticks
	Text     string
	// TextOffset is a rune index into the request text, or NoTextOffset.
	TextOffset int
	WordLength int
}

// HasTextOffset reports whether the service supplied a text position.
func (b Boundary) HasTextOffset() bool { return b.TextOffset != NoTextOffset }

type envelope struct {
	Metadata []item `json:"Metadata"`
}

type item struct {
	Type string          `json:"Type"`
	Data json.RawMessage `json:"Data"`
}

// Parse decodes an audio.metadata body. Items of other types and boundaries
// without a word are skipped.
func Parse(body []byte) ([]Boundary, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	var out []Boundary
	for i, it := range env.Metadata {
		if !strings.EqualFold(it.Type, TypeWordBoundary) || len(it.Data) == 0 {
			continue
		}
		b, err := decodeBoundary(it.Data)
		if err != nil {
			return nil, fmt.Errorf("decode metadata item %d: %w", i, err)
		}
		if b.Text == "" {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// fields is a JSON object with case-insensitive keys.
type fields map[string]json.RawMessage

func decodeFields(raw json.RawMessage) (fields, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	f := make(fields, len(m))
	for k, v := range m {
		f[strings.ToLower(k)] = v
	}
	return f, nil
}

func (f fields) raw(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return v, true
		}
	}
	return nil, false
}

func (f fields) number(keys ...string) (int64, bool, error) {
	v, ok := f.raw(keys...)
	if !ok {
		return 0, false, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, false, err
	}
	if i, err := n.Int64(); err == nil {
		return i, true, nil
	}
	fl, err := n.Float64()
	if err != nil {
		return 0, false, err
	}
	return int64(fl), true, nil
}

func (f fields) text(keys ...string) (string, bool, error) {
	v, ok := f.raw(keys...)
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false, err
	}
	return s, true, nil
}

func decodeBoundary(raw json.RawMessage) (Boundary, error) {
	b := Boundary{TextOffset: NoTextOffset}
	f, err := decodeFields(raw)
	if err != nil {
		return b, err
	}

	offset, _, err := f.number("offset", "audiooffset", "audio_offset")
	if err != nil {
		return b, fmt.Errorf("offset: %w", err)
	}
	b.Offset = timeline.StreamTicks(offset)
	duration, _, err := f.number("duration")
	if err != nil {
		return b, fmt.Errorf("duration: %w", err)
	}
	b.Duration = timeline.Ticks(duration)

	if sub, ok := f.raw("text"); ok && isObject(sub) {
		err = decodeNested(&b, sub)
	} else {
		err = decodeFlat(&b, f)
	}
	if err != nil {
		return b, err
	}
	if b.WordLength <= 0 {
		b.WordLength = utf8.RuneCountInString(b.Text)
	}
	return b, nil
}

func decodeNested(b *Boundary, raw json.RawMessage) error {
	f, err := decodeFields(raw)
	if err != nil {
		return fmt.Errorf("text: %w", err)
	}
	if b.Text, _, err = f.text("text"); err != nil {
		return fmt.Errorf("text.text: %w", err)
	}
	// Inside the nested object the offset is a text offset.
	textOffset, ok, err := f.number("offset", "textoffset", "text_offset")
	if err != nil {
		return fmt.Errorf("text.offset: %w", err)
	}
	if ok {
		b.TextOffset = int(textOffset)
	}
	length, _, err := f.number("length", "wordlength", "word_length")
	if err != nil {
		return fmt.Errorf("text.length: %w", err)
	}
	b.WordLength = int(length)
	return nil
}

func decodeFlat(b *Boundary, f fields) error {
	var err error
	if b.Text, _, err = f.text("text", "word"); err != nil {
		return fmt.Errorf("text: %w", err)
	}
	textOffset, ok, err := f.number("textoffset", "text_offset")
	if err != nil {
		return fmt.Errorf("textoffset: %w", err)
	}
	if ok {
		b.TextOffset = int(textOffset)
	}
	length, _, err := f.number("wordlength", "word_length", "length")
	if err != nil {
		return fmt.Errorf("wordlength: %w", err)
	}
	b.WordLength = int(length)
	return nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
