package tts

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/loqalabs/loqa-reader/internal/timeline"
)

// ErrInterrupted is reported by mock streams that were told to fail.
var ErrInterrupted = errors.New("speech stream interrupted")

// MockDialer synthesizes silent audio and word boundaries locally. It is used
// for offline runs and tests.
type MockDialer struct {
	Format       Format
	WordDuration time.Duration
	Gap          time.Duration
	// TextOffsets includes the text offset of every word in its metadata.
	TextOffsets bool
	// Interrupt maps a dial number, starting at 1, to how many frames that
	// stream delivers before it fails.
	Interrupt map[int]int

	mu       sync.Mutex
	dials    int
	requests []Request
}

// NewMockDialer returns a mock producing audio in format.
func NewMockDialer(format Format) *MockDialer {
	return &MockDialer{Format: format, WordDuration: 300 * time.Millisecond, Gap: 50 * time.Millisecond}
}

func (d *MockDialer) Dial(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.dials++
	limit, ok := d.Interrupt[d.dials]
	d.mu.Unlock()
	if !ok {
		limit = -1
	}
	s := &mockStream{
		dialer: d,
		limit:  limit,
		queue:  make(chan Request, 32),
		frames: make(chan Frame, 16),
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Dials returns how many streams were opened.
func (d *MockDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Requests returns every request sent so far.
func (d *MockDialer) Requests() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Request(nil), d.requests...)
}

func (d *MockDialer) record(req Request) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()
}

type mockWord struct {
	text   string
	offset int
}

func splitWords(text string) []mockWord {
	var words []mockWord
	runes := []rune(text)
	start := -1
	flush := func(end int) {
		w := runes[start:end]
		lead := 0
		for lead < len(w) && unicode.IsPunct(w[lead]) {
			lead++
		}
		trail := len(w)
		for trail > lead && unicode.IsPunct(w[trail-1]) {
			trail--
		}
		if trail > lead {
			words = append(words, mockWord{text: string(w[lead:trail]), offset: start + lead})
		}
	}
	for i, r := range runes {
		if unicode.IsSpace(r) {
			if start >= 0 {
				flush(i)
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		flush(len(runes))
	}
	return words
}

type mockBoundary struct {
	Type string `json:"Type"`
	Data struct {
		Offset   int64 `json:"Offset"`
		Duration int64 `json:"Duration"`
		Text     struct {
			Text         string `json:"Text"`
			Offset       *int   `json:"Offset,omitempty"`
			Length       int    `json:"Length"`
			BoundaryType string `json:"BoundaryType"`
		} `json:"text"`
	} `json:"Data"`
}

// render produces the frames the service would send for req.
func (d *MockDialer) render(req Request) []Frame {
	word := d.Format.Bytes(timeline.FromDuration(d.WordDuration))
	gap := d.Format.Bytes(timeline.FromDuration(d.Gap))
	header := func(path string) map[string]string {
		return map[string]string{HeaderPath: path, HeaderRequestID: req.ID}
	}

	frames := []Frame{{Headers: header(PathTurnStart), Body: []byte("{}")}}
	var played int64
	for _, w := range splitWords(req.Text) {
		var b mockBoundary
		b.Type = "WordBoundary"
		b.Data.Offset = int64(d.Format.Duration(played))
		b.Data.Duration = int64(d.Format.Duration(word))
		b.Data.Text.Text = w.text
		b.Data.Text.Length = len([]rune(w.text))
		b.Data.Text.BoundaryType = "WordBoundary"
		if d.TextOffsets {
			offset := w.offset
			b.Data.Text.Offset = &offset
		}
		body, _ := json.Marshal(map[string][]mockBoundary{"Metadata": {b}})
		frames = append(frames,
			Frame{Headers: header(PathAudioMetadata), Body: body},
			Frame{Headers: header(PathAudio), Body: make([]byte, word+gap), Binary: true},
		)
		played += word + gap
	}
	frames = append(frames, Frame{
		Headers: header(PathTurnEnd),
		Body:    []byte(`{"bytes":` + strconv.FormatInt(played, 10) + `}`),
	})
	return frames
}

type mockStream struct {
	dialer *MockDialer
	limit  int
	sent   int
	queue  chan Request
	frames chan Frame
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

func (s *mockStream) run() {
	defer close(s.frames)
	for {
		select {
		case <-s.done:
			return
		case req := <-s.queue:
			for _, f := range s.dialer.render(req) {
				if s.limit >= 0 && s.sent >= s.limit {
					s.mu.Lock()
					s.err = ErrInterrupted
					s.mu.Unlock()
					return
				}
				select {
				case s.frames <- f:
					s.sent++
				case <-s.done:
					return
				}
			}
		}
	}
}

func (s *mockStream) Send(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return errors.New("empty speech request")
	}
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	select {
	case s.queue <- req:
		s.dialer.record(req)
		return nil
	case <-s.done:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *mockStream) Frames() <-chan Frame { return s.frames }

func (s *mockStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *mockStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
