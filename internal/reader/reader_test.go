package reader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/loqalabs/loqa-reader/internal/editor"
	"github.com/loqalabs/loqa-reader/internal/filter"
	"github.com/loqalabs/loqa-reader/internal/protocol"
	"github.com/loqalabs/loqa-reader/internal/recovery"
	"github.com/loqalabs/loqa-reader/internal/synthesis"
	"github.com/loqalabs/loqa-reader/internal/timeline"
	"github.com/loqalabs/loqa-reader/internal/tts"
)

const document = "Hello brave world. Second part here."

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// steppingClock moves forward by step every time it is read.
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newSteppingClock(step time.Duration) *steppingClock {
	return &steppingClock{now: time.Unix(1_700_000_000, 0), step: step}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

type recorder struct {
	ranges [][2]int
	states []string
}

func (r *recorder) highlighter() editor.Highlighter {
	return editor.HighlighterFunc(func(from, to int) { r.ranges = append(r.ranges, [2]int{from, to}) })
}

func (r *recorder) status(st protocol.SessionStatus) { r.states = append(r.states, st.State) }

func testFormat(t *testing.T) tts.Format {
	t.Helper()
	format, err := tts.ParseFormat(tts.DefaultFormat)
	if err != nil {
		t.Fatalf("ParseFormat: %v", err)
	}
	return format
}

func testOptions() Options {
	return Options{
		Filter:         filter.DefaultOptions(),
		MaxChunkLength: 20,
		PollInterval:   time.Millisecond,
		Prefetch:       1,
		MaxRetries:     3,
		DialTimeout:    time.Second,
	}
}

func newTestReader(t *testing.T, opts Options, dialer tts.Dialer) *Reader {
	t.Helper()
	r, err := New(opts, dialer, testFormat(t), nil, newLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func speak(t *testing.T, r *Reader, rec *recorder) error {
	t.Helper()
	clock := newSteppingClock(10 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.Speak(ctx, Request{
		ID:          "s1",
		Source:      editor.Document{Text: document},
		Sink:        audio.NewClockSink(r.format, clock.Now),
		Highlighter: rec.highlighter(),
		OnStatus:    rec.status,
	})
}

func wordRanges() [][2]int {
	return [][2]int{{0, 5}, {6, 11}, {12, 17}, {19, 25}, {26, 30}, {31, 35}}
}

func TestSpeakHighlightsEveryWordInOrder(t *testing.T) {
	dialer := tts.NewMockDialer(testFormat(t))
	r := newTestReader(t, testOptions(), dialer)
	rec := &recorder{}

	if err := speak(t, r, rec); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	if len(rec.ranges) == 0 || rec.ranges[len(rec.ranges)-1] != [2]int{-1, -1} {
		t.Fatalf("expected the highlight to be cleared last, got %v", rec.ranges)
	}
	got := rec.ranges[:len(rec.ranges)-1]
	want := wordRanges()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("highlight %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	reqs := dialer.Requests()
	if len(reqs) != 2 || reqs[0].Text != "Hello brave world. " || reqs[1].Text != "Second part here." {
		t.Fatalf("unexpected requests %+v", reqs)
	}
	if dialer.Dials() != 1 {
		t.Fatalf("expected one stream, got %d", dialer.Dials())
	}
	if rec.states[0] != protocol.StateStarted || rec.states[len(rec.states)-1] != protocol.StateCompleted {
		t.Fatalf("unexpected states %v", rec.states)
	}
}

func TestSpeakRecoversFromInterruptedStream(t *testing.T) {
	dialer := tts.NewMockDialer(testFormat(t))
	dialer.Interrupt = map[int]int{1: 5}
	r := newTestReader(t, testOptions(), dialer)
	rec := &recorder{}

	if err := speak(t, r, rec); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if dialer.Dials() != 2 {
		t.Fatalf("expected a second stream, got %d dials", dialer.Dials())
	}
	reqs := dialer.Requests()
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %+v", reqs)
	}
	if !strings.HasSuffix("Hello brave world.", reqs[1].Text) {
		t.Fatalf("resent text %q is not a tail of the first chunk", reqs[1].Text)
	}
	if reqs[2].Text != "Second part here." {
		t.Fatalf("unexpected final request %q", reqs[2].Text)
	}

	n := len(rec.ranges)
	if n < 2 || rec.ranges[n-2] != [2]int{31, 35} || rec.ranges[n-1] != [2]int{-1, -1} {
		t.Fatalf("expected the last word then a clear, got %v", rec.ranges)
	}
	recovering := false
	for _, st := range rec.states {
		if st == protocol.StateRecovering {
			recovering = true
		}
	}
	if !recovering || rec.states[len(rec.states)-1] != protocol.StateCompleted {
		t.Fatalf("unexpected states %v", rec.states)
	}
}

func TestSpeakFailsWhenRetriesAreExhausted(t *testing.T) {
	dialer := tts.NewMockDialer(testFormat(t))
	dialer.Interrupt = map[int]int{1: 2, 2: 2, 3: 2, 4: 2}
	opts := testOptions()
	opts.MaxRetries = 2
	r := newTestReader(t, opts, dialer)
	rec := &recorder{}

	err := speak(t, r, rec)
	if !errors.Is(err, recovery.ErrRetriesExhausted) {
		t.Fatalf("expected exhausted retries, got %v", err)
	}
	if dialer.Dials() != 3 {
		t.Fatalf("expected 3 dials, got %d", dialer.Dials())
	}
	if rec.ranges[len(rec.ranges)-1] != [2]int{-1, -1} {
		t.Fatalf("expected the highlight to be cleared, got %v", rec.ranges)
	}
	if rec.states[len(rec.states)-1] != protocol.StateFailed {
		t.Fatalf("unexpected states %v", rec.states)
	}
}

func TestSpeakStopsOnCancel(t *testing.T) {
	dialer := tts.NewMockDialer(testFormat(t))
	r := newTestReader(t, testOptions(), dialer)
	clock := newSteppingClock(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ranges [][2]int
	hl := editor.HighlighterFunc(func(from, to int) {
		ranges = append(ranges, [2]int{from, to})
		cancel()
	})
	var states []string
	err := r.Speak(ctx, Request{
		ID:          "s2",
		Source:      editor.Document{Text: document},
		Sink:        audio.NewClockSink(r.format, clock.Now),
		Highlighter: hl,
		OnStatus:    func(st protocol.SessionStatus) { states = append(states, st.State) },
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(ranges) != 2 || ranges[0] != [2]int{0, 5} || ranges[1] != [2]int{-1, -1} {
		t.Fatalf("unexpected highlights %v", ranges)
	}
	if states[len(states)-1] != protocol.StateStopped {
		t.Fatalf("unexpected states %v", states)
	}
}

func TestSpeakNothingToRead(t *testing.T) {
	r := newTestReader(t, testOptions(), tts.NewMockDialer(testFormat(t)))
	err := r.Speak(context.Background(), Request{
		ID:          "s3",
		Source:      editor.Document{Text: "```\ncode only\n```"},
		Sink:        audio.NewClockSink(r.format, nil),
		Highlighter: editor.HighlighterFunc(func(int, int) {}),
	})
	if !errors.Is(err, ErrNothingToRead) {
		t.Fatalf("expected ErrNothingToRead, got %v", err)
	}
}

func TestSessionText(t *testing.T) {
	doc := editor.Document{Text: "alpha beta gamma", Cursor: 8}
	if text, base := sessionText(doc, false); text != doc.Text || base != 0 {
		t.Fatalf("whole document: got %q at %d", text, base)
	}
	if text, base := sessionText(doc, true); text != "beta gamma" || base != 6 {
		t.Fatalf("from cursor: got %q at %d", text, base)
	}
	doc.SelectFrom, doc.SelectTo = 11, 16
	if text, base := sessionText(doc, true); text != "gamma" || base != 11 {
		t.Fatalf("selection: got %q at %d", text, base)
	}
}

func TestRecoverOnceResendsFromSentenceStart(t *testing.T) {
	dialer := tts.NewMockDialer(testFormat(t))
	opts := testOptions()
	opts.MaxChunkLength = 100
	r := newTestReader(t, opts, dialer)

	text := "One two. Three four five."
	chunks := []filter.Chunk{{Index: 0, Text: text, Map: identity(len([]rune(text)))}}
	s := newSession(r, Request{
		ID:          "s4",
		Sink:        audio.NewClockSink(r.format, newSteppingClock(0).Now),
		Highlighter: editor.HighlighterFunc(func(int, int) {}),
	}, chunks)
	s.chunks[0].sent = true
	s.index.Add(synthesis.Event{
		Offset:     0,
		Duration:   timeline.FromSeconds(1),
		Text:       "four",
		TextOffset: 15,
		WordLength: 4,
		ChunkIndex: 0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	plan, err := s.recoverOnce(ctx)
	if err != nil {
		t.Fatalf("recoverOnce: %v", err)
	}
	defer s.closeStream()

	if plan.RestartIndex != 8 || plan.ResendOffset != 9 || plan.Resend != "Three four five." {
		t.Fatalf("unexpected plan %+v", plan)
	}
	c := s.chunks[0]
	if c.cursor != 8 || c.resendOffset != 9 || !c.sent || c.done {
		t.Fatalf("unexpected chunk state %+v", c)
	}
	if s.index.Len() != 0 {
		t.Fatalf("expected the chunk's events to be evicted")
	}
	reqs := dialer.Requests()
	if len(reqs) != 1 || reqs[0].Text != "Three four five." {
		t.Fatalf("unexpected requests %+v", reqs)
	}
}

func identity(n int) []int {
	m := make([]int, n)
	for i := range m {
		m[i] = i
	}
	return m
}

func TestSpeakKeepsWordsThatLookLikeMarkupNames(t *testing.T) {
	opts := testOptions()
	opts.MaxChunkLength = 100
	opts.DropArtifacts = true
	r := newTestReader(t, opts, tts.NewMockDialer(testFormat(t)))

	var ranges [][2]int
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := r.Speak(ctx, Request{
		ID:          "s5",
		Source:      editor.Document{Text: "We speak now."},
		Sink:        audio.NewClockSink(r.format, newSteppingClock(10*time.Millisecond).Now),
		Highlighter: editor.HighlighterFunc(func(from, to int) { ranges = append(ranges, [2]int{from, to}) }),
	})
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	want := [][2]int{{0, 2}, {3, 8}, {9, 12}, {-1, -1}}
	if len(ranges) != len(want) {
		t.Fatalf("expected %v, got %v", want, ranges)
	}
	for i := range want {
		if ranges[i] != want[i] {
			t.Fatalf("highlight %d: expected %v, got %v", i, want[i], ranges[i])
		}
	}
}

func TestDispatchDropsFramesOfClosedStream(t *testing.T) {
	dialer := tts.NewMockDialer(testFormat(t))
	r := newTestReader(t, testOptions(), dialer)

	text := "One two."
	s := newSession(r, Request{
		ID:          "s6",
		Sink:        audio.NewClockSink(r.format, newSteppingClock(0).Now),
		Highlighter: editor.HighlighterFunc(func(int, int) {}),
	}, []filter.Chunk{{Index: 0, Text: text, Map: identity(len([]rune(text)))}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.send(ctx, 0, text, 0); err != nil {
		t.Fatalf("send: %v", err)
	}
	stale := s.gen
	requestID := s.chunks[0].requestID
	s.closeStream()
	if s.gen == stale {
		t.Fatalf("closing the stream must start a new generation")
	}

	frame := func(path string, body string) tts.Frame {
		return tts.Frame{
			Headers: map[string]string{tts.HeaderPath: path, tts.HeaderRequestID: requestID},
			Body:    []byte(body),
		}
	}
	word := frame(tts.PathAudioMetadata,
		`{"Metadata":[{"Type":"WordBoundary","Data":{"Offset":0,"Duration":3000000,"text":{"Text":"One","Length":3,"BoundaryType":"WordBoundary"}}}]}`)

	for _, msg := range []message{
		{gen: stale, frame: word},
		{gen: stale, frame: frame(tts.PathAudio, "\x00\x00\x00\x00")},
		{gen: stale, frame: frame(tts.PathTurnEnd, "{}")},
		{gen: stale, ended: true, err: tts.ErrInterrupted},
	} {
		if err := s.dispatch(ctx, msg); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}
	c := s.chunks[0]
	if s.index.Len() != 0 || c.done || c.bytes != 0 || c.cursor != 0 {
		t.Fatalf("stale frames changed state: index=%d chunk=%+v", s.index.Len(), c)
	}
	if s.budget.Attempts() != 0 || dialer.Dials() != 1 {
		t.Fatalf("stale stream end triggered a recovery")
	}

	if err := s.dispatch(ctx, message{gen: s.gen, frame: word}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if s.index.Len() != 1 {
		t.Fatalf("expected the current generation to be accepted, index has %d events", s.index.Len())
	}
}
