package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/loqalabs/loqa-reader/internal/editor"
	"github.com/loqalabs/loqa-reader/internal/eventstore"
	"github.com/loqalabs/loqa-reader/internal/filter"
	"github.com/loqalabs/loqa-reader/internal/metadata"
	"github.com/loqalabs/loqa-reader/internal/protocol"
	"github.com/loqalabs/loqa-reader/internal/recovery"
	"github.com/loqalabs/loqa-reader/internal/synthesis"
	"github.com/loqalabs/loqa-reader/internal/timeline"
	"github.com/loqalabs/loqa-reader/internal/tts"
)

// Playback within this distance of the end counts as finished.
const endTolerance = timeline.Ticks(timeline.TicksPerSecond / 1000)

var errStreamEnded = errors.New("speech stream ended mid-chunk")

type chunkState struct {
	filter.Chunk
	runes []rune

	base      timeline.Ticks
	baseKnown bool
	sent      bool
	done      bool
	// bytes counts the audio received for the current request.
	bytes     int64
	requestID string
	// resendOffset is where the text of the current request starts.
	resendOffset int
	cursor       int
	processed    int
}

func (c *chunkState) reset() {
	c.sent = false
	c.done = false
	c.bytes = 0
	c.requestID = ""
	c.resendOffset = 0
	c.cursor = 0
	c.processed = 0
}

// message carries a frame, or the end of a stream, from one stream generation.
type message struct {
	gen   int
	frame tts.Frame
	ended bool
	err   error
}

type session struct {
	r       *Reader
	id      string
	voice   string
	lang    string
	sink    audio.Sink
	hl      editor.Highlighter
	notify  func(protocol.SessionStatus)
	logger  *slog.Logger
	index   *synthesis.Index
	planner recovery.Planner
	budget  *recovery.Budget

	chunks   []*chunkState
	requests map[string]int
	next     int

	stream tts.Stream
	gen    int
	inbox  chan message

	audioEnd  timeline.Ticks
	lastFrom  int
	lastTo    int
	highlight bool
}

func newSession(r *Reader, req Request, chunks []filter.Chunk) *session {
	s := &session{
		r:        r,
		id:       req.ID,
		voice:    req.Voice,
		lang:     req.Language,
		sink:     req.Sink,
		hl:       req.Highlighter,
		notify:   req.OnStatus,
		logger:   r.logger.With(slog.String("session_id", req.ID)),
		index:    synthesis.NewIndex(),
		planner:  recovery.Planner{Lookback: r.opts.Lookback},
		budget:   recovery.NewBudget(r.opts.MaxRetries),
		requests: make(map[string]int),
		inbox:    make(chan message, 64),
	}
	if s.voice == "" {
		s.voice = r.opts.Voice
	}
	if s.lang == "" {
		s.lang = r.opts.Language
	}
	for _, c := range chunks {
		s.chunks = append(s.chunks, &chunkState{Chunk: c, runes: []rune(c.Text)})
	}
	s.chunks[0].baseKnown = true
	return s
}

// ChunkText, ChunkBase and LastProcessed expose chunk state to the planner.
func (s *session) ChunkText(i int) (string, bool) {
	if i < 0 || i >= len(s.chunks) {
		return "", false
	}
	return s.chunks[i].Text, true
}

func (s *session) ChunkBase(i int) timeline.Ticks {
	if i < 0 || i >= len(s.chunks) {
		return 0
	}
	return s.chunks[i].base
}

func (s *session) LastProcessed(i int) int {
	if i < 0 || i >= len(s.chunks) {
		return 0
	}
	return s.chunks[i].processed
}

func (s *session) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStream()

	if err := s.sendNext(ctx); err != nil {
		if err := s.recover(ctx, err); err != nil {
			return s.abort(ctx, err)
		}
	}

	ticker := time.NewTicker(s.r.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.teardown()
			return ctx.Err()
		case msg := <-s.inbox:
			if err := s.dispatch(ctx, msg); err != nil {
				return s.abort(ctx, err)
			}
		case <-ticker.C:
			now := timeline.FromSeconds(s.sink.CurrentTime())
			s.poll(ctx, now)
			if s.finished(now) {
				s.teardown()
				return nil
			}
			if err := s.maybeSendNext(ctx, now); err != nil {
				if err := s.recover(ctx, err); err != nil {
					return s.abort(ctx, err)
				}
			}
		}
	}
}

// dispatch handles a message from the pump. Messages of a closed or replaced
// stream are dropped.
func (s *session) dispatch(ctx context.Context, msg message) error {
	if msg.gen != s.gen {
		return nil
	}
	if msg.ended {
		return s.handleEnd(ctx, msg.err)
	}
	return s.handleFrame(ctx, msg.frame)
}

// teardown releases playback state when the session ends.
func (s *session) teardown() {
	s.closeStream()
	s.index.Reset()
	if err := s.sink.Finish(); err != nil {
		s.logger.Warn("failed to finish audio", slogError(err))
	}
	s.hl.ClearHighlight()
	s.highlight = false
}

// abort ends the session after an unrecoverable error.
func (s *session) abort(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		s.teardown()
		return ctx.Err()
	}
	s.logger.Error("session failed", slogError(err))
	s.teardown()
	return err
}

func (s *session) status(state string, err error) {
	if s.notify == nil {
		return
	}
	st := protocol.SessionStatus{SessionID: s.id, State: state, Chunks: len(s.chunks), Timestamp: s.r.now().UTC()}
	if err != nil {
		st.Error = err.Error()
	}
	s.notify(st)
}

func (s *session) journal(ctx context.Context, typ string, chunk int, detail string) {
	pos := timeline.FromSeconds(s.sink.CurrentTime())
	evt := eventstore.Event{SessionID: s.id, Type: typ, Chunk: chunk, Position: int64(pos), Detail: detail}
	if err := s.r.journal.AppendEvent(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.Warn("failed to journal event", slog.String("type", typ), slogError(err))
	}
}

// ensureStream dials a new stream when none is open.
func (s *session) ensureStream(ctx context.Context) error {
	if s.stream != nil {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, s.r.opts.DialTimeout)
	defer cancel()
	stream, err := s.r.dialer.Dial(dialCtx)
	if err != nil {
		return err
	}
	s.gen++
	s.stream = stream
	go s.pump(ctx, s.gen, stream)
	return nil
}

func (s *session) pump(ctx context.Context, gen int, stream tts.Stream) {
	for frame := range stream.Frames() {
		select {
		case s.inbox <- message{gen: gen, frame: frame}:
		case <-ctx.Done():
			return
		}
	}
	select {
	case s.inbox <- message{gen: gen, ended: true, err: stream.Err()}:
	case <-ctx.Done():
	}
}

// closeStream closes the open stream and fences off its late frames.
func (s *session) closeStream() {
	if s.stream == nil {
		return
	}
	_ = s.stream.Close()
	s.stream = nil
	s.gen++
}

// generating returns the chunk whose audio is being received, or -1.
func (s *session) generating() int {
	for i, c := range s.chunks {
		if c.sent && !c.done {
			return i
		}
	}
	return -1
}

// playing returns the last chunk whose audio starts at or before now.
func (s *session) playing(now timeline.Ticks) int {
	p := 0
	for i, c := range s.chunks {
		if !c.baseKnown || c.base > now {
			break
		}
		p = i
	}
	return p
}

// maybeSendNext requests the next chunk once the previous one is complete and
// playback is within the prefetch window.
func (s *session) maybeSendNext(ctx context.Context, now timeline.Ticks) error {
	if s.next >= len(s.chunks) || s.generating() >= 0 {
		return nil
	}
	if s.next > 0 && !s.chunks[s.next-1].done {
		return nil
	}
	if s.next-s.playing(now) > s.r.opts.Prefetch {
		return nil
	}
	return s.sendNext(ctx)
}

func (s *session) sendNext(ctx context.Context) error {
	i := s.next
	s.next++
	return s.send(ctx, i, s.chunks[i].Text, 0)
}

// send requests synthesis of text, which starts at rune offset of chunk i.
func (s *session) send(ctx context.Context, i int, text string, offset int) error {
	if err := s.ensureStream(ctx); err != nil {
		return fmt.Errorf("open speech stream: %w", err)
	}
	c := s.chunks[i]
	req := tts.Request{
		ID:       tts.NewRequestID(),
		Text:     text,
		Voice:    s.voice,
		Language: s.lang,
		Rate:     s.r.opts.Rate,
		Pitch:    s.r.opts.Pitch,
		Volume:   s.r.opts.Volume,
	}
	if c.requestID != "" {
		delete(s.requests, c.requestID)
	}
	s.requests[req.ID] = i
	c.requestID = req.ID
	c.resendOffset = offset
	c.bytes = 0
	c.sent = true
	c.done = false
	if err := s.stream.Send(ctx, req); err != nil {
		return fmt.Errorf("send chunk %d: %w", i, err)
	}
	s.r.metrics.chunksSent.Add(ctx, 1)
	s.journal(ctx, eventstore.TypeChunkSent, i, "offset="+strconv.Itoa(offset))
	s.logger.Debug("chunk sent", slog.Int("chunk", i), slog.Int("offset", offset), slog.Int("runes", len([]rune(text))))
	return nil
}

func (s *session) handleFrame(ctx context.Context, frame tts.Frame) error {
	i, ok := s.requests[frame.RequestID()]
	if !ok {
		return nil
	}
	c := s.chunks[i]
	switch frame.Path() {
	case tts.PathAudio:
		if len(frame.Body) == 0 {
			return nil
		}
		if err := s.sink.Append(frame.Body); err != nil {
			return fmt.Errorf("append audio: %w", err)
		}
		c.bytes += int64(len(frame.Body))
		s.audioEnd = c.base + s.r.format.Duration(c.bytes)
	case tts.PathAudioMetadata:
		boundaries, err := metadata.Parse(frame.Body)
		if err != nil {
			s.logger.Warn("dropping metadata frame", slogError(err))
			return nil
		}
		for _, b := range boundaries {
			if s.r.opts.DropArtifacts && metadata.IsProtocolArtifact(b.Text) {
				continue
			}
			s.index.Add(c.refine(b))
		}
	case tts.PathTurnEnd:
		c.done = true
		// A chunk that arrived in full ends a run of failed recoveries.
		s.budget.End(true)
		end := c.base + s.r.format.Duration(c.bytes)
		if i+1 < len(s.chunks) {
			n := s.chunks[i+1]
			n.base = end
			n.baseKnown = true
		}
		s.journal(ctx, eventstore.TypeChunkDone, i, "bytes="+strconv.FormatInt(c.bytes, 10))
		if err := s.maybeSendNext(ctx, timeline.FromSeconds(s.sink.CurrentTime())); err != nil {
			return s.recover(ctx, err)
		}
	}
	return nil
}

// handleEnd reacts to the stream closing. Losing the stream while a chunk is
// still generating is an interruption.
func (s *session) handleEnd(ctx context.Context, err error) error {
	s.closeStream()
	if s.generating() < 0 {
		return nil
	}
	if err == nil {
		err = errStreamEnded
	}
	return s.recover(ctx, err)
}

// poll highlights the word being heard at now.
func (s *session) poll(ctx context.Context, now timeline.Ticks) {
	ev, ok := s.index.FindActive(now)
	if !ok {
		return
	}
	c := s.chunks[ev.ChunkIndex]
	if !ev.HasTextOffset() {
		s.r.metrics.highlightMisses.Add(ctx, 1)
		return
	}
	from, to, ok := c.DocumentRange(ev.TextOffset, ev.WordLength)
	if !ok {
		s.r.metrics.highlightMisses.Add(ctx, 1)
		return
	}
	c.processed = ev.TextOffset
	if s.highlight && from == s.lastFrom && to == s.lastTo {
		return
	}
	s.lastFrom, s.lastTo, s.highlight = from, to, true
	s.hl.HighlightRange(from, to)
}

// finished reports whether every chunk was generated and played.
func (s *session) finished(now timeline.Ticks) bool {
	last := s.chunks[len(s.chunks)-1]
	return last.done && s.next >= len(s.chunks) && now+endTolerance >= s.audioEnd
}
