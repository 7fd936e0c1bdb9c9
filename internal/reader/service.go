package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/loqalabs/loqa-reader/internal/bus"
	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/editor"
	"github.com/loqalabs/loqa-reader/internal/protocol"
)

// SinkFactory opens the audio sink of a new session.
type SinkFactory func(sessionID string) (audio.Sink, error)

type activeSession struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Service serves speak and stop requests from the bus. One session plays at a
// time; a new speak request stops the current one.
type Service struct {
	cfg     config.ReaderConfig
	bus     *bus.Client
	reader  *Reader
	newSink SinkFactory
	subs    []*nats.Subscription
	history bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	ready   bool
	logger  *slog.Logger

	mu     sync.Mutex
	active *activeSession
}

func NewService(parent context.Context, cfg config.ReaderConfig, busClient *bus.Client, reader *Reader, newSink SinkFactory, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:     cfg,
		bus:     busClient,
		reader:  reader,
		newSink: newSink,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With(slog.String("component", "reader-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	speak, err := s.bus.Conn().Subscribe(protocol.SubjectSpeak, s.handleSpeak)
	if err != nil {
		return fmt.Errorf("subscribe speak requests: %w", err)
	}
	stop, err := s.bus.Conn().Subscribe(protocol.SubjectStop, s.handleStop)
	if err != nil {
		_ = speak.Unsubscribe()
		return fmt.Errorf("subscribe stop requests: %w", err)
	}
	s.subs = []*nats.Subscription{speak, stop}
	if s.cfg.StatusStream != "" {
		maxAge := time.Duration(s.cfg.StatusMaxAgeMinutes) * time.Minute
		if err := s.bus.EnsureStream(s.cfg.StatusStream, []string{protocol.SubjectStatus}, maxAge); err != nil {
			s.logger.Warn("session status history unavailable", slogError(err))
		} else {
			s.history = true
		}
	}
	s.ready = true
	return nil
}

// ErrNoHistory is returned by LastStatus when statuses are not retained.
var ErrNoHistory = errors.New("session status history disabled")

// LastStatus returns the most recent session status kept on the bus, so a
// late editor can tell whether a session is playing.
func (s *Service) LastStatus() (protocol.SessionStatus, bool, error) {
	if !s.history {
		return protocol.SessionStatus{}, false, ErrNoHistory
	}
	msg, err := s.bus.JetStream().GetLastMsg(s.cfg.StatusStream, protocol.SubjectStatus)
	if errors.Is(err, nats.ErrMsgNotFound) {
		return protocol.SessionStatus{}, false, nil
	}
	if err != nil {
		return protocol.SessionStatus{}, false, fmt.Errorf("read last status: %w", err)
	}
	var st protocol.SessionStatus
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		return protocol.SessionStatus{}, false, fmt.Errorf("decode last status: %w", err)
	}
	return st, true, nil
}

func (s *Service) Close() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready
}

// Active returns the id of the playing session.
func (s *Service) Active() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return "", false
	}
	return s.active.id, true
}

func (s *Service) handleSpeak(msg *nats.Msg) {
	var req protocol.SpeakRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode speak request", slogError(err))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	s.stop("")

	sink, err := s.newSink(req.SessionID)
	if err != nil {
		s.logger.Warn("failed to open audio sink", slogError(err))
		s.publishStatus(protocol.SessionStatus{SessionID: req.SessionID, State: protocol.StateFailed, Error: err.Error(), Timestamp: time.Now().UTC()})
		return
	}

	doc := editor.Document{Text: req.Text, Cursor: req.Cursor}
	if req.Selection != nil {
		doc.SelectFrom, doc.SelectTo = req.Selection.From, req.Selection.To
	}
	ctx, cancel := context.WithCancel(s.ctx)
	active := &activeSession{id: req.SessionID, cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.active = active
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(active.done)
		defer cancel()
		err := s.reader.Speak(ctx, Request{
			ID:          req.SessionID,
			Source:      doc,
			Sink:        sink,
			Highlighter: editor.NewPublisher(s.bus, req.SessionID, s.logger),
			Voice:       req.Voice,
			Language:    req.Language,
			OnStatus:    s.publishStatus,
		})
		switch {
		case errors.Is(err, ErrNothingToRead):
			if ferr := sink.Finish(); ferr != nil {
				s.logger.Warn("failed to finish audio", slogError(ferr))
			}
			s.publishStatus(protocol.SessionStatus{SessionID: req.SessionID, State: protocol.StateCompleted, Timestamp: time.Now().UTC()})
		case err != nil && !errors.Is(err, context.Canceled):
			s.logger.Warn("reading failed", slog.String("session_id", req.SessionID), slogError(err))
		}
		s.mu.Lock()
		if s.active == active {
			s.active = nil
		}
		s.mu.Unlock()
	}()
}

func (s *Service) handleStop(msg *nats.Msg) {
	var req protocol.StopRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.logger.Warn("failed to decode stop request", slogError(err))
			return
		}
	}
	s.stop(req.SessionID)
}

// stop cancels the active session when id matches or is empty, and waits for
// it to release the sink and highlight.
func (s *Service) stop(id string) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil || (id != "" && id != active.id) {
		return
	}
	active.cancel()
	<-active.done
}

func (s *Service) publishStatus(st protocol.SessionStatus) {
	if err := s.bus.PublishJSON(protocol.SubjectStatus, st); err != nil {
		s.logger.Warn("failed to publish session status", slogError(err))
	}
}
