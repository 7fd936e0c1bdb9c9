package tts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// WebsocketDialer connects to the speech service over a websocket.
type WebsocketDialer struct {
	URL              string
	Header           http.Header
	Format           Format
	HandshakeTimeout time.Duration
	Now              func() time.Time
	logger           *slog.Logger
}

// NewWebsocketDialer builds a dialer. A non-empty token is sent as a bearer
// authorization header.
func NewWebsocketDialer(url, token string, format Format, log *slog.Logger) *WebsocketDialer {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &WebsocketDialer{
		URL:              url,
		Header:           header,
		Format:           format,
		HandshakeTimeout: 5 * time.Second,
		Now:              time.Now,
		logger:           log.With(slog.String("component", "tts-websocket")),
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context) (Stream, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, d.URL, d.Header.Clone())
	if err != nil {
		return nil, fmt.Errorf("dial speech service: %w", err)
	}
	s := &wsStream{
		conn:   conn,
		format: d.Format,
		now:    d.Now,
		frames: make(chan Frame, 64),
		done:   make(chan struct{}),
		logger: d.logger,
	}
	g, gctx := errgroup.WithContext(context.Background())
	readDone := make(chan struct{})
	g.Go(func() error {
		defer close(readDone)
		return s.readLoop()
	})
	// The connection is released once reading stops, the group fails or the
	// stream is closed, whichever comes first.
	g.Go(func() error {
		select {
		case <-readDone:
		case <-gctx.Done():
		case <-s.done:
		}
		_ = s.conn.Close()
		return nil
	})
	go func() {
		err := g.Wait()
		s.mu.Lock()
		if !s.closing {
			s.err = err
		}
		s.mu.Unlock()
		close(s.frames)
	}()
	return s, nil
}

type wsStream struct {
	conn   *websocket.Conn
	format Format
	now    func() time.Time
	frames chan Frame
	done   chan struct{}
	logger *slog.Logger

	writeMu    sync.Mutex
	configured bool

	mu      sync.Mutex
	closing bool
	err     error
	once    sync.Once
}

func (s *wsStream) readLoop() error {
	for {
		mt, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read speech frame: %w", err)
		}
		var frame Frame
		switch mt {
		case websocket.TextMessage:
			frame, err = ParseText(payload)
		case websocket.BinaryMessage:
			frame, err = ParseBinary(payload)
		default:
			continue
		}
		if err != nil {
			s.logger.Warn("dropping speech frame", slogError(err))
			continue
		}
		select {
		case s.frames <- frame:
		case <-s.done:
			return nil
		}
	}
}

func (s *wsStream) Send(ctx context.Context, req Request) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
		defer s.conn.SetWriteDeadline(time.Time{})
	}
	now := s.now()
	if !s.configured {
		msg, err := speechConfigFrame(s.format, now)
		if err != nil {
			return fmt.Errorf("encode speech config: %w", err)
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return fmt.Errorf("send speech config: %w", err)
		}
		s.configured = true
	}
	msg, err := ssmlFrame(req, now)
	if err != nil {
		return fmt.Errorf("encode ssml: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("send ssml: %w", err)
	}
	return nil
}

func (s *wsStream) Frames() <-chan Frame { return s.frames }

func (s *wsStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
