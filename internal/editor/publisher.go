package editor

import (
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-reader/internal/bus"
	"github.com/loqalabs/loqa-reader/internal/protocol"
)

// Publisher broadcasts highlight changes on the bus for remote editors.
type Publisher struct {
	bus       *bus.Client
	sessionID string
	now       func() time.Time
	logger    *slog.Logger
}

// NewPublisher publishes highlights of sessionID.
func NewPublisher(client *bus.Client, sessionID string, log *slog.Logger) *Publisher {
	return &Publisher{
		bus:       client,
		sessionID: sessionID,
		now:       time.Now,
		logger:    log.With(slog.String("component", "highlight-publisher")),
	}
}

func (p *Publisher) HighlightRange(from, to int) {
	p.publish(protocol.Highlight{SessionID: p.sessionID, From: from, To: to, Timestamp: p.now().UTC()})
}

func (p *Publisher) ClearHighlight() {
	p.publish(protocol.Highlight{SessionID: p.sessionID, From: -1, To: -1, Clear: true, Timestamp: p.now().UTC()})
}

func (p *Publisher) publish(msg protocol.Highlight) {
	if err := p.bus.PublishJSON(protocol.SubjectHighlight, msg); err != nil {
		p.logger.Warn("failed to publish highlight", slog.String("error", err.Error()))
	}
}
