// Package reader reads documents aloud through a streaming speech service and
// keeps the editor highlight on the word being heard.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/editor"
	"github.com/loqalabs/loqa-reader/internal/eventstore"
	"github.com/loqalabs/loqa-reader/internal/filter"
	"github.com/loqalabs/loqa-reader/internal/protocol"
	"github.com/loqalabs/loqa-reader/internal/recovery"
	"github.com/loqalabs/loqa-reader/internal/tts"
)

// ErrNothingToRead is returned when the filtered text has nothing to speak.
var ErrNothingToRead = errors.New("nothing to read")

// Options tune a reader.
type Options struct {
	Filter         filter.Options
	MaxChunkLength int
	FromCursor     bool
	PollInterval   time.Duration
	Prefetch       int
	Lookback       int
	MaxRetries     int
	RetryBackoff   time.Duration
	DialTimeout    time.Duration
	DropArtifacts  bool
	Voice          string
	Language       string
	Rate           string
	Pitch          string
	Volume         string
}

// OptionsFromConfig collects reader options from the runtime configuration.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Filter: filter.Options{
			Frontmatter:  cfg.Filter.Frontmatter,
			Code:         cfg.Filter.Code,
			Math:         cfg.Filter.Math,
			EditorSyntax: cfg.Filter.EditorSyntax,
			KeepURLs:     cfg.Filter.KeepURLs,
			Language:     cfg.Filter.Language,
		},
		MaxChunkLength: cfg.Filter.MaxChunkLength,
		FromCursor:     cfg.Reader.FromCursor,
		PollInterval:   time.Duration(cfg.Reader.PollIntervalMS) * time.Millisecond,
		Prefetch:       cfg.Reader.Prefetch,
		Lookback:       cfg.Reader.RecoveryLookback,
		MaxRetries:     cfg.Reader.MaxRetries,
		RetryBackoff:   time.Duration(cfg.Reader.RetryBackoffMS) * time.Millisecond,
		DialTimeout:    time.Duration(cfg.Reader.DialTimeoutMS) * time.Millisecond,
		DropArtifacts:  cfg.Speech.DropArtifacts,
		Voice:          cfg.Speech.Voice,
		Language:       cfg.Speech.Language,
		Rate:           cfg.Speech.Rate,
		Pitch:          cfg.Speech.Pitch,
		Volume:         cfg.Speech.Volume,
	}
}

// Request describes one session.
type Request struct {
	ID          string
	Source      editor.Source
	Sink        audio.Sink
	Highlighter editor.Highlighter
	// Voice and Language override the configured ones when set.
	Voice    string
	Language string
	// OnStatus is told about lifecycle changes. It may be nil.
	OnStatus func(protocol.SessionStatus)
}

// Reader runs read-aloud sessions.
type Reader struct {
	opts    Options
	dialer  tts.Dialer
	format  tts.Format
	journal *eventstore.Store
	metrics *metrics
	tracer  trace.Tracer
	now     func() time.Time
	logger  *slog.Logger
}

// New builds a reader. journal may be nil.
func New(opts Options, dialer tts.Dialer, format tts.Format, journal *eventstore.Store, log *slog.Logger) (*Reader, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	if opts.MaxChunkLength <= 0 {
		opts.MaxChunkLength = filter.DefaultMaxChunkLength
	}
	if opts.Lookback <= 0 {
		opts.Lookback = recovery.DefaultLookback
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = recovery.DefaultMaxRetries
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if format.ByteRate() <= 0 {
		return nil, fmt.Errorf("output format %q has no byte rate", format.Name)
	}
	m, err := newMetrics(otel.Meter(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("create reader metrics: %w", err)
	}
	return &Reader{
		opts:    opts,
		dialer:  dialer,
		format:  format,
		journal: journal,
		metrics: m,
		tracer:  otel.Tracer(instrumentationName),
		now:     time.Now,
		logger:  log.With(slog.String("component", "reader")),
	}, nil
}

// Speak reads the request's source aloud and returns when the session
// completes, is stopped through ctx, or fails. A stopped session returns the
// context error.
func (r *Reader) Speak(ctx context.Context, req Request) error {
	text, base := sessionText(req.Source, r.opts.FromCursor)
	filtered := filter.New(r.opts.Filter).Apply(text)
	chunks := filter.Split(filtered, base, r.opts.MaxChunkLength)
	if len(chunks) == 0 {
		return ErrNothingToRead
	}

	ctx, span := r.tracer.Start(ctx, "reader.session", trace.WithAttributes(
		attribute.String("session.id", req.ID),
		attribute.Int("session.chunks", len(chunks)),
	))
	defer span.End()

	s := newSession(r, req, chunks)
	if err := r.journal.BeginSession(ctx, eventstore.Session{ID: req.ID, Chunks: len(chunks), Characters: filtered.Len()}); err != nil {
		s.logger.Warn("failed to journal session", slogError(err))
	}
	s.status(protocol.StateStarted, nil)

	err := s.run(ctx)
	outcome := eventstore.OutcomeCompleted
	state := protocol.StateCompleted
	switch {
	case err == nil:
	case ctx.Err() != nil:
		outcome, state = eventstore.OutcomeStopped, protocol.StateStopped
	default:
		outcome, state = eventstore.OutcomeFailed, protocol.StateFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	// The session context may be cancelled; bookkeeping still has to land.
	finishCtx := context.WithoutCancel(ctx)
	if jerr := r.journal.EndSession(finishCtx, req.ID, outcome); jerr != nil {
		s.logger.Warn("failed to journal session end", slogError(jerr))
	}
	r.metrics.sessionEnded(finishCtx, outcome)
	s.status(state, err)
	s.logger.Info("session finished", slog.String("outcome", outcome))
	return err
}

// sessionText picks what to read: the selection, the text after the cursor
// or the whole document. base is the document offset of the returned text.
func sessionText(src editor.Source, fromCursor bool) (string, int) {
	runes := []rune(src.Value())
	if from, to, ok := src.Selection(); ok {
		return string(runes[from:to]), from
	}
	if !fromCursor {
		return string(runes), 0
	}
	cursor := min(max(src.CursorOffset(), 0), len(runes))
	// Start at the beginning of the word under the cursor.
	for cursor > 0 && cursor < len(runes) && !unicode.IsSpace(runes[cursor-1]) && !unicode.IsSpace(runes[cursor]) {
		cursor--
	}
	return string(runes[cursor:]), cursor
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
