package runtime

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/reader"
	"github.com/loqalabs/loqa-reader/internal/tts"
)

// NewDialer builds the speech service client selected by cfg.
func NewDialer(cfg config.SpeechConfig, logger *slog.Logger) (tts.Dialer, tts.Format, error) {
	format, err := tts.ParseFormat(cfg.OutputFormat)
	if err != nil {
		return nil, tts.Format{}, err
	}
	switch cfg.Mode {
	case "websocket":
		d := tts.NewWebsocketDialer(cfg.Endpoint, cfg.Token, format, logger)
		if cfg.HandshakeTimeoutMS > 0 {
			d.HandshakeTimeout = time.Duration(cfg.HandshakeTimeoutMS) * time.Millisecond
		}
		logger.Info("speech service configured", slog.String("mode", cfg.Mode), slog.String("endpoint", cfg.Endpoint))
		return d, format, nil
	case "mock", "":
		logger.Info("speech service configured", slog.String("mode", "mock"))
		return tts.NewMockDialer(format), format, nil
	default:
		return nil, tts.Format{}, fmt.Errorf("unsupported speech mode %q", cfg.Mode)
	}
}

// NewSinkFactory returns a factory opening the audio sink selected by cfg.
// A wav path containing {session} gets one file per session.
func NewSinkFactory(cfg config.SinkConfig, format tts.Format, logger *slog.Logger) reader.SinkFactory {
	return func(sessionID string) (audio.Sink, error) {
		switch cfg.Mode {
		case "exec":
			sink, err := audio.NewExecSink(cfg.Command, format, nil, logger)
			if err != nil {
				return nil, err
			}
			return sink, nil
		case "wav":
			path := strings.ReplaceAll(cfg.Path, "{session}", sessionID)
			logger.Debug("recording session audio", slog.String("path", path))
			sink, err := audio.NewWAVSink(path, format, nil)
			if err != nil {
				return nil, err
			}
			return sink, nil
		case "clock", "":
			return audio.NewClockSink(format, nil), nil
		default:
			return nil, fmt.Errorf("unsupported sink mode %q", cfg.Mode)
		}
	}
}
