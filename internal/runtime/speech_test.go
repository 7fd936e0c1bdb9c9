package runtime

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-reader/internal/audio"
	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/tts"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewDialerModes(t *testing.T) {
	cfg := config.Default().Speech
	dialer, format, err := NewDialer(cfg, newLogger())
	if err != nil {
		t.Fatalf("NewDialer: %v", err)
	}
	if _, ok := dialer.(*tts.MockDialer); !ok {
		t.Fatalf("expected mock dialer, got %T", dialer)
	}
	if format.ByteRate() != 48000 {
		t.Fatalf("unexpected byte rate %d", format.ByteRate())
	}

	cfg.Mode = "websocket"
	cfg.Endpoint = "ws://127.0.0.1:1/speech"
	cfg.HandshakeTimeoutMS = 1500
	dialer, _, err = NewDialer(cfg, newLogger())
	if err != nil {
		t.Fatalf("NewDialer: %v", err)
	}
	ws, ok := dialer.(*tts.WebsocketDialer)
	if !ok || ws.HandshakeTimeout.Milliseconds() != 1500 {
		t.Fatalf("unexpected websocket dialer %+v", dialer)
	}

	cfg.Mode = "carrier-pigeon"
	if _, _, err := NewDialer(cfg, newLogger()); err == nil {
		t.Fatalf("expected unsupported mode error")
	}
}

func TestSinkFactoryNamesWAVFilesPerSession(t *testing.T) {
	format, err := tts.ParseFormat(tts.DefaultFormat)
	if err != nil {
		t.Fatalf("ParseFormat: %v", err)
	}
	dir := t.TempDir()
	factory := NewSinkFactory(config.SinkConfig{Mode: "wav", Path: filepath.Join(dir, "{session}.wav")}, format, newLogger())
	sink, err := factory("abc")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if _, ok := sink.(*audio.WAVSink); !ok {
		t.Fatalf("expected wav sink, got %T", sink)
	}
	if err := sink.Append(make([]byte, 4800)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := sink.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.wav"))
	if len(matches) != 1 || filepath.Base(matches[0]) != "abc.wav" {
		t.Fatalf("unexpected files %v", matches)
	}

	clock, err := NewSinkFactory(config.SinkConfig{Mode: "clock"}, format, newLogger())("x")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if _, ok := clock.(*audio.ClockSink); !ok {
		t.Fatalf("expected clock sink, got %T", clock)
	}
}
