package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/editor"
	"github.com/loqalabs/loqa-reader/internal/eventstore"
	"github.com/loqalabs/loqa-reader/internal/reader"
	"github.com/loqalabs/loqa-reader/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
		filePath    string
		cursor      int
	)

	flag.StringVar(&configPath, "config", "loqa-reader.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.StringVar(&filePath, "file", "", "Read this markdown file aloud once and exit")
	flag.IntVar(&cursor, "cursor", 0, "Cursor offset in runes when reading a file")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	// Environment overrides may come from a local .env file.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Telemetry.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if filePath != "" {
		if err := readFile(ctx, cfg, filePath, cursor, logger); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("reading failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	rt := runtime.New(cfg, logger)
	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// readFile reads one document without the bus, logging each highlighted word.
func readFile(ctx context.Context, cfg config.Config, path string, cursor int, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	doc := editor.Document{Text: string(data), Cursor: cursor}
	text := []rune(doc.Text)

	shutdownTelemetry, _, err := runtime.SetupTelemetry(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	dialer, format, err := runtime.NewDialer(cfg.Speech, logger)
	if err != nil {
		return err
	}
	store, err := eventstore.Open(ctx, cfg.EventStore, logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer store.Close()

	rd, err := reader.New(reader.OptionsFromConfig(cfg), dialer, format, store, logger)
	if err != nil {
		return err
	}
	id := uuid.NewString()
	sink, err := runtime.NewSinkFactory(cfg.Sink, format, logger)(id)
	if err != nil {
		return err
	}
	hl := editor.HighlighterFunc(func(from, to int) {
		if from < 0 || to > len(text) {
			return
		}
		logger.Info("speaking", slog.Int("from", from), slog.Int("to", to), slog.String("word", string(text[from:to])))
	})
	err = rd.Speak(ctx, reader.Request{ID: id, Source: doc, Sink: sink, Highlighter: hl})
	if errors.Is(err, reader.ErrNothingToRead) {
		logger.Info("nothing to read", slog.String("file", path))
		return sink.Finish()
	}
	return err
}
