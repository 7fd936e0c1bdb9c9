package editor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-reader/internal/bus"
	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/natsserver"
	"github.com/loqalabs/loqa-reader/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDocumentClampsCursorAndSelection(t *testing.T) {
	doc := Document{Text: "héllo", Cursor: 99}
	if doc.CursorOffset() != 5 {
		t.Fatalf("expected cursor clamped to rune length, got %d", doc.CursorOffset())
	}
	if _, _, ok := doc.Selection(); ok {
		t.Fatalf("expected no selection")
	}
	doc.SelectFrom, doc.SelectTo = 1, 10
	from, to, ok := doc.Selection()
	if !ok || from != 1 || to != 5 {
		t.Fatalf("unexpected selection %d-%d ok=%v", from, to, ok)
	}
}

func TestHighlighterFunc(t *testing.T) {
	var got [][2]int
	h := HighlighterFunc(func(from, to int) { got = append(got, [2]int{from, to}) })
	h.HighlightRange(3, 7)
	h.ClearHighlight()
	if len(got) != 2 || got[0] != [2]int{3, 7} || got[1] != [2]int{-1, -1} {
		t.Fatalf("unexpected calls %v", got)
	}
}

func TestPublisherSendsHighlights(t *testing.T) {
	logger := newLogger()
	busCfg := config.BusConfig{Embedded: true, Port: -1, StoreDir: t.TempDir(), ConnectTimeout: 2000}
	srv, err := natsserver.Start(busCfg, logger)
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	busCfg.Servers = []string{srv.ClientURL()}

	client, err := bus.Connect(context.Background(), "editor-test", busCfg, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	received := make(chan protocol.Highlight, 2)
	sub, err := client.Conn().Subscribe(protocol.SubjectHighlight, func(msg *nats.Msg) {
		var h protocol.Highlight
		if err := json.Unmarshal(msg.Data, &h); err == nil {
			received <- h
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	pub := NewPublisher(client, "session-1", logger)
	pub.HighlightRange(4, 9)
	pub.ClearHighlight()

	for i, want := range []protocol.Highlight{{SessionID: "session-1", From: 4, To: 9}, {SessionID: "session-1", From: -1, To: -1, Clear: true}} {
		select {
		case got := <-received:
			if got.SessionID != want.SessionID || got.From != want.From || got.To != want.To || got.Clear != want.Clear {
				t.Fatalf("message %d: expected %+v, got %+v", i, want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for highlight %d", i)
		}
	}
}
