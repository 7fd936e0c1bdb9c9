package tts

import (
	"context"
	"errors"
	"testing"

	"github.com/loqalabs/loqa-reader/internal/metadata"
)

func mockFormat(t *testing.T) Format {
	t.Helper()
	format, err := ParseFormat(DefaultFormat)
	if err != nil {
		t.Fatalf("ParseFormat: %v", err)
	}
	return format
}

func TestMockStreamFrames(t *testing.T) {
	dialer := NewMockDialer(mockFormat(t))
	dialer.TextOffsets = true
	stream, err := dialer.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer stream.Close()

	req := Request{ID: "r1", Text: "Hello, big world."}
	if err := stream.Send(context.Background(), req); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var words []metadata.Boundary
	var audio int
	for frame := range stream.Frames() {
		switch frame.Path() {
		case PathAudioMetadata:
			b, err := metadata.Parse(frame.Body)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			words = append(words, b...)
		case PathAudio:
			audio += len(frame.Body)
		}
		if frame.Path() == PathTurnEnd {
			break
		}
	}
	if len(words) != 3 {
		t.Fatalf("expected 3 words, got %+v", words)
	}
	if words[0].Text != "Hello" || words[1].TextOffset != 7 || words[2].Text != "world" || words[2].TextOffset != 11 {
		t.Fatalf("unexpected words %+v", words)
	}
	if words[1].Offset <= words[0].Offset {
		t.Fatalf("expected increasing audio offsets")
	}
	if audio != 3*(14400+2400) {
		t.Fatalf("unexpected audio byte count %d", audio)
	}
	if got := dialer.Requests(); len(got) != 1 || got[0].ID != "r1" {
		t.Fatalf("unexpected recorded requests %+v", got)
	}
}

func TestMockStreamInterrupts(t *testing.T) {
	dialer := NewMockDialer(mockFormat(t))
	dialer.Interrupt = map[int]int{1: 3}

	stream, err := dialer.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := stream.Send(context.Background(), Request{ID: "r1", Text: "one two three"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	count := 0
	for range stream.Frames() {
		count++
	}
	if count != 3 {
		t.Fatalf("expected 3 frames before interruption, got %d", count)
	}
	if !errors.Is(stream.Err(), ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", stream.Err())
	}

	second, err := dialer.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer second.Close()
	if dialer.Dials() != 2 {
		t.Fatalf("expected 2 dials, got %d", dialer.Dials())
	}
}

func TestMockStreamCloseEndsFrames(t *testing.T) {
	stream, err := NewMockDialer(mockFormat(t)).Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	_ = stream.Close()
	for range stream.Frames() {
	}
	if stream.Err() != nil {
		t.Fatalf("expected nil error after close, got %v", stream.Err())
	}
	if err := stream.Send(context.Background(), Request{ID: "x", Text: "hi"}); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}

func TestSplitWords(t *testing.T) {
	words := splitWords("  (Hi) — there!")
	if len(words) != 2 || words[0].text != "Hi" || words[0].offset != 3 || words[1].text != "there" || words[1].offset != 9 {
		t.Fatalf("unexpected words %+v", words)
	}
}
