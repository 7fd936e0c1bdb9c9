// Package tts talks to the streaming speech service: it sends text requests
// and delivers the audio and word boundary frames they produce.
package tts

import (
	"context"
	"errors"
)

// ErrStreamClosed is returned when sending on a closed stream.
var ErrStreamClosed = errors.New("speech stream closed")

// Dialer opens speech streams.
type Dialer interface {
	Dial(ctx context.Context) (Stream, error)
}

// Stream is one connection to the speech service. Several requests may be in
// flight on the same stream; frames carry the id of the request they belong to.
type Stream interface {
	Send(ctx context.Context, req Request) error
	// Frames is closed when the stream ends.
	Frames() <-chan Frame
	// Err returns why the stream ended. It is nil after Close or a clean
	// shutdown by the service and only meaningful once Frames is closed.
	Err() error
	Close() error
}
