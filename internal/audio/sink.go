// Package audio plays or records synthesized speech and reports the playback
// position the reader highlights against.
package audio

import (
	"sync"
	"time"
)

// Sink receives synthesized audio in playback order.
type Sink interface {
	Append(p []byte) error
	// CurrentTime returns the playback position in seconds.
	CurrentTime() float64
	// SeekAndRestart discards queued audio and continues playback at seconds
	// with whatever is appended next.
	SeekAndRestart(seconds float64) error
	Finish() error
}

// Playhead models a player that starts on the first appended audio, plays in
// real time and stalls when it runs out of buffered audio.
type Playhead struct {
	now func() time.Time

	mu       sync.Mutex
	origin   float64
	anchor   time.Time
	running  bool
	buffered float64
}

// NewPlayhead returns a stopped playhead at 0. A nil now uses time.Now.
func NewPlayhead(now func() time.Time) *Playhead {
	if now == nil {
		now = time.Now
	}
	return &Playhead{now: now}
}

// Position returns the current playback position in seconds.
func (p *Playhead) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position(p.now())
}

func (p *Playhead) position(now time.Time) float64 {
	if !p.running {
		return p.origin
	}
	pos := p.origin + now.Sub(p.anchor).Seconds()
	if pos > p.buffered {
		pos = p.buffered
	}
	return pos
}

// Buffered returns where the queued audio ends.
func (p *Playhead) Buffered() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffered
}

// Extend queues seconds of audio.
func (p *Playhead) Extend(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if !p.running {
		p.running = true
		p.anchor = now
	} else if pos := p.position(now); pos >= p.buffered {
		// Stalled: resume from where playback stopped.
		p.origin = pos
		p.anchor = now
	}
	p.buffered += seconds
}

// Seek drops queued audio and waits for new audio at seconds.
func (p *Playhead) Seek(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.origin = seconds
	p.buffered = seconds
	p.running = false
}
