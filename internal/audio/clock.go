package audio

import (
	"time"

	"github.com/loqalabs/loqa-reader/internal/tts"
)

// ClockSink discards audio and only advances a playhead.
type ClockSink struct {
	format tts.Format
	head   *Playhead
}

// NewClockSink returns a headless sink for format.
func NewClockSink(format tts.Format, now func() time.Time) *ClockSink {
	return &ClockSink{format: format, head: NewPlayhead(now)}
}

func (s *ClockSink) Append(p []byte) error {
	s.head.Extend(s.format.Duration(int64(len(p))).Seconds())
	return nil
}

func (s *ClockSink) CurrentTime() float64 { return s.head.Position() }

func (s *ClockSink) SeekAndRestart(seconds float64) error {
	s.head.Seek(seconds)
	return nil
}

func (s *ClockSink) Finish() error { return nil }
