// Package timeline defines the audio time units used by the speech service.
//
// Ticks are positions on the absolute playback timeline (the one the audio sink
// reports). StreamTicks are offsets reported by the speech service relative to
// the start of a single synthesis stream. The two are distinct types so that a
// stream offset can only reach the playback timeline through Advance.
package timeline

import (
	"math"
	"time"
)

// TicksPerSecond is the number of 100ns ticks in one second.
const TicksPerSecond = 10_000_000

// Ticks is a position or span on the absolute playback timeline.
type Ticks int64

// StreamTicks is an offset relative to the start of one synthesis stream.
type StreamTicks int64

// FromSeconds converts playback seconds into ticks, rounding to the nearest tick.
func FromSeconds(seconds float64) Ticks {
	return Ticks(math.Round(seconds * TicksPerSecond))
}

// Seconds returns the position in seconds.
func (t Ticks) Seconds() float64 {
	return float64(t) / TicksPerSecond
}

// Duration converts ticks into a time.Duration.
func (t Ticks) Duration() time.Duration {
	return time.Duration(t) * 100 * time.Nanosecond
}

// Advance places a stream-relative offset on the playback timeline, using t as
// the position where the stream's audio begins.
func (t Ticks) Advance(offset StreamTicks) Ticks {
	return t + Ticks(offset)
}

// FromDuration converts a time.Duration into ticks.
func FromDuration(d time.Duration) Ticks {
	return Ticks(d / (100 * time.Nanosecond))
}
