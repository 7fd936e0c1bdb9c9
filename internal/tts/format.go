package tts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-reader/internal/timeline"
)

// DefaultFormat is requested when no output format is configured.
const DefaultFormat = "raw-24khz-16bit-mono-pcm"

// Format describes an output format name such as raw-24khz-16bit-mono-pcm or
// audio-24khz-48kbitrate-mono-mp3. Only the byte rate matters to the reader.
type Format struct {
	Name          string
	Container     string
	Codec         string
	SampleRate    int
	BitsPerSample int
	Channels      int
	KBitRate      int
}

// ParseFormat reads the attributes encoded in a format name.
func ParseFormat(name string) (Format, error) {
	f := Format{Name: name, Channels: 1}
	parts := strings.Split(strings.ToLower(strings.TrimSpace(name)), "-")
	if len(parts) < 3 {
		return f, fmt.Errorf("unsupported output format %q", name)
	}
	f.Container = parts[0]
	f.Codec = parts[len(parts)-1]
	for _, p := range parts[1 : len(parts)-1] {
		switch {
		case p == "mono":
			f.Channels = 1
		case p == "stereo":
			f.Channels = 2
		case strings.HasSuffix(p, "kbitrate"):
			f.KBitRate = atoi(strings.TrimSuffix(p, "kbitrate"))
		case strings.HasSuffix(p, "khz"):
			f.SampleRate = atoi(strings.TrimSuffix(p, "khz")) * 1000
		case strings.HasSuffix(p, "bit"):
			f.BitsPerSample = atoi(strings.TrimSuffix(p, "bit"))
		}
	}
	if f.ByteRate() <= 0 {
		return f, fmt.Errorf("output format %q has no known byte rate", name)
	}
	return f, nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// PCM reports whether the format carries uncompressed samples.
func (f Format) PCM() bool { return f.Codec == "pcm" }

// ByteRate returns the number of audio bytes per second of playback.
func (f Format) ByteRate() int {
	if f.PCM() {
		return f.SampleRate * f.BitsPerSample / 8 * f.Channels
	}
	return f.KBitRate * 1000 / 8
}

// BlockAlign is the size of one PCM sample frame, or 1 for compressed formats.
func (f Format) BlockAlign() int {
	if f.PCM() && f.BitsPerSample > 0 {
		return f.BitsPerSample / 8 * f.Channels
	}
	return 1
}

// Duration returns the playback length of n audio bytes.
func (f Format) Duration(n int64) timeline.Ticks {
	rate := int64(f.ByteRate())
	if rate <= 0 {
		return 0
	}
	return timeline.Ticks(n * timeline.TicksPerSecond / rate)
}

// Bytes returns the number of whole sample frames that play for d.
func (f Format) Bytes(d timeline.Ticks) int64 {
	n := int64(d) * int64(f.ByteRate()) / timeline.TicksPerSecond
	block := int64(f.BlockAlign())
	return n - n%block
}
