package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/loqalabs/loqa-reader/internal/tts"
)

// WAVSink records the session to a WAV file. Seeking truncates the recording
// so the file matches what a listener would have heard last.
type WAVSink struct {
	path   string
	format tts.Format
	head   *Playhead

	mu  sync.Mutex
	pcm []byte
}

// NewWAVSink records 16 bit PCM streams to path.
func NewWAVSink(path string, format tts.Format, now func() time.Time) (*WAVSink, error) {
	if !format.PCM() || format.BitsPerSample != 16 {
		return nil, fmt.Errorf("wav sink needs 16 bit pcm, got %q", format.Name)
	}
	return &WAVSink{path: path, format: format, head: NewPlayhead(now)}, nil
}

func (s *WAVSink) Append(p []byte) error {
	s.mu.Lock()
	s.pcm = append(s.pcm, p...)
	s.mu.Unlock()
	s.head.Extend(s.format.Duration(int64(len(p))).Seconds())
	return nil
}

func (s *WAVSink) CurrentTime() float64 { return s.head.Position() }

func (s *WAVSink) SeekAndRestart(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int(seconds * float64(s.format.ByteRate()))
	n -= n % s.format.BlockAlign()
	if n < 0 {
		n = 0
	}
	if n < len(s.pcm) {
		s.pcm = s.pcm[:n]
	}
	s.head.Seek(seconds)
	return nil
}

// Finish writes the recording.
func (s *WAVSink) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer file.Close()

	channels := s.format.Channels
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: s.format.SampleRate},
		SourceBitDepth: 16,
	}
	samples := make([]int, len(s.pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(s.pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, s.format.SampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// Bytes returns the recorded PCM length.
func (s *WAVSink) Bytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pcm)
}
