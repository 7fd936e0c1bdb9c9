package audio

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/loqa-reader/internal/tts"
)

// ExecSink pipes audio into an external player such as aplay or ffplay. The
// placeholders {sample_rate} and {channels} in the command are expanded from
// the stream format.
type ExecSink struct {
	args   []string
	format tts.Format
	head   *Playhead
	logger *slog.Logger

	// Stdout receives the player's output. Nil discards it.
	Stdout io.Writer

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	starts int
}

// NewExecSink parses command and prepares a sink. The player is started on the
// first appended audio.
func NewExecSink(command string, format tts.Format, now func() time.Time, log *slog.Logger) (*ExecSink, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("player command is empty")
	}
	replacer := strings.NewReplacer(
		"{sample_rate}", strconv.Itoa(format.SampleRate),
		"{channels}", strconv.Itoa(format.Channels),
	)
	for i, a := range args {
		args[i] = replacer.Replace(a)
	}
	return &ExecSink{
		args:   args,
		format: format,
		head:   NewPlayhead(now),
		logger: log.With(slog.String("component", "exec-sink")),
	}, nil
}

func (s *ExecSink) start() error {
	cmd := exec.Command(s.args[0], s.args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("player stdin: %w", err)
	}
	cmd.Stdout = s.Stdout
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start player: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	s.starts++
	s.logger.Debug("player started", slog.Int("pid", cmd.Process.Pid))
	return nil
}

// stop ends the running player. With drain the player finishes queued audio.
func (s *ExecSink) stop(drain bool) error {
	if s.cmd == nil {
		return nil
	}
	_ = s.stdin.Close()
	if !drain {
		_ = s.cmd.Process.Kill()
	}
	err := s.cmd.Wait()
	s.cmd = nil
	s.stdin = nil
	if drain && err != nil {
		return fmt.Errorf("player exited: %w", err)
	}
	return nil
}

func (s *ExecSink) Append(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		if err := s.start(); err != nil {
			return err
		}
	}
	if _, err := s.stdin.Write(p); err != nil {
		return fmt.Errorf("write to player: %w", err)
	}
	s.head.Extend(s.format.Duration(int64(len(p))).Seconds())
	return nil
}

func (s *ExecSink) CurrentTime() float64 { return s.head.Position() }

func (s *ExecSink) SeekAndRestart(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stop(false); err != nil {
		return err
	}
	s.head.Seek(seconds)
	return nil
}

// Finish lets the player drain when everything queued has been played and
// stops it immediately otherwise.
func (s *ExecSink) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drain := s.head.Position() >= s.head.Buffered()
	return s.stop(drain)
}

// Starts returns how many times the player was launched.
func (s *ExecSink) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}
