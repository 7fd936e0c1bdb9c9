package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/loqalabs/loqa-reader/internal/eventstore"
	"github.com/loqalabs/loqa-reader/internal/protocol"
	"github.com/loqalabs/loqa-reader/internal/recovery"
	"github.com/loqalabs/loqa-reader/internal/timeline"
)

// recover resumes reading after the speech stream failed with cause. It
// returns an error only when the session cannot continue.
func (s *session) recover(ctx context.Context, cause error) error {
	for {
		if err := s.budget.Begin(); err != nil {
			if errors.Is(err, recovery.ErrInFlight) {
				return nil
			}
			s.journal(ctx, eventstore.TypeRecoveryExhausted, s.generating(), cause.Error())
			s.r.metrics.recovery(ctx, "exhausted")
			return fmt.Errorf("%w: %w", recovery.ErrRetriesExhausted, cause)
		}
		attempt := s.budget.Attempts()
		s.logger.Warn("speech stream interrupted, recovering", slog.Int("attempt", attempt), slogError(cause))
		s.status(protocol.StateRecovering, cause)
		s.journal(ctx, eventstore.TypeRecoveryStarted, s.generating(), cause.Error())

		plan, err := s.recoverOnce(ctx)
		s.budget.End(false)
		if err == nil {
			s.r.metrics.recovery(ctx, "succeeded")
			s.journal(ctx, eventstore.TypeRecoverySucceeded, plan.ChunkIndex, "restart="+strconv.Itoa(plan.RestartIndex))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.r.metrics.recovery(ctx, "failed")
		cause = err

		select {
		case <-time.After(s.r.opts.RetryBackoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// recoverOnce rewinds playback to the start of the sentence being heard and
// requests the rest of its chunk again. Chunks after it are requested anew
// once the resent tail is complete.
func (s *session) recoverOnce(ctx context.Context) (recovery.Plan, error) {
	s.closeStream()

	now := timeline.FromSeconds(s.sink.CurrentTime())
	fallback := s.generating()
	if fallback < 0 {
		fallback = s.playing(now)
	}
	plan := s.planner.Plan(s.index, s, now, fallback)
	if plan.ChunkIndex < 0 || plan.ChunkIndex >= len(s.chunks) {
		return plan, fmt.Errorf("recovery planned unknown chunk %d", plan.ChunkIndex)
	}

	for i := plan.ChunkIndex; i < len(s.chunks); i++ {
		c := s.chunks[i]
		s.index.RemoveChunk(i)
		delete(s.requests, c.requestID)
		c.reset()
		if i > plan.ChunkIndex {
			c.baseKnown = false
		}
	}

	c := s.chunks[plan.ChunkIndex]
	c.cursor = plan.RestartIndex
	c.processed = plan.RestartIndex
	c.base = plan.Anchor
	c.baseKnown = true
	s.next = plan.ChunkIndex + 1
	s.audioEnd = plan.Anchor
	s.highlight = false

	if err := s.sink.SeekAndRestart(plan.Anchor.Seconds()); err != nil {
		return plan, fmt.Errorf("rewind audio: %w", err)
	}
	s.logger.Info("resuming chunk",
		slog.Int("chunk", plan.ChunkIndex),
		slog.Int("restart", plan.RestartIndex),
		slog.Float64("anchor", plan.Anchor.Seconds()),
		slog.Bool("matched", plan.Matched))

	if plan.Advance {
		c.sent = true
		c.done = true
		if n := plan.ChunkIndex + 1; n < len(s.chunks) {
			s.chunks[n].base = plan.Anchor
			s.chunks[n].baseKnown = true
		}
		return plan, nil
	}
	return plan, s.send(ctx, plan.ChunkIndex, plan.Resend, plan.ResendOffset)
}
