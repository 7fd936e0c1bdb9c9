package recovery

import "errors"

// DefaultMaxRetries bounds consecutive failed recoveries.
const DefaultMaxRetries = 3

var (
	// ErrRetriesExhausted ends the session.
	ErrRetriesExhausted = errors.New("recovery retries exhausted")
	// ErrInFlight is returned when a recovery is already running.
	ErrInFlight = errors.New("recovery already in progress")
)

// Budget guards recoveries against reentry and bounds consecutive attempts.
type Budget struct {
	max      int
	attempts int
	inFlight bool
}

// NewBudget allows max consecutive attempts.
func NewBudget(max int) *Budget {
	if max <= 0 {
		max = DefaultMaxRetries
	}
	return &Budget{max: max}
}

// Begin claims an attempt.
func (b *Budget) Begin() error {
	if b.inFlight {
		return ErrInFlight
	}
	if b.attempts >= b.max {
		return ErrRetriesExhausted
	}
	b.attempts++
	b.inFlight = true
	return nil
}

// End releases the attempt. A successful attempt resets the counter.
func (b *Budget) End(success bool) {
	b.inFlight = false
	if success {
		b.attempts = 0
	}
}

// Attempts returns the number of consecutive attempts made.
func (b *Budget) Attempts() int { return b.attempts }

// InFlight reports whether a recovery is running.
func (b *Budget) InFlight() bool { return b.inFlight }
