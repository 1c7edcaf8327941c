package checkpoint

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrCancelled marks a cooperative shutdown. Callers treat it as
// not-a-failure: the checkpoint stays on disk and a re-run resumes.
var ErrCancelled = errors.New("operation cancelled")

// pausePoll is how often a paused worker re-checks the flags.
const pausePoll = 100 * time.Millisecond

// Token carries the cancel and pause flags shared by the driver and
// every worker. Cancel is terminal; pause is releasable.
type Token struct {
	cancelled atomic.Bool
	paused    atomic.Bool
}

// NewToken returns a token with both flags clear.
func NewToken() *Token {
	return &Token{}
}

// Cancel requests cancellation.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

// IsCancelled reports whether cancellation was requested.
func (t *Token) IsCancelled() bool {
	return t.cancelled.Load()
}

// SetPaused sets or clears the pause flag.
func (t *Token) SetPaused(paused bool) {
	t.paused.Store(paused)
}

// IsPaused reports whether the pause flag is set.
func (t *Token) IsPaused() bool {
	return t.paused.Load()
}

// Check returns ErrCancelled if cancellation was requested, and blocks
// while paused, re-checking the cancel flag every poll tick. Called at
// stage boundaries and between units of work inside workers.
func (t *Token) Check() error {
	if t.IsCancelled() {
		return ErrCancelled
	}
	for t.IsPaused() {
		if t.IsCancelled() {
			return ErrCancelled
		}
		time.Sleep(pausePoll)
	}
	return nil
}
