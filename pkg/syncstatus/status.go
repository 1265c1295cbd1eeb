// Package syncstatus tracks the save indicator shown to clients while
// writes are in flight.
package syncstatus

import (
	"sync"
	"time"
)

// Status is the current state of the save indicator.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSaved   Status = "saved"
	StatusError   Status = "error"
)

// ResetDelay is how long "saved" and "error" stay visible before the
// indicator falls back to idle.
const ResetDelay = 2500 * time.Millisecond

// Tracker transitions idle -> syncing -> saved|error and auto-resets the
// terminal states back to idle after ResetDelay. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	status   Status
	gen      uint64
	onChange func(Status)
	timer    *time.Timer
}

// NewTracker returns an idle tracker. onChange is invoked on every
// transition, including the auto-reset, and may be nil.
func NewTracker(onChange func(Status)) *Tracker {
	return &Tracker{status: StatusIdle, onChange: onChange}
}

// Status returns the current indicator state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Begin marks a write as in flight.
func (t *Tracker) Begin() {
	t.set(StatusSyncing, false)
}

// Finish records the outcome of a write. The terminal state resets to
// idle after ResetDelay unless another write begins first.
func (t *Tracker) Finish(err error) {
	if err != nil {
		t.set(StatusError, true)
	} else {
		t.set(StatusSaved, true)
	}
}

// Track wraps a mutation with Begin/Finish bookkeeping.
func (t *Tracker) Track(fn func() error) error {
	t.Begin()
	err := fn()
	t.Finish(err)
	return err
}

func (t *Tracker) set(s Status, scheduleReset bool) {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	changed := t.status != s
	t.status = s
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if scheduleReset {
		t.timer = time.AfterFunc(ResetDelay, func() { t.reset(gen) })
	}
	cb := t.onChange
	t.mu.Unlock()

	if changed && cb != nil {
		cb(s)
	}
}

// reset returns to idle only if no newer transition happened meanwhile.
func (t *Tracker) reset(gen uint64) {
	t.mu.Lock()
	if t.gen != gen || t.status == StatusIdle || t.status == StatusSyncing {
		t.mu.Unlock()
		return
	}
	t.gen++
	t.status = StatusIdle
	cb := t.onChange
	t.mu.Unlock()

	if cb != nil {
		cb(StatusIdle)
	}
}
