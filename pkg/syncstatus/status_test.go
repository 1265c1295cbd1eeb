package syncstatus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerTransitions(t *testing.T) {
	tr := NewTracker(nil)
	assert.Equal(t, StatusIdle, tr.Status())

	tr.Begin()
	assert.Equal(t, StatusSyncing, tr.Status())

	tr.Finish(nil)
	assert.Equal(t, StatusSaved, tr.Status())

	tr.Begin()
	tr.Finish(errors.New("disk full"))
	assert.Equal(t, StatusError, tr.Status())
}

func TestTrackerTrack(t *testing.T) {
	tr := NewTracker(nil)

	err := tr.Track(func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StatusSaved, tr.Status())

	wantErr := errors.New("boom")
	err = tr.Track(func() error { return wantErr })
	assert.Equal(t, wantErr, err)
	assert.Equal(t, StatusError, tr.Status())
}

func TestTrackerOnChange(t *testing.T) {
	var seen []Status
	tr := NewTracker(func(s Status) { seen = append(seen, s) })

	tr.Begin()
	tr.Finish(nil)

	assert.Equal(t, []Status{StatusSyncing, StatusSaved}, seen)
}

func TestTrackerAutoReset(t *testing.T) {
	changes := make(chan Status, 8)
	tr := NewTracker(func(s Status) { changes <- s })

	tr.Begin()
	tr.Finish(nil)
	assert.Equal(t, StatusSyncing, <-changes)
	assert.Equal(t, StatusSaved, <-changes)

	select {
	case s := <-changes:
		assert.Equal(t, StatusIdle, s)
		assert.Equal(t, StatusIdle, tr.Status())
	case <-time.After(ResetDelay + time.Second):
		t.Fatal("saved state never reset to idle")
	}
}

func TestTrackerNewWriteCancelsReset(t *testing.T) {
	tr := NewTracker(nil)

	tr.Begin()
	tr.Finish(nil)
	// 新的写入开始后，之前计划的复位不得生效
	tr.Begin()

	time.Sleep(ResetDelay + 200*time.Millisecond)
	assert.Equal(t, StatusSyncing, tr.Status())
}
