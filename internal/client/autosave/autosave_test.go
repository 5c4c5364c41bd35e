package autosave_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/muralapp/mural/internal/client/autosave"
	"github.com/muralapp/mural/internal/util/testutil"
)

func TestScheduler_BurstCollapsesToOneSave(t *testing.T) {
	var fires atomic.Int64
	s := autosave.New(100*time.Millisecond, func() { fires.Add(1) })
	defer s.Close()

	// Three mutations inside the quiet period.
	for i := 0; i < 3; i++ {
		s.Touch()
		time.Sleep(25 * time.Millisecond)
	}

	testutil.RequireEventually(t, func() bool { return fires.Load() == 1 })

	// No second fire afterwards.
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int64(1), fires.Load())
}

func TestScheduler_TouchRestartsTimer(t *testing.T) {
	var fires atomic.Int64
	s := autosave.New(150*time.Millisecond, func() { fires.Add(1) })
	defer s.Close()

	s.Touch()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(0), fires.Load(), "fired before the quiet period elapsed")

	// A touch at t=100ms pushes the deadline to t=250ms.
	s.Touch()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(0), fires.Load(), "timer was re-armed, not restarted")

	testutil.RequireEventually(t, func() bool { return fires.Load() == 1 })
}

func TestScheduler_CloseCancelsPendingSave(t *testing.T) {
	var fires atomic.Int64
	s := autosave.New(50*time.Millisecond, func() { fires.Add(1) })

	s.Touch()
	s.Close()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int64(0), fires.Load(), "pending timer must not fire after Close")
}

func TestScheduler_CancelDropsPendingButStaysUsable(t *testing.T) {
	var fires atomic.Int64
	s := autosave.New(50*time.Millisecond, func() { fires.Add(1) })
	defer s.Close()

	s.Touch()
	s.Cancel()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int64(0), fires.Load(), "cancelled timer must not fire")

	// A fresh touch after Cancel still schedules.
	s.Touch()
	testutil.RequireEventually(t, func() bool { return fires.Load() == 1 })
}

func TestScheduler_TouchAfterCloseIsNoOp(t *testing.T) {
	var fires atomic.Int64
	s := autosave.New(20*time.Millisecond, func() { fires.Add(1) })
	s.Close()

	s.Touch()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int64(0), fires.Load())
}

func TestScheduler_FlushFiresSynchronously(t *testing.T) {
	var fires atomic.Int64
	s := autosave.New(time.Hour, func() { fires.Add(1) })
	defer s.Close()

	s.Touch()
	s.Flush()
	assert.Equal(t, int64(1), fires.Load())

	// The pending timer was consumed by Flush.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), fires.Load())
}

func TestScheduler_FlushAfterCloseIsNoOp(t *testing.T) {
	var fires atomic.Int64
	s := autosave.New(time.Hour, func() { fires.Add(1) })
	s.Close()

	s.Flush()
	assert.Equal(t, int64(0), fires.Load())
}
