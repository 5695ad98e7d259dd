package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edgelisp/internal/testutil"
)

func newTestScheduler() (*Scheduler, *testutil.ManualClock) {
	clock := testutil.NewManualClock(time.Time{})
	return New(WithClock(clock.Now)), clock
}

func TestTask_BoundedRepeat(t *testing.T) {
	s, clock := newTestScheduler()

	var finals []bool
	var task *Task
	task = s.NewTask("bridge", func(now time.Time) {
		finals = append(finals, !task.IsAttached())
	})
	task.Attach(10*time.Millisecond, 3)
	assert.Equal(t, 3, task.Remaining())

	for i := 0; i < 5; i++ {
		s.Tick(clock.Advance(10 * time.Millisecond))
	}

	assert.Equal(t, []bool{false, false, true}, finals)
	assert.Equal(t, 3, task.Runs())
	assert.False(t, task.IsAttached())
	assert.Equal(t, 0, task.Remaining())
}

func TestTask_Unbounded(t *testing.T) {
	s, clock := newTestScheduler()

	runs := 0
	task := s.NewTask("loop", func(time.Time) { runs++ })
	task.Attach(time.Millisecond, 0)
	assert.Equal(t, Unbounded, task.Remaining())

	for i := 0; i < 100; i++ {
		s.Tick(clock.Advance(time.Millisecond))
	}
	assert.Equal(t, 100, runs)
	assert.True(t, task.IsAttached())
}

func TestTask_NotDueBeforePeriod(t *testing.T) {
	s, clock := newTestScheduler()

	runs := 0
	task := s.NewTask("slow", func(time.Time) { runs++ })
	task.Attach(time.Second, 0)

	assert.Equal(t, 0, s.Tick(clock.Advance(999*time.Millisecond)))
	assert.Equal(t, 1, s.Tick(clock.Advance(time.Millisecond)))
	assert.Equal(t, 0, s.Tick(clock.Advance(500*time.Millisecond)))
	assert.Equal(t, 1, s.Tick(clock.Advance(500*time.Millisecond)))
	assert.Equal(t, 2, runs)
}

func TestTask_AtMostOncePerTick(t *testing.T) {
	s, clock := newTestScheduler()

	runs := 0
	task := s.NewTask("late", func(time.Time) { runs++ })
	task.Attach(time.Millisecond, 0)

	s.Tick(clock.Advance(time.Second))
	assert.Equal(t, 1, runs)
	s.Tick(clock.Advance(time.Millisecond))
	assert.Equal(t, 2, runs)
}

func TestTask_Detach(t *testing.T) {
	s, clock := newTestScheduler()

	runs := 0
	task := s.NewTask("x", func(time.Time) { runs++ })
	task.Attach(time.Millisecond, 0)
	task.Detach()
	task.Detach()

	s.Tick(clock.Advance(time.Second))
	assert.Equal(t, 0, runs)
	assert.False(t, task.IsAttached())
}

func TestTask_ReattachReplacesSchedule(t *testing.T) {
	s, clock := newTestScheduler()

	runs := 0
	task := s.NewTask("x", func(time.Time) { runs++ })
	task.Attach(time.Millisecond, 5)
	task.Attach(time.Millisecond, 1)

	for i := 0; i < 5; i++ {
		s.Tick(clock.Advance(time.Millisecond))
	}
	assert.Equal(t, 1, runs)
}

func TestTask_ReattachFromInsideCallback(t *testing.T) {
	s, clock := newTestScheduler()

	var task *Task
	runs := 0
	task = s.NewTask("x", func(time.Time) {
		runs++
		if runs == 1 {
			task.Attach(time.Millisecond, 2)
		}
	})
	task.Attach(time.Millisecond, 1)

	for i := 0; i < 5; i++ {
		s.Tick(clock.Advance(time.Millisecond))
	}
	assert.Equal(t, 3, runs)
}

func TestScheduler_RegistrationOrder(t *testing.T) {
	s, clock := newTestScheduler()

	var order []string
	a := s.NewTask("a", func(time.Time) { order = append(order, "a") })
	b := s.NewTask("b", func(time.Time) { order = append(order, "b") })
	b.Attach(time.Millisecond, 1)
	a.Attach(time.Millisecond, 1)

	s.Tick(clock.Advance(time.Millisecond))
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, s.Ticks())
}

func TestScheduler_DetachedByEarlierTask(t *testing.T) {
	s, clock := newTestScheduler()

	var b *Task
	bRuns := 0
	a := s.NewTask("a", func(time.Time) { b.Detach() })
	b = s.NewTask("b", func(time.Time) { bRuns++ })
	a.Attach(time.Millisecond, 0)
	b.Attach(time.Millisecond, 0)

	require.Equal(t, 1, s.Tick(clock.Advance(time.Millisecond)))
	assert.Equal(t, 0, bRuns)
}

func TestTask_ZeroPeriodRunsEveryTick(t *testing.T) {
	s, clock := newTestScheduler()

	runs := 0
	task := s.NewTask("x", func(time.Time) { runs++ })
	task.Attach(-5*time.Millisecond, 0)
	assert.Equal(t, time.Duration(0), task.Period())

	s.Tick(clock.Now())
	s.Tick(clock.Now())
	assert.Equal(t, 2, runs)
}
