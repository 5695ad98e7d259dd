// Package scheduler runs cooperative periodic tasks on explicit ticks.
//
// Nothing here starts goroutines or timers. The owner calls Tick with the
// current time and every due task runs to completion, one at a time, in the
// order the tasks were created.
package scheduler

import (
	"log/slog"
	"time"
)

// Unbounded is what Remaining reports for a task attached with repeat 0.
const Unbounded = -1

// Func is the unit of work a task runs.
type Func func(now time.Time)

// Task is a repeating unit of work owned by a Scheduler.
type Task struct {
	name  string
	fn    Func
	sched *Scheduler

	attached  bool
	period    time.Duration
	remaining int // Unbounded or invocations left
	next      time.Time
	runs      int
}

// Scheduler ticks tasks.
type Scheduler struct {
	tasks  []*Task
	now    func() time.Time
	logger *slog.Logger
	ticks  int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source used when a task is attached.
// Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// New creates a scheduler with no tasks.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewTask registers a detached task.
func (s *Scheduler) NewTask(name string, fn Func) *Task {
	t := &Task{name: name, fn: fn, sched: s}
	s.tasks = append(s.tasks, t)
	return t
}

// Tick runs every attached task whose due time is at or before now.
// Returns the number of task invocations.
//
// A task runs at most once per tick. A task detached by an earlier task in the
// same tick does not run.
func (s *Scheduler) Tick(now time.Time) int {
	s.ticks++
	ran := 0
	for _, t := range s.tasks {
		if !t.attached || now.Before(t.next) {
			continue
		}
		t.advance(now)
		ran++
		t.runs++
		t.fn(now)
	}
	return ran
}

// Ticks returns how many times Tick has been called.
func (s *Scheduler) Ticks() int {
	return s.ticks
}

// Attach arms the task to run every period, repeat times. A repeat of 0 means
// until detached. Attaching an attached task replaces its schedule.
func (t *Task) Attach(period time.Duration, repeat int) {
	if period < 0 {
		period = 0
	}
	t.attached = true
	t.period = period
	t.remaining = Unbounded
	if repeat > 0 {
		t.remaining = repeat
	}
	t.next = t.sched.now().Add(period)
	t.sched.logger.Debug("task attached", "task", t.name, "period", period, "repeat", repeat)
}

// advance books one invocation. On the last bounded invocation the task is
// detached before it runs, so IsAttached reports false from inside it.
func (t *Task) advance(now time.Time) {
	if t.remaining != Unbounded {
		t.remaining--
		if t.remaining == 0 {
			t.attached = false
		}
	}
	t.next = t.next.Add(t.period)
	if !t.next.After(now) {
		t.next = now.Add(t.period)
	}
}

// Detach stops the task. Idempotent.
func (t *Task) Detach() {
	if !t.attached {
		return
	}
	t.attached = false
	t.remaining = 0
	t.sched.logger.Debug("task detached", "task", t.name)
}

// IsAttached reports whether further invocations are pending.
func (t *Task) IsAttached() bool {
	return t.attached
}

// Remaining returns the invocations left, or Unbounded.
func (t *Task) Remaining() int {
	if !t.attached {
		return 0
	}
	return t.remaining
}

// Period returns the attach period.
func (t *Task) Period() time.Duration {
	return t.period
}

// Runs returns how many times the task has been invoked.
func (t *Task) Runs() int {
	return t.runs
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.name
}
