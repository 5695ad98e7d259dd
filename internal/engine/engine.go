package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/edgelisp/internal/bus"
	"github.com/roach88/edgelisp/internal/lisp"
	"github.com/roach88/edgelisp/internal/mailbox"
	"github.com/roach88/edgelisp/internal/scheduler"
	"github.com/roach88/edgelisp/internal/store"
)

const (
	// DefaultTickInterval is how often Run ticks the scheduler.
	DefaultTickInterval = 10 * time.Millisecond

	// DefaultCleanupInterval is how often idle mailbox queues are swept.
	DefaultCleanupInterval = 10 * time.Second
)

// ScriptStore persists the script record. Implemented by *store.Store.
type ScriptStore interface {
	RestoreScript(ctx context.Context) (store.ScriptRecord, bool, error)
	StoreScript(ctx context.Context, rec store.ScriptRecord) error
}

// Engine is the script runtime.
//
// CRITICAL: All mutations happen in the single-writer Run loop goroutine, or
// in the one goroutine driving the engine when Run is not used.
type Engine struct {
	bus     *bus.Bus
	mailbox *mailbox.Mailbox
	sched   *scheduler.Scheduler
	store   ScriptStore
	queue   *eventQueue
	clock   *Clock
	now     func() time.Time
	logger  *slog.Logger

	hostPrims    []*lisp.Registry
	runtimePrims *lisp.Registry

	arenaBytes      int
	maxSteps        int
	maxDepth        int
	tickInterval    time.Duration
	cleanupInterval time.Duration

	vm      *lisp.VM
	state   State
	cont    Continuation
	bridge  *scheduler.Task
	sweeper *scheduler.Task

	record   Record
	received bool // a script has been delivered since boot

	// set while a refresh replays retained events; arrivals are drained
	// as they come so the bounded channel cannot overflow.
	refreshing atomic.Bool
	finished   atomic.Bool // Run has returned; the engine cannot restart

	unsubscribe func()
	stats       counters
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithArenaBytes sets the arena size of every VM.
//
// Default: 8000 bytes (lisp.DefaultArenaBytes)
func WithArenaBytes(n int) Option {
	return func(e *Engine) {
		e.arenaBytes = n
	}
}

// WithMaxSteps sets the per-pass step quota.
//
// Default: 100000 steps (lisp.DefaultMaxSteps)
// Use WithMaxSteps(10) for testing quota enforcement.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// WithMaxDepth sets the per-pass nesting limit.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		e.maxDepth = n
	}
}

// WithPrimitives adds host primitives to every VM. The registry is frozen.
func WithPrimitives(reg *lisp.Registry) Option {
	return func(e *Engine) {
		e.hostPrims = append(e.hostPrims, reg)
	}
}

// WithStore enables script record persistence.
func WithStore(s ScriptStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithMailbox replaces the default mailbox (capacity 2, TTL 30s).
func WithMailbox(m *mailbox.Mailbox) Option {
	return func(e *Engine) {
		e.mailbox = m
	}
}

// WithClock sets the wall clock used for scheduling. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSequencer sets the logical clock that stamps evaluation passes.
func WithSequencer(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTickInterval sets how often Run ticks the scheduler.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tickInterval = d
		}
	}
}

// WithCleanupInterval sets how often idle mailbox queues are swept.
func WithCleanupInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.cleanupInterval = d
		}
	}
}

// New creates an Engine that talks to the rest of the device through b.
//
// Fails if a host primitive collides with a runtime primitive.
func New(b *bus.Bus, opts ...Option) (*Engine, error) {
	e := &Engine{
		bus:             b,
		queue:           newEventQueue(),
		clock:           NewClock(),
		now:             time.Now,
		logger:          slog.Default(),
		arenaBytes:      lisp.DefaultArenaBytes,
		maxSteps:        lisp.DefaultMaxSteps,
		maxDepth:        lisp.DefaultMaxDepth,
		tickInterval:    DefaultTickInterval,
		cleanupInterval: DefaultCleanupInterval,
		state:           StateEmpty,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.mailbox == nil {
		e.mailbox = mailbox.New(mailbox.WithClock(e.now), mailbox.WithLogger(e.logger))
	}
	e.sched = scheduler.New(scheduler.WithClock(e.now), scheduler.WithLogger(e.logger))
	e.bridge = e.sched.NewTask("task-bridge", e.runContinuation)
	e.sweeper = e.sched.NewTask("mailbox-cleanup", func(time.Time) {
		e.mailbox.CleanupUnusedEvents()
	})
	e.sweeper.Attach(e.cleanupInterval, 0)

	e.runtimePrims = e.newRuntimeRegistry()
	for _, reg := range e.hostPrims {
		reg.Freeze()
		for _, p := range reg.Primitives() {
			if _, ok := e.runtimePrims.Lookup(p.Name); ok {
				return nil, fmt.Errorf("host primitive %q collides with a runtime primitive", p.Name)
			}
		}
	}

	e.unsubscribe = b.Subscribe(bus.TopicEvents, func(_ bus.Topic, msg bus.Message) {
		if msg != bus.MsgNewIncomingEvent {
			return
		}
		if e.refreshing.Load() {
			e.DrainIncoming()
			return
		}
		e.queue.Enqueue(Event{Type: EventTypeIncoming})
	})

	return e, nil
}

// Enqueue submits an event for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// SubmitScript queues a delivered script. Thread-safe.
func (e *Engine) SubmitScript(code []byte, persist bool) bool {
	return e.Enqueue(Event{
		Type:   EventTypeScript,
		Script: &Script{Code: append([]byte(nil), code...), Persist: persist},
	})
}

// QueueLen returns the number of queued events.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: script failures are routed to the error channel and
// processing continues. The loop only returns on shutdown, after which
// the engine is spent and further calls return ErrStopped.
func (e *Engine) Run(ctx context.Context) error {
	if e.finished.Load() {
		return ErrStopped
	}
	e.logger.Info("engine starting", "tick", e.tickInterval)
	defer e.shutdown()

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	for {
		if event, ok := e.queue.TryDequeue(); ok {
			e.processEvent(ctx, event)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-ticker.C:
			e.Tick(e.now())

		case <-e.queue.Wait():
			if e.queue.Closed() && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the event queue, which will cause Run() to return.
func (e *Engine) Stop() {
	e.queue.Close()
}

// ProcessPending handles every queued event on the calling goroutine and
// returns how many were processed. For callers that do not use Run.
func (e *Engine) ProcessPending(ctx context.Context) int {
	n := 0
	for {
		event, ok := e.queue.TryDequeue()
		if !ok {
			return n
		}
		e.processEvent(ctx, event)
		n++
	}
}

// Tick advances the scheduler: the task bridge and the mailbox sweep run if
// they are due.
func (e *Engine) Tick(now time.Time) {
	e.stats.ticks++
	e.sched.Tick(now)
}

func (e *Engine) processEvent(ctx context.Context, event Event) {
	switch event.Type {
	case EventTypeScript:
		if event.Script == nil {
			e.logger.Warn("script event missing script")
			return
		}
		s := event.Script
		if _, err := e.LoadScript(ctx, s.Code, s.Persist, s.Force); err != nil {
			e.logger.Debug("delivered script failed", "error", err)
		}

	case EventTypeIncoming:
		e.DrainIncoming()

	default:
		e.logger.Warn("unknown event type", "type", event.Type)
	}
}

// DrainIncoming moves every payload waiting on the incoming-event channel
// into the mailbox. Returns the number of payloads accepted.
func (e *Engine) DrainIncoming() int {
	accepted := 0
	e.bus.ReceiveDataFromChannel(bus.ChannelIncomingEvent, func(data []byte) {
		if e.mailbox.PushEvent(data) {
			accepted++
		}
	})
	return accepted
}

// Mailbox returns the engine's mailbox.
func (e *Engine) Mailbox() *mailbox.Mailbox {
	return e.mailbox
}

func (e *Engine) shutdown() {
	e.finished.Store(true)
	e.bridge.Detach()
	e.sweeper.Detach()
	e.destroyVM("shutdown")
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

type counters struct {
	runs            int
	ignored         int
	errors          int
	ticks           int
	continuations   int
	outgoing        int
	outgoingDropped int
	outputDropped   int
}

// Stats is a diagnostic snapshot of the engine.
type Stats struct {
	State           string        `json:"state"`
	Armed           bool          `json:"armed"`
	Runs            int           `json:"runs"`
	Ignored         int           `json:"ignored"`
	Errors          int           `json:"errors"`
	Ticks           int           `json:"ticks"`
	Continuations   int           `json:"continuations"`
	Outgoing        int           `json:"outgoing"`
	OutgoingDropped int           `json:"outgoing_dropped"`
	OutputDropped   int           `json:"output_dropped"`
	Seq             int64         `json:"seq"`
	Checksum        uint32        `json:"checksum"`
	Persist         bool          `json:"persist"`
	Failed          bool          `json:"failed"`
	VM              lisp.Stats    `json:"vm"`
	Mailbox         mailbox.Stats `json:"mailbox"`
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		State:           e.state.String(),
		Armed:           e.bridge.IsAttached(),
		Runs:            e.stats.runs,
		Ignored:         e.stats.ignored,
		Errors:          e.stats.errors,
		Ticks:           e.stats.ticks,
		Continuations:   e.stats.continuations,
		Outgoing:        e.stats.outgoing,
		OutgoingDropped: e.stats.outgoingDropped,
		OutputDropped:   e.stats.outputDropped,
		Seq:             e.clock.Current(),
		Checksum:        e.record.Checksum,
		Persist:         e.record.Persist,
		Failed:          e.record.Failed,
		Mailbox:         e.mailbox.Stats(),
	}
	if e.vm != nil {
		s.VM = e.vm.Stats()
	}
	return s
}
