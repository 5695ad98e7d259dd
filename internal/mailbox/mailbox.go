package mailbox

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/edgelisp/internal/payload"
)

const (
	// DefaultCapacity is the number of values held per event id.
	DefaultCapacity = 2

	// DefaultTTL is how long an unread queue may sit idle before cleanup.
	DefaultTTL = 30 * time.Second
)

const (
	// CodeOK marks an Event that carries a value.
	CodeOK int32 = 0

	// CodeEmpty marks a pop from an unknown or empty queue.
	CodeEmpty int32 = -1
)

// Event is one inbound value. Immutable.
type Event struct {
	Value int32
	Code  int32
}

// OK reports whether the event carries a value.
func (e Event) OK() bool {
	return e.Code == CodeOK
}

// queue is a bounded ring of values for one event id.
type queue struct {
	items        []int32
	head         int
	size         int
	lastAccessed time.Time
	usedInScript bool
}

func newQueue(capacity int) *queue {
	return &queue{items: make([]int32, capacity)}
}

// push appends v, overwriting the oldest value when full.
func (q *queue) push(v int32) (dropped bool) {
	tail := (q.head + q.size) % len(q.items)
	q.items[tail] = v
	if q.size == len(q.items) {
		q.head = (q.head + 1) % len(q.items)
		return true
	}
	q.size++
	return false
}

func (q *queue) pop() (int32, bool) {
	if q.size == 0 {
		return 0, false
	}
	v := q.items[q.head]
	q.items[q.head] = 0
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return v, true
}

// Mailbox is a keyed set of bounded event queues.
//
// Methods are safe for concurrent use, but the runtime only calls them from
// its single run loop.
type Mailbox struct {
	mu       sync.Mutex
	queues   map[string]*queue
	capacity int
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger

	pushed  int
	dropped int
	invalid int
	expired int
}

// Option configures a Mailbox.
type Option func(*Mailbox)

// WithCapacity sets the per-id queue capacity. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(m *Mailbox) {
		if n > 0 {
			m.capacity = n
		}
	}
}

// WithTTL sets the idle time after which unread queues are removed.
func WithTTL(d time.Duration) Option {
	return func(m *Mailbox) {
		m.ttl = d
	}
}

// WithClock sets the time source. Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Mailbox) {
		m.now = now
	}
}

// WithLogger sets the logger used for dropped payloads.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mailbox) {
		m.logger = l
	}
}

// New creates an empty mailbox.
func New(opts ...Option) *Mailbox {
	m := &Mailbox{
		queues:   make(map[string]*queue),
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PushEvent decodes raw as {"eventID": string, "value": int|string} and
// queues the value. Only those two members are decoded; anything else in the
// object is ignored. Payloads that do not decode are dropped; the return
// value reports whether the event was accepted.
func (m *Mailbox) PushEvent(raw []byte) bool {
	id, value, ok := m.decode(raw)
	if !ok {
		m.mu.Lock()
		m.invalid++
		m.mu.Unlock()
		return false
	}
	m.Push(id, value)
	return true
}

func (m *Mailbox) decode(raw []byte) (string, int32, bool) {
	obj, err := payload.UnmarshalFields(raw, "eventID", "value")
	if err != nil {
		m.logger.Debug("event payload dropped", "reason", err)
		return "", 0, false
	}
	id, ok := obj.String("eventID")
	if !ok || id == "" {
		m.logger.Debug("event payload dropped", "reason", "missing eventID")
		return "", 0, false
	}
	value, ok := obj.Int32("value")
	if !ok {
		m.logger.Debug("event payload dropped", "reason", "value is not a 32-bit integer", "event_id", id)
		return "", 0, false
	}
	return id, value, true
}

// Push queues an already decoded value under id.
func (m *Mailbox) Push(id string, value int32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[id]
	if !ok {
		q = newQueue(m.capacity)
		m.queues[id] = q
	}
	q.lastAccessed = m.now()
	m.pushed++
	if q.push(value) {
		m.dropped++
		m.logger.Debug("event queue full, oldest dropped", "event_id", id)
	}
}

// IsEventAvailable reports whether id has at least one queued value. Asking
// about a known id marks it as used by the script.
func (m *Mailbox) IsEventAvailable(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[id]
	if !ok {
		return false
	}
	q.usedInScript = true
	q.lastAccessed = m.now()
	return q.size > 0
}

// PopEvent removes and returns the oldest value queued under id, or an Event
// with CodeEmpty when there is none.
func (m *Mailbox) PopEvent(id string) Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[id]
	if !ok {
		return Event{Code: CodeEmpty}
	}
	q.usedInScript = true
	q.lastAccessed = m.now()
	v, ok := q.pop()
	if !ok {
		return Event{Code: CodeEmpty}
	}
	return Event{Value: v, Code: CodeOK}
}

// CleanupUnusedEvents removes queues no script has read that have been idle
// longer than the TTL. Returns the number removed.
func (m *Mailbox) CleanupUnusedEvents() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, q := range m.queues {
		if q.usedInScript || now.Sub(q.lastAccessed) <= m.ttl {
			continue
		}
		delete(m.queues, id)
		removed++
	}
	m.expired += removed
	if removed > 0 {
		m.logger.Debug("idle event queues removed", "count", removed)
	}
	return removed
}

// Clean discards every queue.
func (m *Mailbox) Clean() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.queues)
}

// Len returns the number of queues.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}

// Has reports whether a queue exists for id.
func (m *Mailbox) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.queues[id]
	return ok
}

// Stats summarizes mailbox activity.
type Stats struct {
	Queues  int      `json:"queues"`
	IDs     []string `json:"ids"`
	Pending int      `json:"pending"`
	Pushed  int      `json:"pushed"`
	Dropped int      `json:"dropped"`
	Invalid int      `json:"invalid"`
	Expired int      `json:"expired"`
}

// Stats returns a snapshot of mailbox counters. IDs are sorted.
func (m *Mailbox) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Queues:  len(m.queues),
		IDs:     make([]string, 0, len(m.queues)),
		Pushed:  m.pushed,
		Dropped: m.dropped,
		Invalid: m.invalid,
		Expired: m.expired,
	}
	for id, q := range m.queues {
		s.IDs = append(s.IDs, id)
		s.Pending += q.size
	}
	sort.Strings(s.IDs)
	return s
}
