// Package bus moves data and notifications between device subsystems.
//
// A bus has two halves. Channels are bounded FIFO byte queues: producers call
// SendDataToChannel and consumers drain with ReceiveDataFromChannel. Topics
// carry notifications: EmitEvent calls every listener subscribed to the topic,
// synchronously and in subscription order. The usual pattern is to send data
// on a channel, then emit a message telling the consumer to drain it.
package bus

import (
	"log/slog"
	"sync"
)

// Channel identifies a data channel.
type Channel string

const (
	ChannelStdout        Channel = "stdout"
	ChannelLog           Channel = "log"
	ChannelError         Channel = "error"
	ChannelOutgoingEvent Channel = "outgoing-event"
	ChannelIncomingEvent Channel = "incoming-event"
)

// Channels lists the channels every bus is created with.
var Channels = []Channel{
	ChannelStdout,
	ChannelLog,
	ChannelError,
	ChannelOutgoingEvent,
	ChannelIncomingEvent,
}

// Topic identifies a notification topic.
type Topic string

const (
	// TopicScript carries output notifications from the script runtime.
	TopicScript Topic = "script"

	// TopicEvents carries event traffic notifications.
	TopicEvents Topic = "events"
)

// Message is a notification id.
type Message string

const (
	MsgAdded                Message = "ADDED"
	MsgLog                  Message = "LOG"
	MsgError                Message = "ERROR"
	MsgRefreshEventsRequest Message = "REFRESH_EVENTS_REQUEST"
	MsgNewOutgoingEvent     Message = "NEW_OUTGOING_EVENT"
	MsgNewIncomingEvent     Message = "NEW_INCOMING_EVENT"
)

// DefaultCapacity is the number of entries a channel holds.
const DefaultCapacity = 16

// Listener handles a notification.
type Listener func(topic Topic, msg Message)

type subscription struct {
	id int
	fn Listener
}

// Bus is safe for concurrent use. Listeners run on the emitting goroutine
// and must not block.
type Bus struct {
	mu        sync.Mutex
	capacity  int
	channels  map[Channel][][]byte
	listeners map[Topic][]subscription
	nextSub   int
	dropped   map[Channel]int
	logger    *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithCapacity sets the per-channel capacity. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = l
	}
}

// New creates a bus with the standard channels.
func New(opts ...Option) *Bus {
	b := &Bus{
		capacity:  DefaultCapacity,
		channels:  make(map[Channel][][]byte, len(Channels)),
		listeners: make(map[Topic][]subscription),
		dropped:   make(map[Channel]int),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	for _, ch := range Channels {
		b.channels[ch] = make([][]byte, 0, b.capacity)
	}
	return b
}

// SendDataToChannel queues a copy of data. Returns false if the channel is
// unknown or full.
func (b *Bus) SendDataToChannel(ch Channel, data []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.channels[ch]
	if !ok {
		b.logger.Warn("send to unknown channel", "channel", ch)
		return false
	}
	if len(q) >= b.capacity {
		b.dropped[ch]++
		b.logger.Debug("channel full", "channel", ch, "capacity", b.capacity)
		return false
	}
	b.channels[ch] = append(q, append([]byte(nil), data...))
	return true
}

// ReceiveDataFromChannel drains ch, calling fn for each entry in FIFO order.
// Returns the number of entries delivered.
func (b *Bus) ReceiveDataFromChannel(ch Channel, fn func(data []byte)) int {
	b.mu.Lock()
	q := b.channels[ch]
	if len(q) == 0 {
		b.mu.Unlock()
		return 0
	}
	b.channels[ch] = make([][]byte, 0, b.capacity)
	b.mu.Unlock()

	// fn runs without the lock so it may send on the bus.
	for _, data := range q {
		fn(data)
	}
	return len(q)
}

// Pending returns the number of entries queued on ch.
func (b *Bus) Pending(ch Channel) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels[ch])
}

// Dropped returns how many sends to ch were refused because it was full.
func (b *Bus) Dropped(ch Channel) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped[ch]
}

// Subscribe registers fn for topic. The returned func removes it.
func (b *Bus) Subscribe(topic Topic, fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSub++
	id := b.nextSub
	b.listeners[topic] = append(b.listeners[topic], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.listeners[topic]
		for i, s := range subs {
			if s.id == id {
				b.listeners[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// EmitEvent notifies the listeners of topic.
func (b *Bus) EmitEvent(topic Topic, msg Message) {
	b.mu.Lock()
	subs := append([]subscription(nil), b.listeners[topic]...)
	b.mu.Unlock()

	b.logger.Debug("bus event", "topic", topic, "message", msg, "listeners", len(subs))
	for _, s := range subs {
		s.fn(topic, msg)
	}
}
