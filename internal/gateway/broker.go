package gateway

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Message is a broker publication.
type Message struct {
	Topic    string `json:"topic"`
	Payload  []byte `json:"payload"`
	Retained bool   `json:"retained,omitempty"`
}

// Handler receives messages for a subscription.
type Handler func(msg Message)

type subscription struct {
	id     int
	filter string
	fn     Handler
}

// Broker is an in-memory publish/subscribe broker with retained messages.
//
// Handlers run synchronously on the publishing goroutine, without the broker
// lock held, so they may publish or subscribe themselves.
type Broker struct {
	mu       sync.Mutex
	subs     []subscription
	retained map[string][]byte
	nextID   int
	logger   *slog.Logger
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBrokerLogger sets the logger.
func WithBrokerLogger(l *slog.Logger) BrokerOption {
	return func(b *Broker) {
		b.logger = l
	}
}

// NewBroker creates an empty broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		retained: make(map[string][]byte),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers payload to every matching subscription and returns how
// many handlers ran. A retained publish replaces the topic's retained
// message; a retained publish with an empty payload clears it.
func (b *Broker) Publish(topic string, payload []byte, retained bool) (int, error) {
	if err := ValidateTopic(topic); err != nil {
		return 0, err
	}
	data := append([]byte(nil), payload...)

	b.mu.Lock()
	if retained {
		if len(data) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = data
		}
	}
	var targets []Handler
	for _, s := range b.subs {
		if MatchTopic(s.filter, topic) {
			targets = append(targets, s.fn)
		}
	}
	b.mu.Unlock()

	b.logger.Debug("broker publish", "topic", topic, "bytes", len(data), "retained", retained, "subscribers", len(targets))
	for _, fn := range targets {
		fn(Message{Topic: topic, Payload: data})
	}
	return len(targets), nil
}

// Subscribe registers fn for filter and immediately replays matching
// retained messages, in topic order, with Retained set.
func (b *Broker) Subscribe(filter string, fn Handler) (unsubscribe func(), err error) {
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, filter: filter, fn: fn})
	replay := b.matchingRetained(filter)
	b.mu.Unlock()

	for _, msg := range replay {
		fn(msg)
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}, nil
}

// matchingRetained must be called with b.mu held.
func (b *Broker) matchingRetained(filter string) []Message {
	topics := make([]string, 0, len(b.retained))
	for topic := range b.retained {
		if MatchTopic(filter, topic) {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)

	out := make([]Message, len(topics))
	for i, topic := range topics {
		out[i] = Message{Topic: topic, Payload: b.retained[topic], Retained: true}
	}
	return out
}

// Retained returns the retained payload of topic.
func (b *Broker) Retained(topic string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.retained[topic]
	return data, ok
}

// Subscriptions returns the number of active subscriptions.
func (b *Broker) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// ValidateTopic checks a publish topic: non-empty, no wildcards.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("topic is empty")
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("topic %q: wildcards are not allowed in a publish topic", topic)
	}
	return nil
}

// ValidateFilter checks a subscription filter: + must fill a whole level and
// # must be the whole last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("filter is empty")
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return fmt.Errorf("filter %q: # must be the last level", filter)
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("filter %q: wildcard must occupy a whole level", filter)
		}
	}
	return nil
}

// MatchTopic reports whether topic matches filter.
func MatchTopic(filter, topic string) bool {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, f := range fl {
		if f == "#" {
			return true
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
