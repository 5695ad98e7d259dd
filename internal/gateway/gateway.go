package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/edgelisp/internal/bus"
	"github.com/roach88/edgelisp/internal/engine"
	"github.com/roach88/edgelisp/internal/payload"
	"github.com/roach88/edgelisp/internal/store"
)

// DefaultDeviceType is the sender type attached to outgoing events.
const DefaultDeviceType = "device"

// EventsFilter matches every event topic.
const EventsFilter = "events/#"

// ScriptSink accepts delivered scripts. Implemented by *engine.Engine.
type ScriptSink interface {
	SubmitScript(code []byte, persist bool) bool
}

// HistoryStore records published outgoing events. Implemented by *store.Store.
type HistoryStore interface {
	AppendOutgoing(ctx context.Context, ev store.OutgoingEvent) error
}

// IDGenerator produces message ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 message ids.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ScriptTopic returns the topic a device receives scripts on.
func ScriptTopic(deviceID string) string {
	return "devices/" + deviceID + "/script"
}

// EventTopic returns the topic an event is published on.
func EventTopic(eventID string) string {
	return "events/" + eventID
}

// OutputTopic returns the topic device output is forwarded to.
func OutputTopic(deviceID string, ch bus.Channel) string {
	return "devices/" + deviceID + "/" + string(ch)
}

// Gateway routes messages between a Broker and the runtime bus.
type Gateway struct {
	broker     *Broker
	bus        *bus.Bus
	sink       ScriptSink
	deviceID   string
	deviceType string
	seq        engine.Sequencer
	ids        IDGenerator
	now        func() time.Time
	history    HistoryStore
	logger     *slog.Logger

	mu          sync.Mutex
	eventsUnsub func()
	unsubs      []func()
	started     bool

	stats Stats
}

// Stats counts gateway traffic.
type Stats struct {
	Scripts         int `json:"scripts"`
	InvalidScripts  int `json:"invalid_scripts"`
	Incoming        int `json:"incoming"`
	Echoes          int `json:"echoes"`
	Published       int `json:"published"`
	InvalidOutgoing int `json:"invalid_outgoing"`
	Forwarded       int `json:"forwarded"`
	Refreshes       int `json:"refreshes"`
	HistoryErrors   int `json:"history_errors"`
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithDeviceType sets the sender type attached to outgoing events.
func WithDeviceType(t string) Option {
	return func(g *Gateway) {
		g.deviceType = t
	}
}

// WithSequencer sets the logical clock stamping the outgoing history.
func WithSequencer(s engine.Sequencer) Option {
	return func(g *Gateway) {
		g.seq = s
	}
}

// WithIDGenerator sets the message id generator. Default: UUIDv7.
func WithIDGenerator(ids IDGenerator) Option {
	return func(g *Gateway) {
		g.ids = ids
	}
}

// WithClock sets the wall clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// WithHistory records every published outgoing event.
func WithHistory(h HistoryStore) Option {
	return func(g *Gateway) {
		g.history = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// New creates a gateway for deviceID. Call Start to begin routing.
func New(broker *Broker, b *bus.Bus, sink ScriptSink, deviceID string, opts ...Option) (*Gateway, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("gateway: device id is required")
	}
	g := &Gateway{
		broker:     broker,
		bus:        b,
		sink:       sink,
		deviceID:   deviceID,
		deviceType: DefaultDeviceType,
		seq:        engine.NewClock(),
		ids:        UUIDv7Generator{},
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// DeviceID returns the device id.
func (g *Gateway) DeviceID() string {
	return g.deviceID
}

// Start subscribes to the broker and the bus. Retained scripts and events are
// delivered before Start returns.
func (g *Gateway) Start() error {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return fmt.Errorf("gateway already started")
	}
	g.started = true
	g.mu.Unlock()

	g.addUnsub(g.bus.Subscribe(bus.TopicEvents, g.onEvents))
	g.addUnsub(g.bus.Subscribe(bus.TopicScript, g.onScript))

	unsub, err := g.broker.Subscribe(ScriptTopic(g.deviceID), g.handleScript)
	if err != nil {
		g.Stop()
		return fmt.Errorf("subscribe script topic: %w", err)
	}
	g.addUnsub(unsub)

	if err := g.subscribeEvents(); err != nil {
		g.Stop()
		return err
	}
	g.logger.Info("gateway started", "device", g.deviceID)
	return nil
}

// Stop removes every subscription. Idempotent.
func (g *Gateway) Stop() {
	g.mu.Lock()
	unsubs := g.unsubs
	g.unsubs = nil
	if g.eventsUnsub != nil {
		unsubs = append(unsubs, g.eventsUnsub)
		g.eventsUnsub = nil
	}
	g.started = false
	g.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
}

// Stats returns traffic counters.
func (g *Gateway) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

func (g *Gateway) addUnsub(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unsubs = append(g.unsubs, fn)
}

// subscribeEvents (re)subscribes to every event topic, which replays the
// retained events.
func (g *Gateway) subscribeEvents() error {
	g.mu.Lock()
	old := g.eventsUnsub
	g.eventsUnsub = nil
	g.mu.Unlock()
	if old != nil {
		old()
	}

	unsub, err := g.broker.Subscribe(EventsFilter, g.handleIncoming)
	if err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}
	g.mu.Lock()
	g.eventsUnsub = unsub
	g.mu.Unlock()
	return nil
}

// handleScript decodes {code, persist} and hands it to the sink.
func (g *Gateway) handleScript(msg Message) {
	obj, err := payload.UnmarshalObject(msg.Payload)
	if err != nil {
		g.count(func(s *Stats) { s.InvalidScripts++ })
		g.logger.Warn("invalid script message", "topic", msg.Topic, "error", err)
		return
	}
	code, ok := obj.String("code")
	if !ok {
		g.count(func(s *Stats) { s.InvalidScripts++ })
		g.logger.Warn("script message missing code", "topic", msg.Topic)
		return
	}
	persist, _ := obj.Bool("persist")

	g.count(func(s *Stats) { s.Scripts++ })
	if !g.sink.SubmitScript([]byte(code), persist) {
		g.logger.Warn("script rejected: runtime stopped")
	}
}

// handleIncoming forwards an event message to the runtime. Events this device
// published itself are not fed back.
func (g *Gateway) handleIncoming(msg Message) {
	if obj, err := payload.UnmarshalFields(msg.Payload, "sender"); err == nil {
		if sender, ok := obj.Object("sender"); ok {
			if id, _ := sender.String("id"); id == g.deviceID {
				g.count(func(s *Stats) { s.Echoes++ })
				return
			}
		}
	}

	if !g.bus.SendDataToChannel(bus.ChannelIncomingEvent, msg.Payload) {
		// A runtime mid-refresh drains on notification; retry once after it.
		g.bus.EmitEvent(bus.TopicEvents, bus.MsgNewIncomingEvent)
		if !g.bus.SendDataToChannel(bus.ChannelIncomingEvent, msg.Payload) {
			g.logger.Warn("incoming event dropped: channel full", "topic", msg.Topic)
			return
		}
	}
	g.count(func(s *Stats) { s.Incoming++ })
	g.bus.EmitEvent(bus.TopicEvents, bus.MsgNewIncomingEvent)
}

func (g *Gateway) onEvents(_ bus.Topic, msg bus.Message) {
	switch msg {
	case bus.MsgRefreshEventsRequest:
		g.count(func(s *Stats) { s.Refreshes++ })
		if err := g.subscribeEvents(); err != nil {
			g.logger.Warn("event refresh failed", "error", err)
		}
	case bus.MsgNewOutgoingEvent:
		g.FlushOutgoing(context.Background())
	}
}

func (g *Gateway) onScript(_ bus.Topic, msg bus.Message) {
	switch msg {
	case bus.MsgAdded:
		g.forward(bus.ChannelStdout)
	case bus.MsgLog:
		g.forward(bus.ChannelLog)
	case bus.MsgError:
		g.forward(bus.ChannelError)
	}
}

func (g *Gateway) forward(ch bus.Channel) {
	topic := OutputTopic(g.deviceID, ch)
	g.bus.ReceiveDataFromChannel(ch, func(data []byte) {
		if _, err := g.broker.Publish(topic, data, false); err != nil {
			g.logger.Warn("forward output failed", "channel", ch, "error", err)
			return
		}
		g.count(func(s *Stats) { s.Forwarded++ })
	})
}

// FlushOutgoing publishes every queued outgoing event and returns how many
// were published.
//
// Each event is stamped with the sender and a timestamp, published retained
// on events/<eventID> and appended to the history. History failures are
// logged and do not stop publishing.
func (g *Gateway) FlushOutgoing(ctx context.Context) int {
	published := 0
	g.bus.ReceiveDataFromChannel(bus.ChannelOutgoingEvent, func(data []byte) {
		if g.publishOutgoing(ctx, data) {
			published++
		}
	})
	return published
}

func (g *Gateway) publishOutgoing(ctx context.Context, data []byte) bool {
	obj, err := payload.UnmarshalObject(data)
	if err != nil {
		g.count(func(s *Stats) { s.InvalidOutgoing++ })
		g.logger.Warn("invalid outgoing event", "error", err)
		return false
	}
	eventID, ok := obj.String("eventID")
	if !ok || eventID == "" {
		g.count(func(s *Stats) { s.InvalidOutgoing++ })
		g.logger.Warn("outgoing event missing eventID")
		return false
	}
	value, ok := obj.Int32("value")
	if !ok {
		g.count(func(s *Stats) { s.InvalidOutgoing++ })
		g.logger.Warn("outgoing event has invalid value", "event_id", eventID)
		return false
	}

	ts := g.now().UnixMilli()
	msg := payload.MustMarshal(payload.NewObject(
		payload.O("eventID", payload.String(eventID)),
		payload.O("value", payload.Int(int64(value))),
		payload.O("timestamp", payload.Int(ts)),
		payload.O("sender", payload.NewObject(
			payload.O("type", payload.String(g.deviceType)),
			payload.O("id", payload.String(g.deviceID)),
		)),
	))

	if _, err := g.broker.Publish(EventTopic(eventID), msg, true); err != nil {
		g.count(func(s *Stats) { s.InvalidOutgoing++ })
		g.logger.Warn("publish outgoing event failed", "event_id", eventID, "error", err)
		return false
	}
	g.count(func(s *Stats) { s.Published++ })

	if g.history != nil {
		rec := store.OutgoingEvent{
			ID:         g.ids.Generate(),
			Seq:        g.seq.Next(),
			EventID:    eventID,
			Value:      value,
			SenderType: g.deviceType,
			SenderID:   g.deviceID,
			Timestamp:  ts,
			Payload:    string(msg),
		}
		if err := g.history.AppendOutgoing(ctx, rec); err != nil {
			g.count(func(s *Stats) { s.HistoryErrors++ })
			g.logger.Warn("outgoing history append failed", "event_id", eventID, "error", err)
		}
	}
	return true
}

func (g *Gateway) count(fn func(*Stats)) {
	g.mu.Lock()
	fn(&g.stats)
	g.mu.Unlock()
}
