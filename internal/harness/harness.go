package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/edgelisp/internal/bus"
	"github.com/roach88/edgelisp/internal/engine"
	"github.com/roach88/edgelisp/internal/gateway"
	"github.com/roach88/edgelisp/internal/payload"
	"github.com/roach88/edgelisp/internal/store"
	"github.com/roach88/edgelisp/internal/testutil"
)

// traceChannelCapacity gives scenarios headroom over the device default.
const traceChannelCapacity = 256

// Harness is one scenario execution: a complete device stack on a manual
// clock.
type Harness struct {
	device  string
	store   *store.Store
	bus     *bus.Bus
	broker  *gateway.Broker
	gateway *gateway.Gateway
	engine  *engine.Engine
	clock   *testutil.ManualClock
	result  *Result
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Build the device stack
// 2. Execute steps, draining queued work after each
// 3. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(scenario, st)
	if err != nil {
		return nil, err
	}
	defer h.gateway.Stop()

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	h.result.Stats = h.engine.Stats()
	actx := &AssertionContext{
		Ctx:    ctx,
		Store:  st,
		Engine: h.engine,
		Device: h.device,
	}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func newHarness(scenario *Scenario, st *store.Store) (*Harness, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	device := scenario.Device
	if device == "" {
		device = DefaultDevice
	}

	clock := testutil.NewManualClock(time.Time{})
	seq := engine.NewClock()
	b := bus.New(bus.WithCapacity(traceChannelCapacity), bus.WithLogger(logger))

	opts := []engine.Option{
		engine.WithClock(clock.Now),
		engine.WithSequencer(seq),
		engine.WithStore(st),
		engine.WithLogger(logger),
	}
	if n := scenario.Runtime.ArenaBytes; n > 0 {
		opts = append(opts, engine.WithArenaBytes(n))
	}
	if n := scenario.Runtime.MaxSteps; n > 0 {
		opts = append(opts, engine.WithMaxSteps(n))
	}
	if n := scenario.Runtime.MaxDepth; n > 0 {
		opts = append(opts, engine.WithMaxDepth(n))
	}
	eng, err := engine.New(b, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	h := &Harness{
		device: device,
		store:  st,
		bus:    b,
		broker: gateway.NewBroker(gateway.WithBrokerLogger(logger)),
		engine: eng,
		clock:  clock,
		result: NewResult(),
	}

	if _, err := h.broker.Subscribe("#", func(m gateway.Message) {
		h.result.AddTrace(m.Topic, m.Payload)
	}); err != nil {
		return nil, err
	}

	h.gateway, err = gateway.New(h.broker, b, eng, device,
		gateway.WithClock(clock.Now),
		gateway.WithSequencer(seq),
		gateway.WithIDGenerator(testutil.NewSequentialIDGenerator("msg")),
		gateway.WithHistory(st),
		gateway.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	if err := h.gateway.Start(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	switch {
	case step.Script != nil:
		msg := payload.MustMarshal(payload.NewObject(
			payload.O("code", payload.String(*step.Script)),
			payload.O("persist", payload.Bool(step.Persist)),
		))
		if _, err := h.broker.Publish(gateway.ScriptTopic(h.device), msg, true); err != nil {
			return err
		}

	case step.Event != nil:
		ev := step.Event
		sender := ev.Sender
		if sender == "" {
			sender = DefaultPeer
		}
		msg := payload.MustMarshal(payload.NewObject(
			payload.O("eventID", payload.String(ev.ID)),
			payload.O("value", payload.Int(int64(ev.Value))),
			payload.O("timestamp", payload.Int(h.clock.Now().UnixMilli())),
			payload.O("sender", payload.NewObject(
				payload.O("type", payload.String(gateway.DefaultDeviceType)),
				payload.O("id", payload.String(sender)),
			)),
		))
		if _, err := h.broker.Publish(gateway.EventTopic(ev.ID), msg, ev.Retained); err != nil {
			return err
		}

	case step.Tick != nil:
		for i := 0; i < step.Tick.Count; i++ {
			h.engine.Tick(h.clock.Advance(time.Duration(step.Tick.AdvanceMS) * time.Millisecond))
			h.engine.ProcessPending(ctx)
		}
		return nil
	}

	h.engine.ProcessPending(ctx)
	return nil
}
