package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/edgelisp/internal/bus"
	"github.com/roach88/edgelisp/internal/config"
	"github.com/roach88/edgelisp/internal/engine"
	"github.com/roach88/edgelisp/internal/gateway"
	"github.com/roach88/edgelisp/internal/mailbox"
	"github.com/roach88/edgelisp/internal/store"
)

// device is one runtime stack wired to an in-process broker.
type device struct {
	cfg     config.Config
	store   *store.Store // nil when persistence is disabled
	bus     *bus.Bus
	broker  *gateway.Broker
	engine  *engine.Engine
	gateway *gateway.Gateway
}

// deviceOptions overrides the ambient parts of a device. Zero values select
// wall time, UUIDv7 message ids and the store configured in cfg.
type deviceOptions struct {
	now       func() time.Time
	ids       gateway.IDGenerator
	logger    *slog.Logger
	ephemeral bool // ignore cfg.Store
}

// openDevice builds the stack described by cfg. The gateway is not started.
func openDevice(ctx context.Context, cfg config.Config, o deviceOptions) (*device, error) {
	if o.now == nil {
		o.now = time.Now
	}
	if o.ids == nil {
		o.ids = gateway.UUIDv7Generator{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	d := &device{cfg: cfg}
	seq := engine.NewClock()

	if !o.ephemeral && cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		d.store = st

		last, err := st.LastOutgoingSeq(ctx)
		if err != nil {
			st.Close()
			return nil, err
		}
		seq.Observe(last)
	}

	d.bus = bus.New(
		bus.WithCapacity(cfg.Bus.ChannelCapacity),
		bus.WithLogger(o.logger),
	)
	mb := mailbox.New(
		mailbox.WithCapacity(cfg.Runtime.QueueCapacity),
		mailbox.WithTTL(cfg.EventTTL()),
		mailbox.WithClock(o.now),
		mailbox.WithLogger(o.logger),
	)

	engOpts := []engine.Option{
		engine.WithArenaBytes(cfg.Runtime.ArenaBytes),
		engine.WithMaxSteps(cfg.Runtime.MaxSteps),
		engine.WithMaxDepth(cfg.Runtime.MaxDepth),
		engine.WithMailbox(mb),
		engine.WithClock(o.now),
		engine.WithSequencer(seq),
		engine.WithTickInterval(cfg.TickInterval()),
		engine.WithCleanupInterval(cfg.CleanupInterval()),
		engine.WithLogger(o.logger),
	}
	gwOpts := []gateway.Option{
		gateway.WithDeviceType(cfg.Device.Type),
		gateway.WithSequencer(seq),
		gateway.WithIDGenerator(o.ids),
		gateway.WithClock(o.now),
		gateway.WithLogger(o.logger),
	}
	if d.store != nil {
		engOpts = append(engOpts, engine.WithStore(d.store))
		gwOpts = append(gwOpts, gateway.WithHistory(d.store))
	}

	eng, err := engine.New(d.bus, engOpts...)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	d.engine = eng

	d.broker = gateway.NewBroker(gateway.WithBrokerLogger(o.logger))
	d.gateway, err = gateway.New(d.broker, d.bus, eng, cfg.Device.ID, gwOpts...)
	if err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Close stops the gateway and closes the store.
func (d *device) Close() error {
	if d.gateway != nil {
		d.gateway.Stop()
	}
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// loadConfig reads path, or builds the default config when path is empty.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Parse(nil)
	}
	return config.Load(path)
}
