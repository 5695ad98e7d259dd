package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// inputGrace bounds how long shutdown waits for the input reader to finish.
const inputGrace = time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath string
	Database   string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the device runtime",
		Long: `Start the device runtime against an in-process broker.

The persisted script, if any, is restored first. Broker messages are then read
from stdin as JSON lines and every message the broker carries is printed:

  {"topic":"devices/<id>/script","payload":{"code":"(print 1)","persist":true}}
  {"topic":"events/door","payload":{"eventID":"door","value":1,"sender":{"id":"peer","type":"device"}},"retained":true}

Example:
  edgelisp run --config device.yaml
  edgelisp run --db /tmp/device.db --format json < messages.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to device config (YAML)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides store.path)")

	return cmd
}

func runDevice(opts *RunOptions, cmd *cobra.Command) error {
	logger := opts.newLogger(cmd.ErrOrStderr())

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Store.Path = opts.Database
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	dev, err := openDevice(ctx, cfg, deviceOptions{logger: logger})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start device", err)
	}
	defer func() {
		if closeErr := dev.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	out := &lineWriter{w: cmd.OutOrStdout(), format: opts.Format}
	unsubscribe, err := dev.broker.Subscribe("#", out.Write)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to subscribe output", err)
	}
	defer unsubscribe()

	if err := dev.gateway.Start(); err != nil {
		return WrapExitError(ExitFailure, "failed to start gateway", err)
	}

	if restored, err := dev.engine.Restore(ctx); err != nil {
		logger.Warn("restored script failed", "error", err)
	} else if restored {
		logger.Info("persisted script restored")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		n, err := publishLines(cmd.InOrStdin(), dev.broker, logger)
		if err != nil {
			logger.Warn("input stopped", "error", err)
		}
		logger.Debug("input exhausted", "messages", n)
	}()

	logger.Info("device started",
		"device", cfg.Device.ID,
		"db", cfg.Store.Path,
		"tick", cfg.TickInterval(),
	)

	runErr := dev.engine.Run(ctx)

	select {
	case <-inputDone:
	case <-time.After(inputGrace):
	}

	logStats(logger, dev)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "engine error", runErr)
	}
	logger.Info("device stopped gracefully")
	return nil
}

func logStats(logger *slog.Logger, dev *device) {
	es := dev.engine.Stats()
	gs := dev.gateway.Stats()
	logger.Info("device stats",
		"runs", es.Runs,
		"ignored", es.Ignored,
		"errors", es.Errors,
		"ticks", es.Ticks,
		"outgoing", es.Outgoing,
		"published", gs.Published,
		"incoming", gs.Incoming,
	)
}
