package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/edgelisp/internal/engine"
	"github.com/roach88/edgelisp/internal/gateway"
	"github.com/roach88/edgelisp/internal/testutil"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	ConfigPath string
	Ticks      int
	TickMS     int
}

// ExecResult is the JSON payload of the exec command.
type ExecResult struct {
	Messages []BrokerLine `json:"messages"`
	Stats    engine.Stats `json:"stats"`
	Error    string       `json:"error,omitempty"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <script>",
		Short: "Run a script in a throwaway device",
		Long: `Run a script once in a fresh device on a manual clock.

The script is evaluated, then the scheduler is ticked --ticks times, moving
the clock --tick-ms milliseconds before each tick. Every broker message the
device produces (output, errors, outgoing events) is printed. Nothing is
persisted. Use "-" to read the script from stdin.

Example:
  edgelisp exec blink.lisp --ticks 5
  edgelisp exec - --ticks 3 --tick-ms 100 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execScript(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to device config (YAML) for runtime limits")
	cmd.Flags().IntVar(&opts.Ticks, "ticks", 0, "scheduler ticks to run after the script")
	cmd.Flags().IntVar(&opts.TickMS, "tick-ms", 10, "clock advance per tick in milliseconds")

	return cmd
}

func execScript(opts *ExecOptions, path string, cmd *cobra.Command) error {
	if opts.Ticks < 0 || opts.TickMS < 0 {
		return NewExitError(ExitCommandError, "--ticks and --tick-ms must not be negative")
	}

	code, err := readScript(path, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read script", err)
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	clock := testutil.NewManualClock(time.Time{})
	dev, err := openDevice(ctx, cfg, deviceOptions{
		now:       clock.Now,
		ids:       testutil.NewSequentialIDGenerator("msg"),
		logger:    opts.newLogger(cmd.ErrOrStderr()),
		ephemeral: true,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start device", err)
	}
	defer dev.Close()

	var messages []gateway.Message
	if _, err := dev.broker.Subscribe("#", func(m gateway.Message) {
		messages = append(messages, m)
	}); err != nil {
		return WrapExitError(ExitFailure, "failed to subscribe output", err)
	}
	if err := dev.gateway.Start(); err != nil {
		return WrapExitError(ExitFailure, "failed to start gateway", err)
	}

	var scriptErr error
	if _, err := dev.engine.LoadScript(ctx, code, false, false); err != nil {
		scriptErr = err
	}
	step := time.Duration(opts.TickMS) * time.Millisecond
	for i := 0; i < opts.Ticks; i++ {
		dev.engine.Tick(clock.Advance(step))
		dev.engine.ProcessPending(ctx)
	}

	stats := dev.engine.Stats()
	if scriptErr == nil && stats.Failed {
		scriptErr = fmt.Errorf("script failed during a scheduled pass")
	}

	if opts.Format == "json" {
		result := ExecResult{
			Messages: make([]BrokerLine, len(messages)),
			Stats:    stats,
		}
		for i, m := range messages {
			result.Messages[i] = newBrokerLine(m)
		}
		if scriptErr != nil {
			result.Error = scriptErr.Error()
		}
		f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		out := &lineWriter{w: cmd.OutOrStdout(), format: opts.Format}
		for _, m := range messages {
			out.Write(m)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "runs=%d ticks=%d outgoing=%d state=%s armed=%t\n",
			stats.Runs, stats.Ticks, stats.Outgoing, stats.State, stats.Armed)
	}

	if scriptErr != nil {
		return WrapExitError(ExitFailure, "script failed", scriptErr)
	}
	return nil
}

func readScript(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
