package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/edgelisp/internal/bus"
	"github.com/roach88/edgelisp/internal/engine"
	"github.com/roach88/edgelisp/internal/gateway"
	"github.com/roach88/edgelisp/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Topic, event.Payload)
		}
	}
	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx    context.Context
	Store  *store.Store
	Engine *engine.Engine
	Device string
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOutgoingCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: outgoing_count requires database context", i)
			} else {
				err = assertOutgoingCount(actx.Ctx, actx.Store, result.Trace, assertion)
			}
		case AssertVMState:
			err = assertVMState(result, assertion)
		case AssertStdoutContains:
			err = assertOutputContains(result, deviceOf(actx), bus.ChannelStdout, assertion)
		case AssertErrorContains:
			err = assertOutputContains(result, deviceOf(actx), bus.ChannelError, assertion)
		case AssertRuns:
			err = assertCount(AssertRuns, result.Stats.Runs, assertion.Count)
		case AssertIgnored:
			err = assertCount(AssertIgnored, result.Stats.Ignored, assertion.Count)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func deviceOf(actx *AssertionContext) string {
	if actx == nil || actx.Device == "" {
		return DefaultDevice
	}
	return actx.Device
}

// assertOutgoingCount checks the recorded outgoing history for an event id.
func assertOutgoingCount(ctx context.Context, st *store.Store, trace []TraceEvent, a Assertion) error {
	if ctx == nil {
		ctx = context.Background()
	}
	events, err := st.ReadOutgoing(ctx, a.Event, 0)
	if err != nil {
		return fmt.Errorf("outgoing_count: %w", err)
	}
	if len(events) != a.Count {
		return &AssertionError{
			Type:     AssertOutgoingCount,
			Expected: fmt.Sprintf("%d outgoing %q events", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d", len(events)),
			Trace:    trace,
		}
	}
	return nil
}

func assertVMState(result *Result, a Assertion) error {
	if result.Stats.State != a.State {
		return &AssertionError{
			Type:     AssertVMState,
			Expected: a.State,
			Actual:   result.Stats.State,
		}
	}
	return nil
}

func assertOutputContains(result *Result, device string, ch bus.Channel, a Assertion) error {
	lines := result.Published(gateway.OutputTopic(device, ch))
	for _, line := range lines {
		if strings.Contains(line, a.Text) {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s output containing %q", ch, a.Text),
		Actual:   fmt.Sprintf("%q", lines),
	}
}

func assertCount(kind string, actual, expected int) error {
	if actual != expected {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%d", expected),
			Actual:   fmt.Sprintf("%d", actual),
		}
	}
	return nil
}
