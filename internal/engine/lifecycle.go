package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/edgelisp/internal/bus"
	"github.com/roach88/edgelisp/internal/lisp"
	"github.com/roach88/edgelisp/internal/payload"
)

// State is the lifecycle state of the engine's machine.
type State int

const (
	// StateEmpty means no machine has been built since boot.
	StateEmpty State = iota
	// StateCreated means a machine exists and is idle.
	StateCreated
	// StateRunning means an evaluation pass is in progress.
	StateRunning
	// StateDestroyed means the last machine was torn down.
	StateDestroyed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Globals mirrored from the continuation. Both are defined when the machine
// is built so later updates never allocate.
const (
	globalTaskExpr = "*task-expr*"
	globalTaskPass = "*task-pass*"
)

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// Armed reports whether a continuation is scheduled for re-evaluation.
func (e *Engine) Armed() bool {
	return e.bridge.IsAttached()
}

// VM returns the live machine, or nil. Diagnostics only.
func (e *Engine) VM() *lisp.VM {
	return e.vm
}

// RunCode replaces the current script unconditionally and evaluates code once.
//
// Any pending re-evaluation is detached and the live machine destroyed before
// a fresh one is built. The mailbox is cleaned and a refresh requested so
// retained events are redelivered before the script runs. If the script does
// not arm a task, the machine is destroyed when the pass ends.
//
// Script failures are routed to the error channel and also returned as a
// *ScriptError.
func (e *Engine) RunCode(code []byte) error {
	if e.vm != nil && e.vm.Running() {
		return lisp.Errorf(lisp.ErrCodeReentrant, "script replaced during evaluation")
	}

	e.bridge.Detach()
	e.destroyVM("replaced")

	checksum := payload.Checksum(code)
	if err := e.buildVM(); err != nil {
		e.fail(err)
		return &ScriptError{Phase: PhaseBuild, Checksum: checksum, Err: err}
	}

	e.mailbox.Clean()
	e.refreshing.Store(true)
	e.bus.EmitEvent(bus.TopicEvents, bus.MsgRefreshEventsRequest)
	e.refreshing.Store(false)
	e.DrainIncoming()

	e.stats.runs++
	seq := e.clock.Next()
	e.logger.Debug("running script", "checksum", fmt.Sprintf("%08x", checksum), "seq", seq, "bytes", len(code))

	e.state = StateRunning
	_, err := e.vm.Eval(code)
	if err != nil {
		e.fail(err)
		return &ScriptError{Phase: PhaseLoad, Checksum: checksum, Err: err}
	}

	if !e.bridge.IsAttached() {
		e.destroyVM("completed")
		return nil
	}
	e.state = StateCreated
	return nil
}

// StopScript destroys the live machine and detaches any pending re-evaluation
// without touching the script record.
func (e *Engine) StopScript() {
	e.bridge.Detach()
	e.destroyVM("stopped")
}

func (e *Engine) buildVM() error {
	regs := append([]*lisp.Registry{e.runtimePrims}, e.hostPrims...)
	vm, err := lisp.New(
		lisp.WithArenaBytes(e.arenaBytes),
		lisp.WithMaxSteps(e.maxSteps),
		lisp.WithMaxDepth(e.maxDepth),
		lisp.WithOutput(&outputRouter{e: e}),
		lisp.WithPrimitives(regs...),
	)
	if err != nil {
		return err
	}
	if err := vm.SetGlobal(globalTaskExpr, lisp.Nil); err != nil {
		vm.Close()
		return err
	}
	if err := vm.SetGlobal(globalTaskPass, lisp.Nil); err != nil {
		vm.Close()
		return err
	}

	e.vm = vm
	e.cont = Continuation{}
	e.state = StateCreated
	return nil
}

func (e *Engine) destroyVM(reason string) {
	if e.vm == nil {
		return
	}
	stats := e.vm.Stats()
	e.vm.Close()
	e.vm = nil
	e.cont = Continuation{}
	e.state = StateDestroyed
	e.logger.Debug("vm destroyed", "reason", reason, "used", stats.Used, "collections", stats.Collections)
}

// fail routes a script error: error channel, failed record, teardown.
func (e *Engine) fail(err error) {
	e.stats.errors++
	e.record.Failed = true

	e.sendOutput(bus.ChannelError, bus.MsgError, err.Error())

	e.bridge.Detach()
	e.destroyVM("error")

	var le *lisp.Error
	if errors.As(err, &le) {
		e.logger.Warn("script failed", "code", le.Code, "error", le.Message)
		return
	}
	e.logger.Warn("script failed", "error", err)
}

func (e *Engine) sendOutput(ch bus.Channel, msg bus.Message, text string) {
	if !e.bus.SendDataToChannel(ch, []byte(text)) {
		e.stats.outputDropped++
		return
	}
	e.bus.EmitEvent(bus.TopicScript, msg)
}

// outputRouter sends print and log text to the bus.
type outputRouter struct {
	e *Engine
}

func (o *outputRouter) Print(text string) {
	o.e.sendOutput(bus.ChannelStdout, bus.MsgAdded, text)
}

func (o *outputRouter) Log(text string) {
	o.e.sendOutput(bus.ChannelLog, bus.MsgLog, text)
}
