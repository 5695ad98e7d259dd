package engine

import (
	"time"

	"github.com/roach88/edgelisp/internal/lisp"
)

// Continuation is the work a script asked to be re-evaluated: an expression
// and the environment it runs in. Both are references into the live VM and
// are meaningless once it is destroyed.
type Continuation struct {
	Expr lisp.Ref
	Env  lisp.Ref
}

// Valid reports whether a continuation has been captured.
func (c Continuation) Valid() bool {
	return c.Env != lisp.Nil
}

// arm captures expr as the continuation and schedules it every period, repeat
// times (0 means until replaced). Arming again replaces the schedule.
func (e *Engine) arm(expr lisp.Ref, period time.Duration, repeat int) error {
	if err := e.vm.SetGlobal(globalTaskExpr, expr); err != nil {
		return err
	}
	e.cont = Continuation{Expr: expr, Env: e.vm.GlobalEnv()}
	e.bridge.Attach(period, repeat)
	e.logger.Debug("continuation armed", "period", period, "repeat", repeat)
	return nil
}

// runContinuation is the bridge task callback. The scheduler has already
// booked this invocation, so IsAttached is false on the final one.
func (e *Engine) runContinuation(now time.Time) {
	if e.vm == nil || !e.cont.Valid() {
		e.bridge.Detach()
		return
	}
	if e.vm.Running() {
		e.logger.Warn("continuation skipped: evaluation in progress")
		return
	}

	final := !e.bridge.IsAttached()
	if err := e.vm.SetGlobal(globalTaskPass, e.vm.Bool(!final)); err != nil {
		e.fail(err)
		return
	}

	e.stats.continuations++
	seq := e.clock.Next()
	e.logger.Debug("continuation pass", "seq", seq, "final", final, "now", now)

	e.state = StateRunning
	if _, err := e.vm.EvalIn(e.cont.Expr, e.cont.Env); err != nil {
		e.logger.Debug("continuation failed", "phase", PhaseTask, "checksum", e.record.Checksum)
		e.fail(err)
		return
	}

	if !e.bridge.IsAttached() {
		e.destroyVM("task exhausted")
		return
	}
	e.state = StateCreated
}
