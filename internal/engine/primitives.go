package engine

import (
	"time"

	"github.com/roach88/edgelisp/internal/lisp"
)

// Runtime primitive names. The underscore spellings are aliases.
const (
	PrimTask           = "task"
	PrimEventAvailable = "event-available"
	PrimPopEvent       = "pop-event"
	PrimPushEvent      = "push-event"
)

var primAliases = map[string]string{
	PrimEventAvailable: "event_available",
	PrimPopEvent:       "pop_event",
	PrimPushEvent:      "push_event",
}

// newRuntimeRegistry builds the primitives that close over the engine:
// scheduling, the mailbox and the outgoing publisher.
func (e *Engine) newRuntimeRegistry() *lisp.Registry {
	reg := lisp.NewRegistry()

	register := func(d lisp.Descriptor, fn lisp.Func) {
		reg.MustRegister(d, fn)
		if alias, ok := primAliases[d.Name]; ok {
			d.Name = alias
			reg.MustRegister(d, fn)
		}
	}

	// (task repeat period-ms expr)
	register(lisp.Descriptor{
		Name:   PrimTask,
		Return: lisp.KindBool,
		Args:   []lisp.Kind{lisp.KindInt, lisp.KindInt, lisp.KindCell},
	}, func(c *lisp.Call) (lisp.Result, error) {
		repeat, period := c.Int(0), c.Int(1)
		if repeat < 0 {
			return lisp.Result{}, lisp.Errorf(lisp.ErrCodeType, "task: repeat count must not be negative, got %d", repeat)
		}
		if period < 0 {
			return lisp.Result{}, lisp.Errorf(lisp.ErrCodeType, "task: period must not be negative, got %d", period)
		}
		if err := e.arm(c.Cell(2), time.Duration(period)*time.Millisecond, int(repeat)); err != nil {
			return lisp.Result{}, err
		}
		return lisp.BoolResult(true), nil
	})

	// (event-available id)
	register(lisp.Descriptor{
		Name:   PrimEventAvailable,
		Return: lisp.KindBool,
		Args:   []lisp.Kind{lisp.KindSymbol},
	}, func(c *lisp.Call) (lisp.Result, error) {
		return lisp.BoolResult(e.mailbox.IsEventAvailable(c.NameArg(0))), nil
	})

	// (pop-event id) returns 0 when nothing is queued.
	register(lisp.Descriptor{
		Name:   PrimPopEvent,
		Return: lisp.KindInt,
		Args:   []lisp.Kind{lisp.KindSymbol},
	}, func(c *lisp.Call) (lisp.Result, error) {
		ev := e.mailbox.PopEvent(c.NameArg(0))
		return lisp.IntResult(ev.Value), nil
	})

	// (push-event id value)
	register(lisp.Descriptor{
		Name:   PrimPushEvent,
		Return: lisp.KindBool,
		Args:   []lisp.Kind{lisp.KindSymbol, lisp.KindBoolOrInt},
	}, func(c *lisp.Call) (lisp.Result, error) {
		return lisp.BoolResult(e.PushOutgoingEvent(c.NameArg(0), c.Int(1))), nil
	})

	reg.Freeze()
	return reg
}
