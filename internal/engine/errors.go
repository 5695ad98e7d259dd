package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/edgelisp/internal/lisp"
)

// ErrStopped is returned by Run once a previous Run has returned.
var ErrStopped = errors.New("engine stopped")

// Phase names the evaluation pass a ScriptError came from.
type Phase string

const (
	// PhaseLoad is the initial evaluation of a script.
	PhaseLoad Phase = "load"
	// PhaseTask is a continuation invocation from the task bridge.
	PhaseTask Phase = "task"
	// PhaseBuild is machine construction, before any script runs.
	PhaseBuild Phase = "build"
)

// ScriptError reports a failed evaluation pass. The VM that produced it has
// already been destroyed and the error text sent on the error channel.
type ScriptError struct {
	// Phase identifies the failing pass.
	Phase Phase

	// Checksum identifies the script.
	Checksum uint32

	// Err is the underlying error, usually a *lisp.Error.
	Err error
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %08x %s: %v", e.Checksum, e.Phase, e.Err)
}

// Unwrap returns the underlying error.
func (e *ScriptError) Unwrap() error {
	return e.Err
}

// IsScriptError returns true if err came from a failed script pass.
// Uses errors.As to handle wrapped errors.
func IsScriptError(err error) bool {
	var se *ScriptError
	return errors.As(err, &se)
}

// IsReentrant returns true if err reports an evaluation started while
// another was running.
func IsReentrant(err error) bool {
	return lisp.CodeOf(err) == lisp.ErrCodeReentrant
}
