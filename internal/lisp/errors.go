package lisp

import (
	"errors"
	"fmt"
)

// Error is raised by reading or evaluating a script. It is always fatal to
// the evaluation pass that produced it.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Form is the printed form being evaluated, when known.
	Form string
}

// ErrorCode categorizes script errors.
type ErrorCode string

const (
	// ErrCodeSyntax indicates malformed script text.
	ErrCodeSyntax ErrorCode = "SYNTAX"

	// ErrCodeUnbound indicates a reference to an undefined symbol.
	ErrCodeUnbound ErrorCode = "UNBOUND"

	// ErrCodeType indicates a value of the wrong kind.
	ErrCodeType ErrorCode = "TYPE"

	// ErrCodeArity indicates a call with the wrong number of arguments.
	ErrCodeArity ErrorCode = "ARITY"

	// ErrCodeDivideByZero indicates integer division or modulo by zero.
	ErrCodeDivideByZero ErrorCode = "DIVIDE_BY_ZERO"

	// ErrCodeOutOfMemory indicates the arena has no free cells left.
	ErrCodeOutOfMemory ErrorCode = "OUT_OF_MEMORY"

	// ErrCodeStepsExceeded indicates the pass exceeded its step quota.
	ErrCodeStepsExceeded ErrorCode = "STEPS_EXCEEDED"

	// ErrCodeDepthExceeded indicates evaluation nested deeper than allowed.
	ErrCodeDepthExceeded ErrorCode = "DEPTH_EXCEEDED"

	// ErrCodeUser indicates the script called (error ...).
	ErrCodeUser ErrorCode = "USER"

	// ErrCodeReentrant indicates an evaluation was started while another
	// was still running on the same VM.
	ErrCodeReentrant ErrorCode = "REENTRANT"

	// ErrCodeClosed indicates use of a destroyed VM.
	ErrCodeClosed ErrorCode = "CLOSED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Form != "" {
		return fmt.Sprintf("%s: %s (in %s)", e.Code, e.Message, e.Form)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Errorf builds a script error. Host primitives use it to fail the current
// evaluation with a specific code.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return newError(code, format, args...)
}

// CodeOf returns the ErrorCode carried by err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsOutOfMemory reports whether err is an arena exhaustion error.
func IsOutOfMemory(err error) bool {
	return CodeOf(err) == ErrCodeOutOfMemory
}

// IsStepsExceeded reports whether err is a step quota error.
func IsStepsExceeded(err error) bool {
	return CodeOf(err) == ErrCodeStepsExceeded
}

// IsSyntax reports whether err is a reader error.
func IsSyntax(err error) bool {
	return CodeOf(err) == ErrCodeSyntax
}
