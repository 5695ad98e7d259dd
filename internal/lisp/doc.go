// Package lisp implements the bounded interpreter machine that runs device
// scripts.
//
// A VM owns a fixed-size arena of cells. Every value a script can touch
// (integers, strings, symbols, lists, closures, primitive handles) lives in
// that arena and is addressed by a Ref, an index into it. Nothing outside this
// package sees cell storage directly.
//
// MEMORY MODEL:
//
// The arena is sized in bytes (DefaultArenaBytes) and holds ArenaBytes/CellSize
// cells. Allocation past the last free cell fails with an OUT_OF_MEMORY error
// instead of growing. Garbage is reclaimed by a mark/sweep collector that only
// runs at safe points: between top-level forms of a script and before each
// evaluation submitted through EvalIn. No collection happens while an
// evaluation is on the Go stack, so Refs held by the evaluator stay valid.
// Roots are the global environment, the symbol table and any Refs passed
// explicitly to Collect.
//
// EVALUATION:
//
// Evaluation is a plain recursive walk over cons cells. Each pass is bounded
// by a step quota and a depth limit. Errors are returned as *Error with a
// Code; the VM never panics on script input.
//
// PRIMITIVES:
//
// Host code contributes callable operations through a Registry of
// Descriptors (name, return kind, argument kinds) paired with a Func. The VM
// checks arity and argument kinds before invoking a Func and checks the
// result kind after.
package lisp
