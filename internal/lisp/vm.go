package lisp

import (
	"fmt"
)

// Output receives text written by the print and log builtins.
type Output interface {
	Print(text string)
	Log(text string)
}

type discardOutput struct{}

func (discardOutput) Print(string) {}
func (discardOutput) Log(string)   {}

// builtinFunc implements a variadic builtin over raw references.
type builtinFunc func(vm *VM, args []Ref) (Ref, error)

// primEntry is what a tagPrim cell points at: either a builtin or a
// registered primitive.
type primEntry struct {
	name    string
	builtin builtinFunc
	prim    *Primitive
}

// VM is one bounded interpreter instance.
//
// A VM is built fresh for every script run and is not safe for concurrent
// use. All evaluation happens on the caller's goroutine.
type VM struct {
	heap    *arena
	symbols map[string]Ref
	special map[Ref]specialForm
	prims   []primEntry
	global  Ref // environment: (frame . parent), frame is an alist
	t       Ref

	out      Output
	quota    *quota
	maxDepth int
	running  bool
	closed   bool
}

// Option configures a VM.
type Option func(*config)

type config struct {
	arenaBytes int
	maxSteps   int
	maxDepth   int
	out        Output
	registries []*Registry
}

// WithArenaBytes sets the arena size in bytes.
//
// Default: 8000 bytes (DefaultArenaBytes), i.e. 1000 cells.
func WithArenaBytes(n int) Option {
	return func(c *config) {
		c.arenaBytes = n
	}
}

// WithMaxSteps sets the per-pass step quota. Zero disables the quota.
func WithMaxSteps(n int) Option {
	return func(c *config) {
		c.maxSteps = n
	}
}

// WithMaxDepth sets the per-pass nesting limit.
func WithMaxDepth(n int) Option {
	return func(c *config) {
		c.maxDepth = n
	}
}

// WithOutput routes print and log text.
func WithOutput(out Output) Option {
	return func(c *config) {
		c.out = out
	}
}

// WithPrimitives installs the primitives of each registry, in order.
func WithPrimitives(regs ...*Registry) Option {
	return func(c *config) {
		c.registries = append(c.registries, regs...)
	}
}

// New allocates an arena and installs constants, special forms, builtins and
// registered primitives.
//
// Fails if the arena is too small to hold the installed environment or if two
// registries contribute the same name.
func New(opts ...Option) (*VM, error) {
	cfg := config{
		arenaBytes: DefaultArenaBytes,
		maxSteps:   DefaultMaxSteps,
		maxDepth:   DefaultMaxDepth,
		out:        discardOutput{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	vm := &VM{
		heap:     newArena(cfg.arenaBytes),
		symbols:  make(map[string]Ref),
		special:  make(map[Ref]specialForm),
		out:      cfg.out,
		quota:    newQuota(cfg.maxSteps),
		maxDepth: cfg.maxDepth,
	}

	if err := vm.install(cfg.registries); err != nil {
		return nil, fmt.Errorf("install environment: %w", err)
	}
	return vm, nil
}

func (vm *VM) install(regs []*Registry) error {
	var err error
	if vm.global, err = vm.heap.alloc(tagCons, int32(Nil), int32(Nil)); err != nil {
		return err
	}

	// Constants.
	if vm.t, err = vm.intern("t"); err != nil {
		return err
	}
	if err := vm.define("t", vm.t); err != nil {
		return err
	}
	if err := vm.define("nil", Nil); err != nil {
		return err
	}

	for _, name := range specialFormNames {
		sym, err := vm.intern(name)
		if err != nil {
			return err
		}
		vm.special[sym] = specialForms[name]
	}

	for _, b := range builtins {
		if err := vm.bindPrim(primEntry{name: b.name, builtin: b.fn}); err != nil {
			return err
		}
	}

	seen := make(map[string]bool)
	for _, reg := range regs {
		for i := range reg.prims {
			p := &reg.prims[i]
			if seen[p.Name] {
				return fmt.Errorf("primitive %q registered twice", p.Name)
			}
			seen[p.Name] = true
			if err := vm.bindPrim(primEntry{name: p.Name, prim: p}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (vm *VM) bindPrim(e primEntry) error {
	idx := len(vm.prims)
	vm.prims = append(vm.prims, e)
	cellRef, err := vm.heap.alloc(tagPrim, int32(idx), int32(Nil))
	if err != nil {
		return err
	}
	return vm.define(e.name, cellRef)
}

// intern returns the unique symbol for name, allocating it on first use.
func (vm *VM) intern(name string) (Ref, error) {
	if sym, ok := vm.symbols[name]; ok {
		return sym, nil
	}
	str, err := vm.heap.allocString(name)
	if err != nil {
		return Nil, err
	}
	sym, err := vm.heap.alloc(tagSymbol, int32(str), int32(Nil))
	if err != nil {
		return Nil, err
	}
	vm.symbols[name] = sym
	return sym, nil
}

// define binds name in the global frame, replacing an existing binding.
func (vm *VM) define(name string, v Ref) error {
	sym, err := vm.intern(name)
	if err != nil {
		return err
	}
	return vm.bind(vm.global, sym, v)
}

// Eval reads src and evaluates each top-level form in order. Garbage is
// collected between forms. The value of the last form is returned.
func (vm *VM) Eval(src []byte) (Ref, error) {
	if err := vm.enter(); err != nil {
		return Nil, err
	}
	defer vm.leave()

	vm.quota.reset()
	rd := newReader(vm, src)
	result := Nil
	for {
		vm.heap.collect(vm.roots(result))
		form, ok, err := rd.next()
		if err != nil {
			return Nil, err
		}
		if !ok {
			return result, nil
		}
		result, err = vm.eval(form, vm.global, 0)
		if err != nil {
			return Nil, annotate(err, vm.Format(form))
		}
	}
}

// EvalString is Eval for string input.
func (vm *VM) EvalString(src string) (Ref, error) {
	return vm.Eval([]byte(src))
}

// EvalIn evaluates expr in env as a fresh pass: garbage is collected first
// (keeping expr and env alive) and the step quota is reset.
func (vm *VM) EvalIn(expr, env Ref) (Ref, error) {
	if err := vm.enter(); err != nil {
		return Nil, err
	}
	defer vm.leave()

	vm.heap.collect(vm.roots(expr, env))
	vm.quota.reset()
	result, err := vm.eval(expr, env, 0)
	if err != nil {
		return Nil, annotate(err, vm.Format(expr))
	}
	return result, nil
}

func (vm *VM) enter() error {
	if vm.closed {
		return newError(ErrCodeClosed, "vm has been destroyed")
	}
	if vm.running {
		return newError(ErrCodeReentrant, "evaluation already in progress")
	}
	vm.running = true
	return nil
}

func (vm *VM) leave() {
	vm.running = false
}

func (vm *VM) roots(extra ...Ref) []Ref {
	roots := make([]Ref, 0, len(vm.symbols)+len(extra)+1)
	roots = append(roots, vm.global)
	for _, sym := range vm.symbols {
		roots = append(roots, sym)
	}
	return append(roots, extra...)
}

// Collect runs the garbage collector, keeping extra alive in addition to the
// environment. It must not be called while an evaluation is running.
func (vm *VM) Collect(extra ...Ref) (int, error) {
	if vm.closed {
		return 0, newError(ErrCodeClosed, "vm has been destroyed")
	}
	if vm.running {
		return 0, newError(ErrCodeReentrant, "cannot collect during evaluation")
	}
	return vm.heap.collect(vm.roots(extra...)), nil
}

// GlobalEnv returns the global environment handle.
func (vm *VM) GlobalEnv() Ref {
	return vm.global
}

// SetGlobal binds name to v in the global environment.
func (vm *VM) SetGlobal(name string, v Ref) error {
	if vm.closed {
		return newError(ErrCodeClosed, "vm has been destroyed")
	}
	return vm.define(name, v)
}

// Global returns the global binding of name.
func (vm *VM) Global(name string) (Ref, bool) {
	sym, ok := vm.symbols[name]
	if !ok {
		return Nil, false
	}
	return vm.lookup(vm.global, sym)
}

// Bool returns t or nil.
func (vm *VM) Bool(b bool) Ref {
	if b {
		return vm.t
	}
	return Nil
}

// NewInt allocates an integer cell.
func (vm *VM) NewInt(n int32) (Ref, error) {
	return vm.heap.alloc(tagInt, n, int32(Nil))
}

// NewString allocates a string.
func (vm *VM) NewString(s string) (Ref, error) {
	return vm.heap.allocString(s)
}

// Int returns the value of an integer cell.
func (vm *VM) Int(r Ref) (int32, bool) {
	if r == Nil || vm.heap.tag(r) != tagInt {
		return 0, false
	}
	return vm.heap.intValue(r), true
}

// Truthy reports whether r counts as true: anything but nil.
func (vm *VM) Truthy(r Ref) bool {
	return r != Nil
}

// Running reports whether an evaluation is in progress.
func (vm *VM) Running() bool {
	return vm.running
}

// Close destroys the VM and releases its arena. Idempotent.
func (vm *VM) Close() {
	if vm.closed {
		return
	}
	vm.closed = true
	vm.heap = nil
	vm.symbols = nil
	vm.special = nil
	vm.prims = nil
	vm.global = Nil
}

// Closed reports whether Close has been called.
func (vm *VM) Closed() bool {
	return vm.closed
}

// Stats describes arena usage.
type Stats struct {
	ArenaBytes  int `json:"arena_bytes"`
	Cells       int `json:"cells"`
	Used        int `json:"used"`
	Free        int `json:"free"`
	Collections int `json:"collections"`
}

// Stats returns current arena usage.
func (vm *VM) Stats() Stats {
	if vm.closed {
		return Stats{}
	}
	cells := len(vm.heap.cells) - 1
	return Stats{
		ArenaBytes:  len(vm.heap.cells) * CellSize,
		Cells:       cells,
		Used:        vm.heap.used,
		Free:        cells - vm.heap.used,
		Collections: vm.heap.collections,
	}
}

// nameOf returns the name held by a symbol or string cell.
func (vm *VM) nameOf(r Ref) string {
	switch vm.heap.tag(r) {
	case tagSymbol:
		return vm.heap.stringValue(vm.heap.car(r))
	case tagString:
		return vm.heap.stringValue(r)
	default:
		return ""
	}
}

func (vm *VM) kindName(r Ref) string {
	if r == Nil {
		return "nil"
	}
	switch vm.heap.tag(r) {
	case tagCons:
		return "list"
	case tagInt:
		return "integer"
	case tagSymbol:
		return "symbol"
	case tagString:
		return "string"
	case tagLambda:
		return "lambda"
	case tagPrim:
		return "primitive"
	default:
		return "unknown"
	}
}

// annotate attaches the failing top-level form to a script error.
func annotate(err error, form string) error {
	le, ok := err.(*Error)
	if !ok || le.Form != "" {
		return err
	}
	cp := *le
	cp.Form = form
	return &cp
}
