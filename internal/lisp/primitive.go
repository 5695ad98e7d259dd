package lisp

import (
	"errors"
	"fmt"
)

// Kind is the declared kind of a primitive argument or result.
type Kind int

const (
	// KindInt is a signed 32-bit integer.
	KindInt Kind = iota + 1
	// KindBool is nil (false) or t (true).
	KindBool
	// KindBoolOrInt accepts either a boolean or an integer.
	KindBoolOrInt
	// KindSymbol is a name: a symbol or a string.
	KindSymbol
	// KindCell is any value, passed through unevaluated by kind.
	KindCell
)

// String returns the kind name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "Int"
	case KindBool:
		return "Bool"
	case KindBoolOrInt:
		return "BoolOrInt"
	case KindSymbol:
		return "Symbol"
	case KindCell:
		return "Cell"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Descriptor describes a host-exposed primitive. Immutable once registered.
type Descriptor struct {
	Name   string
	Return Kind   // KindInt or KindBool
	Args   []Kind // ordered argument kinds
}

// Func implements a primitive. Arguments have already been checked against
// the Descriptor when it runs.
type Func func(c *Call) (Result, error)

// Primitive pairs a Descriptor with its implementation.
type Primitive struct {
	Descriptor
	Func Func
}

// Result is the typed value returned by a primitive.
type Result struct {
	kind Kind
	n    int32
}

// IntResult returns an Int result.
func IntResult(n int32) Result {
	return Result{kind: KindInt, n: n}
}

// BoolResult returns a Bool result.
func BoolResult(b bool) Result {
	if b {
		return Result{kind: KindBool, n: 1}
	}
	return Result{kind: KindBool}
}

// Kind returns the result kind.
func (r Result) Kind() Kind {
	return r.kind
}

// ErrRegistryFrozen is returned by Register after Freeze.
var ErrRegistryFrozen = errors.New("primitive registry is frozen")

// Registry holds primitive descriptors contributed by the host.
//
// Registration happens at startup, before the first VM is built. After
// Freeze the registry is read-only and is shared by every VM without locking.
type Registry struct {
	prims  []Primitive
	index  map[string]int
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds a primitive. Names must be unique and must not collide with
// a special form or builtin.
func (r *Registry) Register(d Descriptor, fn Func) error {
	if r.frozen {
		return fmt.Errorf("register %q: %w", d.Name, ErrRegistryFrozen)
	}
	if d.Name == "" {
		return fmt.Errorf("register: primitive name is required")
	}
	if fn == nil {
		return fmt.Errorf("register %q: func is required", d.Name)
	}
	if _, ok := r.index[d.Name]; ok {
		return fmt.Errorf("register %q: duplicate primitive", d.Name)
	}
	if isReserved(d.Name) {
		return fmt.Errorf("register %q: name is reserved by the language", d.Name)
	}
	if d.Return != KindInt && d.Return != KindBool {
		return fmt.Errorf("register %q: return kind must be Int or Bool, got %s", d.Name, d.Return)
	}
	for i, k := range d.Args {
		if k < KindInt || k > KindCell {
			return fmt.Errorf("register %q: argument %d has invalid kind %d", d.Name, i, int(k))
		}
	}

	args := make([]Kind, len(d.Args))
	copy(args, d.Args)
	d.Args = args

	r.index[d.Name] = len(r.prims)
	r.prims = append(r.prims, Primitive{Descriptor: d, Func: fn})
	return nil
}

// MustRegister is like Register but panics on error.
// Use only for primitives known to be valid at init time.
func (r *Registry) MustRegister(d Descriptor, fn Func) {
	if err := r.Register(d, fn); err != nil {
		panic(err)
	}
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Lookup returns the primitive registered under name.
func (r *Registry) Lookup(name string) (Primitive, bool) {
	i, ok := r.index[name]
	if !ok {
		return Primitive{}, false
	}
	return r.prims[i], true
}

// Primitives returns the registered primitives in registration order.
func (r *Registry) Primitives() []Primitive {
	out := make([]Primitive, len(r.prims))
	copy(out, r.prims)
	return out
}

// Len returns the number of registered primitives.
func (r *Registry) Len() int {
	return len(r.prims)
}

// Call is the context handed to a primitive Func.
type Call struct {
	vm   *VM
	desc *Descriptor
	args []Ref
}

// VM returns the machine the primitive runs on.
func (c *Call) VM() *VM {
	return c.vm
}

// Name returns the primitive name.
func (c *Call) Name() string {
	return c.desc.Name
}

// Len returns the number of arguments.
func (c *Call) Len() int {
	return len(c.args)
}

// Int returns argument i as an integer. Booleans read as 0 or 1, which only
// matters for KindBoolOrInt arguments.
func (c *Call) Int(i int) int32 {
	r := c.args[i]
	switch {
	case r == Nil:
		return 0
	case c.vm.heap.tag(r) == tagInt:
		return c.vm.heap.intValue(r)
	default:
		return 1
	}
}

// Bool returns argument i as a boolean: false only for nil or integer zero.
func (c *Call) Bool(i int) bool {
	r := c.args[i]
	if r == Nil {
		return false
	}
	if c.vm.heap.tag(r) == tagInt {
		return c.vm.heap.intValue(r) != 0
	}
	return true
}

// NameArg returns argument i as a name (symbol or string contents).
func (c *Call) NameArg(i int) string {
	return c.vm.nameOf(c.args[i])
}

// Cell returns argument i as a raw reference.
func (c *Call) Cell(i int) Ref {
	return c.args[i]
}

// invoke checks the arguments against the descriptor, runs the Func and
// converts its result into a cell.
func (vm *VM) invoke(p *Primitive, args []Ref) (Ref, error) {
	if len(args) != len(p.Args) {
		return Nil, newError(ErrCodeArity, "%s expects %d argument(s), got %d", p.Name, len(p.Args), len(args))
	}
	for i, k := range p.Args {
		if !vm.hasKind(args[i], k) {
			return Nil, newError(ErrCodeType, "%s argument %d: expected %s, got %s", p.Name, i+1, k, vm.kindName(args[i]))
		}
	}

	res, err := p.Func(&Call{vm: vm, desc: &p.Descriptor, args: args})
	if err != nil {
		return Nil, err
	}
	if res.kind != p.Return {
		return Nil, newError(ErrCodeType, "%s returned %s, declared %s", p.Name, res.kind, p.Return)
	}
	if res.kind == KindBool {
		return vm.Bool(res.n != 0), nil
	}
	return vm.NewInt(res.n)
}

func (vm *VM) hasKind(r Ref, k Kind) bool {
	switch k {
	case KindInt:
		return r != Nil && vm.heap.tag(r) == tagInt
	case KindBool:
		return r == Nil || r == vm.t
	case KindBoolOrInt:
		return r == Nil || r == vm.t || vm.heap.tag(r) == tagInt
	case KindSymbol:
		return r != Nil && (vm.heap.tag(r) == tagSymbol || vm.heap.tag(r) == tagString)
	case KindCell:
		return true
	default:
		return false
	}
}
