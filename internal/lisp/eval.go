package lisp

import "sort"

type specialForm func(vm *VM, args, env Ref, depth int) (Ref, error)

var specialForms = map[string]specialForm{
	"quote":  evalQuote,
	"if":     evalIf,
	"cond":   evalCond,
	"and":    evalAnd,
	"or":     evalOr,
	"progn":  evalProgn,
	"define": evalDefine,
	"setq":   evalSetq,
	"let":    evalLet,
	"lambda": evalLambda,
	"when":   evalWhen,
	"unless": evalUnless,
}

// specialFormNames lists specialForms keys in a stable order so arena layout
// does not depend on map iteration.
var specialFormNames = func() []string {
	names := make([]string, 0, len(specialForms))
	for name := range specialForms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()

// isReserved reports whether name is a special form, builtin or constant.
func isReserved(name string) bool {
	if name == "t" || name == "nil" {
		return true
	}
	if _, ok := specialForms[name]; ok {
		return true
	}
	for _, b := range builtins {
		if b.name == name {
			return true
		}
	}
	return false
}

func (vm *VM) eval(expr, env Ref, depth int) (Ref, error) {
	if err := vm.quota.step(); err != nil {
		return Nil, err
	}
	if depth > vm.maxDepth {
		return Nil, newError(ErrCodeDepthExceeded, "evaluation nested deeper than %d", vm.maxDepth)
	}
	if expr == Nil {
		return Nil, nil
	}

	h := vm.heap
	switch h.tag(expr) {
	case tagSymbol:
		v, ok := vm.lookup(env, expr)
		if !ok {
			return Nil, newError(ErrCodeUnbound, "unbound symbol %s", vm.nameOf(expr))
		}
		return v, nil

	case tagCons:
		head := h.car(expr)
		if head != Nil && h.tag(head) == tagSymbol {
			if sf, ok := vm.special[head]; ok {
				return sf(vm, h.cdr(expr), env, depth+1)
			}
		}
		fn, err := vm.eval(head, env, depth+1)
		if err != nil {
			return Nil, err
		}
		var args []Ref
		for a := h.cdr(expr); a != Nil; a = h.cdr(a) {
			if h.tag(a) != tagCons {
				return Nil, newError(ErrCodeSyntax, "improper argument list")
			}
			v, err := vm.eval(h.car(a), env, depth+1)
			if err != nil {
				return Nil, err
			}
			args = append(args, v)
		}
		return vm.apply(fn, args, depth+1)

	default:
		// Integers, strings, closures and primitives evaluate to themselves.
		return expr, nil
	}
}

func (vm *VM) apply(fn Ref, args []Ref, depth int) (Ref, error) {
	if fn == Nil {
		return Nil, newError(ErrCodeType, "nil is not a function")
	}
	h := vm.heap
	switch h.tag(fn) {
	case tagPrim:
		e := &vm.prims[h.intValue(fn)]
		if e.prim != nil {
			return vm.invoke(e.prim, args)
		}
		return e.builtin(vm, args)

	case tagLambda:
		params := h.car(fn)
		body := h.car(h.cdr(fn))
		closure := h.cdr(h.cdr(fn))

		frame := Nil
		p := params
		for _, a := range args {
			if p == Nil {
				return Nil, newError(ErrCodeArity, "lambda expects %d argument(s), got %d", vm.length(params), len(args))
			}
			pair, err := vm.cons(h.car(p), a)
			if err != nil {
				return Nil, err
			}
			if frame, err = vm.cons(pair, frame); err != nil {
				return Nil, err
			}
			p = h.cdr(p)
		}
		if p != Nil {
			return Nil, newError(ErrCodeArity, "lambda expects %d argument(s), got %d", vm.length(params), len(args))
		}
		env, err := vm.cons(frame, closure)
		if err != nil {
			return Nil, err
		}
		return vm.evalBody(body, env, depth)

	default:
		return Nil, newError(ErrCodeType, "%s is not a function", vm.kindName(fn))
	}
}

func (vm *VM) evalBody(body, env Ref, depth int) (Ref, error) {
	result := Nil
	for b := body; b != Nil; b = vm.heap.cdr(b) {
		var err error
		if result, err = vm.eval(vm.heap.car(b), env, depth+1); err != nil {
			return Nil, err
		}
	}
	return result, nil
}

func (vm *VM) lookup(env, sym Ref) (Ref, bool) {
	h := vm.heap
	for e := env; e != Nil; e = h.cdr(e) {
		for f := h.car(e); f != Nil; f = h.cdr(f) {
			pair := h.car(f)
			if h.car(pair) == sym {
				return h.cdr(pair), true
			}
		}
	}
	return Nil, false
}

// bind sets sym in the innermost frame of env, adding a binding if needed.
func (vm *VM) bind(env, sym, v Ref) error {
	h := vm.heap
	for f := h.car(env); f != Nil; f = h.cdr(f) {
		pair := h.car(f)
		if h.car(pair) == sym {
			h.setCdr(pair, v)
			return nil
		}
	}
	pair, err := vm.cons(sym, v)
	if err != nil {
		return err
	}
	link, err := vm.cons(pair, h.car(env))
	if err != nil {
		return err
	}
	h.setCar(env, link)
	return nil
}

// assign updates the nearest existing binding of sym, or defines it
// globally when there is none.
func (vm *VM) assign(env, sym, v Ref) error {
	h := vm.heap
	for e := env; e != Nil; e = h.cdr(e) {
		for f := h.car(e); f != Nil; f = h.cdr(f) {
			pair := h.car(f)
			if h.car(pair) == sym {
				h.setCdr(pair, v)
				return nil
			}
		}
	}
	return vm.bind(vm.global, sym, v)
}

func (vm *VM) cons(car, cdr Ref) (Ref, error) {
	return vm.heap.alloc(tagCons, int32(car), int32(cdr))
}

func (vm *VM) length(list Ref) int {
	n := 0
	for l := list; l != Nil && vm.heap.tag(l) == tagCons; l = vm.heap.cdr(l) {
		n++
	}
	return n
}

// argList flattens a special form's argument list into a slice.
func (vm *VM) argList(args Ref) ([]Ref, error) {
	var out []Ref
	for a := args; a != Nil; a = vm.heap.cdr(a) {
		if vm.heap.tag(a) != tagCons {
			return nil, newError(ErrCodeSyntax, "improper form")
		}
		out = append(out, vm.heap.car(a))
	}
	return out, nil
}

func evalQuote(vm *VM, args, env Ref, depth int) (Ref, error) {
	list, err := vm.argList(args)
	if err != nil {
		return Nil, err
	}
	if len(list) != 1 {
		return Nil, newError(ErrCodeArity, "quote expects 1 argument, got %d", len(list))
	}
	return list[0], nil
}

func evalIf(vm *VM, args, env Ref, depth int) (Ref, error) {
	list, err := vm.argList(args)
	if err != nil {
		return Nil, err
	}
	if len(list) < 2 || len(list) > 3 {
		return Nil, newError(ErrCodeArity, "if expects 2 or 3 arguments, got %d", len(list))
	}
	cond, err := vm.eval(list[0], env, depth)
	if err != nil {
		return Nil, err
	}
	if cond != Nil {
		return vm.eval(list[1], env, depth)
	}
	if len(list) == 3 {
		return vm.eval(list[2], env, depth)
	}
	return Nil, nil
}

func evalCond(vm *VM, args, env Ref, depth int) (Ref, error) {
	clauses, err := vm.argList(args)
	if err != nil {
		return Nil, err
	}
	h := vm.heap
	for _, clause := range clauses {
		if clause == Nil || h.tag(clause) != tagCons {
			return Nil, newError(ErrCodeSyntax, "cond clause must be a list")
		}
		test, err := vm.eval(h.car(clause), env, depth)
		if err != nil {
			return Nil, err
		}
		if test == Nil {
			continue
		}
		if h.cdr(clause) == Nil {
			return test, nil
		}
		return vm.evalBody(h.cdr(clause), env, depth)
	}
	return Nil, nil
}

func evalAnd(vm *VM, args, env Ref, depth int) (Ref, error) {
	list, err := vm.argList(args)
	if err != nil {
		return Nil, err
	}
	result := vm.t
	for _, a := range list {
		if result, err = vm.eval(a, env, depth); err != nil {
			return Nil, err
		}
		if result == Nil {
			return Nil, nil
		}
	}
	return result, nil
}

func evalOr(vm *VM, args, env Ref, depth int) (Ref, error) {
	list, err := vm.argList(args)
	if err != nil {
		return Nil, err
	}
	for _, a := range list {
		v, err := vm.eval(a, env, depth)
		if err != nil {
			return Nil, err
		}
		if v != Nil {
			return v, nil
		}
	}
	return Nil, nil
}

func evalProgn(vm *VM, args, env Ref, depth int) (Ref, error) {
	return vm.evalBody(args, env, depth)
}

// evalDefine handles (define name expr) and (define (name params...) body...).
func evalDefine(vm *VM, args, env Ref, depth int) (Ref, error) {
	list, err := vm.argList(args)
	if err != nil {
		return Nil, err
	}
	if len(list) < 1 {
		return Nil, newError(ErrCodeArity, "define expects a name")
	}
	h := vm.heap
	target := list[0]

	if target != Nil && h.tag(target) == tagCons {
		name := h.car(target)
		if name == Nil || h.tag(name) != tagSymbol {
			return Nil, newError(ErrCodeSyntax, "define: function name must be a symbol")
		}
		fn, err := vm.makeLambda(h.cdr(target), h.cdr(args), env)
		if err != nil {
			return Nil, err
		}
		return name, vm.bind(env, name, fn)
	}

	if target == Nil || h.tag(target) != tagSymbol {
		return Nil, newError(ErrCodeSyntax, "define: name must be a symbol")
	}
	if len(list) != 2 {
		return Nil, newError(ErrCodeArity, "define expects 2 arguments, got %d", len(list))
	}
	v, err := vm.eval(list[1], env, depth)
	if err != nil {
		return Nil, err
	}
	return target, vm.bind(env, target, v)
}

func evalSetq(vm *VM, args, env Ref, depth int) (Ref, error) {
	list, err := vm.argList(args)
	if err != nil {
		return Nil, err
	}
	if len(list) != 2 {
		return Nil, newError(ErrCodeArity, "setq expects 2 arguments, got %d", len(list))
	}
	if list[0] == Nil || vm.heap.tag(list[0]) != tagSymbol {
		return Nil, newError(ErrCodeSyntax, "setq: name must be a symbol")
	}
	v, err := vm.eval(list[1], env, depth)
	if err != nil {
		return Nil, err
	}
	return v, vm.assign(env, list[0], v)
}

// evalLet handles (let ((name expr) ...) body...). Bindings are evaluated in
// the outer environment.
func evalLet(vm *VM, args, env Ref, depth int) (Ref, error) {
	if args == Nil {
		return Nil, newError(ErrCodeArity, "let expects a binding list")
	}
	h := vm.heap
	bindings, err := vm.argList(h.car(args))
	if err != nil {
		return Nil, err
	}

	frame := Nil
	for _, b := range bindings {
		if b == Nil || h.tag(b) != tagCons || h.tag(h.car(b)) != tagSymbol {
			return Nil, newError(ErrCodeSyntax, "let binding must be (name expr)")
		}
		v := Nil
		if rest := h.cdr(b); rest != Nil {
			if v, err = vm.eval(h.car(rest), env, depth); err != nil {
				return Nil, err
			}
		}
		pair, err := vm.cons(h.car(b), v)
		if err != nil {
			return Nil, err
		}
		if frame, err = vm.cons(pair, frame); err != nil {
			return Nil, err
		}
	}
	inner, err := vm.cons(frame, env)
	if err != nil {
		return Nil, err
	}
	return vm.evalBody(h.cdr(args), inner, depth)
}

func evalLambda(vm *VM, args, env Ref, depth int) (Ref, error) {
	if args == Nil {
		return Nil, newError(ErrCodeArity, "lambda expects a parameter list")
	}
	return vm.makeLambda(vm.heap.car(args), vm.heap.cdr(args), env)
}

func (vm *VM) makeLambda(params, body, env Ref) (Ref, error) {
	h := vm.heap
	for p := params; p != Nil; p = h.cdr(p) {
		if h.tag(p) != tagCons || h.car(p) == Nil || h.tag(h.car(p)) != tagSymbol {
			return Nil, newError(ErrCodeSyntax, "lambda parameters must be symbols")
		}
	}
	rest, err := vm.cons(body, env)
	if err != nil {
		return Nil, err
	}
	return h.alloc(tagLambda, int32(params), int32(rest))
}

func evalWhen(vm *VM, args, env Ref, depth int) (Ref, error) {
	if args == Nil {
		return Nil, newError(ErrCodeArity, "when expects a condition")
	}
	cond, err := vm.eval(vm.heap.car(args), env, depth)
	if err != nil {
		return Nil, err
	}
	if cond == Nil {
		return Nil, nil
	}
	return vm.evalBody(vm.heap.cdr(args), env, depth)
}

func evalUnless(vm *VM, args, env Ref, depth int) (Ref, error) {
	if args == Nil {
		return Nil, newError(ErrCodeArity, "unless expects a condition")
	}
	cond, err := vm.eval(vm.heap.car(args), env, depth)
	if err != nil {
		return Nil, err
	}
	if cond != Nil {
		return Nil, nil
	}
	return vm.evalBody(vm.heap.cdr(args), env, depth)
}
