package lisp

import "strings"

var builtins = []struct {
	name string
	fn   builtinFunc
}{
	{"+", arith("+", 0, func(a, b int32) (int32, error) { return a + b, nil })},
	{"*", arith("*", 1, func(a, b int32) (int32, error) { return a * b, nil })},
	{"-", builtinSub},
	{"/", arith2("/", func(a, b int32) (int32, error) {
		if b == 0 {
			return 0, newError(ErrCodeDivideByZero, "division by zero")
		}
		if a == -1<<31 && b == -1 {
			return a, nil
		}
		return a / b, nil
	})},
	{"mod", arith2("mod", func(a, b int32) (int32, error) {
		if b == 0 {
			return 0, newError(ErrCodeDivideByZero, "modulo by zero")
		}
		if b == -1 {
			return 0, nil
		}
		return a % b, nil
	})},
	{"=", compare("=", func(a, b int32) bool { return a == b })},
	{"/=", compare("/=", func(a, b int32) bool { return a != b })},
	{"<", compare("<", func(a, b int32) bool { return a < b })},
	{">", compare(">", func(a, b int32) bool { return a > b })},
	{"<=", compare("<=", func(a, b int32) bool { return a <= b })},
	{">=", compare(">=", func(a, b int32) bool { return a >= b })},
	{"not", builtinNot},
	{"null", builtinNot},
	{"eq", builtinEq},
	{"car", builtinCar},
	{"cdr", builtinCdr},
	{"cons", builtinCons},
	{"list", builtinList},
	{"length", builtinLength},
	{"print", builtinPrint},
	{"log", builtinLog},
	{"error", builtinError},
}

func (vm *VM) intArg(name string, args []Ref, i int) (int32, error) {
	n, ok := vm.Int(args[i])
	if !ok {
		return 0, newError(ErrCodeType, "%s argument %d: expected integer, got %s", name, i+1, vm.kindName(args[i]))
	}
	return n, nil
}

func arity(name string, args []Ref, n int) error {
	if len(args) != n {
		return newError(ErrCodeArity, "%s expects %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

// arith folds a variadic integer operation. Overflow wraps.
func arith(name string, unit int32, op func(a, b int32) (int32, error)) builtinFunc {
	return func(vm *VM, args []Ref) (Ref, error) {
		acc := unit
		for i := range args {
			n, err := vm.intArg(name, args, i)
			if err != nil {
				return Nil, err
			}
			if acc, err = op(acc, n); err != nil {
				return Nil, err
			}
		}
		return vm.NewInt(acc)
	}
}

func arith2(name string, op func(a, b int32) (int32, error)) builtinFunc {
	return func(vm *VM, args []Ref) (Ref, error) {
		if err := arity(name, args, 2); err != nil {
			return Nil, err
		}
		a, err := vm.intArg(name, args, 0)
		if err != nil {
			return Nil, err
		}
		b, err := vm.intArg(name, args, 1)
		if err != nil {
			return Nil, err
		}
		n, err := op(a, b)
		if err != nil {
			return Nil, err
		}
		return vm.NewInt(n)
	}
}

func builtinSub(vm *VM, args []Ref) (Ref, error) {
	if len(args) == 0 {
		return Nil, newError(ErrCodeArity, "- expects at least 1 argument")
	}
	acc, err := vm.intArg("-", args, 0)
	if err != nil {
		return Nil, err
	}
	if len(args) == 1 {
		return vm.NewInt(-acc)
	}
	for i := 1; i < len(args); i++ {
		n, err := vm.intArg("-", args, i)
		if err != nil {
			return Nil, err
		}
		acc -= n
	}
	return vm.NewInt(acc)
}

// compare checks op between each adjacent pair of arguments.
func compare(name string, op func(a, b int32) bool) builtinFunc {
	return func(vm *VM, args []Ref) (Ref, error) {
		if len(args) < 2 {
			return Nil, newError(ErrCodeArity, "%s expects at least 2 arguments, got %d", name, len(args))
		}
		prev, err := vm.intArg(name, args, 0)
		if err != nil {
			return Nil, err
		}
		result := true
		for i := 1; i < len(args); i++ {
			n, err := vm.intArg(name, args, i)
			if err != nil {
				return Nil, err
			}
			if !op(prev, n) {
				result = false
			}
			prev = n
		}
		return vm.Bool(result), nil
	}
}

func builtinNot(vm *VM, args []Ref) (Ref, error) {
	if err := arity("not", args, 1); err != nil {
		return Nil, err
	}
	return vm.Bool(args[0] == Nil), nil
}

// builtinEq compares identity, except integers and strings compare by value.
func builtinEq(vm *VM, args []Ref) (Ref, error) {
	if err := arity("eq", args, 2); err != nil {
		return Nil, err
	}
	return vm.Bool(vm.equal(args[0], args[1])), nil
}

func (vm *VM) equal(a, b Ref) bool {
	if a == b {
		return true
	}
	if a == Nil || b == Nil {
		return false
	}
	h := vm.heap
	if h.tag(a) != h.tag(b) {
		return false
	}
	switch h.tag(a) {
	case tagInt:
		return h.intValue(a) == h.intValue(b)
	case tagString:
		return h.stringValue(a) == h.stringValue(b)
	default:
		return false
	}
}

func (vm *VM) listArg(name string, args []Ref) (Ref, error) {
	if err := arity(name, args, 1); err != nil {
		return Nil, err
	}
	l := args[0]
	if l != Nil && vm.heap.tag(l) != tagCons {
		return Nil, newError(ErrCodeType, "%s: expected list, got %s", name, vm.kindName(l))
	}
	return l, nil
}

func builtinCar(vm *VM, args []Ref) (Ref, error) {
	l, err := vm.listArg("car", args)
	if err != nil || l == Nil {
		return Nil, err
	}
	return vm.heap.car(l), nil
}

func builtinCdr(vm *VM, args []Ref) (Ref, error) {
	l, err := vm.listArg("cdr", args)
	if err != nil || l == Nil {
		return Nil, err
	}
	return vm.heap.cdr(l), nil
}

func builtinCons(vm *VM, args []Ref) (Ref, error) {
	if err := arity("cons", args, 2); err != nil {
		return Nil, err
	}
	return vm.cons(args[0], args[1])
}

func builtinList(vm *VM, args []Ref) (Ref, error) {
	out := Nil
	for i := len(args) - 1; i >= 0; i-- {
		var err error
		if out, err = vm.cons(args[i], out); err != nil {
			return Nil, err
		}
	}
	return out, nil
}

func builtinLength(vm *VM, args []Ref) (Ref, error) {
	if err := arity("length", args, 1); err != nil {
		return Nil, err
	}
	v := args[0]
	if v != Nil && vm.heap.tag(v) == tagString {
		return vm.NewInt(int32(vm.heap.intValue(v)))
	}
	l, err := vm.listArg("length", args)
	if err != nil {
		return Nil, err
	}
	return vm.NewInt(int32(vm.length(l)))
}

func (vm *VM) joinDisplay(args []Ref) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = vm.Display(a)
	}
	return strings.Join(parts, " ")
}

// builtinPrint writes its arguments to the output and returns the last one.
func builtinPrint(vm *VM, args []Ref) (Ref, error) {
	vm.out.Print(vm.joinDisplay(args))
	if len(args) == 0 {
		return Nil, nil
	}
	return args[len(args)-1], nil
}

func builtinLog(vm *VM, args []Ref) (Ref, error) {
	vm.out.Log(vm.joinDisplay(args))
	if len(args) == 0 {
		return Nil, nil
	}
	return args[len(args)-1], nil
}

func builtinError(vm *VM, args []Ref) (Ref, error) {
	msg := vm.joinDisplay(args)
	if msg == "" {
		msg = "error"
	}
	return Nil, newError(ErrCodeUser, "%s", msg)
}
