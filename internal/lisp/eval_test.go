package lisp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval_Values(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"integer", "5", "5"},
		{"string", `"hi"`, `"hi"`},
		{"t", "t", "t"},
		{"nil", "nil", "nil"},
		{"quote", "'(a b)", "(a b)"},
		{"add", "(+ 1 2 3)", "6"},
		{"add none", "(+)", "0"},
		{"subtract", "(- 10 3 2)", "5"},
		{"negate", "(- 4)", "-4"},
		{"multiply", "(* 2 3 4)", "24"},
		{"divide", "(/ 7 2)", "3"},
		{"divide negative", "(/ -7 2)", "-3"},
		{"mod", "(mod 7 3)", "1"},
		{"overflow wraps", "(+ 2147483647 1)", "-2147483648"},
		{"equal", "(= 2 2 2)", "t"},
		{"not equal", "(/= 1 2)", "t"},
		{"less", "(< 1 2 3)", "t"},
		{"less fails", "(< 1 3 2)", "nil"},
		{"greater equal", "(>= 3 3 1)", "t"},
		{"not", "(not nil)", "t"},
		{"null", "(null '(1))", "nil"},
		{"eq ints", "(eq 300 300)", "t"},
		{"eq strings", `(eq "a" "a")`, "t"},
		{"eq symbols", "(eq 'a 'a)", "t"},
		{"eq lists", "(eq '(1) '(1))", "nil"},
		{"car", "(car '(1 2))", "1"},
		{"cdr", "(cdr '(1 2))", "(2)"},
		{"car nil", "(car nil)", "nil"},
		{"cons", "(cons 1 '(2))", "(1 2)"},
		{"dotted", "(cons 1 2)", "(1 . 2)"},
		{"list", "(list 1 (+ 1 1) 'x)", "(1 2 x)"},
		{"length list", "(length '(1 2 3))", "3"},
		{"length string", `(length "abcd")`, "4"},
		{"if true", "(if t 1 2)", "1"},
		{"if false", "(if nil 1 2)", "2"},
		{"if zero is true", "(if 0 1 2)", "1"},
		{"if no else", "(if nil 1)", "nil"},
		{"cond", "(cond ((= 1 2) 'a) ((= 1 1) 'b) (t 'c))", "b"},
		{"cond test value", "(cond (5))", "5"},
		{"cond none", "(cond (nil 1))", "nil"},
		{"and", "(and 1 2 3)", "3"},
		{"and short", "(and 1 nil (error \"no\"))", "nil"},
		{"and empty", "(and)", "t"},
		{"or", "(or nil 2 (error \"no\"))", "2"},
		{"or empty", "(or)", "nil"},
		{"progn", "(progn 1 2 3)", "3"},
		{"when", "(when t 1 2)", "2"},
		{"when false", "(when nil 1)", "nil"},
		{"unless", "(unless nil 7)", "7"},
		{"let", "(let ((a 1) (b 2)) (+ a b))", "3"},
		{"let shadows", "(define a 1) (let ((a 5)) a)", "5"},
		{"let outer scope", "(define a 1) (let ((a 5) (b a)) b)", "1"},
		{"lambda call", "((lambda (x y) (* x y)) 6 7)", "42"},
		{"define returns name", "(define x 1)", "x"},
		{"define function", "(define (sq x) (* x x)) (sq 9)", "81"},
		{"closure", "(define (adder n) (lambda (x) (+ x n))) ((adder 3) 4)", "7"},
		{"recursion", "(define (fact n) (if (= n 0) 1 (* n (fact (- n 1))))) (fact 10)", "3628800"},
		{"loop", "(define (loop n) (if (= n 0) 'done (loop (- n 1)))) (loop 50)", "done"},
		{"setq global", "(define x 1) (setq x 5) x", "5"},
		{"setq creates global", "(setq fresh 3) fresh", "3"},
		{"setq closure variable", "(define (f x) (setq x (+ x 1)) x) (f 1)", "2"},
		{"lambda prints", "(lambda (x) x)", "#<lambda>"},
		{"primitive prints", "car", "#<primitive car>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			assert.Equal(t, tt.want, evalFormat(t, vm, tt.src))
		})
	}
}

func TestEval_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code ErrorCode
	}{
		{"unbound", "nope", ErrCodeUnbound},
		{"type add", `(+ 1 "a")`, ErrCodeType},
		{"type car", "(car 5)", ErrCodeType},
		{"not a function", "(1 2)", ErrCodeType},
		{"nil call", "(nil)", ErrCodeType},
		{"arity lambda", "((lambda (x) x))", ErrCodeArity},
		{"arity lambda extra", "((lambda (x) x) 1 2)", ErrCodeArity},
		{"arity builtin", "(cons 1)", ErrCodeArity},
		{"arity if", "(if)", ErrCodeArity},
		{"arity compare", "(< 1)", ErrCodeArity},
		{"divide by zero", "(/ 1 0)", ErrCodeDivideByZero},
		{"mod by zero", "(mod 1 0)", ErrCodeDivideByZero},
		{"user error", `(error "boom")`, ErrCodeUser},
		{"bad define", "(define 5 1)", ErrCodeSyntax},
		{"bad lambda params", "(lambda (1) 1)", ErrCodeSyntax},
		{"bad let", "(let (5) 1)", ErrCodeSyntax},
		{"syntax", "(+ 1", ErrCodeSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			_, err := vm.EvalString(tt.src)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err), "got %v", err)
		})
	}
}

func TestEval_UserErrorMessage(t *testing.T) {
	vm := newTestVM(t)

	_, err := vm.EvalString(`(error "sensor" 3 "offline")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensor 3 offline")
}

func TestEval_StopsAtFirstError(t *testing.T) {
	out := &recordingOutput{}
	vm := newTestVM(t, WithOutput(out))

	_, err := vm.EvalString(`(print "a") (car 1) (print "b")`)
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, out.prints)
}

func TestIsReserved(t *testing.T) {
	for _, name := range []string{"t", "nil", "quote", "lambda", "define", "car", "+", "print"} {
		assert.True(t, isReserved(name), name)
	}
	for _, name := range []string{"task", "pop-event", "foo"} {
		assert.False(t, isReserved(name), name)
	}
}
