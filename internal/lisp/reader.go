package lisp

import (
	"strconv"
	"strings"
)

// reader turns script text into cells one top-level form at a time.
type reader struct {
	vm   *VM
	src  []byte
	pos  int
	line int
}

func newReader(vm *VM, src []byte) *reader {
	return &reader{vm: vm, src: src, line: 1}
}

// next reads the next top-level form. ok is false at end of input.
func (r *reader) next() (Ref, bool, error) {
	r.skipSpace()
	if r.pos >= len(r.src) {
		return Nil, false, nil
	}
	if r.src[r.pos] == ')' {
		return Nil, false, r.errorf("unexpected ')'")
	}
	form, err := r.read()
	if err != nil {
		return Nil, false, err
	}
	return form, true, nil
}

func (r *reader) read() (Ref, error) {
	r.skipSpace()
	if r.pos >= len(r.src) {
		return Nil, r.errorf("unexpected end of input")
	}

	switch c := r.src[r.pos]; c {
	case '(':
		r.pos++
		return r.readList()
	case ')':
		return Nil, r.errorf("unexpected ')'")
	case '\'':
		r.pos++
		quoted, err := r.read()
		if err != nil {
			return Nil, err
		}
		return r.list(r.sym("quote"), quoted)
	case '"':
		r.pos++
		return r.readString()
	default:
		return r.readAtom()
	}
}

func (r *reader) readList() (Ref, error) {
	var items []Ref
	for {
		r.skipSpace()
		if r.pos >= len(r.src) {
			return Nil, r.errorf("unterminated list")
		}
		if r.src[r.pos] == ')' {
			r.pos++
			break
		}
		item, err := r.read()
		if err != nil {
			return Nil, err
		}
		items = append(items, item)
	}
	return r.list(items...)
}

func (r *reader) readString() (Ref, error) {
	var sb strings.Builder
	for {
		if r.pos >= len(r.src) {
			return Nil, r.errorf("unterminated string")
		}
		c := r.src[r.pos]
		r.pos++
		switch c {
		case '"':
			return r.vm.heap.allocString(sb.String())
		case '\n':
			r.line++
			sb.WriteByte(c)
		case '\\':
			if r.pos >= len(r.src) {
				return Nil, r.errorf("unterminated string")
			}
			esc := r.src[r.pos]
			r.pos++
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '"', '\\':
				sb.WriteByte(esc)
			default:
				return Nil, r.errorf("unknown escape \\%c", esc)
			}
		default:
			sb.WriteByte(c)
		}
	}
}

func (r *reader) readAtom() (Ref, error) {
	start := r.pos
	for r.pos < len(r.src) && !isDelimiter(r.src[r.pos]) {
		r.pos++
	}
	tok := string(r.src[start:r.pos])

	if isNumber(tok) {
		n, err := strconv.ParseInt(tok, 10, 32)
		if err != nil {
			return Nil, r.errorf("integer %s out of range", tok)
		}
		return r.vm.NewInt(int32(n))
	}
	if tok == "nil" {
		return Nil, nil
	}
	return r.vm.intern(tok)
}

func (r *reader) skipSpace() {
	for r.pos < len(r.src) {
		switch c := r.src[r.pos]; {
		case c == '\n':
			r.line++
			r.pos++
		case c == ' ' || c == '\t' || c == '\r':
			r.pos++
		case c == ';':
			for r.pos < len(r.src) && r.src[r.pos] != '\n' {
				r.pos++
			}
		default:
			return
		}
	}
}

// list builds a proper list from items, back to front.
func (r *reader) list(items ...Ref) (Ref, error) {
	out := Nil
	for i := len(items) - 1; i >= 0; i-- {
		var err error
		if out, err = r.vm.cons(items[i], out); err != nil {
			return Nil, err
		}
	}
	return out, nil
}

func (r *reader) sym(name string) Ref {
	// quote is interned at install time.
	return r.vm.symbols[name]
}

func (r *reader) errorf(format string, args ...any) error {
	err := newError(ErrCodeSyntax, format, args...)
	err.Message += " at line " + strconv.Itoa(r.line)
	return err
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '\'', '"', ';', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

func isNumber(tok string) bool {
	if tok == "" {
		return false
	}
	digits := tok
	if tok[0] == '-' || tok[0] == '+' {
		digits = tok[1:]
	}
	if digits == "" {
		return false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return false
		}
	}
	return true
}
