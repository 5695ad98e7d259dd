package lisp

import (
	"strconv"
	"strings"
)

// maxPrintCells bounds how much of a list structure is printed.
const maxPrintCells = 64

// Format renders r readably, with strings quoted. Long or circular lists are
// elided.
func (vm *VM) Format(r Ref) string {
	if vm.closed {
		return ""
	}
	p := printer{vm: vm, quote: true, budget: maxPrintCells}
	p.write(r)
	return p.sb.String()
}

// Display renders r the way print shows it: strings without quotes.
func (vm *VM) Display(r Ref) string {
	if vm.closed {
		return ""
	}
	p := printer{vm: vm, budget: maxPrintCells}
	p.write(r)
	return p.sb.String()
}

type printer struct {
	vm     *VM
	sb     strings.Builder
	quote  bool
	budget int
}

func (p *printer) write(r Ref) {
	p.budget--
	if p.budget < 0 {
		p.sb.WriteString("...")
		return
	}
	if r == Nil {
		p.sb.WriteString("nil")
		return
	}

	h := p.vm.heap
	switch h.tag(r) {
	case tagInt:
		p.sb.WriteString(strconv.FormatInt(int64(h.intValue(r)), 10))
	case tagSymbol:
		p.sb.WriteString(p.vm.nameOf(r))
	case tagString:
		if p.quote {
			p.sb.WriteString(strconv.Quote(h.stringValue(r)))
		} else {
			p.sb.WriteString(h.stringValue(r))
		}
	case tagLambda:
		p.sb.WriteString("#<lambda>")
	case tagPrim:
		p.sb.WriteString("#<primitive ")
		p.sb.WriteString(p.vm.prims[h.intValue(r)].name)
		p.sb.WriteString(">")
	case tagCons:
		p.writeList(r)
	default:
		p.sb.WriteString("#<unknown>")
	}
}

func (p *printer) writeList(r Ref) {
	h := p.vm.heap
	p.sb.WriteByte('(')
	first := true
	for r != Nil {
		if !first {
			p.sb.WriteByte(' ')
		}
		first = false
		if h.tag(r) != tagCons {
			p.sb.WriteString(". ")
			p.write(r)
			break
		}
		if p.budget <= 0 {
			p.sb.WriteString("...")
			break
		}
		p.write(h.car(r))
		r = h.cdr(r)
	}
	p.sb.WriteByte(')')
}
