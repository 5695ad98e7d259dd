package lisp

// Ref addresses a cell in a VM arena. The zero Ref is nil, the empty list.
type Ref int32

// Nil is the empty list and the false value.
const Nil Ref = 0

// CellSize is the number of arena bytes accounted per cell: two 32-bit words.
// Cell tags and GC marks live in side tables.
const CellSize = 8

// DefaultArenaBytes is the arena size used when none is configured.
const DefaultArenaBytes = 8000

// minArenaCells keeps room for the constants, special forms and builtins.
const minArenaCells = 128

type tag uint8

const (
	tagFree tag = iota
	tagCons
	tagInt
	tagSymbol
	tagString // car: byte length, cdr: first chunk
	tagChunk  // car: four packed bytes, cdr: next chunk
	tagLambda // car: parameter list, cdr: (body . env)
	tagPrim   // car: index into VM.prims
)

type cell struct {
	car, cdr int32
}

// arena is a fixed pool of cells with a free list threaded through cdr.
type arena struct {
	cells []cell
	tags  []tag
	marks []bool
	free  Ref
	used  int

	collections int
}

func newArena(bytes int) *arena {
	n := bytes / CellSize
	if n < minArenaCells {
		n = minArenaCells
	}
	a := &arena{
		cells: make([]cell, n),
		tags:  make([]tag, n),
		marks: make([]bool, n),
	}
	// Cell 0 is reserved for Nil and never handed out.
	for i := n - 1; i >= 1; i-- {
		a.cells[i].cdr = int32(a.free)
		a.free = Ref(i)
	}
	return a
}

func (a *arena) alloc(t tag, car, cdr int32) (Ref, error) {
	if a.free == Nil {
		return Nil, newError(ErrCodeOutOfMemory, "arena exhausted (%d cells)", len(a.cells)-1)
	}
	r := a.free
	a.free = Ref(a.cells[r].cdr)
	a.cells[r] = cell{car: car, cdr: cdr}
	a.tags[r] = t
	a.used++
	return r, nil
}

func (a *arena) tag(r Ref) tag {
	return a.tags[r]
}

func (a *arena) car(r Ref) Ref {
	return Ref(a.cells[r].car)
}

func (a *arena) cdr(r Ref) Ref {
	return Ref(a.cells[r].cdr)
}

func (a *arena) setCar(r, v Ref) {
	a.cells[r].car = int32(v)
}

func (a *arena) setCdr(r, v Ref) {
	a.cells[r].cdr = int32(v)
}

func (a *arena) intValue(r Ref) int32 {
	return a.cells[r].car
}

// collect marks everything reachable from roots and returns the rest to the
// free list. Returns the number of cells reclaimed.
func (a *arena) collect(roots []Ref) int {
	stack := make([]Ref, 0, 64)
	stack = append(stack, roots...)

	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if r == Nil || a.marks[r] {
			continue
		}
		a.marks[r] = true

		switch a.tags[r] {
		case tagCons, tagLambda:
			stack = append(stack, a.car(r), a.cdr(r))
		case tagSymbol:
			stack = append(stack, a.car(r))
		case tagString, tagChunk:
			stack = append(stack, a.cdr(r))
		}
	}

	reclaimed := 0
	for i := len(a.cells) - 1; i >= 1; i-- {
		if a.marks[i] {
			a.marks[i] = false
			continue
		}
		if a.tags[i] == tagFree {
			continue
		}
		a.tags[i] = tagFree
		a.cells[i] = cell{cdr: int32(a.free)}
		a.free = Ref(i)
		a.used--
		reclaimed++
	}
	a.collections++
	return reclaimed
}

// allocString packs s into a string header followed by a chain of chunks.
func (a *arena) allocString(s string) (Ref, error) {
	b := []byte(s)
	var chunks []Ref
	for i := 0; i < len(b); i += 4 {
		var word uint32
		for j := 0; j < 4 && i+j < len(b); j++ {
			word |= uint32(b[i+j]) << (8 * j)
		}
		r, err := a.alloc(tagChunk, int32(word), int32(Nil))
		if err != nil {
			return Nil, err
		}
		if len(chunks) > 0 {
			a.setCdr(chunks[len(chunks)-1], r)
		}
		chunks = append(chunks, r)
	}
	first := Nil
	if len(chunks) > 0 {
		first = chunks[0]
	}
	return a.alloc(tagString, int32(len(b)), int32(first))
}

// stringValue unpacks a string cell.
func (a *arena) stringValue(r Ref) string {
	n := int(a.cells[r].car)
	b := make([]byte, 0, n)
	for c := a.cdr(r); c != Nil && len(b) < n; c = a.cdr(c) {
		word := uint32(a.cells[c].car)
		for j := 0; j < 4 && len(b) < n; j++ {
			b = append(b, byte(word>>(8*j)))
		}
	}
	return string(b)
}
