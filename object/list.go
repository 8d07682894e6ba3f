package object

// Cons is a single cons cell, the building block of Cedar's List type (§3): an immutable
// pair of a head reference and a tail reference, with nil terminating a proper list. Cons
// cells are never mutated after construction; `set_first`/`set_rest`-style operations (if
// the standard library ever adds them) would have to allocate a new cell.
type Cons struct {
	First Ref
	Rest  Ref
}

// NewList allocates a List instance wrapping a single cons cell.
func NewList(first, rest Ref) Ref {
	return FromHeap(NewNativeObject(ListType, &Cons{First: first, Rest: rest}))
}

// EmptyList is the canonical empty list, represented as nil (§3: "the empty list and the
// scalar nil share a representation").
var EmptyList = NilRef

// AsCons reports whether r is a non-empty List and returns its cons cell.
func AsCons(r Ref) (*Cons, bool) {
	if !r.IsHeap() {
		return nil, false
	}
	o, ok := r.Heap().(*Object)
	if !ok || o.TypeOf() != ListType {
		return nil, false
	}
	c, ok := o.Native.(*Cons)
	return c, ok
}

// IsList reports whether r is either the empty list or a non-empty List cell.
func IsList(r Ref) bool {
	if r.IsNil() {
		return true
	}
	_, ok := AsCons(r)
	return ok
}

// ListFromSlice builds a proper list from items, right to left, terminated by nil.
func ListFromSlice(items []Ref) Ref {
	out := EmptyList
	for i := len(items) - 1; i >= 0; i-- {
		out = NewList(items[i], out)
	}
	return out
}

// ListToSlice flattens a proper list into a slice. ok is false if r is not nil and not a
// list cell (improper lists aren't produced by the reader but a user program can build
// one by hand with raw cons; ListToSlice stops and reports false rather than panicking).
func ListToSlice(r Ref) ([]Ref, bool) {
	var out []Ref
	for {
		if r.IsNil() {
			return out, true
		}
		c, ok := AsCons(r)
		if !ok {
			return out, false
		}
		out = append(out, c.First)
		r = c.Rest
	}
}
