package object

// Heap is implemented by every value a pointer-tagged [Ref] can point to: both ordinary
// [Object] instances and [Type] objects themselves (types are values too - "Type"'s type
// is itself, §3).
//
// Heap only exposes the object's *own* attribute map. Method-resolution-order lookup
// across a type's methods and linearized parents (§4.2) is implemented on top of this
// by GetAttr/SetAttr in dispatch.go, since it needs to reach into a Ref's governing Type.
type Heap interface {
	// TypeOf returns the governing [Type] of this heap value.
	TypeOf() *Type

	// OwnAttr looks up sym in this value's own attribute map, without consulting its type.
	OwnAttr(sym SymbolID) (Ref, bool)

	// SetOwnAttr stores v under sym in this value's own attribute map.
	SetOwnAttr(sym SymbolID, v Ref)
}

// Object is a heap-allocated record: a type pointer, a lazily-materialized attribute map,
// and an opaque native payload for builtin types that need more than attributes (a list's
// cons cells, a string's bytes, a dict's table, ...).
//
// All user-visible values other than immediates (§3) are Objects, except for [Type] values,
// which are heap values in their own right (see [Heap]).
type Object struct {
	typ   *Type
	attrs map[SymbolID]Ref
	// Native holds the type-specific payload: *Cons, *Vector, *Dict, string, *Lambda,
	// *Fiber, *Module, *Channel, or nil for a plain user-defined instance with only
	// attributes.
	Native any
}

// NewObject allocates a blank instance of typ with no attributes and no native payload.
// This is the default behavior of a type's __alloc__ attribute (§4.2) unless a builtin
// type installs a more specific one.
func NewObject(typ *Type) *Object {
	return &Object{typ: typ}
}

// NewNativeObject allocates an instance of typ wrapping the given native payload.
func NewNativeObject(typ *Type, native any) *Object {
	return &Object{typ: typ, Native: native}
}

// TypeOf returns o's governing type.
func (o *Object) TypeOf() *Type { return o.typ }

// OwnAttr looks up sym in o's own (lazily-materialized) attribute map.
func (o *Object) OwnAttr(sym SymbolID) (Ref, bool) {
	if o.attrs == nil {
		return NilRef, false
	}
	v, ok := o.attrs[sym]
	return v, ok
}

// SetOwnAttr stores v under sym in o's attribute map, materializing the map on first use.
func (o *Object) SetOwnAttr(sym SymbolID, v Ref) {
	if o.attrs == nil {
		o.attrs = make(map[SymbolID]Ref)
	}
	o.attrs[sym] = v
}

// SetType rebinds the object's governing type (used by Type.__alloc__ implementations
// that need to set the type after allocating, and by bootstrap).
func (o *Object) SetType(t *Type) { o.typ = t }
