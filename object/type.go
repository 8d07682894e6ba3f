package object

// Type is an object whose instances share a name, a parent list (multiple inheritance), a
// methods mapping (visible on instances) and an attributes mapping (visible on the type
// itself) - §3, §4.2. A Type is itself a heap value: it satisfies [Heap], and for the single
// bootstrap type "Type", TypeOf() returns itself (§9 "Cyclic type graph").
type Type struct {
	typeOf *Type

	// Name is the type's name, used in Inspect/to_string output and error messages.
	Name string

	// Parents is the ordered list of parent types for multiple inheritance (§4.2).
	Parents []*Type

	// Methods maps symbol-id -> callable, visible on instances of this type.
	Methods map[SymbolID]Ref

	// Attributes maps symbol-id -> reference, visible on the type object itself
	// (this is also where arbitrary get_attr/set_attr calls on the type land,
	// playing the role Object.attrs plays for ordinary instances).
	Attributes map[SymbolID]Ref

	// mro caches the depth-first, left-to-right, first-wins parent linearization (§4.2, §9).
	// It is invalidated whenever Parents is mutated via SetParents.
	mro []*Type
}

// NewType creates a named type with the given parents and no methods or attributes yet.
// typeOf is the type's own governing type (ordinarily the builtin "Type" type).
func NewType(typeOf *Type, name string, parents ...*Type) *Type {
	return &Type{
		typeOf:     typeOf,
		Name:       name,
		Parents:    parents,
		Methods:    make(map[SymbolID]Ref),
		Attributes: make(map[SymbolID]Ref),
	}
}

// TypeOf returns t's own governing type (ordinarily "Type").
func (t *Type) TypeOf() *Type { return t.typeOf }

// OwnAttr looks up sym in t's own attribute map (the type-level attributes of §4.2,
// e.g. __alloc__).
func (t *Type) OwnAttr(sym SymbolID) (Ref, bool) {
	v, ok := t.Attributes[sym]
	return v, ok
}

// SetOwnAttr stores v under sym in t's attribute map.
func (t *Type) SetOwnAttr(sym SymbolID, v Ref) {
	if t.Attributes == nil {
		t.Attributes = make(map[SymbolID]Ref)
	}
	t.Attributes[sym] = v
}

// SetField stores v under sym in t's methods map, i.e. it defines a method visible on
// instances of t (§4.2 "Setting a type's field... goes through set_field").
func (t *Type) SetField(sym SymbolID, v Ref) {
	if t.Methods == nil {
		t.Methods = make(map[SymbolID]Ref)
	}
	t.Methods[sym] = v
}

// SetParents replaces t's parent list and invalidates the memoized linearization.
func (t *Type) SetParents(parents ...*Type) {
	t.Parents = parents
	t.mro = nil
}

// Linearize returns the depth-first, left-to-right, first-wins MRO for t, with the
// implicit builtin Object type appended at the end unless it already appears earlier
// (§4.2). The result is memoized on t until the next SetParents call (§9).
func (t *Type) Linearize() []*Type {
	if t.mro != nil {
		return t.mro
	}

	seen := make(map[*Type]bool)
	var order []*Type

	var visit func(*Type)
	visit = func(cur *Type) {
		if seen[cur] {
			return
		}
		seen[cur] = true
		order = append(order, cur)
		for _, p := range cur.Parents {
			visit(p)
		}
	}
	visit(t)

	if ObjectType != nil && !seen[ObjectType] {
		order = append(order, ObjectType)
	}

	t.mro = order
	return order
}

// ResolveMethod looks up sym as an instance method via t's method-resolution order:
// t's own Methods map, then its linearized parents in depth-first left-to-right order (§4.2).
func (t *Type) ResolveMethod(sym SymbolID) (Ref, bool) {
	for _, cur := range t.Linearize() {
		if v, ok := cur.Methods[sym]; ok {
			return v, true
		}
	}
	return NilRef, false
}
