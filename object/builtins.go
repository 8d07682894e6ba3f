package object

// This file bootstraps the closed set of builtin types named in §3 and wires the two
// forward references left by type.go and lambda.go: ObjectType (the root of every MRO)
// and the concrete types CodeUnit/String/Symbol constants need to tag their native
// payloads with.
//
// Bootstrapping a cyclic type graph in Go can't be done with static initializers alone -
// TypeType's own TypeOf must be itself, and ObjectType does not exist yet when TypeType is
// allocated - so construction happens in two passes inside init: allocate every Type with
// a nil typeOf (each type after Object gets ObjectType as its parent at construction),
// then patch every typeOf and TypeType's parent edge in (§9 "Cyclic type graph").
var (
	TypeType   *Type
	ObjectType *Type
	NilType    *Type
	BoolType   *Type
	IntType    *Type
	FloatType  *Type
	StringType *Type
	SymbolType *Type
	KeywordType *Type
	ListType   *Type
	VectorType *Type
	DictType   *Type
	LambdaType *Type
	FiberType  *Type
	ModuleType *Type
	ChannelType *Type
)

func init() {
	TypeType = NewType(nil, "Type")
	ObjectType = NewType(nil, "Object")
	NilType = NewType(nil, "Nil", ObjectType)
	BoolType = NewType(nil, "Bool", ObjectType)
	IntType = NewType(nil, "Int", ObjectType)
	FloatType = NewType(nil, "Float", ObjectType)
	StringType = NewType(nil, "String", ObjectType)
	SymbolType = NewType(nil, "Symbol", ObjectType)
	KeywordType = NewType(nil, "Keyword", ObjectType)
	ListType = NewType(nil, "List", ObjectType)
	VectorType = NewType(nil, "Vector", ObjectType)
	DictType = NewType(nil, "Dict", ObjectType)
	LambdaType = NewType(nil, "Lambda", ObjectType)
	FiberType = NewType(nil, "Fiber", ObjectType)
	ModuleType = NewType(nil, "Module", ObjectType)
	ChannelType = NewType(nil, "Channel", ObjectType)

	// Every type's own type is Type; Type's own type is itself.
	for _, t := range []*Type{
		ObjectType, NilType, BoolType, IntType, FloatType, StringType, SymbolType,
		KeywordType, ListType, VectorType, DictType, LambdaType, FiberType, ModuleType,
		ChannelType,
	} {
		t.typeOf = TypeType
	}
	TypeType.typeOf = TypeType
	TypeType.Parents = []*Type{ObjectType}
}

// NewString allocates a String instance wrapping s (§3).
func NewString(s string) Ref {
	return FromHeap(NewNativeObject(StringType, s))
}

// NewSymbolRef allocates a Symbol instance wrapping a process-local symbol id (§4.1
// decision: symbols are heap values, not a sixth immediate tag).
func NewSymbolRef(id SymbolID) Ref {
	return FromHeap(NewNativeObject(SymbolType, id))
}

// NewKeyword allocates a Keyword instance wrapping a process-local symbol id. Keywords
// intern through the same symbol table as symbols but carry a distinct type so `:foo`
// and `foo` never compare equal (§4.11 reader note).
func NewKeyword(id SymbolID) Ref {
	return FromHeap(NewNativeObject(KeywordType, id))
}

// AsString reports whether r is a String and returns its payload.
func AsString(r Ref) (string, bool) {
	if !r.IsHeap() {
		return "", false
	}
	o, ok := r.Heap().(*Object)
	if !ok || o.TypeOf() != StringType {
		return "", false
	}
	s, ok := o.Native.(string)
	return s, ok
}

// AsSymbol reports whether r is a Symbol and returns its interned id.
func AsSymbol(r Ref) (SymbolID, bool) {
	if !r.IsHeap() {
		return 0, false
	}
	o, ok := r.Heap().(*Object)
	if !ok || o.TypeOf() != SymbolType {
		return 0, false
	}
	id, ok := o.Native.(SymbolID)
	return id, ok
}

// AsKeyword reports whether r is a Keyword and returns its interned id.
func AsKeyword(r Ref) (SymbolID, bool) {
	if !r.IsHeap() {
		return 0, false
	}
	o, ok := r.Heap().(*Object)
	if !ok || o.TypeOf() != KeywordType {
		return 0, false
	}
	id, ok := o.Native.(SymbolID)
	return id, ok
}

// AsLambda reports whether r is a Lambda and returns its payload.
func AsLambda(r Ref) (*Lambda, bool) {
	if !r.IsHeap() {
		return nil, false
	}
	o, ok := r.Heap().(*Object)
	if !ok || o.TypeOf() != LambdaType {
		return nil, false
	}
	l, ok := o.Native.(*Lambda)
	return l, ok
}

// NewLambda allocates a Lambda instance wrapping l.
func NewLambda(l *Lambda) Ref {
	return FromHeap(NewNativeObject(LambdaType, l))
}

// AsType reports whether r is itself a Type value (types are heap values in their own
// right, not Objects wrapping a native payload - §3, §9).
func AsType(r Ref) (*Type, bool) {
	if !r.IsHeap() {
		return nil, false
	}
	t, ok := r.Heap().(*Type)
	return t, ok
}
