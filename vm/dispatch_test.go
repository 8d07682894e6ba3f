package vm

import (
	"testing"

	"github.com/nickwanninger/cedar/object"
)

func TestFirstAndRestOnAList(t *testing.T) {
	m := newTestMachine()
	list := object.NewList(object.Int(1), object.NewList(object.Int(2), object.NilRef))

	first, err := m.First(list)
	if err != nil || first.Int() != 1 {
		t.Errorf("First() = (%v, %v), want (1, nil)", first, err)
	}

	rest, err := m.Rest(list)
	if err != nil {
		t.Fatalf("Rest() error = %v", err)
	}
	items, ok := object.ListToSlice(rest)
	if !ok || len(items) != 1 || items[0].Int() != 2 {
		t.Errorf("Rest() = %v, want (2)", rest)
	}
}

func TestFirstOnNonListIsATypeError(t *testing.T) {
	m := newTestMachine()
	if _, err := m.First(object.Int(5)); err == nil {
		t.Fatal("expected a type error calling First on an Int, got nil")
	}
}

func TestConsBuildsANewList(t *testing.T) {
	m := newTestMachine()
	result, err := m.Cons(object.Int(1), object.NilRef)
	if err != nil {
		t.Fatalf("Cons() error = %v", err)
	}
	items, ok := object.ListToSlice(result)
	if !ok || len(items) != 1 || items[0].Int() != 1 {
		t.Errorf("Cons(1, nil) = %v, want (1)", result)
	}
}

func TestGetSetVector(t *testing.T) {
	m := newTestMachine()
	vec := object.NewVector(object.Int(10), object.Int(20))

	got, err := m.Get(vec, object.Int(1))
	if err != nil || got.Int() != 20 {
		t.Errorf("Get(vec, 1) = (%v, %v), want (20, nil)", got, err)
	}

	if _, err := m.Set(vec, object.Int(0), object.Int(99)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err = m.Get(vec, object.Int(0))
	if err != nil || got.Int() != 99 {
		t.Errorf("Get(vec, 0) after Set = (%v, %v), want (99, nil)", got, err)
	}
}

func TestGetOutOfBoundsIsAnIndexError(t *testing.T) {
	m := newTestMachine()
	vec := object.NewVector(object.Int(1))
	if _, err := m.Get(vec, object.Int(5)); err == nil {
		t.Fatal("expected an index error reading past the end of a vector, got nil")
	}
}

func TestGetSetDict(t *testing.T) {
	m := newTestMachine()
	d := object.NewDict()
	key := object.NewString("k")

	if _, err := m.Set(d, key, object.Int(7)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := m.Get(d, key)
	if err != nil || got.Int() != 7 {
		t.Errorf("Get(dict, k) = (%v, %v), want (7, nil)", got, err)
	}
}

func TestSizeOfListVectorStringDict(t *testing.T) {
	m := newTestMachine()

	tests := []struct {
		name string
		r    object.Ref
		want int64
	}{
		{"list", object.NewList(object.Int(1), object.NewList(object.Int(2), object.NilRef)), 2},
		{"vector", object.NewVector(object.Int(1), object.Int(2), object.Int(3)), 3},
		{"string", object.NewString("abc"), 3},
		{"nil-list", object.NilRef, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Size(tt.r)
			if err != nil {
				t.Fatalf("Size() error = %v", err)
			}
			if got.Int() != tt.want {
				t.Errorf("Size(%v) = %v, want %d", tt.r, got, tt.want)
			}
		})
	}
}

func TestToStringIntrinsicRendering(t *testing.T) {
	m := newTestMachine()
	tests := []struct {
		name string
		r    object.Ref
		want string
	}{
		{"int", object.Int(42), "42"},
		{"nil", object.NilRef, "nil"},
		{"bool", object.TrueRef, "true"},
		{"string", object.NewString("hi"), "hi"},
		{"vector", object.NewVector(object.Int(1), object.Int(2)), "[1 2]"},
		{"list", object.NewList(object.Int(1), object.NewList(object.Int(2), object.NilRef)), "(1 2)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.ToString(tt.r)
			if err != nil {
				t.Fatalf("ToString() error = %v", err)
			}
			s, _ := object.AsString(got)
			if s != tt.want {
				t.Errorf("ToString(%v) = %q, want %q", tt.r, s, tt.want)
			}
		})
	}
}

func TestEqualsScalarsAndStrings(t *testing.T) {
	m := newTestMachine()
	tests := []struct {
		name string
		a, b object.Ref
		want bool
	}{
		{"equal ints", object.Int(1), object.Int(1), true},
		{"different ints", object.Int(1), object.Int(2), false},
		{"equal strings", object.NewString("a"), object.NewString("a"), true},
		{"different strings", object.NewString("a"), object.NewString("b"), false},
		{"nil vs int", object.NilRef, object.Int(0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Equals(tt.a, tt.b)
			if err != nil {
				t.Fatalf("Equals() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Equals(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

// TestGetAttrFallsBackThroughMRO exercises the depth-first, left-to-right, first-wins
// method resolution order a user-defined type's overriding instance methods are looked up
// through, with the override living on a grandparent type.
func TestGetAttrFallsBackThroughMRO(t *testing.T) {
	m := newTestMachine()
	sym := m.Symbols.Intern("greeting")

	grandparent := object.NewType(object.TypeType, "Grandparent")
	grandparent.SetField(sym, object.NewString("hello"))
	parent := object.NewType(object.TypeType, "Parent", grandparent)
	child := object.NewType(object.TypeType, "Child", parent)

	instance := object.NewObject(child)
	got, err := m.GetAttr(object.FromHeap(instance), sym)
	if err != nil {
		t.Fatalf("GetAttr() error = %v", err)
	}
	s, _ := object.AsString(got)
	if s != "hello" {
		t.Errorf("GetAttr() = %q, want %q (inherited via MRO)", s, "hello")
	}
}

func TestGetAttrOwnAttrShadowsType(t *testing.T) {
	m := newTestMachine()
	sym := m.Symbols.Intern("greeting")

	ty := object.NewType(object.TypeType, "Greeter")
	ty.SetField(sym, object.NewString("from-type"))

	instance := object.NewObject(ty)
	instance.SetOwnAttr(sym, object.NewString("from-instance"))

	got, err := m.GetAttr(object.FromHeap(instance), sym)
	if err != nil {
		t.Fatalf("GetAttr() error = %v", err)
	}
	s, _ := object.AsString(got)
	if s != "from-instance" {
		t.Errorf("GetAttr() = %q, want instance attr to shadow the type's method", s)
	}
}

func TestSetAttrAlwaysTargetsTheReceiverItself(t *testing.T) {
	m := newTestMachine()
	sym := m.Symbols.Intern("greeting")

	parent := object.NewType(object.TypeType, "Parent")
	parent.SetField(sym, object.NewString("parent-value"))
	child := object.NewType(object.TypeType, "Child", parent)
	instance := object.NewObject(child)
	ref := object.FromHeap(instance)

	if err := m.SetAttr(ref, sym, object.NewString("own-value")); err != nil {
		t.Fatalf("SetAttr() error = %v", err)
	}

	got, err := m.GetAttr(ref, sym)
	if err != nil {
		t.Fatalf("GetAttr() error = %v", err)
	}
	s, _ := object.AsString(got)
	if s != "own-value" {
		t.Errorf("GetAttr() after SetAttr = %q, want %q", s, "own-value")
	}

	parentVal, err := m.GetAttr(object.FromHeap(object.NewObject(parent)), sym)
	if err != nil {
		t.Fatalf("GetAttr() on an unrelated instance of parent error = %v", err)
	}
	pv, _ := object.AsString(parentVal)
	if pv != "parent-value" {
		t.Errorf("SetAttr on one instance mutated the shared parent type's own attr: got %q", pv)
	}
}

// TestFirstDispatchesToOverridingMethod confirms a type's instance method for "first"
// takes precedence over the intrinsic cons-cell default (§4.1's per-type override
// contract), by installing a host lambda as the method and checking it runs instead of
// the default.
func TestFirstDispatchesToOverridingMethod(t *testing.T) {
	m := newTestMachine()
	firstSym := m.Symbols.Intern("first")

	custom := object.NewType(object.TypeType, "Custom")
	custom.SetField(firstSym, object.NewLambda(&object.Lambda{
		Name: "custom-first",
		Host: func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			return object.NewString("overridden"), nil
		},
	}))

	instance := object.FromHeap(object.NewObject(custom))
	got, err := m.First(instance)
	if err != nil {
		t.Fatalf("First() error = %v", err)
	}
	s, _ := object.AsString(got)
	if s != "overridden" {
		t.Errorf("First() = %q, want the overriding method's result %q", s, "overridden")
	}
}
