package object

import (
	"testing"

	"github.com/nickwanninger/cedar/code"
)

func TestEncodeDecodeRoundTripsScalarConstants(t *testing.T) {
	symbols := NewSymbolTable()
	sym := symbols.Intern("foo")

	cu := &CodeUnit{
		Instructions: code.Instructions(code.Make(code.RETURN)),
		Constants: []Ref{
			NilRef,
			Int(42),
			Int(-7),
			Float(3.5),
			TrueRef,
			FalseRef,
			NewString("hello"),
			NewSymbolRef(sym),
		},
		Argc:      2,
		StackSize: 3,
		RestArg:   false,
		NumLocals: 2,
	}

	encoded, err := cu.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, n, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if n != len(encoded) {
		t.Errorf("Decode() consumed %d bytes, want %d", n, len(encoded))
	}

	if decoded.Argc != cu.Argc {
		t.Errorf("Argc = %d, want %d", decoded.Argc, cu.Argc)
	}
	if decoded.StackSize != cu.StackSize {
		t.Errorf("StackSize = %d, want %d", decoded.StackSize, cu.StackSize)
	}
	if decoded.RestArg != cu.RestArg {
		t.Errorf("RestArg = %v, want %v", decoded.RestArg, cu.RestArg)
	}
	if len(decoded.Constants) != len(cu.Constants) {
		t.Fatalf("got %d constants, want %d", len(decoded.Constants), len(cu.Constants))
	}

	checkConstant(t, 0, decoded.Constants[0], func(r Ref) bool { return r.IsNil() })
	checkConstant(t, 1, decoded.Constants[1], func(r Ref) bool { return r.IsInt() && r.Int() == 42 })
	checkConstant(t, 2, decoded.Constants[2], func(r Ref) bool { return r.IsInt() && r.Int() == -7 })
	checkConstant(t, 3, decoded.Constants[3], func(r Ref) bool { return r.IsFloat() && r.Float() == 3.5 })
	checkConstant(t, 4, decoded.Constants[4], func(r Ref) bool { return r.IsBool() && r.Bool() })
	checkConstant(t, 5, decoded.Constants[5], func(r Ref) bool { return r.IsBool() && !r.Bool() })
	checkConstant(t, 6, decoded.Constants[6], func(r Ref) bool { s, ok := AsString(r); return ok && s == "hello" })
	checkConstant(t, 7, decoded.Constants[7], func(r Ref) bool { id, ok := AsSymbol(r); return ok && symbols.Name(id) == "foo" })
}

func checkConstant(t *testing.T, i int, r Ref, pred func(Ref) bool) {
	t.Helper()
	if !pred(r) {
		t.Errorf("constant %d = %v, did not match expected predicate", i, r)
	}
}

func TestEncodeDecodeRoundTripsRestArg(t *testing.T) {
	cu := &CodeUnit{
		Instructions: code.Instructions(code.Make(code.RETURN)),
		Argc:         1,
		StackSize:    1,
		RestArg:      true,
	}
	encoded, err := cu.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, _, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !decoded.RestArg {
		t.Error("RestArg = false, want true after round trip")
	}
}

func TestEncodeDecodeRoundTripsNestedCodeUnit(t *testing.T) {
	inner := &CodeUnit{
		Instructions: code.Instructions(code.Make(code.INT, 7)),
		Argc:         0,
		StackSize:    1,
	}
	outer := &CodeUnit{
		Instructions: code.Instructions(code.Make(code.RETURN)),
		Constants:    []Ref{FromHeap(NewNativeObject(LambdaType, inner))},
		Argc:         0,
		StackSize:    1,
	}

	encoded, err := outer.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	decoded, _, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(decoded.Constants) != 1 {
		t.Fatalf("got %d constants, want 1", len(decoded.Constants))
	}
	o, ok := decoded.Constants[0].Heap().(*Object)
	if !ok {
		t.Fatalf("nested constant is not an *Object: %v", decoded.Constants[0])
	}
	nested, ok := o.Native.(*CodeUnit)
	if !ok {
		t.Fatalf("nested constant is not a *CodeUnit: %v", decoded.Constants[0])
	}
	if nested.Argc != inner.Argc {
		t.Errorf("nested.Argc = %d, want %d", nested.Argc, inner.Argc)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	if _, _, err := Decode(make([]byte, 16)); err == nil {
		t.Fatal("expected an error decoding a buffer with a bad magic number, got nil")
	}
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	if _, _, err := Decode([]byte{'C', 'D', 'R', 0}); err == nil {
		t.Fatal("expected an error decoding a truncated header, got nil")
	}
}

func TestDecodeRejectsBadJumpTarget(t *testing.T) {
	cu := &CodeUnit{
		Instructions: code.Instructions(code.Make(code.JUMP, 9999)),
		Argc:         0,
		StackSize:    1,
	}
	encoded, err := cu.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if _, _, err := Decode(encoded); err == nil {
		t.Fatal("expected an error decoding a jump target past the end of the code array, got nil")
	}
}

func TestLineAt(t *testing.T) {
	cu := &CodeUnit{
		Source: []SourcePos{{Offset: 0, Line: 1}, {Offset: 5, Line: 2}, {Offset: 10, Line: 3}},
	}
	tests := []struct {
		offset int
		want   int
	}{
		{0, 1},
		{3, 1},
		{5, 2},
		{9, 2},
		{10, 3},
		{100, 3},
	}
	for _, tt := range tests {
		if got := cu.LineAt(tt.offset); got != tt.want {
			t.Errorf("LineAt(%d) = %d, want %d", tt.offset, got, tt.want)
		}
	}
}
