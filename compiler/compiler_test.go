package compiler

import (
	"testing"

	"github.com/nickwanninger/cedar/code"
	"github.com/nickwanninger/cedar/object"
	"github.com/nickwanninger/cedar/reader"
)

func compileSource(t *testing.T, src string) *object.CodeUnit {
	t.Helper()
	symbols := object.NewSymbolTable()
	macros := object.NewMacroTable()
	forms, err := reader.ReadAll(src, symbols)
	if err != nil {
		t.Fatalf("reader.ReadAll(%q) error = %v", src, err)
	}
	if len(forms) != 1 {
		t.Fatalf("expected exactly one form in %q, got %d", src, len(forms))
	}
	c := New(symbols, macros, nil)
	cu, err := c.CompileTopLevel(forms[0])
	if err != nil {
		t.Fatalf("CompileTopLevel(%q) error = %v", src, err)
	}
	return cu
}

// opcodes decodes the sequence of opcode names in ins, ignoring operands.
func opcodes(t *testing.T, ins code.Instructions) []string {
	t.Helper()
	var names []string
	i := 0
	for i < len(ins) {
		def, err := code.Lookup(ins[i])
		if err != nil {
			t.Fatalf("code.Lookup(%d) error = %v", ins[i], err)
		}
		names = append(names, def.Name)
		_, read := code.ReadOperands(def, ins[i+1:])
		i += read + 1
	}
	return names
}

func TestCompileLiterals(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"int", "42", []string{"INT", "RETURN"}},
		{"float", "3.5", []string{"FLOAT", "RETURN"}},
		{"nil", "nil", []string{"NIL", "RETURN"}},
		{"bool", "true", []string{"CONST", "RETURN"}},
		{"string", `"hi"`, []string{"CONST", "RETURN"}},
		{"empty-list-self-evaluates", "()", []string{"NIL", "RETURN"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cu := compileSource(t, tt.src)
			got := opcodes(t, cu.Instructions)
			if !equalStrs(got, tt.want) {
				t.Errorf("opcodes(%q) = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
}

func TestCompileIfEmitsConditionalJumps(t *testing.T) {
	cu := compileSource(t, "(if true 1 2)")
	got := opcodes(t, cu.Instructions)
	want := []string{"CONST", "JUMP_IF_FALSE", "INT", "JUMP", "INT", "RETURN"}
	if !equalStrs(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
}

func TestCompileIfWithoutElseEmitsNil(t *testing.T) {
	cu := compileSource(t, "(if true 1)")
	got := opcodes(t, cu.Instructions)
	want := []string{"CONST", "JUMP_IF_FALSE", "INT", "JUMP", "NIL", "RETURN"}
	if !equalStrs(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
}

func TestCompileDefEmitsSetGlobal(t *testing.T) {
	cu := compileSource(t, "(def x 5)")
	got := opcodes(t, cu.Instructions)
	want := []string{"INT", "SET_GLOBAL", "RETURN"}
	if !equalStrs(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
}

func TestCompileDoSkipsIntermediateResults(t *testing.T) {
	cu := compileSource(t, "(do 1 2 3)")
	got := opcodes(t, cu.Instructions)
	want := []string{"INT", "SKIP", "INT", "SKIP", "INT", "RETURN"}
	if !equalStrs(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
}

func TestCompileCallEmitsCallWithArgc(t *testing.T) {
	cu := compileSource(t, "(f 1 2 3)")
	got := opcodes(t, cu.Instructions)
	want := []string{"LOAD_GLOBAL", "INT", "INT", "INT", "CALL", "RETURN"}
	if !equalStrs(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
}

func TestCompileFnEmitsMakeFuncWithCodeUnitConstant(t *testing.T) {
	cu := compileSource(t, "(fn (x y) x)")
	got := opcodes(t, cu.Instructions)
	want := []string{"MAKE_FUNC", "RETURN"}
	if !equalStrs(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
	if len(cu.Constants) != 1 {
		t.Fatalf("expected 1 constant, got %d", len(cu.Constants))
	}
	lam, ok := object.AsLambda(cu.Constants[0])
	if !ok {
		t.Fatalf("constant is not a lambda: %v", cu.Constants[0])
	}
	if lam.Code.Argc != 2 || lam.Code.RestArg {
		t.Errorf("lambda code unit argc=%d restArg=%v, want argc=2 restArg=false", lam.Code.Argc, lam.Code.RestArg)
	}
}

func TestCompileFnWithRestArg(t *testing.T) {
	cu := compileSource(t, "(fn (a & rest) a)")
	lam, ok := object.AsLambda(cu.Constants[0])
	if !ok {
		t.Fatalf("constant is not a lambda: %v", cu.Constants[0])
	}
	if lam.Code.Argc != 1 || !lam.Code.RestArg {
		t.Errorf("lambda code unit argc=%d restArg=%v, want argc=1 restArg=true", lam.Code.Argc, lam.Code.RestArg)
	}
}

func TestCompileFnEmptyParamList(t *testing.T) {
	cu := compileSource(t, "(fn () 1)")
	lam, ok := object.AsLambda(cu.Constants[0])
	if !ok {
		t.Fatalf("constant is not a lambda: %v", cu.Constants[0])
	}
	if lam.Code.Argc != 0 || lam.Code.RestArg {
		t.Errorf("lambda code unit argc=%d restArg=%v, want argc=0 restArg=false", lam.Code.Argc, lam.Code.RestArg)
	}
}

func TestCompileQuoteEmitsConstUnevaluated(t *testing.T) {
	cu := compileSource(t, "(quote (1 2 3))")
	got := opcodes(t, cu.Instructions)
	want := []string{"CONST", "RETURN"}
	if !equalStrs(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
	items, ok := object.ListToSlice(cu.Constants[0])
	if !ok || len(items) != 3 {
		t.Errorf("quoted constant = %v, want a 3-element list", cu.Constants[0])
	}
}

func TestCompileSecondTopLevelFormDoesNotReplayFirst(t *testing.T) {
	symbols := object.NewSymbolTable()
	macros := object.NewMacroTable()
	c := New(symbols, macros, nil)

	forms, err := reader.ReadAll("1 2", symbols)
	if err != nil {
		t.Fatalf("ReadAll error = %v", err)
	}

	first, err := c.CompileTopLevel(forms[0])
	if err != nil {
		t.Fatalf("CompileTopLevel(first) error = %v", err)
	}
	second, err := c.CompileTopLevel(forms[1])
	if err != nil {
		t.Fatalf("CompileTopLevel(second) error = %v", err)
	}

	if got := opcodes(t, first.Instructions); !equalStrs(got, []string{"INT", "RETURN"}) {
		t.Errorf("first form opcodes = %v, want [INT RETURN]", got)
	}
	if got := opcodes(t, second.Instructions); !equalStrs(got, []string{"INT", "RETURN"}) {
		t.Errorf("second form opcodes = %v, want [INT RETURN] (not the first form's bytecode replayed)", got)
	}
}

func TestCompileUnknownSpecialFormHeadIsAnOrdinaryCall(t *testing.T) {
	// "foo" is not one of the fixed special-form names, so (foo 1) is a call, not an error.
	cu := compileSource(t, "(foo 1)")
	got := opcodes(t, cu.Instructions)
	want := []string{"LOAD_GLOBAL", "INT", "CALL", "RETURN"}
	if !equalStrs(got, want) {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
}

func TestCompileImproperListIsAnError(t *testing.T) {
	symbols := object.NewSymbolTable()
	macros := object.NewMacroTable()
	c := New(symbols, macros, nil)

	improper := object.NewList(object.Int(1), object.Int(2))
	if err := c.Compile(improper); err == nil {
		t.Fatal("expected an error compiling an improper list, got nil")
	}
}

func equalStrs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
