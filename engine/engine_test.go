package engine

import (
	"testing"

	"github.com/nickwanninger/cedar/object"
)

func TestEvalStringArithmeticAndGlobals(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int64
	}{
		{"literal", "42", 42},
		{"def-then-ref", "(do (def x 7) x)", 7},
		{"if-true", "(if true 1 2)", 1},
		{"if-false", "(if false 1 2)", 2},
		{"fn-call", "(do (def id (fn (x) x)) (id 9))", 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(nil)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			e.Start()
			defer e.Stop()

			got, err := e.EvalString(tt.src)
			if err != nil {
				t.Fatalf("EvalString(%q) error = %v", tt.src, err)
			}
			if !got.IsInt() || got.Int() != tt.want {
				t.Errorf("EvalString(%q) = %v, want Int(%d)", tt.src, got, tt.want)
			}
		})
	}
}

func TestRegisterHostAndCallFromCedar(t *testing.T) {
	e, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	e.Start()
	defer e.Stop()

	e.RegisterHost("double", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
		return object.Int(argv[0].Int() * 2), nil
	})

	got, err := e.EvalString("(double 21)")
	if err != nil {
		t.Fatalf("EvalString() error = %v", err)
	}
	if !got.IsInt() || got.Int() != 42 {
		t.Errorf("EvalString(\"(double 21)\") = %v, want Int(42)", got)
	}
}

func TestDefMacroExpandsBeforeNextForm(t *testing.T) {
	e, err := New(nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	e.Start()
	defer e.Stop()

	if _, err := e.EvalString("(def-macro always-one (x) 1)"); err != nil {
		t.Fatalf("EvalString(def-macro) error = %v", err)
	}

	got, err := e.EvalString("(always-one 99)")
	if err != nil {
		t.Fatalf("EvalString(always-one) error = %v", err)
	}
	if !got.IsInt() || got.Int() != 1 {
		t.Errorf("EvalString(\"(always-one 99)\") = %v, want Int(1)", got)
	}
}
