package stdlib

import (
	"testing"
	"time"

	"github.com/nickwanninger/cedar/engine"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(nil)
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	Register(e)
	e.Start()
	t.Cleanup(e.Stop)
	return e
}

func TestCollectionBuiltins(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int64
	}{
		{"len-of-list", "(len (list 1 2 3))", 3},
		{"first-of-list", "(first (list 7 8 9))", 7},
		{"size-of-vector", "(size (vector 1 2 3 4))", 4},
		{"get-from-vector", "(get (vector 10 20 30) 1)", 20},
		{"push-onto-vector", "(do (def v (vector 1)) (push v 2) (get v 1))", 2},
		{"cons-builtin", "(first (cons 5 (list 6 7)))", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
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

func TestArithmeticBuiltins(t *testing.T) {
	intTests := []struct {
		name string
		src  string
		want int64
	}{
		{"add-two-ints", "(+ 1 2)", 3},
		{"add-no-args-is-identity", "(+)", 0},
		{"mul-no-args-is-identity", "(*)", 1},
		{"sub-variadic", "(- 10 1 2)", 7},
		{"negate-one-arg", "(- 5)", -5},
		{"mul-variadic", "(* 2 3 4)", 24},
		{"div-truncates-ints", "(/ 7 2)", 3},
		{"fibonacci-via-recursion", `(do
			(def fib (fn (n)
				(if (< n 2)
					n
					(+ (fib (- n 1)) (fib (- n 2))))))
			(fib 10))`, 55},
	}
	for _, tt := range intTests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			got, err := e.EvalString(tt.src)
			if err != nil {
				t.Fatalf("EvalString(%q) error = %v", tt.src, err)
			}
			if !got.IsInt() || got.Int() != tt.want {
				t.Errorf("EvalString(%q) = %v, want Int(%d)", tt.src, got, tt.want)
			}
		})
	}

	boolTests := []struct {
		name string
		src  string
		want bool
	}{
		{"lt-true", "(< 1 2)", true},
		{"gt-false", "(> 1 2)", false},
		{"chained-lt-true", "(< 1 2 3)", true},
		{"chained-lt-false", "(< 1 3 2)", false},
		{"numeric-equals", "(= 2 2)", true},
		{"numeric-equals-false", "(= 2 3)", false},
	}
	for _, tt := range boolTests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			got, err := e.EvalString(tt.src)
			if err != nil {
				t.Fatalf("EvalString(%q) error = %v", tt.src, err)
			}
			if !got.IsBool() || got.Truthy() != tt.want {
				t.Errorf("EvalString(%q) = %v, want Bool(%v)", tt.src, got, tt.want)
			}
		})
	}
}

func TestArithmeticPromotesToFloatWhenAnyOperandIsFloat(t *testing.T) {
	e := newTestEngine(t)
	got, err := e.EvalString("(+ 1 2.5)")
	if err != nil {
		t.Fatalf("EvalString() error = %v", err)
	}
	if !got.IsFloat() || got.Float() != 3.5 {
		t.Errorf("(+ 1 2.5) = %v, want Float(3.5)", got)
	}
}

func TestDivisionByZeroIsAnError(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.EvalString("(/ 1 0)"); err == nil {
		t.Fatal("expected an error dividing by zero, got nil")
	}
}

func TestDeftypeInstantiatesViaAllocAndNew(t *testing.T) {
	e := newTestEngine(t)

	src := `(do
		(deftype Point ()
			(new (fn (self x y)
				(set_attr self (quote x) x)
				(set_attr self (quote y) y)))
			(sum (fn (self) (+ (get_attr self (quote x)) (get_attr self (quote y))))))
		(def p (Point 3 4))
		((get_attr p (quote sum)) p))`
	got, err := e.EvalString(src)
	if err != nil {
		t.Fatalf("EvalString(deftype) error = %v", err)
	}
	if !got.IsInt() || got.Int() != 7 {
		t.Errorf("EvalString(deftype) = %v, want Int(7)", got)
	}
}

func TestChannelSendRecvRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.EvalString("(def c (chan 1))"); err != nil {
		t.Fatalf("EvalString(def chan) error = %v", err)
	}
	if _, err := e.EvalString("(send c 99)"); err != nil {
		t.Fatalf("EvalString(send) error = %v", err)
	}
	got, err := e.EvalString("(recv c)")
	if err != nil {
		t.Fatalf("EvalString(recv) error = %v", err)
	}
	if !got.IsInt() || got.Int() != 99 {
		t.Errorf("recv = %v, want Int(99)", got)
	}
}

func TestGoRunsLambdaConcurrently(t *testing.T) {
	e := newTestEngine(t)

	src := `(do
		(def c (chan 1))
		(go (fn () (send c 1)))
		(recv c))`
	done := make(chan struct{})
	var got int64
	go func() {
		v, err := e.EvalString(src)
		if err == nil && v.IsInt() {
			got = v.Int()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for (go ...) to deliver through the channel")
	}
	if got != 1 {
		t.Errorf("recv after go = %d, want 1", got)
	}
}
