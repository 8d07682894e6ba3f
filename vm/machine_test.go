package vm

import (
	"testing"
	"time"

	"github.com/nickwanninger/cedar/code"
	"github.com/nickwanninger/cedar/object"
)

func newTestMachine() *Machine {
	return NewMachine(object.NewSymbolTable(), object.NewGlobals(), object.NewMacroTable())
}

func lambdaFromInstructions(argc, stackSize int, ins []byte, constants ...object.Ref) *object.Lambda {
	cu := &object.CodeUnit{
		Instructions: code.Instructions(ins),
		Constants:    constants,
		Argc:         argc,
		StackSize:    stackSize,
		NumLocals:    argc,
	}
	return &object.Lambda{Code: cu}
}

func TestCallSyncReturnsLiteral(t *testing.T) {
	m := newTestMachine()
	ins := concat(
		code.Make(code.INT, 42),
		code.Make(code.RETURN),
	)
	lam := lambdaFromInstructions(0, 1, ins)

	result, err := m.CallSync(object.NewLambda(lam), nil)
	if err != nil {
		t.Fatalf("CallSync() error = %v", err)
	}
	if !result.IsInt() || result.Int() != 42 {
		t.Errorf("CallSync() = %v, want Int(42)", result)
	}
}

func TestCallSyncPassesArgumentIntoClosure(t *testing.T) {
	m := newTestMachine()
	// A one-arg lambda whose body is effectively (cons a nil); just exercise
	// LOAD_LOCAL/CONS/RETURN rather than a nonexistent arithmetic opcode.
	ins := concat(
		code.Make(code.LOAD_LOCAL, 0),
		code.Make(code.NIL),
		code.Make(code.CONS),
		code.Make(code.RETURN),
	)
	lam := lambdaFromInstructions(1, 2, ins)

	result, err := m.CallSync(object.NewLambda(lam), []object.Ref{object.Int(7)})
	if err != nil {
		t.Fatalf("CallSync() error = %v", err)
	}
	items, ok := object.ListToSlice(result)
	if !ok || len(items) != 1 || items[0].Int() != 7 {
		t.Errorf("CallSync() = %v, want a one-element list containing 7", result)
	}
}

func TestCallSyncArityErrorOnWrongArgCount(t *testing.T) {
	m := newTestMachine()
	ins := concat(code.Make(code.NIL), code.Make(code.RETURN))
	lam := lambdaFromInstructions(2, 1, ins)

	_, err := m.CallSync(object.NewLambda(lam), []object.Ref{object.Int(1)})
	if err == nil {
		t.Fatal("expected an arity error calling a 2-arg lambda with 1 argument, got nil")
	}
}

func TestCallSyncRestArgGathersTrailingArguments(t *testing.T) {
	m := newTestMachine()
	cu := &object.CodeUnit{
		Instructions: code.Instructions(concat(code.Make(code.LOAD_LOCAL, 1), code.Make(code.RETURN))),
		Argc:         1,
		StackSize:    1,
		RestArg:      true,
		NumLocals:    2,
	}
	lam := &object.Lambda{Code: cu}

	result, err := m.CallSync(object.NewLambda(lam), []object.Ref{object.Int(1), object.Int(2), object.Int(3)})
	if err != nil {
		t.Fatalf("CallSync() error = %v", err)
	}
	items, ok := object.ListToSlice(result)
	if !ok || len(items) != 2 || items[0].Int() != 2 || items[1].Int() != 3 {
		t.Errorf("rest arg = %v, want (2 3)", result)
	}
}

func TestCallSyncHostLambda(t *testing.T) {
	m := newTestMachine()
	host := &object.Lambda{
		Name: "double",
		Host: func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			return object.Int(argv[0].Int() * 2), nil
		},
	}

	result, err := m.CallSync(object.NewLambda(host), []object.Ref{object.Int(21)})
	if err != nil {
		t.Fatalf("CallSync() error = %v", err)
	}
	if result.Int() != 42 {
		t.Errorf("CallSync() = %v, want 42", result)
	}
}

func TestCallSyncGlobalsRoundTrip(t *testing.T) {
	m := newTestMachine()
	sym := m.Symbols.Intern("x")

	setIns := concat(
		code.Make(code.INT, 9),
		code.Make(code.SET_GLOBAL, int(sym)),
		code.Make(code.RETURN),
	)
	_, err := m.CallSync(object.NewLambda(lambdaFromInstructions(0, 1, setIns)), nil)
	if err != nil {
		t.Fatalf("CallSync(set) error = %v", err)
	}

	getIns := concat(code.Make(code.LOAD_GLOBAL, int(sym)), code.Make(code.RETURN))
	result, err := m.CallSync(object.NewLambda(lambdaFromInstructions(0, 1, getIns)), nil)
	if err != nil {
		t.Fatalf("CallSync(get) error = %v", err)
	}
	if result.Int() != 9 {
		t.Errorf("LOAD_GLOBAL after SET_GLOBAL = %v, want 9", result)
	}
}

func TestCallSyncUnboundGlobalIsAnError(t *testing.T) {
	m := newTestMachine()
	sym := m.Symbols.Intern("never-set")
	ins := concat(code.Make(code.LOAD_GLOBAL, int(sym)), code.Make(code.RETURN))

	if _, err := m.CallSync(object.NewLambda(lambdaFromInstructions(0, 1, ins)), nil); err == nil {
		t.Fatal("expected an error loading an unbound global, got nil")
	}
}

func TestStepRespectsDeadline(t *testing.T) {
	m := newTestMachine()
	ins := concat(code.Make(code.NIL), code.Make(code.RETURN))
	lam := lambdaFromInstructions(0, 1, ins)
	fib := m.NewFiber(lam, nil)

	done, err := m.Step(fib, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Step() with an already-past deadline error = %v", err)
	}
	if done {
		t.Error("Step() with an already-past deadline reported done, want not done yet")
	}
}

func TestStepSleepParksTheFiberWithoutFinishing(t *testing.T) {
	m := newTestMachine()
	ins := concat(
		code.Make(code.INT, 50),
		code.Make(code.SLEEP),
		code.Make(code.NIL),
		code.Make(code.RETURN),
	)
	lam := lambdaFromInstructions(0, 1, ins)
	fib := m.NewFiber(lam, nil)

	done, err := m.Step(fib, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if done {
		t.Error("Step() reported done after SLEEP, want parked")
	}
	if fib.SleepUntil.Before(time.Now()) {
		t.Error("SleepUntil was not set to a future time")
	}
}

func TestCallSyncQuoteConstantEvaluatesViaCompile(t *testing.T) {
	m := newTestMachine()
	m.Compile = func(form object.Ref) (*object.CodeUnit, error) {
		return &object.CodeUnit{
			Instructions: code.Instructions(concat(code.Make(code.CONST, 0), code.Make(code.RETURN))),
			Constants:    []object.Ref{form},
			StackSize:    1,
		}, nil
	}

	ins := concat(
		code.Make(code.INT, 5),
		code.Make(code.EVAL),
		code.Make(code.RETURN),
	)
	result, err := m.CallSync(object.NewLambda(lambdaFromInstructions(0, 1, ins)), nil)
	if err != nil {
		t.Fatalf("CallSync() error = %v", err)
	}
	if result.Int() != 5 {
		t.Errorf("EVAL result = %v, want 5", result)
	}
}

func TestCallSyncEvalWithNoCompilerWiredIsAnError(t *testing.T) {
	m := newTestMachine()
	ins := concat(code.Make(code.INT, 1), code.Make(code.EVAL), code.Make(code.RETURN))
	if _, err := m.CallSync(object.NewLambda(lambdaFromInstructions(0, 1, ins)), nil); err == nil {
		t.Fatal("expected an error using EVAL with no compiler wired in, got nil")
	}
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
