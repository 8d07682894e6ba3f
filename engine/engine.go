// Package engine bundles the shared process-wide tables (§4.3, §4.4, §4.10) with the
// compiler and scheduler into the host-facing entry points of §4.9/§6.1: eval, eval_string,
// call_function, def_global, set_macro. It is the one place that wires the compiler's
// macro-expansion hook and the machine's EVAL-opcode compile hook back to each other,
// which keeps both the compiler and vm packages ignorant of one another (documented on
// both [compiler.Expander] and [vm.Machine.Compile]).
package engine

import (
	"fmt"
	"log"
	"sync"

	"github.com/nickwanninger/cedar/cdrerr"
	"github.com/nickwanninger/cedar/compiler"
	"github.com/nickwanninger/cedar/object"
	"github.com/nickwanninger/cedar/reader"
	"github.com/nickwanninger/cedar/scheduler"
	"github.com/nickwanninger/cedar/vm"
)

// Engine owns every process-wide resource a running Cedar program needs (§4.9).
type Engine struct {
	Symbols *object.SymbolTable
	Globals *object.Globals
	Macros  *object.MacroTable
	Machine *vm.Machine
	Sched   *scheduler.Scheduler

	// compileMu serializes access to the Compiler, which keeps per-call scope/constant
	// state and is not safe for concurrent use the way Machine and Globals are: a
	// top-level EvalString and a nested EVAL opcode running on another worker could
	// otherwise compile concurrently against the same Compiler value.
	compileMu sync.Mutex
	compiler  *compiler.Compiler
}

// New bootstraps a fresh Engine: symbol table, globals, macro table, machine, scheduler,
// and a compiler whose macro expander and EVAL-compile hook are wired to each other and
// to the scheduler's re-entrant call_function (§4.8 Completion, §4.10).
func New(logger *log.Logger) (*Engine, error) {
	symbols := object.NewSymbolTable()
	globals := object.NewGlobals()
	macros := object.NewMacroTable()
	machine := vm.NewMachine(symbols, globals, macros)

	sched, err := scheduler.New(machine, logger)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		Symbols: symbols,
		Globals: globals,
		Macros:  macros,
		Machine: machine,
		Sched:   sched,
	}

	e.compiler = compiler.New(symbols, macros, e.expandMacro)
	machine.Compile = e.compileForm

	return e, nil
}

// Start launches the scheduler's worker pool (§4.8 Topology).
func (e *Engine) Start() { e.Sched.Start() }

// Stop shuts the worker pool down.
func (e *Engine) Stop() { e.Sched.Stop() }

// compileForm serializes access to the shared Compiler and lowers one top-level form,
// used both by Eval and as the Machine.Compile hook the EVAL opcode calls (§4.7).
func (e *Engine) compileForm(form object.Ref) (*object.CodeUnit, error) {
	e.compileMu.Lock()
	defer e.compileMu.Unlock()
	return e.compiler.CompileTopLevel(form)
}

// expandMacro runs a macro lambda to completion via the scheduler's re-entrant
// call_function (§4.10), serving as the Compiler's injected Expander.
func (e *Engine) expandMacro(fn object.Ref, args []object.Ref) (object.Ref, error) {
	return e.Sched.CallFunction(fn, args)
}

// Eval compiles and runs a single form to completion (§4.9 "eval").
func (e *Engine) Eval(form object.Ref) (object.Ref, error) {
	cu, err := e.compileForm(form)
	if err != nil {
		return object.NilRef, err
	}
	lambda := object.NewLambda(&object.Lambda{Name: "toplevel", Code: cu})
	return e.Sched.CallFunction(lambda, nil)
}

// EvalString reads every top-level form in src, then compiles and runs each in turn, and
// returns the last result (§4.9 "eval_string"); a def-macro in form N is visible to form
// N+1 because each form is fully compiled and run before the next is compiled (§4.10).
func (e *Engine) EvalString(src string) (object.Ref, error) {
	forms, err := reader.ReadAll(src, e.Symbols)
	if err != nil {
		return object.NilRef, err
	}
	result := object.NilRef
	for _, form := range forms {
		result, err = e.Eval(form)
		if err != nil {
			return object.NilRef, err
		}
	}
	return result, nil
}

// CallFunction invokes fn with args, scheduling it if it is a bytecode lambda (§4.9
// "call_function").
func (e *Engine) CallFunction(fn object.Ref, args []object.Ref) (object.Ref, error) {
	return e.Sched.CallFunction(fn, args)
}

// DefGlobal binds name to v in the global table, interning name if needed (§6.1
// "def_global").
func (e *Engine) DefGlobal(name string, v object.Ref) {
	sym := e.Symbols.Intern(name)
	e.Globals.Define(sym, v)
}

// RegisterHost defines name as a host lambda wrapping fn (§6.1 "Register a host lambda
// under a name").
func (e *Engine) RegisterHost(name string, fn object.HostFn) {
	e.DefGlobal(name, object.NewLambda(&object.Lambda{Name: name, Host: fn}))
}

// SetMacro registers fn as the macro expander for name (§6.1 "Register a macro").
func (e *Engine) SetMacro(name string, fn object.Ref) error {
	lam, ok := object.AsLambda(fn)
	if !ok || lam == nil {
		return &cdrerr.TypeError{Operation: "set_macro", TypeName: "non-lambda"}
	}
	sym := e.Symbols.Intern(name)
	e.Macros.Define(sym, fn)
	return nil
}
