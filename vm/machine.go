// Package vm implements the bytecode interpreter loop (§4.7) and the polymorphic dispatch
// glue (§4.1) that the object package's data representation deliberately stays ignorant
// of: GetAttr/SetAttr/Call/First/Rest/Cons/Get/Set/Size/ToString/Hash/Equals all may need
// to invoke a user-defined lambda found by method-resolution-order lookup, and invoking a
// lambda means running a frame, which is this package's job, not object's.
package vm

import (
	"fmt"
	"math"
	"time"

	"github.com/nickwanninger/cedar/cdrerr"
	"github.com/nickwanninger/cedar/code"
	"github.com/nickwanninger/cedar/object"
)

// Machine owns the process-wide state a fiber's interpreter loop and dispatch glue both
// need: the frame pool, symbol table, globals, and macro table (§4.4, §4.3, §4.10, §5).
// It is safe for concurrent use by multiple worker goroutines, each driving a different
// fiber.
type Machine struct {
	pool    *framePool
	Symbols *object.SymbolTable
	Globals *object.Globals
	Macros  *object.MacroTable

	symFirst, symRest, symCons      object.SymbolID
	symGet, symSet, symSize         object.SymbolID
	symToString, symHash, symEquals object.SymbolID
	symAlloc, symNew, symApply      object.SymbolID

	// Compile lowers a data form into a runnable code unit for the EVAL opcode. It is
	// injected by the engine package rather than imported directly, since compiler's
	// layering keeps it ignorant of vm and this avoids the reverse dependency.
	Compile func(form object.Ref) (*object.CodeUnit, error)
}

// NewMachine creates a Machine sharing the given symbol table, globals, and macro table.
func NewMachine(symbols *object.SymbolTable, globals *object.Globals, macros *object.MacroTable) *Machine {
	m := &Machine{pool: newFramePool(), Symbols: symbols, Globals: globals, Macros: macros}
	m.symFirst = symbols.Intern("first")
	m.symRest = symbols.Intern("rest")
	m.symCons = symbols.Intern("cons")
	m.symGet = symbols.Intern("get")
	m.symSet = symbols.Intern("set")
	m.symSize = symbols.Intern("size")
	m.symToString = symbols.Intern("to_string")
	m.symHash = symbols.Intern("hash")
	m.symEquals = symbols.Intern("equals")
	m.symAlloc = symbols.Intern("__alloc__")
	m.symNew = symbols.Intern("new")
	m.symApply = symbols.Intern("apply")
	return m
}

// NewFiber wraps lambda in a fresh fiber ready to run (§4.9).
func (m *Machine) NewFiber(lambda *object.Lambda, args []object.Ref) *Fiber {
	return newFiber(m.pool, lambda, args)
}

// CallSync runs fn to completion on a brand-new fiber, driven synchronously on the calling
// goroutine with no time-slicing - used by host lambdas re-entering Cedar code, by method
// dispatch and type instantiation, and by the EVAL opcode (§4.7 open question: EVAL
// "drives [a nested fiber] to completion synchronously on the current worker," a potential
// self-deadlock if that fiber needed this worker's own deque; not detected). A bytecode
// lambda's argument count is checked first, as CALL does.
func (m *Machine) CallSync(fn object.Ref, args []object.Ref) (object.Ref, error) {
	lambda, ok := object.AsLambda(fn)
	if !ok {
		return object.NilRef, &cdrerr.TypeError{Operation: "call", TypeName: typeName(fn)}
	}
	if lambda.IsHost() {
		ctx := &object.CallContext{Call: m.CallSync}
		return lambda.Host(args, ctx)
	}
	if !lambda.Code.RestArg && len(args) != lambda.Code.Argc {
		return object.NilRef, &cdrerr.ArityError{Name: lambda.Name, Want: lambda.Code.Argc, Got: len(args)}
	}
	if lambda.Code.RestArg && len(args) < lambda.Code.Argc {
		return object.NilRef, &cdrerr.ArityError{Name: lambda.Name, Want: lambda.Code.Argc, WantRest: true, Got: len(args)}
	}
	fib := m.NewFiber(lambda, args)
	for {
		done, err := m.Step(fib, time.Now().Add(24*time.Hour))
		if err != nil {
			return object.NilRef, err
		}
		if done {
			return fib.Result, fib.Err
		}
	}
}

// Step runs fib until it completes, sleeps, or its time slice (bounded by deadline)
// expires, whichever comes first (§4.7, §4.8). done reports whether the fiber finished
// (successfully or with an error, recorded on fib.Result/fib.Err).
func (m *Machine) Step(fib *Fiber, deadline time.Time) (done bool, err error) {
	fib.LastRan = time.Now()
	for {
		if time.Now().After(deadline) {
			return false, nil
		}
		if fib.frame == nil {
			fib.Done = true
			return true, nil
		}

		ins := fib.frame.Instructions()
		if fib.frame.ip >= len(ins) {
			return false, &cdrerr.InternalError{Message: "instruction pointer ran off the end of the code unit"}
		}

		op := code.Opcode(ins[fib.frame.ip])
		def, lookupErr := code.Lookup(byte(op))
		if lookupErr != nil {
			fib.Done, fib.Err = true, &cdrerr.InternalError{Message: lookupErr.Error()}
			return true, fib.Err
		}
		operands, width := code.ReadOperands(def, ins[fib.frame.ip+1:])
		fib.frame.ip += 1 + width

		yield, sleeping, runErr := m.execute(fib, op, operands)
		if runErr != nil {
			fib.Done, fib.Err = true, runErr
			return true, runErr
		}
		if sleeping {
			return false, nil
		}
		if yield {
			fib.Done = true
			return true, nil
		}
	}
}

// execute runs a single instruction. yield reports the fiber has finished (EXIT or
// outermost RETURN); sleeping reports it parked on SLEEP and should be rescheduled no
// earlier than fib.SleepUntil.
func (m *Machine) execute(fib *Fiber, op code.Opcode, operands []int) (yield, sleeping bool, err error) {
	switch op {
	case code.NOP:

	case code.NIL:
		fib.push(object.NilRef)

	case code.CONST:
		fib.push(fib.frame.lambda.Code.Constants[operands[0]])

	case code.INT:
		fib.push(object.Int(int64(operands[0])))

	case code.FLOAT:
		fib.push(object.Float(math.Float64frombits(uint64(operands[0]))))

	case code.LOAD_LOCAL:
		fib.push(fib.frame.lambda.Closure[operands[0]])

	case code.SET_LOCAL:
		fib.frame.lambda.Closure[operands[0]] = fib.top()

	case code.LOAD_GLOBAL:
		sym := object.SymbolID(operands[0])
		v, ok := m.Globals.Get(sym)
		if !ok {
			return false, false, &cdrerr.NameError{Name: m.Symbols.Name(sym)}
		}
		fib.push(v)

	case code.SET_GLOBAL:
		sym := object.SymbolID(operands[0])
		v := fib.pop()
		m.Globals.Set(sym, v)
		fib.push(v)

	case code.CONS:
		tail := fib.pop()
		head := fib.pop()
		fib.push(object.NewList(head, tail))

	case code.APPEND:
		b := fib.pop()
		a := fib.pop()
		av, aok := object.ListToSlice(a)
		if !aok {
			return false, false, &cdrerr.TypeError{Operation: "append", TypeName: typeName(a)}
		}
		fib.push(appendList(av, b))

	case code.CALL:
		if err := m.call(fib, operands[0]); err != nil {
			return false, false, err
		}

	case code.MAKE_FUNC:
		tmpl, ok := object.AsLambda(fib.frame.lambda.Code.Constants[operands[0]])
		if !ok {
			return false, false, &cdrerr.InternalError{Message: "MAKE_FUNC constant is not a lambda template"}
		}
		inherited := tmpl.WithClosure(fib.frame.lambda.Closure)
		fib.push(object.NewLambda(inherited))

	case code.RETURN:
		result := fib.pop()
		finished := fib.frame.caller == nil
		m.pool.put(fib.popFrame())
		if finished {
			fib.Result = result
			return true, false, nil
		}
		fib.push(result)

	case code.JUMP:
		fib.frame.ip = operands[0]

	case code.JUMP_IF_FALSE:
		v := fib.pop()
		if !v.Truthy() {
			fib.frame.ip = operands[0]
		}

	case code.RECUR:
		n := operands[0]
		args := make([]object.Ref, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = fib.pop()
		}
		copy(fib.frame.lambda.Closure, args)
		fib.frame.ip = 0

	case code.DUP:
		fib.push(fib.stack[fib.sp-1-operands[0]])

	case code.SKIP:
		fib.pop()

	case code.SWAP:
		fib.stack[fib.sp-1], fib.stack[fib.sp-2] = fib.stack[fib.sp-2], fib.stack[fib.sp-1]

	case code.GET_ATTR:
		obj := fib.pop()
		v, err := m.GetAttr(obj, object.SymbolID(operands[0]))
		if err != nil {
			return false, false, err
		}
		fib.push(v)

	case code.SET_ATTR:
		v := fib.pop()
		obj := fib.pop()
		if err := m.SetAttr(obj, object.SymbolID(operands[0]), v); err != nil {
			return false, false, err
		}
		fib.push(v)

	case code.DEF_MACRO:
		fn := fib.pop()
		sym := object.SymbolID(operands[0])
		m.Macros.Define(sym, fn)
		fib.push(object.NewSymbolRef(sym))

	case code.EVAL:
		form := fib.pop()
		result, err := m.evalForm(form)
		if err != nil {
			return false, false, err
		}
		fib.push(result)

	case code.SLEEP:
		d := fib.pop()
		ms := int64(0)
		switch {
		case d.IsInt():
			ms = d.Int()
		case d.IsFloat():
			ms = int64(d.Float())
		}
		fib.SleepUntil = time.Now().Add(time.Duration(ms) * time.Millisecond)
		return false, true, nil

	case code.EXIT:
		fib.Result = fib.pop()
		return true, false, nil

	default:
		return false, false, &cdrerr.InternalError{Message: fmt.Sprintf("unimplemented opcode %d", op)}
	}
	return false, false, nil
}

// call implements CALL n (§4.6/§4.1): invoke the value at stack[sp-n-1] with n args,
// replacing callee+args with the single result. Resolution follows the CALL table of
// §4.7: a lambda runs (bytecode lambdas push a new frame, host lambdas run to completion
// immediately); a Type is instantiated via its __alloc__ attribute and constructed via its
// new method; anything else dispatches through an overridable apply method.
func (m *Machine) call(fib *Fiber, n int) error {
	args := make([]object.Ref, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = fib.pop()
	}
	callee := fib.pop()

	if lambda, ok := object.AsLambda(callee); ok {
		return m.callLambda(fib, lambda, args)
	}
	if typ, ok := object.AsType(callee); ok {
		return m.callType(fib, typ, args)
	}
	return m.callApply(fib, callee, args)
}

// callLambda runs a resolved lambda with args, pushing a bytecode frame or running a host
// lambda to completion immediately (§4.6).
func (m *Machine) callLambda(fib *Fiber, lambda *object.Lambda, args []object.Ref) error {
	if !lambda.IsHost() {
		if !lambda.Code.RestArg && len(args) != lambda.Code.Argc {
			return &cdrerr.ArityError{Name: lambda.Name, Want: lambda.Code.Argc, Got: len(args)}
		}
		if lambda.Code.RestArg && len(args) < lambda.Code.Argc {
			return &cdrerr.ArityError{Name: lambda.Name, Want: lambda.Code.Argc, WantRest: true, Got: len(args)}
		}
		fib.pushCall(lambda, args)
		return nil
	}

	ctx := &object.CallContext{Fiber: fib, Scheduler: nil, Call: m.CallSync}
	result, err := lambda.Host(args, ctx)
	if err != nil {
		return err
	}
	fib.push(result)
	return nil
}

// callType implements CALL on a Type (§4.2/§4.1): invoke the type's __alloc__ attribute
// with no arguments to get a fresh instance (falling back to a blank object of that type
// if none was installed), then resolve and call the instance's new method via MRO with the
// original args and the instance prepended as argv[0]. The instance itself, not new's
// return value, is left on the stack.
func (m *Machine) callType(fib *Fiber, typ *object.Type, args []object.Ref) error {
	instance, err := m.alloc(typ)
	if err != nil {
		return err
	}

	instTyp := typeOfRef(instance)
	if instTyp != nil {
		if ctor, ok := instTyp.ResolveMethod(m.symNew); ok {
			ctorArgs := make([]object.Ref, 0, len(args)+1)
			ctorArgs = append(ctorArgs, instance)
			ctorArgs = append(ctorArgs, args...)
			if _, err := m.CallSync(ctor, ctorArgs); err != nil {
				return err
			}
		}
	}

	fib.push(instance)
	return nil
}

// alloc resolves and invokes typ's __alloc__ attribute, falling back to a blank instance
// of typ when the type never installed one (every builtin type and any type that skips
// __set_type_field__'s default wiring).
func (m *Machine) alloc(typ *object.Type) (object.Ref, error) {
	allocFn, ok := typ.OwnAttr(m.symAlloc)
	if !ok {
		return object.FromHeap(object.NewObject(typ)), nil
	}
	return m.CallSync(allocFn, nil)
}

// callApply implements the CALL fallback (§4.1): callee is neither a lambda nor a Type, so
// resolve an apply method via its type's MRO and call it with callee prepended as argv[0].
func (m *Machine) callApply(fib *Fiber, callee object.Ref, args []object.Ref) error {
	typ := typeOfRef(callee)
	if typ == nil {
		return &cdrerr.TypeError{Operation: "call", TypeName: typeName(callee)}
	}
	applyFn, ok := typ.ResolveMethod(m.symApply)
	if !ok {
		return &cdrerr.TypeError{Operation: "call", TypeName: typeName(callee)}
	}

	applyArgs := make([]object.Ref, 0, len(args)+1)
	applyArgs = append(applyArgs, callee)
	applyArgs = append(applyArgs, args...)
	result, err := m.CallSync(applyFn, applyArgs)
	if err != nil {
		return err
	}
	fib.push(result)
	return nil
}

// typeOfRef returns r's governing type, covering immediates as well as heap values, or nil
// if none applies (no builtin type currently exists for tag-less edge cases).
func typeOfRef(r object.Ref) *object.Type {
	switch {
	case r.IsInt():
		return object.IntType
	case r.IsFloat():
		return object.FloatType
	case r.IsNil():
		return object.NilType
	case r.IsBool():
		return object.BoolType
	case r.IsHeap():
		return r.Heap().TypeOf()
	}
	return nil
}

// evalForm implements the EVAL opcode's "compiles and runs it to completion on a fresh
// fiber" contract (§4.7). See CallSync's doc comment about the self-deadlock risk this
// carries.
func (m *Machine) evalForm(form object.Ref) (object.Ref, error) {
	if m.Compile == nil {
		return object.NilRef, &cdrerr.InternalError{Message: "EVAL used with no compiler wired into the machine"}
	}
	cu, err := m.Compile(form)
	if err != nil {
		return object.NilRef, err
	}
	lambda := &object.Lambda{Name: "eval", Code: cu}
	return m.CallSync(object.NewLambda(lambda), nil)
}

func appendList(a []object.Ref, b object.Ref) object.Ref {
	bv, ok := object.ListToSlice(b)
	if !ok {
		bv = []object.Ref{b}
	}
	out := make([]object.Ref, 0, len(a)+len(bv))
	out = append(out, a...)
	out = append(out, bv...)
	return object.ListFromSlice(out)
}

func typeName(r object.Ref) string {
	switch {
	case r.IsInt():
		return "Int"
	case r.IsFloat():
		return "Float"
	case r.IsNil():
		return "Nil"
	case r.IsBool():
		return "Bool"
	case r.IsHeap():
		return r.Heap().TypeOf().Name
	}
	return "?"
}
