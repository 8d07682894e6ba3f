package vm

import (
	"time"

	"github.com/google/uuid"
	"github.com/nickwanninger/cedar/object"
)

const stackCapacityDefault = 2048

// Fiber is one cooperative coroutine (§3 "Fiber", §4.7): a unique id, an expandable
// operand stack, a call-frame chain (newest first, reachable as the current *Frame's
// caller links), a done flag, scheduling timestamps, and the most recent return value.
type Fiber struct {
	ID uuid.UUID

	stack []object.Ref
	sp    int

	frame *Frame
	pool  *framePool

	Done       bool
	LastRan    time.Time
	SleepUntil time.Time
	Result     object.Ref
	Err        error
}

// newFiber wraps lambda in a fresh fiber ready to run, per §4.9 "Fibers are created by
// wrapping a lambda." Frame allocation goes through the shared pool passed in by the
// owning [Machine] (§5 shared resource (a): a single mutex guards the frame pool
// process-wide, not one per fiber).
func newFiber(pool *framePool, lambda *object.Lambda, args []object.Ref) *Fiber {
	fib := &Fiber{
		ID:    uuid.New(),
		stack: make([]object.Ref, stackCapacityDefault),
		pool:  pool,
	}
	fib.pushCall(lambda, args)
	return fib
}

func (f *Fiber) push(v object.Ref) {
	if f.sp == len(f.stack) {
		f.stack = append(f.stack, v)
	} else {
		f.stack[f.sp] = v
	}
	f.sp++
}

func (f *Fiber) pop() object.Ref {
	f.sp--
	return f.stack[f.sp]
}

func (f *Fiber) top() object.Ref {
	return f.stack[f.sp-1]
}

// pushCall allocates a fresh closure for a bytecode lambda invocation (copy-on-call, §4.6)
// and pushes a new frame over it. Host lambda invocation does not go through this path;
// see [Machine.callLambda] in machine.go. The arguments go into the parameter slots, which
// follow the slots inherited from enclosing scopes (the compiler numbers them that way).
func (f *Fiber) pushCall(lambda *object.Lambda, args []object.Ref) {
	size := lambda.Code.NumLocals
	if len(args) > size && !lambda.Code.RestArg {
		size = len(args)
	}
	closure := make([]object.Ref, size)
	copy(closure, lambda.Closure)

	argc := lambda.Code.Argc
	params := argc
	if lambda.Code.RestArg {
		params++
	}
	base := lambda.Code.NumLocals - params
	if base < 0 {
		base = 0
	}
	if !lambda.Code.RestArg {
		copy(closure[base:], args)
	} else {
		n := argc
		if n > len(args) {
			n = len(args)
		}
		copy(closure[base:base+n], args[:n])
		if base+argc < len(closure) {
			closure[base+argc] = object.ListFromSlice(args[n:])
		}
	}

	called := lambda.WithClosure(closure)
	frame := f.pool.get(called, f.sp, f.frame)
	f.frame = frame
}

func (f *Fiber) popFrame() *Frame {
	fr := f.frame
	f.frame = fr.caller
	return fr
}
