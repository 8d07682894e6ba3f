package object

// CallContext is passed to every host lambda invocation (§4.6: "a function pointer with
// signature (argc, argv, call_context) -> ref"). It carries opaque references to the
// fiber and scheduler driving the call (typed as any to avoid an import cycle between
// object and vm/scheduler, which both depend on object) plus a Call hook a host lambda
// can use to re-enter Cedar code (e.g. to call a user-supplied comparator).
type CallContext struct {
	// Fiber is the *vm.Fiber executing this call, opaque here.
	Fiber any

	// Scheduler is the *scheduler.Scheduler driving execution, opaque here.
	Scheduler any

	// Call invokes a Cedar callable (lambda, type, or any value with an apply method)
	// with the given arguments and returns its result, re-entering the engine. It is
	// nil only in contexts (such as unit tests of a builtin in isolation) that do not
	// need re-entrant calls.
	Call func(fn Ref, args []Ref) (Ref, error)
}

// HostFn is a host lambda's Go implementation (§3 "Lambda", §4.6).
type HostFn func(argv []Ref, ctx *CallContext) (Ref, error)

// Lambda is a callable value: either a bytecode lambda (Code + Closure) or a host
// lambda (Host) - §3, §4.6. Lambdas are immutable after construction except for the
// closure binding on call, which copy-on-call gives a fresh lambda record for.
type Lambda struct {
	// Name labels the lambda, for example in arity errors; it is empty for anonymous
	// lambdas.
	Name string

	// Code is the bytecode lambda's code unit, nil for host lambdas.
	Code *CodeUnit

	// Closure holds the references captured from enclosing lexical scopes plus the
	// invocation's own locals, private to one invocation (§3 invariants). Nil for
	// host lambdas.
	Closure []Ref

	// Host is the host lambda's Go implementation, nil for bytecode lambdas.
	Host HostFn
}

// IsHost reports whether l is a host lambda rather than a bytecode lambda.
func (l *Lambda) IsHost() bool { return l.Host != nil }

// WithClosure returns a shallow copy of l sharing the same Code/Host but with its own
// Closure slice, implementing the copy-on-call contract of §4.6/§3 ("closure vector...
// private to that invocation; copy-on-call ensures concurrent calls to the same lambda
// do not alias closure slots").
func (l *Lambda) WithClosure(closure []Ref) *Lambda {
	return &Lambda{
		Name:    l.Name,
		Code:    l.Code,
		Closure: closure,
		Host:    l.Host,
	}
}
