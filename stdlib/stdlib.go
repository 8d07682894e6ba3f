// Package stdlib registers the fixed table of host lambdas that bytecode alone cannot
// express (§4.12): I/O, list/vector/dict helpers, the polymorphic §4.1 operations exposed
// to Cedar code as ordinary callables, and the chan/go/send/recv concurrency sugar.
package stdlib

import (
	"fmt"
	"os"

	"github.com/nickwanninger/cedar/cdrerr"
	"github.com/nickwanninger/cedar/engine"
	"github.com/nickwanninger/cedar/object"
)

// Register installs every stdlib entry into e's globals, following the usual
// table-of-structs-with-a-Fn-closure registration shape for a fixed builtin set.
func Register(e *engine.Engine) {
	for _, b := range ioAndCollectionBuiltins(e) {
		e.RegisterHost(b.name, b.fn)
	}
	for _, b := range dispatchBuiltins(e) {
		e.RegisterHost(b.name, b.fn)
	}
	for _, b := range concurrencyBuiltins(e) {
		e.RegisterHost(b.name, b.fn)
	}
	for _, b := range typeBuiltins(e) {
		e.RegisterHost(b.name, b.fn)
	}
	for _, b := range arithmeticBuiltins(e) {
		e.RegisterHost(b.name, b.fn)
	}
}

type entry struct {
	name string
	fn   object.HostFn
}

func arity(name string, argv []object.Ref, want int) error {
	if len(argv) != want {
		return &cdrerr.ArityError{Name: name, Want: want, Got: len(argv)}
	}
	return nil
}

// ioAndCollectionBuiltins covers the teacher-analogue builtins (len/push) plus
// I/O and the list/vector/dict constructors §4.12 names.
func ioAndCollectionBuiltins(e *engine.Engine) []entry {
	return []entry{
		{"puts", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			for _, a := range argv {
				s, err := e.Machine.ToString(a)
				if err != nil {
					return object.NilRef, err
				}
				str, _ := object.AsString(s)
				fmt.Fprintln(os.Stdout, str)
			}
			return object.NilRef, nil
		}},
		{"print", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			for _, a := range argv {
				s, err := e.Machine.ToString(a)
				if err != nil {
					return object.NilRef, err
				}
				str, _ := object.AsString(s)
				fmt.Fprint(os.Stdout, str)
			}
			return object.NilRef, nil
		}},
		{"len", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("len", argv, 1); err != nil {
				return object.NilRef, err
			}
			return e.Machine.Size(argv[0])
		}},
		{"push", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("push", argv, 2); err != nil {
				return object.NilRef, err
			}
			v, ok := object.AsVector(argv[0])
			if !ok {
				return object.NilRef, &cdrerr.TypeError{Operation: "push", TypeName: "non-vector"}
			}
			v.Push(argv[1])
			return argv[0], nil
		}},
		{"list", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			return object.ListFromSlice(argv), nil
		}},
		{"vector", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			return object.NewVector(argv...), nil
		}},
		{"dict", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if len(argv)%2 != 0 {
				return object.NilRef, &cdrerr.ArgumentError{Message: "dict requires an even number of key/value arguments"}
			}
			ref := object.NewDict()
			d, _ := object.AsDict(ref)
			for i := 0; i < len(argv); i += 2 {
				d.Set(argv[i], argv[i+1])
			}
			return ref, nil
		}},
		{"keys", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("keys", argv, 1); err != nil {
				return object.NilRef, err
			}
			d, ok := object.AsDict(argv[0])
			if !ok {
				return object.NilRef, &cdrerr.TypeError{Operation: "keys", TypeName: "non-dict"}
			}
			var out []object.Ref
			d.Each(func(k, v object.Ref) { out = append(out, k) })
			return object.ListFromSlice(out), nil
		}},
		{"str", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("str", argv, 1); err != nil {
				return object.NilRef, err
			}
			return e.Machine.ToString(argv[0])
		}},
	}
}

// dispatchBuiltins exposes the §4.1 polymorphic reference operations as ordinary
// callables, since the fixed opcode set (§4.7) has no FIRST/REST/GET/SET/SIZE/EQUALS
// instructions of its own - only CONS for the non-overridable list-cell constructor, and
// GET_ATTR/SET_ATTR, which Cedar source has no other way to reach since nothing compiles
// directly to them (there is no dot-attribute syntax). Cedar source reaches the
// overridable, MRO-dispatched versions by calling these.
func dispatchBuiltins(e *engine.Engine) []entry {
	return []entry{
		{"first", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("first", argv, 1); err != nil {
				return object.NilRef, err
			}
			return e.Machine.First(argv[0])
		}},
		{"rest", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("rest", argv, 1); err != nil {
				return object.NilRef, err
			}
			return e.Machine.Rest(argv[0])
		}},
		{"cons", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("cons", argv, 2); err != nil {
				return object.NilRef, err
			}
			return e.Machine.Cons(argv[0], argv[1])
		}},
		{"get", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("get", argv, 2); err != nil {
				return object.NilRef, err
			}
			return e.Machine.Get(argv[0], argv[1])
		}},
		{"set", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("set", argv, 3); err != nil {
				return object.NilRef, err
			}
			return e.Machine.Set(argv[0], argv[1], argv[2])
		}},
		{"size", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("size", argv, 1); err != nil {
				return object.NilRef, err
			}
			return e.Machine.Size(argv[0])
		}},
		{"get_attr", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("get_attr", argv, 2); err != nil {
				return object.NilRef, err
			}
			sym, ok := object.AsSymbol(argv[1])
			if !ok {
				return object.NilRef, &cdrerr.ArgumentError{Message: "get_attr's second argument must be a symbol"}
			}
			return e.Machine.GetAttr(argv[0], sym)
		}},
		{"set_attr", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("set_attr", argv, 3); err != nil {
				return object.NilRef, err
			}
			sym, ok := object.AsSymbol(argv[1])
			if !ok {
				return object.NilRef, &cdrerr.ArgumentError{Message: "set_attr's second argument must be a symbol"}
			}
			if err := e.Machine.SetAttr(argv[0], sym, argv[2]); err != nil {
				return object.NilRef, err
			}
			return argv[2], nil
		}},
		{"equals", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("equals", argv, 2); err != nil {
				return object.NilRef, err
			}
			ok, err := e.Machine.Equals(argv[0], argv[1])
			if err != nil {
				return object.NilRef, err
			}
			return object.Bool(ok), nil
		}},
	}
}

// concurrencyBuiltins implements chan/go/send/recv over object.Channel (§4.12, §5(g)).
func concurrencyBuiltins(e *engine.Engine) []entry {
	return []entry{
		{"chan", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			capacity := 0
			if len(argv) == 1 {
				if !argv[0].IsInt() {
					return object.NilRef, &cdrerr.ArgumentError{Message: "chan's capacity must be an int"}
				}
				capacity = int(argv[0].Int())
			} else if len(argv) != 0 {
				return object.NilRef, &cdrerr.ArityError{Name: "chan", Want: 0, Got: len(argv)}
			}
			return object.NewChannel(capacity), nil
		}},
		{"send", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("send", argv, 2); err != nil {
				return object.NilRef, err
			}
			ch, ok := object.AsChannel(argv[0])
			if !ok {
				return object.NilRef, &cdrerr.TypeError{Operation: "send", TypeName: "non-channel"}
			}
			return object.Bool(ch.Send(argv[1])), nil
		}},
		{"recv", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("recv", argv, 1); err != nil {
				return object.NilRef, err
			}
			ch, ok := object.AsChannel(argv[0])
			if !ok {
				return object.NilRef, &cdrerr.TypeError{Operation: "recv", TypeName: "non-channel"}
			}
			v, ok := ch.Recv()
			if !ok {
				return object.NilRef, nil
			}
			return v, nil
		}},
		{"go", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if len(argv) == 0 {
				return object.NilRef, &cdrerr.ArityError{Name: "go", Want: 1, WantRest: true, Got: 0}
			}
			lambda, ok := object.AsLambda(argv[0])
			if !ok {
				return object.NilRef, &cdrerr.TypeError{Operation: "go", TypeName: "non-lambda"}
			}
			args := argv[1:]
			if lambda.IsHost() {
				go func() { _, _ = lambda.Host(args, &object.CallContext{Call: e.Sched.CallFunction}) }()
				return object.NilRef, nil
			}
			fib := e.Machine.NewFiber(lambda, args)
			e.Sched.AddJob(fib)
			return object.NilRef, nil
		}},
	}
}

// typeBuiltins backs the `deftype` special form (compiler.compileDeftype) with the two
// host lambdas it compiles calls to: one to construct a Type from a name and its parents,
// one to install a method on it (§4.2). Giving Cedar code a way to create types at all is
// what lets CALL's type-instantiation branch (vm.Machine.callType) ever see a non-builtin
// Type as a callee, the way the deleted evaluator's class-literal path used to.
func typeBuiltins(e *engine.Engine) []entry {
	allocSym := e.Symbols.Intern("__alloc__")

	return []entry{
		{"__make_type__", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if len(argv) < 1 {
				return object.NilRef, &cdrerr.ArityError{Name: "__make_type__", Want: 1, WantRest: true, Got: len(argv)}
			}
			name, ok := object.AsString(argv[0])
			if !ok {
				return object.NilRef, &cdrerr.ArgumentError{Message: "__make_type__'s first argument must be a string naming the type"}
			}
			parents := make([]*object.Type, 0, len(argv)-1)
			for _, p := range argv[1:] {
				parent, ok := object.AsType(p)
				if !ok {
					return object.NilRef, &cdrerr.ArgumentError{Message: "__make_type__'s parents must be types"}
				}
				parents = append(parents, parent)
			}

			typ := object.NewType(object.TypeType, name, parents...)
			typ.SetOwnAttr(allocSym, object.NewLambda(&object.Lambda{
				Name: name + ".__alloc__",
				Host: func(_ []object.Ref, _ *object.CallContext) (object.Ref, error) {
					return object.FromHeap(object.NewObject(typ)), nil
				},
			}))
			return object.FromHeap(typ), nil
		}},
		{"__set_type_field__", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if err := arity("__set_type_field__", argv, 3); err != nil {
				return object.NilRef, err
			}
			typ, ok := object.AsType(argv[0])
			if !ok {
				return object.NilRef, &cdrerr.ArgumentError{Message: "__set_type_field__'s first argument must be a type"}
			}
			sym, ok := object.AsSymbol(argv[1])
			if !ok {
				return object.NilRef, &cdrerr.ArgumentError{Message: "__set_type_field__'s second argument must be a symbol"}
			}
			typ.SetField(sym, argv[2])
			return argv[0], nil
		}},
	}
}

// number is the shared representation arithmeticBuiltins's fold functions operate over,
// carrying the §4.1 promotion decision (int + int stays int; any float participant forces
// float) alongside the operand's value in whichever form it arrived in.
type number struct {
	isFloat bool
	i       int64
	f       float64
}

func asNumber(name string, r object.Ref) (number, error) {
	switch {
	case r.IsInt():
		return number{i: r.Int()}, nil
	case r.IsFloat():
		return number{isFloat: true, f: r.Float()}, nil
	}
	return number{}, &cdrerr.TypeError{Operation: name, TypeName: typeNameFor(r)}
}

func (n number) asFloat() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func (n number) toRef() object.Ref {
	if n.isFloat {
		return object.Float(n.f)
	}
	return object.Int(n.i)
}

func addNumbers(a, b number) number {
	if a.isFloat || b.isFloat {
		return number{isFloat: true, f: a.asFloat() + b.asFloat()}
	}
	return number{i: a.i + b.i}
}

func subNumbers(a, b number) number {
	if a.isFloat || b.isFloat {
		return number{isFloat: true, f: a.asFloat() - b.asFloat()}
	}
	return number{i: a.i - b.i}
}

func mulNumbers(a, b number) number {
	if a.isFloat || b.isFloat {
		return number{isFloat: true, f: a.asFloat() * b.asFloat()}
	}
	return number{i: a.i * b.i}
}

func divNumbers(a, b number) (number, error) {
	if !a.isFloat && !b.isFloat {
		if b.i == 0 {
			return number{}, &cdrerr.ArgumentError{Message: "/ by zero"}
		}
		return number{i: a.i / b.i}, nil
	}
	bf := b.asFloat()
	if bf == 0 {
		return number{}, &cdrerr.ArgumentError{Message: "/ by zero"}
	}
	return number{isFloat: true, f: a.asFloat() / bf}, nil
}

// arithmeticBuiltins implements the numeric operators missing from the fixed opcode set
// (§4.1 promotion rule, §8 scenarios 1/2) the same way dispatchBuiltins exposes the §4.1
// polymorphic operations: as ordinary stdlib callables rather than new opcodes, so
// compiler.compileCall needs no special casing for them - `+`/`-`/`<` etc. are just global
// symbols that happen to resolve to host lambdas.
func arithmeticBuiltins(e *engine.Engine) []entry {
	fold := func(name string, identity number, hasIdentity bool, f func(a, b number) number) object.HostFn {
		return func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if len(argv) == 0 {
				if !hasIdentity {
					return object.NilRef, &cdrerr.ArityError{Name: name, Want: 1, WantRest: true, Got: 0}
				}
				return identity.toRef(), nil
			}
			acc, err := asNumber(name, argv[0])
			if err != nil {
				return object.NilRef, err
			}
			for _, r := range argv[1:] {
				n, err := asNumber(name, r)
				if err != nil {
					return object.NilRef, err
				}
				acc = f(acc, n)
			}
			return acc.toRef(), nil
		}
	}

	compare := func(name string, cmp func(a, b float64) bool) object.HostFn {
		return func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if len(argv) < 2 {
				return object.NilRef, &cdrerr.ArityError{Name: name, Want: 2, WantRest: true, Got: len(argv)}
			}
			prev, err := asNumber(name, argv[0])
			if err != nil {
				return object.NilRef, err
			}
			for _, r := range argv[1:] {
				cur, err := asNumber(name, r)
				if err != nil {
					return object.NilRef, err
				}
				if !cmp(prev.asFloat(), cur.asFloat()) {
					return object.Bool(false), nil
				}
				prev = cur
			}
			return object.Bool(true), nil
		}
	}

	return []entry{
		{"+", fold("+", number{i: 0}, true, addNumbers)},
		{"*", fold("*", number{i: 1}, true, mulNumbers)},
		{"-", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if len(argv) == 0 {
				return object.NilRef, &cdrerr.ArityError{Name: "-", Want: 1, WantRest: true, Got: 0}
			}
			first, err := asNumber("-", argv[0])
			if err != nil {
				return object.NilRef, err
			}
			if len(argv) == 1 {
				return subNumbers(number{i: 0}, first).toRef(), nil
			}
			acc := first
			for _, r := range argv[1:] {
				n, err := asNumber("-", r)
				if err != nil {
					return object.NilRef, err
				}
				acc = subNumbers(acc, n)
			}
			return acc.toRef(), nil
		}},
		{"/", func(argv []object.Ref, ctx *object.CallContext) (object.Ref, error) {
			if len(argv) < 2 {
				return object.NilRef, &cdrerr.ArityError{Name: "/", Want: 2, WantRest: true, Got: len(argv)}
			}
			acc, err := asNumber("/", argv[0])
			if err != nil {
				return object.NilRef, err
			}
			for _, r := range argv[1:] {
				n, err := asNumber("/", r)
				if err != nil {
					return object.NilRef, err
				}
				acc, err = divNumbers(acc, n)
				if err != nil {
					return object.NilRef, err
				}
			}
			return acc.toRef(), nil
		}},
		{"<", compare("<", func(a, b float64) bool { return a < b })},
		{">", compare(">", func(a, b float64) bool { return a > b })},
		{"<=", compare("<=", func(a, b float64) bool { return a <= b })},
		{">=", compare(">=", func(a, b float64) bool { return a >= b })},
		{"=", compare("=", func(a, b float64) bool { return a == b })},
	}
}

func typeNameFor(r object.Ref) string {
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
