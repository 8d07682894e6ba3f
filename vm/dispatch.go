package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nickwanninger/cedar/cdrerr"
	"github.com/nickwanninger/cedar/object"
)

// GetAttr reads an attribute by method-resolution-order (§4.1, §4.2): a plain object's own
// attribute map first, then - for any heap value - its type's MRO-resolved instance method
// table, falling back to the type's own attribute map when r is itself a [object.Type]
// (playing the role an ordinary object's attrs plays, per the object package's doc
// comments).
func (m *Machine) GetAttr(r object.Ref, sym object.SymbolID) (object.Ref, error) {
	if !r.IsHeap() {
		return object.NilRef, &cdrerr.TypeError{Operation: "get_attr", TypeName: typeName(r)}
	}
	h := r.Heap()
	if v, ok := h.OwnAttr(sym); ok {
		return v, nil
	}
	if v, ok := h.TypeOf().ResolveMethod(sym); ok {
		return v, nil
	}
	if t, ok := h.(*object.Type); ok {
		if v, ok := t.OwnAttr(sym); ok {
			return v, nil
		}
	}
	return object.NilRef, &cdrerr.TypeError{Operation: fmt.Sprintf("get_attr(%s)", m.Symbols.Name(sym)), TypeName: typeName(r)}
}

// SetAttr writes an attribute directly into r's own attribute map, bypassing MRO lookup
// (§4.2: "set_attr" always targets the receiver itself, never a parent).
func (m *Machine) SetAttr(r object.Ref, sym object.SymbolID, v object.Ref) error {
	if !r.IsHeap() {
		return &cdrerr.TypeError{Operation: "set_attr", TypeName: typeName(r)}
	}
	r.Heap().SetOwnAttr(sym, v)
	return nil
}

// dispatchOrDefault resolves sym as an instance method on r's type chain, calls it with
// (r, extra...) if found, and otherwise falls back to def (the intrinsic builtin
// behavior) - implementing §4.1's "defaults can be overridden per-type" contract uniformly
// for first/rest/cons/get/set/size/to_string/hash/equals.
func (m *Machine) dispatchOrDefault(r object.Ref, sym object.SymbolID, extra []object.Ref, def func() (object.Ref, error)) (object.Ref, error) {
	if r.IsHeap() {
		if fn, ok := r.Heap().TypeOf().ResolveMethod(sym); ok {
			args := append([]object.Ref{r}, extra...)
			return m.CallSync(fn, args)
		}
	}
	return def()
}

// First returns the head of a list-like value (§4.1), honoring an overriding method.
func (m *Machine) First(r object.Ref) (object.Ref, error) {
	return m.dispatchOrDefault(r, m.symFirst, nil, func() (object.Ref, error) {
		c, ok := object.AsCons(r)
		if !ok {
			return object.NilRef, &cdrerr.TypeError{Operation: "first", TypeName: typeName(r)}
		}
		return c.First, nil
	})
}

// Rest returns the tail of a list-like value (§4.1), honoring an overriding method.
func (m *Machine) Rest(r object.Ref) (object.Ref, error) {
	return m.dispatchOrDefault(r, m.symRest, nil, func() (object.Ref, error) {
		c, ok := object.AsCons(r)
		if !ok {
			return object.NilRef, &cdrerr.TypeError{Operation: "rest", TypeName: typeName(r)}
		}
		return c.Rest, nil
	})
}

// Cons conses head onto tail (§4.1); the intrinsic default always allocates a new List
// cell regardless of tail's type, matching CONS's bytecode semantics.
func (m *Machine) Cons(head, tail object.Ref) (object.Ref, error) {
	return m.dispatchOrDefault(tail, m.symCons, []object.Ref{head}, func() (object.Ref, error) {
		return object.NewList(head, tail), nil
	})
}

// Get reads an index/key from a Vector, List, String, or Dict (§4.1), honoring an
// overriding method.
func (m *Machine) Get(r, key object.Ref) (object.Ref, error) {
	return m.dispatchOrDefault(r, m.symGet, []object.Ref{key}, func() (object.Ref, error) {
		if v, ok := object.AsVector(r); ok {
			if !key.IsInt() {
				return object.NilRef, &cdrerr.ArgumentError{Message: "vector get requires an integer index"}
			}
			item, ok := v.At(int(key.Int()))
			if !ok {
				return object.NilRef, &cdrerr.IndexError{Index: int(key.Int()), Size: v.Len()}
			}
			return item, nil
		}
		if d, ok := object.AsDict(r); ok {
			v, ok := d.Get(key)
			if !ok {
				return object.NilRef, &cdrerr.ArgumentError{Message: "key not found in dict"}
			}
			return v, nil
		}
		if s, ok := object.AsString(r); ok {
			if !key.IsInt() {
				return object.NilRef, &cdrerr.ArgumentError{Message: "string get requires an integer index"}
			}
			runes := []rune(s)
			i := int(key.Int())
			if i < 0 || i >= len(runes) {
				return object.NilRef, &cdrerr.IndexError{Index: i, Size: len(runes)}
			}
			return object.NewString(string(runes[i])), nil
		}
		return object.NilRef, &cdrerr.TypeError{Operation: "get", TypeName: typeName(r)}
	})
}

// Set writes an index/key on a Vector or Dict (§4.1), honoring an overriding method.
func (m *Machine) Set(r, key, val object.Ref) (object.Ref, error) {
	return m.dispatchOrDefault(r, m.symSet, []object.Ref{key, val}, func() (object.Ref, error) {
		if v, ok := object.AsVector(r); ok {
			if !key.IsInt() {
				return object.NilRef, &cdrerr.ArgumentError{Message: "vector set requires an integer index"}
			}
			if !v.Set(int(key.Int()), val) {
				return object.NilRef, &cdrerr.IndexError{Index: int(key.Int()), Size: v.Len()}
			}
			return val, nil
		}
		if d, ok := object.AsDict(r); ok {
			d.Set(key, val)
			return val, nil
		}
		return object.NilRef, &cdrerr.TypeError{Operation: "set", TypeName: typeName(r)}
	})
}

// Size reports the length of a List, Vector, String, or Dict (§4.1), honoring an
// overriding method.
func (m *Machine) Size(r object.Ref) (object.Ref, error) {
	return m.dispatchOrDefault(r, m.symSize, nil, func() (object.Ref, error) {
		if v, ok := object.AsVector(r); ok {
			return object.Int(int64(v.Len())), nil
		}
		if d, ok := object.AsDict(r); ok {
			return object.Int(int64(d.Len())), nil
		}
		if s, ok := object.AsString(r); ok {
			return object.Int(int64(len([]rune(s)))), nil
		}
		if items, ok := object.ListToSlice(r); ok {
			return object.Int(int64(len(items))), nil
		}
		return object.NilRef, &cdrerr.TypeError{Operation: "size", TypeName: typeName(r)}
	})
}

// ToString renders r as a Cedar String (§4.1), honoring an overriding method.
func (m *Machine) ToString(r object.Ref) (object.Ref, error) {
	return m.dispatchOrDefault(r, m.symToString, nil, func() (object.Ref, error) {
		return object.NewString(m.intrinsicToString(r)), nil
	})
}

func (m *Machine) intrinsicToString(r object.Ref) string {
	switch {
	case r.IsNil():
		return "nil"
	case r.IsBool():
		return strconv.FormatBool(r.Bool())
	case r.IsInt():
		return strconv.FormatInt(r.Int(), 10)
	case r.IsFloat():
		return strconv.FormatFloat(r.Float(), 'g', -1, 64)
	}
	if s, ok := object.AsString(r); ok {
		return s
	}
	if id, ok := object.AsSymbol(r); ok {
		return m.Symbols.Name(id)
	}
	if id, ok := object.AsKeyword(r); ok {
		return ":" + m.Symbols.Name(id)
	}
	if v, ok := object.AsVector(r); ok {
		parts := make([]string, v.Len())
		for i, item := range v.Items() {
			parts[i] = m.bestEffortToString(item)
		}
		return "[" + strings.Join(parts, " ") + "]"
	}
	if items, ok := object.ListToSlice(r); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = m.bestEffortToString(item)
		}
		return "(" + strings.Join(parts, " ") + ")"
	}
	if lam, ok := object.AsLambda(r); ok {
		if lam.Name != "" {
			return fmt.Sprintf("#<lambda %s>", lam.Name)
		}
		return "#<lambda>"
	}
	if r.IsHeap() {
		return fmt.Sprintf("#<%s>", r.Heap().TypeOf().Name)
	}
	return "?"
}

func (m *Machine) bestEffortToString(r object.Ref) string {
	s, err := m.ToString(r)
	if err != nil {
		return m.intrinsicToString(r)
	}
	str, _ := object.AsString(s)
	return str
}

// Hash returns r's dispatched hash key (§4.1), honoring an overriding method; the method
// form must return an Int, reinterpreted as the low 64 bits of the key.
func (m *Machine) Hash(r object.Ref) (object.HashKey, error) {
	if r.IsHeap() {
		if fn, ok := r.Heap().TypeOf().ResolveMethod(m.symHash); ok {
			result, err := m.CallSync(fn, []object.Ref{r})
			if err != nil {
				return object.HashKey{}, err
			}
			if !result.IsInt() {
				return object.HashKey{}, &cdrerr.TypeError{Operation: "hash", TypeName: typeName(r)}
			}
			return object.HashKey{Tag: object.TagPointer, Sum: uint64(result.Int())}, nil
		}
	}
	return object.DefaultHashKey(r), nil
}

// Equals implements the dispatched equality contract linked to Hash (§4.1 invariant):
// equal values must hash equal.
func (m *Machine) Equals(a, b object.Ref) (bool, error) {
	if a.IsHeap() {
		if fn, ok := a.Heap().TypeOf().ResolveMethod(m.symEquals); ok {
			result, err := m.CallSync(fn, []object.Ref{a, b})
			if err != nil {
				return false, err
			}
			return result.Truthy(), nil
		}
	}
	if !a.IsHeap() || !b.IsHeap() {
		return a.SameImmediate(b), nil
	}
	if sa, ok := object.AsString(a); ok {
		sb, ok := object.AsString(b)
		return ok && sa == sb, nil
	}
	if ida, ok := object.AsSymbol(a); ok {
		idb, ok := object.AsSymbol(b)
		return ok && ida == idb, nil
	}
	if ida, ok := object.AsKeyword(a); ok {
		idb, ok := object.AsKeyword(b)
		return ok && ida == idb, nil
	}
	return a.Heap() == b.Heap(), nil
}
