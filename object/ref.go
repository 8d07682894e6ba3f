// Package object implements Cedar's value and object model: the uniform polymorphic
// [Ref] reference, heap [Object]s, the [Type] method-resolution system, the process-wide
// symbol intern table and globals store, lambdas, and the macro table (§3, §4.1-§4.4, §4.6, §4.10).
package object

import "math"

// Tag identifies which alternative of the [Ref] union is populated.
type Tag uint8

const (
	// TagInt marks a 64-bit signed integer immediate.
	TagInt Tag = iota
	// TagFloat marks an IEEE-754 double immediate.
	TagFloat
	// TagNil marks the distinguished nil value.
	TagNil
	// TagBool marks a boolean immediate.
	TagBool
	// TagPointer marks a reference to a heap value (anything implementing [Heap]).
	TagPointer
)

// Ref is the uniform polymorphic reference described in §3/§4.1: a tagged union carrying
// either a small immediate (int, float, nil, bool) inline, or a pointer to a heap object.
//
// Ref is a plain value type (copied by assignment, comparable is not guaranteed across
// pointer identity rules - use [Equals] for value equality). Its zero value is Int(0),
// since TagInt is the zero Tag; nil is [NilRef].
type Ref struct {
	tag Tag
	num uint64
	ptr Heap
}

// NilRef is the distinguished nil value.
var NilRef = Ref{tag: TagNil}

// TrueRef is the boolean true value.
var TrueRef = Ref{tag: TagBool, num: 1}

// FalseRef is the boolean false value.
var FalseRef = Ref{tag: TagBool, num: 0}

// Int creates an integer immediate reference.
func Int(n int64) Ref { return Ref{tag: TagInt, num: uint64(n)} }

// Float creates a floating point immediate reference.
func Float(f float64) Ref { return Ref{tag: TagFloat, num: math.Float64bits(f)} }

// Bool creates a boolean immediate reference.
func Bool(b bool) Ref {
	if b {
		return TrueRef
	}
	return FalseRef
}

// FromHeap wraps a heap value (an [Object] or a [Type]) in a pointer reference.
func FromHeap(h Heap) Ref { return Ref{tag: TagPointer, ptr: h} }

// IsInt reports whether r holds an integer immediate.
func (r Ref) IsInt() bool { return r.tag == TagInt }

// IsFloat reports whether r holds a float immediate.
func (r Ref) IsFloat() bool { return r.tag == TagFloat }

// IsNil reports whether r is the nil value.
func (r Ref) IsNil() bool { return r.tag == TagNil }

// IsBool reports whether r holds a boolean immediate.
func (r Ref) IsBool() bool { return r.tag == TagBool }

// IsHeap reports whether r is a pointer to a heap value.
func (r Ref) IsHeap() bool { return r.tag == TagPointer }

// Tag returns r's discriminant tag.
func (r Ref) Tag() Tag { return r.tag }

// Int returns the integer value of an int-tagged reference. The caller must have
// checked IsInt (or be in a context where the value is known to be an integer).
func (r Ref) Int() int64 { return int64(r.num) }

// Float returns the float value of a float-tagged reference.
func (r Ref) Float() float64 { return math.Float64frombits(r.num) }

// Bool returns the boolean value of a bool-tagged reference.
func (r Ref) Bool() bool { return r.num != 0 }

// Heap returns the heap value behind a pointer-tagged reference.
func (r Ref) Heap() Heap { return r.ptr }

// Truthy implements Cedar's truthiness rule: nil and false are the only falsy values (§3).
func (r Ref) Truthy() bool {
	if r.tag == TagNil {
		return false
	}
	if r.tag == TagBool {
		return r.num != 0
	}
	return true
}

// SameImmediate reports whether two immediates of the same tag hold the same bit pattern.
// It does not compare heap values; use the vm package's Equals for the full §4.1 contract.
func (r Ref) SameImmediate(o Ref) bool {
	return r.tag == o.tag && r.num == o.num
}
