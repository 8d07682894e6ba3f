package object

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dchest/siphash"
)

// hashSeed0/hashSeed1 key the siphash used for Dict buckets and for object.hash's default
// behavior on the scalar types (§4.1 "hash" is a dispatched operation; this is its
// intrinsic default for Int/Float/Bool/Nil/String). They are drawn from crypto/rand once
// at process boot rather than fixed at build time, so a Dict's bucket layout cannot be
// predicted or hash-flooded by an attacker who only knows the source.
var hashSeed0, hashSeed1 = newHashSeed()

func newHashSeed() (uint64, uint64) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("cedar: failed to seed siphash key: %v", err))
	}
	return binary.LittleEndian.Uint64(buf[0:8]), binary.LittleEndian.Uint64(buf[8:16])
}

// HashKey is a value's hashable identity: its type tag plus a 64-bit digest, used as a Go
// map key inside Dict's bucket table. Two refs that are `equals` under the intrinsic
// default must produce the same HashKey (§4.1 invariant linking hash and equals).
type HashKey struct {
	Tag Tag
	Sum uint64
}

// DefaultHashKey computes the intrinsic hash for the scalar and string builtin types
// (§4.1). Dispatch to a user override happens one layer up, in the vm package, which
// calls this only when no override exists further up the MRO.
func DefaultHashKey(r Ref) HashKey {
	switch {
	case r.IsInt():
		return HashKey{Tag: TagInt, Sum: siphash.Hash(hashSeed0, hashSeed1, uint64ToBytes(uint64(r.Int())))}
	case r.IsFloat():
		bits := math.Float64bits(r.Float())
		return HashKey{Tag: TagFloat, Sum: siphash.Hash(hashSeed0, hashSeed1, uint64ToBytes(bits))}
	case r.IsBool():
		return HashKey{Tag: TagBool, Sum: r.num}
	case r.IsNil():
		return HashKey{Tag: TagNil, Sum: 0}
	case r.IsHeap():
		if s, ok := AsString(r); ok {
			return HashKey{Tag: TagPointer, Sum: siphash.Hash(hashSeed0, hashSeed1, []byte(s))}
		}
		if id, ok := AsSymbol(r); ok {
			return HashKey{Tag: TagPointer, Sum: siphash.Hash(hashSeed0, hashSeed1, uint64ToBytes(uint64(id))) ^ 1}
		}
		if id, ok := AsKeyword(r); ok {
			return HashKey{Tag: TagPointer, Sum: siphash.Hash(hashSeed0, hashSeed1, uint64ToBytes(uint64(id))) ^ 2}
		}
		// Identity hash: distinct heap objects hash differently unless they are the
		// same pointer, matching the intrinsic default "equals" of reference identity
		// for composite types without an overridden equals/hash pair (§4.1).
		addr := fmt.Sprintf("%p", r.Heap())
		return HashKey{Tag: TagPointer, Sum: siphash.Hash(hashSeed0, hashSeed1, []byte(addr))}
	}
	return HashKey{}
}

func uint64ToBytes(v uint64) []byte {
	return []byte{
		byte(v >> 56), byte(v >> 48), byte(v >> 40), byte(v >> 32),
		byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v),
	}
}
