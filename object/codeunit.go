package object

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/nickwanninger/cedar/code"
)

// CodeUnit is the immutable compiled bytecode container of §4.5: a byte vector of
// instructions, a constants pool, the declared argument count, the declared stack depth
// needed, and an optional source map. It is referenced from lambdas but never mutated;
// recompilation produces a new lambda sharing or replacing the code unit.
type CodeUnit struct {
	// Instructions is the compiled bytecode stream.
	Instructions code.Instructions

	// Constants is the constant pool: literals and nested code units referenced by
	// CONST/MAKE_FUNC instructions.
	Constants []Ref

	// Argc is the declared number of required parameters.
	Argc int

	// StackSize is the compiler's upper bound on this code unit's operand-stack growth
	// (§3 invariant: "every bytecode lambda's declared stack size is an upper bound").
	StackSize int

	// RestArg is set when the lambda gathers trailing arguments past Argc into a list
	// stored in the last closure slot (§4.6).
	RestArg bool

	// NumLocals is the number of closure slots this code unit addresses (Argc plus any
	// additional let-bound locals), used to size a fresh closure vector on call (§4.6).
	NumLocals int

	// Source maps each instruction's starting byte offset to a 1-based source line,
	// parallel to Instructions; it may be nil if the compiler did not retain positions.
	Source []SourcePos
}

// SourcePos records the source line an instruction at a given byte offset was compiled
// from, for error messages.
type SourcePos struct {
	Offset int
	Line   int
}

// LineAt returns the source line recorded for the instruction at or before offset, or 0
// if no source map was retained.
func (c *CodeUnit) LineAt(offset int) int {
	line := 0
	for _, p := range c.Source {
		if p.Offset > offset {
			break
		}
		line = p.Line
	}
	return line
}

const (
	wireMagic0, wireMagic1, wireMagic2, wireMagic3 = 'C', 'D', 'R', 0
	wireVersion                                    = uint16(1)
	wireRestArgBit                                 = uint16(0x8000)

	tagNil      = 0
	tagInt      = 1
	tagFloat    = 2
	tagString   = 3
	tagSymbol   = 4
	tagCodeUnit = 5

	// tagBool is an implementation-defined extension: §6.2 only enumerates tags 0-5 and
	// has no boolean literal tag, but the compiler constant-pools `true`/`false` the same
	// way it constant-pools strings and symbols, so the wire format needs one.
	tagBool = 6
)

// Encode serializes c into the on-the-wire bytecode layout of §6.2: a little detail the
// spec leaves to the implementer is where to smuggle the RestArg flag, since the header
// only reserves argc/stack_size/n_consts/n_bytes; this codec borrows the otherwise-unused
// top bit of the version field for it, keeping the low 15 bits as the literal version
// number so a future format revision still has 15 usable bits.
func (c *CodeUnit) Encode() ([]byte, error) {
	var buf []byte
	buf = append(buf, wireMagic0, wireMagic1, wireMagic2, wireMagic3)

	version := wireVersion
	if c.RestArg {
		version |= wireRestArgBit
	}
	buf = appendUint16(buf, version)
	buf = appendUint16(buf, uint16(c.Argc))
	buf = appendUint32(buf, uint32(c.StackSize))
	buf = appendUint32(buf, uint32(len(c.Constants)))

	for _, k := range c.Constants {
		enc, err := encodeConstant(k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, enc...)
	}

	buf = appendUint32(buf, uint32(len(c.Instructions)))
	buf = append(buf, c.Instructions...)
	return buf, nil
}

// Decode parses the on-the-wire layout of §6.2 back into a CodeUnit. It validates the
// magic number, that every jump target lands on an instruction boundary, and that every
// instruction's immediate fits within the code array (§4.5).
func Decode(data []byte) (*CodeUnit, int, error) {
	if len(data) < 16 {
		return nil, 0, fmt.Errorf("cedar: bytecode too short for header")
	}
	if data[0] != wireMagic0 || data[1] != wireMagic1 || data[2] != wireMagic2 || data[3] != wireMagic3 {
		return nil, 0, fmt.Errorf("cedar: bad magic number")
	}
	off := 4

	version := binary.LittleEndian.Uint16(data[off:])
	off += 2
	restArg := version&wireRestArgBit != 0

	argc := int(binary.LittleEndian.Uint16(data[off:]))
	off += 2
	stackSize := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	nConsts := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4

	constants := make([]Ref, 0, nConsts)
	for i := 0; i < nConsts; i++ {
		k, read, err := decodeConstant(data[off:])
		if err != nil {
			return nil, 0, err
		}
		constants = append(constants, k)
		off += read
	}

	if off+4 > len(data) {
		return nil, 0, fmt.Errorf("cedar: truncated code length")
	}
	nBytes := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if off+nBytes > len(data) {
		return nil, 0, fmt.Errorf("cedar: truncated instruction stream")
	}
	instructions := code.Instructions(data[off : off+nBytes])
	off += nBytes

	if err := validateJumps(instructions); err != nil {
		return nil, 0, err
	}

	return &CodeUnit{
		Instructions: instructions,
		Constants:    constants,
		Argc:         argc,
		StackSize:    stackSize,
		RestArg:      restArg,
		NumLocals:    argc,
	}, off, nil
}

// validateJumps checks that every instruction decodes cleanly to the end of the stream
// (§4.5 "decoders validate that... each instruction's immediate fits in the code array").
// Jump-target-on-a-boundary validation is necessarily approximate without a second pass
// that tracks reachable instruction starts; here every JUMP/JUMP_IF_FALSE target is
// checked to land within [0, len(ins)], and a second scan confirms that offset is itself
// the start of a decoded instruction.
func validateJumps(ins code.Instructions) error {
	starts := map[int]bool{}
	i := 0
	for i < len(ins) {
		def, err := code.Lookup(ins[i])
		if err != nil {
			return fmt.Errorf("cedar: %w", err)
		}
		starts[i] = true
		width := 0
		for _, w := range def.OperandWidths {
			width += w
		}
		if i+1+width > len(ins) {
			return fmt.Errorf("cedar: instruction at %d overruns code array", i)
		}
		operands, read := code.ReadOperands(def, ins[i+1:])
		if def.Name == "JUMP" || def.Name == "JUMP_IF_FALSE" {
			target := operands[0]
			if target < 0 || target > len(ins) {
				return fmt.Errorf("cedar: jump target %d out of range", target)
			}
		}
		i += read + 1
	}

	i = 0
	for i < len(ins) {
		def, _ := code.Lookup(ins[i])
		operands, read := code.ReadOperands(def, ins[i+1:])
		if def.Name == "JUMP" || def.Name == "JUMP_IF_FALSE" {
			target := operands[0]
			if target != len(ins) && !starts[target] {
				return fmt.Errorf("cedar: jump target %d does not land on an instruction boundary", target)
			}
		}
		i += read + 1
	}
	return nil
}

func encodeConstant(r Ref) ([]byte, error) {
	switch {
	case r.IsNil():
		return []byte{tagNil}, nil
	case r.IsInt():
		buf := []byte{tagInt}
		buf = appendUint64(buf, uint64(r.Int()))
		return buf, nil
	case r.IsFloat():
		buf := []byte{tagFloat}
		buf = appendUint64(buf, math.Float64bits(r.Float()))
		return buf, nil
	case r.IsBool():
		b := byte(0)
		if r.Bool() {
			b = 1
		}
		return []byte{tagBool, b}, nil
	case r.IsHeap():
		switch v := r.Heap().(type) {
		case *Object:
			if s, ok := v.Native.(string); ok && v.TypeOf() == StringType {
				buf := []byte{tagString}
				buf = appendUint32(buf, uint32(len(s)))
				buf = append(buf, s...)
				return buf, nil
			}
			if id, ok := v.Native.(SymbolID); ok && v.TypeOf() == SymbolType {
				buf := []byte{tagSymbol}
				buf = appendUint64(buf, uint64(id))
				return buf, nil
			}
			if cu, ok := v.Native.(*CodeUnit); ok {
				nested, err := cu.Encode()
				if err != nil {
					return nil, err
				}
				buf := []byte{tagCodeUnit}
				return append(buf, nested...), nil
			}
		}
	}
	return nil, fmt.Errorf("cedar: value is not a valid bytecode constant")
}

func decodeConstant(data []byte) (Ref, int, error) {
	if len(data) < 1 {
		return NilRef, 0, fmt.Errorf("cedar: truncated constant tag")
	}
	tag := data[0]
	switch tag {
	case tagNil:
		return NilRef, 1, nil
	case tagInt:
		if len(data) < 9 {
			return NilRef, 0, fmt.Errorf("cedar: truncated int constant")
		}
		return Int(int64(binary.LittleEndian.Uint64(data[1:]))), 9, nil
	case tagFloat:
		if len(data) < 9 {
			return NilRef, 0, fmt.Errorf("cedar: truncated float constant")
		}
		return Float(math.Float64frombits(binary.LittleEndian.Uint64(data[1:]))), 9, nil
	case tagBool:
		if len(data) < 2 {
			return NilRef, 0, fmt.Errorf("cedar: truncated bool constant")
		}
		return Bool(data[1] != 0), 2, nil
	case tagString:
		if len(data) < 5 {
			return NilRef, 0, fmt.Errorf("cedar: truncated string length")
		}
		n := int(binary.LittleEndian.Uint32(data[1:]))
		if len(data) < 5+n {
			return NilRef, 0, fmt.Errorf("cedar: truncated string constant")
		}
		return NewString(string(data[5 : 5+n])), 5 + n, nil
	case tagSymbol:
		if len(data) < 9 {
			return NilRef, 0, fmt.Errorf("cedar: truncated symbol constant")
		}
		id := SymbolID(binary.LittleEndian.Uint64(data[1:]))
		return NewSymbolRef(id), 9, nil
	case tagCodeUnit:
		cu, read, err := Decode(data[1:])
		if err != nil {
			return NilRef, 0, err
		}
		return FromHeap(NewNativeObject(LambdaType, cu)), 1 + read, nil
	default:
		return NilRef, 0, fmt.Errorf("cedar: unknown constant tag %d", tag)
	}
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
