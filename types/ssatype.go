// Package types implements the TauIR type system: the small set of
// primitive SSA type tags, the independent pointer bit carried alongside
// them, and the registry used to resolve variable-size "custom" types.
package types

import "fmt"

// SsaType is the primitive type tag carried by every SSA value. The
// pointer-ness of a value is tracked independently as a bit on the wire
// tag byte (see SsaCustomType), not as part of this enumeration.
type SsaType uint8

const (
	Void SsaType = 0x00
	Bool SsaType = 0x01
	I8   SsaType = 0x02
	I16  SsaType = 0x03
	I32  SsaType = 0x04
	I64  SsaType = 0x05
	U8   SsaType = 0x06
	U16  SsaType = 0x07
	U32  SsaType = 0x08
	U64  SsaType = 0x09
	F16  SsaType = 0x0A
	F32  SsaType = 0x0B
	F64  SsaType = 0x0C
	Char SsaType = 0x0D

	// Bytes is a raw n-byte blob; its size is carried in SsaCustomType's
	// auxiliary field rather than being implied by the tag.
	Bytes SsaType = 0x7E
	// Custom is a registry-indexed type; the registry index is carried in
	// SsaCustomType's auxiliary field.
	Custom SsaType = 0x7F
)

// pointerBit marks a SsaCustomType tag byte as referring to a pointer to
// its base type, independent of the base type's own numeric value.
const pointerBit = 0x80

func (t SsaType) String() string {
	switch t {
	case Void:
		return "void"
	case Bool:
		return "bool"
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case F16:
		return "f16"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case Char:
		return "char"
	case Bytes:
		return "bytes"
	case Custom:
		return "custom"
	default:
		return fmt.Sprintf("SsaType(0x%02X)", uint8(t))
	}
}

// ValueSize returns the fixed storage size, in bytes, of a primitive type.
// Bytes and Custom have no fixed size; callers must consult the auxiliary
// field of the enclosing SsaCustomType instead.
func (t SsaType) ValueSize() (size int, ok bool) {
	switch t {
	case Void:
		return 0, true
	case Bool, I8, U8, Char:
		return 1, true
	case I16, U16, F16:
		return 2, true
	case I32, U32, F32:
		return 4, true
	case I64, U64, F64:
		return 8, true
	default:
		return 0, false
	}
}

// IsInteger reports whether t is one of the fixed-width integer types.
func (t SsaType) IsInteger() bool {
	switch t {
	case I8, I16, I32, I64, U8, U16, U32, U64, Bool, Char:
		return true
	default:
		return false
	}
}

// IsSigned reports whether t is a signed integer type.
func (t SsaType) IsSigned() bool {
	switch t {
	case I8, I16, I32, I64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether t is a binary floating point type.
func (t SsaType) IsFloat() bool {
	switch t {
	case F16, F32, F64:
		return true
	default:
		return false
	}
}
