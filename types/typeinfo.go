package types

import "sync/atomic"

// TypeInfoFlags classifies a module-level TypeInfo along the axes the
// emulator and mangler need: value-vs-object, integral-vs-float-vs-decimal,
// signedness, and whether it is a character type.
type TypeInfoFlags struct {
	IsValueType            bool
	IsObject               bool
	IsFunction             bool
	IsIntegral             bool
	IsBinaryFloatingPoint  bool
	IsDecimalFloatingPoint bool
	IsCharacter            bool
	IsSigned               bool
}

var (
	VoidFlags            = TypeInfoFlags{}
	ObjectFlags          = TypeInfoFlags{IsObject: true}
	FunctionFlags        = TypeInfoFlags{IsFunction: true}
	SignedIntegerFlags   = TypeInfoFlags{IsValueType: true, IsIntegral: true, IsSigned: true}
	UnsignedIntegerFlags = TypeInfoFlags{IsValueType: true, IsIntegral: true}
	FloatFlags           = TypeInfoFlags{IsValueType: true, IsBinaryFloatingPoint: true, IsSigned: true}
	DecimalFlags         = TypeInfoFlags{IsValueType: true, IsDecimalFloatingPoint: true, IsSigned: true}
	CharFlags            = TypeInfoFlags{IsValueType: true, IsIntegral: true, IsCharacter: true}
)

var nextTypeID atomic.Uint64

// generateTypeID hands out process-unique TypeInfo identities. The
// original source used a global incrementing counter guarded implicitly by
// single-threaded construction order; an atomic counter is the idiomatic
// Go replacement and remains safe if TypeInfo values are ever constructed
// concurrently (e.g. while loading multiple modules in cmd/tauir).
func generateTypeID() uint64 {
	return nextTypeID.Add(1)
}

// TypeInfo describes a module-level (non-SSA) type: its size, its
// classification flags, a display name, and a process-unique identity used
// for equality instead of comparing names.
type TypeInfo struct {
	size  uint64
	id    uint64
	flags TypeInfoFlags
	name  string
}

// NewTypeInfo constructs a TypeInfo, assigning it a fresh identity.
func NewTypeInfo(size uint64, flags TypeInfoFlags, name string) *TypeInfo {
	return &TypeInfo{size: size, id: generateTypeID(), flags: flags, name: name}
}

func (t *TypeInfo) Size() uint64          { return t.size }
func (t *TypeInfo) ID() uint64            { return t.id }
func (t *TypeInfo) Flags() TypeInfoFlags  { return t.flags }
func (t *TypeInfo) Name() string          { return t.name }
func (t *TypeInfo) Equal(o *TypeInfo) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.id == o.id
}

// Built-in singleton TypeInfos, mirroring TypeInfo::Void/Bool/I8.. etc.
var (
	TIVoid = NewTypeInfo(0, VoidFlags, "void")
	TIBool = NewTypeInfo(1, SignedIntegerFlags, "bool")
	TII8   = NewTypeInfo(1, SignedIntegerFlags, "i8")
	TII16  = NewTypeInfo(2, SignedIntegerFlags, "i16")
	TII32  = NewTypeInfo(4, SignedIntegerFlags, "i32")
	TII64  = NewTypeInfo(8, SignedIntegerFlags, "i64")
	TIU8   = NewTypeInfo(1, UnsignedIntegerFlags, "u8")
	TIU16  = NewTypeInfo(2, UnsignedIntegerFlags, "u16")
	TIU32  = NewTypeInfo(4, UnsignedIntegerFlags, "u32")
	TIU64  = NewTypeInfo(8, UnsignedIntegerFlags, "u64")
	TIF32  = NewTypeInfo(4, FloatFlags, "f32")
	TIF64  = NewTypeInfo(8, FloatFlags, "f64")
	TIChar = NewTypeInfo(1, CharFlags, "char")
)
