package types

import "fmt"

// SsaCustomType is the full wire-level type descriptor attached to every
// SSA value: a tag byte (base SsaType plus an independent pointer bit) and,
// for Bytes/Custom base types, a 4-byte auxiliary value (size or registry
// index respectively).
type SsaCustomType struct {
	Type       SsaType
	CustomType uint32
}

// NewCustomType builds a descriptor for a registry-indexed custom type.
func NewCustomType(registryIndex uint32) SsaCustomType {
	return SsaCustomType{Type: Custom, CustomType: registryIndex}
}

// NewBytesType builds a descriptor for a raw n-byte blob.
func NewBytesType(size uint32) SsaCustomType {
	return SsaCustomType{Type: Bytes, CustomType: size}
}

// Primitive builds a descriptor for one of the fixed-size primitive types.
func Primitive(t SsaType) SsaCustomType {
	return SsaCustomType{Type: t}
}

// IsPointer reports whether the tag byte's pointer bit is set.
func (c SsaCustomType) IsPointer() bool {
	return uint8(c.Type)&pointerBit != 0
}

// Base returns the type with the pointer bit masked off.
func (c SsaCustomType) Base() SsaType {
	return SsaType(uint8(c.Type) &^ pointerBit)
}

// StripPointer returns c with the pointer bit cleared.
func (c SsaCustomType) StripPointer() SsaCustomType {
	c.Type = c.Base()
	return c
}

// AddPointer returns c with the pointer bit set.
func (c SsaCustomType) AddPointer() SsaCustomType {
	c.Type = SsaType(uint8(c.Base()) | pointerBit)
	return c
}

// SetPointer returns c with the pointer bit set to isPointer.
func (c SsaCustomType) SetPointer(isPointer bool) SsaCustomType {
	if isPointer {
		return c.AddPointer()
	}
	return c.StripPointer()
}

// NeedsAux reports whether the wire encoding of this descriptor carries the
// trailing 4-byte auxiliary value (true for Bytes and Custom base types).
func (c SsaCustomType) NeedsAux() bool {
	base := c.Base()
	return base == Bytes || base == Custom
}

// WireSize returns the number of bytes this descriptor occupies when
// encoded: 1 for plain primitive tags, 5 when the base type is Bytes or
// Custom.
func (c SsaCustomType) WireSize() int {
	if c.NeedsAux() {
		return 5
	}
	return 1
}

// ValueSize returns the in-memory size, in bytes, of a value carrying this
// type. Pointer-tagged values are always pointer-sized regardless of base
// type; the pointer size is supplied by the caller (the emulator's word
// size), since TauIR does not fix it at the type-system level.
func (c SsaCustomType) ValueSize(ptrSize int, registry *Registry) (int, error) {
	if c.IsPointer() {
		return ptrSize, nil
	}

	base := c.Base()
	if size, ok := base.ValueSize(); ok {
		return size, nil
	}

	switch base {
	case Bytes:
		return int(c.CustomType), nil
	case Custom:
		if registry == nil {
			return 0, fmt.Errorf("%w: custom type %d requires a registry", ErrInvalidType, c.CustomType)
		}
		return registry.SizeOf(c.CustomType)
	default:
		return 0, fmt.Errorf("%w: unknown base type 0x%02X", ErrInvalidType, uint8(base))
	}
}

func (c SsaCustomType) String() string {
	if c.NeedsAux() {
		return fmt.Sprintf("%s(%d)%s", c.Base(), c.CustomType, pointerSuffix(c))
	}
	return fmt.Sprintf("%s%s", c.Base(), pointerSuffix(c))
}

func pointerSuffix(c SsaCustomType) string {
	if c.IsPointer() {
		return "*"
	}
	return ""
}
