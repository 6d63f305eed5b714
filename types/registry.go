package types

import (
	"errors"
	"fmt"
)

// ErrInvalidType is returned when a type tag or registry index cannot be
// resolved to a known type.
var ErrInvalidType = errors.New("tauir/types: invalid type")

// DebugField describes one field of a custom type for debugging/printing
// purposes. It mirrors SsaCustomTypeDebugNode's linked-list bookkeeping
// from the original source, flattened into a slice since Go has no need
// for the manual recursive-delete destructor that motivated the list.
type DebugField struct {
	Name   string
	Offset uint32
	Size   uint32
}

// debugDescriptor carries the optional debug metadata for one registered
// custom type: its display name and the running list of fields attached
// to it so far.
type debugDescriptor struct {
	name          string
	fields        []DebugField
	currentOffset uint32
}

// Registry is the dense table of custom ("Bytes"/"Custom" base type)
// descriptors referenced by SsaCustomType.CustomType. Registration is
// append-only and assigns indices in registration order, mirroring
// SsaCustomTypeRegistry.
type Registry struct {
	sizes []uint32
	debug []*debugDescriptor
}

// NewRegistry returns an empty custom-type registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterType reserves a new custom-type index for a type of the given
// size and returns that index.
func (r *Registry) RegisterType(size uint32) uint32 {
	index := uint32(len(r.sizes))
	r.sizes = append(r.sizes, size)
	r.debug = append(r.debug, nil)
	return index
}

// SizeOf returns the registered size of the custom type at index typeID.
func (r *Registry) SizeOf(typeID uint32) (int, error) {
	if int(typeID) >= len(r.sizes) {
		return 0, fmt.Errorf("%w: custom type index %d out of range (have %d)", ErrInvalidType, typeID, len(r.sizes))
	}
	return int(r.sizes[typeID]), nil
}

// Count returns the number of registered custom types.
func (r *Registry) Count() int {
	return len(r.sizes)
}

// AttachDebugName records a display name for a registered custom type.
// Debug metadata is optional and has no effect on codec or pass behavior.
func (r *Registry) AttachDebugName(typeID uint32, name string) error {
	if int(typeID) >= len(r.debug) {
		return fmt.Errorf("%w: custom type index %d out of range", ErrInvalidType, typeID)
	}
	if r.debug[typeID] == nil {
		r.debug[typeID] = &debugDescriptor{name: name}
	} else {
		r.debug[typeID].name = name
	}
	return nil
}

// AttachDebugElement appends a field to a registered custom type's debug
// descriptor, automatically bumping the running offset by size, mirroring
// SsaCustomTypeDebugDescriptor::AttachDebugElement.
func (r *Registry) AttachDebugElement(typeID uint32, name string, size uint32) error {
	if int(typeID) >= len(r.debug) {
		return fmt.Errorf("%w: custom type index %d out of range", ErrInvalidType, typeID)
	}
	d := r.debug[typeID]
	if d == nil {
		d = &debugDescriptor{}
		r.debug[typeID] = d
	}
	d.fields = append(d.fields, DebugField{Name: name, Offset: d.currentOffset, Size: size})
	d.currentOffset += size
	return nil
}

// Name returns the display name attached to a custom type, if any. Indirect
// call sites encode their callee's argument layout as a mangled name
// attached to the function-pointer local's registered type, mirroring
// TypeInfo::Name() as consulted by IrToSsa.cpp's HandleIndirectCallSite.
func (r *Registry) Name(typeID uint32) (string, bool) {
	if int(typeID) >= len(r.debug) || r.debug[typeID] == nil || r.debug[typeID].name == "" {
		return "", false
	}
	return r.debug[typeID].name, true
}

// DebugFields returns the fields attached to a custom type, if any.
func (r *Registry) DebugFields(typeID uint32) []DebugField {
	if int(typeID) >= len(r.debug) || r.debug[typeID] == nil {
		return nil
	}
	return r.debug[typeID].fields
}
