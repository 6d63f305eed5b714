package ssa

import (
	"encoding/binary"

	"github.com/hyfloac/TauIR-sub000/ir"
	"github.com/hyfloac/TauIR-sub000/types"
	"github.com/pkg/errors"
)

var ErrTruncated = errors.New("tauir/ssa: truncated instruction stream")
var ErrInvalidOpcode = errors.New("tauir/ssa: invalid opcode")

// Visitor receives one callback per decoded SSA instruction. The id
// counter is advanced by the Decoder exactly as the Writer advances it:
// by 1 for every allocating opcode including Join, and by the split count
// (reporting base+1, matching the writer) for Split.
type Visitor interface {
	VisitNop() bool
	VisitLabel(label VarId) bool
	VisitAssignImmediate(newVar VarId, t types.SsaCustomType, value []byte) bool
	VisitAssignVar(newVar VarId, t types.SsaCustomType, v VarId) bool
	VisitExpandSX(newVar VarId, newType, oldType types.SsaCustomType, v VarId) bool
	VisitExpandZX(newVar VarId, newType, oldType types.SsaCustomType, v VarId) bool
	VisitTrunc(newVar VarId, newType, oldType types.SsaCustomType, v VarId) bool
	VisitRCast(newVar VarId, newType, oldType types.SsaCustomType, v VarId) bool
	VisitBCast(newVar VarId, newType, oldType types.SsaCustomType, v VarId) bool
	VisitLoad(newVar VarId, t types.SsaCustomType, v VarId) bool
	VisitStoreV(t types.SsaCustomType, destination, source VarId) bool
	VisitStoreI(t types.SsaCustomType, destination VarId, value []byte) bool
	VisitComputePtr(newVar VarId, base, index VarId, multiplier int8, offset int16) bool
	VisitBinOpVToV(newVar VarId, op SsaBinaryOperation, t types.SsaCustomType, a, b VarId) bool
	VisitBinOpVToI(newVar VarId, op SsaBinaryOperation, t types.SsaCustomType, aValue []byte, b VarId) bool
	VisitBinOpIToV(newVar VarId, op SsaBinaryOperation, t types.SsaCustomType, a VarId, bValue []byte) bool
	VisitSplit(baseIndex VarId, aType types.SsaCustomType, a VarId, splitTypes []types.SsaCustomType) bool
	VisitJoin(newVar VarId, newType types.SsaCustomType, joinTypes []types.SsaCustomType, joinVars []VarId) bool
	VisitCompVToV(newVar VarId, cond ir.CompareCondition, t types.SsaCustomType, a, b VarId) bool
	VisitCompVToI(newVar VarId, cond ir.CompareCondition, t types.SsaCustomType, aValue []byte, b VarId) bool
	VisitCompIToV(newVar VarId, cond ir.CompareCondition, t types.SsaCustomType, a VarId, bValue []byte) bool
	VisitBranch(label VarId) bool
	VisitBranchCond(labelTrue, labelFalse, conditionVar VarId) bool
	VisitCall(newVar VarId, functionIndex uint32, baseIndex VarId, parameterCount uint32) bool
	VisitCallExt(newVar VarId, functionIndex uint32, baseIndex VarId, parameterCount uint32, moduleIndex uint16) bool
	VisitCallInd(newVar VarId, functionPointer, baseIndex VarId, parameterCount uint32) bool
	VisitCallIndExt(newVar VarId, functionPointer, baseIndex VarId, parameterCount uint32, modulePointer VarId) bool
	VisitRet(returnType types.SsaCustomType, v VarId) bool
}

// BaseVisitor implements every Visitor method as a no-op returning true.
type BaseVisitor struct{}

func (BaseVisitor) VisitNop() bool                                                                 { return true }
func (BaseVisitor) VisitLabel(VarId) bool                                                          { return true }
func (BaseVisitor) VisitAssignImmediate(VarId, types.SsaCustomType, []byte) bool                    { return true }
func (BaseVisitor) VisitAssignVar(VarId, types.SsaCustomType, VarId) bool                           { return true }
func (BaseVisitor) VisitExpandSX(VarId, types.SsaCustomType, types.SsaCustomType, VarId) bool       { return true }
func (BaseVisitor) VisitExpandZX(VarId, types.SsaCustomType, types.SsaCustomType, VarId) bool       { return true }
func (BaseVisitor) VisitTrunc(VarId, types.SsaCustomType, types.SsaCustomType, VarId) bool          { return true }
func (BaseVisitor) VisitRCast(VarId, types.SsaCustomType, types.SsaCustomType, VarId) bool          { return true }
func (BaseVisitor) VisitBCast(VarId, types.SsaCustomType, types.SsaCustomType, VarId) bool          { return true }
func (BaseVisitor) VisitLoad(VarId, types.SsaCustomType, VarId) bool                                { return true }
func (BaseVisitor) VisitStoreV(types.SsaCustomType, VarId, VarId) bool                              { return true }
func (BaseVisitor) VisitStoreI(types.SsaCustomType, VarId, []byte) bool                             { return true }
func (BaseVisitor) VisitComputePtr(VarId, VarId, VarId, int8, int16) bool                           { return true }
func (BaseVisitor) VisitBinOpVToV(VarId, SsaBinaryOperation, types.SsaCustomType, VarId, VarId) bool { return true }
func (BaseVisitor) VisitBinOpVToI(VarId, SsaBinaryOperation, types.SsaCustomType, []byte, VarId) bool {
	return true
}
func (BaseVisitor) VisitBinOpIToV(VarId, SsaBinaryOperation, types.SsaCustomType, VarId, []byte) bool {
	return true
}
func (BaseVisitor) VisitSplit(VarId, types.SsaCustomType, VarId, []types.SsaCustomType) bool { return true }
func (BaseVisitor) VisitJoin(VarId, types.SsaCustomType, []types.SsaCustomType, []VarId) bool { return true }
func (BaseVisitor) VisitCompVToV(VarId, ir.CompareCondition, types.SsaCustomType, VarId, VarId) bool {
	return true
}
func (BaseVisitor) VisitCompVToI(VarId, ir.CompareCondition, types.SsaCustomType, []byte, VarId) bool {
	return true
}
func (BaseVisitor) VisitCompIToV(VarId, ir.CompareCondition, types.SsaCustomType, VarId, []byte) bool {
	return true
}
func (BaseVisitor) VisitBranch(VarId) bool                                 { return true }
func (BaseVisitor) VisitBranchCond(VarId, VarId, VarId) bool                { return true }
func (BaseVisitor) VisitCall(VarId, uint32, VarId, uint32) bool             { return true }
func (BaseVisitor) VisitCallExt(VarId, uint32, VarId, uint32, uint16) bool  { return true }
func (BaseVisitor) VisitCallInd(VarId, VarId, VarId, uint32) bool           { return true }
func (BaseVisitor) VisitCallIndExt(VarId, VarId, VarId, uint32, VarId) bool { return true }
func (BaseVisitor) VisitRet(types.SsaCustomType, VarId) bool                { return true }

// Decoder walks an encoded SSA instruction stream, invoking a Visitor once
// per instruction and tracking the same id counter the Writer would have
// produced.
type Decoder struct {
	code      []byte
	pos       int
	idCounter VarId
	registry  *types.Registry
}

// NewDecoder returns a Decoder over code. registry resolves Custom type
// tags encountered while decoding; it may be nil if the stream carries no
// custom types.
func NewDecoder(code []byte, registry *types.Registry) *Decoder {
	return &Decoder{code: code, registry: registry}
}

func (d *Decoder) Pos() int    { return d.pos }
func (d *Decoder) Done() bool  { return d.pos >= len(d.code) }
func (d *Decoder) IdIndex() VarId { return d.idCounter }

// Seek repositions the decoder to byte offset pos with idCounter set to the
// id counter value that held at that point in a prior forward pass. The SSA
// emulator uses this to jump to a Branch/BranchCond target: ids are assigned
// purely by decode order, so resuming mid-stream requires restoring the
// counter value a forward traversal would have reached there.
func (d *Decoder) Seek(pos int, idCounter VarId) {
	d.pos = pos
	d.idCounter = idCounter
}

func (d *Decoder) need(n int) error {
	if d.pos+n > len(d.code) {
		return errors.Wrapf(ErrTruncated, "at offset %d need %d bytes, have %d", d.pos, n, len(d.code)-d.pos)
	}
	return nil
}

func (d *Decoder) readU8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.code[d.pos]
	d.pos++
	return v, nil
}

func (d *Decoder) readI8() (int8, error) {
	v, err := d.readU8()
	return int8(v), err
}

func (d *Decoder) readU16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.code[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *Decoder) readI16() (int16, error) {
	v, err := d.readU16()
	return int16(v), err
}

func (d *Decoder) readU32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.code[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *Decoder) readVarId() (VarId, error) {
	v, err := d.readU32()
	return VarId(v), err
}

func (d *Decoder) readBytes(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	b := d.code[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// readType decodes a SsaCustomType: one tag byte, plus a trailing u32 only
// when the stripped tag is Bytes or Custom, matching
// internal::ReadType<SsaCustomType>.
func (d *Decoder) readType() (types.SsaCustomType, error) {
	tagByte, err := d.readU8()
	if err != nil {
		return types.SsaCustomType{}, err
	}
	t := types.SsaCustomType{Type: types.SsaType(tagByte)}
	if t.NeedsAux() {
		aux, err := d.readU32()
		if err != nil {
			return types.SsaCustomType{}, err
		}
		t.CustomType = aux
	} else {
		t.CustomType = 0xFFFFFFFF
	}
	return t, nil
}

func (d *Decoder) readOpcode() (SsaOpcode, error) {
	first, err := d.readU8()
	if err != nil {
		return 0, err
	}
	if first&0x80 == 0 {
		return SsaOpcode(first), nil
	}
	second, err := d.readU8()
	if err != nil {
		return 0, err
	}
	return SsaOpcode(uint16(first)<<8 | uint16(second)), nil
}

// Traverse decodes instructions until the stream is exhausted, v returns
// false, or a decode error occurs.
func (d *Decoder) Traverse(v Visitor) error {
	for !d.Done() {
		start := d.pos
		op, err := d.readOpcode()
		if err != nil {
			return err
		}

		cont, err := d.dispatch(op, v)
		if err != nil {
			return errors.Wrapf(err, "decoding %s at offset %d", op, start)
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (d *Decoder) dispatch(op SsaOpcode, v Visitor) (bool, error) {
	switch op {
	case SsaNop:
		return v.VisitNop(), nil

	case SsaLabel:
		d.idCounter++
		return v.VisitLabel(d.idCounter), nil

	case SsaAssignImmediate:
		t, err := d.readType()
		if err != nil {
			return false, err
		}
		size, err := d.readU32()
		if err != nil {
			return false, err
		}
		value, err := d.readBytes(int(size))
		if err != nil {
			return false, err
		}
		d.idCounter++
		return v.VisitAssignImmediate(d.idCounter, t, value), nil

	case SsaAssignVariable:
		t, err := d.readType()
		if err != nil {
			return false, err
		}
		src, err := d.readVarId()
		if err != nil {
			return false, err
		}
		d.idCounter++
		return v.VisitAssignVar(d.idCounter, t, src), nil

	case SsaExpandSX, SsaExpandZX, SsaTrunc, SsaRCast, SsaBCast:
		newType, err := d.readType()
		if err != nil {
			return false, err
		}
		oldType, err := d.readType()
		if err != nil {
			return false, err
		}
		src, err := d.readVarId()
		if err != nil {
			return false, err
		}
		d.idCounter++
		switch op {
		case SsaExpandSX:
			return v.VisitExpandSX(d.idCounter, newType, oldType, src), nil
		case SsaExpandZX:
			return v.VisitExpandZX(d.idCounter, newType, oldType, src), nil
		case SsaTrunc:
			return v.VisitTrunc(d.idCounter, newType, oldType, src), nil
		case SsaRCast:
			return v.VisitRCast(d.idCounter, newType, oldType, src), nil
		default:
			return v.VisitBCast(d.idCounter, newType, oldType, src), nil
		}

	case SsaLoad:
		t, err := d.readType()
		if err != nil {
			return false, err
		}
		src, err := d.readVarId()
		if err != nil {
			return false, err
		}
		d.idCounter++
		return v.VisitLoad(d.idCounter, t, src), nil

	case SsaStoreV:
		t, err := d.readType()
		if err != nil {
			return false, err
		}
		dest, err := d.readVarId()
		if err != nil {
			return false, err
		}
		src, err := d.readVarId()
		if err != nil {
			return false, err
		}
		return v.VisitStoreV(t, dest, src), nil

	case SsaStoreI:
		t, err := d.readType()
		if err != nil {
			return false, err
		}
		dest, err := d.readVarId()
		if err != nil {
			return false, err
		}
		size, err := d.readU32()
		if err != nil {
			return false, err
		}
		value, err := d.readBytes(int(size))
		if err != nil {
			return false, err
		}
		return v.VisitStoreI(t, dest, value), nil

	case SsaComputePtr:
		base, err := d.readVarId()
		if err != nil {
			return false, err
		}
		index, err := d.readVarId()
		if err != nil {
			return false, err
		}
		mult, err := d.readI8()
		if err != nil {
			return false, err
		}
		offset, err := d.readI16()
		if err != nil {
			return false, err
		}
		d.idCounter++
		return v.VisitComputePtr(d.idCounter, base, index, mult, offset), nil

	case SsaBinOpVtoV:
		opKind, err := d.readU8()
		if err != nil {
			return false, err
		}
		t, err := d.readType()
		if err != nil {
			return false, err
		}
		a, err := d.readVarId()
		if err != nil {
			return false, err
		}
		b, err := d.readVarId()
		if err != nil {
			return false, err
		}
		d.idCounter++
		return v.VisitBinOpVToV(d.idCounter, SsaBinaryOperation(opKind), t, a, b), nil

	case SsaBinOpVtoI:
		opKind, err := d.readU8()
		if err != nil {
			return false, err
		}
		t, err := d.readType()
		if err != nil {
			return false, err
		}
		size, err := d.readU32()
		if err != nil {
			return false, err
		}
		aValue, err := d.readBytes(int(size))
		if err != nil {
			return false, err
		}
		b, err := d.readVarId()
		if err != nil {
			return false, err
		}
		d.idCounter++
		return v.VisitBinOpVToI(d.idCounter, SsaBinaryOperation(opKind), t, aValue, b), nil

	case SsaBinOpItoV:
		opKind, err := d.readU8()
		if err != nil {
			return false, err
		}
		t, err := d.readType()
		if err != nil {
			return false, err
		}
		a, err := d.readVarId()
		if err != nil {
			return false, err
		}
		size, err := d.readU32()
		if err != nil {
			return false, err
		}
		bValue, err := d.readBytes(int(size))
		if err != nil {
			return false, err
		}
		d.idCounter++
		return v.VisitBinOpIToV(d.idCounter, SsaBinaryOperation(opKind), t, a, bValue), nil

	case SsaSplit:
		aType, err := d.readType()
		if err != nil {
			return false, err
		}
		a, err := d.readVarId()
		if err != nil {
			return false, err
		}
		n, err := d.readU32()
		if err != nil {
			return false, err
		}
		splitTypes := make([]types.SsaCustomType, n)
		for i := range splitTypes {
			splitTypes[i], err = d.readType()
			if err != nil {
				return false, err
			}
		}
		// Matches the writer's convention: the reported base id is
		// counter+1, the id of the first split piece.
		base := d.idCounter + 1
		d.idCounter += VarId(n)
		return v.VisitSplit(base, aType, a, splitTypes), nil

	case SsaJoin:
		newType, err := d.readType()
		if err != nil {
			return false, err
		}
		n, err := d.readU32()
		if err != nil {
			return false, err
		}
		joinTypes := make([]types.SsaCustomType, n)
		for i := range joinTypes {
			joinTypes[i], err = d.readType()
			if err != nil {
				return false, err
			}
		}
		joinVars := make([]VarId, n)
		for i := range joinVars {
			joinVars[i], err = d.readVarId()
			if err != nil {
				return false, err
			}
		}
		// Join always yields exactly one new id, matching the writer
		// (counter advances by 1, not by n).
		d.idCounter++
		return v.VisitJoin(d.idCounter, newType, joinTypes, joinVars), nil

	case SsaCompVtoV:
		cond, err := d.readU8()
		if err != nil {
			return false, err
		}
		t, err := d.readType()
		if err != nil {
			return false, err
		}
		a, err := d.readVarId()
		if err != nil {
			return false, err
		}
		b, err := d.readVarId()
		if err != nil {
			return false, err
		}
		d.idCounter++
		return v.VisitCompVToV(d.idCounter, ir.CompareCondition(cond), t, a, b), nil

	case SsaCompVtoI:
		cond, err := d.readU8()
		if err != nil {
			return false, err
		}
		t, err := d.readType()
		if err != nil {
			return false, err
		}
		size, err := d.readU32()
		if err != nil {
			return false, err
		}
		aValue, err := d.readBytes(int(size))
		if err != nil {
			return false, err
		}
		b, err := d.readVarId()
		if err != nil {
			return false, err
		}
		d.idCounter++
		return v.VisitCompVToI(d.idCounter, ir.CompareCondition(cond), t, aValue, b), nil

	case SsaCompItoV:
		cond, err := d.readU8()
		if err != nil {
			return false, err
		}
		t, err := d.readType()
		if err != nil {
			return false, err
		}
		a, err := d.readVarId()
		if err != nil {
			return false, err
		}
		size, err := d.readU32()
		if err != nil {
			return false, err
		}
		bValue, err := d.readBytes(int(size))
		if err != nil {
			return false, err
		}
		d.idCounter++
		return v.VisitCompIToV(d.idCounter, ir.CompareCondition(cond), t, a, bValue), nil

	case SsaBranch:
		label, err := d.readVarId()
		if err != nil {
			return false, err
		}
		return v.VisitBranch(label), nil

	case SsaBranchCond:
		labelTrue, err := d.readVarId()
		if err != nil {
			return false, err
		}
		labelFalse, err := d.readVarId()
		if err != nil {
			return false, err
		}
		cond, err := d.readVarId()
		if err != nil {
			return false, err
		}
		return v.VisitBranchCond(labelTrue, labelFalse, cond), nil

	case SsaCall:
		function, err := d.readU32()
		if err != nil {
			return false, err
		}
		base, err := d.readVarId()
		if err != nil {
			return false, err
		}
		paramCount, err := d.readU32()
		if err != nil {
			return false, err
		}
		d.idCounter++
		return v.VisitCall(d.idCounter, function, base, paramCount), nil

	case SsaCallExt:
		function, err := d.readU32()
		if err != nil {
			return false, err
		}
		base, err := d.readVarId()
		if err != nil {
			return false, err
		}
		paramCount, err := d.readU32()
		if err != nil {
			return false, err
		}
		module, err := d.readU16()
		if err != nil {
			return false, err
		}
		d.idCounter++
		return v.VisitCallExt(d.idCounter, function, base, paramCount, module), nil

	case SsaCallInd:
		fn, err := d.readVarId()
		if err != nil {
			return false, err
		}
		base, err := d.readVarId()
		if err != nil {
			return false, err
		}
		paramCount, err := d.readU32()
		if err != nil {
			return false, err
		}
		d.idCounter++
		return v.VisitCallInd(d.idCounter, fn, base, paramCount), nil

	case SsaCallIndExt:
		fn, err := d.readVarId()
		if err != nil {
			return false, err
		}
		base, err := d.readVarId()
		if err != nil {
			return false, err
		}
		paramCount, err := d.readU32()
		if err != nil {
			return false, err
		}
		modPtr, err := d.readVarId()
		if err != nil {
			return false, err
		}
		d.idCounter++
		return v.VisitCallIndExt(d.idCounter, fn, base, paramCount, modPtr), nil

	case SsaRet:
		t, err := d.readType()
		if err != nil {
			return false, err
		}
		src, err := d.readVarId()
		if err != nil {
			return false, err
		}
		return v.VisitRet(t, src), nil

	default:
		return false, errors.Wrapf(ErrInvalidOpcode, "0x%04X", uint16(op))
	}
}
