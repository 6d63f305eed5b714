package ssa

import (
	"encoding/binary"

	"github.com/hyfloac/TauIR-sub000/ir"
	"github.com/hyfloac/TauIR-sub000/types"
)

const defaultInitialBufferSize = 64

// Writer accumulates an encoded SSA instruction stream and hands out
// monotonically increasing VarIds as it goes, mirroring SsaWriter.cpp.
// Every allocating Write* method does counter++; return counter, except
// WriteSplit, which reserves splitCount consecutive ids and returns the
// first of them.
type Writer struct {
	buf        []byte
	idCounter  VarId
	varTypeMap []types.SsaCustomType
}

// NewWriter returns a Writer with the given initial buffer capacity (0
// selects the teacher-style default of 64 bytes).
func NewWriter(initialBufferSize int) *Writer {
	if initialBufferSize <= 0 {
		initialBufferSize = defaultInitialBufferSize
	}
	return &Writer{buf: make([]byte, 0, initialBufferSize), varTypeMap: make([]types.SsaCustomType, 1)}
}

func (w *Writer) Bytes() []byte                        { return w.buf }
func (w *Writer) Size() int                            { return len(w.buf) }
func (w *Writer) IdIndex() VarId                       { return w.idCounter }
func (w *Writer) VarTypeMap() []types.SsaCustomType    { return w.varTypeMap }
func (w *Writer) GetVarType(id VarId) types.SsaCustomType {
	if int(id) >= len(w.varTypeMap) {
		return types.SsaCustomType{}
	}
	return w.varTypeMap[id]
}

func (w *Writer) recordType(id VarId, t types.SsaCustomType) {
	for int(id) >= len(w.varTypeMap) {
		w.varTypeMap = append(w.varTypeMap, types.SsaCustomType{})
	}
	w.varTypeMap[id] = t
}

func (w *Writer) allocID(t types.SsaCustomType) VarId {
	w.idCounter++
	w.recordType(w.idCounter, t)
	return w.idCounter
}

func (w *Writer) writeRaw(b []byte)  { w.buf = append(w.buf, b...) }
func (w *Writer) writeU8(v uint8)    { w.buf = append(w.buf, v) }
func (w *Writer) writeU16(v uint16)  { w.writeRaw(binary.LittleEndian.AppendUint16(nil, v)) }
func (w *Writer) writeU32(v uint32)  { w.writeRaw(binary.LittleEndian.AppendUint32(nil, v)) }
func (w *Writer) writeI8(v int8)     { w.writeU8(uint8(v)) }
func (w *Writer) writeI16(v int16)   { w.writeU16(uint16(v)) }
func (w *Writer) writeVarId(v VarId) { w.writeU32(uint32(v)) }

func (w *Writer) writeOpcode(o SsaOpcode) {
	if o.IsTwoByte() {
		w.writeU8(uint8(uint16(o) >> 8))
		w.writeU8(uint8(uint16(o)))
		return
	}
	w.writeU8(uint8(o))
}

func (w *Writer) writeType(t types.SsaCustomType) {
	w.writeU8(uint8(t.Type))
	if t.NeedsAux() {
		w.writeU32(t.CustomType)
	}
}

func (w *Writer) WriteNop() { w.writeOpcode(SsaNop) }

func (w *Writer) WriteLabel() VarId {
	w.writeOpcode(SsaLabel)
	return w.allocID(types.Primitive(types.Void))
}

func (w *Writer) WriteAssignImmediate(varType types.SsaCustomType, value []byte) VarId {
	w.writeOpcode(SsaAssignImmediate)
	w.writeType(varType)
	w.writeU32(uint32(len(value)))
	w.writeRaw(value)
	return w.allocID(varType)
}

func (w *Writer) WriteAssignVariable(varType types.SsaCustomType, v VarId) VarId {
	w.writeOpcode(SsaAssignVariable)
	w.writeType(varType)
	w.writeVarId(v)
	return w.allocID(varType)
}

func (w *Writer) WriteExpandSX(newType, oldType types.SsaCustomType, v VarId) VarId {
	w.writeOpcode(SsaExpandSX)
	w.writeType(newType)
	w.writeType(oldType)
	w.writeVarId(v)
	return w.allocID(newType)
}

func (w *Writer) WriteExpandZX(newType, oldType types.SsaCustomType, v VarId) VarId {
	w.writeOpcode(SsaExpandZX)
	w.writeType(newType)
	w.writeType(oldType)
	w.writeVarId(v)
	return w.allocID(newType)
}

func (w *Writer) WriteTrunc(newType, oldType types.SsaCustomType, v VarId) VarId {
	w.writeOpcode(SsaTrunc)
	w.writeType(newType)
	w.writeType(oldType)
	w.writeVarId(v)
	return w.allocID(newType)
}

func (w *Writer) WriteRCast(newType, oldType types.SsaCustomType, v VarId) VarId {
	w.writeOpcode(SsaRCast)
	w.writeType(newType)
	w.writeType(oldType)
	w.writeVarId(v)
	return w.allocID(newType)
}

func (w *Writer) WriteBCast(newType, oldType types.SsaCustomType, v VarId) VarId {
	w.writeOpcode(SsaBCast)
	w.writeType(newType)
	w.writeType(oldType)
	w.writeVarId(v)
	return w.allocID(newType)
}

func (w *Writer) WriteLoad(t types.SsaCustomType, v VarId) VarId {
	w.writeOpcode(SsaLoad)
	w.writeType(t)
	w.writeVarId(v)
	return w.allocID(t)
}

func (w *Writer) WriteStoreV(t types.SsaCustomType, destPtr, sourceVar VarId) {
	w.writeOpcode(SsaStoreV)
	w.writeType(t)
	w.writeVarId(destPtr)
	w.writeVarId(sourceVar)
}

func (w *Writer) WriteStoreI(t types.SsaCustomType, destPtr VarId, value []byte) {
	w.writeOpcode(SsaStoreI)
	w.writeType(t)
	w.writeVarId(destPtr)
	w.writeU32(uint32(len(value)))
	w.writeRaw(value)
}

func (w *Writer) WriteComputePtr(base, index VarId, multiplier int8, offset int16) VarId {
	w.writeOpcode(SsaComputePtr)
	w.writeVarId(base)
	w.writeVarId(index)
	w.writeI8(multiplier)
	w.writeI16(offset)
	return w.allocID(types.Primitive(types.U64).AddPointer())
}

func (w *Writer) WriteBinOpVtoV(op SsaBinaryOperation, t types.SsaCustomType, a, b VarId) VarId {
	w.writeOpcode(SsaBinOpVtoV)
	w.writeU8(uint8(op))
	w.writeType(t)
	w.writeVarId(a)
	w.writeVarId(b)
	return w.allocID(t)
}

func (w *Writer) WriteBinOpVtoI(op SsaBinaryOperation, t types.SsaCustomType, aValue []byte, b VarId) VarId {
	w.writeOpcode(SsaBinOpVtoI)
	w.writeU8(uint8(op))
	w.writeType(t)
	w.writeU32(uint32(len(aValue)))
	w.writeRaw(aValue)
	w.writeVarId(b)
	return w.allocID(t)
}

func (w *Writer) WriteBinOpItoV(op SsaBinaryOperation, t types.SsaCustomType, a VarId, bValue []byte) VarId {
	w.writeOpcode(SsaBinOpItoV)
	w.writeU8(uint8(op))
	w.writeType(t)
	w.writeVarId(a)
	w.writeU32(uint32(len(bValue)))
	w.writeRaw(bValue)
	return w.allocID(t)
}

// WriteSplit reserves len(splitTypes) consecutive ids for the pieces a is
// split into and returns the id of the first piece. This mirrors
// SsaWriter.cpp's exact arithmetic: ret := counter; counter += n; return
// ret+1.
func (w *Writer) WriteSplit(aType types.SsaCustomType, a VarId, splitTypes []types.SsaCustomType) VarId {
	w.writeOpcode(SsaSplit)
	w.writeType(aType)
	w.writeVarId(a)
	w.writeU32(uint32(len(splitTypes)))
	for _, t := range splitTypes {
		w.writeType(t)
	}

	base := w.idCounter
	w.idCounter += VarId(len(splitTypes))
	for i, t := range splitTypes {
		w.recordType(base+VarId(i)+1, t)
	}
	return base + 1
}

// WriteJoin combines joinVars into a single value of type outType and
// returns its (single) new id.
func (w *Writer) WriteJoin(outType types.SsaCustomType, joinTypes []types.SsaCustomType, joinVars []VarId) VarId {
	w.writeOpcode(SsaJoin)
	w.writeType(outType)
	w.writeU32(uint32(len(joinTypes)))
	for _, t := range joinTypes {
		w.writeType(t)
	}
	for _, v := range joinVars {
		w.writeVarId(v)
	}
	return w.allocID(outType)
}

func (w *Writer) WriteCompVtoV(cond ir.CompareCondition, t types.SsaCustomType, a, b VarId) VarId {
	w.writeOpcode(SsaCompVtoV)
	w.writeU8(uint8(cond))
	w.writeType(t)
	w.writeVarId(a)
	w.writeVarId(b)
	return w.allocID(types.Primitive(types.Bool))
}

func (w *Writer) WriteCompVtoI(cond ir.CompareCondition, t types.SsaCustomType, aValue []byte, b VarId) VarId {
	w.writeOpcode(SsaCompVtoI)
	w.writeU8(uint8(cond))
	w.writeType(t)
	w.writeU32(uint32(len(aValue)))
	w.writeRaw(aValue)
	w.writeVarId(b)
	return w.allocID(types.Primitive(types.Bool))
}

func (w *Writer) WriteCompItoV(cond ir.CompareCondition, t types.SsaCustomType, a VarId, bValue []byte) VarId {
	w.writeOpcode(SsaCompItoV)
	w.writeU8(uint8(cond))
	w.writeType(t)
	w.writeVarId(a)
	w.writeU32(uint32(len(bValue)))
	w.writeRaw(bValue)
	return w.allocID(types.Primitive(types.Bool))
}

func (w *Writer) WriteBranch(label VarId) {
	w.writeOpcode(SsaBranch)
	w.writeVarId(label)
}

func (w *Writer) WriteBranchCond(labelTrue, labelFalse, conditionVar VarId) {
	w.writeOpcode(SsaBranchCond)
	w.writeVarId(labelTrue)
	w.writeVarId(labelFalse)
	w.writeVarId(conditionVar)
}

func (w *Writer) WriteCall(function uint32, baseIndex VarId, parameterCount uint32) VarId {
	w.writeOpcode(SsaCall)
	w.writeU32(function)
	w.writeVarId(baseIndex)
	w.writeU32(parameterCount)
	return w.allocID(types.SsaCustomType{})
}

func (w *Writer) WriteCallExt(function uint32, baseIndex VarId, parameterCount uint32, module uint16) VarId {
	w.writeOpcode(SsaCallExt)
	w.writeU32(function)
	w.writeVarId(baseIndex)
	w.writeU32(parameterCount)
	w.writeU16(module)
	return w.allocID(types.SsaCustomType{})
}

func (w *Writer) WriteCallInd(functionPointer, baseIndex VarId, parameterCount uint32) VarId {
	w.writeOpcode(SsaCallInd)
	w.writeVarId(functionPointer)
	w.writeVarId(baseIndex)
	w.writeU32(parameterCount)
	return w.allocID(types.SsaCustomType{})
}

func (w *Writer) WriteCallIndExt(functionPointer, baseIndex VarId, parameterCount uint32, modulePointer VarId) VarId {
	w.writeOpcode(SsaCallIndExt)
	w.writeVarId(functionPointer)
	w.writeVarId(baseIndex)
	w.writeU32(parameterCount)
	w.writeVarId(modulePointer)
	return w.allocID(types.SsaCustomType{})
}

func (w *Writer) WriteRet(returnType types.SsaCustomType, v VarId) {
	w.writeOpcode(SsaRet)
	w.writeType(returnType)
	w.writeVarId(v)
}