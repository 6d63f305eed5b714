// Package opto implements the SSA-level optimizer passes: constant
// propagation/folding, use/def analysis, dead-code elimination, and
// function inlining.
package opto

import (
	"math/bits"

	"github.com/hyfloac/TauIR-sub000/ir"
	"github.com/hyfloac/TauIR-sub000/ssa"
	"github.com/hyfloac/TauIR-sub000/types"
)

// linkageKind mirrors ConstantPropLinkage's EType discriminant.
type linkageKind uint8

const (
	linkageVariable linkageKind = iota
	linkageVariableReference
	linkageValueLiteral
	linkageValueReference
)

type linkage struct {
	kind  linkageKind
	v     ssa.VarId
	value []byte
}

func (l linkage) isVar() bool { return l.kind == linkageVariable || l.kind == linkageVariableReference }

// ConstantPropagator rewrites an SSA instruction stream, folding
// arithmetic, casts, and pointer arithmetic over literal operands into
// fresh AssignImmediate instructions, and forwarding variable-to-variable
// assignments to their ultimate source.
type ConstantPropagator struct {
	ssa.BaseVisitor
	writer    *ssa.Writer
	linkages  []linkage
	newVarMap []ssa.VarId
}

// NewConstantPropagator returns a propagator ready to rewrite a function
// whose SSA form allocated ids up to and including maxID.
func NewConstantPropagator(codeSizeHint int, maxID ssa.VarId) *ConstantPropagator {
	c := &ConstantPropagator{
		writer:    ssa.NewWriter(codeSizeHint * 3),
		linkages:  make([]linkage, maxID+1),
		newVarMap: make([]ssa.VarId, maxID+1),
	}
	for i := range c.linkages {
		c.linkages[i] = linkage{kind: linkageVariable, v: ssa.VarId(i)}
	}
	return c
}

// Writer returns the accumulated rewritten instruction stream.
func (c *ConstantPropagator) Writer() *ssa.Writer { return c.writer }

func (c *ConstantPropagator) findSource(v ssa.VarId) ssa.VarId {
	if v.IsArgument() {
		return v
	}
	return c.newVarMap[v]
}

func (c *ConstantPropagator) VisitLabel(label ssa.VarId) bool {
	c.newVarMap[label] = c.writer.WriteLabel()
	return true
}

func (c *ConstantPropagator) VisitAssignImmediate(newVar ssa.VarId, t types.SsaCustomType, value []byte) bool {
	c.linkages[newVar] = linkage{kind: linkageValueLiteral, value: value}
	c.newVarMap[newVar] = c.writer.WriteAssignImmediate(t, value)
	return true
}

func (c *ConstantPropagator) VisitAssignVar(newVar ssa.VarId, t types.SsaCustomType, v ssa.VarId) bool {
	if v.IsArgument() {
		c.linkages[newVar] = linkage{kind: linkageVariable, v: v}
		c.newVarMap[newVar] = v
		return true
	}
	source := c.findSource(v)
	prior := c.linkages[v]
	kind := linkageVariableReference
	if !prior.isVar() {
		kind = linkageValueReference
	}
	c.linkages[newVar] = linkage{kind: kind, v: source, value: prior.value}
	c.newVarMap[newVar] = source
	return true
}

// foldableRange reports whether a cast between two primitive, non-pointer
// types with known value sizes is eligible for constant folding.
func foldableRange(newType, oldType types.SsaCustomType) bool {
	if newType.IsPointer() || oldType.IsPointer() {
		return false
	}
	if newType.CustomType != 0xFFFFFFFF || oldType.CustomType != 0xFFFFFFFF {
		return false
	}
	return true
}

func expandDisallowedNew(t types.SsaType) bool {
	switch t {
	case types.Void, types.Bool, types.F16, types.F32, types.F64, types.I8, types.U8:
		return true
	}
	return false
}

func expandDisallowedOld(t types.SsaType) bool {
	switch t {
	case types.Void, types.Bool, types.F16, types.F32, types.F64, types.I64, types.U64:
		return true
	}
	return false
}

func truncDisallowedNew(t types.SsaType) bool {
	switch t {
	case types.Void, types.Bool, types.F16, types.F32, types.F64, types.I64, types.U64:
		return true
	}
	return false
}

func truncDisallowedOld(t types.SsaType) bool {
	switch t {
	case types.Void, types.Bool, types.F16, types.F32, types.F64, types.I8, types.U8:
		return true
	}
	return false
}

func signExtend(raw []byte, oldType types.SsaType) int64 {
	switch oldType {
	case types.I8, types.U8:
		return int64(int8(raw[0]))
	case types.I16, types.U16:
		return int64(int16(leU16(raw)))
	case types.I32, types.U32:
		return int64(int32(leU32(raw)))
	case types.I64, types.U64:
		return int64(leU64(raw))
	}
	return 0
}

func zeroExtend(raw []byte, oldType types.SsaType) uint64 {
	switch oldType {
	case types.I8, types.U8:
		return uint64(raw[0])
	case types.I16, types.U16:
		return uint64(leU16(raw))
	case types.I32, types.U32:
		return uint64(leU32(raw))
	case types.I64, types.U64:
		return leU64(raw)
	}
	return 0
}

func encodeInt(t types.SsaType, value uint64) []byte {
	switch t {
	case types.I8, types.U8:
		return []byte{byte(value)}
	case types.I16, types.U16:
		return put16(uint16(value))
	case types.I32, types.U32:
		return put32(uint32(value))
	case types.I64, types.U64:
		return put64(value)
	}
	return nil
}

// VisitExpandSX folds sign-extension over a literal operand. Non-foldable
// operands (variables, arguments) are passed through to a real ExpandSX
// instruction rather than misrouted to ExpandSX's writer entry point
// under another opcode's name.
func (c *ConstantPropagator) VisitExpandSX(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	return c.expand(newVar, newType, oldType, v, true)
}

// VisitExpandZX folds zero-extension over a literal operand.
func (c *ConstantPropagator) VisitExpandZX(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	return c.expand(newVar, newType, oldType, v, false)
}

func (c *ConstantPropagator) expand(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId, signed bool) bool {
	if v.IsArgument() || c.linkages[v].isVar() ||
		!foldableRange(newType, oldType) || expandDisallowedNew(newType.Type) || expandDisallowedOld(oldType.Type) {
		src := c.findSource(v)
		if signed {
			c.newVarMap[newVar] = c.writer.WriteExpandSX(newType, oldType, src)
		} else {
			c.newVarMap[newVar] = c.writer.WriteExpandZX(newType, oldType, src)
		}
		return true
	}

	raw := c.linkages[v].value
	var encoded []byte
	if signed {
		encoded = encodeInt(newType.Type, uint64(signExtend(raw, oldType.Type)))
	} else {
		encoded = encodeInt(newType.Type, zeroExtend(raw, oldType.Type))
	}
	c.newVarMap[newVar] = c.writer.WriteAssignImmediate(newType, encoded)
	c.linkages[newVar] = linkage{kind: linkageValueLiteral, value: encoded}
	return true
}

func (c *ConstantPropagator) VisitTrunc(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	if v.IsArgument() || c.linkages[v].isVar() ||
		!foldableRange(newType, oldType) || truncDisallowedNew(newType.Type) || truncDisallowedOld(oldType.Type) {
		c.newVarMap[newVar] = c.writer.WriteTrunc(newType, oldType, c.findSource(v))
		return true
	}

	raw := c.linkages[v].value
	value := zeroExtend(raw, oldType.Type)
	encoded := encodeInt(newType.Type, value)
	c.newVarMap[newVar] = c.writer.WriteAssignImmediate(newType, encoded)
	c.linkages[newVar] = linkage{kind: linkageValueLiteral, value: encoded}
	return true
}

func (c *ConstantPropagator) VisitRCast(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	if v.IsArgument() || c.linkages[v].isVar() || sizeOf(newType) != sizeOf(oldType) {
		c.newVarMap[newVar] = c.writer.WriteRCast(newType, oldType, c.findSource(v))
		return true
	}

	lk := c.linkages[v]

	c.newVarMap[newVar] = c.writer.WriteAssignImmediate(newType, lk.value)
	c.linkages[newVar] = linkage{kind: linkageValueLiteral, value: lk.value}
	return true
}

// VisitBCast folds a bit-cast over a literal operand. Unlike RCast, this
// never checks that old and new sizes match: the spec treats BCast as a
// raw reinterpretation that may legitimately change size. The literal's
// bytes are reused unchanged, so the folded immediate keeps the source
// literal's byte length.
func (c *ConstantPropagator) VisitBCast(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	if v.IsArgument() || c.linkages[v].isVar() {
		c.newVarMap[newVar] = c.writer.WriteBCast(newType, oldType, c.findSource(v))
		return true
	}

	lk := c.linkages[v]
	c.newVarMap[newVar] = c.writer.WriteAssignImmediate(newType, lk.value)
	c.linkages[newVar] = linkage{kind: linkageValueLiteral, value: lk.value}
	return true
}

func (c *ConstantPropagator) VisitLoad(newVar ssa.VarId, t types.SsaCustomType, v ssa.VarId) bool {
	c.newVarMap[newVar] = c.writer.WriteLoad(t, c.findSource(v))
	return true
}

// VisitStoreV forwards the destination pointer and either the folded
// source variable or its folded literal value. When the source is an
// argument pseudo-variable it is never resolvable to a literal, so this
// returns immediately after emitting the variable form — the original's
// fallthrough into its value-literal branch for an argument source reads
// past a linkage table indexed by an out-of-range argument id.
func (c *ConstantPropagator) VisitStoreV(t types.SsaCustomType, destination, source ssa.VarId) bool {
	if source.IsArgument() {
		c.writer.WriteStoreV(t, c.findSource(destination), source)
		return true
	}

	if c.linkages[source].isVar() {
		c.writer.WriteStoreV(t, c.findSource(destination), c.findSource(source))
	} else {
		c.writer.WriteStoreI(t, c.findSource(destination), c.linkages[source].value)
	}
	return true
}

func (c *ConstantPropagator) VisitStoreI(t types.SsaCustomType, destination ssa.VarId, value []byte) bool {
	c.writer.WriteStoreI(t, c.findSource(destination), value)
	return true
}

func (c *ConstantPropagator) VisitComputePtr(newVar ssa.VarId, base, index ssa.VarId, multiplier int8, offset int16) bool {
	var basePtr, scaledIndex uint64
	haveBase, haveIndex := false, false

	if !base.IsArgument() && !c.linkages[base].isVar() {
		bl := c.linkages[base]
		if len(bl.value) != 8 {
			return false
		}
		basePtr = leU64(bl.value)
		haveBase = true
	}
	if !index.IsArgument() && !c.linkages[index].isVar() {
		il := c.linkages[index]
		if len(il.value) != 8 {
			return false
		}
		scaledIndex = leU64(il.value) * uint64(int64(multiplier))
		haveIndex = true
	}

	ptrType := types.Primitive(types.Void).AddPointer()

	switch {
	case haveBase && haveIndex:
		computed := basePtr + scaledIndex + uint64(int64(offset))
		encoded := put64(computed)
		c.newVarMap[newVar] = c.writer.WriteAssignImmediate(ptrType, encoded)
		c.linkages[newVar] = linkage{kind: linkageValueLiteral, value: encoded}
	case !haveBase && haveIndex:
		scaledOffset := int64(scaledIndex) + int64(offset)
		if scaledOffset <= 32767 && scaledOffset >= -32768 {
			c.newVarMap[newVar] = c.writer.WriteComputePtr(c.findSource(base), c.findSource(base), 0, int16(scaledOffset))
		} else {
			c.newVarMap[newVar] = c.writer.WriteComputePtr(c.findSource(base), c.findSource(index), multiplier, offset)
		}
	default:
		c.newVarMap[newVar] = c.writer.WriteComputePtr(c.findSource(base), c.findSource(index), multiplier, offset)
	}
	return true
}

func (c *ConstantPropagator) VisitBinOpVToV(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, a, b ssa.VarId) bool {
	if t.CustomType != 0xFFFFFFFF {
		return false
	}
	if t.Type == types.Void || t.Type == types.Bool {
		return false
	}

	aIsArg, bIsArg := a.IsArgument(), b.IsArgument()
	if aIsArg && bIsArg {
		c.newVarMap[newVar] = c.writer.WriteBinOpVtoV(op, t, a, b)
		return true
	}

	aIsValue := !aIsArg && !c.linkages[a].isVar()
	bIsValue := !bIsArg && !c.linkages[b].isVar()

	switch {
	case !aIsValue && !bIsValue:
		c.newVarMap[newVar] = c.writer.WriteBinOpVtoV(op, t, c.findSource(a), c.findSource(b))
	case aIsValue && bIsValue:
		want := sizeOf(t)
		if len(c.linkages[a].value) != len(c.linkages[b].value) || len(c.linkages[a].value) != want {
			return false
		}
		c.evalIToI(newVar, op, t, c.linkages[a].value, c.linkages[b].value)
	case !aIsValue && bIsValue:
		if len(c.linkages[b].value) != sizeOf(t) {
			return false
		}
		c.newVarMap[newVar] = c.writer.WriteBinOpItoV(op, t, c.findSource(a), c.linkages[b].value)
	default:
		if len(c.linkages[a].value) != sizeOf(t) {
			return false
		}
		c.newVarMap[newVar] = c.writer.WriteBinOpVtoI(op, t, c.linkages[a].value, c.findSource(b))
	}
	return true
}

func (c *ConstantPropagator) VisitBinOpVToI(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, aValue []byte, b ssa.VarId) bool {
	if t.CustomType != 0xFFFFFFFF || len(aValue) != sizeOf(t) {
		return false
	}
	if t.Type == types.Void || t.Type == types.Bool {
		return false
	}

	if b.IsArgument() {
		c.newVarMap[newVar] = c.writer.WriteBinOpVtoI(op, t, aValue, b)
		return true
	}

	if c.linkages[b].isVar() {
		c.newVarMap[newVar] = c.writer.WriteBinOpVtoI(op, t, aValue, c.findSource(b))
	} else {
		c.evalIToI(newVar, op, t, aValue, c.linkages[b].value)
	}
	return true
}

func (c *ConstantPropagator) VisitBinOpIToV(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, a ssa.VarId, bValue []byte) bool {
	if t.CustomType != 0xFFFFFFFF || len(bValue) != sizeOf(t) {
		return false
	}
	if t.Type == types.Void || t.Type == types.Bool {
		return false
	}

	if a.IsArgument() {
		c.newVarMap[newVar] = c.writer.WriteBinOpItoV(op, t, a, bValue)
		return true
	}

	if c.linkages[a].isVar() {
		c.newVarMap[newVar] = c.writer.WriteBinOpItoV(op, t, c.findSource(a), bValue)
	} else {
		c.evalIToI(newVar, op, t, c.linkages[a].value, bValue)
	}
	return true
}

func (c *ConstantPropagator) evalIToI(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, aBuf, bBuf []byte) {
	var a, b uint64
	if t.IsPointer() {
		a, b = leU64(aBuf), leU64(bBuf)
	} else {
		a, b = zeroExtend(aBuf, t.Type), zeroExtend(bBuf, t.Type)
	}

	width := sizeOf(t) * 8
	if width == 0 {
		width = 64
	}

	var result uint64
	switch op {
	case ssa.BinAdd:
		result = a + b
	case ssa.BinSub:
		result = a - b
	case ssa.BinMul:
		result = a * b
	case ssa.BinDiv:
		if b != 0 {
			result = a / b
		}
	case ssa.BinRem:
		if b != 0 {
			result = a % b
		}
	case ssa.BinBitShiftLeft:
		result = a << (b % uint64(width))
	case ssa.BinBitShiftRight:
		result = a >> (b % uint64(width))
	case ssa.BinBarrelShiftLeft:
		result = rotate(a, int(b), width, true)
	case ssa.BinBarrelShiftRight:
		result = rotate(a, int(b), width, false)
	}

	var encoded []byte
	if t.IsPointer() {
		encoded = put64(result)
	} else {
		encoded = encodeInt(t.Type, result)
	}
	c.newVarMap[newVar] = c.writer.WriteAssignImmediate(t, encoded)
	c.linkages[newVar] = linkage{kind: linkageValueLiteral, value: encoded}
}

func rotate(n uint64, c, width int, left bool) uint64 {
	if width <= 0 || width > 64 {
		width = 64
	}
	c %= width
	if c < 0 {
		c += width
	}
	masked := n & (uint64(1)<<uint(width) - 1)
	var r uint64
	if left {
		r = bits.RotateLeft64(masked<<uint(64-width), c) >> uint(64-width)
	} else {
		r = bits.RotateLeft64(masked<<uint(64-width), -c) >> uint(64-width)
	}
	return r
}

func (c *ConstantPropagator) VisitBranch(label ssa.VarId) bool {
	c.writer.WriteBranch(c.findSource(label))
	return true
}

func (c *ConstantPropagator) VisitBranchCond(labelTrue, labelFalse, conditionVar ssa.VarId) bool {
	c.writer.WriteBranchCond(c.findSource(labelTrue), c.findSource(labelFalse), c.findSource(conditionVar))
	return true
}

func (c *ConstantPropagator) VisitCall(newVar ssa.VarId, functionIndex uint32, baseIndex ssa.VarId, parameterCount uint32) bool {
	c.newVarMap[newVar] = c.writer.WriteCall(functionIndex, c.findSource(baseIndex), parameterCount)
	return true
}

func (c *ConstantPropagator) VisitCallExt(newVar ssa.VarId, functionIndex uint32, baseIndex ssa.VarId, parameterCount uint32, moduleIndex uint16) bool {
	c.newVarMap[newVar] = c.writer.WriteCallExt(functionIndex, c.findSource(baseIndex), parameterCount, moduleIndex)
	return true
}

func (c *ConstantPropagator) VisitCallInd(newVar ssa.VarId, functionPointer, baseIndex ssa.VarId, parameterCount uint32) bool {
	c.newVarMap[newVar] = c.writer.WriteCallInd(c.findSource(functionPointer), c.findSource(baseIndex), parameterCount)
	return true
}

func (c *ConstantPropagator) VisitCallIndExt(newVar ssa.VarId, functionPointer, baseIndex ssa.VarId, parameterCount uint32, modulePointer ssa.VarId) bool {
	c.newVarMap[newVar] = c.writer.WriteCallIndExt(c.findSource(functionPointer), c.findSource(baseIndex), parameterCount, c.findSource(modulePointer))
	return true
}

func (c *ConstantPropagator) VisitRet(returnType types.SsaCustomType, v ssa.VarId) bool {
	c.writer.WriteRet(returnType, c.findSource(v))
	return true
}

func (c *ConstantPropagator) VisitCompVToV(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, a, b ssa.VarId) bool {
	c.newVarMap[newVar] = c.writer.WriteCompVtoV(cond, t, c.findSource(a), c.findSource(b))
	return true
}

func (c *ConstantPropagator) VisitCompVToI(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, aValue []byte, b ssa.VarId) bool {
	c.newVarMap[newVar] = c.writer.WriteCompVtoI(cond, t, aValue, c.findSource(b))
	return true
}

func (c *ConstantPropagator) VisitCompIToV(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, a ssa.VarId, bValue []byte) bool {
	c.newVarMap[newVar] = c.writer.WriteCompItoV(cond, t, c.findSource(a), bValue)
	return true
}

func sizeOf(t types.SsaCustomType) int {
	size, ok := t.Type.ValueSize()
	if !ok {
		return 0
	}
	return size
}

func leU16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func leU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
func put16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func put32(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }
func put64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
