package opto

import (
	"github.com/hyfloac/TauIR-sub000/ir"
	"github.com/hyfloac/TauIR-sub000/ssa"
	"github.com/hyfloac/TauIR-sub000/types"
)

// UsageMap records, for every variable that was read, every variable
// whose instruction performed that read — a multimap from def to each
// of its uses, built by UsageAnalyzer.
type UsageMap map[ssa.VarId][]ssa.VarId

func (m UsageMap) insert(def, use ssa.VarId) { m[def] = append(m[def], use) }

// UsageAnalyzer walks an SSA instruction stream and records which
// variable ids are read by which other variable's defining instruction.
// A variable that reads itself (VisitRet, VisitStoreV's destination,
// VisitStoreI's destination) marks itself as a root use that keeps it
// alive regardless of whether anything else reads it.
type UsageAnalyzer struct {
	ssa.BaseVisitor
	usage UsageMap
}

// NewUsageAnalyzer returns a fresh analyzer.
func NewUsageAnalyzer() *UsageAnalyzer {
	return &UsageAnalyzer{usage: make(UsageMap)}
}

// UsageMap returns the usage relation built so far.
func (u *UsageAnalyzer) UsageMap() UsageMap { return u.usage }

func (u *UsageAnalyzer) handleUsage(newVar, v ssa.VarId) bool {
	if !v.IsArgument() {
		u.usage.insert(v, newVar)
	}
	return true
}

func (u *UsageAnalyzer) VisitAssignVar(newVar ssa.VarId, t types.SsaCustomType, v ssa.VarId) bool {
	return u.handleUsage(newVar, v)
}
func (u *UsageAnalyzer) VisitExpandSX(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	return u.handleUsage(newVar, v)
}
func (u *UsageAnalyzer) VisitExpandZX(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	return u.handleUsage(newVar, v)
}
func (u *UsageAnalyzer) VisitTrunc(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	return u.handleUsage(newVar, v)
}
func (u *UsageAnalyzer) VisitRCast(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	return u.handleUsage(newVar, v)
}
func (u *UsageAnalyzer) VisitBCast(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	return u.handleUsage(newVar, v)
}
func (u *UsageAnalyzer) VisitLoad(newVar ssa.VarId, t types.SsaCustomType, v ssa.VarId) bool {
	return u.handleUsage(newVar, v)
}

func (u *UsageAnalyzer) VisitStoreV(t types.SsaCustomType, destination, source ssa.VarId) bool {
	u.handleUsage(destination, destination)
	return u.handleUsage(source, source)
}

func (u *UsageAnalyzer) VisitStoreI(t types.SsaCustomType, destination ssa.VarId, value []byte) bool {
	return u.handleUsage(destination, destination)
}

func (u *UsageAnalyzer) VisitComputePtr(newVar ssa.VarId, base, index ssa.VarId, multiplier int8, offset int16) bool {
	u.handleUsage(newVar, base)
	return u.handleUsage(newVar, index)
}

func (u *UsageAnalyzer) VisitBinOpVToV(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, a, b ssa.VarId) bool {
	u.handleUsage(newVar, a)
	return u.handleUsage(newVar, b)
}
func (u *UsageAnalyzer) VisitBinOpVToI(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, aValue []byte, b ssa.VarId) bool {
	return u.handleUsage(newVar, b)
}
func (u *UsageAnalyzer) VisitBinOpIToV(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, a ssa.VarId, bValue []byte) bool {
	return u.handleUsage(newVar, a)
}
func (u *UsageAnalyzer) VisitCompVToV(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, a, b ssa.VarId) bool {
	u.handleUsage(newVar, a)
	return u.handleUsage(newVar, b)
}
func (u *UsageAnalyzer) VisitCompVToI(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, aValue []byte, b ssa.VarId) bool {
	return u.handleUsage(newVar, b)
}
func (u *UsageAnalyzer) VisitCompIToV(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, a ssa.VarId, bValue []byte) bool {
	return u.handleUsage(newVar, a)
}

func (u *UsageAnalyzer) VisitCall(newVar ssa.VarId, functionIndex uint32, baseIndex ssa.VarId, parameterCount uint32) bool {
	for i := uint32(0); i < parameterCount; i++ {
		u.handleUsage(newVar, baseIndex+ssa.VarId(i))
	}
	return u.handleUsage(newVar, newVar)
}

func (u *UsageAnalyzer) VisitCallExt(newVar ssa.VarId, functionIndex uint32, baseIndex ssa.VarId, parameterCount uint32, moduleIndex uint16) bool {
	for i := uint32(0); i < parameterCount; i++ {
		u.handleUsage(newVar, baseIndex+ssa.VarId(i))
	}
	return u.handleUsage(newVar, newVar)
}

func (u *UsageAnalyzer) VisitCallInd(newVar ssa.VarId, functionPointer, baseIndex ssa.VarId, parameterCount uint32) bool {
	u.handleUsage(newVar, functionPointer)
	for i := uint32(0); i < parameterCount; i++ {
		u.handleUsage(newVar, baseIndex+ssa.VarId(i))
	}
	return u.handleUsage(newVar, newVar)
}

func (u *UsageAnalyzer) VisitCallIndExt(newVar ssa.VarId, functionPointer, baseIndex ssa.VarId, parameterCount uint32, modulePointer ssa.VarId) bool {
	u.handleUsage(newVar, functionPointer)
	u.handleUsage(newVar, modulePointer)
	for i := uint32(0); i < parameterCount; i++ {
		u.handleUsage(newVar, baseIndex+ssa.VarId(i))
	}
	return u.handleUsage(newVar, newVar)
}

func (u *UsageAnalyzer) VisitRet(returnType types.SsaCustomType, v ssa.VarId) bool {
	return u.handleUsage(v, v)
}

// DeadCodeEliminator rewrites an SSA instruction stream, dropping every
// instruction whose defined variable is never (transitively) used, per a
// previously computed UsageMap.
type DeadCodeEliminator struct {
	ssa.BaseVisitor
	writer    *ssa.Writer
	usage     UsageMap
	newVarMap []ssa.VarId
	confirmed map[ssa.VarId]bool
}

// NewDeadCodeEliminator returns an eliminator driven by usage, rewriting
// a function whose SSA form allocated ids up to and including maxID.
func NewDeadCodeEliminator(codeSizeHint int, maxID ssa.VarId, usage UsageMap) *DeadCodeEliminator {
	return &DeadCodeEliminator{
		writer:    ssa.NewWriter(codeSizeHint * 3),
		usage:     usage,
		newVarMap: make([]ssa.VarId, maxID+1),
		confirmed: make(map[ssa.VarId]bool),
	}
}

func (d *DeadCodeEliminator) Writer() *ssa.Writer { return d.writer }

func (d *DeadCodeEliminator) findSource(v ssa.VarId) ssa.VarId {
	if v.IsArgument() {
		return v
	}
	return d.newVarMap[v]
}

// confirmUsage reports whether var is, directly or transitively, read by
// something that keeps it alive (VisitRet's operand, a store's
// destination). Walks the usage multimap depth-first; a usage cycle
// would recurse forever, but SSA def-use edges are acyclic by
// construction so this always terminates.
func (d *DeadCodeEliminator) confirmUsage(v ssa.VarId) bool {
	if confirmed, ok := d.confirmed[v]; ok {
		return confirmed
	}
	for _, use := range d.usage[v] {
		if use == v || d.confirmUsage(use) {
			d.confirmed[v] = true
			return true
		}
	}
	d.confirmed[v] = false
	return false
}

func (d *DeadCodeEliminator) VisitLabel(label ssa.VarId) bool {
	d.newVarMap[label] = d.writer.WriteLabel()
	return true
}

func (d *DeadCodeEliminator) VisitAssignImmediate(newVar ssa.VarId, t types.SsaCustomType, value []byte) bool {
	if !d.confirmUsage(newVar) {
		return true
	}
	d.newVarMap[newVar] = d.writer.WriteAssignImmediate(t, value)
	return true
}

func (d *DeadCodeEliminator) VisitAssignVar(newVar ssa.VarId, t types.SsaCustomType, v ssa.VarId) bool {
	if !d.confirmUsage(newVar) {
		return true
	}
	d.newVarMap[newVar] = d.writer.WriteAssignVariable(t, d.findSource(v))
	return true
}

func (d *DeadCodeEliminator) VisitExpandSX(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	if !d.confirmUsage(newVar) {
		return true
	}
	d.newVarMap[newVar] = d.writer.WriteExpandSX(newType, oldType, d.findSource(v))
	return true
}

func (d *DeadCodeEliminator) VisitExpandZX(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	if !d.confirmUsage(newVar) {
		return true
	}
	d.newVarMap[newVar] = d.writer.WriteExpandZX(newType, oldType, d.findSource(v))
	return true
}

func (d *DeadCodeEliminator) VisitTrunc(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	if !d.confirmUsage(newVar) {
		return true
	}
	d.newVarMap[newVar] = d.writer.WriteTrunc(newType, oldType, d.findSource(v))
	return true
}

func (d *DeadCodeEliminator) VisitRCast(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	if !d.confirmUsage(newVar) {
		return true
	}
	d.newVarMap[newVar] = d.writer.WriteRCast(newType, oldType, d.findSource(v))
	return true
}

func (d *DeadCodeEliminator) VisitBCast(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	if !d.confirmUsage(newVar) {
		return true
	}
	d.newVarMap[newVar] = d.writer.WriteBCast(newType, oldType, d.findSource(v))
	return true
}

func (d *DeadCodeEliminator) VisitLoad(newVar ssa.VarId, t types.SsaCustomType, v ssa.VarId) bool {
	if !d.confirmUsage(newVar) {
		return true
	}
	d.newVarMap[newVar] = d.writer.WriteLoad(t, d.findSource(v))
	return true
}

func (d *DeadCodeEliminator) VisitStoreV(t types.SsaCustomType, destination, source ssa.VarId) bool {
	d.writer.WriteStoreV(t, d.findSource(destination), d.findSource(source))
	return true
}

func (d *DeadCodeEliminator) VisitStoreI(t types.SsaCustomType, destination ssa.VarId, value []byte) bool {
	d.writer.WriteStoreI(t, d.findSource(destination), value)
	return true
}

func (d *DeadCodeEliminator) VisitComputePtr(newVar ssa.VarId, base, index ssa.VarId, multiplier int8, offset int16) bool {
	if !d.confirmUsage(newVar) {
		return true
	}
	d.newVarMap[newVar] = d.writer.WriteComputePtr(d.findSource(base), d.findSource(index), multiplier, offset)
	return true
}

func (d *DeadCodeEliminator) VisitBinOpVToV(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, a, b ssa.VarId) bool {
	if !d.confirmUsage(newVar) {
		return true
	}
	d.newVarMap[newVar] = d.writer.WriteBinOpVtoV(op, t, d.findSource(a), d.findSource(b))
	return true
}

func (d *DeadCodeEliminator) VisitBinOpVToI(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, aValue []byte, b ssa.VarId) bool {
	if !d.confirmUsage(newVar) {
		return true
	}
	d.newVarMap[newVar] = d.writer.WriteBinOpVtoI(op, t, aValue, d.findSource(b))
	return true
}

func (d *DeadCodeEliminator) VisitBinOpIToV(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, a ssa.VarId, bValue []byte) bool {
	if !d.confirmUsage(newVar) {
		return true
	}
	d.newVarMap[newVar] = d.writer.WriteBinOpItoV(op, t, d.findSource(a), bValue)
	return true
}

func (d *DeadCodeEliminator) VisitCompVToV(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, a, b ssa.VarId) bool {
	if !d.confirmUsage(newVar) {
		return true
	}
	d.newVarMap[newVar] = d.writer.WriteCompVtoV(cond, t, d.findSource(a), d.findSource(b))
	return true
}

func (d *DeadCodeEliminator) VisitCompVToI(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, aValue []byte, b ssa.VarId) bool {
	if !d.confirmUsage(newVar) {
		return true
	}
	d.newVarMap[newVar] = d.writer.WriteCompVtoI(cond, t, aValue, d.findSource(b))
	return true
}

func (d *DeadCodeEliminator) VisitCompIToV(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, a ssa.VarId, bValue []byte) bool {
	if !d.confirmUsage(newVar) {
		return true
	}
	d.newVarMap[newVar] = d.writer.WriteCompItoV(cond, t, d.findSource(a), bValue)
	return true
}

func (d *DeadCodeEliminator) VisitBranch(label ssa.VarId) bool {
	d.writer.WriteBranch(d.findSource(label))
	return true
}

func (d *DeadCodeEliminator) VisitBranchCond(labelTrue, labelFalse, conditionVar ssa.VarId) bool {
	d.writer.WriteBranchCond(d.findSource(labelTrue), d.findSource(labelFalse), d.findSource(conditionVar))
	return true
}

func (d *DeadCodeEliminator) VisitCall(newVar ssa.VarId, functionIndex uint32, baseIndex ssa.VarId, parameterCount uint32) bool {
	d.newVarMap[newVar] = d.writer.WriteCall(functionIndex, d.findSource(baseIndex), parameterCount)
	return true
}

func (d *DeadCodeEliminator) VisitCallExt(newVar ssa.VarId, functionIndex uint32, baseIndex ssa.VarId, parameterCount uint32, moduleIndex uint16) bool {
	d.newVarMap[newVar] = d.writer.WriteCallExt(functionIndex, d.findSource(baseIndex), parameterCount, moduleIndex)
	return true
}

func (d *DeadCodeEliminator) VisitCallInd(newVar ssa.VarId, functionPointer, baseIndex ssa.VarId, parameterCount uint32) bool {
	d.newVarMap[newVar] = d.writer.WriteCallInd(d.findSource(functionPointer), d.findSource(baseIndex), parameterCount)
	return true
}

func (d *DeadCodeEliminator) VisitCallIndExt(newVar ssa.VarId, functionPointer, baseIndex ssa.VarId, parameterCount uint32, modulePointer ssa.VarId) bool {
	d.newVarMap[newVar] = d.writer.WriteCallIndExt(d.findSource(functionPointer), d.findSource(baseIndex), parameterCount, d.findSource(modulePointer))
	return true
}

func (d *DeadCodeEliminator) VisitRet(returnType types.SsaCustomType, v ssa.VarId) bool {
	d.writer.WriteRet(returnType, d.findSource(v))
	return true
}
