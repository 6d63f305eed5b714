package opto

import (
	"github.com/hyfloac/TauIR-sub000/ir"
	"github.com/hyfloac/TauIR-sub000/module"
	"github.com/hyfloac/TauIR-sub000/ssa"
	"github.com/hyfloac/TauIR-sub000/types"
)

// FunctionResolver looks up a callee by function index, optionally
// through a module reached via a linkage/import index. It is satisfied
// by *module.Module.
type FunctionResolver interface {
	Function(index int) *module.Function
	ResolveLinkage(idx uint16) (*module.Module, bool)
}

// Inliner copies an SSA instruction stream, substituting a callee's own
// SSA body (recursively rewritten so its variable ids don't collide with
// the caller's) wherever ShouldInline approves the call, and leaving
// every other call as-is.
type Inliner struct {
	ssa.BaseVisitor
	writer    *ssa.Writer
	module    FunctionResolver
	registry  *types.Registry
	newVarMap []ssa.VarId
}

// NewInliner returns an Inliner over mod, ready to rewrite a function
// whose SSA form allocated ids up to and including maxID.
func NewInliner(codeSizeHint int, maxID ssa.VarId, mod FunctionResolver, registry *types.Registry) *Inliner {
	return &Inliner{
		writer:    ssa.NewWriter(codeSizeHint * 3),
		module:    mod,
		registry:  registry,
		newVarMap: make([]ssa.VarId, maxID+1),
	}
}

func (in *Inliner) Writer() *ssa.Writer { return in.writer }

func (in *Inliner) transformVar(v ssa.VarId) ssa.VarId {
	if v.IsArgument() {
		return v
	}
	return in.newVarMap[v]
}

// ShouldInlineFunction applies the standard size/control heuristics: a
// function explicitly marked NoInline or NoOptimize, or belonging to a
// native (non-TauIR) module, is never inlined; ForceInline always is;
// otherwise small functions (<=64 bytes of code) inline unconditionally,
// and InlineHint functions get a larger budget (<=256 bytes).
func ShouldInlineFunction(fn *module.Function, calleeModuleIsNative bool) bool {
	flags := fn.Flags()
	if flags.Inline == module.InlineNever {
		return false
	}
	if flags.Optimize == module.OptimizeNever {
		return false
	}
	if calleeModuleIsNative {
		return false
	}
	if flags.Inline == module.InlineForce {
		return true
	}
	if len(fn.Code()) <= 64 {
		return true
	}
	if flags.Inline == module.InlineHint && len(fn.Code()) <= 256 {
		return true
	}
	return false
}

func (in *Inliner) VisitNop() bool { in.writer.WriteNop(); return true }

func (in *Inliner) VisitLabel(label ssa.VarId) bool {
	in.newVarMap[label] = in.writer.WriteLabel()
	return true
}

func (in *Inliner) VisitAssignImmediate(newVar ssa.VarId, t types.SsaCustomType, value []byte) bool {
	in.newVarMap[newVar] = in.writer.WriteAssignImmediate(t, value)
	return true
}

func (in *Inliner) VisitAssignVar(newVar ssa.VarId, t types.SsaCustomType, v ssa.VarId) bool {
	in.newVarMap[newVar] = in.writer.WriteAssignVariable(t, in.transformVar(v))
	return true
}

func (in *Inliner) VisitExpandSX(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	in.newVarMap[newVar] = in.writer.WriteExpandSX(newType, oldType, in.transformVar(v))
	return true
}

func (in *Inliner) VisitExpandZX(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	in.newVarMap[newVar] = in.writer.WriteExpandZX(newType, oldType, in.transformVar(v))
	return true
}

func (in *Inliner) VisitTrunc(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	in.newVarMap[newVar] = in.writer.WriteTrunc(newType, oldType, in.transformVar(v))
	return true
}

func (in *Inliner) VisitRCast(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	in.newVarMap[newVar] = in.writer.WriteRCast(newType, oldType, in.transformVar(v))
	return true
}

func (in *Inliner) VisitBCast(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	in.newVarMap[newVar] = in.writer.WriteBCast(newType, oldType, in.transformVar(v))
	return true
}

func (in *Inliner) VisitLoad(newVar ssa.VarId, t types.SsaCustomType, v ssa.VarId) bool {
	in.newVarMap[newVar] = in.writer.WriteLoad(t, in.transformVar(v))
	return true
}

func (in *Inliner) VisitStoreV(t types.SsaCustomType, destination, source ssa.VarId) bool {
	in.writer.WriteStoreV(t, in.transformVar(destination), in.transformVar(source))
	return true
}

func (in *Inliner) VisitStoreI(t types.SsaCustomType, destination ssa.VarId, value []byte) bool {
	in.writer.WriteStoreI(t, in.transformVar(destination), value)
	return true
}

func (in *Inliner) VisitComputePtr(newVar ssa.VarId, base, index ssa.VarId, multiplier int8, offset int16) bool {
	in.newVarMap[newVar] = in.writer.WriteComputePtr(in.transformVar(base), in.transformVar(index), multiplier, offset)
	return true
}

func (in *Inliner) VisitBinOpVToV(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, a, b ssa.VarId) bool {
	in.newVarMap[newVar] = in.writer.WriteBinOpVtoV(op, t, in.transformVar(a), in.transformVar(b))
	return true
}

func (in *Inliner) VisitBinOpVToI(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, aValue []byte, b ssa.VarId) bool {
	in.newVarMap[newVar] = in.writer.WriteBinOpVtoI(op, t, aValue, in.transformVar(b))
	return true
}

func (in *Inliner) VisitBinOpIToV(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, a ssa.VarId, bValue []byte) bool {
	in.newVarMap[newVar] = in.writer.WriteBinOpItoV(op, t, in.transformVar(a), bValue)
	return true
}

func (in *Inliner) VisitSplit(baseIndex ssa.VarId, aType types.SsaCustomType, a ssa.VarId, splitTypes []types.SsaCustomType) bool {
	computedBase := in.writer.WriteSplit(aType, in.transformVar(a), splitTypes)
	for i := range splitTypes {
		in.newVarMap[baseIndex+ssa.VarId(i)] = computedBase + ssa.VarId(i)
	}
	return true
}

func (in *Inliner) VisitJoin(newVar ssa.VarId, newType types.SsaCustomType, joinTypes []types.SsaCustomType, joinVars []ssa.VarId) bool {
	transformed := make([]ssa.VarId, len(joinVars))
	for i, v := range joinVars {
		transformed[i] = in.transformVar(v)
	}
	in.newVarMap[newVar] = in.writer.WriteJoin(newType, joinTypes, transformed)
	return true
}

func (in *Inliner) VisitCompVToV(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, a, b ssa.VarId) bool {
	in.newVarMap[newVar] = in.writer.WriteCompVtoV(cond, t, in.transformVar(a), in.transformVar(b))
	return true
}

func (in *Inliner) VisitCompVToI(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, aValue []byte, b ssa.VarId) bool {
	in.newVarMap[newVar] = in.writer.WriteCompVtoI(cond, t, aValue, in.transformVar(b))
	return true
}

func (in *Inliner) VisitCompIToV(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, a ssa.VarId, bValue []byte) bool {
	in.newVarMap[newVar] = in.writer.WriteCompItoV(cond, t, in.transformVar(a), bValue)
	return true
}

func (in *Inliner) VisitBranch(label ssa.VarId) bool {
	in.writer.WriteBranch(in.transformVar(label))
	return true
}

func (in *Inliner) VisitBranchCond(labelTrue, labelFalse, conditionVar ssa.VarId) bool {
	in.writer.WriteBranchCond(in.transformVar(labelTrue), in.transformVar(labelFalse), in.transformVar(conditionVar))
	return true
}

func (in *Inliner) VisitCall(newVar ssa.VarId, functionIndex uint32, baseIndex ssa.VarId, parameterCount uint32) bool {
	fn := in.module.Function(int(functionIndex))
	if fn == nil || !ShouldInlineFunction(fn, fn.Module() != nil && fn.Module().IsNative()) {
		in.newVarMap[newVar] = in.writer.WriteCall(functionIndex, in.transformVar(baseIndex), parameterCount)
		return true
	}
	in.inlineFunction(fn, baseIndex, parameterCount, newVar)
	return true
}

func (in *Inliner) VisitCallExt(newVar ssa.VarId, functionIndex uint32, baseIndex ssa.VarId, parameterCount uint32, moduleIndex uint16) bool {
	dep, ok := in.module.ResolveLinkage(moduleIndex)
	var fn *module.Function
	if ok {
		fn = dep.Function(int(functionIndex))
	}
	if fn == nil || !ShouldInlineFunction(fn, dep != nil && dep.IsNative()) {
		in.newVarMap[newVar] = in.writer.WriteCallExt(functionIndex, in.transformVar(baseIndex), parameterCount, moduleIndex)
		return true
	}
	in.inlineFunction(fn, baseIndex, parameterCount, newVar)
	return true
}

func (in *Inliner) VisitCallInd(newVar ssa.VarId, functionPointer, baseIndex ssa.VarId, parameterCount uint32) bool {
	in.newVarMap[newVar] = in.writer.WriteCallInd(in.transformVar(functionPointer), in.transformVar(baseIndex), parameterCount)
	return true
}

func (in *Inliner) VisitCallIndExt(newVar ssa.VarId, functionPointer, baseIndex ssa.VarId, parameterCount uint32, modulePointer ssa.VarId) bool {
	in.newVarMap[newVar] = in.writer.WriteCallIndExt(in.transformVar(functionPointer), in.transformVar(baseIndex), parameterCount, in.transformVar(modulePointer))
	return true
}

func (in *Inliner) VisitRet(returnType types.SsaCustomType, v ssa.VarId) bool {
	in.writer.WriteRet(returnType, in.transformVar(v))
	return true
}

// inlineFunction splices fn's SSA body into the output stream in place
// of a call, mapping fn's own ids into fresh output ids and resolving
// its argument pseudo-variables to the actual call-site operand ids.
func (in *Inliner) inlineFunction(fn *module.Function, baseArg ssa.VarId, parameterCount uint32, retVar ssa.VarId) {
	rewriter := &rewriteVisitor{
		writer:       in.writer,
		outerNewVars: &in.newVarMap,
		baseArg:      baseArg,
		retVar:       retVar,
	}
	rewriter.oldVarMapSize = ssa.VarId(len(*rewriter.outerNewVars))

	d := ssa.NewDecoder(fn.Code(), in.registry)
	// Grow the shared var map to cover the callee's own id space, offset
	// past everything already allocated for the caller.
	growVarMap(rewriter.outerNewVars, int(rewriter.oldVarMapSize)+len(fn.Code()))
	_ = d.Traverse(rewriter)
}

func growVarMap(m *[]ssa.VarId, minLen int) {
	for len(*m) <= minLen {
		*m = append(*m, 0)
	}
}

// rewriteVisitor replays one callee's SSA body into the caller's output
// stream, translating the callee's variable ids into a fresh range past
// everything the caller has already allocated, and resolving argument
// pseudo-variables to the caller's real operand ids for this call site.
type rewriteVisitor struct {
	ssa.BaseVisitor
	writer        *ssa.Writer
	outerNewVars  *[]ssa.VarId
	baseArg       ssa.VarId
	retVar        ssa.VarId
	oldVarMapSize ssa.VarId
}

func (r *rewriteVisitor) set(callerLocal ssa.VarId, v ssa.VarId) {
	growVarMap(r.outerNewVars, int(callerLocal+r.oldVarMapSize))
	(*r.outerNewVars)[callerLocal+r.oldVarMapSize] = v
}

func (r *rewriteVisitor) transformVar(v ssa.VarId) ssa.VarId {
	if v.IsArgument() {
		idx := v.ArgumentIndex()
		growVarMap(r.outerNewVars, int(r.baseArg)+int(idx))
		return (*r.outerNewVars)[int(r.baseArg)+int(idx)]
	}
	return (*r.outerNewVars)[v+r.oldVarMapSize]
}

func (r *rewriteVisitor) VisitNop() bool { r.writer.WriteNop(); return true }

func (r *rewriteVisitor) VisitLabel(label ssa.VarId) bool {
	r.set(label, r.writer.WriteLabel())
	return true
}

func (r *rewriteVisitor) VisitAssignImmediate(newVar ssa.VarId, t types.SsaCustomType, value []byte) bool {
	r.set(newVar, r.writer.WriteAssignImmediate(t, value))
	return true
}

func (r *rewriteVisitor) VisitAssignVar(newVar ssa.VarId, t types.SsaCustomType, v ssa.VarId) bool {
	r.set(newVar, r.writer.WriteAssignVariable(t, r.transformVar(v)))
	return true
}

func (r *rewriteVisitor) VisitExpandSX(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	r.set(newVar, r.writer.WriteExpandSX(newType, oldType, r.transformVar(v)))
	return true
}

func (r *rewriteVisitor) VisitExpandZX(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	r.set(newVar, r.writer.WriteExpandZX(newType, oldType, r.transformVar(v)))
	return true
}

func (r *rewriteVisitor) VisitTrunc(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	r.set(newVar, r.writer.WriteTrunc(newType, oldType, r.transformVar(v)))
	return true
}

func (r *rewriteVisitor) VisitRCast(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	r.set(newVar, r.writer.WriteRCast(newType, oldType, r.transformVar(v)))
	return true
}

func (r *rewriteVisitor) VisitBCast(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	r.set(newVar, r.writer.WriteBCast(newType, oldType, r.transformVar(v)))
	return true
}

func (r *rewriteVisitor) VisitLoad(newVar ssa.VarId, t types.SsaCustomType, v ssa.VarId) bool {
	r.set(newVar, r.writer.WriteLoad(t, r.transformVar(v)))
	return true
}

func (r *rewriteVisitor) VisitStoreV(t types.SsaCustomType, destination, source ssa.VarId) bool {
	r.writer.WriteStoreV(t, r.transformVar(destination), r.transformVar(source))
	return true
}

func (r *rewriteVisitor) VisitStoreI(t types.SsaCustomType, destination ssa.VarId, value []byte) bool {
	r.writer.WriteStoreI(t, r.transformVar(destination), value)
	return true
}

func (r *rewriteVisitor) VisitComputePtr(newVar ssa.VarId, base, index ssa.VarId, multiplier int8, offset int16) bool {
	r.set(newVar, r.writer.WriteComputePtr(r.transformVar(base), r.transformVar(index), multiplier, offset))
	return true
}

func (r *rewriteVisitor) VisitBinOpVToV(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, a, b ssa.VarId) bool {
	r.set(newVar, r.writer.WriteBinOpVtoV(op, t, r.transformVar(a), r.transformVar(b)))
	return true
}

func (r *rewriteVisitor) VisitBinOpVToI(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, aValue []byte, b ssa.VarId) bool {
	r.set(newVar, r.writer.WriteBinOpVtoI(op, t, aValue, r.transformVar(b)))
	return true
}

func (r *rewriteVisitor) VisitBinOpIToV(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, a ssa.VarId, bValue []byte) bool {
	r.set(newVar, r.writer.WriteBinOpItoV(op, t, r.transformVar(a), bValue))
	return true
}

func (r *rewriteVisitor) VisitSplit(baseIndex ssa.VarId, aType types.SsaCustomType, a ssa.VarId, splitTypes []types.SsaCustomType) bool {
	computedBase := r.writer.WriteSplit(aType, r.transformVar(a), splitTypes)
	for i := range splitTypes {
		r.set(baseIndex+ssa.VarId(i), computedBase+ssa.VarId(i))
	}
	return true
}

func (r *rewriteVisitor) VisitJoin(newVar ssa.VarId, newType types.SsaCustomType, joinTypes []types.SsaCustomType, joinVars []ssa.VarId) bool {
	transformed := make([]ssa.VarId, len(joinVars))
	for i, v := range joinVars {
		transformed[i] = r.transformVar(v)
	}
	r.set(newVar, r.writer.WriteJoin(newType, joinTypes, transformed))
	return true
}

func (r *rewriteVisitor) VisitCompVToV(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, a, b ssa.VarId) bool {
	r.set(newVar, r.writer.WriteCompVtoV(cond, t, r.transformVar(a), r.transformVar(b)))
	return true
}

func (r *rewriteVisitor) VisitCompVToI(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, aValue []byte, b ssa.VarId) bool {
	r.set(newVar, r.writer.WriteCompVtoI(cond, t, aValue, r.transformVar(b)))
	return true
}

func (r *rewriteVisitor) VisitCompIToV(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, a ssa.VarId, bValue []byte) bool {
	r.set(newVar, r.writer.WriteCompItoV(cond, t, r.transformVar(a), bValue))
	return true
}

func (r *rewriteVisitor) VisitBranch(label ssa.VarId) bool {
	r.writer.WriteBranch(r.transformVar(label))
	return true
}

func (r *rewriteVisitor) VisitBranchCond(labelTrue, labelFalse, conditionVar ssa.VarId) bool {
	r.writer.WriteBranchCond(r.transformVar(labelTrue), r.transformVar(labelFalse), r.transformVar(conditionVar))
	return true
}

func (r *rewriteVisitor) VisitCall(newVar ssa.VarId, functionIndex uint32, baseIndex ssa.VarId, parameterCount uint32) bool {
	r.set(newVar, r.writer.WriteCall(functionIndex, r.transformVar(baseIndex), parameterCount))
	return true
}

func (r *rewriteVisitor) VisitCallExt(newVar ssa.VarId, functionIndex uint32, baseIndex ssa.VarId, parameterCount uint32, moduleIndex uint16) bool {
	r.set(newVar, r.writer.WriteCallExt(functionIndex, r.transformVar(baseIndex), parameterCount, moduleIndex))
	return true
}

func (r *rewriteVisitor) VisitCallInd(newVar ssa.VarId, functionPointer, baseIndex ssa.VarId, parameterCount uint32) bool {
	r.set(newVar, r.writer.WriteCallInd(r.transformVar(functionPointer), r.transformVar(baseIndex), parameterCount))
	return true
}

func (r *rewriteVisitor) VisitCallIndExt(newVar ssa.VarId, functionPointer, baseIndex ssa.VarId, parameterCount uint32, modulePointer ssa.VarId) bool {
	r.set(newVar, r.writer.WriteCallIndExt(r.transformVar(functionPointer), r.transformVar(baseIndex), parameterCount, r.transformVar(modulePointer)))
	return true
}

func (r *rewriteVisitor) VisitRet(returnType types.SsaCustomType, v ssa.VarId) bool {
	growVarMap(r.outerNewVars, int(r.retVar))
	(*r.outerNewVars)[r.retVar] = r.transformVar(v)
	return true
}
