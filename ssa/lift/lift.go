// Package lift implements the stack-to-SSA transform: walking a
// function's decoded stack-IR instruction stream and re-emitting it as
// SSA form through a Writer/FrameTracker pair. It is a direct port of
// IrToSsaVisitor (IrToSsa.cpp), generalized to this module's types.
package lift

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/hyfloac/TauIR-sub000/ir"
	"github.com/hyfloac/TauIR-sub000/module"
	"github.com/hyfloac/TauIR-sub000/ssa"
	"github.com/hyfloac/TauIR-sub000/types"
)

// ErrStackUnderflow is returned when a PopRaw request needs more bytes
// than remain on the tracked operand stack.
var ErrStackUnderflow = errors.New("tauir/ssa/lift: operand stack underflow")

// ErrBadIndirectCallSite is returned when an indirect call site's
// function-pointer local isn't a 4-byte custom type carrying a mangled
// argument-layout name, mirroring HandleIndirectCallSite's silent
// zero-argument fallback, except that this implementation reports the
// failure instead of guessing an empty argument list.
var ErrBadIndirectCallSite = errors.New("tauir/ssa/lift: indirect call site local is not a mangled function-pointer type")

// globalSlotSize is the assumed width of one synthesized global-table
// slot. The on-disk layout of the global table is outside spec scope
// (spec.md's Open Questions leave it unaddressed); this implementation
// picks a uniform 8-byte slot, matching the argument register width.
const globalSlotSize = 8

// FunctionResolver looks up a callee's declared argument layout for a
// direct Call/CallExt call site. Satisfied by *module.Module.
type FunctionResolver interface {
	Function(index int) *module.Function
	ResolveLinkage(idx uint16) (*module.Module, bool)
}

// Lifter implements ir.Visitor, translating one function's stack-IR body
// into SSA form. Create one per function via NewLifter (or just call
// TransformFunction).
type Lifter struct {
	ir.BaseVisitor

	function *module.Function
	resolver FunctionResolver
	registry *types.Registry

	writer *ssa.Writer
	frame  *ssa.FrameTracker

	// globalBase and extGlobalBase hold synthesized pointer variables
	// standing in for the base address of this module's (or an imported
	// module's) global table. See VisitPushGlobal and friends below.
	globalBase    ssa.VarId
	extGlobalBase map[uint16]ssa.VarId

	err error
}

// NewLifter returns a Lifter ready to transform fn's code.
func NewLifter(fn *module.Function, resolver FunctionResolver, registry *types.Registry) *Lifter {
	return &Lifter{
		function:      fn,
		resolver:      resolver,
		registry:      registry,
		writer:        ssa.NewWriter(len(fn.Code()) * 3),
		frame:         ssa.NewFrameTracker(len(fn.LocalTypes())),
		extGlobalBase: make(map[uint16]ssa.VarId),
	}
}

// Writer returns the SSA writer accumulating the lifted instruction
// stream so far.
func (l *Lifter) Writer() *ssa.Writer { return l.writer }

// TransformFunction lifts fn's stack-IR code to SSA form, mirroring
// IrToSsa::TransformFunction. resolver resolves a direct call site's
// callee; registry resolves custom-type sizes and debug names (including
// the mangled argument layout carried by an indirect call site's
// function-pointer local).
func TransformFunction(fn *module.Function, resolver FunctionResolver, registry *types.Registry) (*ssa.Writer, error) {
	l := NewLifter(fn, resolver, registry)
	dec := ir.NewDecoder(fn.Code())
	if err := dec.Traverse(l); err != nil {
		return nil, errors.Wrapf(err, "lifting function %q", fn.Name())
	}
	if l.err != nil {
		return nil, errors.Wrapf(l.err, "lifting function %q", fn.Name())
	}
	return l.writer, nil
}

func (l *Lifter) fail(err error) bool {
	l.err = err
	return false
}

func (l *Lifter) sizeOf(t types.SsaCustomType) int {
	size, err := t.ValueSize(8, l.registry)
	if err != nil {
		l.err = err
		return 0
	}
	return size
}

func signedSizeType(size int) types.SsaCustomType {
	switch size {
	case 1:
		return types.Primitive(types.I8)
	case 2:
		return types.Primitive(types.I16)
	case 4:
		return types.Primitive(types.I32)
	case 8:
		return types.Primitive(types.I64)
	default:
		return types.Primitive(types.Void)
	}
}

func unsignedSizeType(size int) types.SsaCustomType {
	switch size {
	case 1:
		return types.Primitive(types.U8)
	case 2:
		return types.Primitive(types.U16)
	case 4:
		return types.Primitive(types.U32)
	case 8:
		return types.Primitive(types.U64)
	default:
		return types.Primitive(types.Void)
	}
}

// popRaw pops whole frames off the operand stack until at least size
// bytes have been collected, reassembling a single value of semanticType.
// A single frame that matches size exactly is returned as-is. Multiple
// frames are combined with Join; an overshoot on the last frame popped is
// first carved apart with Split, the spare bytes are pushed back, and the
// kept remainder joins the rest. This is IrToSsa::PopRaw, with the
// original's literal WriteJoin(type, 0, ...) argument-count bug fixed to
// pass the true piece count.
func (l *Lifter) popRaw(size int, semanticType types.SsaCustomType) (ssa.VarId, error) {
	first, ok := l.frame.PopFrame()
	if !ok {
		return 0, errors.Wrapf(ErrStackUnderflow, "need %d bytes, stack empty", size)
	}
	frameSize := first.Size
	if frameSize == size {
		return first.Var, nil
	}

	pieceTypes := []types.SsaCustomType{l.writer.GetVarType(first.Var)}
	pieceVars := []ssa.VarId{first.Var}
	last := first

	for frameSize < size {
		next, ok := l.frame.PopFrame()
		if !ok {
			return 0, errors.Wrapf(ErrStackUnderflow, "need %d bytes, have %d", size, frameSize)
		}
		pieceTypes = append(pieceTypes, l.writer.GetVarType(next.Var))
		pieceVars = append(pieceVars, next.Var)
		frameSize += next.Size
		last = next
	}

	if frameSize > size {
		spill := frameSize - size
		keep := last.Size - spill
		spillType := types.NewBytesType(uint32(spill))
		keepType := types.NewBytesType(uint32(keep))
		base := l.writer.WriteSplit(l.writer.GetVarType(last.Var), last.Var, []types.SsaCustomType{spillType, keepType})
		l.frame.PushFrame(base, spill)
		pieceTypes[len(pieceTypes)-1] = keepType
		pieceVars[len(pieceVars)-1] = base + 1
	}

	// The pieces were collected newest-first (stack-pop order); Join
	// expects them in the order they were originally pushed.
	for i, j := 0, len(pieceVars)-1; i < j; i, j = i+1, j-1 {
		pieceTypes[i], pieceTypes[j] = pieceTypes[j], pieceTypes[i]
		pieceVars[i], pieceVars[j] = pieceVars[j], pieceVars[i]
	}

	return l.writer.WriteJoin(semanticType, pieceTypes, pieceVars), nil
}

func (l *Lifter) popLocal(localIndex int) (ssa.VarId, error) {
	localType := l.function.LocalTypes()[localIndex].StripPointer()
	v, err := l.popRaw(l.sizeOf(localType), localType)
	if err != nil {
		return 0, err
	}
	l.frame.SetLocal(v, localIndex)
	return v, nil
}

func (l *Lifter) popArgument(index int) (ssa.VarId, error) {
	v, err := l.popRaw(8, types.Primitive(types.U64))
	if err != nil {
		return 0, err
	}
	l.frame.SetArgument(v, index)
	return v, nil
}

func (l *Lifter) VisitPush(index uint32) bool {
	localType := l.function.LocalTypes()[index].StripPointer()
	localVar := l.frame.GetLocal(int(index))
	newVar := l.writer.WriteAssignVariable(localType, localVar)
	l.frame.PushFrame(newVar, l.sizeOf(localType))
	return l.err == nil
}

func (l *Lifter) VisitPushArg(index uint32) bool {
	argVar := l.frame.GetArgument(int(index))
	newVar := l.writer.WriteAssignVariable(types.Primitive(types.U64), argVar)
	l.frame.PushFrame(newVar, 8)
	return true
}

func (l *Lifter) VisitPushPtr(localIndex uint32) bool {
	localType := l.function.LocalTypes()[localIndex].StripPointer()
	localVar := l.frame.GetLocal(int(localIndex))
	newVar := l.writer.WriteLoad(localType, localVar)
	l.frame.PushFrame(newVar, l.sizeOf(localType))
	return l.err == nil
}

// localGlobalBase lazily synthesizes the pointer variable standing in
// for this module's global table base address. PushGlobal/PopGlobal are accepted
// on the wire (§4.2) but spec.md's Open Questions leave their backing
// storage format undefined, so lowering goes through the same
// Load/StoreV/ComputePtr primitives used for locals against an opaque
// base the embedder is expected to relocate.
func (l *Lifter) localGlobalBase() ssa.VarId {
	if l.globalBase == 0 {
		l.globalBase = l.writer.WriteAssignImmediate(types.Primitive(types.U64).AddPointer(), make([]byte, 8))
	}
	return l.globalBase
}

func (l *Lifter) extGlobalBaseVar(moduleIndex uint16) ssa.VarId {
	if v, ok := l.extGlobalBase[moduleIndex]; ok {
		return v
	}
	v := l.writer.WriteAssignImmediate(types.Primitive(types.U64).AddPointer(), make([]byte, 8))
	l.extGlobalBase[moduleIndex] = v
	return v
}

func (l *Lifter) globalAddr(base ssa.VarId, index uint32) ssa.VarId {
	idxVar := l.writer.WriteAssignImmediate(types.Primitive(types.U64), binary.LittleEndian.AppendUint64(nil, uint64(index)))
	return l.writer.WriteComputePtr(base, idxVar, globalSlotSize, 0)
}

func (l *Lifter) VisitPushGlobal(index uint32) bool {
	ptr := l.globalAddr(l.localGlobalBase(), index)
	val := l.writer.WriteLoad(types.Primitive(types.U64), ptr)
	l.frame.PushFrame(val, 8)
	return true
}

func (l *Lifter) VisitPushGlobalExt(index uint32, moduleIndex uint16) bool {
	ptr := l.globalAddr(l.extGlobalBaseVar(moduleIndex), index)
	val := l.writer.WriteLoad(types.Primitive(types.U64), ptr)
	l.frame.PushFrame(val, 8)
	return true
}

func (l *Lifter) VisitPushGlobalPtr(index uint32) bool {
	ptr := l.globalAddr(l.localGlobalBase(), index)
	l.frame.PushFrame(ptr, 8)
	return true
}

func (l *Lifter) VisitPop(localIndex uint32) bool {
	_, err := l.popLocal(int(localIndex))
	if err != nil {
		return l.fail(err)
	}
	return true
}

func (l *Lifter) VisitPopArg(index uint32) bool {
	_, err := l.popArgument(int(index))
	if err != nil {
		return l.fail(err)
	}
	return true
}

func (l *Lifter) VisitPopPtr(localIndex uint32) bool {
	localType := l.function.LocalTypes()[localIndex].StripPointer()
	dataDest := l.frame.GetLocal(int(localIndex))
	v, err := l.popRaw(l.sizeOf(localType), localType)
	if err != nil {
		return l.fail(err)
	}
	l.writer.WriteStoreV(localType, dataDest, v)
	return true
}

func (l *Lifter) VisitPopGlobal(index uint32) bool {
	v, err := l.popRaw(8, types.Primitive(types.U64))
	if err != nil {
		return l.fail(err)
	}
	ptr := l.globalAddr(l.localGlobalBase(), index)
	l.writer.WriteStoreV(types.Primitive(types.U64), ptr, v)
	return true
}

func (l *Lifter) VisitPopGlobalExt(index uint32, moduleIndex uint16) bool {
	v, err := l.popRaw(8, types.Primitive(types.U64))
	if err != nil {
		return l.fail(err)
	}
	ptr := l.globalAddr(l.extGlobalBaseVar(moduleIndex), index)
	l.writer.WriteStoreV(types.Primitive(types.U64), ptr, v)
	return true
}

// VisitPopGlobalPtr and VisitPopGlobalExtPtr store the popped value the
// same way as their non-Ptr peers: the global slot is an opaque 8-byte
// cell regardless of whether the value popped off the stack is itself a
// pointer, so no dereference is needed on this side of the store.
func (l *Lifter) VisitPopGlobalPtr(index uint32) bool {
	return l.VisitPopGlobal(index)
}

func (l *Lifter) VisitPopGlobalExtPtr(index uint32, moduleIndex uint16) bool {
	return l.VisitPopGlobalExt(index, moduleIndex)
}

func (l *Lifter) VisitPopCount(n uint32) bool {
	_, err := l.popRaw(int(n), types.NewBytesType(n))
	if err != nil {
		return l.fail(err)
	}
	return true
}

func (l *Lifter) VisitDup(n uint8) bool {
	v, err := l.popRaw(int(n), types.NewBytesType(uint32(n)))
	if err != nil {
		return l.fail(err)
	}
	l.frame.PushFrame(v, int(n))
	l.frame.PushFrame(v, int(n))
	return true
}

func (l *Lifter) VisitExpandSX(fromBits, toBits uint8) bool {
	from := signedSizeType(int(fromBits))
	v, err := l.popRaw(int(fromBits), from)
	if err != nil {
		return l.fail(err)
	}
	to := signedSizeType(int(toBits))
	expanded := l.writer.WriteExpandSX(to, from, v)
	l.frame.PushFrame(expanded, int(toBits))
	return true
}

func (l *Lifter) VisitExpandZX(fromBits, toBits uint8) bool {
	from := unsignedSizeType(int(fromBits))
	v, err := l.popRaw(int(fromBits), from)
	if err != nil {
		return l.fail(err)
	}
	to := unsignedSizeType(int(toBits))
	expanded := l.writer.WriteExpandZX(to, from, v)
	l.frame.PushFrame(expanded, int(toBits))
	return true
}

func (l *Lifter) VisitTrunc(fromBits, toBits uint8) bool {
	from := unsignedSizeType(int(fromBits))
	v, err := l.popRaw(int(fromBits), from)
	if err != nil {
		return l.fail(err)
	}
	to := unsignedSizeType(int(toBits))
	truncated := l.writer.WriteTrunc(to, from, v)
	l.frame.PushFrame(truncated, int(toBits))
	return true
}

func (l *Lifter) VisitConst(value uint32) bool {
	v := l.writer.WriteAssignImmediate(types.Primitive(types.U32), binary.LittleEndian.AppendUint32(nil, value))
	l.frame.PushFrame(v, 4)
	return true
}

// VisitBinOp lowers Add/Sub/Mul/Div at either width. Div additionally
// pushes the remainder above the quotient, matching DivI32/DivI64's two
// BinOpVtoV writes in IrToSsa.cpp.
func (l *Lifter) VisitBinOp(op ir.Opcode, width ir.Width) bool {
	size := int(width) / 8
	t := unsignedSizeType(size)

	if op == ir.OpDivI32 || op == ir.OpDivI64 {
		b, err := l.popRaw(size, t)
		if err != nil {
			return l.fail(err)
		}
		a, err := l.popRaw(size, t)
		if err != nil {
			return l.fail(err)
		}
		quotient := l.writer.WriteBinOpVtoV(ssa.BinDiv, t, a, b)
		remainder := l.writer.WriteBinOpVtoV(ssa.BinRem, t, a, b)
		l.frame.PushFrame(quotient, size)
		l.frame.PushFrame(remainder, size)
		return true
	}

	var bop ssa.SsaBinaryOperation
	switch op {
	case ir.OpAddI32, ir.OpAddI64:
		bop = ssa.BinAdd
	case ir.OpSubI32, ir.OpSubI64:
		bop = ssa.BinSub
	case ir.OpMulI32, ir.OpMulI64:
		bop = ssa.BinMul
	default:
		return l.fail(errors.Errorf("tauir/ssa/lift: unhandled binary opcode %s", op))
	}

	b, err := l.popRaw(size, t)
	if err != nil {
		return l.fail(err)
	}
	a, err := l.popRaw(size, t)
	if err != nil {
		return l.fail(err)
	}
	res := l.writer.WriteBinOpVtoV(bop, t, a, b)
	l.frame.PushFrame(res, size)
	return true
}

func (l *Lifter) VisitComp(width ir.Width, cond ir.CompareCondition) bool {
	size := int(width) / 8
	t := unsignedSizeType(size)
	b, err := l.popRaw(size, t)
	if err != nil {
		return l.fail(err)
	}
	a, err := l.popRaw(size, t)
	if err != nil {
		return l.fail(err)
	}
	res := l.writer.WriteCompVtoV(cond, t, a, b)
	l.frame.PushFrame(res, size)
	return true
}

// handleFunctionArgs stages args into fresh SSA values in order, each
// always wrapped in its own AssignVariable (even when sourced from the
// stack) so the resulting ids are contiguous, matching HandleFunctionArgs
// and satisfying the baseIndex/parameterCount contiguity Call/CallExt
// rely on.
func (l *Lifter) handleFunctionArgs(args []module.FunctionArgument) uint32 {
	for _, arg := range args {
		var v ssa.VarId
		if arg.IsRegister {
			v = l.frame.GetArgument(int(arg.RegisterOrStackOffset))
		} else {
			raw, err := l.popRaw(8, types.Primitive(types.U64))
			if err != nil {
				l.err = err
				return uint32(len(args))
			}
			v = raw
		}
		l.writer.WriteAssignVariable(types.Primitive(types.U64), v)
	}
	return uint32(len(args))
}

func (l *Lifter) handleCallSite(functionIndex uint32, moduleIndex uint16, ext bool) uint32 {
	var target *module.Function
	if ext {
		mod, ok := l.resolver.ResolveLinkage(moduleIndex)
		if !ok {
			l.err = errors.Errorf("tauir/ssa/lift: call site references unresolved linkage index %d", moduleIndex)
			return 0
		}
		target = mod.Function(int(functionIndex))
	} else {
		target = l.resolver.Function(int(functionIndex))
	}
	if target == nil {
		l.err = errors.Errorf("tauir/ssa/lift: call site references unknown function index %d", functionIndex)
		return 0
	}
	return l.handleFunctionArgs(target.Arguments())
}

func (l *Lifter) handleIndirectCallSite(localIndex uint32) uint32 {
	functionType := l.function.LocalTypes()[localIndex]
	if l.sizeOf(functionType) != 4 || functionType.Base() != types.Custom {
		l.err = errors.Wrapf(ErrBadIndirectCallSite, "local %d", localIndex)
		return 0
	}
	name, ok := l.registry.Name(functionType.CustomType)
	if !ok {
		l.err = errors.Wrapf(ErrBadIndirectCallSite, "local %d", localIndex)
		return 0
	}
	args, err := module.DemangleFunctionName(name)
	if err != nil {
		l.err = errors.Wrapf(err, "indirect call site local %d", localIndex)
		return 0
	}
	return l.handleFunctionArgs(args)
}

func (l *Lifter) VisitCall(function uint32) bool {
	baseIndex := l.writer.IdIndex() + 1
	argCount := l.handleCallSite(function, 0, false)
	if l.err != nil {
		return false
	}
	retID := l.writer.WriteCall(function, baseIndex, argCount)
	l.frame.SetArgument(retID, 0)
	return true
}

func (l *Lifter) VisitCallExt(function uint32, moduleIndex uint16) bool {
	baseIndex := l.writer.IdIndex() + 1
	argCount := l.handleCallSite(function, moduleIndex, true)
	if l.err != nil {
		return false
	}
	retID := l.writer.WriteCallExt(function, baseIndex, argCount, moduleIndex)
	l.frame.SetArgument(retID, 0)
	return true
}

func (l *Lifter) VisitCallInd(functionPointerIndex uint32) bool {
	baseIndex := l.writer.IdIndex() + 1
	argCount := l.handleIndirectCallSite(functionPointerIndex)
	if l.err != nil {
		return false
	}
	retID := l.writer.WriteCallInd(l.frame.GetLocal(int(functionPointerIndex)), baseIndex, argCount)
	l.frame.SetArgument(retID, 0)
	return true
}

func (l *Lifter) VisitCallIndExt(functionPointerIndex uint32, moduleIndex uint16) bool {
	_ = moduleIndex
	baseIndex := l.writer.IdIndex() + 1
	argCount := l.handleIndirectCallSite(functionPointerIndex)
	if l.err != nil {
		return false
	}
	modVar, err := l.popRaw(2, types.Primitive(types.U16))
	if err != nil {
		return l.fail(err)
	}
	retID := l.writer.WriteCallIndExt(l.frame.GetLocal(int(functionPointerIndex)), baseIndex, argCount, modVar)
	l.frame.SetArgument(retID, 0)
	return true
}

func (l *Lifter) VisitRet() bool {
	argVar := l.frame.GetArgument(0)
	l.writer.WriteRet(types.Primitive(types.U64), argVar)
	return true
}
