package emulate

import (
	"github.com/hyfloac/TauIR-sub000/ir"
	"github.com/hyfloac/TauIR-sub000/module"
	"github.com/hyfloac/TauIR-sub000/ssa"
	"github.com/hyfloac/TauIR-sub000/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrUndefinedVariable is returned when an SSA value is read before any
// instruction has defined it.
var ErrUndefinedVariable = errors.New("tauir/emulate: read of undefined SSA variable")

// ssaMemorySize is the byte-addressable flat memory region SsaVM gives
// ComputePtr/Load/StoreV/StoreI, sized generously since SSA-level programs
// typically carry far fewer, larger allocations than stack-IR locals.
const ssaMemorySize = 16 * 1024 * 1024

// SsaVM is a direct-dispatch interpreter over lifted SSA functions. Unlike
// VM, it was not distilled from the teacher's register-machine VM (the
// upstream project has no SSA-level reference interpreter to draw from);
// its register file is simply a map keyed by ssa.VarId, the natural
// representation for an IR whose ids are sparse and whose argument
// pseudo-variables live in a disjoint id space (ssa.ArgumentBit).
type SsaVM struct {
	vars map[ssa.VarId][]byte
	args map[uint32][]byte

	memory []byte
	memTop uint64

	log *logrus.Entry
}

// NewSsaVM returns an SsaVM with a fresh flat memory region.
func NewSsaVM() *SsaVM {
	return &SsaVM{
		vars:   make(map[ssa.VarId][]byte),
		args:   make(map[uint32][]byte),
		memory: make([]byte, ssaMemorySize),
		log:    logrus.WithField("component", "tauir.emulate.ssavm"),
	}
}

// SetArgument seeds argument pseudo-variable index with a raw little-endian
// value before calling Run.
func (vm *SsaVM) SetArgument(index uint32, value []byte) {
	vm.args[index] = append([]byte(nil), value...)
}

// Alloc reserves n bytes in the flat memory arena ComputePtr/Load/StoreV/
// StoreI address into, returning the base address. Exposed for tests and
// host code that need to seed a pointer value before calling Run.
func (vm *SsaVM) Alloc(n int) uint64 {
	if int(vm.memTop)+n > len(vm.memory) {
		grown := make([]byte, (int(vm.memTop)+n)*2)
		copy(grown, vm.memory)
		vm.memory = grown
	}
	addr := vm.memTop
	vm.memTop += uint64(n)
	return addr
}

// Memory exposes the flat memory arena directly, for tests that want to
// read back a value StoreV/StoreI wrote without going through a Load.
func (vm *SsaVM) Memory() []byte { return vm.memory }

func (vm *SsaVM) get(id ssa.VarId) ([]byte, error) {
	if id.IsArgument() {
		v, ok := vm.args[id.ArgumentIndex()]
		if !ok {
			return nil, errors.Wrapf(ErrUndefinedVariable, "argument %d", id.ArgumentIndex())
		}
		return v, nil
	}
	v, ok := vm.vars[id]
	if !ok {
		return nil, errors.Wrapf(ErrUndefinedVariable, "%%%d", uint32(id))
	}
	return v, nil
}

func (vm *SsaVM) set(id ssa.VarId, value []byte) {
	vm.vars[id] = append([]byte(nil), value...)
}

// ssaFrame runs one SSA function invocation, resolving Call/CallExt/CallInd
// /CallIndExt via native Go recursion, matching VM's approach.
type ssaFrame struct {
	vm  *SsaVM
	mod *module.Module
	fn  *module.Function

	decoder *ssa.Decoder
	err     error

	// retValue holds the value Ret most recently produced, read back by
	// the caller after Run/call returns.
	retValue []byte

	// labels maps a label variable to the (byte offset, id counter) a
	// Branch/BranchCond targeting it must restore, discovered by a
	// pre-scan since labels may be defined after their use site.
	labels map[ssa.VarId]labelTarget
}

type labelTarget struct {
	pos       int
	idCounter ssa.VarId
}

// scanLabels walks fn's SSA code once, recording every VisitLabel's byte
// position and id-counter-at-that-point so Branch/BranchCond can jump
// forward as well as backward.
func scanLabels(code []byte, registry *types.Registry) (map[ssa.VarId]labelTarget, error) {
	labels := make(map[ssa.VarId]labelTarget)
	d := ssa.NewDecoder(code, registry)
	scanner := &labelScanner{labels: labels, decoder: d}
	if err := d.Traverse(scanner); err != nil {
		return nil, err
	}
	return labels, nil
}

type labelScanner struct {
	ssa.BaseVisitor
	labels  map[ssa.VarId]labelTarget
	decoder *ssa.Decoder
}

func (s *labelScanner) VisitLabel(label ssa.VarId) bool {
	s.labels[label] = labelTarget{pos: s.decoder.Pos(), idCounter: s.decoder.IdIndex()}
	return true
}

func (vm *SsaVM) newFrame(mod *module.Module, fn *module.Function) (*ssaFrame, error) {
	labels, err := scanLabels(fn.Code(), mod.Registry())
	if err != nil {
		return nil, err
	}
	return &ssaFrame{vm: vm, mod: mod, fn: fn, labels: labels}, nil
}

// Run executes fn's SSA code and returns Ret's operand value.
func (vm *SsaVM) Run(mod *module.Module, fn *module.Function) ([]byte, error) {
	f, err := vm.newFrame(mod, fn)
	if err != nil {
		return nil, err
	}
	if err := f.exec(); err != nil {
		return nil, err
	}
	return f.retValue, nil
}

func (f *ssaFrame) exec() error {
	f.vm.log.WithField("function", f.fn.Name()).Debug("entering ssa function")
	f.decoder = ssa.NewDecoder(f.fn.Code(), f.mod.Registry())
	if err := f.decoder.Traverse(f); err != nil {
		return errors.Wrapf(err, "executing %s", f.fn.Name())
	}
	return f.err
}

func (f *ssaFrame) fail(err error) bool {
	f.err = err
	return false
}

func (f *ssaFrame) unsupported(name string) bool {
	f.vm.log.WithFields(logrus.Fields{"function": f.fn.Name(), "opcode": name}).Warn("trapped on unsupported ssa opcode")
	return f.fail(errors.Wrapf(ErrUnsupportedOpcode, "%s", name))
}

func (f *ssaFrame) VisitNop() bool  { return true }
func (f *ssaFrame) VisitLabel(ssa.VarId) bool { return true }

func (f *ssaFrame) VisitAssignImmediate(newVar ssa.VarId, t types.SsaCustomType, value []byte) bool {
	f.vm.set(newVar, value)
	return true
}

func (f *ssaFrame) VisitAssignVar(newVar ssa.VarId, t types.SsaCustomType, v ssa.VarId) bool {
	val, err := f.vm.get(v)
	if err != nil {
		return f.fail(err)
	}
	f.vm.set(newVar, val)
	return true
}

func (f *ssaFrame) convert(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId, signed, truncate bool) bool {
	val, err := f.vm.get(v)
	if err != nil {
		return f.fail(err)
	}
	newSize, err := newType.ValueSize(ptrSize, f.mod.Registry())
	if err != nil {
		return f.fail(err)
	}
	out := make([]byte, newSize)
	if truncate {
		n := len(val)
		if newSize < n {
			n = newSize
		}
		copy(out, val[:n])
	} else if signed {
		putIntLE(out, uint64(signExtendBytes(val)))
	} else {
		putIntLE(out, zeroExtendBytes(val))
	}
	f.vm.set(newVar, out)
	return true
}

func (f *ssaFrame) VisitExpandSX(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	return f.convert(newVar, newType, oldType, v, true, false)
}

func (f *ssaFrame) VisitExpandZX(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	return f.convert(newVar, newType, oldType, v, false, false)
}

func (f *ssaFrame) VisitTrunc(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	return f.convert(newVar, newType, oldType, v, false, true)
}

// VisitRCast and VisitBCast are both bit-identical reinterpretations at
// the value-representation level this emulator uses (a raw byte slice):
// neither changes the stored bytes, only the type tag under which later
// instructions interpret them, so both simply alias the source bytes.
func (f *ssaFrame) VisitRCast(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	val, err := f.vm.get(v)
	if err != nil {
		return f.fail(err)
	}
	f.vm.set(newVar, val)
	return true
}

func (f *ssaFrame) VisitBCast(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	val, err := f.vm.get(v)
	if err != nil {
		return f.fail(err)
	}
	f.vm.set(newVar, val)
	return true
}

func (f *ssaFrame) VisitLoad(newVar ssa.VarId, t types.SsaCustomType, v ssa.VarId) bool {
	ptrBytes, err := f.vm.get(v)
	if err != nil {
		return f.fail(err)
	}
	ptr := leUint(ptrBytes)
	size, err := t.ValueSize(ptrSize, f.mod.Registry())
	if err != nil {
		return f.fail(err)
	}
	out := make([]byte, size)
	copy(out, f.vm.memory[ptr:ptr+uint64(size)])
	f.vm.set(newVar, out)
	return true
}

func (f *ssaFrame) VisitStoreV(t types.SsaCustomType, destination, source ssa.VarId) bool {
	ptrBytes, err := f.vm.get(destination)
	if err != nil {
		return f.fail(err)
	}
	val, err := f.vm.get(source)
	if err != nil {
		return f.fail(err)
	}
	ptr := leUint(ptrBytes)
	copy(f.vm.memory[ptr:ptr+uint64(len(val))], val)
	return true
}

func (f *ssaFrame) VisitStoreI(t types.SsaCustomType, destination ssa.VarId, value []byte) bool {
	ptrBytes, err := f.vm.get(destination)
	if err != nil {
		return f.fail(err)
	}
	ptr := leUint(ptrBytes)
	copy(f.vm.memory[ptr:ptr+uint64(len(value))], value)
	return true
}

// VisitComputePtr implements base + index*multiplier + offset, per
// spec.md §4.4's ComputePtr fold rule, which states the operation this
// opcode performs (the fold pass only simplifies it).
func (f *ssaFrame) VisitComputePtr(newVar ssa.VarId, base, index ssa.VarId, multiplier int8, offset int16) bool {
	baseBytes, err := f.vm.get(base)
	if err != nil {
		return f.fail(err)
	}
	indexBytes, err := f.vm.get(index)
	if err != nil {
		return f.fail(err)
	}
	baseVal := leUint(baseBytes)
	indexVal := int64(signExtendBytes(indexBytes))
	addr := int64(baseVal) + indexVal*int64(multiplier) + int64(offset)
	out := make([]byte, 8)
	putIntLE(out, uint64(addr))
	f.vm.set(newVar, out)
	return true
}

func binaryEval(op ssa.SsaBinaryOperation, width int, a, b uint64) (uint64, error) {
	bits := uint(width) * 8
	switch op {
	case ssa.BinAdd:
		return a + b, nil
	case ssa.BinSub:
		return a - b, nil
	case ssa.BinMul:
		return a * b, nil
	case ssa.BinDiv:
		if b == 0 {
			return 0, errors.New("tauir/emulate: division by zero")
		}
		return a / b, nil
	case ssa.BinRem:
		if b == 0 {
			return 0, errors.New("tauir/emulate: division by zero")
		}
		return a % b, nil
	case ssa.BinBitShiftLeft:
		return a << (b % uint64(bits)), nil
	case ssa.BinBitShiftRight:
		return a >> (b % uint64(bits)), nil
	case ssa.BinBarrelShiftLeft:
		s := b % uint64(bits)
		return (a << s) | (a >> (uint64(bits) - s)), nil
	case ssa.BinBarrelShiftRight:
		s := b % uint64(bits)
		return (a >> s) | (a << (uint64(bits) - s)), nil
	default:
		return 0, errors.Errorf("tauir/emulate: unreachable binary op %s", op)
	}
}

func (f *ssaFrame) binOp(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, a, b uint64) bool {
	size, err := t.ValueSize(ptrSize, f.mod.Registry())
	if err != nil {
		return f.fail(err)
	}
	result, err := binaryEval(op, size, a, b)
	if err != nil {
		return f.fail(err)
	}
	out := make([]byte, size)
	putIntLE(out, result&mask(size))
	f.vm.set(newVar, out)
	return true
}

func (f *ssaFrame) VisitBinOpVToV(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, a, b ssa.VarId) bool {
	av, err := f.vm.get(a)
	if err != nil {
		return f.fail(err)
	}
	bv, err := f.vm.get(b)
	if err != nil {
		return f.fail(err)
	}
	return f.binOp(newVar, op, t, leUint(av), leUint(bv))
}

func (f *ssaFrame) VisitBinOpVToI(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, aValue []byte, b ssa.VarId) bool {
	bv, err := f.vm.get(b)
	if err != nil {
		return f.fail(err)
	}
	return f.binOp(newVar, op, t, leUint(aValue), leUint(bv))
}

func (f *ssaFrame) VisitBinOpIToV(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, a ssa.VarId, bValue []byte) bool {
	av, err := f.vm.get(a)
	if err != nil {
		return f.fail(err)
	}
	return f.binOp(newVar, op, t, leUint(av), leUint(bValue))
}

func (f *ssaFrame) VisitSplit(baseIndex ssa.VarId, aType types.SsaCustomType, a ssa.VarId, splitTypes []types.SsaCustomType) bool {
	val, err := f.vm.get(a)
	if err != nil {
		return f.fail(err)
	}
	off := 0
	for i, t := range splitTypes {
		size, err := t.ValueSize(ptrSize, f.mod.Registry())
		if err != nil {
			return f.fail(err)
		}
		out := make([]byte, size)
		copy(out, val[off:off+size])
		f.vm.set(baseIndex+ssa.VarId(i), out)
		off += size
	}
	return true
}

func (f *ssaFrame) VisitJoin(newVar ssa.VarId, newType types.SsaCustomType, joinTypes []types.SsaCustomType, joinVars []ssa.VarId) bool {
	total := 0
	parts := make([][]byte, len(joinVars))
	for i, v := range joinVars {
		val, err := f.vm.get(v)
		if err != nil {
			return f.fail(err)
		}
		parts[i] = val
		total += len(val)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	f.vm.set(newVar, out)
	return true
}

func compareEval(cond ir.CompareCondition, size int, av, bv uint64, asigned, bsigned int64) bool {
	switch cond {
	case ir.CondAbove:
		return av > bv
	case ir.CondAboveOrEqual:
		return av >= bv
	case ir.CondBelow:
		return av < bv
	case ir.CondBelowOrEqual:
		return av <= bv
	case ir.CondEqual:
		return av == bv
	case ir.CondGreater:
		return asigned > bsigned
	case ir.CondGreaterOrEqual:
		return asigned >= bsigned
	case ir.CondLess:
		return asigned < bsigned
	case ir.CondLessOrEqual:
		return asigned <= bsigned
	case ir.CondNotEqual:
		return av != bv
	default:
		return false
	}
}

func (f *ssaFrame) comp(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, aBytes, bBytes []byte) bool {
	size, err := t.ValueSize(ptrSize, f.mod.Registry())
	if err != nil {
		return f.fail(err)
	}
	result := compareEval(cond, size, leUint(aBytes), leUint(bBytes), signExtendBytes(aBytes), signExtendBytes(bBytes))
	out := make([]byte, 1)
	if result {
		out[0] = 1
	}
	f.vm.set(newVar, out)
	return true
}

func (f *ssaFrame) VisitCompVToV(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, a, b ssa.VarId) bool {
	av, err := f.vm.get(a)
	if err != nil {
		return f.fail(err)
	}
	bv, err := f.vm.get(b)
	if err != nil {
		return f.fail(err)
	}
	return f.comp(newVar, cond, t, av, bv)
}

func (f *ssaFrame) VisitCompVToI(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, aValue []byte, b ssa.VarId) bool {
	bv, err := f.vm.get(b)
	if err != nil {
		return f.fail(err)
	}
	return f.comp(newVar, cond, t, aValue, bv)
}

func (f *ssaFrame) VisitCompIToV(newVar ssa.VarId, cond ir.CompareCondition, t types.SsaCustomType, a ssa.VarId, bValue []byte) bool {
	av, err := f.vm.get(a)
	if err != nil {
		return f.fail(err)
	}
	return f.comp(newVar, cond, t, av, bValue)
}

func (f *ssaFrame) jumpTo(label ssa.VarId) bool {
	target, ok := f.labels[label]
	if !ok {
		return f.fail(errors.Errorf("tauir/emulate: undefined label %%%d", uint32(label)))
	}
	f.decoder.Seek(target.pos, target.idCounter)
	return true
}

func (f *ssaFrame) VisitBranch(label ssa.VarId) bool {
	return f.jumpTo(label)
}

func (f *ssaFrame) VisitBranchCond(labelTrue, labelFalse, conditionVar ssa.VarId) bool {
	cond, err := f.vm.get(conditionVar)
	if err != nil {
		return f.fail(err)
	}
	if leUint(cond) != 0 {
		return f.jumpTo(labelTrue)
	}
	return f.jumpTo(labelFalse)
}

// gatherArgs reads parameterCount consecutive SSA values starting at
// baseIndex into a fresh argument map for a callee frame, mirroring how
// handleFunctionArgs stages a callee's incoming arguments during lifting.
func (f *ssaFrame) gatherArgs(baseIndex ssa.VarId, parameterCount uint32) (map[uint32][]byte, error) {
	args := make(map[uint32][]byte, parameterCount)
	for i := uint32(0); i < parameterCount; i++ {
		val, err := f.vm.get(baseIndex + ssa.VarId(i))
		if err != nil {
			return nil, err
		}
		args[i] = val
	}
	return args, nil
}

// invoke runs fn as a nested call via native Go recursion, matching VM's
// Call/CallExt handling. The argument register file is VM-wide rather than
// per-frame (mirroring VM.argRegs), so a callee's arguments simply replace
// the caller's for the duration of the nested call; this is the same
// "not reentrant" simplification applied to the stack-IR emulator.
func (f *ssaFrame) invoke(mod *module.Module, fn *module.Function, args map[uint32][]byte, newVar ssa.VarId) bool {
	sub, err := f.vm.newFrame(mod, fn)
	if err != nil {
		return f.fail(err)
	}
	savedArgs := f.vm.args
	f.vm.args = args
	err = sub.exec()
	f.vm.args = savedArgs
	if err != nil {
		return f.fail(err)
	}
	if newVar != 0 && sub.retValue != nil {
		f.vm.set(newVar, sub.retValue)
	}
	return true
}

func (f *ssaFrame) resolveFunction(mod *module.Module, index uint32) (*module.Function, error) {
	fn := mod.Function(int(index))
	if fn == nil {
		return nil, errors.Wrapf(ErrUnknownFunction, "index %d in module %s", index, mod.Name())
	}
	return fn, nil
}

func (f *ssaFrame) VisitCall(newVar ssa.VarId, functionIndex uint32, baseIndex ssa.VarId, parameterCount uint32) bool {
	fn, err := f.resolveFunction(f.mod, functionIndex)
	if err != nil {
		return f.fail(err)
	}
	args, err := f.gatherArgs(baseIndex, parameterCount)
	if err != nil {
		return f.fail(err)
	}
	return f.invoke(f.mod, fn, args, newVar)
}

func (f *ssaFrame) VisitCallExt(newVar ssa.VarId, functionIndex uint32, baseIndex ssa.VarId, parameterCount uint32, moduleIndex uint16) bool {
	target, ok := f.mod.ResolveLinkage(moduleIndex)
	if !ok {
		return f.fail(errors.Errorf("tauir/emulate: unresolved linkage index %d", moduleIndex))
	}
	fn, err := f.resolveFunction(target, functionIndex)
	if err != nil {
		return f.fail(err)
	}
	args, err := f.gatherArgs(baseIndex, parameterCount)
	if err != nil {
		return f.fail(err)
	}
	return f.invoke(target, fn, args, newVar)
}

func (f *ssaFrame) VisitCallInd(newVar ssa.VarId, functionPointer, baseIndex ssa.VarId, parameterCount uint32) bool {
	ptrBytes, err := f.vm.get(functionPointer)
	if err != nil {
		return f.fail(err)
	}
	fn, err := f.resolveFunction(f.mod, uint32(leUint(ptrBytes)))
	if err != nil {
		return f.fail(err)
	}
	args, err := f.gatherArgs(baseIndex, parameterCount)
	if err != nil {
		return f.fail(err)
	}
	return f.invoke(f.mod, fn, args, newVar)
}

// VisitCallIndExt reads its module selector from an SSA value (modulePointer)
// rather than a wire-encoded immediate, matching ssa/lift/lift.go's existing
// choice for this opcode: at the SSA level the module index is itself a
// popped/computed value, not a fixed operand.
func (f *ssaFrame) VisitCallIndExt(newVar ssa.VarId, functionPointer, baseIndex ssa.VarId, parameterCount uint32, modulePointer ssa.VarId) bool {
	modBytes, err := f.vm.get(modulePointer)
	if err != nil {
		return f.fail(err)
	}
	target, ok := f.mod.ResolveLinkage(uint16(leUint(modBytes)))
	if !ok {
		return f.fail(errors.Errorf("tauir/emulate: unresolved linkage index %d", leUint(modBytes)))
	}
	ptrBytes, err := f.vm.get(functionPointer)
	if err != nil {
		return f.fail(err)
	}
	fn, err := f.resolveFunction(target, uint32(leUint(ptrBytes)))
	if err != nil {
		return f.fail(err)
	}
	args, err := f.gatherArgs(baseIndex, parameterCount)
	if err != nil {
		return f.fail(err)
	}
	return f.invoke(target, fn, args, newVar)
}

func (f *ssaFrame) VisitRet(returnType types.SsaCustomType, v ssa.VarId) bool {
	val, err := f.vm.get(v)
	if err != nil {
		return f.fail(err)
	}
	f.retValue = val
	f.vm.log.WithField("function", f.fn.Name()).Debug("returning from ssa function")
	return false
}
