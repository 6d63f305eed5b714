// Package emulate provides reference interpreters for both TauIR forms:
// VM executes raw stack-bytecode functions directly, and SsaVM executes
// lifted SSA functions against a per-variable register file. Neither
// interpreter performs code generation; both exist to give the rest of the
// toolchain (and its tests) an executable oracle.
//
// VM's shape - a growable byte stack doubling as both operand stack and
// local storage, a flat argument register file, and a module-qualified
// function table - is grounded on tinyrange-rtg's std/compiler/backend_vm.go
// VM struct, generalized from that teacher's register-machine semantics to
// TauIR's stack-machine opcode set.
package emulate

import (
	"encoding/binary"

	"github.com/hyfloac/TauIR-sub000/ir"
	"github.com/hyfloac/TauIR-sub000/module"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrUnsupportedOpcode is returned when a decoded instruction has no
// emulator implementation. PushGlobal*/PopGlobal*/LoadGlobal*/StoreGlobal*
// fall in this bucket: the lifter accepts them (SPEC_FULL §4.4) but the
// reference IR emulator traps rather than silently misbehaving, since
// original_source never implements them either.
var ErrUnsupportedOpcode = errors.New("tauir/emulate: unsupported opcode")

// ErrUnknownFunction is returned when a Call/CallExt/CallInd/CallIndExt
// targets a function index that does not resolve.
var ErrUnknownFunction = errors.New("tauir/emulate: unknown function")

// ErrStackUnderflow is returned when an instruction tries to pop more bytes
// than the whole stack currently holds. The check does not stop a pop from
// reaching into the active function's locals region or a caller's frame.
var ErrStackUnderflow = errors.New("tauir/emulate: operand stack underflow")

// argRegisterCount is the size of the IR-level argument register file, per
// spec.md §4.8.
const argRegisterCount = 64

// defaultStackSize is the default byte-stack capacity, per spec.md §4.8's
// "16 MiB default".
const defaultStackSize = 16 * 1024 * 1024

// ptrSize is the emulator's pointer/word width in bytes. TauIR does not fix
// this at the type-system level (SsaCustomType.ValueSize takes it as a
// parameter); the reference emulator fixes it at 8 to match the argument
// register file's word size.
const ptrSize = 8

// VM is a direct-dispatch interpreter over raw IR bytecode. It maintains a
// single growable byte stack that serves double duty as both the operand
// stack and the storage for each active function's locals, plus a flat
// argument register file used for both incoming parameters and outgoing
// call results (per spec.md's calling convention: "argument register 0
// holds the callee's return value on Ret").
//
// A VM is not reentrant across goroutines, matching spec.md §5's
// single-threaded emulator model.
type VM struct {
	stack []byte
	sp    int

	argRegs [argRegisterCount]uint64

	callDepth int
	log       *logrus.Entry
}

// NewVM returns a VM with the default stack capacity.
func NewVM() *VM {
	return &VM{
		stack: make([]byte, defaultStackSize),
		log:   logrus.WithField("component", "tauir.emulate.vm"),
	}
}

// ArgRegister returns the current value of argument register i.
func (vm *VM) ArgRegister(i int) uint64 { return vm.argRegs[i] }

// SetArgRegister seeds argument register i, e.g. with a program's incoming
// arguments before calling Run.
func (vm *VM) SetArgRegister(i int, v uint64) { vm.argRegs[i] = v }

func (vm *VM) ensure(n int) {
	if n <= len(vm.stack) {
		return
	}
	grown := make([]byte, n+n/2)
	copy(grown, vm.stack)
	vm.stack = grown
}

func (vm *VM) push(data []byte) {
	vm.ensure(vm.sp + len(data))
	copy(vm.stack[vm.sp:], data)
	vm.sp += len(data)
}

func (vm *VM) pop(n int) ([]byte, error) {
	if n > vm.sp {
		return nil, errors.Wrapf(ErrStackUnderflow, "need %d bytes, have %d", n, vm.sp)
	}
	vm.sp -= n
	out := make([]byte, n)
	copy(out, vm.stack[vm.sp:vm.sp+n])
	return out, nil
}

func (vm *VM) peek(n int) ([]byte, error) {
	if n > vm.sp {
		return nil, errors.Wrapf(ErrStackUnderflow, "need %d bytes, have %d", n, vm.sp)
	}
	out := make([]byte, n)
	copy(out, vm.stack[vm.sp-n:vm.sp])
	return out, nil
}

// Run executes fn's bytecode against mod's function/linkage table, starting
// with whatever values the caller has already seeded into the argument
// registers, and returns the value Ret left in argument register 0.
func (vm *VM) Run(mod *module.Module, fn *module.Function) (uint64, error) {
	f := &frame{vm: vm, mod: mod, fn: fn}
	if err := f.exec(); err != nil {
		return 0, err
	}
	return vm.argRegs[0], nil
}

// frame holds the state of one active function invocation: its decoder
// cursor, the byte offset its locals region starts at, and a back-pointer
// to the owning VM and module so Call/CallExt can resolve sibling functions
// and cross-module linkage.
type frame struct {
	vm  *VM
	mod *module.Module
	fn  *module.Function

	localsHead int
	decoder    *ir.Decoder
	err        error
}

func (f *frame) localAddr(index uint32) (int, error) {
	offsets := f.fn.LocalOffsets()
	types_ := f.fn.LocalTypes()
	if int(index) >= len(types_) {
		return 0, errors.Errorf("tauir/emulate: local index %d out of range (have %d)", index, len(types_))
	}
	if index == 0 {
		return f.localsHead, nil
	}
	return f.localsHead + int(offsets[index-1]), nil
}

func (f *frame) localSize(index uint32) (int, error) {
	t := f.fn.LocalTypes()[index]
	return t.ValueSize(ptrSize, f.mod.Registry())
}

func (f *frame) exec() error {
	f.vm.callDepth++
	defer func() { f.vm.callDepth-- }()

	f.localsHead = f.vm.sp
	f.vm.ensure(f.vm.sp + int(f.fn.LocalSize()))
	f.vm.sp += int(f.fn.LocalSize())

	f.vm.log.WithFields(logrus.Fields{"function": f.fn.Name(), "depth": f.vm.callDepth}).Debug("entering function")

	f.decoder = ir.NewDecoder(f.fn.Code())
	if err := f.decoder.Traverse(f); err != nil {
		return errors.Wrapf(err, "executing %s", f.fn.Name())
	}
	if f.err != nil {
		return errors.Wrapf(f.err, "executing %s", f.fn.Name())
	}

	f.vm.sp = f.localsHead
	return nil
}

func (f *frame) fail(err error) bool {
	f.err = err
	return false
}

func (f *frame) unsupported(name string) bool {
	f.vm.log.WithFields(logrus.Fields{"function": f.fn.Name(), "opcode": name}).Warn("trapped on unsupported opcode")
	return f.fail(errors.Wrapf(ErrUnsupportedOpcode, "%s", name))
}

func (f *frame) VisitNop() bool { return true }

func (f *frame) VisitPush(index uint32) bool {
	addr, err := f.localAddr(index)
	if err != nil {
		return f.fail(err)
	}
	size, err := f.localSize(index)
	if err != nil {
		return f.fail(err)
	}
	f.vm.push(f.vm.stack[addr : addr+size])
	return true
}

func (f *frame) VisitPushArg(index uint32) bool {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], f.vm.argRegs[index])
	f.vm.push(buf[:])
	return true
}

func (f *frame) VisitPushPtr(offset uint32) bool {
	addr, err := f.localAddr(offset)
	if err != nil {
		return f.fail(err)
	}
	ptr := binary.LittleEndian.Uint64(f.vm.stack[addr : addr+ptrSize])
	pointee := f.fn.LocalTypes()[offset].StripPointer()
	size, err := pointee.ValueSize(ptrSize, f.mod.Registry())
	if err != nil {
		return f.fail(err)
	}
	f.vm.push(f.vm.stack[int(ptr) : int(ptr)+size])
	return true
}

func (f *frame) VisitPushGlobal(uint32) bool                    { return f.unsupported("PushGlobal") }
func (f *frame) VisitPushGlobalExt(uint32, uint16) bool          { return f.unsupported("PushGlobalExt") }
func (f *frame) VisitPushGlobalPtr(uint32) bool                  { return f.unsupported("PushGlobalPtr") }
func (f *frame) VisitPopGlobal(uint32) bool                      { return f.unsupported("PopGlobal") }
func (f *frame) VisitPopGlobalExt(uint32, uint16) bool           { return f.unsupported("PopGlobalExt") }
func (f *frame) VisitPopGlobalPtr(uint32) bool                   { return f.unsupported("PopGlobalPtr") }
func (f *frame) VisitPopGlobalExtPtr(uint32, uint16) bool        { return f.unsupported("PopGlobalExtPtr") }
func (f *frame) VisitLoadGlobal(uint32, uint16) bool             { return f.unsupported("LoadGlobal") }
func (f *frame) VisitLoadGlobalExt(uint32, uint16, uint16) bool  { return f.unsupported("LoadGlobalExt") }
func (f *frame) VisitStoreGlobal(uint16, uint32) bool            { return f.unsupported("StoreGlobal") }
func (f *frame) VisitStoreGlobalExt(uint16, uint32, uint16) bool { return f.unsupported("StoreGlobalExt") }

// VisitPop pops the top of the operand stack into local slot index,
// symmetric with VisitPush: the writer's Pop0..3/PopN forms carry a local
// index, exactly like Push0..3/PushN, distinct from PopCount's raw byte
// discard.
func (f *frame) VisitPop(index uint32) bool {
	addr, err := f.localAddr(index)
	if err != nil {
		return f.fail(err)
	}
	size, err := f.localSize(index)
	if err != nil {
		return f.fail(err)
	}
	data, err := f.vm.pop(size)
	if err != nil {
		return f.fail(err)
	}
	copy(f.vm.stack[addr:addr+size], data)
	return true
}

func (f *frame) VisitPopArg(index uint32) bool {
	data, err := f.vm.pop(8)
	if err != nil {
		return f.fail(err)
	}
	f.vm.argRegs[index] = binary.LittleEndian.Uint64(data)
	return true
}

func (f *frame) VisitPopPtr(offset uint32) bool {
	addr, err := f.localAddr(offset)
	if err != nil {
		return f.fail(err)
	}
	ptr := binary.LittleEndian.Uint64(f.vm.stack[addr : addr+ptrSize])
	pointee := f.fn.LocalTypes()[offset].StripPointer()
	size, err := pointee.ValueSize(ptrSize, f.mod.Registry())
	if err != nil {
		return f.fail(err)
	}
	data, err := f.vm.pop(size)
	if err != nil {
		return f.fail(err)
	}
	copy(f.vm.stack[int(ptr):int(ptr)+size], data)
	return true
}

func (f *frame) VisitPopCount(n uint32) bool {
	_, err := f.vm.pop(int(n))
	if err != nil {
		return f.fail(err)
	}
	return true
}

func (f *frame) VisitDup(n uint8) bool {
	data, err := f.vm.peek(int(n))
	if err != nil {
		return f.fail(err)
	}
	f.vm.push(data)
	return true
}

func (f *frame) VisitExpandSX(fromBits, toBits uint8) bool {
	return f.convert(fromBits, toBits, true, false)
}

func (f *frame) VisitExpandZX(fromBits, toBits uint8) bool {
	return f.convert(fromBits, toBits, false, false)
}

func (f *frame) VisitTrunc(fromBits, toBits uint8) bool {
	return f.convert(fromBits, toBits, false, true)
}

func (f *frame) convert(fromBits, toBits uint8, signed, truncate bool) bool {
	from := int(fromBits)
	to := int(toBits)
	raw, err := f.vm.pop(from)
	if err != nil {
		return f.fail(err)
	}
	var out []byte
	if truncate {
		out = make([]byte, to)
		copy(out, raw[:to])
	} else if signed {
		v := signExtendBytes(raw)
		out = make([]byte, to)
		putIntLE(out, uint64(v))
	} else {
		v := zeroExtendBytes(raw)
		out = make([]byte, to)
		putIntLE(out, v)
	}
	f.vm.push(out)
	return true
}

// VisitLoad dereferences the pointer held in local pointerLocalIndex and
// copies the pointer-sized value found there into local valueLocalIndex,
// a local-to-local operation distinct from PushPtr/PopPtr's stack-routed
// indirection.
func (f *frame) VisitLoad(valueLocalIndex, pointerLocalIndex uint16) bool {
	ptrAddr, err := f.localAddr(uint32(pointerLocalIndex))
	if err != nil {
		return f.fail(err)
	}
	ptr := binary.LittleEndian.Uint64(f.vm.stack[ptrAddr : ptrAddr+ptrSize])
	valueAddr, err := f.localAddr(uint32(valueLocalIndex))
	if err != nil {
		return f.fail(err)
	}
	copy(f.vm.stack[valueAddr:valueAddr+ptrSize], f.vm.stack[int(ptr):int(ptr)+ptrSize])
	return true
}

// VisitStore copies the pointer-sized value held in local valueLocalIndex
// through the pointer held in local pointerLocalIndex.
func (f *frame) VisitStore(pointerLocalIndex, valueLocalIndex uint16) bool {
	ptrAddr, err := f.localAddr(uint32(pointerLocalIndex))
	if err != nil {
		return f.fail(err)
	}
	ptr := binary.LittleEndian.Uint64(f.vm.stack[ptrAddr : ptrAddr+ptrSize])
	valueAddr, err := f.localAddr(uint32(valueLocalIndex))
	if err != nil {
		return f.fail(err)
	}
	copy(f.vm.stack[int(ptr):int(ptr)+ptrSize], f.vm.stack[valueAddr:valueAddr+ptrSize])
	return true
}

func (f *frame) VisitConst(value uint32) bool {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	f.vm.push(buf[:])
	return true
}

func (f *frame) VisitBinOp(op ir.Opcode, width ir.Width) bool {
	size := int(width) / 8
	b, err := f.vm.pop(size)
	if err != nil {
		return f.fail(err)
	}
	a, err := f.vm.pop(size)
	if err != nil {
		return f.fail(err)
	}
	av := leUint(a)
	bv := leUint(b)
	var result uint64
	var remainder uint64
	hasRemainder := false
	switch op {
	case ir.OpAddI32, ir.OpAddI64:
		result = av + bv
	case ir.OpSubI32, ir.OpSubI64:
		result = av - bv
	case ir.OpMulI32, ir.OpMulI64:
		result = av * bv
	case ir.OpDivI32, ir.OpDivI64:
		if bv == 0 {
			return f.fail(errors.New("tauir/emulate: division by zero"))
		}
		result = av / bv
		remainder = av % bv
		hasRemainder = true
	default:
		return f.unsupported(op.String())
	}
	out := make([]byte, size)
	putIntLE(out, result&mask(size))
	f.vm.push(out)
	if hasRemainder {
		rem := make([]byte, size)
		putIntLE(rem, remainder&mask(size))
		f.vm.push(rem)
	}
	return true
}

func (f *frame) VisitComp(width ir.Width, cond ir.CompareCondition) bool {
	size := int(width) / 8
	b, err := f.vm.pop(size)
	if err != nil {
		return f.fail(err)
	}
	a, err := f.vm.pop(size)
	if err != nil {
		return f.fail(err)
	}
	av := leUint(a)
	bv := leUint(b)
	asigned := signExtendBytes(a)
	bsigned := signExtendBytes(b)
	var result bool
	switch cond {
	case ir.CondAbove:
		result = av > bv
	case ir.CondAboveOrEqual:
		result = av >= bv
	case ir.CondBelow:
		result = av < bv
	case ir.CondBelowOrEqual:
		result = av <= bv
	case ir.CondEqual:
		result = av == bv
	case ir.CondGreater:
		result = asigned > bsigned
	case ir.CondGreaterOrEqual:
		result = asigned >= bsigned
	case ir.CondLess:
		result = asigned < bsigned
	case ir.CondLessOrEqual:
		result = asigned <= bsigned
	case ir.CondNotEqual:
		result = av != bv
	}
	out := make([]byte, size)
	if result {
		out[0] = 1
	}
	f.vm.push(out)
	return true
}

func (f *frame) resolveFunction(mod *module.Module, index uint32) (*module.Function, error) {
	fn := mod.Function(int(index))
	if fn == nil {
		return nil, errors.Wrapf(ErrUnknownFunction, "index %d in module %s", index, mod.Name())
	}
	return fn, nil
}

func (f *frame) call(mod *module.Module, fn *module.Function) bool {
	sub := &frame{vm: f.vm, mod: mod, fn: fn}
	if err := sub.exec(); err != nil {
		return f.fail(err)
	}
	return true
}

func (f *frame) VisitCall(function uint32) bool {
	fn, err := f.resolveFunction(f.mod, function)
	if err != nil {
		return f.fail(err)
	}
	return f.call(f.mod, fn)
}

func (f *frame) VisitCallExt(function uint32, moduleIndex uint16) bool {
	target, ok := f.mod.ResolveLinkage(moduleIndex)
	if !ok {
		return f.fail(errors.Errorf("tauir/emulate: unresolved linkage index %d", moduleIndex))
	}
	fn, err := f.resolveFunction(target, function)
	if err != nil {
		return f.fail(err)
	}
	return f.call(target, fn)
}

// functionPointer reads the raw function index a CallInd/CallIndExt local
// slot holds. Native function pointers do not exist at this level: TauIR
// modules encode an indirect callee as a plain function-table index stored
// in the local, not a machine address.
func (f *frame) functionPointer(localIndex uint32) (uint32, error) {
	addr, err := f.localAddr(localIndex)
	if err != nil {
		return 0, err
	}
	return uint32(binary.LittleEndian.Uint64(f.vm.stack[addr : addr+ptrSize])), nil
}

func (f *frame) VisitCallInd(functionPointerIndex uint32) bool {
	idx, err := f.functionPointer(functionPointerIndex)
	if err != nil {
		return f.fail(err)
	}
	fn, err := f.resolveFunction(f.mod, idx)
	if err != nil {
		return f.fail(err)
	}
	return f.call(f.mod, fn)
}

func (f *frame) VisitCallIndExt(functionPointerIndex uint32, moduleIndex uint16) bool {
	target, ok := f.mod.ResolveLinkage(moduleIndex)
	if !ok {
		return f.fail(errors.Errorf("tauir/emulate: unresolved linkage index %d", moduleIndex))
	}
	idx, err := f.functionPointer(functionPointerIndex)
	if err != nil {
		return f.fail(err)
	}
	fn, err := f.resolveFunction(target, idx)
	if err != nil {
		return f.fail(err)
	}
	return f.call(target, fn)
}

func (f *frame) VisitRet() bool {
	f.vm.log.WithField("function", f.fn.Name()).Debug("returning")
	return false
}

func (f *frame) VisitJumpPoint(op ir.Opcode, offset int32) bool {
	target := f.decoder.Pos() + int(offset)
	switch op {
	case ir.OpJump:
		f.decoder.Seek(target)
		return true
	case ir.OpJumpTrue, ir.OpJumpFalse:
		cond, err := f.vm.pop(4)
		if err != nil {
			return f.fail(err)
		}
		nonzero := binary.LittleEndian.Uint32(cond) != 0
		if nonzero == (op == ir.OpJumpTrue) {
			f.decoder.Seek(target)
		}
		return true
	default:
		return f.unsupported(op.String())
	}
}
