package emulate

import (
	"testing"

	"github.com/hyfloac/TauIR-sub000/module"
	"github.com/hyfloac/TauIR-sub000/ssa"
	"github.com/hyfloac/TauIR-sub000/types"
	"github.com/stretchr/testify/require"
)

func u64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	putIntLE(b, v)
	return b
}

func TestSsaVMArithmeticAndRet(t *testing.T) {
	w := ssa.NewWriter(0)
	a := w.WriteAssignImmediate(types.Primitive(types.I32), []byte{10, 0, 0, 0})
	b := w.WriteAssignImmediate(types.Primitive(types.I32), []byte{3, 0, 0, 0})
	sum := w.WriteBinOpVtoV(ssa.BinAdd, types.Primitive(types.I32), a, b)
	w.WriteRet(types.Primitive(types.I32), sum)

	fn := module.NewFunction("add", w.Bytes(), nil, nil, nil, module.FunctionFlags{})
	mod := module.NewModule("main")
	mod.AddFunction(fn)

	vm := NewSsaVM()
	result, err := vm.Run(mod, fn)
	require.NoError(t, err)
	require.Equal(t, uint64(13), leUint(result))
}

// TestSsaVMBranchCond exercises forward branches: since ssa.Writer is
// append-only and allocates ids strictly in write order, the two labels'
// ids are predicted ahead of writing them by counting the allocating
// calls between the BranchCond and each label.
func TestSsaVMBranchCond(t *testing.T) {
	w := ssa.NewWriter(0)
	cond := w.WriteAssignImmediate(types.Primitive(types.Bool), []byte{1})

	// Allocation order after cond: falseLabel, zero (false block), then
	// trueLabel, one (true block).
	falseLabel := cond + 1
	trueLabel := cond + 3

	w.WriteBranchCond(trueLabel, falseLabel, cond)

	gotFalseLabel := w.WriteLabel()
	require.Equal(t, falseLabel, gotFalseLabel)
	zero := w.WriteAssignImmediate(types.Primitive(types.I32), []byte{0, 0, 0, 0})
	w.WriteRet(types.Primitive(types.I32), zero)

	gotTrueLabel := w.WriteLabel()
	require.Equal(t, trueLabel, gotTrueLabel)
	one := w.WriteAssignImmediate(types.Primitive(types.I32), []byte{1, 0, 0, 0})
	w.WriteRet(types.Primitive(types.I32), one)

	fn := module.NewFunction("branch", w.Bytes(), nil, nil, nil, module.FunctionFlags{})
	mod := module.NewModule("main")
	mod.AddFunction(fn)

	vm := NewSsaVM()
	result, err := vm.Run(mod, fn)
	require.NoError(t, err)
	require.Equal(t, uint64(1), leUint(result))
}

func TestSsaVMStoreILoad(t *testing.T) {
	vm := NewSsaVM()
	base := vm.Alloc(8)

	w := ssa.NewWriter(0)
	baseVar := w.WriteAssignImmediate(types.Primitive(types.U64), u64Bytes(base))
	w.WriteStoreI(types.Primitive(types.I32), baseVar, []byte{99, 0, 0, 0})
	loaded := w.WriteLoad(types.Primitive(types.I32), baseVar)
	w.WriteRet(types.Primitive(types.I32), loaded)

	fn := module.NewFunction("loadstore", w.Bytes(), nil, nil, nil, module.FunctionFlags{})
	mod := module.NewModule("main")
	mod.AddFunction(fn)

	result, err := vm.Run(mod, fn)
	require.NoError(t, err)
	require.Equal(t, uint64(99), leUint(result))
}

func TestSsaVMComputePtrOffset(t *testing.T) {
	vm := NewSsaVM()
	base := vm.Alloc(16)
	copy(vm.Memory()[base+4:base+8], []byte{7, 0, 0, 0})

	w := ssa.NewWriter(0)
	baseVar := w.WriteAssignImmediate(types.Primitive(types.U64), u64Bytes(base))
	indexVar := w.WriteAssignImmediate(types.Primitive(types.I32), []byte{4, 0, 0, 0})
	ptr := w.WriteComputePtr(baseVar, indexVar, 1, 0)
	loaded := w.WriteLoad(types.Primitive(types.I32), ptr)
	w.WriteRet(types.Primitive(types.I32), loaded)

	fn := module.NewFunction("offset", w.Bytes(), nil, nil, nil, module.FunctionFlags{})
	mod := module.NewModule("main")
	mod.AddFunction(fn)

	result, err := vm.Run(mod, fn)
	require.NoError(t, err)
	require.Equal(t, uint64(7), leUint(result))
}

func TestSsaVMTrapsOnUndefinedVariable(t *testing.T) {
	w := ssa.NewWriter(0)
	w.WriteRet(types.Primitive(types.I32), ssa.VarId(999))

	fn := module.NewFunction("badret", w.Bytes(), nil, nil, nil, module.FunctionFlags{})
	mod := module.NewModule("main")
	mod.AddFunction(fn)

	vm := NewSsaVM()
	_, err := vm.Run(mod, fn)
	require.ErrorIs(t, err, ErrUndefinedVariable)
}

func TestSsaVMCallChain(t *testing.T) {
	calleeWriter := ssa.NewWriter(0)
	calleeArg := ssa.ArgumentID(0)
	one := calleeWriter.WriteAssignImmediate(types.Primitive(types.I32), []byte{1, 0, 0, 0})
	sum := calleeWriter.WriteBinOpVtoV(ssa.BinAdd, types.Primitive(types.I32), calleeArg, one)
	calleeWriter.WriteRet(types.Primitive(types.I32), sum)
	callee := module.NewFunction("increment", calleeWriter.Bytes(), nil, nil, nil, module.FunctionFlags{})

	callerWriter := ssa.NewWriter(0)
	arg := callerWriter.WriteAssignImmediate(types.Primitive(types.I32), []byte{41, 0, 0, 0})
	baseIndex := callerWriter.IdIndex() + 1
	callerWriter.WriteAssignVariable(types.Primitive(types.I32), arg)
	result := callerWriter.WriteCall(0, baseIndex, 1)
	callerWriter.WriteRet(types.Primitive(types.I32), result)
	caller := module.NewFunction("caller", callerWriter.Bytes(), nil, nil, nil, module.FunctionFlags{})

	mod := module.NewModule("main")
	mod.AddFunction(callee)
	mod.AddFunction(caller)

	vm := NewSsaVM()
	result2, err := vm.Run(mod, caller)
	require.NoError(t, err)
	require.Equal(t, uint64(42), leUint(result2))
}
