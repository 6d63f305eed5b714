package emulate

import (
	"testing"

	"github.com/hyfloac/TauIR-sub000/ir"
	"github.com/hyfloac/TauIR-sub000/module"
	"github.com/hyfloac/TauIR-sub000/types"
	"github.com/stretchr/testify/require"
)

// localLayout builds the local-offset table NewFunction expects: one
// entry per local after the first, each holding the running byte offset.
func localLayout(ptrSize int, registry *types.Registry, locals []types.SsaCustomType) []uint64 {
	if len(locals) <= 1 {
		return nil
	}
	offsets := make([]uint64, len(locals)-1)
	running := uint64(0)
	for i, t := range locals {
		size, err := t.ValueSize(ptrSize, registry)
		if err != nil {
			panic(err)
		}
		running += uint64(size)
		if i < len(locals)-1 {
			offsets[i] = running
		}
	}
	return offsets
}

// TestVMScalarLocalsRoundTrip exercises spec.md's S1 scenario: a function
// whose locals are [int32, byte, double, byte, float, int32], pushing
// local 0, local 3, local 5, and local 2 (interleaved with Nop), then
// popping the top of stack into argument register 0, which lands local
// slot 2's (never-written, zero-filled) double value there.
func TestVMScalarLocalsRoundTrip(t *testing.T) {
	registry := types.NewRegistry()
	locals := []types.SsaCustomType{
		types.Primitive(types.I32),
		types.Primitive(types.U8),
		types.Primitive(types.F64),
		types.Primitive(types.U8),
		types.Primitive(types.F32),
		types.Primitive(types.I32),
	}
	offsets := localLayout(ptrSize, registry, locals)

	w := ir.NewWriter(0)
	w.WritePush(0)
	w.WritePush(3)
	w.WriteNop()
	w.WritePush(5)
	w.WritePush(2)
	w.WriteNop()
	w.WritePopArg(0)
	w.WriteRet()

	fn := module.NewFunction("s1", w.Bytes(), locals, offsets, nil, module.FunctionFlags{})
	mod := module.NewModule("main")
	mod.AddFunction(fn)

	vm := NewVM()
	result, err := vm.Run(mod, fn)
	require.NoError(t, err)
	require.Equal(t, uint64(0), result, "local slot 2 was never written, so its zero-filled bytes pop as 0")
}

// TestVMArithmeticDivI32PushesQuotientThenRemainder exercises the resolved
// open question on DivI32/DivI64's push order: quotient first, remainder
// on top.
func TestVMArithmeticDivI32PushesQuotientThenRemainder(t *testing.T) {
	w := ir.NewWriter(0)
	w.WriteConstant(17)
	w.WriteConstant(5)
	w.WriteDivI32()
	w.WriteExpandZX(4, 8)
	w.WritePopArg(1)
	w.WriteExpandZX(4, 8)
	w.WritePopArg(0)
	w.WriteRet()
	fn := module.NewFunction("divrem", w.Bytes(), nil, nil, nil, module.FunctionFlags{})
	mod := module.NewModule("main")
	mod.AddFunction(fn)

	vm := NewVM()
	_, err := vm.Run(mod, fn)
	require.NoError(t, err)
	require.Equal(t, uint64(3), vm.ArgRegister(0), "17/5 quotient")
	require.Equal(t, uint64(2), vm.ArgRegister(1), "17/5 remainder")
}

func TestVMCall(t *testing.T) {
	calleeWriter := ir.NewWriter(0)
	calleeWriter.WriteConstant(41)
	calleeWriter.WriteExpandZX(4, 8)
	calleeWriter.WritePopArg(0)
	calleeWriter.WriteRet()
	callee := module.NewFunction("callee", calleeWriter.Bytes(), nil, nil, nil, module.FunctionFlags{})

	callerWriter := ir.NewWriter(0)
	callerWriter.WriteCall(0)
	callerWriter.WriteRet()
	caller := module.NewFunction("caller", callerWriter.Bytes(), nil, nil, nil, module.FunctionFlags{})

	mod := module.NewModule("main")
	mod.AddFunction(callee)
	mod.AddFunction(caller)

	vm := NewVM()
	result, err := vm.Run(mod, caller)
	require.NoError(t, err)
	require.Equal(t, uint64(41), result)
}

func TestVMCallExtResolvesThroughLinkage(t *testing.T) {
	libWriter := ir.NewWriter(0)
	libWriter.WriteConstant(7)
	libWriter.WriteExpandZX(4, 8)
	libWriter.WritePopArg(0)
	libWriter.WriteRet()
	libFn := module.NewFunction("helper", libWriter.Bytes(), nil, nil, nil, module.FunctionFlags{})
	lib := module.NewModule("lib")
	lib.AddFunction(libFn)

	mainMod := module.NewModule("main")
	linkIdx := mainMod.AddLinkage(lib)

	callerWriter := ir.NewWriter(0)
	callerWriter.WriteCallExt(0, linkIdx)
	callerWriter.WriteRet()
	caller := module.NewFunction("caller", callerWriter.Bytes(), nil, nil, nil, module.FunctionFlags{})
	mainMod.AddFunction(caller)

	vm := NewVM()
	result, err := vm.Run(mainMod, caller)
	require.NoError(t, err)
	require.Equal(t, uint64(7), result)
}

func TestVMTrapsOnUnsupportedGlobalOpcode(t *testing.T) {
	w := ir.NewWriter(0)
	w.WritePushGlobal(0)
	w.WriteRet()
	fn := module.NewFunction("globaluser", w.Bytes(), nil, nil, nil, module.FunctionFlags{})
	mod := module.NewModule("main")
	mod.AddFunction(fn)

	vm := NewVM()
	_, err := vm.Run(mod, fn)
	require.ErrorIs(t, err, ErrUnsupportedOpcode)
}
