package main

import (
	"fmt"

	"github.com/hyfloac/TauIR-sub000/ir"
	"github.com/hyfloac/TauIR-sub000/module"
	"github.com/hyfloac/TauIR-sub000/types"
)

// Package main's samples.go stands in for the on-disk module loader that
// spec.md §1 explicitly keeps out of scope: cmd/tauir has no bytecode
// file format to read, so it ships a small set of hand-assembled modules
// — built the same way ssa/lift's and emulate's own test fixtures are —
// as a source of input for disasm/lift/opt/run.
//
// sample mirrors spec.md's own worked scenarios: "locals" is S1, "add" is
// S2, "inline" is S5.
type sample struct {
	name        string
	description string
	build       func() (*module.Module, string)
}

var samples = []sample{
	{
		name:        "add",
		description: "straight-line i32 arithmetic that constant-folds entirely (spec.md S2)",
		build:       buildAddSample,
	},
	{
		name:        "locals",
		description: "typed locals with interleaved Nops and a zero-filled slot (spec.md S1)",
		build:       buildLocalsSample,
	},
	{
		name:        "inline",
		description: "a caller invoking a trivially small identity callee (spec.md S5)",
		build:       buildInlineSample,
	},
}

func findSample(name string) (sample, error) {
	for _, s := range samples {
		if s.name == name {
			return s, nil
		}
	}
	return sample{}, fmt.Errorf("unknown sample %q (use %q for a list)", name, "tauir samples")
}

// buildAddSample: push two i32 immediates, add them, return the sum.
func buildAddSample() (*module.Module, string) {
	w := ir.NewWriter(0)
	w.WriteConstant(7)
	w.WriteConstant(35)
	w.WriteAddI32()
	w.WriteExpandZX(4, 8)
	w.WritePopArg(0)
	w.WriteRet()

	fn := module.NewFunction("add", w.Bytes(), nil, nil, nil, module.FunctionFlags{})
	mod := module.NewModule("add_sample")
	mod.AddFunction(fn)
	return mod, "add"
}

// localLayout builds the running-offset table NewFunction expects:
// one entry per local after the first (the first always starts at
// offset zero), matching every other package's test fixtures.
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

// buildLocalsSample reproduces spec.md's S1 scenario: locals
// [i32, u8, f64, u8, f32, i32], pushing locals 0, 3, 5, 2 (interleaved
// with Nop) and popping the top into argument register 0.
func buildLocalsSample() (*module.Module, string) {
	mod := module.NewModule("locals_sample")
	registry := mod.Registry()

	locals := []types.SsaCustomType{
		types.Primitive(types.I32),
		types.Primitive(types.U8),
		types.Primitive(types.F64),
		types.Primitive(types.U8),
		types.Primitive(types.F32),
		types.Primitive(types.I32),
	}
	offsets := localLayout(8, registry, locals)

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
	mod.AddFunction(fn)
	return mod, "s1"
}

// buildInlineSample builds a two-function module: "ident" is a
// single-instruction callee (well within the 64-byte ForceInline-free
// budget) that returns whatever is already sitting in argument register
// 0, and "caller" loads 42 into that register, calls ident, and returns.
// After ssa/opto's Inliner runs, the call disappears entirely.
func buildInlineSample() (*module.Module, string) {
	mod := module.NewModule("inline_sample")

	identW := ir.NewWriter(0)
	identW.WriteRet()
	ident := module.NewFunction("ident", identW.Bytes(), nil, nil, nil, module.FunctionFlags{})
	mod.AddFunction(ident)

	callerW := ir.NewWriter(0)
	callerW.WriteConstant(42)
	callerW.WriteExpandZX(4, 8)
	callerW.WritePopArg(0)
	callerW.WriteCall(0)
	callerW.WriteRet()
	caller := module.NewFunction("caller", callerW.Bytes(), nil, nil, nil, module.FunctionFlags{})
	mod.AddFunction(caller)

	return mod, "caller"
}
