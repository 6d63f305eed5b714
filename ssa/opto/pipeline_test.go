package opto

import (
	"testing"

	"github.com/hyfloac/TauIR-sub000/module"
	"github.com/hyfloac/TauIR-sub000/ssa"
	"github.com/hyfloac/TauIR-sub000/types"
)

// recordingVisitor mirrors ssa_test.go's own recorder, local to this
// package so these tests don't reach into ssa's internal test helpers.
type recordingVisitor struct {
	ssa.BaseVisitor
	events  []string
	lastImm []byte
	retVar  ssa.VarId
}

func (r *recordingVisitor) VisitAssignImmediate(newVar ssa.VarId, t types.SsaCustomType, value []byte) bool {
	r.events = append(r.events, "assign-imm")
	r.lastImm = append([]byte(nil), value...)
	return true
}

func (r *recordingVisitor) VisitBinOpVToV(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, a, b ssa.VarId) bool {
	r.events = append(r.events, "binop:"+op.String())
	return true
}

func (r *recordingVisitor) VisitExpandSX(newVar ssa.VarId, newType, oldType types.SsaCustomType, v ssa.VarId) bool {
	r.events = append(r.events, "expand-sx")
	return true
}

func (r *recordingVisitor) VisitCall(newVar ssa.VarId, functionIndex uint32, baseIndex ssa.VarId, parameterCount uint32) bool {
	r.events = append(r.events, "call")
	return true
}

func (r *recordingVisitor) VisitRet(t types.SsaCustomType, v ssa.VarId) bool {
	r.events = append(r.events, "ret")
	r.retVar = v
	return true
}

func record(t *testing.T, code []byte, registry *types.Registry) *recordingVisitor {
	t.Helper()
	rv := &recordingVisitor{}
	d := ssa.NewDecoder(code, registry)
	if err := d.Traverse(rv); err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	return rv
}

// TestConstantPropagationAddFoldsToSingleLiteral exercises spec.md's S2
// scenario: two i32 literals added together fold to a single
// AssignImmediate whose value flows straight into Ret. Constant
// propagation alone still re-emits the two source literals; dropping
// them is DCE's job.
func TestConstantPropagationAddFoldsToSingleLiteral(t *testing.T) {
	w := ssa.NewWriter(0)
	i32 := types.Primitive(types.I32)
	a := w.WriteAssignImmediate(i32, []byte{7, 0, 0, 0})
	b := w.WriteAssignImmediate(i32, []byte{35, 0, 0, 0})
	sum := w.WriteBinOpVtoV(ssa.BinAdd, i32, a, b)
	w.WriteRet(types.Primitive(types.U64), sum)

	out, maxID, err := RunPass(PassConstProp, w.Bytes(), w.IdIndex(), nil, nil)
	if err != nil {
		t.Fatalf("RunPass(constprop): %v", err)
	}
	if maxID == 0 {
		t.Fatalf("maxID should advance past the folded literal, got 0")
	}

	rv := record(t, out, nil)
	want := []string{"assign-imm", "assign-imm", "assign-imm", "ret"}
	if len(rv.events) != len(want) {
		t.Fatalf("events = %v, want %v", rv.events, want)
	}
	for i := range want {
		if rv.events[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, rv.events[i], want[i])
		}
	}
	if got := int32(uint32(rv.lastImm[0]) | uint32(rv.lastImm[1])<<8 | uint32(rv.lastImm[2])<<16 | uint32(rv.lastImm[3])<<24); got != 42 {
		t.Fatalf("folded literal = %d, want 42", got)
	}
}

// TestConstantPropagationSignExtendFolds exercises spec.md's S3 scenario:
// an i8 literal 0xFF sign-extended to i32 folds to 0xFFFFFFFF. The i8
// source literal is re-emitted ahead of the folded one.
func TestConstantPropagationSignExtendFolds(t *testing.T) {
	w := ssa.NewWriter(0)
	i8 := types.Primitive(types.I8)
	v := w.WriteAssignImmediate(i8, []byte{0xFF})
	ext := w.WriteExpandSX(types.Primitive(types.I32), i8, v)
	w.WriteRet(types.Primitive(types.U64), ext)

	out, _, err := RunPass(PassConstProp, w.Bytes(), w.IdIndex(), nil, nil)
	if err != nil {
		t.Fatalf("RunPass(constprop): %v", err)
	}

	rv := record(t, out, nil)
	want := []string{"assign-imm", "assign-imm", "ret"}
	if len(rv.events) != len(want) {
		t.Fatalf("events = %v, want %v (sign-extend should fold, not re-emit expand-sx)", rv.events, want)
	}
	if len(rv.lastImm) != 4 {
		t.Fatalf("folded literal width = %d bytes, want 4", len(rv.lastImm))
	}
	for _, b := range rv.lastImm {
		if b != 0xFF {
			t.Fatalf("folded literal = %x, want all 0xFF bytes", rv.lastImm)
		}
	}
}

// TestDeadCodeEliminationDropsUnusedArithmetic exercises spec.md's S4
// scenario: a dead add feeding nothing the return reads is removed
// entirely, along with its now-unused second operand.
func TestDeadCodeEliminationDropsUnusedArithmetic(t *testing.T) {
	w := ssa.NewWriter(0)
	i32 := types.Primitive(types.I32)
	kept := w.WriteAssignImmediate(i32, []byte{9, 0, 0, 0})
	dead := w.WriteAssignImmediate(i32, []byte{10, 0, 0, 0})
	w.WriteBinOpVtoV(ssa.BinAdd, i32, kept, dead)
	w.WriteRet(types.Primitive(types.U64), kept)

	out, _, err := RunPass(PassDCE, w.Bytes(), w.IdIndex(), nil, nil)
	if err != nil {
		t.Fatalf("RunPass(dce): %v", err)
	}

	rv := record(t, out, nil)
	want := []string{"assign-imm", "ret"}
	if len(rv.events) != len(want) {
		t.Fatalf("events = %v, want %v (dead add and its second literal must be gone)", rv.events, want)
	}
}

// TestInlineSmallCalleeRemovesCallSite exercises spec.md's S5 scenario: a
// small callee that returns its argument unchanged is spliced into the
// caller, and the call instruction disappears.
func TestInlineSmallCalleeRemovesCallSite(t *testing.T) {
	mod := module.NewModule("test")

	// ident(a u64): Ret u64 a  (the callee's SSA form, already lifted).
	identW := ssa.NewWriter(0)
	identW.WriteRet(types.Primitive(types.U64), ssa.ArgumentID(0))
	ident := module.NewFunction("ident", identW.Bytes(), nil, nil, nil, module.FunctionFlags{})
	mod.AddFunction(ident)

	// caller(k u64): %1 = AssignVariable u64 arg0; %2 = Call ident(%1..+1); Ret u64 %2
	callerW := ssa.NewWriter(0)
	argCopy := callerW.WriteAssignVariable(types.Primitive(types.U64), ssa.ArgumentID(0))
	result := callerW.WriteCall(0, argCopy, 1)
	callerW.WriteRet(types.Primitive(types.U64), result)

	out, _, err := RunPass(PassInline, callerW.Bytes(), callerW.IdIndex(), mod, mod.Registry())
	if err != nil {
		t.Fatalf("RunPass(inline): %v", err)
	}

	rv := record(t, out, mod.Registry())
	for _, e := range rv.events {
		if e == "call" {
			t.Fatalf("events = %v, callsite should have been inlined away", rv.events)
		}
	}
	if rv.events[len(rv.events)-1] != "ret" {
		t.Fatalf("events = %v, should still terminate in a Ret", rv.events)
	}
}

// TestRunPipelineChainsPassesAndTracksMaxID runs constprop then dce back
// to back through RunPipeline, confirming the maxID threaded between
// passes keeps the second pass's id space consistent with the first
// pass's rewritten output rather than the original stream's.
func TestRunPipelineChainsPassesAndTracksMaxID(t *testing.T) {
	w := ssa.NewWriter(0)
	i32 := types.Primitive(types.I32)
	a := w.WriteAssignImmediate(i32, []byte{1, 0, 0, 0})
	b := w.WriteAssignImmediate(i32, []byte{2, 0, 0, 0})
	sum := w.WriteBinOpVtoV(ssa.BinAdd, i32, a, b)
	w.WriteRet(types.Primitive(types.U64), sum)

	out, err := RunPipeline(nil, "test", []PassName{PassConstProp, PassDCE}, w.Bytes(), w.IdIndex(), nil, nil)
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}

	rv := record(t, out, nil)
	want := []string{"assign-imm", "ret"}
	if len(rv.events) != len(want) {
		t.Fatalf("events = %v, want %v", rv.events, want)
	}
}
