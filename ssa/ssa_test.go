package ssa

import (
	"testing"

	"github.com/hyfloac/TauIR-sub000/ir"
	"github.com/hyfloac/TauIR-sub000/types"
)

type recordingVisitor struct {
	BaseVisitor
	events []string
}

func (r *recordingVisitor) VisitAssignImmediate(newVar VarId, t types.SsaCustomType, value []byte) bool {
	r.events = append(r.events, "assign-imm")
	return true
}

func (r *recordingVisitor) VisitBinOpVToV(newVar VarId, op SsaBinaryOperation, t types.SsaCustomType, a, b VarId) bool {
	r.events = append(r.events, "binop")
	return true
}

func (r *recordingVisitor) VisitRet(t types.SsaCustomType, v VarId) bool {
	r.events = append(r.events, "ret")
	return true
}

func TestWriterDecoderRoundTrip(t *testing.T) {
	w := NewWriter(0)
	i32 := types.Primitive(types.I32)
	a := w.WriteAssignImmediate(i32, []byte{1, 0, 0, 0})
	b := w.WriteAssignImmediate(i32, []byte{2, 0, 0, 0})
	sum := w.WriteBinOpVtoV(BinAdd, i32, a, b)
	w.WriteRet(i32, sum)

	d := NewDecoder(w.Bytes(), nil)
	rv := &recordingVisitor{}
	if err := d.Traverse(rv); err != nil {
		t.Fatalf("Traverse: %v", err)
	}

	want := []string{"assign-imm", "assign-imm", "binop", "ret"}
	if len(rv.events) != len(want) {
		t.Fatalf("events = %v, want %v", rv.events, want)
	}
	for i := range want {
		if rv.events[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, rv.events[i], want[i])
		}
	}
	if d.IdIndex() != w.IdIndex() {
		t.Fatalf("decoder id counter = %d, writer id counter = %d", d.IdIndex(), w.IdIndex())
	}
}

type splitJoinVisitor struct {
	BaseVisitor
	splitBase VarId
	joinVar   VarId
}

func (v *splitJoinVisitor) VisitSplit(baseIndex VarId, aType types.SsaCustomType, a VarId, splitTypes []types.SsaCustomType) bool {
	v.splitBase = baseIndex
	return true
}

func (v *splitJoinVisitor) VisitJoin(newVar VarId, newType types.SsaCustomType, joinTypes []types.SsaCustomType, joinVars []VarId) bool {
	v.joinVar = newVar
	return true
}

func TestSplitReportsWriterConvention(t *testing.T) {
	w := NewWriter(0)
	i64 := types.Primitive(types.I64)
	i32 := types.Primitive(types.I32)
	src := w.WriteAssignImmediate(i64, []byte{0, 0, 0, 0, 0, 0, 0, 0})
	base := w.WriteSplit(i64, src, []types.SsaCustomType{i32, i32})

	d := NewDecoder(w.Bytes(), nil)
	v := &splitJoinVisitor{}
	if err := d.Traverse(v); err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if v.splitBase != base {
		t.Fatalf("decoder reported split base %d, writer returned %d", v.splitBase, base)
	}
}

func TestJoinAdvancesIdByOneNotCount(t *testing.T) {
	w := NewWriter(0)
	i32 := types.Primitive(types.I32)
	a := w.WriteAssignImmediate(i32, []byte{1, 0, 0, 0})
	b := w.WriteAssignImmediate(i32, []byte{2, 0, 0, 0})
	c := w.WriteAssignImmediate(i32, []byte{3, 0, 0, 0})
	i64 := types.Primitive(types.I64)
	joined := w.WriteJoin(i64, []types.SsaCustomType{i32, i32, i32}, []VarId{a, b, c})

	if joined != w.IdIndex() {
		t.Fatalf("join id = %d, writer counter = %d", joined, w.IdIndex())
	}

	d := NewDecoder(w.Bytes(), nil)
	v := &splitJoinVisitor{}
	if err := d.Traverse(v); err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if v.joinVar != joined {
		t.Fatalf("decoder reported join id %d, writer returned %d", v.joinVar, joined)
	}
	if d.IdIndex() != w.IdIndex() {
		t.Fatalf("decoder id counter %d diverged from writer %d after Join", d.IdIndex(), w.IdIndex())
	}
}

type branchVisitor struct {
	BaseVisitor
	label               VarId
	labelTrue, labelFalse, cond VarId
}

func (v *branchVisitor) VisitBranch(label VarId) bool {
	v.label = label
	return true
}

func (v *branchVisitor) VisitBranchCond(labelTrue, labelFalse, conditionVar VarId) bool {
	v.labelTrue = labelTrue
	v.labelFalse = labelFalse
	v.cond = conditionVar
	return true
}

func TestBranchAndBranchCondDecode(t *testing.T) {
	w := NewWriter(0)
	lbl := w.WriteLabel()
	w.WriteBranch(lbl)

	d := NewDecoder(w.Bytes(), nil)
	v := &branchVisitor{}
	if err := d.Traverse(v); err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if v.label != lbl {
		t.Fatalf("branch label = %d, want %d", v.label, lbl)
	}

	w2 := NewWriter(0)
	lt := w2.WriteLabel()
	lf := w2.WriteLabel()
	boolT := types.Primitive(types.Bool)
	cond := w2.WriteAssignImmediate(boolT, []byte{1})
	w2.WriteBranchCond(lt, lf, cond)

	d2 := NewDecoder(w2.Bytes(), nil)
	v2 := &branchVisitor{}
	if err := d2.Traverse(v2); err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if v2.labelTrue != lt || v2.labelFalse != lf || v2.cond != cond {
		t.Fatalf("branch cond = (%d,%d,%d), want (%d,%d,%d)", v2.labelTrue, v2.labelFalse, v2.cond, lt, lf, cond)
	}
}

type compVisitor struct {
	BaseVisitor
	cond ir.CompareCondition
}

func (v *compVisitor) VisitCompVToV(newVar VarId, cond ir.CompareCondition, t types.SsaCustomType, a, b VarId) bool {
	v.cond = cond
	return true
}

func TestCompVtoVRoundTrip(t *testing.T) {
	w := NewWriter(0)
	i32 := types.Primitive(types.I32)
	a := w.WriteAssignImmediate(i32, []byte{1, 0, 0, 0})
	b := w.WriteAssignImmediate(i32, []byte{2, 0, 0, 0})
	w.WriteCompVtoV(ir.CondLess, i32, a, b)

	d := NewDecoder(w.Bytes(), nil)
	v := &compVisitor{}
	if err := d.Traverse(v); err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if v.cond != ir.CondLess {
		t.Fatalf("cond = %s, want %s", v.cond, ir.CondLess)
	}
}

func TestArgumentIDRoundTrip(t *testing.T) {
	id := ArgumentID(3)
	if !id.IsArgument() {
		t.Fatalf("expected argument id")
	}
	if id.ArgumentIndex() != 3 {
		t.Fatalf("ArgumentIndex = %d, want 3", id.ArgumentIndex())
	}
}

func TestFrameTrackerPushPop(t *testing.T) {
	ft := NewFrameTracker(2)
	ft.PushFrame(VarId(1), 4)
	ft.PushFrame(VarId(2), 8)

	top, ok := ft.CheckFrame()
	if !ok || top.Var != VarId(2) {
		t.Fatalf("CheckFrame = %+v, %v", top, ok)
	}
	popped, ok := ft.PopFrame()
	if !ok || popped.Var != VarId(2) {
		t.Fatalf("PopFrame = %+v, %v", popped, ok)
	}
	if ft.Depth() != 1 {
		t.Fatalf("Depth = %d, want 1", ft.Depth())
	}
}

func TestFrameTrackerArgumentDefault(t *testing.T) {
	ft := NewFrameTracker(0)
	if got := ft.GetArgument(2); got != ArgumentID(2) {
		t.Fatalf("GetArgument(2) = %d, want %d", got, ArgumentID(2))
	}
	ft.SetArgument(VarId(99), 2)
	if got := ft.GetArgument(2); got != VarId(99) {
		t.Fatalf("GetArgument(2) after SetArgument = %d, want 99", got)
	}
}

func TestTruncatedSsaStreamErrors(t *testing.T) {
	d := NewDecoder([]byte{0x30}, nil) // AssignImmediate opcode with no operand
	if err := d.Traverse(&recordingVisitor{}); err == nil {
		t.Fatalf("expected error decoding truncated stream")
	}
}
