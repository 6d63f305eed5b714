package lift

import (
	"testing"

	"github.com/hyfloac/TauIR-sub000/ir"
	"github.com/hyfloac/TauIR-sub000/module"
	"github.com/hyfloac/TauIR-sub000/ssa"
	"github.com/hyfloac/TauIR-sub000/types"
)

type eventRecorder struct {
	ssa.BaseVisitor
	events []string
}

func (r *eventRecorder) VisitAssignImmediate(ssa.VarId, types.SsaCustomType, []byte) bool {
	r.events = append(r.events, "assign-imm")
	return true
}

func (r *eventRecorder) VisitAssignVar(ssa.VarId, types.SsaCustomType, ssa.VarId) bool {
	r.events = append(r.events, "assign-var")
	return true
}

func (r *eventRecorder) VisitBinOpVToV(newVar ssa.VarId, op ssa.SsaBinaryOperation, t types.SsaCustomType, a, b ssa.VarId) bool {
	r.events = append(r.events, "binop:"+op.String())
	return true
}

func (r *eventRecorder) VisitSplit(ssa.VarId, types.SsaCustomType, ssa.VarId, []types.SsaCustomType) bool {
	r.events = append(r.events, "split")
	return true
}

func (r *eventRecorder) VisitJoin(ssa.VarId, types.SsaCustomType, []types.SsaCustomType, []ssa.VarId) bool {
	r.events = append(r.events, "join")
	return true
}

func (r *eventRecorder) VisitRet(types.SsaCustomType, ssa.VarId) bool {
	r.events = append(r.events, "ret")
	return true
}

func lift(t *testing.T, fn *module.Function, mod *module.Module) []string {
	t.Helper()
	w, err := TransformFunction(fn, mod, mod.Registry())
	if err != nil {
		t.Fatalf("TransformFunction: %v", err)
	}
	d := ssa.NewDecoder(w.Bytes(), mod.Registry())
	rec := &eventRecorder{}
	if err := d.Traverse(rec); err != nil {
		t.Fatalf("decoding lifted SSA: %v", err)
	}
	return rec.events
}

func containsInOrder(events []string, want ...string) bool {
	i := 0
	for _, e := range events {
		if i < len(want) && e == want[i] {
			i++
		}
	}
	return i == len(want)
}

func TestLifterSimpleArithmetic(t *testing.T) {
	w := ir.NewWriter(0)
	w.WriteConstant(10)
	w.WriteConstant(3)
	w.WriteSubI32()
	w.WriteRet()

	fn := module.NewFunction("sub", w.Bytes(), nil, nil, nil, module.FunctionFlags{})
	mod := module.NewModule("test")
	mod.AddFunction(fn)

	events := lift(t, fn, mod)
	want := []string{"assign-imm", "assign-imm", "binop:sub", "ret"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestLifterPushPopLocalSkipsExtraInstruction(t *testing.T) {
	w := ir.NewWriter(0)
	w.WriteConstant(5)
	w.WritePop(0) // store into local 0
	w.WritePush(0)
	w.WriteRet()

	i32 := types.Primitive(types.I32)
	fn := module.NewFunction("store-load", w.Bytes(), []types.SsaCustomType{i32}, nil, nil, module.FunctionFlags{})
	mod := module.NewModule("test")
	mod.AddFunction(fn)

	events := lift(t, fn, mod)
	// A Pop that exactly matches the destination local's size returns the
	// already-popped frame's id directly (no re-emitted instruction);
	// only the later Push re-materializes it through AssignVariable.
	want := []string{"assign-imm", "assign-var", "ret"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestLifterDivPushesQuotientThenRemainder(t *testing.T) {
	w := ir.NewWriter(0)
	w.WriteConstant(17)
	w.WriteConstant(5)
	w.WriteDivI32()
	w.WriteRet()

	fn := module.NewFunction("div", w.Bytes(), nil, nil, nil, module.FunctionFlags{})
	mod := module.NewModule("test")
	mod.AddFunction(fn)

	events := lift(t, fn, mod)
	if !containsInOrder(events, "binop:div", "binop:rem") {
		t.Fatalf("events = %v, want div before rem", events)
	}
}

func TestLifterPopRawJoinsMultipleFrames(t *testing.T) {
	w := ir.NewWriter(0)
	w.WriteConstant(1)
	w.WriteConstant(2)
	w.WritePop(0) // local 0 is 8 bytes: must Join the two 4-byte Const frames
	w.WriteRet()

	u64 := types.Primitive(types.U64)
	fn := module.NewFunction("join", w.Bytes(), []types.SsaCustomType{u64}, nil, nil, module.FunctionFlags{})
	mod := module.NewModule("test")
	mod.AddFunction(fn)

	events := lift(t, fn, mod)
	found := false
	for _, e := range events {
		if e == "join" {
			found = true
		}
	}
	if !found {
		t.Fatalf("events = %v, expected a join", events)
	}
}

func TestLifterPopRawSplitsOvershoot(t *testing.T) {
	w := ir.NewWriter(0)
	w.WriteConstant(5)
	w.WriteExpandZX(4, 8) // pushes a single 8-byte frame
	w.WritePop(0)         // local 0 is 4 bytes: must Split the 8-byte frame
	w.WriteRet()

	i32 := types.Primitive(types.I32)
	fn := module.NewFunction("split", w.Bytes(), []types.SsaCustomType{i32}, nil, nil, module.FunctionFlags{})
	mod := module.NewModule("test")
	mod.AddFunction(fn)

	events := lift(t, fn, mod)
	found := false
	for _, e := range events {
		if e == "split" {
			found = true
		}
	}
	if !found {
		t.Fatalf("events = %v, expected a split", events)
	}
}

func TestLifterCallStagesContiguousArguments(t *testing.T) {
	calleeArgs := []module.FunctionArgument{{IsRegister: true, RegisterOrStackOffset: 0}, {IsRegister: false, RegisterOrStackOffset: 0}}
	callee := module.NewFunction("callee", nil, nil, nil, calleeArgs, module.FunctionFlags{})

	w := ir.NewWriter(0)
	w.WriteConstant(42)
	w.WriteExpandZX(4, 8)
	w.WriteCall(0)
	w.WriteRet()

	caller := module.NewFunction("caller", w.Bytes(), nil, nil, nil, module.FunctionFlags{})
	mod := module.NewModule("test")
	mod.AddFunction(callee)
	mod.AddFunction(caller)

	sw, err := TransformFunction(caller, mod, mod.Registry())
	if err != nil {
		t.Fatalf("TransformFunction: %v", err)
	}

	d := ssa.NewDecoder(sw.Bytes(), mod.Registry())
	v := &callCaptureVisitor{}
	if err := d.Traverse(v); err != nil {
		t.Fatalf("decoding lifted SSA: %v", err)
	}

	if !v.sawCall {
		t.Fatalf("expected a Call instruction in the lifted SSA")
	}
	if v.paramCount != 2 {
		t.Fatalf("paramCount = %d, want 2", v.paramCount)
	}
	if v.baseIndex == 0 {
		t.Fatalf("baseIndex not set")
	}
}

type callCaptureVisitor struct {
	ssa.BaseVisitor
	baseIndex  ssa.VarId
	paramCount uint32
	sawCall    bool
}

func (v *callCaptureVisitor) VisitCall(newVar ssa.VarId, functionIndex uint32, baseIndex ssa.VarId, parameterCount uint32) bool {
	v.baseIndex = baseIndex
	v.paramCount = parameterCount
	v.sawCall = true
	return true
}
