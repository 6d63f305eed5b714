package ssa

import (
	"fmt"
	"io"
	"strings"

	"github.com/hyfloac/TauIR-sub000/ir"
	"github.com/hyfloac/TauIR-sub000/types"
)

// String renders a VarId the way cmd/tauir's dumper and test fixtures do:
// "%3" for a locally-defined value, "%arg0" for argument pseudo-variables,
// and "%none" for the reserved zero id.
func (id VarId) String() string {
	switch {
	case id == 0:
		return "%none"
	case id.IsArgument():
		return fmt.Sprintf("%%arg%d", id.ArgumentIndex())
	default:
		return fmt.Sprintf("%%%d", uint32(id))
	}
}

// Dumper is a Visitor that renders each decoded SSA instruction as one
// line of text naming the id it defines (if any) and its operands.
// Out of spec scope as a wire format (§1's "textual bytecode dumper" is
// mechanism); provided for cmd/tauir's `lift`/`opt` subcommands.
type Dumper struct {
	BaseVisitor
	w   io.Writer
	err error
}

// NewDumper returns a Dumper that writes one line per instruction to w.
func NewDumper(w io.Writer) *Dumper {
	return &Dumper{w: w}
}

// Err returns the first write error encountered, if any.
func (d *Dumper) Err() error { return d.err }

func (d *Dumper) line(format string, args ...any) bool {
	if d.err != nil {
		return false
	}
	_, d.err = fmt.Fprintf(d.w, format+"\n", args...)
	return d.err == nil
}

func joinTypes(ts []types.SsaCustomType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func joinVars(vs []VarId) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

func (d *Dumper) VisitNop() bool { return d.line("nop") }
func (d *Dumper) VisitLabel(label VarId) bool {
	return d.line("%s:", label)
}
func (d *Dumper) VisitAssignImmediate(newVar VarId, t types.SsaCustomType, value []byte) bool {
	return d.line("%s = assign.imm %s 0x%x", newVar, t, value)
}
func (d *Dumper) VisitAssignVar(newVar VarId, t types.SsaCustomType, v VarId) bool {
	return d.line("%s = assign %s %s", newVar, t, v)
}
func (d *Dumper) VisitExpandSX(newVar VarId, newType, oldType types.SsaCustomType, v VarId) bool {
	return d.line("%s = expand.sx %s -> %s %s", newVar, oldType, newType, v)
}
func (d *Dumper) VisitExpandZX(newVar VarId, newType, oldType types.SsaCustomType, v VarId) bool {
	return d.line("%s = expand.zx %s -> %s %s", newVar, oldType, newType, v)
}
func (d *Dumper) VisitTrunc(newVar VarId, newType, oldType types.SsaCustomType, v VarId) bool {
	return d.line("%s = trunc %s -> %s %s", newVar, oldType, newType, v)
}
func (d *Dumper) VisitRCast(newVar VarId, newType, oldType types.SsaCustomType, v VarId) bool {
	return d.line("%s = rcast %s -> %s %s", newVar, oldType, newType, v)
}
func (d *Dumper) VisitBCast(newVar VarId, newType, oldType types.SsaCustomType, v VarId) bool {
	return d.line("%s = bcast %s -> %s %s", newVar, oldType, newType, v)
}
func (d *Dumper) VisitLoad(newVar VarId, t types.SsaCustomType, v VarId) bool {
	return d.line("%s = load %s [%s]", newVar, t, v)
}
func (d *Dumper) VisitStoreV(t types.SsaCustomType, destination, source VarId) bool {
	return d.line("store %s [%s] <- %s", t, destination, source)
}
func (d *Dumper) VisitStoreI(t types.SsaCustomType, destination VarId, value []byte) bool {
	return d.line("store %s [%s] <- 0x%x", t, destination, value)
}
func (d *Dumper) VisitComputePtr(newVar VarId, base, index VarId, multiplier int8, offset int16) bool {
	return d.line("%s = computeptr %s + %s*%d + %d", newVar, base, index, multiplier, offset)
}
func (d *Dumper) VisitBinOpVToV(newVar VarId, op SsaBinaryOperation, t types.SsaCustomType, a, b VarId) bool {
	return d.line("%s = %s %s %s, %s", newVar, op, t, a, b)
}
func (d *Dumper) VisitBinOpVToI(newVar VarId, op SsaBinaryOperation, t types.SsaCustomType, aValue []byte, b VarId) bool {
	return d.line("%s = %s %s 0x%x, %s", newVar, op, t, aValue, b)
}
func (d *Dumper) VisitBinOpIToV(newVar VarId, op SsaBinaryOperation, t types.SsaCustomType, a VarId, bValue []byte) bool {
	return d.line("%s = %s %s %s, 0x%x", newVar, op, t, a, bValue)
}
func (d *Dumper) VisitSplit(baseIndex VarId, aType types.SsaCustomType, a VarId, splitTypes []types.SsaCustomType) bool {
	return d.line("%s.. = split %s %s -> [%s]", baseIndex, aType, a, joinTypes(splitTypes))
}
func (d *Dumper) VisitJoin(newVar VarId, newType types.SsaCustomType, joinTypes_ []types.SsaCustomType, joinVars_ []VarId) bool {
	return d.line("%s = join %s <- [%s] [%s]", newVar, newType, joinTypes(joinTypes_), joinVars(joinVars_))
}
func (d *Dumper) VisitCompVToV(newVar VarId, cond ir.CompareCondition, t types.SsaCustomType, a, b VarId) bool {
	return d.line("%s = comp.%s %s %s, %s", newVar, cond, t, a, b)
}
func (d *Dumper) VisitCompVToI(newVar VarId, cond ir.CompareCondition, t types.SsaCustomType, aValue []byte, b VarId) bool {
	return d.line("%s = comp.%s %s 0x%x, %s", newVar, cond, t, aValue, b)
}
func (d *Dumper) VisitCompIToV(newVar VarId, cond ir.CompareCondition, t types.SsaCustomType, a VarId, bValue []byte) bool {
	return d.line("%s = comp.%s %s %s, 0x%x", newVar, cond, t, a, bValue)
}
func (d *Dumper) VisitBranch(label VarId) bool {
	return d.line("branch %s", label)
}
func (d *Dumper) VisitBranchCond(labelTrue, labelFalse, conditionVar VarId) bool {
	return d.line("branch.cond %s ? %s : %s", conditionVar, labelTrue, labelFalse)
}
func (d *Dumper) VisitCall(newVar VarId, functionIndex uint32, baseIndex VarId, parameterCount uint32) bool {
	return d.line("%s = call #%d(%s..+%d)", newVar, functionIndex, baseIndex, parameterCount)
}
func (d *Dumper) VisitCallExt(newVar VarId, functionIndex uint32, baseIndex VarId, parameterCount uint32, moduleIndex uint16) bool {
	return d.line("%s = call.ext module=%d #%d(%s..+%d)", newVar, moduleIndex, functionIndex, baseIndex, parameterCount)
}
func (d *Dumper) VisitCallInd(newVar VarId, functionPointer, baseIndex VarId, parameterCount uint32) bool {
	return d.line("%s = call.ind %s(%s..+%d)", newVar, functionPointer, baseIndex, parameterCount)
}
func (d *Dumper) VisitCallIndExt(newVar VarId, functionPointer, baseIndex VarId, parameterCount uint32, modulePointer VarId) bool {
	return d.line("%s = call.ind.ext %s module=%s(%s..+%d)", newVar, functionPointer, modulePointer, baseIndex, parameterCount)
}
func (d *Dumper) VisitRet(returnType types.SsaCustomType, v VarId) bool {
	return d.line("ret %s %s", returnType, v)
}
