package ir

import (
	"fmt"
	"io"
)

// Dumper is a Visitor that renders each decoded instruction as one line of
// human-readable text, mirroring original_source's disassembler but built
// on this package's own Visitor contract instead of a bespoke walker.
// Textual disassembly is explicitly out of spec scope as a wire format,
// but the spec leaves its ownership to the implementer (§1); this is a
// convenience for cmd/tauir's `disasm` subcommand and for debugging.
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

func (d *Dumper) VisitNop() bool              { return d.line("nop") }
func (d *Dumper) VisitPush(index uint32) bool { return d.line("push.local %d", index) }
func (d *Dumper) VisitPushArg(index uint32) bool {
	return d.line("push.arg %d", index)
}
func (d *Dumper) VisitPushPtr(offset uint32) bool { return d.line("push.ptr %d", offset) }
func (d *Dumper) VisitPushGlobal(index uint32) bool {
	return d.line("push.global %d", index)
}
func (d *Dumper) VisitPushGlobalExt(index uint32, moduleIndex uint16) bool {
	return d.line("push.global.ext module=%d %d", moduleIndex, index)
}
func (d *Dumper) VisitPushGlobalPtr(index uint32) bool {
	return d.line("push.global.ptr %d", index)
}
func (d *Dumper) VisitPop(n uint32) bool    { return d.line("pop.local %d", n) }
func (d *Dumper) VisitPopArg(index uint32) bool {
	return d.line("pop.arg %d", index)
}
func (d *Dumper) VisitPopPtr(offset uint32) bool { return d.line("pop.ptr %d", offset) }
func (d *Dumper) VisitPopGlobal(index uint32) bool {
	return d.line("pop.global %d", index)
}
func (d *Dumper) VisitPopGlobalExt(index uint32, moduleIndex uint16) bool {
	return d.line("pop.global.ext module=%d %d", moduleIndex, index)
}
func (d *Dumper) VisitPopGlobalPtr(index uint32) bool {
	return d.line("pop.global.ptr %d", index)
}
func (d *Dumper) VisitPopGlobalExtPtr(index uint32, moduleIndex uint16) bool {
	return d.line("pop.global.ext.ptr module=%d %d", moduleIndex, index)
}
func (d *Dumper) VisitPopCount(n uint32) bool { return d.line("pop.count %d", n) }
func (d *Dumper) VisitDup(n uint8) bool       { return d.line("dup %d", n) }
func (d *Dumper) VisitExpandSX(fromBits, toBits uint8) bool {
	return d.line("expand.sx i%d -> i%d", fromBits, toBits)
}
func (d *Dumper) VisitExpandZX(fromBits, toBits uint8) bool {
	return d.line("expand.zx i%d -> i%d", fromBits, toBits)
}
func (d *Dumper) VisitTrunc(fromBits, toBits uint8) bool {
	return d.line("trunc i%d -> i%d", fromBits, toBits)
}
func (d *Dumper) VisitLoad(valueLocalIndex, pointerLocalIndex uint16) bool {
	return d.line("load %d, %d", valueLocalIndex, pointerLocalIndex)
}
func (d *Dumper) VisitLoadGlobal(globalIndex uint32, pointerLocalIndex uint16) bool {
	return d.line("load.global %d, %d", globalIndex, pointerLocalIndex)
}
func (d *Dumper) VisitLoadGlobalExt(globalIndex uint32, pointerLocalIndex, moduleIndex uint16) bool {
	return d.line("load.global.ext module=%d %d, %d", moduleIndex, globalIndex, pointerLocalIndex)
}
func (d *Dumper) VisitStore(pointerLocalIndex, valueLocalIndex uint16) bool {
	return d.line("store %d, %d", pointerLocalIndex, valueLocalIndex)
}
func (d *Dumper) VisitStoreGlobal(pointerLocalIndex uint16, globalIndex uint32) bool {
	return d.line("store.global %d, %d", pointerLocalIndex, globalIndex)
}
func (d *Dumper) VisitStoreGlobalExt(pointerLocalIndex uint16, globalIndex uint32, moduleIndex uint16) bool {
	return d.line("store.global.ext module=%d %d, %d", moduleIndex, pointerLocalIndex, globalIndex)
}
func (d *Dumper) VisitConst(value uint32) bool { return d.line("const 0x%08X", value) }
func (d *Dumper) VisitBinOp(op Opcode, width Width) bool {
	return d.line("binop %s %s", op, width)
}
func (d *Dumper) VisitComp(width Width, cond CompareCondition) bool {
	return d.line("comp %s %s", width, cond)
}
func (d *Dumper) VisitCall(function uint32) bool { return d.line("call #%d", function) }
func (d *Dumper) VisitCallExt(function uint32, moduleIndex uint16) bool {
	return d.line("call.ext module=%d #%d", moduleIndex, function)
}
func (d *Dumper) VisitCallInd(functionPointerIndex uint32) bool {
	return d.line("call.ind local=%d", functionPointerIndex)
}
func (d *Dumper) VisitCallIndExt(functionPointerIndex uint32, moduleIndex uint16) bool {
	return d.line("call.ind.ext local=%d module=%d", functionPointerIndex, moduleIndex)
}
func (d *Dumper) VisitRet() bool { return d.line("ret") }
func (d *Dumper) VisitJumpPoint(op Opcode, offset int32) bool {
	return d.line("%s %+d", op, offset)
}

func (w Width) String() string {
	switch w {
	case Width32:
		return "i32"
	case Width64:
		return "i64"
	default:
		return fmt.Sprintf("Width(%d)", uint8(w))
	}
}
