// Package ir implements the stack-based TauIR bytecode: its opcode table,
// a growable-buffer writer, and a visitor-driven decoder.
package ir

import "fmt"

// Opcode identifies a single IR instruction. A value whose high byte has
// bit 0x80 set is written to the wire as two bytes (high byte first, then
// low byte); every other value is written as a single low byte, matching
// IrWriter.cpp's WriteOpcode and the numbering in original_source's
// Opcodes.hpp.
type Opcode uint16

const (
	OpNop Opcode = 0x0000

	OpPush0 Opcode = 0x0010
	OpPush1 Opcode = 0x0011
	OpPush2 Opcode = 0x0012
	OpPush3 Opcode = 0x0013
	OpPushN Opcode = 0x9010

	OpPushArg0 Opcode = 0x0030
	OpPushArg1 Opcode = 0x0031
	OpPushArg2 Opcode = 0x0032
	OpPushArg3 Opcode = 0x0033
	OpPushArgN Opcode = 0x9030

	OpPushPtr          Opcode = 0x9011
	OpPushGlobal       Opcode = 0x9012
	OpPushGlobalExt    Opcode = 0x9013
	OpPushGlobalPtr    Opcode = 0x9014
	OpPushGlobalExtPtr Opcode = 0x9015

	OpPop0 Opcode = 0x0020
	OpPop1 Opcode = 0x0021
	OpPop2 Opcode = 0x0022
	OpPop3 Opcode = 0x0023
	OpPopN Opcode = 0xA020

	OpPopArg0 Opcode = 0x0040
	OpPopArg1 Opcode = 0x0041
	OpPopArg2 Opcode = 0x0042
	OpPopArg3 Opcode = 0x0043
	OpPopArgN Opcode = 0xA040

	OpPopPtr          Opcode = 0xA021
	OpPopGlobal       Opcode = 0xA022
	OpPopGlobalExt    Opcode = 0xA023
	OpPopGlobalPtr    Opcode = 0xA024
	OpPopGlobalExtPtr Opcode = 0xA025
	OpPopCount        Opcode = 0xA026

	OpDup1 Opcode = 0x000C
	OpDup2 Opcode = 0x000D
	OpDup4 Opcode = 0x000E
	OpDup8 Opcode = 0x000F

	OpExpandSX12 Opcode = 0x0024
	OpExpandSX14 Opcode = 0x0025
	OpExpandSX18 Opcode = 0x0026
	OpExpandSX24 Opcode = 0x0027
	OpExpandSX28 Opcode = 0x0028
	OpExpandSX48 Opcode = 0x0029

	OpExpandZX12 Opcode = 0x0044
	OpExpandZX14 Opcode = 0x0045
	OpExpandZX18 Opcode = 0x0046
	OpExpandZX24 Opcode = 0x0047
	OpExpandZX28 Opcode = 0x0048
	OpExpandZX48 Opcode = 0x0049

	OpTrunc84 Opcode = 0x002A
	OpTrunc82 Opcode = 0x002B
	OpTrunc81 Opcode = 0x002C
	OpTrunc42 Opcode = 0x002D
	OpTrunc41 Opcode = 0x002E
	OpTrunc21 Opcode = 0x002F

	OpLoad          Opcode = 0x001B
	OpLoadGlobal    Opcode = 0x901A
	OpLoadGlobalExt Opcode = 0x901B

	OpStore          Opcode = 0x004A
	OpStoreGlobal    Opcode = 0xA04A
	OpStoreGlobalExt Opcode = 0xA04B

	OpConst0  Opcode = 0x0014
	OpConst1  Opcode = 0x0015
	OpConst2  Opcode = 0x0016
	OpConst3  Opcode = 0x0017
	OpConst4  Opcode = 0x0018
	OpConstFF Opcode = 0x0019
	OpConst7F Opcode = 0x001A
	OpConstN  Opcode = 0x8B00

	OpAddI32 Opcode = 0x0034
	OpAddI64 Opcode = 0x0035
	OpSubI32 Opcode = 0x0036
	OpSubI64 Opcode = 0x0037
	OpMulI32 Opcode = 0x0038
	OpMulI64 Opcode = 0x0039
	OpDivI32 Opcode = 0x003A
	OpDivI64 Opcode = 0x003B

	OpCompI32Above          Opcode = 0x8070
	OpCompI32AboveOrEqual   Opcode = 0x8071
	OpCompI32Below          Opcode = 0x8072
	OpCompI32BelowOrEqual   Opcode = 0x8073
	OpCompI32Equal          Opcode = 0x8074
	OpCompI32Greater        Opcode = 0x8075
	OpCompI32GreaterOrEqual Opcode = 0x8076
	OpCompI32Less           Opcode = 0x8077
	OpCompI32LessOrEqual    Opcode = 0x8078
	OpCompI32NotEqual       Opcode = 0x8079

	OpCompI64Above          Opcode = 0x8080
	OpCompI64AboveOrEqual   Opcode = 0x8081
	OpCompI64Below          Opcode = 0x8082
	OpCompI64BelowOrEqual   Opcode = 0x8083
	OpCompI64Equal          Opcode = 0x8084
	OpCompI64Greater        Opcode = 0x8085
	OpCompI64GreaterOrEqual Opcode = 0x8086
	OpCompI64Less           Opcode = 0x8087
	OpCompI64LessOrEqual    Opcode = 0x8088
	OpCompI64NotEqual       Opcode = 0x8089

	OpCall      Opcode = 0x001C
	OpCallExt   Opcode = 0x801C
	OpCallInd   Opcode = 0x801D
	OpCallIndExt Opcode = 0x801E
	OpRet       Opcode = 0x001D
	OpJump      Opcode = 0x001E
	OpJumpTrue  Opcode = 0x0070
	OpJumpFalse Opcode = 0x0071
)

// CompareCondition mirrors original_source's CompareCondition enum exactly.
type CompareCondition uint8

const (
	CondAbove          CompareCondition = 0x00
	CondAboveOrEqual   CompareCondition = 0x01
	CondBelow          CompareCondition = 0x02
	CondBelowOrEqual   CompareCondition = 0x03
	CondEqual          CompareCondition = 0x04
	CondGreater        CompareCondition = 0x05
	CondGreaterOrEqual CompareCondition = 0x06
	CondLess           CompareCondition = 0x07
	CondLessOrEqual    CompareCondition = 0x08
	CondNotEqual       CompareCondition = 0x09
)

func (c CompareCondition) String() string {
	names := map[CompareCondition]string{
		CondAbove: "above", CondAboveOrEqual: "aboveOrEqual",
		CondBelow: "below", CondBelowOrEqual: "belowOrEqual",
		CondEqual: "equal", CondGreater: "greater", CondGreaterOrEqual: "greaterOrEqual",
		CondLess: "less", CondLessOrEqual: "lessOrEqual", CondNotEqual: "notEqual",
	}
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("CompareCondition(%d)", uint8(c))
}

// Width distinguishes the 32-bit and 64-bit variants of width-polymorphic
// opcodes (arithmetic, comparison, expand/truncate family selection).
type Width uint8

const (
	Width32 Width = 32
	Width64 Width = 64
)

// IsTwoByte reports whether this opcode's wire encoding uses two bytes:
// true whenever the high byte of the 16-bit value has its 0x80 bit set.
func (o Opcode) IsTwoByte() bool {
	return uint16(o)&0x8000 != 0
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(0x%04X)", uint16(o))
}

var opcodeNames = map[Opcode]string{
	OpNop: "Nop",
	OpPush0: "Push0", OpPush1: "Push1", OpPush2: "Push2", OpPush3: "Push3", OpPushN: "PushN",
	OpPushArg0: "PushArg0", OpPushArg1: "PushArg1", OpPushArg2: "PushArg2", OpPushArg3: "PushArg3", OpPushArgN: "PushArgN",
	OpPushPtr: "PushPtr", OpPushGlobal: "PushGlobal", OpPushGlobalExt: "PushGlobalExt",
	OpPushGlobalPtr: "PushGlobalPtr", OpPushGlobalExtPtr: "PushGlobalExtPtr",
	OpPop0: "Pop0", OpPop1: "Pop1", OpPop2: "Pop2", OpPop3: "Pop3", OpPopN: "PopN",
	OpPopArg0: "PopArg0", OpPopArg1: "PopArg1", OpPopArg2: "PopArg2", OpPopArg3: "PopArg3", OpPopArgN: "PopArgN",
	OpPopPtr: "PopPtr", OpPopGlobal: "PopGlobal", OpPopGlobalExt: "PopGlobalExt",
	OpPopGlobalPtr: "PopGlobalPtr", OpPopGlobalExtPtr: "PopGlobalExtPtr", OpPopCount: "PopCount",
	OpDup1: "Dup1", OpDup2: "Dup2", OpDup4: "Dup4", OpDup8: "Dup8",
	OpExpandSX12: "ExpandSX12", OpExpandSX14: "ExpandSX14", OpExpandSX18: "ExpandSX18",
	OpExpandSX24: "ExpandSX24", OpExpandSX28: "ExpandSX28", OpExpandSX48: "ExpandSX48",
	OpExpandZX12: "ExpandZX12", OpExpandZX14: "ExpandZX14", OpExpandZX18: "ExpandZX18",
	OpExpandZX24: "ExpandZX24", OpExpandZX28: "ExpandZX28", OpExpandZX48: "ExpandZX48",
	OpTrunc84: "Trunc84", OpTrunc82: "Trunc82", OpTrunc81: "Trunc81",
	OpTrunc42: "Trunc42", OpTrunc41: "Trunc41", OpTrunc21: "Trunc21",
	OpLoad: "Load", OpLoadGlobal: "LoadGlobal", OpLoadGlobalExt: "LoadGlobalExt",
	OpStore: "Store", OpStoreGlobal: "StoreGlobal", OpStoreGlobalExt: "StoreGlobalExt",
	OpConst0: "Const0", OpConst1: "Const1", OpConst2: "Const2", OpConst3: "Const3", OpConst4: "Const4",
	OpConstFF: "ConstFF", OpConst7F: "Const7F", OpConstN: "ConstN",
	OpAddI32: "AddI32", OpAddI64: "AddI64", OpSubI32: "SubI32", OpSubI64: "SubI64",
	OpMulI32: "MulI32", OpMulI64: "MulI64", OpDivI32: "DivI32", OpDivI64: "DivI64",
	OpCompI32Above: "CompI32Above", OpCompI32AboveOrEqual: "CompI32AboveOrEqual",
	OpCompI32Below: "CompI32Below", OpCompI32BelowOrEqual: "CompI32BelowOrEqual",
	OpCompI32Equal: "CompI32Equal", OpCompI32Greater: "CompI32Greater",
	OpCompI32GreaterOrEqual: "CompI32GreaterOrEqual", OpCompI32Less: "CompI32Less",
	OpCompI32LessOrEqual: "CompI32LessOrEqual", OpCompI32NotEqual: "CompI32NotEqual",
	OpCompI64Above: "CompI64Above", OpCompI64AboveOrEqual: "CompI64AboveOrEqual",
	OpCompI64Below: "CompI64Below", OpCompI64BelowOrEqual: "CompI64BelowOrEqual",
	OpCompI64Equal: "CompI64Equal", OpCompI64Greater: "CompI64Greater",
	OpCompI64GreaterOrEqual: "CompI64GreaterOrEqual", OpCompI64Less: "CompI64Less",
	OpCompI64LessOrEqual: "CompI64LessOrEqual", OpCompI64NotEqual: "CompI64NotEqual",
	OpCall: "Call", OpCallExt: "CallExt", OpCallInd: "CallInd", OpCallIndExt: "CallIndExt",
	OpRet: "Ret", OpJump: "Jump", OpJumpTrue: "JumpTrue", OpJumpFalse: "JumpFalse",
}

// compI32Opcodes and compI64Opcodes let the writer/decoder translate
// between a (width, CompareCondition) pair and the single fused opcode the
// wire format actually uses for comparisons.
var compI32Opcodes = map[CompareCondition]Opcode{
	CondAbove: OpCompI32Above, CondAboveOrEqual: OpCompI32AboveOrEqual,
	CondBelow: OpCompI32Below, CondBelowOrEqual: OpCompI32BelowOrEqual,
	CondEqual: OpCompI32Equal, CondGreater: OpCompI32Greater,
	CondGreaterOrEqual: OpCompI32GreaterOrEqual, CondLess: OpCompI32Less,
	CondLessOrEqual: OpCompI32LessOrEqual, CondNotEqual: OpCompI32NotEqual,
}

var compI64Opcodes = map[CompareCondition]Opcode{
	CondAbove: OpCompI64Above, CondAboveOrEqual: OpCompI64AboveOrEqual,
	CondBelow: OpCompI64Below, CondBelowOrEqual: OpCompI64BelowOrEqual,
	CondEqual: OpCompI64Equal, CondGreater: OpCompI64Greater,
	CondGreaterOrEqual: OpCompI64GreaterOrEqual, CondLess: OpCompI64Less,
	CondLessOrEqual: OpCompI64LessOrEqual, CondNotEqual: OpCompI64NotEqual,
}

var opcodeToCond map[Opcode]CompareCondition

func init() {
	opcodeToCond = make(map[Opcode]CompareCondition, len(compI32Opcodes)+len(compI64Opcodes))
	for cond, op := range compI32Opcodes {
		opcodeToCond[op] = cond
	}
	for cond, op := range compI64Opcodes {
		opcodeToCond[op] = cond
	}
}

// CompOpcode returns the fused comparison opcode for the given width and
// condition.
func CompOpcode(width Width, cond CompareCondition) (Opcode, bool) {
	if width == Width32 {
		op, ok := compI32Opcodes[cond]
		return op, ok
	}
	op, ok := compI64Opcodes[cond]
	return op, ok
}

// DecodeCompOpcode recovers the (width, condition) pair from a fused
// comparison opcode, if op is one.
func DecodeCompOpcode(op Opcode) (Width, CompareCondition, bool) {
	cond, ok := opcodeToCond[op]
	if !ok {
		return 0, 0, false
	}
	if _, is32 := compI32Opcodes[cond]; is32 && compI32Opcodes[cond] == op {
		return Width32, cond, true
	}
	return Width64, cond, true
}
