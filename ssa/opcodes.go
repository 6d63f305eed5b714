// Package ssa implements the SSA companion IR: its opcode and binary
// operation tables, a growable-buffer writer with variable-id bookkeeping,
// a frame tracker used while lifting from stack IR, and a visitor-driven
// decoder.
package ssa

import "fmt"

// VarId identifies an SSA value. 0 means "no variable". Values with the
// high bit (0x80000000) set identify argument pseudo-variables, which are
// never produced by the id counter and are never looked up in a
// variable-type map.
type VarId uint32

// ArgumentBit marks a VarId as referring to a function argument slot
// rather than a counter-allocated SSA value.
const ArgumentBit VarId = 0x80000000

// IsArgument reports whether id refers to an argument pseudo-variable.
func (id VarId) IsArgument() bool { return id&ArgumentBit != 0 }

// ArgumentIndex returns the argument slot index encoded in id. Only
// meaningful when IsArgument() is true.
func (id VarId) ArgumentIndex() uint32 { return uint32(id &^ ArgumentBit) }

// ArgumentID builds the VarId for argument slot index.
func ArgumentID(index uint32) VarId { return ArgumentBit | VarId(index) }

// SsaBinaryOperation mirrors original_source's SsaBinaryOperation enum.
type SsaBinaryOperation uint8

const (
	BinAdd              SsaBinaryOperation = 0x00
	BinSub              SsaBinaryOperation = 0x01
	BinMul              SsaBinaryOperation = 0x02
	BinDiv              SsaBinaryOperation = 0x03
	BinRem              SsaBinaryOperation = 0x04
	BinBitShiftLeft     SsaBinaryOperation = 0x05
	BinBitShiftRight    SsaBinaryOperation = 0x06
	BinBarrelShiftLeft  SsaBinaryOperation = 0x07
	BinBarrelShiftRight SsaBinaryOperation = 0x08
	// BinComp is reserved: comparisons always travel through the dedicated
	// Comp{VtoV,VtoI,ItoV} opcodes, never through a BinOp with this kind.
	// Reaching an evaluator with this kind is an unreachable-state bug.
	BinComp SsaBinaryOperation = 0x70
)

func (b SsaBinaryOperation) String() string {
	names := map[SsaBinaryOperation]string{
		BinAdd: "add", BinSub: "sub", BinMul: "mul", BinDiv: "div", BinRem: "rem",
		BinBitShiftLeft: "shl", BinBitShiftRight: "shr",
		BinBarrelShiftLeft: "rotl", BinBarrelShiftRight: "rotr", BinComp: "comp",
	}
	if n, ok := names[b]; ok {
		return n
	}
	return fmt.Sprintf("SsaBinaryOperation(0x%02X)", uint8(b))
}

// SsaOpcode identifies an SSA instruction on the wire. Numeric values
// Nop..Ret are reproduced exactly from original_source's SsaOpcodes.hpp.
// CompVtoV, CompVtoI, CompItoV, and CallIndExt are not present in that
// header despite being fully implemented in SsaVisitor.hpp's decode
// switch; this implementation assigns them the values documented in
// SPEC_FULL.md §4.3 (the CallIndExt value fills the gap left in the call-opcode
// block after Ret, and the three Comp* values follow the BinOp block's
// VtoV/VtoI/ItoV suffix convention).
type SsaOpcode uint16

const (
	SsaNop             SsaOpcode = 0x0000
	SsaLabel           SsaOpcode = 0x0001
	SsaSplit           SsaOpcode = 0x0020
	SsaJoin            SsaOpcode = 0x0021
	SsaAssignImmediate SsaOpcode = 0x0030
	SsaAssignVariable  SsaOpcode = 0x0031
	SsaExpandSX        SsaOpcode = 0x0032
	SsaExpandZX        SsaOpcode = 0x0033
	SsaTrunc           SsaOpcode = 0x0034
	SsaRCast           SsaOpcode = 0x0036
	SsaBCast           SsaOpcode = 0x0037
	SsaLoad            SsaOpcode = 0x0038
	SsaStoreV          SsaOpcode = 0x0039
	SsaComputePtr      SsaOpcode = 0x003A
	SsaStoreI          SsaOpcode = 0x003B
	SsaBranch          SsaOpcode = 0x0040
	SsaBranchCond      SsaOpcode = 0x0041
	SsaCall            SsaOpcode = 0x0042
	SsaCallExt         SsaOpcode = 0x0043
	SsaCallInd         SsaOpcode = 0x0044
	SsaRet             SsaOpcode = 0x0045
	SsaCallIndExt      SsaOpcode = 0x0046
	SsaBinOpVtoV       SsaOpcode = 0x0050
	SsaBinOpVtoI       SsaOpcode = 0x0051
	SsaBinOpItoV       SsaOpcode = 0x0052
	SsaCompVtoV        SsaOpcode = 0x0060
	SsaCompVtoI        SsaOpcode = 0x0061
	SsaCompItoV        SsaOpcode = 0x0062
)

func (o SsaOpcode) String() string {
	names := map[SsaOpcode]string{
		SsaNop: "Nop", SsaLabel: "Label", SsaSplit: "Split", SsaJoin: "Join",
		SsaAssignImmediate: "AssignImmediate", SsaAssignVariable: "AssignVariable",
		SsaExpandSX: "ExpandSX", SsaExpandZX: "ExpandZX", SsaTrunc: "Trunc",
		SsaRCast: "RCast", SsaBCast: "BCast", SsaLoad: "Load", SsaStoreV: "StoreV",
		SsaComputePtr: "ComputePtr", SsaStoreI: "StoreI",
		SsaBranch: "Branch", SsaBranchCond: "BranchCond",
		SsaCall: "Call", SsaCallExt: "CallExt", SsaCallInd: "CallInd",
		SsaCallIndExt: "CallIndExt", SsaRet: "Ret",
		SsaBinOpVtoV: "BinOpVtoV", SsaBinOpVtoI: "BinOpVtoI", SsaBinOpItoV: "BinOpItoV",
		SsaCompVtoV: "CompVtoV", SsaCompVtoI: "CompVtoI", SsaCompItoV: "CompItoV",
	}
	if n, ok := names[o]; ok {
		return n
	}
	return fmt.Sprintf("SsaOpcode(0x%04X)", uint16(o))
}

// IsTwoByte reports whether this opcode's wire encoding uses two bytes.
// Every SsaOpcode value above fits in one byte (≤ 0x7F) today; the method
// exists so the wire format can grow two-byte opcodes the same way the IR
// format does, without changing the writer/decoder's framing logic.
func (o SsaOpcode) IsTwoByte() bool {
	return uint16(o) > 0x7F
}
