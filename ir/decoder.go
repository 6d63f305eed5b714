package ir

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrTruncated is returned when a decode operation runs out of bytes
// mid-instruction.
var ErrTruncated = errors.New("tauir/ir: truncated instruction stream")

// ErrInvalidOpcode is returned when a decoded opcode value has no known
// meaning.
var ErrInvalidOpcode = errors.New("tauir/ir: invalid opcode")

// Visitor receives one callback per decoded instruction. Visit methods
// return false to stop decoding early (e.g. once enough of the stream has
// been inspected) without that being treated as an error.
//
// Callers normally embed BaseVisitor and override only the methods they
// care about. There is one method per operand shape, not one per opcode:
// the decoder itself folds compact forms into the shared method (Push0..3
// and PushN all arrive as VisitPush(index), Const0..4/ConstFF/Const7F/ConstN
// as VisitConst(value)), and BaseVisitor does no forwarding between methods.
type Visitor interface {
	VisitNop() bool
	VisitPush(index uint32) bool
	VisitPushArg(index uint32) bool
	VisitPushPtr(offset uint32) bool
	VisitPushGlobal(index uint32) bool
	VisitPushGlobalExt(index uint32, moduleIndex uint16) bool
	VisitPushGlobalPtr(index uint32) bool
	VisitPop(n uint32) bool
	VisitPopArg(index uint32) bool
	VisitPopPtr(offset uint32) bool
	VisitPopGlobal(index uint32) bool
	VisitPopGlobalExt(index uint32, moduleIndex uint16) bool
	VisitPopGlobalPtr(index uint32) bool
	VisitPopGlobalExtPtr(index uint32, moduleIndex uint16) bool
	VisitPopCount(n uint32) bool
	VisitDup(n uint8) bool
	VisitExpandSX(fromBits, toBits uint8) bool
	VisitExpandZX(fromBits, toBits uint8) bool
	VisitTrunc(fromBits, toBits uint8) bool
	VisitLoad(valueLocalIndex, pointerLocalIndex uint16) bool
	VisitLoadGlobal(globalIndex uint32, pointerLocalIndex uint16) bool
	VisitLoadGlobalExt(globalIndex uint32, pointerLocalIndex, moduleIndex uint16) bool
	VisitStore(pointerLocalIndex, valueLocalIndex uint16) bool
	VisitStoreGlobal(pointerLocalIndex uint16, globalIndex uint32) bool
	VisitStoreGlobalExt(pointerLocalIndex uint16, globalIndex uint32, moduleIndex uint16) bool
	VisitConst(value uint32) bool
	VisitBinOp(op Opcode, width Width) bool
	VisitComp(width Width, cond CompareCondition) bool
	VisitCall(function uint32) bool
	VisitCallExt(function uint32, moduleIndex uint16) bool
	VisitCallInd(functionPointerIndex uint32) bool
	VisitCallIndExt(functionPointerIndex uint32, moduleIndex uint16) bool
	VisitRet() bool
	VisitJumpPoint(op Opcode, offset int32) bool
}

// BaseVisitor implements every Visitor method by doing nothing and
// returning true (continue decoding). Embed it and override individual
// methods, exactly as IrVisitor.hpp's default stubs behave.
type BaseVisitor struct{}

func (BaseVisitor) VisitNop() bool                                       { return true }
func (BaseVisitor) VisitPush(uint32) bool                                { return true }
func (BaseVisitor) VisitPushArg(uint32) bool                             { return true }
func (BaseVisitor) VisitPushPtr(uint32) bool                             { return true }
func (BaseVisitor) VisitPushGlobal(uint32) bool                         { return true }
func (BaseVisitor) VisitPushGlobalExt(uint32, uint16) bool               { return true }
func (BaseVisitor) VisitPushGlobalPtr(uint32) bool                       { return true }
func (BaseVisitor) VisitPop(uint32) bool                                 { return true }
func (BaseVisitor) VisitPopArg(uint32) bool                              { return true }
func (BaseVisitor) VisitPopPtr(uint32) bool                              { return true }
func (BaseVisitor) VisitPopGlobal(uint32) bool                           { return true }
func (BaseVisitor) VisitPopGlobalExt(uint32, uint16) bool                 { return true }
func (BaseVisitor) VisitPopGlobalPtr(uint32) bool                         { return true }
func (BaseVisitor) VisitPopGlobalExtPtr(uint32, uint16) bool              { return true }
func (BaseVisitor) VisitPopCount(uint32) bool                            { return true }
func (BaseVisitor) VisitDup(uint8) bool                                  { return true }
func (BaseVisitor) VisitExpandSX(uint8, uint8) bool                      { return true }
func (BaseVisitor) VisitExpandZX(uint8, uint8) bool                      { return true }
func (BaseVisitor) VisitTrunc(uint8, uint8) bool                         { return true }
func (BaseVisitor) VisitLoad(uint16, uint16) bool                        { return true }
func (BaseVisitor) VisitLoadGlobal(uint32, uint16) bool                   { return true }
func (BaseVisitor) VisitLoadGlobalExt(uint32, uint16, uint16) bool        { return true }
func (BaseVisitor) VisitStore(uint16, uint16) bool                       { return true }
func (BaseVisitor) VisitStoreGlobal(uint16, uint32) bool                  { return true }
func (BaseVisitor) VisitStoreGlobalExt(uint16, uint32, uint16) bool       { return true }
func (BaseVisitor) VisitConst(uint32) bool                               { return true }
func (BaseVisitor) VisitBinOp(Opcode, Width) bool                        { return true }
func (BaseVisitor) VisitComp(Width, CompareCondition) bool                { return true }
func (BaseVisitor) VisitCall(uint32) bool                                { return true }
func (BaseVisitor) VisitCallExt(uint32, uint16) bool                     { return true }
func (BaseVisitor) VisitCallInd(uint32) bool                             { return true }
func (BaseVisitor) VisitCallIndExt(uint32, uint16) bool                  { return true }
func (BaseVisitor) VisitRet() bool                                       { return true }
func (BaseVisitor) VisitJumpPoint(Opcode, int32) bool                    { return true }

// Decoder walks an encoded IR instruction stream, invoking a Visitor once
// per instruction.
type Decoder struct {
	code []byte
	pos  int
}

// NewDecoder returns a Decoder over code.
func NewDecoder(code []byte) *Decoder {
	return &Decoder{code: code}
}

// Pos returns the current byte offset into the stream.
func (d *Decoder) Pos() int { return d.pos }

// Done reports whether the stream has been fully consumed.
func (d *Decoder) Done() bool { return d.pos >= len(d.code) }

// Seek repositions the decoder to byte offset pos, used by the reference
// emulator to follow Jump/JumpTrue/JumpFalse targets. Unlike the SSA
// decoder, IR instructions carry no decode-order-dependent state, so no
// counter needs to be restored alongside the position.
func (d *Decoder) Seek(pos int) { d.pos = pos }

func (d *Decoder) need(n int) error {
	if d.pos+n > len(d.code) {
		return errors.Wrapf(ErrTruncated, "at offset %d need %d bytes, have %d", d.pos, n, len(d.code)-d.pos)
	}
	return nil
}

func (d *Decoder) readU8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.code[d.pos]
	d.pos++
	return v, nil
}

func (d *Decoder) readU16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.code[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *Decoder) readU32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.code[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *Decoder) readI32() (int32, error) {
	v, err := d.readU32()
	return int32(v), err
}

// readOpcode decodes one opcode value, handling the two-byte high-bit
// encoding, matching IrVisitor.hpp's Traverse loop.
func (d *Decoder) readOpcode() (Opcode, error) {
	first, err := d.readU8()
	if err != nil {
		return 0, err
	}
	if first&0x80 == 0 {
		return Opcode(first), nil
	}
	second, err := d.readU8()
	if err != nil {
		return 0, err
	}
	return Opcode(uint16(first)<<8 | uint16(second)), nil
}

// Traverse decodes instructions one at a time, calling v for each, until
// the stream is exhausted, v returns false, or a decode error occurs.
func (d *Decoder) Traverse(v Visitor) error {
	for !d.Done() {
		start := d.pos
		op, err := d.readOpcode()
		if err != nil {
			return err
		}

		cont, err := d.dispatch(op, v)
		if err != nil {
			return errors.Wrapf(err, "decoding %s at offset %d", op, start)
		}
		if !cont {
			return nil
		}
	}
	return nil
}

func (d *Decoder) dispatch(op Opcode, v Visitor) (bool, error) {
	switch op {
	case OpNop:
		return v.VisitNop(), nil
	case OpPush0:
		return v.VisitPush(0), nil
	case OpPush1:
		return v.VisitPush(1), nil
	case OpPush2:
		return v.VisitPush(2), nil
	case OpPush3:
		return v.VisitPush(3), nil
	case OpPushN:
		index, err := d.readU32()
		if err != nil {
			return false, err
		}
		return v.VisitPush(index), nil
	case OpPushArg0:
		return v.VisitPushArg(0), nil
	case OpPushArg1:
		return v.VisitPushArg(1), nil
	case OpPushArg2:
		return v.VisitPushArg(2), nil
	case OpPushArg3:
		return v.VisitPushArg(3), nil
	case OpPushArgN:
		index, err := d.readU32()
		if err != nil {
			return false, err
		}
		return v.VisitPushArg(index), nil
	case OpPushPtr:
		offset, err := d.readU32()
		if err != nil {
			return false, err
		}
		return v.VisitPushPtr(offset), nil
	case OpPushGlobal:
		index, err := d.readU32()
		if err != nil {
			return false, err
		}
		return v.VisitPushGlobal(index), nil
	case OpPushGlobalExt:
		index, err := d.readU32()
		if err != nil {
			return false, err
		}
		mod, err := d.readU16()
		if err != nil {
			return false, err
		}
		return v.VisitPushGlobalExt(index, mod), nil
	case OpPushGlobalPtr:
		index, err := d.readU32()
		if err != nil {
			return false, err
		}
		return v.VisitPushGlobalPtr(index), nil
	case OpPop0:
		return v.VisitPop(0), nil
	case OpPop1:
		return v.VisitPop(1), nil
	case OpPop2:
		return v.VisitPop(2), nil
	case OpPop3:
		return v.VisitPop(3), nil
	case OpPopN:
		n, err := d.readU32()
		if err != nil {
			return false, err
		}
		return v.VisitPop(n), nil
	case OpPopArg0:
		return v.VisitPopArg(0), nil
	case OpPopArg1:
		return v.VisitPopArg(1), nil
	case OpPopArg2:
		return v.VisitPopArg(2), nil
	case OpPopArg3:
		return v.VisitPopArg(3), nil
	case OpPopArgN:
		index, err := d.readU32()
		if err != nil {
			return false, err
		}
		return v.VisitPopArg(index), nil
	case OpPopPtr:
		offset, err := d.readU32()
		if err != nil {
			return false, err
		}
		return v.VisitPopPtr(offset), nil
	case OpPopGlobal:
		index, err := d.readU32()
		if err != nil {
			return false, err
		}
		return v.VisitPopGlobal(index), nil
	case OpPopGlobalExt:
		index, err := d.readU32()
		if err != nil {
			return false, err
		}
		mod, err := d.readU16()
		if err != nil {
			return false, err
		}
		return v.VisitPopGlobalExt(index, mod), nil
	case OpPopGlobalPtr:
		index, err := d.readU32()
		if err != nil {
			return false, err
		}
		return v.VisitPopGlobalPtr(index), nil
	case OpPopGlobalExtPtr:
		index, err := d.readU32()
		if err != nil {
			return false, err
		}
		mod, err := d.readU16()
		if err != nil {
			return false, err
		}
		return v.VisitPopGlobalExtPtr(index, mod), nil
	case OpPopCount:
		n, err := d.readU32()
		if err != nil {
			return false, err
		}
		return v.VisitPopCount(n), nil
	case OpDup1:
		return v.VisitDup(1), nil
	case OpDup2:
		return v.VisitDup(2), nil
	case OpDup4:
		return v.VisitDup(4), nil
	case OpDup8:
		return v.VisitDup(8), nil
	case OpExpandSX12:
		return v.VisitExpandSX(1, 2), nil
	case OpExpandSX14:
		return v.VisitExpandSX(1, 4), nil
	case OpExpandSX18:
		return v.VisitExpandSX(1, 8), nil
	case OpExpandSX24:
		return v.VisitExpandSX(2, 4), nil
	case OpExpandSX28:
		return v.VisitExpandSX(2, 8), nil
	case OpExpandSX48:
		return v.VisitExpandSX(4, 8), nil
	case OpExpandZX12:
		return v.VisitExpandZX(1, 2), nil
	case OpExpandZX14:
		return v.VisitExpandZX(1, 4), nil
	case OpExpandZX18:
		return v.VisitExpandZX(1, 8), nil
	case OpExpandZX24:
		return v.VisitExpandZX(2, 4), nil
	case OpExpandZX28:
		return v.VisitExpandZX(2, 8), nil
	case OpExpandZX48:
		return v.VisitExpandZX(4, 8), nil
	case OpTrunc84:
		return v.VisitTrunc(8, 4), nil
	case OpTrunc82:
		return v.VisitTrunc(8, 2), nil
	case OpTrunc81:
		return v.VisitTrunc(8, 1), nil
	case OpTrunc42:
		return v.VisitTrunc(4, 2), nil
	case OpTrunc41:
		return v.VisitTrunc(4, 1), nil
	case OpTrunc21:
		return v.VisitTrunc(2, 1), nil
	case OpLoad:
		valueLocal, err := d.readU16()
		if err != nil {
			return false, err
		}
		ptrLocal, err := d.readU16()
		if err != nil {
			return false, err
		}
		return v.VisitLoad(valueLocal, ptrLocal), nil
	case OpLoadGlobal:
		index, err := d.readU32()
		if err != nil {
			return false, err
		}
		ptrLocal, err := d.readU16()
		if err != nil {
			return false, err
		}
		return v.VisitLoadGlobal(index, ptrLocal), nil
	case OpLoadGlobalExt:
		index, err := d.readU32()
		if err != nil {
			return false, err
		}
		ptrLocal, err := d.readU16()
		if err != nil {
			return false, err
		}
		mod, err := d.readU16()
		if err != nil {
			return false, err
		}
		return v.VisitLoadGlobalExt(index, ptrLocal, mod), nil
	case OpStore:
		ptrLocal, err := d.readU16()
		if err != nil {
			return false, err
		}
		valueLocal, err := d.readU16()
		if err != nil {
			return false, err
		}
		return v.VisitStore(ptrLocal, valueLocal), nil
	case OpStoreGlobal:
		ptrLocal, err := d.readU16()
		if err != nil {
			return false, err
		}
		index, err := d.readU32()
		if err != nil {
			return false, err
		}
		return v.VisitStoreGlobal(ptrLocal, index), nil
	case OpStoreGlobalExt:
		ptrLocal, err := d.readU16()
		if err != nil {
			return false, err
		}
		index, err := d.readU32()
		if err != nil {
			return false, err
		}
		mod, err := d.readU16()
		if err != nil {
			return false, err
		}
		return v.VisitStoreGlobalExt(ptrLocal, index, mod), nil
	case OpConst0:
		return v.VisitConst(0), nil
	case OpConst1:
		return v.VisitConst(1), nil
	case OpConst2:
		return v.VisitConst(2), nil
	case OpConst3:
		return v.VisitConst(3), nil
	case OpConst4:
		return v.VisitConst(4), nil
	case OpConstFF:
		return v.VisitConst(0xFFFFFFFF), nil
	case OpConst7F:
		return v.VisitConst(0x7FFFFFFF), nil
	case OpConstN:
		value, err := d.readU32()
		if err != nil {
			return false, err
		}
		return v.VisitConst(value), nil
	case OpAddI32:
		return v.VisitBinOp(op, Width32), nil
	case OpAddI64:
		return v.VisitBinOp(op, Width64), nil
	case OpSubI32:
		return v.VisitBinOp(op, Width32), nil
	case OpSubI64:
		return v.VisitBinOp(op, Width64), nil
	case OpMulI32:
		return v.VisitBinOp(op, Width32), nil
	case OpMulI64:
		return v.VisitBinOp(op, Width64), nil
	case OpDivI32:
		return v.VisitBinOp(op, Width32), nil
	case OpDivI64:
		return v.VisitBinOp(op, Width64), nil
	case OpCall:
		function, err := d.readU32()
		if err != nil {
			return false, err
		}
		return v.VisitCall(function), nil
	case OpCallExt:
		function, err := d.readU32()
		if err != nil {
			return false, err
		}
		mod, err := d.readU16()
		if err != nil {
			return false, err
		}
		return v.VisitCallExt(function, mod), nil
	case OpCallInd:
		functionPointerIndex, err := d.readU32()
		if err != nil {
			return false, err
		}
		return v.VisitCallInd(functionPointerIndex), nil
	case OpCallIndExt:
		functionPointerIndex, err := d.readU32()
		if err != nil {
			return false, err
		}
		mod, err := d.readU16()
		if err != nil {
			return false, err
		}
		return v.VisitCallIndExt(functionPointerIndex, mod), nil
	case OpRet:
		return v.VisitRet(), nil
	case OpJump:
		offset, err := d.readI32()
		if err != nil {
			return false, err
		}
		return v.VisitJumpPoint(op, offset), nil
	case OpJumpTrue:
		offset, err := d.readI32()
		if err != nil {
			return false, err
		}
		return v.VisitJumpPoint(op, offset), nil
	case OpJumpFalse:
		offset, err := d.readI32()
		if err != nil {
			return false, err
		}
		return v.VisitJumpPoint(op, offset), nil
	default:
		if width, cond, ok := DecodeCompOpcode(op); ok {
			return v.VisitComp(width, cond), nil
		}
		return false, errors.Wrapf(ErrInvalidOpcode, "0x%04X", uint16(op))
	}
}
