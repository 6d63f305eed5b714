package ir

import "encoding/binary"

// defaultInitialBufferSize matches IrWriter's default constructor argument.
const defaultInitialBufferSize = 64

// Writer accumulates an encoded IR instruction stream into a growable byte
// buffer. The buffer grows through Go's append, with no explicit growth
// factor of its own, and every multi-byte value is written little-endian, except opcodes
// themselves which are written big-endian-within-the-pair (high byte
// first) whenever two bytes are required.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with the given initial buffer capacity. A
// size of 0 selects the teacher-style default of 64 bytes.
func NewWriter(initialBufferSize int) *Writer {
	if initialBufferSize <= 0 {
		initialBufferSize = defaultInitialBufferSize
	}
	return &Writer{buf: make([]byte, 0, initialBufferSize)}
}

// Bytes returns the encoded instruction stream written so far.
func (w *Writer) Bytes() []byte { return w.buf }

// Size returns the number of bytes written so far.
func (w *Writer) Size() int { return len(w.buf) }

func (w *Writer) writeRaw(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *Writer) writeU8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) writeU16(v uint16) { w.writeRaw(binary.LittleEndian.AppendUint16(nil, v)) }
func (w *Writer) writeU32(v uint32) { w.writeRaw(binary.LittleEndian.AppendUint32(nil, v)) }
func (w *Writer) writeU64(v uint64) { w.writeRaw(binary.LittleEndian.AppendUint64(nil, v)) }
func (w *Writer) writeI32(v int32)  { w.writeU32(uint32(v)) }

// writeOpcode writes o, using the two-byte high-byte-first encoding when
// o.IsTwoByte(), otherwise a single byte. This is the Go equivalent of
// IrWriter.cpp's WriteOpcode.
func (w *Writer) writeOpcode(o Opcode) {
	if o.IsTwoByte() {
		w.writeU8(uint8(uint16(o) >> 8))
		w.writeU8(uint8(uint16(o)))
		return
	}
	w.writeU8(uint8(o))
}

func (w *Writer) WriteNop() { w.writeOpcode(OpNop) }

// WritePush encodes a push of a local slot by index, using the compact
// Push0..3 forms for small indices and PushN otherwise.
func (w *Writer) WritePush(index uint32) {
	switch index {
	case 0:
		w.writeOpcode(OpPush0)
	case 1:
		w.writeOpcode(OpPush1)
	case 2:
		w.writeOpcode(OpPush2)
	case 3:
		w.writeOpcode(OpPush3)
	default:
		w.writeOpcode(OpPushN)
		w.writeU32(index)
	}
}

// WritePushArg encodes a push of an argument slot by index.
func (w *Writer) WritePushArg(index uint32) {
	switch index {
	case 0:
		w.writeOpcode(OpPushArg0)
	case 1:
		w.writeOpcode(OpPushArg1)
	case 2:
		w.writeOpcode(OpPushArg2)
	case 3:
		w.writeOpcode(OpPushArg3)
	default:
		w.writeOpcode(OpPushArgN)
		w.writeU32(index)
	}
}

func (w *Writer) WritePushPtr(offset uint32) {
	w.writeOpcode(OpPushPtr)
	w.writeU32(offset)
}

func (w *Writer) WritePushGlobal(index uint32) {
	w.writeOpcode(OpPushGlobal)
	w.writeU32(index)
}

func (w *Writer) WritePushGlobalExt(index uint32, moduleIndex uint16) {
	w.writeOpcode(OpPushGlobalExt)
	w.writeU32(index)
	w.writeU16(moduleIndex)
}

func (w *Writer) WritePushGlobalPtr(index uint32) {
	w.writeOpcode(OpPushGlobalPtr)
	w.writeU32(index)
}

// WritePop encodes a pop of the top of the operand stack into local slot
// n, using the compact Pop0..3 forms for slots 0..3 and PopN otherwise.
func (w *Writer) WritePop(n uint32) {
	switch n {
	case 0:
		w.writeOpcode(OpPop0)
	case 1:
		w.writeOpcode(OpPop1)
	case 2:
		w.writeOpcode(OpPop2)
	case 3:
		w.writeOpcode(OpPop3)
	default:
		w.writeOpcode(OpPopN)
		w.writeU32(n)
	}
}

func (w *Writer) WritePopArg(index uint32) {
	switch index {
	case 0:
		w.writeOpcode(OpPopArg0)
	case 1:
		w.writeOpcode(OpPopArg1)
	case 2:
		w.writeOpcode(OpPopArg2)
	case 3:
		w.writeOpcode(OpPopArg3)
	default:
		w.writeOpcode(OpPopArgN)
		w.writeU32(index)
	}
}

func (w *Writer) WritePopPtr(offset uint32) {
	w.writeOpcode(OpPopPtr)
	w.writeU32(offset)
}

func (w *Writer) WritePopGlobal(index uint32) {
	w.writeOpcode(OpPopGlobal)
	w.writeU32(index)
}

func (w *Writer) WritePopGlobalExt(index uint32, moduleIndex uint16) {
	w.writeOpcode(OpPopGlobalExt)
	w.writeU32(index)
	w.writeU16(moduleIndex)
}

func (w *Writer) WritePopGlobalPtr(index uint32) {
	w.writeOpcode(OpPopGlobalPtr)
	w.writeU32(index)
}

func (w *Writer) WritePopGlobalExtPtr(index uint32, moduleIndex uint16) {
	w.writeOpcode(OpPopGlobalExtPtr)
	w.writeU32(index)
	w.writeU16(moduleIndex)
}

func (w *Writer) WritePopCount(n uint32) {
	w.writeOpcode(OpPopCount)
	w.writeU32(n)
}

// WriteDup encodes a duplication of the top n bytes (n must be 1, 2, 4, or 8).
func (w *Writer) WriteDup(n uint8) {
	switch n {
	case 1:
		w.writeOpcode(OpDup1)
	case 2:
		w.writeOpcode(OpDup2)
	case 4:
		w.writeOpcode(OpDup4)
	case 8:
		w.writeOpcode(OpDup8)
	}
}

// WriteExpandSX encodes a sign extension from fromBits to toBits. Both
// widths are byte counts (1, 2, 4 or 8), as in the tables below.
func (w *Writer) WriteExpandSX(fromBits, toBits uint8) {
	w.writeOpcode(expandOpcode(expandSXOps, fromBits, toBits))
}

// WriteExpandZX encodes a zero extension from fromBits to toBits, both
// byte counts.
func (w *Writer) WriteExpandZX(fromBits, toBits uint8) {
	w.writeOpcode(expandOpcode(expandZXOps, fromBits, toBits))
}

// WriteTrunc encodes a truncation from fromBits to toBits, both byte
// counts.
func (w *Writer) WriteTrunc(fromBits, toBits uint8) {
	w.writeOpcode(expandOpcode(truncOps, fromBits, toBits))
}

type widthPair struct{ from, to uint8 }

var expandSXOps = map[widthPair]Opcode{
	{1, 2}: OpExpandSX12, {1, 4}: OpExpandSX14, {1, 8}: OpExpandSX18,
	{2, 4}: OpExpandSX24, {2, 8}: OpExpandSX28, {4, 8}: OpExpandSX48,
}

var expandZXOps = map[widthPair]Opcode{
	{1, 2}: OpExpandZX12, {1, 4}: OpExpandZX14, {1, 8}: OpExpandZX18,
	{2, 4}: OpExpandZX24, {2, 8}: OpExpandZX28, {4, 8}: OpExpandZX48,
}

var truncOps = map[widthPair]Opcode{
	{8, 4}: OpTrunc84, {8, 2}: OpTrunc82, {8, 1}: OpTrunc81,
	{4, 2}: OpTrunc42, {4, 1}: OpTrunc41, {2, 1}: OpTrunc21,
}

func expandOpcode(table map[widthPair]Opcode, from, to uint8) Opcode {
	return table[widthPair{from, to}]
}

// WriteLoad encodes a dereference of the pointer held in local
// pointerLocalIndex, storing the loaded value into local valueLocalIndex.
func (w *Writer) WriteLoad(valueLocalIndex, pointerLocalIndex uint16) {
	w.writeOpcode(OpLoad)
	w.writeU16(valueLocalIndex)
	w.writeU16(pointerLocalIndex)
}

// WriteStore encodes a store of the value held in local valueLocalIndex
// through the pointer held in local pointerLocalIndex.
func (w *Writer) WriteStore(pointerLocalIndex, valueLocalIndex uint16) {
	w.writeOpcode(OpStore)
	w.writeU16(pointerLocalIndex)
	w.writeU16(valueLocalIndex)
}

func (w *Writer) WriteLoadGlobal(valueGlobalIndex uint32, pointerLocalIndex uint16) {
	w.writeOpcode(OpLoadGlobal)
	w.writeU32(valueGlobalIndex)
	w.writeU16(pointerLocalIndex)
}

func (w *Writer) WriteLoadGlobalExt(valueGlobalIndex uint32, pointerLocalIndex, moduleIndex uint16) {
	w.writeOpcode(OpLoadGlobalExt)
	w.writeU32(valueGlobalIndex)
	w.writeU16(pointerLocalIndex)
	w.writeU16(moduleIndex)
}

func (w *Writer) WriteStoreGlobal(pointerLocalIndex uint16, valueGlobalIndex uint32) {
	w.writeOpcode(OpStoreGlobal)
	w.writeU16(pointerLocalIndex)
	w.writeU32(valueGlobalIndex)
}

func (w *Writer) WriteStoreGlobalExt(pointerLocalIndex uint16, valueGlobalIndex uint32, moduleIndex uint16) {
	w.writeOpcode(OpStoreGlobalExt)
	w.writeU16(pointerLocalIndex)
	w.writeU32(valueGlobalIndex)
	w.writeU16(moduleIndex)
}

// WriteConstant encodes a constant push, using the compact Const0..4/FF/7F
// forms when value matches one of those sentinels exactly, otherwise the
// full 32-bit ConstN form.
func (w *Writer) WriteConstant(value uint32) {
	switch value {
	case 0:
		w.writeOpcode(OpConst0)
	case 1:
		w.writeOpcode(OpConst1)
	case 2:
		w.writeOpcode(OpConst2)
	case 3:
		w.writeOpcode(OpConst3)
	case 4:
		w.writeOpcode(OpConst4)
	case 0xFFFFFFFF:
		w.writeOpcode(OpConstFF)
	case 0x7FFFFFFF:
		w.writeOpcode(OpConst7F)
	default:
		w.writeOpcode(OpConstN)
		w.writeU32(value)
	}
}

func (w *Writer) WriteAddI32() { w.writeOpcode(OpAddI32) }
func (w *Writer) WriteAddI64() { w.writeOpcode(OpAddI64) }
func (w *Writer) WriteSubI32() { w.writeOpcode(OpSubI32) }
func (w *Writer) WriteSubI64() { w.writeOpcode(OpSubI64) }
func (w *Writer) WriteMulI32() { w.writeOpcode(OpMulI32) }
func (w *Writer) WriteMulI64() { w.writeOpcode(OpMulI64) }
func (w *Writer) WriteDivI32() { w.writeOpcode(OpDivI32) }
func (w *Writer) WriteDivI64() { w.writeOpcode(OpDivI64) }

func (w *Writer) WriteCompI32(cond CompareCondition) {
	op, _ := CompOpcode(Width32, cond)
	w.writeOpcode(op)
}

func (w *Writer) WriteCompI64(cond CompareCondition) {
	op, _ := CompOpcode(Width64, cond)
	w.writeOpcode(op)
}

func (w *Writer) WriteCall(function uint32) {
	w.writeOpcode(OpCall)
	w.writeU32(function)
}

func (w *Writer) WriteCallExt(function uint32, moduleIndex uint16) {
	w.writeOpcode(OpCallExt)
	w.writeU32(function)
	w.writeU16(moduleIndex)
}

func (w *Writer) WriteCallInd(functionPointerIndex uint32) {
	w.writeOpcode(OpCallInd)
	w.writeU32(functionPointerIndex)
}

func (w *Writer) WriteCallIndExt(functionPointerIndex uint32, moduleIndex uint16) {
	w.writeOpcode(OpCallIndExt)
	w.writeU32(functionPointerIndex)
	w.writeU16(moduleIndex)
}

func (w *Writer) WriteRet() { w.writeOpcode(OpRet) }

func (w *Writer) WriteJump(offset int32) {
	w.writeOpcode(OpJump)
	w.writeI32(offset)
}

func (w *Writer) WriteJumpTrue(offset int32) {
	w.writeOpcode(OpJumpTrue)
	w.writeI32(offset)
}

func (w *Writer) WriteJumpFalse(offset int32) {
	w.writeOpcode(OpJumpFalse)
	w.writeI32(offset)
}
