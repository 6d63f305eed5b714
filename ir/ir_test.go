package ir

import (
	"fmt"
	"testing"
)

type recordingVisitor struct {
	BaseVisitor
	events []string
}

func (r *recordingVisitor) VisitPush(index uint32) bool {
	r.events = append(r.events, "push")
	return true
}

func (r *recordingVisitor) VisitConst(value uint32) bool {
	r.events = append(r.events, "const")
	return true
}

func (r *recordingVisitor) VisitAddI32() bool {
	r.events = append(r.events, "add")
	return true
}

func (r *recordingVisitor) VisitBinOp(op Opcode, width Width) bool {
	if op == OpAddI32 && width == Width32 {
		r.events = append(r.events, "add")
	}
	return true
}

func (r *recordingVisitor) VisitRet() bool {
	r.events = append(r.events, "ret")
	return true
}

func TestWriterDecoderRoundTrip(t *testing.T) {
	w := NewWriter(0)
	w.WritePush(0)
	w.WriteConstant(5)
	w.WriteAddI32()
	w.WriteRet()

	d := NewDecoder(w.Bytes())
	rv := &recordingVisitor{}
	if err := d.Traverse(rv); err != nil {
		t.Fatalf("Traverse: %v", err)
	}

	want := []string{"push", "const", "add", "ret"}
	if len(rv.events) != len(want) {
		t.Fatalf("events = %v, want %v", rv.events, want)
	}
	for i := range want {
		if rv.events[i] != want[i] {
			t.Fatalf("events[%d] = %q, want %q", i, rv.events[i], want[i])
		}
	}
}

func TestTwoByteOpcodeEncoding(t *testing.T) {
	w := NewWriter(0)
	w.WritePush(100) // PushN is 0x9010, a two-byte opcode

	buf := w.Bytes()
	if len(buf) < 2 {
		t.Fatalf("expected at least 2 bytes, got %d", len(buf))
	}
	if buf[0] != 0x90 || buf[1] != 0x10 {
		t.Fatalf("expected high byte 0x90 then low byte 0x10, got 0x%02X 0x%02X", buf[0], buf[1])
	}
}

func TestCompOpcodeRoundTrip(t *testing.T) {
	w := NewWriter(0)
	w.WriteCompI64(CondGreaterOrEqual)

	d := NewDecoder(w.Bytes())
	var got CompareCondition
	var gotWidth Width
	v := &compVisitor{BaseVisitor{}, &got, &gotWidth}
	if err := d.Traverse(v); err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if got != CondGreaterOrEqual || gotWidth != Width64 {
		t.Fatalf("got (%s, %d), want (%s, %d)", got, gotWidth, CondGreaterOrEqual, Width64)
	}
}

type compVisitor struct {
	BaseVisitor
	cond  *CompareCondition
	width *Width
}

func (c *compVisitor) VisitComp(width Width, cond CompareCondition) bool {
	*c.cond = cond
	*c.width = width
	return true
}

func TestTruncatedStreamErrors(t *testing.T) {
	d := NewDecoder([]byte{0x90}) // PushN opcode high byte with no operand
	if err := d.Traverse(&recordingVisitor{}); err == nil {
		t.Fatalf("expected error decoding truncated stream")
	}
}

// TestCallExtWireLayout pins the mandated operand order for CallExt:
// function (u32) then module (u16), little-endian, after the two-byte
// opcode. A reversed order here silently breaks every module loader.
func TestCallExtWireLayout(t *testing.T) {
	w := NewWriter(0)
	w.WriteCallExt(0x11223344, 0xAABB)

	want := []byte{
		byte(OpCallExt >> 8), byte(OpCallExt),
		0x44, 0x33, 0x22, 0x11,
		0xBB, 0xAA,
	}
	if buf := w.Bytes(); !bytesEqual(buf, want) {
		t.Fatalf("WriteCallExt layout = % X, want % X", buf, want)
	}

	d := NewDecoder(w.Bytes())
	var gotFn uint32
	var gotMod uint16
	v := &callExtVisitor{fn: &gotFn, mod: &gotMod}
	if err := d.Traverse(v); err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if gotFn != 0x11223344 || gotMod != 0xAABB {
		t.Fatalf("decoded (function=0x%X, module=0x%X), want (0x11223344, 0xAABB)", gotFn, gotMod)
	}
}

type callExtVisitor struct {
	BaseVisitor
	fn  *uint32
	mod *uint16
}

func (c *callExtVisitor) VisitCallExt(function uint32, moduleIndex uint16) bool {
	*c.fn = function
	*c.mod = moduleIndex
	return true
}

// TestLoadStoreWireLayout pins the two local-index operands the bare
// Load/Store opcodes carry (IrVisitor.hpp's valueLocalIndex/pointerLocalIndex
// and pointerLocalIndex/valueLocalIndex pairs), not a bare opcode.
func TestLoadStoreWireLayout(t *testing.T) {
	w := NewWriter(0)
	w.WriteLoad(0x0102, 0x0304)
	w.WriteStore(0x0506, 0x0708)

	want := []byte{
		byte(OpLoad),
		0x02, 0x01,
		0x04, 0x03,
		byte(OpStore),
		0x06, 0x05,
		0x08, 0x07,
	}
	if buf := w.Bytes(); !bytesEqual(buf, want) {
		t.Fatalf("Load/Store layout = % X, want % X", buf, want)
	}

	d := NewDecoder(w.Bytes())
	v := &loadStoreVisitor{}
	if err := d.Traverse(v); err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if v.loadValue != 0x0102 || v.loadPointer != 0x0304 {
		t.Fatalf("decoded Load(%d, %d), want (0x0102, 0x0304)", v.loadValue, v.loadPointer)
	}
	if v.storePointer != 0x0506 || v.storeValue != 0x0708 {
		t.Fatalf("decoded Store(%d, %d), want (0x0506, 0x0708)", v.storePointer, v.storeValue)
	}
}

type loadStoreVisitor struct {
	BaseVisitor
	loadValue, loadPointer   uint16
	storePointer, storeValue uint16
}

func (l *loadStoreVisitor) VisitLoad(valueLocalIndex, pointerLocalIndex uint16) bool {
	l.loadValue, l.loadPointer = valueLocalIndex, pointerLocalIndex
	return true
}

func (l *loadStoreVisitor) VisitStore(pointerLocalIndex, valueLocalIndex uint16) bool {
	l.storePointer, l.storeValue = pointerLocalIndex, valueLocalIndex
	return true
}

// TestGlobalFamilyWireLayout pins each Pop/Push-global variant's own
// operand list and ordering: PushGlobalExt/PopGlobalExt write global
// (u32) then module (u16), and each of the four Pop-global opcodes
// decodes through its own dispatch case rather than a shared one that
// silently drops the module index on the Ext variants.
func TestGlobalFamilyWireLayout(t *testing.T) {
	w := NewWriter(0)
	w.WritePushGlobalExt(0xCAFEBABE, 0xBEEF)
	w.WritePopGlobal(0x1)
	w.WritePopGlobalExt(0x2, 0x3)
	w.WritePopGlobalPtr(0x4)
	w.WritePopGlobalExtPtr(0x5, 0x6)

	want := []byte{}
	want = append(want, byte(OpPushGlobalExt>>8), byte(OpPushGlobalExt))
	want = append(want, 0xBE, 0xBA, 0xFE, 0xCA, 0xEF, 0xBE)
	want = append(want, byte(OpPopGlobal>>8), byte(OpPopGlobal))
	want = append(want, 0x01, 0x00, 0x00, 0x00)
	want = append(want, byte(OpPopGlobalExt>>8), byte(OpPopGlobalExt))
	want = append(want, 0x02, 0x00, 0x00, 0x00, 0x03, 0x00)
	want = append(want, byte(OpPopGlobalPtr>>8), byte(OpPopGlobalPtr))
	want = append(want, 0x04, 0x00, 0x00, 0x00)
	want = append(want, byte(OpPopGlobalExtPtr>>8), byte(OpPopGlobalExtPtr))
	want = append(want, 0x05, 0x00, 0x00, 0x00, 0x06, 0x00)

	if buf := w.Bytes(); !bytesEqual(buf, want) {
		t.Fatalf("global family layout = % X, want % X", buf, want)
	}

	d := NewDecoder(w.Bytes())
	v := &globalFamilyVisitor{}
	if err := d.Traverse(v); err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	wantEvents := []string{
		"pushGlobalExt 0xCAFEBABE 0xBEEF",
		"popGlobal 0x1",
		"popGlobalExt 0x2 0x3",
		"popGlobalPtr 0x4",
		"popGlobalExtPtr 0x5 0x6",
	}
	if len(v.events) != len(wantEvents) {
		t.Fatalf("events = %v, want %v", v.events, wantEvents)
	}
	for i := range wantEvents {
		if v.events[i] != wantEvents[i] {
			t.Fatalf("events[%d] = %q, want %q", i, v.events[i], wantEvents[i])
		}
	}
}

type globalFamilyVisitor struct {
	BaseVisitor
	events []string
}

func (g *globalFamilyVisitor) VisitPushGlobalExt(index uint32, moduleIndex uint16) bool {
	g.events = append(g.events, fmt.Sprintf("pushGlobalExt 0x%X 0x%X", index, moduleIndex))
	return true
}

func (g *globalFamilyVisitor) VisitPopGlobal(index uint32) bool {
	g.events = append(g.events, fmt.Sprintf("popGlobal 0x%X", index))
	return true
}

func (g *globalFamilyVisitor) VisitPopGlobalExt(index uint32, moduleIndex uint16) bool {
	g.events = append(g.events, fmt.Sprintf("popGlobalExt 0x%X 0x%X", index, moduleIndex))
	return true
}

func (g *globalFamilyVisitor) VisitPopGlobalPtr(index uint32) bool {
	g.events = append(g.events, fmt.Sprintf("popGlobalPtr 0x%X", index))
	return true
}

func (g *globalFamilyVisitor) VisitPopGlobalExtPtr(index uint32, moduleIndex uint16) bool {
	g.events = append(g.events, fmt.Sprintf("popGlobalExtPtr 0x%X 0x%X", index, moduleIndex))
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestInvalidOpcodeErrors(t *testing.T) {
	// 0xFF is not a known single-byte opcode and has the high bit set, so
	// it is read as the high byte of a two-byte opcode; pair it with a low
	// byte that still does not resolve to anything known.
	d := NewDecoder([]byte{0xFF, 0xFF})
	if err := d.Traverse(&recordingVisitor{}); err == nil {
		t.Fatalf("expected error decoding invalid opcode")
	}
}
