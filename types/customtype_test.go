package types

import "testing"

func TestSsaCustomTypePointerRoundTrip(t *testing.T) {
	base := Primitive(I32)
	ptr := base.AddPointer()

	if !ptr.IsPointer() {
		t.Fatalf("expected pointer bit to be set")
	}
	if ptr.Base() != I32 {
		t.Fatalf("expected base type I32, got %s", ptr.Base())
	}

	stripped := ptr.StripPointer()
	if stripped.IsPointer() {
		t.Fatalf("expected pointer bit to be cleared")
	}
	if stripped != base {
		t.Fatalf("stripped type %v != original %v", stripped, base)
	}
}

func TestSsaCustomTypeWireSize(t *testing.T) {
	cases := []struct {
		name string
		ty   SsaCustomType
		want int
	}{
		{"i32", Primitive(I32), 1},
		{"void", Primitive(Void), 1},
		{"bytes", NewBytesType(16), 5},
		{"custom", NewCustomType(3), 5},
		{"pointer to bytes", NewBytesType(4).AddPointer(), 5},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.ty.WireSize(); got != c.want {
				t.Fatalf("WireSize() = %d, want %d", got, c.want)
			}
		})
	}
}

func TestRegistrySizeOf(t *testing.T) {
	reg := NewRegistry()
	idx := reg.RegisterType(24)

	size, err := reg.SizeOf(idx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != 24 {
		t.Fatalf("SizeOf() = %d, want 24", size)
	}

	if _, err := reg.SizeOf(idx + 1); err == nil {
		t.Fatalf("expected error for out-of-range index")
	}
}

func TestRegistryDebugFields(t *testing.T) {
	reg := NewRegistry()
	idx := reg.RegisterType(12)

	if err := reg.AttachDebugName(idx, "Point"); err != nil {
		t.Fatalf("AttachDebugName: %v", err)
	}
	if err := reg.AttachDebugElement(idx, "X", 4); err != nil {
		t.Fatalf("AttachDebugElement: %v", err)
	}
	if err := reg.AttachDebugElement(idx, "Y", 4); err != nil {
		t.Fatalf("AttachDebugElement: %v", err)
	}

	fields := reg.DebugFields(idx)
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields[1].Offset != 4 {
		t.Fatalf("expected second field offset 4, got %d", fields[1].Offset)
	}
}

func TestValueSizeCustom(t *testing.T) {
	reg := NewRegistry()
	idx := reg.RegisterType(40)

	ct := NewCustomType(idx)
	size, err := ct.ValueSize(8, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != 40 {
		t.Fatalf("ValueSize() = %d, want 40", size)
	}

	ptrSize, err := ct.AddPointer().ValueSize(8, reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ptrSize != 8 {
		t.Fatalf("pointer ValueSize() = %d, want 8", ptrSize)
	}
}
