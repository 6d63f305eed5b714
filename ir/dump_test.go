package ir

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestDumperRendersExpectedLines decodes a small hand-assembled function and
// checks the Dumper's rendered lines against an exact expected listing.
// go-cmp gives a readable line-by-line diff on mismatch, which is the point
// of reaching for it here rather than a manual loop-and-compare.
func TestDumperRendersExpectedLines(t *testing.T) {
	w := NewWriter(0)
	w.WritePush(0)
	w.WriteConstant(5)
	w.WriteAddI32()
	w.WritePopArg(0)
	w.WriteRet()

	var buf bytes.Buffer
	dumper := NewDumper(&buf)
	dec := NewDecoder(w.Bytes())
	if err := dec.Traverse(dumper); err != nil {
		t.Fatalf("Traverse: %v", err)
	}
	if err := dumper.Err(); err != nil {
		t.Fatalf("Dumper.Err: %v", err)
	}

	got := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	want := []string{
		"push.local 0",
		"const 0x00000005",
		"binop AddI32 i32",
		"pop.arg 0",
		"ret",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("disassembly mismatch (-want +got):\n%s", diff)
	}
}
