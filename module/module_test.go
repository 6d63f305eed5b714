package module

import (
	"testing"

	"github.com/hyfloac/TauIR-sub000/types"
)

func TestMangleDemangleRoundTrip(t *testing.T) {
	args := []FunctionArgument{
		{IsRegister: true, RegisterOrStackOffset: 1},
		{IsRegister: false, RegisterOrStackOffset: 16},
		{IsRegister: true, RegisterOrStackOffset: 2},
	}
	name := MangleFunctionName(args)
	if name != "A0:A1S16A2" {
		t.Fatalf("MangleFunctionName = %q", name)
	}

	got, err := DemangleFunctionName(name)
	if err != nil {
		t.Fatalf("DemangleFunctionName: %v", err)
	}
	if len(got) != len(args) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(args))
	}
	for i := range args {
		if got[i] != args[i] {
			t.Fatalf("arg[%d] = %+v, want %+v", i, got[i], args[i])
		}
	}
}

func TestDemangleMalformedName(t *testing.T) {
	if _, err := DemangleFunctionName("no-colon-here"); err == nil {
		t.Fatalf("expected error for missing colon")
	}
	if _, err := DemangleFunctionName("A0:X1"); err == nil {
		t.Fatalf("expected error for unknown argument kind byte")
	}
}

func TestModuleAddFunctionAndLinkage(t *testing.T) {
	m := NewModule("main")
	fn := NewFunction("add", []byte{1, 2, 3}, []types.SsaCustomType{types.Primitive(types.I32)}, nil, nil, FunctionFlags{})
	idx := m.AddFunction(fn)

	got, gotIdx, ok := m.FunctionByName("add")
	if !ok || got != fn || gotIdx != idx {
		t.Fatalf("FunctionByName lookup failed: got=%v idx=%d ok=%v", got, gotIdx, ok)
	}
	if fn.Module() != m {
		t.Fatalf("fn.Module() did not get wired to owning module")
	}

	dep := NewModule("libc")
	linkIdx := m.AddLinkage(dep)
	resolved, ok := m.ResolveLinkage(linkIdx)
	if !ok || resolved != dep {
		t.Fatalf("ResolveLinkage failed: resolved=%v ok=%v", resolved, ok)
	}
}
