// Package module models a loaded unit of compiled code: its functions,
// their locals/arguments, and the linkage between modules that external
// calls resolve through.
package module

import (
	"github.com/google/uuid"
	"github.com/hyfloac/TauIR-sub000/types"
)

// InlineControl mirrors the per-function inlining directive.
type InlineControl uint32

const (
	InlineDefault InlineControl = iota
	InlineNever
	InlineForce
	InlineHint
)

// CallingConvention identifies the ABI a function expects when it is
// called as a native pointer rather than interpreted TauIR.
type CallingConvention uint32

const (
	CallConvDefault CallingConvention = iota
	CallConvMS64
	CallConvItanium64
	CallConvCdecl
	CallConvStdCall
	CallConvFastCall
	CallConvVectorCall
)

// OptimizationControl mirrors the per-function optimizer directive.
type OptimizationControl uint32

const (
	OptimizeDefault OptimizationControl = iota
	OptimizeNever
	OptimizeForce
	OptimizeHint
)

// FunctionFlags packs the three per-function directives, mirroring the
// original bitfield union.
type FunctionFlags struct {
	Inline      InlineControl
	CallConv    CallingConvention
	Optimize    OptimizationControl
}

// FunctionArgument describes where one argument lives in the native
// calling convention: a register slot or a stack offset.
type FunctionArgument struct {
	IsRegister            bool
	RegisterOrStackOffset uint64
}

// Function is one compiled function within a Module: its stack-IR code,
// local-variable layout, declared arguments, and optimizer attachments.
type Function struct {
	name      string
	code      []byte
	localSize uint64
	// LocalTypes holds one entry per local variable; LocalOffsets holds
	// one entry per local after the first (the first local always starts
	// at offset zero and is therefore omitted), mirroring Function.hpp.
	localTypes   []types.SsaCustomType
	localOffsets []uint64
	arguments    []FunctionArgument
	flags        FunctionFlags

	module *Module

	// attachments replaces the original's intrusive RTTI-linked-list
	// FunctionAttachment chain with a keyed cache: each optimizer pass
	// attaches results under its own string key instead of subclassing a
	// common base and walking a linked list to find a type match.
	attachments map[string]any
}

// NewFunction constructs a Function from its code and declared layout.
// localOffsets must have len(localTypes)-1 entries (or be empty when
// localTypes has 0 or 1 entries), matching the original layout
// convention.
func NewFunction(name string, code []byte, localTypes []types.SsaCustomType, localOffsets []uint64, arguments []FunctionArgument, flags FunctionFlags) *Function {
	localSize := uint64(0)
	if len(localOffsets) > 0 {
		localSize = localOffsets[len(localOffsets)-1]
	}
	return &Function{
		name:         name,
		code:         code,
		localSize:    localSize,
		localTypes:   localTypes,
		localOffsets: localOffsets,
		arguments:    arguments,
		flags:        flags,
		attachments:  make(map[string]any),
	}
}

func (f *Function) Name() string                          { return f.name }
func (f *Function) Code() []byte                          { return f.code }
func (f *Function) SetCode(code []byte)                   { f.code = code }
func (f *Function) LocalSize() uint64                     { return f.localSize }
func (f *Function) LocalTypes() []types.SsaCustomType      { return f.localTypes }
func (f *Function) LocalOffsets() []uint64                 { return f.localOffsets }
func (f *Function) Arguments() []FunctionArgument          { return f.arguments }
func (f *Function) Flags() FunctionFlags                   { return f.flags }
func (f *Function) Module() *Module                        { return f.module }
func (f *Function) setModule(m *Module)                    { f.module = m }

// Attach stores v under key, replacing any prior value. Typical keys are
// optimizer-pass names, e.g. "opto.code" for the lowered, optimized code
// an inlining/constprop pipeline produced for this function.
func (f *Function) Attach(key string, v any) { f.attachments[key] = v }

// FindAttachment returns the value previously stored under key, if any.
func (f *Function) FindAttachment(key string) (any, bool) {
	v, ok := f.attachments[key]
	return v, ok
}

// RemoveAttachment deletes the value stored under key, if any.
func (f *Function) RemoveAttachment(key string) { delete(f.attachments, key) }

// Module is a linkable unit of compiled functions. External calls name a
// function by index within another Module resolved through the linkage
// table supplied to the loader.
type Module struct {
	id        uuid.UUID
	name      string
	functions []*Function
	byName    map[string]int
	registry  *types.Registry
	linkage   []*Module
	// isNative marks a host-provided module whose functions are native
	// call targets rather than interpreted TauIR: such functions are
	// never eligible for lifting or inlining.
	isNative bool
}

// NewModule constructs an empty Module with a fresh identity.
func NewModule(name string) *Module {
	return &Module{
		id:       uuid.New(),
		name:     name,
		byName:   make(map[string]int),
		registry: types.NewRegistry(),
	}
}

// NewNativeModule constructs an empty Module flagged as native: a
// host-provided collection of function stubs whose bodies are native call
// targets rather than TauIR bytecode.
func NewNativeModule(name string) *Module {
	m := NewModule(name)
	m.isNative = true
	return m
}

func (m *Module) ID() uuid.UUID             { return m.id }
func (m *Module) Name() string              { return m.name }
func (m *Module) Registry() *types.Registry { return m.registry }
func (m *Module) Functions() []*Function    { return m.functions }
func (m *Module) Linkage() []*Module        { return m.linkage }
func (m *Module) IsNative() bool            { return m.isNative }

// AddFunction appends fn to the module and indexes it by name, returning
// its function index.
func (m *Module) AddFunction(fn *Function) int {
	fn.setModule(m)
	idx := len(m.functions)
	m.functions = append(m.functions, fn)
	m.byName[fn.name] = idx
	return idx
}

// Function returns the function at the given index, or nil if out of
// range.
func (m *Module) Function(index int) *Function {
	if index < 0 || index >= len(m.functions) {
		return nil
	}
	return m.functions[index]
}

// FunctionByName looks up a function by its (possibly mangled) name.
func (m *Module) FunctionByName(name string) (*Function, int, bool) {
	idx, ok := m.byName[name]
	if !ok {
		return nil, 0, false
	}
	return m.functions[idx], idx, true
}

// AddLinkage registers dep as an externally-callable module and returns
// its linkage-table index, used by CallExt/CallIndExt's module index
// operand.
func (m *Module) AddLinkage(dep *Module) uint16 {
	m.linkage = append(m.linkage, dep)
	return uint16(len(m.linkage) - 1)
}

// ResolveLinkage returns the module registered at linkage index idx.
func (m *Module) ResolveLinkage(idx uint16) (*Module, bool) {
	if int(idx) >= len(m.linkage) {
		return nil, false
	}
	return m.linkage[idx], true
}
