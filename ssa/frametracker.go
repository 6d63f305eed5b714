package ssa

// frameInfo is one entry of the operand-frame stack: the SSA variable
// holding the value and its size in bytes, mirroring SsaFrameTracker's
// FrameInfo.
type frameInfo struct {
	Var  VarId
	Size int
}

// FrameTracker tracks SSA variables as IR stack-machine pushes and pops
// are lifted, and resolves local/argument slot indices to the VarId
// currently backing them. It is a direct port of SsaFrameTracker.
type FrameTracker struct {
	frame     []frameInfo
	locals    []VarId
	arguments []VarId
}

// NewFrameTracker returns a FrameTracker for a function with localCount
// locals.
func NewFrameTracker(localCount int) *FrameTracker {
	return &FrameTracker{locals: make([]VarId, localCount)}
}

// PushFrame pushes a new operand-stack entry.
func (f *FrameTracker) PushFrame(v VarId, size int) {
	f.frame = append(f.frame, frameInfo{Var: v, Size: size})
}

// PopFrame pops the most recent operand-stack entry, reporting false when
// the stack is empty.
func (f *FrameTracker) PopFrame() (frameInfo, bool) {
	if len(f.frame) == 0 {
		return frameInfo{}, false
	}
	top := f.frame[len(f.frame)-1]
	f.frame = f.frame[:len(f.frame)-1]
	return top, true
}

// CheckFrame returns the most recent operand-stack entry without popping it.
func (f *FrameTracker) CheckFrame() (frameInfo, bool) {
	if len(f.frame) == 0 {
		return frameInfo{}, false
	}
	return f.frame[len(f.frame)-1], true
}

// Depth returns the number of entries currently on the operand-frame stack.
func (f *FrameTracker) Depth() int { return len(f.frame) }

// SetLocal records the VarId currently backing local slot index.
func (f *FrameTracker) SetLocal(v VarId, index int) {
	for index >= len(f.locals) {
		f.locals = append(f.locals, 0)
	}
	f.locals[index] = v
}

// GetLocal returns the VarId currently backing local slot index.
func (f *FrameTracker) GetLocal(index int) VarId {
	if index >= len(f.locals) {
		return 0
	}
	return f.locals[index]
}

// SetArgument records the VarId currently backing argument slot index (the
// lifter calls it for PopArg and to record a call's result in slot 0).
func (f *FrameTracker) SetArgument(v VarId, index int) {
	for index >= len(f.arguments) {
		f.arguments = append(f.arguments, 0)
	}
	f.arguments[index] = v
}

// GetArgument returns the VarId currently backing argument slot index,
// defaulting to the argument pseudo-id itself if it has never been
// overridden.
func (f *FrameTracker) GetArgument(index int) VarId {
	if index < len(f.arguments) && f.arguments[index] != 0 {
		return f.arguments[index]
	}
	return ArgumentID(uint32(index))
}
