package vm

// ---------------------------------------------------------------------------
// Block stack
// ---------------------------------------------------------------------------

// BlockKind distinguishes the protected-region kinds on the block stack.
type BlockKind uint8

const (
	// BlockExcept guards a try body with except clauses.
	BlockExcept BlockKind = iota
	// BlockFinally guards a try body with a finally clause.
	BlockFinally
	// BlockWith guards a with body; its handler calls __exit__.
	BlockWith
)

func (k BlockKind) String() string {
	switch k {
	case BlockExcept:
		return "except"
	case BlockFinally:
		return "finally"
	case BlockWith:
		return "with"
	}
	return "block"
}

// Block is one protected region. Handler is the absolute instruction
// offset to jump to; Level the operand stack depth to restore before
// entering the handler.
type Block struct {
	Kind    BlockKind
	Handler int
	Level   int
}

// ---------------------------------------------------------------------------
// Call frames
// ---------------------------------------------------------------------------

// Frame is one activation of a code object. Each frame owns its operand
// stack and block stack, so a suspended generator frame carries its
// whole execution state with it.
type Frame struct {
	Code    *Code
	Globals *Module

	// Locals holds one slot per local variable; parameters occupy the
	// first slots in declaration order.
	Locals []Value

	// Cells holds the frame's cell variables followed by the free
	// variables received through the function's closure. Deref opcodes
	// index into this combined slice.
	Cells []*Cell

	// IP is the next instruction offset.
	IP int

	stack  []Value
	sp     int
	blocks []Block

	// handling stacks the exceptions whose handlers are currently
	// executing, innermost last. A bare raise re-raises the top.
	handling []*ExceptionObject
}

// NewFrame creates a frame for code with empty locals. Cell variables
// get fresh cells; free variable cells are attached by the caller.
func NewFrame(code *Code, globals *Module) *Frame {
	fr := &Frame{
		Code:    code,
		Globals: globals,
		Locals:  make([]Value, code.NumLocals),
		stack:   make([]Value, 16),
	}
	for i := range fr.Locals {
		fr.Locals[i] = None
	}
	fr.Cells = make([]*Cell, 0, code.NumCells())
	for range code.CellVars {
		fr.Cells = append(fr.Cells, NewCell(None))
	}
	return fr
}

// AttachClosure appends the free-variable cells received from the
// function's closure.
func (fr *Frame) AttachClosure(cells []*Cell) {
	fr.Cells = append(fr.Cells, cells...)
}

// SeedParamCells copies bound parameter values into the cells of
// parameters that nested functions capture.
func (fr *Frame) SeedParamCells() {
	for i, name := range fr.Code.CellVars {
		if idx := fr.Code.ParamIndex(name); idx >= 0 {
			fr.Cells[i].Set(fr.Locals[idx])
		}
	}
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

// push adds a value to the operand stack, growing it as needed.
func (fr *Frame) push(v Value) {
	if fr.sp >= len(fr.stack) {
		newStack := make([]Value, len(fr.stack)*2+16)
		copy(newStack, fr.stack)
		fr.stack = newStack
	}
	fr.stack[fr.sp] = v
	fr.sp++
}

// pop removes and returns the top of the operand stack.
func (fr *Frame) pop() Value {
	if fr.sp <= 0 {
		panic("stack underflow")
	}
	fr.sp--
	return fr.stack[fr.sp]
}

// top returns the top of the stack without removing it.
func (fr *Frame) top() Value {
	if fr.sp <= 0 {
		panic("stack underflow")
	}
	return fr.stack[fr.sp-1]
}

// peek returns the value n entries below the top (0 = top).
func (fr *Frame) peek(n int) Value {
	if fr.sp <= n {
		panic("stack underflow")
	}
	return fr.stack[fr.sp-1-n]
}

// setTop replaces the top of the stack.
func (fr *Frame) setTop(v Value) {
	if fr.sp <= 0 {
		panic("stack underflow")
	}
	fr.stack[fr.sp-1] = v
}

// popN removes and returns the top n values, in stack order (the last
// element of the result was the top).
func (fr *Frame) popN(n int) []Value {
	if fr.sp < n {
		panic("stack underflow")
	}
	fr.sp -= n
	out := make([]Value, n)
	copy(out, fr.stack[fr.sp:fr.sp+n])
	return out
}

// Depth returns the current operand stack depth.
func (fr *Frame) Depth() int {
	return fr.sp
}

// truncate discards stack entries above level.
func (fr *Frame) truncate(level int) {
	if level < 0 || level > fr.sp {
		panic("stack underflow")
	}
	fr.sp = level
}

// ---------------------------------------------------------------------------
// Block stack
// ---------------------------------------------------------------------------

// pushBlock records a protected region at the current stack depth.
func (fr *Frame) pushBlock(kind BlockKind, handler int) {
	fr.blocks = append(fr.blocks, Block{Kind: kind, Handler: handler, Level: fr.sp})
}

// popBlock removes and returns the innermost block.
func (fr *Frame) popBlock() Block {
	if len(fr.blocks) == 0 {
		panic("block stack underflow")
	}
	b := fr.blocks[len(fr.blocks)-1]
	fr.blocks = fr.blocks[:len(fr.blocks)-1]
	return b
}

// BlockDepth returns the number of active blocks.
func (fr *Frame) BlockDepth() int {
	return len(fr.blocks)
}

// ---------------------------------------------------------------------------
// In-flight exceptions
// ---------------------------------------------------------------------------

// pushHandling marks an exception as being handled in this frame.
func (fr *Frame) pushHandling(exc *ExceptionObject) {
	fr.handling = append(fr.handling, exc)
}

// popHandling unmarks the innermost handled exception.
func (fr *Frame) popHandling() {
	if len(fr.handling) > 0 {
		fr.handling = fr.handling[:len(fr.handling)-1]
	}
}

// currentHandling returns the exception a handler is currently working
// on, or nil.
func (fr *Frame) currentHandling() *ExceptionObject {
	if len(fr.handling) == 0 {
		return nil
	}
	return fr.handling[len(fr.handling)-1]
}

// ---------------------------------------------------------------------------
// Host access
// ---------------------------------------------------------------------------

// GetLocal returns local slot i. Out-of-range slots are a fatal error.
func (fr *Frame) GetLocal(i int) Value {
	if i < 0 || i >= len(fr.Locals) {
		panic("local slot out of range")
	}
	return fr.Locals[i]
}

// SetLocal writes local slot i. Out-of-range slots are a fatal error.
func (fr *Frame) SetLocal(i int, v Value) {
	if i < 0 || i >= len(fr.Locals) {
		panic("local slot out of range")
	}
	fr.Locals[i] = v
}

// Push adds a value to the operand stack.
func (fr *Frame) Push(v Value) { fr.push(v) }

// Pop removes and returns the top of the operand stack.
func (fr *Frame) Pop() Value { return fr.pop() }

// Peek returns the value n entries below the top (0 = top).
func (fr *Frame) Peek(n int) Value { return fr.peek(n) }

// PushBlock records a protected region at the current stack depth.
func (fr *Frame) PushBlock(kind BlockKind, handler int) { fr.pushBlock(kind, handler) }

// PopBlock removes and returns the innermost block.
func (fr *Frame) PopBlock() Block { return fr.popBlock() }

// CurrentBlock returns the innermost block without removing it, or
// false when no block is active.
func (fr *Frame) CurrentBlock() (Block, bool) {
	if len(fr.blocks) == 0 {
		return Block{}, false
	}
	return fr.blocks[len(fr.blocks)-1], true
}
