package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Stack Operations
const (
	OpNop    Opcode = 0x00 // no operation
	OpPop    Opcode = 0x01 // discard top of stack
	OpDup    Opcode = 0x02 // duplicate top of stack
	OpDupTwo Opcode = 0x03 // duplicate top two entries
	OpSwap   Opcode = 0x04 // swap top two entries
	OpRotN   Opcode = 0x05 // rotate top N entries, top moves to depth N (8-bit count)
	OpCopy   Opcode = 0x06 // push copy of entry N deep (8-bit depth, 1 = top)
)

// Loads and Stores
const (
	OpLoadConst    Opcode = 0x10 // push constant (16-bit pool index)
	OpLoadFast     Opcode = 0x11 // push local slot (16-bit index)
	OpStoreFast    Opcode = 0x12 // pop into local slot (16-bit index)
	OpLoadGlobal   Opcode = 0x13 // push module global or builtin (16-bit name index)
	OpStoreGlobal  Opcode = 0x14 // pop into module global (16-bit name index)
	OpLoadName     Opcode = 0x15 // push name: globals then builtins (16-bit name index)
	OpStoreName    Opcode = 0x16 // pop into module global (16-bit name index)
	OpLoadDeref    Opcode = 0x17 // push cell contents (16-bit cell index)
	OpStoreDeref   Opcode = 0x18 // pop into cell (16-bit cell index)
	OpLoadClosure  Opcode = 0x19 // push the cell itself (16-bit cell index)
	OpLoadAttr     Opcode = 0x1A // pop object, push attribute (16-bit name index)
	OpStoreAttr    Opcode = 0x1B // pop object then value, store attribute (16-bit name index)
	OpLoadMethod   Opcode = 0x1C // pop object, push bound callable (16-bit name index)
	OpLoadSubscr   Opcode = 0x1D // pop key, pop object, push object[key]
	OpStoreSubscr  Opcode = 0x1E // pop key, object, value; object[key] = value
	OpDeleteSubscr Opcode = 0x1F // pop key, pop object, delete object[key]
)

// Binary Operators
const (
	OpBinaryAdd      Opcode = 0x20 // +
	OpBinarySub      Opcode = 0x21 // -
	OpBinaryMul      Opcode = 0x22 // *
	OpBinaryDiv      Opcode = 0x23 // / (true division, always float)
	OpBinaryFloorDiv Opcode = 0x24 // // (rounds toward negative infinity)
	OpBinaryMod      Opcode = 0x25 // % (sign follows divisor)
	OpBinaryPow      Opcode = 0x26 // **
	OpBinaryLshift   Opcode = 0x27 // <<
	OpBinaryRshift   Opcode = 0x28 // >>
	OpBinaryAnd      Opcode = 0x29 // &
	OpBinaryOr       Opcode = 0x2A // |
	OpBinaryXor      Opcode = 0x2B // ^
)

// In-place Operators
const (
	OpInplaceAdd      Opcode = 0x30 // += (extends lists in place)
	OpInplaceSub      Opcode = 0x31 // -=
	OpInplaceMul      Opcode = 0x32 // *=
	OpInplaceDiv      Opcode = 0x33 // /=
	OpInplaceFloorDiv Opcode = 0x34 // //=
	OpInplaceMod      Opcode = 0x35 // %=
	OpInplacePow      Opcode = 0x36 // **=
	OpInplaceLshift   Opcode = 0x37 // <<=
	OpInplaceRshift   Opcode = 0x38 // >>=
	OpInplaceAnd      Opcode = 0x39 // &=
	OpInplaceOr       Opcode = 0x3A // |=
	OpInplaceXor      Opcode = 0x3B // ^=
)

// Unary Operators
const (
	OpUnaryNeg    Opcode = 0x3C // -x
	OpUnaryPos    Opcode = 0x3D // +x
	OpUnaryNot    Opcode = 0x3E // not x
	OpUnaryInvert Opcode = 0x3F // ~x
)

// Comparisons
const (
	OpCompareEq    Opcode = 0x40 // ==
	OpCompareNe    Opcode = 0x41 // !=
	OpCompareLt    Opcode = 0x42 // <
	OpCompareLe    Opcode = 0x43 // <=
	OpCompareGt    Opcode = 0x44 // >
	OpCompareGe    Opcode = 0x45 // >=
	OpCompareIs    Opcode = 0x46 // is (identity)
	OpCompareIsNot Opcode = 0x47 // is not
	OpCompareIn    Opcode = 0x48 // in (membership)
	OpCompareNotIn Opcode = 0x49 // not in
)

// Control Flow (all jump operands are signed 16-bit offsets relative to
// the position after the operand bytes)
const (
	OpJump             Opcode = 0x50 // unconditional jump
	OpJumpIfTrueOrPop  Opcode = 0x51 // jump if truthy leaving value, else pop
	OpJumpIfFalseOrPop Opcode = 0x52 // jump if falsy leaving value, else pop
	OpPopJumpIfTrue    Opcode = 0x53 // pop, jump if truthy
	OpPopJumpIfFalse   Opcode = 0x54 // pop, jump if falsy
	OpPopJumpIfNone    Opcode = 0x55 // pop, jump if None
	OpPopJumpIfNotNone Opcode = 0x56 // pop, jump if not None
	OpForIter          Opcode = 0x57 // advance iterator at top; push element, or jump when exhausted
	OpGetIter          Opcode = 0x58 // pop iterable, push iterator
	OpReturn           Opcode = 0x59 // return top of stack
	OpYield            Opcode = 0x5A // suspend generator, yield top of stack
	OpYieldFrom        Opcode = 0x5B // delegate to sub-generator at top of stack
	OpGetAwaitable     Opcode = 0x5C // pop awaitable, push the coroutine to drive
	OpImportName       Opcode = 0x5D // import module, push it (16-bit name index)
	OpImportFrom       Opcode = 0x5E // peek module, push attribute (16-bit name index)
)

// Calls and Function Construction
const (
	OpCall         Opcode = 0x70 // call with positional args (8-bit argc)
	OpCallKw       Opcode = 0x71 // call with keyword args (8-bit positional argc)
	OpCallEx       Opcode = 0x72 // call with unpacked args tuple (8-bit flags, bit 0 = kwargs dict)
	OpCallMethod   Opcode = 0x73 // call bound callable pushed by LOAD_METHOD (8-bit argc)
	OpMakeFunction Opcode = 0x74 // build function from code + qualname (8-bit flags)
	OpBuildClass   Opcode = 0x75 // build class from body function, name, bases (8-bit base count)
)

// MakeFunction flag bits
const (
	MakeFuncDefaults    byte = 0x01 // pop defaults tuple
	MakeFuncKwDefaults  byte = 0x02 // pop keyword-only defaults dict
	MakeFuncAnnotations byte = 0x04 // pop annotations dict
	MakeFuncClosure     byte = 0x08 // pop closure tuple of cells
)

// Builders
const (
	OpBuildTuple     Opcode = 0x80 // pop N values, push tuple (8-bit count)
	OpBuildList      Opcode = 0x81 // pop N values, push list (8-bit count)
	OpBuildSet       Opcode = 0x82 // pop N values, push set (8-bit count)
	OpBuildDict      Opcode = 0x83 // pop N key/value pairs, push dict (8-bit pair count)
	OpBuildString    Opcode = 0x84 // pop N strings, push concatenation (8-bit count)
	OpBuildSlice     Opcode = 0x85 // pop 2 or 3 values, push slice (8-bit argc)
	OpListAppend     Opcode = 0x86 // append top to the list N deep, list stays (8-bit depth)
	OpSetAdd         Opcode = 0x87 // add top to the set N deep, set stays (8-bit depth)
	OpMapAdd         Opcode = 0x88 // pop value then key into the dict N deep (8-bit depth)
	OpUnpackSequence Opcode = 0x89 // pop sequence, push N elements with the first on top (8-bit count)
	OpFormatValue    Opcode = 0x8A // pop value, push formatted string (8-bit conversion)
)

// FormatValue conversions
const (
	FormatNone byte = 0 // default str conversion
	FormatStr  byte = 1 // !s
	FormatRepr byte = 2 // !r
)

// Exception Handling
const (
	OpSetupExcept     Opcode = 0x90 // push except block (16-bit handler offset)
	OpSetupFinally    Opcode = 0x91 // push finally block (16-bit handler offset)
	OpSetupWith       Opcode = 0x92 // enter context manager, push with block (16-bit handler offset)
	OpPopBlock        Opcode = 0x93 // pop the innermost block
	OpRaise           Opcode = 0x94 // raise (8-bit argc: 0 re-raise, 1 value, 2 value+cause)
	OpReraise         Opcode = 0x95 // pop exception, re-raise it
	OpCheckExcMatch   Opcode = 0x96 // pop matcher, peek exception, push match result
	OpEndFinally      Opcode = 0x97 // dispatch on finally marker at top of stack
	OpWithExceptStart Opcode = 0x98 // call __exit__ with the pending exception
	OpPopExcept       Opcode = 0x99 // leave an except handler, clearing its exception
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes
	StackEffect  int    // net effect on stack (variable effects noted per entry)
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	// Stack operations
	OpNop:    {"NOP", 0, 0},
	OpPop:    {"POP", 0, -1},
	OpDup:    {"DUP", 0, 1},
	OpDupTwo: {"DUP_TWO", 0, 2},
	OpSwap:   {"SWAP", 0, 0},
	OpRotN:   {"ROT_N", 1, 0},
	OpCopy:   {"COPY", 1, 1},

	// Loads and stores
	OpLoadConst:    {"LOAD_CONST", 2, 1},
	OpLoadFast:     {"LOAD_FAST", 2, 1},
	OpStoreFast:    {"STORE_FAST", 2, -1},
	OpLoadGlobal:   {"LOAD_GLOBAL", 2, 1},
	OpStoreGlobal:  {"STORE_GLOBAL", 2, -1},
	OpLoadName:     {"LOAD_NAME", 2, 1},
	OpStoreName:    {"STORE_NAME", 2, -1},
	OpLoadDeref:    {"LOAD_DEREF", 2, 1},
	OpStoreDeref:   {"STORE_DEREF", 2, -1},
	OpLoadClosure:  {"LOAD_CLOSURE", 2, 1},
	OpLoadAttr:     {"LOAD_ATTR", 2, 0},
	OpStoreAttr:    {"STORE_ATTR", 2, -2},
	OpLoadMethod:   {"LOAD_METHOD", 2, 0},
	OpLoadSubscr:   {"LOAD_SUBSCR", 0, -1},
	OpStoreSubscr:  {"STORE_SUBSCR", 0, -3},
	OpDeleteSubscr: {"DELETE_SUBSCR", 0, -2},

	// Binary operators (pop 2, push 1)
	OpBinaryAdd:      {"BINARY_ADD", 0, -1},
	OpBinarySub:      {"BINARY_SUB", 0, -1},
	OpBinaryMul:      {"BINARY_MUL", 0, -1},
	OpBinaryDiv:      {"BINARY_DIV", 0, -1},
	OpBinaryFloorDiv: {"BINARY_FLOOR_DIV", 0, -1},
	OpBinaryMod:      {"BINARY_MOD", 0, -1},
	OpBinaryPow:      {"BINARY_POW", 0, -1},
	OpBinaryLshift:   {"BINARY_LSHIFT", 0, -1},
	OpBinaryRshift:   {"BINARY_RSHIFT", 0, -1},
	OpBinaryAnd:      {"BINARY_AND", 0, -1},
	OpBinaryOr:       {"BINARY_OR", 0, -1},
	OpBinaryXor:      {"BINARY_XOR", 0, -1},

	// In-place operators (pop 2, push 1)
	OpInplaceAdd:      {"INPLACE_ADD", 0, -1},
	OpInplaceSub:      {"INPLACE_SUB", 0, -1},
	OpInplaceMul:      {"INPLACE_MUL", 0, -1},
	OpInplaceDiv:      {"INPLACE_DIV", 0, -1},
	OpInplaceFloorDiv: {"INPLACE_FLOOR_DIV", 0, -1},
	OpInplaceMod:      {"INPLACE_MOD", 0, -1},
	OpInplacePow:      {"INPLACE_POW", 0, -1},
	OpInplaceLshift:   {"INPLACE_LSHIFT", 0, -1},
	OpInplaceRshift:   {"INPLACE_RSHIFT", 0, -1},
	OpInplaceAnd:      {"INPLACE_AND", 0, -1},
	OpInplaceOr:       {"INPLACE_OR", 0, -1},
	OpInplaceXor:      {"INPLACE_XOR", 0, -1},

	// Unary operators (pop 1, push 1)
	OpUnaryNeg:    {"UNARY_NEG", 0, 0},
	OpUnaryPos:    {"UNARY_POS", 0, 0},
	OpUnaryNot:    {"UNARY_NOT", 0, 0},
	OpUnaryInvert: {"UNARY_INVERT", 0, 0},

	// Comparisons (pop 2, push 1)
	OpCompareEq:    {"COMPARE_EQ", 0, -1},
	OpCompareNe:    {"COMPARE_NE", 0, -1},
	OpCompareLt:    {"COMPARE_LT", 0, -1},
	OpCompareLe:    {"COMPARE_LE", 0, -1},
	OpCompareGt:    {"COMPARE_GT", 0, -1},
	OpCompareGe:    {"COMPARE_GE", 0, -1},
	OpCompareIs:    {"COMPARE_IS", 0, -1},
	OpCompareIsNot: {"COMPARE_IS_NOT", 0, -1},
	OpCompareIn:    {"COMPARE_IN", 0, -1},
	OpCompareNotIn: {"COMPARE_NOT_IN", 0, -1},

	// Control flow
	OpJump:             {"JUMP", 2, 0},
	OpJumpIfTrueOrPop:  {"JUMP_IF_TRUE_OR_POP", 2, 0}, // pops only when falling through
	OpJumpIfFalseOrPop: {"JUMP_IF_FALSE_OR_POP", 2, 0},
	OpPopJumpIfTrue:    {"POP_JUMP_IF_TRUE", 2, -1},
	OpPopJumpIfFalse:   {"POP_JUMP_IF_FALSE", 2, -1},
	OpPopJumpIfNone:    {"POP_JUMP_IF_NONE", 2, -1},
	OpPopJumpIfNotNone: {"POP_JUMP_IF_NOT_NONE", 2, -1},
	OpForIter:          {"FOR_ITER", 2, 1}, // pushes element, or jumps leaving the iterator
	OpGetIter:          {"GET_ITER", 0, 0},
	OpReturn:           {"RETURN", 0, -1},
	OpYield:            {"YIELD", 0, 0}, // pops the value, resumption pushes the sent value
	OpYieldFrom:        {"YIELD_FROM", 0, 0},
	OpGetAwaitable:     {"GET_AWAITABLE", 0, 0},
	OpImportName:       {"IMPORT_NAME", 2, 1},
	OpImportFrom:       {"IMPORT_FROM", 2, 1},

	// Calls and function construction
	OpCall:         {"CALL", 1, 0}, // variable: pops argc args + callable, pushes result
	OpCallKw:       {"CALL_KW", 1, 0},
	OpCallEx:       {"CALL_EX", 1, 0},
	OpCallMethod:   {"CALL_METHOD", 1, 0},
	OpMakeFunction: {"MAKE_FUNCTION", 1, -1}, // variable: flags add extra pops
	OpBuildClass:   {"BUILD_CLASS", 1, 0},    // variable: pops bases + name + body

	// Builders
	OpBuildTuple:     {"BUILD_TUPLE", 1, 1}, // variable: pops N
	OpBuildList:      {"BUILD_LIST", 1, 1},
	OpBuildSet:       {"BUILD_SET", 1, 1},
	OpBuildDict:      {"BUILD_DICT", 1, 1},
	OpBuildString:    {"BUILD_STRING", 1, 1},
	OpBuildSlice:     {"BUILD_SLICE", 1, 1},
	OpListAppend:     {"LIST_APPEND", 1, -1},
	OpSetAdd:         {"SET_ADD", 1, -1},
	OpMapAdd:         {"MAP_ADD", 1, -2},
	OpUnpackSequence: {"UNPACK_SEQUENCE", 1, 0}, // variable: pops 1, pushes N
	OpFormatValue:    {"FORMAT_VALUE", 1, 0},

	// Exception handling
	OpSetupExcept:     {"SETUP_EXCEPT", 2, 0},
	OpSetupFinally:    {"SETUP_FINALLY", 2, 0},
	OpSetupWith:       {"SETUP_WITH", 2, 2}, // pushes __exit__ and the __enter__ result
	OpPopBlock:        {"POP_BLOCK", 0, 0},
	OpRaise:           {"RAISE", 1, 0}, // variable: pops argc values
	OpReraise:         {"RERAISE", 0, -1},
	OpCheckExcMatch:   {"CHECK_EXC_MATCH", 0, 0},
	OpEndFinally:      {"END_FINALLY", 0, -1},
	OpWithExceptStart: {"WITH_EXCEPT_START", 0, 1},
	OpPopExcept:       {"POP_EXCEPT", 0, 0},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), OperandBytes: 0, StackEffect: 0}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// OperandBytes returns the number of operand bytes for an opcode.
func (op Opcode) OperandBytes() int {
	return op.Info().OperandBytes
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsJump returns true if the opcode's operand is a signed relative offset.
func (op Opcode) IsJump() bool {
	switch op {
	case OpJump, OpJumpIfTrueOrPop, OpJumpIfFalseOrPop,
		OpPopJumpIfTrue, OpPopJumpIfFalse, OpPopJumpIfNone, OpPopJumpIfNotNone,
		OpForIter, OpSetupExcept, OpSetupFinally, OpSetupWith:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// BytecodeBuilder helps construct bytecode sequences.
type BytecodeBuilder struct {
	bytes []byte
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Len returns the current length.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitByte appends an opcode with a single byte operand.
func (b *BytecodeBuilder) EmitByte(op Opcode, operand byte) {
	b.bytes = append(b.bytes, byte(op), operand)
}

// EmitUint16 appends an opcode with a 16-bit operand (little-endian).
func (b *BytecodeBuilder) EmitUint16(op Opcode, operand uint16) {
	b.bytes = append(b.bytes, byte(op), byte(operand), byte(operand>>8))
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label represents a forward reference in bytecode.
type Label struct {
	resolved bool
	position int   // position to patch (if unresolved) or target (if resolved)
	refs     []int // positions that reference this label
}

// NewLabel creates an unresolved label.
func (b *BytecodeBuilder) NewLabel() *Label {
	return &Label{resolved: false, refs: make([]int, 0, 2)}
}

// Mark resolves a label to the current position.
func (b *BytecodeBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)

	// Patch all forward references
	for _, ref := range label.refs {
		offset := label.position - (ref + 2) // offset from after the operand
		b.bytes[ref] = byte(offset)
		b.bytes[ref+1] = byte(offset >> 8)
	}
	label.refs = nil
}

// EmitJump emits a jump instruction with a label.
func (b *BytecodeBuilder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	if label.resolved {
		// Backward jump: calculate offset
		offset := label.position - (len(b.bytes) + 2)
		b.bytes = append(b.bytes, byte(offset), byte(offset>>8))
	} else {
		// Forward jump: record position for later patching
		label.refs = append(label.refs, len(b.bytes))
		b.bytes = append(b.bytes, 0, 0) // placeholder
	}
}

// ---------------------------------------------------------------------------
// Bytecode reader for disassembly
// ---------------------------------------------------------------------------

// BytecodeReader reads bytecode for interpretation or disassembly.
type BytecodeReader struct {
	bytes []byte
	pos   int
}

// NewBytecodeReader creates a reader for bytecode.
func NewBytecodeReader(bc []byte) *BytecodeReader {
	return &BytecodeReader{bytes: bc, pos: 0}
}

// Position returns the current read position.
func (r *BytecodeReader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *BytecodeReader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// ReadOpcode reads and returns the next opcode.
func (r *BytecodeReader) ReadOpcode() Opcode {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	op := Opcode(r.bytes[r.pos])
	r.pos++
	return op
}

// ReadByte reads a single byte operand.
func (r *BytecodeReader) ReadByte() byte {
	if r.pos >= len(r.bytes) {
		panic("bytecode underflow")
	}
	b := r.bytes[r.pos]
	r.pos++
	return b
}

// ReadUint16 reads a 16-bit operand (little-endian).
func (r *BytecodeReader) ReadUint16() uint16 {
	if r.pos+2 > len(r.bytes) {
		panic("bytecode underflow")
	}
	v := binary.LittleEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadInt16 reads a signed 16-bit operand (little-endian).
func (r *BytecodeReader) ReadInt16() int16 {
	return int16(r.ReadUint16())
}

// Skip advances the position by n bytes.
func (r *BytecodeReader) Skip(n int) {
	r.pos += n
}

// Seek sets the read position.
func (r *BytecodeReader) Seek(pos int) {
	r.pos = pos
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction disassembles a single instruction at the reader's
// position. Returns the string representation and advances the reader.
func DisassembleInstruction(r *BytecodeReader) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info := op.Info()

	switch {
	case op.IsJump():
		offset := r.ReadInt16()
		target := r.Position() + int(offset)
		return fmt.Sprintf("%04d  %s %d (-> %04d)", pos, info.Name, offset, target)

	case info.OperandBytes == 1:
		v := r.ReadByte()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, v)

	case info.OperandBytes == 2:
		idx := r.ReadUint16()
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, idx)

	default:
		r.Skip(info.OperandBytes)
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	}
}

// Disassemble returns a full disassembly of bytecode.
func Disassemble(bc []byte) string {
	r := NewBytecodeReader(bc)
	var result string
	for r.HasMore() {
		if result != "" {
			result += "\n"
		}
		result += DisassembleInstruction(r)
	}
	return result
}

// DisassembleCode disassembles a code object, annotating constant and
// name operands from the code's pools.
func DisassembleCode(c *Code) string {
	r := NewBytecodeReader(c.Bytecode)
	var sb strings.Builder
	for r.HasMore() {
		pos := r.Position()
		op := r.ReadOpcode()
		info := op.Info()

		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}

		switch {
		case op.IsJump():
			offset := r.ReadInt16()
			target := r.Position() + int(offset)
			fmt.Fprintf(&sb, "%04d  %s %d (-> %04d)", pos, info.Name, offset, target)

		case op == OpLoadConst:
			idx := r.ReadUint16()
			note := ""
			if int(idx) < len(c.Constants) {
				note = " (" + c.Constants[idx].Repr() + ")"
			}
			fmt.Fprintf(&sb, "%04d  %s %d%s", pos, info.Name, idx, note)

		case usesNamePool(op):
			idx := r.ReadUint16()
			note := ""
			if int(idx) < len(c.Names) {
				note = " (" + c.Names[idx] + ")"
			}
			fmt.Fprintf(&sb, "%04d  %s %d%s", pos, info.Name, idx, note)

		case info.OperandBytes == 1:
			v := r.ReadByte()
			fmt.Fprintf(&sb, "%04d  %s %d", pos, info.Name, v)

		case info.OperandBytes == 2:
			idx := r.ReadUint16()
			fmt.Fprintf(&sb, "%04d  %s %d", pos, info.Name, idx)

		default:
			r.Skip(info.OperandBytes)
			fmt.Fprintf(&sb, "%04d  %s", pos, info.Name)
		}
	}
	return sb.String()
}

func usesNamePool(op Opcode) bool {
	switch op {
	case OpLoadGlobal, OpStoreGlobal, OpLoadName, OpStoreName,
		OpLoadAttr, OpStoreAttr, OpLoadMethod, OpImportName, OpImportFrom:
		return true
	}
	return false
}

// DisassembleAll disassembles a code object and every code constant
// nested inside it, one titled block per object.
func DisassembleAll(c *Code) string {
	var sb strings.Builder
	disassembleInto(&sb, c)
	return sb.String()
}

func disassembleInto(sb *strings.Builder, c *Code) {
	if sb.Len() > 0 {
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(sb, "%s:\n", codeLabel(c))
	sb.WriteString(DisassembleCode(c))
	for _, v := range c.Constants {
		if v.Kind() == KindCode {
			disassembleInto(sb, v.Code())
		}
	}
}
