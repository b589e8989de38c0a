package vm

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// asm assembles bytecode through the builder.
func asm(emit func(b *BytecodeBuilder)) []byte {
	b := NewBytecodeBuilder()
	emit(b)
	return b.Bytes()
}

// mustRun executes a code object on a fresh VM and fails the test on any
// exception.
func mustRun(t *testing.T, code *Code) Value {
	t.Helper()
	result, err := NewVM().RunCode(code, nil)
	if err != nil {
		t.Fatalf("RunCode failed: %v", err)
	}
	return result
}

// mustFail executes a code object and requires it to raise.
func mustFail(t *testing.T, code *Code) *ExceptionObject {
	t.Helper()
	_, err := NewVM().RunCode(code, nil)
	if err == nil {
		t.Fatal("RunCode succeeded, want exception")
	}
	return AsException(err)
}

func wantInt(t *testing.T, v Value, want int64) {
	t.Helper()
	if !v.IsInt() || v.Int() != want {
		t.Errorf("result = %s, want %d", v.Repr(), want)
	}
}

func wantStr(t *testing.T, v Value, want string) {
	t.Helper()
	if !v.IsStr() || v.Str() != want {
		t.Errorf("result = %s, want %q", v.Repr(), want)
	}
}

func wantExc(t *testing.T, exc *ExceptionObject, typeName, message string) {
	t.Helper()
	if exc.TypeName != typeName {
		t.Errorf("exception type = %s, want %s", exc.TypeName, typeName)
	}
	if exc.Message != message {
		t.Errorf("exception message = %q, want %q", exc.Message, message)
	}
}

// ---------------------------------------------------------------------------
// Basic execution
// ---------------------------------------------------------------------------

func TestRunReturnConst(t *testing.T) {
	// return 42
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(42)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 42)
}

func TestRunFallsOffEnd(t *testing.T) {
	// Code without a RETURN produces None.
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(1)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpPop)
		}),
	}
	if result := mustRun(t, code); !result.IsNone() {
		t.Errorf("result = %s, want None", result.Repr())
	}
}

func TestRunNop(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(9)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.Emit(OpNop)
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpNop)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 9)
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func TestStackPopDropsTop(t *testing.T) {
	// push 1, push 2, pop -> 1
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(1), MakeInt(2)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpPop)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 1)
}

func TestStackDup(t *testing.T) {
	// push 3, dup, add -> 6
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(3)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpDup)
			b.Emit(OpBinaryAdd)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 6)
}

func TestStackDupTwo(t *testing.T) {
	// [2 5] dup_two -> [2 5 2 5]; three muls collapse it to 100.
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(2), MakeInt(5)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpDupTwo)
			b.Emit(OpBinaryMul)
			b.Emit(OpBinaryMul)
			b.Emit(OpBinaryMul)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 100)
}

func TestStackSwap(t *testing.T) {
	// push 1, push 2, swap, sub -> 2 - 1 = 1
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(1), MakeInt(2)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpSwap)
			b.Emit(OpBinarySub)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 1)
}

func TestStackRotThree(t *testing.T) {
	// [1 2 3] rot 3 -> [3 1 2], top is 2
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(1), MakeInt(2), MakeInt(3)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpRotN, 3)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 2)
}

func TestStackCopy(t *testing.T) {
	// [7 8] copy 2 -> [7 8 7]
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(7), MakeInt(8)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitByte(OpCopy, 2)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 7)
}

// ---------------------------------------------------------------------------
// Locals and globals
// ---------------------------------------------------------------------------

func TestLocalStoreLoad(t *testing.T) {
	// x = 11; return x
	code := &Code{
		Name: "main", QualName: "main", NumLocals: 1,
		Constants: []Value{MakeInt(11)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpStoreFast, 0)
			b.EmitUint16(OpLoadFast, 0)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 11)
}

func TestLocalsStartAsNone(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main", NumLocals: 1,
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadFast, 0)
			b.Emit(OpReturn)
		}),
	}
	if result := mustRun(t, code); !result.IsNone() {
		t.Errorf("unset local = %s, want None", result.Repr())
	}
}

func TestGlobalStoreLoad(t *testing.T) {
	// g = 5; return g
	code := &Code{
		Name: "main", QualName: "main",
		Names:     []string{"g"},
		Constants: []Value{MakeInt(5)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpStoreGlobal, 0)
			b.EmitUint16(OpLoadGlobal, 0)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 5)
}

func TestLoadGlobalMissing(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main",
		Names: []string{"missing"},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadGlobal, 0)
			b.Emit(OpReturn)
		}),
	}
	wantExc(t, mustFail(t, code), "NameError", "name 'missing' is not defined")
}

func TestLoadGlobalFindsBuiltin(t *testing.T) {
	// return len("abc")
	code := &Code{
		Name: "main", QualName: "main",
		Names:     []string{"len"},
		Constants: []Value{MakeStr("abc")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpCall, 1)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 3)
}

func TestStoreNameSetsModuleAttr(t *testing.T) {
	code := &Code{
		Name: "m", QualName: "m",
		Names:     []string{"answer"},
		Constants: []Value{MakeInt(42)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpStoreName, 0)
		}),
	}
	v := NewVM()
	mod, err := v.RunModule("m", code)
	if err != nil {
		t.Fatalf("RunModule failed: %v", err)
	}
	got, ok := mod.Get("answer")
	if !ok {
		t.Fatal("module attribute 'answer' not set")
	}
	wantInt(t, got, 42)
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func TestIntArithmetic(t *testing.T) {
	tests := []struct {
		name string
		op   Opcode
		a, b int64
		want int64
	}{
		{"add", OpBinaryAdd, 2, 3, 5},
		{"sub", OpBinarySub, 10, 4, 6},
		{"mul", OpBinaryMul, 6, 7, 42},
		{"pow", OpBinaryPow, 2, 10, 1024},
		{"lshift", OpBinaryLshift, 1, 4, 16},
		{"rshift", OpBinaryRshift, 32, 3, 4},
		{"and", OpBinaryAnd, 0b1100, 0b1010, 0b1000},
		{"or", OpBinaryOr, 0b1100, 0b1010, 0b1110},
		{"xor", OpBinaryXor, 0b1100, 0b1010, 0b0110},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := &Code{
				Name: "main", QualName: "main",
				Constants: []Value{MakeInt(tt.a), MakeInt(tt.b)},
				Bytecode: asm(func(b *BytecodeBuilder) {
					b.EmitUint16(OpLoadConst, 0)
					b.EmitUint16(OpLoadConst, 1)
					b.Emit(tt.op)
					b.Emit(OpReturn)
				}),
			}
			wantInt(t, mustRun(t, code), tt.want)
		})
	}
}

func TestDivisionIsAlwaysFloat(t *testing.T) {
	// return 7 / 2
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(7), MakeInt(2)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpBinaryDiv)
			b.Emit(OpReturn)
		}),
	}
	result := mustRun(t, code)
	if !result.IsFloat() || result.Float() != 3.5 {
		t.Errorf("7 / 2 = %s, want 3.5", result.Repr())
	}
}

func TestFloorDivRoundsTowardNegativeInfinity(t *testing.T) {
	tests := []struct {
		a, b, want int64
	}{
		{7, 2, 3},
		{-7, 2, -4},
		{7, -2, -4},
		{-7, -2, 3},
	}
	for _, tt := range tests {
		code := &Code{
			Name: "main", QualName: "main",
			Constants: []Value{MakeInt(tt.a), MakeInt(tt.b)},
			Bytecode: asm(func(b *BytecodeBuilder) {
				b.EmitUint16(OpLoadConst, 0)
				b.EmitUint16(OpLoadConst, 1)
				b.Emit(OpBinaryFloorDiv)
				b.Emit(OpReturn)
			}),
		}
		result := mustRun(t, code)
		if result.Int() != tt.want {
			t.Errorf("%d // %d = %s, want %d", tt.a, tt.b, result.Repr(), tt.want)
		}
	}
}

func TestModTakesDivisorSign(t *testing.T) {
	tests := []struct {
		a, b, want int64
	}{
		{7, 2, 1},
		{-7, 2, 1},
		{7, -2, -1},
		{-7, -2, -1},
	}
	for _, tt := range tests {
		code := &Code{
			Name: "main", QualName: "main",
			Constants: []Value{MakeInt(tt.a), MakeInt(tt.b)},
			Bytecode: asm(func(b *BytecodeBuilder) {
				b.EmitUint16(OpLoadConst, 0)
				b.EmitUint16(OpLoadConst, 1)
				b.Emit(OpBinaryMod)
				b.Emit(OpReturn)
			}),
		}
		result := mustRun(t, code)
		if result.Int() != tt.want {
			t.Errorf("%d %% %d = %s, want %d", tt.a, tt.b, result.Repr(), tt.want)
		}
	}
}

func TestDivisionByZero(t *testing.T) {
	tests := []struct {
		name    string
		op      Opcode
		message string
	}{
		{"true division", OpBinaryDiv, "division by zero"},
		{"floor division", OpBinaryFloorDiv, "integer division or modulo by zero"},
		{"modulo", OpBinaryMod, "integer division or modulo by zero"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := &Code{
				Name: "main", QualName: "main",
				Constants: []Value{MakeInt(1), MakeInt(0)},
				Bytecode: asm(func(b *BytecodeBuilder) {
					b.EmitUint16(OpLoadConst, 0)
					b.EmitUint16(OpLoadConst, 1)
					b.Emit(tt.op)
					b.Emit(OpReturn)
				}),
			}
			wantExc(t, mustFail(t, code), "ZeroDivisionError", tt.message)
		})
	}
}

func TestMixedNumericPromotesToFloat(t *testing.T) {
	// return 1 + 2.5
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(1), MakeFloat(2.5)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpBinaryAdd)
			b.Emit(OpReturn)
		}),
	}
	result := mustRun(t, code)
	if !result.IsFloat() || result.Float() != 3.5 {
		t.Errorf("1 + 2.5 = %s, want 3.5", result.Repr())
	}
}

func TestStringConcatAndRepeat(t *testing.T) {
	// return "foo" + "bar"
	concat := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeStr("foo"), MakeStr("bar")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpBinaryAdd)
			b.Emit(OpReturn)
		}),
	}
	wantStr(t, mustRun(t, concat), "foobar")

	// return "ab" * 3
	repeat := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeStr("ab"), MakeInt(3)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpBinaryMul)
			b.Emit(OpReturn)
		}),
	}
	wantStr(t, mustRun(t, repeat), "ababab")
}

func TestListConcat(t *testing.T) {
	// return [1, 2] + [3]
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(1), MakeInt(2), MakeInt(3)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitByte(OpBuildList, 2)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpBuildList, 1)
			b.Emit(OpBinaryAdd)
			b.Emit(OpReturn)
		}),
	}
	result := mustRun(t, code)
	if result.Kind() != KindList || result.List().Len() != 3 {
		t.Fatalf("result = %s, want a 3-element list", result.Repr())
	}
	if result.Repr() != "[1, 2, 3]" {
		t.Errorf("result = %s, want [1, 2, 3]", result.Repr())
	}
}

func TestUnaryOperators(t *testing.T) {
	tests := []struct {
		name string
		op   Opcode
		want int64
	}{
		{"neg", OpUnaryNeg, -5},
		{"pos", OpUnaryPos, 5},
		{"invert", OpUnaryInvert, -6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := &Code{
				Name: "main", QualName: "main",
				Constants: []Value{MakeInt(5)},
				Bytecode: asm(func(b *BytecodeBuilder) {
					b.EmitUint16(OpLoadConst, 0)
					b.Emit(tt.op)
					b.Emit(OpReturn)
				}),
			}
			wantInt(t, mustRun(t, code), tt.want)
		})
	}
}

func TestUnaryNot(t *testing.T) {
	// return not ""
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeStr("")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpUnaryNot)
			b.Emit(OpReturn)
		}),
	}
	result := mustRun(t, code)
	if !result.IsBool() || !result.Bool() {
		t.Errorf("not \"\" = %s, want True", result.Repr())
	}
}

func TestBinaryOpTypeMismatch(t *testing.T) {
	// "a" + 1 raises
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeStr("a"), MakeInt(1)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpBinaryAdd)
			b.Emit(OpReturn)
		}),
	}
	exc := mustFail(t, code)
	wantExc(t, exc, "TypeError", "unsupported operand type(s) for +: 'str' and 'int'")
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

func TestCompareOpcodes(t *testing.T) {
	tests := []struct {
		name string
		op   Opcode
		a, b Value
		want bool
	}{
		{"eq ints", OpCompareEq, MakeInt(3), MakeInt(3), true},
		{"eq int float", OpCompareEq, MakeInt(1), MakeFloat(1.0), true},
		{"ne", OpCompareNe, MakeInt(3), MakeInt(4), true},
		{"lt", OpCompareLt, MakeInt(2), MakeInt(3), true},
		{"le equal", OpCompareLe, MakeInt(3), MakeInt(3), true},
		{"gt", OpCompareGt, MakeInt(5), MakeInt(3), true},
		{"ge false", OpCompareGe, MakeInt(2), MakeInt(3), false},
		{"lt strings", OpCompareLt, MakeStr("apple"), MakeStr("banana"), true},
		{"is none", OpCompareIs, None, None, true},
		{"is not", OpCompareIsNot, MakeInt(1), None, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := &Code{
				Name: "main", QualName: "main",
				Constants: []Value{tt.a, tt.b},
				Bytecode: asm(func(b *BytecodeBuilder) {
					b.EmitUint16(OpLoadConst, 0)
					b.EmitUint16(OpLoadConst, 1)
					b.Emit(tt.op)
					b.Emit(OpReturn)
				}),
			}
			result := mustRun(t, code)
			if !result.IsBool() || result.Bool() != tt.want {
				t.Errorf("result = %s, want %v", result.Repr(), tt.want)
			}
		})
	}
}

func TestSeparateListsAreNotIdentical(t *testing.T) {
	// [] is [] -> False
	code := &Code{
		Name: "main", QualName: "main",
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitByte(OpBuildList, 0)
			b.EmitByte(OpBuildList, 0)
			b.Emit(OpCompareIs)
			b.Emit(OpReturn)
		}),
	}
	result := mustRun(t, code)
	if result.Bool() {
		t.Error("[] is [] = True, want False")
	}
}

func TestCompareIn(t *testing.T) {
	// return 2 in [1, 2, 3]
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(2), MakeInt(1), MakeInt(3)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpBuildList, 3)
			b.Emit(OpCompareIn)
			b.Emit(OpReturn)
		}),
	}
	if result := mustRun(t, code); !result.Bool() {
		t.Error("2 in [1, 2, 3] = False, want True")
	}
}

func TestCompareNotInSubstring(t *testing.T) {
	// return "zz" not in "abc"
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeStr("zz"), MakeStr("abc")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpCompareNotIn)
			b.Emit(OpReturn)
		}),
	}
	if result := mustRun(t, code); !result.Bool() {
		t.Error("\"zz\" not in \"abc\" = False, want True")
	}
}

func TestCompareUnorderableTypes(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(1), MakeStr("a")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpCompareLt)
			b.Emit(OpReturn)
		}),
	}
	exc := mustFail(t, code)
	wantExc(t, exc, "TypeError", "'<' not supported between instances of 'int' and 'str'")
}

// ---------------------------------------------------------------------------
// Jumps
// ---------------------------------------------------------------------------

func TestJumpForward(t *testing.T) {
	// Jump over a section that would replace the result with 2.
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(1), MakeInt(2)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			done := b.NewLabel()
			b.EmitUint16(OpLoadConst, 0)
			b.EmitJump(OpJump, done)
			b.Emit(OpPop)
			b.EmitUint16(OpLoadConst, 1)
			b.Mark(done)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 1)
}

func TestPopJumpIfFalse(t *testing.T) {
	// if False: return 1 else: return 2
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeBool(false), MakeInt(1), MakeInt(2)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			orelse := b.NewLabel()
			b.EmitUint16(OpLoadConst, 0)
			b.EmitJump(OpPopJumpIfFalse, orelse)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpReturn)
			b.Mark(orelse)
			b.EmitUint16(OpLoadConst, 2)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 2)
}

func TestJumpIfTrueOrPopShortCircuit(t *testing.T) {
	// "yes" or "no" evaluates to "yes" and keeps it on the stack.
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeStr("yes"), MakeStr("no")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			end := b.NewLabel()
			b.EmitUint16(OpLoadConst, 0)
			b.EmitJump(OpJumpIfTrueOrPop, end)
			b.EmitUint16(OpLoadConst, 1)
			b.Mark(end)
			b.Emit(OpReturn)
		}),
	}
	wantStr(t, mustRun(t, code), "yes")
}

func TestJumpIfTrueOrPopFallsThrough(t *testing.T) {
	// "" or "no" pops the falsy operand and evaluates the right side.
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeStr(""), MakeStr("no")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			end := b.NewLabel()
			b.EmitUint16(OpLoadConst, 0)
			b.EmitJump(OpJumpIfTrueOrPop, end)
			b.EmitUint16(OpLoadConst, 1)
			b.Mark(end)
			b.Emit(OpReturn)
		}),
	}
	wantStr(t, mustRun(t, code), "no")
}

func TestJumpIfFalseOrPop(t *testing.T) {
	// 0 and "x" evaluates to 0.
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(0), MakeStr("x")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			end := b.NewLabel()
			b.EmitUint16(OpLoadConst, 0)
			b.EmitJump(OpJumpIfFalseOrPop, end)
			b.EmitUint16(OpLoadConst, 1)
			b.Mark(end)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 0)
}

func TestPopJumpIfNone(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{None, MakeStr("was none"), MakeStr("not none")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			isNone := b.NewLabel()
			b.EmitUint16(OpLoadConst, 0)
			b.EmitJump(OpPopJumpIfNone, isNone)
			b.EmitUint16(OpLoadConst, 2)
			b.Emit(OpReturn)
			b.Mark(isNone)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpReturn)
		}),
	}
	wantStr(t, mustRun(t, code), "was none")
}

func TestBackwardJumpLoop(t *testing.T) {
	// n = 5
	// while n: n = n - 1
	// return n
	code := &Code{
		Name: "main", QualName: "main", NumLocals: 1,
		Constants: []Value{MakeInt(5), MakeInt(1)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			top := b.NewLabel()
			done := b.NewLabel()
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpStoreFast, 0)
			b.Mark(top)
			b.EmitUint16(OpLoadFast, 0)
			b.EmitJump(OpPopJumpIfFalse, done)
			b.EmitUint16(OpLoadFast, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpBinarySub)
			b.EmitUint16(OpStoreFast, 0)
			b.EmitJump(OpJump, top)
			b.Mark(done)
			b.EmitUint16(OpLoadFast, 0)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 0)
}

// ---------------------------------------------------------------------------
// Iteration
// ---------------------------------------------------------------------------

func TestForIterSumsList(t *testing.T) {
	// total = 0
	// for x in [1, 2, 3]: total = total + x
	// return total
	code := &Code{
		Name: "main", QualName: "main", NumLocals: 2,
		Constants: []Value{MakeInt(0), MakeInt(1), MakeInt(2), MakeInt(3)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			loop := b.NewLabel()
			done := b.NewLabel()
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpStoreFast, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitUint16(OpLoadConst, 3)
			b.EmitByte(OpBuildList, 3)
			b.Emit(OpGetIter)
			b.Mark(loop)
			b.EmitJump(OpForIter, done)
			b.EmitUint16(OpStoreFast, 1)
			b.EmitUint16(OpLoadFast, 0)
			b.EmitUint16(OpLoadFast, 1)
			b.Emit(OpBinaryAdd)
			b.EmitUint16(OpStoreFast, 0)
			b.EmitJump(OpJump, loop)
			b.Mark(done)
			b.Emit(OpPop)
			b.EmitUint16(OpLoadFast, 0)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 6)
}

func TestForIterOverString(t *testing.T) {
	// out = ""
	// for ch in "abc": out = out + ch + "."
	code := &Code{
		Name: "main", QualName: "main", NumLocals: 2,
		Constants: []Value{MakeStr(""), MakeStr("abc"), MakeStr(".")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			loop := b.NewLabel()
			done := b.NewLabel()
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpStoreFast, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpGetIter)
			b.Mark(loop)
			b.EmitJump(OpForIter, done)
			b.EmitUint16(OpStoreFast, 1)
			b.EmitUint16(OpLoadFast, 0)
			b.EmitUint16(OpLoadFast, 1)
			b.Emit(OpBinaryAdd)
			b.EmitUint16(OpLoadConst, 2)
			b.Emit(OpBinaryAdd)
			b.EmitUint16(OpStoreFast, 0)
			b.EmitJump(OpJump, loop)
			b.Mark(done)
			b.Emit(OpPop)
			b.EmitUint16(OpLoadFast, 0)
			b.Emit(OpReturn)
		}),
	}
	wantStr(t, mustRun(t, code), "a.b.c.")
}

func TestGetIterOnNonIterable(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(1)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpGetIter)
			b.Emit(OpReturn)
		}),
	}
	wantExc(t, mustFail(t, code), "TypeError", "'int' object is not iterable")
}

// ---------------------------------------------------------------------------
// Builders
// ---------------------------------------------------------------------------

func TestBuildTuple(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(1), MakeStr("two")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitByte(OpBuildTuple, 2)
			b.Emit(OpReturn)
		}),
	}
	result := mustRun(t, code)
	if result.Kind() != KindTuple || result.Tuple().Len() != 2 {
		t.Fatalf("result = %s, want a 2-tuple", result.Repr())
	}
	if result.Repr() != "(1, 'two')" {
		t.Errorf("result = %s, want (1, 'two')", result.Repr())
	}
}

func TestBuildDictKeepsInsertionOrder(t *testing.T) {
	// {"b": 1, "a": 2}
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeStr("b"), MakeInt(1), MakeStr("a"), MakeInt(2)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitUint16(OpLoadConst, 3)
			b.EmitByte(OpBuildDict, 2)
			b.Emit(OpReturn)
		}),
	}
	result := mustRun(t, code)
	if result.Repr() != "{'b': 1, 'a': 2}" {
		t.Errorf("result = %s, want {'b': 1, 'a': 2}", result.Repr())
	}
}

func TestBuildSetDeduplicates(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(1), MakeInt(1), MakeInt(2)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpBuildSet, 3)
			b.Emit(OpReturn)
		}),
	}
	result := mustRun(t, code)
	if result.Kind() != KindSet || result.Set().Len() != 2 {
		t.Errorf("result = %s, want a 2-element set", result.Repr())
	}
}

func TestBuildDictUnhashableKey(t *testing.T) {
	// {[]: 1}
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(1)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitByte(OpBuildList, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpBuildDict, 1)
			b.Emit(OpReturn)
		}),
	}
	wantExc(t, mustFail(t, code), "TypeError", "unhashable type: 'list'")
}

func TestBuildString(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeStr("a"), MakeStr("b"), MakeStr("c")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpBuildString, 3)
			b.Emit(OpReturn)
		}),
	}
	wantStr(t, mustRun(t, code), "abc")
}

func TestFormatValueConversions(t *testing.T) {
	// f"{n}={s!r}" with n=42, s="hi"
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(42), MakeStr("="), MakeStr("hi")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpFormatValue, FormatStr)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpFormatValue, FormatRepr)
			b.EmitByte(OpBuildString, 3)
			b.Emit(OpReturn)
		}),
	}
	wantStr(t, mustRun(t, code), "42='hi'")
}

func TestListAppendComprehension(t *testing.T) {
	// [x * x for x in (1, 2, 3)]
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{
			MakeTuple(NewTuple([]Value{MakeInt(1), MakeInt(2), MakeInt(3)})),
		},
		Bytecode: asm(func(b *BytecodeBuilder) {
			loop := b.NewLabel()
			done := b.NewLabel()
			b.EmitByte(OpBuildList, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpGetIter)
			b.Mark(loop)
			b.EmitJump(OpForIter, done)
			b.Emit(OpDup)
			b.Emit(OpBinaryMul)
			b.EmitByte(OpListAppend, 2)
			b.EmitJump(OpJump, loop)
			b.Mark(done)
			b.Emit(OpPop)
			b.Emit(OpReturn)
		}),
	}
	result := mustRun(t, code)
	if result.Repr() != "[1, 4, 9]" {
		t.Errorf("result = %s, want [1, 4, 9]", result.Repr())
	}
}

func TestMapAddComprehension(t *testing.T) {
	// {x: x + 10 for x in (1, 2)}
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{
			MakeTuple(NewTuple([]Value{MakeInt(1), MakeInt(2)})),
			MakeInt(10),
		},
		Bytecode: asm(func(b *BytecodeBuilder) {
			loop := b.NewLabel()
			done := b.NewLabel()
			b.EmitByte(OpBuildDict, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpGetIter)
			b.Mark(loop)
			b.EmitJump(OpForIter, done)
			b.Emit(OpDup)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpBinaryAdd)
			b.EmitByte(OpMapAdd, 2)
			b.EmitJump(OpJump, loop)
			b.Mark(done)
			b.Emit(OpPop)
			b.Emit(OpReturn)
		}),
	}
	result := mustRun(t, code)
	if result.Repr() != "{1: 11, 2: 12}" {
		t.Errorf("result = %s, want {1: 11, 2: 12}", result.Repr())
	}
}

func TestUnpackSequence(t *testing.T) {
	// a, b, c = (1, 2, 3); return a*100 + b*10 + c
	code := &Code{
		Name: "main", QualName: "main", NumLocals: 3,
		Constants: []Value{
			MakeTuple(NewTuple([]Value{MakeInt(1), MakeInt(2), MakeInt(3)})),
			MakeInt(100), MakeInt(10),
		},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpUnpackSequence, 3)
			b.EmitUint16(OpStoreFast, 0)
			b.EmitUint16(OpStoreFast, 1)
			b.EmitUint16(OpStoreFast, 2)
			b.EmitUint16(OpLoadFast, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpBinaryMul)
			b.EmitUint16(OpLoadFast, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.Emit(OpBinaryMul)
			b.Emit(OpBinaryAdd)
			b.EmitUint16(OpLoadFast, 2)
			b.Emit(OpBinaryAdd)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 123)
}

func TestUnpackSequenceArityErrors(t *testing.T) {
	pair := MakeTuple(NewTuple([]Value{MakeInt(1), MakeInt(2)}))

	tooFew := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{pair},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpUnpackSequence, 3)
			b.Emit(OpReturn)
		}),
	}
	wantExc(t, mustFail(t, tooFew), "ValueError", "not enough values to unpack (expected 3, got 2)")

	tooMany := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{pair},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpUnpackSequence, 1)
			b.Emit(OpReturn)
		}),
	}
	wantExc(t, mustFail(t, tooMany), "ValueError", "too many values to unpack (expected 1)")

	notSeq := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(7)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpUnpackSequence, 1)
			b.Emit(OpReturn)
		}),
	}
	wantExc(t, mustFail(t, notSeq), "TypeError", "cannot unpack non-sequence int")
}

// ---------------------------------------------------------------------------
// Subscripts and slices
// ---------------------------------------------------------------------------

func TestListSubscript(t *testing.T) {
	// return [10, 20, 30][1]
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(10), MakeInt(20), MakeInt(30), MakeInt(1)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpBuildList, 3)
			b.EmitUint16(OpLoadConst, 3)
			b.Emit(OpLoadSubscr)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 20)
}

func TestNegativeIndex(t *testing.T) {
	// return (10, 20, 30)[-1]
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{
			MakeTuple(NewTuple([]Value{MakeInt(10), MakeInt(20), MakeInt(30)})),
			MakeInt(-1),
		},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpLoadSubscr)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 30)
}

func TestIndexOutOfRange(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(1), MakeInt(5)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpBuildList, 1)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpLoadSubscr)
			b.Emit(OpReturn)
		}),
	}
	wantExc(t, mustFail(t, code), "IndexError", "list index out of range")
}

func TestDictSubscriptMissingKey(t *testing.T) {
	// {}["k"]
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeStr("k")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitByte(OpBuildDict, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpLoadSubscr)
			b.Emit(OpReturn)
		}),
	}
	wantExc(t, mustFail(t, code), "KeyError", "'k'")
}

func TestStoreSubscript(t *testing.T) {
	// d = {}; d["x"] = 9; return d["x"]
	code := &Code{
		Name: "main", QualName: "main", NumLocals: 1,
		Constants: []Value{MakeStr("x"), MakeInt(9)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitByte(OpBuildDict, 0)
			b.EmitUint16(OpStoreFast, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitUint16(OpLoadFast, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpStoreSubscr)
			b.EmitUint16(OpLoadFast, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpLoadSubscr)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 9)
}

func TestDeleteSubscript(t *testing.T) {
	// d = {"a": 1}; del d["a"]; return len(d)
	code := &Code{
		Name: "main", QualName: "main", NumLocals: 1,
		Names:     []string{"len"},
		Constants: []Value{MakeStr("a"), MakeInt(1)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitByte(OpBuildDict, 1)
			b.EmitUint16(OpStoreFast, 0)
			b.EmitUint16(OpLoadFast, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpDeleteSubscr)
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitUint16(OpLoadFast, 0)
			b.EmitByte(OpCall, 1)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 0)
}

func TestSliceSubscript(t *testing.T) {
	// return "hello"[1:4]
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeStr("hello"), MakeInt(1), MakeInt(4)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpBuildSlice, 2)
			b.Emit(OpLoadSubscr)
			b.Emit(OpReturn)
		}),
	}
	wantStr(t, mustRun(t, code), "ell")
}

func TestSliceWithNegativeStep(t *testing.T) {
	// return "abcde"[::-1]
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeStr("abcde"), None, MakeInt(-1)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpBuildSlice, 3)
			b.Emit(OpLoadSubscr)
			b.Emit(OpReturn)
		}),
	}
	wantStr(t, mustRun(t, code), "edcba")
}

func TestSubscriptOnNonContainer(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(1), MakeInt(0)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpLoadSubscr)
			b.Emit(OpReturn)
		}),
	}
	wantExc(t, mustFail(t, code), "TypeError", "'int' object is not subscriptable")
}

// ---------------------------------------------------------------------------
// Functions and calls
// ---------------------------------------------------------------------------

// makeFuncProgram builds a main code object that constructs a function
// from inner, calls it with the given constant arguments, and returns
// the result.
func makeFuncProgram(inner *Code, args ...Value) *Code {
	consts := []Value{MakeStr(inner.QualName), MakeCode(inner)}
	consts = append(consts, args...)
	return &Code{
		Name: "main", QualName: "main",
		Constants: consts,
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitByte(OpMakeFunction, 0)
			for i := range args {
				b.EmitUint16(OpLoadConst, uint16(2+i))
			}
			b.EmitByte(OpCall, byte(len(args)))
			b.Emit(OpReturn)
		}),
	}
}

func TestCallFunction(t *testing.T) {
	// def f(): return 7
	inner := &Code{
		Name: "f", QualName: "f",
		Constants: []Value{MakeInt(7)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, makeFuncProgram(inner)), 7)
}

func TestCallFunctionWithArguments(t *testing.T) {
	// def sub(a, b): return a - b
	inner := &Code{
		Name: "sub", QualName: "sub", NumLocals: 2,
		Params: []Param{{Name: "a"}, {Name: "b"}},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadFast, 0)
			b.EmitUint16(OpLoadFast, 1)
			b.Emit(OpBinarySub)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, makeFuncProgram(inner, MakeInt(10), MakeInt(4))), 6)
}

func TestCallFunctionWithDefaults(t *testing.T) {
	// def f(a, b=5): return a + b
	// f(1) -> 6
	inner := &Code{
		Name: "f", QualName: "f", NumLocals: 2,
		Params: []Param{{Name: "a"}, {Name: "b"}},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadFast, 0)
			b.EmitUint16(OpLoadFast, 1)
			b.Emit(OpBinaryAdd)
			b.Emit(OpReturn)
		}),
	}
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{
			MakeTuple(NewTuple([]Value{MakeInt(5)})),
			MakeStr("f"), MakeCode(inner), MakeInt(1),
		},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpMakeFunction, MakeFuncDefaults)
			b.EmitUint16(OpLoadConst, 3)
			b.EmitByte(OpCall, 1)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 6)
}

func TestCallKeywordArguments(t *testing.T) {
	// def sub(a, b): return a - b
	// sub(10, b=4) -> 6
	inner := &Code{
		Name: "sub", QualName: "sub", NumLocals: 2,
		Params: []Param{{Name: "a"}, {Name: "b"}},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadFast, 0)
			b.EmitUint16(OpLoadFast, 1)
			b.Emit(OpBinarySub)
			b.Emit(OpReturn)
		}),
	}
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{
			MakeStr("sub"), MakeCode(inner), MakeInt(10), MakeInt(4),
			MakeTuple(NewTuple([]Value{MakeStr("b")})),
		},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitByte(OpMakeFunction, 0)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitUint16(OpLoadConst, 3)
			b.EmitUint16(OpLoadConst, 4)
			b.EmitByte(OpCallKw, 1)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 6)
}

func TestCallExUnpacksTupleAndDict(t *testing.T) {
	// def f(a, b, c): return a*100 + b*10 + c
	// f(*(1, 2), **{"c": 3}) -> 123
	inner := &Code{
		Name: "f", QualName: "f", NumLocals: 3,
		Params:    []Param{{Name: "a"}, {Name: "b"}, {Name: "c"}},
		Constants: []Value{MakeInt(100), MakeInt(10)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadFast, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpBinaryMul)
			b.EmitUint16(OpLoadFast, 1)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpBinaryMul)
			b.Emit(OpBinaryAdd)
			b.EmitUint16(OpLoadFast, 2)
			b.Emit(OpBinaryAdd)
			b.Emit(OpReturn)
		}),
	}
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{
			MakeStr("f"), MakeCode(inner),
			MakeTuple(NewTuple([]Value{MakeInt(1), MakeInt(2)})),
			MakeStr("c"), MakeInt(3),
		},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitByte(OpMakeFunction, 0)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitUint16(OpLoadConst, 3)
			b.EmitUint16(OpLoadConst, 4)
			b.EmitByte(OpBuildDict, 1)
			b.EmitByte(OpCallEx, 1)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, code), 123)
}

func TestCallNonCallable(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeInt(3)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpCall, 0)
			b.Emit(OpReturn)
		}),
	}
	wantExc(t, mustFail(t, code), "TypeError", "'int' object is not callable")
}

func TestRecursionLimit(t *testing.T) {
	// def f(): return f()
	// f()
	inner := &Code{
		Name: "f", QualName: "f",
		Names: []string{"f"},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitByte(OpCall, 0)
			b.Emit(OpReturn)
		}),
	}
	code := &Code{
		Name: "main", QualName: "main",
		Names:     []string{"f"},
		Constants: []Value{MakeStr("f"), MakeCode(inner)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitByte(OpMakeFunction, 0)
			b.EmitUint16(OpStoreGlobal, 0)
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitByte(OpCall, 0)
			b.Emit(OpReturn)
		}),
	}
	v := NewVM()
	v.SetMaxDepth(32)
	_, err := v.RunCode(code, nil)
	if err == nil {
		t.Fatal("infinite recursion did not raise")
	}
	wantExc(t, AsException(err), "RecursionError", "maximum recursion depth exceeded")
}

// ---------------------------------------------------------------------------
// Closures
// ---------------------------------------------------------------------------

func TestClosureCapturesVariable(t *testing.T) {
	// def outer(x):
	//     def inner(): return x + 1
	//     return inner()
	// outer(41) -> 42
	inner := &Code{
		Name: "inner", QualName: "outer.<locals>.inner",
		FreeVars:  []string{"x"},
		Constants: []Value{MakeInt(1)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadDeref, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpBinaryAdd)
			b.Emit(OpReturn)
		}),
	}
	outer := &Code{
		Name: "outer", QualName: "outer", NumLocals: 1,
		Params:    []Param{{Name: "x"}},
		CellVars:  []string{"x"},
		Constants: []Value{MakeStr("outer.<locals>.inner"), MakeCode(inner)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadClosure, 0)
			b.EmitByte(OpBuildTuple, 1)
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitByte(OpMakeFunction, MakeFuncClosure)
			b.EmitByte(OpCall, 0)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, makeFuncProgram(outer, MakeInt(41))), 42)
}

func TestClosureSharesMutableCell(t *testing.T) {
	// def counter():
	//     n = 0           (cell variable)
	//     def bump(): n = n + 1
	//     bump(); bump()
	//     return n
	bump := &Code{
		Name: "bump", QualName: "counter.<locals>.bump",
		FreeVars:  []string{"n"},
		Constants: []Value{MakeInt(1)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadDeref, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpBinaryAdd)
			b.EmitUint16(OpStoreDeref, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpReturn)
		}),
	}
	counter := &Code{
		Name: "counter", QualName: "counter", NumLocals: 1,
		CellVars:  []string{"n"},
		Constants: []Value{MakeInt(0), MakeStr("counter.<locals>.bump"), MakeCode(bump)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpStoreDeref, 0)
			b.EmitUint16(OpLoadClosure, 0)
			b.EmitByte(OpBuildTuple, 1)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpMakeFunction, MakeFuncClosure)
			b.EmitUint16(OpStoreFast, 0)
			b.EmitUint16(OpLoadFast, 0)
			b.EmitByte(OpCall, 0)
			b.Emit(OpPop)
			b.EmitUint16(OpLoadFast, 0)
			b.EmitByte(OpCall, 0)
			b.Emit(OpPop)
			b.EmitUint16(OpLoadDeref, 0)
			b.Emit(OpReturn)
		}),
	}
	wantInt(t, mustRun(t, makeFuncProgram(counter)), 2)
}

// ---------------------------------------------------------------------------
// Exception handling
// ---------------------------------------------------------------------------

func TestTryExceptCatches(t *testing.T) {
	// try: raise ValueError("boom")
	// except ValueError: return "caught"
	code := &Code{
		Name: "main", QualName: "main",
		Names:     []string{"ValueError"},
		Constants: []Value{MakeStr("boom"), MakeStr("ValueError"), MakeStr("caught")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			handler := b.NewLabel()
			reraise := b.NewLabel()
			b.EmitJump(OpSetupExcept, handler)
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpCall, 1)
			b.EmitByte(OpRaise, 1)
			b.Mark(handler)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpCheckExcMatch)
			b.EmitJump(OpPopJumpIfFalse, reraise)
			b.Emit(OpPopExcept)
			b.Emit(OpPop)
			b.EmitUint16(OpLoadConst, 2)
			b.Emit(OpReturn)
			b.Mark(reraise)
			b.Emit(OpReraise)
		}),
	}
	wantStr(t, mustRun(t, code), "caught")
}

func TestTryExceptWrongTypePropagates(t *testing.T) {
	// try: raise ValueError("boom")
	// except KeyError: ...
	code := &Code{
		Name: "main", QualName: "main",
		Names:     []string{"ValueError"},
		Constants: []Value{MakeStr("boom"), MakeStr("KeyError"), MakeStr("caught")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			handler := b.NewLabel()
			reraise := b.NewLabel()
			b.EmitJump(OpSetupExcept, handler)
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpCall, 1)
			b.EmitByte(OpRaise, 1)
			b.Mark(handler)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpCheckExcMatch)
			b.EmitJump(OpPopJumpIfFalse, reraise)
			b.Emit(OpPopExcept)
			b.Emit(OpPop)
			b.EmitUint16(OpLoadConst, 2)
			b.Emit(OpReturn)
			b.Mark(reraise)
			b.Emit(OpReraise)
		}),
	}
	wantExc(t, mustFail(t, code), "ValueError", "boom")
}

func TestExceptMatchesParentType(t *testing.T) {
	// KeyError is caught by an except LookupError clause.
	code := &Code{
		Name: "main", QualName: "main",
		Names:     []string{"KeyError"},
		Constants: []Value{MakeStr("nope"), MakeStr("LookupError"), MakeStr("caught")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			handler := b.NewLabel()
			reraise := b.NewLabel()
			b.EmitJump(OpSetupExcept, handler)
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpCall, 1)
			b.EmitByte(OpRaise, 1)
			b.Mark(handler)
			b.EmitUint16(OpLoadConst, 1)
			b.Emit(OpCheckExcMatch)
			b.EmitJump(OpPopJumpIfFalse, reraise)
			b.Emit(OpPopExcept)
			b.Emit(OpPop)
			b.EmitUint16(OpLoadConst, 2)
			b.Emit(OpReturn)
			b.Mark(reraise)
			b.Emit(OpReraise)
		}),
	}
	wantStr(t, mustRun(t, code), "caught")
}

func TestBareRaiseOutsideHandler(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main",
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitByte(OpRaise, 0)
		}),
	}
	wantExc(t, mustFail(t, code), "RuntimeError", "No active exception to re-raise")
}

func TestRaiseString(t *testing.T) {
	// raise "bad thing" becomes a RuntimeError.
	code := &Code{
		Name: "main", QualName: "main",
		Constants: []Value{MakeStr("bad thing")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpRaise, 1)
		}),
	}
	wantExc(t, mustFail(t, code), "RuntimeError", "bad thing")
}

func TestRaiseExceptionType(t *testing.T) {
	// raise KeyError (the bare type)
	code := &Code{
		Name: "main", QualName: "main",
		Names: []string{"KeyError"},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitByte(OpRaise, 1)
		}),
	}
	wantExc(t, mustFail(t, code), "KeyError", "")
}

func TestRaiseFromSetsCause(t *testing.T) {
	// raise ValueError("new") from KeyError("old")
	code := &Code{
		Name: "main", QualName: "main",
		Names:     []string{"ValueError", "KeyError"},
		Constants: []Value{MakeStr("new"), MakeStr("old")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpCall, 1)
			b.EmitUint16(OpLoadGlobal, 1)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitByte(OpCall, 1)
			b.EmitByte(OpRaise, 2)
		}),
	}
	exc := mustFail(t, code)
	wantExc(t, exc, "ValueError", "new")
	if exc.Cause == nil {
		t.Fatal("cause not set")
	}
	wantExc(t, exc.Cause, "KeyError", "old")
	if !exc.SuppressContext {
		t.Error("explicit cause should suppress context")
	}
}

func TestRaiseFromNoneSuppressesContext(t *testing.T) {
	// except: raise ValueError("new") from None
	code := &Code{
		Name: "main", QualName: "main",
		Names:     []string{"KeyError", "ValueError"},
		Constants: []Value{MakeStr("old"), MakeStr("new"), None},
		Bytecode: asm(func(b *BytecodeBuilder) {
			handler := b.NewLabel()
			b.EmitJump(OpSetupExcept, handler)
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpCall, 1)
			b.EmitByte(OpRaise, 1)
			b.Mark(handler)
			b.Emit(OpPop)
			b.EmitUint16(OpLoadGlobal, 1)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitByte(OpCall, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpRaise, 2)
		}),
	}
	exc := mustFail(t, code)
	wantExc(t, exc, "ValueError", "new")
	if !exc.SuppressContext {
		t.Error("raise from None should suppress context")
	}
}

func TestRaiseInHandlerChainsContext(t *testing.T) {
	// try: raise KeyError("old")
	// except: raise ValueError("new")
	code := &Code{
		Name: "main", QualName: "main",
		Names:     []string{"KeyError", "ValueError"},
		Constants: []Value{MakeStr("old"), MakeStr("new")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			handler := b.NewLabel()
			b.EmitJump(OpSetupExcept, handler)
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpCall, 1)
			b.EmitByte(OpRaise, 1)
			b.Mark(handler)
			b.Emit(OpPop)
			b.EmitUint16(OpLoadGlobal, 1)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitByte(OpCall, 1)
			b.EmitByte(OpRaise, 1)
		}),
	}
	exc := mustFail(t, code)
	wantExc(t, exc, "ValueError", "new")
	if exc.Context == nil {
		t.Fatal("context not chained")
	}
	wantExc(t, exc.Context, "KeyError", "old")
	if exc.SuppressContext {
		t.Error("implicit context should not be suppressed")
	}
}

// ---------------------------------------------------------------------------
// Finally semantics
// ---------------------------------------------------------------------------

// markVM wires a "mark" builtin that records each call, so tests can
// observe which cleanup paths actually ran.
func markVM() (*VM, *[]string) {
	var log []string
	v := NewVM()
	v.RegisterBuiltin("mark", func(args []Value) (Value, error) {
		log = append(log, args[0].Str())
		return None, nil
	})
	return v, &log
}

// emitMark emits mark(name) using the given name-pool and constant
// indices.
func emitMark(b *BytecodeBuilder, nameIdx, constIdx uint16) {
	b.EmitUint16(OpLoadGlobal, nameIdx)
	b.EmitUint16(OpLoadConst, constIdx)
	b.EmitByte(OpCall, 1)
	b.Emit(OpPop)
}

func TestFinallyRunsOnNormalExit(t *testing.T) {
	// try: mark("body")
	// finally: mark("finally")
	// return 1
	code := &Code{
		Name: "main", QualName: "main",
		Names:     []string{"mark"},
		Constants: []Value{MakeStr("body"), MakeStr("finally"), MakeInt(1), None},
		Bytecode: asm(func(b *BytecodeBuilder) {
			fin := b.NewLabel()
			b.EmitJump(OpSetupFinally, fin)
			emitMark(b, 0, 0)
			b.Emit(OpPopBlock)
			b.EmitUint16(OpLoadConst, 3)
			b.Mark(fin)
			emitMark(b, 0, 1)
			b.Emit(OpEndFinally)
			b.EmitUint16(OpLoadConst, 2)
			b.Emit(OpReturn)
		}),
	}
	v, log := markVM()
	result, err := v.RunCode(code, nil)
	if err != nil {
		t.Fatalf("RunCode failed: %v", err)
	}
	wantInt(t, result, 1)
	if got := strings.Join(*log, ","); got != "body,finally" {
		t.Errorf("execution order = %s, want body,finally", got)
	}
}

func TestFinallyRunsOnReturn(t *testing.T) {
	// try: return 7
	// finally: mark("finally")
	code := &Code{
		Name: "main", QualName: "main",
		Names:     []string{"mark"},
		Constants: []Value{MakeInt(7), MakeStr("finally")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			fin := b.NewLabel()
			b.EmitJump(OpSetupFinally, fin)
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpReturn)
			b.Mark(fin)
			emitMark(b, 0, 1)
			b.Emit(OpEndFinally)
		}),
	}
	v, log := markVM()
	result, err := v.RunCode(code, nil)
	if err != nil {
		t.Fatalf("RunCode failed: %v", err)
	}
	wantInt(t, result, 7)
	if got := strings.Join(*log, ","); got != "finally" {
		t.Errorf("log = %s, want finally", got)
	}
}

func TestFinallyRunsOnRaise(t *testing.T) {
	// try: raise KeyError("x")
	// finally: mark("finally")
	code := &Code{
		Name: "main", QualName: "main",
		Names:     []string{"KeyError", "mark"},
		Constants: []Value{MakeStr("x"), MakeStr("finally")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			fin := b.NewLabel()
			b.EmitJump(OpSetupFinally, fin)
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitUint16(OpLoadConst, 0)
			b.EmitByte(OpCall, 1)
			b.EmitByte(OpRaise, 1)
			b.Mark(fin)
			emitMark(b, 1, 1)
			b.Emit(OpEndFinally)
		}),
	}
	v, log := markVM()
	_, err := v.RunCode(code, nil)
	if err == nil {
		t.Fatal("exception swallowed by finally")
	}
	wantExc(t, AsException(err), "KeyError", "x")
	if got := strings.Join(*log, ","); got != "finally" {
		t.Errorf("log = %s, want finally", got)
	}
}

func TestNestedFinallyOnReturn(t *testing.T) {
	// try:
	//     try: return 3
	//     finally: mark("inner")
	// finally: mark("outer")
	code := &Code{
		Name: "main", QualName: "main",
		Names:     []string{"mark"},
		Constants: []Value{MakeInt(3), MakeStr("inner"), MakeStr("outer")},
		Bytecode: asm(func(b *BytecodeBuilder) {
			outerFin := b.NewLabel()
			innerFin := b.NewLabel()
			b.EmitJump(OpSetupFinally, outerFin)
			b.EmitJump(OpSetupFinally, innerFin)
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpReturn)
			b.Mark(innerFin)
			emitMark(b, 0, 1)
			b.Emit(OpEndFinally)
			b.Mark(outerFin)
			emitMark(b, 0, 2)
			b.Emit(OpEndFinally)
		}),
	}
	v, log := markVM()
	result, err := v.RunCode(code, nil)
	if err != nil {
		t.Fatalf("RunCode failed: %v", err)
	}
	wantInt(t, result, 3)
	if got := strings.Join(*log, ","); got != "inner,outer" {
		t.Errorf("finally order = %s, want inner,outer", got)
	}
}

func TestBreakThroughFinally(t *testing.T) {
	// for x in (1, 2, 3):
	//     try: break
	//     finally: mark("finally")
	// return "done"
	code := &Code{
		Name: "main", QualName: "main", NumLocals: 1,
		Names: []string{"mark"},
		Constants: []Value{
			MakeTuple(NewTuple([]Value{MakeInt(1), MakeInt(2), MakeInt(3)})),
			MakeStr("finally"), MakeStr("done"),
		},
		Bytecode: asm(func(b *BytecodeBuilder) {
			loop := b.NewLabel()
			done := b.NewLabel()
			fin := b.NewLabel()
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpGetIter)
			b.Mark(loop)
			b.EmitJump(OpForIter, done)
			b.EmitUint16(OpStoreFast, 0)
			b.EmitJump(OpSetupFinally, fin)
			// break: discard the block, park the loop-exit offset and the
			// break marker, and fall into the finally body.
			b.Emit(OpPopBlock)
			b.EmitUint16(OpLoadConst, 3)
			b.EmitUint16(OpLoadConst, 4)
			b.Mark(fin)
			emitMark(b, 0, 1)
			b.Emit(OpEndFinally)
			b.EmitJump(OpJump, loop)
			b.Mark(done)
			b.Emit(OpPop)
			b.EmitUint16(OpLoadConst, 2)
			b.Emit(OpReturn)
		}),
	}
	// The break's jump target is the loop exit, whose offset is only
	// known after assembly: the trailing POP; LOAD_CONST; RETURN.
	exit := len(code.Bytecode) - 5
	code.Constants = append(code.Constants,
		MakeInt(int64(exit)), MakeInt(finallyMarkerBreak))
	v, log := markVM()
	result, err := v.RunCode(code, nil)
	if err != nil {
		t.Fatalf("RunCode failed: %v", err)
	}
	wantStr(t, result, "done")
	if got := strings.Join(*log, ","); got != "finally" {
		t.Errorf("finally ran %q times, want exactly once", got)
	}
}

// ---------------------------------------------------------------------------
// With statement
// ---------------------------------------------------------------------------

// managerClassCode builds the body code for a class CM whose __enter__
// returns 42 and whose __exit__ returns the given suppress flag.
func managerClassCode(suppress bool) *Code {
	enter := &Code{
		Name: "__enter__", QualName: "CM.__enter__", NumLocals: 1,
		Params:    []Param{{Name: "self"}},
		Constants: []Value{MakeInt(42)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpReturn)
		}),
	}
	exit := &Code{
		Name: "__exit__", QualName: "CM.__exit__", NumLocals: 4,
		Params:    []Param{{Name: "self"}, {Name: "exc_type"}, {Name: "exc"}, {Name: "tb"}},
		Constants: []Value{MakeBool(suppress)},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.Emit(OpReturn)
		}),
	}
	// The class body returns its namespace as a dict.
	return &Code{
		Name: "CM", QualName: "CM",
		Constants: []Value{
			MakeStr("__enter__"), MakeStr("CM.__enter__"), MakeCode(enter),
			MakeStr("__exit__"), MakeStr("CM.__exit__"), MakeCode(exit),
		},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpLoadConst, 0)
			b.EmitUint16(OpLoadConst, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpMakeFunction, 0)
			b.EmitUint16(OpLoadConst, 3)
			b.EmitUint16(OpLoadConst, 4)
			b.EmitUint16(OpLoadConst, 5)
			b.EmitByte(OpMakeFunction, 0)
			b.EmitByte(OpBuildDict, 2)
			b.Emit(OpReturn)
		}),
	}
}

// emitManagerClass emits the class definition and stores it under the
// global at name index 0, assuming constants 0 and 1 hold the body code
// and the class name.
func emitManagerClass(b *BytecodeBuilder) {
	b.EmitUint16(OpLoadConst, 1)
	b.EmitUint16(OpLoadConst, 0)
	b.EmitByte(OpMakeFunction, 0)
	b.EmitUint16(OpLoadConst, 1)
	b.EmitByte(OpBuildClass, 0)
	b.EmitUint16(OpStoreGlobal, 0)
}

func TestWithNormalExitCallsExit(t *testing.T) {
	// with CM() as v: pass
	// return v
	code := &Code{
		Name: "main", QualName: "main", NumLocals: 1,
		Names: []string{"CM"},
		Constants: []Value{
			MakeCode(managerClassCode(false)), MakeStr("CM"), None,
		},
		Bytecode: asm(func(b *BytecodeBuilder) {
			emitManagerClass(b)
			handler := b.NewLabel()
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitByte(OpCall, 0)
			b.EmitJump(OpSetupWith, handler)
			b.EmitUint16(OpStoreFast, 0)
			// Normal exit: discard the block, call __exit__(None, None, None).
			b.Emit(OpPopBlock)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpCall, 3)
			b.Emit(OpPop)
			b.EmitUint16(OpLoadFast, 0)
			b.Emit(OpReturn)
			b.Mark(handler)
			b.Emit(OpWithExceptStart)
			b.Emit(OpPop)
			b.Emit(OpReraise)
		}),
	}
	wantInt(t, mustRun(t, code), 42)
}

func TestWithSuppressesException(t *testing.T) {
	// with CM(): raise ValueError("boom")   (__exit__ returns True)
	// return "suppressed"
	code := &Code{
		Name: "main", QualName: "main", NumLocals: 1,
		Names: []string{"CM", "ValueError"},
		Constants: []Value{
			MakeCode(managerClassCode(true)), MakeStr("CM"),
			MakeStr("boom"), MakeStr("suppressed"),
		},
		Bytecode: asm(func(b *BytecodeBuilder) {
			emitManagerClass(b)
			handler := b.NewLabel()
			suppressed := b.NewLabel()
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitByte(OpCall, 0)
			b.EmitJump(OpSetupWith, handler)
			b.EmitUint16(OpStoreFast, 0)
			b.EmitUint16(OpLoadGlobal, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpCall, 1)
			b.EmitByte(OpRaise, 1)
			b.Mark(handler)
			b.Emit(OpWithExceptStart)
			b.EmitJump(OpPopJumpIfTrue, suppressed)
			b.Emit(OpReraise)
			b.Mark(suppressed)
			b.Emit(OpPopExcept)
			b.Emit(OpPop)
			b.Emit(OpPop)
			b.EmitUint16(OpLoadConst, 3)
			b.Emit(OpReturn)
		}),
	}
	wantStr(t, mustRun(t, code), "suppressed")
}

func TestWithReraisesWhenExitReturnsFalse(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main", NumLocals: 1,
		Names: []string{"CM", "ValueError"},
		Constants: []Value{
			MakeCode(managerClassCode(false)), MakeStr("CM"),
			MakeStr("boom"), MakeStr("unreached"),
		},
		Bytecode: asm(func(b *BytecodeBuilder) {
			emitManagerClass(b)
			handler := b.NewLabel()
			suppressed := b.NewLabel()
			b.EmitUint16(OpLoadGlobal, 0)
			b.EmitByte(OpCall, 0)
			b.EmitJump(OpSetupWith, handler)
			b.EmitUint16(OpStoreFast, 0)
			b.EmitUint16(OpLoadGlobal, 1)
			b.EmitUint16(OpLoadConst, 2)
			b.EmitByte(OpCall, 1)
			b.EmitByte(OpRaise, 1)
			b.Mark(handler)
			b.Emit(OpWithExceptStart)
			b.EmitJump(OpPopJumpIfTrue, suppressed)
			b.Emit(OpReraise)
			b.Mark(suppressed)
			b.Emit(OpPopExcept)
			b.Emit(OpPop)
			b.Emit(OpPop)
			b.EmitUint16(OpLoadConst, 3)
			b.Emit(OpReturn)
		}),
	}
	wantExc(t, mustFail(t, code), "ValueError", "boom")
}

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

func TestImportNameAndFrom(t *testing.T) {
	// import helpers; from helpers import shout
	code := &Code{
		Name: "main", QualName: "main", NumLocals: 1,
		Names: []string{"helpers", "shout"},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpImportName, 0)
			b.EmitUint16(OpStoreFast, 0)
			b.EmitUint16(OpLoadFast, 0)
			b.EmitUint16(OpImportFrom, 1)
			b.Emit(OpReturn)
		}),
	}
	v := NewVM()
	v.SetLoader(func(name string) (*Module, error) {
		if name != "helpers" {
			return nil, NewImportError("No module named '" + name + "'")
		}
		m := NewModule(name)
		m.Set("shout", MakeStr("HEY"))
		return m, nil
	})
	result, err := v.RunCode(code, nil)
	if err != nil {
		t.Fatalf("RunCode failed: %v", err)
	}
	wantStr(t, result, "HEY")
}

func TestImportFromMissingAttr(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main",
		Names: []string{"helpers", "absent"},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpImportName, 0)
			b.EmitUint16(OpImportFrom, 1)
			b.Emit(OpReturn)
		}),
	}
	v := NewVM()
	v.SetLoader(func(name string) (*Module, error) {
		return NewModule(name), nil
	})
	_, err := v.RunCode(code, nil)
	if err == nil {
		t.Fatal("import of a missing attribute did not raise")
	}
	wantExc(t, AsException(err), "ImportError", "cannot import name 'absent' from 'helpers'")
}

func TestImportMissingModule(t *testing.T) {
	code := &Code{
		Name: "main", QualName: "main",
		Names: []string{"nosuch"},
		Bytecode: asm(func(b *BytecodeBuilder) {
			b.EmitUint16(OpImportName, 0)
			b.Emit(OpReturn)
		}),
	}
	wantExc(t, mustFail(t, code), "ImportError", "No module named 'nosuch'")
}
