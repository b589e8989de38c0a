package vm

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Bytecode verification
// ---------------------------------------------------------------------------

// VerifyCode checks a code object so that running it cannot take the
// dispatcher out of bounds: every opcode must be known, every operand
// complete, every jump must land on an instruction boundary, and every
// pool index must be in range. Nested code constants are checked too.
//
// The interpreter assumes verified code; images loaded from disk or
// received over the wire go through here first.
func VerifyCode(code *Code) error {
	return verifyCode(code, codeLabel(code))
}

func codeLabel(code *Code) string {
	if code == nil {
		return "<nil>"
	}
	if code.QualName != "" {
		return code.QualName
	}
	if code.Name != "" {
		return code.Name
	}
	return "<code>"
}

func verifyCode(code *Code, where string) error {
	if code == nil {
		return fmt.Errorf("verify %s: nil code object", where)
	}
	if code.NumLocals < 0 {
		return fmt.Errorf("verify %s: negative local count %d", where, code.NumLocals)
	}
	if code.NumLocals < len(code.Params) {
		return fmt.Errorf("verify %s: %d locals cannot hold %d parameters", where, code.NumLocals, len(code.Params))
	}

	bc := code.Bytecode

	// First pass: instruction boundaries. A jump may target any boundary
	// or the end of the bytecode (falling off the end returns None).
	boundary := make(map[int]bool, len(bc)/2)
	for i := 0; i < len(bc); {
		boundary[i] = true
		op := Opcode(bc[i])
		info, ok := opcodeTable[op]
		if !ok {
			return fmt.Errorf("verify %s: unknown opcode 0x%02X at offset %d", where, byte(op), i)
		}
		if i+1+info.OperandBytes > len(bc) {
			return fmt.Errorf("verify %s: truncated operand for %s at offset %d", where, info.Name, i)
		}
		i += 1 + info.OperandBytes
	}

	// Second pass: operand ranges.
	for i := 0; i < len(bc); {
		op := Opcode(bc[i])
		info := opcodeTable[op]
		end := i + 1 + info.OperandBytes

		switch {
		case op.IsJump():
			off := int16(binary.LittleEndian.Uint16(bc[i+1:]))
			target := end + int(off)
			if target < 0 || target > len(bc) {
				return fmt.Errorf("verify %s: %s at offset %d jumps to %d, outside [0, %d]", where, info.Name, i, target, len(bc))
			}
			if target != len(bc) && !boundary[target] {
				return fmt.Errorf("verify %s: %s at offset %d jumps into the middle of an instruction at %d", where, info.Name, i, target)
			}

		case op == OpLoadConst:
			idx := int(binary.LittleEndian.Uint16(bc[i+1:]))
			if idx >= len(code.Constants) {
				return fmt.Errorf("verify %s: LOAD_CONST %d at offset %d exceeds constant pool (%d)", where, idx, i, len(code.Constants))
			}

		case op == OpLoadFast || op == OpStoreFast:
			idx := int(binary.LittleEndian.Uint16(bc[i+1:]))
			if idx >= code.NumLocals {
				return fmt.Errorf("verify %s: %s %d at offset %d exceeds local slots (%d)", where, info.Name, idx, i, code.NumLocals)
			}

		case op == OpLoadDeref || op == OpStoreDeref || op == OpLoadClosure:
			idx := int(binary.LittleEndian.Uint16(bc[i+1:]))
			if idx >= code.NumCells() {
				return fmt.Errorf("verify %s: %s %d at offset %d exceeds cell slots (%d)", where, info.Name, idx, i, code.NumCells())
			}

		case usesNamePool(op):
			idx := int(binary.LittleEndian.Uint16(bc[i+1:]))
			if idx >= len(code.Names) {
				return fmt.Errorf("verify %s: %s %d at offset %d exceeds name pool (%d)", where, info.Name, idx, i, len(code.Names))
			}

		case op == OpMakeFunction:
			flags := bc[i+1]
			if flags&^(MakeFuncDefaults|MakeFuncKwDefaults|MakeFuncAnnotations|MakeFuncClosure) != 0 {
				return fmt.Errorf("verify %s: MAKE_FUNCTION at offset %d has unknown flags 0x%02X", where, i, flags)
			}

		case op == OpBuildSlice:
			if n := bc[i+1]; n != 2 && n != 3 {
				return fmt.Errorf("verify %s: BUILD_SLICE at offset %d has argc %d, want 2 or 3", where, i, n)
			}

		case op == OpRaise:
			if n := bc[i+1]; n > 2 {
				return fmt.Errorf("verify %s: RAISE at offset %d has argc %d, want 0..2", where, i, n)
			}

		case op == OpFormatValue:
			if conv := bc[i+1]; conv > FormatRepr {
				return fmt.Errorf("verify %s: FORMAT_VALUE at offset %d has conversion %d", where, i, conv)
			}
		}

		i = end
	}

	for ci, c := range code.Constants {
		if c.Kind() != KindCode {
			continue
		}
		inner := c.Code()
		label := codeLabel(inner)
		if label == "<code>" || label == "<nil>" {
			label = fmt.Sprintf("%s[const %d]", where, ci)
		}
		if err := verifyCode(inner, label); err != nil {
			return err
		}
	}
	return nil
}
