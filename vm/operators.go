package vm

import (
	"fmt"
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Binary operators
// ---------------------------------------------------------------------------

// BinaryOp applies a binary or in-place opcode to two operands. Ints
// promote to floats when either side is a float; division by zero is a
// ZeroDivisionError, never a fault.
func BinaryOp(op Opcode, a, b Value) (Value, error) {
	switch op {
	case OpBinaryAdd, OpInplaceAdd:
		return binaryAdd(a, b)
	case OpBinarySub, OpInplaceSub:
		if bothInts(a, b) {
			return MakeInt(a.Int() - b.Int()), nil
		}
		if bothNumbers(a, b) {
			return MakeFloat(a.AsFloat() - b.AsFloat()), nil
		}
	case OpBinaryMul, OpInplaceMul:
		return binaryMul(a, b)
	case OpBinaryDiv, OpInplaceDiv:
		if bothNumbers(a, b) {
			if b.AsFloat() == 0 {
				return None, NewZeroDivisionError("division by zero")
			}
			return MakeFloat(a.AsFloat() / b.AsFloat()), nil
		}
	case OpBinaryFloorDiv, OpInplaceFloorDiv:
		if bothInts(a, b) {
			if b.Int() == 0 {
				return None, NewZeroDivisionError("integer division or modulo by zero")
			}
			return MakeInt(floorDivInt(a.Int(), b.Int())), nil
		}
		if bothNumbers(a, b) {
			if b.AsFloat() == 0 {
				return None, NewZeroDivisionError("float floor division by zero")
			}
			return MakeFloat(math.Floor(a.AsFloat() / b.AsFloat())), nil
		}
	case OpBinaryMod, OpInplaceMod:
		return binaryMod(a, b)
	case OpBinaryPow, OpInplacePow:
		return binaryPow(a, b)
	case OpBinaryLshift, OpInplaceLshift:
		if bothInts(a, b) {
			if b.Int() < 0 {
				return None, NewValueError("negative shift count")
			}
			return MakeInt(a.Int() << uint(b.Int())), nil
		}
	case OpBinaryRshift, OpInplaceRshift:
		if bothInts(a, b) {
			if b.Int() < 0 {
				return None, NewValueError("negative shift count")
			}
			return MakeInt(a.Int() >> uint(b.Int())), nil
		}
	case OpBinaryAnd, OpInplaceAnd:
		if bothInts(a, b) {
			return MakeInt(a.Int() & b.Int()), nil
		}
	case OpBinaryOr, OpInplaceOr:
		if bothInts(a, b) {
			return MakeInt(a.Int() | b.Int()), nil
		}
	case OpBinaryXor, OpInplaceXor:
		if bothInts(a, b) {
			return MakeInt(a.Int() ^ b.Int()), nil
		}
	}
	return None, binOpTypeError(op, a, b)
}

func binaryAdd(a, b Value) (Value, error) {
	if bothInts(a, b) {
		return MakeInt(a.Int() + b.Int()), nil
	}
	if bothNumbers(a, b) {
		return MakeFloat(a.AsFloat() + b.AsFloat()), nil
	}
	if a.IsStr() && b.IsStr() {
		return MakeStr(a.Str() + b.Str()), nil
	}
	if a.Kind() == KindList && b.Kind() == KindList {
		items := a.List().Snapshot()
		items = append(items, b.List().Snapshot()...)
		return MakeList(NewList(items)), nil
	}
	if a.Kind() == KindTuple && b.Kind() == KindTuple {
		left := a.Tuple().Items()
		right := b.Tuple().Items()
		items := make([]Value, 0, len(left)+len(right))
		items = append(items, left...)
		items = append(items, right...)
		return MakeTuple(NewTuple(items)), nil
	}
	return None, binOpTypeError(OpBinaryAdd, a, b)
}

func binaryMul(a, b Value) (Value, error) {
	if bothInts(a, b) {
		return MakeInt(a.Int() * b.Int()), nil
	}
	if bothNumbers(a, b) {
		return MakeFloat(a.AsFloat() * b.AsFloat()), nil
	}
	// Sequence repetition works with the int on either side.
	if a.IsInt() {
		a, b = b, a
	}
	if b.IsInt() {
		n := b.Int()
		if n < 0 {
			n = 0
		}
		switch a.Kind() {
		case KindStr:
			return MakeStr(strings.Repeat(a.Str(), int(n))), nil
		case KindList:
			return MakeList(NewList(repeatItems(a.List().Snapshot(), int(n)))), nil
		case KindTuple:
			return MakeTuple(NewTuple(repeatItems(a.Tuple().Items(), int(n)))), nil
		}
	}
	return None, binOpTypeError(OpBinaryMul, a, b)
}

func repeatItems(items []Value, n int) []Value {
	out := make([]Value, 0, len(items)*n)
	for i := 0; i < n; i++ {
		out = append(out, items...)
	}
	return out
}

func binaryMod(a, b Value) (Value, error) {
	if bothInts(a, b) {
		if b.Int() == 0 {
			return None, NewZeroDivisionError("integer division or modulo by zero")
		}
		return MakeInt(floorModInt(a.Int(), b.Int())), nil
	}
	if bothNumbers(a, b) {
		bf := b.AsFloat()
		if bf == 0 {
			return None, NewZeroDivisionError("float modulo")
		}
		m := math.Mod(a.AsFloat(), bf)
		if m != 0 && (m < 0) != (bf < 0) {
			m += bf
		}
		return MakeFloat(m), nil
	}
	return None, binOpTypeError(OpBinaryMod, a, b)
}

func binaryPow(a, b Value) (Value, error) {
	if bothInts(a, b) {
		exp := b.Int()
		if exp >= 0 {
			return MakeInt(intPow(a.Int(), exp)), nil
		}
		return MakeFloat(math.Pow(float64(a.Int()), float64(exp))), nil
	}
	if bothNumbers(a, b) {
		return MakeFloat(math.Pow(a.AsFloat(), b.AsFloat())), nil
	}
	return None, binOpTypeError(OpBinaryPow, a, b)
}

// floorDivInt rounds the quotient toward negative infinity.
func floorDivInt(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// floorModInt gives a remainder whose sign follows the divisor, so
// (a // b) * b + (a % b) == a holds.
func floorModInt(a, b int64) int64 {
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

func intPow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

func bothInts(a, b Value) bool    { return a.IsInt() && b.IsInt() }
func bothNumbers(a, b Value) bool { return a.IsNumber() && b.IsNumber() }

func binOpTypeError(op Opcode, a, b Value) error {
	return NewTypeError(fmt.Sprintf("unsupported operand type(s) for %s: '%s' and '%s'",
		opSymbol(op), a.TypeName(), b.TypeName()))
}

func opSymbol(op Opcode) string {
	switch op {
	case OpBinaryAdd, OpInplaceAdd:
		return "+"
	case OpBinarySub, OpInplaceSub:
		return "-"
	case OpBinaryMul, OpInplaceMul:
		return "*"
	case OpBinaryDiv, OpInplaceDiv:
		return "/"
	case OpBinaryFloorDiv, OpInplaceFloorDiv:
		return "//"
	case OpBinaryMod, OpInplaceMod:
		return "%"
	case OpBinaryPow, OpInplacePow:
		return "**"
	case OpBinaryLshift, OpInplaceLshift:
		return "<<"
	case OpBinaryRshift, OpInplaceRshift:
		return ">>"
	case OpBinaryAnd, OpInplaceAnd:
		return "&"
	case OpBinaryOr, OpInplaceOr:
		return "|"
	case OpBinaryXor, OpInplaceXor:
		return "^"
	case OpCompareLt:
		return "<"
	case OpCompareLe:
		return "<="
	case OpCompareGt:
		return ">"
	case OpCompareGe:
		return ">="
	}
	return op.Name()
}

// ---------------------------------------------------------------------------
// Unary operators
// ---------------------------------------------------------------------------

// UnaryOp applies a unary opcode.
func UnaryOp(op Opcode, v Value) (Value, error) {
	switch op {
	case OpUnaryNeg:
		if v.IsInt() {
			return MakeInt(-v.Int()), nil
		}
		if v.IsFloat() {
			return MakeFloat(-v.Float()), nil
		}
		return None, NewTypeError(fmt.Sprintf("bad operand type for unary -: '%s'", v.TypeName()))
	case OpUnaryPos:
		if v.IsNumber() {
			return v, nil
		}
		return None, NewTypeError(fmt.Sprintf("bad operand type for unary +: '%s'", v.TypeName()))
	case OpUnaryNot:
		return MakeBool(!v.IsTruthy()), nil
	case OpUnaryInvert:
		if v.IsInt() {
			return MakeInt(^v.Int()), nil
		}
		return None, NewTypeError(fmt.Sprintf("bad operand type for unary ~: '%s'", v.TypeName()))
	}
	return None, NewTypeError(fmt.Sprintf("unknown unary operator %s", op))
}

// ---------------------------------------------------------------------------
// Comparisons
// ---------------------------------------------------------------------------

// Compare applies a comparison opcode. Ordering works across int and
// float, on strings, and lexicographically on lists and tuples; mixing
// anything else is a TypeError.
func Compare(op Opcode, a, b Value) (Value, error) {
	switch op {
	case OpCompareEq:
		return MakeBool(Equal(a, b)), nil
	case OpCompareNe:
		return MakeBool(!Equal(a, b)), nil
	case OpCompareIs:
		return MakeBool(Is(a, b)), nil
	case OpCompareIsNot:
		return MakeBool(!Is(a, b)), nil
	case OpCompareIn:
		ok, err := Contains(a, b)
		if err != nil {
			return None, err
		}
		return MakeBool(ok), nil
	case OpCompareNotIn:
		ok, err := Contains(a, b)
		if err != nil {
			return None, err
		}
		return MakeBool(!ok), nil
	}

	cmp, err := orderValues(op, a, b)
	if err != nil {
		return None, err
	}
	switch op {
	case OpCompareLt:
		return MakeBool(cmp < 0), nil
	case OpCompareLe:
		return MakeBool(cmp <= 0), nil
	case OpCompareGt:
		return MakeBool(cmp > 0), nil
	case OpCompareGe:
		return MakeBool(cmp >= 0), nil
	}
	return None, NewTypeError(fmt.Sprintf("unknown comparison operator %s", op))
}

func orderValues(op Opcode, a, b Value) (int, error) {
	if a.IsNumber() && b.IsNumber() {
		af, bf := a.AsFloat(), b.AsFloat()
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		}
		return 0, nil
	}
	if a.IsStr() && b.IsStr() {
		return strings.Compare(a.Str(), b.Str()), nil
	}
	if a.Kind() == KindList && b.Kind() == KindList {
		return orderSequences(op, a.List().Snapshot(), b.List().Snapshot())
	}
	if a.Kind() == KindTuple && b.Kind() == KindTuple {
		return orderSequences(op, a.Tuple().Items(), b.Tuple().Items())
	}
	return 0, NewTypeError(fmt.Sprintf("'%s' not supported between instances of '%s' and '%s'",
		opSymbol(op), a.TypeName(), b.TypeName()))
}

func orderSequences(op Opcode, a, b []Value) (int, error) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if Equal(a[i], b[i]) {
			continue
		}
		return orderValues(op, a[i], b[i])
	}
	switch {
	case len(a) < len(b):
		return -1, nil
	case len(a) > len(b):
		return 1, nil
	}
	return 0, nil
}

// Contains implements the membership test: substring search for
// strings, element scan for sequences, key lookup for dicts and sets.
func Contains(item, container Value) (bool, error) {
	switch container.Kind() {
	case KindStr:
		if !item.IsStr() {
			return false, NewTypeError(fmt.Sprintf(
				"'in <string>' requires string as left operand, not %s", item.TypeName()))
		}
		return strings.Contains(container.Str(), item.Str()), nil
	case KindList:
		for _, v := range container.List().Snapshot() {
			if Equal(v, item) {
				return true, nil
			}
		}
		return false, nil
	case KindTuple:
		for _, v := range container.Tuple().Items() {
			if Equal(v, item) {
				return true, nil
			}
		}
		return false, nil
	case KindDict:
		k, err := DictKey(item)
		if err != nil {
			return false, err
		}
		_, ok := container.Dict().Get(k)
		return ok, nil
	case KindSet:
		k, err := DictKey(item)
		if err != nil {
			return false, err
		}
		return container.Set().Contains(k), nil
	default:
		return false, NewTypeError(fmt.Sprintf(
			"argument of type '%s' is not iterable", container.TypeName()))
	}
}

// ---------------------------------------------------------------------------
// Subscripts
// ---------------------------------------------------------------------------

// GetSubscript implements obj[key] for strings, lists, tuples, and
// dicts, including slice keys on sequences.
func GetSubscript(obj, key Value) (Value, error) {
	if key.Kind() == KindSlice {
		return getSlice(obj, key.Slice())
	}
	switch obj.Kind() {
	case KindList:
		l := obj.List()
		idx, err := normalizeIndex(key, l.Len(), "list")
		if err != nil {
			return None, err
		}
		return l.Get(idx), nil
	case KindTuple:
		t := obj.Tuple()
		idx, err := normalizeIndex(key, t.Len(), "tuple")
		if err != nil {
			return None, err
		}
		return t.Get(idx), nil
	case KindStr:
		runes := []rune(obj.Str())
		idx, err := normalizeIndex(key, len(runes), "string")
		if err != nil {
			return None, err
		}
		return MakeStr(string(runes[idx])), nil
	case KindDict:
		k, err := DictKey(key)
		if err != nil {
			return None, err
		}
		v, ok := obj.Dict().Get(k)
		if !ok {
			return None, NewKeyError(key.Repr())
		}
		return v, nil
	default:
		return None, NewTypeError(fmt.Sprintf(
			"'%s' object is not subscriptable", obj.TypeName()))
	}
}

// SetSubscript implements obj[key] = value for lists and dicts.
func SetSubscript(obj, key, value Value) error {
	switch obj.Kind() {
	case KindList:
		l := obj.List()
		idx, err := normalizeIndex(key, l.Len(), "list")
		if err != nil {
			return err
		}
		l.Set(idx, value)
		return nil
	case KindDict:
		k, err := DictKey(key)
		if err != nil {
			return err
		}
		obj.Dict().Set(k, value)
		return nil
	default:
		return NewTypeError(fmt.Sprintf(
			"'%s' object does not support item assignment", obj.TypeName()))
	}
}

// DelSubscript implements del obj[key] for dicts.
func DelSubscript(obj, key Value) error {
	switch obj.Kind() {
	case KindDict:
		k, err := DictKey(key)
		if err != nil {
			return err
		}
		if !obj.Dict().Delete(k) {
			return NewKeyError(key.Repr())
		}
		return nil
	default:
		return NewTypeError(fmt.Sprintf(
			"'%s' object does not support item deletion", obj.TypeName()))
	}
}

func getSlice(obj Value, s *SliceObject) (Value, error) {
	switch obj.Kind() {
	case KindList:
		items, err := sliceItems(obj.List().Snapshot(), s)
		if err != nil {
			return None, err
		}
		return MakeList(NewList(items)), nil
	case KindTuple:
		items, err := sliceItems(obj.Tuple().Items(), s)
		if err != nil {
			return None, err
		}
		return MakeTuple(NewTuple(items)), nil
	case KindStr:
		runes := []rune(obj.Str())
		items := make([]Value, len(runes))
		for i, r := range runes {
			items[i] = MakeStr(string(r))
		}
		sliced, err := sliceItems(items, s)
		if err != nil {
			return None, err
		}
		var sb strings.Builder
		for _, v := range sliced {
			sb.WriteString(v.Str())
		}
		return MakeStr(sb.String()), nil
	default:
		return None, NewTypeError(fmt.Sprintf(
			"'%s' object is not subscriptable", obj.TypeName()))
	}
}

func sliceItems(items []Value, s *SliceObject) ([]Value, error) {
	start, stop, step, err := s.Indices(len(items))
	if err != nil {
		return nil, err
	}
	var out []Value
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, items[i])
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, items[i])
		}
	}
	return out, nil
}

// normalizeIndex resolves a possibly negative index against a length.
func normalizeIndex(key Value, length int, what string) (int, error) {
	if !key.IsInt() {
		return 0, NewTypeError(fmt.Sprintf(
			"%s indices must be integers, not %s", what, key.TypeName()))
	}
	idx := int(key.Int())
	if idx < 0 {
		idx += length
	}
	if idx < 0 || idx >= length {
		return 0, NewIndexError(fmt.Sprintf("%s index out of range", what))
	}
	return idx, nil
}
