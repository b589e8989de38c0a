package vm

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Builtins registry
// ---------------------------------------------------------------------------

// Builtins holds the values resolved after a global lookup misses. Reads
// vastly outnumber writes, so it uses a read-write lock.
type Builtins struct {
	mu      sync.RWMutex
	entries map[string]Value
}

// NewBuiltins creates an empty registry.
func NewBuiltins() *Builtins {
	return &Builtins{entries: make(map[string]Value)}
}

// Get looks up a builtin by name.
func (b *Builtins) Get(name string) (Value, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.entries[name]
	return v, ok
}

// Set registers or replaces a builtin.
func (b *Builtins) Set(name string, v Value) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[name] = v
}

// Names returns the registered names in sorted order.
func (b *Builtins) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.entries))
	for name := range b.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Standard builtins
// ---------------------------------------------------------------------------

// installBuiltins registers the standard functions and the builtin
// exception types on a fresh VM.
func installBuiltins(vm *VM) {
	reg := func(name string, fn BuiltinFunc) {
		vm.builtins.Set(name, MakeBuiltin(NewBuiltin(name, fn)))
	}

	for _, name := range BuiltinExceptionNames() {
		t, _ := NewType(name, nil, nil)
		vm.builtins.Set(name, MakeType(t))
	}

	reg("print", func(args []Value) (Value, error) {
		parts := make([]string, len(args))
		for i, v := range args {
			parts[i] = v.Display()
		}
		if _, err := io.WriteString(vm.stdout, strings.Join(parts, " ")+"\n"); err != nil {
			return None, NewException("OSError", err.Error())
		}
		return None, nil
	})

	reg("len", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return None, NewTypeError(fmt.Sprintf("len() takes exactly one argument (%d given)", len(args)))
		}
		switch v := args[0]; v.Kind() {
		case KindStr:
			return MakeInt(int64(len([]rune(v.Str())))), nil
		case KindList:
			return MakeInt(int64(v.List().Len())), nil
		case KindTuple:
			return MakeInt(int64(v.Tuple().Len())), nil
		case KindDict:
			return MakeInt(int64(v.Dict().Len())), nil
		case KindSet:
			return MakeInt(int64(v.Set().Len())), nil
		default:
			return None, NewTypeError(fmt.Sprintf("object of type '%s' has no len()", v.TypeName()))
		}
	})

	reg("range", func(args []Value) (Value, error) {
		if len(args) < 1 || len(args) > 3 {
			return None, NewTypeError(fmt.Sprintf("range expected 1 to 3 arguments, got %d", len(args)))
		}
		for _, a := range args {
			if !a.IsInt() {
				return None, NewTypeError(fmt.Sprintf(
					"'%s' object cannot be interpreted as an integer", a.TypeName()))
			}
		}
		start, stop, step := int64(0), int64(0), int64(1)
		switch len(args) {
		case 1:
			stop = args[0].Int()
		case 2:
			start, stop = args[0].Int(), args[1].Int()
		case 3:
			start, stop, step = args[0].Int(), args[1].Int(), args[2].Int()
		}
		if step == 0 {
			return None, NewValueError("range() arg 3 must not be zero")
		}
		var items []Value
		if step > 0 {
			for i := start; i < stop; i += step {
				items = append(items, MakeInt(i))
			}
		} else {
			for i := start; i > stop; i += step {
				items = append(items, MakeInt(i))
			}
		}
		return MakeList(NewList(items)), nil
	})

	reg("type", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return None, NewTypeError(fmt.Sprintf("type() takes 1 argument (%d given)", len(args)))
		}
		switch v := args[0]; v.Kind() {
		case KindInstance:
			return MakeType(v.Instance().Class()), nil
		case KindType:
			return MakeStr("type"), nil
		case KindException:
			if t, ok := vm.builtins.Get(v.Exception().TypeName); ok && t.Kind() == KindType {
				return t, nil
			}
			return MakeStr(v.Exception().TypeName), nil
		default:
			return MakeStr(v.TypeName()), nil
		}
	})

	reg("isinstance", func(args []Value) (Value, error) {
		if len(args) != 2 {
			return None, NewTypeError(fmt.Sprintf("isinstance expected 2 arguments, got %d", len(args)))
		}
		ok, err := vm.isInstance(args[0], args[1])
		if err != nil {
			return None, err
		}
		return MakeBool(ok), nil
	})

	reg("repr", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return None, NewTypeError(fmt.Sprintf("repr() takes exactly one argument (%d given)", len(args)))
		}
		return MakeStr(args[0].Repr()), nil
	})

	reg("str", func(args []Value) (Value, error) {
		switch len(args) {
		case 0:
			return MakeStr(""), nil
		case 1:
			return MakeStr(args[0].Display()), nil
		default:
			return None, NewTypeError(fmt.Sprintf("str() takes at most 1 argument (%d given)", len(args)))
		}
	})

	reg("int", func(args []Value) (Value, error) {
		switch len(args) {
		case 0:
			return MakeInt(0), nil
		case 1:
		default:
			return None, NewTypeError(fmt.Sprintf("int() takes at most 1 argument (%d given)", len(args)))
		}
		switch v := args[0]; v.Kind() {
		case KindInt:
			return v, nil
		case KindBool:
			if v.Bool() {
				return MakeInt(1), nil
			}
			return MakeInt(0), nil
		case KindFloat:
			return MakeInt(int64(math.Trunc(v.Float()))), nil
		case KindStr:
			n, err := strconv.ParseInt(strings.TrimSpace(v.Str()), 10, 64)
			if err != nil {
				return None, NewValueError(fmt.Sprintf(
					"invalid literal for int() with base 10: %s", strconv.Quote(v.Str())))
			}
			return MakeInt(n), nil
		default:
			return None, NewTypeError(fmt.Sprintf(
				"int() argument must be a string or a number, not '%s'", v.TypeName()))
		}
	})

	reg("float", func(args []Value) (Value, error) {
		switch len(args) {
		case 0:
			return MakeFloat(0), nil
		case 1:
		default:
			return None, NewTypeError(fmt.Sprintf("float() takes at most 1 argument (%d given)", len(args)))
		}
		switch v := args[0]; v.Kind() {
		case KindFloat:
			return v, nil
		case KindInt:
			return MakeFloat(float64(v.Int())), nil
		case KindBool:
			if v.Bool() {
				return MakeFloat(1), nil
			}
			return MakeFloat(0), nil
		case KindStr:
			f, err := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64)
			if err != nil {
				return None, NewValueError(fmt.Sprintf(
					"could not convert string to float: %s", strconv.Quote(v.Str())))
			}
			return MakeFloat(f), nil
		default:
			return None, NewTypeError(fmt.Sprintf(
				"float() argument must be a string or a number, not '%s'", v.TypeName()))
		}
	})

	reg("bool", func(args []Value) (Value, error) {
		switch len(args) {
		case 0:
			return False, nil
		case 1:
			return MakeBool(args[0].IsTruthy()), nil
		default:
			return None, NewTypeError(fmt.Sprintf("bool() takes at most 1 argument (%d given)", len(args)))
		}
	})

	reg("list", func(args []Value) (Value, error) {
		switch len(args) {
		case 0:
			return MakeList(NewList(nil)), nil
		case 1:
			items, err := vm.materialize(args[0])
			if err != nil {
				return None, err
			}
			return MakeList(NewList(items)), nil
		default:
			return None, NewTypeError(fmt.Sprintf("list expected at most 1 argument, got %d", len(args)))
		}
	})

	reg("tuple", func(args []Value) (Value, error) {
		switch len(args) {
		case 0:
			return MakeTuple(EmptyTuple), nil
		case 1:
			items, err := vm.materialize(args[0])
			if err != nil {
				return None, err
			}
			return MakeTuple(NewTuple(items)), nil
		default:
			return None, NewTypeError(fmt.Sprintf("tuple expected at most 1 argument, got %d", len(args)))
		}
	})

	reg("dict", func(args []Value) (Value, error) {
		switch len(args) {
		case 0:
			return MakeDict(NewDict()), nil
		case 1:
		default:
			return None, NewTypeError(fmt.Sprintf("dict expected at most 1 argument, got %d", len(args)))
		}
		out := NewDict()
		if args[0].Kind() == KindDict {
			src := args[0].Dict()
			for _, k := range src.Keys() {
				if v, ok := src.Get(k); ok {
					out.Set(k, v)
				}
			}
			return MakeDict(out), nil
		}
		items, err := vm.materialize(args[0])
		if err != nil {
			return None, err
		}
		for i, item := range items {
			var pair []Value
			switch item.Kind() {
			case KindTuple:
				pair = item.Tuple().Items()
			case KindList:
				pair = item.List().Snapshot()
			}
			if len(pair) != 2 {
				return None, NewTypeError(fmt.Sprintf(
					"cannot convert dictionary update sequence element #%d to a sequence", i))
			}
			k, kerr := DictKey(pair[0])
			if kerr != nil {
				return None, kerr
			}
			out.Set(k, pair[1])
		}
		return MakeDict(out), nil
	})

	reg("set", func(args []Value) (Value, error) {
		switch len(args) {
		case 0:
			return MakeSet(NewSet()), nil
		case 1:
		default:
			return None, NewTypeError(fmt.Sprintf("set expected at most 1 argument, got %d", len(args)))
		}
		items, err := vm.materialize(args[0])
		if err != nil {
			return None, err
		}
		out := NewSet()
		for _, v := range items {
			k, kerr := DictKey(v)
			if kerr != nil {
				return None, kerr
			}
			out.Add(k)
		}
		return MakeSet(out), nil
	})

	reg("abs", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return None, NewTypeError(fmt.Sprintf("abs() takes exactly one argument (%d given)", len(args)))
		}
		switch v := args[0]; v.Kind() {
		case KindInt:
			if n := v.Int(); n < 0 {
				return MakeInt(-n), nil
			}
			return v, nil
		case KindFloat:
			return MakeFloat(math.Abs(v.Float())), nil
		default:
			return None, NewTypeError(fmt.Sprintf("bad operand type for abs(): '%s'", v.TypeName()))
		}
	})

	reg("min", vm.extremum("min", -1))
	reg("max", vm.extremum("max", 1))

	reg("sum", func(args []Value) (Value, error) {
		if len(args) < 1 || len(args) > 2 {
			return None, NewTypeError(fmt.Sprintf("sum expected 1 or 2 arguments, got %d", len(args)))
		}
		items, err := vm.materialize(args[0])
		if err != nil {
			return None, err
		}
		acc := MakeInt(0)
		if len(args) == 2 {
			if args[1].IsStr() {
				return None, NewTypeError("sum() can't sum strings [use ''.join(seq) instead]")
			}
			acc = args[1]
		}
		for _, v := range items {
			acc, err = BinaryOp(OpBinaryAdd, acc, v)
			if err != nil {
				return None, err
			}
		}
		return acc, nil
	})

	reg("sorted", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return None, NewTypeError(fmt.Sprintf("sorted expected 1 argument, got %d", len(args)))
		}
		items, err := vm.materialize(args[0])
		if err != nil {
			return None, err
		}
		out, err := sortValues(items)
		if err != nil {
			return None, err
		}
		return MakeList(NewList(out)), nil
	})

	reg("enumerate", func(args []Value) (Value, error) {
		if len(args) < 1 || len(args) > 2 {
			return None, NewTypeError(fmt.Sprintf("enumerate expected 1 or 2 arguments, got %d", len(args)))
		}
		start := int64(0)
		if len(args) == 2 {
			if !args[1].IsInt() {
				return None, NewTypeError(fmt.Sprintf(
					"'%s' object cannot be interpreted as an integer", args[1].TypeName()))
			}
			start = args[1].Int()
		}
		items, err := vm.materialize(args[0])
		if err != nil {
			return None, err
		}
		pairs := make([]Value, len(items))
		for i, v := range items {
			pairs[i] = MakeTuple(NewTuple([]Value{MakeInt(start + int64(i)), v}))
		}
		return MakeIterator(NewIterator(pairs)), nil
	})

	reg("zip", func(args []Value) (Value, error) {
		cols := make([][]Value, len(args))
		shortest := -1
		for i, a := range args {
			items, err := vm.materialize(a)
			if err != nil {
				return None, err
			}
			cols[i] = items
			if shortest < 0 || len(items) < shortest {
				shortest = len(items)
			}
		}
		if len(args) == 0 {
			shortest = 0
		}
		rows := make([]Value, shortest)
		for i := 0; i < shortest; i++ {
			row := make([]Value, len(cols))
			for j, col := range cols {
				row[j] = col[i]
			}
			rows[i] = MakeTuple(NewTuple(row))
		}
		return MakeIterator(NewIterator(rows)), nil
	})

	reg("next", func(args []Value) (Value, error) {
		if len(args) < 1 || len(args) > 2 {
			return None, NewTypeError(fmt.Sprintf("next expected 1 or 2 arguments, got %d", len(args)))
		}
		switch v := args[0]; v.Kind() {
		case KindIterator:
			if item, ok := v.Iterator().Next(); ok {
				return item, nil
			}
			if len(args) == 2 {
				return args[1], nil
			}
			return None, NewStopIteration(None)
		case KindGenerator, KindCoroutine:
			item, err := vm.GeneratorSend(genOf(v), None)
			if err != nil {
				if exc := AsException(err); exc.TypeName == "StopIteration" && len(args) == 2 {
					return args[1], nil
				}
				return None, err
			}
			return item, nil
		default:
			return None, NewTypeError(fmt.Sprintf("'%s' object is not an iterator", v.TypeName()))
		}
	})

	reg("iter", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return None, NewTypeError(fmt.Sprintf("iter expected 1 argument, got %d", len(args)))
		}
		return Iterate(args[0])
	})

	reg("getattr", func(args []Value) (Value, error) {
		if len(args) < 2 || len(args) > 3 {
			return None, NewTypeError(fmt.Sprintf("getattr expected 2 or 3 arguments, got %d", len(args)))
		}
		if !args[1].IsStr() {
			return None, NewTypeError("getattr(): attribute name must be string")
		}
		v, err := vm.interp.loadAttr(args[0], args[1].Str())
		if err != nil {
			if exc := AsException(err); exc.TypeName == "AttributeError" && len(args) == 3 {
				return args[2], nil
			}
			return None, err
		}
		return v, nil
	})

	reg("setattr", func(args []Value) (Value, error) {
		if len(args) != 3 {
			return None, NewTypeError(fmt.Sprintf("setattr expected 3 arguments, got %d", len(args)))
		}
		if !args[1].IsStr() {
			return None, NewTypeError("setattr(): attribute name must be string")
		}
		if err := storeAttr(args[0], args[1].Str(), args[2]); err != nil {
			return None, err
		}
		return None, nil
	})

	reg("hasattr", func(args []Value) (Value, error) {
		if len(args) != 2 {
			return None, NewTypeError(fmt.Sprintf("hasattr expected 2 arguments, got %d", len(args)))
		}
		if !args[1].IsStr() {
			return None, NewTypeError("hasattr(): attribute name must be string")
		}
		_, err := vm.interp.loadAttr(args[0], args[1].Str())
		if err != nil {
			if exc := AsException(err); exc.TypeName == "AttributeError" {
				return False, nil
			}
			return None, err
		}
		return True, nil
	})

	reg("callable", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return None, NewTypeError(fmt.Sprintf("callable() takes exactly one argument (%d given)", len(args)))
		}
		switch args[0].Kind() {
		case KindFunction, KindBuiltin, KindBoundMethod, KindType:
			return True, nil
		default:
			return False, nil
		}
	})

	reg("ord", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return None, NewTypeError(fmt.Sprintf("ord() takes exactly one argument (%d given)", len(args)))
		}
		if !args[0].IsStr() {
			return None, NewTypeError(fmt.Sprintf(
				"ord() expected string of length 1, but %s found", args[0].TypeName()))
		}
		runes := []rune(args[0].Str())
		if len(runes) != 1 {
			return None, NewTypeError(fmt.Sprintf(
				"ord() expected a character, but string of length %d found", len(runes)))
		}
		return MakeInt(int64(runes[0])), nil
	})

	reg("chr", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return None, NewTypeError(fmt.Sprintf("chr() takes exactly one argument (%d given)", len(args)))
		}
		if !args[0].IsInt() {
			return None, NewTypeError(fmt.Sprintf(
				"'%s' object cannot be interpreted as an integer", args[0].TypeName()))
		}
		n := args[0].Int()
		if n < 0 || n > 0x10FFFF {
			return None, NewValueError("chr() arg not in range(0x110000)")
		}
		return MakeStr(string(rune(n))), nil
	})

	reg("any", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return None, NewTypeError(fmt.Sprintf("any() takes exactly one argument (%d given)", len(args)))
		}
		items, err := vm.materialize(args[0])
		if err != nil {
			return None, err
		}
		for _, v := range items {
			if v.IsTruthy() {
				return True, nil
			}
		}
		return False, nil
	})

	reg("all", func(args []Value) (Value, error) {
		if len(args) != 1 {
			return None, NewTypeError(fmt.Sprintf("all() takes exactly one argument (%d given)", len(args)))
		}
		items, err := vm.materialize(args[0])
		if err != nil {
			return None, err
		}
		for _, v := range items {
			if !v.IsTruthy() {
				return False, nil
			}
		}
		return True, nil
	})

	reg("map", func(args []Value) (Value, error) {
		if len(args) != 2 {
			return None, NewTypeError(fmt.Sprintf("map() takes exactly 2 arguments (%d given)", len(args)))
		}
		items, err := vm.materialize(args[1])
		if err != nil {
			return None, err
		}
		out := make([]Value, len(items))
		for i, v := range items {
			r, exc := vm.interp.callValue(args[0], []Value{v}, nil)
			if exc != nil {
				return None, exc
			}
			out[i] = r
		}
		return MakeIterator(NewIterator(out)), nil
	})

	reg("filter", func(args []Value) (Value, error) {
		if len(args) != 2 {
			return None, NewTypeError(fmt.Sprintf("filter() takes exactly 2 arguments (%d given)", len(args)))
		}
		items, err := vm.materialize(args[1])
		if err != nil {
			return None, err
		}
		var out []Value
		for _, v := range items {
			keep := v.IsTruthy()
			if !args[0].IsNone() {
				r, exc := vm.interp.callValue(args[0], []Value{v}, nil)
				if exc != nil {
					return None, exc
				}
				keep = r.IsTruthy()
			}
			if keep {
				out = append(out, v)
			}
		}
		return MakeIterator(NewIterator(out)), nil
	})
}

// extremum builds min and max. Accepts either one iterable or two or
// more plain arguments.
func (vm *VM) extremum(name string, dir int) BuiltinFunc {
	return func(args []Value) (Value, error) {
		var items []Value
		switch len(args) {
		case 0:
			return None, NewTypeError(fmt.Sprintf("%s expected at least 1 argument, got 0", name))
		case 1:
			var err error
			items, err = vm.materialize(args[0])
			if err != nil {
				return None, err
			}
			if len(items) == 0 {
				return None, NewValueError(fmt.Sprintf("%s() arg is an empty sequence", name))
			}
		default:
			items = args
		}
		best := items[0]
		for _, v := range items[1:] {
			c, err := orderValues(OpCompareLt, v, best)
			if err != nil {
				return None, err
			}
			if (dir < 0 && c < 0) || (dir > 0 && c > 0) {
				best = v
			}
		}
		return best, nil
	}
}

// isInstance implements the isinstance builtin. Class arguments may be
// type objects, type name strings, or tuples of either.
func (vm *VM) isInstance(obj, classinfo Value) (bool, error) {
	switch classinfo.Kind() {
	case KindTuple:
		for _, c := range classinfo.Tuple().Items() {
			ok, err := vm.isInstance(obj, c)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case KindType:
		return vm.matchesTypeName(obj, classinfo.Type().Name, classinfo.Type()), nil
	case KindStr:
		return vm.matchesTypeName(obj, classinfo.Str(), nil), nil
	default:
		return false, NewTypeError("isinstance() arg 2 must be a type or tuple of types")
	}
}

func (vm *VM) matchesTypeName(obj Value, name string, t *Type) bool {
	switch obj.Kind() {
	case KindInstance:
		cls := obj.Instance().Class()
		if t != nil {
			return cls.IsSubtype(t)
		}
		if cls.Name == name {
			return true
		}
		for _, anc := range cls.MRO {
			if anc.Name == name {
				return true
			}
		}
		return false
	case KindException:
		return vm.excs.Matches(obj.Exception().TypeName, name)
	default:
		return obj.TypeName() == name
	}
}
