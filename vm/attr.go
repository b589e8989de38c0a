package vm

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// ---------------------------------------------------------------------------
// Attribute access
// ---------------------------------------------------------------------------

// methodImpl is a native method body. args[0] is the receiver; the VM
// handle lets implementations drive generators and reach shared tables.
type methodImpl func(vm *VM, args []Value) (Value, error)

// loadAttr resolves obj.name. Functions found on a class through an
// instance bind into methods; everything else is returned as stored.
func (in *Interp) loadAttr(obj Value, name string) (Value, error) {
	switch obj.Kind() {
	case KindInstance:
		inst := obj.Instance()
		if v, ok := inst.GetAttr(name); ok {
			return v, nil
		}
		if v, ok := inst.Class().LookupMRO(name); ok {
			if v.Kind() == KindFunction || v.Kind() == KindBuiltin {
				return MakeBoundMethod(NewBoundMethod(obj, v)), nil
			}
			return v, nil
		}
		return None, NewAttributeError(fmt.Sprintf(
			"'%s' object has no attribute '%s'", inst.Class().Name, name))

	case KindType:
		t := obj.Type()
		if v, ok := t.LookupMRO(name); ok {
			return v, nil
		}
		return None, NewAttributeError(fmt.Sprintf(
			"type object '%s' has no attribute '%s'", t.Name, name))

	case KindModule:
		m := obj.Module()
		if v, ok := m.Get(name); ok {
			return v, nil
		}
		return None, NewAttributeError(fmt.Sprintf(
			"module '%s' has no attribute '%s'", m.Name, name))

	case KindException:
		e := obj.Exception()
		switch name {
		case "args":
			return MakeTuple(NewTuple(e.Args)), nil
		case "__cause__":
			if e.Cause != nil {
				return MakeException(e.Cause), nil
			}
			return None, nil
		case "__context__":
			if e.Context != nil {
				return MakeException(e.Context), nil
			}
			return None, nil
		case "__suppress_context__":
			return MakeBool(e.SuppressContext), nil
		}
		return in.bindNative(obj, name, exceptionMethods)

	case KindFunction:
		if name == "__name__" {
			return MakeStr(obj.Function().Name()), nil
		}

	case KindGenerator, KindCoroutine:
		if v, err := in.bindNative(obj, name, generatorMethods); err == nil {
			return v, nil
		}

	case KindList:
		return in.bindNative(obj, name, listMethods)
	case KindStr:
		return in.bindNative(obj, name, strMethods)
	case KindDict:
		return in.bindNative(obj, name, dictMethods)
	case KindSet:
		return in.bindNative(obj, name, setMethods)
	case KindTuple:
		return in.bindNative(obj, name, tupleMethods)
	}

	return None, NewAttributeError(fmt.Sprintf(
		"'%s' object has no attribute '%s'", obj.TypeName(), name))
}

// loadMethod resolves obj.name for the two-slot call protocol: a class
// function comes back unbound with the receiver in the second slot, so
// the call skips the bound-method allocation. Anything else returns the
// marker and the plain callable.
func (in *Interp) loadMethod(obj Value, name string) (Value, Value, error) {
	if obj.Kind() == KindInstance {
		inst := obj.Instance()
		if v, ok := inst.GetAttr(name); ok {
			return callMarker, v, nil
		}
		if v, ok := inst.Class().LookupMRO(name); ok {
			if v.Kind() == KindFunction || v.Kind() == KindBuiltin {
				return v, obj, nil
			}
			return callMarker, v, nil
		}
		return None, None, NewAttributeError(fmt.Sprintf(
			"'%s' object has no attribute '%s'", inst.Class().Name, name))
	}
	v, err := in.loadAttr(obj, name)
	if err != nil {
		return None, None, err
	}
	return callMarker, v, nil
}

// storeAttr implements obj.name = value for the mutable kinds.
func storeAttr(obj Value, name string, value Value) error {
	switch obj.Kind() {
	case KindInstance:
		obj.Instance().SetAttr(name, value)
		return nil
	case KindType:
		obj.Type().SetAttr(name, value)
		return nil
	case KindModule:
		obj.Module().Set(name, value)
		return nil
	default:
		return NewAttributeError(fmt.Sprintf(
			"'%s' object has no attribute '%s'", obj.TypeName(), name))
	}
}

// bindNative wraps a table entry as a bound method on obj.
func (in *Interp) bindNative(obj Value, name string, table map[string]methodImpl) (Value, error) {
	impl, ok := table[name]
	if !ok {
		return None, NewAttributeError(fmt.Sprintf(
			"'%s' object has no attribute '%s'", obj.TypeName(), name))
	}
	vm := in.vm
	fn := NewBuiltin(name, func(args []Value) (Value, error) {
		return impl(vm, args)
	})
	return MakeBoundMethod(NewBoundMethod(obj, MakeBuiltin(fn))), nil
}

func wantArgs(name string, args []Value, n int) error {
	if len(args)-1 != n {
		return NewTypeError(fmt.Sprintf(
			"%s() takes exactly %d argument (%d given)", name, n, len(args)-1))
	}
	return nil
}

func wantArgRange(name string, args []Value, lo, hi int) error {
	got := len(args) - 1
	if got < lo || got > hi {
		return NewTypeError(fmt.Sprintf(
			"%s() takes from %d to %d arguments (%d given)", name, lo, hi, got))
	}
	return nil
}

// ---------------------------------------------------------------------------
// list methods
// ---------------------------------------------------------------------------

var listMethods map[string]methodImpl

func init() {
	listMethods = map[string]methodImpl{
		"append": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("append", args, 1); err != nil {
				return None, err
			}
			args[0].List().Append(args[1])
			return None, nil
		},
		"extend": func(vm *VM, args []Value) (Value, error) {
			if err := wantArgs("extend", args, 1); err != nil {
				return None, err
			}
			items, err := vm.materialize(args[1])
			if err != nil {
				return None, err
			}
			args[0].List().Extend(items)
			return None, nil
		},
		"insert": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("insert", args, 2); err != nil {
				return None, err
			}
			if !args[1].IsInt() {
				return None, NewTypeError(fmt.Sprintf(
					"'%s' object cannot be interpreted as an integer", args[1].TypeName()))
			}
			l := args[0].List()
			i := int(args[1].Int())
			if i < 0 {
				i += l.Len()
			}
			l.Insert(i, args[2])
			return None, nil
		},
		"remove": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("remove", args, 1); err != nil {
				return None, err
			}
			l := args[0].List()
			for i, v := range l.Snapshot() {
				if Equal(v, args[1]) {
					l.Remove(i)
					return None, nil
				}
			}
			return None, NewValueError("list.remove(x): x not in list")
		},
		"pop": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgRange("pop", args, 0, 1); err != nil {
				return None, err
			}
			l := args[0].List()
			if len(args) == 1 {
				if v, ok := l.Pop(); ok {
					return v, nil
				}
				return None, NewIndexError("pop from empty list")
			}
			if !args[1].IsInt() {
				return None, NewTypeError(fmt.Sprintf(
					"'%s' object cannot be interpreted as an integer", args[1].TypeName()))
			}
			i := int(args[1].Int())
			if i < 0 {
				i += l.Len()
			}
			if i < 0 || i >= l.Len() {
				return None, NewIndexError("pop index out of range")
			}
			v := l.Get(i)
			l.Remove(i)
			return v, nil
		},
		"index": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("index", args, 1); err != nil {
				return None, err
			}
			for i, v := range args[0].List().Snapshot() {
				if Equal(v, args[1]) {
					return MakeInt(int64(i)), nil
				}
			}
			return None, NewValueError(fmt.Sprintf("%s is not in list", args[1].Repr()))
		},
		"count": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("count", args, 1); err != nil {
				return None, err
			}
			n := int64(0)
			for _, v := range args[0].List().Snapshot() {
				if Equal(v, args[1]) {
					n++
				}
			}
			return MakeInt(n), nil
		},
		"clear": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("clear", args, 0); err != nil {
				return None, err
			}
			args[0].List().Replace(nil)
			return None, nil
		},
		"reverse": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("reverse", args, 0); err != nil {
				return None, err
			}
			l := args[0].List()
			items := l.Snapshot()
			for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
				items[i], items[j] = items[j], items[i]
			}
			l.Replace(items)
			return None, nil
		},
		"sort": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("sort", args, 0); err != nil {
				return None, err
			}
			l := args[0].List()
			items := l.Snapshot()
			sorted, err := sortValues(items)
			if err != nil {
				return None, err
			}
			l.Replace(sorted)
			return None, nil
		},
		"copy": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("copy", args, 0); err != nil {
				return None, err
			}
			return MakeList(NewList(args[0].List().Snapshot())), nil
		},
	}
}

// sortValues stably sorts items in place using the < ordering, stopping
// at the first unorderable pair.
func sortValues(items []Value) ([]Value, error) {
	var sortErr error
	sort.SliceStable(items, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		c, err := orderValues(OpCompareLt, items[i], items[j])
		if err != nil {
			sortErr = err
			return false
		}
		return c < 0
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// str methods
// ---------------------------------------------------------------------------

var strMethods map[string]methodImpl

func init() {
	strMethods = map[string]methodImpl{
		"upper": strTransform("upper", strings.ToUpper),
		"lower": strTransform("lower", strings.ToLower),
		"strip": strStrip("strip", strings.TrimSpace, strings.Trim),
		"lstrip": strStrip("lstrip", func(s string) string {
			return strings.TrimLeftFunc(s, unicode.IsSpace)
		}, strings.TrimLeft),
		"rstrip": strStrip("rstrip", func(s string) string {
			return strings.TrimRightFunc(s, unicode.IsSpace)
		}, strings.TrimRight),
		"capitalize": strTransform("capitalize", func(s string) string {
			if s == "" {
				return s
			}
			r := []rune(strings.ToLower(s))
			r[0] = unicode.ToUpper(r[0])
			return string(r)
		}),
		"split": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgRange("split", args, 0, 2); err != nil {
				return None, err
			}
			s := args[0].Str()
			if len(args) == 1 || args[1].IsNone() {
				return strList(strings.Fields(s)), nil
			}
			if !args[1].IsStr() {
				return None, NewTypeError(fmt.Sprintf(
					"must be str or None, not %s", args[1].TypeName()))
			}
			sep := args[1].Str()
			if sep == "" {
				return None, NewValueError("empty separator")
			}
			limit := -1
			if len(args) == 3 {
				if !args[2].IsInt() {
					return None, NewTypeError(fmt.Sprintf(
						"'%s' object cannot be interpreted as an integer", args[2].TypeName()))
				}
				if n := args[2].Int(); n >= 0 {
					limit = int(n) + 1
				}
			}
			return strList(strings.SplitN(s, sep, limit)), nil
		},
		"join": func(vm *VM, args []Value) (Value, error) {
			if err := wantArgs("join", args, 1); err != nil {
				return None, err
			}
			items, err := vm.materialize(args[1])
			if err != nil {
				return None, err
			}
			parts := make([]string, len(items))
			for i, v := range items {
				if !v.IsStr() {
					return None, NewTypeError(fmt.Sprintf(
						"sequence item %d: expected str instance, %s found", i, v.TypeName()))
				}
				parts[i] = v.Str()
			}
			return MakeStr(strings.Join(parts, args[0].Str())), nil
		},
		"startswith": strAffix("startswith", strings.HasPrefix),
		"endswith":   strAffix("endswith", strings.HasSuffix),
		"find": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("find", args, 1); err != nil {
				return None, err
			}
			if !args[1].IsStr() {
				return None, NewTypeError(fmt.Sprintf(
					"must be str, not %s", args[1].TypeName()))
			}
			return MakeInt(int64(strings.Index(args[0].Str(), args[1].Str()))), nil
		},
		"index": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("index", args, 1); err != nil {
				return None, err
			}
			if !args[1].IsStr() {
				return None, NewTypeError(fmt.Sprintf(
					"must be str, not %s", args[1].TypeName()))
			}
			i := strings.Index(args[0].Str(), args[1].Str())
			if i < 0 {
				return None, NewValueError("substring not found")
			}
			return MakeInt(int64(i)), nil
		},
		"replace": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgRange("replace", args, 2, 3); err != nil {
				return None, err
			}
			if !args[1].IsStr() || !args[2].IsStr() {
				return None, NewTypeError("replace() arguments must be str")
			}
			count := -1
			if len(args) == 4 {
				if !args[3].IsInt() {
					return None, NewTypeError(fmt.Sprintf(
						"'%s' object cannot be interpreted as an integer", args[3].TypeName()))
				}
				count = int(args[3].Int())
			}
			return MakeStr(strings.Replace(args[0].Str(), args[1].Str(), args[2].Str(), count)), nil
		},
		"count": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("count", args, 1); err != nil {
				return None, err
			}
			if !args[1].IsStr() {
				return None, NewTypeError(fmt.Sprintf(
					"must be str, not %s", args[1].TypeName()))
			}
			return MakeInt(int64(strings.Count(args[0].Str(), args[1].Str()))), nil
		},
		"isdigit": strPredicate("isdigit", unicode.IsDigit),
		"isalpha": strPredicate("isalpha", unicode.IsLetter),
		"isspace": strPredicate("isspace", unicode.IsSpace),
	}
}

func strTransform(name string, f func(string) string) methodImpl {
	return func(_ *VM, args []Value) (Value, error) {
		if err := wantArgs(name, args, 0); err != nil {
			return None, err
		}
		return MakeStr(f(args[0].Str())), nil
	}
}

func strStrip(name string, whole func(string) string, cutset func(string, string) string) methodImpl {
	return func(_ *VM, args []Value) (Value, error) {
		if err := wantArgRange(name, args, 0, 1); err != nil {
			return None, err
		}
		s := args[0].Str()
		if len(args) == 1 || args[1].IsNone() {
			return MakeStr(whole(s)), nil
		}
		if !args[1].IsStr() {
			return None, NewTypeError(fmt.Sprintf(
				"%s arg must be None or str", name))
		}
		return MakeStr(cutset(s, args[1].Str())), nil
	}
}

func strAffix(name string, match func(s, affix string) bool) methodImpl {
	return func(_ *VM, args []Value) (Value, error) {
		if err := wantArgs(name, args, 1); err != nil {
			return None, err
		}
		s := args[0].Str()
		switch arg := args[1]; arg.Kind() {
		case KindStr:
			return MakeBool(match(s, arg.Str())), nil
		case KindTuple:
			for _, v := range arg.Tuple().Items() {
				if !v.IsStr() {
					return None, NewTypeError(fmt.Sprintf(
						"tuple for %s must only contain str, not %s", name, v.TypeName()))
				}
				if match(s, v.Str()) {
					return True, nil
				}
			}
			return False, nil
		default:
			return None, NewTypeError(fmt.Sprintf(
				"%s first arg must be str or a tuple of str, not %s", name, arg.TypeName()))
		}
	}
}

func strPredicate(name string, pred func(rune) bool) methodImpl {
	return func(_ *VM, args []Value) (Value, error) {
		if err := wantArgs(name, args, 0); err != nil {
			return None, err
		}
		s := args[0].Str()
		if s == "" {
			return False, nil
		}
		for _, r := range s {
			if !pred(r) {
				return False, nil
			}
		}
		return True, nil
	}
}

func strList(parts []string) Value {
	items := make([]Value, len(parts))
	for i, p := range parts {
		items[i] = MakeStr(p)
	}
	return MakeList(NewList(items))
}

// ---------------------------------------------------------------------------
// dict methods
// ---------------------------------------------------------------------------

var dictMethods = map[string]methodImpl{
	"get": func(_ *VM, args []Value) (Value, error) {
		if err := wantArgRange("get", args, 1, 2); err != nil {
			return None, err
		}
		k, err := DictKey(args[1])
		if err != nil {
			return None, err
		}
		if v, ok := args[0].Dict().Get(k); ok {
			return v, nil
		}
		if len(args) == 3 {
			return args[2], nil
		}
		return None, nil
	},
	"keys": func(_ *VM, args []Value) (Value, error) {
		if err := wantArgs("keys", args, 0); err != nil {
			return None, err
		}
		keys := args[0].Dict().Keys()
		items := make([]Value, len(keys))
		for i, k := range keys {
			items[i] = k.Value()
		}
		return MakeList(NewList(items)), nil
	},
	"values": func(_ *VM, args []Value) (Value, error) {
		if err := wantArgs("values", args, 0); err != nil {
			return None, err
		}
		d := args[0].Dict()
		keys := d.Keys()
		items := make([]Value, 0, len(keys))
		for _, k := range keys {
			if v, ok := d.Get(k); ok {
				items = append(items, v)
			}
		}
		return MakeList(NewList(items)), nil
	},
	"items": func(_ *VM, args []Value) (Value, error) {
		if err := wantArgs("items", args, 0); err != nil {
			return None, err
		}
		d := args[0].Dict()
		keys := d.Keys()
		items := make([]Value, 0, len(keys))
		for _, k := range keys {
			if v, ok := d.Get(k); ok {
				items = append(items, MakeTuple(NewTuple([]Value{k.Value(), v})))
			}
		}
		return MakeList(NewList(items)), nil
	},
	"pop": func(_ *VM, args []Value) (Value, error) {
		if err := wantArgRange("pop", args, 1, 2); err != nil {
			return None, err
		}
		k, err := DictKey(args[1])
		if err != nil {
			return None, err
		}
		d := args[0].Dict()
		if v, ok := d.Get(k); ok {
			d.Delete(k)
			return v, nil
		}
		if len(args) == 3 {
			return args[2], nil
		}
		return None, NewKeyError(args[1].Repr())
	},
	"setdefault": func(_ *VM, args []Value) (Value, error) {
		if err := wantArgRange("setdefault", args, 1, 2); err != nil {
			return None, err
		}
		k, err := DictKey(args[1])
		if err != nil {
			return None, err
		}
		d := args[0].Dict()
		if v, ok := d.Get(k); ok {
			return v, nil
		}
		def := None
		if len(args) == 3 {
			def = args[2]
		}
		d.Set(k, def)
		return def, nil
	},
	"update": func(_ *VM, args []Value) (Value, error) {
		if err := wantArgs("update", args, 1); err != nil {
			return None, err
		}
		if args[1].Kind() != KindDict {
			return None, NewTypeError(fmt.Sprintf(
				"'%s' object is not a mapping", args[1].TypeName()))
		}
		d := args[0].Dict()
		other := args[1].Dict()
		for _, k := range other.Keys() {
			if v, ok := other.Get(k); ok {
				d.Set(k, v)
			}
		}
		return None, nil
	},
	"clear": func(_ *VM, args []Value) (Value, error) {
		if err := wantArgs("clear", args, 0); err != nil {
			return None, err
		}
		d := args[0].Dict()
		for _, k := range d.Keys() {
			d.Delete(k)
		}
		return None, nil
	},
	"copy": func(_ *VM, args []Value) (Value, error) {
		if err := wantArgs("copy", args, 0); err != nil {
			return None, err
		}
		d := args[0].Dict()
		out := NewDict()
		for _, k := range d.Keys() {
			if v, ok := d.Get(k); ok {
				out.Set(k, v)
			}
		}
		return MakeDict(out), nil
	},
}

// ---------------------------------------------------------------------------
// set methods
// ---------------------------------------------------------------------------

var setMethods map[string]methodImpl

func init() {
	setMethods = map[string]methodImpl{
		"add": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("add", args, 1); err != nil {
				return None, err
			}
			k, err := DictKey(args[1])
			if err != nil {
				return None, err
			}
			args[0].Set().Add(k)
			return None, nil
		},
		"remove": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("remove", args, 1); err != nil {
				return None, err
			}
			k, err := DictKey(args[1])
			if err != nil {
				return None, err
			}
			if !args[0].Set().Remove(k) {
				return None, NewKeyError(args[1].Repr())
			}
			return None, nil
		},
		"discard": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("discard", args, 1); err != nil {
				return None, err
			}
			k, err := DictKey(args[1])
			if err != nil {
				return None, err
			}
			args[0].Set().Remove(k)
			return None, nil
		},
		"union":        setCombine("union", func(in, other bool) bool { return in || other }),
		"intersection": setCombine("intersection", func(in, other bool) bool { return in && other }),
		"difference":   setCombine("difference", func(in, other bool) bool { return in && !other }),
		"clear": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("clear", args, 0); err != nil {
				return None, err
			}
			s := args[0].Set()
			for _, v := range s.Elements() {
				k, err := DictKey(v)
				if err != nil {
					return None, err
				}
				s.Remove(k)
			}
			return None, nil
		},
		"copy": func(_ *VM, args []Value) (Value, error) {
			if err := wantArgs("copy", args, 0); err != nil {
				return None, err
			}
			s := args[0].Set()
			out := NewSet()
			for _, v := range s.Elements() {
				k, err := DictKey(v)
				if err != nil {
					return None, err
				}
				out.Add(k)
			}
			return MakeSet(out), nil
		},
	}
}

// setCombine builds union-style operations from a membership rule
// applied over the elements of both operands.
func setCombine(name string, keep func(in, other bool) bool) methodImpl {
	return func(vm *VM, args []Value) (Value, error) {
		if err := wantArgs(name, args, 1); err != nil {
			return None, err
		}
		s := args[0].Set()
		items, err := vm.materialize(args[1])
		if err != nil {
			return None, err
		}
		other := NewSet()
		for _, v := range items {
			k, kerr := DictKey(v)
			if kerr != nil {
				return None, kerr
			}
			other.Add(k)
		}
		out := NewSet()
		for _, v := range s.Elements() {
			k, _ := DictKey(v)
			if keep(true, other.Contains(k)) {
				out.Add(k)
			}
		}
		for _, v := range other.Elements() {
			k, _ := DictKey(v)
			if !s.Contains(k) && keep(false, true) {
				out.Add(k)
			}
		}
		return MakeSet(out), nil
	}
}

// ---------------------------------------------------------------------------
// tuple methods
// ---------------------------------------------------------------------------

var tupleMethods = map[string]methodImpl{
	"count": func(_ *VM, args []Value) (Value, error) {
		if err := wantArgs("count", args, 1); err != nil {
			return None, err
		}
		n := int64(0)
		for _, v := range args[0].Tuple().Items() {
			if Equal(v, args[1]) {
				n++
			}
		}
		return MakeInt(n), nil
	},
	"index": func(_ *VM, args []Value) (Value, error) {
		if err := wantArgs("index", args, 1); err != nil {
			return None, err
		}
		for i, v := range args[0].Tuple().Items() {
			if Equal(v, args[1]) {
				return MakeInt(int64(i)), nil
			}
		}
		return None, NewValueError("tuple.index(x): x not in tuple")
	},
}

// ---------------------------------------------------------------------------
// exception methods
// ---------------------------------------------------------------------------

var exceptionMethods = map[string]methodImpl{
	"add_note": func(_ *VM, args []Value) (Value, error) {
		if err := wantArgs("add_note", args, 1); err != nil {
			return None, err
		}
		if !args[1].IsStr() {
			return None, NewTypeError(fmt.Sprintf(
				"note must be a str, not '%s'", args[1].TypeName()))
		}
		args[0].Exception().AddNote(args[1].Str())
		return None, nil
	},
}

// ---------------------------------------------------------------------------
// generator methods
// ---------------------------------------------------------------------------

var generatorMethods map[string]methodImpl

func init() {
	generatorMethods = map[string]methodImpl{
		"send": func(vm *VM, args []Value) (Value, error) {
			if err := wantArgs("send", args, 1); err != nil {
				return None, err
			}
			return vm.GeneratorSend(genOf(args[0]), args[1])
		},
		"throw": func(vm *VM, args []Value) (Value, error) {
			if err := wantArgs("throw", args, 1); err != nil {
				return None, err
			}
			exc := AsException(vm.interp.normalizeRaised(args[1]))
			return vm.GeneratorThrow(genOf(args[0]), exc)
		},
		"close": func(vm *VM, args []Value) (Value, error) {
			if err := wantArgs("close", args, 0); err != nil {
				return None, err
			}
			if err := vm.GeneratorClose(genOf(args[0])); err != nil {
				return None, err
			}
			return None, nil
		},
	}
}
