package vm

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Kind identifies the variant stored in a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindList
	KindTuple
	KindDict
	KindSet
	KindFunction
	KindBuiltin
	KindBoundMethod
	KindType
	KindInstance
	KindException
	KindGenerator
	KindCoroutine
	KindModule
	KindCode
	KindCell
	KindIterator
	KindSlice
)

var kindNames = map[Kind]string{
	KindNone:        "NoneType",
	KindBool:        "bool",
	KindInt:         "int",
	KindFloat:       "float",
	KindStr:         "str",
	KindList:        "list",
	KindTuple:       "tuple",
	KindDict:        "dict",
	KindSet:         "set",
	KindFunction:    "function",
	KindBuiltin:     "builtin_function_or_method",
	KindBoundMethod: "method",
	KindType:        "type",
	KindInstance:    "instance",
	KindException:   "exception",
	KindGenerator:   "generator",
	KindCoroutine:   "coroutine",
	KindModule:      "module",
	KindCode:        "code",
	KindCell:        "cell",
	KindIterator:    "iterator",
	KindSlice:       "slice",
}

// String returns the Python-visible type name for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is the runtime representation of every value the engine
// manipulates. The kind tag is closed; the payload fields are only valid
// for the kinds that use them. Construct values through the Make*
// helpers so the payload stays consistent with the tag.
type Value struct {
	kind Kind
	num  uint64 // Bool (0/1), Int (two's complement), Float (IEEE 754 bits)
	str  string // Str payload
	obj  any    // heap payloads: *List, *Tuple, *Dict, *Set, *Function, ...
}

// kindCallMarker is the internal nil slot of the two-slot method call
// protocol. It never appears outside the operand stack between a
// LOAD_METHOD and its CALL_METHOD.
const kindCallMarker Kind = 0xFF

var callMarker = Value{kind: kindCallMarker}

func (v Value) isCallMarker() bool { return v.kind == kindCallMarker }

// None is the singleton none value.
var None = Value{kind: KindNone}

// True and False are the boolean values.
var (
	True  = Value{kind: KindBool, num: 1}
	False = Value{kind: KindBool, num: 0}
)

// MakeBool returns the boolean value for b.
func MakeBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// MakeInt returns an integer value.
func MakeInt(i int64) Value {
	return Value{kind: KindInt, num: uint64(i)}
}

// MakeFloat returns a float value.
func MakeFloat(f float64) Value {
	return Value{kind: KindFloat, num: math.Float64bits(f)}
}

// MakeStr returns a string value.
func MakeStr(s string) Value {
	return Value{kind: KindStr, str: s}
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNone returns true if the value is None.
func (v Value) IsNone() bool { return v.kind == KindNone }

// IsBool returns true if the value is a bool.
func (v Value) IsBool() bool { return v.kind == KindBool }

// IsInt returns true if the value is an int.
func (v Value) IsInt() bool { return v.kind == KindInt }

// IsFloat returns true if the value is a float.
func (v Value) IsFloat() bool { return v.kind == KindFloat }

// IsStr returns true if the value is a str.
func (v Value) IsStr() bool { return v.kind == KindStr }

// IsNumber returns true if the value is an int or a float.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// ---------------------------------------------------------------------------
// Payload extraction
// ---------------------------------------------------------------------------

// Bool extracts a bool payload. Panics if the kind is wrong.
func (v Value) Bool() bool {
	v.mustBe(KindBool)
	return v.num != 0
}

// Int extracts an int payload. Panics if the kind is wrong.
func (v Value) Int() int64 {
	v.mustBe(KindInt)
	return int64(v.num)
}

// Float extracts a float payload. Panics if the kind is wrong.
func (v Value) Float() float64 {
	v.mustBe(KindFloat)
	return math.Float64frombits(v.num)
}

// Str extracts a string payload. Panics if the kind is wrong.
func (v Value) Str() string {
	v.mustBe(KindStr)
	return v.str
}

// AsFloat widens an int or float to float64. Panics on other kinds.
func (v Value) AsFloat() float64 {
	switch v.kind {
	case KindInt:
		return float64(int64(v.num))
	case KindFloat:
		return math.Float64frombits(v.num)
	}
	panic(fmt.Sprintf("value is %s, not a number", v.kind))
}

func (v Value) mustBe(k Kind) {
	if v.kind != k {
		panic(fmt.Sprintf("value is %s, not %s", v.kind, k))
	}
}

// List extracts the list payload. Panics if the kind is wrong.
func (v Value) List() *List {
	v.mustBe(KindList)
	return v.obj.(*List)
}

// Tuple extracts the tuple payload. Panics if the kind is wrong.
func (v Value) Tuple() *Tuple {
	v.mustBe(KindTuple)
	return v.obj.(*Tuple)
}

// Dict extracts the dict payload. Panics if the kind is wrong.
func (v Value) Dict() *Dict {
	v.mustBe(KindDict)
	return v.obj.(*Dict)
}

// Set extracts the set payload. Panics if the kind is wrong.
func (v Value) Set() *Set {
	v.mustBe(KindSet)
	return v.obj.(*Set)
}

// Function extracts the function payload. Panics if the kind is wrong.
func (v Value) Function() *Function {
	v.mustBe(KindFunction)
	return v.obj.(*Function)
}

// Builtin extracts the builtin payload. Panics if the kind is wrong.
func (v Value) Builtin() *Builtin {
	v.mustBe(KindBuiltin)
	return v.obj.(*Builtin)
}

// BoundMethod extracts the bound method payload. Panics if the kind is wrong.
func (v Value) BoundMethod() *BoundMethod {
	v.mustBe(KindBoundMethod)
	return v.obj.(*BoundMethod)
}

// Type extracts the type payload. Panics if the kind is wrong.
func (v Value) Type() *Type {
	v.mustBe(KindType)
	return v.obj.(*Type)
}

// Instance extracts the instance payload. Panics if the kind is wrong.
func (v Value) Instance() *Instance {
	v.mustBe(KindInstance)
	return v.obj.(*Instance)
}

// Exception extracts the exception payload. Panics if the kind is wrong.
func (v Value) Exception() *ExceptionObject {
	v.mustBe(KindException)
	return v.obj.(*ExceptionObject)
}

// Generator extracts the generator payload. Panics if the kind is wrong.
func (v Value) Generator() *Generator {
	v.mustBe(KindGenerator)
	return v.obj.(*Generator)
}

// Coroutine extracts the coroutine payload. Panics if the kind is wrong.
func (v Value) Coroutine() *Coroutine {
	v.mustBe(KindCoroutine)
	return v.obj.(*Coroutine)
}

// Module extracts the module payload. Panics if the kind is wrong.
func (v Value) Module() *Module {
	v.mustBe(KindModule)
	return v.obj.(*Module)
}

// Code extracts the code payload. Panics if the kind is wrong.
func (v Value) Code() *Code {
	v.mustBe(KindCode)
	return v.obj.(*Code)
}

// Cell extracts the cell payload. Panics if the kind is wrong.
func (v Value) Cell() *Cell {
	v.mustBe(KindCell)
	return v.obj.(*Cell)
}

// Iterator extracts the iterator payload. Panics if the kind is wrong.
func (v Value) Iterator() *Iterator {
	v.mustBe(KindIterator)
	return v.obj.(*Iterator)
}

// Slice extracts the slice payload. Panics if the kind is wrong.
func (v Value) Slice() *SliceObject {
	v.mustBe(KindSlice)
	return v.obj.(*SliceObject)
}

// ---------------------------------------------------------------------------
// Construction from heap objects
// ---------------------------------------------------------------------------

// MakeList wraps a list object as a value.
func MakeList(l *List) Value { return Value{kind: KindList, obj: l} }

// MakeTuple wraps a tuple object as a value.
func MakeTuple(t *Tuple) Value { return Value{kind: KindTuple, obj: t} }

// MakeDict wraps a dict object as a value.
func MakeDict(d *Dict) Value { return Value{kind: KindDict, obj: d} }

// MakeSet wraps a set object as a value.
func MakeSet(s *Set) Value { return Value{kind: KindSet, obj: s} }

// MakeFunction wraps a function object as a value.
func MakeFunction(f *Function) Value { return Value{kind: KindFunction, obj: f} }

// MakeBuiltin wraps a builtin as a value.
func MakeBuiltin(b *Builtin) Value { return Value{kind: KindBuiltin, obj: b} }

// MakeBoundMethod wraps a bound method as a value.
func MakeBoundMethod(m *BoundMethod) Value { return Value{kind: KindBoundMethod, obj: m} }

// MakeType wraps a type object as a value.
func MakeType(t *Type) Value { return Value{kind: KindType, obj: t} }

// MakeInstance wraps an instance as a value.
func MakeInstance(i *Instance) Value { return Value{kind: KindInstance, obj: i} }

// MakeException wraps an exception object as a value.
func MakeException(e *ExceptionObject) Value { return Value{kind: KindException, obj: e} }

// MakeGenerator wraps a generator as a value.
func MakeGenerator(g *Generator) Value { return Value{kind: KindGenerator, obj: g} }

// MakeCoroutine wraps a coroutine as a value.
func MakeCoroutine(c *Coroutine) Value { return Value{kind: KindCoroutine, obj: c} }

// MakeModule wraps a module as a value.
func MakeModule(m *Module) Value { return Value{kind: KindModule, obj: m} }

// MakeCode wraps a code object as a value.
func MakeCode(c *Code) Value { return Value{kind: KindCode, obj: c} }

// MakeCell wraps a cell as a value.
func MakeCell(c *Cell) Value { return Value{kind: KindCell, obj: c} }

// MakeIterator wraps an iterator as a value.
func MakeIterator(it *Iterator) Value { return Value{kind: KindIterator, obj: it} }

// MakeSlice wraps a slice object as a value.
func MakeSlice(s *SliceObject) Value { return Value{kind: KindSlice, obj: s} }

// TypeName returns the Python-visible type name of the value. Instances
// report their class name, exceptions their exception type.
func (v Value) TypeName() string {
	switch v.kind {
	case KindInstance:
		return v.obj.(*Instance).Class().Name
	case KindException:
		return v.obj.(*ExceptionObject).TypeName
	default:
		return v.kind.String()
	}
}

// ---------------------------------------------------------------------------
// Truthiness, identity, equality
// ---------------------------------------------------------------------------

// IsTruthy implements Python truthiness: None, False, zero, the empty
// string, and empty containers are false; everything else is true.
func (v Value) IsTruthy() bool {
	switch v.kind {
	case KindNone:
		return false
	case KindBool:
		return v.num != 0
	case KindInt:
		return int64(v.num) != 0
	case KindFloat:
		return math.Float64frombits(v.num) != 0
	case KindStr:
		return v.str != ""
	case KindList:
		return v.obj.(*List).Len() > 0
	case KindTuple:
		return v.obj.(*Tuple).Len() > 0
	case KindDict:
		return v.obj.(*Dict).Len() > 0
	case KindSet:
		return v.obj.(*Set).Len() > 0
	default:
		return true
	}
}

// Is reports identity: shared-handle equality for heap kinds, variant
// equality for the immediate scalars.
func Is(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNone:
		return true
	case KindBool, KindInt, KindFloat:
		return a.num == b.num
	case KindStr:
		return a.str == b.str
	default:
		return a.obj == b.obj
	}
}

// Equal implements value equality (the == operator). Numbers compare
// across int and float; sequences compare element-wise; everything else
// falls back to identity.
func Equal(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		if a.kind == KindInt && b.kind == KindInt {
			return int64(a.num) == int64(b.num)
		}
		return a.AsFloat() == b.AsFloat()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNone:
		return true
	case KindBool:
		return a.num == b.num
	case KindStr:
		return a.str == b.str
	case KindList:
		return sequenceEqual(a.obj.(*List).Snapshot(), b.obj.(*List).Snapshot())
	case KindTuple:
		return sequenceEqual(a.obj.(*Tuple).Items(), b.obj.(*Tuple).Items())
	default:
		return a.obj == b.obj
	}
}

func sequenceEqual(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Display
// ---------------------------------------------------------------------------

// Repr renders the value the way Python repr() would.
func (v Value) Repr() string {
	switch v.kind {
	case KindNone:
		return "None"
	case KindBool:
		if v.num != 0 {
			return "True"
		}
		return "False"
	case KindInt:
		return fmt.Sprintf("%d", int64(v.num))
	case KindFloat:
		f := math.Float64frombits(v.num)
		if f == math.Trunc(f) && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return fmt.Sprintf("%.1f", f)
		}
		return fmt.Sprintf("%g", f)
	case KindStr:
		return "'" + strings.ReplaceAll(v.str, "'", "\\'") + "'"
	case KindList:
		return formatSequence(v.obj.(*List).Snapshot(), "[", "]")
	case KindTuple:
		items := v.obj.(*Tuple).Items()
		if len(items) == 1 {
			return "(" + items[0].Repr() + ",)"
		}
		return formatSequence(items, "(", ")")
	case KindDict:
		return v.obj.(*Dict).repr()
	case KindSet:
		return v.obj.(*Set).repr()
	case KindFunction:
		return fmt.Sprintf("<function %s>", v.obj.(*Function).QualName())
	case KindBuiltin:
		return fmt.Sprintf("<built-in function %s>", v.obj.(*Builtin).Name)
	case KindBoundMethod:
		return fmt.Sprintf("<bound method %s>", v.obj.(*BoundMethod).Name())
	case KindType:
		return fmt.Sprintf("<class '%s'>", v.obj.(*Type).Name)
	case KindInstance:
		return fmt.Sprintf("<%s object>", v.obj.(*Instance).Class().Name)
	case KindException:
		e := v.obj.(*ExceptionObject)
		return fmt.Sprintf("%s(%s)", e.TypeName, MakeStr(e.Message).Repr())
	case KindGenerator:
		return fmt.Sprintf("<generator %s>", v.obj.(*Generator).QualName())
	case KindCoroutine:
		return fmt.Sprintf("<coroutine %s>", v.obj.(*Coroutine).QualName())
	case KindModule:
		return fmt.Sprintf("<module '%s'>", v.obj.(*Module).Name)
	case KindCode:
		return fmt.Sprintf("<code %s>", v.obj.(*Code).Name)
	case KindCell:
		return "<cell>"
	case KindIterator:
		return "<iterator>"
	case KindSlice:
		s := v.obj.(*SliceObject)
		return fmt.Sprintf("slice(%s, %s, %s)", s.Start.Repr(), s.Stop.Repr(), s.Step.Repr())
	default:
		return fmt.Sprintf("<%s>", v.kind)
	}
}

// Display renders the value the way print() would: strings without
// quoting, everything else as repr.
func (v Value) Display() string {
	if v.kind == KindStr {
		return v.str
	}
	return v.Repr()
}

func formatSequence(items []Value, open, close string) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.Repr()
	}
	return open + strings.Join(parts, ", ") + close
}

// ---------------------------------------------------------------------------
// Lists
// ---------------------------------------------------------------------------

// List is a shared mutable sequence. Mutation through any holder is
// visible to every other holder; the internal lock keeps structural
// mutation safe when the host drives frames from multiple goroutines.
type List struct {
	mu    sync.Mutex
	items []Value
}

// NewList creates a list from items. The slice is owned by the list.
func NewList(items []Value) *List {
	return &List{items: items}
}

// Len returns the element count.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Get returns the element at i. The caller has already normalized the index.
func (l *List) Get(i int) Value {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.items[i]
}

// Set replaces the element at i.
func (l *List) Set(i int, v Value) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[i] = v
}

// Append adds a value at the end.
func (l *List) Append(v Value) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, v)
}

// Extend appends all items at the end.
func (l *List) Extend(items []Value) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, items...)
}

// Insert places a value at index i, shifting later elements right.
func (l *List) Insert(i int, v Value) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 {
		i = 0
	}
	if i > len(l.items) {
		i = len(l.items)
	}
	l.items = append(l.items, None)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = v
}

// Remove deletes the element at index i.
func (l *List) Remove(i int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items[:i], l.items[i+1:]...)
}

// Replace swaps the whole element slice.
func (l *List) Replace(items []Value) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = items
}

// Pop removes and returns the last element.
func (l *List) Pop() (Value, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return None, false
	}
	v := l.items[len(l.items)-1]
	l.items = l.items[:len(l.items)-1]
	return v, true
}

// Snapshot returns a copy of the current elements.
func (l *List) Snapshot() []Value {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Value, len(l.items))
	copy(out, l.items)
	return out
}

// ---------------------------------------------------------------------------
// Tuples
// ---------------------------------------------------------------------------

// Tuple is an immutable sequence.
type Tuple struct {
	items []Value
}

// NewTuple creates a tuple from items. The slice is owned by the tuple
// and must not be mutated afterwards.
func NewTuple(items []Value) *Tuple {
	return &Tuple{items: items}
}

// EmptyTuple is the canonical zero-length tuple.
var EmptyTuple = NewTuple(nil)

// Len returns the element count.
func (t *Tuple) Len() int { return len(t.items) }

// Get returns the element at i.
func (t *Tuple) Get(i int) Value { return t.items[i] }

// Items returns the backing elements. Callers must not mutate the slice.
func (t *Tuple) Items() []Value { return t.items }

// ---------------------------------------------------------------------------
// Dicts
// ---------------------------------------------------------------------------

// Dict is a shared mutable mapping with insertion-order iteration. Keys
// are restricted to the closed hashable variant (None, bool, int, str,
// tuple of hashables).
type Dict struct {
	mu      sync.Mutex
	entries map[Key]Value
	order   []Key
}

// NewDict creates an empty dict.
func NewDict() *Dict {
	return &Dict{entries: make(map[Key]Value)}
}

// Len returns the entry count.
func (d *Dict) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Get looks up a key.
func (d *Dict) Get(k Key) (Value, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.entries[k]
	return v, ok
}

// Set inserts or replaces a key.
func (d *Dict) Set(k Key, v Value) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[k]; !ok {
		d.order = append(d.order, k)
	}
	d.entries[k] = v
}

// Delete removes a key, reporting whether it was present.
func (d *Dict) Delete(k Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[k]; !ok {
		return false
	}
	delete(d.entries, k)
	for i, existing := range d.order {
		if existing == k {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []Key {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Key, len(d.order))
	copy(out, d.order)
	return out
}

func (d *Dict) repr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	parts := make([]string, 0, len(d.order))
	for _, k := range d.order {
		parts = append(parts, k.Value().Repr()+": "+d.entries[k].Repr())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// ---------------------------------------------------------------------------
// Sets
// ---------------------------------------------------------------------------

// Set is a shared mutable set over the hashable key variant.
type Set struct {
	mu    sync.Mutex
	items map[Key]struct{}
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{items: make(map[Key]struct{})}
}

// Len returns the element count.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Add inserts a key.
func (s *Set) Add(k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[k] = struct{}{}
}

// Contains reports membership.
func (s *Set) Contains(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[k]
	return ok
}

// Remove deletes a key, reporting whether it was present.
func (s *Set) Remove(k Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[k]
	delete(s.items, k)
	return ok
}

// Elements returns the members in a stable sorted order, for iteration
// and display.
func (s *Set) Elements() []Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]Key, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].encoded() < keys[j].encoded() })
	out := make([]Value, len(keys))
	for i, k := range keys {
		out[i] = k.Value()
	}
	return out
}

func (s *Set) repr() string {
	elems := s.Elements()
	if len(elems) == 0 {
		return "set()"
	}
	return formatSequence(elems, "{", "}")
}

// ---------------------------------------------------------------------------
// Dict keys
// ---------------------------------------------------------------------------

// Key is the closed hashable variant used by Dict and Set. Tuples are
// flattened into a canonical encoding so structural equality works as a
// Go map key.
type Key struct {
	kind Kind
	num  uint64
	str  string
}

// DictKey converts a value into a Key, or fails with a TypeError for
// unhashable kinds.
func DictKey(v Value) (Key, error) {
	switch v.kind {
	case KindNone:
		return Key{kind: KindNone}, nil
	case KindBool, KindInt:
		return Key{kind: v.kind, num: v.num}, nil
	case KindStr:
		return Key{kind: KindStr, str: v.str}, nil
	case KindTuple:
		var sb strings.Builder
		for _, item := range v.obj.(*Tuple).Items() {
			k, err := DictKey(item)
			if err != nil {
				return Key{}, err
			}
			sb.WriteString(k.encoded())
		}
		return Key{kind: KindTuple, str: sb.String()}, nil
	default:
		return Key{}, NewTypeError(fmt.Sprintf("unhashable type: '%s'", v.TypeName()))
	}
}

// StrKey is the fast path for string keys.
func StrKey(s string) Key {
	return Key{kind: KindStr, str: s}
}

// encoded returns the canonical self-delimiting form used for tuple
// flattening and stable set ordering. Strings are length-prefixed so
// nested encodings parse unambiguously.
func (k Key) encoded() string {
	switch k.kind {
	case KindNone:
		return "n"
	case KindBool:
		return fmt.Sprintf("b%d", k.num)
	case KindInt:
		return fmt.Sprintf("i%d", int64(k.num))
	case KindStr:
		return "s" + strconv.Itoa(len(k.str)) + ":" + k.str
	case KindTuple:
		return "t(" + k.str + ")"
	default:
		return "?"
	}
}

// Value converts the key back into a runtime value. Tuple keys are
// reconstructed by parsing their canonical encoding.
func (k Key) Value() Value {
	switch k.kind {
	case KindNone:
		return None
	case KindBool:
		return MakeBool(k.num != 0)
	case KindInt:
		return MakeInt(int64(k.num))
	case KindStr:
		return MakeStr(k.str)
	case KindTuple:
		return MakeTuple(NewTuple(decodeKeyItems(k.str)))
	default:
		return None
	}
}

func decodeKeyItems(s string) []Value {
	var out []Value
	i := 0
	for i < len(s) {
		var v Value
		v, i = decodeKeyItem(s, i)
		out = append(out, v)
	}
	return out
}

func decodeKeyItem(s string, i int) (Value, int) {
	switch s[i] {
	case 'n':
		return None, i + 1
	case 'b':
		return MakeBool(s[i+1] == '1'), i + 2
	case 'i':
		j := i + 1
		if j < len(s) && s[j] == '-' {
			j++
		}
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		n, _ := strconv.ParseInt(s[i+1:j], 10, 64)
		return MakeInt(n), j
	case 's':
		j := i + 1
		for j < len(s) && s[j] != ':' {
			j++
		}
		n, _ := strconv.Atoi(s[i+1 : j])
		start := j + 1
		return MakeStr(s[start : start+n]), start + n
	case 't':
		i += 2
		var items []Value
		for i < len(s) && s[i] != ')' {
			var v Value
			v, i = decodeKeyItem(s, i)
			items = append(items, v)
		}
		return MakeTuple(NewTuple(items)), i + 1
	default:
		panic(fmt.Sprintf("corrupt key encoding at %d: %q", i, s))
	}
}

// ---------------------------------------------------------------------------
// Cells
// ---------------------------------------------------------------------------

// Cell is a heap-allocated single-slot box used to implement captured
// variables. It is owned jointly by the defining frame and every closure
// that captured it, and stays alive as long as any holder does.
type Cell struct {
	mu sync.Mutex
	v  Value
}

// NewCell creates a cell holding v.
func NewCell(v Value) *Cell {
	return &Cell{v: v}
}

// Get reads the slot.
func (c *Cell) Get() Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

// Set writes the slot.
func (c *Cell) Set(v Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = v
}

// ---------------------------------------------------------------------------
// Slices
// ---------------------------------------------------------------------------

// SliceObject is the value produced by BuildSlice. Start, Stop, and Step
// are each None or an int.
type SliceObject struct {
	Start Value
	Stop  Value
	Step  Value
}

// Indices resolves the slice against a sequence of the given length,
// returning concrete start, stop, and step with Python's clamping rules.
func (s *SliceObject) Indices(length int) (start, stop, step int, err error) {
	step = 1
	if !s.Step.IsNone() {
		step = int(s.Step.Int())
		if step == 0 {
			return 0, 0, 0, NewValueError("slice step cannot be zero")
		}
	}
	if step > 0 {
		start, stop = 0, length
	} else {
		start, stop = length-1, -1
	}
	if !s.Start.IsNone() {
		start = clampIndex(int(s.Start.Int()), length, step < 0)
	}
	if !s.Stop.IsNone() {
		stop = clampIndex(int(s.Stop.Int()), length, step < 0)
	}
	return start, stop, step, nil
}

func clampIndex(i, length int, reverse bool) int {
	if i < 0 {
		i += length
	}
	lo := 0
	hi := length
	if reverse {
		lo = -1
		hi = length - 1
	}
	if i < lo {
		return lo
	}
	if i > hi {
		return hi
	}
	return i
}
