package vm

import "fmt"

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// Function is a callable built by MAKE_FUNCTION: a code object plus the
// defining module's globals, default values, and captured cells.
type Function struct {
	Code    *Code
	Globals *Module

	qualName string

	// Defaults align with the rightmost positional parameters;
	// KwDefaults bind keyword-only parameters by name.
	Defaults   []Value
	KwDefaults map[string]Value

	// Annotations is the dict popped by MAKE_FUNCTION 0x04, kept for
	// introspection only.
	Annotations Value

	// Closure holds the code object at slot 0 followed by one cell per
	// free variable, in the order of Code.FreeVars.
	Closure []Value
}

// NewFunction creates a function over code. The closure always carries
// the code object at slot 0; captured cells follow.
func NewFunction(code *Code, qualName string, globals *Module) *Function {
	return &Function{
		Code:     code,
		Globals:  globals,
		qualName: qualName,
		Closure:  []Value{MakeCode(code)},
	}
}

// Name returns the simple function name.
func (f *Function) Name() string { return f.Code.Name }

// QualName returns the qualified name given at construction, falling
// back to the code object's.
func (f *Function) QualName() string {
	if f.qualName != "" {
		return f.qualName
	}
	return f.Code.QualName
}

// SetClosureCells installs the captured cells after slot 0.
func (f *Function) SetClosureCells(cells []*Cell) {
	f.Closure = f.Closure[:1]
	for _, c := range cells {
		f.Closure = append(f.Closure, MakeCell(c))
	}
}

// FreeCells returns the captured cells, excluding the code slot.
func (f *Function) FreeCells() []*Cell {
	cells := make([]*Cell, 0, len(f.Closure)-1)
	for _, v := range f.Closure[1:] {
		cells = append(cells, v.Cell())
	}
	return cells
}

// ---------------------------------------------------------------------------
// Bound methods
// ---------------------------------------------------------------------------

// BoundMethod pairs a receiver with the function retrieved from its
// class, so a later call inserts the receiver as the first argument.
type BoundMethod struct {
	Receiver Value
	Fn       Value // Function or Builtin
}

// NewBoundMethod binds fn to receiver.
func NewBoundMethod(receiver, fn Value) *BoundMethod {
	return &BoundMethod{Receiver: receiver, Fn: fn}
}

// Name returns the underlying callable's name.
func (m *BoundMethod) Name() string {
	switch m.Fn.Kind() {
	case KindFunction:
		return m.Fn.Function().QualName()
	case KindBuiltin:
		return m.Fn.Builtin().Name
	}
	return "<method>"
}

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

// BuiltinFunc is the host-side calling convention: plain argument slice
// in, value or error out. Returned errors that are not exceptions are
// wrapped as RuntimeError.
type BuiltinFunc func(args []Value) (Value, error)

// Builtin is a named host function callable from bytecode.
type Builtin struct {
	Name string
	Fn   BuiltinFunc
}

// NewBuiltin creates a builtin.
func NewBuiltin(name string, fn BuiltinFunc) *Builtin {
	return &Builtin{Name: name, Fn: fn}
}

// Call invokes the builtin, normalizing errors to exceptions.
func (b *Builtin) Call(args []Value) (Value, *ExceptionObject) {
	v, err := b.Fn(args)
	if err != nil {
		return None, AsException(err)
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Argument binding
// ---------------------------------------------------------------------------

// BindArguments fills a locals slice for a call: positional arguments in
// declaration order, then keywords by name, then defaults for whatever
// stayed unbound. Surplus positionals go to *args, surplus keywords to
// **kwargs; anything left missing is a TypeError.
func BindArguments(fn *Function, args []Value, kwargs map[string]Value) ([]Value, error) {
	code := fn.Code
	locals := make([]Value, code.NumLocals)
	for i := range locals {
		locals[i] = None
	}
	bound := make([]bool, len(code.Params))

	// Positional parameters, in declaration order.
	var posSlots []int
	for i, p := range code.Params {
		if p.Kind == ParamPositional {
			posSlots = append(posSlots, i)
		}
	}

	nPos := len(args)
	if nPos > len(posSlots) {
		if vp := code.VarPositionalIndex(); vp >= 0 {
			surplus := make([]Value, nPos-len(posSlots))
			copy(surplus, args[len(posSlots):])
			locals[vp] = MakeTuple(NewTuple(surplus))
			bound[vp] = true
			nPos = len(posSlots)
		} else {
			return nil, NewTypeError(fmt.Sprintf(
				"%s() takes %d positional arguments but %d were given",
				code.Name, len(posSlots), len(args)))
		}
	}
	for i := 0; i < nPos; i++ {
		slot := posSlots[i]
		locals[slot] = args[i]
		bound[slot] = true
	}

	// Keyword arguments.
	var surplusKw *Dict
	vk := code.VarKeywordIndex()
	for name, v := range kwargs {
		slot := code.ParamIndex(name)
		if slot >= 0 && code.Params[slot].Kind != ParamVarPositional && code.Params[slot].Kind != ParamVarKeyword {
			if bound[slot] {
				return nil, NewTypeError(fmt.Sprintf(
					"%s() got multiple values for argument '%s'", code.Name, name))
			}
			locals[slot] = v
			bound[slot] = true
			continue
		}
		if vk < 0 {
			return nil, NewTypeError(fmt.Sprintf(
				"%s() got an unexpected keyword argument '%s'", code.Name, name))
		}
		if surplusKw == nil {
			surplusKw = NewDict()
		}
		surplusKw.Set(StrKey(name), v)
	}

	// Defaults for whatever is still unbound.
	if n := len(fn.Defaults); n > 0 {
		// Defaults align with the last n positional parameters.
		start := len(posSlots) - n
		for i, slot := range posSlots {
			if i >= start && !bound[slot] {
				locals[slot] = fn.Defaults[i-start]
				bound[slot] = true
			}
		}
	}
	for i, p := range code.Params {
		if bound[i] {
			continue
		}
		switch p.Kind {
		case ParamKeywordOnly:
			if def, ok := fn.KwDefaults[p.Name]; ok {
				locals[i] = def
				bound[i] = true
			}
		case ParamVarPositional:
			locals[i] = MakeTuple(EmptyTuple)
			bound[i] = true
		case ParamVarKeyword:
			if surplusKw == nil {
				surplusKw = NewDict()
			}
			locals[i] = MakeDict(surplusKw)
			bound[i] = true
		}
	}

	for i, p := range code.Params {
		if !bound[i] {
			return nil, NewTypeError(fmt.Sprintf(
				"%s() missing required argument: '%s'", code.Name, p.Name))
		}
	}
	return locals, nil
}
