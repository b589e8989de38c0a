package vm

// ParamKind classifies a formal parameter.
type ParamKind uint8

const (
	// ParamPositional is an ordinary parameter, fillable by position or
	// by keyword.
	ParamPositional ParamKind = iota
	// ParamKeywordOnly can only be bound by keyword.
	ParamKeywordOnly
	// ParamVarPositional collects surplus positional arguments (*args).
	ParamVarPositional
	// ParamVarKeyword collects unbound keyword arguments (**kwargs).
	ParamVarKeyword
)

// Param describes one formal parameter of a code object.
type Param struct {
	Name string
	Kind ParamKind
}

// CodeFlags carry the execution mode of a code object.
type CodeFlags uint8

const (
	// FlagGenerator marks code whose calls produce a generator instead
	// of running.
	FlagGenerator CodeFlags = 1 << iota
	// FlagCoroutine marks code whose calls produce a coroutine.
	FlagCoroutine
)

// Code is an immutable compiled unit: bytecode plus the pools it indexes
// into. Code objects are shared freely between functions, generators,
// and frames; nothing mutates them after construction.
type Code struct {
	// Name is the simple name, QualName the dotted path used in
	// diagnostics ("Outer.inner").
	Name     string
	QualName string

	// Params lists formal parameters in declaration order. Parameters
	// occupy the first len(Params) local slots.
	Params []Param

	Bytecode  []byte
	Constants []Value
	Names     []string

	// NumLocals counts all local slots including parameters.
	NumLocals int

	// CellVars are locals captured by nested functions; a fresh cell is
	// created per frame for each. FreeVars are names captured from an
	// enclosing scope and arrive through the function's closure.
	CellVars []string
	FreeVars []string

	Flags CodeFlags
}

// IsGenerator returns true if calls to this code produce a generator.
func (c *Code) IsGenerator() bool { return c.Flags&FlagGenerator != 0 }

// IsCoroutine returns true if calls to this code produce a coroutine.
func (c *Code) IsCoroutine() bool { return c.Flags&FlagCoroutine != 0 }

// NumCells returns the combined cell and free variable count. Deref
// opcodes index cell variables first, then free variables, matching the
// layout built by frame setup.
func (c *Code) NumCells() int { return len(c.CellVars) + len(c.FreeVars) }

// CountPositional returns how many parameters can be filled by position.
func (c *Code) CountPositional() int {
	n := 0
	for _, p := range c.Params {
		if p.Kind == ParamPositional {
			n++
		}
	}
	return n
}

// VarPositionalIndex returns the slot of the *args parameter, or -1.
func (c *Code) VarPositionalIndex() int {
	for i, p := range c.Params {
		if p.Kind == ParamVarPositional {
			return i
		}
	}
	return -1
}

// VarKeywordIndex returns the slot of the **kwargs parameter, or -1.
func (c *Code) VarKeywordIndex() int {
	for i, p := range c.Params {
		if p.Kind == ParamVarKeyword {
			return i
		}
	}
	return -1
}

// ParamIndex returns the slot of the named parameter, or -1.
func (c *Code) ParamIndex(name string) int {
	for i, p := range c.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}
