package vm

import (
	"fmt"
	"io"
	"os"
)

// DefaultMaxDepth bounds call nesting before a RecursionError is raised.
const DefaultMaxDepth = 1000

// ---------------------------------------------------------------------------
// VM: shared tables and the execution driver
// ---------------------------------------------------------------------------

// VM ties together the module cache, the exception hierarchy, the
// builtin registry, and the profiler, and owns the interpreter that runs
// frames. Bytecode execution is single-threaded: run code from one
// goroutine at a time. The registries themselves are safe for concurrent
// reads.
type VM struct {
	modules  *ModuleCache
	excs     *ExcHierarchy
	builtins *Builtins
	profiler *Profiler
	interp   *Interp
	stdout   io.Writer
}

// NewVM creates and bootstraps a new VM.
func NewVM() *VM {
	vm := &VM{
		modules:  NewModuleCache(nil),
		excs:     NewExcHierarchy(),
		builtins: NewBuiltins(),
		profiler: NewProfiler(),
		stdout:   os.Stdout,
	}
	vm.interp = newInterp(vm, DefaultMaxDepth)
	installBuiltins(vm)
	return vm
}

// SetStdout redirects print output.
func (vm *VM) SetStdout(w io.Writer) { vm.stdout = w }

// Stdout returns the current print destination.
func (vm *VM) Stdout() io.Writer { return vm.stdout }

// SetLoader installs the module loader used on import cache misses.
func (vm *VM) SetLoader(loader ModuleLoader) { vm.modules.SetLoader(loader) }

// SetMaxDepth adjusts the call nesting limit.
func (vm *VM) SetMaxDepth(n int) {
	if n > 0 {
		vm.interp.maxDepth = n
	}
}

// Profiler returns the VM's profiler.
func (vm *VM) Profiler() *Profiler { return vm.profiler }

// Modules returns the VM's module cache.
func (vm *VM) Modules() *ModuleCache { return vm.modules }

// Exceptions returns the VM's exception hierarchy.
func (vm *VM) Exceptions() *ExcHierarchy { return vm.excs }

// Builtins returns the VM's builtin registry.
func (vm *VM) Builtins() *Builtins { return vm.builtins }

// RegisterBuiltin adds a host function under the given name.
func (vm *VM) RegisterBuiltin(name string, fn BuiltinFunc) {
	vm.builtins.Set(name, MakeBuiltin(NewBuiltin(name, fn)))
}

// Import resolves a module through the cache, loading on first use.
func (vm *VM) Import(name string) (*Module, error) {
	return vm.modules.Import(name)
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// RunCode executes a code object with the given module as its global
// namespace and returns its result. Failures come back as exception
// values implementing error.
func (vm *VM) RunCode(code *Code, globals *Module) (Value, error) {
	if globals == nil {
		globals = NewModule("__main__")
	}
	fr := NewFrame(code, globals)
	sig, v, exc := vm.interp.RunFrame(fr)
	switch sig {
	case SignalReturn:
		return v, nil
	case SignalRaise:
		return None, exc
	default:
		return None, NewRuntimeError("yield outside of a generator")
	}
}

// RunModule registers a module under name and executes its top-level
// code against it. The module is visible in the cache before the code
// runs, so circular imports observe the partially initialized module.
func (vm *VM) RunModule(name string, code *Code) (*Module, error) {
	m := vm.modules.Add(NewModule(name))
	if _, err := vm.RunCode(code, m); err != nil {
		vm.modules.Remove(name)
		return nil, err
	}
	return m, nil
}

// Call invokes any callable value with positional arguments.
func (vm *VM) Call(callable Value, args ...Value) (Value, error) {
	v, exc := vm.interp.callValue(callable, args, nil)
	if exc != nil {
		return None, exc
	}
	return v, nil
}

// CallKw invokes any callable value with positional and keyword
// arguments.
func (vm *VM) CallKw(callable Value, args []Value, kwargs map[string]Value) (Value, error) {
	v, exc := vm.interp.callValue(callable, args, kwargs)
	if exc != nil {
		return None, exc
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Generator driving
// ---------------------------------------------------------------------------

// resumeGenerator transitions a generator and runs its frame when the
// state machine asks for execution. Returns the yielded value, or
// done=true with the return value once the generator finishes.
func (vm *VM) resumeGenerator(g *Generator, send Value, throw *ExceptionObject) (Value, bool, *ExceptionObject) {
	if vm.interp.depth >= vm.interp.maxDepth {
		return None, false, NewRecursionError()
	}
	var res GenResult
	if throw != nil {
		res = g.Throw(throw)
	} else {
		res = g.Send(send)
	}
	switch res.Kind {
	case GenNeedExecution:
		return vm.stepGenerator(g)
	case GenStopIteration:
		return res.Value, true, nil
	case GenError:
		return None, false, res.Err
	case GenYielded:
		return res.Value, false, nil
	case GenClosed:
		return None, true, nil
	default:
		panic(fmt.Sprintf("unexpected generator result %d", res.Kind))
	}
}

// stepGenerator runs the frame a state method handed back. Pending sends
// become the value of the suspended yield; pending throws are routed
// into the frame's handler blocks first.
func (vm *VM) stepGenerator(g *Generator) (Value, bool, *ExceptionObject) {
	fr, send, throw, first := g.TakePending()
	if throw != nil {
		if !vm.interp.raiseInFrame(fr, throw) {
			g.MarkFailed()
			return None, false, throw
		}
	} else if !first {
		fr.push(send)
	}

	vm.profiler.RecordResume(g.QualName())
	vm.interp.depth++
	sig, v, exc := vm.interp.RunFrame(fr)
	vm.interp.depth--

	switch sig {
	case SignalYield:
		g.MarkYielded()
		return v, false, nil
	case SignalReturn:
		g.MarkCompleted()
		return v, true, nil
	default:
		g.MarkFailed()
		if exc.TypeName == "StopIteration" {
			wrapped := NewRuntimeError("generator raised StopIteration")
			wrapped.SetContext(exc)
			exc = wrapped
		}
		return None, false, exc
	}
}

// GeneratorSend resumes a generator with a value, as gen.send does.
// Completion surfaces as a StopIteration error carrying the return
// value.
func (vm *VM) GeneratorSend(g *Generator, send Value) (Value, error) {
	v, done, exc := vm.resumeGenerator(g, send, nil)
	if exc != nil {
		return None, exc
	}
	if done {
		return None, NewStopIteration(v)
	}
	return v, nil
}

// GeneratorThrow raises an exception at the generator's suspension
// point, as gen.throw does.
func (vm *VM) GeneratorThrow(g *Generator, exc *ExceptionObject) (Value, error) {
	v, done, rexc := vm.resumeGenerator(g, None, exc)
	if rexc != nil {
		return None, rexc
	}
	if done {
		return None, NewStopIteration(v)
	}
	return v, nil
}

// GeneratorClose shuts a generator down, as gen.close does. A generator
// that traps GeneratorExit and keeps yielding is an error.
func (vm *VM) GeneratorClose(g *Generator) error {
	res := g.Close()
	switch res.Kind {
	case GenClosed:
		return nil
	case GenNeedExecution:
		_, done, exc := vm.stepGenerator(g)
		if exc != nil {
			if exc.TypeName == "GeneratorExit" {
				return nil
			}
			return exc
		}
		if done {
			return nil
		}
		return NewRuntimeError("generator ignored GeneratorExit")
	case GenError:
		return res.Err
	default:
		return nil
	}
}

// ---------------------------------------------------------------------------
// Iteration support
// ---------------------------------------------------------------------------

// materialize collects every element an iterable will produce. Iterators
// and generators are consumed.
func (vm *VM) materialize(v Value) ([]Value, error) {
	switch v.Kind() {
	case KindList:
		return v.List().Snapshot(), nil
	case KindTuple:
		return append([]Value(nil), v.Tuple().Items()...), nil
	case KindStr:
		runes := []rune(v.Str())
		items := make([]Value, len(runes))
		for i, r := range runes {
			items[i] = MakeStr(string(r))
		}
		return items, nil
	case KindDict:
		keys := v.Dict().Keys()
		items := make([]Value, len(keys))
		for i, k := range keys {
			items[i] = k.Value()
		}
		return items, nil
	case KindSet:
		return v.Set().Elements(), nil
	case KindIterator:
		var items []Value
		it := v.Iterator()
		for {
			item, ok := it.Next()
			if !ok {
				return items, nil
			}
			items = append(items, item)
		}
	case KindGenerator:
		var items []Value
		g := v.Generator()
		for {
			item, done, exc := vm.resumeGenerator(g, None, nil)
			if exc != nil {
				return nil, exc
			}
			if done {
				return items, nil
			}
			items = append(items, item)
		}
	default:
		return nil, NewTypeError(fmt.Sprintf("'%s' object is not iterable", v.TypeName()))
	}
}
