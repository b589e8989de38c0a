package vm

import "fmt"

// ---------------------------------------------------------------------------
// Call dispatch
// ---------------------------------------------------------------------------

// callValue invokes any callable value. Calling a generator or coroutine
// function never runs bytecode: it binds arguments into a fresh frame and
// wraps it, leaving execution to the VM's resume driver.
func (in *Interp) callValue(callable Value, args []Value, kwargs map[string]Value) (Value, *ExceptionObject) {
	switch callable.Kind() {
	case KindFunction:
		fn := callable.Function()
		fr, err := frameForCall(fn, args, kwargs)
		if err != nil {
			return None, AsException(err)
		}
		if fn.Code.IsCoroutine() {
			return MakeCoroutine(NewCoroutine(fr, fn.QualName())), nil
		}
		if fn.Code.IsGenerator() {
			return MakeGenerator(NewGenerator(fr, fn.QualName())), nil
		}
		if in.depth >= in.maxDepth {
			return None, NewRecursionError()
		}
		in.depth++
		in.vm.profiler.RecordCall(fn.QualName())
		sig, v, exc := in.RunFrame(fr)
		in.depth--
		switch sig {
		case SignalReturn:
			return v, nil
		case SignalRaise:
			return None, exc
		default:
			panic("yield escaped a non-generator frame")
		}

	case KindBuiltin:
		b := callable.Builtin()
		if len(kwargs) > 0 {
			return None, NewTypeError(fmt.Sprintf("%s() takes no keyword arguments", b.Name))
		}
		return b.Call(args)

	case KindBoundMethod:
		bm := callable.BoundMethod()
		full := make([]Value, 0, len(args)+1)
		full = append(full, bm.Receiver)
		full = append(full, args...)
		return in.callValue(bm.Fn, full, kwargs)

	case KindType:
		return in.instantiate(callable.Type(), args, kwargs)

	default:
		return None, NewTypeError(fmt.Sprintf("'%s' object is not callable", callable.TypeName()))
	}
}

// frameForCall binds arguments and prepares a frame without running it.
func frameForCall(fn *Function, args []Value, kwargs map[string]Value) (*Frame, error) {
	locals, err := BindArguments(fn, args, kwargs)
	if err != nil {
		return nil, err
	}
	fr := NewFrame(fn.Code, fn.Globals)
	copy(fr.Locals, locals)
	fr.AttachClosure(fn.FreeCells())
	fr.SeedParamCells()
	return fr, nil
}

// instantiate constructs an instance of t. Registered exception types
// produce exception values directly instead of instances.
func (in *Interp) instantiate(t *Type, args []Value, kwargs map[string]Value) (Value, *ExceptionObject) {
	if in.vm.excs.IsExceptionType(t.Name) {
		msg := ""
		if len(args) > 0 {
			msg = args[0].Display()
		}
		exc := NewException(t.Name, msg)
		exc.Args = append([]Value(nil), args...)
		return MakeException(exc), nil
	}

	inst := NewInstance(t)
	self := MakeInstance(inst)
	if initV, ok := t.LookupMRO("__init__"); ok {
		full := make([]Value, 0, len(args)+1)
		full = append(full, self)
		full = append(full, args...)
		if _, exc := in.callValue(initV, full, kwargs); exc != nil {
			return None, exc
		}
	} else if len(args) > 0 || len(kwargs) > 0 {
		return None, NewTypeError(fmt.Sprintf("%s() takes no arguments", t.Name))
	}
	return self, nil
}

// ---------------------------------------------------------------------------
// Class construction
// ---------------------------------------------------------------------------

// buildClass runs a class body function to collect its namespace, then
// creates the type. Subclasses of registered exception types join the
// exception hierarchy so except clauses can match them.
func (in *Interp) buildClass(name string, body Value, baseVals []Value) (Value, *ExceptionObject) {
	if body.Kind() != KindFunction {
		return None, NewTypeError("class body must be a function")
	}
	bases := make([]*Type, 0, len(baseVals))
	for _, bv := range baseVals {
		if bv.Kind() != KindType {
			return None, NewTypeError(fmt.Sprintf(
				"class base must be a type, not %s", bv.TypeName()))
		}
		bases = append(bases, bv.Type())
	}

	nsV, exc := in.callValue(body, nil, nil)
	if exc != nil {
		return None, exc
	}
	if nsV.Kind() != KindDict {
		return None, NewTypeError("class body must produce a namespace")
	}
	namespace := make(map[string]Value)
	d := nsV.Dict()
	for _, k := range d.Keys() {
		kv := k.Value()
		if !kv.IsStr() {
			continue
		}
		if v, ok := d.Get(k); ok {
			namespace[kv.Str()] = v
		}
	}

	t, err := NewType(name, bases, namespace)
	if err != nil {
		return None, AsException(err)
	}
	for _, b := range bases {
		if in.vm.excs.IsExceptionType(b.Name) {
			in.vm.excs.Register(name, b.Name)
			break
		}
	}
	return MakeType(t), nil
}
