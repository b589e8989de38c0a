package vm

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// Signal reports why a frame stopped executing.
type Signal uint8

const (
	// SignalReturn carries a normal return value.
	SignalReturn Signal = iota
	// SignalYield carries a value yielded by a generator frame.
	SignalYield
	// SignalRaise carries an exception no block in the frame handled.
	SignalRaise
)

// Finally markers pushed above the saved value when unwinding into a
// finally handler. END_FINALLY dispatches on them; an exception value in
// marker position means re-raise.
const (
	finallyMarkerNone     = 0
	finallyMarkerReturn   = 2
	finallyMarkerBreak    = 3
	finallyMarkerContinue = 4
)

// ---------------------------------------------------------------------------
// Interp: bytecode execution engine
// ---------------------------------------------------------------------------

// Interp executes frames against a VM's shared tables. It is the single
// place bytecode runs: ordinary calls recurse through RunFrame, and the
// VM's generator driver re-enters suspended frames through it.
type Interp struct {
	vm       *VM
	depth    int
	maxDepth int
}

func newInterp(vm *VM, maxDepth int) *Interp {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Interp{vm: vm, maxDepth: maxDepth}
}

// RunFrame executes fr until it returns, yields, or fails. The frame
// keeps its full state across a yield, so the caller can re-enter it
// later by calling RunFrame again.
func (in *Interp) RunFrame(fr *Frame) (Signal, Value, *ExceptionObject) {
	bc := fr.Code.Bytecode

	for {
		if fr.IP >= len(bc) {
			// Falling off the end returns None, running any finallys.
			if returnThroughFinally(fr, None) {
				continue
			}
			return SignalReturn, None, nil
		}

		opOffset := fr.IP
		op := Opcode(bc[fr.IP])
		fr.IP++

		if in.vm.profiler.Enabled() {
			in.vm.profiler.RecordOp(op)
		}

		var err error

		switch op {

		// -------------------------------------------------------------
		// Stack operations
		// -------------------------------------------------------------

		case OpNop:
			// nothing

		case OpPop:
			fr.pop()

		case OpDup:
			fr.push(fr.top())

		case OpDupTwo:
			b := fr.top()
			a := fr.peek(1)
			fr.push(a)
			fr.push(b)

		case OpSwap:
			b := fr.pop()
			a := fr.pop()
			fr.push(b)
			fr.push(a)

		case OpRotN:
			n := int(bc[fr.IP])
			fr.IP++
			if n > 1 {
				top := fr.top()
				for i := 0; i < n-1; i++ {
					fr.stack[fr.sp-1-i] = fr.stack[fr.sp-2-i]
				}
				fr.stack[fr.sp-n] = top
			}

		case OpCopy:
			n := int(bc[fr.IP])
			fr.IP++
			fr.push(fr.peek(n - 1))

		// -------------------------------------------------------------
		// Loads and stores
		// -------------------------------------------------------------

		case OpLoadConst:
			idx := binary.LittleEndian.Uint16(bc[fr.IP:])
			fr.IP += 2
			fr.push(fr.Code.Constants[idx])

		case OpLoadFast:
			idx := binary.LittleEndian.Uint16(bc[fr.IP:])
			fr.IP += 2
			fr.push(fr.Locals[idx])

		case OpStoreFast:
			idx := binary.LittleEndian.Uint16(bc[fr.IP:])
			fr.IP += 2
			fr.Locals[idx] = fr.pop()

		case OpLoadGlobal, OpLoadName:
			idx := binary.LittleEndian.Uint16(bc[fr.IP:])
			fr.IP += 2
			name := fr.Code.Names[idx]
			if v, ok := fr.Globals.Get(name); ok {
				fr.push(v)
			} else if v, ok := in.vm.builtins.Get(name); ok {
				fr.push(v)
			} else {
				err = NewNameError(fmt.Sprintf("name '%s' is not defined", name))
			}

		case OpStoreGlobal, OpStoreName:
			idx := binary.LittleEndian.Uint16(bc[fr.IP:])
			fr.IP += 2
			fr.Globals.Set(fr.Code.Names[idx], fr.pop())

		case OpLoadDeref:
			idx := binary.LittleEndian.Uint16(bc[fr.IP:])
			fr.IP += 2
			fr.push(fr.Cells[idx].Get())

		case OpStoreDeref:
			idx := binary.LittleEndian.Uint16(bc[fr.IP:])
			fr.IP += 2
			fr.Cells[idx].Set(fr.pop())

		case OpLoadClosure:
			idx := binary.LittleEndian.Uint16(bc[fr.IP:])
			fr.IP += 2
			fr.push(MakeCell(fr.Cells[idx]))

		case OpLoadAttr:
			idx := binary.LittleEndian.Uint16(bc[fr.IP:])
			fr.IP += 2
			obj := fr.pop()
			var v Value
			v, err = in.loadAttr(obj, fr.Code.Names[idx])
			if err == nil {
				fr.push(v)
			}

		case OpStoreAttr:
			idx := binary.LittleEndian.Uint16(bc[fr.IP:])
			fr.IP += 2
			obj := fr.pop()
			value := fr.pop()
			err = storeAttr(obj, fr.Code.Names[idx], value)

		case OpLoadMethod:
			idx := binary.LittleEndian.Uint16(bc[fr.IP:])
			fr.IP += 2
			obj := fr.pop()
			var first, second Value
			first, second, err = in.loadMethod(obj, fr.Code.Names[idx])
			if err == nil {
				fr.push(first)
				fr.push(second)
			}

		case OpLoadSubscr:
			key := fr.pop()
			obj := fr.pop()
			var v Value
			v, err = GetSubscript(obj, key)
			if err == nil {
				fr.push(v)
			}

		case OpStoreSubscr:
			key := fr.pop()
			obj := fr.pop()
			value := fr.pop()
			err = SetSubscript(obj, key, value)

		case OpDeleteSubscr:
			key := fr.pop()
			obj := fr.pop()
			err = DelSubscript(obj, key)

		// -------------------------------------------------------------
		// Operators
		// -------------------------------------------------------------

		case OpBinaryAdd, OpBinarySub, OpBinaryMul, OpBinaryDiv,
			OpBinaryFloorDiv, OpBinaryMod, OpBinaryPow, OpBinaryLshift,
			OpBinaryRshift, OpBinaryAnd, OpBinaryOr, OpBinaryXor,
			OpInplaceSub, OpInplaceMul, OpInplaceDiv, OpInplaceFloorDiv,
			OpInplaceMod, OpInplacePow, OpInplaceLshift, OpInplaceRshift,
			OpInplaceAnd, OpInplaceOr, OpInplaceXor:
			b := fr.pop()
			a := fr.pop()
			var v Value
			v, err = BinaryOp(op, a, b)
			if err == nil {
				fr.push(v)
			}

		case OpInplaceAdd:
			b := fr.pop()
			a := fr.pop()
			if a.Kind() == KindList && b.Kind() == KindList {
				// += mutates the left list in place.
				a.List().Extend(b.List().Snapshot())
				fr.push(a)
			} else {
				var v Value
				v, err = BinaryOp(op, a, b)
				if err == nil {
					fr.push(v)
				}
			}

		case OpUnaryNeg, OpUnaryPos, OpUnaryNot, OpUnaryInvert:
			v := fr.pop()
			var r Value
			r, err = UnaryOp(op, v)
			if err == nil {
				fr.push(r)
			}

		case OpCompareEq, OpCompareNe, OpCompareLt, OpCompareLe,
			OpCompareGt, OpCompareGe, OpCompareIs, OpCompareIsNot,
			OpCompareIn, OpCompareNotIn:
			b := fr.pop()
			a := fr.pop()
			var v Value
			v, err = Compare(op, a, b)
			if err == nil {
				fr.push(v)
			}

		// -------------------------------------------------------------
		// Control flow
		// -------------------------------------------------------------

		case OpJump:
			offset := int16(binary.LittleEndian.Uint16(bc[fr.IP:]))
			fr.IP += 2
			fr.IP += int(offset)

		case OpJumpIfTrueOrPop:
			offset := int16(binary.LittleEndian.Uint16(bc[fr.IP:]))
			fr.IP += 2
			if fr.top().IsTruthy() {
				fr.IP += int(offset)
			} else {
				fr.pop()
			}

		case OpJumpIfFalseOrPop:
			offset := int16(binary.LittleEndian.Uint16(bc[fr.IP:]))
			fr.IP += 2
			if !fr.top().IsTruthy() {
				fr.IP += int(offset)
			} else {
				fr.pop()
			}

		case OpPopJumpIfTrue:
			offset := int16(binary.LittleEndian.Uint16(bc[fr.IP:]))
			fr.IP += 2
			if fr.pop().IsTruthy() {
				fr.IP += int(offset)
			}

		case OpPopJumpIfFalse:
			offset := int16(binary.LittleEndian.Uint16(bc[fr.IP:]))
			fr.IP += 2
			if !fr.pop().IsTruthy() {
				fr.IP += int(offset)
			}

		case OpPopJumpIfNone:
			offset := int16(binary.LittleEndian.Uint16(bc[fr.IP:]))
			fr.IP += 2
			if fr.pop().IsNone() {
				fr.IP += int(offset)
			}

		case OpPopJumpIfNotNone:
			offset := int16(binary.LittleEndian.Uint16(bc[fr.IP:]))
			fr.IP += 2
			if !fr.pop().IsNone() {
				fr.IP += int(offset)
			}

		case OpGetIter:
			v := fr.pop()
			var it Value
			it, err = Iterate(v)
			if err == nil {
				fr.push(it)
			}

		case OpForIter:
			offset := int16(binary.LittleEndian.Uint16(bc[fr.IP:]))
			fr.IP += 2
			switch it := fr.top(); it.Kind() {
			case KindIterator:
				if v, ok := it.Iterator().Next(); ok {
					fr.push(v)
				} else {
					// Exhausted: jump out, leaving the iterator for an
					// explicit POP at the loop exit.
					fr.IP += int(offset)
				}
			case KindGenerator:
				v, done, exc := in.vm.resumeGenerator(it.Generator(), None, nil)
				switch {
				case exc != nil:
					err = exc
				case done:
					fr.IP += int(offset)
				default:
					fr.push(v)
				}
			default:
				err = NewTypeError(fmt.Sprintf("'%s' object is not an iterator", it.TypeName()))
			}

		case OpReturn:
			v := fr.pop()
			if returnThroughFinally(fr, v) {
				continue
			}
			return SignalReturn, v, nil

		case OpYield:
			v := fr.pop()
			return SignalYield, v, nil

		case OpYieldFrom:
			// Stack is [sub, sent]: the loader seeds sent with None, and
			// every resume pushes the next sent value. While the
			// delegate keeps yielding, rewind so this opcode runs again
			// on resume.
			sent := fr.pop()
			sub := fr.top()
			switch sub.Kind() {
			case KindGenerator, KindCoroutine:
				gen := genOf(sub)
				v, done, exc := in.vm.resumeGenerator(gen, sent, nil)
				switch {
				case exc != nil:
					fr.pop()
					err = exc
				case done:
					fr.pop()
					fr.push(v)
				default:
					fr.IP = opOffset
					return SignalYield, v, nil
				}
			case KindIterator:
				if v, ok := sub.Iterator().Next(); ok {
					fr.IP = opOffset
					return SignalYield, v, nil
				}
				fr.pop()
				fr.push(None)
			default:
				err = NewTypeError(fmt.Sprintf(
					"cannot 'yield from' a '%s' object", sub.TypeName()))
			}

		case OpGetAwaitable:
			v := fr.pop()
			if v.Kind() == KindCoroutine {
				fr.push(v)
			} else {
				err = NewTypeError(fmt.Sprintf(
					"object %s can't be used in 'await' expression", v.TypeName()))
			}

		case OpImportName:
			idx := binary.LittleEndian.Uint16(bc[fr.IP:])
			fr.IP += 2
			name := fr.Code.Names[idx]
			m, impErr := in.vm.Import(name)
			if impErr != nil {
				err = impErr
			} else {
				fr.push(MakeModule(m))
			}

		case OpImportFrom:
			idx := binary.LittleEndian.Uint16(bc[fr.IP:])
			fr.IP += 2
			name := fr.Code.Names[idx]
			mod := fr.top()
			if mod.Kind() != KindModule {
				err = NewTypeError("IMPORT_FROM requires a module")
			} else if v, ok := mod.Module().Get(name); ok {
				fr.push(v)
			} else {
				err = NewImportError(fmt.Sprintf(
					"cannot import name '%s' from '%s'", name, mod.Module().Name))
			}

		// -------------------------------------------------------------
		// Calls and function construction
		// -------------------------------------------------------------

		case OpCall:
			argc := int(bc[fr.IP])
			fr.IP++
			args := fr.popN(argc)
			callable := fr.pop()
			var v Value
			var exc *ExceptionObject
			v, exc = in.callValue(callable, args, nil)
			if exc != nil {
				err = exc
			} else {
				fr.push(v)
			}

		case OpCallKw:
			argc := int(bc[fr.IP])
			fr.IP++
			namesV := fr.pop()
			if namesV.Kind() != KindTuple {
				err = NewTypeError("CALL_KW requires a name tuple")
				break
			}
			kwNames := namesV.Tuple().Items()
			kwValues := fr.popN(len(kwNames))
			args := fr.popN(argc)
			callable := fr.pop()
			kwargs := make(map[string]Value, len(kwNames))
			for i, nameV := range kwNames {
				kwargs[nameV.Str()] = kwValues[i]
			}
			var v Value
			var exc *ExceptionObject
			v, exc = in.callValue(callable, args, kwargs)
			if exc != nil {
				err = exc
			} else {
				fr.push(v)
			}

		case OpCallEx:
			flags := bc[fr.IP]
			fr.IP++
			var kwargs map[string]Value
			if flags&0x01 != 0 {
				kwV := fr.pop()
				if kwV.Kind() != KindDict {
					err = NewTypeError("argument after ** must be a mapping")
					break
				}
				kwargs = make(map[string]Value)
				d := kwV.Dict()
				for _, k := range d.Keys() {
					kv := k.Value()
					if !kv.IsStr() {
						err = NewTypeError("keywords must be strings")
						break
					}
					v, _ := d.Get(k)
					kwargs[kv.Str()] = v
				}
				if err != nil {
					break
				}
			}
			argsV := fr.pop()
			callable := fr.pop()
			var args []Value
			switch argsV.Kind() {
			case KindTuple:
				args = argsV.Tuple().Items()
			case KindList:
				args = argsV.List().Snapshot()
			default:
				err = NewTypeError(fmt.Sprintf(
					"argument after * must be an iterable, not %s", argsV.TypeName()))
			}
			if err == nil {
				var v Value
				var exc *ExceptionObject
				v, exc = in.callValue(callable, args, kwargs)
				if exc != nil {
					err = exc
				} else {
					fr.push(v)
				}
			}

		case OpCallMethod:
			argc := int(bc[fr.IP])
			fr.IP++
			args := fr.popN(argc)
			second := fr.pop()
			first := fr.pop()
			var v Value
			var exc *ExceptionObject
			if first.isCallMarker() {
				v, exc = in.callValue(second, args, nil)
			} else {
				// Unbound method with its receiver in the second slot.
				full := make([]Value, 0, len(args)+1)
				full = append(full, second)
				full = append(full, args...)
				v, exc = in.callValue(first, full, nil)
			}
			if exc != nil {
				err = exc
			} else {
				fr.push(v)
			}

		case OpMakeFunction:
			flags := bc[fr.IP]
			fr.IP++
			codeV := fr.pop()
			qualV := fr.pop()
			fn := NewFunction(codeV.Code(), qualV.Str(), fr.Globals)
			if flags&MakeFuncClosure != 0 {
				cellsV := fr.pop()
				cells := make([]*Cell, 0, cellsV.Tuple().Len())
				for _, cv := range cellsV.Tuple().Items() {
					cells = append(cells, cv.Cell())
				}
				fn.SetClosureCells(cells)
			}
			if flags&MakeFuncAnnotations != 0 {
				fn.Annotations = fr.pop()
			}
			if flags&MakeFuncKwDefaults != 0 {
				kwV := fr.pop()
				fn.KwDefaults = make(map[string]Value)
				d := kwV.Dict()
				for _, k := range d.Keys() {
					v, _ := d.Get(k)
					fn.KwDefaults[k.Value().Str()] = v
				}
			}
			if flags&MakeFuncDefaults != 0 {
				defV := fr.pop()
				fn.Defaults = append([]Value(nil), defV.Tuple().Items()...)
			}
			fr.push(MakeFunction(fn))

		case OpBuildClass:
			basec := int(bc[fr.IP])
			fr.IP++
			baseVals := fr.popN(basec)
			nameV := fr.pop()
			bodyV := fr.pop()
			var v Value
			var exc *ExceptionObject
			v, exc = in.buildClass(nameV.Str(), bodyV, baseVals)
			if exc != nil {
				err = exc
			} else {
				fr.push(v)
			}

		// -------------------------------------------------------------
		// Builders
		// -------------------------------------------------------------

		case OpBuildTuple:
			n := int(bc[fr.IP])
			fr.IP++
			fr.push(MakeTuple(NewTuple(fr.popN(n))))

		case OpBuildList:
			n := int(bc[fr.IP])
			fr.IP++
			fr.push(MakeList(NewList(fr.popN(n))))

		case OpBuildSet:
			n := int(bc[fr.IP])
			fr.IP++
			items := fr.popN(n)
			s := NewSet()
			for _, item := range items {
				k, kerr := DictKey(item)
				if kerr != nil {
					err = kerr
					break
				}
				s.Add(k)
			}
			if err == nil {
				fr.push(MakeSet(s))
			}

		case OpBuildDict:
			n := int(bc[fr.IP])
			fr.IP++
			items := fr.popN(2 * n)
			d := NewDict()
			for i := 0; i < n; i++ {
				k, kerr := DictKey(items[2*i])
				if kerr != nil {
					err = kerr
					break
				}
				d.Set(k, items[2*i+1])
			}
			if err == nil {
				fr.push(MakeDict(d))
			}

		case OpBuildString:
			n := int(bc[fr.IP])
			fr.IP++
			parts := fr.popN(n)
			out := ""
			for _, p := range parts {
				out += p.Display()
			}
			fr.push(MakeStr(out))

		case OpBuildSlice:
			argc := int(bc[fr.IP])
			fr.IP++
			s := &SliceObject{Start: None, Stop: None, Step: None}
			if argc == 3 {
				s.Step = fr.pop()
			}
			s.Stop = fr.pop()
			s.Start = fr.pop()
			if err = validSliceField(s.Start); err == nil {
				if err = validSliceField(s.Stop); err == nil {
					err = validSliceField(s.Step)
				}
			}
			if err == nil {
				fr.push(MakeSlice(s))
			}

		case OpListAppend:
			depth := int(bc[fr.IP])
			fr.IP++
			v := fr.pop()
			fr.peek(depth - 1).List().Append(v)

		case OpSetAdd:
			depth := int(bc[fr.IP])
			fr.IP++
			v := fr.pop()
			k, kerr := DictKey(v)
			if kerr != nil {
				err = kerr
			} else {
				fr.peek(depth - 1).Set().Add(k)
			}

		case OpMapAdd:
			depth := int(bc[fr.IP])
			fr.IP++
			v := fr.pop()
			keyV := fr.pop()
			k, kerr := DictKey(keyV)
			if kerr != nil {
				err = kerr
			} else {
				fr.peek(depth - 1).Dict().Set(k, v)
			}

		case OpUnpackSequence:
			n := int(bc[fr.IP])
			fr.IP++
			seq := fr.pop()
			var items []Value
			switch seq.Kind() {
			case KindList:
				items = seq.List().Snapshot()
			case KindTuple:
				items = seq.Tuple().Items()
			default:
				err = NewTypeError(fmt.Sprintf(
					"cannot unpack non-sequence %s", seq.TypeName()))
			}
			if err == nil {
				if len(items) < n {
					err = NewValueError(fmt.Sprintf(
						"not enough values to unpack (expected %d, got %d)", n, len(items)))
				} else if len(items) > n {
					err = NewValueError(fmt.Sprintf(
						"too many values to unpack (expected %d)", n))
				} else {
					for i := n - 1; i >= 0; i-- {
						fr.push(items[i])
					}
				}
			}

		case OpFormatValue:
			conv := bc[fr.IP]
			fr.IP++
			v := fr.pop()
			switch conv {
			case FormatRepr:
				fr.push(MakeStr(v.Repr()))
			default:
				fr.push(MakeStr(v.Display()))
			}

		// -------------------------------------------------------------
		// Exception handling
		// -------------------------------------------------------------

		case OpSetupExcept:
			offset := int16(binary.LittleEndian.Uint16(bc[fr.IP:]))
			fr.IP += 2
			fr.pushBlock(BlockExcept, fr.IP+int(offset))

		case OpSetupFinally:
			offset := int16(binary.LittleEndian.Uint16(bc[fr.IP:]))
			fr.IP += 2
			fr.pushBlock(BlockFinally, fr.IP+int(offset))

		case OpSetupWith:
			offset := int16(binary.LittleEndian.Uint16(bc[fr.IP:]))
			fr.IP += 2
			handler := fr.IP + int(offset)
			mgr := fr.pop()
			var exitFn, enterFn, entered Value
			var exc *ExceptionObject
			exitFn, err = in.loadAttr(mgr, "__exit__")
			if err == nil {
				enterFn, err = in.loadAttr(mgr, "__enter__")
			}
			if err == nil {
				entered, exc = in.callValue(enterFn, nil, nil)
				if exc != nil {
					err = exc
				}
			}
			if err == nil {
				fr.push(exitFn)
				fr.pushBlock(BlockWith, handler)
				fr.push(entered)
			}

		case OpPopBlock:
			fr.popBlock()

		case OpPopExcept:
			fr.popHandling()

		case OpRaise:
			argc := int(bc[fr.IP])
			fr.IP++
			err = in.executeRaise(fr, argc)

		case OpReraise:
			v := fr.pop()
			if v.Kind() != KindException {
				panic("RERAISE on a non-exception value")
			}
			err = v.Exception()

		case OpCheckExcMatch:
			matcher := fr.pop()
			excV := fr.top()
			if excV.Kind() != KindException {
				panic("CHECK_EXC_MATCH on a non-exception value")
			}
			var matched bool
			matched, err = in.matchExc(excV.Exception(), matcher)
			if err == nil {
				fr.push(MakeBool(matched))
			}

		case OpEndFinally:
			marker := fr.pop()
			switch {
			case marker.IsNone():
				// normal exit
			case marker.Kind() == KindException:
				err = marker.Exception()
			case marker.IsInt():
				switch marker.Int() {
				case finallyMarkerNone:
					// normal exit
				case finallyMarkerReturn:
					v := fr.pop()
					if returnThroughFinally(fr, v) {
						continue
					}
					return SignalReturn, v, nil
				case finallyMarkerBreak, finallyMarkerContinue:
					target := fr.pop()
					fr.IP = int(target.Int())
				default:
					panic(fmt.Sprintf("invalid finally marker %d", marker.Int()))
				}
			default:
				panic(fmt.Sprintf("invalid finally marker %s", marker.Repr()))
			}

		case OpWithExceptStart:
			// Stack: [__exit__, exc]. Push the exit call's result so a
			// following jump decides between suppressing and re-raising.
			excV := fr.top()
			exitFn := fr.peek(1)
			exc := excV.Exception()
			res, callExc := in.callValue(exitFn,
				[]Value{MakeStr(exc.TypeName), excV, None}, nil)
			if callExc != nil {
				err = callExc
			} else {
				fr.push(res)
			}

		default:
			panic(fmt.Sprintf("unknown opcode 0x%02X at offset %d", byte(op), opOffset))
		}

		if err != nil {
			exc := AsException(err)
			if ctx := fr.currentHandling(); ctx != nil {
				exc.SetContext(ctx)
			}
			if in.raiseInFrame(fr, exc) {
				continue
			}
			exc.PushTrace(fr.Code.QualName, opOffset)
			return SignalRaise, None, exc
		}
	}
}

// ---------------------------------------------------------------------------
// Unwinding
// ---------------------------------------------------------------------------

// raiseInFrame routes an exception into the innermost handler block.
// Returns false when no block can take it and the frame must propagate.
func (in *Interp) raiseInFrame(fr *Frame, exc *ExceptionObject) bool {
	for len(fr.blocks) > 0 {
		b := fr.popBlock()
		switch b.Kind {
		case BlockExcept, BlockWith:
			fr.truncate(b.Level)
			fr.push(MakeException(exc))
			fr.pushHandling(exc)
			fr.IP = b.Handler
			return true
		case BlockFinally:
			fr.truncate(b.Level)
			// The exception itself is the finally marker.
			fr.push(MakeException(exc))
			fr.IP = b.Handler
			return true
		}
	}
	return false
}

// returnThroughFinally diverts a return into the innermost finally
// handler, parking the return value under a marker. Except and with
// blocks just unwind; the loader compiles their cleanup inline.
func returnThroughFinally(fr *Frame, v Value) bool {
	for len(fr.blocks) > 0 {
		b := fr.popBlock()
		if b.Kind == BlockFinally {
			fr.truncate(b.Level)
			fr.push(v)
			fr.push(MakeInt(finallyMarkerReturn))
			fr.IP = b.Handler
			return true
		}
	}
	return false
}

// executeRaise implements the RAISE opcode's three arities.
func (in *Interp) executeRaise(fr *Frame, argc int) error {
	switch argc {
	case 0:
		if exc := fr.currentHandling(); exc != nil {
			return exc
		}
		return NewRuntimeError("No active exception to re-raise")

	case 1:
		return in.normalizeRaised(fr.pop())

	case 2:
		causeV := fr.pop()
		err := in.normalizeRaised(fr.pop())
		exc, ok := err.(*ExceptionObject)
		if !ok {
			return err
		}
		switch causeV.Kind() {
		case KindException:
			return exc.WithCause(causeV.Exception())
		case KindNone:
			exc.SuppressContext = true
			return exc
		case KindType:
			if in.vm.excs.IsExceptionType(causeV.Type().Name) {
				return exc.WithCause(NewException(causeV.Type().Name, ""))
			}
			return NewTypeError("exception causes must derive from BaseException")
		default:
			return NewTypeError("exception causes must derive from BaseException")
		}

	default:
		panic(fmt.Sprintf("RAISE with argc %d", argc))
	}
}

// normalizeRaised turns the operand of a one-argument raise into an
// exception: exception values pass through, exception types are
// instantiated, strings become RuntimeError.
func (in *Interp) normalizeRaised(v Value) error {
	switch v.Kind() {
	case KindException:
		return v.Exception()
	case KindType:
		t := v.Type()
		if in.vm.excs.IsExceptionType(t.Name) {
			return NewException(t.Name, "")
		}
		return NewTypeError("exceptions must derive from BaseException")
	case KindStr:
		return NewRuntimeError(v.Str())
	default:
		return NewTypeError("exceptions must derive from BaseException")
	}
}

// matchExc implements CHECK_EXC_MATCH's matcher forms: a type, a type
// name string, or a tuple of either.
func (in *Interp) matchExc(exc *ExceptionObject, matcher Value) (bool, error) {
	switch matcher.Kind() {
	case KindStr:
		return in.vm.excs.Matches(exc.TypeName, matcher.Str()), nil
	case KindType:
		name := matcher.Type().Name
		if !in.vm.excs.IsExceptionType(name) {
			return false, NewTypeError(
				"catching classes that do not inherit from BaseException is not allowed")
		}
		return in.vm.excs.Matches(exc.TypeName, name), nil
	case KindTuple:
		for _, m := range matcher.Tuple().Items() {
			ok, err := in.matchExc(exc, m)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, NewTypeError(
			"catching classes that do not inherit from BaseException is not allowed")
	}
}

func validSliceField(v Value) error {
	if v.IsNone() || v.IsInt() {
		return nil
	}
	return NewTypeError(fmt.Sprintf(
		"slice indices must be integers or None, not %s", v.TypeName()))
}

// genOf extracts the generator core from a generator or coroutine value.
func genOf(v Value) *Generator {
	if v.Kind() == KindCoroutine {
		return &v.Coroutine().Generator
	}
	return v.Generator()
}
