package vm

import (
	"fmt"

	"github.com/wudi/dusk/bytecode"
	"github.com/wudi/dusk/object"
)

type outcomeKind int

const (
	outReturn outcomeKind = iota
	outYield
	outTail
	outRaise
	outHostError
)

type outcome struct {
	kind  outcomeKind
	value *object.Handle
	err   error
}

// exec is the outer driver: it runs the frame at
// the top of the call stack, and on raise looks for a handler among the
// frames owned by this invocation (id >= baseID). It returns (result,
// yielded, err): yielded is set only when a YIELD_VALUE bubbled out to a
// generator's caller; err is set only for an unrecoverable host failure, or
// for an exception that escaped every frame this invocation owns.
func (vm *VM) exec(baseID int) (*object.Handle, bool, error) {
	for {
		if len(vm.callStack) == 0 {
			return nil, false, internalErrorf("call stack is empty")
		}
		frame := vm.callStack[len(vm.callStack)-1]
		if frame.ID < baseID {
			return nil, false, internalErrorf("call stack shrank below the frame that entered exec")
		}

		o := vm.runFrame(frame)
		switch o.kind {
		case outTail:
			continue

		case outHostError:
			return nil, false, o.err

		case outYield:
			vm.callStack = vm.callStack[:len(vm.callStack)-1]
			return o.value, true, nil

		case outReturn:
			vm.callStack = vm.callStack[:len(vm.callStack)-1]
			if frame.ID == baseID || len(vm.callStack) == 0 {
				return o.value, false, nil
			}
			vm.callStack[len(vm.callStack)-1].Push(o.value)
			continue

		case outRaise:
			if vm.unwind(o.value, baseID) {
				continue
			}
			return nil, false, &unhandledError{Exc: o.value}
		}
	}
}

// runFrame interprets bytecodes of frame until it returns, yields, raises,
// or installs a tail frame. CALL of a user function pushes a frame (op_call)
// and hands control back to the driver loop above; special-method calls
// (operators, __getitem__, __contains__, __enter__/__exit__, conversions,
// dict()/set(), __iter__) and type construction run user bodies through a
// nested exec invocation.
func (vm *VM) runFrame(frame *Frame) outcome {
	for frame.HasNextBytecode() {
		instr := frame.NextBytecode()

		switch instr.Op {
		case bytecode.NO_OP:
			// nothing

		case bytecode.LOAD_CONST:
			frame.Push(frame.Code.Consts[instr.Arg])

		case bytecode.LOAD_LAMBDA:
			fnHandle := frame.Code.Consts[instr.Arg]
			bound := vm.Table.New(fnHandle.Tag, fnHandle.Payload, true)
			bound.Attrs["__module__"] = frame.Module
			frame.Push(bound)

		case bytecode.LOAD_NAME_REF:
			name := frame.Code.Names[instr.Arg]
			frame.Push(newRef(vm.Table, Ref{Kind: RefName, Name: name.Name, Scope: name.Scope}))

		case bytecode.LOAD_NAME:
			name := frame.Code.Names[instr.Arg]
			v, err := vm.nameRefGet(frame, name.Name)
			if err != nil {
				return vm.raise(err)
			}
			frame.Push(v)

		case bytecode.STORE_NAME:
			name := frame.Code.Names[instr.Arg]
			val, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			if err := vm.nameRefSet(frame, name.Name, name.Scope, val); err != nil {
				return vm.raise(err)
			}

		case bytecode.BUILD_ATTR:
			name := frame.Code.Names[instr.Arg>>1]
			lvalue := instr.Arg&1 != 0
			target, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			if lvalue {
				frame.Push(newRef(vm.Table, Ref{Kind: RefAttr, Obj: target, Attr: name.Name}))
			} else {
				v, err := vm.Table.GetAttr(target, name.Name, true)
				if err != nil {
					return vm.raise(err)
				}
				frame.Push(v)
			}

		case bytecode.BUILD_INDEX:
			index, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			target, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			if instr.Arg == 0 {
				frame.Push(newRef(vm.Table, Ref{Kind: RefIndex, Obj: target, Index: index}))
			} else {
				v, err := vm.callMethod(frame, target, "__getitem__", []*object.Handle{index})
				if err != nil {
					return vm.raise(err)
				}
				frame.Push(v)
			}

		case bytecode.STORE_REF:
			val, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			refHandle := frame.Pop()
			if err := vm.refSet(frame, refHandle.Payload.(Ref), val); err != nil {
				return vm.raise(err)
			}

		case bytecode.DELETE_REF:
			refHandle := frame.Pop()
			if err := vm.refDel(frame, refHandle.Payload.(Ref)); err != nil {
				return vm.raise(err)
			}

		case bytecode.BUILD_SMART_TUPLE:
			n := int(instr.Arg)
			raw := make([]*object.Handle, n)
			for i := n - 1; i >= 0; i-- {
				raw[i] = frame.Pop()
			}
			allRefs := true
			for _, h := range raw {
				if !isRef(h) {
					allRefs = false
					break
				}
			}
			if allRefs {
				frame.Push(newRef(vm.Table, Ref{Kind: RefTuple, Items: raw}))
				break
			}
			resolved := make([]*object.Handle, n)
			for i, h := range raw {
				v, err := vm.derefd(frame, h)
				if err != nil {
					return vm.raise(err)
				}
				resolved[i] = v
			}
			frame.Push(vm.Table.New(object.TagTuple, resolved, false))

		case bytecode.BUILD_STRING:
			n := int(instr.Arg)
			parts, err := frame.PopNValuesReversed(vm, n)
			if err != nil {
				return vm.raise(err)
			}
			var sb []byte
			for _, p := range parts {
				s, err := vm.AsStr(frame, p)
				if err != nil {
					return vm.raise(err)
				}
				sb = append(sb, s...)
			}
			frame.Push(vm.Table.New(object.TagStr, string(sb), false))

		case bytecode.LOAD_EVAL_FN:
			evalFn, ok := vm.Builtins.Attrs["eval"]
			if !ok {
				return vm.raise(internalErrorf("builtins.eval is not registered"))
			}
			frame.Push(evalFn)

		case bytecode.LIST_APPEND:
			val, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			list := frame.Stack[len(frame.Stack)-2]
			if _, err := vm.callMethod(frame, list, "append", []*object.Handle{val}); err != nil {
				return vm.raise(err)
			}

		case bytecode.STORE_FUNCTION:
			fn, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			if fn.Attrs == nil {
				fn.Attrs = map[string]*object.Handle{}
			}
			fn.Attrs["__module__"] = frame.Module
			fd := fn.Payload.(*bytecode.FunctionDescriptor)
			frame.Module.Attrs[fd.Name] = fn

		case bytecode.BUILD_CLASS:
			name := frame.Code.Names[instr.Arg]
			baseHandle, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			var base *object.Handle
			if baseHandle.IsType(object.TagNoneType) {
				base = nil
			} else if !baseHandle.IsType(object.TagType) {
				return vm.raise(&TypeError{Msg: "base must be a type"})
			} else {
				base = baseHandle
			}
			typ, err := vm.Table.NewType(frame.Module, name.Name, base)
			if err != nil {
				return vm.raise(err)
			}
			for {
				methodHandle, err := frame.PopValue(vm)
				if err != nil {
					return vm.raise(err)
				}
				if methodHandle.IsType(object.TagNoneType) {
					break
				}
				if methodHandle.Attrs == nil {
					methodHandle.Attrs = map[string]*object.Handle{}
				}
				methodHandle.Attrs["__module__"] = frame.Module
				fd := methodHandle.Payload.(*bytecode.FunctionDescriptor)
				typ.Attrs[fd.Name] = methodHandle
			}
			frame.Push(typ)

		case bytecode.RETURN_VALUE:
			val, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			return outcome{kind: outReturn, value: val}

		case bytecode.PRINT_EXPR:
			val, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			if !val.IsType(object.TagNoneType) {
				s, err := vm.AsRepr(frame, val)
				if err != nil {
					return vm.raise(err)
				}
				fmt.Fprintln(vm.Stdout, s)
			}

		case bytecode.POP_TOP:
			frame.Pop()

		case bytecode.BINARY_OP:
			if o := vm.binaryLike(frame, bytecode.BinaryOpMethods[instr.Arg]); o.kind != outReturn {
				return o
			} else {
				frame.Push(o.value)
			}

		case bytecode.COMPARE_OP:
			if o := vm.binaryLike(frame, bytecode.CompareOpMethods[instr.Arg]); o.kind != outReturn {
				return o
			} else {
				frame.Push(o.value)
			}

		case bytecode.BITWISE_OP:
			if o := vm.binaryLike(frame, bytecode.BitwiseOpMethods[instr.Arg]); o.kind != outReturn {
				return o
			} else {
				frame.Push(o.value)
			}

		case bytecode.IS_OP:
			right, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			left, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			same := left == right
			if instr.Arg == 1 {
				same = !same
			}
			frame.Push(vm.boolHandle(same))

		case bytecode.CONTAINS_OP:
			right, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			left, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			res, err := vm.callMethod(frame, right, "__contains__", []*object.Handle{left})
			if err != nil {
				return vm.raise(err)
			}
			b, err := vm.AsBool(frame, res)
			if err != nil {
				return vm.raise(err)
			}
			if instr.Arg == 1 {
				b = !b
			}
			frame.Push(vm.boolHandle(b))

		case bytecode.UNARY_NEGATIVE:
			val, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			neg, err := vm.Table.NumNegated(val)
			if err != nil {
				return vm.raise(err)
			}
			frame.Push(neg)

		case bytecode.UNARY_NOT:
			val, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			b, err := vm.AsBool(frame, val)
			if err != nil {
				return vm.raise(err)
			}
			frame.Push(vm.boolHandle(!b))

		case bytecode.POP_JUMP_IF_FALSE:
			val, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			b, err := vm.AsBool(frame, val)
			if err != nil {
				return vm.raise(err)
			}
			if !b {
				frame.JumpAbs(int(instr.Arg))
			}

		case bytecode.LOAD_NONE:
			frame.Push(vm.Table.None)
		case bytecode.LOAD_TRUE:
			frame.Push(vm.Table.True)
		case bytecode.LOAD_FALSE:
			frame.Push(vm.Table.False)
		case bytecode.LOAD_ELLIPSIS:
			frame.Push(vm.Table.Ellipsis)

		case bytecode.ASSERT:
			msg, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			pred, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			b, err := vm.AsBool(frame, pred)
			if err != nil {
				return vm.raise(err)
			}
			if !b {
				s, err := vm.AsStr(frame, msg)
				if err != nil {
					return vm.raise(err)
				}
				return vm.raise(&AssertionError{Msg: s})
			}

		case bytecode.EXCEPTION_MATCH:
			name := frame.Code.Names[instr.Arg]
			top := frame.Top()
			p := top.Payload.(*excPayload)
			frame.Push(vm.boolHandle(p.TypeName == name.Name))

		case bytecode.RAISE:
			name := frame.Code.Names[instr.Arg]
			msgHandle, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			msg, err := vm.AsStr(frame, msgHandle)
			if err != nil {
				return vm.raise(err)
			}
			return outcome{kind: outRaise, value: vm.newException(name.Name, msg)}

		case bytecode.RE_RAISE:
			exc := frame.Pop()
			if p, ok := exc.Payload.(*excPayload); ok {
				p.IsRe = true
			}
			return outcome{kind: outRaise, value: exc}

		case bytecode.BUILD_LIST:
			n := int(instr.Arg)
			items, err := frame.PopNValuesReversed(vm, n)
			if err != nil {
				return vm.raise(err)
			}
			frame.Push(vm.Table.New(object.TagList, append([]*object.Handle{}, items...), true))

		case bytecode.BUILD_MAP:
			n := int(instr.Arg)
			pairs, err := frame.PopNValuesReversed(vm, n*2)
			if err != nil {
				return vm.raise(err)
			}
			dict, err := vm.callMethod(frame, vm.Builtins, "dict", nil)
			if err != nil {
				return vm.raise(err)
			}
			for i := 0; i+1 < len(pairs); i += 2 {
				if _, err := vm.callMethod(frame, dict, "__setitem__", []*object.Handle{pairs[i], pairs[i+1]}); err != nil {
					return vm.raise(err)
				}
			}
			frame.Push(dict)

		case bytecode.BUILD_SET:
			n := int(instr.Arg)
			items, err := frame.PopNValuesReversed(vm, n)
			if err != nil {
				return vm.raise(err)
			}
			list := vm.Table.New(object.TagList, append([]*object.Handle{}, items...), true)
			setFn, err := vm.nameRefGet(frame, "set")
			if err != nil {
				return vm.raise(err)
			}
			set, err := vm.Call(frame, setFn, []*object.Handle{list}, nil, false)
			if err != nil {
				return vm.raise(err)
			}
			frame.Push(set)

		case bytecode.DUP_TOP:
			v, err := frame.TopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			frame.Push(v)

		case bytecode.CALL:
			nPos := int(instr.Arg & 0xFFFF)
			nKw := int((instr.Arg >> 16) & 0xFFFF)
			kwFlat, err := frame.PopNValuesReversed(vm, nKw*2)
			if err != nil {
				return vm.raise(err)
			}
			posArgs, err := frame.PopNValuesReversed(vm, nPos)
			if err != nil {
				return vm.raise(err)
			}
			callable, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			result, err := vm.Call(frame, callable, posArgs, kwFlat, true)
			if err != nil {
				return vm.raise(err)
			}
			if result == vm.opCall {
				return outcome{kind: outTail}
			}
			frame.Push(result)

		case bytecode.JUMP_ABSOLUTE:
			frame.JumpAbs(int(instr.Arg))

		case bytecode.SAFE_JUMP_ABSOLUTE:
			frame.JumpAbsSafe(int(instr.Arg))

		case bytecode.GOTO:
			name := frame.Code.Names[instr.Arg]
			pc, ok := frame.Code.Labels[name.Name]
			if !ok {
				return vm.raise(&KeyError{Msg: "undefined label '" + name.Name + "'"})
			}
			frame.JumpAbsSafe(pc)

		case bytecode.GET_ITER:
			target, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			iter, err := vm.resolveIterator(frame, target)
			if err != nil {
				return vm.raise(err)
			}
			destRef := frame.Pop()
			frame.Push(vm.Table.New(object.TagNativeIterator, &IteratorState{Iter: iter, AttachedRef: destRef}, true))

		case bytecode.FOR_ITER:
			top := frame.Top()
			state := top.Payload.(*IteratorState)
			val, ok, err := state.Iter.Advance(vm, frame)
			if err != nil {
				return vm.raise(err)
			}
			if !ok {
				blk := frame.Code.Blocks[frame.Code.Codes[frame.PC-1].Block]
				frame.JumpAbsSafe(blk.End)
			} else {
				if err := vm.refSet(frame, state.AttachedRef.Payload.(Ref), val); err != nil {
					return vm.raise(err)
				}
			}

		case bytecode.LOOP_CONTINUE:
			blk := frame.Code.Blocks[instr.Block]
			frame.JumpAbsSafe(blk.Start)

		case bytecode.LOOP_BREAK:
			blk := frame.Code.Blocks[instr.Block]
			frame.JumpAbsSafe(blk.End)

		case bytecode.JUMP_IF_FALSE_OR_POP:
			v, err := frame.TopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			b, err := vm.AsBool(frame, v)
			if err != nil {
				return vm.raise(err)
			}
			if !b {
				frame.JumpAbs(int(instr.Arg))
			} else {
				frame.Pop()
			}

		case bytecode.JUMP_IF_TRUE_OR_POP:
			v, err := frame.TopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			b, err := vm.AsBool(frame, v)
			if err != nil {
				return vm.raise(err)
			}
			if b {
				frame.JumpAbs(int(instr.Arg))
			} else {
				frame.Pop()
			}

		case bytecode.BUILD_SLICE:
			stop, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			start, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			frame.Push(vm.Table.New(object.TagSlice, [2]*object.Handle{start, stop}, false))

		case bytecode.IMPORT_NAME:
			name := frame.Code.Names[instr.Arg]
			mod, err := vm.importModule(name.Name)
			if err != nil {
				return vm.raise(err)
			}
			frame.Push(mod)

		case bytecode.YIELD_VALUE:
			val, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			return outcome{kind: outYield, value: val}

		case bytecode.WITH_ENTER:
			target, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			if _, err := vm.callMethod(frame, target, "__enter__", nil); err != nil {
				return vm.raise(err)
			}

		case bytecode.WITH_EXIT:
			target, err := frame.PopValue(vm)
			if err != nil {
				return vm.raise(err)
			}
			if _, err := vm.callMethod(frame, target, "__exit__", nil); err != nil {
				return vm.raise(err)
			}

		case bytecode.TRY_BLOCK_ENTER:
			frame.OnTryBlockEnter(instr.Block)

		case bytecode.TRY_BLOCK_EXIT:
			frame.OnTryBlockExit()

		default:
			err := newVMError(ErrBadBytecode, fmt.Sprintf("unknown opcode %v", instr.Op)).withFrame(frame, instr.Op)
			return outcome{kind: outHostError, err: err}
		}
	}

	if frame.Code.Mode == bytecode.ModeExec {
		if len(frame.Stack) != 0 {
			return outcome{kind: outHostError, err: internalErrorf("exec-mode frame finished with non-empty stack")}
		}
		return outcome{kind: outReturn, value: vm.Table.None}
	}
	if len(frame.Stack) != 1 {
		return outcome{kind: outHostError, err: internalErrorf("eval-mode frame finished without exactly one value")}
	}
	return outcome{kind: outReturn, value: frame.Stack[0]}
}

// binaryLike calls the special method named by name as a two-operand
// method: left.method(right). Returning outcome{kind: outReturn} signals success with
// the result in .value; any other kind should be returned by the caller
// directly.
func (vm *VM) binaryLike(frame *Frame, method string) outcome {
	right, err := frame.PopValue(vm)
	if err != nil {
		return vm.raise(err)
	}
	left, err := frame.PopValue(vm)
	if err != nil {
		return vm.raise(err)
	}
	result, err := vm.callMethod(frame, left, method, []*object.Handle{right})
	if err != nil {
		return vm.raise(err)
	}
	return outcome{kind: outReturn, value: result}
}

func (vm *VM) boolHandle(b bool) *object.Handle {
	if b {
		return vm.Table.True
	}
	return vm.Table.False
}
