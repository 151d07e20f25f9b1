package vm

import (
	"github.com/wudi/dusk/bytecode"
	"github.com/wudi/dusk/object"
)

// callMethod looks up name on obj's type chain and calls it with args,
// running any user-function body to completion via a nested exec
// invocation (the per-invocation unwinding boundary exists precisely to
// make this safe).
func (vm *VM) callMethod(frame *Frame, obj *object.Handle, name string, args []*object.Handle) (*object.Handle, error) {
	fn, err := vm.Table.GetAttr(obj, name, true)
	if err != nil {
		return nil, err
	}
	return vm.Call(frame, fn, args, nil, false)
}

// FastCall invokes an unbound method looked up by name on args[0]'s type
// chain (the object package's C1 contract item, requiring invocation so it
// lives here rather than in object.Table).
func (vm *VM) FastCall(frame *Frame, name string, args []*object.Handle) (*object.Handle, error) {
	if len(args) == 0 {
		return nil, internalErrorf("fast_call %s: no receiver", name)
	}
	return vm.callMethod(frame, args[0], name, args[1:])
}

// Call dispatches a call to callable. When opCall
// is set and the call resolves to a non-generator user function, Call
// pushes the new frame onto the VM's call stack and returns the op_call
// sentinel; the evaluation loop notices the sentinel and hands control to
// the outer driver instead of continuing the current frame. A bound method
// is unwrapped and dispatched with the same opCall, so a bound user method
// takes that path too. Every other path (type construction, native
// functions, generator creation) completes synchronously and returns a real
// result.
func (vm *VM) Call(frame *Frame, callable *object.Handle, args []*object.Handle, kwFlat []*object.Handle, opCall bool) (*object.Handle, error) {
	switch callable.Tag {
	case object.TagType:
		return vm.callType(frame, callable, args, kwFlat)

	case object.TagBoundMethod:
		bm := callable.Payload.(object.BoundMethod)
		newArgs := make([]*object.Handle, 0, len(args)+1)
		newArgs = append(newArgs, bm.Receiver)
		newArgs = append(newArgs, args...)
		return vm.Call(frame, bm.Func, newArgs, kwFlat, opCall)

	case object.TagNativeFunction:
		return vm.callNative(callable, args, kwFlat)

	case object.TagFunction:
		return vm.callUserFunction(frame, callable, args, kwFlat, opCall)

	default:
		return nil, &TypeError{Msg: "object is not callable"}
	}
}

// callType implements construction: __new__ if present, else a bare
// instance with __init__ invoked if present.
func (vm *VM) callType(frame *Frame, typ *object.Handle, args []*object.Handle, kwFlat []*object.Handle) (*object.Handle, error) {
	if newFn, err := vm.Table.GetAttr(typ, "__new__", false); err != nil {
		return nil, err
	} else if newFn != nil {
		newArgs := append([]*object.Handle{typ}, args...)
		return vm.Call(frame, newFn, newArgs, kwFlat, false)
	}

	tag := object.Tag(typ.Payload.(int))
	inst := vm.Table.New(tag, nil, true)
	inst.Attrs["__class__"] = typ

	if initFn, err := vm.Table.GetAttr(inst, "__init__", false); err != nil {
		return nil, err
	} else if initFn != nil {
		if _, err := vm.Call(frame, initFn, args, kwFlat, false); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

func (vm *VM) callNative(callable *object.Handle, args []*object.Handle, kwFlat []*object.Handle) (*object.Handle, error) {
	if len(kwFlat) != 0 {
		return nil, &TypeError{Msg: "native functions do not accept keyword arguments"}
	}
	nf := callable.Payload.(*NativeFunction)
	if nf.Arity >= 0 && len(args) != nf.Arity {
		return nil, &TypeError{Msg: "native function " + nf.Name + " expects " + itoa(nf.Arity) + " argument(s)"}
	}
	return nf.Fn(vm, args)
}

func (vm *VM) callUserFunction(frame *Frame, callable *object.Handle, args []*object.Handle, kwFlat []*object.Handle, opCall bool) (*object.Handle, error) {
	fd := callable.Payload.(*bytecode.FunctionDescriptor)

	locals, err := bindArgs(fd, args, kwFlat)
	if err != nil {
		return nil, err
	}

	if fd.Code.IsGenerator {
		module := callable.Attrs["__module__"]
		if module == nil {
			module = frame.Module
		}
		newFrame := NewFrame(0, fd.Code, module)
		newFrame.Locals = locals
		return vm.newGenerator(newFrame), nil
	}

	if vm.depth() >= vm.MaxRecursionDepth {
		return nil, &RecursionError{}
	}

	module := callable.Attrs["__module__"]
	if module == nil {
		module = frame.Module
	}
	newFrame := NewFrame(0, fd.Code, module)
	newFrame.Locals = locals

	if opCall {
		vm.pushFrame(newFrame)
		return vm.opCall, nil
	}

	vm.pushFrame(newFrame)
	result, _, err := vm.exec(newFrame.ID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// bindArgs binds positionals left-to-right, installs defaults, collects
// starred overflow, then applies keyword arguments, rejecting unknowns and
// duplicates.
func bindArgs(fd *bytecode.FunctionDescriptor, args []*object.Handle, kwFlat []*object.Handle) (map[string]*object.Handle, error) {
	locals := make(map[string]*object.Handle)
	filledByPosition := make(map[string]bool)

	i := 0
	for _, name := range fd.Params {
		if i >= len(args) {
			return nil, &TypeError{Msg: "missing required argument: '" + name + "'"}
		}
		locals[name] = args[i]
		filledByPosition[name] = true
		i++
	}

	for _, name := range fd.KwOrder {
		if i < len(args) {
			locals[name] = args[i]
			filledByPosition[name] = true
			i++
		} else {
			locals[name] = fd.KwDefaults[name]
		}
	}

	if fd.StarredParam != "" {
		rest := append([]*object.Handle{}, args[i:]...)
		locals[fd.StarredParam] = &object.Handle{Tag: object.TagTuple, Payload: rest}
		i = len(args)
	} else if i < len(args) {
		return nil, &TypeError{Msg: "too many arguments"}
	}

	isParam := func(name string) bool {
		for _, p := range fd.Params {
			if p == name {
				return true
			}
		}
		for _, p := range fd.KwOrder {
			if p == name {
				return true
			}
		}
		return false
	}

	for k := 0; k+1 < len(kwFlat); k += 2 {
		name := kwFlat[k].Payload.(string)
		val := kwFlat[k+1]
		if !isParam(name) {
			return nil, &TypeError{Msg: "unexpected keyword argument '" + name + "'"}
		}
		if filledByPosition[name] {
			return nil, &TypeError{Msg: "got multiple values for argument '" + name + "'"}
		}
		locals[name] = val
	}

	return locals, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
