// Package builtins registers dusk's built-in functions and native types on
// a VM through its capability interface: BindFunc, BindMethod, and the
// type registrar. The language core never depends on this package;
// hosts that embed the VM may register a different library instead.
package builtins

import (
	"strings"

	"github.com/google/uuid"

	"github.com/wudi/dusk/object"
	"github.com/wudi/dusk/vm"
)

// Register installs the default built-in library on v: functions on the
// builtins module, methods on the built-in types, and the dict/set native
// types.
func Register(v *vm.VM) error {
	registerNumeric(v)
	registerStr(v)
	registerContainers(v)
	if err := registerMappingTypes(v); err != nil {
		return err
	}

	objType := v.Table.Type(object.TagObject)
	v.BindMethod(objType, "__eq__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return boolHandle(v, args[0] == args[1]), nil
	})
	v.BindMethod(objType, "__ne__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return boolHandle(v, args[0] != args[1]), nil
	})

	v.BindFunc(v.Builtins, "print", -1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			s, err := v.AsStr(v.CurrentFrame(), a)
			if err != nil {
				return nil, err
			}
			parts[i] = s
		}
		if _, err := v.Stdout.Write([]byte(strings.Join(parts, " ") + "\n")); err != nil {
			return nil, &vm.IOError{Msg: err.Error()}
		}
		return v.Table.None, nil
	})

	v.BindFunc(v.Builtins, "len", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return v.FastCall(v.CurrentFrame(), "__len__", args)
	})

	v.BindFunc(v.Builtins, "str", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		s, err := v.AsStr(v.CurrentFrame(), args[0])
		if err != nil {
			return nil, err
		}
		return v.Table.New(object.TagStr, s, false), nil
	})

	v.BindFunc(v.Builtins, "repr", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		s, err := v.AsRepr(v.CurrentFrame(), args[0])
		if err != nil {
			return nil, err
		}
		return v.Table.New(object.TagStr, s, false), nil
	})

	v.BindFunc(v.Builtins, "hash", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		h, err := v.Table.Hash(args[0])
		if err != nil {
			return nil, err
		}
		return v.Table.New(object.TagInt, h, false), nil
	})

	v.BindFunc(v.Builtins, "type", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return v.Table.TypeOf(args[0]), nil
	})

	v.BindFunc(v.Builtins, "bool", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		b, err := v.AsBool(v.CurrentFrame(), args[0])
		if err != nil {
			return nil, err
		}
		return boolHandle(v, b), nil
	})

	v.BindFunc(v.Builtins, "range", -1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return newRange(v, args)
	})

	v.BindFunc(v.Builtins, "next", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		state, ok := args[0].Payload.(*vm.IteratorState)
		if !ok || !args[0].IsType(object.TagNativeIterator) {
			return nil, &vm.TypeError{Msg: "next() argument must be an iterator"}
		}
		val, more, err := state.Iter.Advance(v, v.CurrentFrame())
		if err != nil {
			return nil, err
		}
		if !more {
			return v.Table.None, nil
		}
		return val, nil
	})

	v.BindFunc(v.Builtins, "super", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		if sup, ok := args[0].Payload.(object.Super); args[0].IsType(object.TagSuper) && ok {
			return v.Table.New(object.TagSuper, object.Super{Root: sup.Root, Depth: sup.Depth + 1}, false), nil
		}
		return v.Table.New(object.TagSuper, object.Super{Root: args[0], Depth: 1}, false), nil
	})

	v.BindFunc(v.Builtins, "eval", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		src, ok := args[0].Payload.(string)
		if !ok {
			return nil, &vm.TypeError{Msg: "eval() argument must be a str"}
		}
		return v.Eval(src)
	})

	v.BindFunc(v.Builtins, "uuid4", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return v.Table.New(object.TagStr, uuid.NewString(), false), nil
	})

	return nil
}

func boolHandle(v *vm.VM, b bool) *object.Handle {
	if b {
		return v.Table.True
	}
	return v.Table.False
}

func newIterHandle(v *vm.VM, it vm.NativeIterator) *object.Handle {
	return v.Table.New(object.TagNativeIterator, &vm.IteratorState{Iter: it}, true)
}
