package vm

import (
	"fmt"

	"github.com/wudi/dusk/bytecode"
	"github.com/wudi/dusk/object"
)

// AsBool reduces a handle to its truth value. It requires
// invocation (a __len__ call may be needed), so — unlike NumNegated and
// Hash — it lives in vm rather than object.
func (vm *VM) AsBool(frame *Frame, h *object.Handle) (bool, error) {
	switch h.Tag {
	case object.TagBool:
		return h.Payload.(bool), nil
	case object.TagNoneType:
		return false, nil
	case object.TagInt:
		return h.Payload.(int64) != 0, nil
	case object.TagFloat:
		return h.Payload.(float64) != 0.0, nil
	case object.TagType:
		// A type object's attribute map holds its instances' methods; a
		// __len__ found there must not be invoked on the type itself.
		return true, nil
	}

	if lenFn, err := vm.Table.GetAttr(h, "__len__", false); err != nil {
		return false, err
	} else if lenFn != nil {
		res, err := vm.Call(frame, lenFn, nil, nil, false)
		if err != nil {
			return false, err
		}
		n, ok := res.Payload.(int64)
		if !ok {
			return false, &TypeError{Msg: "__len__ must return an int"}
		}
		return n > 0, nil
	}
	return true, nil
}

// AsStr calls __str__ if defined, else falls back to AsRepr. Type objects
// go straight to AsRepr: a __str__ in their attribute map belongs to their
// instances.
func (vm *VM) AsStr(frame *Frame, h *object.Handle) (string, error) {
	if h.IsType(object.TagType) {
		return vm.AsRepr(frame, h)
	}
	if strFn, err := vm.Table.GetAttr(h, "__str__", false); err != nil {
		return "", err
	} else if strFn != nil {
		res, err := vm.Call(frame, strFn, nil, nil, false)
		if err != nil {
			return "", err
		}
		s, ok := res.Payload.(string)
		if !ok {
			return "", &TypeError{Msg: "__str__ must return a str"}
		}
		return s, nil
	}
	return vm.AsRepr(frame, h)
}

// AsRepr returns "<class 'N'>" for types, else calls __repr__.
func (vm *VM) AsRepr(frame *Frame, h *object.Handle) (string, error) {
	if h.IsType(object.TagType) {
		return fmt.Sprintf("<class '%s'>", vm.Table.TypeName(h)), nil
	}
	if reprFn, err := vm.Table.GetAttr(h, "__repr__", false); err != nil {
		return "", err
	} else if reprFn != nil {
		res, err := vm.Call(frame, reprFn, nil, nil, false)
		if err != nil {
			return "", err
		}
		s, ok := res.Payload.(string)
		if !ok {
			return "", &TypeError{Msg: "__repr__ must return a str"}
		}
		return s, nil
	}
	return fmt.Sprintf("<%s object>", vm.Table.TypeName(vm.Table.TypeOf(h))), nil
}

// importModule implements IMPORT_NAME's eager/lazy module lookup.
func (vm *VM) importModule(name string) (*object.Handle, error) {
	if mod, ok := vm.modules[name]; ok {
		return mod, nil
	}
	if lazy, ok := vm.lazyModules[name]; ok {
		if vm.compile == nil {
			return nil, internalErrorf("no compiler configured for lazy import %q", name)
		}
		code, err := vm.compile(lazy.Source, lazy.Filename, bytecode.ModeExec)
		if err != nil {
			return nil, &ImportError{Msg: "failed to compile module '" + name + "': " + err.Error()}
		}
		if err := code.Optimize(vm.Table.NumNegated); err != nil {
			return nil, err
		}
		mod := vm.Table.New(object.TagModule, nil, true)
		mod.Attrs["__name__"] = vm.Table.New(object.TagStr, name, false)
		if _, err := vm.runTopLevel(code, mod); err != nil {
			return nil, err
		}
		delete(vm.lazyModules, name)
		vm.modules[name] = mod
		return mod, nil
	}
	return nil, &ImportError{Msg: "no module named '" + name + "'"}
}
