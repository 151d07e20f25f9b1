package vm

import (
	"github.com/wudi/dusk/bytecode"
	"github.com/wudi/dusk/object"
)

// RefKind tags which of the four reference variants a Ref carries. Refs
// form a closed sum, so a tagged union beats an interface hierarchy: no
// indirect calls, compact payloads.
type RefKind int

const (
	RefName RefKind = iota
	RefAttr
	RefIndex
	RefTuple
)

// Ref is the payload of a "ref" handle: dusk's first-class l-value,
// resolved to a value only when required.
type Ref struct {
	Kind RefKind

	// RefName
	Name  string
	Scope bytecode.Scope

	// RefAttr / RefIndex
	Obj   *object.Handle
	Attr  string        // RefAttr
	Index *object.Handle // RefIndex

	// RefTuple
	Items []*object.Handle // each item is itself a "ref" handle
}

func newRef(tbl *object.Table, r Ref) *object.Handle {
	return tbl.New(object.TagRef, r, false)
}

// isRef reports whether h is a reference handle.
func isRef(h *object.Handle) bool {
	return h.IsType(object.TagRef)
}

// derefd resolves h to a value if it is a reference, else returns h as-is.
func (vm *VM) derefd(frame *Frame, h *object.Handle) (*object.Handle, error) {
	if !isRef(h) {
		return h, nil
	}
	return vm.refGet(frame, h.Payload.(Ref))
}

func (vm *VM) refGet(frame *Frame, r Ref) (*object.Handle, error) {
	switch r.Kind {
	case RefName:
		return vm.nameRefGet(frame, r.Name)
	case RefAttr:
		return vm.Table.GetAttr(r.Obj, r.Attr, true)
	case RefIndex:
		return vm.callMethod(frame, r.Obj, "__getitem__", []*object.Handle{r.Index})
	case RefTuple:
		items := make([]*object.Handle, len(r.Items))
		for i, inner := range r.Items {
			v, err := vm.refGet(frame, inner.Payload.(Ref))
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return vm.Table.New(object.TagTuple, items, false), nil
	default:
		return nil, internalErrorf("unknown ref kind %d", r.Kind)
	}
}

func (vm *VM) refSet(frame *Frame, r Ref, val *object.Handle) error {
	switch r.Kind {
	case RefName:
		return vm.nameRefSet(frame, r.Name, r.Scope, val)
	case RefAttr:
		return vm.Table.SetAttr(r.Obj, r.Attr, val)
	case RefIndex:
		_, err := vm.callMethod(frame, r.Obj, "__setitem__", []*object.Handle{r.Index, val})
		return err
	case RefTuple:
		return vm.tupleRefSet(frame, r.Items, val)
	default:
		return internalErrorf("unknown ref kind %d", r.Kind)
	}
}

func (vm *VM) refDel(frame *Frame, r Ref) error {
	switch r.Kind {
	case RefName:
		return vm.nameRefDel(frame, r.Name, r.Scope)
	case RefAttr:
		return vm.Table.DelAttr(r.Obj, r.Attr)
	case RefIndex:
		_, err := vm.callMethod(frame, r.Obj, "__delitem__", []*object.Handle{r.Index})
		return err
	case RefTuple:
		for _, inner := range r.Items {
			if err := vm.refDel(frame, inner.Payload.(Ref)); err != nil {
				return err
			}
		}
		return nil
	default:
		return internalErrorf("unknown ref kind %d", r.Kind)
	}
}

// nameRefGet searches locals, then globals (the current module's attribute
// map), then built-ins. Unlike set/del it does not branch on scope.
func (vm *VM) nameRefGet(frame *Frame, name string) (*object.Handle, error) {
	if v, ok := frame.Locals[name]; ok {
		return v, nil
	}
	if v, ok := frame.Module.Attrs[name]; ok {
		return v, nil
	}
	if v, ok := vm.Builtins.Attrs[name]; ok {
		return v, nil
	}
	return nil, &NameError{Name: name}
}

func (vm *VM) nameRefSet(frame *Frame, name string, scope bytecode.Scope, val *object.Handle) error {
	switch scope {
	case bytecode.ScopeLocal:
		frame.Locals[name] = val
		return nil
	case bytecode.ScopeGlobal:
		if _, ok := frame.Locals[name]; ok {
			frame.Locals[name] = val
		} else {
			frame.Module.Attrs[name] = val
		}
		return nil
	default:
		return internalErrorf("NameRef.set with non-local/global scope %d", scope)
	}
}

func (vm *VM) nameRefDel(frame *Frame, name string, scope bytecode.Scope) error {
	switch scope {
	case bytecode.ScopeLocal:
		if _, ok := frame.Locals[name]; !ok {
			return &NameError{Name: name}
		}
		delete(frame.Locals, name)
		return nil
	case bytecode.ScopeGlobal:
		if _, ok := frame.Locals[name]; ok {
			delete(frame.Locals, name)
			return nil
		}
		if _, ok := frame.Module.Attrs[name]; ok {
			delete(frame.Module.Attrs, name)
			return nil
		}
		return &NameError{Name: name}
	default:
		return internalErrorf("NameRef.del with non-local/global scope %d", scope)
	}
}

func (vm *VM) tupleRefSet(frame *Frame, items []*object.Handle, val *object.Handle) error {
	var elems []*object.Handle
	switch val.Tag {
	case object.TagTuple, object.TagList:
		elems = val.Payload.([]*object.Handle)
	default:
		return &TypeError{Msg: "only tuple or list can be unpacked"}
	}
	if len(elems) > len(items) {
		return &ValueError{Msg: "too many values to unpack"}
	}
	if len(elems) < len(items) {
		return &ValueError{Msg: "not enough values to unpack"}
	}
	for i, inner := range items {
		if err := vm.refSet(frame, inner.Payload.(Ref), elems[i]); err != nil {
			return err
		}
	}
	return nil
}
