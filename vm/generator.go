package vm

import "github.com/wudi/dusk/object"

// NativeIterator is the Go-side shape every native_iterator handle's
// payload implements: Advance either produces the next value or reports
// exhaustion.
type NativeIterator interface {
	Advance(vm *VM, frame *Frame) (value *object.Handle, ok bool, err error)
}

// IteratorState is the payload of a native_iterator handle created by
// GET_ITER: the underlying iterator plus the reference FOR_ITER assigns
// each produced value through.
type IteratorState struct {
	Iter        NativeIterator
	AttachedRef *object.Handle
}

// SliceIterator walks a Go slice of handles in order. Built-in containers
// (list, tuple, str, dict, set) hand one of these back from __iter__; range
// has its own iterator.
type SliceIterator struct {
	Items []*object.Handle
	pos   int
}

func (it *SliceIterator) Advance(vm *VM, frame *Frame) (*object.Handle, bool, error) {
	if it.pos >= len(it.Items) {
		return nil, false, nil
	}
	v := it.Items[it.pos]
	it.pos++
	return v, true, nil
}

// dunderIterAdapter wraps a user object exposing __next__/StopIteration as
// a NativeIterator, so FOR_ITER never has to special-case the two forms.
type dunderIterAdapter struct {
	Obj *object.Handle
}

func (d *dunderIterAdapter) Advance(vm *VM, frame *Frame) (*object.Handle, bool, error) {
	val, err := vm.callMethod(frame, d.Obj, "__next__", nil)
	if err != nil {
		if isStopIteration(err) {
			return nil, false, nil
		}
		if ue, ok := err.(*unhandledError); ok {
			if p, ok := ue.Exc.Payload.(*excPayload); ok && p.TypeName == "StopIteration" {
				return nil, false, nil
			}
		}
		return nil, false, err
	}
	return val, true, nil
}

// resolveIterator implements GET_ITER's "if already a native iterator use
// it, else call __iter__" rule.
func (vm *VM) resolveIterator(frame *Frame, target *object.Handle) (NativeIterator, error) {
	if target.IsType(object.TagNativeIterator) {
		return target.Payload.(*IteratorState).Iter, nil
	}
	iterObj, err := vm.callMethod(frame, target, "__iter__", nil)
	if err != nil {
		return nil, err
	}
	if iterObj.IsType(object.TagNativeIterator) {
		return iterObj.Payload.(*IteratorState).Iter, nil
	}
	return &dunderIterAdapter{Obj: iterObj}, nil
}

// Generator is the payload of the native_iterator handle returned by
// calling a generator function: it owns exactly one Frame, moved between
// its own storage and the VM's call stack across suspensions.
type Generator struct {
	frame *Frame
	state int // 0 = never run, 1 = suspended, 2 = exhausted
}

func (vm *VM) newGenerator(frame *Frame) *object.Handle {
	g := &Generator{frame: frame}
	return vm.Table.New(object.TagNativeIterator, &IteratorState{Iter: g}, true)
}

// Advance implements NativeIterator for a generator: push its stored
// frame, run it, and interpret the outcome.
func (g *Generator) Advance(vm *VM, _ *Frame) (*object.Handle, bool, error) {
	if g.state == 2 {
		return nil, false, nil
	}

	g.frame.ID = vm.nextFrameID
	vm.nextFrameID++
	vm.callStack = append(vm.callStack, g.frame)

	value, yielded, err := vm.exec(g.frame.ID)
	if err != nil {
		g.state = 2
		return nil, false, err
	}
	if yielded {
		g.state = 1
		return value, true, nil
	}
	g.state = 2
	return nil, false, nil
}
