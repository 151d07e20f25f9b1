package builtins

import (
	"strings"

	"github.com/wudi/dusk/object"
	"github.com/wudi/dusk/vm"
)

// hashTable is the shared storage behind dict and set instances: entries in
// insertion order, plus a hash index for lookup. Keys must be hashable by
// object.Table.Hash.
type hashTable struct {
	entries []hashEntry
	index   map[int64][]int
}

type hashEntry struct {
	key, val *object.Handle
}

func newHashTable() *hashTable {
	return &hashTable{index: map[int64][]int{}}
}

func (ht *hashTable) find(v *vm.VM, key *object.Handle) (int, int64, error) {
	h, err := v.Table.Hash(key)
	if err != nil {
		return -1, 0, err
	}
	for _, i := range ht.index[h] {
		if valueEquals(ht.entries[i].key, key) {
			return i, h, nil
		}
	}
	return -1, h, nil
}

func (ht *hashTable) set(v *vm.VM, key, val *object.Handle) error {
	i, h, err := ht.find(v, key)
	if err != nil {
		return err
	}
	if i >= 0 {
		ht.entries[i].val = val
		return nil
	}
	ht.index[h] = append(ht.index[h], len(ht.entries))
	ht.entries = append(ht.entries, hashEntry{key: key, val: val})
	return nil
}

func (ht *hashTable) delete(v *vm.VM, key *object.Handle) (bool, error) {
	i, _, err := ht.find(v, key)
	if err != nil {
		return false, err
	}
	if i < 0 {
		return false, nil
	}
	ht.entries = append(ht.entries[:i], ht.entries[i+1:]...)
	ht.index = map[int64][]int{}
	for j, e := range ht.entries {
		h, err := v.Table.Hash(e.key)
		if err != nil {
			return false, err
		}
		ht.index[h] = append(ht.index[h], j)
	}
	return true, nil
}

func (ht *hashTable) keys() []*object.Handle {
	out := make([]*object.Handle, len(ht.entries))
	for i, e := range ht.entries {
		out[i] = e.key
	}
	return out
}

// registerMappingTypes creates the dict and set native types through the
// type registrar. Both construct via __new__, so dict() and set(xs) go
// through the ordinary type-object call path.
func registerMappingTypes(v *vm.VM) error {
	if _, err := v.RegisterType(v.Builtins, vm.NativeTypeDescriptor{
		Name:     "dict",
		Register: registerDict,
	}); err != nil {
		return err
	}
	_, err := v.RegisterType(v.Builtins, vm.NativeTypeDescriptor{
		Name:     "set",
		Register: registerSet,
	})
	return err
}

func tableOf(h *object.Handle, what string) (*hashTable, error) {
	ht, ok := h.Payload.(*hashTable)
	if !ok {
		return nil, &vm.TypeError{Msg: what + " method on a non-" + what + " receiver"}
	}
	return ht, nil
}

func registerDict(v *vm.VM, typ *object.Handle) {
	v.BindMethod(typ, "__new__", -1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		inst := v.Table.New(v.Table.TagOfType(args[0]), newHashTable(), true)
		return inst, nil
	})

	v.BindMethod(typ, "__setitem__", 2, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "dict")
		if err != nil {
			return nil, err
		}
		if err := ht.set(v, args[1], args[2]); err != nil {
			return nil, err
		}
		return v.Table.None, nil
	})

	v.BindMethod(typ, "__getitem__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "dict")
		if err != nil {
			return nil, err
		}
		i, _, err := ht.find(v, args[1])
		if err != nil {
			return nil, err
		}
		if i < 0 {
			s, err := v.AsRepr(v.CurrentFrame(), args[1])
			if err != nil {
				s = "<unprintable key>"
			}
			return nil, &vm.KeyError{Msg: s}
		}
		return ht.entries[i].val, nil
	})

	v.BindMethod(typ, "__delitem__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "dict")
		if err != nil {
			return nil, err
		}
		removed, err := ht.delete(v, args[1])
		if err != nil {
			return nil, err
		}
		if !removed {
			s, err := v.AsRepr(v.CurrentFrame(), args[1])
			if err != nil {
				s = "<unprintable key>"
			}
			return nil, &vm.KeyError{Msg: s}
		}
		return v.Table.None, nil
	})

	v.BindMethod(typ, "__contains__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "dict")
		if err != nil {
			return nil, err
		}
		i, _, err := ht.find(v, args[1])
		if err != nil {
			return nil, err
		}
		return boolHandle(v, i >= 0), nil
	})

	v.BindMethod(typ, "__len__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "dict")
		if err != nil {
			return nil, err
		}
		return intHandle(v, int64(len(ht.entries))), nil
	})

	v.BindMethod(typ, "__iter__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "dict")
		if err != nil {
			return nil, err
		}
		return newIterHandle(v, &vm.SliceIterator{Items: ht.keys()}), nil
	})

	v.BindMethod(typ, "get", -1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		if len(args) < 2 || len(args) > 3 {
			return nil, &vm.TypeError{Msg: "get() takes one or two arguments"}
		}
		ht, err := tableOf(args[0], "dict")
		if err != nil {
			return nil, err
		}
		i, _, err := ht.find(v, args[1])
		if err != nil {
			return nil, err
		}
		if i < 0 {
			if len(args) == 3 {
				return args[2], nil
			}
			return v.Table.None, nil
		}
		return ht.entries[i].val, nil
	})

	v.BindMethod(typ, "keys", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "dict")
		if err != nil {
			return nil, err
		}
		return v.Table.New(object.TagList, ht.keys(), true), nil
	})

	v.BindMethod(typ, "values", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "dict")
		if err != nil {
			return nil, err
		}
		vals := make([]*object.Handle, len(ht.entries))
		for i, e := range ht.entries {
			vals[i] = e.val
		}
		return v.Table.New(object.TagList, vals, true), nil
	})

	v.BindMethod(typ, "items", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "dict")
		if err != nil {
			return nil, err
		}
		pairs := make([]*object.Handle, len(ht.entries))
		for i, e := range ht.entries {
			pairs[i] = v.Table.New(object.TagTuple, []*object.Handle{e.key, e.val}, false)
		}
		return v.Table.New(object.TagList, pairs, true), nil
	})

	v.BindMethod(typ, "__repr__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "dict")
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(ht.entries))
		for i, e := range ht.entries {
			ks, err := v.AsRepr(v.CurrentFrame(), e.key)
			if err != nil {
				return nil, err
			}
			vs, err := v.AsRepr(v.CurrentFrame(), e.val)
			if err != nil {
				return nil, err
			}
			parts[i] = ks + ": " + vs
		}
		return strHandle(v, "{"+strings.Join(parts, ", ")+"}"), nil
	})
}

func registerSet(v *vm.VM, typ *object.Handle) {
	v.BindMethod(typ, "__new__", -1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht := newHashTable()
		if len(args) > 2 {
			return nil, &vm.TypeError{Msg: "set() takes at most one argument"}
		}
		if len(args) == 2 {
			items, ok := args[1].Payload.([]*object.Handle)
			if !ok {
				return nil, &vm.TypeError{Msg: "set() argument must be a list or tuple"}
			}
			for _, item := range items {
				if err := ht.set(v, item, v.Table.True); err != nil {
					return nil, err
				}
			}
		}
		return v.Table.New(v.Table.TagOfType(args[0]), ht, true), nil
	})

	v.BindMethod(typ, "add", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "set")
		if err != nil {
			return nil, err
		}
		if err := ht.set(v, args[1], v.Table.True); err != nil {
			return nil, err
		}
		return v.Table.None, nil
	})

	v.BindMethod(typ, "remove", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "set")
		if err != nil {
			return nil, err
		}
		removed, err := ht.delete(v, args[1])
		if err != nil {
			return nil, err
		}
		if !removed {
			s, err := v.AsRepr(v.CurrentFrame(), args[1])
			if err != nil {
				s = "<unprintable value>"
			}
			return nil, &vm.KeyError{Msg: s}
		}
		return v.Table.None, nil
	})

	v.BindMethod(typ, "__contains__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "set")
		if err != nil {
			return nil, err
		}
		i, _, err := ht.find(v, args[1])
		if err != nil {
			return nil, err
		}
		return boolHandle(v, i >= 0), nil
	})

	v.BindMethod(typ, "__len__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "set")
		if err != nil {
			return nil, err
		}
		return intHandle(v, int64(len(ht.entries))), nil
	})

	v.BindMethod(typ, "__iter__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "set")
		if err != nil {
			return nil, err
		}
		return newIterHandle(v, &vm.SliceIterator{Items: ht.keys()}), nil
	})

	v.BindMethod(typ, "__repr__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		ht, err := tableOf(args[0], "set")
		if err != nil {
			return nil, err
		}
		if len(ht.entries) == 0 {
			return strHandle(v, "set()"), nil
		}
		return itemsRepr(v, ht.keys(), "{", "}")
	})
}
