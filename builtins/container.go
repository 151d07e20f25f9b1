package builtins

import (
	"strconv"
	"strings"

	"github.com/wudi/dusk/object"
	"github.com/wudi/dusk/vm"
)

// normIndex converts an index handle into a bounds-checked offset,
// normalising negatives: i < 0 becomes i+size; anything still out of range
// is an IndexError.
func normIndex(h *object.Handle, size int64, what string) (int64, error) {
	i, ok := h.Payload.(int64)
	if !ok || !h.IsType(object.TagInt) {
		return 0, &vm.TypeError{Msg: what + " must be an int"}
	}
	if i < 0 {
		i += size
	}
	if i < 0 || i >= size {
		return 0, &vm.IndexError{Msg: what + " out of range"}
	}
	return i, nil
}

// sliceBounds resolves a slice handle's start/stop against size. Missing
// bounds (None) default to the full extent; values are clamped rather than
// raised, matching slicing convention.
func sliceBounds(h *object.Handle, size int64) (int64, int64, error) {
	pair := h.Payload.([2]*object.Handle)
	resolve := func(bound *object.Handle, fallback int64) (int64, error) {
		if bound == nil || bound.IsType(object.TagNoneType) {
			return fallback, nil
		}
		i, ok := bound.Payload.(int64)
		if !ok || !bound.IsType(object.TagInt) {
			return 0, &vm.TypeError{Msg: "slice bounds must be ints or None"}
		}
		if i < 0 {
			i += size
		}
		if i < 0 {
			i = 0
		}
		if i > size {
			i = size
		}
		return i, nil
	}
	lo, err := resolve(pair[0], 0)
	if err != nil {
		return 0, 0, err
	}
	hi, err := resolve(pair[1], size)
	if err != nil {
		return 0, 0, err
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi, nil
}

// valueEquals is the structural equality the containers use for membership
// and ==: numeric cross-type equality, string/bool payload equality, tuple
// and list element-wise recursion, identity otherwise.
func valueEquals(a, b *object.Handle) bool {
	if a == b {
		return true
	}
	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum && bNum {
		return af == bf
	}
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case object.TagStr:
		return a.Payload.(string) == b.Payload.(string)
	case object.TagBool:
		return a.Payload.(bool) == b.Payload.(bool)
	case object.TagNoneType:
		return true
	case object.TagTuple, object.TagList:
		as := a.Payload.([]*object.Handle)
		bs := b.Payload.([]*object.Handle)
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !valueEquals(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func itemsRepr(v *vm.VM, items []*object.Handle, open, close string) (*object.Handle, error) {
	parts := make([]string, len(items))
	for i, item := range items {
		s, err := v.AsRepr(v.CurrentFrame(), item)
		if err != nil {
			return nil, err
		}
		parts[i] = s
	}
	return strHandle(v, open+strings.Join(parts, ", ")+close), nil
}

// registerSeq attaches the methods list and tuple share.
func registerSeq(v *vm.VM, typ *object.Handle, what string) {
	v.BindMethod(typ, "__len__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return intHandle(v, int64(len(args[0].Payload.([]*object.Handle)))), nil
	})
	v.BindMethod(typ, "__contains__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		for _, item := range args[0].Payload.([]*object.Handle) {
			if valueEquals(item, args[1]) {
				return v.Table.True, nil
			}
		}
		return v.Table.False, nil
	})
	v.BindMethod(typ, "__iter__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return newIterHandle(v, &vm.SliceIterator{Items: args[0].Payload.([]*object.Handle)}), nil
	})
	v.BindMethod(typ, "__eq__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return boolHandle(v, valueEquals(args[0], args[1])), nil
	})
	v.BindMethod(typ, "__ne__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return boolHandle(v, !valueEquals(args[0], args[1])), nil
	})
	v.BindMethod(typ, "__getitem__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		items := args[0].Payload.([]*object.Handle)
		if args[1].IsType(object.TagSlice) {
			lo, hi, err := sliceBounds(args[1], int64(len(items)))
			if err != nil {
				return nil, err
			}
			return v.Table.New(args[0].Tag, append([]*object.Handle{}, items[lo:hi]...), args[0].Tag == object.TagList), nil
		}
		i, err := normIndex(args[1], int64(len(items)), what+" index")
		if err != nil {
			return nil, err
		}
		return items[i], nil
	})
}

type rangeState struct {
	start, stop, step int64
}

type rangeIterator struct {
	cur, stop, step int64
}

func (it *rangeIterator) Advance(v *vm.VM, f *vm.Frame) (*object.Handle, bool, error) {
	if (it.step > 0 && it.cur >= it.stop) || (it.step < 0 && it.cur <= it.stop) {
		return nil, false, nil
	}
	h := v.Table.New(object.TagInt, it.cur, false)
	it.cur += it.step
	return h, true, nil
}

func newRange(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
	nums := make([]int64, len(args))
	for i, a := range args {
		n, ok := a.Payload.(int64)
		if !ok || !a.IsType(object.TagInt) {
			return nil, &vm.TypeError{Msg: "range() arguments must be ints"}
		}
		nums[i] = n
	}
	r := rangeState{step: 1}
	switch len(nums) {
	case 1:
		r.stop = nums[0]
	case 2:
		r.start, r.stop = nums[0], nums[1]
	case 3:
		r.start, r.stop, r.step = nums[0], nums[1], nums[2]
		if r.step == 0 {
			return nil, &vm.ValueError{Msg: "range() step must not be zero"}
		}
	default:
		return nil, &vm.TypeError{Msg: "range() takes 1 to 3 arguments"}
	}
	return v.Table.New(object.TagRange, r, false), nil
}

func (r rangeState) length() int64 {
	if r.step > 0 {
		if r.stop <= r.start {
			return 0
		}
		return (r.stop - r.start + r.step - 1) / r.step
	}
	if r.stop >= r.start {
		return 0
	}
	return (r.start - r.stop - r.step - 1) / -r.step
}

func registerContainers(v *vm.VM) {
	listType := v.Table.Type(object.TagList)
	tupleType := v.Table.Type(object.TagTuple)

	registerSeq(v, listType, "list")
	registerSeq(v, tupleType, "tuple")

	v.BindMethod(listType, "__repr__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return itemsRepr(v, args[0].Payload.([]*object.Handle), "[", "]")
	})
	v.BindMethod(tupleType, "__repr__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		items := args[0].Payload.([]*object.Handle)
		if len(items) == 1 {
			s, err := v.AsRepr(v.CurrentFrame(), items[0])
			if err != nil {
				return nil, err
			}
			return strHandle(v, "("+s+",)"), nil
		}
		return itemsRepr(v, items, "(", ")")
	})

	v.BindMethod(listType, "__add__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		b, ok := args[1].Payload.([]*object.Handle)
		if !ok || !args[1].IsType(object.TagList) {
			return nil, &vm.TypeError{Msg: "can only concatenate list to list"}
		}
		a := args[0].Payload.([]*object.Handle)
		merged := make([]*object.Handle, 0, len(a)+len(b))
		merged = append(merged, a...)
		merged = append(merged, b...)
		return v.Table.New(object.TagList, merged, true), nil
	})

	v.BindMethod(listType, "append", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		args[0].Payload = append(args[0].Payload.([]*object.Handle), args[1])
		return v.Table.None, nil
	})
	v.BindMethod(listType, "insert", 2, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		items := args[0].Payload.([]*object.Handle)
		i, ok := args[1].Payload.(int64)
		if !ok {
			return nil, &vm.TypeError{Msg: "insert() index must be an int"}
		}
		if i < 0 {
			i += int64(len(items))
		}
		if i < 0 {
			i = 0
		}
		if i > int64(len(items)) {
			i = int64(len(items))
		}
		items = append(items, nil)
		copy(items[i+1:], items[i:])
		items[i] = args[2]
		args[0].Payload = items
		return v.Table.None, nil
	})
	v.BindMethod(listType, "pop", -1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		items := args[0].Payload.([]*object.Handle)
		if len(items) == 0 {
			return nil, &vm.IndexError{Msg: "pop from empty list"}
		}
		i := int64(len(items) - 1)
		if len(args) == 2 {
			var err error
			i, err = normIndex(args[1], int64(len(items)), "pop() index")
			if err != nil {
				return nil, err
			}
		} else if len(args) > 2 {
			return nil, &vm.TypeError{Msg: "pop() takes at most one argument"}
		}
		out := items[i]
		args[0].Payload = append(items[:i], items[i+1:]...)
		return out, nil
	})

	v.BindMethod(listType, "__setitem__", 2, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		items := args[0].Payload.([]*object.Handle)
		i, err := normIndex(args[1], int64(len(items)), "list assignment index")
		if err != nil {
			return nil, err
		}
		items[i] = args[2]
		return v.Table.None, nil
	})
	v.BindMethod(listType, "__delitem__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		items := args[0].Payload.([]*object.Handle)
		i, err := normIndex(args[1], int64(len(items)), "list deletion index")
		if err != nil {
			return nil, err
		}
		args[0].Payload = append(items[:i], items[i+1:]...)
		return v.Table.None, nil
	})

	rangeType := v.Table.Type(object.TagRange)
	v.BindMethod(rangeType, "__iter__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		r := args[0].Payload.(rangeState)
		return newIterHandle(v, &rangeIterator{cur: r.start, stop: r.stop, step: r.step}), nil
	})
	v.BindMethod(rangeType, "__len__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return intHandle(v, args[0].Payload.(rangeState).length()), nil
	})
	v.BindMethod(rangeType, "__repr__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		r := args[0].Payload.(rangeState)
		s := "range(" + strconv.FormatInt(r.start, 10) + ", " + strconv.FormatInt(r.stop, 10) + ")"
		if r.step != 1 {
			s = s[:len(s)-1] + ", " + strconv.FormatInt(r.step, 10) + ")"
		}
		return strHandle(v, s), nil
	})
}
