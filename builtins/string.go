package builtins

import (
	"strings"

	"github.com/wudi/dusk/object"
	"github.com/wudi/dusk/vm"
)

func strArg(h *object.Handle, what string) (string, error) {
	s, ok := h.Payload.(string)
	if !ok || !h.IsType(object.TagStr) {
		return "", &vm.TypeError{Msg: what + " must be a str"}
	}
	return s, nil
}

// quote renders a str the way repr() shows it: single-quoted with the
// obvious escapes.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\'':
			b.WriteString("\\'")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\t':
			b.WriteString("\\t")
		case '\r':
			b.WriteString("\\r")
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func registerStr(v *vm.VM) {
	strType := v.Table.Type(object.TagStr)

	v.BindMethod(strType, "__str__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return args[0], nil
	})
	v.BindMethod(strType, "__repr__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return strHandle(v, quote(args[0].Payload.(string))), nil
	})
	v.BindMethod(strType, "__len__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return intHandle(v, int64(len(args[0].Payload.(string)))), nil
	})

	v.BindMethod(strType, "__add__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		a := args[0].Payload.(string)
		b, err := strArg(args[1], "can only concatenate str to str; right operand")
		if err != nil {
			return nil, err
		}
		return strHandle(v, a+b), nil
	})
	v.BindMethod(strType, "__mul__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		n, ok := args[1].Payload.(int64)
		if !ok {
			return nil, &vm.TypeError{Msg: "can't multiply str by non-int"}
		}
		if n < 0 {
			n = 0
		}
		return strHandle(v, strings.Repeat(args[0].Payload.(string), int(n))), nil
	})

	strCompare := func(name string, cmp func(a, b string) bool) {
		v.BindMethod(strType, name, 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
			a := args[0].Payload.(string)
			b, ok := args[1].Payload.(string)
			if !ok || !args[1].IsType(object.TagStr) {
				switch name {
				case "__eq__":
					return v.Table.False, nil
				case "__ne__":
					return v.Table.True, nil
				}
				return nil, &vm.TypeError{Msg: "cannot compare str with this type"}
			}
			return boolHandle(v, cmp(a, b)), nil
		})
	}
	strCompare("__eq__", func(a, b string) bool { return a == b })
	strCompare("__ne__", func(a, b string) bool { return a != b })
	strCompare("__lt__", func(a, b string) bool { return a < b })
	strCompare("__le__", func(a, b string) bool { return a <= b })
	strCompare("__gt__", func(a, b string) bool { return a > b })
	strCompare("__ge__", func(a, b string) bool { return a >= b })

	v.BindMethod(strType, "__contains__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		sub, err := strArg(args[1], "'in <str>' left operand")
		if err != nil {
			return nil, err
		}
		return boolHandle(v, strings.Contains(args[0].Payload.(string), sub)), nil
	})

	v.BindMethod(strType, "__getitem__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		s := args[0].Payload.(string)
		if args[1].IsType(object.TagSlice) {
			lo, hi, err := sliceBounds(args[1], int64(len(s)))
			if err != nil {
				return nil, err
			}
			return strHandle(v, s[lo:hi]), nil
		}
		i, err := normIndex(args[1], int64(len(s)), "string index")
		if err != nil {
			return nil, err
		}
		return strHandle(v, string(s[i])), nil
	})

	v.BindMethod(strType, "__iter__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		s := args[0].Payload.(string)
		chars := make([]*object.Handle, len(s))
		for i := 0; i < len(s); i++ {
			chars[i] = strHandle(v, string(s[i]))
		}
		return newIterHandle(v, &vm.SliceIterator{Items: chars}), nil
	})

	v.BindMethod(strType, "upper", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return strHandle(v, strings.ToUpper(args[0].Payload.(string))), nil
	})
	v.BindMethod(strType, "lower", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return strHandle(v, strings.ToLower(args[0].Payload.(string))), nil
	})
	v.BindMethod(strType, "strip", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return strHandle(v, strings.TrimSpace(args[0].Payload.(string))), nil
	})
	v.BindMethod(strType, "startswith", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		prefix, err := strArg(args[1], "startswith() argument")
		if err != nil {
			return nil, err
		}
		return boolHandle(v, strings.HasPrefix(args[0].Payload.(string), prefix)), nil
	})
	v.BindMethod(strType, "endswith", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		suffix, err := strArg(args[1], "endswith() argument")
		if err != nil {
			return nil, err
		}
		return boolHandle(v, strings.HasSuffix(args[0].Payload.(string), suffix)), nil
	})

	v.BindMethod(strType, "split", -1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		s := args[0].Payload.(string)
		var parts []string
		switch len(args) {
		case 1:
			parts = strings.Fields(s)
		case 2:
			sep, err := strArg(args[1], "split() separator")
			if err != nil {
				return nil, err
			}
			parts = strings.Split(s, sep)
		default:
			return nil, &vm.TypeError{Msg: "split() takes at most one argument"}
		}
		items := make([]*object.Handle, len(parts))
		for i, p := range parts {
			items[i] = strHandle(v, p)
		}
		return v.Table.New(object.TagList, items, true), nil
	})

	v.BindMethod(strType, "join", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		sep := args[0].Payload.(string)
		items, ok := args[1].Payload.([]*object.Handle)
		if !ok {
			return nil, &vm.TypeError{Msg: "join() argument must be a list or tuple"}
		}
		parts := make([]string, len(items))
		for i, item := range items {
			s, err := v.AsStr(v.CurrentFrame(), item)
			if err != nil {
				return nil, err
			}
			parts[i] = s
		}
		return strHandle(v, strings.Join(parts, sep)), nil
	})
}
