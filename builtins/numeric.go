package builtins

import (
	"math"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/wudi/dusk/object"
	"github.com/wudi/dusk/vm"
)

// asFloat widens an int or float handle to float64.
func asFloat(h *object.Handle) (float64, bool) {
	switch h.Tag {
	case object.TagInt:
		return float64(h.Payload.(int64)), true
	case object.TagFloat:
		return h.Payload.(float64), true
	}
	return 0, false
}

func bothInt(a, b *object.Handle) (int64, int64, bool) {
	if a.Tag == object.TagInt && b.Tag == object.TagInt {
		return a.Payload.(int64), b.Payload.(int64), true
	}
	return 0, 0, false
}

// floorDiv matches the language's floored division for negative operands,
// which Go's truncating / does not give.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && ((a < 0) != (b < 0)) {
		m += b
	}
	return m
}

func intHandle(v *vm.VM, n int64) *object.Handle {
	return v.Table.New(object.TagInt, n, false)
}

func floatHandle(v *vm.VM, f float64) *object.Handle {
	return v.Table.New(object.TagFloat, f, false)
}

func strHandle(v *vm.VM, s string) *object.Handle {
	return v.Table.New(object.TagStr, s, false)
}

// numBinary registers one arithmetic dunder on typ. intFn runs when both
// operands are ints (nil forces the float path, e.g. __truediv__); floatFn
// runs otherwise with both operands widened.
func numBinary(v *vm.VM, typ *object.Handle, name string,
	intFn func(a, b int64) (*object.Handle, error),
	floatFn func(a, b float64) (*object.Handle, error)) {
	v.BindMethod(typ, name, 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		if intFn != nil {
			if a, b, ok := bothInt(args[0], args[1]); ok {
				return intFn(a, b)
			}
		}
		a, ok := asFloat(args[0])
		if !ok {
			return nil, &vm.TypeError{Msg: "unsupported operand type(s) for " + name}
		}
		b, ok := asFloat(args[1])
		if !ok {
			return nil, &vm.TypeError{Msg: "unsupported operand type(s) for " + name}
		}
		return floatFn(a, b)
	})
}

// numCompare registers one ordering dunder on typ. __eq__ and __ne__ answer
// rather than raise when the right operand is not numeric.
func numCompare(v *vm.VM, typ *object.Handle, name string, cmp func(a, b float64) bool) {
	v.BindMethod(typ, name, 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		a, _ := asFloat(args[0])
		b, ok := asFloat(args[1])
		if !ok {
			switch name {
			case "__eq__":
				return v.Table.False, nil
			case "__ne__":
				return v.Table.True, nil
			}
			return nil, &vm.TypeError{Msg: "cannot compare these operand types"}
		}
		return boolHandle(v, cmp(a, b)), nil
	})
}

func registerArith(v *vm.VM, typ *object.Handle) {
	numBinary(v, typ, "__add__",
		func(a, b int64) (*object.Handle, error) { return intHandle(v, a+b), nil },
		func(a, b float64) (*object.Handle, error) { return floatHandle(v, a + b), nil })
	numBinary(v, typ, "__sub__",
		func(a, b int64) (*object.Handle, error) { return intHandle(v, a-b), nil },
		func(a, b float64) (*object.Handle, error) { return floatHandle(v, a - b), nil })
	numBinary(v, typ, "__mul__",
		func(a, b int64) (*object.Handle, error) { return intHandle(v, a*b), nil },
		func(a, b float64) (*object.Handle, error) { return floatHandle(v, a * b), nil })
	numBinary(v, typ, "__truediv__", nil,
		func(a, b float64) (*object.Handle, error) {
			if b == 0 {
				return nil, &vm.ZeroDivisionError{Msg: "division by zero"}
			}
			return floatHandle(v, a / b), nil
		})
	numBinary(v, typ, "__floordiv__",
		func(a, b int64) (*object.Handle, error) {
			if b == 0 {
				return nil, &vm.ZeroDivisionError{Msg: "integer division by zero"}
			}
			return intHandle(v, floorDiv(a, b)), nil
		},
		func(a, b float64) (*object.Handle, error) {
			if b == 0 {
				return nil, &vm.ZeroDivisionError{Msg: "float floor division by zero"}
			}
			return floatHandle(v, math.Floor(a/b)), nil
		})
	numBinary(v, typ, "__mod__",
		func(a, b int64) (*object.Handle, error) {
			if b == 0 {
				return nil, &vm.ZeroDivisionError{Msg: "integer modulo by zero"}
			}
			return intHandle(v, floorMod(a, b)), nil
		},
		func(a, b float64) (*object.Handle, error) {
			if b == 0 {
				return nil, &vm.ZeroDivisionError{Msg: "float modulo by zero"}
			}
			m := math.Mod(a, b)
			if m != 0 && (m < 0) != (b < 0) {
				m += b
			}
			return floatHandle(v, m), nil
		})
	numBinary(v, typ, "__pow__",
		func(a, b int64) (*object.Handle, error) {
			if b < 0 {
				return floatHandle(v, math.Pow(float64(a), float64(b))), nil
			}
			result := int64(1)
			for ; b > 0; b-- {
				result *= a
			}
			return intHandle(v, result), nil
		},
		func(a, b float64) (*object.Handle, error) { return floatHandle(v, math.Pow(a, b)), nil })

	numCompare(v, typ, "__eq__", func(a, b float64) bool { return a == b })
	numCompare(v, typ, "__ne__", func(a, b float64) bool { return a != b })
	numCompare(v, typ, "__lt__", func(a, b float64) bool { return a < b })
	numCompare(v, typ, "__le__", func(a, b float64) bool { return a <= b })
	numCompare(v, typ, "__gt__", func(a, b float64) bool { return a > b })
	numCompare(v, typ, "__ge__", func(a, b float64) bool { return a >= b })
}

func registerNumeric(v *vm.VM) {
	intType := v.Table.Type(object.TagInt)
	floatType := v.Table.Type(object.TagFloat)

	registerArith(v, intType)
	registerArith(v, floatType)

	intBitwise := func(name string, fn func(a, b int64) int64) {
		v.BindMethod(intType, name, 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
			a, b, ok := bothInt(args[0], args[1])
			if !ok {
				return nil, &vm.TypeError{Msg: "bitwise operands must be ints"}
			}
			return intHandle(v, fn(a, b)), nil
		})
	}
	intBitwise("__and__", func(a, b int64) int64 { return a & b })
	intBitwise("__or__", func(a, b int64) int64 { return a | b })
	intBitwise("__xor__", func(a, b int64) int64 { return a ^ b })
	intBitwise("__lshift__", func(a, b int64) int64 { return a << uint(b) })
	intBitwise("__rshift__", func(a, b int64) int64 { return a >> uint(b) })

	v.BindMethod(intType, "__repr__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return strHandle(v, strconv.FormatInt(args[0].Payload.(int64), 10)), nil
	})
	v.BindMethod(floatType, "__repr__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		s := strconv.FormatFloat(args[0].Payload.(float64), 'g', -1, 64)
		if !containsAny(s, ".eE") {
			s += ".0"
		}
		return strHandle(v, s), nil
	})

	// humanize_bytes demonstrates binding an external library through the
	// capability interface: 1536.humanize_bytes() == "1.5 kB".
	v.BindMethod(intType, "humanize_bytes", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		n := args[0].Payload.(int64)
		if n < 0 {
			return nil, &vm.ValueError{Msg: "humanize_bytes: negative size"}
		}
		return strHandle(v, humanize.Bytes(uint64(n))), nil
	})

	boolType := v.Table.Type(object.TagBool)
	v.BindMethod(boolType, "__repr__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		if args[0].Payload.(bool) {
			return strHandle(v, "True"), nil
		}
		return strHandle(v, "False"), nil
	})
	v.BindMethod(boolType, "__eq__", 1, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		if !args[1].IsType(object.TagBool) {
			return v.Table.False, nil
		}
		return boolHandle(v, args[0].Payload.(bool) == args[1].Payload.(bool)), nil
	})

	noneType := v.Table.Type(object.TagNoneType)
	v.BindMethod(noneType, "__repr__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return strHandle(v, "None"), nil
	})

	ellipsisType := v.Table.Type(object.TagEllipsis)
	v.BindMethod(ellipsisType, "__repr__", 0, func(v *vm.VM, args []*object.Handle) (*object.Handle, error) {
		return strHandle(v, "..."), nil
	})
}

func containsAny(s, chars string) bool {
	for i := 0; i < len(s); i++ {
		for j := 0; j < len(chars); j++ {
			if s[i] == chars[j] {
				return true
			}
		}
	}
	return false
}
