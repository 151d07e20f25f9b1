// Package object implements dusk's value and type model: a tagged object
// handle, a process-wide type table, and attribute resolution across the
// super/class chain.
package object

import "fmt"

// Tag is the fast type tag carried by every Handle. It is the index of the
// handle's type inside a Table's type vector.
type Tag int

// Built-in tags are created in this fixed order at table construction; the
// order is part of the VM's identity and never changes.
const (
	TagObject Tag = iota
	TagType
	TagBool
	TagInt
	TagFloat
	TagStr
	TagList
	TagTuple
	TagSlice
	TagRange
	TagModule
	TagRef
	TagFunction
	TagNativeFunction
	TagNativeIterator
	TagBoundMethod
	TagSuper
	TagException
	TagNoneType
	TagEllipsis
	TagInternal
	firstUserTag
)

var builtinTagNames = []string{
	"object", "type", "bool", "int", "float", "str", "list", "tuple",
	"slice", "range", "module", "ref", "function", "native_function",
	"native_iterator", "bound_method", "super", "Exception", "NoneType",
	"ellipsis", "_internal",
}

// Handle is dusk's shared-ownership object handle. Every object carries a
// type tag, an optional attribute mapping, and a payload holding its
// intrinsic value.
type Handle struct {
	Tag     Tag
	Attrs   map[string]*Handle // nil => attributes are not settable on this handle
	Payload interface{}
}

// IsType reports whether h carries the given fast tag.
func (h *Handle) IsType(tag Tag) bool {
	return h != nil && h.Tag == tag
}

// AttrsValid reports whether attribute writes are permitted on h.
func (h *Handle) AttrsValid() bool {
	return h != nil && h.Attrs != nil
}

// BoundMethod is the payload of a bound_method handle: a receiver bound to
// an unbound function or native_function handle.
type BoundMethod struct {
	Receiver *Handle
	Func     *Handle
}

// Super is the payload of a super proxy: the object whose attribute lookup
// should start one (or more, when nested) class levels above its own type.
type Super struct {
	Root  *Handle
	Depth int
}

// Table is a process-wide (practically: per-VM), insertion-order-stable
// vector of type objects, plus the attribute-resolution algorithm that reads
// it.
type Table struct {
	types  []*Handle
	byName map[string]*Handle

	None     *Handle
	True     *Handle
	False    *Handle
	Ellipsis *Handle
}

// NewTable constructs the built-in type table, with every built-in type's
// __base__ pointing at "object" (and "object" itself based on None).
func NewTable() *Table {
	t := &Table{byName: make(map[string]*Handle)}
	for i, name := range builtinTagNames {
		typ := &Handle{Tag: TagType, Attrs: map[string]*Handle{}, Payload: i}
		t.types = append(t.types, typ)
		t.byName[name] = typ
	}

	t.None = &Handle{Tag: TagNoneType}
	t.True = &Handle{Tag: TagBool, Payload: true}
	t.False = &Handle{Tag: TagBool, Payload: false}
	t.Ellipsis = &Handle{Tag: TagEllipsis}

	objectType := t.types[TagObject]
	objectType.Attrs["__base__"] = t.None
	for tag, typ := range t.types {
		typ.Attrs["__name__"] = &Handle{Tag: TagStr, Payload: builtinTagNames[tag]}
		if Tag(tag) == TagObject {
			continue
		}
		typ.Attrs["__base__"] = objectType
	}
	return t
}

// New allocates a fresh handle of the given tag. attrsValid controls whether
// the handle may later accept attribute writes (immutable primitives pass
// false).
func (t *Table) New(tag Tag, payload interface{}, attrsValid bool) *Handle {
	h := &Handle{Tag: tag, Payload: payload}
	if attrsValid {
		h.Attrs = make(map[string]*Handle)
	}
	return h
}

// NewType creates a new user-defined type object bound into module, with
// name and base, appending it to the type table and assigning it the next
// fast tag. base must be a type handle, or None to mean "object".
func (t *Table) NewType(module *Handle, name string, base *Handle) (*Handle, error) {
	if base == nil || base == t.None {
		base = t.types[TagObject]
	}
	if !base.IsType(TagType) {
		return nil, fmt.Errorf("base is not a type")
	}
	typ := &Handle{Tag: TagType, Attrs: map[string]*Handle{}, Payload: len(t.types)}
	typ.Attrs["__base__"] = base
	typ.Attrs["__name__"] = &Handle{Tag: TagStr, Payload: name}
	t.types = append(t.types, typ)
	t.byName[name] = typ
	if module != nil && module.AttrsValid() {
		module.Attrs[name] = typ
	}
	return typ, nil
}

// TagOfType returns the fast tag a type handle assigns to its instances.
func (t *Table) TagOfType(typ *Handle) Tag {
	return Tag(typ.Payload.(int))
}

// TypeOf returns h's type handle.
func (t *Table) TypeOf(h *Handle) *Handle {
	return t.types[int(h.Tag)]
}

// Type returns the type handle for tag. Native bindings use this to attach
// methods onto the built-in types.
func (t *Table) Type(tag Tag) *Handle {
	return t.types[int(tag)]
}

// TypeByName returns the registered type named name, or nil.
func (t *Table) TypeByName(name string) *Handle {
	return t.byName[name]
}

// TypeName returns the type's __name__ attribute, or "" if absent.
func (t *Table) TypeName(typ *Handle) string {
	if n, ok := typ.Attrs["__name__"]; ok {
		if s, ok := n.Payload.(string); ok {
			return s
		}
	}
	return ""
}

// Base returns typ's __base__ handle, or nil if typ is "object" (whose base
// is None) or typ has no recorded base.
func (t *Table) Base(typ *Handle) *Handle {
	base, ok := typ.Attrs["__base__"]
	if !ok || base == t.None {
		return nil
	}
	return base
}

// GetAttr resolves attribute n on h:
//  1. super proxies delegate to their root object, starting the class
//     search base.Depth hops above the root's own type.
//  2. a handle's own attribute map is checked first.
//  3. the type chain is walked via __base__; functions and native functions
//     found there are bound to h as a bound_method.
//
// If n is not found: returns (nil, AttributeError-shaped error) when
// throwOnMiss, else (nil, nil).
func (t *Table) GetAttr(h *Handle, name string, throwOnMiss bool) (*Handle, error) {
	var cls *Handle
	if h.IsType(TagSuper) {
		sup := h.Payload.(Super)
		root := sup.Root
		cls = t.TypeOf(root)
		for i := 0; i < sup.Depth; i++ {
			cls = t.Base(cls)
			if cls == nil {
				break
			}
		}
		if root.AttrsValid() {
			if v, ok := root.Attrs[name]; ok {
				return v, nil
			}
		}
	} else {
		if h.AttrsValid() {
			if v, ok := h.Attrs[name]; ok {
				return v, nil
			}
		}
		cls = t.TypeOf(h)
	}

	for cls != nil {
		if v, ok := cls.Attrs[name]; ok {
			if v.IsType(TagFunction) || v.IsType(TagNativeFunction) {
				return t.New(TagBoundMethod, BoundMethod{Receiver: h, Func: v}, false), nil
			}
			return v, nil
		}
		cls = t.Base(cls)
	}

	if throwOnMiss {
		return nil, &AttributeError{TypeName: t.TypeName(t.TypeOf(h)), Attr: name}
	}
	return nil, nil
}

// SetAttr writes h.name = val, unwrapping super proxies to their underlying
// object first, and rejecting writes on handles with no attribute map.
func (t *Table) SetAttr(h *Handle, name string, val *Handle) error {
	for h.IsType(TagSuper) {
		h = h.Payload.(Super).Root
	}
	if !h.AttrsValid() {
		return &TypeError{Msg: "cannot set attribute"}
	}
	h.Attrs[name] = val
	return nil
}

// DelAttr deletes h.name, rejecting handles with no attribute map or a
// missing attribute.
func (t *Table) DelAttr(h *Handle, name string) error {
	for h.IsType(TagSuper) {
		h = h.Payload.(Super).Root
	}
	if !h.AttrsValid() {
		return &TypeError{Msg: "cannot delete attribute"}
	}
	if _, ok := h.Attrs[name]; !ok {
		return &AttributeError{TypeName: t.TypeName(t.TypeOf(h)), Attr: name}
	}
	delete(h.Attrs, name)
	return nil
}

// NumNegated negates an int or float handle, preserving its type.
func (t *Table) NumNegated(h *Handle) (*Handle, error) {
	switch h.Tag {
	case TagInt:
		return t.New(TagInt, -h.Payload.(int64), false), nil
	case TagFloat:
		return t.New(TagFloat, -h.Payload.(float64), false), nil
	default:
		return nil, &TypeError{Msg: "unsupported operand type(s) for -"}
	}
}

// Hash computes a total hash over int/bool/float/str/type/tuple handles,
// using Bernstein-style folding with the golden-ratio mixer for tuples.
// Every other tag is unhashable.
func (t *Table) Hash(h *Handle) (int64, error) {
	switch h.Tag {
	case TagInt:
		return h.Payload.(int64), nil
	case TagBool:
		if h.Payload.(bool) {
			return 1, nil
		}
		return 0, nil
	case TagFloat:
		return int64(h.Payload.(float64)), nil
	case TagStr:
		return strHash(h.Payload.(string)), nil
	case TagType:
		return int64(h.Payload.(int)), nil
	case TagTuple:
		items := h.Payload.([]*Handle)
		var x int64 = 1000003
		for _, item := range items {
			y, err := t.Hash(item)
			if err != nil {
				return 0, err
			}
			x = x ^ (y + int64(0x9e3779b9) + (x << 6) + (x >> 2))
		}
		return x, nil
	default:
		return 0, &TypeError{Msg: fmt.Sprintf("unhashable type: %q", t.TypeName(t.TypeOf(h)))}
	}
}

func strHash(s string) int64 {
	var h int64 = 5381
	for i := 0; i < len(s); i++ {
		h = ((h << 5) + h) + int64(s[i])
	}
	return h
}
