package object

import "fmt"

// AttributeError mirrors dusk's language-level AttributeError; it is turned
// into a raised exception handle by the vm package's exception machinery.
type AttributeError struct {
	TypeName string
	Attr     string
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("type %q has no attribute %q", e.TypeName, e.Attr)
}

// TypeError mirrors dusk's language-level TypeError.
type TypeError struct {
	Msg string
}

func (e *TypeError) Error() string { return e.Msg }
