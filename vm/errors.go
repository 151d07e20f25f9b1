package vm

import (
	"errors"
	"fmt"

	"github.com/wudi/dusk/bytecode"
)

// VMErrorType classifies host-level failures the VM itself raises, as
// opposed to catchable language-level exceptions.
type VMErrorType int

const (
	ErrInternal VMErrorType = iota
	ErrStackUnderflow
	ErrUnboundLocal
	ErrBadBytecode
)

// VMError wraps a host-level VM failure with the frame/opcode/ip context it
// occurred under.
type VMError struct {
	Type    VMErrorType
	Message string
	Context string

	FrameName string
	Opcode    bytecode.Op
	IP        int

	cause error
}

func (e *VMError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (%s)", e.typeName(), e.Message, e.Context)
	}
	return fmt.Sprintf("%s: %s", e.typeName(), e.Message)
}

func (e *VMError) Unwrap() error { return e.cause }

func (e *VMError) Is(target error) bool {
	other, ok := target.(*VMError)
	if !ok {
		return false
	}
	return other.Type == e.Type
}

func (e *VMError) typeName() string {
	switch e.Type {
	case ErrStackUnderflow:
		return "StackUnderflow"
	case ErrUnboundLocal:
		return "UnboundLocalError"
	case ErrBadBytecode:
		return "BadBytecode"
	default:
		return "InternalError"
	}
}

func newVMError(typ VMErrorType, msg string) *VMError {
	return &VMError{Type: typ, Message: msg}
}

func (e *VMError) withFrame(f *Frame, op bytecode.Op) *VMError {
	clone := *e
	if f != nil {
		clone.FrameName = f.Code.Name
		clone.IP = f.PC
	}
	clone.Opcode = op
	return &clone
}

func internalErrorf(format string, args ...interface{}) error {
	return newVMError(ErrInternal, fmt.Sprintf(format, args...))
}

// NameError is a language-level exception for an unresolved name reference.
type NameError struct {
	Name string
}

func (e *NameError) Error() string { return fmt.Sprintf("name %q is not defined", e.Name) }

// TypeError is a language-level exception for a type mismatch. Defined here
// rather than reused from object.TypeError since the vm package raises it
// for a wider range of operations (calls, arithmetic, iteration) than the
// object package's attribute machinery does.
type TypeError struct {
	Msg string
}

func (e *TypeError) Error() string { return e.Msg }

// ValueError is a language-level exception for a well-typed but invalid
// value (e.g. tuple-unpack arity mismatch).
type ValueError struct {
	Msg string
}

func (e *ValueError) Error() string { return e.Msg }

// IndexError is a language-level exception for an out-of-range index.
type IndexError struct {
	Msg string
}

func (e *IndexError) Error() string { return e.Msg }

// KeyError is a language-level exception for a missing mapping key.
type KeyError struct {
	Msg string
}

func (e *KeyError) Error() string { return e.Msg }

// StopIteration is the error a native __next__ returns to end iteration;
// dunderIterAdapter treats it as exhaustion.
type StopIteration struct{}

func (e *StopIteration) Error() string { return "StopIteration" }

// isStopIteration reports whether err (possibly wrapped) is a
// StopIteration.
func isStopIteration(err error) bool {
	var si *StopIteration
	return errors.As(err, &si)
}

// ZeroDivisionError, AssertionError, ImportError, RecursionError,
// NotImplementedError, and IOError are the remaining built-in raisable
// exceptions.
type ZeroDivisionError struct{ Msg string }

func (e *ZeroDivisionError) Error() string { return e.Msg }

type AssertionError struct{ Msg string }

func (e *AssertionError) Error() string { return e.Msg }

type ImportError struct{ Msg string }

func (e *ImportError) Error() string { return e.Msg }

type RecursionError struct{}

func (e *RecursionError) Error() string { return "maximum recursion depth exceeded" }

type NotImplementedError struct{ Msg string }

func (e *NotImplementedError) Error() string { return e.Msg }

type IOError struct{ Msg string }

func (e *IOError) Error() string { return e.Msg }
