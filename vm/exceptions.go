package vm

import (
	"fmt"

	"github.com/wudi/dusk/object"
)

// excPayload is the payload of an "exception" handle: type-name, message,
// a re-raise flag, and the stack trace accumulated as it traverses frames.
type excPayload struct {
	TypeName string
	Message  string
	IsRe     bool
	Trace    []FrameSnapshot
}

// FrameSnapshot records one traversed frame for a traceback.
type FrameSnapshot struct {
	Filename string
	FuncName string
	Line     int
}

// newException constructs a fresh, unraised exception handle.
func (vm *VM) newException(typeName, message string) *object.Handle {
	return vm.Table.New(object.TagException, &excPayload{TypeName: typeName, Message: message}, true)
}

func (vm *VM) excNameAndMessage(h *object.Handle) (string, string) {
	if h == nil {
		return "InternalError", ""
	}
	if p, ok := h.Payload.(*excPayload); ok {
		return p.TypeName, p.Message
	}
	return "InternalError", ""
}

// toException converts a Go error raised anywhere in the vm package (the
// well-known exception types in errors.go, or object's AttributeError /
// TypeError) into a raisable exception handle. Any other error is treated
// as an unrecoverable host failure and returned unchanged via ok=false.
func (vm *VM) toException(err error) (*object.Handle, bool) {
	switch e := err.(type) {
	case *NameError:
		return vm.newException("NameError", e.Error()), true
	case *TypeError:
		return vm.newException("TypeError", e.Msg), true
	case *ValueError:
		return vm.newException("ValueError", e.Msg), true
	case *IndexError:
		return vm.newException("IndexError", e.Msg), true
	case *KeyError:
		return vm.newException("KeyError", e.Msg), true
	case *ZeroDivisionError:
		return vm.newException("ZeroDivisionError", e.Msg), true
	case *AssertionError:
		return vm.newException("AssertionError", e.Msg), true
	case *ImportError:
		return vm.newException("ImportError", e.Msg), true
	case *RecursionError:
		return vm.newException("RecursionError", e.Error()), true
	case *NotImplementedError:
		return vm.newException("NotImplementedError", e.Msg), true
	case *IOError:
		return vm.newException("IOError", e.Msg), true
	case *object.AttributeError:
		return vm.newException("AttributeError", e.Error()), true
	case *object.TypeError:
		return vm.newException("TypeError", e.Msg), true
	case *unhandledError:
		// An exception that escaped a nested exec invocation (eval(), an
		// import, a native binding re-entering the VM) resumes unwinding in
		// the caller's frame, trace intact.
		return e.Exc, true
	default:
		return nil, false
	}
}

// raise turns err into a raise outcome (or a host-error outcome when the
// error has no language-level equivalent).
func (vm *VM) raise(err error) outcome {
	if exc, ok := vm.toException(err); ok {
		return outcome{kind: outRaise, value: exc}
	}
	return outcome{kind: outHostError, err: err}
}

// unhandledError surfaces an exception that was never caught by any frame
// owned by the current exec invocation: it escaped to the host.
type unhandledError struct {
	Exc *object.Handle
}

func (e *unhandledError) Error() string {
	name, msg := "", ""
	if p, ok := e.Exc.Payload.(*excPayload); ok {
		name, msg = p.TypeName, p.Message
	}
	return fmt.Sprintf("unhandled exception %s: %s", name, msg)
}

// unwind looks for a handler for exc across frames owned by this exec
// invocation (those with id >= baseID), popping and recording a trace
// snapshot for every frame it passes through without a handler. The loop
// stops at the frame that entered the invocation, which keeps an exception
// raised by a nested call from escaping past frames owned by an enclosing
// exec invocation (e.g. a native binding that re-entered the VM).
func (vm *VM) unwind(exc *object.Handle, baseID int) bool {
	for {
		if len(vm.callStack) == 0 {
			return false
		}
		frame := vm.callStack[len(vm.callStack)-1]
		if frame.JumpToExceptionHandler(exc) {
			return true
		}

		if p, ok := exc.Payload.(*excPayload); ok {
			p.Trace = append(p.Trace, FrameSnapshot{
				Filename: frame.Code.Name,
				FuncName: frame.Code.Name,
				Line:     currentLine(frame),
			})
		}

		boundary := frame.ID == baseID
		vm.callStack = vm.callStack[:len(vm.callStack)-1]
		if boundary || len(vm.callStack) == 0 {
			return false
		}
	}
}

func currentLine(f *Frame) int {
	if f.PC > 0 && f.PC-1 < len(f.Code.Codes) {
		return f.Code.Codes[f.PC-1].Line
	}
	return 0
}
