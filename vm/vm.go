// Package vm implements dusk's execution engine: the reference system, the
// call frame, the evaluation loop, the call dispatcher and generators, and
// exception unwinding. It is the tightly-coupled core the rest of the
// interpreter is built around.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/wudi/dusk/bytecode"
	"github.com/wudi/dusk/object"
)

// CompileFunc compiles source into a CodeObject. The VM treats the compiler
// as an external collaborator, invoked by ExecSource, by lazy-module imports
// and by the eval() built-in; the host entry point Exec takes an
// already-compiled CodeObject.
type CompileFunc func(source, filename string, mode bytecode.Mode) (*bytecode.CodeObject, error)

// Config configures a VM instance.
type Config struct {
	Stdout            io.Writer
	Stderr            io.Writer
	MaxRecursionDepth int
	Compile           CompileFunc
}

type lazyModule struct {
	Source   string
	Filename string
}

// VM owns the call stack, the type table, the module registry, and the
// built-ins module.
type VM struct {
	Table    *object.Table
	Builtins *object.Handle

	Stdout io.Writer
	Stderr io.Writer

	MaxRecursionDepth int
	compile           CompileFunc

	callStack   []*Frame
	nextFrameID int

	modules     map[string]*object.Handle
	lazyModules map[string]lazyModule

	opCall  *object.Handle
	opYield *object.Handle
}

// New constructs a VM with its built-in type table, built-ins module, and
// sentinel handles initialised.
func New(cfg Config) *VM {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.MaxRecursionDepth <= 0 {
		cfg.MaxRecursionDepth = 1000
	}

	tbl := object.NewTable()
	v := &VM{
		Table:             tbl,
		Stdout:            cfg.Stdout,
		Stderr:            cfg.Stderr,
		MaxRecursionDepth: cfg.MaxRecursionDepth,
		compile:           cfg.Compile,
		modules:           make(map[string]*object.Handle),
		lazyModules:       make(map[string]lazyModule),
		opCall:            &object.Handle{Tag: object.TagInternal, Payload: "op_call"},
		opYield:           &object.Handle{Tag: object.TagInternal, Payload: "op_yield"},
	}
	v.Builtins = tbl.New(object.TagModule, nil, true)
	v.modules["builtins"] = v.Builtins
	v.registerExceptionType()
	return v
}

// registerExceptionType gives exception handles their user-visible string
// forms: str(e) is the bare message, repr(e) is Name('message').
func (vm *VM) registerExceptionType() {
	excType := vm.Table.Type(object.TagException)
	vm.BindMethod(excType, "__str__", 0, func(v *VM, args []*object.Handle) (*object.Handle, error) {
		p, ok := args[0].Payload.(*excPayload)
		if !ok {
			return nil, internalErrorf("__str__ on a non-exception payload")
		}
		return v.Table.New(object.TagStr, p.Message, false), nil
	})
	vm.BindMethod(excType, "__repr__", 0, func(v *VM, args []*object.Handle) (*object.Handle, error) {
		p, ok := args[0].Payload.(*excPayload)
		if !ok {
			return nil, internalErrorf("__repr__ on a non-exception payload")
		}
		return v.Table.New(object.TagStr, p.TypeName+"('"+p.Message+"')", false), nil
	})
}

// NewModule allocates a fresh module object and registers it as an eager
// module under name.
func (vm *VM) NewModule(name string) *object.Handle {
	mod := vm.Table.New(object.TagModule, nil, true)
	mod.Attrs["__name__"] = vm.Table.New(object.TagStr, name, false)
	vm.modules[name] = mod
	return mod
}

// RegisterLazyModule registers source to be compiled and executed the
// first time name is imported.
func (vm *VM) RegisterLazyModule(name, source, filename string) {
	vm.lazyModules[name] = lazyModule{Source: source, Filename: filename}
}

// BindFunc registers a native function under name on target, enforcing
// arity on every call unless arity is -1.
func (vm *VM) BindFunc(target *object.Handle, name string, arity int, fn NativeFunc) {
	h := vm.Table.New(object.TagNativeFunction, &NativeFunction{Name: name, Arity: arity, Fn: fn}, false)
	target.Attrs[name] = h
}

// BindMethod registers a native method under name on target (a type). The
// declared arity does not count the receiver; the stored arity
// is widened by one because the call dispatcher prepends the bound object
// before the native body runs.
func (vm *VM) BindMethod(target *object.Handle, name string, arity int, fn NativeFunc) {
	if arity >= 0 {
		arity++
	}
	vm.BindFunc(target, name, arity, fn)
}

// NativeTypeDescriptor describes a native type to RegisterType: its name and
// a registration callback that attaches the type's methods.
type NativeTypeDescriptor struct {
	Name     string
	Base     *object.Handle
	Register func(vm *VM, typ *object.Handle)
}

// RegisterType creates a type object in module from desc and runs its
// registration callback.
func (vm *VM) RegisterType(module *object.Handle, desc NativeTypeDescriptor) (*object.Handle, error) {
	typ, err := vm.Table.NewType(module, desc.Name, desc.Base)
	if err != nil {
		return nil, err
	}
	if desc.Register != nil {
		desc.Register(vm, typ)
	}
	return typ, nil
}

// NativeFunc is the Go shape of a native function body: receives the
// resolved positional arguments and returns a result or a raised error.
type NativeFunc func(vm *VM, args []*object.Handle) (*object.Handle, error)

// NativeFunction is the payload of a native_function handle.
type NativeFunction struct {
	Name  string
	Arity int
	Fn    NativeFunc
}

// Exec is the host entry point: compiles nothing itself (source is already
// a CodeObject by the time eval.go needs one) — callers that hold only
// source text should use ExecSource. On any raised exception or internal
// error, a summary is printed to Stderr, the call stack is reset, and
// (none, nil) is returned: raised exceptions are not surfaced as Go errors
// to the host caller.
func (vm *VM) Exec(code *bytecode.CodeObject, module *object.Handle) (*object.Handle, error) {
	result, err := vm.runTopLevel(code, module)
	if err != nil {
		vm.reportError(err)
		vm.callStack = nil
		return vm.Table.None, nil
	}
	return result, nil
}

// runTopLevel pushes a fresh frame for code and runs it to completion,
// propagating any unrecovered error (an internal failure, or an exception
// that escaped every frame this invocation owns) to the caller instead of
// swallowing it — used by nested re-entry points like imports, where an
// ImportError must remain catchable by the importing code rather than be
// silently reported to Stderr.
func (vm *VM) runTopLevel(code *bytecode.CodeObject, module *object.Handle) (*object.Handle, error) {
	frame := NewFrame(vm.nextFrameID, code, module)
	vm.nextFrameID++
	vm.callStack = append(vm.callStack, frame)

	result, _, err := vm.exec(frame.ID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExecSource compiles source with the configured compiler and runs it as a
// fresh top-level frame against module.
func (vm *VM) ExecSource(source, filename string, mode bytecode.Mode, module *object.Handle) (*object.Handle, error) {
	if vm.compile == nil {
		return nil, internalErrorf("no compiler configured")
	}
	code, err := vm.compile(source, filename, mode)
	if err != nil {
		return nil, err
	}
	if err := code.Optimize(vm.Table.NumNegated); err != nil {
		return nil, err
	}
	return vm.Exec(code, module)
}

// reportError prints a best-effort summary of an unrecoverable VM failure
// or an unhandled-exception-to-host escalation to Stderr.
func (vm *VM) reportError(err error) {
	if ue, ok := err.(*unhandledError); ok {
		name, msg := vm.excNameAndMessage(ue.Exc)
		fmt.Fprintf(vm.Stderr, "Traceback (most recent call last):\n")
		if p, ok := ue.Exc.Payload.(*excPayload); ok {
			for _, snap := range p.Trace {
				fmt.Fprintf(vm.Stderr, "  File %q, line %d, in %s\n", snap.Filename, snap.Line, snap.FuncName)
			}
		}
		fmt.Fprintf(vm.Stderr, "%s: %s\n", name, msg)
		return
	}
	fmt.Fprintf(vm.Stderr, "%s\n", err.Error())
}

// CurrentFrame returns the frame on top of the call stack, or nil when the
// VM is idle. Native functions use it to reach the caller's module and to
// invoke conversions that may call back into user code.
func (vm *VM) CurrentFrame() *Frame {
	if len(vm.callStack) == 0 {
		return nil
	}
	return vm.callStack[len(vm.callStack)-1]
}

// Eval compiles source in EVAL mode and runs it against the current frame's
// module (or builtins when the VM is idle), returning the single resulting
// value. Unhandled exceptions come back as errors the caller's frame can
// re-raise, which is what makes the eval() built-in catchable.
func (vm *VM) Eval(source string) (*object.Handle, error) {
	if vm.compile == nil {
		return nil, internalErrorf("no compiler configured")
	}
	module := vm.Builtins
	if f := vm.CurrentFrame(); f != nil {
		module = f.Module
	}
	code, err := vm.compile(source, "<eval>", bytecode.ModeEval)
	if err != nil {
		return nil, &ValueError{Msg: "eval: " + err.Error()}
	}
	if err := code.Optimize(vm.Table.NumNegated); err != nil {
		return nil, err
	}
	return vm.runTopLevel(code, module)
}

func (vm *VM) pushFrame(f *Frame) {
	f.ID = vm.nextFrameID
	vm.nextFrameID++
	vm.callStack = append(vm.callStack, f)
}

func (vm *VM) depth() int {
	return len(vm.callStack)
}
