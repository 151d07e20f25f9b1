package vm

import (
	"github.com/wudi/dusk/bytecode"
	"github.com/wudi/dusk/object"
)

// tryEntry is one live entry of a Frame's try-block stack: which block it
// guards, and the value-stack depth to restore to on unwind.
type tryEntry struct {
	Block int
	Depth int
}

// Frame is one activation record: a running CodeObject, its value stack,
// its locals, and the module it executes against for globals. Every Frame
// owns exactly one CodeObject; generators keep their Frame alive across
// suspensions instead of discarding it on return.
type Frame struct {
	ID int

	Code   *bytecode.CodeObject
	PC     int
	Stack  []*object.Handle
	Locals map[string]*object.Handle
	Module *object.Handle

	tryStack []tryEntry
}

// NewFrame allocates a frame for code, running against module's attribute
// map as globals. The id is also the boundary exec and unwind use for the
// frames an invocation owns; pushFrame, runTopLevel and Generator.Advance
// assign it.
func NewFrame(id int, code *bytecode.CodeObject, module *object.Handle) *Frame {
	return &Frame{
		ID:     id,
		Code:   code,
		Module: module,
		Locals: make(map[string]*object.Handle),
	}
}

func (f *Frame) Push(h *object.Handle) {
	f.Stack = append(f.Stack, h)
}

func (f *Frame) Pop() *object.Handle {
	n := len(f.Stack) - 1
	h := f.Stack[n]
	f.Stack = f.Stack[:n]
	return h
}

func (f *Frame) Top() *object.Handle {
	return f.Stack[len(f.Stack)-1]
}

// TopValue returns the top of the stack, resolved through a reference if it
// is one.
func (f *Frame) TopValue(vm *VM) (*object.Handle, error) {
	return vm.derefd(f, f.Top())
}

// PopValue pops the top of the stack, resolved through a reference if it is
// one.
func (f *Frame) PopValue(vm *VM) (*object.Handle, error) {
	return vm.derefd(f, f.Pop())
}

// PopNValuesReversed pops n values off the stack and returns them in their
// original (push) order, resolving references.
func (f *Frame) PopNValuesReversed(vm *VM, n int) ([]*object.Handle, error) {
	if n == 0 {
		return nil, nil
	}
	out := make([]*object.Handle, n)
	for i := n - 1; i >= 0; i-- {
		v, err := f.PopValue(vm)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *Frame) HasNextBytecode() bool {
	return f.PC < len(f.Code.Codes)
}

func (f *Frame) NextBytecode() bytecode.Bytecode {
	b := f.Code.Codes[f.PC]
	f.PC++
	return b
}

// CurrentBlock returns the block index of the innermost active try-block
// entry, or -1 when no try block is active.
func (f *Frame) CurrentBlock() int {
	if len(f.tryStack) == 0 {
		return -1
	}
	return f.tryStack[len(f.tryStack)-1].Block
}

// JumpAbs jumps unconditionally to pc. Used for jumps known to stay inside
// the current block (loop back-edges, forward jumps within one construct).
func (f *Frame) JumpAbs(pc int) {
	f.PC = pc
}

// JumpAbsSafe jumps to pc, first popping any try-block entries whose block
// no longer encloses pc and truncating the value stack to each popped
// entry's saved depth — used for break/continue, loop exit, GOTO and
// SAFE_JUMP_ABSOLUTE.
func (f *Frame) JumpAbsSafe(pc int) {
	for len(f.tryStack) > 0 {
		top := f.tryStack[len(f.tryStack)-1]
		blk := f.Code.Blocks[top.Block]
		if pc >= blk.Start && pc < blk.End {
			break
		}
		f.Stack = f.Stack[:top.Depth]
		f.tryStack = f.tryStack[:len(f.tryStack)-1]
	}
	f.PC = pc
}

// OnTryBlockEnter records entry into the try block enclosing the
// instruction just executed (TRY_BLOCK_ENTER), saving the current value
// stack depth to restore to on unwind.
func (f *Frame) OnTryBlockEnter(block int) {
	f.tryStack = append(f.tryStack, tryEntry{Block: block, Depth: len(f.Stack)})
}

// OnTryBlockExit pops the innermost try-block entry (TRY_BLOCK_EXIT, normal
// fall-through out of a try body with no exception).
func (f *Frame) OnTryBlockExit() {
	if len(f.tryStack) == 0 {
		return
	}
	f.tryStack = f.tryStack[:len(f.tryStack)-1]
}

// JumpToExceptionHandler searches the try-block stack from innermost to
// outermost for an entry whose block carries a handler. If found, it
// truncates the value stack and try-block stack to that entry, pushes exc,
// sets pc to the handler, and returns true. Otherwise it returns false and
// leaves the frame unchanged, signalling the exception must propagate past
// this frame entirely.
func (f *Frame) JumpToExceptionHandler(exc *object.Handle) bool {
	for i := len(f.tryStack) - 1; i >= 0; i-- {
		entry := f.tryStack[i]
		blk := f.Code.Blocks[entry.Block]
		if blk.HandlerPC < 0 {
			continue
		}
		f.tryStack = f.tryStack[:i]
		f.Stack = f.Stack[:entry.Depth]
		f.Push(exc)
		f.PC = blk.HandlerPC
		return true
	}
	return false
}
