// Package bytecode defines the compiled-code data model the VM consumes:
// opcodes, instructions, blocks, and the CodeObject produced by the
// compiler.
package bytecode

import "github.com/wudi/dusk/object"

// Op is a single bytecode operation.
type Op byte

const (
	NO_OP Op = iota
	LOAD_CONST
	LOAD_LAMBDA
	LOAD_NAME_REF
	LOAD_NAME
	STORE_NAME
	BUILD_ATTR
	BUILD_INDEX
	STORE_REF
	DELETE_REF
	BUILD_SMART_TUPLE
	BUILD_STRING
	LOAD_EVAL_FN
	LIST_APPEND
	STORE_FUNCTION
	BUILD_CLASS
	RETURN_VALUE
	PRINT_EXPR
	POP_TOP
	BINARY_OP
	COMPARE_OP
	BITWISE_OP
	IS_OP
	CONTAINS_OP
	UNARY_NEGATIVE
	UNARY_NOT
	POP_JUMP_IF_FALSE
	LOAD_NONE
	LOAD_TRUE
	LOAD_FALSE
	LOAD_ELLIPSIS
	ASSERT
	EXCEPTION_MATCH
	RAISE
	RE_RAISE
	BUILD_LIST
	BUILD_MAP
	BUILD_SET
	DUP_TOP
	CALL
	JUMP_ABSOLUTE
	SAFE_JUMP_ABSOLUTE
	GOTO
	GET_ITER
	FOR_ITER
	LOOP_CONTINUE
	LOOP_BREAK
	JUMP_IF_FALSE_OR_POP
	JUMP_IF_TRUE_OR_POP
	BUILD_SLICE
	IMPORT_NAME
	YIELD_VALUE
	WITH_ENTER
	WITH_EXIT
	TRY_BLOCK_ENTER
	TRY_BLOCK_EXIT
)

var opNames = map[Op]string{
	NO_OP: "NO_OP", LOAD_CONST: "LOAD_CONST", LOAD_LAMBDA: "LOAD_LAMBDA",
	LOAD_NAME_REF: "LOAD_NAME_REF", LOAD_NAME: "LOAD_NAME", STORE_NAME: "STORE_NAME",
	BUILD_ATTR: "BUILD_ATTR", BUILD_INDEX: "BUILD_INDEX", STORE_REF: "STORE_REF",
	DELETE_REF: "DELETE_REF", BUILD_SMART_TUPLE: "BUILD_SMART_TUPLE",
	BUILD_STRING: "BUILD_STRING", LOAD_EVAL_FN: "LOAD_EVAL_FN", LIST_APPEND: "LIST_APPEND",
	STORE_FUNCTION: "STORE_FUNCTION", BUILD_CLASS: "BUILD_CLASS", RETURN_VALUE: "RETURN_VALUE",
	PRINT_EXPR: "PRINT_EXPR", POP_TOP: "POP_TOP", BINARY_OP: "BINARY_OP",
	COMPARE_OP: "COMPARE_OP", BITWISE_OP: "BITWISE_OP", IS_OP: "IS_OP",
	CONTAINS_OP: "CONTAINS_OP", UNARY_NEGATIVE: "UNARY_NEGATIVE", UNARY_NOT: "UNARY_NOT",
	POP_JUMP_IF_FALSE: "POP_JUMP_IF_FALSE", LOAD_NONE: "LOAD_NONE", LOAD_TRUE: "LOAD_TRUE",
	LOAD_FALSE: "LOAD_FALSE", LOAD_ELLIPSIS: "LOAD_ELLIPSIS", ASSERT: "ASSERT",
	EXCEPTION_MATCH: "EXCEPTION_MATCH", RAISE: "RAISE", RE_RAISE: "RE_RAISE",
	BUILD_LIST: "BUILD_LIST", BUILD_MAP: "BUILD_MAP", BUILD_SET: "BUILD_SET",
	DUP_TOP: "DUP_TOP", CALL: "CALL", JUMP_ABSOLUTE: "JUMP_ABSOLUTE",
	SAFE_JUMP_ABSOLUTE: "SAFE_JUMP_ABSOLUTE", GOTO: "GOTO", GET_ITER: "GET_ITER",
	FOR_ITER: "FOR_ITER", LOOP_CONTINUE: "LOOP_CONTINUE", LOOP_BREAK: "LOOP_BREAK",
	JUMP_IF_FALSE_OR_POP: "JUMP_IF_FALSE_OR_POP", JUMP_IF_TRUE_OR_POP: "JUMP_IF_TRUE_OR_POP",
	BUILD_SLICE: "BUILD_SLICE", IMPORT_NAME: "IMPORT_NAME", YIELD_VALUE: "YIELD_VALUE",
	WITH_ENTER: "WITH_ENTER", WITH_EXIT: "WITH_EXIT", TRY_BLOCK_ENTER: "TRY_BLOCK_ENTER",
	TRY_BLOCK_EXIT: "TRY_BLOCK_EXIT",
}

// String renders the opcode's mnemonic, or "OP_UNKNOWN" for anything
// outside the known table.
func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "OP_UNKNOWN"
}

// Bytecode is a single compiled instruction: opcode, argument, originating
// source line, and the index of the enclosing block in its CodeObject.
type Bytecode struct {
	Op    Op
	Arg   int32
	Line  int
	Block int
}

// Scope tags a NamePool entry's binding scope.
type Scope byte

const (
	ScopeLocal Scope = iota
	ScopeGlobal
	ScopeAttr
	ScopeSpecial
)

// Name is one entry of a CodeObject's name pool: an interned identifier plus
// the scope it was compiled to reference.
type Name struct {
	Name  string
	Scope Scope
}

// Block is a lexical region (loop, try, with) with a start/end program
// counter and an optional enclosing block, used to scope safe jumps.
type Block struct {
	Start  int
	End    int
	Parent int // -1 if this is a top-level block
	Kind   BlockKind

	// HandlerPC is the pc of the first instruction of this block's except
	// handler (an EXCEPTION_MATCH when the clause names a type; a bare except
	// starts with the STORE_NAME of its exception variable), or -1 if this
	// block has none (a try with no except clause never catches; the
	// exception keeps propagating).
	HandlerPC int
}

// BlockKind distinguishes the handler semantics a block may carry.
type BlockKind byte

const (
	BlockNone BlockKind = iota
	BlockLoop
	BlockTry
	BlockWith
)

// String renders a block's descriptor the way the disassembler appends it
// to each instruction line.
func (b Block) String() string {
	switch b.Kind {
	case BlockLoop:
		return "(loop)"
	case BlockTry:
		return "(try)"
	case BlockWith:
		return "(with)"
	default:
		return ""
	}
}

// Mode selects how a CodeObject's tail behaves on fall-through completion.
type Mode byte

const (
	ModeExec Mode = iota
	ModeEval
	ModeJSON
)

// CodeObject is the compiler's sole output: an immutable compiled unit read
// by the VM.
type CodeObject struct {
	Name string

	Codes  []Bytecode
	Consts []*object.Handle
	Names  []Name
	Blocks []Block
	Labels map[string]int

	Mode        Mode
	IsGenerator bool
}

// NewCodeObject returns an empty CodeObject ready for a compiler to append
// to.
func NewCodeObject(name string, mode Mode) *CodeObject {
	return &CodeObject{Name: name, Mode: mode, Labels: map[string]int{}}
}

// Optimize folds each compiler-emitted LOAD_CONST;UNARY_NEGATIVE pair into a
// single LOAD_CONST of the negated constant, replacing UNARY_NEGATIVE with
// NO_OP in place. It runs once, after code generation.
func (co *CodeObject) Optimize(negate func(*object.Handle) (*object.Handle, error)) error {
	for i := 1; i < len(co.Codes); i++ {
		if co.Codes[i].Op == UNARY_NEGATIVE && co.Codes[i-1].Op == LOAD_CONST {
			co.Codes[i].Op = NO_OP
			pos := co.Codes[i-1].Arg
			negated, err := negate(co.Consts[pos])
			if err != nil {
				return err
			}
			co.Consts[pos] = negated
		}
	}
	for _, c := range co.Consts {
		if fn, ok := c.Payload.(*FunctionDescriptor); ok && fn.Code != nil {
			if err := fn.Code.Optimize(negate); err != nil {
				return err
			}
		}
	}
	return nil
}

// Special-method indices carried in BINARY_OP, COMPARE_OP, and BITWISE_OP's
// arg.
const (
	BinaryAdd = iota
	BinarySub
	BinaryMul
	BinaryTrueDiv
	BinaryFloorDiv
	BinaryMod
	BinaryPow
)

const (
	CompareEq = iota
	CompareNe
	CompareLt
	CompareLe
	CompareGt
	CompareGe
)

const (
	BitwiseAnd = iota
	BitwiseOr
	BitwiseXor
	BitwiseLShift
	BitwiseRShift
)

// BinaryOpMethods, CompareOpMethods, and BitwiseOpMethods map those indices
// to the dunder method the evaluator invokes.
var (
	BinaryOpMethods  = []string{"__add__", "__sub__", "__mul__", "__truediv__", "__floordiv__", "__mod__", "__pow__"}
	CompareOpMethods = []string{"__eq__", "__ne__", "__lt__", "__le__", "__gt__", "__ge__"}
	BitwiseOpMethods = []string{"__and__", "__or__", "__xor__", "__lshift__", "__rshift__"}
)

// FunctionDescriptor is the payload of a "function" handle: everything the
// call dispatcher needs to bind arguments and create a frame.
type FunctionDescriptor struct {
	Name string
	Code *CodeObject

	Params       []string
	KwDefaults   map[string]*object.Handle
	KwOrder      []string
	StarredParam string // "" if the function takes no *args parameter
}
