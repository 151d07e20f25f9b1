package compiler

import (
	"fmt"

	"github.com/wudi/dusk/bytecode"
	"github.com/wudi/dusk/object"
)

// Compile is dusk's compiler entry point: it parses source and generates
// bytecode. It matches vm.CompileFunc's signature exactly, so it can be
// handed straight to vm.Config.Compile; the VM runs the CodeObject's
// negative-literal fold (Optimize) before execution.
func Compile(source, filename string, mode bytecode.Mode) (*bytecode.CodeObject, error) {
	prog, err := Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	cg := newCodegen(filename, mode)
	if err := cg.compileProgram(prog); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return cg.co, nil
}

// blockFrame tracks one lexically-nested block being compiled: its index in
// co.Blocks, and its kind (needed to find the nearest enclosing loop for
// break/continue, independent of whatever block is innermost).
type blockFrame struct {
	index int
	kind  bytecode.BlockKind
}

// codegen is a single CodeObject's compilation state. A nested function or
// lambda gets its own codegen; the only inherited context is whether plain
// names compile to LOCAL or GLOBAL scope.
type codegen struct {
	co         *bytecode.CodeObject
	blocks     []blockFrame
	inFunc     bool
	exceptVars []string

	nameIdx map[nameKey]int32
}

type nameKey struct {
	name  string
	scope bytecode.Scope
}

func newCodegen(name string, mode bytecode.Mode) *codegen {
	return &codegen{co: bytecode.NewCodeObject(name, mode), nameIdx: map[nameKey]int32{}}
}

func (cg *codegen) curBlock() int {
	if len(cg.blocks) == 0 {
		return -1
	}
	return cg.blocks[len(cg.blocks)-1].index
}

func (cg *codegen) nearestLoop() (int, error) {
	for i := len(cg.blocks) - 1; i >= 0; i-- {
		if cg.blocks[i].kind == bytecode.BlockLoop {
			return cg.blocks[i].index, nil
		}
	}
	return 0, fmt.Errorf("break/continue outside a loop")
}

func (cg *codegen) emit(op bytecode.Op, arg int32, line int) int {
	cg.co.Codes = append(cg.co.Codes, bytecode.Bytecode{Op: op, Arg: arg, Line: line, Block: cg.curBlock()})
	return len(cg.co.Codes) - 1
}

func (cg *codegen) patchArg(idx int, arg int32) { cg.co.Codes[idx].Arg = arg }
func (cg *codegen) pc() int                     { return len(cg.co.Codes) }

func (cg *codegen) addConst(h *object.Handle) int32 {
	cg.co.Consts = append(cg.co.Consts, h)
	return int32(len(cg.co.Consts) - 1)
}

func (cg *codegen) internName(name string, scope bytecode.Scope) int32 {
	key := nameKey{name, scope}
	if idx, ok := cg.nameIdx[key]; ok {
		return idx
	}
	idx := int32(len(cg.co.Names))
	cg.co.Names = append(cg.co.Names, bytecode.Name{Name: name, Scope: scope})
	cg.nameIdx[key] = idx
	return idx
}

// varScope is the scope newly-assigned plain names compile to: GLOBAL at
// module top level, LOCAL inside a function body.
func (cg *codegen) varScope() bytecode.Scope {
	if cg.inFunc {
		return bytecode.ScopeLocal
	}
	return bytecode.ScopeGlobal
}

func (cg *codegen) newBlock(kind bytecode.BlockKind) int {
	idx := len(cg.co.Blocks)
	cg.co.Blocks = append(cg.co.Blocks, bytecode.Block{Start: -1, End: -1, Parent: cg.curBlock(), Kind: kind, HandlerPC: -1})
	return idx
}

// compileProgram dispatches on mode: EXEC compiles the statement list as-is;
// EVAL and JSON compile a single expression whose value is left on the stack
// for the frame's fall-through rule to return.
func (cg *codegen) compileProgram(prog *Program) error {
	if cg.co.Mode == bytecode.ModeEval || cg.co.Mode == bytecode.ModeJSON {
		if len(prog.Stmts) != 1 {
			return fmt.Errorf("eval mode expects a single expression")
		}
		es, ok := prog.Stmts[0].(*ExprStmt)
		if !ok {
			return fmt.Errorf("eval mode expects a single expression")
		}
		return cg.compileExpr(es.X)
	}
	return cg.compileStmts(prog.Stmts)
}

func (cg *codegen) compileStmts(stmts []Stmt) error {
	for _, s := range stmts {
		if err := cg.compileStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (cg *codegen) compileStmt(s Stmt) error {
	switch n := s.(type) {
	case *ExprStmt:
		if err := cg.compileExpr(n.X); err != nil {
			return err
		}
		if _, isYield := n.X.(*YieldExpr); !isYield {
			cg.emit(bytecode.POP_TOP, 0, n.Line)
		}
		return nil

	case *PassStmt:
		cg.emit(bytecode.NO_OP, 0, n.Line)
		return nil

	case *AssignStmt:
		return cg.compileAssign(n.Target, n.Value, n.Line)

	case *DelStmt:
		if err := cg.compileRef(n.Target); err != nil {
			return err
		}
		cg.emit(bytecode.DELETE_REF, 0, n.Line)
		return nil

	case *IfStmt:
		return cg.compileIf(n)

	case *WhileStmt:
		return cg.compileWhile(n)

	case *ForStmt:
		return cg.compileFor(n)

	case *FuncDef:
		return cg.compileFuncDef(n)

	case *ClassDef:
		return cg.compileClassDef(n)

	case *ReturnStmt:
		if n.X != nil {
			if err := cg.compileExpr(n.X); err != nil {
				return err
			}
		} else {
			cg.emit(bytecode.LOAD_NONE, 0, n.Line)
		}
		cg.emit(bytecode.RETURN_VALUE, 0, n.Line)
		return nil

	case *BreakStmt:
		idx, err := cg.nearestLoop()
		if err != nil {
			return err
		}
		cg.emit(bytecode.LOOP_BREAK, 0, n.Line)
		cg.co.Codes[len(cg.co.Codes)-1].Block = idx
		return nil

	case *ContinueStmt:
		idx, err := cg.nearestLoop()
		if err != nil {
			return err
		}
		cg.emit(bytecode.LOOP_CONTINUE, 0, n.Line)
		cg.co.Codes[len(cg.co.Codes)-1].Block = idx
		return nil

	case *TryStmt:
		return cg.compileTry(n)

	case *RaiseStmt:
		return cg.compileRaise(n)

	case *WithStmt:
		return cg.compileWith(n)

	case *ImportStmt:
		idx := cg.internName(n.Name, bytecode.ScopeSpecial)
		cg.emit(bytecode.IMPORT_NAME, idx, n.Line)
		scope := cg.varScope()
		nameIdx := cg.internName(n.Name, scope)
		cg.emit(bytecode.STORE_NAME, nameIdx, n.Line)
		return nil

	case *AssertStmt:
		if err := cg.compileExpr(n.Cond); err != nil {
			return err
		}
		if n.Msg != nil {
			if err := cg.compileExpr(n.Msg); err != nil {
				return err
			}
		} else {
			cg.emit(bytecode.LOAD_CONST, cg.addConst(&object.Handle{Tag: object.TagStr, Payload: ""}), n.Line)
		}
		cg.emit(bytecode.ASSERT, 0, n.Line)
		return nil

	default:
		return fmt.Errorf("codegen: unhandled statement %T", s)
	}
}

// compileAssign implements the single- and tuple-target assignment forms.
// A bare name target uses the direct STORE_NAME opcode; every other target
// shape (attribute, index, tuple) goes through the reference system
// (LOAD_NAME_REF/BUILD_ATTR/BUILD_INDEX/BUILD_SMART_TUPLE + STORE_REF).
func (cg *codegen) compileAssign(target, value Expr, line int) error {
	if name, ok := target.(*NameExpr); ok {
		if err := cg.compileExpr(value); err != nil {
			return err
		}
		idx := cg.internName(name.Name, cg.varScope())
		cg.emit(bytecode.STORE_NAME, idx, line)
		return nil
	}
	if err := cg.compileRef(target); err != nil {
		return err
	}
	if err := cg.compileExpr(value); err != nil {
		return err
	}
	cg.emit(bytecode.STORE_REF, 0, line)
	return nil
}

// compileRef pushes a reference handle for target (NameRef/AttrRef/IndexRef,
// or a TupleRef combining inner refs), used by assignment/delete/for-loop
// targets.
func (cg *codegen) compileRef(target Expr) error {
	switch n := target.(type) {
	case *NameExpr:
		idx := cg.internName(n.Name, cg.varScope())
		cg.emit(bytecode.LOAD_NAME_REF, idx, 0)
		return nil
	case *AttrExpr:
		if err := cg.compileExpr(n.X); err != nil {
			return err
		}
		idx := cg.internName(n.Name, bytecode.ScopeAttr)
		cg.emit(bytecode.BUILD_ATTR, idx<<1|1, 0)
		return nil
	case *IndexExpr:
		if err := cg.compileExpr(n.X); err != nil {
			return err
		}
		if err := cg.compileIndexKey(n.Index); err != nil {
			return err
		}
		cg.emit(bytecode.BUILD_INDEX, 0, 0)
		return nil
	case *TupleExpr:
		for _, item := range n.Items {
			if err := cg.compileRef(item); err != nil {
				return err
			}
		}
		cg.emit(bytecode.BUILD_SMART_TUPLE, int32(len(n.Items)), 0)
		return nil
	default:
		return fmt.Errorf("codegen: %T is not assignable", target)
	}
}

func (cg *codegen) compileIndexKey(idx Expr) error {
	if sl, ok := idx.(*SliceExpr); ok {
		if sl.Start != nil {
			if err := cg.compileExpr(sl.Start); err != nil {
				return err
			}
		} else {
			cg.emit(bytecode.LOAD_NONE, 0, 0)
		}
		if sl.Stop != nil {
			if err := cg.compileExpr(sl.Stop); err != nil {
				return err
			}
		} else {
			cg.emit(bytecode.LOAD_NONE, 0, 0)
		}
		cg.emit(bytecode.BUILD_SLICE, 0, 0)
		return nil
	}
	return cg.compileExpr(idx)
}

func (cg *codegen) compileIf(n *IfStmt) error {
	if err := cg.compileExpr(n.Cond); err != nil {
		return err
	}
	jumpToElse := cg.emit(bytecode.POP_JUMP_IF_FALSE, 0, n.Line)
	if err := cg.compileStmts(n.Then); err != nil {
		return err
	}
	if len(n.Else) == 0 {
		cg.patchArg(jumpToElse, int32(cg.pc()))
		return nil
	}
	jumpToEnd := cg.emit(bytecode.JUMP_ABSOLUTE, 0, n.Line)
	cg.patchArg(jumpToElse, int32(cg.pc()))
	if err := cg.compileStmts(n.Else); err != nil {
		return err
	}
	cg.patchArg(jumpToEnd, int32(cg.pc()))
	return nil
}

func (cg *codegen) compileWhile(n *WhileStmt) error {
	idx := cg.newBlock(bytecode.BlockLoop)
	cg.blocks = append(cg.blocks, blockFrame{index: idx, kind: bytecode.BlockLoop})
	cg.co.Blocks[idx].Start = cg.pc()

	if err := cg.compileExpr(n.Cond); err != nil {
		return err
	}
	jumpToEnd := cg.emit(bytecode.POP_JUMP_IF_FALSE, 0, n.Line)
	if err := cg.compileStmts(n.Body); err != nil {
		return err
	}
	cg.emit(bytecode.JUMP_ABSOLUTE, int32(cg.co.Blocks[idx].Start), n.Line)
	cg.co.Blocks[idx].End = cg.pc()
	cg.patchArg(jumpToEnd, int32(cg.pc()))

	cg.blocks = cg.blocks[:len(cg.blocks)-1]
	return nil
}

func (cg *codegen) compileFor(n *ForStmt) error {
	if err := cg.compileRef(n.Target); err != nil {
		return err
	}
	if err := cg.compileExpr(n.Iter); err != nil {
		return err
	}
	cg.emit(bytecode.GET_ITER, 0, n.Line)

	idx := cg.newBlock(bytecode.BlockLoop)
	cg.blocks = append(cg.blocks, blockFrame{index: idx, kind: bytecode.BlockLoop})
	cg.co.Blocks[idx].Start = cg.pc()

	forIterPC := cg.emit(bytecode.FOR_ITER, 0, n.Line)
	cg.co.Codes[forIterPC].Block = idx
	if err := cg.compileStmts(n.Body); err != nil {
		return err
	}
	cg.emit(bytecode.JUMP_ABSOLUTE, int32(cg.co.Blocks[idx].Start), n.Line)
	cg.co.Blocks[idx].End = cg.pc()

	cg.blocks = cg.blocks[:len(cg.blocks)-1]
	cg.emit(bytecode.POP_TOP, 0, n.Line)
	return nil
}

func (cg *codegen) compileWith(n *WithStmt) error {
	if err := cg.compileExpr(n.X); err != nil {
		return err
	}
	cg.emit(bytecode.DUP_TOP, 0, n.Line)
	cg.emit(bytecode.WITH_ENTER, 0, n.Line)

	idx := cg.newBlock(bytecode.BlockWith)
	cg.blocks = append(cg.blocks, blockFrame{index: idx, kind: bytecode.BlockWith})
	cg.co.Blocks[idx].Start = cg.pc()
	if err := cg.compileStmts(n.Body); err != nil {
		return err
	}
	cg.co.Blocks[idx].End = cg.pc()
	cg.blocks = cg.blocks[:len(cg.blocks)-1]

	cg.emit(bytecode.WITH_EXIT, 0, n.Line)
	return nil
}

// compileTry lowers handler dispatch onto the EXCEPTION_MATCH / RE_RAISE
// opcodes directly: a mismatched exception is
// re-raised rather than silently swallowed. The handled exception is always
// bound to a name (the user's `as` name, or a synthetic one) so a bare
// `raise` inside the handler can reload and re-raise it.
func (cg *codegen) compileTry(n *TryStmt) error {
	idx := cg.newBlock(bytecode.BlockTry)
	cg.blocks = append(cg.blocks, blockFrame{index: idx, kind: bytecode.BlockTry})
	cg.co.Blocks[idx].Start = cg.pc()
	cg.emit(bytecode.TRY_BLOCK_ENTER, int32(idx), n.Line)
	cg.co.Codes[len(cg.co.Codes)-1].Block = idx

	if err := cg.compileStmts(n.Body); err != nil {
		return err
	}
	cg.emit(bytecode.TRY_BLOCK_EXIT, 0, n.Line)
	jumpOverHandler := cg.emit(bytecode.JUMP_ABSOLUTE, 0, n.Line)

	handlerPC := cg.pc()
	cg.co.Blocks[idx].HandlerPC = handlerPC

	excVar := n.ExceptVar
	if excVar == "" {
		excVar = "$exc"
	}
	var mismatchJump int
	hasMismatchJump := false
	if n.ExceptTyp != "" {
		typeIdx := cg.internName(n.ExceptTyp, bytecode.ScopeSpecial)
		cg.emit(bytecode.EXCEPTION_MATCH, typeIdx, n.Line)
		mismatchJump = cg.emit(bytecode.POP_JUMP_IF_FALSE, 0, n.Line)
		hasMismatchJump = true
	}
	excNameIdx := cg.internName(excVar, bytecode.ScopeLocal)
	cg.emit(bytecode.STORE_NAME, excNameIdx, n.Line)

	cg.exceptVars = append(cg.exceptVars, excVar)
	if err := cg.compileStmts(n.Handler); err != nil {
		return err
	}
	cg.exceptVars = cg.exceptVars[:len(cg.exceptVars)-1]

	endJump := cg.emit(bytecode.JUMP_ABSOLUTE, 0, n.Line)
	cg.co.Blocks[idx].End = cg.pc()
	cg.blocks = cg.blocks[:len(cg.blocks)-1]

	if hasMismatchJump {
		cg.patchArg(mismatchJump, int32(cg.pc()))
		cg.emit(bytecode.RE_RAISE, 0, n.Line)
	}
	cg.patchArg(jumpOverHandler, int32(cg.pc()))
	cg.patchArg(endJump, int32(cg.pc()))
	return nil
}

func (cg *codegen) compileRaise(n *RaiseStmt) error {
	if n.Type == "" {
		if len(cg.exceptVars) == 0 {
			return fmt.Errorf("line %d: bare raise outside an except handler", n.Line)
		}
		excVar := cg.exceptVars[len(cg.exceptVars)-1]
		idx := cg.internName(excVar, bytecode.ScopeLocal)
		cg.emit(bytecode.LOAD_NAME, idx, n.Line)
		cg.emit(bytecode.RE_RAISE, 0, n.Line)
		return nil
	}
	if err := cg.compileExpr(n.X); err != nil {
		return err
	}
	idx := cg.internName(n.Type, bytecode.ScopeSpecial)
	cg.emit(bytecode.RAISE, idx, n.Line)
	return nil
}

func (cg *codegen) compileFuncDef(n *FuncDef) error {
	fd, err := compileFunctionBody(n)
	if err != nil {
		return err
	}
	h := &object.Handle{Tag: object.TagFunction, Payload: fd}
	idx := cg.addConst(h)
	cg.emit(bytecode.LOAD_CONST, idx, n.Line)
	nameIdx := cg.internName(n.Name, bytecode.ScopeSpecial)
	cg.emit(bytecode.STORE_FUNCTION, nameIdx, n.Line)
	return nil
}

// compileFunctionBody compiles a FuncDef's body into its own CodeObject,
// trailing every path with an implicit `return None` so the mode-based
// fall-through rule (written for top-level code) is never relied on for a
// callable body.
func compileFunctionBody(n *FuncDef) (*bytecode.FunctionDescriptor, error) {
	inner := newCodegen(n.Name, bytecode.ModeExec)
	inner.inFunc = true
	if err := inner.compileStmts(n.Body); err != nil {
		return nil, err
	}
	inner.emit(bytecode.LOAD_NONE, 0, n.Line)
	inner.emit(bytecode.RETURN_VALUE, 0, n.Line)
	inner.co.IsGenerator = n.IsGenerator

	kwDefaults := map[string]*object.Handle{}
	for name, expr := range n.KwDefaults {
		h, err := constFold(expr)
		if err != nil {
			return nil, fmt.Errorf("default value for %q must be a literal: %w", name, err)
		}
		kwDefaults[name] = h
	}

	return &bytecode.FunctionDescriptor{
		Name: n.Name, Code: inner.co, Params: n.Params,
		KwDefaults: kwDefaults, KwOrder: n.KwOrder, StarredParam: n.StarredParam,
	}, nil
}

// constFold evaluates a small set of literal expression forms at compile
// time, for use as keyword-default values (FunctionDescriptor stores them
// as already-materialised handles, not re-evaluated per call).
func constFold(e Expr) (*object.Handle, error) {
	switch n := e.(type) {
	case *IntLit:
		return &object.Handle{Tag: object.TagInt, Payload: n.Value}, nil
	case *FloatLit:
		return &object.Handle{Tag: object.TagFloat, Payload: n.Value}, nil
	case *StrLit:
		return &object.Handle{Tag: object.TagStr, Payload: n.Value}, nil
	case *BoolLit:
		return &object.Handle{Tag: object.TagBool, Payload: n.Value}, nil
	case *NoneLit:
		return &object.Handle{Tag: object.TagNoneType}, nil
	case *UnaryNegExpr:
		inner, err := constFold(n.X)
		if err != nil {
			return nil, err
		}
		switch inner.Tag {
		case object.TagInt:
			return &object.Handle{Tag: object.TagInt, Payload: -inner.Payload.(int64)}, nil
		case object.TagFloat:
			return &object.Handle{Tag: object.TagFloat, Payload: -inner.Payload.(float64)}, nil
		}
		return nil, fmt.Errorf("cannot negate constant of this kind")
	default:
		return nil, fmt.Errorf("not a literal")
	}
}

func (cg *codegen) compileClassDef(n *ClassDef) error {
	cg.emit(bytecode.LOAD_NONE, 0, n.Line) // method-list terminator, pushed first (popped last)
	for _, m := range n.Methods {
		fd, err := compileFunctionBody(m)
		if err != nil {
			return err
		}
		idx := cg.addConst(&object.Handle{Tag: object.TagFunction, Payload: fd})
		cg.emit(bytecode.LOAD_CONST, idx, m.Line)
	}
	if n.Base != nil {
		if err := cg.compileExpr(n.Base); err != nil {
			return err
		}
	} else {
		cg.emit(bytecode.LOAD_NONE, 0, n.Line)
	}
	nameIdx := cg.internName(n.Name, bytecode.ScopeSpecial)
	cg.emit(bytecode.BUILD_CLASS, nameIdx, n.Line)
	scope := cg.varScope()
	storeIdx := cg.internName(n.Name, scope)
	cg.emit(bytecode.STORE_NAME, storeIdx, n.Line)
	return nil
}

func (cg *codegen) compileExpr(e Expr) error {
	switch n := e.(type) {
	case *IntLit:
		cg.emit(bytecode.LOAD_CONST, cg.addConst(&object.Handle{Tag: object.TagInt, Payload: n.Value}), 0)
	case *FloatLit:
		cg.emit(bytecode.LOAD_CONST, cg.addConst(&object.Handle{Tag: object.TagFloat, Payload: n.Value}), 0)
	case *StrLit:
		cg.emit(bytecode.LOAD_CONST, cg.addConst(&object.Handle{Tag: object.TagStr, Payload: n.Value}), 0)
	case *BoolLit:
		if n.Value {
			cg.emit(bytecode.LOAD_TRUE, 0, 0)
		} else {
			cg.emit(bytecode.LOAD_FALSE, 0, 0)
		}
	case *NoneLit:
		cg.emit(bytecode.LOAD_NONE, 0, 0)
	case *EllipsisLit:
		cg.emit(bytecode.LOAD_ELLIPSIS, 0, 0)

	case *NameExpr:
		idx := cg.internName(n.Name, cg.varScope())
		cg.emit(bytecode.LOAD_NAME, idx, 0)

	case *FStringExpr:
		for _, part := range n.Parts {
			if err := cg.compileExpr(part); err != nil {
				return err
			}
		}
		cg.emit(bytecode.BUILD_STRING, int32(len(n.Parts)), 0)

	case *TupleExpr:
		for _, item := range n.Items {
			if err := cg.compileExpr(item); err != nil {
				return err
			}
		}
		cg.emit(bytecode.BUILD_SMART_TUPLE, int32(len(n.Items)), 0)

	case *ListExpr:
		for _, item := range n.Items {
			if err := cg.compileExpr(item); err != nil {
				return err
			}
		}
		cg.emit(bytecode.BUILD_LIST, int32(len(n.Items)), 0)

	case *SetExpr:
		for _, item := range n.Items {
			if err := cg.compileExpr(item); err != nil {
				return err
			}
		}
		cg.emit(bytecode.BUILD_SET, int32(len(n.Items)), 0)

	case *MapExpr:
		for i := range n.Keys {
			if err := cg.compileExpr(n.Keys[i]); err != nil {
				return err
			}
			if err := cg.compileExpr(n.Values[i]); err != nil {
				return err
			}
		}
		cg.emit(bytecode.BUILD_MAP, int32(len(n.Keys)), 0)

	case *BinaryExpr:
		if err := cg.compileExpr(n.Left); err != nil {
			return err
		}
		if err := cg.compileExpr(n.Right); err != nil {
			return err
		}
		cg.emit(bytecode.BINARY_OP, binaryOpArg(n.Op), 0)

	case *CompareExpr:
		if err := cg.compileExpr(n.Left); err != nil {
			return err
		}
		if err := cg.compileExpr(n.Right); err != nil {
			return err
		}
		cg.emit(bytecode.COMPARE_OP, compareOpArg(n.Op), 0)

	case *BitwiseExpr:
		if err := cg.compileExpr(n.Left); err != nil {
			return err
		}
		if err := cg.compileExpr(n.Right); err != nil {
			return err
		}
		cg.emit(bytecode.BITWISE_OP, bitwiseOpArg(n.Op), 0)

	case *IsExpr:
		if err := cg.compileExpr(n.Left); err != nil {
			return err
		}
		if err := cg.compileExpr(n.Right); err != nil {
			return err
		}
		arg := int32(0)
		if n.Negate {
			arg = 1
		}
		cg.emit(bytecode.IS_OP, arg, 0)

	case *InExpr:
		if err := cg.compileExpr(n.Left); err != nil {
			return err
		}
		if err := cg.compileExpr(n.Right); err != nil {
			return err
		}
		arg := int32(0)
		if n.Negate {
			arg = 1
		}
		cg.emit(bytecode.CONTAINS_OP, arg, 0)

	case *BoolExpr:
		if err := cg.compileExpr(n.Left); err != nil {
			return err
		}
		op := bytecode.JUMP_IF_FALSE_OR_POP
		if n.Op == "or" {
			op = bytecode.JUMP_IF_TRUE_OR_POP
		}
		jmp := cg.emit(op, 0, 0)
		if err := cg.compileExpr(n.Right); err != nil {
			return err
		}
		cg.patchArg(jmp, int32(cg.pc()))

	case *UnaryNegExpr:
		if err := cg.compileExpr(n.X); err != nil {
			return err
		}
		cg.emit(bytecode.UNARY_NEGATIVE, 0, 0)

	case *NotExpr:
		if err := cg.compileExpr(n.X); err != nil {
			return err
		}
		cg.emit(bytecode.UNARY_NOT, 0, 0)

	case *CallExpr:
		if err := cg.compileExpr(n.Fn); err != nil {
			return err
		}
		for _, a := range n.Args {
			if err := cg.compileExpr(a); err != nil {
				return err
			}
		}
		for i, name := range n.KwNames {
			cg.emit(bytecode.LOAD_CONST, cg.addConst(&object.Handle{Tag: object.TagStr, Payload: name}), 0)
			if err := cg.compileExpr(n.KwValues[i]); err != nil {
				return err
			}
		}
		arg := int32(len(n.Args)) | int32(len(n.KwNames))<<16
		cg.emit(bytecode.CALL, arg, 0)

	case *AttrExpr:
		if err := cg.compileExpr(n.X); err != nil {
			return err
		}
		idx := cg.internName(n.Name, bytecode.ScopeAttr)
		cg.emit(bytecode.BUILD_ATTR, idx<<1, 0)

	case *IndexExpr:
		if err := cg.compileExpr(n.X); err != nil {
			return err
		}
		if err := cg.compileIndexKey(n.Index); err != nil {
			return err
		}
		cg.emit(bytecode.BUILD_INDEX, 1, 0)

	case *LambdaExpr:
		fd := &FuncDef{Name: "<lambda>", Params: n.Params, Body: []Stmt{&ReturnStmt{X: n.Body}}}
		inner, err := compileFunctionBody(fd)
		if err != nil {
			return err
		}
		idx := cg.addConst(&object.Handle{Tag: object.TagFunction, Payload: inner})
		cg.emit(bytecode.LOAD_LAMBDA, idx, 0)

	case *YieldExpr:
		if n.X != nil {
			if err := cg.compileExpr(n.X); err != nil {
				return err
			}
		} else {
			cg.emit(bytecode.LOAD_NONE, 0, 0)
		}
		cg.emit(bytecode.YIELD_VALUE, 0, 0)

	default:
		return fmt.Errorf("codegen: unhandled expression %T", e)
	}
	return nil
}

func binaryOpArg(op string) int32 {
	switch op {
	case "+":
		return bytecode.BinaryAdd
	case "-":
		return bytecode.BinarySub
	case "*":
		return bytecode.BinaryMul
	case "/":
		return bytecode.BinaryTrueDiv
	case "//":
		return bytecode.BinaryFloorDiv
	case "%":
		return bytecode.BinaryMod
	case "**":
		return bytecode.BinaryPow
	default:
		panic("unknown binary op " + op)
	}
}

func compareOpArg(op string) int32 {
	switch op {
	case "==":
		return bytecode.CompareEq
	case "!=":
		return bytecode.CompareNe
	case "<":
		return bytecode.CompareLt
	case "<=":
		return bytecode.CompareLe
	case ">":
		return bytecode.CompareGt
	case ">=":
		return bytecode.CompareGe
	default:
		panic("unknown compare op " + op)
	}
}

func bitwiseOpArg(op string) int32 {
	switch op {
	case "&":
		return bytecode.BitwiseAnd
	case "|":
		return bytecode.BitwiseOr
	case "^":
		return bytecode.BitwiseXor
	case "<<":
		return bytecode.BitwiseLShift
	case ">>":
		return bytecode.BitwiseRShift
	default:
		panic("unknown bitwise op " + op)
	}
}
