package vm

// Opcode-level tests drive hand-built CodeObjects straight through the
// driver, the same way surface-syntax-less opcodes (GOTO, LOAD_EVAL_FN,
// LIST_APPEND) are exercised without a compiler.

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wudi/dusk/bytecode"
	"github.com/wudi/dusk/object"
)

func code(mode bytecode.Mode, ops ...bytecode.Bytecode) *bytecode.CodeObject {
	co := bytecode.NewCodeObject("handbuilt", mode)
	co.Codes = ops
	return co
}

func op(o bytecode.Op, arg int32) bytecode.Bytecode {
	return bytecode.Bytecode{Op: o, Arg: arg, Block: -1}
}

// bindStrStr gives bare test VMs just enough stringification for opcodes
// that coerce (BUILD_STRING, RAISE).
func bindStrStr(v *VM) {
	v.BindMethod(v.Table.Type(object.TagStr), "__str__", 0, func(v *VM, args []*object.Handle) (*object.Handle, error) {
		return args[0], nil
	})
}

func TestGotoJumpsToLabel(t *testing.T) {
	v := newBareVM()
	co := code(bytecode.ModeExec,
		op(bytecode.GOTO, 0),
		op(bytecode.LOAD_TRUE, 0), // skipped; would violate the EXEC empty-stack rule
	)
	co.Names = []bytecode.Name{{Name: "dest", Scope: bytecode.ScopeSpecial}}
	co.Labels["dest"] = 2

	module := v.Table.New(object.TagModule, nil, true)
	result, err := v.runTopLevel(co, module)
	if err != nil {
		t.Fatalf("runTopLevel: %v", err)
	}
	if !result.IsType(object.TagNoneType) {
		t.Errorf("result = %v, want None", result)
	}
}

func TestGotoUndefinedLabelRaisesKeyError(t *testing.T) {
	v := newBareVM()
	co := code(bytecode.ModeExec, op(bytecode.GOTO, 0))
	co.Names = []bytecode.Name{{Name: "nowhere", Scope: bytecode.ScopeSpecial}}

	module := v.Table.New(object.TagModule, nil, true)
	_, err := v.runTopLevel(co, module)
	ue, ok := err.(*unhandledError)
	if !ok {
		t.Fatalf("err = %v, want unhandledError", err)
	}
	if name, _ := v.excNameAndMessage(ue.Exc); name != "KeyError" {
		t.Errorf("exception = %s, want KeyError", name)
	}
}

func TestBuildSliceCarriesBounds(t *testing.T) {
	v := newBareVM()
	co := code(bytecode.ModeEval,
		op(bytecode.LOAD_CONST, 0),
		op(bytecode.LOAD_CONST, 1),
		op(bytecode.BUILD_SLICE, 0),
	)
	co.Consts = []*object.Handle{intConst(v, 1), intConst(v, 3)}

	module := v.Table.New(object.TagModule, nil, true)
	result, err := v.runTopLevel(co, module)
	if err != nil {
		t.Fatalf("runTopLevel: %v", err)
	}
	if !result.IsType(object.TagSlice) {
		t.Fatalf("result tag = %v, want slice", result.Tag)
	}
	pair := result.Payload.([2]*object.Handle)
	if pair[0].Payload.(int64) != 1 || pair[1].Payload.(int64) != 3 {
		t.Errorf("slice bounds = (%v, %v), want (1, 3)", pair[0].Payload, pair[1].Payload)
	}
}

func TestListAppendTargetsListBelowIterationSlot(t *testing.T) {
	v := newBareVM()
	v.BindMethod(v.Table.Type(object.TagList), "append", 1, func(v *VM, args []*object.Handle) (*object.Handle, error) {
		args[0].Payload = append(args[0].Payload.([]*object.Handle), args[1])
		return v.Table.None, nil
	})

	// Mimics a comprehension shape: list, current item above it.
	co := code(bytecode.ModeEval,
		op(bytecode.BUILD_LIST, 0),
		op(bytecode.LOAD_CONST, 0), // placeholder occupying the slot above the list
		op(bytecode.LOAD_CONST, 1),
		op(bytecode.LIST_APPEND, 0),
		op(bytecode.POP_TOP, 0), // drop the placeholder
	)
	co.Consts = []*object.Handle{intConst(v, 0), intConst(v, 7)}

	module := v.Table.New(object.TagModule, nil, true)
	result, err := v.runTopLevel(co, module)
	if err != nil {
		t.Fatalf("runTopLevel: %v", err)
	}
	items := result.Payload.([]*object.Handle)
	if len(items) != 1 || items[0].Payload.(int64) != 7 {
		t.Errorf("list = %v, want [7]", items)
	}
}

func TestBuildStringConcatenatesInPushOrder(t *testing.T) {
	v := newBareVM()
	bindStrStr(v)
	co := code(bytecode.ModeEval,
		op(bytecode.LOAD_CONST, 0),
		op(bytecode.LOAD_CONST, 1),
		op(bytecode.LOAD_CONST, 2),
		op(bytecode.BUILD_STRING, 3),
	)
	co.Consts = []*object.Handle{
		v.Table.New(object.TagStr, "a", false),
		v.Table.New(object.TagStr, "b", false),
		v.Table.New(object.TagStr, "c", false),
	}

	module := v.Table.New(object.TagModule, nil, true)
	result, err := v.runTopLevel(co, module)
	if err != nil {
		t.Fatalf("runTopLevel: %v", err)
	}
	if got := result.Payload.(string); got != "abc" {
		t.Errorf("result = %q, want %q", got, "abc")
	}
}

func TestBuildSmartTupleAllRefsMakesTupleRef(t *testing.T) {
	v := newBareVM()
	co := code(bytecode.ModeEval,
		op(bytecode.LOAD_NAME_REF, 0),
		op(bytecode.LOAD_NAME_REF, 1),
		op(bytecode.BUILD_SMART_TUPLE, 2),
	)
	co.Names = []bytecode.Name{
		{Name: "a", Scope: bytecode.ScopeGlobal},
		{Name: "b", Scope: bytecode.ScopeGlobal},
	}

	module := v.Table.New(object.TagModule, nil, true)
	result, err := v.runTopLevel(co, module)
	if err != nil {
		t.Fatalf("runTopLevel: %v", err)
	}
	if !result.IsType(object.TagRef) {
		t.Fatalf("result tag = %v, want ref", result.Tag)
	}
	if r := result.Payload.(Ref); r.Kind != RefTuple || len(r.Items) != 2 {
		t.Errorf("ref = %+v, want a 2-item TupleRef", r)
	}
}

func TestBuildSmartTupleMixedResolvesToTuple(t *testing.T) {
	v := newBareVM()
	co := code(bytecode.ModeEval,
		op(bytecode.LOAD_NAME_REF, 0),
		op(bytecode.LOAD_CONST, 0),
		op(bytecode.BUILD_SMART_TUPLE, 2),
	)
	co.Names = []bytecode.Name{{Name: "x", Scope: bytecode.ScopeGlobal}}
	co.Consts = []*object.Handle{intConst(v, 2)}

	module := v.Table.New(object.TagModule, nil, true)
	module.Attrs["x"] = intConst(v, 1)
	result, err := v.runTopLevel(co, module)
	if err != nil {
		t.Fatalf("runTopLevel: %v", err)
	}
	if !result.IsType(object.TagTuple) {
		t.Fatalf("result tag = %v, want tuple", result.Tag)
	}
	items := result.Payload.([]*object.Handle)
	if items[0].Payload.(int64) != 1 || items[1].Payload.(int64) != 2 {
		t.Errorf("tuple = (%v, %v), want (1, 2)", items[0].Payload, items[1].Payload)
	}
}

func TestIsOpComparesIdentity(t *testing.T) {
	v := newBareVM()
	co := code(bytecode.ModeEval,
		op(bytecode.LOAD_NONE, 0),
		op(bytecode.LOAD_NONE, 0),
		op(bytecode.IS_OP, 0),
	)
	module := v.Table.New(object.TagModule, nil, true)
	result, err := v.runTopLevel(co, module)
	if err != nil {
		t.Fatalf("runTopLevel: %v", err)
	}
	if result != v.Table.True {
		t.Error("None is None should be the True singleton")
	}
}

func TestDupTopDuplicatesResolvedValue(t *testing.T) {
	v := newBareVM()
	co := code(bytecode.ModeExec,
		op(bytecode.LOAD_CONST, 0),
		op(bytecode.DUP_TOP, 0),
		op(bytecode.POP_TOP, 0),
		op(bytecode.POP_TOP, 0),
	)
	co.Consts = []*object.Handle{intConst(v, 5)}
	module := v.Table.New(object.TagModule, nil, true)
	if _, err := v.runTopLevel(co, module); err != nil {
		t.Fatalf("runTopLevel: %v", err)
	}
}

func TestPrintExprWritesReprAndSkipsNone(t *testing.T) {
	var out bytes.Buffer
	v := New(Config{Stdout: &out})
	v.BindMethod(v.Table.Type(object.TagInt), "__repr__", 0, func(v *VM, args []*object.Handle) (*object.Handle, error) {
		return v.Table.New(object.TagStr, "FIVE", false), nil
	})
	co := code(bytecode.ModeExec,
		op(bytecode.LOAD_CONST, 0),
		op(bytecode.PRINT_EXPR, 0),
		op(bytecode.LOAD_NONE, 0),
		op(bytecode.PRINT_EXPR, 0),
	)
	co.Consts = []*object.Handle{intConst(v, 5)}
	module := v.Table.New(object.TagModule, nil, true)
	if _, err := v.runTopLevel(co, module); err != nil {
		t.Fatalf("runTopLevel: %v", err)
	}
	if out.String() != "FIVE\n" {
		t.Errorf("stdout = %q, want %q", out.String(), "FIVE\n")
	}
}

func TestExecModeLeftoverStackIsInternalError(t *testing.T) {
	v := newBareVM()
	co := code(bytecode.ModeExec, op(bytecode.LOAD_TRUE, 0))
	module := v.Table.New(object.TagModule, nil, true)
	_, err := v.runTopLevel(co, module)
	if _, ok := err.(*VMError); !ok {
		t.Fatalf("err = %v, want *VMError", err)
	}
}

func TestUnknownOpcodeIsInternalError(t *testing.T) {
	v := newBareVM()
	co := code(bytecode.ModeExec, op(bytecode.Op(200), 0))
	module := v.Table.New(object.TagModule, nil, true)
	_, err := v.runTopLevel(co, module)
	vmErr, ok := err.(*VMError)
	if !ok {
		t.Fatalf("err = %v, want *VMError", err)
	}
	if vmErr.Type != ErrBadBytecode {
		t.Errorf("error type = %v, want ErrBadBytecode", vmErr.Type)
	}
	if vmErr.Opcode != bytecode.Op(200) {
		t.Errorf("error opcode = %v, want the offending opcode", vmErr.Opcode)
	}
}

func TestLoadEvalFnPushesRegisteredBuiltin(t *testing.T) {
	v := newBareVM()
	evalStub := v.Table.New(object.TagNativeFunction, &NativeFunction{Name: "eval", Arity: 1}, false)
	v.Builtins.Attrs["eval"] = evalStub

	co := code(bytecode.ModeEval, op(bytecode.LOAD_EVAL_FN, 0))
	module := v.Table.New(object.TagModule, nil, true)
	result, err := v.runTopLevel(co, module)
	if err != nil {
		t.Fatalf("runTopLevel: %v", err)
	}
	if result != evalStub {
		t.Error("LOAD_EVAL_FN did not push builtins.eval")
	}
}

func TestExecSwallowsExceptionAndReportsSummary(t *testing.T) {
	var errOut bytes.Buffer
	v := New(Config{Stderr: &errOut})
	bindStrStr(v)
	co := code(bytecode.ModeExec,
		op(bytecode.LOAD_CONST, 0),
		op(bytecode.RAISE, 0),
	)
	co.Consts = []*object.Handle{v.Table.New(object.TagStr, "boom", false)}
	co.Names = []bytecode.Name{{Name: "ValueError", Scope: bytecode.ScopeSpecial}}

	module := v.Table.New(object.TagModule, nil, true)
	result, err := v.Exec(co, module)
	if err != nil {
		t.Fatalf("Exec must not surface raised exceptions as errors, got %v", err)
	}
	if !result.IsType(object.TagNoneType) {
		t.Errorf("result = %v, want None", result)
	}
	if !strings.Contains(errOut.String(), "ValueError: boom") {
		t.Errorf("summary missing from stderr:\n%s", errOut.String())
	}
	if v.depth() != 0 {
		t.Errorf("call stack not reset, depth = %d", v.depth())
	}
}
