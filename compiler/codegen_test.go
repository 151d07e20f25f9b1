package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/dusk/bytecode"
	"github.com/wudi/dusk/object"
)

func opsOf(co *bytecode.CodeObject) []bytecode.Op {
	ops := make([]bytecode.Op, len(co.Codes))
	for i, c := range co.Codes {
		ops[i] = c.Op
	}
	return ops
}

func TestCompileSimpleAssignment(t *testing.T) {
	co, err := Compile("x = 1\n", "t.dk", bytecode.ModeExec)
	require.NoError(t, err)
	assert.Equal(t, []bytecode.Op{bytecode.LOAD_CONST, bytecode.STORE_NAME}, opsOf(co))
	assert.Equal(t, "x", co.Names[co.Codes[1].Arg].Name)
	assert.Equal(t, bytecode.ScopeGlobal, co.Names[co.Codes[1].Arg].Scope)
}

func TestCompileAttributeAssignmentUsesRef(t *testing.T) {
	co, err := Compile("obj.field = 2\n", "t.dk", bytecode.ModeExec)
	require.NoError(t, err)
	assert.Equal(t, []bytecode.Op{
		bytecode.LOAD_NAME, bytecode.BUILD_ATTR, bytecode.LOAD_CONST, bytecode.STORE_REF,
	}, opsOf(co))
	// l-value form: low bit of BUILD_ATTR's arg set.
	assert.EqualValues(t, 1, co.Codes[1].Arg&1)
}

func TestCompileNegativeLiteralThenOptimize(t *testing.T) {
	co, err := Compile("x = -5\n", "t.dk", bytecode.ModeExec)
	require.NoError(t, err)
	assert.Equal(t, []bytecode.Op{
		bytecode.LOAD_CONST, bytecode.UNARY_NEGATIVE, bytecode.STORE_NAME,
	}, opsOf(co))

	negate := func(h *object.Handle) (*object.Handle, error) {
		return &object.Handle{Tag: object.TagInt, Payload: -h.Payload.(int64)}, nil
	}
	require.NoError(t, co.Optimize(negate))
	assert.Equal(t, []bytecode.Op{
		bytecode.LOAD_CONST, bytecode.NO_OP, bytecode.STORE_NAME,
	}, opsOf(co))
	assert.Equal(t, int64(-5), co.Consts[co.Codes[0].Arg].Payload)
}

func TestCompileFunctionBodyEndsWithReturnNone(t *testing.T) {
	co, err := Compile("def f():\n  pass\nend\n", "t.dk", bytecode.ModeExec)
	require.NoError(t, err)

	var fd *bytecode.FunctionDescriptor
	for _, c := range co.Consts {
		if d, ok := c.Payload.(*bytecode.FunctionDescriptor); ok {
			fd = d
		}
	}
	require.NotNil(t, fd)
	n := len(fd.Code.Codes)
	assert.Equal(t, bytecode.LOAD_NONE, fd.Code.Codes[n-2].Op)
	assert.Equal(t, bytecode.RETURN_VALUE, fd.Code.Codes[n-1].Op)
	assert.False(t, fd.Code.IsGenerator)
}

func TestCompileLocalScopeInsideFunction(t *testing.T) {
	co, err := Compile("def f():\n  y = 1\n  return y\nend\n", "t.dk", bytecode.ModeExec)
	require.NoError(t, err)

	var fd *bytecode.FunctionDescriptor
	for _, c := range co.Consts {
		if d, ok := c.Payload.(*bytecode.FunctionDescriptor); ok {
			fd = d
		}
	}
	require.NotNil(t, fd)
	require.NotEmpty(t, fd.Code.Names)
	assert.Equal(t, bytecode.ScopeLocal, fd.Code.Names[0].Scope)
}

func TestCompileClassEmitsBuildClass(t *testing.T) {
	co, err := Compile("class A:\n  pass\nend\n", "t.dk", bytecode.ModeExec)
	require.NoError(t, err)
	assert.Contains(t, opsOf(co), bytecode.BUILD_CLASS)
}

func TestCompileTryRecordsHandlerPC(t *testing.T) {
	src := `
try:
  x = 1
except ValueError as e:
  x = 2
end
`
	co, err := Compile(src, "t.dk", bytecode.ModeExec)
	require.NoError(t, err)
	require.Len(t, co.Blocks, 1)
	blk := co.Blocks[0]
	assert.Equal(t, bytecode.BlockTry, blk.Kind)
	assert.GreaterOrEqual(t, blk.HandlerPC, 0)
	assert.Equal(t, bytecode.EXCEPTION_MATCH, co.Codes[blk.HandlerPC].Op)
}

func TestCompileLoopBlockBoundaries(t *testing.T) {
	co, err := Compile("while x:\n  y = 1\nend\n", "t.dk", bytecode.ModeExec)
	require.NoError(t, err)
	require.Len(t, co.Blocks, 1)
	blk := co.Blocks[0]
	assert.Equal(t, bytecode.BlockLoop, blk.Kind)
	assert.GreaterOrEqual(t, blk.End, blk.Start)
}

func TestCompileBreakOutsideLoopFails(t *testing.T) {
	_, err := Compile("break\n", "t.dk", bytecode.ModeExec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside a loop")
}

func TestCompileEvalModeRequiresSingleExpression(t *testing.T) {
	_, err := Compile("x = 1\n", "t.dk", bytecode.ModeEval)
	require.Error(t, err)

	co, err := Compile("1 + 2", "t.dk", bytecode.ModeEval)
	require.NoError(t, err)
	assert.Equal(t, []bytecode.Op{
		bytecode.LOAD_CONST, bytecode.LOAD_CONST, bytecode.BINARY_OP,
	}, opsOf(co))
}

func TestCompileCallPacksArgCounts(t *testing.T) {
	co, err := Compile("f(1, 2, k=3)\n", "t.dk", bytecode.ModeExec)
	require.NoError(t, err)
	var call *bytecode.Bytecode
	for i := range co.Codes {
		if co.Codes[i].Op == bytecode.CALL {
			call = &co.Codes[i]
		}
	}
	require.NotNil(t, call)
	assert.EqualValues(t, 2, call.Arg&0xFFFF)
	assert.EqualValues(t, 1, (call.Arg>>16)&0xFFFF)
}

func TestCompileGeneratorFlagPropagates(t *testing.T) {
	co, err := Compile("def g():\n  yield 1\nend\n", "t.dk", bytecode.ModeExec)
	require.NoError(t, err)
	var fd *bytecode.FunctionDescriptor
	for _, c := range co.Consts {
		if d, ok := c.Payload.(*bytecode.FunctionDescriptor); ok {
			fd = d
		}
	}
	require.NotNil(t, fd)
	assert.True(t, fd.Code.IsGenerator)
}
