package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOne(t *testing.T, src string) Stmt {
	t.Helper()
	prog, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Stmts, 1)
	return prog.Stmts[0]
}

func TestParseTupleAssignment(t *testing.T) {
	s := parseOne(t, "a, b = 1, 2\n")
	assign, ok := s.(*AssignStmt)
	require.True(t, ok)

	target, ok := assign.Target.(*TupleExpr)
	require.True(t, ok)
	assert.Len(t, target.Items, 2)

	value, ok := assign.Value.(*TupleExpr)
	require.True(t, ok)
	assert.Len(t, value.Items, 2)
}

func TestParsePrecedenceMulBeforeAdd(t *testing.T) {
	s := parseOne(t, "x = 1 + 2 * 3\n")
	assign := s.(*AssignStmt)
	bin, ok := assign.Value.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "+", bin.Op)
	right, ok := bin.Right.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, "*", right.Op)
}

func TestParseIfElifElse(t *testing.T) {
	src := `
if a:
  x = 1
elif b:
  x = 2
else:
  x = 3
end
`
	s := parseOne(t, src)
	ifStmt, ok := s.(*IfStmt)
	require.True(t, ok)
	require.Len(t, ifStmt.Else, 1)

	elif, ok := ifStmt.Else[0].(*IfStmt)
	require.True(t, ok)
	assert.Len(t, elif.Then, 1)
	assert.Len(t, elif.Else, 1)
}

func TestParseFuncDefWithDefaultsAndStarred(t *testing.T) {
	src := `
def f(a, b=2, *rest):
  return a
end
`
	fn := parseOne(t, src).(*FuncDef)
	assert.Equal(t, "f", fn.Name)
	assert.Equal(t, []string{"a"}, fn.Params)
	assert.Equal(t, []string{"b"}, fn.KwOrder)
	assert.Contains(t, fn.KwDefaults, "b")
	assert.Equal(t, "rest", fn.StarredParam)
	assert.False(t, fn.IsGenerator)
}

func TestParseGeneratorDetection(t *testing.T) {
	src := `
def g():
  yield 1
end
`
	fn := parseOne(t, src).(*FuncDef)
	assert.True(t, fn.IsGenerator)
}

func TestParseYieldInsideLoopMarksGenerator(t *testing.T) {
	src := `
def g(xs):
  for x in xs:
    yield x
  end
end
`
	fn := parseOne(t, src).(*FuncDef)
	assert.True(t, fn.IsGenerator)
}

func TestParseClassWithBaseAndMethods(t *testing.T) {
	src := `
class Dog(Animal):
  def bark(self):
    return 'woof'
  end
end
`
	cls := parseOne(t, src).(*ClassDef)
	assert.Equal(t, "Dog", cls.Name)
	base, ok := cls.Base.(*NameExpr)
	require.True(t, ok)
	assert.Equal(t, "Animal", base.Name)
	require.Len(t, cls.Methods, 1)
	assert.Equal(t, "bark", cls.Methods[0].Name)
}

func TestParseTryExceptAs(t *testing.T) {
	src := `
try:
  risky()
except ValueError as e:
  handle(e)
end
`
	try := parseOne(t, src).(*TryStmt)
	assert.Equal(t, "ValueError", try.ExceptTyp)
	assert.Equal(t, "e", try.ExceptVar)
	assert.Len(t, try.Body, 1)
	assert.Len(t, try.Handler, 1)
}

func TestParseCallWithKeywordArguments(t *testing.T) {
	s := parseOne(t, "f(1, two=2)\n")
	call := s.(*ExprStmt).X.(*CallExpr)
	assert.Len(t, call.Args, 1)
	assert.Equal(t, []string{"two"}, call.KwNames)
	assert.Len(t, call.KwValues, 1)
}

func TestParseIsNotAndNotIn(t *testing.T) {
	s := parseOne(t, "x = a is not b\n")
	isExpr, ok := s.(*AssignStmt).Value.(*IsExpr)
	require.True(t, ok)
	assert.True(t, isExpr.Negate)

	s = parseOne(t, "y = a not in b\n")
	inExpr, ok := s.(*AssignStmt).Value.(*InExpr)
	require.True(t, ok)
	assert.True(t, inExpr.Negate)
}

func TestParseLambda(t *testing.T) {
	s := parseOne(t, "f = lambda x, y: x + y\n")
	lam, ok := s.(*AssignStmt).Value.(*LambdaExpr)
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y"}, lam.Params)
}

func TestParseIndexAndSlice(t *testing.T) {
	s := parseOne(t, "v = xs[1:3]\n")
	idx, ok := s.(*AssignStmt).Value.(*IndexExpr)
	require.True(t, ok)
	sl, ok := idx.Index.(*SliceExpr)
	require.True(t, ok)
	assert.NotNil(t, sl.Start)
	assert.NotNil(t, sl.Stop)

	s = parseOne(t, "v = xs[:2]\n")
	sl = s.(*AssignStmt).Value.(*IndexExpr).Index.(*SliceExpr)
	assert.Nil(t, sl.Start)
	assert.NotNil(t, sl.Stop)
}

func TestParseErrorReportsLine(t *testing.T) {
	_, err := Parse("if a\n  x = 1\nend\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestParseUnexpectedCommaInExprStmt(t *testing.T) {
	_, err := Parse("a, b\n")
	require.Error(t, err)
}
