package vm_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wudi/dusk/builtins"
	"github.com/wudi/dusk/bytecode"
	"github.com/wudi/dusk/compiler"
	"github.com/wudi/dusk/vm"
)

// newTestVM builds a VM wired to the real compiler and built-in library,
// with captured output sinks.
func newTestVM(t *testing.T) (*vm.VM, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	v := vm.New(vm.Config{Stdout: &out, Stderr: &errOut, Compile: compiler.Compile})
	if err := builtins.Register(v); err != nil {
		t.Fatalf("builtins.Register: %v", err)
	}
	return v, &out, &errOut
}

// run executes src as a __main__ module and returns captured stdout/stderr.
func run(t *testing.T, src string) (string, string) {
	t.Helper()
	v, out, errOut := newTestVM(t)
	module := v.NewModule("__main__")
	if _, err := v.ExecSource(src, "test.dk", bytecode.ModeExec, module); err != nil {
		t.Fatalf("ExecSource: %v", err)
	}
	return out.String(), errOut.String()
}

func expectOutput(t *testing.T, src, want string) {
	t.Helper()
	out, errOut := run(t, src)
	if errOut != "" {
		t.Fatalf("unexpected stderr:\n%s", errOut)
	}
	if out != want {
		t.Errorf("stdout = %q, want %q", out, want)
	}
}

func TestArithmeticPrecedence(t *testing.T) {
	expectOutput(t, "print(1 + 2 * 3)\n", "7\n")
}

func TestTupleUnpackAssignment(t *testing.T) {
	expectOutput(t, "a, b = 1, 2\nprint(a, b)\n", "1 2\n")
}

func TestTupleUnpackRoundTrip(t *testing.T) {
	expectOutput(t, "a, b, c = 1, 2, 3\nx = (a, b, c)\nprint(x)\n", "(1, 2, 3)\n")
}

func TestTupleUnpackArityMismatch(t *testing.T) {
	expectOutput(t, `
try:
  a, b = 1, 2, 3
except ValueError as e:
  print(e)
end
`, "too many values to unpack\n")
}

func TestGeneratorForLoop(t *testing.T) {
	expectOutput(t, `
def f():
  yield 1
  yield 2
end
for x in f():
  print(x)
end
`, "1\n2\n")
}

func TestGeneratorExhaustionIsIdempotent(t *testing.T) {
	expectOutput(t, `
def g():
  yield 1
end
it = g()
print(next(it))
print(next(it))
print(next(it))
`, "1\nNone\nNone\n")
}

func TestTryExceptCatches(t *testing.T) {
	expectOutput(t, `
try:
  raise ValueError('x')
except ValueError as e:
  print(e)
end
`, "x\n")
}

func TestExceptionMatchReRaisesToOuterHandler(t *testing.T) {
	expectOutput(t, `
try:
  try:
    raise ValueError('inner')
  except KeyError as e:
    print('wrong handler')
  end
except ValueError as e:
  print('right', e)
end
`, "right inner\n")
}

func TestBareRaiseRethrows(t *testing.T) {
	expectOutput(t, `
try:
  try:
    raise KeyError('k')
  except KeyError as e:
    print('first')
    raise
  end
except KeyError as e:
  print('second', e)
end
`, "first\nsecond k\n")
}

func TestClassSingleInheritance(t *testing.T) {
	expectOutput(t, `
class A:
  pass
end
class B(A):
  pass
end
print(B().__class__.__name__)
`, "B\n")
}

func TestClassInitAndMethods(t *testing.T) {
	expectOutput(t, `
class Counter:
  def __init__(self, start):
    self.n = start
  end
  def bump(self, by):
    self.n = self.n + by
    return self.n
  end
end
c = Counter(10)
print(c.bump(5))
print(c.n)
`, "15\n15\n")
}

func TestSuperDelegatesToBase(t *testing.T) {
	expectOutput(t, `
class Animal:
  def __init__(self, name):
    self.name = name
  end
  def speak(self):
    return self.name
  end
end
class Dog(Animal):
  def __init__(self, name):
    super(self).__init__(name + '!')
  end
end
print(Dog('rex').speak())
`, "rex!\n")
}

func TestMethodResolutionWalksBase(t *testing.T) {
	expectOutput(t, `
class Base:
  def greet(self):
    return 'hello'
  end
end
class Child(Base):
  pass
end
print(Child().greet())
`, "hello\n")
}

func TestRecursionErrorSurfacesAndResetsStack(t *testing.T) {
	v, out, errOut := newTestVM(t)
	module := v.NewModule("__main__")
	src := `
def f(n):
  return f(n + 1)
end
f(0)
`
	if _, err := v.ExecSource(src, "test.dk", bytecode.ModeExec, module); err != nil {
		t.Fatalf("ExecSource: %v", err)
	}
	if out.String() != "" {
		t.Errorf("stdout = %q, want empty", out.String())
	}
	if !strings.Contains(errOut.String(), "RecursionError") {
		t.Errorf("stderr does not mention RecursionError:\n%s", errOut.String())
	}
	if !strings.Contains(errOut.String(), "Traceback") {
		t.Errorf("stderr has no traceback:\n%s", errOut.String())
	}

	// The call stack was reset: the VM keeps working.
	out.Reset()
	errOut.Reset()
	if _, err := v.ExecSource("print(40 + 2)\n", "test.dk", bytecode.ModeExec, module); err != nil {
		t.Fatalf("ExecSource after failure: %v", err)
	}
	if out.String() != "42\n" {
		t.Errorf("stdout after reset = %q, want %q", out.String(), "42\n")
	}
}

func TestRecursionErrorIsCatchable(t *testing.T) {
	expectOutput(t, `
def boom(n):
  return boom(n + 1)
end
try:
  boom(0)
except RecursionError as e:
  print('caught')
end
`, "caught\n")
}

func TestRecursionDepthBoundary(t *testing.T) {
	var out bytes.Buffer
	v := vm.New(vm.Config{Stdout: &out, Stderr: &out, MaxRecursionDepth: 50, Compile: compiler.Compile})
	if err := builtins.Register(v); err != nil {
		t.Fatalf("builtins.Register: %v", err)
	}
	module := v.NewModule("__main__")
	src := `
def f(n):
  if n == 0:
    return 'ok'
  end
  return f(n - 1)
end
print(f(40))
`
	if _, err := v.ExecSource(src, "test.dk", bytecode.ModeExec, module); err != nil {
		t.Fatalf("ExecSource: %v", err)
	}
	if out.String() != "ok\n" {
		t.Errorf("output = %q, want %q", out.String(), "ok\n")
	}
}

func TestZeroDivisionRaises(t *testing.T) {
	expectOutput(t, `
try:
  x = 1 / 0
except ZeroDivisionError as e:
  print(e)
end
`, "division by zero\n")
}

func TestWhileBreakContinue(t *testing.T) {
	expectOutput(t, `
i = 0
while True:
  i = i + 1
  if i == 2:
    continue
  end
  if i > 4:
    break
  end
  print(i)
end
`, "1\n3\n4\n")
}

func TestForOverRange(t *testing.T) {
	expectOutput(t, "for i in range(3):\n  print(i)\nend\n", "0\n1\n2\n")
}

func TestForOverListWithTupleTarget(t *testing.T) {
	expectOutput(t, `
pairs = [(1, 'a'), (2, 'b')]
for k, s in pairs:
  print(k, s)
end
`, "1 a\n2 b\n")
}

func TestBreakInsideTryLeavesBlocksClean(t *testing.T) {
	expectOutput(t, `
for i in range(5):
  try:
    if i == 2:
      break
    end
    print(i)
  except ValueError as e:
    print('no')
  end
end
print('done')
`, "0\n1\ndone\n")
}

func TestWithCallsEnterAndExit(t *testing.T) {
	expectOutput(t, `
class Res:
  def __enter__(self):
    print('enter')
  end
  def __exit__(self):
    print('exit')
  end
end
with Res():
  print('body')
end
`, "enter\nbody\nexit\n")
}

func TestImportLazyModule(t *testing.T) {
	v, out, errOut := newTestVM(t)
	v.RegisterLazyModule("mathx", "def double(x):\n  return x * 2\nend\n", "mathx.dk")
	module := v.NewModule("__main__")
	if _, err := v.ExecSource("import mathx\nprint(mathx.double(21))\n", "test.dk", bytecode.ModeExec, module); err != nil {
		t.Fatalf("ExecSource: %v", err)
	}
	if errOut.String() != "" {
		t.Fatalf("unexpected stderr:\n%s", errOut.String())
	}
	if out.String() != "42\n" {
		t.Errorf("stdout = %q, want %q", out.String(), "42\n")
	}
}

func TestImportMissingModuleIsCatchable(t *testing.T) {
	expectOutput(t, `
try:
  import nosuch
except ImportError as e:
  print(e)
end
`, "no module named 'nosuch'\n")
}

func TestEvalBuiltin(t *testing.T) {
	expectOutput(t, "x = 10\nprint(eval('x + 5'))\n", "15\n")
}

func TestEvalModeReturnsValue(t *testing.T) {
	v, _, _ := newTestVM(t)
	module := v.NewModule("__main__")
	result, err := v.ExecSource("2 ** 10", "test.dk", bytecode.ModeEval, module)
	if err != nil {
		t.Fatalf("ExecSource: %v", err)
	}
	if got := result.Payload.(int64); got != 1024 {
		t.Errorf("eval result = %d, want 1024", got)
	}
}

func TestAssertFailureRaises(t *testing.T) {
	expectOutput(t, `
try:
  assert 1 == 2, 'numbers drifted'
except AssertionError as e:
  print(e)
end
`, "numbers drifted\n")
}

func TestDefaultAndStarredParameters(t *testing.T) {
	expectOutput(t, `
def f(a, b=10, *rest):
  print(a, b, rest)
end
f(1)
f(1, 2)
f(1, 2, 3, 4)
`, "1 10 ()\n1 2 ()\n1 2 (3, 4)\n")
}

func TestKeywordArguments(t *testing.T) {
	expectOutput(t, `
def greet(name, suffix='!'):
  return name + suffix
end
print(greet('hi', suffix='?'))
print(greet('hi'))
`, "hi?\nhi!\n")
}

func TestUnknownKeywordArgumentRaises(t *testing.T) {
	expectOutput(t, `
def f(a):
  return a
end
try:
  f(1, nope=2)
except TypeError as e:
  print('caught')
end
`, "caught\n")
}

func TestBooleanShortCircuit(t *testing.T) {
	expectOutput(t, `
def loud(x):
  print('eval', x)
  return x
end
print(False and loud(True))
print(True or loud(False))
`, "False\nTrue\n")
}

func TestIsAndInOperators(t *testing.T) {
	expectOutput(t, `
a = None
print(a is None)
print(a is not None)
print(2 in [1, 2, 3])
print(5 not in [1, 2, 3])
`, "True\nFalse\nTrue\nTrue\n")
}

func TestLambdaAndHigherOrderCalls(t *testing.T) {
	expectOutput(t, `
twice = lambda f, x: f(f(x))
inc = lambda n: n + 1
print(twice(inc, 5))
`, "7\n")
}

func TestStringConcatAndIndexing(t *testing.T) {
	expectOutput(t, `
s = 'dusk'
print(s[0] + s[-1])
print(s[1:3])
`, "dk\nus\n")
}

func TestNegativeIndexOutOfRange(t *testing.T) {
	expectOutput(t, `
xs = [1, 2]
try:
  print(xs[-3])
except IndexError as e:
  print('caught')
end
`, "caught\n")
}

func TestDelStatement(t *testing.T) {
	expectOutput(t, `
x = 1
del x
try:
  print(x)
except NameError as e:
  print('gone')
end
`, "gone\n")
}

func TestUserDunderStrUsedByPrint(t *testing.T) {
	expectOutput(t, `
class Point:
  def __init__(self, x, y):
    self.x = x
    self.y = y
  end
  def __str__(self):
    return '(' + str(self.x) + ', ' + str(self.y) + ')'
  end
end
print(Point(1, 2))
`, "(1, 2)\n")
}

func TestExceptionInsideGeneratorMarksExhausted(t *testing.T) {
	expectOutput(t, `
def g():
  yield 1
  raise ValueError('mid')
end
it = g()
print(next(it))
try:
  next(it)
except ValueError as e:
  print('caught', e)
end
print(next(it))
`, "1\ncaught mid\nNone\n")
}
