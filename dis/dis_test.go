package dis_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/dusk/bytecode"
	"github.com/wudi/dusk/compiler"
	"github.com/wudi/dusk/dis"
)

func TestDisassembleListing(t *testing.T) {
	src := `
x = 1
if x:
  x = 2
end
x = 3
`
	co, err := compiler.Compile(src, "t.dk", bytecode.ModeExec)
	require.NoError(t, err)

	out := dis.Disassemble(co)
	assert.Contains(t, out, "Disassembly of t.dk:")
	assert.Contains(t, out, "LOAD_CONST")
	assert.Contains(t, out, "(x)")
	assert.Contains(t, out, "co_consts:")
	assert.Contains(t, out, "co_names:")
	assert.Contains(t, out, "->", "jump targets are marked")
}

func TestDisassembleRecursesIntoFunctions(t *testing.T) {
	src := `
def f():
  return 'inner-const'
end
`
	co, err := compiler.Compile(src, "t.dk", bytecode.ModeExec)
	require.NoError(t, err)

	out := dis.Disassemble(co)
	assert.Contains(t, out, "Disassembly of f:")
	assert.Contains(t, out, "'inner-const'")
}

func TestDisassembleBlankRepeatedLines(t *testing.T) {
	// "x = 1 + 2" compiles to several instructions on the same source line;
	// only the first prints its line number.
	co, err := compiler.Compile("x = 1 + 2\n", "t.dk", bytecode.ModeExec)
	require.NoError(t, err)
	out := dis.Disassemble(co)

	first := co.Codes[0].Line
	prefix := "  " + string(rune('0'+first)) + " "
	lines := strings.Split(out, "\n")
	numbered := 0
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			numbered++
		}
	}
	assert.Equal(t, 1, numbered, "repeated source lines printed once")
}

func TestDisassembleBlockDescriptor(t *testing.T) {
	co, err := compiler.Compile("while x:\n  y = 1\nend\n", "t.dk", bytecode.ModeExec)
	require.NoError(t, err)
	assert.Contains(t, dis.Disassemble(co), "(loop)")
}
