// Package dis renders a CodeObject as a human-readable listing: one line
// per instruction with source line, jump-target marker, opcode, decorated
// argument, and enclosing-block descriptor, followed by the constant and
// name pools, recursing into nested function code objects.
package dis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wudi/dusk/bytecode"
	"github.com/wudi/dusk/object"
)

// Disassemble renders co and every function code object reachable from its
// constant pool.
func Disassemble(co *bytecode.CodeObject) string {
	var b strings.Builder
	disassemble(&b, co)
	return b.String()
}

func disassemble(b *strings.Builder, co *bytecode.CodeObject) {
	fmt.Fprintf(b, "Disassembly of %s:\n", co.Name)

	targets := jumpTargets(co)
	prevLine := -1
	for i, ins := range co.Codes {
		line := "   "
		if ins.Line != prevLine {
			line = fmt.Sprintf("%3d", ins.Line)
			prevLine = ins.Line
		}
		marker := "  "
		if targets[i] {
			marker = "->"
		}
		blockDesc := ""
		if ins.Block >= 0 && ins.Block < len(co.Blocks) {
			blockDesc = co.Blocks[ins.Block].String()
		}
		fmt.Fprintf(b, "%s %s %4d %-20s %-10s %s\n",
			line, marker, i, ins.Op.String(), argRepr(co, ins), blockDesc)
	}

	b.WriteString("co_consts:\n")
	for i, c := range co.Consts {
		fmt.Fprintf(b, "  %d: %s\n", i, constRepr(c))
	}
	b.WriteString("co_names:\n")
	for i, n := range co.Names {
		fmt.Fprintf(b, "  %d: %s (%s)\n", i, n.Name, scopeName(n.Scope))
	}

	for _, c := range co.Consts {
		if fd, ok := c.Payload.(*bytecode.FunctionDescriptor); ok && fd.Code != nil {
			b.WriteString("\n")
			disassemble(b, fd.Code)
		}
	}
}

// jumpTargets marks every instruction index some jump-family opcode can
// land on, so the listing can flag it with "->".
func jumpTargets(co *bytecode.CodeObject) map[int]bool {
	targets := map[int]bool{}
	for _, ins := range co.Codes {
		switch ins.Op {
		case bytecode.JUMP_ABSOLUTE, bytecode.SAFE_JUMP_ABSOLUTE,
			bytecode.POP_JUMP_IF_FALSE, bytecode.JUMP_IF_FALSE_OR_POP,
			bytecode.JUMP_IF_TRUE_OR_POP:
			targets[int(ins.Arg)] = true
		}
	}
	for _, pc := range co.Labels {
		targets[pc] = true
	}
	return targets
}

// argRepr decorates the raw argument for the opcodes whose operand indexes
// a pool: constants inline their repr, name-pool users inline the name.
func argRepr(co *bytecode.CodeObject, ins bytecode.Bytecode) string {
	arg := strconv.Itoa(int(ins.Arg))
	switch ins.Op {
	case bytecode.LOAD_CONST, bytecode.LOAD_LAMBDA:
		if int(ins.Arg) < len(co.Consts) {
			return arg + " (" + constRepr(co.Consts[ins.Arg]) + ")"
		}
	case bytecode.LOAD_NAME_REF, bytecode.LOAD_NAME, bytecode.RAISE,
		bytecode.STORE_NAME, bytecode.IMPORT_NAME, bytecode.GOTO,
		bytecode.EXCEPTION_MATCH, bytecode.BUILD_CLASS, bytecode.STORE_FUNCTION:
		if int(ins.Arg) < len(co.Names) {
			return arg + " (" + co.Names[ins.Arg].Name + ")"
		}
	case bytecode.BUILD_ATTR:
		idx := int(ins.Arg >> 1)
		if idx < len(co.Names) {
			kind := "load"
			if ins.Arg&1 != 0 {
				kind = "ref"
			}
			return arg + " (" + co.Names[idx].Name + ", " + kind + ")"
		}
	}
	return arg
}

// constRepr is a compile-time repr over the handle kinds a compiler can put
// in a constant pool; it never invokes user code.
func constRepr(h *object.Handle) string {
	switch h.Tag {
	case object.TagInt:
		return strconv.FormatInt(h.Payload.(int64), 10)
	case object.TagFloat:
		return strconv.FormatFloat(h.Payload.(float64), 'g', -1, 64)
	case object.TagStr:
		return "'" + h.Payload.(string) + "'"
	case object.TagBool:
		if h.Payload.(bool) {
			return "True"
		}
		return "False"
	case object.TagNoneType:
		return "None"
	case object.TagFunction:
		if fd, ok := h.Payload.(*bytecode.FunctionDescriptor); ok {
			return "<function " + fd.Name + ">"
		}
		return "<function>"
	default:
		return fmt.Sprintf("<%T>", h.Payload)
	}
}

func scopeName(s bytecode.Scope) string {
	switch s {
	case bytecode.ScopeLocal:
		return "LOCAL"
	case bytecode.ScopeGlobal:
		return "GLOBAL"
	case bytecode.ScopeAttr:
		return "ATTR"
	case bytecode.ScopeSpecial:
		return "SPECIAL"
	default:
		return "?"
	}
}
