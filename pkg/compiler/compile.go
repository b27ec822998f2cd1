package compiler

import (
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"gobf/pkg/cpu"
)

var log = commonlog.GetLogger("gobf.compiler")

// Compile lexes src and optimizes the result at the given level.
func Compile(src string, level int) ([]cpu.Instruction, error) {
	prog, err := Lex(src)
	if err != nil {
		return nil, fmt.Errorf("lex error: %w", err)
	}
	return Optimize(prog, level), nil
}

// Format renders prog back into brainfuck source. Folded instructions are
// expanded and OpClear is written as "[-]".
func Format(prog []cpu.Instruction) string {
	var sb strings.Builder
	for _, instr := range prog {
		if instr.Op == cpu.OpClear {
			sb.WriteString("[-]")
			continue
		}
		r := Symbol(instr.Op)
		if r == 0 {
			continue
		}
		for n := uint64(0); n < instr.Units(); n++ {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
