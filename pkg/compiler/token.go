package compiler

import "gobf/pkg/cpu"

// commands maps each source character that carries meaning to its op.
// Every other character is a comment.
var commands = map[rune]cpu.Op{
	'>': cpu.OpRight,
	'<': cpu.OpLeft,
	'+': cpu.OpInc,
	'-': cpu.OpDec,
	'[': cpu.OpLoopBegin,
	']': cpu.OpLoopEnd,
	',': cpu.OpRead,
	'.': cpu.OpWrite,
}

// Symbol returns the source character for op, or 0 for ops that have no
// source spelling (OpClear).
func Symbol(op cpu.Op) rune {
	for r, o := range commands {
		if o == op {
			return r
		}
	}
	return 0
}
