package compiler

import (
	"math"

	"gobf/pkg/cpu"
)

// Optimization levels accepted by Optimize and Compile.
const (
	OptNone  = 0 // raw lexer output
	OptFold  = 1 // run-length folding
	OptClear = 2 // folding plus the clear-cell rewrite
)

// Optimize rewrites prog according to level. Level 0 (or below) returns prog
// unchanged. Level 1 folds runs of identical pointer/cell ops, splitting a
// run where its count would overflow. Level 2 also
// replaces the three-instruction loop "[-]" with a single OpClear.
func Optimize(prog []cpu.Instruction, level int) []cpu.Instruction {
	if level <= OptNone {
		return prog
	}

	optimized := make([]cpu.Instruction, 0, len(prog))
	for i := 0; i < len(prog); {
		// The clear idiom starts with a loop begin, which is never foldable,
		// so it has to be checked before folding gets a chance.
		if level >= OptClear && isClearLoop(prog[i:]) {
			optimized = append(optimized, cpu.Instruction{Op: cpu.OpClear, Count: 1})
			i += 3
			continue
		}

		instr := prog[i]
		i++
		if instr.Op.Foldable() {
			for i < len(prog) && prog[i].Op == instr.Op {
				// A run whose sum would not fit in Count is split.
				if instr.Count > math.MaxUint32-prog[i].Count {
					break
				}
				instr.Count += prog[i].Count
				i++
			}
		}
		optimized = append(optimized, instr)
	}

	log.Debugf("optimized %d instructions to %d at level %d", len(prog), len(optimized), level)
	return optimized
}

// Fold applies run-length folding only. Folding an already folded program
// returns an identical program.
func Fold(prog []cpu.Instruction) []cpu.Instruction {
	return Optimize(prog, OptFold)
}

// isClearLoop reports whether prog starts with exactly "[", "-", "]".
func isClearLoop(prog []cpu.Instruction) bool {
	return len(prog) >= 3 &&
		prog[0].Op == cpu.OpLoopBegin &&
		prog[1].Op == cpu.OpDec && prog[1].Count == 1 &&
		prog[2].Op == cpu.OpLoopEnd
}
