package cpu

import (
	"errors"
	"fmt"
)

var (
	ErrUnmatchedLoopEnd   = errors.New("unmatched loop end")
	ErrUnmatchedLoopBegin = errors.New("unmatched loop begin")
)

// LoopError reports a loop instruction without a partner.
type LoopError struct {
	Index int   // instruction index of the offending bracket
	Err   error // ErrUnmatchedLoopEnd or ErrUnmatchedLoopBegin
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("%v at instruction %d", e.Err, e.Index)
}

func (e *LoopError) Unwrap() error { return e.Err }

// ResolveJumps builds the jump table for prog: for every loop begin at i the
// table holds the index of its loop end, and vice versa. All other entries are
// zero.
func ResolveJumps(prog []Instruction) ([]int, error) {
	jumps := make([]int, len(prog))
	var open []int

	for i, instr := range prog {
		switch instr.Op {
		case OpLoopBegin:
			open = append(open, i)
		case OpLoopEnd:
			if len(open) == 0 {
				return nil, &LoopError{Index: i, Err: ErrUnmatchedLoopEnd}
			}
			begin := open[len(open)-1]
			open = open[:len(open)-1]
			jumps[begin] = i
			jumps[i] = begin
		}
	}

	if len(open) > 0 {
		return nil, &LoopError{Index: open[len(open)-1], Err: ErrUnmatchedLoopBegin}
	}
	return jumps, nil
}
