package asm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gobf/pkg/cpu"
)

var zeroOperandOps = map[string]cpu.Op{
	"JZ":  cpu.OpLoopBegin,
	"JNZ": cpu.OpLoopEnd,
	"IN":  cpu.OpRead,
	"OUT": cpu.OpWrite,
	"CLR": cpu.OpClear,
}

var countOps = map[string]cpu.Op{
	"MOVR": cpu.OpRight,
	"MOVL": cpu.OpLeft,
	"ADD":  cpu.OpInc,
	"SUB":  cpu.OpDec,
}

var mnemonics = map[cpu.Op]string{}

func init() {
	for name, op := range zeroOperandOps {
		mnemonics[op] = name
	}
	for name, op := range countOps {
		mnemonics[op] = name
	}
}

// Mnemonic returns the listing name of op.
func Mnemonic(op cpu.Op) string {
	if m, ok := mnemonics[op]; ok {
		return m
	}
	return op.String()
}

type parsedLine struct {
	lineNo   int
	address  int // -1 when the line has no address prefix
	mnemonic string
	operands []string
}

// Disassemble writes a listing of prog, one instruction per line. Loop
// instructions are annotated with their partner's index when prog is
// well-formed.
func Disassemble(w io.Writer, prog []cpu.Instruction) error {
	bw := bufio.NewWriter(w)
	jumps, err := cpu.ResolveJumps(prog)
	if err != nil {
		fmt.Fprintf(bw, "; %v\n", err)
		jumps = nil
	}
	fmt.Fprintf(bw, "; %d instructions, %d operations\n", len(prog), units(prog))

	for i, instr := range prog {
		line := Mnemonic(instr.Op)
		if instr.Op.Foldable() {
			line += " " + strconv.FormatUint(uint64(instr.Count), 10)
		}
		if jumps != nil && (instr.Op == cpu.OpLoopBegin || instr.Op == cpu.OpLoopEnd) {
			fmt.Fprintf(bw, "%04d: %-10s; -> %04d\n", i, line, jumps[i])
			continue
		}
		fmt.Fprintf(bw, "%04d: %s\n", i, line)
	}
	return bw.Flush()
}

func units(prog []cpu.Instruction) uint64 {
	var n uint64
	for _, instr := range prog {
		n += instr.Units()
	}
	return n
}

// Assemble parses a listing produced by Disassemble, or written by hand, back
// into instructions. Address prefixes are optional but must match the
// instruction's position when present.
func Assemble(code string) ([]cpu.Instruction, error) {
	var prog []cpu.Instruction

	for i, raw := range strings.Split(code, "\n") {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return nil, err
		}
		if p.mnemonic == "" {
			continue
		}
		if p.address >= 0 && p.address != len(prog) {
			return nil, fmt.Errorf("address %04d on line %d does not match instruction index %04d", p.address, p.lineNo, len(prog))
		}

		instr, err := encode(p)
		if err != nil {
			return nil, err
		}
		prog = append(prog, instr)
	}

	return prog, nil
}

func encode(p parsedLine) (cpu.Instruction, error) {
	if op, ok := zeroOperandOps[p.mnemonic]; ok {
		if len(p.operands) != 0 {
			return cpu.Instruction{}, fmt.Errorf("%s takes no operand on line %d", p.mnemonic, p.lineNo)
		}
		return cpu.Instruction{Op: op, Count: 1}, nil
	}

	op, ok := countOps[p.mnemonic]
	if !ok {
		return cpu.Instruction{}, fmt.Errorf("unknown instruction on line %d: %s", p.lineNo, p.mnemonic)
	}
	switch len(p.operands) {
	case 0:
		return cpu.Instruction{Op: op, Count: 1}, nil
	case 1:
		count, err := parseCount(p.operands[0], p.lineNo)
		if err != nil {
			return cpu.Instruction{}, err
		}
		return cpu.Instruction{Op: op, Count: count}, nil
	default:
		return cpu.Instruction{}, fmt.Errorf("%s expects at most one operand on line %d", p.mnemonic, p.lineNo)
	}
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo, address: -1}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	if colon := strings.IndexByte(line, ':'); colon >= 0 {
		prefix := strings.TrimSpace(line[:colon])
		addr, err := strconv.Atoi(prefix)
		if err != nil || addr < 0 {
			return p, fmt.Errorf("invalid address '%s' on line %d", prefix, lineNo)
		}
		p.address = addr
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, fmt.Errorf("address without instruction on line %d", lineNo)
		}
	}

	line = normalizeInstructionText(line)
	fields := strings.Fields(line)
	p.mnemonic = strings.ToUpper(fields[0])
	if len(fields) > 1 {
		p.operands = fields[1:]
	}
	return p, nil
}

func stripComments(line string) string {
	if idx := strings.IndexByte(line, ';'); idx >= 0 {
		return line[:idx]
	}
	return line
}

// normalizeInstructionText lets "ADD, 3" and "ADD 3" read the same.
func normalizeInstructionText(line string) string {
	return strings.ReplaceAll(line, ",", " ")
}

func parseCount(token string, lineNo int) (uint32, error) {
	n, err := strconv.ParseUint(token, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid count '%s' on line %d", token, lineNo)
	}
	if n == 0 {
		return 0, fmt.Errorf("count must be at least 1 on line %d", lineNo)
	}
	return uint32(n), nil
}
