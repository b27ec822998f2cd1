package cpu

import (
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/tliron/commonlog"
)

type Op uint8

const (
	OpRight     Op = 0x00
	OpLeft      Op = 0x01
	OpInc       Op = 0x02
	OpDec       Op = 0x03
	OpLoopBegin Op = 0x04
	OpLoopEnd   Op = 0x05
	OpRead      Op = 0x06
	OpWrite     Op = 0x07
	OpClear     Op = 0x08
)

// DefaultMemory is the tape length used when none is configured.
const DefaultMemory = 30000

var opNames = [...]string{
	OpRight:     "Right",
	OpLeft:      "Left",
	OpInc:       "Inc",
	OpDec:       "Dec",
	OpLoopBegin: "LoopBegin",
	OpLoopEnd:   "LoopEnd",
	OpRead:      "Read",
	OpWrite:     "Write",
	OpClear:     "Clear",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(0x%02X)", uint8(o))
}

// Foldable reports whether consecutive instructions of this kind can be merged
// into one instruction carrying the summed count.
func (o Op) Foldable() bool {
	switch o {
	case OpRight, OpLeft, OpInc, OpDec:
		return true
	}
	return false
}

// Instruction is one decoded operation. Count is only meaningful for
// foldable ops and is always at least 1.
type Instruction struct {
	Op    Op     `cbor:"1,keyasint"`
	Count uint32 `cbor:"2,keyasint,omitempty"`
}

// Units is the number of primitive operations the instruction stands for.
func (in Instruction) Units() uint64 {
	if in.Op.Foldable() {
		return uint64(in.Count)
	}
	return 1
}

func (in Instruction) String() string {
	if in.Op.Foldable() {
		return fmt.Sprintf("%s(%d)", in.Op, in.Count)
	}
	return in.Op.String()
}

var (
	ErrEmptyTape    = errors.New("tape length must be positive")
	ErrPointerRange = errors.New("start pointer outside tape")
)

var log = commonlog.GetLogger("gobf.cpu")

type CPU struct {
	Tape    []byte
	Pointer int
	PC      int

	// Executed counts primitive operations, so a folded ADD 5 adds 5.
	Executed uint64

	Halted bool

	// Fingerprint identifies the loaded program in snapshots.
	Fingerprint []byte

	// Input feeds IN instructions. If nil, os.Stdin is used.
	Input io.Reader
	// Output receives OUT instructions. If nil, os.Stdout is used.
	Output io.Writer

	// Log receives non-fatal I/O diagnostics. If nil, the package logger is used.
	Log commonlog.Logger

	program []Instruction
	jumps   []int
	loaded  bool
	readBuf [1]byte
	outBuf  [utf8.UTFMax]byte
}

// NewCPU creates a CPU with a zeroed tape of tapeLen cells.
func NewCPU(tapeLen int) *CPU {
	if tapeLen <= 0 {
		tapeLen = DefaultMemory
	}
	return &CPU{Tape: make([]byte, tapeLen)}
}

func (c *CPU) inputSource() io.Reader {
	if c.Input != nil {
		return c.Input
	}
	return os.Stdin
}

func (c *CPU) outputSink() io.Writer {
	if c.Output != nil {
		return c.Output
	}
	return os.Stdout
}

func (c *CPU) logger() commonlog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return log
}

// Load resolves loop targets for prog and resets the program counter.
// A malformed program is rejected before anything is loaded.
func (c *CPU) Load(prog []Instruction) error {
	jumps, err := ResolveJumps(prog)
	if err != nil {
		return err
	}
	c.program = prog
	c.jumps = jumps
	c.loaded = true
	c.PC = 0
	c.Halted = len(prog) == 0
	return nil
}

// Program returns the loaded instruction sequence.
func (c *CPU) Program() []Instruction {
	return c.program
}

// Next returns the instruction the next Step will execute.
func (c *CPU) Next() (Instruction, bool) {
	if c.Halted || c.PC >= len(c.program) {
		return Instruction{}, false
	}
	return c.program[c.PC], true
}

func (c *CPU) readByte() {
	_, err := io.ReadFull(c.inputSource(), c.readBuf[:])
	if err == nil {
		c.Tape[c.Pointer] = c.readBuf[0]
		return
	}
	if errors.Is(err, io.EOF) {
		c.logger().Warningf("read at pc %d: end of input, cell %d left at %d", c.PC, c.Pointer, c.Tape[c.Pointer])
		return
	}
	c.logger().Warningf("read at pc %d: %s", c.PC, err)
}

func (c *CPU) writeByte() {
	n := utf8.EncodeRune(c.outBuf[:], rune(c.Tape[c.Pointer]))
	if _, err := c.outputSink().Write(c.outBuf[:n]); err != nil {
		c.logger().Warningf("write at pc %d: %s", c.PC, err)
	}
}

func (c *CPU) Step() {
	if c.Halted {
		return
	}
	if c.PC >= len(c.program) {
		c.Halted = true
		return
	}

	instr := c.program[c.PC]
	size := len(c.Tape)

	switch instr.Op {
	case OpRight:
		c.Pointer = (c.Pointer + int(uint64(instr.Count)%uint64(size))) % size

	case OpLeft:
		c.Pointer = (c.Pointer + size - int(uint64(instr.Count)%uint64(size))) % size

	case OpInc:
		c.Tape[c.Pointer] += byte(instr.Count)

	case OpDec:
		c.Tape[c.Pointer] -= byte(instr.Count)

	case OpClear:
		c.Tape[c.Pointer] = 0

	case OpLoopBegin:
		if c.Tape[c.Pointer] == 0 {
			c.PC = c.jumps[c.PC]
		}

	case OpLoopEnd:
		if c.Tape[c.Pointer] != 0 {
			c.PC = c.jumps[c.PC]
		}

	case OpRead:
		c.readByte()

	case OpWrite:
		c.writeByte()
	}

	c.Executed += instr.Units()
	c.PC++
	if c.PC >= len(c.program) {
		c.Halted = true
	}
}

// Run steps until the program counter leaves the program.
func (c *CPU) Run() {
	for !c.Halted {
		c.Step()
	}
}

// Execute resolves loop targets for prog and runs it against tape starting
// at start. tape is mutated in place. It returns the number of primitive
// operations executed and the final pointer.
func Execute(prog []Instruction, tape []byte, start int, in io.Reader, out io.Writer) (uint64, int, error) {
	if len(tape) == 0 {
		return 0, 0, ErrEmptyTape
	}
	if start < 0 || start >= len(tape) {
		return 0, start, fmt.Errorf("%w: %d not in [0, %d)", ErrPointerRange, start, len(tape))
	}

	c := &CPU{Tape: tape, Pointer: start, Input: in, Output: out}
	if err := c.Load(prog); err != nil {
		return 0, start, err
	}
	c.Run()
	return c.Executed, c.Pointer, nil
}
