package main

import (
	"bytes"
	"flag"
	"fmt"
	"image/color"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/image/font/basicfont"

	"gobf/pkg/asm"
	"gobf/pkg/compiler"
	"gobf/pkg/cpu"
	"gobf/pkg/grid"
	"gobf/pkg/utils"
)

const (
	screenWidth  = 640
	screenHeight = 480

	cellWidth  = 36
	cellHeight = 18
	tapeTop    = 48
	tapeLeft   = 72
	tapeRows   = 12

	lineHeight  = 14
	outputLines = 10
)

var (
	face = text.NewGoXFace(basicfont.Face7x13)

	pointerColor = color.RGBA{0x30, 0x60, 0xC0, 0xFF}
	dimColor     = color.RGBA{0x80, 0x80, 0x80, 0xFF}
)

// keyBuffer queues typed bytes for IN instructions.
type keyBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (k *keyBuffer) Push(r rune) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.buf = utf8.AppendRune(k.buf, r)
}

func (k *keyBuffer) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buf)
}

func (k *keyBuffer) Read(p []byte) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, k.buf)
	k.buf = k.buf[n:]
	return n, nil
}

type Game struct {
	vm     *cpu.CPU
	keys   *keyBuffer
	output *bytes.Buffer
	budget int
}

// waitingForInput reports whether the next instruction would read from an
// empty key buffer.
func waitingForInput(vm *cpu.CPU, keys *keyBuffer) bool {
	next, ok := vm.Next()
	return ok && next.Op == cpu.OpRead && keys.Len() == 0
}

func (g *Game) Update() error {
	for _, r := range ebiten.AppendInputChars(nil) {
		g.keys.Push(r)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		g.keys.Push('\n')
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		g.keys.Push(8)
	}

	g.advance()
	return nil
}

// advance runs up to budget instructions, stopping early on halt or when the
// program needs a key that has not been typed yet.
func (g *Game) advance() {
	for i := 0; i < g.budget; i++ {
		if g.vm.Halted || waitingForInput(g.vm, g.keys) {
			return
		}
		g.vm.Step()
	}
}

func (g *Game) status() string {
	switch {
	case g.vm.Halted:
		return "halted"
	case waitingForInput(g.vm, g.keys):
		return "waiting for input"
	}
	return "running"
}

func drawText(screen *ebiten.Image, s string, x, y int, clr color.Color) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(float64(x), float64(y))
	op.ColorScale.ScaleWithColor(clr)
	op.LineSpacing = lineHeight
	text.Draw(screen, s, face, op)
}

func (g *Game) Draw(screen *ebiten.Image) {
	vm := g.vm
	drawText(screen, fmt.Sprintf("pc %d/%d  pointer %d  executed %s  [%s]",
		vm.PC, len(vm.Program()), vm.Pointer, humanize.Comma(int64(vm.Executed)), g.status()),
		8, 8, color.White)

	first := windowStart(vm.Pointer, len(vm.Tape), cpu.DumpWidth, tapeRows)
	for i := first; i < len(vm.Tape) && i < first+cpu.DumpWidth*tapeRows; i++ {
		col, row := grid.GetGridCoords(i-first, cpu.DumpWidth)
		x := tapeLeft + col*cellWidth
		y := tapeTop + row*cellHeight

		if col == 0 {
			drawText(screen, fmt.Sprintf("%06X", i), 8, y, dimColor)
		}
		if i == vm.Pointer {
			vector.DrawFilledRect(screen, float32(x-3), float32(y-2), cellWidth-4, cellHeight-2, pointerColor, false)
		}
		clr := color.Color(color.White)
		if vm.Tape[i] == 0 && i != vm.Pointer {
			clr = dimColor
		}
		drawText(screen, fmt.Sprintf("%02X", vm.Tape[i]), x, y, clr)
	}

	outTop := tapeTop + tapeRows*cellHeight + 16
	drawText(screen, "output:", 8, outTop, dimColor)
	drawText(screen, tailLines(g.output.String(), outputLines), 8, outTop+lineHeight+4, color.White)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

// windowStart returns the first cell of a rows-high window of width-cell rows
// that keeps pointer roughly centred without running past either end of the
// tape.
func windowStart(pointer, tapeLen, width, rows int) int {
	totalRows := (tapeLen + width - 1) / width
	if totalRows <= rows {
		return 0
	}
	start := grid.RowStart(pointer, width) - (rows/2)*width
	last := (totalRows - rows) * width
	return max(0, min(start, last))
}

// tailLines returns at most the last n lines of s.
func tailLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func loadProgram(path string, level int) ([]cpu.Instruction, error) {
	fullPath, _, err := utils.GetPathInfo(path)
	if err != nil {
		return nil, err
	}
	if utils.KindOf(fullPath) == utils.KindCompiled {
		data, err := os.ReadFile(fullPath)
		if err != nil {
			return nil, err
		}
		obj, err := compiler.DecodeObject(data)
		if err != nil {
			return nil, err
		}
		return obj.Instructions, nil
	}

	src, err := utils.ReadSource(fullPath)
	if err != nil {
		return nil, err
	}
	if utils.KindOf(fullPath) == utils.KindListing {
		prog, err := asm.Assemble(src)
		if err != nil {
			return nil, err
		}
		return compiler.Optimize(prog, level), nil
	}
	return compiler.Compile(src, level)
}

func newGame(prog []cpu.Instruction, memory, budget int) (*Game, error) {
	g := &Game{
		vm:     cpu.NewCPU(memory),
		keys:   &keyBuffer{},
		output: &bytes.Buffer{},
		budget: budget,
	}
	g.vm.Input = g.keys
	g.vm.Output = g.output
	if err := g.vm.Load(prog); err != nil {
		return nil, err
	}
	return g, nil
}

func main() {
	level := flag.Int("O", compiler.OptClear, "optimization level")
	memory := flag.Int("memory", cpu.DefaultMemory, "tape length in cells")
	budget := flag.Int("steps", 10000, "instructions executed per frame")
	flag.Parse()

	commonlog.Configure(0, nil)
	log := commonlog.GetLogger("gobf.desktop")

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: desktop [options] program.{bf,bfa,bfo}")
		flag.PrintDefaults()
		os.Exit(2)
	}

	prog, err := loadProgram(flag.Arg(0), *level)
	if err != nil {
		log.Errorf("Compilation failed: %s", err)
		os.Exit(1)
	}
	game, err := newGame(prog, *memory, *budget)
	if err != nil {
		log.Errorf("Invalid program: %s", err)
		os.Exit(1)
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("gobf tape viewer")

	if err := ebiten.RunGame(game); err != nil {
		log.Errorf("%s", err)
		os.Exit(1)
	}
}
