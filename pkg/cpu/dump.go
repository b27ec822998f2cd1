package cpu

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"gobf/pkg/grid"
)

// DumpWidth is the number of cells shown per memory dump row.
const DumpWidth = 16

// rowPrefix is the width of the "OFFSET  " column.
const rowPrefix = 10

// DumpMemory writes a hex and ASCII listing of tape, 16 cells per row. The row
// holding pointer is followed by a caret line marking the pointer's cell.
func DumpMemory(w io.Writer, tape []byte, pointer int) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "pointer 0x%08X (%d) of %d cells\n", pointer, pointer, len(tape))

	var row strings.Builder
	for start := 0; start < len(tape); start += DumpWidth {
		end := min(start+DumpWidth, len(tape))
		cells := tape[start:end]

		row.Reset()
		fmt.Fprintf(&row, "%08X  ", start)
		for i := 0; i < DumpWidth; i++ {
			if i == DumpWidth/2 {
				row.WriteByte(' ')
			}
			if i < len(cells) {
				fmt.Fprintf(&row, "%02X ", cells[i])
			} else {
				row.WriteString("   ")
			}
		}
		row.WriteString(" |")
		for _, b := range cells {
			row.WriteByte(printable(b))
		}
		row.WriteString("|\n")
		bw.WriteString(row.String())

		if pointer >= 0 && pointer < end && grid.RowStart(pointer, DumpWidth) == start {
			col, _ := grid.GetGridCoords(pointer, DumpWidth)
			pad := rowPrefix + col*3
			if col >= DumpWidth/2 {
				pad++
			}
			bw.WriteString(strings.Repeat(" ", pad) + "^^\n")
		}
	}
	return bw.Flush()
}

func printable(b byte) byte {
	if b >= 0x20 && b < 0x7F {
		return b
	}
	return '.'
}

// DumpMemory writes the CPU's tape with its current pointer.
func (c *CPU) DumpMemory(w io.Writer) error {
	return DumpMemory(w, c.Tape, c.Pointer)
}
