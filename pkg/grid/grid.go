package grid

// GetGridCoords maps a linear index onto a grid that is cols cells wide.
func GetGridCoords(index, cols int) (x, y int) {
	return index % cols, index / cols
}

// RowStart returns the index of the first cell in the row holding index.
func RowStart(index, cols int) int {
	return index - index%cols
}
