package grid

import "testing"

func TestGetGridCoords(t *testing.T) {
	tests := []struct {
		index int
		cols  int
		wantX int
		wantY int
	}{
		// 16 cols (memory dump rows)
		{0, 16, 0, 0},
		{15, 16, 15, 0},
		{16, 16, 0, 1},
		{29999, 16, 15, 1874},

		// 32 cols (desktop tape window)
		{0, 32, 0, 0},
		{31, 32, 31, 0},
		{32, 32, 0, 1},
		{63, 32, 31, 1},
		{1023, 32, 31, 31},
	}

	for _, tc := range tests {
		gotX, gotY := GetGridCoords(tc.index, tc.cols)
		if gotX != tc.wantX || gotY != tc.wantY {
			t.Errorf("GetGridCoords(%d, %d) = (%d, %d); want (%d, %d)", tc.index, tc.cols, gotX, gotY, tc.wantX, tc.wantY)
		}
	}
}

func TestRowStart(t *testing.T) {
	tests := []struct {
		index, cols, want int
	}{
		{0, 16, 0},
		{15, 16, 0},
		{16, 16, 16},
		{37, 16, 32},
		{29999, 16, 29984},
	}
	for _, tc := range tests {
		if got := RowStart(tc.index, tc.cols); got != tc.want {
			t.Errorf("RowStart(%d, %d) = %d; want %d", tc.index, tc.cols, got, tc.want)
		}
	}
}
