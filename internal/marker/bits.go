package marker

import (
	"fmt"
	"math/bits"
	"strings"
)

// BitGrid is an N×N marker code with cells packed into a uint64.
// Bit r*N+c is set when cell (row r, column c) is black. N is at most 8,
// so every supported code fits one word and Hamming distances reduce to a
// single popcount.
type BitGrid struct {
	N    int
	Code uint64
}

// NewBitGrid returns an empty N×N grid.
func NewBitGrid(n int) BitGrid {
	return BitGrid{N: n}
}

// Get reports whether cell (r, c) is black.
func (g BitGrid) Get(r, c int) bool {
	return g.Code&(1<<uint(r*g.N+c)) != 0
}

// Set marks cell (r, c) black (v=true) or white (v=false).
func (g *BitGrid) Set(r, c int, v bool) {
	mask := uint64(1) << uint(r*g.N+c)
	if v {
		g.Code |= mask
	} else {
		g.Code &^= mask
	}
}

// OnesCount returns the number of black cells.
func (g BitGrid) OnesCount() int {
	return bits.OnesCount64(g.Code)
}

// Hamming returns the number of differing cells between g and other.
// Both grids must have the same N.
func (g BitGrid) Hamming(other BitGrid) int {
	return bits.OnesCount64(g.Code ^ other.Code)
}

// Rotate90 returns the grid rotated 90° clockwise: the top row of the
// input becomes the right column of the output.
func (g BitGrid) Rotate90() BitGrid {
	out := NewBitGrid(g.N)
	for r := 0; r < g.N; r++ {
		for c := 0; c < g.N; c++ {
			if g.Get(r, c) {
				out.Set(c, g.N-1-r, true)
			}
		}
	}
	return out
}

// Rotations returns the four rotations of g, index 0 being g itself and
// index k being k quarter-turns clockwise.
func (g BitGrid) Rotations() [4]BitGrid {
	var out [4]BitGrid
	out[0] = g
	for i := 1; i < 4; i++ {
		out[i] = out[i-1].Rotate90()
	}
	return out
}

// FlipBits returns a copy of g with the bits at the given cell indices
// (r*N+c) inverted. Used by tests to inject decode errors.
func (g BitGrid) FlipBits(cellIdx ...int) BitGrid {
	out := g
	for _, idx := range cellIdx {
		out.Code ^= 1 << uint(idx)
	}
	return out
}

// String renders the grid as rows of '1' (black) and '0' (white),
// matching the marker-set file notation.
func (g BitGrid) String() string {
	var sb strings.Builder
	for r := 0; r < g.N; r++ {
		if r > 0 {
			sb.WriteByte(' ')
		}
		for c := 0; c < g.N; c++ {
			if g.Get(r, c) {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
	}
	return sb.String()
}

// ParseBitGrid parses the String() representation: N space-separated rows
// of N '0'/'1' characters.
func ParseBitGrid(s string) (BitGrid, error) {
	rows := strings.Fields(s)
	n := len(rows)
	if n == 0 {
		return BitGrid{}, fmt.Errorf("empty bit grid")
	}
	if n > 8 {
		return BitGrid{}, fmt.Errorf("bit grid too large: %d rows (max 8)", n)
	}
	g := NewBitGrid(n)
	for r, row := range rows {
		if len(row) != n {
			return BitGrid{}, fmt.Errorf("row %d has %d cells, want %d", r, len(row), n)
		}
		for c := 0; c < n; c++ {
			switch row[c] {
			case '1':
				g.Set(r, c, true)
			case '0':
			default:
				return BitGrid{}, fmt.Errorf("row %d: invalid cell %q", r, row[c])
			}
		}
	}
	return g, nil
}
