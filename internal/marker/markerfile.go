package marker

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Custom marker-set file format. One marker per line:
//
//	ID: r0 r1 r2 r3 r4 r5 r6 r7
//
// where each row is total-width characters of '1' (black) and '0'
// (white), total = interior grid plus the border ring on each side. The
// border cells are written out so the file is a faithful picture of the
// printed marker, but they must all be '1'; only the interior carries
// identity. Blank lines and lines starting with '#' are skipped.

// MarkerSet is a parsed custom marker file: ID → interior code.
type MarkerSet struct {
	GridSize    int
	BorderCells int
	Codes       map[int]BitGrid
}

// LoadMarkerSet reads a custom marker file. An absent file is not an
// error: running with only the standard dictionary is the common case,
// so a missing path yields an empty set.
func LoadMarkerSet(path string, gridSize, borderCells int) (*MarkerSet, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		diagf("[MarkerSet] no custom marker file at %s", path)
		return &MarkerSet{GridSize: gridSize, BorderCells: borderCells, Codes: map[int]BitGrid{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening marker file: %w", err)
	}
	defer f.Close()

	set, err := ParseMarkerSet(f, gridSize, borderCells)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	opsf("[MarkerSet] loaded %d custom markers from %s", len(set.Codes), path)
	return set, nil
}

// ParseMarkerSet parses marker definitions from a reader.
func ParseMarkerSet(r io.Reader, gridSize, borderCells int) (*MarkerSet, error) {
	total := gridSize + 2*borderCells
	set := &MarkerSet{GridSize: gridSize, BorderCells: borderCells, Codes: map[int]BitGrid{}}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idPart, rowPart, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("line %d: missing ':' separator", lineNo)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idPart))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid marker ID %q", lineNo, strings.TrimSpace(idPart))
		}
		if id < 0 {
			return nil, fmt.Errorf("line %d: marker ID %d is negative", lineNo, id)
		}
		if _, dup := set.Codes[id]; dup {
			return nil, fmt.Errorf("line %d: duplicate marker ID %d", lineNo, id)
		}

		rows := strings.Fields(rowPart)
		if len(rows) != total {
			return nil, fmt.Errorf("line %d: marker %d has %d rows, want %d", lineNo, id, len(rows), total)
		}

		code := NewBitGrid(gridSize)
		for r, row := range rows {
			if len(row) != total {
				return nil, fmt.Errorf("line %d: marker %d row %d has %d cells, want %d", lineNo, id, r, len(row), total)
			}
			for c := 0; c < total; c++ {
				var black bool
				switch row[c] {
				case '1':
					black = true
				case '0':
				default:
					return nil, fmt.Errorf("line %d: marker %d row %d: invalid cell %q", lineNo, id, r, row[c])
				}

				border := r < borderCells || r >= total-borderCells ||
					c < borderCells || c >= total-borderCells
				if border {
					if !black {
						return nil, fmt.Errorf("line %d: marker %d has a white border cell at (%d,%d)", lineNo, id, r, c)
					}
					continue
				}
				if black {
					code.Set(r-borderCells, c-borderCells, true)
				}
			}
		}
		set.Codes[id] = code
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading marker file: %w", err)
	}
	return set, nil
}

// WriteMarkerSet writes the set in the file format, IDs ascending.
func WriteMarkerSet(w io.Writer, set *MarkerSet) error {
	ids := make([]int, 0, len(set.Codes))
	for id := range set.Codes {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	bw := bufio.NewWriter(w)
	for _, id := range ids {
		if _, err := fmt.Fprintf(bw, "%d: %s\n", id, FormatMarkerRows(set.Codes[id], set.BorderCells)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveMarkerSet writes the set to a file, replacing any existing content.
func SaveMarkerSet(path string, set *MarkerSet) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating marker file: %w", err)
	}
	if err := WriteMarkerSet(f, set); err != nil {
		f.Close()
		return fmt.Errorf("writing marker file: %w", err)
	}
	return f.Close()
}

// FormatMarkerRows renders an interior code as the file notation with the
// border ring included: space-separated rows of '1'/'0'.
func FormatMarkerRows(code BitGrid, borderCells int) string {
	total := code.N + 2*borderCells
	var sb strings.Builder
	for r := 0; r < total; r++ {
		if r > 0 {
			sb.WriteByte(' ')
		}
		for c := 0; c < total; c++ {
			border := r < borderCells || r >= total-borderCells ||
				c < borderCells || c >= total-borderCells
			if border || code.Get(r-borderCells, c-borderCells) {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
	}
	return sb.String()
}
