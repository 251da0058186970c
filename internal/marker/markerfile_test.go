package marker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMarkerSet(t *testing.T) {
	input := strings.Join([]string{
		"# test marker set",
		"",
		"3: 11111111 10101011 11010101 10110011 11001101 10101011 11010101 11111111",
		"17: 11111111 11100101 10011011 11010101 10101101 11011011 10100101 11111111",
	}, "\n")

	set, err := ParseMarkerSet(strings.NewReader(input), 6, 1)
	require.NoError(t, err)
	require.Len(t, set.Codes, 2)

	code, ok := set.Codes[3]
	require.True(t, ok)
	// Interior row 0 is file row 1 without its border columns.
	require.Equal(t, "010101", code.String()[:6])
}

func TestParseMarkerSetRejectsWhiteBorder(t *testing.T) {
	input := "1: 01111111 10101011 11010101 10110011 11001101 10101011 11010101 11111111"
	_, err := ParseMarkerSet(strings.NewReader(input), 6, 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "border")
}

func TestParseMarkerSetErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"no separator", "1 11111111"},
		{"bad id", "x: 11111111 11111111 11111111 11111111 11111111 11111111 11111111 11111111"},
		{"negative id", "-4: 11111111 11111111 11111111 11111111 11111111 11111111 11111111 11111111"},
		{"wrong row count", "1: 11111111 11111111"},
		{"wrong row width", "1: 111 11111111 11111111 11111111 11111111 11111111 11111111 11111111"},
		{"bad cell", "1: 11111111 11211111 11111111 11111111 11111111 11111111 11111111 11111111"},
		{
			"duplicate id",
			"3: 11111111 10101011 11010101 10110011 11001101 10101011 11010101 11111111\n" +
				"3: 11111111 10101011 11010101 10110011 11001101 10101011 11010101 11111111",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseMarkerSet(strings.NewReader(tc.in), 6, 1)
			require.Error(t, err)
		})
	}
}

func TestMarkerSetRoundTrip(t *testing.T) {
	codes, err := GenerateStandardCodes(6, 3, 11, 7, nil)
	require.NoError(t, err)
	set := &MarkerSet{
		GridSize:    6,
		BorderCells: 1,
		Codes:       map[int]BitGrid{2: codes[0], 40: codes[1], 7: codes[2]},
	}

	var sb strings.Builder
	require.NoError(t, WriteMarkerSet(&sb, set))

	// IDs come out ascending.
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "2: "))
	require.True(t, strings.HasPrefix(lines[1], "7: "))
	require.True(t, strings.HasPrefix(lines[2], "40: "))

	parsed, err := ParseMarkerSet(strings.NewReader(sb.String()), 6, 1)
	require.NoError(t, err)
	require.Equal(t, set.Codes, parsed.Codes)
}

func TestLoadMarkerSetMissingFile(t *testing.T) {
	set, err := LoadMarkerSet(filepath.Join(t.TempDir(), "nope.txt"), 6, 1)
	require.NoError(t, err, "a missing marker file means an empty custom set")
	require.Empty(t, set.Codes)
}

func TestSaveAndLoadMarkerSet(t *testing.T) {
	codes, err := GenerateStandardCodes(6, 1, 31, 7, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "markers.txt")
	set := &MarkerSet{GridSize: 6, BorderCells: 1, Codes: map[int]BitGrid{12: codes[0]}}
	require.NoError(t, SaveMarkerSet(path, set))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "12: 1"))

	loaded, err := LoadMarkerSet(path, 6, 1)
	require.NoError(t, err)
	require.Equal(t, set.Codes, loaded.Codes)
}

func TestFormatMarkerRows(t *testing.T) {
	code := NewBitGrid(2)
	code.Set(0, 0, true)

	// 2x2 interior with a 1-cell border: 4x4 raster, border all black.
	got := FormatMarkerRows(code, 1)
	require.Equal(t, "1111 1101 1001 1111", got)
}
