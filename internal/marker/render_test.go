package marker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderMarkerDimensionsAndBorder(t *testing.T) {
	code := NewBitGrid(6)
	code.Set(0, 0, true)

	img := RenderMarker(code, 1, 4, 1)
	// (6 interior + 2 border + 2 quiet) cells at 4 px.
	require.Equal(t, 40, img.Bounds().Dx())
	require.Equal(t, 40, img.Bounds().Dy())

	// Quiet zone is white, border ring is black.
	require.EqualValues(t, 255, img.Pix[2*img.Stride+2])
	require.EqualValues(t, 0, img.Pix[6*img.Stride+6])

	// Interior cell (0,0) is black, its neighbour (0,1) white.
	require.EqualValues(t, 0, img.Pix[9*img.Stride+9])
	require.EqualValues(t, 255, img.Pix[9*img.Stride+13])
}

func TestRenderSheetLayout(t *testing.T) {
	codes, err := GenerateStandardCodes(6, 5, 3, 7, nil)
	require.NoError(t, err)

	sheet, err := RenderSheet(codes, 1, 2, 1, 2)
	require.NoError(t, err)

	tile := (6 + 2 + 2) * 2
	require.Equal(t, 2*tile, sheet.Bounds().Dx(), "two columns")
	require.Equal(t, 3*tile, sheet.Bounds().Dy(), "five markers wrap to three rows")
}

func TestRenderSheetErrors(t *testing.T) {
	_, err := RenderSheet(nil, 1, 4, 1, 2)
	require.Error(t, err)

	_, err = RenderSheet([]BitGrid{NewBitGrid(6), NewBitGrid(5)}, 1, 4, 1, 2)
	require.Error(t, err)
}

func TestStampMarkerRoundTripsThroughDecode(t *testing.T) {
	dict, err := BuildDictionary(testDictConfig(nil))
	require.NoError(t, err)
	entry := dict.Entries()[44]

	f := whiteFrame(200, 200)
	StampMarker(f, entry.Code, 1, 30, 30, 16)

	dec := NewDecoder(dict, 1, 3)
	det, ok := dec.Decode(f, stampedQuad(30, 30, 8, 16), testCaptureTime)
	require.True(t, ok)
	require.Equal(t, entry.ID, det.ID)
}

func TestStampMarkerClipsAtFrameEdge(t *testing.T) {
	f := whiteFrame(50, 50)
	// Stamp partially off-frame; must not panic and must paint the
	// visible part.
	StampMarker(f, NewBitGrid(6), 1, -20, -20, 8)
	// Cell (7,7) of the border ring spans pixels 36..43 in both axes.
	require.EqualValues(t, 0, f.Pix[40*f.Width+40], "visible border corner painted black")
	// The clipped interior of the empty code stays white.
	require.EqualValues(t, 255, f.Pix[0*f.Width+0])
}
