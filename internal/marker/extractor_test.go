package marker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func fillRect(f *Frame, x0, y0, w, h int, v uint8) {
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			if x >= 0 && y >= 0 && x < f.Width && y < f.Height {
				f.Pix[y*f.Width+x] = v
			}
		}
	}
}

// findQuadNear returns the extracted quad whose first corner is within
// tol of (x, y), if any.
func findQuadNear(quads []Quad, x, y, tol float64) (Quad, bool) {
	for _, q := range quads {
		if math.Abs(q.Corners[0].X-x) <= tol && math.Abs(q.Corners[0].Y-y) <= tol {
			return q, true
		}
	}
	return Quad{}, false
}

func TestExtractFindsMarkerOutline(t *testing.T) {
	dict, err := BuildDictionary(testDictConfig(nil))
	require.NoError(t, err)
	code := dict.Entries()[11].Code

	f := whiteFrame(200, 200)
	StampMarker(f, code, 1, 40, 40, 12)

	quads := NewQuadExtractor(DefaultExtractorConfig()).Extract(f)
	require.NotEmpty(t, quads, "marker outline should be found")

	// The outer boundary of the stamped marker: 8 cells of 12 px.
	q, ok := findQuadNear(quads, 40, 40, 2.5)
	require.True(t, ok, "no quad near the stamped marker outline, got %+v", quads)

	side := float64(8 * 12)
	require.InDelta(t, side*side, q.Area(), side*side*0.08, "area should match the stamp")
	require.True(t, q.IsConvex())

	want := [4]Point2{{40, 40}, {40 + side - 1, 40}, {40 + side - 1, 40 + side - 1}, {40, 40 + side - 1}}
	for i := range want {
		require.InDelta(t, want[i].X, q.Corners[i].X, 2.5, "corner %d x", i)
		require.InDelta(t, want[i].Y, q.Corners[i].Y, 2.5, "corner %d y", i)
	}
}

func TestExtractIgnoresSpeckle(t *testing.T) {
	f := whiteFrame(120, 120)
	fillRect(f, 30, 30, 3, 3, 0)
	fillRect(f, 70, 50, 2, 5, 0)

	quads := NewQuadExtractor(DefaultExtractorConfig()).Extract(f)
	require.Empty(t, quads, "speckle must not produce candidates")
}

func TestExtractRejectsSmallSquare(t *testing.T) {
	// A clean dark square below the minimum area.
	f := whiteFrame(120, 120)
	fillRect(f, 40, 40, 15, 15, 0)

	quads := NewQuadExtractor(DefaultExtractorConfig()).Extract(f)
	require.Empty(t, quads, "15x15 square is under the 400 px^2 floor")
}

func TestExtractAcceptsPlainSquare(t *testing.T) {
	f := whiteFrame(200, 200)
	fillRect(f, 50, 60, 60, 60, 0)

	quads := NewQuadExtractor(DefaultExtractorConfig()).Extract(f)
	require.Len(t, quads, 1)
	require.InDelta(t, 60*60, quads[0].Area(), 60*60*0.08)
}

func TestExtractRejectsElongatedRectangle(t *testing.T) {
	// 150x10: edge ratio 15, far beyond the default bound of 4.
	f := whiteFrame(240, 120)
	fillRect(f, 30, 50, 150, 10, 0)

	quads := NewQuadExtractor(DefaultExtractorConfig()).Extract(f)
	require.Empty(t, quads, "elongated bar must be filtered by edge ratio")
}

func TestExtractInvalidFrame(t *testing.T) {
	e := NewQuadExtractor(DefaultExtractorConfig())
	require.Empty(t, e.Extract(nil))
	require.Empty(t, e.Extract(&Frame{Width: 10, Height: 10}))
}

func TestExtractCapsCandidates(t *testing.T) {
	cfg := DefaultExtractorConfig()
	cfg.MaxCandidates = 2

	// Three well-separated squares, one larger than the others.
	f := whiteFrame(300, 120)
	fillRect(f, 10, 20, 40, 40, 0)
	fillRect(f, 110, 20, 60, 60, 0)
	fillRect(f, 230, 20, 40, 40, 0)

	quads := NewQuadExtractor(cfg).Extract(f)
	require.Len(t, quads, 2, "cap must limit candidates")
	require.Greater(t, quads[0].Area(), quads[1].Area()-1,
		"largest candidates survive the cap")
}

func TestAdaptiveThresholdMarksDark(t *testing.T) {
	f := whiteFrame(64, 64)
	fillRect(f, 20, 20, 16, 16, 0)

	binary := adaptiveThreshold(f, 0.25, 7)
	require.True(t, binary[28*64+28], "center of dark square is foreground")
	require.False(t, binary[5*64+5], "far white background is not foreground")
}

func TestApproxPolyClosedSquare(t *testing.T) {
	// A synthetic square contour, 40 px per side, traced clockwise.
	var contour []Point2
	for x := 0; x < 40; x++ {
		contour = append(contour, Point2{float64(x), 0})
	}
	for y := 0; y < 40; y++ {
		contour = append(contour, Point2{39, float64(y)})
	}
	for x := 39; x >= 0; x-- {
		contour = append(contour, Point2{float64(x), 39})
	}
	for y := 39; y > 0; y-- {
		contour = append(contour, Point2{0, float64(y)})
	}

	idx := approxPolyClosed(contour, 0.05*contourPerimeter(contour))
	require.Len(t, idx, 4, "square contour should simplify to 4 vertices")
}
