package marker

import (
	"math"
	"sort"

	"github.com/quadrant-vision/marker.report/internal/config"
)

// ExtractorConfig holds the geometry-extraction tuning parameters.
type ExtractorConfig struct {
	MinCandidateArea    float64 // px², reject smaller quads
	MinCornerSeparation float64 // px, reject degenerate quads
	MaxEdgeRatio        float64 // longest/shortest edge bound
	ThresholdWindowFrac float64 // adaptive window as fraction of min(W,H)
	ThresholdOffset     float64 // subtracted from the local mean
	ApproxEpsilonFrac   float64 // polygon epsilon as fraction of perimeter
	MaxCandidates       int     // per-frame cap, largest areas win
}

// ExtractorConfigFromTuning builds an ExtractorConfig from a loaded
// TuningConfig. Use this in production code where the TuningConfig is
// already loaded.
func ExtractorConfigFromTuning(cfg *config.TuningConfig) ExtractorConfig {
	return ExtractorConfig{
		MinCandidateArea:    cfg.GetMinCandidateArea(),
		MinCornerSeparation: cfg.GetMinCornerSeparation(),
		MaxEdgeRatio:        cfg.GetMaxEdgeRatio(),
		ThresholdWindowFrac: cfg.GetThresholdWindowFrac(),
		ThresholdOffset:     cfg.GetThresholdOffset(),
		ApproxEpsilonFrac:   cfg.GetApproxEpsilonFrac(),
		MaxCandidates:       cfg.GetMaxCandidatesPerFrame(),
	}
}

// DefaultExtractorConfig returns the extractor defaults.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfigFromTuning(config.EmptyTuningConfig())
}

// QuadExtractor finds candidate marker boundaries in a frame: dark,
// sufficiently large, convex quadrilateral contours. It holds only
// configuration, so one instance may serve successive frames.
type QuadExtractor struct {
	cfg ExtractorConfig
}

// NewQuadExtractor creates a QuadExtractor with the given configuration.
func NewQuadExtractor(cfg ExtractorConfig) *QuadExtractor {
	return &QuadExtractor{cfg: cfg}
}

// Extract returns zero or more candidate quads from the frame. Output
// order is unspecified beyond the largest-area cap; the resolver handles
// duplicates downstream. An unreadable frame yields an empty slice,
// never an error.
func (e *QuadExtractor) Extract(f *Frame) []Quad {
	if !f.Valid() {
		return nil
	}

	binary := adaptiveThreshold(f, e.cfg.ThresholdWindowFrac, e.cfg.ThresholdOffset)
	contours := traceContours(binary, f.Width, f.Height)
	tracef("[Extractor] %d dark contours in %dx%d frame", len(contours), f.Width, f.Height)

	minPerimeter := 4 * math.Sqrt(e.cfg.MinCandidateArea)
	quads := make([]Quad, 0, 8)
	for _, contour := range contours {
		q, ok := e.quadFromContour(contour, minPerimeter)
		if !ok {
			continue
		}
		quads = append(quads, q)
	}

	if len(quads) > e.cfg.MaxCandidates {
		sort.Slice(quads, func(i, j int) bool { return quads[i].Area() > quads[j].Area() })
		quads = quads[:e.cfg.MaxCandidates]
	}
	return quads
}

// quadFromContour approximates a traced boundary to a polygon and applies
// the candidate filters: four corners, convex, large enough, corners well
// separated, edges not wildly unequal.
func (e *QuadExtractor) quadFromContour(contour []Point2, minPerimeter float64) (Quad, bool) {
	perimeter := contourPerimeter(contour)
	if perimeter < minPerimeter {
		return Quad{}, false
	}

	epsilon := e.cfg.ApproxEpsilonFrac * perimeter
	vertexIdx := approxPolyClosed(contour, epsilon)
	if len(vertexIdx) != 4 {
		return Quad{}, false
	}

	var q Quad
	for i, idx := range vertexIdx {
		q.Corners[i] = contour[idx]
	}

	if !q.IsConvex() {
		return Quad{}, false
	}
	if q.Area() < e.cfg.MinCandidateArea {
		return Quad{}, false
	}
	if q.MinCornerSeparation() < e.cfg.MinCornerSeparation {
		return Quad{}, false
	}
	if q.EdgeRatio() > e.cfg.MaxEdgeRatio {
		return Quad{}, false
	}

	refineCorners(&q, contour, vertexIdx)
	q.NormalizeWinding()
	return q, true
}

// adaptiveThreshold binarises the frame against a local mean computed
// with an integral image. True marks dark (foreground) pixels — marker
// borders are black ink.
func adaptiveThreshold(f *Frame, windowFrac, offset float64) []bool {
	w, h := f.Width, f.Height

	// Integral image with a zero row/column of padding.
	integral := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(f.Pix[y*w+x])
			integral[(y+1)*(w+1)+(x+1)] = integral[y*(w+1)+(x+1)] + rowSum
		}
	}

	minDim := w
	if h < minDim {
		minDim = h
	}
	half := int(windowFrac * float64(minDim) / 2)
	if half < 1 {
		half = 1
	}

	binary := make([]bool, w*h)
	for y := 0; y < h; y++ {
		y0 := y - half
		y1 := y + half + 1
		if y0 < 0 {
			y0 = 0
		}
		if y1 > h {
			y1 = h
		}
		for x := 0; x < w; x++ {
			x0 := x - half
			x1 := x + half + 1
			if x0 < 0 {
				x0 = 0
			}
			if x1 > w {
				x1 = w
			}
			area := int64((y1 - y0) * (x1 - x0))
			sum := integral[y1*(w+1)+x1] - integral[y0*(w+1)+x1] -
				integral[y1*(w+1)+x0] + integral[y0*(w+1)+x0]
			mean := float64(sum) / float64(area)
			binary[y*w+x] = float64(f.Pix[y*w+x]) < mean-offset
		}
	}
	return binary
}

// minComponentPixels filters out speckle components before the expensive
// boundary trace.
const minComponentPixels = 16

// clockwise 8-neighbour offsets in +Y-down image coordinates:
// E, SE, S, SW, W, NW, N, NE.
var mooreOffsets = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}

// traceContours labels 8-connected dark components and traces the outer
// boundary of each with Moore neighbour tracing. Only the outer boundary
// matters here: a marker's border ring is one dark component whose outer
// boundary is the marker's outline.
func traceContours(binary []bool, w, h int) [][]Point2 {
	labels := make([]int32, w*h)
	var contours [][]Point2
	next := int32(1)
	queue := make([]int, 0, 256)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if !binary[idx] || labels[idx] != 0 {
				continue
			}

			// Flood-fill the component (8-connectivity). The scan order
			// guarantees (x, y) is the component's topmost-leftmost
			// pixel, which is the canonical Moore trace start.
			label := next
			next++
			labels[idx] = label
			queue = queue[:0]
			queue = append(queue, idx)
			count := 0
			for len(queue) > 0 {
				p := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				count++
				px, py := p%w, p/w
				for _, off := range mooreOffsets {
					nx, ny := px+off[0], py+off[1]
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					nIdx := ny*w + nx
					if binary[nIdx] && labels[nIdx] == 0 {
						labels[nIdx] = label
						queue = append(queue, nIdx)
					}
				}
			}
			if count < minComponentPixels {
				continue
			}

			contour := mooreTrace(binary, w, h, x, y)
			if len(contour) >= 4 {
				contours = append(contours, contour)
			}
		}
	}
	return contours
}

// mooreTrace follows the outer boundary of the component containing the
// start pixel (which must be its topmost-leftmost pixel) clockwise.
func mooreTrace(binary []bool, w, h, startX, startY int) []Point2 {
	isSet := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < w && y < h && binary[y*w+x]
	}

	contour := []Point2{{float64(startX), float64(startY)}}
	curX, curY := startX, startY
	// Backtrack starts west of the start pixel: everything above and to
	// the left of a topmost-leftmost pixel is background.
	backtrack := 4 // index of W in mooreOffsets

	maxSteps := 4 * (w + h) * 4
	if maxSteps < 64 {
		maxSteps = 64
	}
	for step := 0; step < maxSteps; step++ {
		found := -1
		// Scan neighbours clockwise starting just past the backtrack.
		for i := 1; i <= 8; i++ {
			dir := (backtrack + i) % 8
			nx, ny := curX+mooreOffsets[dir][0], curY+mooreOffsets[dir][1]
			if isSet(nx, ny) {
				found = dir
				break
			}
		}
		if found == -1 {
			// Isolated pixel.
			return contour
		}

		nextX := curX + mooreOffsets[found][0]
		nextY := curY + mooreOffsets[found][1]

		// Closed: back at the start heading into the same first move.
		if nextX == startX && nextY == startY {
			return contour
		}

		contour = append(contour, Point2{float64(nextX), float64(nextY)})
		// New backtrack points from the new pixel towards the previous one.
		backtrack = (found + 4) % 8
		curX, curY = nextX, nextY
	}
	return contour
}

func contourPerimeter(contour []Point2) float64 {
	var sum float64
	for i := range contour {
		sum += contour[i].Dist(contour[(i+1)%len(contour)])
	}
	return sum
}

// approxPolyClosed runs Douglas–Peucker on a closed contour and returns
// the vertex indices in contour order. The contour is split at two anchor
// points (index 0 and the point farthest from it) so the closed curve can
// be approximated as two open chains.
func approxPolyClosed(contour []Point2, epsilon float64) []int {
	n := len(contour)
	if n < 4 {
		return nil
	}

	far := 0
	bestDist := 0.0
	for i := 1; i < n; i++ {
		if d := contour[0].Dist(contour[i]); d > bestDist {
			bestDist = d
			far = i
		}
	}
	if far == 0 {
		return nil
	}

	keep := map[int]bool{0: true, far: true}
	douglasPeucker(contour, 0, far, epsilon, keep)
	douglasPeuckerWrapped(contour, far, n, epsilon, keep)

	out := make([]int, 0, len(keep))
	for idx := range keep {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// douglasPeucker simplifies contour[start..end] (both kept) in place into
// the keep set.
func douglasPeucker(contour []Point2, start, end int, epsilon float64, keep map[int]bool) {
	if end-start < 2 {
		return
	}
	farthest := -1
	maxDist := 0.0
	for i := start + 1; i < end; i++ {
		if d := perpendicularDistance(contour[i], contour[start], contour[end]); d > maxDist {
			maxDist = d
			farthest = i
		}
	}
	if farthest >= 0 && maxDist > epsilon {
		keep[farthest] = true
		douglasPeucker(contour, start, farthest, epsilon, keep)
		douglasPeucker(contour, farthest, end, epsilon, keep)
	}
}

// douglasPeuckerWrapped handles the chain from index start back around to
// index 0 (i.e. indices start..n-1 followed by 0).
func douglasPeuckerWrapped(contour []Point2, start, n int, epsilon float64, keep map[int]bool) {
	farthest := -1
	maxDist := 0.0
	for i := start + 1; i < n; i++ {
		if d := perpendicularDistance(contour[i], contour[start], contour[0]); d > maxDist {
			maxDist = d
			farthest = i
		}
	}
	if farthest >= 0 && maxDist > epsilon {
		keep[farthest] = true
		douglasPeucker(contour, start, farthest, epsilon, keep)
		douglasPeuckerWrapped(contour, farthest, n, epsilon, keep)
	}
}

func perpendicularDistance(p, a, b Point2) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	length := math.Sqrt(dx*dx + dy*dy)
	if length == 0 {
		return p.Dist(a)
	}
	return math.Abs(dx*(a.Y-p.Y)-(a.X-p.X)*dy) / length
}

// refineCorners sharpens each quad corner to subpixel precision by
// fitting a total-least-squares line to the contour run along each edge
// (trimming the pixelated ends) and intersecting adjacent edge lines.
// Refinement is skipped for any corner where the fit is unstable or the
// refined position strays far from the traced one.
func refineCorners(q *Quad, contour []Point2, vertexIdx []int) {
	n := len(contour)
	type line struct {
		px, py, dx, dy float64
		ok             bool
	}
	lines := make([]line, 4)

	for i := 0; i < 4; i++ {
		start := vertexIdx[i]
		end := vertexIdx[(i+1)%4]
		segLen := end - start
		if segLen < 0 {
			segLen += n
		}
		trim := segLen / 5
		if trim < 2 {
			trim = 2
		}
		if segLen-2*trim < 4 {
			continue
		}

		var sx, sy float64
		count := 0
		for k := trim; k <= segLen-trim; k++ {
			p := contour[(start+k)%n]
			sx += p.X
			sy += p.Y
			count++
		}
		mx, my := sx/float64(count), sy/float64(count)

		var sxx, sxy, syy float64
		for k := trim; k <= segLen-trim; k++ {
			p := contour[(start+k)%n]
			dx, dy := p.X-mx, p.Y-my
			sxx += dx * dx
			sxy += dx * dy
			syy += dy * dy
		}

		// Principal direction of the 2×2 covariance matrix.
		theta := 0.5 * math.Atan2(2*sxy, sxx-syy)
		lines[i] = line{px: mx, py: my, dx: math.Cos(theta), dy: math.Sin(theta), ok: true}
	}

	// maxRefineShift bounds how far a fitted intersection may move a
	// corner before we distrust the fit and keep the traced position.
	const maxRefineShift = 5.0

	for i := 0; i < 4; i++ {
		// Corner i+1 of the ring joins edge i and edge i+1.
		la := lines[i]
		lb := lines[(i+1)%4]
		if !la.ok || !lb.ok {
			continue
		}
		denom := la.dx*lb.dy - la.dy*lb.dx
		if math.Abs(denom) < 1e-9 {
			continue
		}
		t := ((lb.px-la.px)*lb.dy - (lb.py-la.py)*lb.dx) / denom
		refined := Point2{la.px + t*la.dx, la.py + t*la.dy}

		cornerIdx := (i + 1) % 4
		if refined.Dist(q.Corners[cornerIdx]) <= maxRefineShift {
			q.Corners[cornerIdx] = refined
		}
	}
}
