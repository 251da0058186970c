package marker

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// minCellContrast is the minimum spread between the darkest and brightest
// sampled cell means. Below this the candidate is a flat patch (wall,
// paper edge) and classification would amplify sensor noise.
const minCellContrast = 25.0

// Detection is one decoded marker occurrence in a single frame. It is not
// persisted beyond same-frame resolution; the tracking window keeps only
// {ID, last seen}.
type Detection struct {
	ID         int
	Source     CodeSource
	Rotation   int // quarter-turns clockwise from sampled to canonical orientation
	BitErrors  int // Hamming distance of the accepted match (decode confidence)
	Quad       Quad
	CapturedAt time.Time
}

// Decoder perspective-samples candidate quads into bit grids and matches
// them against a shared Dictionary. A Decoder holds no mutable state, so
// one instance may decode candidates from multiple goroutines.
type Decoder struct {
	dict        *Dictionary
	borderCells int
	subsamples  int
}

// NewDecoder creates a Decoder over the given dictionary.
func NewDecoder(dict *Dictionary, borderCells, subsamples int) *Decoder {
	if borderCells < 1 {
		borderCells = 1
	}
	if subsamples < 1 {
		subsamples = 1
	}
	return &Decoder{dict: dict, borderCells: borderCells, subsamples: subsamples}
}

// Decode samples the quad's interior and matches it against the
// dictionary. The boolean result distinguishes "no marker here" (the
// normal outcome for non-marker quads: bad homography, missing border,
// low contrast, or no dictionary entry within the error budget) from a
// successful detection. It never returns errors — candidate-level
// failures degrade to a non-match.
func (dec *Decoder) Decode(f *Frame, q Quad, capturedAt time.Time) (Detection, bool) {
	means, err := dec.sampleCells(f, q)
	if err != nil {
		tracef("[Codec] candidate at %.1f,%.1f rejected: %v", q.Center().X, q.Center().Y, err)
		return Detection{}, false
	}

	threshold, ok := classifyThreshold(means)
	if !ok {
		tracef("[Codec] candidate at %.1f,%.1f rejected: insufficient contrast", q.Center().X, q.Center().Y)
		return Detection{}, false
	}

	total := dec.dict.N() + 2*dec.borderCells
	// Border ring must classify black everywhere; a single white border
	// cell means this is not a marker boundary.
	for r := 0; r < total; r++ {
		for c := 0; c < total; c++ {
			if r >= dec.borderCells && r < total-dec.borderCells &&
				c >= dec.borderCells && c < total-dec.borderCells {
				continue
			}
			if means[r][c] >= threshold {
				tracef("[Codec] candidate at %.1f,%.1f rejected: white border cell (%d,%d)",
					q.Center().X, q.Center().Y, r, c)
				return Detection{}, false
			}
		}
	}

	// Interior cells → bit grid. Black (below threshold) is a set bit.
	n := dec.dict.N()
	sample := NewBitGrid(n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if means[r+dec.borderCells][c+dec.borderCells] < threshold {
				sample.Set(r, c, true)
			}
		}
	}

	match, ok := dec.dict.Match(sample)
	if !ok {
		tracef("[Codec] candidate at %.1f,%.1f: no dictionary match for %s",
			q.Center().X, q.Center().Y, sample.String())
		return Detection{}, false
	}

	return Detection{
		ID:         match.ID,
		Source:     match.Source,
		Rotation:   match.Rotation,
		BitErrors:  match.Distance,
		Quad:       q,
		CapturedAt: capturedAt,
	}, true
}

// sampleCells maps the full marker grid (interior plus border ring) onto
// the quad via a projective transform and returns the mean intensity of
// each cell. Each cell is sampled on a subsample grid confined to its
// central half, which tolerates mild corner error and cell bleed.
func (dec *Decoder) sampleCells(f *Frame, q Quad) ([][]float64, error) {
	h, err := homographyFromUnitSquare(q)
	if err != nil {
		return nil, err
	}

	total := dec.dict.N() + 2*dec.borderCells
	s := dec.subsamples
	means := make([][]float64, total)
	for r := 0; r < total; r++ {
		means[r] = make([]float64, total)
		for c := 0; c < total; c++ {
			var sum float64
			for i := 0; i < s; i++ {
				for j := 0; j < s; j++ {
					// Subsample positions span the central half of the cell.
					u := (float64(c) + 0.25 + 0.5*(float64(j)+0.5)/float64(s)) / float64(total)
					v := (float64(r) + 0.25 + 0.5*(float64(i)+0.5)/float64(s)) / float64(total)
					x, y := h.project(u, v)
					if x < -1 || y < -1 || x > float64(f.Width) || y > float64(f.Height) {
						return nil, fmt.Errorf("sample point (%.1f, %.1f) outside frame", x, y)
					}
					sum += f.Bilinear(x, y)
				}
			}
			means[r][c] = sum / float64(s*s)
		}
	}
	return means, nil
}

// homography is a projective transform from marker space (u, v) ∈ [0,1]²
// to image space, stored as the 8 DLT coefficients (h22 fixed to 1).
type homography struct {
	h [8]float64
}

func (h homography) project(u, v float64) (x, y float64) {
	w := h.h[6]*u + h.h[7]*v + 1
	x = (h.h[0]*u + h.h[1]*v + h.h[2]) / w
	y = (h.h[3]*u + h.h[4]*v + h.h[5]) / w
	return x, y
}

// homographyFromUnitSquare solves the 8×8 DLT system mapping the unit
// square (0,0)·(1,0)·(1,1)·(0,1) to the quad corners TL·TR·BR·BL.
// A degenerate quad yields a singular system and an error.
func homographyFromUnitSquare(q Quad) (homography, error) {
	src := [4][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		u, v := src[i][0], src[i][1]
		x, y := q.Corners[i].X, q.Corners[i].Y
		a.SetRow(2*i, []float64{u, v, 1, 0, 0, 0, -u * x, -v * x})
		a.SetRow(2*i+1, []float64{0, 0, 0, u, v, 1, -u * y, -v * y})
		b.SetVec(2*i, x)
		b.SetVec(2*i+1, y)
	}

	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		return homography{}, fmt.Errorf("degenerate quad: %w", err)
	}

	var h homography
	for i := 0; i < 8; i++ {
		h.h[i] = sol.AtVec(i)
	}
	return h, nil
}

// classifyThreshold picks the black/white split for the sampled cell means
// using Otsu's method over a 256-bin histogram, falling back to the
// intensity midpoint when the histogram is degenerate. The boolean result
// is false when the cells lack enough contrast to classify at all.
func classifyThreshold(means [][]float64) (float64, bool) {
	lo, hi := 255.0, 0.0
	var hist [256]int
	count := 0
	for _, row := range means {
		for _, m := range row {
			if m < lo {
				lo = m
			}
			if m > hi {
				hi = m
			}
			bin := int(m)
			if bin < 0 {
				bin = 0
			} else if bin > 255 {
				bin = 255
			}
			hist[bin]++
			count++
		}
	}
	if hi-lo < minCellContrast {
		return 0, false
	}

	// Otsu: maximise between-class variance. Every threshold inside the
	// gap between two well-separated clusters ties for the maximum, so
	// tied maxima are averaged to split mid-gap, which also maximises
	// the noise margin on both sides.
	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i) * float64(c)
	}
	var sumBg, wBg float64
	bestVar := -1.0
	bestTLow, bestTHigh := -1, -1
	for t := 0; t < 256; t++ {
		wBg += float64(hist[t])
		if wBg == 0 {
			continue
		}
		wFg := float64(count) - wBg
		if wFg == 0 {
			break
		}
		sumBg += float64(t) * float64(hist[t])
		meanBg := sumBg / wBg
		meanFg := (sumAll - sumBg) / wFg
		between := wBg * wFg * (meanBg - meanFg) * (meanBg - meanFg)
		if between > bestVar {
			bestVar = between
			bestTLow, bestTHigh = t, t
		} else if between == bestVar {
			bestTHigh = t
		}
	}
	if bestTLow < 0 {
		return (lo + hi) / 2, true
	}
	// Classification is strict-less-than black, so split just above the bin.
	return float64(bestTLow+bestTHigh)/2 + 0.5, true
}
