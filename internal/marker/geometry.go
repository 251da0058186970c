package marker

import "math"

// Point2 is a subpixel image coordinate.
type Point2 struct {
	X float64
	Y float64
}

// Sub returns p - q.
func (p Point2) Sub(q Point2) Point2 {
	return Point2{p.X - q.X, p.Y - q.Y}
}

// Dist returns the Euclidean distance between p and q.
func (p Point2) Dist(q Point2) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// cross returns the z-component of (b-a) × (c-a).
func cross(a, b, c Point2) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// Quad is a candidate marker boundary: four corners in clockwise order
// (image coordinates, +Y down) starting at the corner closest to the
// top-left. Quads are transient — they live only within one processing
// cycle.
type Quad struct {
	Corners [4]Point2
}

// Area returns the absolute area of the quad via the shoelace formula.
func (q Quad) Area() float64 {
	var sum float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		sum += q.Corners[i].X*q.Corners[j].Y - q.Corners[j].X*q.Corners[i].Y
	}
	return math.Abs(sum) / 2
}

// Perimeter returns the sum of the four edge lengths.
func (q Quad) Perimeter() float64 {
	var sum float64
	for i := 0; i < 4; i++ {
		sum += q.Corners[i].Dist(q.Corners[(i+1)%4])
	}
	return sum
}

// Center returns the centroid of the four corners.
func (q Quad) Center() Point2 {
	var cx, cy float64
	for _, p := range q.Corners {
		cx += p.X
		cy += p.Y
	}
	return Point2{cx / 4, cy / 4}
}

// IsConvex reports whether all four corners turn the same way. Collinear
// corners (a zero cross product) count as non-convex: a degenerate quad
// cannot be a marker boundary.
func (q Quad) IsConvex() bool {
	var sign float64
	for i := 0; i < 4; i++ {
		c := cross(q.Corners[i], q.Corners[(i+1)%4], q.Corners[(i+2)%4])
		if c == 0 {
			return false
		}
		if sign == 0 {
			sign = c
		} else if (sign > 0) != (c > 0) {
			return false
		}
	}
	return true
}

// MinCornerSeparation returns the smallest pairwise distance between the
// four corners.
func (q Quad) MinCornerSeparation() float64 {
	min := math.Inf(1)
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			if d := q.Corners[i].Dist(q.Corners[j]); d < min {
				min = d
			}
		}
	}
	return min
}

// EdgeRatio returns longest-edge / shortest-edge. A ratio near 1 means the
// quad is close to square in the image; perspective skew pushes it up.
func (q Quad) EdgeRatio() float64 {
	shortest := math.Inf(1)
	longest := 0.0
	for i := 0; i < 4; i++ {
		d := q.Corners[i].Dist(q.Corners[(i+1)%4])
		if d < shortest {
			shortest = d
		}
		if d > longest {
			longest = d
		}
	}
	if shortest == 0 {
		return math.Inf(1)
	}
	return longest / shortest
}

// NormalizeWinding rewrites the corners into the canonical order:
// clockwise in image coordinates (+Y down), starting at the corner with
// the smallest X+Y (closest to the top-left). The decoder relies on this
// order only up to rotation — the rotation search absorbs the remaining
// ambiguity — but a fixed winding keeps sampling orientation-consistent.
func (q *Quad) NormalizeWinding() {
	// In +Y-down coordinates a visually clockwise ring (TL→TR→BR→BL)
	// has a positive shoelace sum; reverse the ring if it is negative.
	var signed float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		signed += q.Corners[i].X*q.Corners[j].Y - q.Corners[j].X*q.Corners[i].Y
	}
	if signed < 0 {
		q.Corners[1], q.Corners[3] = q.Corners[3], q.Corners[1]
	}

	start := 0
	best := q.Corners[0].X + q.Corners[0].Y
	for i := 1; i < 4; i++ {
		if s := q.Corners[i].X + q.Corners[i].Y; s < best {
			best = s
			start = i
		}
	}
	if start != 0 {
		var rotated [4]Point2
		for i := 0; i < 4; i++ {
			rotated[i] = q.Corners[(start+i)%4]
		}
		q.Corners = rotated
	}
}
