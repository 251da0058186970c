package marker

import (
	"math"
	"testing"
)

func square(x, y, side float64) Quad {
	return Quad{Corners: [4]Point2{
		{x, y}, {x + side, y}, {x + side, y + side}, {x, y + side},
	}}
}

func TestQuadArea(t *testing.T) {
	q := square(10, 20, 5)
	if got := q.Area(); math.Abs(got-25) > 1e-9 {
		t.Fatalf("Area = %f, want 25", got)
	}
	if got := q.Perimeter(); math.Abs(got-20) > 1e-9 {
		t.Fatalf("Perimeter = %f, want 20", got)
	}
}

func TestQuadConvexity(t *testing.T) {
	if !square(0, 0, 10).IsConvex() {
		t.Fatal("axis-aligned square must be convex")
	}

	// Bowtie: corners 1 and 2 swapped makes the ring self-intersect.
	bowtie := Quad{Corners: [4]Point2{{0, 0}, {10, 10}, {10, 0}, {0, 10}}}
	if bowtie.IsConvex() {
		t.Fatal("self-intersecting quad must not be convex")
	}

	// Collinear corner.
	degenerate := Quad{Corners: [4]Point2{{0, 0}, {5, 0}, {10, 0}, {5, 10}}}
	if degenerate.IsConvex() {
		t.Fatal("quad with collinear corners must not be convex")
	}
}

func TestQuadEdgeRatio(t *testing.T) {
	rect := Quad{Corners: [4]Point2{{0, 0}, {30, 0}, {30, 10}, {0, 10}}}
	if got := rect.EdgeRatio(); math.Abs(got-3) > 1e-9 {
		t.Fatalf("EdgeRatio = %f, want 3", got)
	}
}

func TestNormalizeWindingReversesCounterClockwise(t *testing.T) {
	// Counter-clockwise ring in image coordinates (+Y down).
	q := Quad{Corners: [4]Point2{{0, 0}, {0, 10}, {10, 10}, {10, 0}}}
	q.NormalizeWinding()

	want := square(0, 0, 10)
	if q != want {
		t.Fatalf("normalized = %+v, want %+v", q.Corners, want.Corners)
	}
}

func TestNormalizeWindingRotatesStart(t *testing.T) {
	// Clockwise but starting at the bottom-right corner.
	q := Quad{Corners: [4]Point2{{10, 10}, {0, 10}, {0, 0}, {10, 0}}}
	q.NormalizeWinding()

	if q.Corners[0] != (Point2{0, 0}) {
		t.Fatalf("first corner = %+v, want top-left", q.Corners[0])
	}
	if q != square(0, 0, 10) {
		t.Fatalf("normalized = %+v", q.Corners)
	}
}

func TestNormalizeWindingIdempotent(t *testing.T) {
	q := square(3, 7, 20)
	before := q
	q.NormalizeWinding()
	q.NormalizeWinding()
	if q != before {
		t.Fatalf("canonical quad changed: %+v -> %+v", before.Corners, q.Corners)
	}
}
