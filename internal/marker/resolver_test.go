package marker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func det(id, bitErrors int, cx float64) Detection {
	return Detection{
		ID:        id,
		Source:    SourceStandard,
		BitErrors: bitErrors,
		Quad:      square(cx, 0, 10),
	}
}

func TestResolveFrameEmpty(t *testing.T) {
	if got := ResolveFrame(nil); got != nil {
		t.Fatalf("ResolveFrame(nil) = %v, want nil", got)
	}
}

func TestResolveFrameKeepsDistinctIDs(t *testing.T) {
	in := []Detection{det(5, 0, 10), det(2, 1, 50), det(9, 0, 90)}
	got := ResolveFrame(in)

	want := []Detection{det(2, 1, 50), det(5, 0, 10), det(9, 0, 90)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("resolved detections mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveFrameLowestBitErrorsWins(t *testing.T) {
	in := []Detection{det(7, 2, 10), det(7, 0, 50), det(7, 1, 90)}
	got := ResolveFrame(in)

	if len(got) != 1 {
		t.Fatalf("got %d detections, want 1", len(got))
	}
	if got[0].BitErrors != 0 {
		t.Fatalf("BitErrors = %d, want the cleanest decode", got[0].BitErrors)
	}
	if got[0].Quad.Corners[0].X != 50 {
		t.Fatal("wrong duplicate survived")
	}
}

func TestResolveFrameTieKeepsFirst(t *testing.T) {
	// Equal bit errors: candidate order decides, first one stays.
	in := []Detection{det(7, 1, 10), det(7, 1, 50)}
	got := ResolveFrame(in)

	if len(got) != 1 {
		t.Fatalf("got %d detections, want 1", len(got))
	}
	if got[0].Quad.Corners[0].X != 10 {
		t.Fatal("tie should keep the earliest candidate")
	}
}
