package marker

import (
	"image"
	"image/color"
	"testing"
)

func TestFrameValid(t *testing.T) {
	if (&Frame{}).Valid() {
		t.Fatal("zero frame must be invalid")
	}
	var nilFrame *Frame
	if nilFrame.Valid() {
		t.Fatal("nil frame must be invalid")
	}
	if (&Frame{Width: 4, Height: 4, Pix: make([]uint8, 15)}).Valid() {
		t.Fatal("short pixel buffer must be invalid")
	}
	if !NewFrame(4, 4, testCaptureTime).Valid() {
		t.Fatal("allocated frame must be valid")
	}
}

func TestFrameAtClamps(t *testing.T) {
	f := NewFrame(3, 3, testCaptureTime)
	f.Pix[0] = 11 // (0,0)
	f.Pix[8] = 99 // (2,2)

	if got := f.At(-5, -5); got != 11 {
		t.Fatalf("At(-5,-5) = %d, want clamp to (0,0)", got)
	}
	if got := f.At(10, 10); got != 99 {
		t.Fatalf("At(10,10) = %d, want clamp to (2,2)", got)
	}
}

func TestFrameBilinear(t *testing.T) {
	f := NewFrame(2, 2, testCaptureTime)
	f.Pix = []uint8{0, 100, 100, 200}

	if got := f.Bilinear(0, 0); got != 0 {
		t.Fatalf("Bilinear(0,0) = %f", got)
	}
	if got := f.Bilinear(0.5, 0.5); got != 100 {
		t.Fatalf("Bilinear(0.5,0.5) = %f, want the four-pixel mean", got)
	}
	if got := f.Bilinear(0.5, 0); got != 50 {
		t.Fatalf("Bilinear(0.5,0) = %f, want midpoint of the top row", got)
	}
}

func TestFrameFromImageGrayFastPath(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 3))
	img.SetGray(2, 1, color.Gray{Y: 77})

	f := FrameFromImage(img, testCaptureTime)
	if f.Width != 4 || f.Height != 3 {
		t.Fatalf("dimensions %dx%d", f.Width, f.Height)
	}
	if f.Pix[1*4+2] != 77 {
		t.Fatalf("pixel (2,1) = %d, want 77", f.Pix[1*4+2])
	}
	if !f.CapturedAt.Equal(testCaptureTime) {
		t.Fatal("capture time not carried")
	}
}

func TestFrameFromImageColor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	img.Set(1, 1, color.RGBA{A: 255})

	f := FrameFromImage(img, testCaptureTime)
	if f.Pix[0] != 255 {
		t.Fatalf("white pixel converted to %d", f.Pix[0])
	}
	if f.Pix[3] != 0 {
		t.Fatalf("black pixel converted to %d", f.Pix[3])
	}
}

func TestFrameToImageRoundTrip(t *testing.T) {
	f := NewFrame(3, 2, testCaptureTime)
	for i := range f.Pix {
		f.Pix[i] = uint8(i * 20)
	}

	img := f.ToImage()
	back := FrameFromImage(img, testCaptureTime)
	for i := range f.Pix {
		if back.Pix[i] != f.Pix[i] {
			t.Fatalf("pixel %d: %d != %d", i, back.Pix[i], f.Pix[i])
		}
	}
}
