// Package marker implements the fiducial marker codec and tracking engine:
// locating square candidate regions in grayscale frames, perspective-sampling
// and decoding them against a dictionary of known codes, and maintaining a
// time-windowed set of currently visible marker IDs.
//
// The pipeline is layered the same way as the rest of our sensor stacks:
// extraction (geometry) → codec (bits) → resolution (same-frame dedup) →
// tracking window (temporal coherence). The Pipeline type in this package is
// the composition root; the transport/UI layers that feed it frames live
// outside this module entirely.
package marker

import (
	"image"
	"image/color"
	"time"
)

// Frame is a width×height grid of grayscale pixel intensities plus the
// capture timestamp. Frames are immutable once produced and are owned by
// the pipeline for the duration of one processing cycle.
type Frame struct {
	Width      int
	Height     int
	Pix        []uint8 // row-major, len == Width*Height
	CapturedAt time.Time
}

// NewFrame allocates an empty frame of the given dimensions.
func NewFrame(width, height int, capturedAt time.Time) *Frame {
	return &Frame{
		Width:      width,
		Height:     height,
		Pix:        make([]uint8, width*height),
		CapturedAt: capturedAt,
	}
}

// FrameFromImage converts any image.Image into a grayscale Frame using the
// standard luma weights. The source image is not retained.
func FrameFromImage(img image.Image, capturedAt time.Time) *Frame {
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy(), capturedAt)

	// Fast path for images that are already grayscale.
	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < f.Height; y++ {
			copy(f.Pix[y*f.Width:(y+1)*f.Width], g.Pix[y*g.Stride:y*g.Stride+f.Width])
		}
		return f
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			f.Pix[(y-b.Min.Y)*f.Width+(x-b.Min.X)] = c.Y
		}
	}
	return f
}

// Valid reports whether the frame has positive dimensions and a pixel
// buffer of matching length. Invalid frames are a per-cycle input error:
// the pipeline logs and yields an empty visible set rather than failing.
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Pix) == f.Width*f.Height
}

// At returns the intensity at (x, y). Out-of-bounds coordinates are
// clamped to the frame edge, which keeps subpixel sampling near borders
// well-defined without per-call error paths.
func (f *Frame) At(x, y int) uint8 {
	if x < 0 {
		x = 0
	} else if x >= f.Width {
		x = f.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= f.Height {
		y = f.Height - 1
	}
	return f.Pix[y*f.Width+x]
}

// Bilinear returns the bilinearly interpolated intensity at the subpixel
// position (x, y).
func (f *Frame) Bilinear(x, y float64) float64 {
	x0 := int(x)
	y0 := int(y)
	fx := x - float64(x0)
	fy := y - float64(y0)

	p00 := float64(f.At(x0, y0))
	p10 := float64(f.At(x0+1, y0))
	p01 := float64(f.At(x0, y0+1))
	p11 := float64(f.At(x0+1, y0+1))

	top := p00 + (p10-p00)*fx
	bot := p01 + (p11-p01)*fx
	return top + (bot-top)*fy
}

// ToImage renders the frame as an *image.Gray, mainly for debug dumps.
func (f *Frame) ToImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		copy(img.Pix[y*img.Stride:y*img.Stride+f.Width], f.Pix[y*f.Width:(y+1)*f.Width])
	}
	return img
}
