package marker

import (
	"fmt"
	"image"
)

// Marker rendering for print sheets and synthetic test frames. Rendered
// markers are pure black/white; real capture adds the noise.

const (
	renderBlack = 0
	renderWhite = 255
)

// RenderMarker rasterises a marker (interior code plus border ring) at
// cellPx pixels per cell, surrounded by quietCells of white quiet zone.
// The quiet zone matters in print: a marker flush against dark background
// loses its outer contour.
func RenderMarker(code BitGrid, borderCells, cellPx, quietCells int) *image.Gray {
	if cellPx < 1 {
		cellPx = 1
	}
	total := code.N + 2*borderCells
	side := (total + 2*quietCells) * cellPx

	img := image.NewGray(image.Rect(0, 0, side, side))
	for i := range img.Pix {
		img.Pix[i] = renderWhite
	}

	origin := quietCells * cellPx
	for r := 0; r < total; r++ {
		for c := 0; c < total; c++ {
			if !cellBlack(code, borderCells, r, c) {
				continue
			}
			for y := 0; y < cellPx; y++ {
				row := (origin + r*cellPx + y) * img.Stride
				for x := 0; x < cellPx; x++ {
					img.Pix[row+origin+c*cellPx+x] = renderBlack
				}
			}
		}
	}
	return img
}

// RenderSheet lays out several markers on one printable page, columns
// across then rows down, with a quiet zone around each. Returns an error
// when the markers differ in grid size.
func RenderSheet(codes []BitGrid, borderCells, cellPx, quietCells, columns int) (*image.Gray, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("no markers to render")
	}
	if columns < 1 {
		columns = 1
	}
	n := codes[0].N
	for i, code := range codes {
		if code.N != n {
			return nil, fmt.Errorf("marker %d has grid size %d, sheet uses %d", i, code.N, n)
		}
	}

	tile := (n + 2*borderCells + 2*quietCells) * cellPx
	rows := (len(codes) + columns - 1) / columns
	sheet := image.NewGray(image.Rect(0, 0, columns*tile, rows*tile))
	for i := range sheet.Pix {
		sheet.Pix[i] = renderWhite
	}

	for i, code := range codes {
		tileImg := RenderMarker(code, borderCells, cellPx, quietCells)
		ox := (i % columns) * tile
		oy := (i / columns) * tile
		for y := 0; y < tile; y++ {
			copy(sheet.Pix[(oy+y)*sheet.Stride+ox:(oy+y)*sheet.Stride+ox+tile],
				tileImg.Pix[y*tileImg.Stride:y*tileImg.Stride+tile])
		}
	}
	return sheet, nil
}

// StampMarker draws a marker into a frame with its border's top-left
// corner at (x, y), cellPx pixels per cell. Pixels outside the frame are
// clipped. Used to build synthetic scan frames.
func StampMarker(f *Frame, code BitGrid, borderCells, x, y, cellPx int) {
	total := code.N + 2*borderCells
	for r := 0; r < total; r++ {
		for c := 0; c < total; c++ {
			v := uint8(renderWhite)
			if cellBlack(code, borderCells, r, c) {
				v = renderBlack
			}
			for dy := 0; dy < cellPx; dy++ {
				py := y + r*cellPx + dy
				if py < 0 || py >= f.Height {
					continue
				}
				for dx := 0; dx < cellPx; dx++ {
					px := x + c*cellPx + dx
					if px < 0 || px >= f.Width {
						continue
					}
					f.Pix[py*f.Width+px] = v
				}
			}
		}
	}
}

// cellBlack reports whether cell (r, c) of the full marker raster (border
// ring included) is black.
func cellBlack(code BitGrid, borderCells int, r, c int) bool {
	total := code.N + 2*borderCells
	if r < borderCells || r >= total-borderCells || c < borderCells || c >= total-borderCells {
		return true
	}
	return code.Get(r-borderCells, c-borderCells)
}
