package mask

import (
	"image"

	"golang.org/x/image/draw"
)

// ScaleToExtent resamples a mask to width x height. A mask that already matches is
// returned as is.
func ScaleToExtent(m *image.Gray, width, height int) *image.Gray {
	if m == nil || width <= 0 || height <= 0 {
		return m
	}
	b := m.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return m
	}
	out := image.NewGray(image.Rect(0, 0, width, height))
	if b.Empty() {
		return out
	}
	draw.BiLinear.Scale(out, out.Bounds(), m, b, draw.Src, nil)
	return out
}
