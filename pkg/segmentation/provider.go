// Package segmentation produces subject masks and subject boxes for images.
//
// A Provider returns a single-channel mask aligned to the image's pixel extent,
// bright where the subject is. A nil mask with a nil error means no subject was
// found; callers treat that the same as a failed segmentation and keep the image
// unmodified.
package segmentation

import (
	"context"
	"image"

	"github.com/menta2k/shotcoach/pkg/types"
)

// Provider segments the subject of an image
type Provider interface {
	Segment(ctx context.Context, img image.Image) (*image.Gray, error)
}

// Locator finds the subject box of an image in Observation space
type Locator interface {
	Locate(ctx context.Context, img image.Image) (types.Observation, error)
}

// ProviderFunc adapts a function to a Provider
type ProviderFunc func(ctx context.Context, img image.Image) (*image.Gray, error)

// Segment implements Provider
func (f ProviderFunc) Segment(ctx context.Context, img image.Image) (*image.Gray, error) {
	return f(ctx, img)
}

// boundsOf returns the bounding box of mask pixels at or above threshold in
// top-left normalized coordinates
func boundsOf(m *image.Gray, threshold uint8) (types.Box, bool) {
	b := m.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := m.Pix[m.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			if row[x] < threshold {
				continue
			}
			px := b.Min.X + x
			minX, maxX = min(minX, px), max(maxX, px)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if maxX < minX {
		return types.Box{}, false
	}
	w, h := float64(b.Dx()), float64(b.Dy())
	return types.Box{
		X: float64(minX-b.Min.X) / w,
		Y: float64(minY-b.Min.Y) / h,
		W: float64(maxX-minX+1) / w,
		H: float64(maxY-minY+1) / h,
	}, true
}
