// Package fingerprint derives a cheap content identity for an image.
//
// The identity mixes the pixel extent, a display scale factor, the bit depth and
// nine sampled pixels (corners, edge midpoints and center). It is meant for cache
// keys only; two images that agree on every sampled pixel collide.
package fingerprint

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint identifies an image for caching
type Fingerprint struct {
	Width    int
	Height   int
	Scale    float64
	BitDepth int
	Hash     uint64
}

// Of computes the fingerprint of img. A non-positive scale is treated as 1.
func Of(img image.Image, scale float64) Fingerprint {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		scale = 1
	}
	if img == nil {
		return Fingerprint{Scale: scale}
	}

	b := img.Bounds()
	fp := Fingerprint{
		Width:    b.Dx(),
		Height:   b.Dy(),
		Scale:    scale,
		BitDepth: bitDepth(img),
	}

	d := xxhash.New()
	var buf [8]byte
	for _, v := range []uint64{uint64(fp.Width), uint64(fp.Height), uint64(fp.BitDepth), math.Float64bits(scale)} {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}

	if !b.Empty() {
		for _, p := range samplePoints(b) {
			r, g, bl, a := img.At(p.X, p.Y).RGBA()
			binary.LittleEndian.PutUint16(buf[0:], uint16(r))
			binary.LittleEndian.PutUint16(buf[2:], uint16(g))
			binary.LittleEndian.PutUint16(buf[4:], uint16(bl))
			binary.LittleEndian.PutUint16(buf[6:], uint16(a))
			_, _ = d.Write(buf[:])
		}
	}

	fp.Hash = d.Sum64()
	return fp
}

// String renders the fingerprint as WxH@S-hash
func (f Fingerprint) String() string {
	return fmt.Sprintf("%dx%d@%g-%016x", f.Width, f.Height, f.Scale, f.Hash)
}

// IsZero reports whether the fingerprint is unset
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

func samplePoints(b image.Rectangle) []image.Point {
	x0, x1, xm := b.Min.X, b.Max.X-1, b.Min.X+b.Dx()/2
	y0, y1, ym := b.Min.Y, b.Max.Y-1, b.Min.Y+b.Dy()/2
	return []image.Point{
		{x0, y0}, {xm, y0}, {x1, y0},
		{x0, ym}, {xm, ym}, {x1, ym},
		{x0, y1}, {xm, y1}, {x1, y1},
	}
}

func bitDepth(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Alpha, *image.Paletted:
		return 8
	case *image.Gray16, *image.Alpha16:
		return 16
	case *image.RGBA64, *image.NRGBA64:
		return 64
	default:
		return 32
	}
}
