// Package blur composites a sharp subject over a blurred copy of its own image.
package blur

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/shotcoach/pkg/mask"
)

// Config holds compositor settings
type Config struct {
	// RadiusPerIntensity converts the 0-20 intensity scale to a Gaussian sigma in pixels
	RadiusPerIntensity float64
	// PadSigmas is how many sigmas of edge extension surround the image before blurring
	PadSigmas float64
}

// DefaultConfig returns the default compositor settings
func DefaultConfig() Config {
	return Config{
		RadiusPerIntensity: 1,
		PadSigmas:          3,
	}
}

// Compositor blends a sharp source and its blurred copy through a mask
type Compositor struct {
	config Config
}

// New creates a Compositor with default configuration
func New() *Compositor {
	return &Compositor{config: DefaultConfig()}
}

// NewWithConfig creates a Compositor with custom configuration
func NewWithConfig(config Config) *Compositor {
	if config.RadiusPerIntensity <= 0 {
		config.RadiusPerIntensity = 1
	}
	if config.PadSigmas <= 0 {
		config.PadSigmas = 3
	}
	return &Compositor{config: config}
}

// Sigma is the blur radius used for an intensity. Non-finite intensities give 0.
func (c *Compositor) Sigma(intensity float64) float64 {
	if !Valid(intensity) {
		return 0
	}
	return intensity * c.config.RadiusPerIntensity
}

// Valid reports whether intensity asks for any blur: positive and finite
func Valid(intensity float64) bool {
	return intensity > 0 && !math.IsInf(intensity, 1)
}

// Composite keeps bright mask regions sharp and blurs the rest. It returns src
// itself when intensity is not a positive finite number, the mask is missing or
// the image is empty.
// The mask is resampled when its extent differs from the image.
func (c *Compositor) Composite(src image.Image, m *image.Gray, intensity float64) image.Image {
	if src == nil || m == nil || !Valid(intensity) {
		return src
	}
	b := src.Bounds()
	if b.Empty() || m.Bounds().Empty() {
		return src
	}
	w, h := b.Dx(), b.Dy()
	m = mask.ScaleToExtent(m, w, h)

	sigma := c.Sigma(intensity)
	sharp := imaging.Clone(src)
	pad := int(math.Ceil(c.config.PadSigmas * sigma))

	blurred := imaging.Blur(extend(sharp, pad), sigma)
	blurred = imaging.Crop(blurred, image.Rect(pad, pad, pad+w, pad+h))

	return blend(sharp, blurred, m)
}

// extend surrounds the image with pad pixels copied from its nearest edge
func extend(img *image.NRGBA, pad int) *image.NRGBA {
	if pad <= 0 {
		return img
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w+2*pad, h+2*pad))
	for y := 0; y < h+2*pad; y++ {
		sy := min(max(y-pad, 0), h-1)
		srcRow := img.Pix[sy*img.Stride:]
		dstRow := out.Pix[y*out.Stride:]
		for x := 0; x < w+2*pad; x++ {
			sx := min(max(x-pad, 0), w-1)
			copy(dstRow[x*4:x*4+4], srcRow[sx*4:sx*4+4])
		}
	}
	return out
}

// blend writes sharp*m + blurred*(1-m) per channel
func blend(sharp, blurred *image.NRGBA, m *image.Gray) *image.NRGBA {
	w, h := sharp.Rect.Dx(), sharp.Rect.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	mb := m.Bounds()
	for y := 0; y < h; y++ {
		s := sharp.Pix[y*sharp.Stride:]
		bl := blurred.Pix[y*blurred.Stride:]
		d := out.Pix[y*out.Stride:]
		mr := m.Pix[m.PixOffset(mb.Min.X, mb.Min.Y+y):]
		for x := 0; x < w; x++ {
			a := uint32(mr[x])
			for k := x * 4; k < x*4+4; k++ {
				d[k] = uint8((uint32(s[k])*a + uint32(bl[k])*(255-a) + 127) / 255)
			}
		}
	}
	return out
}
