// Package symmetry measures left/right mirror similarity of a frame.
package symmetry

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Config holds the sampling parameters of the scorer
type Config struct {
	// SampleSize is the longest side of the downsampled frame
	SampleSize int
	// RowStride samples every Nth row
	RowStride int
}

// DefaultConfig returns the sampling used for live frames
func DefaultConfig() Config {
	return Config{SampleSize: 64, RowStride: 2}
}

// Scorer compares mirrored luminance of a downsampled frame
type Scorer struct {
	config Config
}

// New creates a Scorer with default configuration
func New() *Scorer {
	return &Scorer{config: DefaultConfig()}
}

// NewWithConfig creates a Scorer with custom configuration
func NewWithConfig(config Config) *Scorer {
	if config.SampleSize <= 0 {
		config.SampleSize = DefaultConfig().SampleSize
	}
	if config.RowStride <= 0 {
		config.RowStride = 1
	}
	return &Scorer{config: config}
}

// Score returns a similarity in [0,1] between the left half of the frame and the
// mirrored right half. A nil or empty frame scores 0.
func (s *Scorer) Score(img image.Image) float64 {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	if b.Dx() < 2 || b.Dy() < 1 {
		return 0
	}

	// Fit keeps the aspect ratio, so the sampled content is the letterboxed region only
	small := imaging.Fit(img, s.config.SampleSize, s.config.SampleSize, imaging.Box)
	w, h := small.Bounds().Dx(), small.Bounds().Dy()
	if w < 2 {
		return 0
	}

	var total float64
	var count int
	for y := 0; y < h; y += s.config.RowStride {
		row := y * small.Stride
		for x := 0; x < w/2; x++ {
			left := luminance(small.Pix[row+x*4:])
			right := luminance(small.Pix[row+(w-1-x)*4:])
			total += math.Abs(left - right)
			count++
		}
	}
	if count == 0 {
		return 0
	}

	similarity := 1 - (total/float64(count))/255
	return math.Max(0, math.Min(1, similarity))
}

// luminance is the channel average of an NRGBA pixel
func luminance(p []uint8) float64 {
	return (float64(p[0]) + float64(p[1]) + float64(p[2])) / 3
}
