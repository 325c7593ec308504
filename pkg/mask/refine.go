// Package mask turns a raw subject mask into a soft-edged blend mask.
//
// The standard pipeline opens the mask to drop noise, expands it so the subject
// is never clipped, feathers the edge with one or two Gaussian passes and then
// restores a clean separation with a contrast and gamma curve. For strong blur
// intensities a premium pipeline blends several blur radii to approximate a
// distance-field falloff and finishes with an S-curve.
package mask

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Point is a control point of a tone curve, both axes in [0,1]
type Point struct {
	X, Y float64
}

// Config holds the refinement constants
type Config struct {
	MaxIntensity     float64
	PremiumThreshold float64
	BaseResolution   float64
	MinScale         float64

	OpenRadius      float64
	ExpandBase      float64
	ExpandIntensity float64

	FeatherBase         float64
	FeatherIntensity    float64
	SecondPassThreshold float64
	SecondPassBase      float64
	SecondPassIntensity float64
	ContrastBase        float64
	ContrastIntensity   float64
	BrightnessIntensity float64
	GammaBase           float64
	GammaIntensity      float64

	PremiumRadii   [4]float64
	PremiumWeights [4]float64
	SCurve         [5]Point
}

// DefaultConfig returns the tuned refinement constants
func DefaultConfig() Config {
	return Config{
		MaxIntensity:     20,
		PremiumThreshold: 8,
		BaseResolution:   1000,
		MinScale:         0.5,

		OpenRadius:      0.5,
		ExpandBase:      1.5,
		ExpandIntensity: 3.5,

		FeatherBase:         2.5,
		FeatherIntensity:    4,
		SecondPassThreshold: 0.3,
		SecondPassBase:      1.5,
		SecondPassIntensity: 6,
		ContrastBase:        20,
		ContrastIntensity:   30,
		BrightnessIntensity: -8,
		GammaBase:           0.9,
		GammaIntensity:      0.1,

		PremiumRadii:   [4]float64{2, 4, 8, 16},
		PremiumWeights: [4]float64{0.4, 0.3, 0.2, 0.1},
		SCurve: [5]Point{
			{0, 0}, {0.25, 0.08}, {0.5, 0.5}, {0.75, 0.92}, {1, 1},
		},
	}
}

// Refiner applies the refinement pipeline
type Refiner struct {
	config Config
}

// New creates a Refiner with default configuration
func New() *Refiner {
	return &Refiner{config: DefaultConfig()}
}

// NewWithConfig creates a Refiner with custom configuration
func NewWithConfig(config Config) *Refiner {
	return &Refiner{config: config}
}

// Params are the derived pipeline parameters for one image size and intensity
type Params struct {
	Normalized   float64
	Scale        float64
	Premium      bool
	OpenRadius   float64
	ExpandRadius float64
	// FirstPass and SecondPass are Gaussian sigmas; SecondPass is 0 when skipped
	FirstPass  float64
	SecondPass float64
	// Radii are the premium blur sigmas, weighted by Config.PremiumWeights
	Radii [4]float64
}

// Params derives the pipeline parameters
func (r *Refiner) Params(width, height int, intensity float64) Params {
	c := r.config
	norm := 0.0
	if math.IsNaN(intensity) {
		intensity = 0
	}
	if c.MaxIntensity > 0 {
		norm = math.Max(0, math.Min(1, intensity/c.MaxIntensity))
	}
	scale := math.Max(float64(max(width, height))/c.BaseResolution, c.MinScale)

	p := Params{
		Normalized:   norm,
		Scale:        scale,
		Premium:      intensity > c.PremiumThreshold,
		OpenRadius:   c.OpenRadius * scale,
		ExpandRadius: c.ExpandBase*scale + c.ExpandIntensity*norm*scale,
		FirstPass:    c.FeatherBase*scale + c.FeatherIntensity*norm*scale,
	}
	if norm > c.SecondPassThreshold {
		p.SecondPass = c.SecondPassBase*scale + c.SecondPassIntensity*(norm-c.SecondPassThreshold)*scale
	}
	for i, radius := range c.PremiumRadii {
		p.Radii[i] = radius * scale * (1 + norm)
	}
	return p
}

// FeatherRadius is the effective softening radius of the edge. It never decreases
// as intensity grows.
func (r *Refiner) FeatherRadius(width, height int, intensity float64) float64 {
	p := r.Params(width, height, intensity)
	if p.Premium {
		var sum float64
		for i, radius := range p.Radii {
			sum += r.config.PremiumWeights[i] * radius
		}
		return sum
	}
	// stacked Gaussian passes add in quadrature
	return math.Hypot(p.FirstPass, p.SecondPass)
}

// Refine returns a soft-edged copy of the mask with the same extent. Degenerate
// masks are returned unchanged.
func (r *Refiner) Refine(m *image.Gray, intensity float64) *image.Gray {
	if m == nil {
		return nil
	}
	bounds := m.Bounds()
	if bounds.Empty() {
		return m
	}

	p := r.Params(bounds.Dx(), bounds.Dy(), intensity)

	out := Open(m, radius(p.OpenRadius))
	out = Dilate(out, radius(p.ExpandRadius))

	if p.Premium {
		out = r.premium(out, p)
	} else {
		out = r.standard(out, p)
	}

	out.Rect = bounds
	return out
}

func (r *Refiner) standard(m *image.Gray, p Params) *image.Gray {
	c := r.config
	soft := imaging.Blur(m, p.FirstPass)
	if p.SecondPass > 0 {
		soft = imaging.Blur(soft, p.SecondPass)
	}
	soft = imaging.AdjustContrast(soft, c.ContrastBase+c.ContrastIntensity*p.Normalized)
	soft = imaging.AdjustBrightness(soft, c.BrightnessIntensity*p.Normalized)

	// imaging takes the reciprocal of a power curve exponent
	power := c.GammaBase - c.GammaIntensity*p.Normalized
	if power > 0 {
		soft = imaging.AdjustGamma(soft, 1/power)
	}
	return fromNRGBA(soft)
}

func (r *Refiner) premium(m *image.Gray, p Params) *image.Gray {
	w, h := m.Rect.Dx(), m.Rect.Dy()
	acc := make([]float64, w*h)
	var total float64
	for i, sigma := range p.Radii {
		weight := r.config.PremiumWeights[i]
		total += weight
		blurred := imaging.Blur(m, sigma)
		for y := 0; y < h; y++ {
			row := blurred.Pix[y*blurred.Stride:]
			for x := 0; x < w; x++ {
				acc[y*w+x] += weight * float64(row[x*4])
			}
		}
	}
	if total <= 0 {
		return m
	}

	blend := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			blend.Pix[y*blend.Stride+x] = uint8(math.Round(math.Min(255, acc[y*w+x]/total)))
		}
	}

	lut := curveLUT(r.config.SCurve)
	curved := imaging.AdjustFunc(blend, func(c color.NRGBA) color.NRGBA {
		v := lut[c.R]
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
	return fromNRGBA(curved)
}

// curveLUT interpolates the control points with smoothstep segments
func curveLUT(points [5]Point) [256]uint8 {
	var lut [256]uint8
	for i := range lut {
		x := float64(i) / 255
		y := x
		for k := 0; k < len(points)-1; k++ {
			a, b := points[k], points[k+1]
			if x >= a.X && x <= b.X && b.X > a.X {
				t := (x - a.X) / (b.X - a.X)
				t = t * t * (3 - 2*t)
				y = a.Y + (b.Y-a.Y)*t
				break
			}
		}
		lut[i] = uint8(math.Round(math.Max(0, math.Min(1, y)) * 255))
	}
	return lut
}

func radius(r float64) int {
	return max(1, int(math.Round(r)))
}
