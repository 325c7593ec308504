package segmentation

import (
	"context"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/shotcoach/pkg/client"
	"github.com/menta2k/shotcoach/pkg/mask"
	"github.com/menta2k/shotcoach/pkg/types"
)

// SaliencyConfig holds configuration for saliency segmentation
type SaliencyConfig struct {
	// WorkingSize is the long side of the downsampled analysis image
	WorkingSize     int
	EdgeWeight      float64
	ContrastWeight  float64
	CenterWeight    float64
	SmoothSigma     float64
	Threshold       float64
	MinFeature      float64
	MinSubjectRatio float64
}

// DefaultSaliencyConfig returns the default saliency configuration
func DefaultSaliencyConfig() SaliencyConfig {
	return SaliencyConfig{
		WorkingSize:     192,
		EdgeWeight:      0.3,
		ContrastWeight:  0.5,
		CenterWeight:    0.2,
		SmoothSigma:     1.5,
		Threshold:       0.5,
		MinFeature:      0.05,
		MinSubjectRatio: 0.01,
	}
}

// SaliencyProvider segments the most salient region using local edges, global
// luminance contrast and a center prior. It needs no model and suits tests and
// offline use.
type SaliencyProvider struct {
	config SaliencyConfig
}

var (
	_ Provider = (*SaliencyProvider)(nil)
	_ Locator  = (*SaliencyProvider)(nil)
)

// NewSaliencyProvider creates a provider with default configuration
func NewSaliencyProvider() *SaliencyProvider {
	return &SaliencyProvider{config: DefaultSaliencyConfig()}
}

// NewSaliencyProviderWithConfig creates a provider with custom configuration
func NewSaliencyProviderWithConfig(config SaliencyConfig) *SaliencyProvider {
	if config.WorkingSize <= 0 {
		config.WorkingSize = DefaultSaliencyConfig().WorkingSize
	}
	return &SaliencyProvider{config: config}
}

// Segment implements Provider. The mask matches the image extent.
func (s *SaliencyProvider) Segment(ctx context.Context, img image.Image) (*image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	small := s.subjectMask(img)
	if small == nil {
		return nil, nil
	}
	b := img.Bounds()
	return mask.ScaleToExtent(small, b.Dx(), b.Dy()), nil
}

// Locate implements Locator with the bounding box of the salient region
func (s *SaliencyProvider) Locate(ctx context.Context, img image.Image) (types.Observation, error) {
	if err := ctx.Err(); err != nil {
		return types.Observation{}, err
	}
	small := s.subjectMask(img)
	if small == nil {
		return types.Observation{}, client.ErrNoSubject
	}
	box, ok := boundsOf(small, 128)
	if !ok {
		return types.Observation{}, client.ErrNoSubject
	}
	return box.Observation(), nil
}

// Saliency returns the normalized saliency map at working resolution, or nil when
// the image has too little structure to hold a subject
func (s *SaliencyProvider) Saliency(img image.Image) *image.Gray {
	if img == nil || img.Bounds().Dx() < 3 || img.Bounds().Dy() < 3 {
		return nil
	}
	small := imaging.Fit(img, s.config.WorkingSize, s.config.WorkingSize, imaging.Box)
	w, h := small.Rect.Dx(), small.Rect.Dy()
	if w < 3 || h < 3 {
		return nil
	}

	lum := make([]float64, w*h)
	var mean float64
	for y := 0; y < h; y++ {
		row := small.Pix[y*small.Stride:]
		for x := 0; x < w; x++ {
			p := row[x*4:]
			l := (0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])) / 255
			lum[y*w+x] = l
			mean += l
		}
	}
	mean /= float64(w * h)

	feature := make([]float64, w*h)
	var maxFeature float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			f := s.config.EdgeWeight*edgeStrength(small, x, y) + s.config.ContrastWeight*math.Abs(lum[y*w+x]-mean)
			feature[y*w+x] = f
			maxFeature = math.Max(maxFeature, f)
		}
	}
	if maxFeature < s.config.MinFeature {
		return nil
	}

	cx, cy := float64(w-1)/2, float64(h-1)/2
	maxDist := math.Hypot(cx, cy)
	sal := make([]float64, w*h)
	var maxSal float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			prior := 1 - math.Hypot(float64(x)-cx, float64(y)-cy)/maxDist
			v := feature[y*w+x] * (1 - s.config.CenterWeight + s.config.CenterWeight*prior)
			sal[y*w+x] = v
			maxSal = math.Max(maxSal, v)
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range sal {
		out.Pix[i] = uint8(math.Round(255 * v / maxSal))
	}
	if s.config.SmoothSigma > 0 {
		out = mask.ToGray(imaging.Blur(out, s.config.SmoothSigma))
	}
	return out
}

// subjectMask thresholds the saliency map into a binary mask at working resolution
func (s *SaliencyProvider) subjectMask(img image.Image) *image.Gray {
	sal := s.Saliency(img)
	if sal == nil {
		return nil
	}

	var peak uint8
	for _, v := range sal.Pix {
		peak = max(peak, v)
	}
	cut := uint8(math.Round(s.config.Threshold * float64(peak)))

	out := image.NewGray(sal.Rect)
	count := 0
	for i, v := range sal.Pix {
		if v > 0 && v >= cut {
			out.Pix[i] = 255
			count++
		}
	}
	if float64(count) < s.config.MinSubjectRatio*float64(len(out.Pix)) {
		return nil
	}
	return out
}

// edgeStrength is the mean color distance to the 8 neighbors, in [0,1]
func edgeStrength(img *image.NRGBA, x, y int) float64 {
	c := img.Pix[y*img.Stride+x*4:]
	var sum float64
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := img.Pix[(y+dy)*img.Stride+(x+dx)*4:]
			dr := float64(c[0]) - float64(n[0])
			dg := float64(c[1]) - float64(n[1])
			db := float64(c[2]) - float64(n[2])
			sum += math.Sqrt(dr*dr + dg*dg + db*db)
		}
	}
	return sum / (8 * 255 * math.Sqrt(3))
}
