package segmentation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/shotcoach/pkg/client"
	"github.com/menta2k/shotcoach/pkg/processing"
	"github.com/menta2k/shotcoach/pkg/types"
)

// LocatorConfig holds configuration for model-based location
type LocatorConfig struct {
	Model         string
	Prompt        string
	MaxDim        int
	Quality       int
	MinConfidence float64
	// Feather is the fraction of the ellipse radius used for the soft edge
	Feather float64
}

// DefaultLocatorConfig returns the default locator configuration
func DefaultLocatorConfig(model string) LocatorConfig {
	return LocatorConfig{
		Model:         model,
		Prompt:        client.LocatePrompt,
		MaxDim:        768,
		Quality:       85,
		MinConfidence: 0.2,
		Feather:       0.15,
	}
}

// LocatorProvider asks a vision model where the subject is and turns the box into
// a soft elliptical mask
type LocatorProvider struct {
	client    client.VisionClient
	processor *processing.Processor
	config    LocatorConfig
	logger    logrus.FieldLogger
}

var (
	_ Provider = (*LocatorProvider)(nil)
	_ Locator  = (*LocatorProvider)(nil)
)

// NewLocatorProvider creates a provider backed by a vision client
func NewLocatorProvider(vc client.VisionClient, config LocatorConfig, logger logrus.FieldLogger) *LocatorProvider {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if config.Prompt == "" {
		config.Prompt = client.LocatePrompt
	}
	return &LocatorProvider{
		client:    vc,
		processor: processing.NewProcessor(),
		config:    config,
		logger:    logger,
	}
}

// LocateSubject returns the raw model location
func (l *LocatorProvider) LocateSubject(ctx context.Context, img image.Image) (*types.Location, error) {
	if err := l.processor.ValidateImage(img); err != nil {
		return nil, err
	}
	imgB64, err := l.processor.EncodeBase64(img, l.config.MaxDim, l.config.Quality)
	if err != nil {
		return nil, fmt.Errorf("prepare image: %w", err)
	}

	loc, err := l.client.LocateSubject(ctx, l.config.Model, l.config.Prompt, imgB64)
	if err != nil {
		return nil, err
	}
	if loc.Confidence < l.config.MinConfidence {
		l.logger.WithFields(logrus.Fields{
			"label":      loc.Label,
			"confidence": loc.Confidence,
		}).Debug("discarding low confidence subject")
		return nil, client.ErrNoSubject
	}

	l.logger.WithFields(logrus.Fields{
		"label":      loc.Label,
		"confidence": loc.Confidence,
		"tags":       strings.Join(loc.Tags, ","),
	}).Debug("located subject")
	return loc, nil
}

// Locate implements Locator
func (l *LocatorProvider) Locate(ctx context.Context, img image.Image) (types.Observation, error) {
	loc, err := l.LocateSubject(ctx, img)
	if err != nil {
		return types.Observation{}, err
	}
	return loc.Box.Observation(), nil
}

// Segment implements Provider
func (l *LocatorProvider) Segment(ctx context.Context, img image.Image) (*image.Gray, error) {
	loc, err := l.LocateSubject(ctx, img)
	if errors.Is(err, client.ErrNoSubject) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return EllipseMask(b.Dx(), b.Dy(), loc.Box, l.config.Feather), nil
}

// EllipseMask rasterizes the ellipse inscribed in a top-left normalized box.
// The outer feather fraction of the radius falls off linearly to black.
func EllipseMask(width, height int, box types.Box, feather float64) *image.Gray {
	m := image.NewGray(image.Rect(0, 0, width, height))
	rx, ry := box.W*float64(width)/2, box.H*float64(height)/2
	if rx <= 0 || ry <= 0 {
		return m
	}
	cx, cy := box.X*float64(width)+rx, box.Y*float64(height)+ry
	feather = math.Max(0, math.Min(1, feather))
	inner := 1 - feather

	y0, y1 := max(0, int(cy-ry)), min(height, int(math.Ceil(cy+ry)))
	x0, x1 := max(0, int(cx-rx)), min(width, int(math.Ceil(cx+rx)))
	for y := y0; y < y1; y++ {
		dy := (float64(y) + 0.5 - cy) / ry
		for x := x0; x < x1; x++ {
			dx := (float64(x) + 0.5 - cx) / rx
			d := math.Sqrt(dx*dx + dy*dy)
			var v float64
			switch {
			case d <= inner:
				v = 1
			case d < 1:
				v = (1 - d) / feather
			}
			m.Pix[y*m.Stride+x] = uint8(math.Round(v * 255))
		}
	}
	return m
}
