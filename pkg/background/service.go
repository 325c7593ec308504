// Package background applies depth-of-field style background blur to photos.
//
// A captured photo is fingerprinted, its subject mask is looked up in the mask
// cache or produced by a segmentation provider, refined for the requested
// intensity and used to composite the sharp subject over a blurred copy. Results
// are cached per fingerprint and intensity. Any failure along the way returns the
// original image.
package background

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/menta2k/shotcoach/pkg/blur"
	"github.com/menta2k/shotcoach/pkg/cache"
	"github.com/menta2k/shotcoach/pkg/fingerprint"
	"github.com/menta2k/shotcoach/pkg/mask"
	"github.com/menta2k/shotcoach/pkg/segmentation"
	"github.com/menta2k/shotcoach/pkg/session"
)

// DefaultPreviewSize is the long side of previews when none is given
const DefaultPreviewSize = 512

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithRefiner replaces the mask refiner
func WithRefiner(r *mask.Refiner) Option {
	return func(s *Service) { s.refiner = r }
}

// WithCompositor replaces the blur compositor
func WithCompositor(c *blur.Compositor) Option {
	return func(s *Service) { s.compositor = c }
}

// WithScale sets the display scale mixed into fingerprints
func WithScale(scale float64) Option {
	return func(s *Service) { s.scale = scale }
}

// Service runs the blur pipeline
type Service struct {
	provider   segmentation.Provider
	refiner    *mask.Refiner
	compositor *blur.Compositor
	cache      *cache.Manager
	sessions   *session.Manager
	logger     logrus.FieldLogger
	scale      float64

	masks singleflight.Group
}

// NewService creates a blur service. A nil session manager disables sessions.
func NewService(provider segmentation.Provider, c *cache.Manager, sessions *session.Manager, opts ...Option) *Service {
	s := &Service{
		provider:   provider,
		refiner:    mask.New(),
		compositor: blur.New(),
		cache:      c,
		sessions:   sessions,
		logger:     logrus.StandardLogger(),
		scale:      1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fingerprint returns the cache identity of an image
func (s *Service) Fingerprint(img image.Image) fingerprint.Fingerprint {
	return fingerprint.Of(img, s.scale)
}

// ApplyBackgroundBlur blurs everything but the subject. Zero, negative or
// non-finite intensity returns img itself; so does a missing subject or a failed segmentation.
func (s *Service) ApplyBackgroundBlur(ctx context.Context, img image.Image, intensity float64, useCache bool) image.Image {
	if img == nil || img.Bounds().Empty() || !blur.Valid(intensity) {
		return img
	}

	fp := s.Fingerprint(img)
	key := cache.ResultKey(fp, intensity)
	if useCache {
		if out, ok := s.cache.Result(key); ok {
			return out
		}
	}

	raw := s.subjectMask(ctx, img, fp, useCache)
	if raw == nil {
		return img
	}
	refined := s.refiner.Refine(raw, intensity)
	out := s.compositor.Composite(img, refined, intensity)

	if useCache {
		s.cache.PutResult(fp.String(), key, out, s.sessionID())
	}
	return out
}

// GenerateBlurPreview renders the blur on a copy no larger than previewSize on its
// long side. The blur radius is scaled with the image so the preview matches the
// full-size look. Previews are always cached.
func (s *Service) GenerateBlurPreview(ctx context.Context, img image.Image, intensity float64, previewSize int) image.Image {
	if img == nil || img.Bounds().Empty() {
		return img
	}
	if previewSize <= 0 {
		previewSize = DefaultPreviewSize
	}

	b := img.Bounds()
	preview := img
	if b.Dx() > previewSize || b.Dy() > previewSize {
		preview = imaging.Fit(img, previewSize, previewSize, imaging.Linear)
	}
	if !blur.Valid(intensity) {
		return preview
	}

	fp := s.Fingerprint(img)
	key := cache.PreviewKey(fp, intensity, previewSize)
	if out, ok := s.cache.Result(key); ok {
		return out
	}

	raw := s.subjectMask(ctx, img, fp, true)
	if raw == nil {
		return preview
	}

	pb := preview.Bounds()
	ratio := float64(pb.Dx()) / float64(b.Dx())
	refined := s.refiner.Refine(mask.ScaleToExtent(raw, pb.Dx(), pb.Dy()), intensity)
	out := s.compositor.Composite(preview, refined, intensity*ratio)

	s.cache.PutResult(fp.String(), key, out, s.sessionID())
	return out
}

// subjectMask returns the raw subject mask at the image's extent, generating it
// at most once for concurrent callers
func (s *Service) subjectMask(ctx context.Context, img image.Image, fp fingerprint.Fingerprint, useCache bool) *image.Gray {
	key := cache.MaskKey(fp)
	if useCache {
		if m, ok := s.cache.Mask(key); ok {
			return m
		}
	}

	v, err, shared := s.masks.Do(key, func() (any, error) {
		m, err := s.provider.Segment(ctx, img)
		if err != nil || m == nil {
			return (*image.Gray)(nil), err
		}
		b := img.Bounds()
		m = mask.ScaleToExtent(m, b.Dx(), b.Dy())
		if useCache {
			s.cache.PutMask(fp.String(), key, m, s.sessionID())
		}
		return m, nil
	})

	log := s.logger.WithFields(logrus.Fields{"image": fp.String(), "shared": shared})
	if err != nil {
		log.WithError(err).Warn("segmentation failed, returning original image")
		return nil
	}
	m, _ := v.(*image.Gray)
	if m == nil {
		log.Debug("no subject found, returning original image")
	}
	return m
}

// StartSession opens an editing session for img
func (s *Service) StartSession(img image.Image) (session.Session, bool) {
	if s.sessions == nil {
		return session.Session{}, false
	}
	return s.sessions.Start(s.Fingerprint(img).String()), true
}

// EndSession closes the active session
func (s *Service) EndSession(mode session.EndMode) {
	if s.sessions == nil {
		s.cache.ClearAll()
		return
	}
	s.sessions.End(mode)
}

// ClearCache drops every cached mask and result
func (s *Service) ClearCache() {
	s.cache.ClearAll()
}

// ClearCacheForImage drops everything derived from img
func (s *Service) ClearCacheForImage(img image.Image) int {
	return s.cache.ClearForImage(s.Fingerprint(img).String())
}

// ClearCacheForID drops everything derived from the image with fingerprint id
func (s *Service) ClearCacheForID(id string) int {
	return s.cache.ClearForImage(id)
}

// CacheStats returns cache counts and estimated memory
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// HandleMemoryPressure clears all caches synchronously
func (s *Service) HandleMemoryPressure() {
	s.cache.HandleMemoryPressure()
}

func (s *Service) sessionID() string {
	if s.sessions == nil {
		return ""
	}
	if active, ok := s.sessions.Active(); ok {
		return active.ID
	}
	return ""
}
