// Package shotcoach provides real-time composition feedback for a camera preview
// and subject-preserving background blur for captured photos.
//
// Basic usage:
//
//	coach := shotcoach.New()
//
//	// score the subject box reported by a detector for the current frame
//	result, err := coach.Evaluate(composition.RuleOfThirdsID, obs, frame, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(result.Suggestion)
//
//	// blur the background of a captured photo
//	img, _ := coach.Processor().LoadFile("photo.jpg")
//	blurred := coach.ApplyBackgroundBlur(ctx, img, 10, true)
//
// The package wires together three groups of components:
//
// 1. Composition (pkg/composition, pkg/symmetry): strategies and feedback
// 2. Blur (pkg/segmentation, pkg/mask, pkg/blur, pkg/background): masks and compositing
// 3. Retention (pkg/cache, pkg/session): bounded caches and edit sessions
//
// Scoring and blurring never fail. Missing subjects, degenerate boxes and
// segmentation errors degrade to a low score or the original image.
package shotcoach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/shotcoach/pkg/background"
	"github.com/menta2k/shotcoach/pkg/blur"
	"github.com/menta2k/shotcoach/pkg/cache"
	"github.com/menta2k/shotcoach/pkg/client"
	"github.com/menta2k/shotcoach/pkg/composition"
	"github.com/menta2k/shotcoach/pkg/mask"
	"github.com/menta2k/shotcoach/pkg/processing"
	"github.com/menta2k/shotcoach/pkg/segmentation"
	"github.com/menta2k/shotcoach/pkg/session"
	"github.com/menta2k/shotcoach/pkg/symmetry"
	"github.com/menta2k/shotcoach/pkg/types"
)

// Version of the shotcoach library
const Version = "1.0.0"

var (
	// ErrNoSubject is returned when no subject could be located
	ErrNoSubject = client.ErrNoSubject
	// ErrInvalidImage is returned for images that cannot be processed
	ErrInvalidImage = processing.ErrInvalidImage
)

// Locator is a segmentation provider that can also report the subject box
type Locator interface {
	segmentation.Provider
	segmentation.Locator
}

type options struct {
	logger      logrus.FieldLogger
	registerer  prometheus.Registerer
	clock       clockwork.Clock
	locator     Locator
	composition composition.Config
	mask        mask.Config
	blur        blur.Config
	cache       cache.Config
	session     session.Config
	processing  processing.Limits
}

// Option configures a Coach
type Option func(*options)

// WithLogger sets the logger shared by all components
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers cache metrics with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithClock sets the clock driving session expiry
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithLocator replaces the default saliency based subject locator
func WithLocator(locator Locator) Option {
	return func(o *options) { o.locator = locator }
}

// WithCompositionConfig sets the composition tuning constants
func WithCompositionConfig(config composition.Config) Option {
	return func(o *options) { o.composition = config }
}

// WithMaskConfig sets the mask refinement parameters
func WithMaskConfig(config mask.Config) Option {
	return func(o *options) { o.mask = config }
}

// WithBlurConfig sets the blur compositor parameters
func WithBlurConfig(config blur.Config) Option {
	return func(o *options) { o.blur = config }
}

// WithCacheConfig sets the cache ceilings
func WithCacheConfig(config cache.Config) Option {
	return func(o *options) { o.cache = config }
}

// WithSessionConfig sets session timing
func WithSessionConfig(config session.Config) Option {
	return func(o *options) { o.session = config }
}

// WithLimits sets image loading limits
func WithLimits(limits processing.Limits) Option {
	return func(o *options) { o.processing = limits }
}

// Coach is the high-level entry point
type Coach struct {
	strategies map[composition.ID]composition.Strategy
	locator    Locator
	processor  *processing.Processor
	cache      *cache.Manager
	sessions   *session.Manager
	blur       *background.Service
	logger     logrus.FieldLogger
}

// New creates a Coach with default configuration unless overridden by opts
func New(opts ...Option) *Coach {
	o := options{
		logger:      logrus.StandardLogger(),
		clock:       clockwork.NewRealClock(),
		composition: composition.DefaultConfig(),
		mask:        mask.DefaultConfig(),
		blur:        blur.DefaultConfig(),
		cache:       cache.DefaultConfig(),
		session:     session.DefaultConfig(),
		processing:  processing.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.locator == nil {
		o.locator = segmentation.NewSaliencyProvider()
	}

	scorer := symmetry.New()
	strategies := make(map[composition.ID]composition.Strategy, len(composition.IDs()))
	for _, id := range composition.IDs() {
		s, err := composition.NewWithConfig(id, o.composition, scorer)
		if err != nil {
			o.logger.WithError(err).Error("skipping composition")
			continue
		}
		strategies[id] = s
	}

	cacheOpts := []cache.Option{cache.WithLogger(o.logger)}
	if o.registerer != nil {
		cacheOpts = append(cacheOpts, cache.WithRegisterer(o.registerer))
	}
	caches := cache.NewManager(o.cache, cacheOpts...)
	sessions := session.NewManager(o.session, caches, o.clock, o.logger)

	return &Coach{
		strategies: strategies,
		locator:    o.locator,
		processor:  processing.NewProcessorWithLimits(o.processing),
		cache:      caches,
		sessions:   sessions,
		blur: background.NewService(o.locator, caches, sessions,
			background.WithLogger(o.logger),
			background.WithRefiner(mask.NewWithConfig(o.mask)),
			background.WithCompositor(blur.NewWithConfig(o.blur)),
		),
		logger: o.logger,
	}
}

// Strategy returns the configured strategy for a composition
func (c *Coach) Strategy(id composition.ID) (composition.Strategy, error) {
	s, ok := c.strategies[id]
	if !ok {
		return nil, fmt.Errorf("unknown composition: %q", id)
	}
	return s, nil
}

// Evaluate scores a subject box within a frame. sample is an optional
// downsampled frame used for symmetry scoring.
func (c *Coach) Evaluate(id composition.ID, obs types.Observation, frame types.Size, sample image.Image) (composition.Result, error) {
	s, err := c.Strategy(id)
	if err != nil {
		return composition.Result{}, err
	}
	return s.Evaluate(obs, frame, sample), nil
}

// EvaluateJSON scores a subject box and returns the result in its UI form
func (c *Coach) EvaluateJSON(id composition.ID, obs types.Observation, frame types.Size, sample image.Image) ([]byte, error) {
	result, err := c.Evaluate(id, obs, frame, sample)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// EvaluateImage locates the subject of img and scores it. An image without a
// subject still yields a result with a zero score and an invalid-subject hint.
func (c *Coach) EvaluateImage(ctx context.Context, id composition.ID, img image.Image) (composition.Result, error) {
	if err := c.processor.ValidateImage(img); err != nil {
		return composition.Result{}, err
	}
	obs, err := c.locator.Locate(ctx, img)
	if err != nil && !errors.Is(err, ErrNoSubject) {
		return composition.Result{}, fmt.Errorf("failed to locate subject: %w", err)
	}
	b := img.Bounds()
	frame := types.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
	return c.Evaluate(id, obs, frame, img)
}

// NewEvaluator returns a frame evaluator for a camera feed
func (c *Coach) NewEvaluator(id composition.ID) (*composition.Evaluator, error) {
	s, err := c.Strategy(id)
	if err != nil {
		return nil, err
	}
	return composition.NewEvaluator(s), nil
}

// ApplyBackgroundBlur blurs the background of img. Zero intensity returns img.
func (c *Coach) ApplyBackgroundBlur(ctx context.Context, img image.Image, intensity float64, useCache bool) image.Image {
	return c.blur.ApplyBackgroundBlur(ctx, img, intensity, useCache)
}

// GenerateBlurPreview renders a downscaled blur preview
func (c *Coach) GenerateBlurPreview(ctx context.Context, img image.Image, intensity float64, previewSize int) image.Image {
	return c.blur.GenerateBlurPreview(ctx, img, intensity, previewSize)
}

// Fingerprint returns the cache identity of img
func (c *Coach) Fingerprint(img image.Image) string {
	return c.blur.Fingerprint(img).String()
}

// ClearCache drops all cached masks and results
func (c *Coach) ClearCache() {
	c.blur.ClearCache()
}

// ClearCacheForImage drops everything derived from img
func (c *Coach) ClearCacheForImage(img image.Image) int {
	return c.blur.ClearCacheForImage(img)
}

// ClearCacheForID drops everything derived from the image with the given fingerprint
func (c *Coach) ClearCacheForID(id string) int {
	return c.blur.ClearCacheForID(id)
}

// StartSession opens an editing session for img
func (c *Coach) StartSession(img image.Image) session.Session {
	s, _ := c.blur.StartSession(img)
	return s
}

// EndSession closes the active editing session
func (c *Coach) EndSession(mode session.EndMode) {
	c.blur.EndSession(mode)
}

// ActiveSession returns the active editing session
func (c *Coach) ActiveSession() (session.Session, bool) {
	return c.sessions.Active()
}

// RunSessions expires sessions until ctx is cancelled
func (c *Coach) RunSessions(ctx context.Context) {
	c.sessions.Run(ctx)
}

// CacheStats returns cache counts and estimated memory
func (c *Coach) CacheStats() cache.Stats {
	return c.blur.CacheStats()
}

// HandleMemoryPressure clears all caches immediately
func (c *Coach) HandleMemoryPressure() {
	c.blur.HandleMemoryPressure()
}

// Processor returns the image loader and encoder
func (c *Coach) Processor() *processing.Processor {
	return c.processor
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
