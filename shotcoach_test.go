package shotcoach

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/shotcoach/pkg/composition"
	"github.com/menta2k/shotcoach/pkg/session"
	"github.com/menta2k/shotcoach/pkg/types"
)

// createTestImage creates a dark frame with a bright subject left of centre
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBA{R: 64, G: 64, B: 64, A: 255}
			if x > width*3/10 && x < width*6/10 && y > height/4 && y < height*3/4 {
				c = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func newTestCoach(opts ...Option) *Coach {
	logger, _ := test.NewNullLogger()
	return New(append([]Option{WithLogger(logger)}, opts...)...)
}

var frame1080p = types.Size{Width: 1920, Height: 1080}

func TestEvaluate(t *testing.T) {
	coach := newTestCoach()
	obs := types.Observation{X: 1.0/3 - 0.02, Y: 1.0/3 - 0.02, W: 0.04, H: 0.04}

	r, err := coach.Evaluate(composition.RuleOfThirdsID, obs, frame1080p, nil)
	require.NoError(t, err)
	assert.Equal(t, composition.StatusPerfect, r.Status)

	_, err = coach.Evaluate("goldenRatio", obs, frame1080p, nil)
	assert.Error(t, err)
}

func TestEvaluateJSON(t *testing.T) {
	coach := newTestCoach()
	obs := types.Observation{X: 0.7, Y: 0.45, W: 0.1, H: 0.1}

	data, err := coach.EvaluateJSON(composition.CenterFramingID, obs, frame1080p, nil)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "centerFraming", got["composition"])
	assert.Equal(t, "needsAdjustment", got["status"])
	assert.Equal(t, "Move subject left to center", got["suggestion"])
	assert.Contains(t, got, "context")
}

func TestEvaluateImage(t *testing.T) {
	coach := newTestCoach()

	r, err := coach.EvaluateImage(context.Background(), composition.CenterFramingID, createTestImage(200, 150))
	require.NoError(t, err)
	assert.Equal(t, composition.CenterFramingID, r.Composition)
	assert.Greater(t, r.Score, 0.0)

	// a featureless frame has no subject but still produces feedback
	flat := image.NewNRGBA(image.Rect(0, 0, 100, 80))
	for i := range flat.Pix {
		flat.Pix[i] = 200
	}
	r, err = coach.EvaluateImage(context.Background(), composition.RuleOfThirdsID, flat)
	require.NoError(t, err)
	assert.Zero(t, r.Score)
	assert.Equal(t, composition.StatusNeedsAdjustment, r.Status)

	_, err = coach.EvaluateImage(context.Background(), composition.RuleOfThirdsID, image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestNewEvaluator(t *testing.T) {
	coach := newTestCoach()
	e, err := coach.NewEvaluator(composition.SymmetryID)
	require.NoError(t, err)

	require.True(t, e.Submit(composition.Frame{
		Observation: types.Observation{X: 0.45, Y: 0.45, W: 0.1, H: 0.1},
		Size:        frame1080p,
	}))
	e.Wait()
	r, seq := e.Latest().Get()
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, composition.SymmetryID, r.Composition)

	_, err = coach.NewEvaluator("nope")
	assert.Error(t, err)
}

func TestBackgroundBlur(t *testing.T) {
	reg := prometheus.NewRegistry()
	coach := newTestCoach(WithRegisterer(reg))
	img := createTestImage(200, 150)
	ctx := context.Background()

	assert.Same(t, img, coach.ApplyBackgroundBlur(ctx, img, 0, true))

	out := coach.ApplyBackgroundBlur(ctx, img, 10, true)
	assert.Equal(t, img.Bounds(), out.Bounds())
	assert.Same(t, out, coach.ApplyBackgroundBlur(ctx, img, 10, true))

	preview := coach.GenerateBlurPreview(ctx, img, 10, 100)
	assert.Equal(t, image.Rect(0, 0, 100, 75), preview.Bounds())

	stats := coach.CacheStats()
	assert.Equal(t, 1, stats.Masks.Items)
	assert.Equal(t, 2, stats.Results.Items)
	assert.Equal(t, 1, stats.TrackedImages)

	hits, err := testutil.GatherAndCount(reg, "shotcoach_cache_hits_total")
	require.NoError(t, err)
	assert.Positive(t, hits)

	assert.Equal(t, 3, coach.ClearCacheForImage(img))
	assert.Zero(t, coach.CacheStats().TotalBytes)
}

func TestSessions(t *testing.T) {
	coach := newTestCoach()
	img := createTestImage(120, 90)

	s := coach.StartSession(img)
	assert.Equal(t, coach.Fingerprint(img), s.Image)
	active, ok := coach.ActiveSession()
	require.True(t, ok)
	assert.Equal(t, s.ID, active.ID)

	coach.ApplyBackgroundBlur(context.Background(), img, 5, true)
	coach.EndSession(session.EndKeepCurrent)
	_, ok = coach.ActiveSession()
	assert.False(t, ok)
	assert.Equal(t, 1, coach.CacheStats().TrackedImages)

	coach.HandleMemoryPressure()
	assert.Zero(t, coach.CacheStats().TrackedImages)
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, Version, GetVersion())
}
