package symmetry

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

// createMirroredImage creates an image whose left and right halves mirror each other
func createMirroredImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			d := x
			if width-1-x < d {
				d = width - 1 - x
			}
			v := uint8((d * 255) / (width / 2))
			img.Set(x, y, color.RGBA{v, v, 128, 255})
		}
	}
	return img
}

// createSplitImage creates an image that is white on the left and black on the right
func createSplitImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{0, 0, 0, 255})
			}
		}
	}
	return img
}

func TestScoreMirroredImage(t *testing.T) {
	score := New().Score(createMirroredImage(200, 120))
	assert.Greater(t, score, 0.95)
	assert.LessOrEqual(t, score, 1.0)
}

func TestScoreSplitImage(t *testing.T) {
	score := New().Score(createSplitImage(200, 120))
	assert.Less(t, score, 0.1)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestScoreDegenerateInput(t *testing.T) {
	s := New()
	assert.Equal(t, 0.0, s.Score(nil))
	assert.Equal(t, 0.0, s.Score(image.NewRGBA(image.Rect(0, 0, 0, 0))))
	assert.Equal(t, 0.0, s.Score(image.NewRGBA(image.Rect(0, 0, 1, 10))))
}

func TestScoreDeterministic(t *testing.T) {
	s := New()
	img := createMirroredImage(321, 97)
	assert.Equal(t, s.Score(img), s.Score(img))
}

func TestNewWithConfigDefaults(t *testing.T) {
	s := NewWithConfig(Config{})
	assert.Equal(t, 64, s.config.SampleSize)
	assert.Equal(t, 1, s.config.RowStride)
}

func BenchmarkScore(b *testing.B) {
	s := New()
	img := createMirroredImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Score(img)
	}
}
