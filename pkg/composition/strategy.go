// Package composition scores a detected subject against photographic composition
// rules and turns the score into feedback for the camera preview.
//
// Three strategies are available: rule of thirds, center framing and symmetry.
// Each consumes the subject box, the frame size and optionally a downsampled frame
// used for symmetry scoring. Evaluation never fails; missing inputs degrade the
// score instead.
package composition

import (
	"fmt"
	"image"
	"image/color"

	"github.com/menta2k/shotcoach/pkg/symmetry"
	"github.com/menta2k/shotcoach/pkg/types"
)

// Strategy evaluates a frame against one composition rule. The set of
// implementations is closed: RuleOfThirds, CenterFraming and Symmetry.
type Strategy interface {
	Composition() ID
	Evaluate(obs types.Observation, frame types.Size, sample image.Image) Result
	sealed()
}

// New returns the strategy for a composition with default configuration
func New(id ID) (Strategy, error) {
	return NewWithConfig(id, DefaultConfig(), symmetry.New())
}

// NewWithConfig returns the strategy for a composition with custom configuration
func NewWithConfig(id ID, config Config, scorer *symmetry.Scorer) (Strategy, error) {
	if scorer == nil {
		scorer = symmetry.New()
	}
	analyzer := NewContextAnalyzer(config)
	switch id {
	case RuleOfThirdsID:
		return &RuleOfThirds{config: config, analyzer: analyzer}, nil
	case CenterFramingID:
		return &CenterFraming{config: config, analyzer: analyzer, scorer: scorer}, nil
	case SymmetryID:
		return &Symmetry{config: config, analyzer: analyzer, scorer: scorer}, nil
	default:
		return nil, fmt.Errorf("unknown composition: %q", id)
	}
}

// ParseID validates a composition name
func ParseID(name string) (ID, error) {
	for _, id := range IDs() {
		if string(id) == name {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown composition: %q", name)
}

var (
	warningColor = color.NRGBA{255, 69, 58, 255}
	guideColor   = color.NRGBA{255, 255, 255, 255}
	successColor = color.NRGBA{52, 199, 89, 255}
)

// degenerate reports observations that cannot be scored
func degenerate(obs types.Observation) bool {
	return !obs.Valid()
}

// edgeSuggestion names the first dangerous edge
func edgeSuggestion(edges []Edge) string {
	if len(edges) == 0 {
		return "Move away from the edge"
	}
	return fmt.Sprintf("Move away from the %s edge", edges[0])
}

// safetyZone outlines the area inside the edge margin
func safetyZone(margin float64) Overlay {
	lo, hi := margin, 1-margin
	return Overlay{
		Kind: OverlaySafetyZone,
		Paths: [][]types.Point{{
			{X: lo, Y: lo}, {X: hi, Y: lo}, {X: hi, Y: hi}, {X: lo, Y: hi}, {X: lo, Y: lo},
		}},
		Color:       warningColor,
		Opacity:     0.6,
		StrokeWidth: 2,
	}
}

func crosshair(size float64) Overlay {
	return Overlay{
		Kind: OverlayCrosshair,
		Paths: [][]types.Point{
			{{X: 0.5 - size, Y: 0.5}, {X: 0.5 + size, Y: 0.5}},
			{{X: 0.5, Y: 0.5 - size}, {X: 0.5, Y: 0.5 + size}},
		},
		Color:       successColor,
		Opacity:     0.8,
		StrokeWidth: 1.5,
	}
}

func symmetryLine() Overlay {
	return Overlay{
		Kind:        OverlaySymmetryLine,
		Paths:       [][]types.Point{{{X: 0.5, Y: 0}, {X: 0.5, Y: 1}}},
		Color:       successColor,
		Opacity:     0.7,
		StrokeWidth: 1.5,
	}
}

func thirdsGrid() Overlay {
	const a, b = 1.0 / 3, 2.0 / 3
	return Overlay{
		Kind: OverlayThirdsGrid,
		Paths: [][]types.Point{
			{{X: a, Y: 0}, {X: a, Y: 1}},
			{{X: b, Y: 0}, {X: b, Y: 1}},
			{{X: 0, Y: a}, {X: 1, Y: a}},
			{{X: 0, Y: b}, {X: 1, Y: b}},
		},
		Color:       guideColor,
		Opacity:     0.4,
		StrokeWidth: 1,
	}
}
