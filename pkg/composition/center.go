package composition

import (
	"image"
	"math"
	"strings"

	"github.com/menta2k/shotcoach/pkg/symmetry"
	"github.com/menta2k/shotcoach/pkg/types"
)

// CenterFraming scores how close the subject is to the frame center, with a bonus
// for symmetric scenes once centered
type CenterFraming struct {
	config   Config
	analyzer *ContextAnalyzer
	scorer   *symmetry.Scorer
}

func (*CenterFraming) sealed() {}

// Composition implements Strategy
func (*CenterFraming) Composition() ID { return CenterFramingID }

// Distance returns the distance from the box center to the frame center
func (s *CenterFraming) Distance(obs types.Observation) float64 {
	return math.Hypot(obs.MidX()-0.5, obs.MidY()-0.5)
}

// IsCentered reports whether the box center lies within the center threshold
func (s *CenterFraming) IsCentered(obs types.Observation) bool {
	return s.Distance(obs) <= s.config.CenterThreshold
}

// Evaluate implements Strategy
func (s *CenterFraming) Evaluate(obs types.Observation, frame types.Size, sample image.Image) Result {
	ctx := s.analyzer.Analyze(obs, frame)
	result := Result{Composition: CenterFramingID, Context: ctx}
	if degenerate(obs) {
		result.Status = StatusNeedsAdjustment
		result.Feedback = FeedbackReposition
		result.Suggestion = "Point the camera at your subject"
		return result
	}

	distance := s.Distance(obs)
	centered := distance <= s.config.CenterThreshold
	score := clamp(1-distance/maxCenterDistance, 0, 1)

	var sym float64
	if centered && sample != nil {
		sym = s.scorer.Score(sample)
		score = score*s.config.CenterBaseWeight + sym*s.config.CenterSymmetryWeight
	}
	result.Score = clamp(score, 0, 1)

	switch {
	case ctx.EdgeProximity.SafetyMargin < s.config.EdgeMargin:
		result.Status = StatusNeedsAdjustment
		result.Feedback = FeedbackEdge
		result.Suggestion = edgeSuggestion(ctx.EdgeProximity.DangerousEdges)
		result.Overlays = append(result.Overlays, safetyZone(s.config.EdgeMargin))
	case ctx.Headroom.ExcessiveHeadroom && ctx.Headroom.CutoffLimbs:
		result.Status = StatusNeedsAdjustment
		result.Feedback = FeedbackCutoff
		result.Suggestion = "Subject is cut off with too much space above, raise the camera"
	case centered:
		if sym > s.config.CenterPerfectSymmetry {
			result.Status = StatusPerfect
			result.Feedback = FeedbackPerfect
			result.Suggestion = "Perfectly centered and symmetrical!"
		} else {
			result.Status = StatusGood
			result.Feedback = FeedbackGood
			result.Suggestion = "Nicely centered"
		}
		result.Overlays = append(result.Overlays, crosshair(s.config.CenterThreshold))
	default:
		result.Status = StatusNeedsAdjustment
		result.Feedback = FeedbackReposition
		result.Suggestion = s.direction(obs)
	}

	return result
}

// direction builds the correction text from the offset on each axis
func (s *CenterFraming) direction(obs types.Observation) string {
	dx, dy := obs.MidX()-0.5, obs.MidY()-0.5
	var parts []string
	if dx > s.config.DirectionDeadband {
		parts = append(parts, "left")
	} else if dx < -s.config.DirectionDeadband {
		parts = append(parts, "right")
	}
	if dy > s.config.DirectionDeadband {
		parts = append(parts, "down")
	} else if dy < -s.config.DirectionDeadband {
		parts = append(parts, "up")
	}
	if len(parts) == 0 {
		return "Move subject toward the center"
	}
	return "Move subject " + strings.Join(parts, " and ") + " to center"
}
