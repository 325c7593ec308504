package composition

import (
	"image"
	"math"

	"github.com/menta2k/shotcoach/pkg/symmetry"
	"github.com/menta2k/shotcoach/pkg/types"
)

// Balance is the horizontal weighting of the subject
type Balance string

const (
	BalanceLeft     Balance = "left-weighted"
	BalanceRight    Balance = "right-weighted"
	BalanceBalanced Balance = "balanced"
)

// Symmetry scores mirror symmetry of the scene combined with subject centering
type Symmetry struct {
	config   Config
	analyzer *ContextAnalyzer
	scorer   *symmetry.Scorer
}

func (*Symmetry) sealed() {}

// Composition implements Strategy
func (*Symmetry) Composition() ID { return SymmetryID }

// Balance classifies the horizontal position of the subject
func (s *Symmetry) Balance(obs types.Observation) Balance {
	switch cx := obs.MidX(); {
	case cx < s.config.LeftBalanceThreshold:
		return BalanceLeft
	case cx > s.config.RightBalanceThreshold:
		return BalanceRight
	default:
		return BalanceBalanced
	}
}

// Evaluate implements Strategy. Without a sample the symmetry term is 0.
func (s *Symmetry) Evaluate(obs types.Observation, frame types.Size, sample image.Image) Result {
	ctx := s.analyzer.Analyze(obs, frame)
	result := Result{Composition: SymmetryID, Context: ctx}
	if degenerate(obs) {
		result.Status = StatusNeedsAdjustment
		result.Feedback = FeedbackReposition
		result.Suggestion = "Point the camera at your subject"
		return result
	}

	var sym float64
	if sample != nil {
		sym = s.scorer.Score(sample)
	}
	distance := math.Hypot(obs.MidX()-0.5, obs.MidY()-0.5)
	centering := math.Max(0, 1-s.config.CenteringFalloff*distance)
	result.Score = clamp(s.config.SymmetryWeight*sym+s.config.CenteringWeight*centering, 0, 1)

	switch {
	case ctx.EdgeProximity.TooCloseToEdge:
		result.Status = StatusNeedsAdjustment
		result.Feedback = FeedbackEdge
		result.Suggestion = edgeSuggestion(ctx.EdgeProximity.DangerousEdges)
		result.Overlays = append(result.Overlays, safetyZone(s.config.EdgeMargin))
	case result.Score > s.config.SymmetryPerfectScore:
		result.Status = StatusPerfect
		result.Feedback = FeedbackPerfect
		result.Suggestion = "Beautiful symmetry!"
		result.Overlays = append(result.Overlays, symmetryLine())
	case result.Score > s.config.SymmetryGoodScore:
		result.Status = StatusGood
		result.Feedback = FeedbackGood
		result.Suggestion = "Good symmetry"
		result.Overlays = append(result.Overlays, symmetryLine())
	default:
		result.Status = StatusNeedsAdjustment
		result.Feedback = FeedbackReposition
		switch s.Balance(obs) {
		case BalanceLeft:
			result.Suggestion = "Frame is left-weighted, move subject right"
		case BalanceRight:
			result.Suggestion = "Frame is right-weighted, move subject left"
		default:
			result.Suggestion = "Find a more symmetrical viewpoint"
		}
	}

	return result
}
