package composition

import (
	"image"
	"math"

	"github.com/menta2k/shotcoach/pkg/types"
)

// RuleOfThirds scores how close the subject sits to a thirds intersection or line
type RuleOfThirds struct {
	config   Config
	analyzer *ContextAnalyzer
}

func (*RuleOfThirds) sealed() {}

// Composition implements Strategy
func (*RuleOfThirds) Composition() ID { return RuleOfThirdsID }

type intersection struct {
	point types.Point
	label string
}

// Labels are in Observation space, so y = 2/3 is the upper third
var intersections = []intersection{
	{types.Point{X: 1.0 / 3, Y: 2.0 / 3}, "upper left"},
	{types.Point{X: 2.0 / 3, Y: 2.0 / 3}, "upper right"},
	{types.Point{X: 1.0 / 3, Y: 1.0 / 3}, "lower left"},
	{types.Point{X: 2.0 / 3, Y: 1.0 / 3}, "lower right"},
}

// ThirdsScore holds the intermediate scores of a rule of thirds evaluation
type ThirdsScore struct {
	Point             types.Point
	IntersectionScore float64
	LineScore         float64
	Score             float64
	Nearest           string
}

// Evaluate implements Strategy. The sample is not used by this rule.
func (s *RuleOfThirds) Evaluate(obs types.Observation, frame types.Size, _ image.Image) Result {
	ctx := s.analyzer.Analyze(obs, frame)
	result := Result{Composition: RuleOfThirdsID, Context: ctx}
	if degenerate(obs) {
		result.Status = StatusNeedsAdjustment
		result.Feedback = FeedbackReposition
		result.Suggestion = "Point the camera at your subject"
		return result
	}

	scores := s.Score(obs, frame, ctx.SubjectSize)
	result.Score = scores.Score

	// Headroom only matters once the subject fills a meaningful part of the frame
	framing := ctx.SubjectSize != SubjectSmall

	switch {
	case ctx.EdgeProximity.TooCloseToEdge:
		result.Status = StatusNeedsAdjustment
		result.Feedback = FeedbackEdge
		result.Suggestion = edgeSuggestion(ctx.EdgeProximity.DangerousEdges)
		result.Overlays = append(result.Overlays, safetyZone(s.config.EdgeMargin))
	case framing && ctx.Headroom.ExcessiveHeadroom:
		result.Status = StatusNeedsAdjustment
		result.Feedback = FeedbackHeadroom
		result.Suggestion = "Too much space above, tilt the camera down"
	case framing && ctx.Headroom.CutoffLimbs:
		result.Status = StatusNeedsAdjustment
		result.Feedback = FeedbackCutoff
		result.Suggestion = "Subject is cut off at the bottom, step back"
	case scores.Score > s.config.ThirdsPerfectScore:
		result.Status = StatusPerfect
		result.Feedback = FeedbackPerfect
		result.Suggestion = "Perfect rule of thirds!"
		result.Overlays = append(result.Overlays, thirdsGrid())
	case scores.Score > s.config.ThirdsGoodScore:
		result.Status = StatusGood
		result.Feedback = FeedbackGood
		result.Suggestion = "Good, almost on a thirds intersection"
		result.Overlays = append(result.Overlays, thirdsGrid())
	case scores.LineScore > s.config.ThirdsGoodLineScore:
		result.Status = StatusGood
		result.Feedback = FeedbackGood
		result.Suggestion = "Good, subject is on a thirds line"
		result.Overlays = append(result.Overlays, thirdsGrid())
	default:
		result.Status = StatusNeedsAdjustment
		result.Feedback = FeedbackReposition
		result.Suggestion = "Move subject toward the " + scores.Nearest + " third"
	}

	return result
}

// Score computes the intersection and line scores for an observation
func (s *RuleOfThirds) Score(obs types.Observation, frame types.Size, size SubjectSize) ThirdsScore {
	p := s.scoringPoint(obs, frame, size)

	factor := s.config.ToleranceFactor
	if size == SubjectLarge {
		factor = s.config.LargeToleranceFactor
	}
	intersectionTol := s.config.IntersectionTolerance * factor
	lineTol := s.config.LineTolerance * factor

	minDist := math.Inf(1)
	nearest := intersections[0].label
	for _, in := range intersections {
		d := math.Hypot(p.X-in.point.X, p.Y-in.point.Y)
		if d < minDist {
			minDist = d
			nearest = in.label
		}
	}
	intersectionScore := falloff(minDist, intersectionTol, s.config.ScoreExponent)

	vDist := math.Min(math.Abs(p.X-1.0/3), math.Abs(p.X-2.0/3))
	hDist := math.Min(math.Abs(p.Y-1.0/3), math.Abs(p.Y-2.0/3))
	lineScore := s.config.VerticalLineWeight*falloff(vDist, lineTol, s.config.ScoreExponent) +
		s.config.HorizontalLineWeight*falloff(hDist, lineTol, s.config.ScoreExponent)
	lineScore = math.Min(lineScore, 1)

	score := math.Max(intersectionScore, lineScore*s.config.LineScoreFactor)

	return ThirdsScore{
		Point:             p,
		IntersectionScore: intersectionScore,
		LineScore:         lineScore,
		Score:             clamp(score, 0, 1),
		Nearest:           nearest,
	}
}

// scoringPoint uses the eye line of near-square small and medium subjects,
// and the box center otherwise
func (s *RuleOfThirds) scoringPoint(obs types.Observation, frame types.Size, size SubjectSize) types.Point {
	center := types.Point{X: obs.MidX(), Y: obs.MidY()}
	if size == SubjectLarge {
		return center
	}

	aspect := obs.W / obs.H
	if frame.Valid() {
		aspect = (obs.W * frame.Width) / (obs.H * frame.Height)
	}
	if aspect < s.config.MinSquareAspect || aspect > s.config.MaxSquareAspect {
		return center
	}

	return types.Point{X: obs.MidX(), Y: obs.MaxY() - s.config.EyeLineFraction*obs.H}
}
