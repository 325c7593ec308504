package composition

import "math"

// Config holds the tuning constants of the context analyzer and the strategies.
// The defaults are empirically chosen and should be changed together with the
// tests that pin the resulting scores.
type Config struct {
	// Subject size classes by normalized area
	SmallAreaThreshold  float64
	MediumAreaThreshold float64

	// Edge proximity
	EdgeMargin float64

	// Headroom
	ExcessiveHeadroom   float64
	CutoffMargin        float64
	MinPortraitHeadroom float64
	MaxPortraitHeadroom float64

	// Rule of thirds
	IntersectionTolerance float64
	LineTolerance         float64
	LargeToleranceFactor  float64
	ToleranceFactor       float64
	ScoreExponent         float64
	VerticalLineWeight    float64
	HorizontalLineWeight  float64
	LineScoreFactor       float64
	EyeLineFraction       float64
	MinSquareAspect       float64
	MaxSquareAspect       float64
	ThirdsPerfectScore    float64
	ThirdsGoodScore       float64
	ThirdsGoodLineScore   float64

	// Center framing
	CenterThreshold       float64
	CenterBaseWeight      float64
	CenterSymmetryWeight  float64
	CenterPerfectSymmetry float64
	DirectionDeadband     float64

	// Symmetry
	SymmetryWeight        float64
	CenteringWeight       float64
	CenteringFalloff      float64
	LeftBalanceThreshold  float64
	RightBalanceThreshold float64
	SymmetryPerfectScore  float64
	SymmetryGoodScore     float64
}

// DefaultConfig returns the tuned defaults
func DefaultConfig() Config {
	return Config{
		SmallAreaThreshold:  0.15,
		MediumAreaThreshold: 0.35,

		EdgeMargin: 0.03,

		ExcessiveHeadroom:   0.4,
		CutoffMargin:        0.01,
		MinPortraitHeadroom: 0.05,
		MaxPortraitHeadroom: 0.4,

		IntersectionTolerance: 0.18,
		LineTolerance:         0.15,
		LargeToleranceFactor:  1.8,
		ToleranceFactor:       1.2,
		ScoreExponent:         0.7,
		VerticalLineWeight:    0.6,
		HorizontalLineWeight:  0.4,
		LineScoreFactor:       0.85,
		EyeLineFraction:       0.25,
		MinSquareAspect:       0.75,
		MaxSquareAspect:       1.33,
		ThirdsPerfectScore:    0.7,
		ThirdsGoodScore:       0.4,
		ThirdsGoodLineScore:   0.7,

		CenterThreshold:       0.12,
		CenterBaseWeight:      0.8,
		CenterSymmetryWeight:  0.2,
		CenterPerfectSymmetry: 0.8,
		DirectionDeadband:     0.05,

		SymmetryWeight:        0.8,
		CenteringWeight:       0.2,
		CenteringFalloff:      4,
		LeftBalanceThreshold:  0.45,
		RightBalanceThreshold: 0.55,
		SymmetryPerfectScore:  0.75,
		SymmetryGoodScore:     0.5,
	}
}

// maxCenterDistance is the distance from the frame center to a corner
var maxCenterDistance = math.Sqrt(0.5)

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// falloff maps a distance within tolerance to (0,1], and 0 outside
func falloff(distance, tolerance, exponent float64) float64 {
	if tolerance <= 0 || distance >= tolerance {
		return 0
	}
	return math.Pow(1-distance/tolerance, exponent)
}
