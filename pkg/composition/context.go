package composition

import (
	"math"

	"github.com/menta2k/shotcoach/pkg/types"
)

// SubjectSize classifies the subject by its share of the frame
type SubjectSize string

const (
	SubjectSmall  SubjectSize = "small"
	SubjectMedium SubjectSize = "medium"
	SubjectLarge  SubjectSize = "large"
)

// Edge names a side of the frame
type Edge string

const (
	EdgeLeft   Edge = "left"
	EdgeRight  Edge = "right"
	EdgeTop    Edge = "top"
	EdgeBottom Edge = "bottom"
)

// EdgeProximity describes how close the subject is to the frame border
type EdgeProximity struct {
	TooCloseToEdge bool    `json:"tooCloseToEdge"`
	DangerousEdges []Edge  `json:"dangerousEdges"`
	SafetyMargin   float64 `json:"safetyMargin"`
}

// Headroom describes the space above the subject
type Headroom struct {
	Space             float64 `json:"space"`
	ExcessiveHeadroom bool    `json:"excessiveHeadroom"`
	CutoffLimbs       bool    `json:"cutoffLimbs"`
	PortraitOptimal   bool    `json:"portraitOptimal"`
}

// Context is the scene snapshot derived from one observation
type Context struct {
	SubjectSize      SubjectSize   `json:"subjectSize"`
	OffsetX          float64       `json:"offsetX"`
	OffsetY          float64       `json:"offsetY"`
	EdgeProximity    EdgeProximity `json:"edgeProximity"`
	Headroom         Headroom      `json:"headroom"`
	MultipleSubjects bool          `json:"multipleSubjects"`
}

// ContextAnalyzer derives scene metrics from a subject box
type ContextAnalyzer struct {
	config Config
}

// NewContextAnalyzer creates a ContextAnalyzer with the given configuration
func NewContextAnalyzer(config Config) *ContextAnalyzer {
	return &ContextAnalyzer{config: config}
}

// Analyze computes the context for an observation. The frame size is accepted for
// symmetry with the strategies; all metrics are computed in normalized space.
func (a *ContextAnalyzer) Analyze(obs types.Observation, _ types.Size) Context {
	return Context{
		SubjectSize:   a.subjectSize(obs.Area()),
		OffsetX:       clamp((obs.MidX()-0.5)*2, -1, 1),
		OffsetY:       clamp((obs.MidY()-0.5)*2, -1, 1),
		EdgeProximity: a.edgeProximity(obs),
		Headroom:      a.headroom(obs),
		// Multi-subject analysis is not implemented
		MultipleSubjects: false,
	}
}

func (a *ContextAnalyzer) subjectSize(area float64) SubjectSize {
	switch {
	case area < a.config.SmallAreaThreshold:
		return SubjectSmall
	case area < a.config.MediumAreaThreshold:
		return SubjectMedium
	default:
		return SubjectLarge
	}
}

func (a *ContextAnalyzer) edgeProximity(obs types.Observation) EdgeProximity {
	margin := a.config.EdgeMargin
	var edges []Edge
	if obs.MinX() < margin {
		edges = append(edges, EdgeLeft)
	}
	if obs.MaxX() > 1-margin {
		edges = append(edges, EdgeRight)
	}
	if obs.MaxY() > 1-margin {
		edges = append(edges, EdgeTop)
	}
	if obs.MinY() < margin {
		edges = append(edges, EdgeBottom)
	}

	safety := math.Min(math.Min(obs.MinX(), obs.MinY()), math.Min(1-obs.MaxX(), 1-obs.MaxY()))

	return EdgeProximity{
		TooCloseToEdge: len(edges) > 0,
		DangerousEdges: edges,
		SafetyMargin:   clamp(safety, 0, 1),
	}
}

func (a *ContextAnalyzer) headroom(obs types.Observation) Headroom {
	space := 1 - obs.MaxY()
	cutoff := obs.MinY() < a.config.CutoffMargin
	return Headroom{
		Space:             space,
		ExcessiveHeadroom: space > a.config.ExcessiveHeadroom,
		CutoffLimbs:       cutoff,
		PortraitOptimal:   space > a.config.MinPortraitHeadroom && space < a.config.MaxPortraitHeadroom && !cutoff,
	}
}
