package composition

import (
	"encoding/json"
	"image/color"
	"math"

	"github.com/menta2k/shotcoach/pkg/types"
)

// ID identifies a composition rule
type ID string

const (
	RuleOfThirdsID  ID = "ruleOfThirds"
	CenterFramingID ID = "centerFraming"
	SymmetryID      ID = "symmetry"
)

// IDs returns every supported composition in display order
func IDs() []ID {
	return []ID{RuleOfThirdsID, CenterFramingID, SymmetryID}
}

// Status is the coarse verdict shown to the user
type Status string

const (
	StatusPerfect         Status = "perfect"
	StatusGood            Status = "good"
	StatusNeedsAdjustment Status = "needsAdjustment"
)

// Feedback is the category of a suggestion. Its level is fixed per category so that
// every strategy reports the same visual severity for the same kind of problem.
type Feedback int

const (
	FeedbackPerfect Feedback = iota
	FeedbackGood
	FeedbackReposition
	FeedbackHeadroom
	FeedbackCutoff
	FeedbackEdge
)

var feedbackLevels = map[Feedback]int{
	FeedbackPerfect:    1,
	FeedbackGood:       2,
	FeedbackReposition: 3,
	FeedbackHeadroom:   4,
	FeedbackCutoff:     5,
	FeedbackEdge:       6,
}

var feedbackIcons = map[Feedback]string{
	FeedbackPerfect:    "checkmark.circle.fill",
	FeedbackGood:       "checkmark.circle",
	FeedbackReposition: "arrow.up.and.down.and.arrow.left.and.right",
	FeedbackHeadroom:   "arrow.up.to.line",
	FeedbackCutoff:     "figure.stand",
	FeedbackEdge:       "exclamationmark.triangle.fill",
}

// Level returns the severity from 1 (best) to 6 (worst)
func (f Feedback) Level() int {
	if l, ok := feedbackLevels[f]; ok {
		return l
	}
	return feedbackLevels[FeedbackEdge]
}

// Icon returns the icon name used by the UI for this category
func (f Feedback) Icon() string {
	return feedbackIcons[f]
}

// OverlayKind names an overlay element
type OverlayKind string

const (
	OverlaySafetyZone   OverlayKind = "safetyZone"
	OverlayCrosshair    OverlayKind = "crosshair"
	OverlaySymmetryLine OverlayKind = "symmetryLine"
	OverlayThirdsGrid   OverlayKind = "thirdsGrid"
)

// Overlay is a geometric description of a guide drawn over the preview.
// Paths are polylines in normalized Observation space.
type Overlay struct {
	Kind        OverlayKind     `json:"kind"`
	Paths       [][]types.Point `json:"paths"`
	Color       color.NRGBA     `json:"color"`
	Opacity     float64         `json:"opacity"`
	StrokeWidth float64         `json:"strokeWidth"`
}

// Result is the outcome of evaluating one frame with one strategy
type Result struct {
	Composition ID
	Score       float64
	Status      Status
	Suggestion  string
	Feedback    Feedback
	Overlays    []Overlay
	Context     Context
}

// FeedbackLevel returns the severity of the suggestion
func (r Result) FeedbackLevel() int {
	return r.Feedback.Level()
}

type resultJSON struct {
	Composition  ID          `json:"composition"`
	Score        float64     `json:"score"`
	Status       Status      `json:"status"`
	Suggestion   string      `json:"suggestion"`
	FeedbackIcon string      `json:"feedbackIcon"`
	Context      contextJSON `json:"context"`
}

type contextJSON struct {
	SubjectSize      SubjectSize `json:"subjectSize"`
	OffsetX          float64     `json:"offsetX"`
	OffsetY          float64     `json:"offsetY"`
	MultipleSubjects bool        `json:"multipleSubjects"`
}

// MarshalJSON emits the compact form consumed by the UI layer
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Composition:  r.Composition,
		Score:        round2(r.Score),
		Status:       r.Status,
		Suggestion:   r.Suggestion,
		FeedbackIcon: r.Feedback.Icon(),
		Context: contextJSON{
			SubjectSize:      r.Context.SubjectSize,
			OffsetX:          round2(r.Context.OffsetX),
			OffsetY:          round2(r.Context.OffsetY),
			MultipleSubjects: r.Context.MultipleSubjects,
		},
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
