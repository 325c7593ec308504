package client

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/menta2k/shotcoach/pkg/types"
)

// LocatePrompt asks for a single subject box in top-left normalized coordinates
const LocatePrompt = `You are an image subject locator.

Return JSON only:
{"label": "string", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}, "tags": ["tag1", "tag2"]}

RULES
- Coordinates are normalized to [0,1] with the origin at the top-left corner.
- The box tightly includes the visually dominant subject (prefer people, animals, vehicles).
- Tags are lowercase single words.
- If there is no clear subject return {"label": "none", "confidence": 0.0, "box": {"x": 0, "y": 0, "w": 0, "h": 0}, "tags": []}
- JSON only. No markdown, code fences or comments.`

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseLocation decodes a model reply into a Location. Replies naming no subject or
// carrying an empty box yield ErrNoSubject.
func ParseLocation(raw string) (*types.Location, error) {
	cleaned := SanitizeJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, fmt.Errorf("model reply is not JSON: %q", truncate(raw, 80))
	}

	var loc types.Location
	if err := json.Unmarshal([]byte(cleaned), &loc); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}

	loc.Label = strings.TrimSpace(loc.Label)
	loc.Box = normalizeBox(loc.Box)
	loc.Tags = normalizeTags(loc.Tags)

	if strings.EqualFold(loc.Label, "none") || loc.Box.W <= 0 || loc.Box.H <= 0 {
		return nil, ErrNoSubject
	}
	return &loc, nil
}

// SanitizeJSON strips code fences, comments and trailing commas and keeps the
// outermost object
func SanitizeJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// normalizeBox clamps the box into the unit square
func normalizeBox(b types.Box) types.Box {
	x, y := clamp(b.X), clamp(b.Y)
	return types.Box{
		X: x,
		Y: y,
		W: math.Min(clamp(b.W), 1-x),
		H: math.Min(clamp(b.H), 1-y),
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
