package classify

import (
	"sort"
	"strings"

	"curator/internal/textutil"
)

// highConfidence flags any non-safe top label above this score.
const highConfidence = 0.8

// Label is one image-classification output.
type Label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Detection is one object-detection output.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Response is what a backend returns for a single image.
type Response struct {
	Labels     []Label     `json:"labels"`
	Detections []Detection `json:"detections"`
}

// Rules decide whether one image counts as flagged.
type Rules struct {
	Threshold       float64
	FlaggedLabels   []string
	SafeLabels      []string
	DetectionLabels []string
}

// Flagged applies the label and detection rules to resp.
func (r Rules) Flagged(resp Response) bool {
	return r.labelFlagged(resp.Labels) || r.detectionFlagged(resp.Detections)
}

func (r Rules) labelFlagged(labels []Label) bool {
	if len(labels) == 0 {
		return false
	}
	sorted := append([]Label(nil), labels...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	top := sorted[0]
	label := textutil.FoldLabel(top.Label)

	if containsAny(label, r.FlaggedLabels) && top.Score > r.Threshold {
		return true
	}
	for _, safe := range r.SafeLabels {
		if label == safe {
			return false
		}
	}
	return top.Score > highConfidence
}

func (r Rules) detectionFlagged(detections []Detection) bool {
	for _, d := range detections {
		if d.Confidence < r.Threshold {
			continue
		}
		if containsAny(textutil.FoldLabel(d.Label), r.DetectionLabels) {
			return true
		}
	}
	return false
}

func containsAny(label string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(label, k) {
			return true
		}
	}
	return false
}
