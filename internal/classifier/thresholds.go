package classifier

import "github.com/fitarena/formcheck/internal/models"

// deviationSpec is one canonical deviation type and the issue keywords
// that map onto it. Keyword matching is case-insensitive substring
// matching over the vision model's free-text issues.
type deviationSpec struct {
	Type      string
	Joint     string
	Keywords  []string
	LowerOnly bool // filtered out for upper-body movement patterns
}

var deviationSpecs = []deviationSpec{
	{
		Type:      "knee_valgus",
		Joint:     "knee",
		Keywords:  []string{"knee valgus", "knees caving", "knee caving", "knees collapsing", "valgus"},
		LowerOnly: true,
	},
	{
		Type:     "lumbar_flexion",
		Joint:    "lumbar_spine",
		Keywords: []string{"lower back rounding", "lumbar rounding", "lumbar flexion", "butt wink", "spinal flexion"},
	},
	{
		Type:     "forward_trunk_lean",
		Joint:    "trunk",
		Keywords: []string{"trunk lean", "leaning forward", "forward lean", "chest dropping", "torso collapse"},
	},
	{
		Type:      "ankle_mobility_deficit",
		Joint:     "ankle",
		Keywords:  []string{"heels rising", "heel lift", "ankle mobility", "heels off the ground"},
		LowerOnly: true,
	},
	{
		Type:      "insufficient_depth",
		Joint:     "hip",
		Keywords:  []string{"insufficient depth", "shallow squat", "above parallel", "partial range"},
		LowerOnly: true,
	},
	{
		Type:      "hip_shift",
		Joint:     "hip",
		Keywords:  []string{"hip shift", "shifting to one side", "weight shift", "uneven hips"},
		LowerOnly: true,
	},
	{
		Type:     "scapular_instability",
		Joint:    "scapula",
		Keywords: []string{"scapular", "shoulder blade", "shoulders rolling", "shoulder instability"},
	},
	{
		Type:     "elbow_flare",
		Joint:    "elbow",
		Keywords: []string{"elbow flare", "elbows flaring", "elbows out"},
	},
	{
		Type:     "bar_path_deviation",
		Joint:    "spine",
		Keywords: []string{"bar path", "bar drifting", "bar away from body"},
	},
	{
		Type:     "cervical_hyperextension",
		Joint:    "neck",
		Keywords: []string{"neck", "cervical", "looking up", "head position"},
	},
}

// Severity thresholds keyed by prevalence (fraction of analyzed frames
// showing the issue) and the mean score of those frames. Exact numbers
// are tuning data, not contract; ordering mild < moderate < severe is.
const (
	severePrevalence   = 0.60
	severeFrameScore   = 3.0
	moderatePrevalence = 0.30
	moderateFrameScore = 5.5
)

func severityFor(prevalence, avgFrameScore float64) models.Severity {
	switch {
	case prevalence >= severePrevalence || avgFrameScore <= severeFrameScore:
		return models.SeveritySevere
	case prevalence >= moderatePrevalence || avgFrameScore <= moderateFrameScore:
		return models.SeverityModerate
	default:
		return models.SeverityMild
	}
}
