package classifier

import (
	"math"
	"sort"
	"strings"

	"github.com/fitarena/formcheck/internal/models"
)

// Classification aggregates per-frame vision output into joint-level
// deviations, a bilateral asymmetry figure and an overall risk level.
type Classification struct {
	Deviations []models.DeviationFinding
	RiskLevel  models.RiskLevel
	Asymmetry  float64
	// PlanRequired is forced on for HIGH risk regardless of any user
	// preference; LOW/MODERATE still generate a plan, but callers may
	// surface this flag to explain why the plan cannot be skipped.
	PlanRequired bool
}

type Classifier struct{}

func New() *Classifier {
	return &Classifier{}
}

// Classify maps the free-text issues in the per-frame results onto
// canonical deviation findings with ordered severities. Risk is the
// maximum severity observed, LOW when nothing was found.
func (c *Classifier) Classify(frames []models.FrameResult, pattern models.MovementPattern) Classification {
	type occurrence struct {
		frames     []int
		scoreSum   float64
		scoreCount int
	}
	hits := make(map[string]*occurrence)

	for _, frame := range frames {
		matched := make(map[string]bool)
		for _, issue := range frame.Issues {
			text := strings.ToLower(issue)
			for _, spec := range deviationSpecs {
				if spec.LowerOnly && pattern.UpperBody() {
					continue
				}
				if matched[spec.Type] || !matchesSpec(text, spec) {
					continue
				}
				matched[spec.Type] = true
				occ, ok := hits[spec.Type]
				if !ok {
					occ = &occurrence{}
					hits[spec.Type] = occ
				}
				occ.frames = append(occ.frames, frame.Index)
				occ.scoreSum += frame.Score
				occ.scoreCount++
			}
		}
	}

	result := Classification{RiskLevel: models.RiskLow}
	total := float64(len(frames))
	if total == 0 {
		return result
	}

	for _, spec := range deviationSpecs {
		occ, ok := hits[spec.Type]
		if !ok {
			continue
		}

		prevalence := float64(len(occ.frames)) / total
		avgScore := occ.scoreSum / float64(occ.scoreCount)
		severity := severityFor(prevalence, avgScore)

		sort.Ints(occ.frames)
		result.Deviations = append(result.Deviations, models.DeviationFinding{
			Type:       spec.Type,
			Severity:   severity,
			Confidence: deviationConfidence(prevalence, avgScore),
			Joint:      spec.Joint,
			FrameStart: occ.frames[0],
			FrameEnd:   occ.frames[len(occ.frames)-1],
		})
	}

	result.Asymmetry = bilateralAsymmetry(frames)
	result.RiskLevel = riskFor(result.Deviations)
	result.PlanRequired = result.RiskLevel == models.RiskHigh

	return result
}

func matchesSpec(issueText string, spec deviationSpec) bool {
	for _, kw := range spec.Keywords {
		if strings.Contains(issueText, kw) {
			return true
		}
	}
	return false
}

// deviationConfidence grows with prevalence and with how poor the
// affected frames scored; both indicate the model kept seeing the fault.
func deviationConfidence(prevalence, avgFrameScore float64) float64 {
	scoreSignal := (10 - avgFrameScore) / 10
	conf := 0.5*prevalence + 0.5*scoreSignal
	return math.Max(0.05, math.Min(1, conf))
}

// bilateralAsymmetry compares left- vs right-side issue mentions. Zero
// when the frames carry no sided language.
func bilateralAsymmetry(frames []models.FrameResult) float64 {
	var left, right float64
	for _, frame := range frames {
		for _, issue := range frame.Issues {
			text := strings.ToLower(issue)
			if strings.Contains(text, "left") {
				left++
			}
			if strings.Contains(text, "right") {
				right++
			}
		}
	}
	if left+right == 0 {
		return 0
	}
	return math.Abs(left-right) / (left + right)
}

// riskFor is the maximum deviation severity present, LOW if none (P2).
func riskFor(deviations []models.DeviationFinding) models.RiskLevel {
	maxRank := 0
	for _, d := range deviations {
		if r := d.Severity.Rank(); r > maxRank {
			maxRank = r
		}
	}
	switch maxRank {
	case 3:
		return models.RiskHigh
	case 2:
		return models.RiskModerate
	default:
		return models.RiskLow
	}
}
