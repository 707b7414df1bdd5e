package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitarena/formcheck/internal/models"
)

func frame(idx int, score float64, issues ...string) models.FrameResult {
	return models.FrameResult{Index: idx, Score: score, Issues: issues}
}

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, models.SeverityMild.Rank() < models.SeverityModerate.Rank())
	assert.True(t, models.SeverityModerate.Rank() < models.SeveritySevere.Rank())
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, models.SeveritySevere, severityFor(0.7, 6.0), "high prevalence alone is severe")
	assert.Equal(t, models.SeveritySevere, severityFor(0.2, 2.5), "very poor frames alone are severe")
	assert.Equal(t, models.SeverityModerate, severityFor(0.4, 7.0))
	assert.Equal(t, models.SeverityModerate, severityFor(0.1, 5.0))
	assert.Equal(t, models.SeverityMild, severityFor(0.15, 8.0))
}

func TestClassify_ModerateKneeValgus(t *testing.T) {
	c := New()

	// Knee caving in 2 of 6 frames at decent scores: a moderate finding
	// on the knee, overall risk MODERATE.
	frames := []models.FrameResult{
		frame(0, 7.5),
		frame(1, 5.5, "knees caving inward at the bottom"),
		frame(2, 7.0),
		frame(3, 5.0, "knee valgus visible during ascent"),
		frame(4, 7.5),
		frame(5, 8.0),
	}

	result := c.Classify(frames, models.PatternSquat)

	require.Len(t, result.Deviations, 1)
	dev := result.Deviations[0]
	assert.Equal(t, "knee_valgus", dev.Type)
	assert.Equal(t, "knee", dev.Joint)
	assert.Equal(t, models.SeverityModerate, dev.Severity)
	assert.Equal(t, 1, dev.FrameStart)
	assert.Equal(t, 3, dev.FrameEnd)
	assert.Equal(t, models.RiskModerate, result.RiskLevel)
	assert.False(t, result.PlanRequired)
}

func TestClassify_RiskIsMaxSeverity(t *testing.T) {
	c := New()

	// One mild finding plus one severe one: risk must be HIGH, not an
	// average of the two.
	frames := []models.FrameResult{
		frame(0, 2.0, "severe lumbar rounding under load"),
		frame(1, 2.5, "lumbar flexion at the bottom"),
		frame(2, 3.0, "lower back rounding"),
		frame(3, 8.0, "slight forward lean"),
		frame(4, 8.5),
		frame(5, 8.0),
	}

	result := c.Classify(frames, models.PatternDeadlift)

	require.Len(t, result.Deviations, 2)
	bySeverity := map[string]models.Severity{}
	for _, d := range result.Deviations {
		bySeverity[d.Type] = d.Severity
	}
	assert.Equal(t, models.SeveritySevere, bySeverity["lumbar_flexion"])
	assert.Equal(t, models.SeverityMild, bySeverity["forward_trunk_lean"])
	assert.Equal(t, models.RiskHigh, result.RiskLevel)
	assert.True(t, result.PlanRequired)
}

func TestClassify_NoFindings(t *testing.T) {
	c := New()

	frames := []models.FrameResult{
		frame(0, 8.5),
		frame(1, 9.0),
	}

	result := c.Classify(frames, models.PatternSquat)
	assert.Empty(t, result.Deviations)
	assert.Equal(t, models.RiskLow, result.RiskLevel)
	assert.False(t, result.PlanRequired)
}

func TestClassify_LowerBodyFilteredForUpperBodyPatterns(t *testing.T) {
	c := New()

	frames := []models.FrameResult{
		frame(0, 5.0, "knee valgus", "elbows flaring wide"),
		frame(1, 5.0, "elbow flare on the press"),
	}

	result := c.Classify(frames, models.PatternBenchPress)

	for _, d := range result.Deviations {
		assert.NotEqual(t, "knee_valgus", d.Type, "lower-body deviation must not appear for bench press")
	}
	require.Len(t, result.Deviations, 1)
	assert.Equal(t, "elbow_flare", result.Deviations[0].Type)
}

func TestClassify_SameIssueCountedOncePerFrame(t *testing.T) {
	c := New()

	// Two phrasings of the same fault in one frame are one occurrence.
	frames := []models.FrameResult{
		frame(0, 6.0, "knees caving", "clear knee valgus"),
		frame(1, 8.0),
		frame(2, 8.0),
		frame(3, 8.0),
	}

	result := c.Classify(frames, models.PatternSquat)
	require.Len(t, result.Deviations, 1)
	assert.Equal(t, 0, result.Deviations[0].FrameStart)
	assert.Equal(t, 0, result.Deviations[0].FrameEnd)
	// 1 of 4 frames at score 6.0 is a mild finding.
	assert.Equal(t, models.SeverityMild, result.Deviations[0].Severity)
}

func TestBilateralAsymmetry(t *testing.T) {
	frames := []models.FrameResult{
		frame(0, 6.0, "weight shifting to the left side"),
		frame(1, 6.0, "left hip dropping"),
		frame(2, 6.0, "left knee caving"),
		frame(3, 7.0, "right side stable"),
	}
	asym := bilateralAsymmetry(frames)
	assert.InDelta(t, 0.5, asym, 0.001)

	assert.Zero(t, bilateralAsymmetry([]models.FrameResult{frame(0, 8.0, "good depth")}))
}

func TestDeviationConfidence_Bounds(t *testing.T) {
	assert.LessOrEqual(t, deviationConfidence(1.0, 0.0), 1.0)
	assert.GreaterOrEqual(t, deviationConfidence(0.0, 10.0), 0.05)
	assert.Greater(t, deviationConfidence(0.8, 4.0), deviationConfidence(0.2, 4.0),
		"confidence grows with prevalence")
	assert.Greater(t, deviationConfidence(0.5, 3.0), deviationConfidence(0.5, 8.0),
		"confidence grows as affected frames score worse")
}
