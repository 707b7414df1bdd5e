package plan

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitarena/formcheck/internal/knowledge"
	"github.com/fitarena/formcheck/internal/logger"
	"github.com/fitarena/formcheck/internal/models"
)

type memoryCache struct {
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	raw, ok := c.data[key]
	return raw, ok
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) {
	c.data[key] = value
}

func newTestGenerator(cache Cache) *Generator {
	return NewGenerator(knowledge.NewBase(), nil, cache, time.Hour, logger.NewNop())
}

func kneeValgus(sev models.Severity) models.DeviationFinding {
	return models.DeviationFinding{Type: "knee_valgus", Severity: sev, Joint: "knee", Confidence: 0.7}
}

func fullEquipmentProfile() models.UserProfile {
	return models.UserProfile{
		TrainingAge:     models.TrainingAgeIntermediate,
		Equipment:       []string{"resistance_band", "dumbbell", "box", "barbell", "foam_roller", "dowel"},
		WeeklyFrequency: 3,
	}
}

func TestGenerate_FourWeekStructure(t *testing.T) {
	g := newTestGenerator(nil)

	plan, err := g.Generate(context.Background(),
		[]models.DeviationFinding{kneeValgus(models.SeverityModerate)},
		fullEquipmentProfile(), models.PatternSquat)
	require.NoError(t, err)

	require.Len(t, plan.Weeks, 4)
	assert.Equal(t, "mobility and activation", plan.Weeks[0].Focus)
	assert.Equal(t, "mobility and activation", plan.Weeks[1].Focus)
	assert.Equal(t, "strengthening and integration", plan.Weeks[2].Focus)
	assert.Equal(t, "strengthening and integration", plan.Weeks[3].Focus)
	for i, week := range plan.Weeks {
		assert.Equal(t, i+1, week.Week)
		assert.NotEmpty(t, week.Exercises)
		assert.LessOrEqual(t, len(week.Exercises), maxExercisesPerWeek)
	}
	assert.NotEmpty(t, plan.RetestGoal)
	assert.Contains(t, plan.RetestGoal, "knee valgus")
}

func TestGenerate_Deterministic(t *testing.T) {
	g := newTestGenerator(nil)
	ctx := context.Background()

	deviations := []models.DeviationFinding{
		{Type: "lumbar_flexion", Severity: models.SeveritySevere, Joint: "lumbar_spine"},
		kneeValgus(models.SeverityModerate),
	}
	profile := fullEquipmentProfile()

	first, err := g.Generate(ctx, deviations, profile, models.PatternSquat)
	require.NoError(t, err)

	// Same inputs with the deviations in a different order.
	reordered := []models.DeviationFinding{deviations[1], deviations[0]}
	second, err := g.Generate(ctx, reordered, profile, models.PatternSquat)
	require.NoError(t, err)

	assert.Equal(t, first.Weeks, second.Weeks)
	assert.Equal(t, first.RetestGoal, second.RetestGoal)
	assert.Equal(t, first.PersonalizationLog, second.PersonalizationLog)
	assert.NotEqual(t, first.ID, second.ID, "plan identity is per generation")
}

func TestGenerate_SevereDeviationLeads(t *testing.T) {
	g := newTestGenerator(nil)

	plan, err := g.Generate(context.Background(),
		[]models.DeviationFinding{
			kneeValgus(models.SeverityMild),
			{Type: "lumbar_flexion", Severity: models.SeveritySevere, Joint: "lumbar_spine"},
		},
		fullEquipmentProfile(), models.PatternSquat)
	require.NoError(t, err)

	first := plan.Weeks[0].Exercises[0]
	assert.Equal(t, "lumbar_flexion", first.TargetDeviation,
		"the most severe deviation is addressed first")
}

func TestGenerate_EquipmentSubstitution(t *testing.T) {
	g := newTestGenerator(nil)

	profile := models.UserProfile{
		TrainingAge:     models.TrainingAgeIntermediate,
		Equipment:       nil, // nothing at home
		WeeklyFrequency: 3,
	}

	plan, err := g.Generate(context.Background(),
		[]models.DeviationFinding{kneeValgus(models.SeverityModerate)},
		profile, models.PatternSquat)
	require.NoError(t, err)

	var names []string
	for _, ex := range plan.Weeks[0].Exercises {
		names = append(names, ex.Name)
	}
	assert.Contains(t, names, "Side-lying hip abduction",
		"banded drill swaps to its bodyweight alternative")
	assert.NotContains(t, names, "Banded lateral walk")

	logged := strings.Join(plan.PersonalizationLog, "\n")
	assert.Contains(t, logged, "substituted")
	assert.Contains(t, logged, "resistance_band")
}

func TestGenerate_BeginnerVolumeReduction(t *testing.T) {
	g := newTestGenerator(nil)

	profile := fullEquipmentProfile()
	profile.TrainingAge = models.TrainingAgeBeginner

	plan, err := g.Generate(context.Background(),
		[]models.DeviationFinding{kneeValgus(models.SeverityModerate)},
		profile, models.PatternSquat)
	require.NoError(t, err)

	for _, ex := range plan.Weeks[0].Exercises {
		assert.Equal(t, "2x12", ex.Sets, "moderate dosage drops one set for beginners")
	}
	logged := strings.Join(plan.PersonalizationLog, "\n")
	assert.Contains(t, logged, "beginner")
}

func TestGenerate_SymptomContraindication(t *testing.T) {
	g := newTestGenerator(nil)

	profile := fullEquipmentProfile()
	profile.CurrentSymptoms = []string{"sharp knee pain descending stairs"}

	plan, err := g.Generate(context.Background(),
		[]models.DeviationFinding{kneeValgus(models.SeverityModerate)},
		profile, models.PatternSquat)
	require.NoError(t, err)

	flagged := false
	for _, ex := range plan.Weeks[0].Exercises {
		if ex.Contraindicated {
			flagged = true
		}
	}
	assert.True(t, flagged, "knee work is flagged when knee symptoms are reported")

	logged := strings.Join(plan.PersonalizationLog, "\n")
	assert.Contains(t, logged, "symptoms")
}

func TestGenerate_MaintenancePlanWhenClean(t *testing.T) {
	g := newTestGenerator(nil)

	plan, err := g.Generate(context.Background(), nil, fullEquipmentProfile(), models.PatternDeadlift)
	require.NoError(t, err)

	require.Len(t, plan.Weeks, 4)
	for _, week := range plan.Weeks {
		require.NotEmpty(t, week.Exercises, "a clean assessment still gets progression guidance")
	}
	assert.Contains(t, plan.RetestGoal, "deadlift")
}

func TestGenerate_CacheRoundTrip(t *testing.T) {
	cache := newMemoryCache()
	g := newTestGenerator(cache)
	ctx := context.Background()

	deviations := []models.DeviationFinding{kneeValgus(models.SeverityModerate)}
	profile := fullEquipmentProfile()

	first, err := g.Generate(ctx, deviations, profile, models.PatternSquat)
	require.NoError(t, err)
	require.NotEmpty(t, cache.data)

	second, err := g.Generate(ctx, deviations, profile, models.PatternSquat)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "cache hit returns the memoized plan verbatim")

	// A different profile misses the cache.
	other := profile
	other.TrainingAge = models.TrainingAgeBeginner
	third, err := g.Generate(ctx, deviations, other, models.PatternSquat)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestGenerate_RationaleFromKnowledgeBase(t *testing.T) {
	g := newTestGenerator(nil)

	plan, err := g.Generate(context.Background(),
		[]models.DeviationFinding{kneeValgus(models.SeverityModerate)},
		fullEquipmentProfile(), models.PatternSquat)
	require.NoError(t, err)

	found := false
	for _, ex := range plan.Weeks[0].Exercises {
		if ex.Rationale != "" {
			found = true
		}
	}
	assert.True(t, found, "exercises carry scientific context for known deviations")
}
