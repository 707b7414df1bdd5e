package plan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fitarena/formcheck/internal/knowledge"
	"github.com/fitarena/formcheck/internal/logger"
	"github.com/fitarena/formcheck/internal/models"
)

// maxExercisesPerWeek caps plan volume so a severe multi-deviation
// assessment does not produce an undoable program.
const maxExercisesPerWeek = 4

// TextClient generates free-text coaching notes. Optional: a nil client
// means plans carry structured content only.
type TextClient interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Cache memoizes generated plans. Failures are advisory and must never
// block generation.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Generator builds 4-week corrective plans from classified deviations.
type Generator struct {
	base    *knowledge.Base
	text    TextClient
	cache   Cache
	planTTL time.Duration
	log     *logger.Logger
}

func NewGenerator(base *knowledge.Base, text TextClient, cache Cache, planTTL time.Duration, log *logger.Logger) *Generator {
	return &Generator{
		base:    base,
		text:    text,
		cache:   cache,
		planTTL: planTTL,
		log:     log.With("component", "plan"),
	}
}

// Generate produces the corrective plan for a set of deviations and a
// user profile. Given equal inputs the week and exercise structure is
// identical; only the plan ID, timestamp, and prose notes may differ.
func (g *Generator) Generate(ctx context.Context, deviations []models.DeviationFinding, profile models.UserProfile, pattern models.MovementPattern) (*models.CorrectivePlan, error) {
	key := g.cacheKey(deviations, profile, pattern)
	if g.cache != nil {
		if raw, ok := g.cache.Get(ctx, key); ok {
			var cached models.CorrectivePlan
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
			g.log.Warn("discarding undecodable cached plan", "key", key)
		}
	}

	ordered := orderDeviations(deviations)

	plan := &models.CorrectivePlan{
		ID:          uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
	}

	var plog []string
	weeks12 := g.buildPhase(ordered, profile, phaseMobility, &plog)
	weeks34 := g.buildPhase(ordered, profile, phaseStrength, &plog)

	days := trainingDays(profile)
	plan.Weeks = []models.WeekPlan{
		{Week: 1, Focus: "mobility and activation", TrainingDays: days, Goal: "restore the positions the lift needs", Exercises: weeks12},
		{Week: 2, Focus: "mobility and activation", TrainingDays: days, Goal: "own the new range with control", Exercises: weeks12},
		{Week: 3, Focus: "strengthening and integration", TrainingDays: days, Goal: "load the corrected pattern", Exercises: weeks34},
		{Week: 4, Focus: "strengthening and integration", TrainingDays: days, Goal: "carry the fix back into the main lift", Exercises: weeks34},
	}
	plan.RetestGoal = retestGoal(ordered, pattern)
	plan.PersonalizationLog = plog

	if g.text != nil {
		notes, err := g.text.GenerateText(ctx, g.notesPrompt(ordered, pattern, profile))
		if err != nil {
			g.log.Warn("plan notes generation failed, continuing without prose", "error", err)
		} else {
			plan.Notes = strings.TrimSpace(notes)
		}
	}

	if g.cache != nil {
		if raw, err := json.Marshal(plan); err == nil {
			g.cache.Set(ctx, key, raw, g.planTTL)
		}
	}
	return plan, nil
}

type phase int

const (
	phaseMobility phase = iota
	phaseStrength
)

// buildPhase selects and personalizes the exercises for one two-week
// phase, honoring the per-week cap in deviation-priority order.
func (g *Generator) buildPhase(ordered []models.DeviationFinding, profile models.UserProfile, ph phase, plog *[]string) []models.PlannedExercise {
	var out []models.PlannedExercise

	sources := ordered
	if len(sources) == 0 {
		sources = []models.DeviationFinding{{Type: "maintenance", Severity: models.SeverityMild}}
	}

	for _, dev := range sources {
		proto, ok := protocols[dev.Type]
		if !ok {
			if dev.Type == "maintenance" {
				proto = maintenanceProtocol
			} else {
				g.log.Warn("no protocol for deviation type, skipping", "type", dev.Type)
				continue
			}
		}
		pool := proto.Mobility
		if ph == phaseStrength {
			pool = proto.Strength
		}
		for _, ex := range pool {
			if len(out) >= maxExercisesPerWeek {
				return out
			}
			planned, skip := g.personalize(ex, dev, profile, plog)
			if skip {
				continue
			}
			out = append(out, planned)
		}
	}
	return out
}

// personalize applies equipment substitution, training-age and injury
// volume scaling, and symptom contraindication to one exercise. Every
// adjustment is appended to the personalization log.
func (g *Generator) personalize(ex protoExercise, dev models.DeviationFinding, profile models.UserProfile, plog *[]string) (models.PlannedExercise, bool) {
	name := ex.Name
	steps := ex.Steps

	if ex.Equipment != "" && !hasEquipment(profile.Equipment, ex.Equipment) {
		if ex.Alternative == "" {
			*plog = append(*plog, fmt.Sprintf("dropped %q: requires %s and no substitute exists", ex.Name, ex.Equipment))
			return models.PlannedExercise{}, true
		}
		*plog = append(*plog, fmt.Sprintf("substituted %q for %q: no %s available", ex.Alternative, ex.Name, ex.Equipment))
		name = ex.Alternative
	}

	sets := setsBySeverity[dev.Severity]
	freq := frequencyBySeverity[dev.Severity]
	if profile.TrainingAge == models.TrainingAgeBeginner {
		sets = reduceVolume(sets)
		*plog = append(*plog, fmt.Sprintf("reduced volume for %q: beginner training age", name))
	} else if injuryTouches(profile.Injuries, ex.Joint) {
		sets = reduceVolume(sets)
		*plog = append(*plog, fmt.Sprintf("reduced volume for %q: injury history at %s", name, ex.Joint))
	}

	contra := symptomTouches(profile.CurrentSymptoms, ex.Joint)
	if contra {
		*plog = append(*plog, fmt.Sprintf("flagged %q: reported symptoms at %s, stop if painful", name, ex.Joint))
	}

	return models.PlannedExercise{
		Name:            name,
		Purpose:         ex.Purpose,
		Sets:            sets,
		Frequency:       freq,
		Steps:           steps,
		Progression:     ex.Progression,
		TargetDeviation: dev.Type,
		Contraindicated: contra,
		Rationale:       g.rationale(dev.Type),
	}, false
}

func (g *Generator) rationale(deviationType string) string {
	kc := g.base.Lookup(deviationType)
	if kc == nil {
		return ""
	}
	return kc.Content
}

func (g *Generator) notesPrompt(ordered []models.DeviationFinding, pattern models.MovementPattern, profile models.UserProfile) string {
	var b strings.Builder
	b.WriteString("Write 3 short coaching sentences for an athlete whose ")
	b.WriteString(string(pattern))
	b.WriteString(" showed: ")
	if len(ordered) == 0 {
		b.WriteString("no significant faults")
	}
	for i, d := range ordered {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("%s (%s)", strings.ReplaceAll(d.Type, "_", " "), d.Severity))
	}
	b.WriteString(". Training age: ")
	b.WriteString(string(profile.TrainingAge))
	b.WriteString(". Encouraging, specific, no medical claims. Plain text only.")
	return b.String()
}

// cacheKey hashes the inputs that determine plan structure. Deviations
// are ordered first so classification output order does not fragment
// the cache.
func (g *Generator) cacheKey(deviations []models.DeviationFinding, profile models.UserProfile, pattern models.MovementPattern) string {
	ordered := orderDeviations(deviations)
	payload := struct {
		Deviations []models.DeviationFinding `json:"deviations"`
		Profile    models.UserProfile        `json:"profile"`
		Pattern    models.MovementPattern    `json:"pattern"`
	}{ordered, profile, pattern}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return "plan:" + hex.EncodeToString(sum[:])
}

// orderDeviations returns a copy sorted by severity descending, then
// type ascending, so plan priority and cache keys are stable.
func orderDeviations(deviations []models.DeviationFinding) []models.DeviationFinding {
	out := make([]models.DeviationFinding, len(deviations))
	copy(out, deviations)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() > out[j].Severity.Rank()
		}
		return out[i].Type < out[j].Type
	})
	return out
}

func retestGoal(ordered []models.DeviationFinding, pattern models.MovementPattern) string {
	if len(ordered) == 0 {
		return fmt.Sprintf("Re-film your %s in 4 weeks to confirm technique holds under progressive load.", pattern)
	}
	primary := strings.ReplaceAll(ordered[0].Type, "_", " ")
	return fmt.Sprintf("Re-film your %s in 4 weeks: the %s should be resolved or reduced by one severity level.", pattern, primary)
}

func hasEquipment(items []string, want string) bool {
	for _, it := range items {
		if strings.EqualFold(strings.TrimSpace(it), want) {
			return true
		}
	}
	return false
}

func injuryTouches(injuries []string, joint string) bool {
	return mentionsJoint(injuries, joint)
}

func symptomTouches(symptoms []string, joint string) bool {
	return mentionsJoint(symptoms, joint)
}

func mentionsJoint(entries []string, joint string) bool {
	if joint == "" || joint == "full_body" {
		return false
	}
	needle := strings.ReplaceAll(joint, "_", " ")
	for _, e := range entries {
		low := strings.ToLower(e)
		if strings.Contains(low, needle) || strings.Contains(low, joint) {
			return true
		}
	}
	return false
}

// trainingDays clamps the user's weekly frequency into the 2-5 range
// the plan structure supports.
func trainingDays(profile models.UserProfile) int {
	d := profile.WeeklyFrequency
	if d < 2 {
		return 2
	}
	if d > 5 {
		return 5
	}
	return d
}

// reduceVolume drops one set from an "NxM" dosage, flooring at 1 set.
func reduceVolume(sets string) string {
	parts := strings.SplitN(sets, "x", 2)
	if len(parts) != 2 {
		return sets
	}
	switch parts[0] {
	case "3":
		return "2x" + parts[1]
	case "2":
		return "1x" + parts[1]
	}
	return sets
}
