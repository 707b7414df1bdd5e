package plan

import "github.com/fitarena/formcheck/internal/models"

// protoExercise is one prescribable exercise in a base protocol.
// Equipment names the required item; Alternative is the no-equipment
// substitute used when the user's profile lacks it.
type protoExercise struct {
	Name        string
	Purpose     string
	Equipment   string
	Alternative string
	Joint       string
	Steps       []string
	Progression string
}

// baseProtocol holds the corrective work for one deviation type, split
// into the plan's two phases: weeks 1-2 mobility/activation, weeks 3-4
// strengthening/integration.
type baseProtocol struct {
	Mobility []protoExercise
	Strength []protoExercise
}

// Dosage by severity. Severe findings get more volume because the fault
// needs more practice at corrective positions, not heavier loading.
var setsBySeverity = map[models.Severity]string{
	models.SeverityMild:     "2x10",
	models.SeverityModerate: "3x12",
	models.SeveritySevere:   "3x15",
}

var frequencyBySeverity = map[models.Severity]string{
	models.SeverityMild:     "3x/week",
	models.SeverityModerate: "4x/week",
	models.SeveritySevere:   "5x/week",
}

var protocols = map[string]baseProtocol{
	"knee_valgus": {
		Mobility: []protoExercise{
			{
				Name:        "Banded lateral walk",
				Purpose:     "Activate gluteus medius against valgus collapse",
				Equipment:   "resistance_band",
				Alternative: "Side-lying hip abduction",
				Joint:       "knee",
				Steps:       []string{"Band above knees, quarter-squat stance", "Step sideways keeping knees pushed out", "Maintain tension both directions"},
				Progression: "Heavier band or lower stance in week 2",
			},
			{
				Name:        "Wall-supported knee-out squat",
				Purpose:     "Groove knees-over-toes tracking without load",
				Joint:       "knee",
				Steps:       []string{"Back against wall, feet shoulder width", "Descend slowly, drive knees outward", "Pause at bottom, check tracking"},
				Progression: "Add a 3-second pause at depth",
			},
		},
		Strength: []protoExercise{
			{
				Name:        "Goblet squat with band",
				Purpose:     "Load the squat while resisting valgus",
				Equipment:   "dumbbell",
				Alternative: "Tempo bodyweight squat with band",
				Joint:       "knee",
				Steps:       []string{"Band above knees, dumbbell at chest", "Squat to full controllable depth", "Knees track over toes throughout"},
				Progression: "Increase load, keep band tension",
			},
			{
				Name:        "Single-leg step-down",
				Purpose:     "Unilateral knee control under fatigue",
				Equipment:   "box",
				Alternative: "Stair step-down",
				Joint:       "knee",
				Steps:       []string{"Stand on box edge on one leg", "Lower the free heel to the floor slowly", "Keep the stance knee aligned over the foot"},
				Progression: "Taller box or slower eccentric",
			},
		},
	},
	"lumbar_flexion": {
		Mobility: []protoExercise{
			{
				Name:        "Quadruped hip hinge rock-back",
				Purpose:     "Find hip flexion without lumbar rounding",
				Joint:       "lumbar_spine",
				Steps:       []string{"Hands under shoulders, knees under hips", "Rock hips back keeping spine neutral", "Stop before the pelvis tucks"},
				Progression: "Progress to standing hinge with dowel",
			},
			{
				Name:        "Dead bug",
				Purpose:     "Anterior core stiffness with neutral spine",
				Joint:       "lumbar_spine",
				Steps:       []string{"Lie supine, low back pressed to floor", "Extend opposite arm and leg slowly", "Exhale fully each rep"},
				Progression: "Slower tempo, then light ankle weight",
			},
		},
		Strength: []protoExercise{
			{
				Name:        "Romanian deadlift",
				Purpose:     "Load the hinge with a braced neutral spine",
				Equipment:   "barbell",
				Alternative: "Single-leg hip hinge reach",
				Joint:       "lumbar_spine",
				Steps:       []string{"Soft knees, push hips back", "Bar slides along thighs", "Stop where neutral is lost, stand tall"},
				Progression: "Add load only with a held neutral position",
			},
			{
				Name:        "Front plank with reach",
				Purpose:     "Anti-extension endurance for bracing",
				Joint:       "lumbar_spine",
				Steps:       []string{"Forearm plank, glutes tight", "Reach one arm forward without hip sway", "Alternate sides"},
				Progression: "Longer reaches, feet narrower",
			},
		},
	},
	"forward_trunk_lean": {
		Mobility: []protoExercise{
			{
				Name:        "Heel-elevated bodyweight squat",
				Purpose:     "Upright torso practice with reduced ankle demand",
				Joint:       "trunk",
				Steps:       []string{"Heels on a small plate or wedge", "Squat keeping chest tall", "Arms extended forward as counterbalance"},
				Progression: "Reduce heel height over sessions",
			},
			{
				Name:        "Thoracic extension on foam roller",
				Purpose:     "Free the upper back so the chest can stay up",
				Equipment:   "foam_roller",
				Alternative: "Wall slide",
				Joint:       "thoracic_spine",
				Steps:       []string{"Roller across mid-back", "Support head, extend over the roller", "Move segment by segment"},
				Progression: "Add a light overhead reach",
			},
		},
		Strength: []protoExercise{
			{
				Name:        "Front-loaded squat",
				Purpose:     "Anterior load forces an upright trunk",
				Equipment:   "dumbbell",
				Alternative: "Arms-forward tempo squat",
				Joint:       "trunk",
				Steps:       []string{"Weight held at chest height", "Squat with vertical torso", "Elbows stay lifted"},
				Progression: "Increase load gradually",
			},
		},
	},
	"ankle_mobility_deficit": {
		Mobility: []protoExercise{
			{
				Name:        "Knee-to-wall dorsiflexion mobilization",
				Purpose:     "Expand usable dorsiflexion range",
				Joint:       "ankle",
				Steps:       []string{"Foot a hand-width from wall", "Drive knee to wall, heel planted", "Add distance as range improves"},
				Progression: "Light load on the knee in week 2",
			},
			{
				Name:        "Calf stretch with bent knee",
				Purpose:     "Target soleus restriction",
				Joint:       "ankle",
				Steps:       []string{"Forefoot on step, knee bent", "Lower heel below the step", "Hold, breathe, repeat"},
				Progression: "Longer holds",
			},
		},
		Strength: []protoExercise{
			{
				Name:        "Heel-elevated goblet squat",
				Purpose:     "Train depth while mobility catches up",
				Equipment:   "dumbbell",
				Alternative: "Heel-elevated bodyweight squat",
				Joint:       "ankle",
				Steps:       []string{"Heels on a wedge, weight at chest", "Full-depth squat, heels down", "Control the bottom position"},
				Progression: "Lower the wedge, keep the depth",
			},
		},
	},
	"insufficient_depth": {
		Mobility: []protoExercise{
			{
				Name:        "Deep squat hold with support",
				Purpose:     "Accumulate time in the deep position",
				Joint:       "hip",
				Steps:       []string{"Hold a post or doorframe", "Sit into the deepest comfortable squat", "Breathe, shift weight gently"},
				Progression: "Reduce hand support over time",
			},
		},
		Strength: []protoExercise{
			{
				Name:        "Paused goblet squat",
				Purpose:     "Strength at the newly gained range",
				Equipment:   "dumbbell",
				Alternative: "Paused bodyweight squat",
				Joint:       "hip",
				Steps:       []string{"Squat to maximum controllable depth", "3-second pause", "Drive up without bouncing"},
				Progression: "Longer pauses, then load",
			},
		},
	},
	"hip_shift": {
		Mobility: []protoExercise{
			{
				Name:        "Single-leg glute bridge",
				Purpose:     "Equalize unilateral hip drive",
				Joint:       "hip",
				Steps:       []string{"One foot planted, other leg extended", "Bridge up without pelvis tilt", "Match reps per side"},
				Progression: "Pause at the top",
			},
		},
		Strength: []protoExercise{
			{
				Name:        "Split squat",
				Purpose:     "Load each side independently",
				Equipment:   "dumbbell",
				Alternative: "Bodyweight split squat",
				Joint:       "hip",
				Steps:       []string{"Long split stance", "Lower the back knee straight down", "Even weight through the front foot"},
				Progression: "Start with the weaker side, match volume",
			},
		},
	},
	"scapular_instability": {
		Mobility: []protoExercise{
			{
				Name:        "Scapular wall slide",
				Purpose:     "Re-pattern scapular upward rotation",
				Joint:       "scapula",
				Steps:       []string{"Forearms on wall, slide up", "Keep ribs down", "Feel the lower traps work"},
				Progression: "Add a light band",
			},
			{
				Name:        "Prone Y-T raise",
				Purpose:     "Lower trapezius activation",
				Joint:       "scapula",
				Steps:       []string{"Lie prone, arms in Y then T", "Lift from the shoulder blades", "Thumbs up, neck long"},
				Progression: "Small plates in week 2",
			},
		},
		Strength: []protoExercise{
			{
				Name:        "Band pull-apart",
				Purpose:     "Scapular retraction endurance",
				Equipment:   "resistance_band",
				Alternative: "Prone T raise",
				Joint:       "scapula",
				Steps:       []string{"Band at shoulder height", "Pull apart squeezing blades together", "Control the return"},
				Progression: "Heavier band, higher reps",
			},
		},
	},
	"elbow_flare": {
		Mobility: []protoExercise{
			{
				Name:        "Push-up with tucked elbows",
				Purpose:     "Groove a 45-degree elbow path",
				Joint:       "elbow",
				Steps:       []string{"Hands under shoulders", "Lower with elbows at 45 degrees", "Full lockout each rep"},
				Progression: "Slower eccentric",
			},
		},
		Strength: []protoExercise{
			{
				Name:        "Floor press",
				Purpose:     "Pressing strength with a constrained elbow path",
				Equipment:   "dumbbell",
				Alternative: "Tempo tucked push-up",
				Joint:       "elbow",
				Steps:       []string{"Lie on floor, press from elbows touching ground", "Keep the 45-degree path", "Pause at the bottom"},
				Progression: "Add load with held path",
			},
		},
	},
	"bar_path_deviation": {
		Mobility: []protoExercise{
			{
				Name:        "Dowel hinge drill",
				Purpose:     "Keep the load over mid-foot",
				Equipment:   "dowel",
				Alternative: "Hands-on-thighs hinge drill",
				Joint:       "spine",
				Steps:       []string{"Dowel along spine, three contact points", "Hinge keeping contact", "Shins vertical"},
				Progression: "Close the eyes to test the pattern",
			},
		},
		Strength: []protoExercise{
			{
				Name:        "Light technique deadlift",
				Purpose:     "Re-pattern the pull at low load",
				Equipment:   "barbell",
				Alternative: "Single-dumbbell hinge pull",
				Joint:       "spine",
				Steps:       []string{"Bar over mid-foot at setup", "Drag the bar up the legs", "Film side-on and review"},
				Progression: "Small load increases only with a clean path",
			},
		},
	},
	"cervical_hyperextension": {
		Mobility: []protoExercise{
			{
				Name:        "Chin tuck",
				Purpose:     "Restore a packed neutral neck",
				Joint:       "neck",
				Steps:       []string{"Glide the chin straight back", "Hold 5 seconds", "No tilting"},
				Progression: "Perform against light band resistance",
			},
		},
		Strength: []protoExercise{
			{
				Name:        "Neutral-gaze hinge practice",
				Purpose:     "Keep the neck stacked during lifts",
				Joint:       "neck",
				Steps:       []string{"Pick a floor spot two meters ahead", "Hinge holding the gaze", "Neck follows the torso line"},
				Progression: "Integrate into warm-up sets",
			},
		},
	},
}

// maintenanceProtocol is prescribed when no deviations were found: the
// plan pivots to progression guidance rather than being skipped.
var maintenanceProtocol = baseProtocol{
	Mobility: []protoExercise{
		{
			Name:        "Movement-specific warm-up circuit",
			Purpose:     "Maintain the ranges the lift needs",
			Joint:       "full_body",
			Steps:       []string{"5 minutes general warm-up", "Two light ramp-up sets of the main lift", "One mobility drill per tight area"},
			Progression: "Keep it consistent, not longer",
		},
	},
	Strength: []protoExercise{
		{
			Name:        "Progressive overload block",
			Purpose:     "Convert clean technique into strength gains",
			Joint:       "full_body",
			Steps:       []string{"Add 2.5-5% load or 1-2 reps per week", "Keep 1-2 reps in reserve", "Re-film a set weekly to monitor form"},
			Progression: "Deload in week 4 if bar speed drops",
		},
	},
}
