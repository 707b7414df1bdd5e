// Package knowledge serves the scientific context snippets that enrich
// corrective-plan rationale. Lookups hit a small curated base; results
// are memoized because the same deviation types recur constantly.
package knowledge

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Context is one piece of evidence-backed background for a deviation.
type Context struct {
	Topic   string
	Content string
	Source  string
}

type Base struct {
	cache *cache.Cache
}

func NewBase() *Base {
	return &Base{
		cache: cache.New(30*time.Minute, time.Hour),
	}
}

// Lookup returns the scientific context for a deviation type, or nil
// when the base has nothing for it.
func (b *Base) Lookup(deviationType string) *Context {
	key := strings.ToLower(strings.TrimSpace(deviationType))
	if key == "" {
		return nil
	}

	if cached, ok := b.cache.Get(key); ok {
		if ctx, ok := cached.(*Context); ok {
			return ctx
		}
	}

	entry, ok := contexts[key]
	if !ok {
		return nil
	}
	b.cache.Set(key, &entry, cache.DefaultExpiration)
	return &entry
}

var contexts = map[string]Context{
	"knee_valgus": {
		Topic:   "knee_valgus",
		Content: "Dynamic knee valgus is associated with weak hip abductors and external rotators, especially gluteus medius. Loaded hip abduction and lateral band work reduce valgus collapse under fatigue.",
		Source:  "Hewett et al., knee abduction moment studies",
	},
	"lumbar_flexion": {
		Topic:   "lumbar_flexion",
		Content: "Loss of lumbar neutrality under load shifts stress to passive spinal structures. Hip hinge re-patterning and anterior core stiffness work restore a braced neutral position.",
		Source:  "McGill, spinal mechanics literature",
	},
	"forward_trunk_lean": {
		Topic:   "forward_trunk_lean",
		Content: "Excessive trunk inclination usually traces to limited ankle dorsiflexion or a weak anterior core, increasing hip moment and shear at the lumbar spine.",
		Source:  "squat kinematics reviews",
	},
	"ankle_mobility_deficit": {
		Topic:   "ankle_mobility_deficit",
		Content: "Restricted dorsiflexion forces compensation higher in the chain: heel rise, forward lean or knee collapse. Loaded ankle mobilizations with heel elevation transfer best to squatting.",
		Source:  "dorsiflexion ROM intervention trials",
	},
	"insufficient_depth": {
		Topic:   "insufficient_depth",
		Content: "Depth limitations are mobility- or control-limited. Goblet-loaded pause work in the deepest controllable range expands usable depth safely.",
		Source:  "range-of-motion training reviews",
	},
	"hip_shift": {
		Topic:   "hip_shift",
		Content: "Lateral hip shift under load indicates a unilateral strength or control deficit. Split-stance and single-leg loading equalize side contribution before bilateral reloading.",
		Source:  "return-to-sport asymmetry protocols",
	},
	"scapular_instability": {
		Topic:   "scapular_instability",
		Content: "Poor scapular control degrades pressing and pulling mechanics. Serratus and lower-trapezius activation work restores scapulohumeral rhythm.",
		Source:  "shoulder rehabilitation literature",
	},
	"elbow_flare": {
		Topic:   "elbow_flare",
		Content: "Excessive elbow abduction in pressing concentrates stress at the anterior shoulder. Cueing a modest tuck and grip adjustment redistributes load to the pectorals and triceps.",
		Source:  "bench press technique analyses",
	},
	"bar_path_deviation": {
		Topic:   "bar_path_deviation",
		Content: "A bar drifting from the mid-foot line multiplies back extensor demand. Light technique work with video feedback corrects path faster than loading through the fault.",
		Source:  "barbell kinematics studies",
	},
	"cervical_hyperextension": {
		Topic:   "cervical_hyperextension",
		Content: "Craning the neck under load strains cervical extensors. A packed, neutral gaze keeps the cervical spine stacked with the thoracic spine.",
		Source:  "lifting posture guidelines",
	},
}
