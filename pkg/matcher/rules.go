package matcher

import (
	"github.com/dotsetgreg/repcue/pkg/catalog"
)

// AttributeKind names the catalog attribute a pattern rule targets.
type AttributeKind string

const (
	AttrMovement  AttributeKind = "movement_pattern"
	AttrEquipment AttributeKind = "equipment"
	AttrTag       AttributeKind = "tag"
)

// PatternRule maps a set of trigger phrases onto one catalog attribute value.
// Triggers are matched as contiguous token sequences after Tokens().
type PatternRule struct {
	Triggers []string
	Kind     AttributeKind
	Value    string
}

// DefaultRules is ordered most-specific first.
var DefaultRules = []PatternRule{
	{Triggers: []string{"split squat", "lunge", "lunging", "step up"}, Kind: AttrMovement, Value: "lunge"},
	{Triggers: []string{"squat", "squatting"}, Kind: AttrMovement, Value: "squat"},
	{Triggers: []string{"hip hinge", "hinge", "hinging", "posterior chain"}, Kind: AttrMovement, Value: "hinge"},
	{Triggers: []string{"push", "pushing", "press", "pressing"}, Kind: AttrMovement, Value: "push"},
	{Triggers: []string{"pull", "pulling", "row", "rowing"}, Kind: AttrMovement, Value: "pull"},
	{Triggers: []string{"carry", "loaded carry"}, Kind: AttrMovement, Value: "carry"},
	{Triggers: []string{"anti rotation", "rotation", "rotational", "twist"}, Kind: AttrMovement, Value: "rotation"},
	{Triggers: []string{"plyo", "plyometric", "jump", "jumping", "explosive"}, Kind: AttrMovement, Value: "plyo"},
	{Triggers: []string{"core", "ab", "abs", "midsection"}, Kind: AttrTag, Value: "core"},
	{Triggers: []string{"cardio", "conditioning", "engine work", "metcon"}, Kind: AttrTag, Value: "conditioning"},
	{Triggers: []string{"band work", "band", "banded", "resistance band"}, Kind: AttrEquipment, Value: "bands"},
	{Triggers: []string{"kettlebell", "kb", "bell"}, Kind: AttrEquipment, Value: "kettlebell"},
	{Triggers: []string{"dumbbell", "db"}, Kind: AttrEquipment, Value: "dumbbell"},
	{Triggers: []string{"barbell", "bb"}, Kind: AttrEquipment, Value: "barbell"},
	{Triggers: []string{"bodyweight", "body weight", "calisthenic"}, Kind: AttrEquipment, Value: "bodyweight"},
	{Triggers: []string{"cable", "machine"}, Kind: AttrEquipment, Value: "cable"},
	{Triggers: []string{"arm", "gun", "bicep", "tricep"}, Kind: AttrTag, Value: "arms"},
	{Triggers: []string{"mobility", "prehab", "activation"}, Kind: AttrTag, Value: "prehab"},
}

type compiledRule struct {
	triggers [][]string
	kind     AttributeKind
	value    string
}

func compileRules(rules []PatternRule) []compiledRule {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		cr := compiledRule{kind: r.Kind, value: Normalize(r.Value)}
		for _, t := range r.Triggers {
			if toks := Tokens(t); len(toks) > 0 {
				cr.triggers = append(cr.triggers, toks)
			}
		}
		out = append(out, cr)
	}
	return out
}

func (r compiledRule) triggered(phrase []string) bool {
	for _, t := range r.triggers {
		if containsSequence(phrase, t) {
			return true
		}
	}
	return false
}

func (r compiledRule) satisfiedBy(e catalog.Entry) bool {
	switch r.kind {
	case AttrMovement:
		return Normalize(e.MovementPattern) == r.value
	case AttrEquipment:
		return containsNormalized(e.Equipment, r.value)
	case AttrTag:
		return containsNormalized(e.Tags, r.value)
	}
	return false
}

func containsNormalized(values []string, want string) bool {
	for _, v := range values {
		if Normalize(v) == want {
			return true
		}
	}
	return false
}
