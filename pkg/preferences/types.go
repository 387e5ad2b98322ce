package preferences

import (
	"github.com/dotsetgreg/repcue/pkg/catalog"
	"github.com/dotsetgreg/repcue/pkg/matcher"
)

// FieldSource records why a scalar field holds its value.
type FieldSource string

const (
	SourceDefault   FieldSource = "default"
	SourceInherited FieldSource = "inherited"
	SourceExplicit  FieldSource = "explicit"
)

func (s FieldSource) Valid() bool {
	switch s {
	case SourceDefault, SourceInherited, SourceExplicit:
		return true
	}
	return false
}

type Intensity string

const (
	IntensityLow      Intensity = "low"
	IntensityModerate Intensity = "moderate"
	IntensityHigh     Intensity = "high"
)

func (i Intensity) Valid() bool {
	switch i {
	case IntensityLow, IntensityModerate, IntensityHigh:
		return true
	}
	return false
}

// step moves one level up (delta > 0) or down, clamped to the scale. An
// unset intensity is treated as moderate.
func (i Intensity) step(delta int) Intensity {
	scale := []Intensity{IntensityLow, IntensityModerate, IntensityHigh}
	pos := 1
	for n, v := range scale {
		if v == i {
			pos = n
		}
	}
	pos += delta
	if pos < 0 {
		pos = 0
	}
	if pos >= len(scale) {
		pos = len(scale) - 1
	}
	return scale[pos]
}

type SessionGoal string

const (
	GoalStrength     SessionGoal = "strength"
	GoalHypertrophy  SessionGoal = "hypertrophy"
	GoalEndurance    SessionGoal = "endurance"
	GoalConditioning SessionGoal = "conditioning"
	GoalStability    SessionGoal = "stability"
	GoalMobility     SessionGoal = "mobility"
	GoalPower        SessionGoal = "power"
)

func (g SessionGoal) Valid() bool {
	switch g {
	case GoalStrength, GoalHypertrophy, GoalEndurance, GoalConditioning, GoalStability, GoalMobility, GoalPower:
		return true
	}
	return false
}

// Scalar is a single-valued preference plus its provenance. The zero Value
// means "not set".
type Scalar[T comparable] struct {
	Value  T           `json:"value"`
	Source FieldSource `json:"source"`
}

// ExerciseRef is a resolved catalog entry. Identity is the catalog ID.
type ExerciseRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func RefFromEntry(e catalog.Entry) ExerciseRef {
	return ExerciseRef{ID: e.ID, Name: e.Name}
}

func RefsFromEntries(entries []catalog.Entry) []ExerciseRef {
	out := make([]ExerciseRef, 0, len(entries))
	for _, e := range entries {
		out = append(out, RefFromEntry(e))
	}
	return out
}

// PreferenceRecord is the merged preference state of one pair.
type PreferenceRecord struct {
	Intensity        Scalar[Intensity]   `json:"intensity"`
	SessionGoal      Scalar[SessionGoal] `json:"session_goal"`
	NeedsFollowUp    Scalar[bool]        `json:"needs_follow_up"`
	MuscleTargets    []string            `json:"muscle_targets"`
	MuscleLessens    []string            `json:"muscle_lessens"`
	IncludeExercises []ExerciseRef       `json:"include_exercises"`
	AvoidExercises   []ExerciseRef       `json:"avoid_exercises"`
	AvoidJoints      []string            `json:"avoid_joints"`
}

// NewRecord returns a record with every scalar at its default.
func NewRecord() PreferenceRecord {
	return PreferenceRecord{
		Intensity:     Scalar[Intensity]{Source: SourceDefault},
		SessionGoal:   Scalar[SessionGoal]{Source: SourceDefault},
		NeedsFollowUp: Scalar[bool]{Source: SourceDefault},
	}
}

// AmbiguousPhrase is an exercise mention that matched more than one entry.
type AmbiguousPhrase struct {
	Phrase     string         `json:"phrase"`
	Intent     matcher.Intent `json:"intent"`
	Method     matcher.Method `json:"method"`
	Candidates []ExerciseRef  `json:"candidates"`
}

// PreferenceDelta holds only what one message stated. Nil scalars are
// absent, which is different from a stated value.
type PreferenceDelta struct {
	Intensity        *Intensity
	SessionGoal      *SessionGoal
	NeedsFollowUp    *bool
	MuscleTargets    []string
	MuscleLessens    []string
	IncludeExercises []ExerciseRef
	AvoidExercises   []ExerciseRef
	AvoidJoints      []string

	// Ambiguous phrases are not merged; the conversation engine routes them
	// through disambiguation.
	Ambiguous []AmbiguousPhrase
	// Unresolved exercise phrases matched nothing.
	Unresolved []string
	// ChangeCue is set when the message reads like a change request.
	ChangeCue bool
}

// HasFields reports whether the delta states at least one mergeable field.
func (d PreferenceDelta) HasFields() bool {
	return d.Intensity != nil || d.SessionGoal != nil || d.NeedsFollowUp != nil ||
		len(d.MuscleTargets) > 0 || len(d.MuscleLessens) > 0 ||
		len(d.IncludeExercises) > 0 || len(d.AvoidExercises) > 0 ||
		len(d.AvoidJoints) > 0
}

// Categories names the field categories the delta touches, in record order.
func (d PreferenceDelta) Categories() []string {
	var out []string
	if d.Intensity != nil {
		out = append(out, "intensity")
	}
	if d.SessionGoal != nil {
		out = append(out, "session goal")
	}
	if len(d.MuscleTargets) > 0 {
		out = append(out, "muscle focus")
	}
	if len(d.MuscleLessens) > 0 {
		out = append(out, "muscles to go easy on")
	}
	if len(d.IncludeExercises) > 0 {
		out = append(out, "exercises to include")
	}
	if len(d.AvoidExercises) > 0 {
		out = append(out, "exercises to avoid")
	}
	if len(d.AvoidJoints) > 0 {
		out = append(out, "joints to protect")
	}
	return out
}

func Ptr[T any](v T) *T { return &v }

// FlatRecord is the wire shape of a PreferenceRecord: scalars become value
// plus "<field>_source" pairs and lists are never null.
type FlatRecord struct {
	Intensity           string        `json:"intensity,omitempty"`
	IntensitySource     FieldSource   `json:"intensity_source"`
	SessionGoal         string        `json:"session_goal,omitempty"`
	SessionGoalSource   FieldSource   `json:"session_goal_source"`
	NeedsFollowUp       bool          `json:"needs_follow_up"`
	NeedsFollowUpSource FieldSource   `json:"needs_follow_up_source"`
	MuscleTargets       []string      `json:"muscle_targets"`
	MuscleLessens       []string      `json:"muscle_lessens"`
	IncludeExercises    []ExerciseRef `json:"include_exercises"`
	AvoidExercises      []ExerciseRef `json:"avoid_exercises"`
	AvoidJoints         []string      `json:"avoid_joints"`
}

func (r PreferenceRecord) Flatten() FlatRecord {
	return FlatRecord{
		Intensity:           string(r.Intensity.Value),
		IntensitySource:     r.Intensity.Source,
		SessionGoal:         string(r.SessionGoal.Value),
		SessionGoalSource:   r.SessionGoal.Source,
		NeedsFollowUp:       r.NeedsFollowUp.Value,
		NeedsFollowUpSource: r.NeedsFollowUp.Source,
		MuscleTargets:       nonNil(r.MuscleTargets),
		MuscleLessens:       nonNil(r.MuscleLessens),
		IncludeExercises:    nonNil(r.IncludeExercises),
		AvoidExercises:      nonNil(r.AvoidExercises),
		AvoidJoints:         nonNil(r.AvoidJoints),
	}
}

func nonNil[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}
