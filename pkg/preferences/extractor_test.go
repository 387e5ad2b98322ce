package preferences

import (
	"context"
	"testing"
	"time"

	"github.com/dotsetgreg/repcue/pkg/catalog"
	"github.com/dotsetgreg/repcue/pkg/matcher"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor() *Extractor {
	ix := catalog.NewIndex(catalog.StaticSource(catalog.DefaultEntries()), time.Hour)
	return NewExtractor(matcher.New(ix, nil, matcher.DefaultOptions()))
}

func refIDs(refs []ExerciseRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.ID
	}
	return out
}

func TestExtract_IntensityAndSingleExercise(t *testing.T) {
	d := newTestExtractor().Extract(context.Background(), "push me hard, let's do deadlifts", NewRecord())

	require.NotNil(t, d.Intensity)
	assert.Equal(t, IntensityHigh, *d.Intensity)
	assert.Nil(t, d.SessionGoal)
	assert.Equal(t, []ExerciseRef{{ID: "deadlift", Name: "Deadlift"}}, d.IncludeExercises)
	assert.Empty(t, d.Ambiguous)
	assert.Empty(t, d.AvoidExercises)
}

func TestExtract_AmbiguousSquats(t *testing.T) {
	d := newTestExtractor().Extract(context.Background(), "let's do squats", NewRecord())

	require.Len(t, d.Ambiguous, 1)
	amb := d.Ambiguous[0]
	assert.Equal(t, "squats", amb.Phrase)
	assert.Equal(t, matcher.IntentInclude, amb.Intent)
	assert.Equal(t, []string{"back-squat", "front-squat", "goblet-squat", "bulgarian-split-squat"}, refIDs(amb.Candidates))
	assert.False(t, d.HasFields())
}

func TestExtract_GoalSwitchTouchesOnlyGoal(t *testing.T) {
	existing := NewRecord()
	existing.Intensity = Scalar[Intensity]{Value: IntensityHigh, Source: SourceExplicit}

	d := newTestExtractor().Extract(context.Background(), "let's switch to stability work", existing)

	require.NotNil(t, d.SessionGoal)
	assert.Equal(t, GoalStability, *d.SessionGoal)
	assert.Nil(t, d.Intensity)
	assert.Empty(t, d.IncludeExercises)
	assert.Empty(t, d.Ambiguous)
	assert.Empty(t, d.Unresolved)
	assert.True(t, d.ChangeCue)
	assert.Equal(t, []string{"session goal"}, d.Categories())
}

func TestExtract_Table(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		joints    []string
		lessens   []string
		targets   []string
		include   []string
		avoid     []string
		goal      SessionGoal
		intensity Intensity
	}{
		{
			name:    "joints and avoided exercise",
			message: "Bad knee and my lower back hurts, skip burpees",
			joints:  []string{"knee", "lower_back"},
			avoid:   []string{"burpee"},
		},
		{
			name:    "sore muscles and targets",
			message: "my legs are sore, focus on chest and shoulders",
			lessens: []string{"legs"},
			targets: []string{"chest", "shoulders"},
		},
		{
			name:    "goal and target with want cue",
			message: "I want to get stronger and hit legs",
			goal:    GoalStrength,
			targets: []string{"legs"},
		},
		{
			name:    "avoid list split on or",
			message: "can't do box jumps or burpees",
			avoid:   []string{"box-jump", "burpee"},
		},
		{
			name:    "muscle named as exercise",
			message: "let's do back today",
			targets: []string{"back"},
		},
		{
			name:    "no with muscle lessens",
			message: "no legs today please",
			lessens: []string{"legs"},
		},
		{
			name:      "take it easy on a joint is not an intensity",
			message:   "take it easy on my shoulder",
			joints:    []string{"shoulder"},
			intensity: "",
		},
		{
			name:      "last intensity cue wins",
			message:   "take it easy... actually no, go all out",
			intensity: IntensityHigh,
		},
		{
			name:      "negated high cue reads as moderate",
			message:   "don't push me hard today",
			intensity: IntensityModerate,
		},
		{
			name:      "negated high cue behind a want",
			message:   "I don't want to go hard",
			intensity: IntensityModerate,
		},
		{
			name:    "negated low cue is not stated",
			message: "I'm not feeling tired",
		},
		{
			name:    "negated relative cue is not stated",
			message: "don't make it harder",
		},
		{
			name:      "negator in an earlier clause",
			message:   "no burpees and go hard",
			avoid:     []string{"burpee"},
			intensity: IntensityHigh,
		},
		{
			name:      "curly apostrophe",
			message:   "Let’s do pull ups, feeling tired",
			include:   []string{"pull-up"},
			intensity: IntensityLow,
		},
	}

	x := newTestExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := x.Extract(context.Background(), tt.message, NewRecord())
			assert.Equal(t, tt.joints, nilIfEmpty(d.AvoidJoints), "joints")
			assert.Equal(t, tt.lessens, nilIfEmpty(d.MuscleLessens), "lessens")
			assert.Equal(t, tt.targets, nilIfEmpty(d.MuscleTargets), "targets")
			assert.Equal(t, tt.include, nilIfEmpty(refIDs(d.IncludeExercises)), "include")
			assert.Equal(t, tt.avoid, nilIfEmpty(refIDs(d.AvoidExercises)), "avoid")
			if tt.goal == "" {
				assert.Nil(t, d.SessionGoal, "goal")
			} else if assert.NotNil(t, d.SessionGoal, "goal") {
				assert.Equal(t, tt.goal, *d.SessionGoal)
			}
			if tt.intensity == "" {
				assert.Nil(t, d.Intensity, "intensity")
			} else if assert.NotNil(t, d.Intensity, "intensity") {
				assert.Equal(t, tt.intensity, *d.Intensity)
			}
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestExtract_RelativeIntensityUsesExisting(t *testing.T) {
	x := newTestExtractor()

	existing := NewRecord()
	existing.Intensity = Scalar[Intensity]{Value: IntensityHigh, Source: SourceExplicit}
	d := x.Extract(context.Background(), "can we make it a bit easier", existing)
	require.NotNil(t, d.Intensity)
	assert.Equal(t, IntensityModerate, *d.Intensity)

	existing.Intensity = Scalar[Intensity]{Value: IntensityLow, Source: SourceInherited}
	d = x.Extract(context.Background(), "step it up", existing)
	require.NotNil(t, d.Intensity)
	assert.Equal(t, IntensityModerate, *d.Intensity)
}

func TestExtract_SmallTalkIsEmpty(t *testing.T) {
	x := newTestExtractor()
	for _, msg := range []string{"no thanks, all good", "sounds great!", "ok", ""} {
		d := x.Extract(context.Background(), msg, NewRecord())
		assert.False(t, d.HasFields(), msg)
		assert.Empty(t, d.Ambiguous, msg)
		assert.Empty(t, d.Unresolved, msg)
		assert.False(t, d.ChangeCue, msg)
	}
}

func TestExtract_ChangeRequestWithNothingExtracted(t *testing.T) {
	d := newTestExtractor().Extract(context.Background(), "can we change things up?", NewRecord())
	assert.False(t, d.HasFields())
	assert.True(t, d.ChangeCue)
}

func TestExtract_VagueChangeIsNotAnExercise(t *testing.T) {
	x := newTestExtractor()
	for _, msg := range []string{"can we do something different", "let's do something new", "I want something else"} {
		d := x.Extract(context.Background(), msg, NewRecord())
		assert.False(t, d.HasFields(), msg)
		assert.Empty(t, d.Unresolved, msg)
		assert.Empty(t, d.Ambiguous, msg)
		assert.True(t, d.ChangeCue, msg)
	}
}

func TestExtract_DoesNotMutateExisting(t *testing.T) {
	existing := NewRecord()
	existing.Intensity = Scalar[Intensity]{Value: IntensityLow, Source: SourceExplicit}
	existing.IncludeExercises = []ExerciseRef{{ID: "plank", Name: "Plank"}}
	before := existing
	before.IncludeExercises = append([]ExerciseRef(nil), existing.IncludeExercises...)

	newTestExtractor().Extract(context.Background(), "harder please, and add deadlifts", existing)

	if diff := cmp.Diff(before, existing); diff != "" {
		t.Fatalf("existing record mutated (-before +after):\n%s", diff)
	}
}

type countingPhraseMatcher struct {
	calls map[string]int
}

func (c *countingPhraseMatcher) Match(ctx context.Context, phrase string, intent matcher.Intent) matcher.Result {
	c.calls[phrase]++
	return matcher.Result{Method: matcher.MethodNone}
}

func TestExtract_MatchesEachPhraseOncePerTurn(t *testing.T) {
	m := &countingPhraseMatcher{calls: map[string]int{}}
	d := NewExtractor(m).Extract(context.Background(), "let's do sled pushes and sled pushes, give me sled pushes", NewRecord())

	assert.Equal(t, 1, m.calls["sled pushes"])
	assert.Equal(t, []string{"sled pushes"}, d.Unresolved)
}
