package disambiguation

import (
	"testing"

	"github.com/dotsetgreg/repcue/pkg/matcher"
	"github.com/dotsetgreg/repcue/pkg/preferences"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func squats() []preferences.ExerciseRef {
	return []preferences.ExerciseRef{
		{ID: "back-squat", Name: "Back Squat"},
		{ID: "front-squat", Name: "Front Squat"},
		{ID: "goblet-squat", Name: "Goblet Squat"},
		{ID: "bulgarian-split-squat", Name: "Bulgarian Split Squat"},
	}
}

func TestBegin_NumbersCandidates(t *testing.T) {
	p := Begin(squats(), "squats", matcher.IntentInclude)
	assert.Equal(t, 0, p.Attempts)
	text := p.Text()
	assert.Contains(t, text, "1. Back Squat")
	assert.Contains(t, text, "4. Bulgarian Split Squat")
}

func TestResolve_FourSquats(t *testing.T) {
	p := Begin(squats(), "squats", matcher.IntentInclude)
	out, _ := Resolve("1,3", p)
	require.Equal(t, OutcomeResolved, out.Kind)
	assert.Equal(t, []preferences.ExerciseRef{
		{ID: "back-squat", Name: "Back Squat"},
		{ID: "goblet-squat", Name: "Goblet Squat"},
	}, out.Selected)
}

func TestResolve_NonNumericThenNumeric(t *testing.T) {
	p := Begin(squats(), "squats", matcher.IntentInclude)

	out, p := Resolve("the first one", p)
	require.Equal(t, OutcomeNeedsClarification, out.Kind)
	assert.Equal(t, 1, p.Attempts)
	assert.Contains(t, out.PromptText, "1. Back Squat")

	out, _ = Resolve("1 and 3", p)
	require.Equal(t, OutcomeResolved, out.Kind)
	require.Len(t, out.Selected, 2)
	assert.Equal(t, "back-squat", out.Selected[0].ID)
	assert.Equal(t, "goblet-squat", out.Selected[1].ID)
}

func TestResolve_DoubleFailureAbandons(t *testing.T) {
	p := Begin(squats(), "squats", matcher.IntentInclude)

	out, p := Resolve("whatever", p)
	require.Equal(t, OutcomeNeedsClarification, out.Kind)

	out, p = Resolve("idk", p)
	assert.Equal(t, OutcomeAbandoned, out.Kind)
	assert.Empty(t, out.Selected)
	assert.Equal(t, MaxAttempts, p.Attempts)

	// The counter never exceeds the bound.
	_, p = Resolve("still no", p)
	assert.Equal(t, MaxAttempts, p.Attempts)
}

func TestResolve_OutOfRangeIsFailure(t *testing.T) {
	p := Begin(squats(), "squats", matcher.IntentAvoid)
	out, p := Resolve("5", p)
	assert.Equal(t, OutcomeNeedsClarification, out.Kind)
	assert.Equal(t, 1, p.Attempts)
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		reply   string
		want    []int
		wantErr bool
	}{
		{"1,3", []int{1, 3}, false},
		{"3 1", []int{3, 1}, false},
		{"#2!", []int{2}, false},
		{"1, 1 and 2.", []int{1, 2}, false},
		{"2 & 4", []int{2, 4}, false},
		{"number 2 please", []int{2}, false},
		{"0", nil, true},
		{"", nil, true},
		{"and", nil, true},
		{"back squat", nil, true},
		{"2 maybe", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseSelection(tt.reply, 4)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseSelection(%q) expected error, got %v", tt.reply, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseSelection(%q) error: %v", tt.reply, err)
		}
		assert.Equal(t, tt.want, got, tt.reply)
	}
}
