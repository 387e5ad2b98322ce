package matcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dotsetgreg/repcue/pkg/catalog"
	"github.com/dotsetgreg/repcue/pkg/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSemantic struct {
	calls  atomic.Int32
	result SemanticResult
	err    error
	block  bool
}

func (s *stubSemantic) SemanticMatch(ctx context.Context, phrase string, intent Intent, slice []catalog.Entry) (SemanticResult, error) {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return SemanticResult{}, ctx.Err()
	}
	return s.result, s.err
}

func newTestMatcher(t *testing.T, sem SemanticMatcher, opts Options) *Matcher {
	t.Helper()
	ix := catalog.NewIndex(catalog.StaticSource(catalog.DefaultEntries()), time.Hour)
	return New(ix, sem, opts)
}

func ids(entries []catalog.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestMatch_DeterministicTiers(t *testing.T) {
	m := newTestMatcher(t, nil, DefaultOptions())

	tests := []struct {
		name   string
		phrase string
		method Method
		ids    []string
	}{
		{"plural folds to exact name", "deadlifts", MethodExerciseType, []string{"deadlift"}},
		{"exact beats containing names", "Deadlift", MethodExerciseType, []string{"deadlift"}},
		{"name contains phrase", "squats", MethodExerciseType, []string{"back-squat", "front-squat", "goblet-squat", "bulgarian-split-squat"}},
		{"id tokens match", "row erg", MethodExerciseType, []string{"row-erg"}},
		{"hyphenated name", "pull ups", MethodExerciseType, []string{"pull-up"}},
		{"pattern on movement", "heavy squats", MethodPattern, []string{"back-squat", "front-squat", "goblet-squat"}},
		{"pattern on equipment", "band work", MethodPattern, []string{"band-pull-apart", "banded-glute-bridge", "pallof-press"}},
		{"more matched attributes win", "kettlebell hinge", MethodPattern, []string{"kettlebell-swing"}},
		{"training type", "mobility work", MethodExerciseType, []string{"band-pull-apart"}},
		{"training type with several entries", "power", MethodExerciseType, []string{"kettlebell-swing", "box-jump"}},
		{"nothing matches", "underwater basket weaving", MethodNone, nil},
		{"filler only", "some of the", MethodNone, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := m.Match(context.Background(), tt.phrase, IntentInclude)
			assert.Equal(t, tt.method, res.Method)
			if tt.ids == nil {
				assert.Empty(t, res.Candidates)
				return
			}
			assert.Equal(t, tt.ids, ids(res.Candidates))
		})
	}
}

func TestMatch_ExerciseTypeBeatsPattern(t *testing.T) {
	// "squats" also triggers the squat movement rule.
	m := newTestMatcher(t, &stubSemantic{}, DefaultOptions())
	res := m.Match(context.Background(), "squats", IntentAvoid)
	require.Equal(t, MethodExerciseType, res.Method)
	assert.True(t, res.Ambiguous())
	assert.Equal(t, 0.85, res.Confidence)
}

func TestMatch_TooBroadFallsToSemantic(t *testing.T) {
	sem := &stubSemantic{result: SemanticResult{
		CandidateIDs: []string{"goblet-squat", "not-in-catalog", "goblet-squat", "front-squat", "back-squat"},
		Confidence:   0.6,
	}}
	opts := DefaultOptions()
	opts.MaxCandidates = 2
	m := newTestMatcher(t, sem, opts)

	res := m.Match(context.Background(), "squats", IntentInclude)
	require.Equal(t, MethodLLM, res.Method)
	assert.Equal(t, []string{"goblet-squat", "front-squat"}, ids(res.Candidates))
	assert.NotEmpty(t, res.Reasoning)
	assert.Equal(t, int32(1), sem.calls.Load())
}

func TestMatch_SemanticOnlyWhenDeterministicTiersMiss(t *testing.T) {
	sem := &stubSemantic{result: SemanticResult{CandidateIDs: []string{"plank"}, Reasoning: "ab wheel is closest to a plank"}}
	m := newTestMatcher(t, sem, DefaultOptions())

	res := m.Match(context.Background(), "deadlifts", IntentInclude)
	assert.Equal(t, MethodExerciseType, res.Method)
	assert.Equal(t, int32(0), sem.calls.Load())

	res = m.Match(context.Background(), "that thing with the wheel", IntentInclude)
	require.Equal(t, MethodLLM, res.Method)
	assert.Equal(t, []string{"plank"}, ids(res.Candidates))
	assert.Equal(t, "ab wheel is closest to a plank", res.Reasoning)
	assert.Equal(t, int32(1), sem.calls.Load())
}

func TestMatch_SemanticFailureDegradesToNone(t *testing.T) {
	sem := &stubSemantic{err: errors.New("provider exploded")}
	m := newTestMatcher(t, sem, DefaultOptions())

	res := m.Match(context.Background(), "that thing with the wheel", IntentInclude)
	assert.Equal(t, MethodNone, res.Method)
	assert.Empty(t, res.Candidates)
}

func TestMatch_SemanticTimeoutDegradesToNone(t *testing.T) {
	opts := DefaultOptions()
	opts.SemanticTimeout = 20 * time.Millisecond
	m := newTestMatcher(t, &stubSemantic{block: true}, opts)

	start := time.Now()
	res := m.Match(context.Background(), "that thing with the wheel", IntentInclude)
	assert.Equal(t, MethodNone, res.Method)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestMatch_SemanticRateLimited(t *testing.T) {
	sem := &stubSemantic{result: SemanticResult{CandidateIDs: []string{"plank"}}}
	opts := DefaultOptions()
	opts.SemanticRate = 0.001
	m := newTestMatcher(t, sem, opts)

	first := m.Match(context.Background(), "that thing with the wheel", IntentInclude)
	second := m.Match(context.Background(), "the sled thing", IntentInclude)
	assert.Equal(t, MethodLLM, first.Method)
	assert.Equal(t, MethodNone, second.Method)
	assert.Equal(t, int32(1), sem.calls.Load())
}

func TestMatch_NoSemanticConfigured(t *testing.T) {
	m := newTestMatcher(t, nil, DefaultOptions())
	res := m.Match(context.Background(), "that thing with the wheel", IntentInclude)
	assert.Equal(t, MethodNone, res.Method)
}

type failingCatalog struct{}

func (failingCatalog) Snapshot(ctx context.Context) ([]catalog.Entry, error) {
	return nil, errors.New("catalog offline")
}

func TestMatch_CatalogFailureIsNone(t *testing.T) {
	m := New(failingCatalog{}, nil, DefaultOptions())
	res := m.Match(context.Background(), "deadlifts", IntentInclude)
	assert.Equal(t, MethodNone, res.Method)
}

func TestTrimSlice_PrefersOverlappingEntries(t *testing.T) {
	opts := DefaultOptions()
	opts.SliceSize = 2
	m := newTestMatcher(t, nil, opts)

	slice := m.trimSlice(Tokens("cardio bike"), catalog.DefaultEntries())
	assert.Equal(t, []string{"assault-bike", "row-erg"}, ids(slice))
}

type countingMatcher struct {
	calls int
}

func (c *countingMatcher) Match(ctx context.Context, phrase string, intent Intent) Result {
	c.calls++
	return Result{Method: MethodNone}
}

func TestMemo_CallsOncePerPhrase(t *testing.T) {
	inner := &countingMatcher{}
	memo := NewMemo(inner)

	memo.Match(context.Background(), "Squats", IntentInclude)
	memo.Match(context.Background(), "squat", IntentInclude)
	memo.Match(context.Background(), "squats", IntentAvoid)
	assert.Equal(t, 2, inner.calls)
}

func TestNormalizeAndTokens(t *testing.T) {
	assert.Equal(t, "farmers carry", Normalize("Farmer's-Carry!!"))
	assert.Equal(t, []string{"farmer", "carry"}, Tokens("farmers carries"))
	assert.Equal(t, []string{"bench", "press"}, Tokens("some bench presses"))
	assert.Equal(t, "up", Singular("ups"))
	assert.Equal(t, "is", Singular("is"))
	assert.Equal(t, "press", Singular("press"))
}

type fakeProvider struct {
	content string
	err     error
	seen    []providers.Message
}

func (f *fakeProvider) Chat(ctx context.Context, messages []providers.Message, model string, opts providers.ChatOptions) (*providers.LLMResponse, error) {
	f.seen = messages
	if f.err != nil {
		return nil, f.err
	}
	return &providers.LLMResponse{Content: f.content}, nil
}

func (f *fakeProvider) GetDefaultModel() string { return "fake" }

func TestLLMSemanticMatcher_ParsesFencedJSON(t *testing.T) {
	p := &fakeProvider{content: "```json\n{\"candidate_ids\":[\"plank\"],\"reasoning\":\"static core hold\",\"confidence\":1.4}\n```"}
	sm := NewLLMSemanticMatcher(p, "", 3)

	res, err := sm.SemanticMatch(context.Background(), "ab wheel", IntentInclude, catalog.DefaultEntries()[:3])
	require.NoError(t, err)
	assert.Equal(t, []string{"plank"}, res.CandidateIDs)
	assert.Equal(t, "static core hold", res.Reasoning)
	assert.Equal(t, 1.0, res.Confidence)
	require.Len(t, p.seen, 2)
	assert.Contains(t, p.seen[1].Content, "back-squat | Back Squat")
}

func TestLLMSemanticMatcher_Errors(t *testing.T) {
	_, err := NewLLMSemanticMatcher(nil, "", 0).SemanticMatch(context.Background(), "x", IntentInclude, nil)
	assert.ErrorIs(t, err, ErrSemanticUnavailable)

	_, err = NewLLMSemanticMatcher(&fakeProvider{content: "I think a plank"}, "", 0).SemanticMatch(context.Background(), "x", IntentInclude, nil)
	assert.Error(t, err)

	_, err = NewLLMSemanticMatcher(&fakeProvider{err: errors.New("503")}, "", 0).SemanticMatch(context.Background(), "x", IntentInclude, nil)
	assert.Error(t, err)
}
