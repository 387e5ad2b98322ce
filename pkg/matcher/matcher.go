package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dotsetgreg/repcue/pkg/catalog"
	"github.com/dotsetgreg/repcue/pkg/logger"
	"github.com/dotsetgreg/repcue/pkg/metrics"
	"golang.org/x/time/rate"
)

// Method records which tier produced a match.
type Method string

const (
	MethodExerciseType Method = "exercise_type"
	MethodPattern      Method = "pattern"
	MethodLLM          Method = "llm"
	MethodNone         Method = "none"
)

func (m Method) Valid() bool {
	switch m {
	case MethodExerciseType, MethodPattern, MethodLLM, MethodNone:
		return true
	}
	return false
}

// Intent says whether the member wants an exercise in or out.
type Intent string

const (
	IntentInclude Intent = "include"
	IntentAvoid   Intent = "avoid"
)

func (i Intent) Valid() bool {
	return i == IntentInclude || i == IntentAvoid
}

// ErrSemanticUnavailable is returned by SemanticMatcher implementations that
// have no backend configured.
var ErrSemanticUnavailable = errors.New("semantic matcher unavailable")

// Result is the outcome of one Match call. Confidence is 0 when unknown;
// Reasoning is always set for MethodLLM.
type Result struct {
	Method     Method
	Candidates []catalog.Entry
	Confidence float64
	Reasoning  string
}

func (r Result) Ambiguous() bool { return len(r.Candidates) > 1 }
func (r Result) Empty() bool     { return len(r.Candidates) == 0 }

// SemanticResult is what the external semantic matcher returns: catalog ids,
// best first, plus its explanation.
type SemanticResult struct {
	CandidateIDs []string
	Reasoning    string
	Confidence   float64
}

// SemanticMatcher is the fallible external tier. Implementations must honor
// ctx cancellation.
type SemanticMatcher interface {
	SemanticMatch(ctx context.Context, phrase string, intent Intent, slice []catalog.Entry) (SemanticResult, error)
}

// Catalog is the read side of catalog.Index used by the matcher.
type Catalog interface {
	Snapshot(ctx context.Context) ([]catalog.Entry, error)
}

// PhraseMatcher is the contract consumed by the extractor.
type PhraseMatcher interface {
	Match(ctx context.Context, phrase string, intent Intent) Result
}

type Options struct {
	// MaxCandidates is the largest candidate set a deterministic tier may
	// return before the phrase is considered too broad.
	MaxCandidates   int
	SemanticTimeout time.Duration
	SliceSize       int
	// SemanticRate limits semantic calls per second across all pairs; zero
	// disables limiting.
	SemanticRate float64
	Rules        []PatternRule
}

func DefaultOptions() Options {
	return Options{
		MaxCandidates:   6,
		SemanticTimeout: 4 * time.Second,
		SliceSize:       40,
		SemanticRate:    5,
		Rules:           DefaultRules,
	}
}

type Matcher struct {
	catalog  Catalog
	semantic SemanticMatcher
	opts     Options
	rules    []compiledRule
	limiter  *rate.Limiter
}

// New builds a Matcher. semantic may be nil, in which case the third tier
// always degrades to MethodNone.
func New(cat Catalog, semantic SemanticMatcher, opts Options) *Matcher {
	def := DefaultOptions()
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = def.MaxCandidates
	}
	if opts.SemanticTimeout <= 0 {
		opts.SemanticTimeout = def.SemanticTimeout
	}
	if opts.SliceSize <= 0 {
		opts.SliceSize = def.SliceSize
	}
	if opts.Rules == nil {
		opts.Rules = def.Rules
	}
	m := &Matcher{
		catalog:  cat,
		semantic: semantic,
		opts:     opts,
		rules:    compileRules(opts.Rules),
	}
	if opts.SemanticRate > 0 {
		burst := int(opts.SemanticRate)
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(opts.SemanticRate), burst)
	}
	return m
}

// Match resolves phrase against the catalog. It never returns an error: a
// catalog or semantic failure is reported as MethodNone.
func (m *Matcher) Match(ctx context.Context, phrase string, intent Intent) Result {
	res := m.match(ctx, phrase, intent)
	metrics.MatchResults.WithLabelValues(string(res.Method)).Inc()
	logger.DebugCF("matcher", "Phrase matched", map[string]interface{}{
		"phrase":     phrase,
		"intent":     string(intent),
		"method":     string(res.Method),
		"candidates": len(res.Candidates),
	})
	return res
}

func (m *Matcher) match(ctx context.Context, phrase string, intent Intent) Result {
	tokens := Tokens(phrase)
	if len(tokens) == 0 {
		return Result{Method: MethodNone}
	}

	entries, err := m.catalog.Snapshot(ctx)
	if err != nil {
		logger.WarnCF("matcher", "Catalog unavailable", map[string]interface{}{"error": err.Error()})
		return Result{Method: MethodNone}
	}

	if cands, conf := m.matchExercise(tokens, entries); m.confident(cands) {
		return Result{Method: MethodExerciseType, Candidates: cands, Confidence: conf}
	}
	if cands := m.matchPattern(tokens, entries); m.confident(cands) {
		return Result{Method: MethodPattern, Candidates: cands, Confidence: 0.7}
	}
	return m.matchSemantic(ctx, phrase, tokens, intent, entries)
}

func (m *Matcher) confident(cands []catalog.Entry) bool {
	return len(cands) > 0 && len(cands) <= m.opts.MaxCandidates
}

type scored struct {
	entry catalog.Entry
	score int
	order int
}

// rank sorts by score descending, then catalog order.
func rank(items []scored) []catalog.Entry {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].order < items[j].order
	})
	out := make([]catalog.Entry, len(items))
	for i, it := range items {
		out[i] = it.entry
	}
	return out
}

// matchExercise is tier 1: an entry whose name or id tokens equal the phrase
// wins outright; otherwise every entry whose name contains the phrase tokens
// as a contiguous run is a candidate. Failing both, a phrase that is an
// exercise type ("mobility", "power work") selects the entries of that type.
func (m *Matcher) matchExercise(phrase []string, entries []catalog.Entry) ([]catalog.Entry, float64) {
	var exact, partial, typed []scored
	typePhrase := withoutGeneric(phrase)
	for i, e := range entries {
		name := Tokens(e.Name)
		if equalTokens(name, phrase) || equalTokens(Tokens(e.ID), phrase) {
			exact = append(exact, scored{entry: e, score: len(name), order: i})
			continue
		}
		if containsSequence(name, phrase) {
			// Shorter names carry fewer unmatched tokens, so they are the more
			// specific hit for the same phrase.
			partial = append(partial, scored{entry: e, score: len(phrase)*10 - (len(name) - len(phrase)), order: i})
			continue
		}
		if t := Tokens(e.Type); len(typePhrase) > 0 && equalTokens(t, typePhrase) {
			typed = append(typed, scored{entry: e, score: 1, order: i})
		}
	}
	switch {
	case len(exact) > 0:
		return rank(exact), 1.0
	case len(partial) > 0:
		return rank(partial), 0.85
	}
	return rank(typed), 0.7
}

// withoutGeneric drops trailing words like "work" that follow a type name.
func withoutGeneric(tokens []string) []string {
	out := tokens
	for len(out) > 0 && typeSuffixes[out[len(out)-1]] {
		out = out[:len(out)-1]
	}
	return out
}

var typeSuffixes = map[string]bool{
	"work": true, "exercise": true, "movement": true, "training": true, "stuff": true, "drill": true,
}

// matchPattern is tier 2. At most one rule per attribute kind fires (first in
// rule order); entries are scored by how many fired rules they satisfy and
// only the best-scoring band is kept.
func (m *Matcher) matchPattern(phrase []string, entries []catalog.Entry) []catalog.Entry {
	fired := make([]compiledRule, 0, 3)
	seenKind := map[AttributeKind]bool{}
	for _, r := range m.rules {
		if seenKind[r.kind] || !r.triggered(phrase) {
			continue
		}
		seenKind[r.kind] = true
		fired = append(fired, r)
	}
	if len(fired) == 0 {
		return nil
	}

	best := 0
	var items []scored
	for i, e := range entries {
		score := 0
		for _, r := range fired {
			if r.satisfiedBy(e) {
				score++
			}
		}
		if score == 0 {
			continue
		}
		if score > best {
			best = score
		}
		items = append(items, scored{entry: e, score: score, order: i})
	}
	kept := items[:0]
	for _, it := range items {
		if it.score == best {
			kept = append(kept, it)
		}
	}
	return rank(kept)
}

func (m *Matcher) matchSemantic(ctx context.Context, phrase string, tokens []string, intent Intent, entries []catalog.Entry) Result {
	if m.semantic == nil {
		metrics.SemanticFailures.WithLabelValues("unavailable").Inc()
		return Result{Method: MethodNone}
	}
	if m.limiter != nil && !m.limiter.Allow() {
		metrics.SemanticFailures.WithLabelValues("rate_limited").Inc()
		logger.WarnCF("matcher", "Semantic tier rate limited", map[string]interface{}{"phrase": phrase})
		return Result{Method: MethodNone}
	}

	slice := m.trimSlice(tokens, entries)
	callCtx, cancel := context.WithTimeout(ctx, m.opts.SemanticTimeout)
	defer cancel()

	sr, err := m.semantic.SemanticMatch(callCtx, phrase, intent, slice)
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
		} else if errors.Is(err, ErrSemanticUnavailable) {
			reason = "unavailable"
		}
		metrics.SemanticFailures.WithLabelValues(reason).Inc()
		logger.WarnCF("matcher", "Semantic tier failed, degrading to no match", map[string]interface{}{
			"phrase": phrase,
			"reason": reason,
			"error":  err.Error(),
		})
		return Result{Method: MethodNone}
	}

	byID := make(map[string]catalog.Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	seen := map[string]struct{}{}
	var cands []catalog.Entry
	for _, id := range sr.CandidateIDs {
		e, ok := byID[strings.TrimSpace(id)]
		if !ok {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		cands = append(cands, e)
		if len(cands) == m.opts.MaxCandidates {
			break
		}
	}
	if len(cands) == 0 {
		return Result{Method: MethodNone}
	}

	reasoning := strings.TrimSpace(sr.Reasoning)
	if reasoning == "" {
		reasoning = fmt.Sprintf("semantic match for %q", phrase)
	}
	return Result{Method: MethodLLM, Candidates: cands, Confidence: sr.Confidence, Reasoning: reasoning}
}

// trimSlice picks the entries sharing the most tokens with the phrase across
// all attributes, falling back to catalog order.
func (m *Matcher) trimSlice(tokens []string, entries []catalog.Entry) []catalog.Entry {
	if len(entries) <= m.opts.SliceSize {
		return entries
	}
	want := tokenSet(tokens)
	items := make([]scored, 0, len(entries))
	for i, e := range entries {
		score := 0
		for _, t := range entryTokens(e) {
			if _, ok := want[t]; ok {
				score++
			}
		}
		items = append(items, scored{entry: e, score: score, order: i})
	}
	ranked := rank(items)
	return ranked[:m.opts.SliceSize]
}

func entryTokens(e catalog.Entry) []string {
	parts := []string{e.Name, e.Type, e.MovementPattern}
	parts = append(parts, e.Equipment...)
	parts = append(parts, e.Tags...)
	parts = append(parts, e.Muscles...)
	return Tokens(strings.Join(parts, " "))
}

// Memo caches results per (phrase, intent) so a turn calls the underlying
// matcher, and therefore the semantic tier, at most once per phrase.
type Memo struct {
	inner PhraseMatcher
	seen  map[string]Result
}

func NewMemo(inner PhraseMatcher) *Memo {
	return &Memo{inner: inner, seen: map[string]Result{}}
}

func (m *Memo) Match(ctx context.Context, phrase string, intent Intent) Result {
	key := string(intent) + "|" + strings.Join(Tokens(phrase), " ")
	if r, ok := m.seen[key]; ok {
		return r
	}
	r := m.inner.Match(ctx, phrase, intent)
	m.seen[key] = r
	return r
}
