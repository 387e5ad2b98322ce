package preferences

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/dotsetgreg/repcue/pkg/logger"
	"github.com/dotsetgreg/repcue/pkg/matcher"
)

// Extractor turns one inbound message into a PreferenceDelta.
type Extractor struct {
	matcher matcher.PhraseMatcher
}

func NewExtractor(m matcher.PhraseMatcher) *Extractor {
	return &Extractor{matcher: m}
}

type span struct {
	start, end int
}

// Extract reads message and returns only what it states. existing is read
// for relative intensity cues ("harder", "easier") and never modified.
//
// Cues are consumed in a fixed order so one phrase feeds one field: joints,
// muscles to lessen, muscle targets, session goal, intensity, then exercise
// mentions in whatever text is left.
func (x *Extractor) Extract(ctx context.Context, message string, existing PreferenceRecord) PreferenceDelta {
	text := normalizeMessage(message)
	var delta PreferenceDelta
	if text == "" {
		return delta
	}
	delta.ChangeCue = changeCueRegex.MatchString(text)

	work := []byte(text)

	delta.AvoidJoints = consumeTerms(work, jointRegexes, jointFormRegex, jointLookup)
	delta.MuscleLessens = consumeTerms(work, muscleLessenRegexes, muscleFormRegex, muscleLookup)
	delta.MuscleTargets = consumeTerms(work, muscleTargetRegexes, muscleFormRegex, muscleLookup)

	if goal, ok := lastCue(work, goalCues); ok {
		g := goal
		delta.SessionGoal = &g
	}
	if ic, ok := lastIntensityCue(work); ok {
		level := ic.absolute
		if level == "" {
			level = existing.Intensity.Value.step(ic.step)
		}
		delta.Intensity = &level
	}

	x.extractExercises(ctx, string(work), &delta)

	logger.DebugCF("extractor", "Message extracted", map[string]interface{}{
		"categories": strings.Join(delta.Categories(), ","),
		"ambiguous":  len(delta.Ambiguous),
		"unresolved": len(delta.Unresolved),
	})
	return delta
}

func normalizeMessage(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("’", "'", "‘", "'", "“", `"`, "”", `"`).Replace(s)
	return strings.TrimSpace(s)
}

// blank overwrites sp with a clause boundary of the same width so later
// passes keep their offsets and never read across a consumed cue.
func blank(work []byte, sp span) {
	for i := sp.start; i < sp.end; i++ {
		work[i] = ' '
	}
	work[sp.start] = ','
}

// consumeTerms runs each regexp over work, collects the canonical terms in
// the first capture group and blanks every match.
func consumeTerms(work []byte, res []*regexp.Regexp, form *regexp.Regexp, lookup map[string]string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, re := range res {
		for _, m := range re.FindAllSubmatchIndex(work, -1) {
			if len(m) < 4 || m[2] < 0 {
				continue
			}
			list := sideRegex.ReplaceAllString(string(work[m[2]:m[3]]), "")
			for _, f := range form.FindAllString(list, -1) {
				canonical, ok := lookup[strings.Join(strings.Fields(f), " ")]
				if !ok {
					continue
				}
				if _, dup := seen[canonical]; dup {
					continue
				}
				seen[canonical] = struct{}{}
				out = append(out, canonical)
			}
		}
		for _, m := range re.FindAllIndex(work, -1) {
			blank(work, span{m[0], m[1]})
		}
	}
	return out
}

type cueHit[T any] struct {
	span
	value T
}

// lastCue finds all non-overlapping cue matches, blanks them, and returns the
// value of the one stated last in the message.
func lastCue[T any](work []byte, cues []cue[T]) (T, bool) {
	hits := cueHits(work, cues)
	if len(hits) == 0 {
		var zero T
		return zero, false
	}
	return hits[len(hits)-1].value, true
}

// lastIntensityCue is lastCue for intensity with negation applied. "don't
// push me hard" reads as moderate; any other negated cue is ignored and an
// earlier one in the message may count instead.
func lastIntensityCue(work []byte) (intensityCue, bool) {
	text := string(work)
	hits := cueHits(work, intensityCues)
	for i := len(hits) - 1; i >= 0; i-- {
		h := hits[i]
		if !negated(text[:h.start]) {
			return h.value, true
		}
		if h.value.absolute == IntensityHigh {
			return intensityCue{absolute: IntensityModerate}, true
		}
	}
	return intensityCue{}, false
}

// negated reports whether one of the last few words of prefix, within the
// same clause, is a negator.
func negated(prefix string) bool {
	if i := strings.LastIndexAny(prefix, ",.;!?\n"); i >= 0 {
		prefix = prefix[i+1:]
	}
	words := strings.Fields(prefix)
	for i := len(words) - 1; i >= 0 && i >= len(words)-negationWindow; i-- {
		w := strings.Trim(words[i], `"'()`)
		if _, stop := clauseWords[w]; stop {
			return false
		}
		if _, neg := negators[w]; neg {
			return true
		}
	}
	return false
}

// cueHits returns the non-overlapping cue matches in message order and
// blanks them in work.
func cueHits[T any](work []byte, cues []cue[T]) []cueHit[T] {
	var hits []cueHit[T]
	for _, c := range cues {
		for _, m := range c.re.FindAllIndex(work, -1) {
			hits = append(hits, cueHit[T]{span: span{m[0], m[1]}, value: c.value})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].start != hits[j].start {
			return hits[i].start < hits[j].start
		}
		return hits[i].end > hits[j].end
	})
	kept := hits[:0]
	lastEnd := -1
	for _, h := range hits {
		if h.start < lastEnd {
			continue
		}
		kept = append(kept, h)
		lastEnd = h.end
	}
	for _, h := range kept {
		blank(work, h.span)
	}
	return kept
}

type exerciseCue struct {
	span
	intent matcher.Intent
}

func (x *Extractor) extractExercises(ctx context.Context, text string, delta *PreferenceDelta) {
	var cues []exerciseCue
	for _, m := range avoidCueRegex.FindAllStringIndex(text, -1) {
		cues = append(cues, exerciseCue{span{m[0], m[1]}, matcher.IntentAvoid})
	}
	for _, m := range includeCueRegex.FindAllStringIndex(text, -1) {
		cues = append(cues, exerciseCue{span{m[0], m[1]}, matcher.IntentInclude})
	}
	if len(cues) == 0 {
		return
	}
	sort.SliceStable(cues, func(i, j int) bool {
		if cues[i].start != cues[j].start {
			return cues[i].start < cues[j].start
		}
		return cues[i].end > cues[j].end
	})
	kept := cues[:0]
	lastEnd := -1
	for _, c := range cues {
		if c.start < lastEnd {
			continue
		}
		kept = append(kept, c)
		lastEnd = c.end
	}

	var memo *matcher.Memo
	if x.matcher != nil {
		memo = matcher.NewMemo(x.matcher)
	}
	seenPhrase := map[string]struct{}{}
	for i, c := range kept {
		end := len(text)
		if i+1 < len(kept) {
			end = kept[i+1].start
		}
		segment := text[c.end:end]
		if b := clauseBoundaryRegex.FindStringIndex(segment); b != nil {
			segment = segment[:b[0]]
		}
		for _, item := range itemSplitRegex.Split(segment, -1) {
			phrase := cleanPhrase(item)
			if phrase == "" {
				continue
			}
			key := string(c.intent) + "|" + phrase
			if _, dup := seenPhrase[key]; dup {
				continue
			}
			seenPhrase[key] = struct{}{}
			x.resolvePhrase(ctx, memo, phrase, c.intent, delta)
		}
	}
}

func (x *Extractor) resolvePhrase(ctx context.Context, memo *matcher.Memo, phrase string, intent matcher.Intent, delta *PreferenceDelta) {
	if muscles, ok := onlyMuscles(phrase); ok {
		if intent == matcher.IntentAvoid {
			delta.MuscleLessens = unionStrings(delta.MuscleLessens, muscles)
		} else {
			delta.MuscleTargets = unionStrings(delta.MuscleTargets, muscles)
		}
		return
	}
	if memo == nil {
		delta.Unresolved = append(delta.Unresolved, phrase)
		return
	}

	res := memo.Match(ctx, phrase, intent)
	switch res.Method {
	case matcher.MethodExerciseType, matcher.MethodPattern, matcher.MethodLLM:
	case matcher.MethodNone:
		delta.Unresolved = append(delta.Unresolved, phrase)
		return
	default:
		logger.WarnCF("extractor", "Unknown match method", map[string]interface{}{"method": string(res.Method)})
		delta.Unresolved = append(delta.Unresolved, phrase)
		return
	}

	refs := RefsFromEntries(res.Candidates)
	switch {
	case len(refs) == 0:
		delta.Unresolved = append(delta.Unresolved, phrase)
	case len(refs) == 1 && intent == matcher.IntentAvoid:
		delta.AvoidExercises = unionRefs(delta.AvoidExercises, refs)
	case len(refs) == 1:
		delta.IncludeExercises = unionRefs(delta.IncludeExercises, refs)
	default:
		delta.Ambiguous = append(delta.Ambiguous, AmbiguousPhrase{
			Phrase:     phrase,
			Intent:     intent,
			Method:     res.Method,
			Candidates: refs,
		})
	}
}

// cleanPhrase trims edge filler and returns "" when nothing exercise-like is
// left.
func cleanPhrase(item string) string {
	fields := strings.FieldsFunc(item, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '"' || r == '(' || r == ')' || r == ':'
	})
	for len(fields) > 0 {
		if _, edge := phraseEdgeWords[fields[0]]; !edge {
			break
		}
		fields = fields[1:]
	}
	for len(fields) > 0 {
		if _, edge := phraseEdgeWords[fields[len(fields)-1]]; !edge {
			break
		}
		fields = fields[:len(fields)-1]
	}
	allGeneric := true
	for _, f := range fields {
		if _, generic := genericWords[f]; !generic {
			allGeneric = false
			break
		}
	}
	if len(fields) == 0 || allGeneric {
		return ""
	}
	return strings.Join(fields, " ")
}

// onlyMuscles reports whether phrase is nothing but muscle group names.
func onlyMuscles(phrase string) ([]string, bool) {
	rest := muscleFormRegex.ReplaceAllString(phrase, "")
	rest = itemSplitRegex.ReplaceAllString(rest, " ")
	if strings.TrimSpace(strings.Trim(rest, ", ")) != "" {
		return nil, false
	}
	var out []string
	for _, f := range muscleFormRegex.FindAllString(phrase, -1) {
		if c, ok := muscleLookup[strings.Join(strings.Fields(f), " ")]; ok {
			out = unionStrings(out, []string{c})
		}
	}
	return out, len(out) > 0
}
