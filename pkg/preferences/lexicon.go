package preferences

import (
	"regexp"
	"sort"
	"strings"
)

type term struct {
	canonical string
	forms     []string
}

var muscleTerms = []term{
	{"legs", []string{"legs", "leg"}},
	{"glutes", []string{"glutes", "glute", "butt", "booty"}},
	{"hamstrings", []string{"hamstrings", "hamstring", "hammies", "hams"}},
	{"quads", []string{"quadriceps", "quads", "quad"}},
	{"calves", []string{"calves", "calf"}},
	{"chest", []string{"chest", "pecs", "pec"}},
	{"back", []string{"upper back", "back", "lats", "lat"}},
	{"shoulders", []string{"shoulders", "shoulder", "delts", "delt"}},
	{"arms", []string{"arms", "arm", "guns"}},
	{"biceps", []string{"biceps", "bicep", "bis"}},
	{"triceps", []string{"triceps", "tricep", "tris"}},
	{"core", []string{"core", "abs", "midsection", "stomach"}},
	{"upper_body", []string{"upper body"}},
	{"lower_body", []string{"lower body"}},
	{"full_body", []string{"full body", "total body", "whole body"}},
	{"posterior_chain", []string{"posterior chain"}},
}

var jointTerms = []term{
	{"knee", []string{"knees", "knee"}},
	{"shoulder", []string{"shoulders", "shoulder"}},
	{"elbow", []string{"elbows", "elbow"}},
	{"wrist", []string{"wrists", "wrist"}},
	{"hip", []string{"hips", "hip"}},
	{"ankle", []string{"ankles", "ankle"}},
	{"neck", []string{"neck"}},
	{"lower_back", []string{"lower back", "back"}},
}

// alternation builds a longest-first regexp alternation and the lookup from
// each surface form to its canonical name.
func alternation(terms []term) (string, map[string]string) {
	lookup := map[string]string{}
	var forms []string
	for _, t := range terms {
		for _, f := range t.forms {
			lookup[f] = t.canonical
			forms = append(forms, f)
		}
	}
	sort.SliceStable(forms, func(i, j int) bool { return len(forms[i]) > len(forms[j]) })
	quoted := make([]string, len(forms))
	for i, f := range forms {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(f), " ", `\s+`)
	}
	return `(?:` + strings.Join(quoted, "|") + `)`, lookup
}

// listOf matches one or more x joined by commas, and, &, +, / or "or".
func listOf(x string) string {
	return `(` + x + `(?:\s*(?:,|\band\b|&|\+|/|\bor\b)\s*(?:my\s+|the\s+)?` + x + `)*)`
}

var (
	muscleAlt, muscleLookup = alternation(muscleTerms)
	jointAlt, jointLookup   = alternation(jointTerms)

	muscleFormRegex = regexp.MustCompile(`\b` + muscleAlt + `\b`)
	jointFormRegex  = regexp.MustCompile(`\b` + jointAlt + `\b`)
	sideRegex       = regexp.MustCompile(`\b(?:left|right)\s+`)

	jointRegexes = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:bad|sore|hurt|hurting|injured|tweaked|cranky|achy|aching|painful|busted|banged[- ]up|dodgy|messed[- ]up|torn|rolled|sprained|rehabbing)\s+(?:(?:left|right)\s+)?` + listOf(jointAlt) + `\b`),
		regexp.MustCompile(`\b` + listOf(jointAlt) + `\s+(?:pain|injury|injuries|issues?|problems?|hurts?|surgery|(?:is|are)\s+(?:hurting|bugging\s+me|acting\s+up|tweaked|injured|bad|sore|killing\s+me|cranky|messed\s+up))\b`),
		regexp.MustCompile(`\b(?:easy\s+on|protect|careful\s+with|watch|spare|nothing\s+(?:hard\s+)?on|go\s+light\s+on|light\s+on|gentle\s+on)\s+(?:my\s+|the\s+|our\s+)?(?:(?:left|right)\s+)?` + listOf(jointAlt) + `\b`),
	}

	muscleLessenRegexes = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:go(?:ing)?\s+(?:light|easy)\s+on|take\s+it\s+easy\s+on|easy\s+on|light\s+on|lighter\s+on|less|not\s+(?:much|too\s+much)|skip(?:ping)?|avoid(?:ing)?|no|nothing\s+for|spare|rest(?:ing)?)\s+(?:my\s+|the\s+|on\s+)?` + listOf(muscleAlt) + `\b`),
		regexp.MustCompile(`\b` + listOf(muscleAlt) + `\s+(?:is|are|feel|feels)\s+(?:super\s+|really\s+|so\s+|pretty\s+|a\s+bit\s+|kinda\s+)?(?:sore|tired|fried|toast|cooked|dead|wrecked|smoked|shot|trashed|destroyed)\b`),
		regexp.MustCompile(`\bsore\s+` + listOf(muscleAlt) + `\b`),
	}

	muscleTargetRegexes = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:focus(?:ing)?\s+on|work(?:ing)?\s+on|work|target(?:ing)?|hit(?:ting)?|train(?:ing)?|emphasi[sz]e|build(?:ing)?|smash|blast|more)\s+(?:my\s+|the\s+|some\s+|on\s+)?` + listOf(muscleAlt) + `\b`),
		regexp.MustCompile(`\b` + listOf(muscleAlt) + `\s+(?:day|focus|workout|session|work|emphasis)\b`),
	}
)

type cue[T any] struct {
	re    *regexp.Regexp
	value T
}

func cueRegex(body string) *regexp.Regexp {
	return regexp.MustCompile(`\b(?:` + body + `)\b`)
}

var goalCues = []cue[SessionGoal]{
	{cueRegex(`strength|get(?:ting)?\s+strong(?:er)?|stronger|lift(?:ing)?\s+heavy|heavy\s+lifting|pr\s+day`), GoalStrength},
	{cueRegex(`hypertrophy|build(?:ing)?\s+muscle|muscle\s+(?:gain|building|growth)|get(?:ting)?\s+(?:bigger|jacked|swole|huge)|bodybuilding`), GoalHypertrophy},
	{cueRegex(`endurance|stamina|high\s+reps?|long(?:er)?\s+sets`), GoalEndurance},
	{cueRegex(`conditioning|cardio|metcon|hiit|fat\s+loss|burn\s+(?:some\s+)?(?:fat|calories)|sweaty?|get\s+my\s+heart\s+rate\s+up`), GoalConditioning},
	{cueRegex(`core\s+stability|stability|stabili[sz]ation|balance`), GoalStability},
	{cueRegex(`mobility|flexibility|stretch(?:ing|y)?|loosen(?:ing)?\s+up|recovery(?:\s+(?:day|session|work))?|move\s+better`), GoalMobility},
	{cueRegex(`power\s+(?:work|training|day|session|focus)|explosive(?:ness)?\s+(?:work|training|day|session)|athletic(?:ism)?|get\s+(?:faster|more\s+explosive)`), GoalPower},
}

// intensityStep values are relative: +1 harder, -1 easier.
type intensityCue struct {
	absolute Intensity
	step     int
}

var intensityCues = []cue[intensityCue]{
	{cueRegex(`push\s+me(?:\s+hard)?|work\s+me(?:\s+hard)?|go(?:ing)?\s+hard|go\s+all\s+out|all[- ]out|high[- ]intensity|intense|max(?:imum)?\s+effort|beast\s+mode|crush\s+(?:me|it)|kick\s+my\s+(?:butt|ass)|hard\s+(?:session|workout|day|one)|feeling\s+(?:great|strong|energi[sz]ed|fresh|amazing)|bring\s+it|don'?t\s+hold\s+back|make\s+it\s+hurt`), intensityCue{absolute: IntensityHigh}},
	{cueRegex(`moderate(?:ly)?|medium|normal\s+intensity|middle\s+of\s+the\s+road|not\s+too\s+(?:hard|heavy|intense|crazy|easy)|nothing\s+too\s+(?:crazy|intense|hard|heavy)|(?:don'?t|do\s+not)\s+go\s+too\s+hard|steady|feeling\s+(?:ok|okay|alright|fine|decent)`), intensityCue{absolute: IntensityModerate}},
	{cueRegex(`take\s+it\s+easy|go(?:ing)?\s+easy|(?:easy|light|chill)\s+(?:day|session|one|workout)|low[- ]intensity|gentle|deload|feeling\s+(?:tired|exhausted|drained|rough|sluggish|beat\s+up|run\s+down|wiped)|low\s+energy`), intensityCue{absolute: IntensityLow}},
	{cueRegex(`harder|more\s+intense|step\s+it\s+up|ramp\s+(?:it\s+)?up|turn\s+it\s+up|kick\s+it\s+up`), intensityCue{step: 1}},
	{cueRegex(`easier|lighter|less\s+intense|tone\s+it\s+down|dial\s+it\s+back|back\s+off|ease\s+up`), intensityCue{step: -1}},
}

var (
	includeCueRegex = cueRegex(`let'?s\s+(?:do|add|hit|try|get\s+in|throw\s+in|include)|(?:i|we)\s+(?:want|wanna|need|would\s+like)(?:\s+to\s+(?:do|add|include|try))?|i'?d\s+like(?:\s+to\s+(?:do|add|include|try))?|(?:can|could)\s+we\s+(?:do|add|include|try)|(?:do|doing)\s+some|add(?:\s+in)?|include|throw\s+in|give\s+me|more|switch\s+to|swap\s+(?:in|to)|how\s+about|maybe\s+some|i\s+(?:love|like|enjoy)`)
	avoidCueRegex   = cueRegex(`no\s+more|no|skip(?:ping)?|avoid(?:ing)?|without|nothing\s+with|(?:i\s+)?(?:don'?t|do\s+not)\s+(?:want|wanna|like|feel\s+like)(?:\s+to\s+do)?(?:\s+any)?|(?:i\s+)?hate|can'?t\s+do|cannot\s+do|leave\s+out|cut(?:\s+out)?|drop|not\s+doing|not\s+feeling|sick\s+of`)

	clauseBoundaryRegex = regexp.MustCompile(`[,.;!?\n]|\s(?:but|because|since|so|then|though|although|if|while)\s`)
	itemSplitRegex      = regexp.MustCompile(`\s*(?:\band\b|\bor\b|&|\+|/|\bplus\b)\s*`)
	changeCueRegex      = cueRegex(`change|switch|swap|instead|different|something\s+(?:else|new)|rather|update|adjust|actually|modify|replace|less|more|no\s+more|don'?t\s+want|can\s+we|could\s+we|let'?s`)
)

// negationWindow is how many words before an intensity cue are checked for
// a negator.
const negationWindow = 4

var negators = map[string]struct{}{
	"no": {}, "not": {}, "never": {}, "don't": {}, "dont": {}, "doesn't": {}, "won't": {},
	"can't": {}, "cannot": {}, "shouldn't": {}, "without": {},
}

// clauseWords end the negation lookback: "no burpees and go hard" is not a
// negated cue.
var clauseWords = map[string]struct{}{
	"and": {}, "but": {}, "so": {}, "then": {}, "just": {}, "instead": {}, "rather": {},
}

// phraseEdgeWords are trimmed from both ends of a candidate exercise phrase.
var phraseEdgeWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "some": {}, "any": {}, "my": {}, "more": {}, "of": {}, "to": {},
	"do": {}, "doing": {}, "maybe": {}, "like": {}, "please": {}, "today": {}, "tonight": {},
	"this": {}, "that": {}, "those": {}, "these": {}, "again": {}, "too": {}, "also": {}, "as": {},
	"well": {}, "instead": {}, "just": {}, "really": {}, "for": {}, "on": {}, "in": {}, "with": {},
	"me": {}, "us": {}, "it": {}, "them": {}, "lot": {}, "lots": {}, "bunch": {}, "few": {},
	"little": {}, "kind": {}, "sort": {}, "time": {}, "round": {},
}

// genericWords alone never name an exercise.
var genericWords = map[string]struct{}{
	"work": {}, "stuff": {}, "training": {}, "exercise": {}, "exercises": {}, "movement": {},
	"movements": {}, "thing": {}, "things": {}, "something": {}, "workout": {}, "lifting": {},
	"lift": {}, "lifts": {}, "session": {}, "day": {}, "thanks": {}, "thank": {}, "you": {},
	"problem": {}, "problems": {}, "worries": {}, "idea": {}, "clue": {}, "way": {}, "sure": {},
	"ok": {}, "okay": {}, "lol": {}, "haha": {}, "yes": {}, "yeah": {}, "chance": {}, "rush": {},
	"pressure": {}, "excuses": {}, "pain": {}, "gain": {}, "one": {}, "ones": {}, "i": {}, "we": {},
	"everything": {}, "anything": {}, "nothing": {}, "weights": {}, "weight": {}, "reps": {},
	"different": {}, "else": {}, "new": {}, "change": {}, "variety": {},
}
