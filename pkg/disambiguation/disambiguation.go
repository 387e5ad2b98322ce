// Package disambiguation runs the bounded numeric clarification dialog used
// when one exercise phrase matches several catalog entries.
package disambiguation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dotsetgreg/repcue/pkg/logger"
	"github.com/dotsetgreg/repcue/pkg/matcher"
	"github.com/dotsetgreg/repcue/pkg/metrics"
	"github.com/dotsetgreg/repcue/pkg/preferences"
)

// MaxAttempts is the number of failed replies after which a prompt is
// abandoned.
const MaxAttempts = 2

// Prompt is the transient state of one clarification dialog.
type Prompt struct {
	Phrase     string                    `json:"phrase"`
	Intent     matcher.Intent            `json:"intent"`
	Candidates []preferences.ExerciseRef `json:"candidates"`
	Attempts   int                       `json:"attempts"`
}

// Text renders the numbered candidate list, 1-based.
func (p Prompt) Text() string {
	var b strings.Builder
	verb := "include"
	if p.Intent == matcher.IntentAvoid {
		verb = "skip"
	}
	fmt.Fprintf(&b, "Which %q did you want to %s? Reply with the number(s):", p.Phrase, verb)
	for i, c := range p.Candidates {
		fmt.Fprintf(&b, "\n%d. %s", i+1, c.Name)
	}
	return b.String()
}

type OutcomeKind string

const (
	OutcomeResolved           OutcomeKind = "resolved"
	OutcomeNeedsClarification OutcomeKind = "needs_clarification"
	OutcomeAbandoned          OutcomeKind = "abandoned"
)

// Outcome is the result of Resolve. Selected is set for OutcomeResolved and
// PromptText for OutcomeNeedsClarification.
type Outcome struct {
	Kind       OutcomeKind
	Selected   []preferences.ExerciseRef
	PromptText string
}

// Begin starts a dialog for candidates.
func Begin(candidates []preferences.ExerciseRef, phrase string, intent matcher.Intent) Prompt {
	c := make([]preferences.ExerciseRef, len(candidates))
	copy(c, candidates)
	return Prompt{Phrase: phrase, Intent: intent, Candidates: c}
}

var (
	// A selection may only contain numbers, separators and connector words.
	selectionTokenRegex = regexp.MustCompile(`\d+|[a-z]+`)
	connectorWords      = map[string]struct{}{
		"and": {}, "n": {}, "plus": {}, "also": {}, "or": {}, "both": {},
		"number": {}, "numbers": {}, "num": {}, "no": {}, "option": {}, "options": {}, "pls": {}, "please": {},
	}
)

// ParseSelection returns the 1-based indices in reply, in order with
// duplicates removed. It fails on any non-connector word, on a reply with no
// number, and on an index outside 1..n.
func ParseSelection(reply string, n int) ([]int, error) {
	tokens := selectionTokenRegex.FindAllString(strings.ToLower(reply), -1)
	var out []int
	seen := map[int]struct{}{}
	for _, tok := range tokens {
		if tok[0] < '0' || tok[0] > '9' {
			if _, ok := connectorWords[tok]; ok {
				continue
			}
			return nil, fmt.Errorf("unexpected word %q in selection", tok)
		}
		idx, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("parse index %q: %w", tok, err)
		}
		if idx < 1 || idx > n {
			return nil, fmt.Errorf("index %d out of range 1..%d", idx, n)
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no index in selection")
	}
	return out, nil
}

// Resolve applies reply to p. The returned Prompt carries the updated attempt
// counter; callers keep it only for OutcomeNeedsClarification.
func Resolve(reply string, p Prompt) (Outcome, Prompt) {
	out, next := resolve(reply, p)
	metrics.DisambiguationOutcomes.WithLabelValues(string(out.Kind)).Inc()
	logger.DebugCF("disambiguation", "Reply resolved", map[string]interface{}{
		"phrase":   p.Phrase,
		"outcome":  string(out.Kind),
		"attempts": next.Attempts,
		"selected": len(out.Selected),
	})
	return out, next
}

func resolve(reply string, p Prompt) (Outcome, Prompt) {
	indices, err := ParseSelection(reply, len(p.Candidates))
	if err == nil {
		selected := make([]preferences.ExerciseRef, 0, len(indices))
		for _, idx := range indices {
			selected = append(selected, p.Candidates[idx-1])
		}
		return Outcome{Kind: OutcomeResolved, Selected: selected}, p
	}

	next := p
	if next.Attempts < MaxAttempts {
		next.Attempts++
	}
	if next.Attempts >= MaxAttempts {
		return Outcome{Kind: OutcomeAbandoned}, next
	}
	return Outcome{Kind: OutcomeNeedsClarification, PromptText: clarificationText(next)}, next
}

func clarificationText(p Prompt) string {
	example := "1"
	if len(p.Candidates) > 1 {
		example = "1,2"
	}
	return fmt.Sprintf("Sorry, I need the option number(s) from the list, like %q.\n%s", example, p.Text())
}
