package matcher

import (
	"strings"
	"unicode"
)

var fillerTokens = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "some": {}, "any": {}, "my": {}, "of": {},
	"more": {}, "few": {}, "couple": {}, "bit": {}, "set": {}, "sets": {},
}

// Normalize lowercases s, turns hyphens/underscores/slashes into spaces, drops
// other punctuation (apostrophes included) and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '/' || unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Singular folds common English plural endings: squats→squat, lunges→lunge,
// presses→press, carries→carry, ups→up.
func Singular(tok string) string {
	switch {
	case len(tok) <= 2:
		return tok
	case strings.HasSuffix(tok, "ies"):
		return tok[:len(tok)-3] + "y"
	case strings.HasSuffix(tok, "sses"), strings.HasSuffix(tok, "shes"),
		strings.HasSuffix(tok, "ches"), strings.HasSuffix(tok, "xes"):
		return tok[:len(tok)-2]
	case strings.HasSuffix(tok, "ss"):
		return tok
	case strings.HasSuffix(tok, "s"):
		return tok[:len(tok)-1]
	}
	return tok
}

// Tokens returns the singular, filler-free tokens of s.
func Tokens(s string) []string {
	fields := strings.Fields(Normalize(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, skip := fillerTokens[f]; skip {
			continue
		}
		out = append(out, Singular(f))
	}
	return out
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func equalTokens(a, b []string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// containsSequence reports whether needle occurs contiguously in hay.
func containsSequence(hay, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(hay) {
		return false
	}
	for i := 0; i+len(needle) <= len(hay); i++ {
		if equalTokens(hay[i:i+len(needle)], needle) {
			return true
		}
	}
	return false
}
