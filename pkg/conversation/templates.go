package conversation

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/dotsetgreg/repcue/pkg/logger"
	"gopkg.in/yaml.v3"
)

// Templates holds the reply wording. Each field is a family of
// text/template variants; the variant is picked by the pair's turn count.
type Templates struct {
	Captured        []string `yaml:"captured"`
	NothingCaptured []string `yaml:"nothing_captured"`
	Disambiguate    []string `yaml:"disambiguate"`
	Resolved        []string `yaml:"resolved"`
	Abandoned       []string `yaml:"abandoned"`
	FollowUpGoal    []string `yaml:"followup_goal"`
	FollowUpFocus   []string `yaml:"followup_focus"`
	Ready           []string `yaml:"ready"`
	Update          []string `yaml:"update"`
	General         []string `yaml:"general"`
	Unclear         []string `yaml:"unclear"`
	ActiveAmbiguous []string `yaml:"active_ambiguous"`
	Unresolved      []string `yaml:"unresolved"`
	RetryLater      []string `yaml:"retry_later"`
	Busy            []string `yaml:"busy"`
	Fallback        []string `yaml:"fallback"`

	compiled map[string][]*template.Template
}

// ReplyData is the template input. Not every field is set for every family.
type ReplyData struct {
	Categories string
	Phrase     string
	Names      string
	Options    string
	Verb       string
	Goals      string
	Dimensions string
}

func DefaultTemplates() *Templates {
	return &Templates{
		Captured: []string{
			"Got it, I noted your {{.Categories}}.",
			"Thanks! Saved your {{.Categories}}.",
		},
		NothingCaptured: []string{"Thanks for checking in!"},
		Disambiguate: []string{
			"I found a few matches for \"{{.Phrase}}\". Which do you want to {{.Verb}}? Reply with the number(s):\n{{.Options}}",
		},
		Resolved:  []string{"Done, I'll {{.Verb}} {{.Names}}."},
		Abandoned: []string{"No problem, I'll leave \"{{.Phrase}}\" out for now."},
		FollowUpGoal: []string{
			"What's the focus for today: {{.Goals}}?",
		},
		FollowUpFocus: []string{
			"Any muscle groups you want to hit, or joints I should go easy on?",
		},
		Ready: []string{"You're all set. Text me anytime if something changes."},
		Update: []string{
			"Updated your {{.Categories}}.",
			"Got it, changed your {{.Categories}}.",
		},
		General: []string{
			"Your preferences are set. Text me if you want to change anything.",
			"You're all set for today's session.",
		},
		Unclear: []string{
			"Happy to adjust. You can change {{.Dimensions}}. What would you like?",
		},
		ActiveAmbiguous: []string{"\"{{.Phrase}}\" could mean {{.Options}}. Which one did you mean?"},
		Unresolved:      []string{"I couldn't find \"{{.Phrase}}\" in the exercise list."},
		RetryLater:      []string{"Sorry, I couldn't save that. Please send it again in a moment."},
		Busy:            []string{"I'm still working through your last few messages. Please send that one again in a moment."},
		Fallback:        []string{"Sorry, something went wrong on my end. Please try again."},
	}
}

// LoadTemplates reads a YAML override. Families present in the file replace
// the defaults; the rest keep the default wording.
func LoadTemplates(path string) (*Templates, error) {
	t := DefaultTemplates()
	if strings.TrimSpace(path) == "" {
		return t, t.compile()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.WarnCF("engine", "Templates file not found, using defaults", map[string]interface{}{"path": path})
			return t, t.compile()
		}
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var override Templates
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", path, err)
	}
	for name, fam := range override.families() {
		if len(*fam) > 0 {
			*t.families()[name] = *fam
		}
	}
	if err := t.compile(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Templates) families() map[string]*[]string {
	return map[string]*[]string{
		"captured":         &t.Captured,
		"nothing_captured": &t.NothingCaptured,
		"disambiguate":     &t.Disambiguate,
		"resolved":         &t.Resolved,
		"abandoned":        &t.Abandoned,
		"followup_goal":    &t.FollowUpGoal,
		"followup_focus":   &t.FollowUpFocus,
		"ready":            &t.Ready,
		"update":           &t.Update,
		"general":          &t.General,
		"unclear":          &t.Unclear,
		"active_ambiguous": &t.ActiveAmbiguous,
		"unresolved":       &t.Unresolved,
		"retry_later":      &t.RetryLater,
		"busy":             &t.Busy,
		"fallback":         &t.Fallback,
	}
}

func (t *Templates) compile() error {
	t.compiled = make(map[string][]*template.Template)
	for name, fam := range t.families() {
		if len(*fam) == 0 {
			return fmt.Errorf("templates: family %s is empty", name)
		}
		for i, src := range *fam {
			tpl, err := template.New(fmt.Sprintf("%s.%d", name, i)).Option("missingkey=zero").Parse(src)
			if err != nil {
				return fmt.Errorf("templates: parse %s[%d]: %w", name, i, err)
			}
			t.compiled[name] = append(t.compiled[name], tpl)
		}
	}
	return nil
}

// Render executes a variant of family. A rendering failure falls back to the
// raw variant text so a reply is never empty.
func (t *Templates) Render(family string, variant int, data ReplyData) string {
	if t.compiled == nil {
		if err := t.compile(); err != nil {
			logger.ErrorCF("engine", "Templates invalid", map[string]interface{}{"error": err.Error()})
			return DefaultTemplates().Fallback[0]
		}
	}
	fam := t.compiled[family]
	if len(fam) == 0 {
		logger.ErrorCF("engine", "Unknown template family", map[string]interface{}{"family": family})
		return DefaultTemplates().Fallback[0]
	}
	if variant < 0 {
		variant = -variant
	}
	tpl := fam[variant%len(fam)]
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		logger.WarnCF("engine", "Template render failed", map[string]interface{}{
			"family": family,
			"error":  err.Error(),
		})
		return (*t.families()[family])[variant%len(fam)]
	}
	return strings.TrimSpace(buf.String())
}
