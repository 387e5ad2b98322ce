package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dotsetgreg/repcue/pkg/disambiguation"
	"github.com/dotsetgreg/repcue/pkg/logger"
	"github.com/dotsetgreg/repcue/pkg/matcher"
	"github.com/dotsetgreg/repcue/pkg/metrics"
	"github.com/dotsetgreg/repcue/pkg/preferences"
)

// Transition is the result of one turn.
type Transition struct {
	Next  State
	Reply string
	// Path lists every phase entered during the turn, in order. The last
	// element equals Next.Phase.
	Path []Phase
	// Class is set when the turn was handled in PREFERENCES_ACTIVE.
	Class ActiveClass
	// Outcome is set when the turn was a disambiguation reply.
	Outcome disambiguation.OutcomeKind
	// RecordChanged is true when the preference record was merged.
	RecordChanged bool

	parts []string
}

func (t *Transition) enter(next *State, p Phase) {
	next.Phase = p
	t.Path = append(t.Path, p)
}

func (t *Transition) say(s string) {
	if s = strings.TrimSpace(s); s != "" {
		t.parts = append(t.parts, s)
	}
}

// Machine applies one inbound message to a State. It holds no per-pair
// data, so one Machine serves every worker.
type Machine struct {
	extractor *preferences.Extractor
	templates *Templates
	now       func() time.Time
}

func NewMachine(extractor *preferences.Extractor, templates *Templates) *Machine {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if templates.compiled == nil {
		if err := templates.compile(); err != nil {
			logger.ErrorCF("engine", "Invalid templates, using defaults", map[string]interface{}{"error": err.Error()})
			templates = DefaultTemplates()
			_ = templates.compile()
		}
	}
	return &Machine{extractor: extractor, templates: templates, now: time.Now}
}

// Step runs one turn. st is not modified. On ErrInvalidState the returned
// transition carries st unchanged and the fallback reply.
func (m *Machine) Step(ctx context.Context, st State, text string) (Transition, error) {
	if err := st.Check(); err != nil {
		return Transition{Next: st, Reply: m.render("fallback", st.Turns, ReplyData{})}, err
	}

	next := st.clone()
	next.Turns++
	tr := Transition{}

	switch st.Phase {
	case PhaseNotStarted, PhaseInitialCollected, PhaseDisambiguationResolved:
		// The last two are only left over when a previous turn was cut
		// short; they collect like a first message.
		m.collect(ctx, &next, &tr, text)
	case PhaseDisambiguationPending, PhaseDisambiguationClarifying:
		m.disambiguate(&next, &tr, text)
	case PhaseFollowUpSent:
		m.followUpReply(ctx, &next, &tr, text)
	case PhasePreferencesActive:
		m.active(ctx, &next, &tr, text)
	default:
		return Transition{Next: st, Reply: m.render("fallback", st.Turns, ReplyData{})},
			fmt.Errorf("%w: unhandled phase %q", ErrInvalidState, st.Phase)
	}

	next.UpdatedAt = m.now()
	tr.Next = next
	tr.Reply = strings.Join(tr.parts, "\n")
	if tr.Reply == "" {
		tr.Reply = m.render("fallback", next.Turns, ReplyData{})
	}
	return tr, nil
}

func (m *Machine) render(family string, variant int, data ReplyData) string {
	return m.templates.Render(family, variant, data)
}

func (m *Machine) extract(ctx context.Context, text string, rec preferences.PreferenceRecord) preferences.PreferenceDelta {
	if m.extractor == nil {
		return preferences.PreferenceDelta{}
	}
	return m.extractor.Extract(ctx, text, rec)
}

func (m *Machine) collect(ctx context.Context, next *State, tr *Transition, text string) {
	delta := m.extract(ctx, text, next.Record)
	if delta.HasFields() {
		next.Record = preferences.Merge(next.Record, delta)
		tr.RecordChanged = true
		tr.say(m.render("captured", next.Turns, ReplyData{Categories: joinList(delta.Categories(), "and")}))
	} else if len(delta.Ambiguous) == 0 {
		tr.say(m.render("nothing_captured", next.Turns, ReplyData{}))
	}
	m.noteUnresolved(next, tr, delta.Unresolved)

	if len(delta.Ambiguous) > 0 {
		next.Queue = append(next.Queue[:0], delta.Ambiguous...)
		m.openNextPrompt(next, tr)
		return
	}
	tr.enter(next, PhaseInitialCollected)
	m.afterCollected(next, tr)
}

// openNextPrompt pops the queue into a fresh disambiguation prompt.
func (m *Machine) openNextPrompt(next *State, tr *Transition) {
	amb := next.Queue[0]
	next.Queue = next.Queue[1:]
	if len(next.Queue) == 0 {
		next.Queue = nil
	}
	p := disambiguation.Begin(amb.Candidates, amb.Phrase, amb.Intent)
	next.Pending = &p
	tr.enter(next, PhaseDisambiguationPending)

	options := make([]string, len(p.Candidates))
	for i, c := range p.Candidates {
		options[i] = fmt.Sprintf("%d. %s", i+1, c.Name)
	}
	tr.say(m.render("disambiguate", next.Turns, ReplyData{
		Phrase:  p.Phrase,
		Verb:    verbFor(p.Intent),
		Options: strings.Join(options, "\n"),
	}))
}

func (m *Machine) disambiguate(next *State, tr *Transition, text string) {
	out, prompt := disambiguation.Resolve(text, *next.Pending)
	tr.Outcome = out.Kind

	switch out.Kind {
	case disambiguation.OutcomeResolved:
		var delta preferences.PreferenceDelta
		if prompt.Intent == matcher.IntentAvoid {
			delta.AvoidExercises = out.Selected
		} else {
			delta.IncludeExercises = out.Selected
		}
		next.Record = preferences.Merge(next.Record, delta)
		tr.RecordChanged = true
		names := make([]string, len(out.Selected))
		for i, s := range out.Selected {
			names[i] = s.Name
		}
		tr.say(m.render("resolved", next.Turns, ReplyData{
			Phrase: prompt.Phrase,
			Verb:   verbFor(prompt.Intent),
			Names:  joinList(names, "and"),
		}))
	case disambiguation.OutcomeNeedsClarification:
		next.Pending = &prompt
		tr.enter(next, PhaseDisambiguationClarifying)
		tr.say(out.PromptText)
		return
	case disambiguation.OutcomeAbandoned:
		tr.say(m.render("abandoned", next.Turns, ReplyData{Phrase: prompt.Phrase}))
	default:
		logger.ErrorCF("engine", "Unknown disambiguation outcome", map[string]interface{}{"outcome": string(out.Kind)})
		next.Pending = &prompt
		tr.say(m.render("fallback", next.Turns, ReplyData{}))
		return
	}

	next.Pending = nil
	tr.enter(next, PhaseDisambiguationResolved)
	if len(next.Queue) > 0 {
		m.openNextPrompt(next, tr)
		return
	}
	m.afterCollected(next, tr)
}

// afterCollected asks for the first missing required field, or activates
// the preferences when nothing is missing.
func (m *Machine) afterCollected(next *State, tr *Transition) {
	switch missingField(next.Record) {
	case fieldSessionGoal:
		next.Record.NeedsFollowUp = preferences.Scalar[bool]{Value: true, Source: preferences.SourceExplicit}
		tr.enter(next, PhaseFollowUpSent)
		tr.say(m.render("followup_goal", next.Turns, ReplyData{Goals: joinList(goalNames(), "or")}))
	case fieldFocus:
		next.Record.NeedsFollowUp = preferences.Scalar[bool]{Value: true, Source: preferences.SourceExplicit}
		tr.enter(next, PhaseFollowUpSent)
		tr.say(m.render("followup_focus", next.Turns, ReplyData{}))
	default:
		next.Record.NeedsFollowUp = preferences.Scalar[bool]{Value: false, Source: preferences.SourceExplicit}
		tr.enter(next, PhasePreferencesActive)
		tr.say(m.render("ready", next.Turns, ReplyData{}))
	}
}

func (m *Machine) followUpReply(ctx context.Context, next *State, tr *Transition, text string) {
	delta := m.extract(ctx, text, next.Record)
	if delta.HasFields() {
		next.Record = preferences.Merge(next.Record, delta)
		tr.RecordChanged = true
		tr.say(m.render("captured", next.Turns, ReplyData{Categories: joinList(delta.Categories(), "and")}))
	}
	next.Record.NeedsFollowUp = preferences.Scalar[bool]{Value: false, Source: preferences.SourceExplicit}
	m.noteAmbiguous(next, tr, delta.Ambiguous)
	m.noteUnresolved(next, tr, delta.Unresolved)
	tr.enter(next, PhasePreferencesActive)
	tr.say(m.render("ready", next.Turns, ReplyData{}))
}

// Classify sorts an active-phase delta into update, unclear or general.
func Classify(delta preferences.PreferenceDelta) ActiveClass {
	switch {
	case delta.HasFields():
		return ClassUpdate
	case delta.ChangeCue || len(delta.Ambiguous) > 0 || len(delta.Unresolved) > 0:
		return ClassUnclear
	default:
		return ClassGeneral
	}
}

func (m *Machine) active(ctx context.Context, next *State, tr *Transition, text string) {
	delta := m.extract(ctx, text, next.Record)
	tr.Class = Classify(delta)
	metrics.ActiveUpdates.WithLabelValues(string(tr.Class)).Inc()

	switch tr.Class {
	case ClassUpdate:
		next.Record = preferences.Merge(next.Record, delta)
		tr.RecordChanged = true
		tr.say(m.render("update", next.Turns, ReplyData{Categories: joinList(delta.Categories(), "and")}))
		m.noteAmbiguous(next, tr, delta.Ambiguous)
		m.noteUnresolved(next, tr, delta.Unresolved)
	case ClassUnclear:
		m.noteAmbiguous(next, tr, delta.Ambiguous)
		m.noteUnresolved(next, tr, delta.Unresolved)
		if len(delta.Ambiguous) == 0 {
			tr.say(m.render("unclear", next.Turns, ReplyData{Dimensions: joinList(adjustableDimensions, "and")}))
		}
	case ClassGeneral:
		tr.say(m.render("general", next.Turns, ReplyData{}))
	}
	tr.enter(next, PhasePreferencesActive)
}

// noteAmbiguous lists the options of phrases that cannot enter a numbered
// prompt because the pair is past disambiguation.
func (m *Machine) noteAmbiguous(next *State, tr *Transition, amb []preferences.AmbiguousPhrase) {
	for _, a := range amb {
		names := make([]string, len(a.Candidates))
		for i, c := range a.Candidates {
			names[i] = c.Name
		}
		tr.say(m.render("active_ambiguous", next.Turns, ReplyData{
			Phrase:  a.Phrase,
			Verb:    verbFor(a.Intent),
			Options: joinList(names, "or"),
		}))
	}
}

func (m *Machine) noteUnresolved(next *State, tr *Transition, phrases []string) {
	for _, p := range phrases {
		tr.say(m.render("unresolved", next.Turns, ReplyData{Phrase: p}))
	}
}

const (
	fieldSessionGoal = "session_goal"
	fieldFocus       = "focus"
)

// missingField returns the first required field the record lacks: the
// session goal, then a muscle focus or joint to protect.
func missingField(rec preferences.PreferenceRecord) string {
	if rec.SessionGoal.Value == "" {
		return fieldSessionGoal
	}
	if len(rec.MuscleTargets) == 0 && len(rec.AvoidJoints) == 0 {
		return fieldFocus
	}
	return ""
}

var adjustableDimensions = []string{
	"intensity",
	"session goal",
	"muscle focus",
	"exercises to include or avoid",
	"joints to protect",
}

func goalNames() []string {
	return []string{
		string(preferences.GoalStrength),
		string(preferences.GoalHypertrophy),
		string(preferences.GoalEndurance),
		string(preferences.GoalConditioning),
		string(preferences.GoalStability),
		string(preferences.GoalMobility),
		string(preferences.GoalPower),
	}
}

func verbFor(intent matcher.Intent) string {
	if intent == matcher.IntentAvoid {
		return "skip"
	}
	return "include"
}

// joinList renders "a", "a and b", "a, b and c".
func joinList(items []string, conj string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " " + conj + " " + items[len(items)-1]
}
