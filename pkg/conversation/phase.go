// Package conversation runs the per-pair check-in state machine.
package conversation

import "errors"

var (
	// ErrInvalidState marks a stored state the engine cannot interpret. The
	// turn is answered with a fallback reply and the state is left untouched.
	ErrInvalidState = errors.New("invalid conversation state")
	// ErrEngineClosed is returned by Handle after Close.
	ErrEngineClosed = errors.New("conversation engine closed")
	// ErrPairBusy is returned when a pair's mailbox is full and the caller
	// asked not to wait.
	ErrPairBusy = errors.New("pair mailbox full")
)

type Phase string

const (
	PhaseNotStarted               Phase = "NOT_STARTED"
	PhaseInitialCollected         Phase = "INITIAL_COLLECTED"
	PhaseDisambiguationPending    Phase = "DISAMBIGUATION_PENDING"
	PhaseDisambiguationClarifying Phase = "DISAMBIGUATION_CLARIFYING"
	PhaseDisambiguationResolved   Phase = "DISAMBIGUATION_RESOLVED"
	PhaseFollowUpSent             Phase = "FOLLOWUP_SENT"
	PhasePreferencesActive        Phase = "PREFERENCES_ACTIVE"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseNotStarted, PhaseInitialCollected, PhaseDisambiguationPending,
		PhaseDisambiguationClarifying, PhaseDisambiguationResolved,
		PhaseFollowUpSent, PhasePreferencesActive:
		return true
	}
	return false
}

// Disambiguating reports whether the disambiguation manager owns the turn.
func (p Phase) Disambiguating() bool {
	return p == PhaseDisambiguationPending || p == PhaseDisambiguationClarifying
}

// ActiveClass is how a message in PREFERENCES_ACTIVE was classified.
type ActiveClass string

const (
	ClassUpdate  ActiveClass = "update"
	ClassGeneral ActiveClass = "general"
	ClassUnclear ActiveClass = "unclear"
)
