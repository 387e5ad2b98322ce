package conversation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dotsetgreg/repcue/pkg/disambiguation"
	"github.com/dotsetgreg/repcue/pkg/preferences"
	"github.com/dotsetgreg/repcue/pkg/store"
)

// State is the ConversationState of one (session, user) pair. Only the
// pair's worker mutates it.
type State struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Phase     Phase  `json:"phase"`

	// Pending is the open clarification prompt while disambiguating. Its
	// Attempts field is the clarification attempt counter.
	Pending *disambiguation.Prompt `json:"pending,omitempty"`
	// Queue holds further ambiguous phrases from the same message, resolved
	// one after another.
	Queue []preferences.AmbiguousPhrase `json:"queue,omitempty"`

	Record    preferences.PreferenceRecord `json:"record"`
	Turns     int                          `json:"turns"`
	UpdatedAt time.Time                    `json:"updated_at"`
}

func NewState(key store.Key) State {
	return State{
		SessionID: key.SessionID,
		UserID:    key.UserID,
		Phase:     PhaseNotStarted,
		Record:    preferences.NewRecord(),
	}
}

func (s State) Key() store.Key {
	return store.Key{SessionID: s.SessionID, UserID: s.UserID}
}

// Attempts is the clarification attempt counter of the open prompt.
func (s State) Attempts() int {
	if s.Pending == nil {
		return 0
	}
	return s.Pending.Attempts
}

// Check reports ErrInvalidState for a state the machine cannot act on.
func (s State) Check() error {
	if !s.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidState, s.Phase)
	}
	if s.Phase.Disambiguating() && (s.Pending == nil || len(s.Pending.Candidates) == 0) {
		return fmt.Errorf("%w: %s without a pending prompt", ErrInvalidState, s.Phase)
	}
	return nil
}

// clone deep-copies the parts a turn may modify so a failed turn never
// leaks into the committed state.
func (s State) clone() State {
	out := s
	if s.Pending != nil {
		p := *s.Pending
		p.Candidates = append([]preferences.ExerciseRef(nil), s.Pending.Candidates...)
		out.Pending = &p
	}
	out.Queue = append([]preferences.AmbiguousPhrase(nil), s.Queue...)
	return out
}

func encodeState(s State) (store.Snapshot, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("encode conversation state: %w", err)
	}
	return store.Snapshot{Key: s.Key(), Phase: string(s.Phase), State: raw, UpdatedAt: s.UpdatedAt}, nil
}

func decodeState(snap store.Snapshot) (State, error) {
	var s State
	if err := json.Unmarshal(snap.State, &s); err != nil {
		return State{}, fmt.Errorf("%w: decode %s: %v", ErrInvalidState, snap.Key.String(), err)
	}
	if s.SessionID != snap.SessionID || s.UserID != snap.UserID {
		return State{}, fmt.Errorf("%w: stored key mismatch for %s", ErrInvalidState, snap.Key.String())
	}
	if err := s.Check(); err != nil {
		return State{}, err
	}
	return s, nil
}
