// Package store persists per-pair conversation state.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Load when the pair has no saved state.
	ErrNotFound = errors.New("conversation state not found")
	// ErrUnavailable wraps backend failures. Callers treat it as retryable.
	ErrUnavailable = errors.New("state store unavailable")
)

// Key identifies one (session, user) pair.
type Key struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

func (k Key) String() string { return k.SessionID + "/" + k.UserID }

func (k Key) Valid() bool {
	return strings.TrimSpace(k.SessionID) != "" && strings.TrimSpace(k.UserID) != ""
}

// Snapshot is the persisted form of a ConversationState. State is the
// owner's JSON encoding; Phase is duplicated so listings need not decode it.
type Snapshot struct {
	Key
	Phase     string    `json:"phase"`
	State     []byte    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is last-write-wins per pair. Implementations must be safe for
// concurrent use.
type Store interface {
	Load(ctx context.Context, key Key) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	ListSession(ctx context.Context, sessionID string) ([]Snapshot, error)
	// DeleteSession removes every pair of sessionID and reports how many.
	DeleteSession(ctx context.Context, sessionID string) (int, error)
	Close() error
}
