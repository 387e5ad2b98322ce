// Package broadcast fans merged preference records out to session listeners.
package broadcast

import (
	"sync"
	"time"

	"github.com/dotsetgreg/repcue/pkg/logger"
	"github.com/dotsetgreg/repcue/pkg/metrics"
	"github.com/dotsetgreg/repcue/pkg/preferences"
	"github.com/google/uuid"
)

// Event is published after every committed record change.
type Event struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"session_id"`
	UserID    string                 `json:"user_id"`
	Record    preferences.FlatRecord `json:"record"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func NewEvent(sessionID, userID string, record preferences.PreferenceRecord, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Record:    record.Flatten(),
		UpdatedAt: at,
	}
}

// Publisher is what the conversation engine needs.
type Publisher interface {
	Publish(ev Event) int
}

// Subscription is a live listener. C is closed when the listener is
// unsubscribed, dropped for falling behind, or the registry closes.
type Subscription struct {
	ID        string
	SessionID string
	C         <-chan Event
}

type listener struct {
	sessionID string
	ch        chan Event
}

// Registry delivers events to listeners of the event's session. Publish
// never blocks: a listener whose buffer is full is dropped.
type Registry struct {
	mu        sync.RWMutex
	buffer    int
	listeners map[string]map[string]*listener
	closed    bool
}

func NewRegistry(buffer int) *Registry {
	if buffer <= 0 {
		buffer = 16
	}
	return &Registry{buffer: buffer, listeners: make(map[string]map[string]*listener)}
}

// Subscribe registers a listener for sessionID. On a closed registry the
// returned channel is already closed.
func (r *Registry) Subscribe(sessionID string) Subscription {
	l := &listener{sessionID: sessionID, ch: make(chan Event, r.buffer)}
	sub := Subscription{ID: uuid.NewString(), SessionID: sessionID, C: l.ch}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(l.ch)
		return sub
	}
	set, ok := r.listeners[sessionID]
	if !ok {
		set = make(map[string]*listener)
		r.listeners[sessionID] = set
	}
	set[sub.ID] = l
	logger.DebugCF("broadcast", "Listener subscribed", map[string]interface{}{
		"session_id":  sessionID,
		"listener_id": sub.ID,
	})
	return sub
}

// Unsubscribe removes the listener and closes its channel.
func (r *Registry) Unsubscribe(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sessionID, set := range r.listeners {
		if _, ok := set[id]; ok {
			r.removeLocked(sessionID, id)
			return true
		}
	}
	return false
}

func (r *Registry) removeLocked(sessionID, id string) {
	set := r.listeners[sessionID]
	l, ok := set[id]
	if !ok {
		return
	}
	delete(set, id)
	close(l.ch)
	if len(set) == 0 {
		delete(r.listeners, sessionID)
	}
}

// Publish delivers ev to every listener of ev.SessionID and returns how many
// received it.
func (r *Registry) Publish(ev Event) int {
	var slow []string
	delivered := 0

	r.mu.RLock()
	for id, l := range r.listeners[ev.SessionID] {
		select {
		case l.ch <- ev:
			delivered++
		default:
			slow = append(slow, id)
		}
	}
	r.mu.RUnlock()

	metrics.BroadcastDelivered.Add(float64(delivered))
	if len(slow) == 0 {
		return delivered
	}

	r.mu.Lock()
	for _, id := range slow {
		r.removeLocked(ev.SessionID, id)
	}
	r.mu.Unlock()
	metrics.BroadcastDropped.Add(float64(len(slow)))
	logger.WarnCF("broadcast", "Dropped slow listeners", map[string]interface{}{
		"session_id": ev.SessionID,
		"dropped":    len(slow),
	})
	return delivered
}

// DropSession closes every listener of sessionID.
func (r *Registry) DropSession(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.listeners[sessionID]
	n := len(set)
	for id := range set {
		r.removeLocked(sessionID, id)
	}
	return n
}

// Listeners returns the number of listeners of sessionID.
func (r *Registry) Listeners(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[sessionID])
}

// Close drops every listener. Later Subscribe calls get a closed channel and
// Publish delivers nothing.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for sessionID, set := range r.listeners {
		for id := range set {
			r.removeLocked(sessionID, id)
		}
	}
}
