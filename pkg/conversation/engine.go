package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dotsetgreg/repcue/pkg/broadcast"
	"github.com/dotsetgreg/repcue/pkg/bus"
	"github.com/dotsetgreg/repcue/pkg/logger"
	"github.com/dotsetgreg/repcue/pkg/metrics"
	"github.com/dotsetgreg/repcue/pkg/store"
	"github.com/google/uuid"
)

type Options struct {
	// MailboxSize bounds the queued messages per pair.
	MailboxSize int
	// Publisher receives a snapshot after every committed record change. May
	// be nil.
	Publisher broadcast.Publisher
}

// Engine owns one serial worker per active (session, user) pair. Messages of
// one pair are processed in arrival order; different pairs run concurrently.
type Engine struct {
	machine *Machine
	store   store.Store
	opts    Options

	mu      sync.Mutex
	workers map[store.Key]*pairWorker
	// ending holds new messages for a session until EndSession has deleted
	// its stored states.
	ending map[string]chan struct{}
	closed bool
}

type turnResult struct {
	reply string
	err   error
}

type job struct {
	ctx  context.Context
	msg  bus.InboundMessage
	done func(turnResult)
}

type pairWorker struct {
	key  store.Key
	jobs chan job

	// sendMu guards jobs against a send after close.
	sendMu  sync.RWMutex
	stopped bool

	// pending counts messages from lookup until their turn is done. It is
	// only incremented under Engine.mu, so pending==0 seen under the lock
	// means nothing is queued or in flight.
	pending    atomic.Int32
	lastActive atomic.Int64
	finished   chan struct{}
	// retiring is guarded by Engine.mu. A retiring worker keeps its key
	// until it exits so no second worker can start for the pair.
	retiring bool

	// Worker-goroutine only.
	state  *State
	loaded bool
}

func NewEngine(machine *Machine, st store.Store, opts Options) *Engine {
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = 32
	}
	return &Engine{
		machine: machine,
		store:   st,
		opts:    opts,
		workers: make(map[store.Key]*pairWorker),
		ending:  make(map[string]chan struct{}),
	}
}

// Handle processes msg on its pair's worker and waits for the reply. The
// reply is never empty, even when err is set. Cancelling ctx stops the wait
// but not the turn.
func (e *Engine) Handle(ctx context.Context, msg bus.InboundMessage) (string, error) {
	if err := msg.Validate(); err != nil {
		return e.machine.render("fallback", 0, ReplyData{}), err
	}
	result := make(chan turnResult, 1)
	if err := e.enqueue(ctx, msg, true, func(r turnResult) { result <- r }); err != nil {
		return e.machine.render("fallback", 0, ReplyData{}), err
	}
	select {
	case r := <-result:
		return r.reply, r.err
	case <-ctx.Done():
		return e.machine.render("retry_later", 0, ReplyData{}), ctx.Err()
	}
}

// Run consumes inbound messages from mb and publishes replies outbound until
// ctx is done or the bus closes.
func (e *Engine) Run(ctx context.Context, mb *bus.MessageBus) error {
	logger.InfoC("engine", "Engine run loop started")
	for {
		msg, ok := mb.ConsumeInbound(ctx)
		if !ok {
			logger.InfoC("engine", "Engine run loop stopped")
			return nil
		}
		if err := msg.Validate(); err != nil {
			logger.WarnCF("engine", "Dropping invalid inbound message", map[string]interface{}{"error": err.Error()})
			continue
		}
		m := msg
		reply := func(r turnResult) {
			if r.err != nil {
				logger.WarnCF("engine", "Turn failed", map[string]interface{}{
					"session_id": m.SessionID,
					"user_id":    m.UserID,
					"error":      r.err.Error(),
				})
			}
			mb.PublishOutbound(bus.OutboundMessage{
				Channel:   m.Channel,
				ChatID:    m.ChatID,
				SessionID: m.SessionID,
				UserID:    m.UserID,
				Content:   r.reply,
			})
		}
		// The loop never waits on one pair's mailbox.
		err := e.enqueue(ctx, m, false, reply)
		switch {
		case err == nil:
		case errors.Is(err, ErrEngineClosed):
			return err
		case errors.Is(err, ErrPairBusy):
			metrics.TurnsTotal.WithLabelValues("unknown", "busy").Inc()
			reply(turnResult{reply: e.machine.render("busy", 0, ReplyData{}), err: err})
		case ctx.Err() != nil:
			return nil
		}
	}
}

// enqueue hands msg to its pair's worker. With wait unset a full mailbox
// returns ErrPairBusy instead of blocking.
func (e *Engine) enqueue(ctx context.Context, msg bus.InboundMessage, wait bool, done func(turnResult)) error {
	key := store.Key{SessionID: strings.TrimSpace(msg.SessionID), UserID: strings.TrimSpace(msg.UserID)}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	j := job{ctx: context.WithoutCancel(ctx), msg: msg, done: done}

	for {
		w, err := e.acquire(ctx, key)
		if err != nil {
			return err
		}
		sent, err := w.send(ctx, j, wait)
		if !sent {
			w.pending.Add(-1)
		}
		if err != nil {
			return err
		}
		if sent {
			return nil
		}
		// The worker stopped between lookup and send; the next acquire
		// waits for it to exit.
	}
}

// acquire returns the live worker of key, creating it if needed. It waits
// while the pair's worker is retiring or its session is ending.
func (e *Engine) acquire(ctx context.Context, key store.Key) (*pairWorker, error) {
	for {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return nil, ErrEngineClosed
		}
		var gate <-chan struct{}
		w, ok := e.workers[key]
		switch {
		case e.ending[key.SessionID] != nil:
			gate = e.ending[key.SessionID]
		case ok && w.retiring:
			gate = w.finished
		case !ok:
			w = &pairWorker{
				key:      key,
				jobs:     make(chan job, e.opts.MailboxSize),
				finished: make(chan struct{}),
			}
			w.lastActive.Store(time.Now().UnixNano())
			e.workers[key] = w
			metrics.ActiveWorkers.Inc()
			go e.runWorker(w)
		}
		if gate == nil {
			w.pending.Add(1)
			e.mu.Unlock()
			return w, nil
		}
		e.mu.Unlock()

		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// send enqueues j. It reports false when the worker has already stopped or,
// with wait unset, when the mailbox is full.
func (w *pairWorker) send(ctx context.Context, j job, wait bool) (bool, error) {
	w.sendMu.RLock()
	defer w.sendMu.RUnlock()
	if w.stopped {
		return false, nil
	}
	if !wait {
		select {
		case w.jobs <- j:
			return true, nil
		default:
			return false, ErrPairBusy
		}
	}
	select {
	case w.jobs <- j:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// stop closes the mailbox. The worker drains what is queued, then exits.
func (w *pairWorker) stop() {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.jobs)
}

func (e *Engine) runWorker(w *pairWorker) {
	defer func() {
		e.mu.Lock()
		if e.workers[w.key] == w {
			delete(e.workers, w.key)
		}
		e.mu.Unlock()
		metrics.ActiveWorkers.Dec()
		close(w.finished)
	}()
	for j := range w.jobs {
		r := e.processTurn(j.ctx, w, j.msg)
		w.lastActive.Store(time.Now().UnixNano())
		w.pending.Add(-1)
		if j.done != nil {
			j.done(r)
		}
	}
}

func (e *Engine) processTurn(ctx context.Context, w *pairWorker, msg bus.InboundMessage) turnResult {
	start := time.Now()
	defer func() { metrics.TurnDuration.Observe(time.Since(start).Seconds()) }()

	current, err := e.loadState(ctx, w)
	if err != nil {
		outcome, family := "store_error", "retry_later"
		if errors.Is(err, ErrInvalidState) {
			outcome, family = "invalid_state", "fallback"
		}
		metrics.TurnsTotal.WithLabelValues("unknown", outcome).Inc()
		logger.ErrorCF("engine", "Cannot load conversation state", map[string]interface{}{
			"pair":  w.key.String(),
			"error": err.Error(),
		})
		return turnResult{reply: e.machine.render(family, 0, ReplyData{}), err: err}
	}

	tr, err := e.machine.Step(ctx, current, msg.Text)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues(string(current.Phase), "invalid_state").Inc()
		logger.ErrorCF("engine", "Turn rejected", map[string]interface{}{
			"pair":  w.key.String(),
			"phase": string(current.Phase),
			"error": err.Error(),
		})
		return turnResult{reply: tr.Reply, err: err}
	}

	snap, err := encodeState(tr.Next)
	if err == nil {
		err = e.store.Save(ctx, snap)
	}
	if err != nil {
		metrics.TurnsTotal.WithLabelValues(string(current.Phase), "store_error").Inc()
		logger.ErrorCF("engine", "Cannot persist conversation state", map[string]interface{}{
			"pair":  w.key.String(),
			"error": err.Error(),
		})
		return turnResult{
			reply: e.machine.render("retry_later", current.Turns, ReplyData{}),
			err:   fmt.Errorf("persist turn for %s: %w", w.key.String(), err),
		}
	}

	next := tr.Next
	w.state = &next
	metrics.TurnsTotal.WithLabelValues(string(next.Phase), "ok").Inc()
	logger.InfoCF("engine", "Turn processed", map[string]interface{}{
		"pair":       w.key.String(),
		"message_id": msg.ID,
		"from":       string(current.Phase),
		"to":         string(next.Phase),
		"class":      string(tr.Class),
		"outcome":    string(tr.Outcome),
		"changed":    tr.RecordChanged,
	})

	if tr.RecordChanged && e.opts.Publisher != nil {
		e.opts.Publisher.Publish(broadcast.NewEvent(next.SessionID, next.UserID, next.Record, next.UpdatedAt))
	}
	return turnResult{reply: tr.Reply}
}

func (e *Engine) loadState(ctx context.Context, w *pairWorker) (State, error) {
	if w.loaded && w.state != nil {
		return *w.state, nil
	}
	snap, err := e.store.Load(ctx, w.key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		st := NewState(w.key)
		w.state, w.loaded = &st, true
		return st, nil
	case err != nil:
		return State{}, err
	}
	st, err := decodeState(snap)
	if err != nil {
		return State{}, err
	}
	w.state, w.loaded = &st, true
	return st, nil
}

// PairState returns the committed state of a pair from the store.
func (e *Engine) PairState(ctx context.Context, sessionID, userID string) (State, error) {
	snap, err := e.store.Load(ctx, store.Key{SessionID: sessionID, UserID: userID})
	if err != nil {
		return State{}, err
	}
	return decodeState(snap)
}

// SessionRecords returns the committed states of every pair in sessionID.
func (e *Engine) SessionRecords(ctx context.Context, sessionID string) ([]State, error) {
	snaps, err := e.store.ListSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]State, 0, len(snaps))
	for _, snap := range snaps {
		st, err := decodeState(snap)
		if err != nil {
			logger.WarnCF("engine", "Skipping undecodable state", map[string]interface{}{
				"pair":  snap.Key.String(),
				"error": err.Error(),
			})
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// EndSession stops the workers of sessionID after they drain their queued
// messages, then deletes the stored states. Messages for the session that
// arrive meanwhile wait and start a fresh conversation afterwards. It returns
// the number of states removed.
func (e *Engine) EndSession(ctx context.Context, sessionID string) (int, error) {
	gate := make(chan struct{})
	var ending []*pairWorker
	for {
		e.mu.Lock()
		prev := e.ending[sessionID]
		if prev == nil {
			e.ending[sessionID] = gate
			for key, w := range e.workers {
				if key.SessionID == sessionID {
					w.retiring = true
					ending = append(ending, w)
				}
			}
			e.mu.Unlock()
			break
		}
		e.mu.Unlock()
		select {
		case <-prev:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	defer func() {
		e.mu.Lock()
		delete(e.ending, sessionID)
		e.mu.Unlock()
		close(gate)
	}()

	if err := waitStopped(ctx, ending); err != nil {
		return 0, err
	}
	n, err := e.store.DeleteSession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("end session %s: %w", sessionID, err)
	}
	logger.InfoCF("engine", "Session ended", map[string]interface{}{
		"session_id": sessionID,
		"workers":    len(ending),
		"states":     n,
	})
	return n, nil
}

// ReapIdle stops workers with nothing queued or in flight that finished
// their last turn more than ttl ago. Their state stays in the store and a
// worker is recreated on the pair's next message.
func (e *Engine) ReapIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl).UnixNano()
	e.mu.Lock()
	var idle []*pairWorker
	for _, w := range e.workers {
		if w.retiring || w.pending.Load() > 0 || w.lastActive.Load() > cutoff {
			continue
		}
		w.retiring = true
		idle = append(idle, w)
	}
	e.mu.Unlock()

	for _, w := range idle {
		w.stop()
	}
	if len(idle) > 0 {
		logger.InfoCF("engine", "Reaped idle workers", map[string]interface{}{"count": len(idle)})
	}
	return len(idle)
}

// Workers returns the number of pair workers accepting messages.
func (e *Engine) Workers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, w := range e.workers {
		if !w.retiring {
			n++
		}
	}
	return n
}

// Close stops accepting messages and waits for every worker to drain.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	all := make([]*pairWorker, 0, len(e.workers))
	for _, w := range e.workers {
		w.retiring = true
		all = append(all, w)
	}
	e.mu.Unlock()
	return waitStopped(ctx, all)
}

func waitStopped(ctx context.Context, workers []*pairWorker) error {
	for _, w := range workers {
		w.stop()
	}
	for _, w := range workers {
		select {
		case <-w.finished:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
