package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
	closed   bool
	dropped  droppedCounters
	mu       sync.RWMutex
}

type droppedCounters struct {
	inbound  atomic.Uint64
	outbound atomic.Uint64
}

const (
	publishTimeout    = 100 * time.Millisecond
	defaultBufferSize = 100
)

func NewMessageBus() *MessageBus {
	return NewMessageBusWithBuffer(defaultBufferSize)
}

func NewMessageBusWithBuffer(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, size),
		outbound: make(chan OutboundMessage, size),
	}
}

// PublishInbound enqueues msg, waiting at most publishTimeout when the buffer
// is full. It reports whether the message was accepted.
func (mb *MessageBus) PublishInbound(msg InboundMessage) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return false
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	return offer(mb.inbound, msg, &mb.dropped.inbound)
}

// ConsumeInbound blocks for the next check-in. It returns false once the bus
// is closed or ctx is done.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	return take(ctx, mb.inbound)
}

func (mb *MessageBus) PublishOutbound(msg OutboundMessage) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return false
	}
	return offer(mb.outbound, msg, &mb.dropped.outbound)
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	return take(ctx, mb.outbound)
}

func offer[T any](ch chan<- T, msg T, dropped *atomic.Uint64) bool {
	select {
	case ch <- msg:
		return true
	default:
	}
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case ch <- msg:
		return true
	case <-timer.C:
		dropped.Add(1)
		return false
	}
}

func take[T any](ctx context.Context, ch <-chan T) (T, bool) {
	var zero T
	select {
	case msg, ok := <-ch:
		if !ok {
			return zero, false
		}
		return msg, true
	case <-ctx.Done():
		return zero, false
	}
}

func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
	close(mb.outbound)
}

func (mb *MessageBus) DroppedInbound() uint64 {
	return mb.dropped.inbound.Load()
}

func (mb *MessageBus) DroppedOutbound() uint64 {
	return mb.dropped.outbound.Load()
}
