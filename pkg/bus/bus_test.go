package bus

import (
	"context"
	"strings"
	"testing"
)

func TestMessageBus_PublishInboundDropsWhenBufferFull(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	for i := 0; i < cap(mb.inbound); i++ {
		mb.PublishInbound(InboundMessage{Channel: "test", SessionID: "s", UserID: "u", Text: "msg"})
	}

	if ok := mb.PublishInbound(InboundMessage{Channel: "test", SessionID: "s", UserID: "u", Text: "overflow"}); ok {
		t.Fatalf("expected overflow publish to be rejected")
	}
	if mb.DroppedInbound() != 1 {
		t.Fatalf("expected dropped inbound count 1, got %d", mb.DroppedInbound())
	}
}

func TestMessageBus_PublishOutboundDropsWhenBufferFull(t *testing.T) {
	mb := NewMessageBusWithBuffer(2)
	defer mb.Close()

	for i := 0; i < cap(mb.outbound); i++ {
		mb.PublishOutbound(OutboundMessage{Channel: "test", ChatID: "c", Content: "msg"})
	}

	mb.PublishOutbound(OutboundMessage{Channel: "test", ChatID: "c", Content: "overflow"})
	if mb.DroppedOutbound() != 1 {
		t.Fatalf("expected dropped outbound count 1, got %d", mb.DroppedOutbound())
	}
}

func TestMessageBus_ClosedChannelsReturnFalse(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()

	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Fatalf("expected closed inbound consume to return ok=false")
	}
	if _, ok := mb.SubscribeOutbound(context.Background()); ok {
		t.Fatalf("expected closed outbound subscribe to return ok=false")
	}
	if mb.PublishInbound(InboundMessage{SessionID: "s", UserID: "u"}) {
		t.Fatalf("expected publish on closed bus to be rejected")
	}
}

func TestMessageBus_StampsReceivedAt(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	mb.PublishInbound(InboundMessage{SessionID: "s", UserID: "u", Text: "hi"})
	msg, ok := mb.ConsumeInbound(context.Background())
	if !ok {
		t.Fatalf("expected message")
	}
	if msg.ReceivedAt.IsZero() {
		t.Fatalf("expected received_at to be stamped")
	}
}

func TestInboundMessage_Validate(t *testing.T) {
	cases := []struct {
		name    string
		msg     InboundMessage
		wantErr bool
	}{
		{name: "valid", msg: InboundMessage{SessionID: "s1", UserID: "u1", Text: "push me hard"}},
		{name: "empty text allowed", msg: InboundMessage{SessionID: "s1", UserID: "u1"}},
		{name: "missing session", msg: InboundMessage{UserID: "u1", Text: "hi"}, wantErr: true},
		{name: "blank user", msg: InboundMessage{SessionID: "s1", UserID: "   ", Text: "hi"}, wantErr: true},
		{name: "oversized text", msg: InboundMessage{SessionID: "s1", UserID: "u1", Text: strings.Repeat("x", 4001)}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
