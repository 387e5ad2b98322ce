package channels

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dotsetgreg/repcue/pkg/bus"
	"github.com/dotsetgreg/repcue/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func consumeOne(t *testing.T, mb *bus.MessageBus) bus.InboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	require.True(t, ok, "expected an inbound message")
	return msg
}

func TestBaseChannel_IsAllowed(t *testing.T) {
	tests := []struct {
		name      string
		allowList []string
		sender    string
		want      bool
	}{
		{"empty list allows all", nil, "42", true},
		{"exact id", []string{"42"}, "42", true},
		{"compound sender id part", []string{"42"}, "42|coach", true},
		{"compound sender user part", []string{"@coach"}, "42|coach", true},
		{"not listed", []string{"7"}, "42", false},
		{"blank entries ignored", []string{"  "}, "42", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewBaseChannel("test", bus.NewMessageBus(), tt.allowList)
			assert.Equal(t, tt.want, c.IsAllowed(tt.sender))
		})
	}
}

func TestBaseChannel_HandleMessageUsesChatAsSession(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()
	c := NewBaseChannel("test", mb, nil)

	require.True(t, c.HandleMessage("42|coach", "class-6am", "no burpees", map[string]string{"k": "v"}))

	msg := consumeOne(t, mb)
	assert.Equal(t, "test", msg.Channel)
	assert.Equal(t, "class-6am", msg.ChatID)
	assert.Equal(t, "test:class-6am", msg.SessionID)
	assert.Equal(t, "42", msg.UserID)
	assert.Equal(t, "no burpees", msg.Text)
	assert.Equal(t, "v", msg.Metadata["k"])
	assert.False(t, msg.ReceivedAt.IsZero())
}

func TestBaseChannel_HandleMessageRejects(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()

	c := NewBaseChannel("test", mb, []string{"7"})
	assert.False(t, c.HandleMessage("42", "class", "hi", nil))

	open := NewBaseChannel("test", mb, nil)
	assert.False(t, open.HandleMessage("42", "", "hi", nil), "blank chat id cannot form a session")
	assert.False(t, open.HandleMessage("42", "class", strings.Repeat("x", 4001), nil))
}

func newTestDiscord(t *testing.T, mb *bus.MessageBus, allow ...string) *DiscordChannel {
	t.Helper()
	dc, err := NewDiscordChannel(config.DiscordConfig{Enabled: true, Token: "test-token", AllowFrom: allow}, mb)
	require.NoError(t, err)
	dc.session.State.User = &discordgo.User{ID: "bot"}
	return dc
}

func discordMessage(author, channel, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		ChannelID: channel,
		GuildID:   "g1",
		Content:   content,
		Author:    &discordgo.User{ID: author, Username: "sam"},
	}}
}

func TestDiscord_HandleMessagePublishesCheckIn(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()
	dc := newTestDiscord(t, mb)

	dc.handleMessage(dc.session, discordMessage("u1", "c1", "  no deadlifts today "))

	msg := consumeOne(t, mb)
	assert.Equal(t, "discord", msg.Channel)
	assert.Equal(t, "discord:c1", msg.SessionID)
	assert.Equal(t, "u1", msg.UserID)
	assert.Equal(t, "no deadlifts today", msg.Text)
	assert.Equal(t, "false", msg.Metadata["is_dm"])
	assert.Equal(t, "sam", msg.Metadata["username"])
}

func TestDiscord_HandleMessageIgnores(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()
	dc := newTestDiscord(t, mb, "u1")

	dc.handleMessage(dc.session, discordMessage("bot", "c1", "echo"))
	dc.handleMessage(dc.session, discordMessage("u2", "c1", "not allowed"))
	dc.handleMessage(dc.session, discordMessage("u1", "c1", "   "))
	botAuthor := discordMessage("u1", "c1", "from a bot")
	botAuthor.Author.Bot = true
	dc.handleMessage(dc.session, botAuthor)
	dc.handleMessage(dc.session, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := mb.ConsumeInbound(ctx)
	assert.False(t, ok)
}

func TestDiscord_SendRequiresRunning(t *testing.T) {
	dc := newTestDiscord(t, bus.NewMessageBus())
	err := dc.Send(context.Background(), bus.OutboundMessage{Channel: "discord", ChatID: "c1", Content: "hi"})
	assert.Error(t, err)
}

func TestSessionID(t *testing.T) {
	assert.Equal(t, "discord:123", SessionID("Discord", " 123 "))
	assert.Equal(t, "", SessionID("discord", "  "))
}

func TestAddressReply(t *testing.T) {
	assert.Equal(t, "<@u1> Done.", addressReply("u1", "Done."))
	assert.Equal(t, "Done.", addressReply("", "Done."))
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 20))

	parts := splitMessage("first line\nsecond line that runs long", 20)
	assert.Equal(t, "first line", parts[0])
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 20)
	}
	assert.Equal(t, "first line second line that runs long", strings.Join(parts, " "))

	parts = splitMessage(strings.Repeat("a", 45), 20)
	assert.Equal(t, []string{strings.Repeat("a", 20), strings.Repeat("a", 20), strings.Repeat("a", 5)}, parts)
}

type fakeChannel struct {
	*BaseChannel
	sent chan bus.OutboundMessage
}

func (f *fakeChannel) Start(ctx context.Context) error {
	f.setRunning(true)
	return nil
}

func (f *fakeChannel) Stop(ctx context.Context) error {
	f.setRunning(false)
	return nil
}

func (f *fakeChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	f.sent <- msg
	return nil
}

func TestManager_RoutesRepliesByChannel(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()

	m, err := NewManager(config.DefaultConfig(), mb)
	require.NoError(t, err)
	assert.Empty(t, m.GetEnabledChannels(), "discord is disabled by default")

	fake := &fakeChannel{BaseChannel: NewBaseChannel("fake", mb, nil), sent: make(chan bus.OutboundMessage, 4)}
	m.RegisterChannel("fake", fake)
	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, fake.IsRunning())

	mb.PublishOutbound(bus.OutboundMessage{Content: "http reply"})
	mb.PublishOutbound(bus.OutboundMessage{Channel: "fake", ChatID: "c1", UserID: "u1", Content: "Done."})

	select {
	case got := <-fake.sent:
		assert.Equal(t, "Done.", got.Content)
		assert.Equal(t, "u1", got.UserID)
	case <-time.After(time.Second):
		t.Fatal("reply was not dispatched")
	}

	require.NoError(t, m.StopAll(context.Background()))
	assert.False(t, fake.IsRunning())
	assert.Equal(t, []ChannelStatus{{Name: "fake", Running: false}}, m.Status())
}

func TestManager_DiscordEnabledNeedsToken(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Channels.Discord.Enabled = true
	_, err := NewManager(cfg, bus.NewMessageBus())
	assert.Error(t, err)
}
