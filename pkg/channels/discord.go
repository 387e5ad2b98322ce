package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dotsetgreg/repcue/pkg/bus"
	"github.com/dotsetgreg/repcue/pkg/config"
	"github.com/dotsetgreg/repcue/pkg/logger"
)

const (
	sendTimeout           = 10 * time.Second
	typingRefreshInterval = 8 * time.Second
	discordMessageLimit   = 1900
)

// DiscordChannel treats each Discord channel as one training session and
// each author as a member checking in.
type DiscordChannel struct {
	*BaseChannel
	session  *discordgo.Session
	typing   map[string]*typingSession
	typingMu sync.Mutex
}

type typingSession struct {
	pending int
	cancel  context.CancelFunc
}

func NewDiscordChannel(cfg config.DiscordConfig, bus *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	return &DiscordChannel{
		BaseChannel: NewBaseChannel("discord", bus, cfg.AllowFrom),
		session:     session,
		typing:      make(map[string]*typingSession),
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	logger.InfoC("discord", "Starting Discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	c.setRunning(true)

	botUser, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to get bot user: %w", err)
	}
	logger.InfoCF("discord", "Discord bot connected", map[string]interface{}{
		"username": botUser.Username,
		"user_id":  botUser.ID,
	})

	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	logger.InfoC("discord", "Stopping Discord bot")
	c.setRunning(false)
	c.stopAllTyping()

	if err := c.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}

	return nil
}

// Send delivers an engine reply. In a shared channel the member is mentioned
// so several people checking in at once can tell whose reply is whose.
func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}

	channelID := msg.ChatID
	if channelID == "" {
		return fmt.Errorf("channel ID is empty")
	}
	defer c.endTyping(channelID)

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return nil
	}
	content = addressReply(msg.UserID, content)

	for _, chunk := range splitMessage(content, discordMessageLimit) {
		if err := c.sendChunk(ctx, channelID, chunk); err != nil {
			return err
		}
	}

	return nil
}

func addressReply(userID, content string) string {
	if userID == "" {
		return content
	}
	return "<@" + userID + "> " + content
}

// splitMessage breaks content at line or word boundaries so each piece fits
// under limit bytes.
func splitMessage(content string, limit int) []string {
	var messages []string

	for len(content) > 0 {
		if len(content) <= limit {
			messages = append(messages, content)
			break
		}

		msgEnd := strings.LastIndexByte(content[:limit], '\n')
		if msgEnd <= 0 {
			msgEnd = strings.LastIndexAny(content[:limit], " \t")
		}
		if msgEnd <= 0 {
			msgEnd = limit
		}

		messages = append(messages, strings.TrimSpace(content[:msgEnd]))
		content = strings.TrimSpace(content[msgEnd:])
	}

	return messages
}

func (c *DiscordChannel) sendChunk(ctx context.Context, channelID, content string) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.session.ChannelMessageSend(channelID, content)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
		return nil
	case <-sendCtx.Done():
		return fmt.Errorf("send message timeout: %w", sendCtx.Err())
	}
}

func (c *DiscordChannel) sendTyping(channelID string) {
	if channelID == "" || c.session == nil {
		return
	}
	if err := c.session.ChannelTyping(channelID); err != nil {
		logger.ErrorCF("discord", "Failed to send typing indicator", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// beginTyping shows the typing indicator until every reply owed to the
// channel has been sent.
func (c *DiscordChannel) beginTyping(channelID string) {
	if channelID == "" || !c.IsRunning() {
		return
	}

	c.typingMu.Lock()
	if sess, ok := c.typing[channelID]; ok {
		sess.pending++
		c.typingMu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.typing[channelID] = &typingSession{
		pending: 1,
		cancel:  cancel,
	}
	c.typingMu.Unlock()

	c.sendTyping(channelID)

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !c.IsRunning() {
					return
				}
				c.sendTyping(channelID)
			}
		}
	}()
}

func (c *DiscordChannel) endTyping(channelID string) {
	if channelID == "" {
		return
	}

	c.typingMu.Lock()
	defer c.typingMu.Unlock()

	sess, ok := c.typing[channelID]
	if !ok {
		return
	}
	sess.pending--
	if sess.pending > 0 {
		return
	}
	delete(c.typing, channelID)
	sess.cancel()
}

func (c *DiscordChannel) stopAllTyping() {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()

	for channelID, sess := range c.typing {
		sess.cancel()
		delete(c.typing, channelID)
	}
}

func (c *DiscordChannel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return
	}
	if s != nil && s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	if !c.IsAllowed(m.Author.ID) {
		logger.DebugCF("discord", "Message rejected by allowlist", map[string]interface{}{
			"user_id": m.Author.ID,
		})
		return
	}

	// Check-ins are plain text; attachments carry nothing the extractor reads.
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return
	}

	senderName := m.Author.Username
	if m.Author.Discriminator != "" && m.Author.Discriminator != "0" {
		senderName += "#" + m.Author.Discriminator
	}

	logger.DebugCF("discord", "Received check-in", map[string]interface{}{
		"sender_name": senderName,
		"sender_id":   m.Author.ID,
		"channel_id":  m.ChannelID,
		"length":      len(content),
	})

	metadata := map[string]string{
		"message_id":   m.ID,
		"username":     m.Author.Username,
		"display_name": senderName,
		"guild_id":     m.GuildID,
		"is_dm":        fmt.Sprintf("%t", m.GuildID == ""),
	}

	if c.HandleMessage(m.Author.ID, m.ChannelID, content, metadata) {
		c.beginTyping(m.ChannelID)
	}
}
