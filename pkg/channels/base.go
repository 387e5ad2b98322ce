package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/dotsetgreg/repcue/pkg/bus"
	"github.com/dotsetgreg/repcue/pkg/logger"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}

type BaseChannel struct {
	bus       *bus.MessageBus
	running   atomic.Bool
	name      string
	allowList []string
}

func NewBaseChannel(name string, bus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		bus:       bus,
		name:      name,
		allowList: allowList,
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	// Extract parts from compound senderID like "123456|username"
	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range c.allowList {
		candidate := strings.TrimSpace(strings.TrimPrefix(allowed, "@"))
		if candidate == "" {
			continue
		}
		if candidate == senderID || candidate == idPart || (userPart != "" && candidate == userPart) {
			return true
		}
	}

	return false
}

// SessionID is the training session id of a chat on a transport, e.g.
// "discord:1234".
func SessionID(channel, chatID string) string {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(channel)) + ":" + chatID
}

// HandleMessage publishes one check-in text. The chat is the training
// session, so every member texting in the same chat shares a session id.
func (c *BaseChannel) HandleMessage(senderID, chatID, content string, metadata map[string]string) bool {
	if !c.IsAllowed(senderID) {
		return false
	}

	userID := senderID
	if idx := strings.Index(senderID, "|"); idx > 0 {
		userID = senderID[:idx]
	}

	msg := bus.InboundMessage{
		Channel:   c.name,
		ChatID:    chatID,
		SessionID: SessionID(c.name, chatID),
		UserID:    userID,
		Text:      content,
		Metadata:  metadata,
	}
	if err := msg.Validate(); err != nil {
		logger.WarnCF(c.name, "Dropping invalid inbound message", map[string]interface{}{
			"chat_id": chatID,
			"error":   err.Error(),
		})
		return false
	}

	return c.bus.PublishInbound(msg)
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}
