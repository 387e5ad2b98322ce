package bus

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// InboundMessage is one check-in text from a member. SessionID identifies the
// training session (class) and UserID the member; together they form a pair.
type InboundMessage struct {
	ID         string            `json:"id" validate:"omitempty,max=64"`
	Channel    string            `json:"channel" validate:"omitempty,max=32"`
	ChatID     string            `json:"chat_id" validate:"omitempty,max=128"`
	SessionID  string            `json:"session_id" validate:"required,max=128"`
	UserID     string            `json:"user_id" validate:"required,max=128"`
	Text       string            `json:"text" validate:"max=4000"`
	ReceivedAt time.Time         `json:"received_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Validate checks the transport-facing fields. Blank text is allowed: an
// empty reply still drives a turn (it is simply unparseable).
func (m InboundMessage) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid inbound message: %w", err)
	}
	if strings.TrimSpace(m.SessionID) == "" || strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("invalid inbound message: blank session or user id")
	}
	return nil
}

type OutboundMessage struct {
	Channel   string `json:"channel"`
	ChatID    string `json:"chat_id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
}
