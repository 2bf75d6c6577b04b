package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultTitle is used when a conversation has no stored title and no user message yet.
	DefaultTitle = "New Chat"

	titleMaxRunes = 50
	titleEllipsis = "..."
)

// Message represents any message in a conversation (user or assistant).
// Only Confirmed and RequiresConfirmation change after creation.
type Message struct {
	ID        MessageID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Image     *ImageRef `json:"image,omitempty"`
	CreatedAt Timestamp `json:"created_at"`

	Action               *ActionProposal `json:"action,omitempty"`
	Confirmed            bool            `json:"confirmed"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
}

// Conversation is the persisted history of one chat, owned by a single user.
type Conversation struct {
	ID        ConversationID `json:"id"`
	UserID    UserID         `json:"user_id"`
	Title     string         `json:"title"`
	Messages  []Message      `json:"messages"`
	CreatedAt Timestamp      `json:"created_at"`
	UpdatedAt Timestamp      `json:"updated_at"`
}

// ConversationSummary is the list view of a conversation.
type ConversationSummary struct {
	ID           ConversationID `json:"id"`
	Title        string         `json:"title"`
	MessageCount int            `json:"message_count"`
	UpdatedAt    Timestamp      `json:"updated_at"`
}

// DeriveTitle returns the stored title when present, otherwise the first
// user message truncated to a bounded prefix, otherwise DefaultTitle.
func DeriveTitle(stored string, messages []Message) string {
	if t := strings.TrimSpace(stored); t != "" {
		return t
	}

	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if utf8.RuneCountInString(content) <= titleMaxRunes {
			return content
		}
		runes := []rune(content)
		return string(runes[:titleMaxRunes]) + titleEllipsis
	}

	return DefaultTitle
}

// CloneMessages copies the slice so callers can keep appending without
// aliasing the original backing array.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
