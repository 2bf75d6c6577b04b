package domain

import "time"

type SessionID string
type ConversationID string
type UserID string
type MessageID string
type RecordID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Timestamp = time.Time

// ImageRef points at an image attached to a message. Either URL or Data is set.
type ImageRef struct {
	URL      string `json:"url,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
}
