package session

import (
	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// View is a read-only snapshot of a session, safe to hand to other
// goroutines and to encode as JSON.
type View struct {
	SessionID      domain.SessionID      `json:"session_id"`
	UserID         domain.UserID         `json:"user_id"`
	ConversationID domain.ConversationID `json:"conversation_id,omitempty"`

	Messages []MessageView `json:"messages"`
	// Streaming is the assistant message being revealed, if any.
	Streaming *StreamingView `json:"streaming,omitempty"`

	Composer      string `json:"composer"`
	ComposerImage bool   `json:"composer_image"`

	Busy         bool `json:"busy"`
	Generating   bool `json:"generating"`
	Executing    int  `json:"executing"`
	Recording    bool `json:"recording"`
	Transcribing bool `json:"transcribing"`
	Analyzing    bool `json:"analyzing"`

	LastError    string `json:"last_error,omitempty"`
	PersistError string `json:"persist_error,omitempty"`
}

// MessageView is a committed message and its proposal status.
type MessageView struct {
	domain.Message
	Status string `json:"status,omitempty"`
}

type StreamingView struct {
	MessageID domain.MessageID `json:"message_id"`
	Partial   string           `json:"partial"`
}

// Status returns the status of messageID, "none" when unknown.
func (v View) Status(messageID domain.MessageID) string {
	for _, m := range v.Messages {
		if m.ID == messageID {
			if m.Status == "" {
				return StatusNone.String()
			}
			return m.Status
		}
	}
	return StatusNone.String()
}

// Last returns the last committed message.
func (v View) Last() (MessageView, bool) {
	if len(v.Messages) == 0 {
		return MessageView{}, false
	}
	return v.Messages[len(v.Messages)-1], true
}

// Plain returns the committed messages without statuses.
func (v View) Plain() []domain.Message {
	out := make([]domain.Message, len(v.Messages))
	for i, m := range v.Messages {
		out[i] = m.Message
	}
	return out
}

func buildView(id domain.SessionID, s State) View {
	v := View{
		SessionID:      id,
		UserID:         s.UserID,
		ConversationID: s.ConversationID,
		Messages:       make([]MessageView, len(s.Messages)),
		Composer:       s.Composer,
		ComposerImage:  s.ComposerImage != nil,
		Busy:           s.Busy(),
		Generating:     s.Generating,
		Executing:      s.Executing,
		Recording:      s.Recording,
		Transcribing:   s.Transcribing,
		Analyzing:      s.Analyzing,
		LastError:      s.LastError,
		PersistError:   s.PersistError,
	}

	for i, m := range s.Messages {
		mv := MessageView{Message: m}
		if st, ok := s.Statuses[m.ID]; ok && st != StatusNone {
			mv.Status = st.String()
		}
		v.Messages[i] = mv
	}

	if s.Streaming && s.Pending != nil {
		v.Streaming = &StreamingView{MessageID: s.Pending.ID, Partial: s.Partial}
	}
	return v
}
