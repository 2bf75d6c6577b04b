package session

import (
	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// SeedGreeting opens every fresh conversation.
const SeedGreeting = "Hi! I'm Nutria. Tell me what you ate, how you trained or how much water you drank, and I'll log it for you."

// ProposalStatus is where a message's action proposal stands.
type ProposalStatus int

const (
	StatusNone ProposalStatus = iota
	StatusProposedAutoExec
	StatusProposedNeedsConfirm
	StatusConfirmed
	StatusExecuted
	StatusCancelled
	StatusFailed
)

func (s ProposalStatus) String() string {
	switch s {
	case StatusProposedAutoExec:
		return "proposed_auto_exec"
	case StatusProposedNeedsConfirm:
		return "proposed_needs_confirm"
	case StatusConfirmed:
		return "confirmed"
	case StatusExecuted:
		return "executed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "none"
	}
}

// Terminal reports whether no further transition is possible.
func (s ProposalStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled || s == StatusFailed
}

// State is everything the reducer owns for one live conversation. It is
// only ever touched by the session loop.
type State struct {
	UserID         domain.UserID
	ConversationID domain.ConversationID

	// committed history, in order
	Messages []domain.Message
	Statuses map[domain.MessageID]ProposalStatus

	Composer      string
	ComposerImage *domain.ImageRef

	Generating   bool
	Streaming    bool
	Executing    int
	Recording    bool
	Transcribing bool
	Analyzing    bool

	// Turn identifies the current turn; results of older turns are dropped.
	Turn uint64
	// Pending is the assistant message being revealed, not yet committed.
	Pending *domain.Message
	Partial string
	// Deferred holds messages that must follow Pending once it commits.
	Deferred []domain.Message
	// Decision is a Confirm or Cancel aimed at Pending; it applies on commit.
	Decision Event

	LastError    string
	PersistError string
}

// NewState returns a fresh conversation holding only the seed message.
func NewState(userID domain.UserID, seed Stamp) State {
	return State{
		UserID:   userID,
		Messages: []domain.Message{seedMessage(seed)},
		Statuses: map[domain.MessageID]ProposalStatus{},
	}
}

// Busy is true while a turn or an action is in flight.
func (s State) Busy() bool {
	return s.Generating || s.Streaming || s.Executing > 0
}

// Status returns the proposal status of message id.
func (s State) Status(id domain.MessageID) ProposalStatus {
	return s.Statuses[id]
}

func (s State) indexOf(id domain.MessageID) int {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// message returns the committed or pending message with id.
func (s *State) message(id domain.MessageID) *domain.Message {
	if i := s.indexOf(id); i >= 0 {
		return &s.Messages[i]
	}
	if s.Pending != nil && s.Pending.ID == id {
		return s.Pending
	}
	return nil
}

func seedMessage(st Stamp) domain.Message {
	return domain.Message{
		ID:        st.ID,
		Role:      domain.RoleAssistant,
		Content:   SeedGreeting,
		CreatedAt: st.At,
	}
}

// statusFromFlags rebuilds a status from persisted message flags. Nothing
// restored this way is ever executed again.
func statusFromFlags(m domain.Message) ProposalStatus {
	if m.Action == nil || m.Action.Type == domain.ActionNone {
		return StatusNone
	}
	switch {
	case m.Confirmed:
		return StatusExecuted
	case m.RequiresConfirmation:
		return StatusProposedNeedsConfirm
	default:
		return StatusCancelled
	}
}

// clone copies the parts of s the reducer mutates in place.
func (s State) clone() State {
	out := s
	out.Messages = domain.CloneMessages(s.Messages)
	out.Statuses = make(map[domain.MessageID]ProposalStatus, len(s.Statuses))
	for k, v := range s.Statuses {
		out.Statuses[k] = v
	}
	if s.Pending != nil {
		p := *s.Pending
		out.Pending = &p
	}
	out.Deferred = domain.CloneMessages(s.Deferred)
	return out
}
