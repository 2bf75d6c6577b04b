package session

import (
	"strings"

	"github.com/PabloGalante/nutria-agent/internal/app/orchestrator"
	"github.com/PabloGalante/nutria-agent/internal/domain"
)

const (
	msgExecutionFailed = "Sorry, I couldn't save that. Please try again later."
	msgCaptureFailed   = "Sorry, something went wrong with that input. Please try again."
)

// Check rejects events that must not be applied to s. Reduce treats the
// same events as no-ops, so Check only exists to tell the caller why.
func Check(s State, ev Event) error {
	switch e := ev.(type) {
	case Send:
		if s.Busy() {
			return domain.ErrBusy
		}
		if strings.TrimSpace(e.Text) == "" && strings.TrimSpace(s.Composer) == "" && s.ComposerImage == nil {
			return domain.NewError(domain.CodeInvalidInput, "nothing to send").
				WithUserMessage("Type a message, record audio or attach a photo first.")
		}
	case Confirm:
		if s.message(e.MessageID) == nil {
			return domain.NewError(domain.CodeNotFound, "unknown message").WithContext("message_id", e.MessageID)
		}
	case Cancel:
		if s.message(e.MessageID) == nil {
			return domain.NewError(domain.CodeNotFound, "unknown message").WithContext("message_id", e.MessageID)
		}
	}
	return nil
}

// Reduce applies ev to s and returns the new state and the effects to run.
// s itself is never modified.
func Reduce(s State, ev Event) (State, []Effect) {
	if Check(s, ev) != nil {
		return s, nil
	}
	n := s.clone()

	switch e := ev.(type) {
	case Send:
		return n.send(e)
	case Generated:
		return n.generated(e)
	case GenerationFailed:
		if e.Turn != n.Turn || !n.Generating {
			return s, nil
		}
		n.Generating = false
		n.LastError = errText(e.Err)
		n.appendAssistant(e.Stamp, domain.UserMessage(e.Err, orchestrator.Apology))
		return n, []Effect{n.persist()}
	case RevealStep:
		if e.Turn != n.Turn || n.Pending == nil {
			return s, nil
		}
		n.Partial = e.Partial
		return n, nil
	case RevealDone:
		return n.revealDone(e)
	case Confirm:
		return n.confirm(e)
	case Cancel:
		return n.cancel(e)
	case Executed:
		return n.executed(e.Stamp, e.MessageID, e.Result)
	case ExecutionFailed:
		return n.executed(e.Stamp, e.MessageID, domain.ExecutionResult{
			Message: domain.UserMessage(e.Err, msgExecutionFailed),
		})
	case ComposerChanged:
		n.Composer = e.Text
		if e.Text == "" {
			n.ComposerImage = nil
		}
		return n, nil
	case RecordingStarted:
		n.Recording = true
		return n, nil
	case RecordingAborted:
		n.Recording = false
		return n, nil
	case Transcribing:
		n.Recording = false
		n.Transcribing = true
		return n, nil
	case Transcribed:
		n.Transcribing = false
		n.Composer = joinComposer(n.Composer, e.Text)
		return n, nil
	case Analyzing:
		n.Analyzing = true
		return n, nil
	case ImageDescribed:
		n.Analyzing = false
		n.Composer = joinComposer(n.Composer, e.Text)
		img := e.Image
		n.ComposerImage = &img
		return n, nil
	case CaptureFailed:
		n.Recording, n.Transcribing, n.Analyzing = false, false, false
		n.LastError = errText(e.Err)
		n.appendAssistant(e.Stamp, domain.UserMessage(e.Err, msgCaptureFailed))
		return n, []Effect{n.persist()}
	case Loaded:
		return n.loaded(e)
	case Reset:
		n.restart()
		n.Messages = []domain.Message{seedMessage(e.Stamp)}
		n.ConversationID = ""
		return n, []Effect{RebindPersistence{}}
	case Saved:
		n.ConversationID = e.ID
		n.PersistError = ""
		return n, nil
	case PersistFailed:
		n.PersistError = errText(e.Err)
		return n, nil
	}

	return s, nil
}

func (s State) send(e Send) (State, []Effect) {
	text := strings.TrimSpace(e.Text)
	if text == "" {
		text = strings.TrimSpace(s.Composer)
	}

	msg := domain.Message{
		ID:        e.ID,
		Role:      domain.RoleUser,
		Content:   text,
		Image:     s.ComposerImage,
		CreatedAt: e.At,
	}
	s.Messages = append(s.Messages, msg)
	s.Composer = ""
	s.ComposerImage = nil
	s.Generating = true
	s.LastError = ""
	s.Turn++

	return s, []Effect{
		s.persist(),
		Generate{
			Turn: s.Turn,
			Input: orchestrator.TurnInput{
				UserID:  s.UserID,
				History: domain.CloneMessages(s.Messages),
				Image:   msg.Image,
				Now:     e.At,
			},
		},
	}
}

func (s State) generated(e Generated) (State, []Effect) {
	if e.Turn != s.Turn || !s.Generating || e.Reply == nil {
		return s, nil
	}

	msg := domain.Message{
		ID:        e.ID,
		Role:      domain.RoleAssistant,
		Content:   e.Reply.Message,
		CreatedAt: e.At,
	}

	var effects []Effect
	if a := e.Reply.Action; a != nil && a.Type != domain.ActionNone {
		action := *a
		msg.Action = &action
		msg.RequiresConfirmation = action.RequiresConfirmation
		if !action.RequiresConfirmation {
			// auto-exec runs alongside the reveal
			s.Statuses[msg.ID] = StatusProposedAutoExec
			s.Executing++
			effects = append(effects, Execute{MessageID: msg.ID, Proposal: action, At: e.At})
		}
	}

	s.Generating = false
	s.Streaming = true
	s.Pending = &msg
	s.Partial = ""

	effects = append(effects, Reveal{Turn: s.Turn, Text: msg.Content})
	return s, effects
}

func (s State) revealDone(e RevealDone) (State, []Effect) {
	if e.Turn != s.Turn || s.Pending == nil {
		return s, nil
	}

	msg := *s.Pending
	msg.Content = e.Full
	s.Messages = append(s.Messages, msg)
	if msg.RequiresConfirmation && s.Statuses[msg.ID] == StatusNone {
		s.Statuses[msg.ID] = StatusProposedNeedsConfirm
	}

	s.Messages = append(s.Messages, s.Deferred...)
	s.Deferred = nil
	s.Pending = nil
	s.Partial = ""
	s.Streaming = false

	d := s.Decision
	s.Decision = nil
	switch d := d.(type) {
	case Confirm:
		return s.confirm(d)
	case Cancel:
		return s.cancel(d)
	}
	return s, []Effect{s.persist()}
}

// decideLater records the first answer to a proposal still being revealed.
func (s State) decideLater(id domain.MessageID, e Event) (State, bool) {
	p := s.Pending
	if p == nil || p.ID != id || !p.RequiresConfirmation || s.Statuses[id] != StatusNone {
		return s, false
	}
	if s.Decision == nil {
		s.Decision = e
	}
	return s, true
}

func (s State) confirm(e Confirm) (State, []Effect) {
	if n, ok := s.decideLater(e.MessageID, e); ok {
		return n, nil
	}
	if s.Statuses[e.MessageID] != StatusProposedNeedsConfirm {
		return s, nil
	}
	m := s.message(e.MessageID)
	if m == nil || m.Action == nil {
		return s, nil
	}

	m.Confirmed = true
	s.Statuses[e.MessageID] = StatusConfirmed
	s.Executing++

	return s, []Effect{
		s.persist(),
		Execute{MessageID: e.MessageID, Proposal: m.Action.AsSaveRecipe(), At: m.CreatedAt},
	}
}

func (s State) cancel(e Cancel) (State, []Effect) {
	if n, ok := s.decideLater(e.MessageID, e); ok {
		return n, nil
	}
	if s.Statuses[e.MessageID] != StatusProposedNeedsConfirm {
		return s, nil
	}
	m := s.message(e.MessageID)
	if m == nil {
		return s, nil
	}

	m.RequiresConfirmation = false
	m.Confirmed = false
	s.Statuses[e.MessageID] = StatusCancelled
	s.appendAssistant(e.Stamp, cancelAck(m.Action))

	return s, []Effect{s.persist()}
}

func (s State) executed(st Stamp, id domain.MessageID, res domain.ExecutionResult) (State, []Effect) {
	if s.Executing > 0 {
		s.Executing--
	}

	var effects []Effect
	if res.Success && len(res.AffectedKeys) > 0 {
		// the mutation happened even if the session moved on
		effects = append(effects, Invalidate{Keys: res.AffectedKeys})
	}

	prev := s.Statuses[id]
	m := s.message(id)
	if m == nil || (prev != StatusProposedAutoExec && prev != StatusConfirmed) {
		return s, effects
	}

	var follow string
	if res.Success {
		s.Statuses[id] = StatusExecuted
		m.Confirmed = true
		if prev == StatusConfirmed {
			follow = res.Message
		}
	} else {
		s.Statuses[id] = StatusFailed
		m.Confirmed = false
		m.RequiresConfirmation = false
		follow = res.Message
		if follow == "" {
			follow = msgExecutionFailed
		}
	}

	if follow != "" {
		fm := domain.Message{ID: st.ID, Role: domain.RoleAssistant, Content: follow, CreatedAt: st.At}
		if s.Pending != nil && s.Pending.ID == id {
			s.Deferred = append(s.Deferred, fm)
		} else {
			s.Messages = append(s.Messages, fm)
		}
	}

	return s, append(effects, s.persist())
}

func (s State) loaded(e Loaded) (State, []Effect) {
	s.restart()
	s.ConversationID = e.Conversation.ID
	s.Messages = domain.CloneMessages(e.Conversation.Messages)
	for _, m := range s.Messages {
		if st := statusFromFlags(m); st != StatusNone {
			s.Statuses[m.ID] = st
		}
	}
	return s, []Effect{RebindPersistence{ConversationID: e.Conversation.ID}}
}

// restart clears everything tied to the current conversation. In-flight
// executions keep counting so late results are still accounted for.
func (s *State) restart() {
	s.Turn++
	s.Statuses = map[domain.MessageID]ProposalStatus{}
	s.Composer = ""
	s.ComposerImage = nil
	s.Generating = false
	s.Streaming = false
	s.Pending = nil
	s.Partial = ""
	s.Deferred = nil
	s.Decision = nil
	s.LastError = ""
	s.PersistError = ""
}

func (s *State) appendAssistant(st Stamp, text string) {
	s.Messages = append(s.Messages, domain.Message{
		ID:        st.ID,
		Role:      domain.RoleAssistant,
		Content:   text,
		CreatedAt: st.At,
	})
}

func (s State) persist() Persist {
	return Persist{Messages: domain.CloneMessages(s.Messages)}
}

func cancelAck(a *domain.ActionProposal) string {
	if a == nil {
		return "Okay, cancelled."
	}
	switch a.Type {
	case domain.ActionLogMeal:
		return "Okay, I won't log that meal."
	case domain.ActionLogWorkout:
		return "Okay, I won't log that workout."
	case domain.ActionLogWater:
		return "Okay, I won't log that water."
	case domain.ActionGenerateRecipe, domain.ActionSaveRecipe:
		return "Okay, I won't save that recipe."
	default:
		return "Okay, cancelled."
	}
}

func joinComposer(current, text string) string {
	text = strings.TrimSpace(text)
	current = strings.TrimSpace(current)
	switch {
	case text == "":
		return current
	case current == "":
		return text
	default:
		return current + " " + text
	}
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
