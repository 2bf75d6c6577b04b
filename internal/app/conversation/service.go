package conversation

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/PabloGalante/nutria-agent/internal/app/session"
	"github.com/PabloGalante/nutria-agent/internal/domain"
	"github.com/PabloGalante/nutria-agent/internal/observability"
)

// Service keeps the live sessions of every user and exposes the
// conversation operations the transports call.
type Service struct {
	deps  session.Deps
	store domain.ConversationStore

	mu       sync.RWMutex
	sessions map[domain.SessionID]*session.Session
}

// NewService builds a service whose sessions all share deps.
func NewService(deps session.Deps) *Service {
	return &Service{
		deps:     deps,
		store:    deps.Store,
		sessions: make(map[domain.SessionID]*session.Session),
	}
}

type StartSessionInput struct {
	UserID domain.UserID
	// ConversationID resumes a stored conversation when set.
	ConversationID domain.ConversationID
}

// StartSession opens a live session, fresh or resumed.
func (s *Service) StartSession(ctx context.Context, in StartSessionInput) (session.View, error) {
	if in.UserID == "" {
		return session.View{}, domain.NewError(domain.CodeInvalidInput, "user_id is required")
	}

	id := domain.SessionID(uuid.NewString())
	log := observability.LoggerFromContext(ctx).With(
		"user_id", in.UserID,
		"session_id", id,
	)

	sess := session.New(ctx, id, in.UserID, s.deps)

	if in.ConversationID != "" {
		if err := sess.Load(ctx, in.ConversationID); err != nil {
			_ = sess.Close(ctx)
			log.Warn("resume failed", "conversation_id", in.ConversationID, "error", err)
			return session.View{}, err
		}
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	log.Info("session started", "conversation_id", in.ConversationID)
	return sess.Snapshot(), nil
}

// ResumeSession opens a live session on a stored conversation.
func (s *Service) ResumeSession(ctx context.Context, userID domain.UserID, id domain.ConversationID) (session.View, error) {
	if id == "" {
		return session.View{}, domain.NewError(domain.CodeInvalidInput, "conversation_id is required")
	}
	return s.StartSession(ctx, StartSessionInput{UserID: userID, ConversationID: id})
}

// LoadConversation switches a live session to a stored conversation.
func (s *Service) LoadConversation(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, id domain.ConversationID) error {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return err
	}
	return sess.Load(ctx, id)
}

// NewConversation starts the session over on a fresh, unsaved conversation.
func (s *Service) NewConversation(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) error {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return err
	}
	return sess.Reset(ctx)
}

type SendInput struct {
	SessionID domain.SessionID
	UserID    domain.UserID
	Text      string
}

// Send starts a turn. The reply arrives asynchronously; poll Snapshot.
func (s *Service) Send(ctx context.Context, in SendInput) (domain.MessageID, error) {
	sess, err := s.session(in.SessionID, in.UserID)
	if err != nil {
		return "", err
	}

	id, err := sess.Send(in.Text)
	if err != nil {
		observability.LoggerFromContext(ctx).Info("send rejected",
			"session_id", in.SessionID,
			"error", err)
		return "", err
	}
	return id, nil
}

func (s *Service) Confirm(_ context.Context, sessionID domain.SessionID, userID domain.UserID, messageID domain.MessageID) error {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return err
	}
	return sess.Confirm(messageID)
}

func (s *Service) Cancel(_ context.Context, sessionID domain.SessionID, userID domain.UserID, messageID domain.MessageID) error {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return err
	}
	return sess.Cancel(messageID)
}

func (s *Service) StartRecording(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, mic domain.Microphone) error {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return err
	}
	return sess.StartRecording(ctx, mic)
}

// StopRecording returns the transcript, which also lands in the composer.
func (s *Service) StopRecording(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) (string, error) {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return "", err
	}
	return sess.StopRecording(ctx)
}

func (s *Service) AbortRecording(_ context.Context, sessionID domain.SessionID, userID domain.UserID) error {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return err
	}
	return sess.AbortRecording()
}

func (s *Service) SetComposer(_ context.Context, sessionID domain.SessionID, userID domain.UserID, text string) error {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return err
	}
	return sess.SetComposer(text)
}

// Flush writes the session's pending conversation state now.
func (s *Service) Flush(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) error {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return err
	}
	return sess.Flush(ctx)
}

// Record runs a whole capture on mic: start, stop and transcribe.
func (s *Service) Record(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, mic domain.Microphone) (string, error) {
	if err := s.StartRecording(ctx, sessionID, userID, mic); err != nil {
		return "", err
	}
	return s.StopRecording(ctx, sessionID, userID)
}

func (s *Service) AttachImage(ctx context.Context, sessionID domain.SessionID, userID domain.UserID, ref domain.ImageRef) (string, error) {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return "", err
	}
	return sess.AttachImage(ctx, ref)
}

func (s *Service) Snapshot(_ context.Context, sessionID domain.SessionID, userID domain.UserID) (session.View, error) {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return session.View{}, err
	}
	return sess.Snapshot(), nil
}

// CloseSession flushes and forgets one live session.
func (s *Service) CloseSession(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) error {
	sess, err := s.session(sessionID, userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	return sess.Close(ctx)
}

func (s *Service) ListConversations(ctx context.Context, userID domain.UserID) ([]domain.ConversationSummary, error) {
	if userID == "" {
		return nil, domain.NewError(domain.CodeInvalidInput, "user_id is required")
	}
	list, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, domain.Wrap(err, domain.CodePersistence, "list conversations")
	}
	return list, nil
}

func (s *Service) GetConversation(ctx context.Context, userID domain.UserID, id domain.ConversationID) (*domain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, userID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.Wrap(err, domain.CodePersistence, "get conversation")
	}
	return conv, nil
}

// DeleteConversation removes a stored conversation. Live sessions showing
// it start over with a fresh seed message.
func (s *Service) DeleteConversation(ctx context.Context, userID domain.UserID, id domain.ConversationID) error {
	if err := s.store.DeleteConversation(ctx, userID, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return domain.Wrap(err, domain.CodePersistence, "delete conversation")
	}

	s.mu.RLock()
	var bound []*session.Session
	for _, sess := range s.sessions {
		if sess.UserID() == userID && sess.Snapshot().ConversationID == id {
			bound = append(bound, sess)
		}
	}
	s.mu.RUnlock()

	for _, sess := range bound {
		// the conversation is gone; saving would bring it back
		if err := sess.Discard(); err != nil {
			observability.LoggerFromContext(ctx).Warn("reset after delete failed",
				"session_id", sess.ID(),
				"error", err)
		}
	}

	observability.LoggerFromContext(ctx).Info("conversation deleted",
		"user_id", userID,
		"conversation_id", id,
		"live_sessions_reset", len(bound))
	return nil
}

// Close flushes and stops every live session.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[domain.SessionID]*session.Session)
	s.mu.Unlock()

	var errs []error
	for _, sess := range sessions {
		if err := sess.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) session(id domain.SessionID, userID domain.UserID) (*session.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if userID == "" {
		return nil, domain.NewError(domain.CodeInvalidInput, "user_id is required")
	}
	if !ok || sess.UserID() != userID {
		return nil, domain.NewError(domain.CodeNotFound, "session not found").WithContext("session_id", id)
	}
	return sess, nil
}
