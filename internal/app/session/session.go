package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/nutria-agent/internal/app/capture"
	"github.com/PabloGalante/nutria-agent/internal/app/orchestrator"
	"github.com/PabloGalante/nutria-agent/internal/app/persistence"
	"github.com/PabloGalante/nutria-agent/internal/app/typing"
	"github.com/PabloGalante/nutria-agent/internal/domain"
	"github.com/PabloGalante/nutria-agent/internal/observability"
)

var ErrClosed = errors.New("session closed")

// TurnRunner generates the reply for one turn.
type TurnRunner interface {
	Run(ctx context.Context, in orchestrator.TurnInput) (*orchestrator.Reply, error)
}

// ActionExecutor applies a proposal to the domain stores.
type ActionExecutor interface {
	Execute(ctx context.Context, p domain.ActionProposal, userID domain.UserID, date time.Time) (domain.ExecutionResult, error)
}

// Deps are the collaborators a Session runs effects against.
type Deps struct {
	Turns       TurnRunner
	Executor    ActionExecutor
	Invalidator domain.CacheInvalidator
	Store       domain.ConversationStore
	Transcriber domain.Transcriber
	Images      *capture.ImageAnalyzer
	Presenter   *typing.Presenter

	SaveOptions persistence.Options
	// Location dates executed actions; defaults to UTC.
	Location *time.Location
	Now      func() time.Time
	NewID    func() string

	// OnUpdate receives every new view from the session loop. It must not
	// block or call back into the session synchronously.
	OnUpdate func(View)
}

// Session is one live conversation. A single goroutine owns its State;
// collaborators run on their own goroutines and post results back.
type Session struct {
	id     domain.SessionID
	userID domain.UserID
	deps   Deps
	saver  *persistence.Saver
	ctx    context.Context

	events chan envelope
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
	work   sync.WaitGroup

	mu   sync.RWMutex
	view View

	// loop-owned
	state State

	recMu    sync.Mutex
	recorder *capture.Recorder
}

type envelope struct {
	ev    Event
	reply chan error
}

// New starts a session with a fresh seed message. ctx only carries values
// (logger fields); cancelling it does not stop in-flight work.
func New(ctx context.Context, id domain.SessionID, userID domain.UserID, deps Deps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Presenter == nil {
		deps.Presenter = typing.NewPresenter(typing.ClockScheduler{}, typing.DefaultCadence())
	}

	s := &Session{
		id:     id,
		userID: userID,
		deps:   deps,
		ctx:    observability.WithSessionID(context.WithoutCancel(ctx), string(id)),
		events: make(chan envelope, 64),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	opts := deps.SaveOptions
	userSaved, userErr := opts.OnSaved, opts.OnError
	opts.OnSaved = func(cid domain.ConversationID) {
		s.notify(Saved{ID: cid})
		if userSaved != nil {
			userSaved(cid)
		}
	}
	opts.OnError = func(err error) {
		s.notify(PersistFailed{Err: err})
		if userErr != nil {
			userErr(err)
		}
	}
	s.saver = persistence.NewSaver(deps.Store, userID, opts)

	s.state = NewState(userID, s.stamp())
	s.publish()

	observability.LiveSessions.Inc()
	go s.loop()
	return s
}

func (s *Session) ID() domain.SessionID { return s.id }

func (s *Session) UserID() domain.UserID { return s.userID }

// Snapshot returns the latest view.
func (s *Session) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Send submits text, or the composer when text is empty, as a new turn.
// It fails with domain.ErrBusy while a turn or an action is in flight.
func (s *Session) Send(text string) (domain.MessageID, error) {
	st := s.stamp()
	if err := s.post(Send{Stamp: st, Text: text}); err != nil {
		return "", err
	}
	return st.ID, nil
}

// Confirm executes the proposal on messageID. Repeated calls are no-ops.
func (s *Session) Confirm(messageID domain.MessageID) error {
	return s.post(Confirm{MessageID: messageID})
}

// Cancel declines the proposal on messageID. Repeated calls are no-ops.
func (s *Session) Cancel(messageID domain.MessageID) error {
	return s.post(Cancel{Stamp: s.stamp(), MessageID: messageID})
}

// SetComposer replaces the composition buffer.
func (s *Session) SetComposer(text string) error {
	return s.post(ComposerChanged{Text: text})
}

// StartRecording acquires mic for a voice message.
func (s *Session) StartRecording(ctx context.Context, mic domain.Microphone) error {
	s.recMu.Lock()
	defer s.recMu.Unlock()

	if s.recorder != nil && s.recorder.Recording() {
		err := domain.NewError(domain.CodeCapture, "already recording").
			WithUserMessage("A recording is already in progress.")
		return err
	}

	rec := capture.NewRecorder(mic, s.deps.Transcriber)
	if err := rec.Start(ctx); err != nil {
		_ = s.post(CaptureFailed{Stamp: s.stamp(), Err: err})
		return err
	}
	s.recorder = rec
	return s.post(RecordingStarted{})
}

// StopRecording transcribes the recording into the composer and returns
// the transcript.
func (s *Session) StopRecording(ctx context.Context) (string, error) {
	s.recMu.Lock()
	rec := s.recorder
	s.recorder = nil
	s.recMu.Unlock()

	if rec == nil {
		return "", domain.NewError(domain.CodeCapture, "not recording").
			WithUserMessage("There is no recording to stop.")
	}

	if err := s.post(Transcribing{}); err != nil {
		_ = rec.Abort()
		return "", err
	}

	text, err := rec.Stop(s.logCtx(ctx), s.userID)
	if err != nil {
		_ = s.post(CaptureFailed{Stamp: s.stamp(), Err: err})
		return "", err
	}
	return text, s.post(Transcribed{Text: text})
}

// AbortRecording releases the microphone without transcribing.
func (s *Session) AbortRecording() error {
	s.recMu.Lock()
	rec := s.recorder
	s.recorder = nil
	s.recMu.Unlock()

	if rec == nil {
		return nil
	}
	err := rec.Abort()
	_ = s.post(RecordingAborted{})
	return err
}

// AttachImage describes ref into the composer and attaches it to the next
// message.
func (s *Session) AttachImage(ctx context.Context, ref domain.ImageRef) (string, error) {
	if s.deps.Images == nil {
		return "", domain.NewError(domain.CodeImageAnalysis, "image analysis not configured")
	}
	if err := s.post(Analyzing{}); err != nil {
		return "", err
	}

	text, err := s.deps.Images.Describe(s.logCtx(ctx), ref)
	if err != nil {
		_ = s.post(CaptureFailed{Stamp: s.stamp(), Err: err})
		return "", err
	}
	return text, s.post(ImageDescribed{Text: text, Image: ref})
}

// Load replaces the session content with a persisted conversation. Changes
// still waiting for the quiet period are saved to the current one first.
func (s *Session) Load(ctx context.Context, id domain.ConversationID) error {
	conv, err := s.deps.Store.GetConversation(ctx, s.userID, id)
	if err != nil {
		return err
	}
	if err := s.saver.Flush(ctx); err != nil {
		return err
	}
	return s.post(Loaded{Conversation: *conv})
}

// Reset saves pending changes, then starts a fresh conversation. Actions
// already executing still finish and invalidate their caches.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.saver.Flush(ctx); err != nil {
		return err
	}
	return s.Discard()
}

// Discard starts a fresh conversation without saving pending changes.
func (s *Session) Discard() error {
	return s.post(Reset{Stamp: s.stamp()})
}

// Flush writes any pending save now.
func (s *Session) Flush(ctx context.Context) error {
	return s.saver.Flush(ctx)
}

// Close stops the loop, waits for in-flight work and flushes pending saves.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		_ = s.AbortRecording()

		close(s.done)
		<-s.exited

		waited := make(chan struct{})
		go func() {
			s.work.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-ctx.Done():
			err = ctx.Err()
		}

		if ferr := s.saver.Close(ctx); ferr != nil && err == nil {
			err = ferr
		}
		observability.LiveSessions.Dec()
	})
	return err
}

// --- loop --- //

func (s *Session) loop() {
	defer close(s.exited)
	for {
		select {
		case env := <-s.events:
			err := s.apply(env.ev)
			if env.reply != nil {
				env.reply <- err
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) apply(ev Event) error {
	if saved, ok := ev.(Saved); ok && saved.ID != s.saver.ID() {
		// a save that finished for a conversation the session left
		return nil
	}
	if err := Check(s.state, ev); err != nil {
		return err
	}

	next, effects := Reduce(s.state, ev)
	s.state = next
	s.publish()
	for _, eff := range effects {
		s.run(eff)
	}
	return nil
}

// post delivers ev to the loop and waits until it is applied.
func (s *Session) post(ev Event) error {
	reply := make(chan error, 1)
	select {
	case s.events <- envelope{ev: ev, reply: reply}:
	case <-s.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// notify delivers ev without waiting. Late results after Close are dropped.
func (s *Session) notify(ev Event) {
	select {
	case s.events <- envelope{ev: ev}:
	case <-s.done:
	}
}

func (s *Session) run(eff Effect) {
	switch e := eff.(type) {
	case Generate:
		s.goWork(func() { s.generate(e) })
	case Reveal:
		turn := e.Turn
		s.deps.Presenter.Reveal(e.Text,
			func(partial string) { s.notify(RevealStep{Turn: turn, Partial: partial}) },
			func(full string) { s.notify(RevealDone{Turn: turn, Full: full}) },
		)
	case Execute:
		s.goWork(func() { s.execute(e) })
	case Invalidate:
		s.goWork(func() { s.invalidate(e.Keys) })
	case Persist:
		s.saver.Schedule(e.Messages)
	case RebindPersistence:
		s.saver.Reset(e.ConversationID)
	}
}

func (s *Session) goWork(fn func()) {
	s.work.Add(1)
	go func() {
		defer s.work.Done()
		fn()
	}()
}

func (s *Session) generate(e Generate) {
	if s.deps.Turns == nil {
		s.notify(GenerationFailed{Stamp: s.stamp(), Turn: e.Turn, Err: domain.ErrUnavailable})
		return
	}
	reply, err := s.deps.Turns.Run(s.ctx, e.Input)
	if err != nil {
		s.notify(GenerationFailed{Stamp: s.stamp(), Turn: e.Turn, Err: err})
		return
	}
	s.notify(Generated{Stamp: s.stamp(), Turn: e.Turn, Reply: reply})
}

func (s *Session) execute(e Execute) {
	log := observability.LoggerFromContext(s.ctx).With("message_id", e.MessageID, "action_type", e.Proposal.Type)

	if s.deps.Executor == nil {
		s.notify(ExecutionFailed{Stamp: s.stamp(), MessageID: e.MessageID, Err: domain.ErrUnavailable})
		return
	}

	res, err := s.deps.Executor.Execute(s.ctx, e.Proposal, s.userID, e.At.In(s.deps.Location))
	if err != nil {
		log.Error("action execution failed", "error", err)
		s.notify(ExecutionFailed{Stamp: s.stamp(), MessageID: e.MessageID, Err: err})
		return
	}
	s.notify(Executed{Stamp: s.stamp(), MessageID: e.MessageID, Result: res})
}

func (s *Session) invalidate(keys []domain.CacheKey) {
	if s.deps.Invalidator == nil {
		return
	}
	if err := s.deps.Invalidator.Invalidate(s.ctx, s.userID, keys); err != nil {
		observability.LoggerFromContext(s.ctx).Warn("cache invalidation failed", "keys", keys, "error", err)
		return
	}
	for _, k := range keys {
		observability.CacheInvalidations.WithLabelValues(string(k)).Inc()
	}
}

func (s *Session) stamp() Stamp {
	return Stamp{ID: domain.MessageID(s.deps.NewID()), At: s.deps.Now()}
}

func (s *Session) logCtx(ctx context.Context) context.Context {
	return observability.WithSessionID(ctx, string(s.id))
}

func (s *Session) publish() {
	v := buildView(s.id, s.state)
	s.mu.Lock()
	s.view = v
	s.mu.Unlock()
	if s.deps.OnUpdate != nil {
		s.deps.OnUpdate(v)
	}
}
