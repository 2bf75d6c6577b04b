package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/PabloGalante/nutria-agent/internal/domain"
	"github.com/PabloGalante/nutria-agent/internal/observability"
)

// Options tune a Saver. Zero values fall back to the defaults.
type Options struct {
	QuietPeriod time.Duration
	MaxAttempts int
	Backoff     time.Duration

	// OnSaved receives the conversation id after every successful write.
	OnSaved func(id domain.ConversationID)
	// OnError receives writes that failed after all attempts.
	OnError func(err error)
}

const (
	DefaultQuietPeriod = time.Second
	DefaultMaxAttempts = 3
	DefaultBackoff     = 200 * time.Millisecond
)

// Saver debounces conversation writes. Every Schedule restarts the quiet
// period; when it expires the latest snapshot is written once, creating the
// conversation on the first write and updating it afterwards.
type Saver struct {
	store  domain.ConversationStore
	userID domain.UserID
	opts   Options
	retry  backoff

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64 // bumped on every Schedule, Flush and Reset
	epoch   uint64 // bumped on Reset only
	pending []domain.Message
	id      domain.ConversationID
	closed  bool

	// serializes writes so two saves never both create
	writeMu sync.Mutex
}

func NewSaver(store domain.ConversationStore, userID domain.UserID, opts Options) *Saver {
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	return &Saver{
		store:  store,
		userID: userID,
		opts:   opts,
		retry: backoff{
			attempts:   opts.MaxAttempts,
			base:       opts.Backoff,
			max:        10 * opts.Backoff,
			multiplier: 2,
		},
	}
}

// ID returns the captured conversation id, empty before the first write.
func (s *Saver) ID() domain.ConversationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Schedule records messages as the state to persist and restarts the quiet
// period.
func (s *Saver) Schedule(messages []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.pending = domain.CloneMessages(messages)
	s.gen++
	gen := s.gen

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.opts.QuietPeriod, func() { s.fire(gen) })
}

// Flush writes the pending snapshot now, if there is one. It also waits
// for a write the quiet period already started.
func (s *Saver) Flush(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	msgs, epoch, ok := s.takeLocked()
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.writeLocked(ctx, msgs, epoch)
}

// Reset drops pending work and binds the saver to id, which is empty for a
// conversation that has not been written yet.
func (s *Saver) Reset(id domain.ConversationID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.takeLocked()
	s.epoch++
	s.id = id
}

// Close flushes pending work and ignores every later Schedule.
func (s *Saver) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

func (s *Saver) fire(gen uint64) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	msgs, epoch, ok := s.takeLocked()
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = s.writeLocked(context.Background(), msgs, epoch)
}

// takeLocked claims the pending snapshot and cancels the timer.
func (s *Saver) takeLocked() ([]domain.Message, uint64, bool) {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	msgs := s.pending
	s.pending = nil
	return msgs, s.epoch, msgs != nil
}

// writeLocked runs with writeMu held.
func (s *Saver) writeLocked(ctx context.Context, msgs []domain.Message, epoch uint64) error {
	// only the seed message: nothing worth keeping yet
	if len(msgs) <= 1 {
		return nil
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return nil
	}
	id := s.id
	s.mu.Unlock()

	log := observability.LoggerFromContext(ctx).With(
		"user_id", s.userID,
		"conversation_id", id,
		"messages", len(msgs),
	)

	op := "update"
	if id == "" {
		op = "create"
	}

	var saved domain.ConversationID
	err := s.retry.run(ctx, func() error {
		var err error
		saved, err = s.store.UpsertConversation(ctx, s.userID, msgs, id)
		return err
	})
	if err != nil {
		observability.PersistFailures.Inc()
		log.Error("conversation save failed", "op", op, "error", err)
		err = domain.Wrap(err, domain.CodePersistence, "save conversation")
		if s.opts.OnError != nil {
			s.opts.OnError(err)
		}
		return err
	}

	observability.PersistWrites.WithLabelValues(op).Inc()
	log.Debug("conversation saved", "op", op, "saved_id", saved)

	s.mu.Lock()
	stale := epoch != s.epoch
	if !stale {
		s.id = saved
	}
	s.mu.Unlock()

	if !stale && s.opts.OnSaved != nil {
		s.opts.OnSaved(saved)
	}
	return nil
}
