package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// Memory is the in-process counterpart of Redis. Subscribers registered
// with Subscribe receive every invalidation.
type Memory struct {
	inner domain.ContextProvider

	mu    sync.Mutex
	daily map[string]map[string]domain.DailyAggregate // Key(user, dailyLog) -> date -> value
	log   []Invalidation
	subs  []func(Invalidation)
}

func NewMemory(inner domain.ContextProvider) *Memory {
	return &Memory{
		inner: inner,
		daily: make(map[string]map[string]domain.DailyAggregate),
	}
}

func (m *Memory) Invalidate(_ context.Context, userID domain.UserID, keys []domain.CacheKey) error {
	if len(keys) == 0 {
		return nil
	}
	inv := Invalidation{UserID: userID, Keys: append([]domain.CacheKey(nil), keys...), At: time.Now()}

	m.mu.Lock()
	for _, k := range keys {
		delete(m.daily, Key(userID, k))
	}
	m.log = append(m.log, inv)
	subs := slices.Clone(m.subs)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(inv)
	}
	return nil
}

// Subscribe registers fn for every later invalidation.
func (m *Memory) Subscribe(fn func(Invalidation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Invalidations returns what has been invalidated so far, oldest first.
func (m *Memory) Invalidations() []Invalidation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Invalidation(nil), m.log...)
}

func (m *Memory) Profile(ctx context.Context, userID domain.UserID) (*domain.UserProfile, error) {
	return m.inner.Profile(ctx, userID)
}

func (m *Memory) DailyAggregate(ctx context.Context, userID domain.UserID, date time.Time) (*domain.DailyAggregate, error) {
	key := Key(userID, domain.CacheDailyLog)
	field := domain.DateKey(date)

	m.mu.Lock()
	if agg, ok := m.daily[key][field]; ok {
		m.mu.Unlock()
		return &agg, nil
	}
	m.mu.Unlock()

	agg, err := m.inner.DailyAggregate(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.daily[key] == nil {
		m.daily[key] = make(map[string]domain.DailyAggregate)
	}
	m.daily[key][field] = *agg
	m.mu.Unlock()

	return agg, nil
}
