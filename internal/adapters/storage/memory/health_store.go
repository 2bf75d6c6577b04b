package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// HealthStore keeps logged records and profiles in memory. It implements
// domain.HealthStore and domain.ContextProvider.
type HealthStore struct {
	mu       sync.RWMutex
	meals    map[domain.UserID][]domain.MealRecord
	workouts map[domain.UserID][]domain.WorkoutRecord
	water    map[domain.UserID][]domain.WaterRecord
	recipes  map[domain.UserID][]domain.RecipeRecord
	profiles map[domain.UserID]*domain.UserProfile
}

func NewHealthStore() *HealthStore {
	return &HealthStore{
		meals:    make(map[domain.UserID][]domain.MealRecord),
		workouts: make(map[domain.UserID][]domain.WorkoutRecord),
		water:    make(map[domain.UserID][]domain.WaterRecord),
		recipes:  make(map[domain.UserID][]domain.RecipeRecord),
		profiles: make(map[domain.UserID]*domain.UserProfile),
	}
}

func newRecordID() domain.RecordID {
	return domain.RecordID(uuid.NewString())
}

func (s *HealthStore) CreateMeal(_ context.Context, userID domain.UserID, date time.Time, meal domain.MealPayload) (domain.RecordID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := domain.MealRecord{
		ID:        newRecordID(),
		UserID:    userID,
		Date:      domain.DateKey(date),
		Meal:      meal,
		CreatedAt: time.Now(),
	}
	s.meals[userID] = append(s.meals[userID], rec)
	return rec.ID, nil
}

func (s *HealthStore) CreateWorkout(_ context.Context, userID domain.UserID, date time.Time, w domain.WorkoutPayload) (domain.RecordID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := domain.WorkoutRecord{
		ID:        newRecordID(),
		UserID:    userID,
		Date:      domain.DateKey(date),
		Workout:   w,
		CreatedAt: time.Now(),
	}
	s.workouts[userID] = append(s.workouts[userID], rec)
	return rec.ID, nil
}

func (s *HealthStore) CreateWater(_ context.Context, userID domain.UserID, date time.Time, w domain.WaterPayload) (domain.RecordID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := domain.WaterRecord{
		ID:        newRecordID(),
		UserID:    userID,
		Date:      domain.DateKey(date),
		AmountML:  w.AmountML,
		CreatedAt: time.Now(),
	}
	s.water[userID] = append(s.water[userID], rec)
	return rec.ID, nil
}

func (s *HealthStore) CreateRecipe(_ context.Context, userID domain.UserID, r domain.RecipePayload) (domain.RecordID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := domain.RecipeRecord{
		ID:        newRecordID(),
		UserID:    userID,
		Recipe:    r.Recipe,
		CreatedAt: time.Now(),
	}
	s.recipes[userID] = append(s.recipes[userID], rec)
	return rec.ID, nil
}

// SetProfile stores the profile handed to the assistant for p.UserID.
func (s *HealthStore) SetProfile(p domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = &p
}

func (s *HealthStore) Profile(_ context.Context, userID domain.UserID) (*domain.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *HealthStore) DailyAggregate(_ context.Context, userID domain.UserID, date time.Time) (*domain.DailyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := domain.DateKey(date)
	agg := &domain.DailyAggregate{Date: key}

	for _, m := range s.meals[userID] {
		if m.Date == key {
			agg.AddMeal(m.Meal)
		}
	}
	for _, w := range s.workouts[userID] {
		if w.Date == key {
			agg.AddWorkout(w.Workout)
		}
	}
	for _, w := range s.water[userID] {
		if w.Date == key {
			agg.AddWater(w.AmountML)
		}
	}
	return agg, nil
}

// Meals returns the meals logged by userID.
func (s *HealthStore) Meals(userID domain.UserID) []domain.MealRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.MealRecord(nil), s.meals[userID]...)
}

// Recipes returns the recipes saved by userID.
func (s *HealthStore) Recipes(userID domain.UserID) []domain.RecipeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RecipeRecord(nil), s.recipes[userID]...)
}
