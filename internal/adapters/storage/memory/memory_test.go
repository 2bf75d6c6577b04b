package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

func tickingClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func chat(texts ...string) []domain.Message {
	msgs := []domain.Message{{ID: "seed", Role: domain.RoleAssistant, Content: "Hi!"}}
	for i, text := range texts {
		msgs = append(msgs, domain.Message{ID: domain.MessageID(fmt.Sprintf("m%d", i)), Role: domain.RoleUser, Content: text})
	}
	return msgs
}

func TestConversationStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewConversationStore()
	s.now = tickingClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

	id, err := s.UpsertConversation(ctx, "u1", chat("two eggs"), "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	same, err := s.UpsertConversation(ctx, "u1", chat("two eggs", "and coffee"), id)
	require.NoError(t, err)
	assert.Equal(t, id, same)

	conv, err := s.GetConversation(ctx, "u1", id)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 3)
	assert.Equal(t, "two eggs", conv.Title)
	assert.True(t, conv.UpdatedAt.After(conv.CreatedAt))

	// callers can't reach into the store
	conv.Messages[0].Content = "changed"
	again, err := s.GetConversation(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, "Hi!", again.Messages[0].Content)
}

func TestConversationStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewConversationStore()
	s.now = tickingClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

	first, err := s.UpsertConversation(ctx, "u1", chat("breakfast"), "")
	require.NoError(t, err)
	second, err := s.UpsertConversation(ctx, "u1", chat("lunch"), "")
	require.NoError(t, err)
	_, err = s.UpsertConversation(ctx, "u2", chat("dinner"), "")
	require.NoError(t, err)

	list, err := s.ListConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)
	assert.Equal(t, 2, list[0].MessageCount)

	// touching the older one moves it up
	_, err = s.UpsertConversation(ctx, "u1", chat("breakfast", "more"), first)
	require.NoError(t, err)
	list, err = s.ListConversations(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first, list[0].ID)

	empty, err := s.ListConversations(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestConversationStore_Ownership(t *testing.T) {
	ctx := context.Background()
	s := NewConversationStore()

	id, err := s.UpsertConversation(ctx, "u1", chat("mine"), "")
	require.NoError(t, err)

	_, err = s.GetConversation(ctx, "u2", id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.UpsertConversation(ctx, "u2", chat("hijack"), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, s.DeleteConversation(ctx, "u2", id), domain.ErrNotFound)
	require.NoError(t, s.DeleteConversation(ctx, "u1", id))
	assert.ErrorIs(t, s.DeleteConversation(ctx, "u1", id), domain.ErrNotFound)

	_, err = s.UpsertConversation(ctx, "u1", chat("gone"), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHealthStore_DailyAggregate(t *testing.T) {
	ctx := context.Background()
	s := NewHealthStore()
	today := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	_, err := s.CreateMeal(ctx, "u1", today, domain.MealPayload{Name: "eggs", Calories: 156, ProteinG: 12})
	require.NoError(t, err)
	_, err = s.CreateMeal(ctx, "u1", yesterday, domain.MealPayload{Name: "pizza", Calories: 800})
	require.NoError(t, err)
	_, err = s.CreateWorkout(ctx, "u1", today, domain.WorkoutPayload{Activity: "running", DurationMin: 20, CaloriesBurned: 200})
	require.NoError(t, err)
	_, err = s.CreateWater(ctx, "u1", today, domain.WaterPayload{AmountML: 500})
	require.NoError(t, err)
	_, err = s.CreateWater(ctx, "u2", today, domain.WaterPayload{AmountML: 1000})
	require.NoError(t, err)

	agg, err := s.DailyAggregate(ctx, "u1", today)
	require.NoError(t, err)
	assert.Equal(t, domain.DateKey(today), agg.Date)
	assert.Equal(t, 156.0, agg.CaloriesConsumed)
	assert.Equal(t, 12.0, agg.ProteinG)
	assert.Equal(t, 200.0, agg.CaloriesBurned)
	assert.Equal(t, 500.0, agg.WaterML)
	assert.Equal(t, 1, agg.Meals)
	assert.Equal(t, 1, agg.Workouts)

	assert.Len(t, s.Meals("u1"), 2)
}

func TestHealthStore_RecipesAndProfile(t *testing.T) {
	ctx := context.Background()
	s := NewHealthStore()

	id, err := s.CreateRecipe(ctx, "u1", domain.RecipePayload{Recipe: domain.Recipe{Name: "Protein bowl"}})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	recipes := s.Recipes("u1")
	require.Len(t, recipes, 1)
	assert.Empty(t, s.Recipes("u2"))

	_, err = s.Profile(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	s.SetProfile(domain.UserProfile{UserID: "u1", Goal: "lose"})
	p, err := s.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "lose", p.Goal)
}
