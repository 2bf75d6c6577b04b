package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/nutria-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/nutria-agent/internal/domain"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "nutria:u1:dailyLog", Key("u1", domain.CacheDailyLog))
	assert.Equal(t, "nutria:u1:waterIntake", Key("u1", domain.CacheWaterIntake))
}

func TestMemory_ServesCachedUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	store := memory.NewHealthStore()
	c := NewMemory(store)

	_, err := store.CreateWater(ctx, "u1", day, domain.WaterPayload{AmountML: 250})
	require.NoError(t, err)

	agg, err := c.DailyAggregate(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 250.0, agg.WaterML)

	_, err = store.CreateWater(ctx, "u1", day, domain.WaterPayload{AmountML: 500})
	require.NoError(t, err)

	// stale until the executor reports the affected keys
	agg, err = c.DailyAggregate(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 250.0, agg.WaterML)

	// another user's invalidation does not touch u1
	require.NoError(t, c.Invalidate(ctx, "u2", domain.AffectedKeys(domain.ActionLogWater)))
	agg, err = c.DailyAggregate(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 250.0, agg.WaterML)

	require.NoError(t, c.Invalidate(ctx, "u1", domain.AffectedKeys(domain.ActionLogWater)))
	agg, err = c.DailyAggregate(ctx, "u1", day)
	require.NoError(t, err)
	assert.Equal(t, 750.0, agg.WaterML)
}

func TestMemory_RecordsAndNotifies(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(memory.NewHealthStore())

	var got []Invalidation
	c.Subscribe(func(inv Invalidation) { got = append(got, inv) })

	require.NoError(t, c.Invalidate(ctx, "u1", nil))
	require.NoError(t, c.Invalidate(ctx, "u1", domain.AffectedKeys(domain.ActionSaveRecipe)))

	log := c.Invalidations()
	require.Len(t, log, 1)
	assert.Equal(t, domain.UserID("u1"), log[0].UserID)
	assert.Equal(t, []domain.CacheKey{domain.CacheRecipes, domain.CacheMealPlans, domain.CacheGroceryLists}, log[0].Keys)
	assert.Equal(t, log, got)
}

func TestMemory_ProfilePassesThrough(t *testing.T) {
	store := memory.NewHealthStore()
	store.SetProfile(domain.UserProfile{UserID: "u1", Goal: "gain"})
	c := NewMemory(store)

	p, err := c.Profile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "gain", p.Goal)

	_, err = c.Profile(context.Background(), "u2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
