package domain

// CacheKey names a cached aggregate on the client side. The string values
// are shared with consumers and must not change.
type CacheKey string

const (
	CacheMeals        CacheKey = "meals"
	CacheExercises    CacheKey = "exercises"
	CacheWaterIntake  CacheKey = "waterIntake"
	CacheDailyLog     CacheKey = "dailyLog"
	CacheRecipes      CacheKey = "recipes"
	CacheMealPlans    CacheKey = "mealPlans"
	CacheGroceryLists CacheKey = "groceryLists"
	CacheStreak       CacheKey = "streak"
)

// AllCacheKeys lists every key an invalidation consumer understands.
func AllCacheKeys() []CacheKey {
	return []CacheKey{
		CacheMeals,
		CacheExercises,
		CacheWaterIntake,
		CacheDailyLog,
		CacheRecipes,
		CacheMealPlans,
		CacheGroceryLists,
		CacheStreak,
	}
}

var affectedKeys = map[ActionType][]CacheKey{
	ActionLogMeal:        {CacheMeals, CacheDailyLog},
	ActionLogWorkout:     {CacheExercises, CacheDailyLog},
	ActionLogWater:       {CacheWaterIntake, CacheDailyLog},
	ActionSaveRecipe:     {CacheRecipes, CacheMealPlans, CacheGroceryLists},
	ActionGenerateRecipe: nil,
	ActionNone:           nil,
}

// AffectedKeys returns the aggregates invalidated after t executes
// successfully. Unknown types affect nothing.
func AffectedKeys(t ActionType) []CacheKey {
	keys := affectedKeys[t]
	if len(keys) == 0 {
		return nil
	}
	out := make([]CacheKey, len(keys))
	copy(out, keys)
	return out
}
