package domain_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

func TestDeriveTitle(t *testing.T) {
	long := strings.Repeat("a", 60)

	cases := []struct {
		name   string
		stored string
		msgs   []domain.Message
		want   string
	}{
		{
			name:   "stored title wins",
			stored: "Breakfast ideas",
			msgs:   []domain.Message{{Role: domain.RoleUser, Content: "hello"}},
			want:   "Breakfast ideas",
		},
		{
			name: "first user message",
			msgs: []domain.Message{
				{Role: domain.RoleAssistant, Content: "Hi! How can I help?"},
				{Role: domain.RoleUser, Content: "I ate 2 eggs and toast"},
				{Role: domain.RoleUser, Content: "and coffee"},
			},
			want: "I ate 2 eggs and toast",
		},
		{
			name: "exactly at the limit is not truncated",
			msgs: []domain.Message{{Role: domain.RoleUser, Content: strings.Repeat("b", 50)}},
			want: strings.Repeat("b", 50),
		},
		{
			name: "truncated with ellipsis",
			msgs: []domain.Message{{Role: domain.RoleUser, Content: long}},
			want: strings.Repeat("a", 50) + "...",
		},
		{
			name: "counts runes not bytes",
			msgs: []domain.Message{{Role: domain.RoleUser, Content: strings.Repeat("é", 51)}},
			want: strings.Repeat("é", 50) + "...",
		},
		{
			name: "placeholder without user messages",
			msgs: []domain.Message{{Role: domain.RoleAssistant, Content: "seed"}},
			want: domain.DefaultTitle,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, domain.DeriveTitle(tc.stored, tc.msgs))
		})
	}
}

func TestAffectedKeysTable(t *testing.T) {
	want := map[domain.ActionType][]domain.CacheKey{
		domain.ActionLogMeal:        {"meals", "dailyLog"},
		domain.ActionLogWorkout:     {"exercises", "dailyLog"},
		domain.ActionLogWater:       {"waterIntake", "dailyLog"},
		domain.ActionSaveRecipe:     {"recipes", "mealPlans", "groceryLists"},
		domain.ActionGenerateRecipe: nil,
		domain.ActionNone:           nil,
	}

	for _, typ := range domain.AllActionTypes() {
		expected, ok := want[typ]
		require.True(t, ok, "action type %s missing from expectations", typ)
		assert.ElementsMatch(t, expected, domain.AffectedKeys(typ), "keys for %s", typ)
	}
	assert.Len(t, want, len(domain.AllActionTypes()))

	known := map[domain.CacheKey]bool{}
	for _, k := range domain.AllCacheKeys() {
		known[k] = true
	}
	for _, typ := range domain.AllActionTypes() {
		for _, k := range domain.AffectedKeys(typ) {
			assert.True(t, known[k], "unknown cache key %q for %s", k, typ)
		}
	}
}

func TestAffectedKeysReturnsCopy(t *testing.T) {
	keys := domain.AffectedKeys(domain.ActionLogMeal)
	keys[0] = "tampered"
	assert.Equal(t, domain.CacheMeals, domain.AffectedKeys(domain.ActionLogMeal)[0])
}

func TestActionProposalDecode(t *testing.T) {
	raw := `{"type":"log_meal","requires_confirmation":false,"data":{"name":"Eggs and toast","meal_type":"breakfast","calories":320,"protein_g":16,"carbs_g":28,"fat_g":14}}`

	var p domain.ActionProposal
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, domain.ActionLogMeal, p.Type)
	require.NotNil(t, p.Meal)
	assert.Equal(t, "Eggs and toast", p.Meal.Name)
	assert.Equal(t, 320.0, p.Meal.Calories)
	assert.Nil(t, p.Workout)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestActionProposalDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want error
	}{
		"unknown type":        {`{"type":"log_sleep","data":{}}`, domain.ErrUnknownAction},
		"meal without name":   {`{"type":"log_meal","data":{"calories":100}}`, domain.ErrInvalidPayload},
		"water without ml":    {`{"type":"log_water","data":{}}`, domain.ErrInvalidPayload},
		"recipe wrong shape":  {`{"type":"save_recipe","data":{"recipe":"soup"}}`, domain.ErrInvalidPayload},
		"workout missing all": {`{"type":"log_workout"}`, domain.ErrInvalidPayload},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var p domain.ActionProposal
			err := json.Unmarshal([]byte(tc.raw), &p)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAsSaveRecipe(t *testing.T) {
	recipe := &domain.RecipePayload{Recipe: domain.Recipe{Name: "Overnight oats", Servings: 2}}
	gen := domain.ActionProposal{
		Type:                 domain.ActionGenerateRecipe,
		RequiresConfirmation: true,
		Recipe:               recipe,
	}

	saved := gen.AsSaveRecipe()
	assert.Equal(t, domain.ActionSaveRecipe, saved.Type)
	assert.Same(t, recipe, saved.Recipe)
	assert.Equal(t, domain.ActionGenerateRecipe, gen.Type, "original proposal untouched")

	meal := domain.ActionProposal{Type: domain.ActionLogMeal, Meal: &domain.MealPayload{Name: "x"}}
	assert.Equal(t, meal, meal.AsSaveRecipe())
}

func TestErrorClassification(t *testing.T) {
	base := errors.New("connection refused")
	err := domain.Wrap(base, domain.CodeGeneration, "generate turn")
	wrapped := fmt.Errorf("turn: %w", err)

	assert.True(t, domain.IsCode(wrapped, domain.CodeGeneration))
	assert.False(t, domain.IsCode(wrapped, domain.CodeExecution))
	assert.Equal(t, domain.CodeGeneration, domain.GetCode(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.Contains(t, err.Error(), "[GENERATION] generate turn: connection refused")

	assert.Nil(t, domain.Wrap(nil, domain.CodeInternal, "noop"))
	assert.Equal(t, domain.CodeNotFound, domain.GetCode(fmt.Errorf("get: %w", domain.ErrNotFound)))
	assert.Equal(t, domain.CodeInternal, domain.GetCode(base))

	user := domain.NewError(domain.CodeCapture, "mic").WithUserMessage("Microphone access was denied.")
	assert.Equal(t, "Microphone access was denied.", domain.UserMessage(fmt.Errorf("x: %w", user), "fallback"))
	assert.Equal(t, "fallback", domain.UserMessage(base, "fallback"))
}
