package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

func TestParseReply(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		reply, err := ParseReply(`{"message":" Logged it. ","action":{"type":"log_water","requires_confirmation":false,"data":{"amount_ml":500}}}`)
		require.NoError(t, err)
		assert.Equal(t, "Logged it.", reply.Message)
		require.NotNil(t, reply.Action)
		assert.Equal(t, domain.ActionLogWater, reply.Action.Type)
		assert.Equal(t, 500.0, reply.Action.Water.AmountML)
	})

	t.Run("fenced", func(t *testing.T) {
		reply, err := ParseReply("```json\n{\"message\":\"hi\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, "hi", reply.Message)
		assert.Nil(t, reply.Action)
	})

	t.Run("null action", func(t *testing.T) {
		reply, err := ParseReply(`{"message":"hi","action":null}`)
		require.NoError(t, err)
		assert.Nil(t, reply.Action)
	})

	t.Run("rejects", func(t *testing.T) {
		for name, raw := range map[string]string{
			"empty":          "  ",
			"not json":       "sure, logged!",
			"no message":     `{"message":"  "}`,
			"unknown action": `{"message":"x","action":{"type":"log_sleep"}}`,
			"bad payload":    `{"message":"x","action":{"type":"log_meal","data":{"calories":100}}}`,
		} {
			_, err := ParseReply(raw)
			assert.Error(t, err, name)
		}
	})
}

func TestParseImageDescription(t *testing.T) {
	desc, err := ParseImageDescription(`{"description":"Pasta","estimated_nutrition":{"calories":600,"protein_g":20,"carbs_g":80,"fat_g":18}}`)
	require.NoError(t, err)
	assert.Equal(t, "Pasta", desc.Description)
	require.NotNil(t, desc.EstimatedNutrition)
	assert.Equal(t, 600.0, desc.EstimatedNutrition.Calories)

	desc, err = ParseImageDescription("A bowl of soup.")
	require.NoError(t, err)
	assert.Equal(t, "A bowl of soup.", desc.Description)
	assert.Nil(t, desc.EstimatedNutrition)

	_, err = ParseImageDescription(`{"description":`)
	assert.Error(t, err)
}

func TestBuildSystemPrompt(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	prompt := BuildSystemPrompt(domain.GenerationRequest{
		Now: now,
		Profile: &domain.UserProfile{
			Name:          "Sam",
			Goal:          "lose",
			CalorieTarget: 1800,
			Preferences:   []string{"vegetarian"},
		},
		Daily: &domain.DailyAggregate{CaloriesConsumed: 650, Meals: 2, WaterML: 750},
	})

	assert.Contains(t, prompt, "Today is 2026-03-02 (Monday)")
	assert.Contains(t, prompt, "- name: Sam")
	assert.Contains(t, prompt, "- daily calorie target: 1800 kcal")
	assert.Contains(t, prompt, "- preferences: vegetarian")
	assert.Contains(t, prompt, "- calories consumed: 650 kcal (2 meals)")
	assert.Contains(t, prompt, "- water: 750 ml")
	assert.NotContains(t, prompt, "- age:")
}

func TestHistoryContents(t *testing.T) {
	history := []domain.Message{
		{Role: domain.RoleAssistant, Content: "Hi!"},
		{Role: domain.RoleUser, Content: "look at this"},
		{Role: domain.RoleAssistant, Content: "Nice."},
		{Role: domain.RoleUser, Content: "and this"},
	}
	img := &domain.ImageRef{Data: []byte{0xff, 0xd8}, MIMEType: "image/jpeg"}

	contents := historyContents(history, img)

	// a synthetic user turn opens the conversation
	require.Len(t, contents, 5)
	assert.EqualValues(t, genai.RoleUser, contents[0].Role)
	assert.EqualValues(t, genai.RoleModel, contents[1].Role)
	assert.EqualValues(t, genai.RoleUser, contents[2].Role)
	assert.Len(t, contents[2].Parts, 1)
	assert.Len(t, contents[4].Parts, 2)
}

func TestImagePart(t *testing.T) {
	_, err := imagePart(domain.ImageRef{})
	assert.Error(t, err)

	p, err := imagePart(domain.ImageRef{URL: "gs://bucket/plate.png", MIMEType: "image/png"})
	require.NoError(t, err)
	require.NotNil(t, p.FileData)
	assert.Equal(t, "gs://bucket/plate.png", p.FileData.FileURI)
}

func userTurn(text string) domain.GenerationRequest {
	return domain.GenerationRequest{
		History: []domain.Message{
			{Role: domain.RoleAssistant, Content: "Hi!"},
			{Role: domain.RoleUser, Content: text},
		},
	}
}

func TestMockLLM_Meal(t *testing.T) {
	m := NewMockLLM()

	reply, err := m.GenerateTurn(context.Background(), userTurn("I had two eggs and toast for breakfast"))
	require.NoError(t, err)
	require.NotNil(t, reply.Action)
	assert.Equal(t, domain.ActionLogMeal, reply.Action.Type)
	assert.False(t, reply.Action.RequiresConfirmation)
	assert.Equal(t, "2 eggs and toast", reply.Action.Meal.Name)
	assert.Equal(t, "breakfast", reply.Action.Meal.MealType)
	assert.InDelta(t, 236, reply.Action.Meal.Calories, 0.01)
	assert.Len(t, reply.Action.Meal.Items, 2)
	assert.NoError(t, reply.Action.Validate())

	reply, err = m.GenerateTurn(context.Background(), userTurn("pizza?"))
	require.NoError(t, err)
	require.NotNil(t, reply.Action)
	assert.True(t, reply.Action.RequiresConfirmation)
}

func TestMockLLM_Water(t *testing.T) {
	m := NewMockLLM()

	cases := map[string]struct {
		ml      float64
		confirm bool
	}{
		"I drank 500 ml of water":  {500, false},
		"had two glasses of water": {500, false},
		"1.5 l of water today":     {1500, false},
		"some water":               {250, true},
	}
	for text, want := range cases {
		reply, err := m.GenerateTurn(context.Background(), userTurn(text))
		require.NoError(t, err, text)
		require.NotNil(t, reply.Action, text)
		assert.Equal(t, domain.ActionLogWater, reply.Action.Type, text)
		assert.Equal(t, want.ml, reply.Action.Water.AmountML, text)
		assert.Equal(t, want.confirm, reply.Action.RequiresConfirmation, text)
	}
}

func TestMockLLM_Workout(t *testing.T) {
	m := NewMockLLM()

	reply, err := m.GenerateTurn(context.Background(), userTurn("went running for 40 minutes"))
	require.NoError(t, err)
	require.NotNil(t, reply.Action)
	assert.Equal(t, domain.ActionLogWorkout, reply.Action.Type)
	assert.Equal(t, "running", reply.Action.Workout.Activity)
	assert.Equal(t, 40.0, reply.Action.Workout.DurationMin)
	assert.Equal(t, 400.0, reply.Action.Workout.CaloriesBurned)
	assert.False(t, reply.Action.RequiresConfirmation)

	reply, err = m.GenerateTurn(context.Background(), userTurn("did some yoga"))
	require.NoError(t, err)
	assert.True(t, reply.Action.RequiresConfirmation)
	assert.Equal(t, 30.0, reply.Action.Workout.DurationMin)
}

func TestMockLLM_RecipeAndChat(t *testing.T) {
	m := NewMockLLM()

	reply, err := m.GenerateTurn(context.Background(), userTurn("give me a breakfast recipe"))
	require.NoError(t, err)
	require.NotNil(t, reply.Action)
	assert.Equal(t, domain.ActionGenerateRecipe, reply.Action.Type)
	assert.True(t, reply.Action.RequiresConfirmation)
	assert.NoError(t, reply.Action.Validate())

	req := userTurn("how am I doing?")
	req.Daily = &domain.DailyAggregate{CaloriesConsumed: 1200, Meals: 2, WaterML: 1000}
	reply, err = m.GenerateTurn(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, reply.Action)
	assert.Contains(t, reply.Message, "1200 kcal eaten")
}

func TestMockLLM_TranscribeAndDescribe(t *testing.T) {
	m := NewMockLLM()
	ctx := context.Background()

	text, err := m.Transcribe(ctx, []byte(" I ate an apple \n"), "text/plain", "u1")
	require.NoError(t, err)
	assert.Equal(t, "I ate an apple", text)

	text, err = m.Transcribe(ctx, []byte{0xff, 0xfe, 0x00}, "audio/wav", "u1")
	require.NoError(t, err)
	assert.Equal(t, "I drank 500 ml of water", text)

	_, err = m.Transcribe(ctx, nil, "audio/wav", "u1")
	assert.Error(t, err)

	desc, err := m.DescribeImage(ctx, domain.ImageRef{URL: "https://example.com/plate.jpg"})
	require.NoError(t, err)
	assert.NotEmpty(t, desc.Description)
	require.NotNil(t, desc.EstimatedNutrition)

	_, err = m.DescribeImage(ctx, domain.ImageRef{})
	assert.Error(t, err)
}
