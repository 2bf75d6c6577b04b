package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

const baseSystemPrompt = `
You are "Nutria", a friendly nutrition and fitness assistant inside a health-tracking app.

Your role:
- Help the user log meals, workouts and water intake from what they tell you.
- Estimate calories and macros realistically when the user does not give them.
- Suggest recipes that fit the user's goals and preferences when asked.
- You are NOT a doctor or dietitian and you do NOT give medical diagnoses.

Style:
- Answer in the SAME LANGUAGE as the user.
- Be brief: 1 to 4 short sentences.
- Mention the estimate you used when you log something.

Actions:
- Reply with a single JSON object: {"message": string, "action": {"type", "requires_confirmation", "data"}}.
- action.type is one of: log_meal, log_workout, log_water, generate_recipe, none.
- log_meal data: {"name", "meal_type", "calories", "protein_g", "carbs_g", "fat_g", "items": [{"name", "quantity", "calories"}]}.
- log_workout data: {"activity", "duration_min", "calories_burned", "intensity"}.
- log_water data: {"amount_ml"}.
- generate_recipe data: {"recipe": {"name", "description", "servings", "prep_minutes", "ingredients": [{"name", "amount"}], "instructions": [string], "calories", "protein_g", "carbs_g", "fat_g"}}.
- Set requires_confirmation to false only when the user clearly stated what they consumed or did.
  When you had to guess quantities, or the user only asked a question, set it to true.
- Recipes always require confirmation before they are saved.
- Use type "none" when nothing should be logged.
`

// BuildSystemPrompt renders the system instruction for one turn.
func BuildSystemPrompt(req domain.GenerationRequest) string {
	var sb strings.Builder
	sb.WriteString(baseSystemPrompt)

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	fmt.Fprintf(&sb, "\nToday is %s (%s).\n", domain.DateKey(now), now.Weekday())

	if p := req.Profile; p != nil {
		sb.WriteString("\nUser profile:\n")
		writeField(&sb, "name", p.Name)
		writeNumber(&sb, "age", float64(p.AgeYears), "years")
		writeNumber(&sb, "height", p.HeightCM, "cm")
		writeNumber(&sb, "weight", p.WeightKG, "kg")
		writeField(&sb, "activity level", p.ActivityLevel)
		writeField(&sb, "goal", p.Goal)
		writeNumber(&sb, "daily calorie target", p.CalorieTarget, "kcal")
		writeNumber(&sb, "daily protein target", p.ProteinTarget, "g")
		writeNumber(&sb, "daily water target", p.WaterTargetML, "ml")
		if len(p.Preferences) > 0 {
			writeField(&sb, "preferences", strings.Join(p.Preferences, ", "))
		}
	}

	if d := req.Daily; d != nil {
		sb.WriteString("\nLogged so far today:\n")
		fmt.Fprintf(&sb, "- calories consumed: %.0f kcal (%d meals)\n", d.CaloriesConsumed, d.Meals)
		fmt.Fprintf(&sb, "- calories burned: %.0f kcal (%d workouts)\n", d.CaloriesBurned, d.Workouts)
		fmt.Fprintf(&sb, "- protein %.0f g, carbs %.0f g, fat %.0f g\n", d.ProteinG, d.CarbsG, d.FatG)
		fmt.Fprintf(&sb, "- water: %.0f ml\n", d.WaterML)
	}

	return sb.String()
}

const transcribePrompt = "Transcribe this voice message exactly as spoken. Reply with the transcript only, no commentary."

const describeImagePrompt = `Describe the food in this photo in one or two sentences for a nutrition log.
Estimate the total calories and macros of what is shown.
Reply with a JSON object: {"description": string, "estimated_nutrition": {"calories", "protein_g", "carbs_g", "fat_g"}}.`

func writeField(sb *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "- %s: %s\n", label, value)
}

func writeNumber(sb *strings.Builder, label string, v float64, unit string) {
	if v <= 0 {
		return
	}
	fmt.Fprintf(sb, "- %s: %.0f %s\n", label, v, unit)
}
