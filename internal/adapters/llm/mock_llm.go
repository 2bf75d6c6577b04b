package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// MockLLM is a keyword-driven stand-in for the model. It is deterministic,
// so local runs and tests see the same proposals for the same input.
type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

type food struct {
	kcal, protein, carbs, fat float64
}

// per typical serving
var foods = map[string]food{
	"egg":      {78, 6, 0.6, 5},
	"toast":    {80, 3, 14, 1},
	"banana":   {105, 1.3, 27, 0.4},
	"apple":    {95, 0.5, 25, 0.3},
	"rice":     {205, 4.3, 45, 0.4},
	"chicken":  {165, 31, 0, 3.6},
	"salad":    {150, 3, 10, 11},
	"oatmeal":  {150, 5, 27, 3},
	"pizza":    {285, 12, 36, 10},
	"sandwich": {300, 15, 35, 11},
	"yogurt":   {100, 10, 6, 4},
	"coffee":   {5, 0.3, 0, 0},
}

// kcal per minute
var activities = map[string]float64{
	"run":   10,
	"ran":   10,
	"jog":   8,
	"walk":  4,
	"cycl":  8,
	"bike":  8,
	"swim":  9,
	"gym":   6,
	"yoga":  3,
	"lift":  6,
	"train": 7,
}

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
}

var (
	mlRe      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*ml`)
	litreRe   = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:l|liters?|litres?)\b`)
	glassRe   = regexp.MustCompile(`(\d+|a|an|one|two|three|four|five|six)\s+glass`)
	minutesRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:min|minutes?)\b`)
	wordRe    = regexp.MustCompile(`[a-z0-9]+`)
)

// GenerateTurn implements domain.Generator.
func (m *MockLLM) GenerateTurn(_ context.Context, req domain.GenerationRequest) (*domain.GenerationReply, error) {
	text := lastUserText(req.History)
	if text == "" && req.Image == nil {
		return &domain.GenerationReply{Message: "Tell me what you ate, drank or did today and I'll log it."}, nil
	}
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "recipe"):
		return recipeReply(), nil
	case strings.Contains(lower, "water") || mlRe.MatchString(lower) || glassRe.MatchString(lower):
		if reply := waterReply(lower); reply != nil {
			return reply, nil
		}
	}

	if reply := workoutReply(lower); reply != nil {
		return reply, nil
	}
	if reply := mealReply(lower); reply != nil {
		return reply, nil
	}

	return &domain.GenerationReply{Message: summaryMessage(req.Daily)}, nil
}

func waterReply(lower string) *domain.GenerationReply {
	var ml float64
	explicit := true
	switch {
	case mlRe.MatchString(lower):
		ml, _ = strconv.ParseFloat(mlRe.FindStringSubmatch(lower)[1], 64)
	case litreRe.MatchString(lower):
		l, _ := strconv.ParseFloat(litreRe.FindStringSubmatch(lower)[1], 64)
		ml = l * 1000
	case glassRe.MatchString(lower):
		ml = float64(count(glassRe.FindStringSubmatch(lower)[1])) * 250
	default:
		ml = 250
		explicit = false
	}
	if ml <= 0 {
		return nil
	}

	msg := fmt.Sprintf("Nice, %.0f ml of water logged. Keep it up!", ml)
	if !explicit {
		msg = "Did you have a glass of water (about 250 ml)? Confirm and I'll log it."
	}
	return &domain.GenerationReply{
		Message: msg,
		Action: &domain.ActionProposal{
			Type:                 domain.ActionLogWater,
			RequiresConfirmation: !explicit,
			Water:                &domain.WaterPayload{AmountML: ml},
		},
	}
}

func workoutReply(lower string) *domain.GenerationReply {
	var (
		activity string
		rate     float64
	)
	for _, w := range wordRe.FindAllString(lower, -1) {
		for stem, r := range activities {
			if strings.HasPrefix(w, stem) {
				activity, rate = activityName(stem), r
				break
			}
		}
		if activity != "" {
			break
		}
	}
	if activity == "" {
		return nil
	}

	minutes := 30.0
	explicit := false
	if sm := minutesRe.FindStringSubmatch(lower); sm != nil {
		if v, err := strconv.ParseFloat(sm[1], 64); err == nil && v > 0 {
			minutes, explicit = v, true
		}
	}
	burned := minutes * rate

	msg := fmt.Sprintf("Great %s! %.0f minutes is about %.0f kcal burned.", activity, minutes, burned)
	if !explicit {
		msg = fmt.Sprintf("Sounds like %s. Assuming about %.0f minutes (%.0f kcal), should I log it?", activity, minutes, burned)
	}
	return &domain.GenerationReply{
		Message: msg,
		Action: &domain.ActionProposal{
			Type:                 domain.ActionLogWorkout,
			RequiresConfirmation: !explicit,
			Workout: &domain.WorkoutPayload{
				Activity:       activity,
				DurationMin:    minutes,
				CaloriesBurned: burned,
				Intensity:      "moderate",
			},
		},
	}
}

func mealReply(lower string) *domain.GenerationReply {
	words := wordRe.FindAllString(lower, -1)

	meal := domain.MealPayload{MealType: mealType(lower)}
	var names []string
	for i, w := range words {
		key := strings.TrimSuffix(w, "s")
		f, ok := foods[key]
		if !ok {
			continue
		}
		n := 1
		if i > 0 {
			if c := count(words[i-1]); c > 0 {
				n = c
			}
		}
		qty := float64(n)
		meal.Calories += f.kcal * qty
		meal.ProteinG += f.protein * qty
		meal.CarbsG += f.carbs * qty
		meal.FatG += f.fat * qty
		meal.Items = append(meal.Items, domain.FoodItem{
			Name:     key,
			Quantity: strconv.Itoa(n),
			Calories: f.kcal * qty,
		})
		if n > 1 {
			names = append(names, fmt.Sprintf("%d %ss", n, key))
		} else {
			names = append(names, key)
		}
	}
	if len(names) == 0 {
		return nil
	}
	meal.Name = joinNames(names)

	// a plain statement of what was eaten is logged straight away
	stated := false
	for _, verb := range []string{"ate", "had", "eaten", "eat"} {
		if containsWord(words, verb) {
			stated = true
			break
		}
	}

	msg := fmt.Sprintf("Logged %s, about %.0f kcal.", meal.Name, meal.Calories)
	if !stated {
		msg = fmt.Sprintf("That looks like %s, about %.0f kcal. Want me to log it?", meal.Name, meal.Calories)
	}
	return &domain.GenerationReply{
		Message: msg,
		Action: &domain.ActionProposal{
			Type:                 domain.ActionLogMeal,
			RequiresConfirmation: !stated,
			Meal:                 &meal,
		},
	}
}

func recipeReply() *domain.GenerationReply {
	recipe := domain.Recipe{
		Name:        "Greek yogurt protein bowl",
		Description: "A quick high-protein breakfast bowl.",
		Servings:    1,
		PrepMinutes: 5,
		Ingredients: []domain.Ingredient{
			{Name: "greek yogurt", Amount: "200 g"},
			{Name: "banana", Amount: "1"},
			{Name: "oats", Amount: "30 g"},
			{Name: "honey", Amount: "1 tsp"},
		},
		Instructions: []string{
			"Spoon the yogurt into a bowl.",
			"Top with sliced banana and oats.",
			"Drizzle with honey.",
		},
		Calories: 420,
		ProteinG: 24,
		CarbsG:   62,
		FatG:     8,
	}
	return &domain.GenerationReply{
		Message: fmt.Sprintf("How about a %s? %s Want me to save it to your recipes?", strings.ToLower(recipe.Name), recipe.Description),
		Action: &domain.ActionProposal{
			Type:                 domain.ActionGenerateRecipe,
			RequiresConfirmation: true,
			Recipe:               &domain.RecipePayload{Recipe: recipe},
		},
	}
}

func summaryMessage(d *domain.DailyAggregate) string {
	if d == nil || (d.Meals == 0 && d.Workouts == 0 && d.WaterML == 0) {
		return "Nothing logged yet today. Tell me what you ate, drank or did and I'll take care of it."
	}
	return fmt.Sprintf("So far today: %.0f kcal eaten, %.0f kcal burned and %.0f ml of water.",
		d.CaloriesConsumed, d.CaloriesBurned, d.WaterML)
}

// Transcribe implements domain.Transcriber. Text payloads are echoed back,
// which lets tests and the CLI feed "audio" as plain text files.
func (m *MockLLM) Transcribe(_ context.Context, audio []byte, _ string, _ domain.UserID) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("mock transcribe: no audio")
	}
	if utf8.Valid(audio) {
		if text := strings.TrimSpace(string(audio)); text != "" {
			return text, nil
		}
	}
	return "I drank 500 ml of water", nil
}

// DescribeImage implements domain.ImageDescriber.
func (m *MockLLM) DescribeImage(_ context.Context, ref domain.ImageRef) (*domain.ImageDescription, error) {
	if ref.URL == "" && len(ref.Data) == 0 {
		return nil, fmt.Errorf("mock describe image: empty image")
	}
	return &domain.ImageDescription{
		Description: "A plate of grilled chicken with rice and salad",
		EstimatedNutrition: &domain.NutritionEstimate{
			Calories: 520,
			ProteinG: 42,
			CarbsG:   48,
			FatG:     14,
		},
	}, nil
}

func lastUserText(history []domain.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleUser {
			return strings.TrimSpace(history[i].Content)
		}
	}
	return ""
}

func count(word string) int {
	if n, ok := numberWords[word]; ok {
		return n
	}
	n, err := strconv.Atoi(word)
	if err != nil {
		return 0
	}
	return n
}

func mealType(lower string) string {
	for _, t := range []string{"breakfast", "lunch", "dinner", "snack"} {
		if strings.Contains(lower, t) {
			return t
		}
	}
	return ""
}

func activityName(stem string) string {
	switch stem {
	case "run", "ran", "jog":
		return "running"
	case "walk":
		return "walking"
	case "cycl", "bike":
		return "cycling"
	case "swim":
		return "swimming"
	case "lift", "gym":
		return "strength training"
	default:
		return stem
	}
}

func joinNames(names []string) string {
	if len(names) == 1 {
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

func containsWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}
