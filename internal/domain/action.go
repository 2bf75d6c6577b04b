package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ActionType tags the variant of an ActionProposal.
type ActionType string

const (
	ActionLogMeal        ActionType = "log_meal"
	ActionLogWorkout     ActionType = "log_workout"
	ActionLogWater       ActionType = "log_water"
	ActionGenerateRecipe ActionType = "generate_recipe"
	ActionSaveRecipe     ActionType = "save_recipe"
	ActionNone           ActionType = "none"
)

var actionTypes = []ActionType{
	ActionLogMeal,
	ActionLogWorkout,
	ActionLogWater,
	ActionGenerateRecipe,
	ActionSaveRecipe,
	ActionNone,
}

// AllActionTypes lists every known variant.
func AllActionTypes() []ActionType {
	out := make([]ActionType, len(actionTypes))
	copy(out, actionTypes)
	return out
}

func (t ActionType) Valid() bool {
	for _, known := range actionTypes {
		if t == known {
			return true
		}
	}
	return false
}

var (
	ErrUnknownAction  = errors.New("unknown action type")
	ErrInvalidPayload = errors.New("invalid action payload")
)

// ActionProposal is a typed suggestion of a domain mutation attached to an
// assistant message. Exactly one payload field is set, matching Type; none
// and unknown types carry no payload.
//
// On the wire it is {"type", "requires_confirmation", "data"}.
type ActionProposal struct {
	Type                 ActionType
	RequiresConfirmation bool

	Meal    *MealPayload
	Workout *WorkoutPayload
	Water   *WaterPayload
	Recipe  *RecipePayload
}

type FoodItem struct {
	Name     string  `json:"name"`
	Quantity string  `json:"quantity,omitempty"`
	Calories float64 `json:"calories,omitempty"`
}

type MealPayload struct {
	Name     string     `json:"name"`
	MealType string     `json:"meal_type,omitempty"` // breakfast, lunch, dinner, snack
	Calories float64    `json:"calories"`
	ProteinG float64    `json:"protein_g"`
	CarbsG   float64    `json:"carbs_g"`
	FatG     float64    `json:"fat_g"`
	Items    []FoodItem `json:"items,omitempty"`
}

type WorkoutPayload struct {
	Activity       string  `json:"activity"`
	DurationMin    float64 `json:"duration_min"`
	CaloriesBurned float64 `json:"calories_burned"`
	Intensity      string  `json:"intensity,omitempty"`
}

type WaterPayload struct {
	AmountML float64 `json:"amount_ml"`
}

type Ingredient struct {
	Name   string `json:"name"`
	Amount string `json:"amount,omitempty"`
}

type Recipe struct {
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Servings     int          `json:"servings,omitempty"`
	PrepMinutes  int          `json:"prep_minutes,omitempty"`
	Ingredients  []Ingredient `json:"ingredients,omitempty"`
	Instructions []string     `json:"instructions,omitempty"`
	Calories     float64      `json:"calories,omitempty"`
	ProteinG     float64      `json:"protein_g,omitempty"`
	CarbsG       float64      `json:"carbs_g,omitempty"`
	FatG         float64      `json:"fat_g,omitempty"`
}

// RecipePayload is shared by generate_recipe and save_recipe.
type RecipePayload struct {
	Recipe Recipe `json:"recipe"`
}

// AsSaveRecipe turns a confirmed generate_recipe proposal into the
// save_recipe it stands for. Any other variant is returned unchanged.
func (p ActionProposal) AsSaveRecipe() ActionProposal {
	if p.Type != ActionGenerateRecipe {
		return p
	}
	p.Type = ActionSaveRecipe
	return p
}

// Validate checks that the payload matches the variant.
func (p ActionProposal) Validate() error {
	switch p.Type {
	case ActionNone:
		return nil
	case ActionLogMeal:
		if p.Meal == nil || strings.TrimSpace(p.Meal.Name) == "" {
			return fmt.Errorf("%w: %s requires a meal name", ErrInvalidPayload, p.Type)
		}
		if p.Meal.Calories < 0 {
			return fmt.Errorf("%w: negative calories", ErrInvalidPayload)
		}
	case ActionLogWorkout:
		if p.Workout == nil || strings.TrimSpace(p.Workout.Activity) == "" {
			return fmt.Errorf("%w: %s requires an activity", ErrInvalidPayload, p.Type)
		}
		if p.Workout.DurationMin < 0 || p.Workout.CaloriesBurned < 0 {
			return fmt.Errorf("%w: negative workout values", ErrInvalidPayload)
		}
	case ActionLogWater:
		if p.Water == nil || p.Water.AmountML <= 0 {
			return fmt.Errorf("%w: %s requires a positive amount_ml", ErrInvalidPayload, p.Type)
		}
	case ActionGenerateRecipe, ActionSaveRecipe:
		if p.Recipe == nil || strings.TrimSpace(p.Recipe.Recipe.Name) == "" {
			return fmt.Errorf("%w: %s requires a recipe name", ErrInvalidPayload, p.Type)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, p.Type)
	}
	return nil
}

type actionWire struct {
	Type                 ActionType      `json:"type"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
	Data                 json.RawMessage `json:"data,omitempty"`
}

func (p ActionProposal) MarshalJSON() ([]byte, error) {
	w := actionWire{
		Type:                 p.Type,
		RequiresConfirmation: p.RequiresConfirmation,
	}

	var (
		data []byte
		err  error
	)
	switch {
	case p.Type == ActionLogMeal && p.Meal != nil:
		data, err = json.Marshal(p.Meal)
	case p.Type == ActionLogWorkout && p.Workout != nil:
		data, err = json.Marshal(p.Workout)
	case p.Type == ActionLogWater && p.Water != nil:
		data, err = json.Marshal(p.Water)
	case (p.Type == ActionGenerateRecipe || p.Type == ActionSaveRecipe) && p.Recipe != nil:
		data, err = json.Marshal(p.Recipe)
	}
	if err != nil {
		return nil, err
	}
	w.Data = data

	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form and rejects unknown variants or
// payloads that do not fit their variant.
func (p *ActionProposal) UnmarshalJSON(b []byte) error {
	var w actionWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	out := ActionProposal{
		Type:                 ActionType(strings.TrimSpace(string(w.Type))),
		RequiresConfirmation: w.RequiresConfirmation,
	}
	if !out.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, w.Type)
	}

	hasData := len(w.Data) > 0 && string(w.Data) != "null"

	switch out.Type {
	case ActionLogMeal:
		out.Meal = &MealPayload{}
		if hasData {
			if err := json.Unmarshal(w.Data, out.Meal); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
		}
	case ActionLogWorkout:
		out.Workout = &WorkoutPayload{}
		if hasData {
			if err := json.Unmarshal(w.Data, out.Workout); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
		}
	case ActionLogWater:
		out.Water = &WaterPayload{}
		if hasData {
			if err := json.Unmarshal(w.Data, out.Water); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
		}
	case ActionGenerateRecipe, ActionSaveRecipe:
		out.Recipe = &RecipePayload{}
		if hasData {
			if err := json.Unmarshal(w.Data, out.Recipe); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
		}
	}

	if err := out.Validate(); err != nil {
		return err
	}

	*p = out
	return nil
}

// ExecutionResult is what the executor reports back for one proposal.
type ExecutionResult struct {
	Success      bool       `json:"success"`
	Message      string     `json:"message"`
	AffectedKeys []CacheKey `json:"affected_keys,omitempty"`
}
