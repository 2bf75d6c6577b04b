package domain

import "time"

const dateLayout = "2006-01-02"

// DateKey formats the calendar day records are filed under.
func DateKey(t time.Time) string {
	return t.Format(dateLayout)
}

// UserProfile is the read-only snapshot the assistant personalizes replies with.
type UserProfile struct {
	UserID        UserID  `json:"user_id"`
	Name          string  `json:"name,omitempty"`
	AgeYears      int     `json:"age_years,omitempty"`
	HeightCM      float64 `json:"height_cm,omitempty"`
	WeightKG      float64 `json:"weight_kg,omitempty"`
	ActivityLevel string  `json:"activity_level,omitempty"`
	Goal          string  `json:"goal,omitempty"` // lose, maintain, gain

	CalorieTarget float64  `json:"calorie_target,omitempty"`
	ProteinTarget float64  `json:"protein_target_g,omitempty"`
	WaterTargetML float64  `json:"water_target_ml,omitempty"`
	Preferences   []string `json:"preferences,omitempty"`
}

// DailyAggregate summarizes one day of logged records.
type DailyAggregate struct {
	Date             string  `json:"date"`
	CaloriesConsumed float64 `json:"calories_consumed"`
	CaloriesBurned   float64 `json:"calories_burned"`
	ProteinG         float64 `json:"protein_g"`
	CarbsG           float64 `json:"carbs_g"`
	FatG             float64 `json:"fat_g"`
	WaterML          float64 `json:"water_ml"`
	Meals            int     `json:"meals"`
	Workouts         int     `json:"workouts"`
}

// MealRecord is a logged meal.
type MealRecord struct {
	ID        RecordID    `json:"id"`
	UserID    UserID      `json:"user_id"`
	Date      string      `json:"date"`
	Meal      MealPayload `json:"meal"`
	CreatedAt time.Time   `json:"created_at"`
}

// WorkoutRecord is a logged exercise session.
type WorkoutRecord struct {
	ID        RecordID       `json:"id"`
	UserID    UserID         `json:"user_id"`
	Date      string         `json:"date"`
	Workout   WorkoutPayload `json:"workout"`
	CreatedAt time.Time      `json:"created_at"`
}

// WaterRecord is a logged water intake.
type WaterRecord struct {
	ID        RecordID  `json:"id"`
	UserID    UserID    `json:"user_id"`
	Date      string    `json:"date"`
	AmountML  float64   `json:"amount_ml"`
	CreatedAt time.Time `json:"created_at"`
}

// RecipeRecord is a recipe saved to the user's collection.
type RecipeRecord struct {
	ID        RecordID  `json:"id"`
	UserID    UserID    `json:"user_id"`
	Recipe    Recipe    `json:"recipe"`
	CreatedAt time.Time `json:"created_at"`
}

// AddMeal folds a meal into the aggregate.
func (d *DailyAggregate) AddMeal(m MealPayload) {
	d.CaloriesConsumed += m.Calories
	d.ProteinG += m.ProteinG
	d.CarbsG += m.CarbsG
	d.FatG += m.FatG
	d.Meals++
}

func (d *DailyAggregate) AddWorkout(w WorkoutPayload) {
	d.CaloriesBurned += w.CaloriesBurned
	d.Workouts++
}

func (d *DailyAggregate) AddWater(ml float64) {
	d.WaterML += ml
}
