package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

func (s *Store) CreateMeal(ctx context.Context, userID domain.UserID, date time.Time, meal domain.MealPayload) (domain.RecordID, error) {
	items, err := json.Marshal(meal.Items)
	if err != nil {
		return "", fmt.Errorf("encode meal items: %w", err)
	}

	id := newID()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO meals (id, user_id, date, name, meal_type, calories, protein_g, carbs_g, fat_g, items, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(userID), domain.DateKey(date), meal.Name, meal.MealType,
		meal.Calories, meal.ProteinG, meal.CarbsG, meal.FatG, string(items), s.now().UnixNano())
	if err != nil {
		return "", mapErr(fmt.Errorf("insert meal: %w", err))
	}
	return domain.RecordID(id), nil
}

func (s *Store) CreateWorkout(ctx context.Context, userID domain.UserID, date time.Time, w domain.WorkoutPayload) (domain.RecordID, error) {
	id := newID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workouts (id, user_id, date, activity, duration_min, calories_burned, intensity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, string(userID), domain.DateKey(date), w.Activity, w.DurationMin, w.CaloriesBurned, w.Intensity, s.now().UnixNano())
	if err != nil {
		return "", mapErr(fmt.Errorf("insert workout: %w", err))
	}
	return domain.RecordID(id), nil
}

func (s *Store) CreateWater(ctx context.Context, userID domain.UserID, date time.Time, w domain.WaterPayload) (domain.RecordID, error) {
	id := newID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO water (id, user_id, date, amount_ml, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, string(userID), domain.DateKey(date), w.AmountML, s.now().UnixNano())
	if err != nil {
		return "", mapErr(fmt.Errorf("insert water: %w", err))
	}
	return domain.RecordID(id), nil
}

func (s *Store) CreateRecipe(ctx context.Context, userID domain.UserID, r domain.RecipePayload) (domain.RecordID, error) {
	data, err := json.Marshal(r.Recipe)
	if err != nil {
		return "", fmt.Errorf("encode recipe: %w", err)
	}

	id := newID()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recipes (id, user_id, name, data, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, string(userID), r.Recipe.Name, string(data), s.now().UnixNano())
	if err != nil {
		return "", mapErr(fmt.Errorf("insert recipe: %w", err))
	}
	return domain.RecordID(id), nil
}

// Recipes lists the recipes saved by userID, oldest first.
func (s *Store) Recipes(ctx context.Context, userID domain.UserID) ([]domain.RecipeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data, created_at FROM recipes
		WHERE user_id = ?
		ORDER BY created_at, id`, string(userID))
	if err != nil {
		return nil, mapErr(fmt.Errorf("list recipes: %w", err))
	}
	defer rows.Close()

	var out []domain.RecipeRecord
	for rows.Next() {
		var (
			id, data string
			created  int64
		)
		if err := rows.Scan(&id, &data, &created); err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		rec := domain.RecipeRecord{
			ID:        domain.RecordID(id),
			UserID:    userID,
			CreatedAt: time.Unix(0, created),
		}
		if err := json.Unmarshal([]byte(data), &rec.Recipe); err != nil {
			return nil, fmt.Errorf("decode recipe %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SetProfile creates or replaces the profile of p.UserID.
func (s *Store) SetProfile(ctx context.Context, p domain.UserProfile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(p.UserID), string(data), s.now().UnixNano())
	return mapErr(err)
}

func (s *Store) Profile(ctx context.Context, userID domain.UserID) (*domain.UserProfile, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM profiles WHERE user_id = ?`, string(userID)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mapErr(fmt.Errorf("get profile: %w", err))
	}

	var p domain.UserProfile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// DailyAggregate sums the records filed under date.
func (s *Store) DailyAggregate(ctx context.Context, userID domain.UserID, date time.Time) (*domain.DailyAggregate, error) {
	key := domain.DateKey(date)
	agg := &domain.DailyAggregate{Date: key}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(calories), 0), COALESCE(SUM(protein_g), 0),
		       COALESCE(SUM(carbs_g), 0), COALESCE(SUM(fat_g), 0)
		FROM meals WHERE user_id = ? AND date = ?`, string(userID), key,
	).Scan(&agg.Meals, &agg.CaloriesConsumed, &agg.ProteinG, &agg.CarbsG, &agg.FatG)
	if err != nil {
		return nil, mapErr(fmt.Errorf("aggregate meals: %w", err))
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(calories_burned), 0)
		FROM workouts WHERE user_id = ? AND date = ?`, string(userID), key,
	).Scan(&agg.Workouts, &agg.CaloriesBurned)
	if err != nil {
		return nil, mapErr(fmt.Errorf("aggregate workouts: %w", err))
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_ml), 0)
		FROM water WHERE user_id = ? AND date = ?`, string(userID), key,
	).Scan(&agg.WaterML)
	if err != nil {
		return nil, mapErr(fmt.Errorf("aggregate water: %w", err))
	}

	return agg, nil
}
