package actions

import (
	"context"
	"fmt"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

type WorkoutHandler struct {
	store domain.WorkoutStore
}

func NewWorkoutHandler(store domain.WorkoutStore) *WorkoutHandler {
	return &WorkoutHandler{store: store}
}

func (h *WorkoutHandler) Type() domain.ActionType {
	return domain.ActionLogWorkout
}

func (h *WorkoutHandler) Handle(ctx context.Context, call Call, p domain.ActionProposal) (Outcome, error) {
	if p.Workout == nil {
		return Outcome{Message: "I couldn't log that workout because its details were missing."}, nil
	}

	if _, err := h.store.CreateWorkout(ctx, call.UserID, call.Date, *p.Workout); err != nil {
		return storeFailure(err, "log your workout")
	}

	w := p.Workout
	msg := fmt.Sprintf("Logged %s", w.Activity)
	if w.DurationMin > 0 {
		msg += fmt.Sprintf(" for %s min", formatAmount(w.DurationMin))
	}
	if w.CaloriesBurned > 0 {
		msg += fmt.Sprintf(" (%s kcal burned)", formatAmount(w.CaloriesBurned))
	}
	return Outcome{Success: true, Message: msg + "."}, nil
}
