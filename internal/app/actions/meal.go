package actions

import (
	"context"
	"fmt"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// MealHandler logs meals through a domain.MealStore.
type MealHandler struct {
	store domain.MealStore
}

func NewMealHandler(store domain.MealStore) *MealHandler {
	return &MealHandler{store: store}
}

func (h *MealHandler) Type() domain.ActionType {
	return domain.ActionLogMeal
}

func (h *MealHandler) Handle(ctx context.Context, call Call, p domain.ActionProposal) (Outcome, error) {
	if p.Meal == nil {
		return Outcome{Message: "I couldn't log that meal because its details were missing."}, nil
	}

	if _, err := h.store.CreateMeal(ctx, call.UserID, call.Date, *p.Meal); err != nil {
		return storeFailure(err, "log your meal")
	}

	return Outcome{
		Success: true,
		Message: fmt.Sprintf("Logged %s (%s kcal).", p.Meal.Name, formatAmount(p.Meal.Calories)),
	}, nil
}
