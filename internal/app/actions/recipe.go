package actions

import (
	"context"
	"fmt"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// RecipeHandler saves recipes. It only handles save_recipe: a generated
// recipe is saved after the user confirms it.
type RecipeHandler struct {
	store domain.RecipeStore
}

func NewRecipeHandler(store domain.RecipeStore) *RecipeHandler {
	return &RecipeHandler{store: store}
}

func (h *RecipeHandler) Type() domain.ActionType {
	return domain.ActionSaveRecipe
}

func (h *RecipeHandler) Handle(ctx context.Context, call Call, p domain.ActionProposal) (Outcome, error) {
	if p.Recipe == nil {
		return Outcome{Message: "I couldn't save that recipe because it was empty."}, nil
	}

	if _, err := h.store.CreateRecipe(ctx, call.UserID, *p.Recipe); err != nil {
		return storeFailure(err, "save the recipe")
	}

	return Outcome{
		Success: true,
		Message: fmt.Sprintf("Saved %q to your recipes.", p.Recipe.Recipe.Name),
	}, nil
}
