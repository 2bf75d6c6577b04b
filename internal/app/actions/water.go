package actions

import (
	"context"
	"fmt"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

type WaterHandler struct {
	store domain.WaterStore
}

func NewWaterHandler(store domain.WaterStore) *WaterHandler {
	return &WaterHandler{store: store}
}

func (h *WaterHandler) Type() domain.ActionType {
	return domain.ActionLogWater
}

func (h *WaterHandler) Handle(ctx context.Context, call Call, p domain.ActionProposal) (Outcome, error) {
	if p.Water == nil || p.Water.AmountML <= 0 {
		return Outcome{Message: "I couldn't log that water intake because the amount was missing."}, nil
	}

	if _, err := h.store.CreateWater(ctx, call.UserID, call.Date, *p.Water); err != nil {
		return storeFailure(err, "log your water")
	}

	return Outcome{
		Success: true,
		Message: fmt.Sprintf("Logged %s ml of water.", formatAmount(p.Water.AmountML)),
	}, nil
}
