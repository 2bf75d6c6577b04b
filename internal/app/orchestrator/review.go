package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

var errEmptyMessage = errors.New("generator returned an empty message")

// reviewStage rejects malformed replies and normalizes the proposal:
// a none action becomes no action, and generated recipes always wait for
// the user before anything is saved.
type reviewStage struct{}

func newReviewStage() *reviewStage {
	return &reviewStage{}
}

func (s *reviewStage) Name() string {
	return "review"
}

func (s *reviewStage) Run(_ context.Context, t *turn) error {
	if t.raw == nil {
		return errEmptyReply
	}

	msg := strings.TrimSpace(t.raw.Message)
	if msg == "" {
		return errEmptyMessage
	}

	reply := &Reply{Message: msg}

	if a := t.raw.Action; a != nil && a.Type != domain.ActionNone {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("malformed action: %w", err)
		}
		action := *a
		if action.Type == domain.ActionGenerateRecipe {
			action.RequiresConfirmation = true
		}
		reply.Action = &action
	}

	t.reply = reply
	return nil
}
