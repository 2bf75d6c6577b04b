package actions

import (
	"context"
	"time"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// Call brings the metadata of an execution to the handler.
type Call struct {
	UserID domain.UserID
	Date   time.Time
}

// Handler applies one action variant to its domain store.
// A failed mutation is reported through Outcome; a returned error means the
// store could not be reached.
type Handler interface {
	Type() domain.ActionType
	Handle(ctx context.Context, call Call, p domain.ActionProposal) (Outcome, error)
}

// Outcome is what a handler reports before affected keys are attached.
type Outcome struct {
	Success bool
	Message string

	cause error
}
