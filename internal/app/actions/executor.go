package actions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/PabloGalante/nutria-agent/internal/domain"
	"github.com/PabloGalante/nutria-agent/internal/observability"
)

// Executor applies action proposals to the domain stores. It never touches
// caches: the affected keys are returned for the caller to invalidate.
type Executor struct {
	handlers map[domain.ActionType]Handler
}

// NewExecutor wires the default handlers against one health store.
func NewExecutor(store domain.HealthStore) *Executor {
	return NewExecutorWith(
		NewMealHandler(store),
		NewWorkoutHandler(store),
		NewWaterHandler(store),
		NewRecipeHandler(store),
	)
}

// NewExecutorWith builds an executor from explicit handlers.
func NewExecutorWith(handlers ...Handler) *Executor {
	e := &Executor{handlers: make(map[domain.ActionType]Handler, len(handlers))}
	for _, h := range handlers {
		e.handlers[h.Type()] = h
	}
	return e
}

// Execute runs p for userID on the given effective date.
func (e *Executor) Execute(
	ctx context.Context,
	p domain.ActionProposal,
	userID domain.UserID,
	date time.Time,
) (domain.ExecutionResult, error) {
	log := observability.LoggerFromContext(ctx).With(
		"user_id", userID,
		"action_type", p.Type,
	)

	switch p.Type {
	case domain.ActionNone, domain.ActionGenerateRecipe:
		// display-only: nothing is mutated until the recipe is saved
		return domain.ExecutionResult{Success: true}, nil
	}

	h, ok := e.handlers[p.Type]
	if !ok {
		observability.ActionsExecuted.WithLabelValues(string(p.Type), "error").Inc()
		return domain.ExecutionResult{}, domain.NewError(domain.CodeExecution, "no handler for action").
			WithContext("action_type", p.Type)
	}

	start := time.Now()
	out, err := h.Handle(ctx, Call{UserID: userID, Date: date}, p)
	if err != nil {
		observability.ActionsExecuted.WithLabelValues(string(p.Type), "error").Inc()
		log.Error("action store unreachable", "error", err)
		return domain.ExecutionResult{}, domain.Wrap(err, domain.CodeExecution, fmt.Sprintf("execute %s", p.Type))
	}

	if !out.Success {
		observability.ActionsExecuted.WithLabelValues(string(p.Type), "failed").Inc()
		log.Warn("action failed", "message", out.Message, "cause", out.cause)
		return domain.ExecutionResult{Success: false, Message: out.Message}, nil
	}

	observability.ActionsExecuted.WithLabelValues(string(p.Type), "success").Inc()
	log.Info("action executed", "elapsed_ms", time.Since(start).Milliseconds())

	return domain.ExecutionResult{
		Success:      true,
		Message:      out.Message,
		AffectedKeys: domain.AffectedKeys(p.Type),
	}, nil
}

// --- internal helpers --- //

// storeFailure splits store errors: unreachable stores propagate, anything
// else becomes a failed outcome.
func storeFailure(err error, what string) (Outcome, error) {
	if errors.Is(err, domain.ErrUnavailable) {
		return Outcome{}, err
	}
	return Outcome{
		Message: fmt.Sprintf("Sorry, I couldn't %s. Please try again.", what),
		cause:   err,
	}, nil
}

func formatAmount(f float64) string {
	if f == math.Trunc(f) {
		return fmt.Sprintf("%.0f", f)
	}
	return fmt.Sprintf("%.1f", f)
}
