package orchestrator

import (
	"context"

	"github.com/PabloGalante/nutria-agent/internal/domain"
	"github.com/PabloGalante/nutria-agent/internal/observability"
)

// gatherStage fills in the profile and daily snapshots the caller did not
// supply. Missing context is not fatal: the turn goes on without it.
type gatherStage struct {
	provider domain.ContextProvider
}

func newGatherStage(provider domain.ContextProvider) *gatherStage {
	return &gatherStage{provider: provider}
}

func (s *gatherStage) Name() string {
	return "gather"
}

func (s *gatherStage) Run(ctx context.Context, t *turn) error {
	if s.provider == nil {
		return nil
	}
	log := observability.LoggerFromContext(ctx).With("stage", s.Name())

	if t.in.Profile == nil {
		p, err := s.provider.Profile(ctx, t.in.UserID)
		if err != nil {
			log.Warn("profile unavailable", "error", err)
		} else {
			t.in.Profile = p
		}
	}

	if t.in.Daily == nil {
		d, err := s.provider.DailyAggregate(ctx, t.in.UserID, t.in.Now)
		if err != nil {
			log.Warn("daily aggregate unavailable", "error", err)
		} else {
			t.in.Daily = d
		}
	}

	return nil
}
