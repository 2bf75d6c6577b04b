package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/PabloGalante/nutria-agent/internal/domain"
	"github.com/PabloGalante/nutria-agent/internal/observability"
)

var errEmptyReply = errors.New("generator returned no reply")

type generateStage struct {
	gen domain.Generator
}

func newGenerateStage(gen domain.Generator) *generateStage {
	return &generateStage{gen: gen}
}

func (s *generateStage) Name() string {
	return "generate"
}

func (s *generateStage) Run(ctx context.Context, t *turn) error {
	if s.gen == nil {
		return domain.ErrUnavailable
	}

	start := time.Now()
	raw, err := s.gen.GenerateTurn(ctx, domain.GenerationRequest{
		UserID:  t.in.UserID,
		History: t.in.History,
		Profile: t.in.Profile,
		Daily:   t.in.Daily,
		Image:   t.in.Image,
		Now:     t.in.Now,
	})
	observability.GenerationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	if raw == nil {
		return errEmptyReply
	}

	t.raw = raw
	return nil
}
