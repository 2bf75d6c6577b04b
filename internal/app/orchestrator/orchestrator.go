package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/PabloGalante/nutria-agent/internal/domain"
	"github.com/PabloGalante/nutria-agent/internal/observability"
)

// Apology is appended by callers when a turn fails to generate.
const Apology = "Sorry, I couldn't come up with an answer just now. Please try again."

// TurnInput is what one turn is generated from.
type TurnInput struct {
	UserID  domain.UserID
	History []domain.Message
	Profile *domain.UserProfile
	Daily   *domain.DailyAggregate
	Image   *domain.ImageRef
	Now     time.Time
}

// Reply is the validated outcome of a turn. Action is nil when nothing is
// proposed.
type Reply struct {
	Message string
	Action  *domain.ActionProposal
}

// turn is threaded through the stages.
type turn struct {
	in    TurnInput
	raw   *domain.GenerationReply
	reply *Reply
}

// Stage is one step of the turn pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, t *turn) error
}

// Orchestrator runs the turn stages in sequence. It only reads domain data.
type Orchestrator struct {
	stages []Stage
}

// New constructs the default pipeline: gather -> generate -> review.
// ctxProvider may be nil, in which case the input snapshots are used as-is.
func New(gen domain.Generator, ctxProvider domain.ContextProvider) *Orchestrator {
	return &Orchestrator{
		stages: []Stage{
			newGatherStage(ctxProvider),
			newGenerateStage(gen),
			newReviewStage(),
		},
	}
}

// Run produces the assistant reply for one turn. Every failure is a
// GENERATION error carrying the apology as its user message.
func (o *Orchestrator) Run(ctx context.Context, in TurnInput) (*Reply, error) {
	if len(o.stages) == 0 {
		return nil, fmt.Errorf("no stages configured in orchestrator")
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	log := observability.LoggerFromContext(ctx).With(
		"user_id", in.UserID,
		"history_len", len(in.History),
	)
	log.Debug("turn started", "stages", len(o.stages))

	t := &turn{in: in}
	for _, st := range o.stages {
		start := time.Now()

		if err := st.Run(ctx, t); err != nil {
			observability.TurnsTotal.WithLabelValues("error").Inc()
			log.Error("turn stage failed", "stage", st.Name(), "error", err)
			return nil, asGenerationError(st.Name(), err)
		}

		log.Debug("turn stage end", "stage", st.Name(), "elapsed_ms", time.Since(start).Milliseconds())
	}

	outcome := "no_action"
	if t.reply.Action != nil {
		outcome = string(t.reply.Action.Type)
	}
	observability.TurnsTotal.WithLabelValues(outcome).Inc()
	log.Info("turn end", "outcome", outcome)

	return t.reply, nil
}

func asGenerationError(stage string, err error) error {
	if domain.IsCode(err, domain.CodeGeneration) {
		return err
	}
	e := domain.NewError(domain.CodeGeneration, "turn generation failed").
		WithContext("stage", stage).
		WithUserMessage(Apology)
	e.Underlying = err
	return e
}
