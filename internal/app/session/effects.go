package session

import (
	"time"

	"github.com/PabloGalante/nutria-agent/internal/app/orchestrator"
	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// Effect is work Reduce asks the runtime to start.
type Effect interface {
	isEffect()
}

// Generate runs the orchestrator for Turn.
type Generate struct {
	Turn  uint64
	Input orchestrator.TurnInput
}

// Reveal starts the typing presenter on Text.
type Reveal struct {
	Turn uint64
	Text string
}

// Execute applies Proposal on behalf of MessageID, dated At.
type Execute struct {
	MessageID domain.MessageID
	Proposal  domain.ActionProposal
	At        time.Time
}

// Invalidate drops cached aggregates after a successful mutation.
type Invalidate struct {
	Keys []domain.CacheKey
}

// Persist schedules a debounced save of the committed history.
type Persist struct {
	Messages []domain.Message
}

// RebindPersistence drops pending saves and binds future saves to
// ConversationID (empty for a conversation not yet written).
type RebindPersistence struct {
	ConversationID domain.ConversationID
}

func (Generate) isEffect()          {}
func (Reveal) isEffect()            {}
func (Execute) isEffect()           {}
func (Invalidate) isEffect()        {}
func (Persist) isEffect()           {}
func (RebindPersistence) isEffect() {}
