package conversation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/nutria-agent/internal/adapters/cache"
	"github.com/PabloGalante/nutria-agent/internal/adapters/device"
	"github.com/PabloGalante/nutria-agent/internal/adapters/llm"
	"github.com/PabloGalante/nutria-agent/internal/adapters/storage/memory"
	"github.com/PabloGalante/nutria-agent/internal/app/actions"
	"github.com/PabloGalante/nutria-agent/internal/app/capture"
	"github.com/PabloGalante/nutria-agent/internal/app/conversation"
	"github.com/PabloGalante/nutria-agent/internal/app/orchestrator"
	"github.com/PabloGalante/nutria-agent/internal/app/persistence"
	"github.com/PabloGalante/nutria-agent/internal/app/session"
	"github.com/PabloGalante/nutria-agent/internal/app/typing"
	"github.com/PabloGalante/nutria-agent/internal/domain"
)

type fixture struct {
	svc    *conversation.Service
	health *memory.HealthStore
	convs  *memory.ConversationStore
	cache  *cache.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	health := memory.NewHealthStore()
	convs := memory.NewConversationStore()
	mock := llm.NewMockLLM()
	c := cache.NewMemory(health)

	svc := conversation.NewService(session.Deps{
		Turns:       orchestrator.New(mock, c),
		Executor:    actions.NewExecutor(health),
		Invalidator: c,
		Store:       convs,
		Transcriber: mock,
		Images:      capture.NewImageAnalyzer(mock),
		Presenter:   typing.NewPresenter(typing.ClockScheduler{}, typing.DefaultCadence().Scaled(0)),
		SaveOptions: persistence.Options{
			QuietPeriod: 5 * time.Millisecond,
			Backoff:     time.Millisecond,
		},
	})
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	return &fixture{svc: svc, health: health, convs: convs, cache: c}
}

func (f *fixture) start(t *testing.T, user domain.UserID) domain.SessionID {
	t.Helper()
	view, err := f.svc.StartSession(context.Background(), conversation.StartSessionInput{UserID: user})
	require.NoError(t, err)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, session.SeedGreeting, view.Messages[0].Content)
	return view.SessionID
}

// settle waits until the session is idle and its last message has status.
func (f *fixture) settle(t *testing.T, sid domain.SessionID, user domain.UserID, status string) session.View {
	t.Helper()
	var view session.View
	require.Eventually(t, func() bool {
		v, err := f.svc.Snapshot(context.Background(), sid, user)
		if err != nil || v.Busy || v.Streaming != nil {
			return false
		}
		last, ok := v.Last()
		if !ok || last.Role != domain.RoleAssistant || v.Status(last.ID) != status {
			return false
		}
		view = v
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return view
}

func TestService_AutoExecMealOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.start(t, "u1")

	_, err := f.svc.Send(ctx, conversation.SendInput{SessionID: sid, UserID: "u1", Text: "I had two eggs and toast"})
	require.NoError(t, err)

	view := f.settle(t, sid, "u1", "executed")
	require.Len(t, view.Messages, 3)
	last, _ := view.Last()
	require.NotNil(t, last.Action)
	assert.Equal(t, domain.ActionLogMeal, last.Action.Type)
	assert.True(t, last.Confirmed)

	meals := f.health.Meals("u1")
	require.Len(t, meals, 1)
	assert.Equal(t, "2 eggs and toast", meals[0].Meal.Name)

	invs := f.cache.Invalidations()
	require.Len(t, invs, 1)
	assert.Equal(t, []domain.CacheKey{domain.CacheMeals, domain.CacheDailyLog}, invs[0].Keys)
}

func TestService_ConfirmRecipeSavesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.start(t, "u1")

	_, err := f.svc.Send(ctx, conversation.SendInput{SessionID: sid, UserID: "u1", Text: "suggest a recipe"})
	require.NoError(t, err)

	view := f.settle(t, sid, "u1", "proposed_needs_confirm")
	proposal, _ := view.Last()
	assert.Empty(t, f.health.Recipes("u1"))

	require.NoError(t, f.svc.Confirm(ctx, sid, "u1", proposal.ID))
	// a second confirm is a no-op
	require.NoError(t, f.svc.Confirm(ctx, sid, "u1", proposal.ID))

	require.Eventually(t, func() bool {
		v, _ := f.svc.Snapshot(ctx, sid, "u1")
		return v.Status(proposal.ID) == "executed" && !v.Busy
	}, 2*time.Second, 5*time.Millisecond)

	require.Len(t, f.health.Recipes("u1"), 1)
	invs := f.cache.Invalidations()
	require.Len(t, invs, 1)
	assert.Contains(t, invs[0].Keys, domain.CacheRecipes)
}

func TestService_CancelNeverExecutes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.start(t, "u1")

	_, err := f.svc.Send(ctx, conversation.SendInput{SessionID: sid, UserID: "u1", Text: "pizza?"})
	require.NoError(t, err)
	view := f.settle(t, sid, "u1", "proposed_needs_confirm")
	proposal, _ := view.Last()

	require.NoError(t, f.svc.Cancel(ctx, sid, "u1", proposal.ID))

	view, err = f.svc.Snapshot(ctx, sid, "u1")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", view.Status(proposal.ID))
	last, _ := view.Last()
	assert.Equal(t, "Okay, I won't log that meal.", last.Content)
	assert.Empty(t, f.health.Meals("u1"))
	assert.Empty(t, f.cache.Invalidations())
}

func TestService_RecordThenSendComposer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.start(t, "u1")

	mic := device.NewStaticMicrophone([]byte("I drank 500 ml of water"), "text/plain")
	text, err := f.svc.Record(ctx, sid, "u1", mic)
	require.NoError(t, err)
	assert.Equal(t, "I drank 500 ml of water", text)

	view, err := f.svc.Snapshot(ctx, sid, "u1")
	require.NoError(t, err)
	assert.Equal(t, text, view.Composer)

	// an empty send takes the composer
	_, err = f.svc.Send(ctx, conversation.SendInput{SessionID: sid, UserID: "u1"})
	require.NoError(t, err)
	f.settle(t, sid, "u1", "executed")

	agg, err := f.health.DailyAggregate(ctx, "u1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 500.0, agg.WaterML)
}

func TestService_PersistResumeAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.start(t, "u1")

	_, err := f.svc.Send(ctx, conversation.SendInput{SessionID: sid, UserID: "u1", Text: "went running for 20 minutes"})
	require.NoError(t, err)
	f.settle(t, sid, "u1", "executed")
	require.NoError(t, f.svc.Flush(ctx, sid, "u1"))

	var convID domain.ConversationID
	require.Eventually(t, func() bool {
		v, _ := f.svc.Snapshot(ctx, sid, "u1")
		convID = v.ConversationID
		return convID != ""
	}, 2*time.Second, 5*time.Millisecond)

	list, err := f.svc.ListConversations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "went running for 20 minutes", list[0].Title)

	resumed, err := f.svc.ResumeSession(ctx, "u1", convID)
	require.NoError(t, err)
	assert.Equal(t, convID, resumed.ConversationID)
	require.Len(t, resumed.Messages, 3)
	last, _ := resumed.Last()
	assert.Equal(t, "executed", resumed.Status(last.ID))

	require.NoError(t, f.svc.DeleteConversation(ctx, "u1", convID))

	// both live sessions bound to it start over
	for _, id := range []domain.SessionID{sid, resumed.SessionID} {
		v, err := f.svc.Snapshot(ctx, id, "u1")
		require.NoError(t, err)
		assert.Empty(t, v.ConversationID)
		require.Len(t, v.Messages, 1)
		assert.Equal(t, session.SeedGreeting, v.Messages[0].Content)
	}

	_, err = f.svc.GetConversation(ctx, "u1", convID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// workouts logged before stay logged
	agg, err := f.health.DailyAggregate(ctx, "u1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Workouts)
}

func TestService_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sid := f.start(t, "u1")

	_, err := f.svc.Snapshot(ctx, sid, "u2")
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))

	_, err = f.svc.Send(ctx, conversation.SendInput{SessionID: sid, UserID: "u2", Text: "hi"})
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))

	_, err = f.svc.Snapshot(ctx, "missing", "u1")
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))

	require.NoError(t, f.svc.CloseSession(ctx, sid, "u1"))
	_, err = f.svc.Snapshot(ctx, sid, "u1")
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
}

func TestService_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, conversation.StartSessionInput{})
	assert.True(t, domain.IsCode(err, domain.CodeInvalidInput))

	_, err = f.svc.ResumeSession(ctx, "u1", "")
	assert.True(t, domain.IsCode(err, domain.CodeInvalidInput))

	_, err = f.svc.ResumeSession(ctx, "u1", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	sid := f.start(t, "u1")
	_, err = f.svc.Send(ctx, conversation.SendInput{SessionID: sid, UserID: "u1", Text: "   "})
	assert.True(t, domain.IsCode(err, domain.CodeInvalidInput))

	// a session is never reachable without naming its user
	_, err = f.svc.Snapshot(ctx, sid, "")
	assert.True(t, domain.IsCode(err, domain.CodeInvalidInput))
	err = f.svc.CloseSession(ctx, sid, "")
	assert.True(t, domain.IsCode(err, domain.CodeInvalidInput))
	_, err = f.svc.Snapshot(ctx, sid, "u1")
	assert.NoError(t, err)
}
