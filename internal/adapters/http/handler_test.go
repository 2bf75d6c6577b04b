package httpadapter_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/nutria-agent/internal/adapters/cache"
	httpadapter "github.com/PabloGalante/nutria-agent/internal/adapters/http"
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

func newTestServer(t *testing.T) (http.Handler, *memory.HealthStore) {
	t.Helper()

	health := memory.NewHealthStore()
	mock := llm.NewMockLLM()
	c := cache.NewMemory(health)

	svc := conversation.NewService(session.Deps{
		Turns:       orchestrator.New(mock, c),
		Executor:    actions.NewExecutor(health),
		Invalidator: c,
		Store:       memory.NewConversationStore(),
		Transcriber: mock,
		Images:      capture.NewImageAnalyzer(mock),
		Presenter:   typing.NewPresenter(typing.ClockScheduler{}, typing.DefaultCadence().Scaled(0)),
		SaveOptions: persistence.Options{
			QuietPeriod: 5 * time.Millisecond,
			Backoff:     time.Millisecond,
		},
	})
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	return httpadapter.NewServer(svc), health
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createSession(t *testing.T, srv http.Handler, user string) session.View {
	t.Helper()
	w := do(t, srv, http.MethodPost, "/sessions", `{"user_id":"`+user+`"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[session.View](t, w)
}

// waitStatus polls the session until it is idle and its last message has status.
func waitStatus(t *testing.T, srv http.Handler, sid domain.SessionID, user, status string) session.View {
	t.Helper()
	var view session.View
	require.Eventually(t, func() bool {
		w := do(t, srv, http.MethodGet, "/sessions/"+string(sid)+"?user_id="+user, "")
		if w.Code != http.StatusOK {
			return false
		}
		v := decode[session.View](t, w)
		last, ok := v.Last()
		if v.Busy || v.Streaming != nil || !ok || last.Role != domain.RoleAssistant {
			return false
		}
		view = v
		return v.Status(last.ID) == status
	}, 2*time.Second, 10*time.Millisecond)
	return view
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestCreateSessionAndSendMessage(t *testing.T) {
	srv, health := newTestServer(t)
	view := createSession(t, srv, "test-user")
	require.Len(t, view.Messages, 1)
	assert.Equal(t, session.SeedGreeting, view.Messages[0].Content)

	w := do(t, srv, http.MethodPost, "/sessions/"+string(view.SessionID)+"/messages",
		`{"user_id":"test-user","text":"I ate 2 eggs"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var sent struct {
		MessageID string       `json:"message_id"`
		Session   session.View `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sent))
	assert.NotEmpty(t, sent.MessageID)

	final := waitStatus(t, srv, view.SessionID, "test-user", "executed")
	require.Len(t, final.Messages, 3)
	assert.Equal(t, domain.MessageID(sent.MessageID), final.Messages[1].ID)
	assert.Len(t, health.Meals("test-user"), 1)
}

func TestConfirmAndCancel(t *testing.T) {
	srv, health := newTestServer(t)
	view := createSession(t, srv, "u1")
	base := "/sessions/" + string(view.SessionID)

	w := do(t, srv, http.MethodPost, base+"/messages", `{"user_id":"u1","text":"pizza?"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	proposal, _ := waitStatus(t, srv, view.SessionID, "u1", "proposed_needs_confirm").Last()

	w = do(t, srv, http.MethodPost, base+"/messages/"+string(proposal.ID)+"/cancel", `{"user_id":"u1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	after := decode[session.View](t, w)
	assert.Equal(t, "cancelled", after.Status(proposal.ID))
	assert.Empty(t, health.Meals("u1"))

	w = do(t, srv, http.MethodPost, base+"/messages", `{"user_id":"u1","text":"suggest a recipe"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	recipe, _ := waitStatus(t, srv, view.SessionID, "u1", "proposed_needs_confirm").Last()

	// the user may also come from the query string
	w = do(t, srv, http.MethodPost, base+"/messages/"+string(recipe.ID)+"/confirm?user_id=u1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Eventually(t, func() bool {
		return len(health.Recipes("u1")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAudioUploadFillsComposer(t *testing.T) {
	srv, _ := newTestServer(t)
	view := createSession(t, srv, "u1")

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+string(view.SessionID)+"/audio?user_id=u1",
		strings.NewReader("I drank 500 ml of water"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got struct {
		Text    string       `json:"text"`
		Session session.View `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "I drank 500 ml of water", got.Text)
	assert.Equal(t, got.Text, got.Session.Composer)

	// empty body is rejected before the session is touched
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+string(view.SessionID)+"/audio?user_id=u1", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImageUploadFillsComposer(t *testing.T) {
	srv, _ := newTestServer(t)
	view := createSession(t, srv, "u1")

	w := do(t, srv, http.MethodPost, "/sessions/"+string(view.SessionID)+"/image",
		`{"user_id":"u1","url":"https://example.com/lunch.jpg"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got struct {
		Text    string       `json:"text"`
		Session session.View `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Contains(t, got.Text, "grilled chicken")
	assert.True(t, got.Session.ComposerImage)
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newTestServer(t)
	view := createSession(t, srv, "u1")
	base := "/sessions/" + string(view.SessionID)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"missing user on create", http.MethodPost, "/sessions", `{}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"broken JSON", http.MethodPost, "/sessions", `{`, http.StatusBadRequest, "INVALID_INPUT"},
		{"blank text", http.MethodPost, base + "/messages", `{"user_id":"u1","text":"  "}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"missing user on snapshot", http.MethodGet, base, "", http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown session", http.MethodGet, "/sessions/nope?user_id=u1", "", http.StatusNotFound, "NOT_FOUND"},
		{"other user's session", http.MethodGet, base + "?user_id=u2", "", http.StatusNotFound, "NOT_FOUND"},
		{"unknown conversation", http.MethodGet, "/conversations/nope?user_id=u1", "", http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			got := decode[map[string]string](t, w)
			assert.Equal(t, tt.code, got["error"])
			assert.NotEmpty(t, got["message"])
		})
	}
}

func TestConversationsListAndDelete(t *testing.T) {
	srv, _ := newTestServer(t)
	view := createSession(t, srv, "u1")
	base := "/sessions/" + string(view.SessionID)

	w := do(t, srv, http.MethodGet, "/conversations?user_id=u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	empty := decode[map[string][]domain.ConversationSummary](t, w)
	require.NotNil(t, empty["conversations"])
	assert.Empty(t, empty["conversations"])

	w = do(t, srv, http.MethodPost, base+"/messages", `{"user_id":"u1","text":"drank 2 glasses of water"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	waitStatus(t, srv, view.SessionID, "u1", "executed")

	var list []domain.ConversationSummary
	require.Eventually(t, func() bool {
		w := do(t, srv, http.MethodGet, "/conversations?user_id=u1", "")
		list = decode[map[string][]domain.ConversationSummary](t, w)["conversations"]
		return len(list) == 1 && list[0].MessageCount == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "drank 2 glasses of water", list[0].Title)

	w = do(t, srv, http.MethodGet, "/conversations/"+string(list[0].ID)+"?user_id=u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	conv := decode[domain.Conversation](t, w)
	assert.Len(t, conv.Messages, 3)

	w = do(t, srv, http.MethodDelete, "/conversations/"+string(list[0].ID)+"?user_id=u2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodDelete, "/conversations/"+string(list[0].ID)+"?user_id=u1", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, srv, http.MethodGet, base+"?user_id=u1", "")
	reset := decode[session.View](t, w)
	assert.Empty(t, reset.ConversationID)
	assert.Len(t, reset.Messages, 1)
}

func TestCloseSession(t *testing.T) {
	srv, _ := newTestServer(t)
	view := createSession(t, srv, "u1")

	w := do(t, srv, http.MethodDelete, "/sessions/"+string(view.SessionID)+"?user_id=u1", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, srv, http.MethodGet, "/sessions/"+string(view.SessionID)+"?user_id=u1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, srv, http.MethodGet, "/healthz", "")

	w := do(t, srv, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "nutria_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	w := do(t, srv, http.MethodOptions, "/sessions", "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
