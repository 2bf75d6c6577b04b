package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PabloGalante/nutria-agent/internal/adapters/device"
	"github.com/PabloGalante/nutria-agent/internal/app/conversation"
	"github.com/PabloGalante/nutria-agent/internal/app/session"
	"github.com/PabloGalante/nutria-agent/internal/domain"
	"github.com/PabloGalante/nutria-agent/internal/observability"
)

// maxUploadBytes bounds audio and image request bodies.
const maxUploadBytes = 20 << 20

type Server struct {
	svc *conversation.Service
}

func NewServer(svc *conversation.Service) http.Handler {
	s := &Server{svc: svc}

	router := chi.NewRouter()
	router.Use(withRequestID)
	router.Use(withLogging)
	router.Use(withCORS)

	router.Get("/healthz", s.handleHealthz)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleCloseSession)
			r.Post("/messages", s.handleSendMessage)
			r.Post("/messages/{messageID}/confirm", s.handleConfirm)
			r.Post("/messages/{messageID}/cancel", s.handleCancel)
			r.Post("/image", s.handleImage)
			r.Post("/audio", s.handleAudio)
		})
	})

	router.Route("/conversations", func(r chi.Router) {
		r.Get("/", s.handleListConversations)
		r.Get("/{conversationID}", s.handleGetConversation)
		r.Delete("/{conversationID}", s.handleDeleteConversation)
	})

	return router
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createSessionRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type sendMessageRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	MessageID string       `json:"message_id"`
	Session   session.View `json:"session"`
}

type userRequest struct {
	UserID string `json:"user_id"`
}

type imageRequest struct {
	UserID   string `json:"user_id"`
	URL      string `json:"url,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"` // base64 in JSON
}

type composedResponse struct {
	Text    string       `json:"text"`
	Session session.View `json:"session"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ─────────────────────────────────────────────
// Session handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	view, err := s.svc.StartSession(r.Context(), conversation.StartSessionInput{
		UserID:         domain.UserID(req.UserID),
		ConversationID: domain.ConversationID(req.ConversationID),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Snapshot(r.Context(), sessionID(r), queryUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.CloseSession(r.Context(), sessionID(r), queryUser(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSendMessage starts a turn and answers before the reply exists.
// Clients poll GET /sessions/{id} to follow the reveal.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	id, err := s.svc.Send(r.Context(), conversation.SendInput{
		SessionID: sessionID(r),
		UserID:    domain.UserID(req.UserID),
		Text:      req.Text,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.svc.Snapshot(r.Context(), sessionID(r), domain.UserID(req.UserID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sendMessageResponse{MessageID: string(id), Session: view})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, s.svc.Confirm)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.handleDecision(w, r, s.svc.Cancel)
}

func (s *Server) handleDecision(
	w http.ResponseWriter,
	r *http.Request,
	decide func(context.Context, domain.SessionID, domain.UserID, domain.MessageID) error,
) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid JSON body")
		return
	}
	userID := domain.UserID(req.UserID)
	if userID == "" {
		userID = queryUser(r)
	}

	messageID := domain.MessageID(chi.URLParam(r, "messageID"))
	if err := decide(r.Context(), sessionID(r), userID, messageID); err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.svc.Snapshot(r.Context(), sessionID(r), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleImage describes the attached photo into the composer.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	userID := domain.UserID(req.UserID)
	text, err := s.svc.AttachImage(r.Context(), sessionID(r), userID, domain.ImageRef{
		URL:      req.URL,
		MIMEType: req.MIMEType,
		Data:     req.Data,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeComposed(w, r, userID, text)
}

// handleAudio transcribes an uploaded recording into the composer. The body
// is either raw audio (its Content-Type is the audio type) or a multipart
// form with an "audio" file.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	audio, mimeType, err := readAudio(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	userID := queryUser(r)
	if v := r.FormValue("user_id"); v != "" {
		userID = domain.UserID(v)
	}

	mic := device.NewStaticMicrophone(audio, mimeType)
	text, err := s.svc.Record(r.Context(), sessionID(r), userID, mic)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeComposed(w, r, userID, text)
}

func readAudio(r *http.Request) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("audio")
		if err != nil {
			return nil, "", errors.New("multipart form needs an audio file")
		}
		defer file.Close()

		audio, err := io.ReadAll(file)
		if err != nil {
			return nil, "", errors.New("could not read audio upload")
		}
		return audio, header.Header.Get("Content-Type"), nil
	}

	audio, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", errors.New("could not read audio body")
	}
	if len(audio) == 0 {
		return nil, "", errors.New("audio body is empty")
	}
	return audio, mediaType, nil
}

func (s *Server) writeComposed(w http.ResponseWriter, r *http.Request, userID domain.UserID, text string) {
	view, err := s.svc.Snapshot(r.Context(), sessionID(r), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, composedResponse{Text: text, Session: view})
}

// ─────────────────────────────────────────────
// Conversation handlers
// ─────────────────────────────────────────────

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListConversations(r.Context(), queryUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.ConversationSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": list})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.svc.GetConversation(r.Context(), queryUser(r), conversationID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteConversation(r.Context(), queryUser(r), conversationID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func sessionID(r *http.Request) domain.SessionID {
	return domain.SessionID(strings.TrimSpace(chi.URLParam(r, "sessionID")))
}

func conversationID(r *http.Request) domain.ConversationID {
	return domain.ConversationID(strings.TrimSpace(chi.URLParam(r, "conversationID")))
}

func queryUser(r *http.Request) domain.UserID {
	return domain.UserID(strings.TrimSpace(r.URL.Query().Get("user_id")))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:   string(domain.CodeInvalidInput),
		Message: msg,
	})
}

// writeError maps a domain error code onto an HTTP status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.GetCode(err)

	status := http.StatusInternalServerError
	switch code {
	case domain.CodeInvalidInput:
		status = http.StatusBadRequest
	case domain.CodeNotFound:
		status = http.StatusNotFound
	case domain.CodeBusy:
		status = http.StatusConflict
	case domain.CodeCapture, domain.CodeTranscription, domain.CodeImageAnalysis:
		status = http.StatusUnprocessableEntity
	}

	msg := domain.UserMessage(err, "")
	if msg == "" {
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		} else {
			msg = err.Error()
		}
	}

	if status == http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: string(code), Message: msg})
}
