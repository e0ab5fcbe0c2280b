// Package handler exposes the exam service over a JSON HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/assessor/internal/exam"
	appI18n "github.com/pavelanni/assessor/internal/i18n"
	"github.com/pavelanni/assessor/internal/model"
)

// maxBodyBytes bounds request bodies; exam drafts are the largest payload.
const maxBodyBytes = 1 << 20

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	svc    *exam.Service
	db     Pinger
	secret []byte
	logger *slog.Logger
}

// New creates a new Handler. Tokens are verified with the HS256 secret.
func New(svc *exam.Service, db Pinger, secret []byte, logger *slog.Logger) (*Handler, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, db: db, secret: secret, logger: logger}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Route("/exams", func(r chi.Router) {
			r.Get("/", h.handleListExams)
			r.Get("/{examID}", h.handleGetExam)
			r.Group(func(r chi.Router) {
				r.Use(h.requireRole(model.UserRoleTeacher, model.UserRoleAdmin))
				r.Post("/", h.handleCreateExam)
				r.Post("/generate", h.handleGenerateExam)
				r.Get("/{examID}/attempts", h.handleExamAttempts)
			})
		})

		r.Route("/attempts", func(r chi.Router) {
			r.Get("/", h.handleUserAttempts)
			r.Post("/start", h.handleStartAttempt)
			r.Post("/{attemptID}/answers", h.handleSaveAnswers)
			r.Post("/{attemptID}/submit", h.handleSubmit)
			r.Get("/{attemptID}/result", h.handleResult)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		h.fail(w, r, http.StatusServiceUnavailable, "ErrInternal", nil)
		return
	}
	h.ok(w, http.StatusOK, map[string]string{"status": "ok"}, "")
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	courseID, ok := h.optionalID(w, r, "course_id")
	if !ok {
		return
	}
	exams, err := h.svc.ListExams(r.Context(), courseID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, exams, "")
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	examID, ok := h.pathID(w, r, "examID")
	if !ok {
		return
	}
	e, err := h.svc.GetExam(r.Context(), examID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if p := model.PrincipalFromContext(r.Context()); p.Role == model.UserRoleStudent {
		e = withoutAnswerKey(e)
	}
	h.ok(w, http.StatusOK, e, "")
}

type startRequest struct {
	ExamID int64 `json:"exam_id"`
}

func (h *Handler) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ExamID <= 0 {
		h.writeError(w, r, &model.ValidationError{Field: "exam_id", Reason: "exam id is required"})
		return
	}
	p := model.PrincipalFromContext(r.Context())
	start, err := h.svc.StartAttempt(r.Context(), p.UserID, req.ExamID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, start, "")
}

type saveAnswersRequest struct {
	Answers []model.AnswerInput `json:"answers"`
}

func (h *Handler) handleSaveAnswers(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := h.pathID(w, r, "attemptID")
	if !ok {
		return
	}
	var req saveAnswersRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := model.PrincipalFromContext(r.Context())
	saved, err := h.svc.SaveAnswers(r.Context(), attemptID, p.UserID, req.Answers)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, saved, appI18n.Tp(r.Context(), "AnswersSaved", len(saved)))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := h.pathID(w, r, "attemptID")
	if !ok {
		return
	}
	p := model.PrincipalFromContext(r.Context())
	res, err := h.svc.SubmitAttempt(r.Context(), attemptID, p.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	msg := appI18n.Td(r.Context(), "AttemptSubmitted", map[string]any{
		"Score": strconv.FormatFloat(res.TotalScore, 'f', -1, 64),
	})
	h.ok(w, http.StatusOK, res, msg)
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	attemptID, ok := h.pathID(w, r, "attemptID")
	if !ok {
		return
	}
	p := model.PrincipalFromContext(r.Context())
	res, err := h.svc.GetAttemptResult(r.Context(), attemptID, p.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res, "")
}

func (h *Handler) handleUserAttempts(w http.ResponseWriter, r *http.Request) {
	examID, ok := h.optionalID(w, r, "exam_id")
	if !ok {
		return
	}
	p := model.PrincipalFromContext(r.Context())
	list, err := h.svc.GetUserAttempts(r.Context(), p.UserID, examID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, list, "")
}

// withoutAnswerKey returns a copy of e with correct options and reference answers removed.
func withoutAnswerKey(e *model.Exam) *model.Exam {
	out := *e
	out.Sections = make([]model.Section, len(e.Sections))
	for i, s := range e.Sections {
		qs := make([]model.Question, len(s.Questions))
		for j, q := range s.Questions {
			q.CorrectTextAnswer = nil
			q.Explanation = nil
			opts := make([]model.Option, len(q.Options))
			for k, o := range q.Options {
				o.IsCorrect = false
				opts[k] = o
			}
			q.Options = opts
			qs[j] = q
		}
		s.Questions = qs
		out.Sections[i] = s
	}
	return &out
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) ok(w http.ResponseWriter, status int, data any, msg string) {
	h.writeJSON(w, status, envelope{Success: true, Data: data, Message: msg})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, msgID string, data map[string]any) {
	h.writeJSON(w, status, envelope{Message: appI18n.Td(r.Context(), msgID, data)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

// writeError maps an error kind to its HTTP status and localized message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		h.fail(w, r, http.StatusBadRequest, "ErrValidation", map[string]any{"Reason": validationReason(err)})
	case errors.Is(err, model.ErrNotFound):
		h.fail(w, r, http.StatusNotFound, "ErrNotFound", nil)
	case errors.Is(err, model.ErrForbidden):
		h.fail(w, r, http.StatusForbidden, "ErrForbidden", nil)
	case errors.Is(err, model.ErrInvalidState):
		reason := strings.TrimSuffix(err.Error(), ": "+model.ErrInvalidState.Error())
		h.fail(w, r, http.StatusConflict, "ErrInvalidState", map[string]any{"Reason": reason})
	case errors.Is(err, model.ErrExternalService):
		h.logger.Warn("external service failed", "path", r.URL.Path, "error", err)
		h.fail(w, r, http.StatusBadGateway, "ErrAIUnavailable", nil)
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.fail(w, r, http.StatusInternalServerError, "ErrInternal", nil)
	}
}

func validationReason(err error) string {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return err.Error()
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		h.logger.Debug("bad request body", "path", r.URL.Path, "error", err)
		h.fail(w, r, http.StatusBadRequest, "ErrBadRequest", nil)
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, r, &model.ValidationError{Field: name, Reason: fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return id, true
}

func (h *Handler) optionalID(w http.ResponseWriter, r *http.Request, name string) (*int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, r, &model.ValidationError{Field: name, Reason: fmt.Sprintf("invalid %s", name)})
		return nil, false
	}
	return &id, true
}
