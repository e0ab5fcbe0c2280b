package handler

import (
	"net/http"

	"github.com/pavelanni/assessor/internal/model"
)

// Teacher and admin endpoints.

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var draft model.ExamDraft
	if !h.decode(w, r, &draft) {
		return
	}
	p := model.PrincipalFromContext(r.Context())
	e, err := h.svc.CreateExam(r.Context(), p.UserID, draft)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, e, "")
}

func (h *Handler) handleGenerateExam(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateRequest
	if !h.decode(w, r, &req) {
		return
	}
	draft, err := h.svc.GenerateDraft(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("generated exam draft", "title", draft.Title, "sections", len(draft.Sections))
	h.ok(w, http.StatusOK, draft, "")
}

func (h *Handler) handleExamAttempts(w http.ResponseWriter, r *http.Request) {
	examID, ok := h.pathID(w, r, "examID")
	if !ok {
		return
	}
	p := model.PrincipalFromContext(r.Context())
	res, err := h.svc.ExamAttempts(r.Context(), examID, p.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, res, "")
}
