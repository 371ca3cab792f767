// Package handler exposes the form engine over HTTP. Route registration
// splits into user routes (owner-authenticated) and admin routes; the
// router decides which middleware guards each group.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"taxfile/internal/form/models"
	"taxfile/internal/form/service"
	"taxfile/internal/transport/http/shared"
	id "taxfile/pkg/domain"
	dErrors "taxfile/pkg/domain-errors"
)

// Service is the slice of the form service the handlers consume.
type Service interface {
	SaveAnswers(ctx context.Context, filingID id.FilingID, raw map[string]any) (*service.SaveResult, error)
	GetForm(ctx context.Context, filingID id.FilingID) (*service.FormView, error)
	Submit(ctx context.Context, filingID id.FilingID) (*models.Form, error)
	Unlock(ctx context.Context, formID id.FormID, reason string) (*models.Form, error)
	DeleteForm(ctx context.Context, formID id.FormID) error

	RequiredDocuments(ctx context.Context, filingID id.FilingID) ([]service.DocumentRequirement, error)
	RegisterDocument(ctx context.Context, filingID id.FilingID, slot, fileName string) (*models.DocumentMetadata, error)
	ReplaceDocument(ctx context.Context, docID id.DocumentID, fileName string) (*models.DocumentMetadata, error)
	ApproveDocument(ctx context.Context, docID id.DocumentID) (*models.DocumentMetadata, error)
	RejectDocument(ctx context.Context, docID id.DocumentID, reason string) (*models.DocumentMetadata, error)
	ReviewSection(ctx context.Context, formID id.FormID, stepID, sectionID, notes string) error
}

// Handler wires the form service into chi routes.
type Handler struct {
	svc    Service
	logger *slog.Logger
	// saveLimiter bounds the autosave route only; reads and submits are
	// not rate limited.
	saveLimiter func(http.Handler) http.Handler
}

type Option func(h *Handler)

// WithSaveLimiter installs a middleware on the answer-save route.
func WithSaveLimiter(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.saveLimiter = mw }
}

func New(svc Service, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterUserRoutes mounts the owner-facing routes.
func (h *Handler) RegisterUserRoutes(r chi.Router) {
	r.Route("/filings/{filingID}/form", func(r chi.Router) {
		r.Get("/", h.handleGetForm)
		if h.saveLimiter != nil {
			r.With(h.saveLimiter).Put("/answers", h.handleSaveAnswers)
		} else {
			r.Put("/answers", h.handleSaveAnswers)
		}
		r.Post("/submit", h.handleSubmit)
		r.Get("/documents", h.handleRequiredDocuments)
		r.Post("/documents", h.handleRegisterDocument)
	})
	r.Put("/documents/{documentID}", h.handleReplaceDocument)
	r.Delete("/forms/{formID}", h.handleDeleteForm)
}

// RegisterAdminRoutes mounts the admin routes; the caller wraps them in
// the admin guard.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/forms/{formID}/unlock", h.handleUnlock)
	r.Post("/forms/{formID}/sections/review", h.handleReviewSection)
	r.Post("/documents/{documentID}/approve", h.handleApproveDocument)
	r.Post("/documents/{documentID}/reject", h.handleRejectDocument)
}

func (h *Handler) handleSaveAnswers(w http.ResponseWriter, r *http.Request) {
	filingID, err := id.ParseFilingID(chi.URLParam(r, "filingID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req SaveAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.svc.SaveAnswers(r.Context(), filingID, req.Answers)
	if err != nil {
		h.writeServiceError(w, r, "save answers", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, SaveAnswersResponse{
		Form:                 toFormResponse(result.Form, true),
		SavedFields:          result.Saved,
		CompletionPercentage: result.Completion,
	})
}

func (h *Handler) handleGetForm(w http.ResponseWriter, r *http.Request) {
	filingID, err := id.ParseFilingID(chi.URLParam(r, "filingID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	view, err := h.svc.GetForm(r.Context(), filingID)
	if err != nil {
		h.writeServiceError(w, r, "get form", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toFormViewResponse(view))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	filingID, err := id.ParseFilingID(chi.URLParam(r, "filingID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	form, err := h.svc.Submit(r.Context(), filingID)
	if err != nil {
		h.writeServiceError(w, r, "submit form", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toFormResponse(form, true))
}

func (h *Handler) handleRequiredDocuments(w http.ResponseWriter, r *http.Request) {
	filingID, err := id.ParseFilingID(chi.URLParam(r, "filingID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	reqs, err := h.svc.RequiredDocuments(r.Context(), filingID)
	if err != nil {
		h.writeServiceError(w, r, "derive documents", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"requiredDocuments": toRequirementResponses(reqs),
	})
}

func (h *Handler) handleRegisterDocument(w http.ResponseWriter, r *http.Request) {
	filingID, err := id.ParseFilingID(chi.URLParam(r, "filingID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req RegisterDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	doc, err := h.svc.RegisterDocument(r.Context(), filingID, req.Slot, req.FileName)
	if err != nil {
		h.writeServiceError(w, r, "register document", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (h *Handler) handleReplaceDocument(w http.ResponseWriter, r *http.Request) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req ReplaceDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	doc, err := h.svc.ReplaceDocument(r.Context(), docID, req.FileName)
	if err != nil {
		h.writeServiceError(w, r, "replace document", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	formID, err := id.ParseFormID(chi.URLParam(r, "formID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.DeleteForm(r.Context(), formID); err != nil {
		h.writeServiceError(w, r, "delete form", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnlock(w http.ResponseWriter, r *http.Request) {
	formID, err := id.ParseFormID(chi.URLParam(r, "formID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	form, err := h.svc.Unlock(r.Context(), formID, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, "unlock form", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toFormResponse(form, true))
}

func (h *Handler) handleReviewSection(w http.ResponseWriter, r *http.Request) {
	formID, err := id.ParseFormID(chi.URLParam(r, "formID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req ReviewSectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.svc.ReviewSection(r.Context(), formID, req.StepID, req.SectionID, req.Notes); err != nil {
		h.writeServiceError(w, r, "review section", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleApproveDocument(w http.ResponseWriter, r *http.Request) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	doc, err := h.svc.ApproveDocument(r.Context(), docID)
	if err != nil {
		h.writeServiceError(w, r, "approve document", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) handleRejectDocument(w http.ResponseWriter, r *http.Request) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req RejectDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	doc, err := h.svc.RejectDocument(r.Context(), docID, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, "reject document", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// writeServiceError logs unexpected failures and renders the coded error.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(r.Context(), "operation failed", "op", op, "error", err)
	}
	shared.WriteError(w, err)
}
