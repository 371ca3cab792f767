package handler

import (
	"time"

	"taxfile/internal/form/models"
	"taxfile/internal/form/service"
)

// FormResponse is the wire shape of a form and its lifecycle state.
type FormResponse struct {
	ID        string `json:"id,omitempty"`
	FilingID  string `json:"filingId"`
	Version   string `json:"version"`
	Status    string `json:"status"`
	IsLocked  bool   `json:"isLocked"`
	Persisted bool   `json:"persisted"`

	CompletionPercentage int `json:"completionPercentage"`

	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
	UnlockedAt   *time.Time `json:"unlockedAt,omitempty"`
	UnlockReason string     `json:"unlockReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FormViewResponse adds answers and progress to the form state.
type FormViewResponse struct {
	FormResponse
	Answers  map[string]any     `json:"answers"`
	Progress []ProgressResponse `json:"progress,omitempty"`
}

// SaveAnswersResponse reports an accepted batch.
type SaveAnswersResponse struct {
	Form                 FormResponse `json:"form"`
	SavedFields          int          `json:"savedFields"`
	CompletionPercentage int          `json:"completionPercentage"`
}

// DocumentResponse is the wire shape of document metadata.
type DocumentResponse struct {
	ID              string     `json:"id"`
	FormID          string     `json:"formId"`
	Slot            string     `json:"slot"`
	FileName        string     `json:"fileName"`
	IsAttached      bool       `json:"isAttached"`
	IsApproved      *bool      `json:"isApproved,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
}

// RequirementResponse is one derived document requirement with its state.
type RequirementResponse struct {
	Slot        string            `json:"slot"`
	Label       string            `json:"label"`
	Conditional bool              `json:"conditional"`
	Status      string            `json:"status"`
	Document    *DocumentResponse `json:"document,omitempty"`
}

// ProgressResponse is one step or section progress row.
type ProgressResponse struct {
	StepID      string     `json:"stepId"`
	SectionID   string     `json:"sectionId,omitempty"`
	IsComplete  bool       `json:"isComplete"`
	IsReviewed  bool       `json:"isReviewed"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
	ReviewNotes string     `json:"reviewNotes,omitempty"`
}

func toFormResponse(form *models.Form, persisted bool) FormResponse {
	resp := FormResponse{
		FilingID:             form.FilingID.String(),
		Version:              form.Version,
		Status:               string(form.Status),
		IsLocked:             form.IsLocked,
		Persisted:            persisted,
		CompletionPercentage: form.CompletionPercentage,
		SubmittedAt:          form.SubmittedAt,
		UnlockedAt:           form.UnlockedAt,
		UnlockReason:         form.UnlockReason,
		CreatedAt:            form.CreatedAt,
		UpdatedAt:            form.UpdatedAt,
	}
	if !form.ID.IsNil() {
		resp.ID = form.ID.String()
	}
	return resp
}

func toFormViewResponse(view *service.FormView) FormViewResponse {
	resp := FormViewResponse{
		FormResponse: toFormResponse(view.Form, view.Persisted),
		Answers:      view.Answers,
	}
	resp.CompletionPercentage = view.Completion
	for _, row := range view.Progress {
		resp.Progress = append(resp.Progress, ProgressResponse{
			StepID:      row.StepID,
			SectionID:   row.SectionID,
			IsComplete:  row.IsComplete,
			IsReviewed:  row.IsReviewed,
			ReviewedAt:  row.ReviewedAt,
			ReviewNotes: row.ReviewNotes,
		})
	}
	return resp
}

func toDocumentResponse(doc *models.DocumentMetadata) *DocumentResponse {
	if doc == nil {
		return nil
	}
	return &DocumentResponse{
		ID:              doc.ID.String(),
		FormID:          doc.FormID.String(),
		Slot:            doc.Slot,
		FileName:        doc.FileName,
		IsAttached:      doc.IsAttached,
		IsApproved:      doc.IsApproved,
		ApprovedAt:      doc.ApprovedAt,
		RejectionReason: doc.RejectionReason,
	}
}

func toRequirementResponses(reqs []service.DocumentRequirement) []RequirementResponse {
	out := make([]RequirementResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, RequirementResponse{
			Slot:        req.Slot,
			Label:       req.Label,
			Conditional: req.Conditional,
			Status:      req.Status,
			Document:    toDocumentResponse(req.Document),
		})
	}
	return out
}
