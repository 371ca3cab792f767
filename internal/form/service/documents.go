package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"taxfile/internal/audit"
	"taxfile/internal/form/models"
	"taxfile/internal/form/requirements"
	id "taxfile/pkg/domain"
	dErrors "taxfile/pkg/domain-errors"
	"taxfile/pkg/platform/sentinel"
	"taxfile/pkg/requestcontext"
)

// Document upload states as seen by the client.
const (
	DocStatusMissing  = "missing"
	DocStatusAttached = "attached"
	DocStatusApproved = "approved"
	DocStatusRejected = "rejected"
)

// DocumentRequirement joins a derived document slot with the registry's
// current state for it.
type DocumentRequirement struct {
	Slot        string
	Label       string
	Conditional bool
	Status      string
	Document    *models.DocumentMetadata
}

// RequiredDocuments derives the document set the current answers call for
// and joins each slot with its upload and approval state. Answers given so
// far fully determine the derived set; re-answering re-derives it.
func (s *Service) RequiredDocuments(ctx context.Context, filingID id.FilingID) ([]DocumentRequirement, error) {
	ctx, span := s.tracer.Start(ctx, "form.RequiredDocuments")
	defer span.End()
	span.SetAttributes(attribute.String("filing_id", filingID.String()))

	f, err := s.resolveFiling(ctx, filingID)
	if err != nil {
		return nil, err
	}

	var answers map[string]models.Value
	var attached []*models.DocumentMetadata
	form, err := s.forms.FindByFiling(ctx, f.ID)
	switch {
	case err == nil:
		if answers, err = s.answers.All(ctx, form.ID); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load answers")
		}
		if attached, err = s.docs.ListDocuments(ctx, form.ID); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load documents")
		}
	case errors.Is(err, sentinel.ErrNotFound):
		// No form yet: the base document set applies.
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load form")
	}

	bySlot := make(map[string]*models.DocumentMetadata, len(attached))
	for _, doc := range attached {
		bySlot[doc.Slot] = doc
	}

	descriptors := requirements.Derive(s.catalog, answers)
	out := make([]DocumentRequirement, 0, len(descriptors))
	for _, desc := range descriptors {
		req := DocumentRequirement{
			Slot:        desc.Slot,
			Label:       desc.Label,
			Conditional: desc.Conditional,
			Status:      DocStatusMissing,
		}
		if doc, ok := bySlot[desc.Slot]; ok {
			req.Document = doc
			switch {
			case doc.Approved():
				req.Status = DocStatusApproved
			case doc.Rejected():
				req.Status = DocStatusRejected
			case doc.IsAttached:
				req.Status = DocStatusAttached
			}
		}
		out = append(out, req)
	}
	return out, nil
}

// RegisterDocument records an upload against one of the filing's document
// slots. The slot must be one the catalog knows; the store rejects
// duplicates and uploads against a locked form.
func (s *Service) RegisterDocument(ctx context.Context, filingID id.FilingID, slot, fileName string) (*models.DocumentMetadata, error) {
	ctx, span := s.tracer.Start(ctx, "form.RegisterDocument")
	defer span.End()
	span.SetAttributes(attribute.String("filing_id", filingID.String()), attribute.String("slot", slot))

	f, err := s.resolveFiling(ctx, filingID)
	if err != nil {
		return nil, err
	}
	if !s.knownSlot(slot) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown document slot")
	}
	if strings.TrimSpace(fileName) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "file name is required")
	}

	form, err := s.forms.FindByFiling(ctx, f.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no form for this filing yet")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load form")
	}

	now := requestcontext.Now(ctx)
	doc := &models.DocumentMetadata{
		ID:         id.NewDocumentID(),
		FormID:     form.ID,
		Slot:       slot,
		FileName:   fileName,
		IsAttached: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.docs.CreateDocument(ctx, doc); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.New(dErrors.CodeConflict, "document already registered for this slot")
		case errors.Is(err, sentinel.ErrLocked):
			return nil, dErrors.New(dErrors.CodeFormLocked, "form is locked after submission")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "form not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register document")
	}

	s.emit(ctx, audit.Event{
		Action:   audit.ActionDocumentAttached,
		FormID:   form.ID,
		FilingID: filingID,
		Detail:   map[string]any{"slot": slot},
	})
	return doc, nil
}

// ReplaceDocument swaps the file behind an existing document record, e.g.
// after a rejection. Approved documents are frozen.
func (s *Service) ReplaceDocument(ctx context.Context, docID id.DocumentID, fileName string) (*models.DocumentMetadata, error) {
	ctx, span := s.tracer.Start(ctx, "form.ReplaceDocument")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", docID.String()))

	if strings.TrimSpace(fileName) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "file name is required")
	}
	doc, err := s.findDocumentAuthorized(ctx, docID)
	if err != nil {
		return nil, err
	}

	doc.FileName = fileName
	doc.IsAttached = true
	doc.UpdatedAt = requestcontext.Now(ctx)
	if err := s.docs.UpdateDocument(ctx, doc); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		case errors.Is(err, sentinel.ErrImmutable):
			return nil, dErrors.New(dErrors.CodeImmutable, "approved document cannot be modified")
		case errors.Is(err, sentinel.ErrLocked):
			return nil, dErrors.New(dErrors.CodeFormLocked, "form is locked after submission")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update document")
	}
	return doc, nil
}

// ApproveDocument marks a document approved and freezes its record.
// Admin only.
func (s *Service) ApproveDocument(ctx context.Context, docID id.DocumentID) (*models.DocumentMetadata, error) {
	ctx, span := s.tracer.Start(ctx, "form.ApproveDocument")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", docID.String()))

	by := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)
	if err := s.docs.ApproveDocument(ctx, docID, by, now); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeAlreadyApproved, "document is already approved")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to approve document")
	}

	doc, err := s.docs.FindDocument(ctx, docID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load approved document")
	}
	s.emit(ctx, audit.Event{
		Action: audit.ActionDocumentApproved,
		FormID: doc.FormID,
		Detail: map[string]any{"slot": doc.Slot},
	})
	return doc, nil
}

// RejectDocument records a rejection so the owner can re-upload. Admin
// only; a reason is mandatory.
func (s *Service) RejectDocument(ctx context.Context, docID id.DocumentID, reason string) (*models.DocumentMetadata, error) {
	ctx, span := s.tracer.Start(ctx, "form.RejectDocument")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", docID.String()))

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rejection reason is required")
	}

	now := requestcontext.Now(ctx)
	if err := s.docs.RejectDocument(ctx, docID, reason, now); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		case errors.Is(err, sentinel.ErrImmutable):
			return nil, dErrors.New(dErrors.CodeImmutable, "approved document cannot be rejected")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reject document")
	}

	doc, err := s.docs.FindDocument(ctx, docID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load rejected document")
	}
	s.emit(ctx, audit.Event{
		Action: audit.ActionDocumentRejected,
		FormID: doc.FormID,
		Detail: map[string]any{"slot": doc.Slot, "reason": reason},
	})
	return doc, nil
}

// ReviewSection records an admin review note against a questionnaire step
// (or a section within it). Admin only.
func (s *Service) ReviewSection(ctx context.Context, formID id.FormID, stepID, sectionID, notes string) error {
	ctx, span := s.tracer.Start(ctx, "form.ReviewSection")
	defer span.End()
	span.SetAttributes(attribute.String("form_id", formID.String()), attribute.String("step_id", stepID))

	if !s.knownStep(stepID) {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown questionnaire step")
	}

	by := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)
	if err := s.progress.Review(ctx, formID, stepID, sectionID, by, notes, now); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "form not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record review")
	}

	s.emit(ctx, audit.Event{
		Action: audit.ActionSectionReviewed,
		FormID: formID,
		Detail: map[string]any{"step": stepID, "section": sectionID},
	})
	return nil
}

// findDocumentAuthorized loads a document and checks the caller owns the
// form it belongs to.
func (s *Service) findDocumentAuthorized(ctx context.Context, docID id.DocumentID) (*models.DocumentMetadata, error) {
	doc, err := s.docs.FindDocument(ctx, docID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	form, err := s.forms.FindByID(ctx, doc.FormID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load owning form")
	}
	if err := s.authorizeOwner(ctx, form.UserID); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) knownSlot(slot string) bool {
	for _, rule := range s.catalog.Rules() {
		if rule.Slot == slot {
			return true
		}
	}
	return false
}

func (s *Service) knownStep(step string) bool {
	for _, known := range s.catalog.Steps() {
		if known == step {
			return true
		}
	}
	return false
}
