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

// FormView is the read model for a filing's form. Before the first save no
// row exists; the view then presents a virtual empty draft and Persisted
// is false.
type FormView struct {
	Form      *models.Form
	Persisted bool

	Answers    map[string]any
	Completion int
	Progress   []*models.SectionProgress
}

// GetForm returns the filing's form with its answers and progress. A
// filing that was never saved yields a virtual draft rather than an error,
// so clients can render the empty questionnaire with one call.
func (s *Service) GetForm(ctx context.Context, filingID id.FilingID) (*FormView, error) {
	ctx, span := s.tracer.Start(ctx, "form.GetForm")
	defer span.End()
	span.SetAttributes(attribute.String("filing_id", filingID.String()))

	f, err := s.resolveFiling(ctx, filingID)
	if err != nil {
		return nil, err
	}

	form, err := s.forms.FindByFiling(ctx, f.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		virtual := models.NewForm(f.ID, f.OwnerID, requestcontext.Now(ctx))
		// Not persisted: no real identity yet.
		virtual.ID = id.FormID{}
		virtual.CompletionPercentage = requirements.Completion(s.catalog, nil)
		return &FormView{
			Form:       virtual,
			Persisted:  false,
			Answers:    map[string]any{},
			Completion: virtual.CompletionPercentage,
		}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load form")
	}

	answers, err := s.answers.All(ctx, form.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load answers")
	}
	progress, err := s.progress.ListProgress(ctx, form.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load progress")
	}

	plain := make(map[string]any, len(answers))
	for path, value := range answers {
		plain[path] = value.Plain()
	}
	return &FormView{
		Form:       form,
		Persisted:  true,
		Answers:    plain,
		Completion: form.CompletionPercentage,
		Progress:   progress,
	}, nil
}

// Submit runs complete validation over the stored answers and, when every
// relevant required field passes, transitions the form to submitted and
// locked. Any violation rejects the whole submission; nothing is persisted
// on the failure path.
func (s *Service) Submit(ctx context.Context, filingID id.FilingID) (*models.Form, error) {
	ctx, span := s.tracer.Start(ctx, "form.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("filing_id", filingID.String()))

	f, err := s.resolveFiling(ctx, filingID)
	if err != nil {
		return nil, err
	}
	form, err := s.forms.FindByFiling(ctx, f.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no form to submit for this filing")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load form")
	}
	if !form.Editable() {
		s.observeSubmission("already_submitted")
		return nil, dErrors.New(dErrors.CodeAlreadySubmitted, "form is already submitted")
	}

	answers, err := s.answers.All(ctx, form.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load answers")
	}
	if violations := s.validator.Complete(answers); len(violations) > 0 {
		completion := requirements.Completion(s.catalog, answers)
		s.observeSubmission("incomplete")
		s.emit(ctx, audit.Event{
			Action:   audit.ActionSubmitRejected,
			FormID:   form.ID,
			FilingID: filingID,
			Detail:   map[string]any{"violations": len(violations), "completion": completion},
		})
		return nil, dErrors.New(dErrors.CodeIncompleteForm, "form is not complete").
			WithViolations(violations).
			WithCompletion(completion)
	}

	now := requestcontext.Now(ctx)
	if err := s.forms.Submit(ctx, form.ID, now); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrInvalidState):
			// A concurrent submit won the transition.
			s.observeSubmission("already_submitted")
			return nil, dErrors.New(dErrors.CodeAlreadySubmitted, "form is already submitted")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "form not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to submit form")
	}

	form.Status = models.StatusSubmitted
	form.IsLocked = true
	form.LockedAt = &now
	form.SubmittedAt = &now
	form.CompletionPercentage = 100
	form.UpdatedAt = now

	s.observeSubmission("accepted")
	s.emit(ctx, audit.Event{Action: audit.ActionFormSubmitted, FormID: form.ID, FilingID: filingID})
	s.logger.InfoContext(ctx, "form submitted", "form_id", form.ID.String())
	return form, nil
}

// Unlock clears the lock on a submitted form so the owner can amend and
// resubmit. Admin only (enforced by transport middleware); a reason is
// mandatory for the audit trail.
func (s *Service) Unlock(ctx context.Context, formID id.FormID, reason string) (*models.Form, error) {
	ctx, span := s.tracer.Start(ctx, "form.Unlock")
	defer span.End()
	span.SetAttributes(attribute.String("form_id", formID.String()))

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unlock reason is required")
	}

	by := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)
	if err := s.forms.Unlock(ctx, formID, by, reason, now); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "form not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeBadRequest, "form is not submitted and locked")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to unlock form")
	}

	if s.metrics != nil {
		s.metrics.Unlocks.Inc()
	}
	s.emit(ctx, audit.Event{
		Action: audit.ActionFormUnlocked,
		FormID: formID,
		Detail: map[string]any{"reason": reason},
	})
	s.logger.InfoContext(ctx, "form unlocked", "form_id", formID.String(), "reason", reason)

	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load unlocked form")
	}
	return form, nil
}

// DeleteForm removes a draft form with all its answers, progress, and
// document metadata. Locked forms cannot be deleted.
func (s *Service) DeleteForm(ctx context.Context, formID id.FormID) error {
	ctx, span := s.tracer.Start(ctx, "form.DeleteForm")
	defer span.End()
	span.SetAttributes(attribute.String("form_id", formID.String()))

	form, err := s.forms.FindByID(ctx, formID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "form not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load form")
	}
	if err := s.authorizeOwner(ctx, form.UserID); err != nil {
		return err
	}

	if err := s.forms.Delete(ctx, formID); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "form not found")
		case errors.Is(err, sentinel.ErrLocked):
			return dErrors.New(dErrors.CodeForbidden, "submitted form cannot be deleted")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete form")
	}

	s.emit(ctx, audit.Event{Action: audit.ActionFormDeleted, FormID: formID, FilingID: form.FilingID})
	s.logger.InfoContext(ctx, "form deleted", "form_id", formID.String())
	return nil
}

func (s *Service) observeSubmission(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveSubmission(outcome)
	}
}
