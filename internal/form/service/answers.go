package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"taxfile/internal/audit"
	"taxfile/internal/filing"
	"taxfile/internal/form/models"
	"taxfile/internal/form/requirements"
	id "taxfile/pkg/domain"
	dErrors "taxfile/pkg/domain-errors"
	"taxfile/pkg/platform/sentinel"
	"taxfile/pkg/requestcontext"
)

// SaveResult reports the outcome of an accepted answer batch.
type SaveResult struct {
	Form       *models.Form
	Saved      int
	Completion int
}

// SaveAnswers validates and persists a batch of answers for the filing's
// form, creating the form on first save. The batch is atomic: one invalid
// field rejects the whole batch with the full violation list.
func (s *Service) SaveAnswers(ctx context.Context, filingID id.FilingID, raw map[string]any) (*SaveResult, error) {
	ctx, span := s.tracer.Start(ctx, "form.SaveAnswers")
	defer span.End()
	span.SetAttributes(attribute.String("filing_id", filingID.String()))

	start := time.Now()
	f, err := s.resolveFiling(ctx, filingID)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "no answers provided")
	}

	values, violations := s.validator.Partial(raw)
	if len(violations) > 0 {
		if s.metrics != nil {
			s.metrics.ValidationFailures.Inc()
		}
		return nil, dErrors.New(dErrors.CodeValidationFailed, "answers failed validation").
			WithViolations(violations)
	}

	form, created, err := s.getOrCreateForm(ctx, f)
	if err != nil {
		return nil, err
	}
	if created {
		s.emit(ctx, audit.Event{
			Action:   audit.ActionFormCreated,
			FormID:   form.ID,
			FilingID: filingID,
		})
	}

	now := requestcontext.Now(ctx)
	if err := s.answers.UpsertBatch(ctx, form.ID, values, now); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrLocked):
			return nil, dErrors.New(dErrors.CodeFormLocked, "form is locked after submission")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "form not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save answers")
	}

	completion, err := s.recomputeProgress(ctx, form.ID)
	if err != nil {
		return nil, err
	}
	form.CompletionPercentage = completion
	form.UpdatedAt = now

	if s.metrics != nil {
		s.metrics.SaveBatches.Inc()
		s.metrics.AnswersSaved.Add(float64(len(values)))
		s.metrics.Completion.Observe(float64(completion))
		s.metrics.SaveDuration.Observe(time.Since(start).Seconds())
	}
	s.emit(ctx, audit.Event{
		Action:   audit.ActionAnswersSaved,
		FormID:   form.ID,
		FilingID: filingID,
		Detail:   map[string]any{"fields": len(values), "completion": completion},
	})
	s.logger.InfoContext(ctx, "answers saved",
		"form_id", form.ID.String(), "fields", len(values), "completion", completion)

	return &SaveResult{Form: form, Saved: len(values), Completion: completion}, nil
}

// getOrCreateForm returns the filing's form, creating the draft on first
// touch. A concurrent create loses the unique-constraint race and re-reads
// the winner, so both callers observe one form.
func (s *Service) getOrCreateForm(ctx context.Context, f filing.Filing) (*models.Form, bool, error) {
	form, err := s.forms.FindByFiling(ctx, f.ID)
	if err == nil {
		return form, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load form")
	}

	form = models.NewForm(f.ID, f.OwnerID, requestcontext.Now(ctx))
	err = s.forms.Create(ctx, form)
	if err == nil {
		return form, true, nil
	}
	if errors.Is(err, sentinel.ErrConflict) {
		form, err = s.forms.FindByFiling(ctx, f.ID)
		if err != nil {
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load form after create race")
		}
		return form, false, nil
	}
	return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create form")
}

// recomputeProgress recalculates the completion percentage and per-step
// flags from the full answer set and persists both.
func (s *Service) recomputeProgress(ctx context.Context, formID id.FormID) (int, error) {
	answers, err := s.answers.All(ctx, formID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load answers")
	}
	completion := requirements.Completion(s.catalog, answers)

	now := requestcontext.Now(ctx)
	if err := s.forms.UpdateCompletion(ctx, formID, completion, now); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update completion")
	}
	if err := s.progress.SetStepCompletion(ctx, formID, requirements.StepCompletion(s.catalog, answers)); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update step progress")
	}
	return completion, nil
}
