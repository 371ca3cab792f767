package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"taxfile/internal/audit"
	"taxfile/internal/catalog"
	"taxfile/internal/filing"
	"taxfile/internal/form/models"
	"taxfile/internal/form/store/memory"
	id "taxfile/pkg/domain"
	dErrors "taxfile/pkg/domain-errors"
	"taxfile/pkg/platform/sentinel"
	"taxfile/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	store   *memory.Store
	filings *filing.InMemoryLookup
	auditor *audit.MemoryPublisher
	svc     *Service

	now      time.Time
	owner    id.UserID
	admin    id.UserID
	stranger id.UserID
	filingID id.FilingID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.New()
	s.filings = filing.NewInMemoryLookup()
	s.auditor = audit.NewMemoryPublisher()
	s.svc = New(s.store, s.store, s.store, s.store, s.filings, catalog.Default(),
		WithAuditPublisher(s.auditor))

	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.owner = id.NewUserID()
	s.admin = id.NewUserID()
	s.stranger = id.NewUserID()
	s.filingID = id.NewFilingID()
	s.filings.Add(filing.Filing{ID: s.filingID, OwnerID: s.owner, TaxYear: 2025})
}

func (s *ServiceSuite) ownerCtx() context.Context {
	ctx := requestcontext.WithUserID(context.Background(), s.owner)
	return requestcontext.WithTime(ctx, s.now)
}

func (s *ServiceSuite) adminCtx() context.Context {
	ctx := requestcontext.WithUserID(context.Background(), s.admin)
	ctx = requestcontext.WithAdmin(ctx, true)
	return requestcontext.WithTime(ctx, s.now)
}

func (s *ServiceSuite) strangerCtx() context.Context {
	ctx := requestcontext.WithUserID(context.Background(), s.stranger)
	return requestcontext.WithTime(ctx, s.now)
}

// completeAnswers satisfies every unconditionally required field without
// triggering any conditional requirement.
func completeAnswers() map[string]any {
	return map[string]any{
		"personalInfo.firstName":     "Avery",
		"personalInfo.lastName":      "Nguyen",
		"personalInfo.sin":           "046 454 286",
		"personalInfo.dateOfBirth":   "1990-06-15",
		"personalInfo.maritalStatus": "single",
		"contact.phone":              "+1 (416) 555-0199",
		"contact.mailingAddress":     "12 Main St, Toronto ON",
	}
}

func (s *ServiceSuite) saveComplete() *SaveResult {
	result, err := s.svc.SaveAnswers(s.ownerCtx(), s.filingID, completeAnswers())
	s.Require().NoError(err)
	return result
}

// -----------------------------------------------------------------------------
// SaveAnswers
// -----------------------------------------------------------------------------

func (s *ServiceSuite) TestSaveCreatesFormAndComputesCompletion() {
	result, err := s.svc.SaveAnswers(s.ownerCtx(), s.filingID, map[string]any{
		"personalInfo.firstName": "Avery",
		"personalInfo.lastName":  "Nguyen",
		"contact.phone":          "4165550199",
	})
	s.Require().NoError(err)
	s.Equal(3, result.Saved)
	// 3 of the 7 relevant required fields answered, rounded down.
	s.Equal(42, result.Completion)
	s.Equal(models.StatusDraft, result.Form.Status)

	events := s.auditor.Events()
	s.Require().Len(events, 2)
	s.Equal(audit.ActionFormCreated, events[0].Action)
	s.Equal(audit.ActionAnswersSaved, events[1].Action)
}

func (s *ServiceSuite) TestAuditEventsCarryClientMetadata() {
	ctx := requestcontext.WithClientMetadata(s.ownerCtx(), "203.0.113.7", "Firefox 142 on Linux")
	_, err := s.svc.SaveAnswers(ctx, s.filingID, map[string]any{
		"personalInfo.firstName": "Avery",
	})
	s.Require().NoError(err)

	event, ok := s.auditor.Last()
	s.Require().True(ok)
	s.Equal(audit.ActionAnswersSaved, event.Action)
	s.Equal("203.0.113.7", event.ClientIP)
	s.Equal("Firefox 142 on Linux", event.UserAgent)
}

func (s *ServiceSuite) TestSaveReusesExistingForm() {
	first := s.saveComplete()
	second, err := s.svc.SaveAnswers(s.ownerCtx(), s.filingID, map[string]any{
		"contact.email": "avery@example.com",
	})
	s.Require().NoError(err)
	s.Equal(first.Form.ID, second.Form.ID)
}

// racingFormStore simulates losing the first-create race: the winner's row
// lands before Create reports the unique-constraint conflict.
type racingFormStore struct {
	*memory.Store
	winner *models.Form
	raced  bool
}

func (r *racingFormStore) Create(ctx context.Context, form *models.Form) error {
	if !r.raced {
		r.raced = true
		if err := r.Store.Create(ctx, r.winner); err != nil {
			return err
		}
		return sentinel.ErrConflict
	}
	return r.Store.Create(ctx, form)
}

func (s *ServiceSuite) TestFirstSaveLosesCreateRace() {
	winner := models.NewForm(s.filingID, s.owner, s.now)
	store := &racingFormStore{Store: s.store, winner: winner}
	svc := New(store, s.store, s.store, s.store, s.filings, catalog.Default(),
		WithAuditPublisher(s.auditor))

	result, err := svc.SaveAnswers(s.ownerCtx(), s.filingID, map[string]any{
		"personalInfo.firstName": "Avery",
	})
	s.Require().NoError(err)
	s.True(store.raced)
	s.Equal(winner.ID, result.Form.ID)

	// The answers landed on the winner's row.
	answers, err := s.store.All(context.Background(), winner.ID)
	s.Require().NoError(err)
	s.Contains(answers, "personalInfo.firstName")

	// The losing caller must not report a create it did not perform.
	for _, event := range s.auditor.Events() {
		s.NotEqual(audit.ActionFormCreated, event.Action)
	}
}

func (s *ServiceSuite) TestConcurrentFirstSavesShareOneForm() {
	var wg sync.WaitGroup
	results := make([]*SaveResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.svc.SaveAnswers(s.ownerCtx(), s.filingID, map[string]any{
				"personalInfo.firstName": "Avery",
			})
		}()
	}
	wg.Wait()

	s.Require().NoError(errs[0])
	s.Require().NoError(errs[1])
	s.Equal(results[0].Form.ID, results[1].Form.ID)

	form, err := s.store.FindByFiling(context.Background(), s.filingID)
	s.Require().NoError(err)
	s.Equal(results[0].Form.ID, form.ID)
}

func (s *ServiceSuite) TestSaveInvalidBatchRejectedWhole() {
	_, err := s.svc.SaveAnswers(s.ownerCtx(), s.filingID, map[string]any{
		"personalInfo.firstName": "Avery",
		"personalInfo.sin":       "12345", // too short
		"no.such.field":          true,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidationFailed))

	dErr, ok := dErrors.From(err)
	s.Require().True(ok)
	s.Len(dErr.Violations, 2)

	// Nothing persisted, not even the valid field.
	view, err := s.svc.GetForm(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)
	s.False(view.Persisted)
}

func (s *ServiceSuite) TestSaveEmptyBatch() {
	_, err := s.svc.SaveAnswers(s.ownerCtx(), s.filingID, map[string]any{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestSaveUnknownFiling() {
	_, err := s.svc.SaveAnswers(s.ownerCtx(), id.NewFilingID(), completeAnswers())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestSaveNotOwner() {
	_, err := s.svc.SaveAnswers(s.strangerCtx(), s.filingID, completeAnswers())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestSaveAfterSubmitLocked() {
	s.saveComplete()
	_, err := s.svc.Submit(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)

	_, err = s.svc.SaveAnswers(s.ownerCtx(), s.filingID, map[string]any{
		"contact.email": "late@example.com",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeFormLocked))
}

func (s *ServiceSuite) TestConditionalFieldLowersCompletion() {
	s.saveComplete()

	// Enabling self-employment adds a new relevant required field.
	result, err := s.svc.SaveAnswers(s.ownerCtx(), s.filingID, map[string]any{
		"income.hasSelfEmployment": true,
	})
	s.Require().NoError(err)
	// 7 of 8 answered.
	s.Equal(87, result.Completion)

	result, err = s.svc.SaveAnswers(s.ownerCtx(), s.filingID, map[string]any{
		"income.selfEmploymentRevenue": "55000.00",
	})
	s.Require().NoError(err)
	s.Equal(100, result.Completion)
}

// -----------------------------------------------------------------------------
// GetForm
// -----------------------------------------------------------------------------

func (s *ServiceSuite) TestGetFormVirtualDraft() {
	view, err := s.svc.GetForm(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)
	s.False(view.Persisted)
	s.True(view.Form.ID.IsNil())
	s.Equal(models.StatusDraft, view.Form.Status)
	s.Equal(0, view.Completion)
	s.Empty(view.Answers)
}

func (s *ServiceSuite) TestGetFormAfterSave() {
	s.saveComplete()

	view, err := s.svc.GetForm(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)
	s.True(view.Persisted)
	s.Equal(100, view.Completion)
	s.Equal("Avery", view.Answers["personalInfo.firstName"])
	// Phone stored as normalized digits.
	s.Equal("14165550199", view.Answers["contact.phone"])
	s.NotEmpty(view.Progress)
}

func (s *ServiceSuite) TestStepProgressFlipsComplete() {
	_, err := s.svc.SaveAnswers(s.ownerCtx(), s.filingID, map[string]any{
		"personalInfo.firstName": "Avery",
	})
	s.Require().NoError(err)

	view, err := s.svc.GetForm(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)
	s.False(s.stepComplete(view, "personal"))

	s.saveComplete()
	view, err = s.svc.GetForm(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)
	s.True(s.stepComplete(view, "personal"))
	// No conditional requirements are active, so later steps hold too.
	s.True(s.stepComplete(view, "income"))
}

func (s *ServiceSuite) stepComplete(view *FormView, stepID string) bool {
	for _, p := range view.Progress {
		if p.StepID == stepID {
			return p.IsComplete
		}
	}
	s.Failf("missing progress row", "step %s not found", stepID)
	return false
}

func (s *ServiceSuite) TestGetFormAdminAllowed() {
	s.saveComplete()
	view, err := s.svc.GetForm(s.adminCtx(), s.filingID)
	s.Require().NoError(err)
	s.True(view.Persisted)
}

func (s *ServiceSuite) TestGetFormStrangerForbidden() {
	_, err := s.svc.GetForm(s.strangerCtx(), s.filingID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

// -----------------------------------------------------------------------------
// Submit / Unlock / Delete
// -----------------------------------------------------------------------------

func (s *ServiceSuite) TestSubmitIncomplete() {
	_, err := s.svc.SaveAnswers(s.ownerCtx(), s.filingID, map[string]any{
		"personalInfo.firstName": "Avery",
	})
	s.Require().NoError(err)

	_, err = s.svc.Submit(s.ownerCtx(), s.filingID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeIncompleteForm))

	dErr, ok := dErrors.From(err)
	s.Require().True(ok)
	s.NotEmpty(dErr.Violations)
	s.Equal(14, dErr.Completion) // 1 of 7

	// The form stays editable.
	view, err := s.svc.GetForm(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)
	s.Equal(models.StatusDraft, view.Form.Status)
	s.False(view.Form.IsLocked)
}

func (s *ServiceSuite) TestSubmitComplete() {
	s.saveComplete()

	form, err := s.svc.Submit(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, form.Status)
	s.True(form.IsLocked)
	s.Require().NotNil(form.SubmittedAt)
	s.Equal(100, form.CompletionPercentage)

	last, ok := s.auditor.Last()
	s.Require().True(ok)
	s.Equal(audit.ActionFormSubmitted, last.Action)
}

func (s *ServiceSuite) TestSubmitTwice() {
	s.saveComplete()
	_, err := s.svc.Submit(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)

	_, err = s.svc.Submit(s.ownerCtx(), s.filingID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadySubmitted))
}

func (s *ServiceSuite) TestSubmitNoForm() {
	_, err := s.svc.Submit(s.ownerCtx(), s.filingID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestUnlockAmendResubmit() {
	result := s.saveComplete()
	_, err := s.svc.Submit(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)

	form, err := s.svc.Unlock(s.adminCtx(), result.Form.ID, "client reported missing T4")
	s.Require().NoError(err)
	s.False(form.IsLocked)
	s.Equal(models.StatusSubmitted, form.Status)
	s.Require().NotNil(form.UnlockedBy)
	s.Equal(s.admin, *form.UnlockedBy)

	// Amend and resubmit.
	_, err = s.svc.SaveAnswers(s.ownerCtx(), s.filingID, map[string]any{
		"contact.email": "avery@example.com",
	})
	s.Require().NoError(err)
	_, err = s.svc.Submit(s.ownerCtx(), s.filingID)
	s.NoError(err)
}

func (s *ServiceSuite) TestUnlockRequiresReason() {
	result := s.saveComplete()
	_, err := s.svc.Submit(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)

	_, err = s.svc.Unlock(s.adminCtx(), result.Form.ID, "   ")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestUnlockDraft() {
	result := s.saveComplete()
	_, err := s.svc.Unlock(s.adminCtx(), result.Form.ID, "why not")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestDeleteDraft() {
	result := s.saveComplete()
	s.Require().NoError(s.svc.DeleteForm(s.ownerCtx(), result.Form.ID))

	view, err := s.svc.GetForm(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)
	s.False(view.Persisted)
}

func (s *ServiceSuite) TestDeleteSubmittedLocked() {
	result := s.saveComplete()
	_, err := s.svc.Submit(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)

	err = s.svc.DeleteForm(s.ownerCtx(), result.Form.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	// Still present and untouched.
	view, err := s.svc.GetForm(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)
	s.True(view.Persisted)
	s.Equal(models.StatusSubmitted, view.Form.Status)
}

func (s *ServiceSuite) TestDeleteNotOwner() {
	result := s.saveComplete()
	err := s.svc.DeleteForm(s.strangerCtx(), result.Form.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}
