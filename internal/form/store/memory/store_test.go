package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"taxfile/internal/form/models"
	id "taxfile/pkg/domain"
	"taxfile/pkg/platform/sentinel"
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
	now   time.Time
	owner id.UserID
	admin id.UserID
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = New()
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.owner = id.UserID(uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	s.admin = id.UserID(uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8"))
}

func (s *StoreSuite) newForm() *models.Form {
	form := models.NewForm(id.NewFilingID(), s.owner, s.now)
	s.Require().NoError(s.store.Create(s.ctx, form))
	return form
}

func (s *StoreSuite) submit(form *models.Form) {
	s.Require().NoError(s.store.Submit(s.ctx, form.ID, s.now))
}

func (s *StoreSuite) TestCreateAndFind() {
	form := s.newForm()

	byFiling, err := s.store.FindByFiling(s.ctx, form.FilingID)
	s.Require().NoError(err)
	s.Equal(form.ID, byFiling.ID)
	s.Equal(models.StatusDraft, byFiling.Status)

	byID, err := s.store.FindByID(s.ctx, form.ID)
	s.Require().NoError(err)
	s.Equal(form.FilingID, byID.FilingID)
}

func (s *StoreSuite) TestCreateDuplicateFilingConflicts() {
	form := s.newForm()

	dup := models.NewForm(form.FilingID, s.owner, s.now)
	err := s.store.Create(s.ctx, dup)
	s.ErrorIs(err, sentinel.ErrConflict)

	// The winner is untouched.
	found, err := s.store.FindByFiling(s.ctx, form.FilingID)
	s.Require().NoError(err)
	s.Equal(form.ID, found.ID)
}

func (s *StoreSuite) TestFindMissing() {
	_, err := s.store.FindByID(s.ctx, id.NewFormID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestFindReturnsCopy() {
	form := s.newForm()

	first, err := s.store.FindByID(s.ctx, form.ID)
	s.Require().NoError(err)
	first.Status = models.StatusSubmitted

	second, err := s.store.FindByID(s.ctx, form.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDraft, second.Status)
}

func (s *StoreSuite) TestSubmitLocksForm() {
	form := s.newForm()
	s.submit(form)

	got, err := s.store.FindByID(s.ctx, form.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, got.Status)
	s.True(got.IsLocked)
	s.Require().NotNil(got.SubmittedAt)
	s.Equal(s.now, *got.SubmittedAt)
	s.Equal(100, got.CompletionPercentage)
}

func (s *StoreSuite) TestSubmitTwiceFails() {
	form := s.newForm()
	s.submit(form)

	err := s.store.Submit(s.ctx, form.ID, s.now)
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *StoreSuite) TestUnlockThenResubmit() {
	form := s.newForm()
	s.submit(form)

	err := s.store.Unlock(s.ctx, form.ID, s.admin, "client reported missing T4", s.now)
	s.Require().NoError(err)

	got, err := s.store.FindByID(s.ctx, form.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, got.Status)
	s.False(got.IsLocked)
	s.Require().NotNil(got.UnlockedBy)
	s.Equal(s.admin, *got.UnlockedBy)
	s.Equal("client reported missing T4", got.UnlockReason)

	// The unlocked form accepts a fresh submit.
	s.NoError(s.store.Submit(s.ctx, form.ID, s.now.Add(time.Hour)))
}

func (s *StoreSuite) TestUnlockDraftFails() {
	form := s.newForm()

	err := s.store.Unlock(s.ctx, form.ID, s.admin, "reason", s.now)
	s.ErrorIs(err, sentinel.ErrInvalidState)
}

func (s *StoreSuite) TestUpsertBatchAndAll() {
	form := s.newForm()

	err := s.store.UpsertBatch(s.ctx, form.ID, map[string]models.Value{
		"personalInfo.firstName": models.TextValue("Avery"),
		"hasChildren":            models.BoolValue(true),
	}, s.now)
	s.Require().NoError(err)

	err = s.store.UpsertBatch(s.ctx, form.ID, map[string]models.Value{
		"personalInfo.firstName": models.TextValue("Jordan"),
	}, s.now)
	s.Require().NoError(err)

	all, err := s.store.All(s.ctx, form.ID)
	s.Require().NoError(err)
	s.Len(all, 2)
	s.Equal("Jordan", all["personalInfo.firstName"].Text)
	s.True(all["hasChildren"].Bool)
}

func (s *StoreSuite) TestUpsertBatchLockedForm() {
	form := s.newForm()
	s.submit(form)

	err := s.store.UpsertBatch(s.ctx, form.ID, map[string]models.Value{
		"personalInfo.firstName": models.TextValue("Avery"),
	}, s.now)
	s.ErrorIs(err, sentinel.ErrLocked)

	all, err := s.store.All(s.ctx, form.ID)
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *StoreSuite) TestAllUnknownFormIsEmpty() {
	all, err := s.store.All(s.ctx, id.NewFormID())
	s.Require().NoError(err)
	s.Empty(all)
}

func (s *StoreSuite) TestDeleteCascades() {
	form := s.newForm()
	s.Require().NoError(s.store.UpsertBatch(s.ctx, form.ID, map[string]models.Value{
		"hasChildren": models.BoolValue(false),
	}, s.now))
	doc := s.newDocument(form, "governmentId")
	s.Require().NoError(s.store.SetStepCompletion(s.ctx, form.ID, map[string]bool{"personal": true}))

	s.Require().NoError(s.store.Delete(s.ctx, form.ID))

	_, err := s.store.FindByID(s.ctx, form.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByFiling(s.ctx, form.FilingID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindDocument(s.ctx, doc.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	all, err := s.store.All(s.ctx, form.ID)
	s.Require().NoError(err)
	s.Empty(all)
	rows, err := s.store.ListProgress(s.ctx, form.ID)
	s.Require().NoError(err)
	s.Empty(rows)
}

func (s *StoreSuite) TestDeleteLockedFails() {
	form := s.newForm()
	s.submit(form)

	err := s.store.Delete(s.ctx, form.ID)
	s.ErrorIs(err, sentinel.ErrLocked)
}

func (s *StoreSuite) newDocument(form *models.Form, slot string) *models.DocumentMetadata {
	doc := &models.DocumentMetadata{
		ID:         id.NewDocumentID(),
		FormID:     form.ID,
		Slot:       slot,
		FileName:   slot + ".pdf",
		IsAttached: true,
		CreatedAt:  s.now,
		UpdatedAt:  s.now,
	}
	s.Require().NoError(s.store.CreateDocument(s.ctx, doc))
	return doc
}

func (s *StoreSuite) TestDocumentSlotUnique() {
	form := s.newForm()
	s.newDocument(form, "governmentId")

	dup := &models.DocumentMetadata{
		ID:     id.NewDocumentID(),
		FormID: form.ID,
		Slot:   "governmentId",
	}
	err := s.store.CreateDocument(s.ctx, dup)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *StoreSuite) TestApproveFreezesDocument() {
	form := s.newForm()
	doc := s.newDocument(form, "t4Slips")
	s.submit(form)

	// Approval happens after submission; the form lock does not block it.
	s.Require().NoError(s.store.ApproveDocument(s.ctx, doc.ID, s.admin, s.now))

	got, err := s.store.FindDocument(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.True(got.Approved())
	s.Require().NotNil(got.ApprovedBy)
	s.Equal(s.admin, *got.ApprovedBy)

	s.Run("approve again", func() {
		err := s.store.ApproveDocument(s.ctx, doc.ID, s.admin, s.now)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("reject after approve", func() {
		err := s.store.RejectDocument(s.ctx, doc.ID, "blurry scan", s.now)
		s.ErrorIs(err, sentinel.ErrImmutable)
	})

	s.Run("update after approve", func() {
		got.FileName = "replacement.pdf"
		err := s.store.UpdateDocument(s.ctx, got)
		s.ErrorIs(err, sentinel.ErrImmutable)
	})
}

func (s *StoreSuite) TestRejectThenReupload() {
	form := s.newForm()
	doc := s.newDocument(form, "priorAssessment")

	s.Require().NoError(s.store.RejectDocument(s.ctx, doc.ID, "wrong year", s.now))

	got, err := s.store.FindDocument(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.True(got.Rejected())
	s.Equal("wrong year", got.RejectionReason)

	// A rejected document can still be replaced and re-reviewed.
	got.FileName = "noa-2025.pdf"
	got.UpdatedAt = s.now.Add(time.Minute)
	s.Require().NoError(s.store.UpdateDocument(s.ctx, got))
	s.NoError(s.store.ApproveDocument(s.ctx, doc.ID, s.admin, s.now))
}

func (s *StoreSuite) TestUpdateDocumentLockedForm() {
	form := s.newForm()
	doc := s.newDocument(form, "rrspReceipts")
	s.submit(form)

	doc.FileName = "late-edit.pdf"
	err := s.store.UpdateDocument(s.ctx, doc)
	s.ErrorIs(err, sentinel.ErrLocked)
}

func (s *StoreSuite) TestListDocumentsSorted() {
	form := s.newForm()
	s.newDocument(form, "t4Slips")
	s.newDocument(form, "governmentId")

	docs, err := s.store.ListDocuments(s.ctx, form.ID)
	s.Require().NoError(err)
	s.Require().Len(docs, 2)
	s.Equal("governmentId", docs[0].Slot)
	s.Equal("t4Slips", docs[1].Slot)
}

func (s *StoreSuite) TestStepCompletionUpsert() {
	form := s.newForm()

	s.Require().NoError(s.store.SetStepCompletion(s.ctx, form.ID, map[string]bool{
		"personal": true,
		"income":   false,
	}))
	s.Require().NoError(s.store.SetStepCompletion(s.ctx, form.ID, map[string]bool{
		"income": true,
	}))

	rows, err := s.store.ListProgress(s.ctx, form.ID)
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	for _, row := range rows {
		s.True(row.IsComplete, row.StepID)
	}
}

func (s *StoreSuite) TestReview() {
	form := s.newForm()
	s.Require().NoError(s.store.SetStepCompletion(s.ctx, form.ID, map[string]bool{"income": true}))

	err := s.store.Review(s.ctx, form.ID, "income", "", s.admin, "checked against slips", s.now)
	s.Require().NoError(err)

	rows, err := s.store.ListProgress(s.ctx, form.ID)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.True(rows[0].IsReviewed)
	s.Require().NotNil(rows[0].ReviewedBy)
	s.Equal(s.admin, *rows[0].ReviewedBy)
	s.Equal("checked against slips", rows[0].ReviewNotes)
}
