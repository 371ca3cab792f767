package service

import (
	"taxfile/internal/audit"
	"taxfile/internal/catalog"
	id "taxfile/pkg/domain"
	dErrors "taxfile/pkg/domain-errors"
)

// requirementBySlot finds a derived requirement in the list.
func requirementBySlot(reqs []DocumentRequirement, slot string) (DocumentRequirement, bool) {
	for _, req := range reqs {
		if req.Slot == slot {
			return req, true
		}
	}
	return DocumentRequirement{}, false
}

func (s *ServiceSuite) TestRequiredDocumentsBaseSetBeforeAnyAnswers() {
	reqs, err := s.svc.RequiredDocuments(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)
	s.Require().Len(reqs, 2)
	for _, req := range reqs {
		s.False(req.Conditional)
		s.Equal(DocStatusMissing, req.Status)
	}
}

func (s *ServiceSuite) TestRequiredDocumentsFollowAnswers() {
	s.saveComplete()
	_, err := s.svc.SaveAnswers(s.ownerCtx(), s.filingID, map[string]any{
		"hasForeignProperty": true,
	})
	s.Require().NoError(err)

	reqs, err := s.svc.RequiredDocuments(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)
	req, ok := requirementBySlot(reqs, catalog.SlotForeignProperty)
	s.Require().True(ok)
	s.True(req.Conditional)
	s.Equal(DocStatusMissing, req.Status)

	// Flipping the answer back removes the requirement.
	_, err = s.svc.SaveAnswers(s.ownerCtx(), s.filingID, map[string]any{
		"hasForeignProperty": false,
	})
	s.Require().NoError(err)
	reqs, err = s.svc.RequiredDocuments(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)
	_, ok = requirementBySlot(reqs, catalog.SlotForeignProperty)
	s.False(ok)
}

func (s *ServiceSuite) TestRegisterDocumentAndStatusJoin() {
	s.saveComplete()

	doc, err := s.svc.RegisterDocument(s.ownerCtx(), s.filingID, catalog.SlotGovernmentID, "passport.pdf")
	s.Require().NoError(err)
	s.Equal("passport.pdf", doc.FileName)
	s.True(doc.IsAttached)

	reqs, err := s.svc.RequiredDocuments(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)
	req, ok := requirementBySlot(reqs, catalog.SlotGovernmentID)
	s.Require().True(ok)
	s.Equal(DocStatusAttached, req.Status)
	s.Require().NotNil(req.Document)
	s.Equal(doc.ID, req.Document.ID)
}

func (s *ServiceSuite) TestRegisterDocumentUnknownSlot() {
	s.saveComplete()
	_, err := s.svc.RegisterDocument(s.ownerCtx(), s.filingID, "notARealSlot", "x.pdf")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestRegisterDocumentDuplicateSlot() {
	s.saveComplete()
	_, err := s.svc.RegisterDocument(s.ownerCtx(), s.filingID, catalog.SlotGovernmentID, "passport.pdf")
	s.Require().NoError(err)

	_, err = s.svc.RegisterDocument(s.ownerCtx(), s.filingID, catalog.SlotGovernmentID, "license.pdf")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestRegisterDocumentNoFormYet() {
	_, err := s.svc.RegisterDocument(s.ownerCtx(), s.filingID, catalog.SlotGovernmentID, "passport.pdf")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestApproveDocumentFlow() {
	s.saveComplete()
	doc, err := s.svc.RegisterDocument(s.ownerCtx(), s.filingID, catalog.SlotGovernmentID, "passport.pdf")
	s.Require().NoError(err)
	_, err = s.svc.Submit(s.ownerCtx(), s.filingID)
	s.Require().NoError(err)

	approved, err := s.svc.ApproveDocument(s.adminCtx(), doc.ID)
	s.Require().NoError(err)
	s.True(approved.Approved())
	s.Require().NotNil(approved.ApprovedBy)
	s.Equal(s.admin, *approved.ApprovedBy)

	reqs, err := s.svc.RequiredDocuments(s.adminCtx(), s.filingID)
	s.Require().NoError(err)
	req, ok := requirementBySlot(reqs, catalog.SlotGovernmentID)
	s.Require().True(ok)
	s.Equal(DocStatusApproved, req.Status)

	s.Run("second approval rejected", func() {
		_, err := s.svc.ApproveDocument(s.adminCtx(), doc.ID)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyApproved))
	})

	s.Run("rejection after approval rejected", func() {
		_, err := s.svc.RejectDocument(s.adminCtx(), doc.ID, "too blurry")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeImmutable))
	})
}

func (s *ServiceSuite) TestRejectThenReplaceDocument() {
	s.saveComplete()
	doc, err := s.svc.RegisterDocument(s.ownerCtx(), s.filingID, catalog.SlotPriorAssessment, "noa.pdf")
	s.Require().NoError(err)

	rejected, err := s.svc.RejectDocument(s.adminCtx(), doc.ID, "wrong tax year")
	s.Require().NoError(err)
	s.True(rejected.Rejected())
	s.Equal("wrong tax year", rejected.RejectionReason)

	replaced, err := s.svc.ReplaceDocument(s.ownerCtx(), doc.ID, "noa-2025.pdf")
	s.Require().NoError(err)
	s.Equal("noa-2025.pdf", replaced.FileName)

	_, err = s.svc.ApproveDocument(s.adminCtx(), doc.ID)
	s.NoError(err)
}

func (s *ServiceSuite) TestRejectRequiresReason() {
	s.saveComplete()
	doc, err := s.svc.RegisterDocument(s.ownerCtx(), s.filingID, catalog.SlotGovernmentID, "passport.pdf")
	s.Require().NoError(err)

	_, err = s.svc.RejectDocument(s.adminCtx(), doc.ID, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestRejectUnknownDocument() {
	_, err := s.svc.RejectDocument(s.adminCtx(), id.NewDocumentID(), "nope")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestReviewSection() {
	result := s.saveComplete()

	err := s.svc.ReviewSection(s.adminCtx(), result.Form.ID, "personal", "identity", "verified against passport")
	s.Require().NoError(err)

	view, err := s.svc.GetForm(s.adminCtx(), s.filingID)
	s.Require().NoError(err)
	var reviewed bool
	for _, row := range view.Progress {
		if row.StepID == "personal" && row.SectionID == "identity" {
			reviewed = row.IsReviewed
			s.Equal("verified against passport", row.ReviewNotes)
		}
	}
	s.True(reviewed)

	last, ok := s.auditor.Last()
	s.Require().True(ok)
	s.Equal(audit.ActionSectionReviewed, last.Action)
}

func (s *ServiceSuite) TestReviewUnknownStep() {
	result := s.saveComplete()
	err := s.svc.ReviewSection(s.adminCtx(), result.Form.ID, "notAStep", "", "notes")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
