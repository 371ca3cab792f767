// Package memory implements the engine stores over process memory.
// One Store backs all four entity families so cross-entity guards (answer
// writes checking the owning form's lock) happen under the same mutex as
// the write itself, mirroring what the Postgres stores do inside a
// transaction.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"taxfile/internal/form/models"
	id "taxfile/pkg/domain"
	"taxfile/pkg/platform/sentinel"
)

type progressKey struct {
	step    string
	section string
}

// Store is the in-memory backing for tests and single-process deployments.
type Store struct {
	mu        sync.RWMutex
	forms     map[id.FormID]*models.Form
	byFiling  map[id.FilingID]id.FormID
	answers   map[id.FormID]map[string]models.Value
	documents map[id.DocumentID]*models.DocumentMetadata
	docSlots  map[id.FormID]map[string]id.DocumentID
	progress  map[id.FormID]map[progressKey]*models.SectionProgress
}

func New() *Store {
	return &Store{
		forms:     make(map[id.FormID]*models.Form),
		byFiling:  make(map[id.FilingID]id.FormID),
		answers:   make(map[id.FormID]map[string]models.Value),
		documents: make(map[id.DocumentID]*models.DocumentMetadata),
		docSlots:  make(map[id.FormID]map[string]id.DocumentID),
		progress:  make(map[id.FormID]map[progressKey]*models.SectionProgress),
	}
}

// -----------------------------------------------------------------------------
// Forms
// -----------------------------------------------------------------------------

// Create inserts a new form. Returns sentinel.ErrConflict if the filing
// already has one, so callers can re-fetch and proceed (the losing side of
// a concurrent first-save).
func (s *Store) Create(_ context.Context, form *models.Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byFiling[form.FilingID]; exists {
		return sentinel.ErrConflict
	}
	clone := *form
	s.forms[form.ID] = &clone
	s.byFiling[form.FilingID] = form.ID
	return nil
}

func (s *Store) FindByFiling(_ context.Context, filingID id.FilingID) (*models.Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	formID, ok := s.byFiling[filingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *s.forms[formID]
	return &clone, nil
}

func (s *Store) FindByID(_ context.Context, formID id.FormID) (*models.Form, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	form, ok := s.forms[formID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *form
	return &clone, nil
}

func (s *Store) UpdateCompletion(_ context.Context, formID id.FormID, pct int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	form, ok := s.forms[formID]
	if !ok {
		return sentinel.ErrNotFound
	}
	form.CompletionPercentage = pct
	form.UpdatedAt = now
	return nil
}

// Submit transitions to submitted+locked. ErrInvalidState when the form is
// already submitted and locked.
func (s *Store) Submit(_ context.Context, formID id.FormID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	form, ok := s.forms[formID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !form.Editable() {
		return sentinel.ErrInvalidState
	}
	at := now
	form.Status = models.StatusSubmitted
	form.IsLocked = true
	form.LockedAt = &at
	form.SubmittedAt = &at
	form.CompletionPercentage = 100
	form.UpdatedAt = now
	return nil
}

// Unlock clears the lock on a submitted form. ErrInvalidState when the
// form is not currently submitted and locked.
func (s *Store) Unlock(_ context.Context, formID id.FormID, by id.UserID, reason string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	form, ok := s.forms[formID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if form.Status != models.StatusSubmitted || !form.IsLocked {
		return sentinel.ErrInvalidState
	}
	at := now
	form.IsLocked = false
	form.UnlockedBy = &by
	form.UnlockedAt = &at
	form.UnlockReason = reason
	form.UpdatedAt = now
	return nil
}

// Delete removes a form and cascades to its answers, progress, and
// document metadata. ErrLocked while the form is submitted and locked.
func (s *Store) Delete(_ context.Context, formID id.FormID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	form, ok := s.forms[formID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !form.Editable() {
		return sentinel.ErrLocked
	}

	delete(s.byFiling, form.FilingID)
	delete(s.forms, formID)
	delete(s.answers, formID)
	delete(s.progress, formID)
	for slot, docID := range s.docSlots[formID] {
		delete(s.documents, docID)
		delete(s.docSlots[formID], slot)
	}
	delete(s.docSlots, formID)
	return nil
}

// -----------------------------------------------------------------------------
// Answers
// -----------------------------------------------------------------------------

// UpsertBatch applies the whole batch or nothing. The lock check happens
// under the same mutex as the writes, so a racing submit cannot slip a
// write past the transition.
func (s *Store) UpsertBatch(_ context.Context, formID id.FormID, values map[string]models.Value, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	form, ok := s.forms[formID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !form.Editable() {
		return sentinel.ErrLocked
	}

	stored, ok := s.answers[formID]
	if !ok {
		stored = make(map[string]models.Value, len(values))
		s.answers[formID] = stored
	}
	for path, value := range values {
		stored[path] = value
	}
	form.UpdatedAt = now
	return nil
}

// All returns the full path → value map; an empty map when the form has no
// answers (or does not exist), which backs the virtual-draft read.
func (s *Store) All(_ context.Context, formID id.FormID) (map[string]models.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.Value, len(s.answers[formID]))
	for path, value := range s.answers[formID] {
		out[path] = value
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Documents
// -----------------------------------------------------------------------------

// CreateDocument registers metadata for an uploaded document. One record
// per (form, slot); duplicates return ErrConflict. Rejected while the form
// is locked: attaching is a user-side edit.
func (s *Store) CreateDocument(_ context.Context, doc *models.DocumentMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	form, ok := s.forms[doc.FormID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !form.Editable() {
		return sentinel.ErrLocked
	}
	slots, ok := s.docSlots[doc.FormID]
	if !ok {
		slots = make(map[string]id.DocumentID)
		s.docSlots[doc.FormID] = slots
	}
	if _, exists := slots[doc.Slot]; exists {
		return sentinel.ErrConflict
	}
	clone := *doc
	s.documents[doc.ID] = &clone
	slots[doc.Slot] = doc.ID
	return nil
}

func (s *Store) FindDocument(_ context.Context, docID id.DocumentID) (*models.DocumentMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

func (s *Store) ListDocuments(_ context.Context, formID id.FormID) ([]*models.DocumentMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.DocumentMetadata
	for _, docID := range s.docSlots[formID] {
		clone := *s.documents[docID]
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

// ApproveDocument freezes the record. ErrInvalidState when already
// approved: repeat approvals fail loudly rather than masking bugs.
func (s *Store) ApproveDocument(_ context.Context, docID id.DocumentID, by id.UserID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[docID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if doc.Approved() {
		return sentinel.ErrInvalidState
	}
	approved := true
	at := now
	doc.IsApproved = &approved
	doc.ApprovedBy = &by
	doc.ApprovedAt = &at
	doc.RejectionReason = ""
	doc.UpdatedAt = now
	return nil
}

// RejectDocument records a rejection. ErrImmutable when the document is
// approved: there is no path back from approved.
func (s *Store) RejectDocument(_ context.Context, docID id.DocumentID, reason string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[docID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if doc.Approved() {
		return sentinel.ErrImmutable
	}
	rejected := false
	doc.IsApproved = &rejected
	doc.RejectionReason = reason
	doc.UpdatedAt = now
	return nil
}

// UpdateDocument replaces mutable fields (file name, attachment state).
// ErrImmutable once approved; ErrLocked while the owning form is locked.
func (s *Store) UpdateDocument(_ context.Context, doc *models.DocumentMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.documents[doc.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Approved() {
		return sentinel.ErrImmutable
	}
	form, ok := s.forms[existing.FormID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !form.Editable() {
		return sentinel.ErrLocked
	}
	existing.FileName = doc.FileName
	existing.IsAttached = doc.IsAttached
	existing.UpdatedAt = doc.UpdatedAt
	return nil
}

// -----------------------------------------------------------------------------
// Section progress
// -----------------------------------------------------------------------------

// SetStepCompletion upserts step-level completion flags.
func (s *Store) SetStepCompletion(_ context.Context, formID id.FormID, flags map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.forms[formID]; !ok {
		return sentinel.ErrNotFound
	}
	rows, ok := s.progress[formID]
	if !ok {
		rows = make(map[progressKey]*models.SectionProgress)
		s.progress[formID] = rows
	}
	for step, complete := range flags {
		key := progressKey{step: step}
		row, ok := rows[key]
		if !ok {
			row = &models.SectionProgress{FormID: formID, StepID: step}
			rows[key] = row
		}
		row.IsComplete = complete
	}
	return nil
}

// Review records an admin review on a step (or section within it).
func (s *Store) Review(_ context.Context, formID id.FormID, stepID, sectionID string, by id.UserID, notes string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.forms[formID]; !ok {
		return sentinel.ErrNotFound
	}
	rows, ok := s.progress[formID]
	if !ok {
		rows = make(map[progressKey]*models.SectionProgress)
		s.progress[formID] = rows
	}
	key := progressKey{step: stepID, section: sectionID}
	row, ok := rows[key]
	if !ok {
		row = &models.SectionProgress{FormID: formID, StepID: stepID, SectionID: sectionID}
		rows[key] = row
	}
	at := now
	row.IsReviewed = true
	row.ReviewedBy = &by
	row.ReviewedAt = &at
	row.ReviewNotes = notes
	return nil
}

func (s *Store) ListProgress(_ context.Context, formID id.FormID) ([]*models.SectionProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.SectionProgress
	for _, row := range s.progress[formID] {
		clone := *row
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StepID != out[j].StepID {
			return out[i].StepID < out[j].StepID
		}
		return out[i].SectionID < out[j].SectionID
	})
	return out, nil
}
