package handler

// SaveAnswersRequest carries a batch of raw answers keyed by field path.
// Values stay untyped here; the validation engine interprets them against
// the catalog.
type SaveAnswersRequest struct {
	Answers map[string]any `json:"answers"`
}

// RegisterDocumentRequest records an upload against a document slot.
type RegisterDocumentRequest struct {
	Slot     string `json:"slot"`
	FileName string `json:"fileName"`
}

// ReplaceDocumentRequest swaps the file behind an existing document.
type ReplaceDocumentRequest struct {
	FileName string `json:"fileName"`
}

// UnlockRequest reopens a submitted form for amendment.
type UnlockRequest struct {
	Reason string `json:"reason"`
}

// RejectDocumentRequest records why a document was rejected.
type RejectDocumentRequest struct {
	Reason string `json:"reason"`
}

// ReviewSectionRequest records an admin review of a questionnaire step.
type ReviewSectionRequest struct {
	StepID    string `json:"stepId"`
	SectionID string `json:"sectionId,omitempty"`
	Notes     string `json:"notes,omitempty"`
}
