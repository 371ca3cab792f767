package models

import (
	"time"

	id "taxfile/pkg/domain"
)

// SectionProgress records per-step completion for admin review tracking.
// Unique per (FormID, StepID, SectionID); SectionID may be empty for
// step-level rows.
type SectionProgress struct {
	FormID    id.FormID
	StepID    string
	SectionID string

	IsComplete bool

	IsReviewed  bool
	ReviewedBy  *id.UserID
	ReviewedAt  *time.Time
	ReviewNotes string
}
