// Package audit emits lifecycle events for the form engine. Events are
// transport-agnostic; sinks decide durability (log line, Kafka topic,
// in-memory capture for tests).
package audit

import (
	"context"
	"time"

	id "taxfile/pkg/domain"
)

// Action names a lifecycle event.
type Action string

const (
	ActionFormCreated      Action = "form_created"
	ActionAnswersSaved     Action = "answers_saved"
	ActionFormSubmitted    Action = "form_submitted"
	ActionSubmitRejected   Action = "submit_rejected"
	ActionFormUnlocked     Action = "form_unlocked"
	ActionFormDeleted      Action = "form_deleted"
	ActionDocumentAttached Action = "document_attached"
	ActionDocumentApproved Action = "document_approved"
	ActionDocumentRejected Action = "document_rejected"
	ActionSectionReviewed  Action = "section_reviewed"
)

// Event captures one lifecycle action against a form.
type Event struct {
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`

	FormID   id.FormID   `json:"form_id"`
	FilingID id.FilingID `json:"filing_id,omitempty"`
	// ActorID is the principal who performed the action. For admin
	// operations this differs from the form owner.
	ActorID   id.UserID `json:"actor_id"`
	RequestID string    `json:"request_id,omitempty"`
	// Client metadata captured by the HTTP layer; empty for events
	// emitted outside a request.
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	// Detail carries action-specific context (answer count, unlock
	// reason, rejected violation count). Values must be JSON-friendly.
	Detail map[string]any `json:"detail,omitempty"`
}

// Publisher delivers events to a sink. Publish must not block the request
// path on sink latency beyond what the context allows.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
