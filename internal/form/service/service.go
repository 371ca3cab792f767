// Package service orchestrates the form lifecycle: answer saves with
// validation, completion tracking, submission, admin unlock, and the
// document approval workflow. Stores enforce the write-time invariants;
// this layer sequences them and translates store sentinels into coded
// errors for the transport.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"taxfile/internal/audit"
	"taxfile/internal/catalog"
	"taxfile/internal/filing"
	"taxfile/internal/form/models"
	"taxfile/internal/form/validation"
	"taxfile/internal/platform/metrics"
	id "taxfile/pkg/domain"
	dErrors "taxfile/pkg/domain-errors"
	"taxfile/pkg/platform/sentinel"
	"taxfile/pkg/requestcontext"
)

// FormStore persists form lifecycle state.
type FormStore interface {
	Create(ctx context.Context, form *models.Form) error
	FindByFiling(ctx context.Context, filingID id.FilingID) (*models.Form, error)
	FindByID(ctx context.Context, formID id.FormID) (*models.Form, error)
	UpdateCompletion(ctx context.Context, formID id.FormID, pct int, now time.Time) error
	Submit(ctx context.Context, formID id.FormID, now time.Time) error
	Unlock(ctx context.Context, formID id.FormID, by id.UserID, reason string, now time.Time) error
	Delete(ctx context.Context, formID id.FormID) error
}

// AnswerStore persists typed answers keyed by field path.
type AnswerStore interface {
	UpsertBatch(ctx context.Context, formID id.FormID, values map[string]models.Value, now time.Time) error
	All(ctx context.Context, formID id.FormID) (map[string]models.Value, error)
}

// DocumentStore persists document metadata and its approval state.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.DocumentMetadata) error
	FindDocument(ctx context.Context, docID id.DocumentID) (*models.DocumentMetadata, error)
	ListDocuments(ctx context.Context, formID id.FormID) ([]*models.DocumentMetadata, error)
	ApproveDocument(ctx context.Context, docID id.DocumentID, by id.UserID, now time.Time) error
	RejectDocument(ctx context.Context, docID id.DocumentID, reason string, now time.Time) error
	UpdateDocument(ctx context.Context, doc *models.DocumentMetadata) error
}

// ProgressStore persists per-step completion and review state.
type ProgressStore interface {
	SetStepCompletion(ctx context.Context, formID id.FormID, flags map[string]bool) error
	Review(ctx context.Context, formID id.FormID, stepID, sectionID string, by id.UserID, notes string, now time.Time) error
	ListProgress(ctx context.Context, formID id.FormID) ([]*models.SectionProgress, error)
}

// FilingLookup resolves the external filing a form belongs to.
type FilingLookup interface {
	FindByID(ctx context.Context, filingID id.FilingID) (filing.Filing, error)
}

// AuditPublisher receives lifecycle events.
type AuditPublisher interface {
	Publish(ctx context.Context, event audit.Event) error
}

// Service is the form state controller.
type Service struct {
	forms    FormStore
	answers  AnswerStore
	docs     DocumentStore
	progress ProgressStore
	filings  FilingLookup

	catalog   *catalog.Catalog
	validator *validation.Engine

	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor AuditPublisher
	tracer  trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

// New constructs a Service over the given stores and catalog.
func New(forms FormStore, answers AnswerStore, docs DocumentStore, progress ProgressStore, filings FilingLookup, c *catalog.Catalog, opts ...Option) *Service {
	s := &Service{
		forms:     forms,
		answers:   answers,
		docs:      docs,
		progress:  progress,
		filings:   filings,
		catalog:   c,
		validator: validation.New(c),
		logger:    slog.Default(),
		tracer:    otel.Tracer("taxfile/form"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolveFiling loads the filing and checks that the caller may act on it.
// Admins pass; otherwise the caller must be the filing owner.
func (s *Service) resolveFiling(ctx context.Context, filingID id.FilingID) (filing.Filing, error) {
	f, err := s.filings.FindByID(ctx, filingID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return filing.Filing{}, dErrors.New(dErrors.CodeNotFound, "filing not found")
	}
	if err != nil {
		return filing.Filing{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve filing")
	}
	if err := s.authorizeOwner(ctx, f.OwnerID); err != nil {
		return filing.Filing{}, err
	}
	return f, nil
}

func (s *Service) authorizeOwner(ctx context.Context, owner id.UserID) error {
	if requestcontext.IsAdmin(ctx) {
		return nil
	}
	if caller := requestcontext.UserID(ctx); caller == owner {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "not the filing owner")
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.Timestamp = requestcontext.Now(ctx)
	event.ActorID = requestcontext.UserID(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.UserAgent = requestcontext.UserAgent(ctx)
	if err := s.auditor.Publish(ctx, event); err != nil {
		s.logger.Error("audit publish failed", "action", string(event.Action), "error", err)
	}
}
