// Package filing defines the engine's view of the external filing
// collaborator. The engine never creates filings; it only resolves
// existence and ownership before touching a form.
package filing

import (
	"context"
	"sync"

	id "taxfile/pkg/domain"
	"taxfile/pkg/platform/sentinel"
)

// Filing is the slice of the external record the engine needs.
type Filing struct {
	ID      id.FilingID
	OwnerID id.UserID
	TaxYear int
}

// Lookup resolves filings by ID. Implementations return
// sentinel.ErrNotFound for unknown filings.
type Lookup interface {
	FindByID(ctx context.Context, filingID id.FilingID) (Filing, error)
}

// InMemoryLookup backs tests and single-process deployments where the
// filing service shares the process.
type InMemoryLookup struct {
	mu      sync.RWMutex
	filings map[id.FilingID]Filing
}

func NewInMemoryLookup() *InMemoryLookup {
	return &InMemoryLookup{filings: make(map[id.FilingID]Filing)}
}

// Add registers a filing.
func (l *InMemoryLookup) Add(f Filing) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filings[f.ID] = f
}

func (l *InMemoryLookup) FindByID(_ context.Context, filingID id.FilingID) (Filing, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.filings[filingID]
	if !ok {
		return Filing{}, sentinel.ErrNotFound
	}
	return f, nil
}
