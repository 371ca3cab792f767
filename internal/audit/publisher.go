package audit

import (
	"context"
	"log/slog"
	"sync"
)

// LogPublisher writes events as structured log lines. It is the default
// sink when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "audit")}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	attrs := []any{
		"action", string(event.Action),
		"form_id", event.FormID.String(),
		"actor_id", event.ActorID.String(),
	}
	if !event.FilingID.IsNil() {
		attrs = append(attrs, "filing_id", event.FilingID.String())
	}
	if event.RequestID != "" {
		attrs = append(attrs, "request_id", event.RequestID)
	}
	for k, v := range event.Detail {
		attrs = append(attrs, k, v)
	}
	p.logger.InfoContext(ctx, "audit event", attrs...)
	return nil
}

// MemoryPublisher records events for assertions in tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a snapshot of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Last returns the most recent event, or false when none were published.
func (p *MemoryPublisher) Last() (Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return Event{}, false
	}
	return p.events[len(p.events)-1], true
}
