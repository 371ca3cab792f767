// Package ratelimit bounds autosave traffic per principal with a sliding
// window. The window algorithm avoids the burst-at-boundary problem of
// fixed buckets: a client cannot double its rate by straddling two
// intervals.
package ratelimit

import (
	"context"
	"time"
)

// Result reports one admission decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Store is the counting backend. Allow records the request and reports
// whether it fits inside the window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
	Reset(ctx context.Context, key string) error
}
