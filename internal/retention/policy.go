// Package retention removes reminders that can no longer be delivered.
package retention

import (
	"context"
	"log"
	"time"

	"github.com/pathakanu/myJournal/internal/metrics"
)

// DefaultWindow is how long a dead reminder is kept after creation.
const DefaultWindow = 24 * time.Hour

// Deleter removes reminders created before cutoff that failed or were cancelled.
// Sent reminders are never removed.
type Deleter interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Policy periodically purges expired reminders.
type Policy struct {
	store   Deleter
	window  time.Duration
	logger  *log.Logger
	metrics metrics.Recorder
}

// New returns a policy with the given retention window. A non-positive window uses DefaultWindow.
func New(store Deleter, window time.Duration, logger *log.Logger) *Policy {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Policy{store: store, window: window, logger: logger, metrics: metrics.Prometheus{}}
}

// WithMetrics replaces the metrics sink.
func (p *Policy) WithMetrics(m metrics.Recorder) *Policy {
	p.metrics = m
	return p
}

// Cutoff is the creation time before which dead reminders are removed.
func (p *Policy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.window)
}

// Run deletes expired reminders. Errors are logged and reported as zero deletions.
func (p *Policy) Run(ctx context.Context, now time.Time) int64 {
	deleted, err := p.store.DeleteExpired(ctx, p.Cutoff(now))
	if err != nil {
		p.logger.Printf("retention: delete expired reminders: %v", err)
		return 0
	}
	if deleted > 0 {
		p.logger.Printf("retention: removed %d expired reminders", deleted)
	}
	p.metrics.Cleaned(deleted)
	return deleted
}
