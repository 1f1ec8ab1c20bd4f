// Package health records per-source fetch outcomes. It is a pure recorder:
// retry timing lives in the scheduler, which reads the backoff state written
// here.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

// maxBackoff caps exponential backoff so a flapping source is retried at
// least hourly.
const maxBackoff = time.Hour

// Backoff returns the wait before the next attempt after the given number of
// consecutive failures, doubling the poll interval each time up to the cap.
func Backoff(interval time.Duration, failures int) time.Duration {
	if failures <= 0 {
		return interval
	}
	wait := interval
	for i := 0; i < failures; i++ {
		wait *= 2
		if wait >= maxBackoff {
			return maxBackoff
		}
	}
	return wait
}

// healthStore is the slice of the store the tracker needs.
type healthStore interface {
	GetSourceHealth(ctx context.Context, sourceID string) (domain.SourceHealth, error)
	UpsertSourceHealth(ctx context.Context, h domain.SourceHealth) error
}

// Tracker folds fetch outcomes into per-source health records.
type Tracker struct {
	store  healthStore
	logger *slog.Logger
}

func NewTracker(store healthStore, logger *slog.Logger) *Tracker {
	return &Tracker{store: store, logger: logger}
}

// RecordSuccess resets failure state after a 2xx or 304 fetch.
func (t *Tracker) RecordSuccess(ctx context.Context, sourceID string, statusCode int, elapsed time.Duration) (domain.SourceHealth, error) {
	h, err := t.store.GetSourceHealth(ctx, sourceID)
	if err != nil {
		return h, fmt.Errorf("health: load %s: %w", sourceID, err)
	}
	now := domain.Now()
	h.SourceID = sourceID
	h.ConsecutiveFailures = 0
	h.BackoffSeconds = 0
	h.LastFetchAt = now
	h.LastSuccessAt = now
	h.LastStatusCode = statusCode
	h.LastFetchMillis = elapsed.Milliseconds()
	h.LastError = ""
	h.SuccessCount++

	if err := t.store.UpsertSourceHealth(ctx, h); err != nil {
		return h, fmt.Errorf("health: record success for %s: %w", sourceID, err)
	}
	return h, nil
}

// RecordFailure advances failure state after a network, upstream, or parse
// error. interval is the source's normal poll interval, the backoff base.
func (t *Tracker) RecordFailure(ctx context.Context, sourceID string, statusCode int, cause error, interval time.Duration) (domain.SourceHealth, error) {
	h, err := t.store.GetSourceHealth(ctx, sourceID)
	if err != nil {
		return h, fmt.Errorf("health: load %s: %w", sourceID, err)
	}
	now := domain.Now()
	h.SourceID = sourceID
	h.ConsecutiveFailures++
	h.BackoffSeconds = int(Backoff(interval, h.ConsecutiveFailures).Seconds())
	h.LastFetchAt = now
	h.LastErrorAt = now
	h.LastStatusCode = statusCode
	if cause != nil {
		h.LastError = cause.Error()
	}
	h.ErrorCount++

	if err := t.store.UpsertSourceHealth(ctx, h); err != nil {
		return h, fmt.Errorf("health: record failure for %s: %w", sourceID, err)
	}
	t.logger.Warn("source fetch failed",
		slog.String("source_id", sourceID),
		slog.Int("consecutive_failures", h.ConsecutiveFailures),
		slog.Int("backoff_seconds", h.BackoffSeconds),
		slog.String("error", h.LastError))
	return h, nil
}
