package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

// UpsertSource registers or refreshes a source from the catalog. Fetch state
// (etag, last_modified, next_fetch_at, cursor) is preserved on conflict so a
// restart never resets conditional-fetch caching.
func (s *Store) UpsertSource(ctx context.Context, src domain.Source) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (id, name, type, url, poll_interval_seconds, enabled, default_country)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			url = excluded.url,
			poll_interval_seconds = excluded.poll_interval_seconds,
			enabled = excluded.enabled,
			default_country = excluded.default_country
	`, src.ID, src.Name, src.Type, src.URL, int64(src.PollInterval.Seconds()), src.Enabled, src.DefaultCountry)
	if err != nil {
		return fmt.Errorf("upserting source %s: %w", src.ID, err)
	}
	return nil
}

// GetSource returns a source by ID, or (nil, nil) if absent.
func (s *Store) GetSource(ctx context.Context, id string) (*domain.Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, url, poll_interval_seconds, enabled, etag,
		       last_modified, next_fetch_at, cursor, default_country
		FROM sources WHERE id = ?
	`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// ListSources returns all registered sources ordered by ID.
func (s *Store) ListSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, url, poll_interval_seconds, enabled, etag,
		       last_modified, next_fetch_at, cursor, default_country
		FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// DueSources returns up to limit enabled sources whose next fetch time has
// passed, oldest first.
func (s *Store) DueSources(ctx context.Context, now time.Time, limit int) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, url, poll_interval_seconds, enabled, etag,
		       last_modified, next_fetch_at, cursor, default_country
		FROM sources
		WHERE enabled = 1 AND next_fetch_at <= ?
		ORDER BY next_fetch_at
		LIMIT ?
	`, toMillis(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// UpdateSourceFetchState records the caching validators, cursor, and next
// scheduled fetch after an attempt.
func (s *Store) UpdateSourceFetchState(ctx context.Context, id, etag, lastModified, cursor string, nextFetchAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sources SET etag = ?, last_modified = ?, cursor = ?, next_fetch_at = ?
		WHERE id = ?
	`, etag, lastModified, cursor, toMillis(nextFetchAt), id)
	if err != nil {
		return fmt.Errorf("updating fetch state for %s: %w", id, err)
	}
	return nil
}

func scanSource(scanner interface{ Scan(dest ...any) error }) (domain.Source, error) {
	var src domain.Source
	var intervalSeconds, nextFetchAt int64
	err := scanner.Scan(
		&src.ID, &src.Name, &src.Type, &src.URL, &intervalSeconds, &src.Enabled,
		&src.ETag, &src.LastModified, &nextFetchAt, &src.Cursor, &src.DefaultCountry,
	)
	if err != nil {
		return domain.Source{}, err
	}
	src.PollInterval = time.Duration(intervalSeconds) * time.Second
	src.NextFetchAt = fromMillis(nextFetchAt)
	return src, nil
}

// UpsertSourceHealth stores the per-source fetch outcome record.
func (s *Store) UpsertSourceHealth(ctx context.Context, h domain.SourceHealth) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_health (
			source_id, consecutive_failures, backoff_seconds, last_fetch_at,
			last_success_at, last_error_at, last_status_code, last_fetch_ms,
			last_error, success_count, error_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			consecutive_failures = excluded.consecutive_failures,
			backoff_seconds = excluded.backoff_seconds,
			last_fetch_at = excluded.last_fetch_at,
			last_success_at = excluded.last_success_at,
			last_error_at = excluded.last_error_at,
			last_status_code = excluded.last_status_code,
			last_fetch_ms = excluded.last_fetch_ms,
			last_error = excluded.last_error,
			success_count = excluded.success_count,
			error_count = excluded.error_count
	`, h.SourceID, h.ConsecutiveFailures, h.BackoffSeconds, toMillis(h.LastFetchAt),
		toMillis(h.LastSuccessAt), toMillis(h.LastErrorAt), h.LastStatusCode,
		h.LastFetchMillis, h.LastError, h.SuccessCount, h.ErrorCount)
	if err != nil {
		return fmt.Errorf("upserting health for %s: %w", h.SourceID, err)
	}
	return nil
}

// GetSourceHealth returns the health record for a source, or a zero record if
// the source has never been fetched.
func (s *Store) GetSourceHealth(ctx context.Context, sourceID string) (domain.SourceHealth, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source_id, consecutive_failures, backoff_seconds, last_fetch_at,
		       last_success_at, last_error_at, last_status_code, last_fetch_ms,
		       last_error, success_count, error_count
		FROM source_health WHERE source_id = ?
	`, sourceID)
	h, err := scanSourceHealth(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SourceHealth{SourceID: sourceID}, nil
	}
	return h, err
}

// ListSourceHealth returns all health records keyed by source ID.
func (s *Store) ListSourceHealth(ctx context.Context) (map[string]domain.SourceHealth, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, consecutive_failures, backoff_seconds, last_fetch_at,
		       last_success_at, last_error_at, last_status_code, last_fetch_ms,
		       last_error, success_count, error_count
		FROM source_health
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.SourceHealth)
	for rows.Next() {
		h, err := scanSourceHealth(rows)
		if err != nil {
			return nil, err
		}
		out[h.SourceID] = h
	}
	return out, rows.Err()
}

func scanSourceHealth(scanner interface{ Scan(dest ...any) error }) (domain.SourceHealth, error) {
	var h domain.SourceHealth
	var lastFetch, lastSuccess, lastError int64
	err := scanner.Scan(
		&h.SourceID, &h.ConsecutiveFailures, &h.BackoffSeconds, &lastFetch,
		&lastSuccess, &lastError, &h.LastStatusCode, &h.LastFetchMillis,
		&h.LastError, &h.SuccessCount, &h.ErrorCount,
	)
	if err != nil {
		return domain.SourceHealth{}, err
	}
	h.LastFetchAt = fromMillis(lastFetch)
	h.LastSuccessAt = fromMillis(lastSuccess)
	h.LastErrorAt = fromMillis(lastError)
	return h, nil
}
