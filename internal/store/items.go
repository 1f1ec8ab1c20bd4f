package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

// InsertItem stores a new normalized item.
func (s *Store) InsertItem(ctx context.Context, it domain.Item) error {
	geo, err := encodeGeometry(it.Geometry)
	if err != nil {
		return fmt.Errorf("encoding geometry for item %s: %w", it.ID, err)
	}
	tags, err := encodeTags(it.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags for item %s: %w", it.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (
			id, source_id, source_type, external_id, url, title, summary, content,
			published_at, updated_at, fetched_at, category, tags, geometry,
			lat, lon, location_name, location_confidence, location_rationale,
			raw, title_hash, content_hash, simhash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, it.ID, it.SourceID, it.SourceType, it.ExternalID, it.URL, it.Title,
		it.Summary, it.Content, toMillis(it.PublishedAt), toMillis(it.UpdatedAt),
		toMillis(it.FetchedAt), it.Category, tags, geo,
		nullFloat(it.Lat), nullFloat(it.Lon), it.LocationName,
		string(it.LocationConfidence), it.LocationRationale,
		nullRaw(it.Raw), it.TitleHash, it.ContentHash, int64(it.Simhash))
	if err != nil {
		return fmt.Errorf("inserting item %s: %w", it.ID, err)
	}
	return nil
}

// UpdateItem rewrites an existing item in place. Used when an upstream record
// is re-published with the same external ID.
func (s *Store) UpdateItem(ctx context.Context, it domain.Item) error {
	geo, err := encodeGeometry(it.Geometry)
	if err != nil {
		return fmt.Errorf("encoding geometry for item %s: %w", it.ID, err)
	}
	tags, err := encodeTags(it.Tags)
	if err != nil {
		return fmt.Errorf("encoding tags for item %s: %w", it.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE items SET
			url = ?, title = ?, summary = ?, content = ?,
			published_at = ?, updated_at = ?, fetched_at = ?,
			category = ?, tags = ?, geometry = ?, lat = ?, lon = ?,
			location_name = ?, location_confidence = ?, location_rationale = ?,
			raw = ?, title_hash = ?, content_hash = ?, simhash = ?
		WHERE id = ?
	`, it.URL, it.Title, it.Summary, it.Content,
		toMillis(it.PublishedAt), toMillis(it.UpdatedAt), toMillis(it.FetchedAt),
		it.Category, tags, geo, nullFloat(it.Lat), nullFloat(it.Lon),
		it.LocationName, string(it.LocationConfidence), it.LocationRationale,
		nullRaw(it.Raw), it.TitleHash, it.ContentHash, int64(it.Simhash), it.ID)
	if err != nil {
		return fmt.Errorf("updating item %s: %w", it.ID, err)
	}
	return nil
}

const itemColumns = `
	id, source_id, source_type, external_id, url, title, summary, content,
	published_at, updated_at, fetched_at, category, tags, geometry,
	lat, lon, location_name, location_confidence, location_rationale,
	raw, title_hash, content_hash, simhash`

// ItemByURL returns the item with the given canonical URL, or (nil, nil).
func (s *Store) ItemByURL(ctx context.Context, url string) (*domain.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE url = ? LIMIT 1`, url)
	return scanOptionalItem(row)
}

// ItemBySourceExternalID returns the item keyed by the upstream identifier,
// or (nil, nil).
func (s *Store) ItemBySourceExternalID(ctx context.Context, sourceID, externalID string) (*domain.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE source_id = ? AND external_id = ? LIMIT 1`,
		sourceID, externalID)
	return scanOptionalItem(row)
}

// HasRecentTitleHash reports whether the source already produced an item with
// this normalized-title hash at or after the cutoff.
func (s *Store) HasRecentTitleHash(ctx context.Context, sourceID, titleHash string, since time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM items
		WHERE source_id = ? AND title_hash = ? AND fetched_at >= ?
	`, sourceID, titleHash, toMillis(since)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IncidentIDForItem returns the incident the item belongs to, or "" if
// unclustered.
func (s *Store) IncidentIDForItem(ctx context.Context, itemID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT incident_id FROM incident_items WHERE item_id = ? LIMIT 1`, itemID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// DeleteItemsBefore removes items fetched before the cutoff unless they are
// members of an incident that is still active or cooling. Returns the number
// of rows deleted.
func (s *Store) DeleteItemsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM items
		WHERE fetched_at < ?
		AND id NOT IN (
			SELECT ii.item_id FROM incident_items ii
			JOIN incidents i ON i.id = ii.incident_id
			WHERE i.status IN ('active', 'cooling')
		)
	`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting expired items: %w", err)
	}
	return res.RowsAffected()
}

func collectItems(rows *sql.Rows) ([]domain.Item, error) {
	var items []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanOptionalItem(row *sql.Row) (*domain.Item, error) {
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (domain.Item, error) {
	var it domain.Item
	var publishedAt, updatedAt, fetchedAt, simhash int64
	var tags string
	var geo, raw sql.NullString
	var lat, lon sql.NullFloat64
	var confidence string

	err := scanner.Scan(
		&it.ID, &it.SourceID, &it.SourceType, &it.ExternalID, &it.URL,
		&it.Title, &it.Summary, &it.Content,
		&publishedAt, &updatedAt, &fetchedAt, &it.Category, &tags, &geo,
		&lat, &lon, &it.LocationName, &confidence, &it.LocationRationale,
		&raw, &it.TitleHash, &it.ContentHash, &simhash,
	)
	if err != nil {
		return domain.Item{}, err
	}

	it.PublishedAt = fromMillis(publishedAt)
	it.UpdatedAt = fromMillis(updatedAt)
	it.FetchedAt = fromMillis(fetchedAt)
	it.LocationConfidence = domain.Confidence(confidence)
	it.Simhash = uint64(simhash)
	if lat.Valid && lon.Valid {
		it.SetPoint(lat.Float64, lon.Float64)
	}
	if raw.Valid && raw.String != "" {
		it.Raw = json.RawMessage(raw.String)
	}
	if tags != "" && tags != "[]" {
		if err := json.Unmarshal([]byte(tags), &it.Tags); err != nil {
			return domain.Item{}, fmt.Errorf("decoding tags for item %s: %w", it.ID, err)
		}
	}
	if geo.Valid && geo.String != "" {
		var g domain.Geometry
		if err := json.Unmarshal([]byte(geo.String), &g); err != nil {
			return domain.Item{}, fmt.Errorf("decoding geometry for item %s: %w", it.ID, err)
		}
		it.Geometry = &g
	}
	return it, nil
}

func encodeGeometry(g *domain.Geometry) (any, error) {
	if g == nil {
		return nil, nil
	}
	b, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
