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

const incidentColumns = `
	id, title, summary, category, first_seen_at, last_seen_at, last_item_at,
	status, severity_score, geometry, lat, lon, bbox,
	location_confidence, location_rationale, simhash, token_signature,
	item_count, source_count`

// InsertIncident stores a new incident cluster.
func (s *Store) InsertIncident(ctx context.Context, in domain.Incident) error {
	geo, err := encodeGeometry(in.Geometry)
	if err != nil {
		return fmt.Errorf("encoding geometry for incident %s: %w", in.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO incidents (
			id, title, summary, category, first_seen_at, last_seen_at, last_item_at,
			status, severity_score, geometry, lat, lon, bbox,
			location_confidence, location_rationale, simhash, simhash_bucket,
			token_signature, item_count, source_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, in.ID, in.Title, in.Summary, in.Category,
		toMillis(in.FirstSeenAt), toMillis(in.LastSeenAt), toMillis(in.LastItemAt),
		string(in.Status), in.SeverityScore, geo, nullFloat(in.Lat), nullFloat(in.Lon),
		encodeBBox(in.BBox), string(in.LocationConfidence), in.LocationRationale,
		int64(in.Simhash), int64(domain.SimhashBucket(in.Simhash)),
		in.TokenSignature, in.ItemCount, in.SourceCount)
	if err != nil {
		return fmt.Errorf("inserting incident %s: %w", in.ID, err)
	}
	return nil
}

// UpdateIncident rewrites a cluster's derived fields after membership changes.
func (s *Store) UpdateIncident(ctx context.Context, in domain.Incident) error {
	geo, err := encodeGeometry(in.Geometry)
	if err != nil {
		return fmt.Errorf("encoding geometry for incident %s: %w", in.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE incidents SET
			title = ?, summary = ?, category = ?,
			first_seen_at = ?, last_seen_at = ?, last_item_at = ?,
			status = ?, severity_score = ?, geometry = ?, lat = ?, lon = ?,
			bbox = ?, location_confidence = ?, location_rationale = ?,
			simhash = ?, simhash_bucket = ?, token_signature = ?,
			item_count = ?, source_count = ?
		WHERE id = ?
	`, in.Title, in.Summary, in.Category,
		toMillis(in.FirstSeenAt), toMillis(in.LastSeenAt), toMillis(in.LastItemAt),
		string(in.Status), in.SeverityScore, geo, nullFloat(in.Lat), nullFloat(in.Lon),
		encodeBBox(in.BBox), string(in.LocationConfidence), in.LocationRationale,
		int64(in.Simhash), int64(domain.SimhashBucket(in.Simhash)),
		in.TokenSignature, in.ItemCount, in.SourceCount, in.ID)
	if err != nil {
		return fmt.Errorf("updating incident %s: %w", in.ID, err)
	}
	return nil
}

// GetIncident returns an incident by ID, or (nil, nil) if absent.
func (s *Store) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	in, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// AttachItem links an item to an incident.
func (s *Store) AttachItem(ctx context.Context, incidentID, itemID string, joinedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO incident_items (incident_id, item_id, joined_at)
		VALUES (?, ?, ?)
	`, incidentID, itemID, toMillis(joinedAt))
	if err != nil {
		return fmt.Errorf("attaching item %s to incident %s: %w", itemID, incidentID, err)
	}
	return nil
}

// CandidateIncidents returns recent incidents in the same category and
// simhash bucket, newest first, capped at limit.
func (s *Store) CandidateIncidents(ctx context.Context, category string, bucket uint16, since time.Time, limit int) ([]domain.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE category = ? AND simhash_bucket = ? AND last_seen_at >= ?
		ORDER BY last_seen_at DESC
		LIMIT ?
	`, category, int64(bucket), toMillis(since), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIncidents(rows)
}

// RecentIncidents returns incidents in the category seen since the cutoff,
// regardless of simhash bucket. Used for spatial merge checks.
func (s *Store) RecentIncidents(ctx context.Context, category string, since time.Time, limit int) ([]domain.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE category = ? AND last_seen_at >= ?
		ORDER BY last_seen_at DESC
		LIMIT ?
	`, category, toMillis(since), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIncidents(rows)
}

// IncidentItems returns an incident's member items in join order.
func (s *Store) IncidentItems(ctx context.Context, incidentID string) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM items
		JOIN incident_items ii ON ii.item_id = items.id
		WHERE ii.incident_id = ?
		ORDER BY ii.joined_at, items.id
	`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

// IncidentSourceCount returns the number of distinct sources contributing
// items to the incident.
func (s *Store) IncidentSourceCount(ctx context.Context, incidentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT items.source_id) FROM items
		JOIN incident_items ii ON ii.item_id = items.id
		WHERE ii.incident_id = ?
	`, incidentID).Scan(&n)
	return n, err
}

// MergeIncidents moves the loser's items into the winner, records the merge
// for audit, and deletes the loser. Runs in one transaction.
func (s *Store) MergeIncidents(ctx context.Context, winnerID, loserID string, hamming int, distanceKm float64, mergedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning merge: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO incident_items (incident_id, item_id, joined_at)
		SELECT ?, item_id, joined_at FROM incident_items WHERE incident_id = ?
	`, winnerID, loserID); err != nil {
		return fmt.Errorf("moving items from %s to %s: %w", loserID, winnerID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM incident_items WHERE incident_id = ?`, loserID); err != nil {
		return fmt.Errorf("clearing members of %s: %w", loserID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO incident_merges (winner_id, loser_id, merged_at, hamming, distance_km)
		VALUES (?, ?, ?, ?, ?)
	`, winnerID, loserID, toMillis(mergedAt), hamming, distanceKm); err != nil {
		return fmt.Errorf("recording merge of %s into %s: %w", loserID, winnerID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM incidents WHERE id = ?`, loserID); err != nil {
		return fmt.Errorf("deleting merged incident %s: %w", loserID, err)
	}

	return tx.Commit()
}

// IncidentsForTransition returns incidents in the given status whose last
// member item predates the cutoff.
func (s *Store) IncidentsForTransition(ctx context.Context, status domain.Status, lastItemBefore time.Time) ([]domain.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE status = ? AND last_item_at < ?
		ORDER BY last_item_at
	`, string(status), toMillis(lastItemBefore))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIncidents(rows)
}

// SetIncidentStatus updates a single incident's lifecycle state.
func (s *Store) SetIncidentStatus(ctx context.Context, id string, status domain.Status) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE incidents SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("setting status of incident %s: %w", id, err)
	}
	return nil
}

// DeleteResolvedBefore removes resolved incidents whose last activity
// predates the cutoff. Member links cascade. Returns rows deleted.
func (s *Store) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM incidents WHERE status = 'resolved' AND last_item_at < ?
	`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting resolved incidents: %w", err)
	}
	return res.RowsAffected()
}

func collectIncidents(rows *sql.Rows) ([]domain.Incident, error) {
	var incidents []domain.Incident
	for rows.Next() {
		in, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, in)
	}
	return incidents, rows.Err()
}

func scanIncident(scanner interface{ Scan(dest ...any) error }) (domain.Incident, error) {
	var in domain.Incident
	var firstSeen, lastSeen, lastItem, simhash int64
	var geo sql.NullString
	var lat, lon sql.NullFloat64
	var bbox, status, confidence string

	err := scanner.Scan(
		&in.ID, &in.Title, &in.Summary, &in.Category,
		&firstSeen, &lastSeen, &lastItem,
		&status, &in.SeverityScore, &geo, &lat, &lon, &bbox,
		&confidence, &in.LocationRationale, &simhash, &in.TokenSignature,
		&in.ItemCount, &in.SourceCount,
	)
	if err != nil {
		return domain.Incident{}, err
	}

	in.FirstSeenAt = fromMillis(firstSeen)
	in.LastSeenAt = fromMillis(lastSeen)
	in.LastItemAt = fromMillis(lastItem)
	in.Status = domain.Status(status)
	in.LocationConfidence = domain.Confidence(confidence)
	in.Simhash = uint64(simhash)
	if lat.Valid && lon.Valid {
		la, lo := lat.Float64, lon.Float64
		in.Lat, in.Lon = &la, &lo
	}
	if geo.Valid && geo.String != "" {
		var g domain.Geometry
		if err := json.Unmarshal([]byte(geo.String), &g); err != nil {
			return domain.Incident{}, fmt.Errorf("decoding geometry for incident %s: %w", in.ID, err)
		}
		in.Geometry = &g
	}
	if bbox != "" {
		b, err := domain.ParseBBox(bbox)
		if err != nil {
			return domain.Incident{}, fmt.Errorf("decoding bbox for incident %s: %w", in.ID, err)
		}
		in.BBox = &b
	}
	return in, nil
}

func encodeBBox(b *domain.BBox) string {
	if b == nil {
		return ""
	}
	return b.String()
}
