package store

import (
	"context"
	"fmt"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

// InsertPlace adds one gazetteer entry.
func (s *Store) InsertPlace(ctx context.Context, p domain.Place) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO places (name, normalized_name, kind, country_code, admin1, lat, lon, importance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Name, p.NormalizedName, p.Kind, p.CountryCode, p.Admin1, p.Lat, p.Lon, p.Importance)
	if err != nil {
		return fmt.Errorf("inserting place %q: %w", p.Name, err)
	}
	return nil
}

// PlacesByNormalizedName returns all gazetteer entries whose normalized name
// matches exactly, highest importance first.
func (s *Store) PlacesByNormalizedName(ctx context.Context, normalized string) ([]domain.Place, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, normalized_name, kind, country_code, admin1, lat, lon, importance
		FROM places WHERE normalized_name = ?
		ORDER BY importance DESC
	`, normalized)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var places []domain.Place
	for rows.Next() {
		var p domain.Place
		if err := rows.Scan(&p.ID, &p.Name, &p.NormalizedName, &p.Kind,
			&p.CountryCode, &p.Admin1, &p.Lat, &p.Lon, &p.Importance); err != nil {
			return nil, err
		}
		places = append(places, p)
	}
	return places, rows.Err()
}

// CountryByCode returns the country place for an ISO code, or (nil, nil).
func (s *Store) CountryByCode(ctx context.Context, code string) (*domain.Place, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, normalized_name, kind, country_code, admin1, lat, lon, importance
		FROM places WHERE kind = 'country' AND country_code = ?
		ORDER BY importance DESC LIMIT 1
	`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	var p domain.Place
	if err := rows.Scan(&p.ID, &p.Name, &p.NormalizedName, &p.Kind,
		&p.CountryCode, &p.Admin1, &p.Lat, &p.Lon, &p.Importance); err != nil {
		return nil, err
	}
	return &p, nil
}

// PlaceCount returns the number of gazetteer entries.
func (s *Store) PlaceCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM places`).Scan(&n)
	return n, err
}
