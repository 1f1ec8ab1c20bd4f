package store

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

// IncidentFilter narrows ListIncidents. Zero values mean "no constraint".
type IncidentFilter struct {
	Since       time.Time
	Until       time.Time
	Categories  []string
	BBox        *domain.BBox
	Query       string
	MinSeverity int
	Limit       int
}

const defaultListLimit = 200

// orDefaultLimit applies the default when the caller gave none. Explicit
// limits are honored as-is; the HTTP layer enforces its own ceiling.
func orDefaultLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

// qualifiedIncidentColumns prefixes each incident column so joins against
// incidents_fts (which also has title/summary) stay unambiguous.
var qualifiedIncidentColumns = func() string {
	cols := strings.Split(incidentColumns, ",")
	for i, c := range cols {
		cols[i] = "incidents." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}()

// ListIncidents returns incidents matching the filter, most recent first.
func (s *Store) ListIncidents(ctx context.Context, f IncidentFilter) ([]domain.Incident, error) {
	var where []string
	var args []any

	query := `SELECT ` + qualifiedIncidentColumns + ` FROM incidents`

	if f.Query != "" {
		fts := BuildFTSQuery(f.Query)
		if fts == "" {
			return nil, nil
		}
		query += ` JOIN incidents_fts fts ON incidents.rowid = fts.rowid`
		where = append(where, `fts.incidents_fts MATCH ?`)
		args = append(args, fts)
	}
	if !f.Since.IsZero() {
		where = append(where, `incidents.last_seen_at >= ?`)
		args = append(args, toMillis(f.Since))
	}
	if !f.Until.IsZero() {
		where = append(where, `incidents.last_seen_at <= ?`)
		args = append(args, toMillis(f.Until))
	}
	if len(f.Categories) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.Categories)), ",")
		where = append(where, `incidents.category IN (`+placeholders+`)`)
		for _, c := range f.Categories {
			args = append(args, c)
		}
	}
	if f.MinSeverity > 0 {
		where = append(where, `incidents.severity_score >= ?`)
		args = append(args, f.MinSeverity)
	}
	if f.BBox != nil {
		where = append(where, `incidents.lat IS NOT NULL AND incidents.lat BETWEEN ? AND ? AND incidents.lon BETWEEN ? AND ?`)
		args = append(args, f.BBox.MinLat, f.BBox.MaxLat, f.BBox.MinLon, f.BBox.MaxLon)
	}

	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY incidents.last_seen_at DESC LIMIT ?`
	args = append(args, orDefaultLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()
	return collectIncidents(rows)
}

// qualifiedItemColumns prefixes each item column for joins against items_fts.
var qualifiedItemColumns = func() string {
	cols := strings.Split(itemColumns, ",")
	for i, c := range cols {
		cols[i] = "items." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}()

// RecentItems returns the newest items by publish time.
func (s *Store) RecentItems(ctx context.Context, limit int) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items ORDER BY published_at DESC LIMIT ?`,
		orDefaultLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

// SearchItems returns items matching a full-text query, newest first.
func (s *Store) SearchItems(ctx context.Context, q string, limit int) ([]domain.Item, error) {
	fts := BuildFTSQuery(q)
	if fts == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+qualifiedItemColumns+` FROM items
		JOIN items_fts fts ON items.rowid = fts.rowid
		WHERE fts.items_fts MATCH ?
		ORDER BY items.published_at DESC LIMIT ?
	`, fts, orDefaultLimit(limit))
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

// CategoryStat is one bucketed count for the stats endpoint.
type CategoryStat struct {
	Bucket   string `json:"bucket"`
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// CategoryStats returns incident counts grouped by category and time bucket
// ("hour" or "day") since the cutoff.
func (s *Store) CategoryStats(ctx context.Context, since time.Time, bucket string) ([]CategoryStat, error) {
	format := "%Y-%m-%dT%H:00:00Z"
	if bucket == "day" {
		format = "%Y-%m-%d"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime(?, last_seen_at / 1000, 'unixepoch') AS bucket,
		       category, COUNT(1)
		FROM incidents
		WHERE last_seen_at >= ?
		GROUP BY bucket, category
		ORDER BY bucket, category
	`, format, toMillis(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []CategoryStat
	for rows.Next() {
		var st CategoryStat
		if err := rows.Scan(&st.Bucket, &st.Category, &st.Count); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Counts returns total row counts for readiness and stats reporting.
func (s *Store) Counts(ctx context.Context) (items, incidents int64, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM items`).Scan(&items); err != nil {
		return 0, 0, fmt.Errorf("counting items: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM incidents`).Scan(&incidents); err != nil {
		return 0, 0, fmt.Errorf("counting incidents: %w", err)
	}
	return items, incidents, nil
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "of": true, "is": true,
	"it": true, "and": true, "or": true, "with": true, "from": true,
	"by": true, "this": true, "that": true, "as": true, "be": true,
}

// BuildFTSQuery preprocesses a natural language query for FTS5.
// Splits on whitespace, removes stopwords and words < 3 chars, trims
// punctuation, joins with " OR ".
func BuildFTSQuery(query string) string {
	words := strings.Fields(query)
	var filtered []string
	for _, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		})
		if len(trimmed) < 3 {
			continue
		}
		if stopwords[strings.ToLower(trimmed)] {
			continue
		}
		filtered = append(filtered, `"`+trimmed+`"`)
	}
	return strings.Join(filtered, " OR ")
}
