// Package source defines the feed plugins: per-upstream parsers and
// normalizers that turn raw payloads into domain Items. Normalizers never
// fail on missing optional fields; a record that cannot yield a usable item
// is skipped.
package source

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

// Plugin describes one upstream feed and how to turn its payload into items.
type Plugin struct {
	ID             string
	Name           string
	Type           string // geojson_api, rss, xml_api, json_api, csv_api
	URL            string
	PollInterval   time.Duration
	Enabled        bool
	Category       string
	DefaultCountry string

	// Headers are extra request headers (API keys and the like).
	Headers map[string]string

	// BuildURL overrides URL for time-window or cursor-driven APIs. cursor is
	// the persisted source cursor; implementations may ignore it.
	BuildURL func(cursor string, now time.Time) string

	// NextCursor yields the cursor to persist after a successful fetch.
	// Nil leaves the stored cursor untouched.
	NextCursor func(cursor string, now time.Time) string

	// Items parses one fetched body into normalized items, in upstream order.
	Items func(body []byte, fetchedAt time.Time) ([]domain.Item, error)
}

// FetchURL resolves the request URL for this poll.
func (p Plugin) FetchURL(cursor string, now time.Time) string {
	if p.BuildURL != nil {
		return p.BuildURL(cursor, now)
	}
	return p.URL
}

// Source converts the plugin to its persisted registration record.
func (p Plugin) Source() domain.Source {
	return domain.Source{
		ID:             p.ID,
		Name:           p.Name,
		Type:           p.Type,
		URL:            p.URL,
		PollInterval:   p.PollInterval,
		Enabled:        p.Enabled,
		DefaultCountry: p.DefaultCountry,
	}
}

// ParseError indicates an unusable payload. The fetch itself succeeded, so
// the scheduler keeps the source's validators but counts the failure.
type ParseError struct {
	SourceID string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing payload from %s: %v", e.SourceID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// finishItem fills the derived identity fields every normalizer shares:
// item ID, canonical URL, title/content hashes, and the near-duplicate
// fingerprint over title plus leading summary.
func finishItem(it *domain.Item) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	it.URL = domain.CanonicalizeURL(it.URL)

	normalized := domain.NormalizeTitle(it.Title)
	it.TitleHash = domain.HashText(normalized)
	it.ContentHash = domain.HashText(strings.TrimSpace(
		normalized + "\n" + it.Summary + "\n" + it.Content))
	it.Simhash = domain.Simhash64(it.Title + " " + truncate(it.Summary, 280))
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// parseTime accepts the timestamp shapes the upstream feeds actually send:
// RFC3339, RFC1123(Z), and a few laxer RSS variants. Zero time on failure.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"2006-01-02T15:04:05.000",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func timeOr(t time.Time, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
