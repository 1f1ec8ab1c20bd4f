package httpapi

import (
	"time"

	"github.com/couchcryptid/incident-feed/internal/domain"
	"github.com/couchcryptid/incident-feed/internal/store"
)

// incidentJSON is the wire form of an incident.
type incidentJSON struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Summary       string    `json:"summary,omitempty"`
	Category      string    `json:"category"`
	Status        string    `json:"status"`
	SeverityScore int       `json:"severity_score"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	LastItemAt    time.Time `json:"last_item_at,omitzero"`

	Lat        *float64 `json:"lat,omitempty"`
	Lon        *float64 `json:"lon,omitempty"`
	BBox       string   `json:"bbox,omitempty"`
	Confidence string   `json:"location_confidence"`
	Rationale  string   `json:"location_rationale,omitempty"`

	ItemCount   int `json:"item_count"`
	SourceCount int `json:"source_count"`
}

type incidentDetailJSON struct {
	incidentJSON
	Items []itemJSON `json:"items"`
}

// itemJSON is the wire form of a member item.
type itemJSON struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	URL         string    `json:"url,omitempty"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	Category    string    `json:"category"`
	PublishedAt time.Time `json:"published_at,omitzero"`
	FetchedAt   time.Time `json:"fetched_at"`

	Lat        *float64 `json:"lat,omitempty"`
	Lon        *float64 `json:"lon,omitempty"`
	Location   string   `json:"location_name,omitempty"`
	Confidence string   `json:"location_confidence"`
	Rationale  string   `json:"location_rationale,omitempty"`
}

// sourceJSON joins a source row with its health record.
type sourceJSON struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	URL          string    `json:"url"`
	PollSeconds  int       `json:"poll_interval_seconds"`
	Enabled      bool      `json:"enabled"`
	NextFetchAt  time.Time `json:"next_fetch_at,omitzero"`

	ConsecutiveFailures int       `json:"consecutive_failures"`
	BackoffSeconds      int       `json:"backoff_seconds,omitempty"`
	LastSuccessAt       time.Time `json:"last_success_at,omitzero"`
	LastErrorAt         time.Time `json:"last_error_at,omitzero"`
	LastStatusCode      int       `json:"last_status_code,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	SuccessCount        int64     `json:"success_count"`
	ErrorCount          int64     `json:"error_count"`
}

type statsJSON struct {
	Bucket         string               `json:"bucket"`
	TotalItems     int64                `json:"total_items"`
	TotalIncidents int64                `json:"total_incidents"`
	Buckets        []store.CategoryStat `json:"buckets"`
}

func toIncidentJSON(inc domain.Incident) incidentJSON {
	out := incidentJSON{
		ID:            inc.ID,
		Title:         inc.Title,
		Summary:       inc.Summary,
		Category:      inc.Category,
		Status:        string(inc.Status),
		SeverityScore: inc.SeverityScore,
		FirstSeenAt:   inc.FirstSeenAt,
		LastSeenAt:    inc.LastSeenAt,
		LastItemAt:    inc.LastItemAt,
		Lat:           inc.Lat,
		Lon:           inc.Lon,
		Confidence:    string(inc.LocationConfidence),
		Rationale:     inc.LocationRationale,
		ItemCount:     inc.ItemCount,
		SourceCount:   inc.SourceCount,
	}
	if inc.BBox != nil {
		out.BBox = inc.BBox.String()
	}
	return out
}

func toItemJSON(it domain.Item) itemJSON {
	return itemJSON{
		ID:          it.ID,
		SourceID:    it.SourceID,
		URL:         it.URL,
		Title:       it.Title,
		Summary:     it.Summary,
		Category:    it.Category,
		PublishedAt: it.PublishedAt,
		FetchedAt:   it.FetchedAt,
		Lat:         it.Lat,
		Lon:         it.Lon,
		Location:    it.LocationName,
		Confidence:  string(it.LocationConfidence),
		Rationale:   it.LocationRationale,
	}
}

func toSourceJSON(src domain.Source, h domain.SourceHealth) sourceJSON {
	return sourceJSON{
		ID:                  src.ID,
		Name:                src.Name,
		Type:                src.Type,
		URL:                 src.URL,
		PollSeconds:         int(src.PollInterval.Seconds()),
		Enabled:             src.Enabled,
		NextFetchAt:         src.NextFetchAt,
		ConsecutiveFailures: h.ConsecutiveFailures,
		BackoffSeconds:      h.BackoffSeconds,
		LastSuccessAt:       h.LastSuccessAt,
		LastErrorAt:         h.LastErrorAt,
		LastStatusCode:      h.LastStatusCode,
		LastError:           h.LastError,
		SuccessCount:        h.SuccessCount,
		ErrorCount:          h.ErrorCount,
	}
}
