// Package publish fans incident and health events out to subscribers over a
// bounded in-process bus, with an optional Kafka sink. Publishing never
// blocks ingestion; a slow subscriber loses its oldest events instead.
package publish

import (
	"time"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

// Event kinds on the stream.
const (
	KindIncidentCreated = "incident.created"
	KindIncidentUpdated = "incident.updated"
	KindSourceHealth    = "source.health"
	KindHeartbeat       = "heartbeat"
)

// Event is one message on the stream. Fields outside the kind's payload are
// zero and omitted from the wire form.
type Event struct {
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`

	// incident.* payload
	IncidentID    string            `json:"incident_id,omitempty"`
	Title         string            `json:"title,omitempty"`
	Category      string            `json:"category,omitempty"`
	Status        domain.Status     `json:"status,omitempty"`
	SeverityScore int               `json:"severity_score,omitempty"`
	Lat           *float64          `json:"lat,omitempty"`
	Lon           *float64          `json:"lon,omitempty"`
	Confidence    domain.Confidence `json:"confidence,omitempty"`
	LastSeenAt    time.Time         `json:"last_seen_at,omitzero"`
	ItemCount     int               `json:"item_count,omitempty"`
	SourceCount   int               `json:"source_count,omitempty"`
	MergedFrom    string            `json:"merged_from,omitempty"`

	// source.health payload
	SourceID            string `json:"source_id,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures,omitempty"`
	LastError           string `json:"last_error,omitempty"`
}

// IncidentEvent builds an incident.created or incident.updated event.
func IncidentEvent(kind string, inc domain.Incident, mergedFrom string) Event {
	return Event{
		Kind:          kind,
		At:            domain.Now(),
		IncidentID:    inc.ID,
		Title:         inc.Title,
		Category:      inc.Category,
		Status:        inc.Status,
		SeverityScore: inc.SeverityScore,
		Lat:           inc.Lat,
		Lon:           inc.Lon,
		Confidence:    inc.LocationConfidence,
		LastSeenAt:    inc.LastSeenAt,
		ItemCount:     inc.ItemCount,
		SourceCount:   inc.SourceCount,
		MergedFrom:    mergedFrom,
	}
}

// HealthEvent builds a source.health event.
func HealthEvent(h domain.SourceHealth) Event {
	return Event{
		Kind:                KindSourceHealth,
		At:                  domain.Now(),
		SourceID:            h.SourceID,
		ConsecutiveFailures: h.ConsecutiveFailures,
		LastError:           h.LastError,
	}
}

// Heartbeat builds the periodic liveness event.
func Heartbeat() Event {
	return Event{Kind: KindHeartbeat, At: domain.Now()}
}
