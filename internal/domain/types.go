package domain

import (
	"encoding/json"
	"time"
)

// Confidence is a location confidence tier.
type Confidence string

const (
	ConfidenceExact         Confidence = "A_exact"
	ConfidenceCoordsInText  Confidence = "B_coords_in_text"
	ConfidencePlaceMatch    Confidence = "B_place_match"
	ConfidenceCountry       Confidence = "C_country"
	ConfidenceSourceDefault Confidence = "C_source_default"
	ConfidenceUnknown       Confidence = "U_unknown"
)

// Rank orders confidence tiers so the best tier among cluster members wins.
func (c Confidence) Rank() int {
	switch {
	case c == ConfidenceExact:
		return 30
	case c == ConfidenceCoordsInText || c == ConfidencePlaceMatch:
		return 20
	case c == ConfidenceCountry || c == ConfidenceSourceDefault:
		return 10
	default:
		return 0
	}
}

// Status is an incident lifecycle state. Transitions move forward in time
// (active -> cooling -> resolved) except for reactivation on a new member item.
type Status string

const (
	StatusActive   Status = "active"
	StatusCooling  Status = "cooling"
	StatusResolved Status = "resolved"
)

// Source describes one registered upstream feed. Owned by the scheduler;
// mutated only by scheduling and health outcomes.
type Source struct {
	ID             string
	Name           string
	Type           string
	URL            string
	PollInterval   time.Duration
	Enabled        bool
	ETag           string
	LastModified   string
	NextFetchAt    time.Time
	Cursor         string
	DefaultCountry string // country name for C_source_default resolution, if any
}

// SourceHealth is the per-source fetch outcome record. Mutated only by the
// health tracker after each fetch attempt.
type SourceHealth struct {
	SourceID            string
	ConsecutiveFailures int
	BackoffSeconds      int
	LastFetchAt         time.Time
	LastSuccessAt       time.Time
	LastErrorAt         time.Time
	LastStatusCode      int
	LastFetchMillis     int64
	LastError           string
	SuccessCount        int64
	ErrorCount          int64
}

// Item is one normalized incoming record.
type Item struct {
	ID         string
	SourceID   string
	SourceType string
	ExternalID string
	URL        string
	Title      string
	Summary    string
	Content    string

	PublishedAt time.Time
	UpdatedAt   time.Time
	FetchedAt   time.Time

	Category string
	Tags     []string

	Geometry           *Geometry
	Lat                *float64
	Lon                *float64
	LocationName       string
	LocationConfidence Confidence
	LocationRationale  string

	Raw         json.RawMessage
	TitleHash   string
	ContentHash string
	Simhash     uint64
}

// HasPoint reports whether the item carries a derived point.
func (it *Item) HasPoint() bool { return it.Lat != nil && it.Lon != nil }

// SetPoint assigns the derived point.
func (it *Item) SetPoint(lat, lon float64) {
	it.Lat = &lat
	it.Lon = &lon
}

// Incident is a deduplicated, geolocated, confidence-scored cluster of Items.
type Incident struct {
	ID       string
	Title    string
	Summary  string
	Category string

	FirstSeenAt time.Time
	LastSeenAt  time.Time
	LastItemAt  time.Time

	Status        Status
	SeverityScore int

	Geometry           *Geometry
	Lat                *float64
	Lon                *float64
	BBox               *BBox
	LocationConfidence Confidence
	LocationRationale  string

	Simhash        uint64
	TokenSignature string

	ItemCount   int
	SourceCount int
}

// HasPoint reports whether the incident has a centroid.
func (in *Incident) HasPoint() bool { return in.Lat != nil && in.Lon != nil }

// Place is one gazetteer entry. Read-only at runtime.
type Place struct {
	ID             int64
	Name           string
	NormalizedName string
	Kind           string // "country", "admin1", "city", ...
	CountryCode    string
	Admin1         string
	Lat            float64
	Lon            float64
	Importance     float64
}
