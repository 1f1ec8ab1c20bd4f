// Package cluster groups items into incidents by simhash fingerprint, with a
// token-overlap fallback in the gray zone and a spatial merge pass for
// incidents that converge on the same event from different wording.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

const (
	// attachDistance is the Hamming distance at or under which an item joins
	// a candidate incident outright.
	attachDistance = 6
	// reviewDistance is the upper bound of the gray zone. Between
	// attachDistance+1 and here the token-overlap check decides; beyond it
	// the item never auto-joins.
	reviewDistance = 12

	candidateLimit     = 200
	mergeScanLimit     = 100
	defaultLookback    = 48 * time.Hour
	newsLookback       = 24 * time.Hour
	signatureTokens    = 8
	summaryHashRunes   = 280
	hardSeparationKm   = 3000.0
	defaultMergeKm     = 150.0
	defaultJaccard     = 0.45
)

// jaccardByCategory sets the token-overlap threshold for the gray zone.
// Headline-driven categories need more overlap; instrument-driven ones
// (repeating magnitudes, station names) need less.
var jaccardByCategory = map[string]float64{
	"news":       0.60,
	"earthquake": 0.40,
	"volcano":    0.40,
	"tsunami":    0.40,
}

// mergeRadiusByCategory is the centroid distance under which two incidents
// with near-identical fingerprints are folded together.
var mergeRadiusByCategory = map[string]float64{
	"news":                40,
	"earthquake":          120,
	"volcano":             120,
	"wildfire":            50,
	"tsunami":             2500,
	"aviation_disruption": 30,
	"weather_alert":       120,
	"tropical_cyclone":    500,
}

// noMergeCategories are country-scoped feeds where one advisory per country
// is the correct shape; spatial merging would collapse neighbors.
var noMergeCategories = map[string]struct{}{
	"travel_advisory": {},
	"health_advisory": {},
}

// incidentStore is the slice of the store the engine needs.
type incidentStore interface {
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	CandidateIncidents(ctx context.Context, category string, bucket uint16, since time.Time, limit int) ([]domain.Incident, error)
	RecentIncidents(ctx context.Context, category string, since time.Time, limit int) ([]domain.Incident, error)
	InsertIncident(ctx context.Context, in domain.Incident) error
	UpdateIncident(ctx context.Context, in domain.Incident) error
	AttachItem(ctx context.Context, incidentID, itemID string, joinedAt time.Time) error
	IncidentItems(ctx context.Context, incidentID string) ([]domain.Item, error)
	IncidentSourceCount(ctx context.Context, incidentID string) (int, error)
	MergeIncidents(ctx context.Context, winnerID, loserID string, hamming int, distanceKm float64, mergedAt time.Time) error
}

// Outcome reports what a single assignment did.
type Outcome struct {
	Incident domain.Incident
	Created  bool
	MergedID string // incident absorbed by a spatial merge, if any
}

// Engine assigns items to incidents. Callers serialize Assign calls; the
// engine itself holds no lock, matching the pipeline's single-writer model.
type Engine struct {
	store  incidentStore
	logger *slog.Logger
}

func NewEngine(store incidentStore, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Assign places an item into an existing incident or creates one. An item
// never fails to land: when nothing matches, a new incident is born.
func (e *Engine) Assign(ctx context.Context, it domain.Item) (Outcome, error) {
	now := domain.Now()
	since := now.Add(-lookback(it.Category))

	candidates, err := e.store.CandidateIncidents(ctx, it.Category, domain.SimhashBucket(it.Simhash), since, candidateLimit)
	if err != nil {
		return Outcome{}, fmt.Errorf("cluster: load candidates: %w", err)
	}

	target := matchCandidate(it, candidates)
	created := target == nil
	if created {
		fresh := newIncident(it, now)
		if err := e.store.InsertIncident(ctx, fresh); err != nil {
			return Outcome{}, fmt.Errorf("cluster: create incident: %w", err)
		}
		target = &fresh
	}

	if err := e.store.AttachItem(ctx, target.ID, it.ID, now); err != nil {
		return Outcome{}, fmt.Errorf("cluster: attach item: %w", err)
	}
	refreshed, err := e.refresh(ctx, *target, now)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Incident: refreshed, Created: created}
	if _, skip := noMergeCategories[it.Category]; !skip {
		merged, mergedID, err := e.mergeNearby(ctx, refreshed, since, now)
		if err != nil {
			return Outcome{}, err
		}
		if mergedID != "" {
			out.Incident = merged
			out.MergedID = mergedID
		}
	}
	return out, nil
}

// Reassess recomputes an incident after one of its members was updated in
// place, keeping counts, severity, and geography in step with the new text.
func (e *Engine) Reassess(ctx context.Context, incidentID string) (Outcome, error) {
	inc, err := e.store.GetIncident(ctx, incidentID)
	if err != nil {
		return Outcome{}, fmt.Errorf("cluster: load incident: %w", err)
	}
	if inc == nil {
		return Outcome{}, fmt.Errorf("cluster: incident %s vanished during reassess", incidentID)
	}
	refreshed, err := e.refresh(ctx, *inc, domain.Now())
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Incident: refreshed}, nil
}

// matchCandidate picks the closest fingerprint, then applies the gray-zone
// token check. Candidates past reviewDistance never match regardless of text.
func matchCandidate(it domain.Item, candidates []domain.Incident) *domain.Incident {
	var best *domain.Incident
	bestDist := reviewDistance + 1
	for i := range candidates {
		d := domain.HammingDistance(it.Simhash, candidates[i].Simhash)
		if d < bestDist {
			bestDist = d
			best = &candidates[i]
		}
	}
	if best == nil {
		return nil
	}
	if bestDist <= attachDistance {
		return best
	}
	if domain.TokenJaccard(it.Title, best.Title) >= jaccardThreshold(it.Category) {
		return best
	}
	return nil
}

// mergeNearby folds another incident into inc when their fingerprints nearly
// coincide and their centroids sit within the category radius. The older
// incident survives so external references stay valid.
func (e *Engine) mergeNearby(ctx context.Context, inc domain.Incident, since, now time.Time) (domain.Incident, string, error) {
	if !inc.HasPoint() {
		return inc, "", nil
	}
	recent, err := e.store.RecentIncidents(ctx, inc.Category, since, mergeScanLimit)
	if err != nil {
		return inc, "", fmt.Errorf("cluster: scan for merges: %w", err)
	}

	radius := mergeRadius(inc.Category)
	for i := range recent {
		other := recent[i]
		if other.ID == inc.ID || !other.HasPoint() {
			continue
		}
		d := domain.HammingDistance(inc.Simhash, other.Simhash)
		if d > attachDistance {
			continue
		}
		km := domain.HaversineKm(*inc.Lat, *inc.Lon, *other.Lat, *other.Lon)
		if km > radius || km > hardSeparationKm {
			continue
		}

		winner, loser := inc, other
		if other.FirstSeenAt.Before(inc.FirstSeenAt) {
			winner, loser = other, inc
		}
		if err := e.store.MergeIncidents(ctx, winner.ID, loser.ID, d, km, now); err != nil {
			return inc, "", fmt.Errorf("cluster: merge incidents: %w", err)
		}
		e.logger.Info("incidents merged",
			slog.String("winner_id", winner.ID),
			slog.String("loser_id", loser.ID),
			slog.Int("hamming", d),
			slog.Float64("distance_km", km))

		refreshed, err := e.refresh(ctx, winner, now)
		if err != nil {
			return inc, "", err
		}
		return refreshed, loser.ID, nil
	}
	return inc, "", nil
}

// refresh recomputes the incident's derived state from its current members
// and persists it. Any new member reactivates a cooling or resolved incident.
func (e *Engine) refresh(ctx context.Context, inc domain.Incident, now time.Time) (domain.Incident, error) {
	items, err := e.store.IncidentItems(ctx, inc.ID)
	if err != nil {
		return inc, fmt.Errorf("cluster: load members: %w", err)
	}
	sources, err := e.store.IncidentSourceCount(ctx, inc.ID)
	if err != nil {
		return inc, fmt.Errorf("cluster: count sources: %w", err)
	}
	if len(items) == 0 {
		return inc, nil
	}

	latest := items[0]
	lastItemAt := itemTime(latest)
	baseSeverity := 0
	bestConfidence := domain.ConfidenceUnknown
	for _, m := range items {
		if t := itemTime(m); t.After(lastItemAt) {
			lastItemAt = t
			latest = m
		}
		if s := domain.ItemSeverity(m.Category, m.Raw); s > baseSeverity {
			baseSeverity = s
		}
		if m.LocationConfidence.Rank() > bestConfidence.Rank() {
			bestConfidence = m.LocationConfidence
		}
	}

	inc.Title = latest.Title
	inc.Summary = latest.Summary
	inc.LastItemAt = lastItemAt
	inc.LastSeenAt = now
	inc.Status = domain.StatusActive
	inc.ItemCount = len(items)
	inc.SourceCount = sources
	inc.SeverityScore = domain.IncidentSeverity(baseSeverity, len(items), sources)
	inc.Simhash = domain.Simhash64(fingerprintText(latest.Title, latest.Summary))
	inc.TokenSignature = domain.TokenSignature(latest.Title, signatureTokens)
	inc.LocationConfidence = bestConfidence
	if latest.LocationRationale != "" {
		inc.LocationRationale = latest.LocationRationale
	}

	applyGeography(&inc, items)

	if err := e.store.UpdateIncident(ctx, inc); err != nil {
		return inc, fmt.Errorf("cluster: update incident: %w", err)
	}
	return inc, nil
}

// applyGeography sets the centroid from the best-tier member points and the
// bounding box from every located member. Coarse country points only steer
// the centroid when nothing better exists.
func applyGeography(inc *domain.Incident, items []domain.Item) {
	points := tierPoints(items, 20)
	if len(points) == 0 {
		points = tierPoints(items, 10)
	}
	if len(points) > 0 {
		var latSum, lonSum float64
		for _, p := range points {
			latSum += p[0]
			lonSum += p[1]
		}
		lat := latSum / float64(len(points))
		lon := lonSum / float64(len(points))
		inc.Lat = &lat
		inc.Lon = &lon
	}

	var box *domain.BBox
	for _, m := range items {
		var b domain.BBox
		switch {
		case m.Geometry != nil:
			var ok bool
			if b, ok = m.Geometry.BoundingBox(); !ok {
				continue
			}
		case m.HasPoint():
			b = domain.BBox{MinLat: *m.Lat, MinLon: *m.Lon, MaxLat: *m.Lat, MaxLon: *m.Lon}
		default:
			continue
		}
		if box == nil {
			box = &b
		} else {
			u := box.Union(b)
			box = &u
		}
	}
	inc.BBox = box

	if inc.Geometry == nil {
		for _, m := range items {
			if m.Geometry != nil {
				inc.Geometry = m.Geometry
				break
			}
		}
	}
}

func tierPoints(items []domain.Item, minRank int) [][2]float64 {
	var points [][2]float64
	for _, m := range items {
		if m.HasPoint() && m.LocationConfidence.Rank() >= minRank {
			points = append(points, [2]float64{*m.Lat, *m.Lon})
		}
	}
	return points
}

func newIncident(it domain.Item, now time.Time) domain.Incident {
	return domain.Incident{
		ID:                 uuid.NewString(),
		Title:              it.Title,
		Summary:            it.Summary,
		Category:           it.Category,
		FirstSeenAt:        now,
		LastSeenAt:         now,
		LastItemAt:         itemTime(it),
		Status:             domain.StatusActive,
		Simhash:            domain.Simhash64(fingerprintText(it.Title, it.Summary)),
		TokenSignature:     domain.TokenSignature(it.Title, signatureTokens),
		LocationConfidence: it.LocationConfidence,
		LocationRationale:  it.LocationRationale,
	}
}

func fingerprintText(title, summary string) string {
	runes := []rune(summary)
	if len(runes) > summaryHashRunes {
		summary = string(runes[:summaryHashRunes])
	}
	return title + " " + summary
}

func itemTime(it domain.Item) time.Time {
	if !it.PublishedAt.IsZero() {
		return it.PublishedAt
	}
	return it.FetchedAt
}

func lookback(category string) time.Duration {
	if category == "news" {
		return newsLookback
	}
	return defaultLookback
}

func jaccardThreshold(category string) float64 {
	if v, ok := jaccardByCategory[category]; ok {
		return v
	}
	return defaultJaccard
}

func mergeRadius(category string) float64 {
	if v, ok := mergeRadiusByCategory[category]; ok {
		return v
	}
	return defaultMergeKm
}
