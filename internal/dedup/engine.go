// Package dedup decides whether an incoming item is new, a fresher version of
// a stored item, or a near-duplicate to drop. Checks run in a fixed order:
// canonical URL and source external ID are authoritative and short-circuit,
// the normalized-title match is the last and weakest filter.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

// titleWindow bounds how far back the normalized-title check looks within one
// source. Beyond it a repeated headline is treated as a fresh occurrence.
const titleWindow = 24 * time.Hour

// Action is the outcome of a dedup check.
type Action int

const (
	// ActionInsert means no stored item matched; persist as new.
	ActionInsert Action = iota
	// ActionUpdate means a stored item matched by canonical URL or by
	// source external ID; persist by updating that row in place.
	ActionUpdate
	// ActionDiscard means the item repeats a recent title from the same
	// source and carries no authoritative identity; drop it.
	ActionDiscard
)

func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	case ActionDiscard:
		return "discard"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision carries the action plus, for updates, the stored item to replace.
type Decision struct {
	Action Action
	// Existing is set when Action is ActionUpdate. Its ID must be kept so
	// incident membership rows stay valid.
	Existing *domain.Item
	// Reason names the rule that fired, for logging.
	Reason string
}

// itemIndex is the slice of the store the engine needs.
type itemIndex interface {
	ItemByURL(ctx context.Context, url string) (*domain.Item, error)
	ItemBySourceExternalID(ctx context.Context, sourceID, externalID string) (*domain.Item, error)
	HasRecentTitleHash(ctx context.Context, sourceID, titleHash string, since time.Time) (bool, error)
}

// Engine runs the dedup checks against stored items.
type Engine struct {
	index itemIndex
}

func NewEngine(index itemIndex) *Engine {
	return &Engine{index: index}
}

// Check classifies an incoming item against the stored corpus. The item must
// already be normalized (canonical URL, title hash, content hash populated).
func (e *Engine) Check(ctx context.Context, it domain.Item) (Decision, error) {
	if it.URL != "" {
		existing, err := e.index.ItemByURL(ctx, it.URL)
		if err != nil {
			return Decision{}, fmt.Errorf("dedup: lookup by url: %w", err)
		}
		if existing != nil {
			return Decision{Action: ActionUpdate, Existing: existing, Reason: "canonical URL match"}, nil
		}
	}

	if it.ExternalID != "" {
		existing, err := e.index.ItemBySourceExternalID(ctx, it.SourceID, it.ExternalID)
		if err != nil {
			return Decision{}, fmt.Errorf("dedup: lookup by external id: %w", err)
		}
		if existing != nil {
			return Decision{Action: ActionUpdate, Existing: existing, Reason: "source external ID match"}, nil
		}
	}

	if it.TitleHash != "" {
		since := domain.Now().Add(-titleWindow)
		seen, err := e.index.HasRecentTitleHash(ctx, it.SourceID, it.TitleHash, since)
		if err != nil {
			return Decision{}, fmt.Errorf("dedup: lookup by title hash: %w", err)
		}
		if seen {
			return Decision{Action: ActionDiscard, Reason: "repeated title within same source"}, nil
		}
	}

	return Decision{Action: ActionInsert, Reason: "no stored match"}, nil
}

// Merge folds the incoming version of an item into the stored one, keeping
// the most recent content and the stored identity. Cluster state (incident
// membership) keyed on the stored ID is unaffected.
func Merge(existing, incoming domain.Item) domain.Item {
	merged := incoming
	merged.ID = existing.ID

	// A stale replay must not roll back a newer stored version.
	if !existing.UpdatedAt.IsZero() && existing.UpdatedAt.After(effectiveUpdatedAt(incoming)) {
		merged = existing
		merged.FetchedAt = incoming.FetchedAt
		return merged
	}

	if merged.PublishedAt.IsZero() {
		merged.PublishedAt = existing.PublishedAt
	}
	if merged.ExternalID == "" {
		merged.ExternalID = existing.ExternalID
	}

	// Never degrade a resolved location on re-fetch.
	if existing.LocationConfidence.Rank() > merged.LocationConfidence.Rank() {
		merged.Geometry = existing.Geometry
		merged.Lat = existing.Lat
		merged.Lon = existing.Lon
		merged.LocationName = existing.LocationName
		merged.LocationConfidence = existing.LocationConfidence
		merged.LocationRationale = existing.LocationRationale
	}
	return merged
}

func effectiveUpdatedAt(it domain.Item) time.Time {
	if !it.UpdatedAt.IsZero() {
		return it.UpdatedAt
	}
	return it.PublishedAt
}
