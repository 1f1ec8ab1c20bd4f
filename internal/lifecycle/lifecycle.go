// Package lifecycle ages incidents through active, cooling, and resolved
// states on a timer, and sweeps expired rows. Transitions are a pure function
// of timestamps; reactivation on a new member item happens at assignment time.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

const (
	// coolingAfter is the inactivity span that moves an active incident to
	// cooling.
	coolingAfter = 24 * time.Hour
	// resolveAfter is the inactivity span that moves a cooling incident to
	// resolved.
	resolveAfter = 72 * time.Hour
)

// NextStatus returns the state an incident should hold at now given its last
// member item time. It never moves backward; reactivation is not time-driven.
func NextStatus(current domain.Status, lastItemAt, now time.Time) domain.Status {
	idle := now.Sub(lastItemAt)
	switch current {
	case domain.StatusActive:
		if idle > resolveAfter {
			return domain.StatusResolved
		}
		if idle > coolingAfter {
			return domain.StatusCooling
		}
	case domain.StatusCooling:
		if idle > resolveAfter {
			return domain.StatusResolved
		}
	}
	return current
}

// lifecycleStore is the slice of the store the manager needs.
type lifecycleStore interface {
	IncidentsForTransition(ctx context.Context, status domain.Status, lastItemBefore time.Time) ([]domain.Incident, error)
	SetIncidentStatus(ctx context.Context, id string, status domain.Status) error
	DeleteItemsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweepResult summarizes one pass for logging and the heartbeat event.
type SweepResult struct {
	Cooled           int
	Resolved         int
	ItemsDeleted     int64
	IncidentsDeleted int64
}

// Manager applies time-driven transitions and retention on a slow cadence.
type Manager struct {
	store             lifecycleStore
	logger            *slog.Logger
	itemRetention     time.Duration
	incidentRetention time.Duration
}

func NewManager(store lifecycleStore, logger *slog.Logger, itemRetention, incidentRetention time.Duration) *Manager {
	return &Manager{
		store:             store,
		logger:            logger,
		itemRetention:     itemRetention,
		incidentRetention: incidentRetention,
	}
}

// Sweep runs one transition and retention pass. Each incident is moved
// individually so a failure on one row never blocks the rest.
func (m *Manager) Sweep(ctx context.Context) (SweepResult, error) {
	now := domain.Now()
	var res SweepResult

	cooled, err := m.transition(ctx, domain.StatusActive, now.Add(-coolingAfter), now)
	if err != nil {
		return res, err
	}
	res.Cooled = cooled

	resolved, err := m.transition(ctx, domain.StatusCooling, now.Add(-resolveAfter), now)
	if err != nil {
		return res, err
	}
	res.Resolved = resolved

	res.ItemsDeleted, err = m.store.DeleteItemsBefore(ctx, now.Add(-m.itemRetention))
	if err != nil {
		return res, fmt.Errorf("lifecycle: item retention sweep: %w", err)
	}
	res.IncidentsDeleted, err = m.store.DeleteResolvedBefore(ctx, now.Add(-m.incidentRetention))
	if err != nil {
		return res, fmt.Errorf("lifecycle: incident retention sweep: %w", err)
	}

	m.logger.Info("lifecycle sweep complete",
		slog.Int("cooled", res.Cooled),
		slog.Int("resolved", res.Resolved),
		slog.Int64("items_deleted", res.ItemsDeleted),
		slog.Int64("incidents_deleted", res.IncidentsDeleted))
	return res, nil
}

func (m *Manager) transition(ctx context.Context, from domain.Status, lastItemBefore, now time.Time) (int, error) {
	incidents, err := m.store.IncidentsForTransition(ctx, from, lastItemBefore)
	if err != nil {
		return 0, fmt.Errorf("lifecycle: load %s incidents: %w", from, err)
	}
	moved := 0
	for _, inc := range incidents {
		next := NextStatus(from, inc.LastItemAt, now)
		if next == from {
			continue
		}
		if err := m.store.SetIncidentStatus(ctx, inc.ID, next); err != nil {
			m.logger.Error("lifecycle transition failed",
				slog.String("incident_id", inc.ID),
				slog.String("to", string(next)),
				slog.String("error", err.Error()))
			continue
		}
		moved++
	}
	return moved, nil
}
