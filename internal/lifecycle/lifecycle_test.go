package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-feed/internal/domain"
	"github.com/couchcryptid/incident-feed/internal/store"
)

func TestNextStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		current domain.Status
		idle    time.Duration
		want    domain.Status
	}{
		{"fresh active stays active", domain.StatusActive, time.Hour, domain.StatusActive},
		{"active at threshold stays active", domain.StatusActive, 24 * time.Hour, domain.StatusActive},
		{"stale active cools", domain.StatusActive, 25 * time.Hour, domain.StatusCooling},
		{"long-stale active resolves directly", domain.StatusActive, 80 * time.Hour, domain.StatusResolved},
		{"cooling within grace stays cooling", domain.StatusCooling, 48 * time.Hour, domain.StatusCooling},
		{"cooling past grace resolves", domain.StatusCooling, 73 * time.Hour, domain.StatusResolved},
		{"resolved never moves on time", domain.StatusResolved, 200 * time.Hour, domain.StatusResolved},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NextStatus(tc.current, now.Add(-tc.idle), now)
			assert.Equal(t, tc.want, got)
		})
	}
}

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(st, logger, 30*24*time.Hour, 90*24*time.Hour), st
}

func seedIncident(t *testing.T, st *store.Store, status domain.Status, lastItemAt time.Time) string {
	t.Helper()
	id := uuid.NewString()
	err := st.InsertIncident(context.Background(), domain.Incident{
		ID:          id,
		Title:       "seeded",
		Category:    "earthquake",
		FirstSeenAt: lastItemAt.Add(-time.Hour),
		LastSeenAt:  lastItemAt,
		LastItemAt:  lastItemAt,
		Status:      status,
	})
	require.NoError(t, err)
	return id
}

func TestSweep_Transitions(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })

	mgr, st := newTestManager(t)
	ctx := context.Background()

	fresh := seedIncident(t, st, domain.StatusActive, now.Add(-time.Hour))
	stale := seedIncident(t, st, domain.StatusActive, now.Add(-30*time.Hour))
	coolingOld := seedIncident(t, st, domain.StatusCooling, now.Add(-80*time.Hour))
	coolingYoung := seedIncident(t, st, domain.StatusCooling, now.Add(-40*time.Hour))

	res, err := mgr.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Cooled)
	assert.Equal(t, 1, res.Resolved)

	wantStatus := map[string]domain.Status{
		fresh:        domain.StatusActive,
		stale:        domain.StatusCooling,
		coolingOld:   domain.StatusResolved,
		coolingYoung: domain.StatusCooling,
	}
	for id, want := range wantStatus {
		inc, err := st.GetIncident(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, inc)
		assert.Equal(t, want, inc.Status, "incident %s", id)
	}
}

func TestSweep_FullAging(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fake := clockwork.NewFakeClockAt(now)
	domain.SetClock(fake)
	t.Cleanup(func() { domain.SetClock(nil) })

	mgr, st := newTestManager(t)
	ctx := context.Background()

	id := seedIncident(t, st, domain.StatusActive, now)

	fake.Advance(25 * time.Hour)
	_, err := mgr.Sweep(ctx)
	require.NoError(t, err)
	inc, err := st.GetIncident(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCooling, inc.Status)

	fake.Advance(50 * time.Hour)
	_, err = mgr.Sweep(ctx)
	require.NoError(t, err)
	inc, err = st.GetIncident(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, inc.Status)
}

func TestSweep_Retention(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })

	mgr, st := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertSource(ctx, domain.Source{
		ID: "src", Name: "src", Type: "rss", URL: "https://example.com/feed",
		PollInterval: time.Minute, Enabled: true,
	}))
	old := domain.Item{
		ID: uuid.NewString(), SourceID: "src", SourceType: "rss",
		URL:       "https://example.com/old",
		Title:     "old item",
		FetchedAt: now.Add(-40 * 24 * time.Hour),
	}
	require.NoError(t, st.InsertItem(ctx, old))
	ancient := seedIncident(t, st, domain.StatusResolved, now.Add(-100*24*time.Hour))

	res, err := mgr.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ItemsDeleted)
	assert.Equal(t, int64(1), res.IncidentsDeleted)

	gone, err := st.GetIncident(ctx, ancient)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
