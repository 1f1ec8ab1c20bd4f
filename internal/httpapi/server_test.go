package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-feed/internal/domain"
	"github.com/couchcryptid/incident-feed/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(":0", st, logger), st
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func seedIncident(t *testing.T, st *store.Store, title, category string, severity int, lastSeen time.Time) string {
	t.Helper()
	// Spread categories geographically so bbox filters discriminate.
	lat, lon := 38.3, 142.4
	switch category {
	case "wildfire":
		lat, lon = 54.5, -115.0
	case "travel_advisory":
		lat, lon = 33.9, 67.7
	}
	id := uuid.NewString()
	err := st.InsertIncident(context.Background(), domain.Incident{
		ID:                 id,
		Title:              title,
		Summary:            "summary of " + title,
		Category:           category,
		FirstSeenAt:        lastSeen.Add(-time.Hour),
		LastSeenAt:         lastSeen,
		LastItemAt:         lastSeen,
		Status:             domain.StatusActive,
		SeverityScore:      severity,
		Lat:                &lat,
		Lon:                &lon,
		LocationConfidence: domain.ConfidenceExact,
		ItemCount:          1,
		SourceCount:        1,
	})
	require.NoError(t, err)
	return id
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyz(t *testing.T) {
	srv, st := newTestServer(t)

	rec := get(t, srv, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, st.Close())
	rec = get(t, srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListIncidents(t *testing.T) {
	srv, st := newTestServer(t)
	now := domain.Now()

	quakeID := seedIncident(t, st, "M 6.2 - 90 km E of Honshu, Japan", "earthquake", 66, now)
	seedIncident(t, st, "Wildfire hotspot cluster in Alberta", "wildfire", 55, now.Add(-2*time.Hour))
	seedIncident(t, st, "Old advisory", "travel_advisory", 30, now.Add(-90*24*time.Hour))

	type listResp struct {
		Incidents []incidentJSON `json:"incidents"`
	}

	t.Run("no filters returns all", func(t *testing.T) {
		rec := get(t, srv, "/api/incidents")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[listResp](t, rec)
		assert.Len(t, resp.Incidents, 3)
		assert.Equal(t, quakeID, resp.Incidents[0].ID, "most recent first")
	})

	t.Run("category filter", func(t *testing.T) {
		rec := get(t, srv, "/api/incidents?category=earthquake&category=wildfire")
		resp := decode[listResp](t, rec)
		assert.Len(t, resp.Incidents, 2)
	})

	t.Run("min severity", func(t *testing.T) {
		rec := get(t, srv, "/api/incidents?min_severity=60")
		resp := decode[listResp](t, rec)
		require.Len(t, resp.Incidents, 1)
		assert.Equal(t, quakeID, resp.Incidents[0].ID)
	})

	t.Run("since window", func(t *testing.T) {
		rec := get(t, srv, "/api/incidents?since="+now.Add(-24*time.Hour).Format(time.RFC3339))
		resp := decode[listResp](t, rec)
		assert.Len(t, resp.Incidents, 2)
	})

	t.Run("bbox", func(t *testing.T) {
		rec := get(t, srv, "/api/incidents?bbox=140,36,145,40")
		resp := decode[listResp](t, rec)
		require.NotEmpty(t, resp.Incidents)
		for _, inc := range resp.Incidents {
			assert.Equal(t, quakeID, inc.ID)
		}
	})

	t.Run("full text query", func(t *testing.T) {
		rec := get(t, srv, "/api/incidents?q=honshu")
		resp := decode[listResp](t, rec)
		require.Len(t, resp.Incidents, 1)
		assert.Equal(t, quakeID, resp.Incidents[0].ID)
	})

	t.Run("bad since is a 400", func(t *testing.T) {
		rec := get(t, srv, "/api/incidents?since=yesterday")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad bbox is a 400", func(t *testing.T) {
		rec := get(t, srv, "/api/incidents?bbox=1,2,3")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad min_severity is a 400", func(t *testing.T) {
		rec := get(t, srv, "/api/incidents?min_severity=lots")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetIncident(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()
	now := domain.Now()

	id := seedIncident(t, st, "M 6.2 - 90 km E of Honshu, Japan", "earthquake", 66, now)
	require.NoError(t, st.UpsertSource(ctx, domain.Source{
		ID: "usgs", Name: "USGS", Type: "geojson",
		URL: "https://example.com/usgs", PollInterval: time.Minute, Enabled: true,
	}))
	item := domain.Item{
		ID: uuid.NewString(), SourceID: "usgs", SourceType: "geojson",
		URL: "https://example.com/usgs/ev1", Title: "M 6.2", Category: "earthquake",
		FetchedAt: now, LocationConfidence: domain.ConfidenceExact,
	}
	require.NoError(t, st.InsertItem(ctx, item))
	require.NoError(t, st.AttachItem(ctx, id, item.ID, now))

	rec := get(t, srv, "/api/incidents/"+id)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[incidentDetailJSON](t, rec)
	assert.Equal(t, id, resp.ID)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, item.ID, resp.Items[0].ID)
	assert.Equal(t, "usgs", resp.Items[0].SourceID)

	t.Run("unknown id is a 404", func(t *testing.T) {
		rec := get(t, srv, "/api/incidents/"+uuid.NewString())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListItems(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()
	now := domain.Now()

	require.NoError(t, st.UpsertSource(ctx, domain.Source{
		ID: "usgs", Name: "USGS", Type: "geojson",
		URL: "https://example.com/usgs", PollInterval: time.Minute, Enabled: true,
	}))
	quake := domain.Item{
		ID: uuid.NewString(), SourceID: "usgs", SourceType: "geojson",
		URL: "https://example.com/usgs/ev1", Title: "M 6.2 earthquake off Honshu",
		Category: "earthquake", PublishedAt: now.Add(-time.Hour), FetchedAt: now,
		LocationConfidence: domain.ConfidenceExact,
	}
	fire := domain.Item{
		ID: uuid.NewString(), SourceID: "usgs", SourceType: "geojson",
		URL: "https://example.com/usgs/ev2", Title: "Wildfire near Athens",
		Category: "wildfire", PublishedAt: now, FetchedAt: now,
		LocationConfidence: domain.ConfidencePlaceMatch,
	}
	require.NoError(t, st.InsertItem(ctx, quake))
	require.NoError(t, st.InsertItem(ctx, fire))

	type itemsResp struct {
		Items []itemJSON `json:"items"`
	}

	t.Run("recent first", func(t *testing.T) {
		rec := get(t, srv, "/api/items")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[itemsResp](t, rec)
		require.Len(t, resp.Items, 2)
		assert.Equal(t, fire.ID, resp.Items[0].ID)
	})

	t.Run("full text search", func(t *testing.T) {
		rec := get(t, srv, "/api/items?q=athens")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[itemsResp](t, rec)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, fire.ID, resp.Items[0].ID)
	})

	t.Run("limit applies", func(t *testing.T) {
		rec := get(t, srv, "/api/items?limit=1")
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[itemsResp](t, rec)
		assert.Len(t, resp.Items, 1)
	})

	t.Run("bad limit is a 400", func(t *testing.T) {
		rec := get(t, srv, "/api/items?limit=-5")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListSources(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertSource(ctx, domain.Source{
		ID: "usgs", Name: "USGS all hour", Type: "geojson",
		URL: "https://example.com/usgs", PollInterval: time.Minute, Enabled: true,
	}))
	require.NoError(t, st.UpsertSourceHealth(ctx, domain.SourceHealth{
		SourceID:            "usgs",
		ConsecutiveFailures: 2,
		BackoffSeconds:      240,
		LastError:           "upstream returned 503",
		ErrorCount:          2,
	}))

	rec := get(t, srv, "/api/sources")
	require.Equal(t, http.StatusOK, rec.Code)

	type sourcesResp struct {
		Sources []sourceJSON `json:"sources"`
	}
	resp := decode[sourcesResp](t, rec)
	require.Len(t, resp.Sources, 1)
	src := resp.Sources[0]
	assert.Equal(t, "usgs", src.ID)
	assert.Equal(t, 60, src.PollSeconds)
	assert.Equal(t, 2, src.ConsecutiveFailures)
	assert.Equal(t, 240, src.BackoffSeconds)
	assert.Equal(t, "upstream returned 503", src.LastError)
}

func TestStats(t *testing.T) {
	srv, st := newTestServer(t)
	now := domain.Now()

	seedIncident(t, st, "quake one", "earthquake", 60, now)
	seedIncident(t, st, "quake two", "earthquake", 50, now)
	seedIncident(t, st, "fire", "wildfire", 55, now)

	rec := get(t, srv, "/api/stats?bucket=day")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[statsJSON](t, rec)
	assert.Equal(t, "day", resp.Bucket)
	assert.Equal(t, int64(3), resp.TotalIncidents)

	counts := map[string]int{}
	for _, b := range resp.Buckets {
		counts[b.Category] += b.Count
	}
	assert.Equal(t, 2, counts["earthquake"])
	assert.Equal(t, 1, counts["wildfire"])

	t.Run("bad bucket is a 400", func(t *testing.T) {
		rec := get(t, srv, "/api/stats?bucket=week")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
