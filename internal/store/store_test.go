package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedSource(t *testing.T, st *Store, id string) {
	t.Helper()
	err := st.UpsertSource(context.Background(), domain.Source{
		ID:           id,
		Name:         id,
		Type:         "geojson",
		URL:          "https://example.com/" + id,
		PollInterval: time.Minute,
		Enabled:      true,
	})
	require.NoError(t, err)
}

func TestOpen_MigratesIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	defer st.Close()

	var version int
	require.NoError(t, st.Conn().QueryRow(
		`SELECT MAX(version) FROM schema_migrations`).Scan(&version))
	assert.Equal(t, len(migrations), version)
}

func TestUpsertSource_PreservesFetchState(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedSource(t, st, "usgs")

	next := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpdateSourceFetchState(ctx, "usgs", `"etag-1"`, "Mon, 01 Mar 2026 00:00:00 GMT", "cursor-1", next))

	// Catalog refresh must not clobber conditional-fetch state.
	require.NoError(t, st.UpsertSource(ctx, domain.Source{
		ID: "usgs", Name: "USGS renamed", Type: "geojson",
		URL: "https://example.com/usgs2", PollInterval: 2 * time.Minute, Enabled: true,
	}))

	src, err := st.GetSource(ctx, "usgs")
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.Equal(t, "USGS renamed", src.Name)
	assert.Equal(t, 2*time.Minute, src.PollInterval)
	assert.Equal(t, `"etag-1"`, src.ETag)
	assert.Equal(t, "cursor-1", src.Cursor)
	assert.True(t, src.NextFetchAt.Equal(next))
}

func TestDueSources(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedSource(t, st, "a")
	seedSource(t, st, "b")
	seedSource(t, st, "c")
	require.NoError(t, st.UpdateSourceFetchState(ctx, "a", "", "", "", now.Add(-2*time.Minute)))
	require.NoError(t, st.UpdateSourceFetchState(ctx, "b", "", "", "", now.Add(-1*time.Minute)))
	require.NoError(t, st.UpdateSourceFetchState(ctx, "c", "", "", "", now.Add(time.Hour)))

	due, err := st.DueSources(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].ID)
	assert.Equal(t, "b", due[1].ID)

	due, err = st.DueSources(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "a", due[0].ID)
}

func TestSourceHealth_Roundtrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedSource(t, st, "usgs")

	// Unknown source yields a zero record, not an error.
	h, err := st.GetSourceHealth(ctx, "usgs")
	require.NoError(t, err)
	assert.Equal(t, 0, h.ConsecutiveFailures)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := domain.SourceHealth{
		SourceID:            "usgs",
		ConsecutiveFailures: 3,
		BackoffSeconds:      480,
		LastFetchAt:         now,
		LastErrorAt:         now,
		LastStatusCode:      503,
		LastFetchMillis:     250,
		LastError:           "upstream returned 503",
		SuccessCount:        10,
		ErrorCount:          3,
	}
	require.NoError(t, st.UpsertSourceHealth(ctx, want))

	got, err := st.GetSourceHealth(ctx, "usgs")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	all, err := st.ListSourceHealth(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testItem(sourceID, id string) domain.Item {
	it := domain.Item{
		ID:                 id,
		SourceID:           sourceID,
		SourceType:         "geojson",
		ExternalID:         "ext-" + id,
		URL:                "https://example.com/items/" + id,
		Title:              "M 5.2 earthquake near Tokyo " + id,
		Summary:            "A moderate quake struck offshore.",
		Category:           "earthquake",
		Tags:               []string{"quake", "japan"},
		PublishedAt:        time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		FetchedAt:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Geometry:           domain.NewPoint(35.6, 139.7),
		LocationConfidence: domain.ConfidenceExact,
		LocationRationale:  "structured geometry from feed",
		Raw:                []byte(`{"mag": 5.2}`),
		TitleHash:          "th-" + id,
		ContentHash:        "ch-" + id,
		Simhash:            0xDEADBEEF12345678,
	}
	it.SetPoint(35.6, 139.7)
	return it
}

func TestItems_InsertAndLookup(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedSource(t, st, "usgs")

	want := testItem("usgs", "i1")
	require.NoError(t, st.InsertItem(ctx, want))

	t.Run("by URL", func(t *testing.T) {
		got, err := st.ItemByURL(ctx, want.URL)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want.Title, got.Title)
		assert.Equal(t, want.Simhash, got.Simhash)
		assert.Equal(t, want.Tags, got.Tags)
		require.NotNil(t, got.Geometry)
		assert.Equal(t, "Point", got.Geometry.Type)
		require.True(t, got.HasPoint())
		assert.InDelta(t, 35.6, *got.Lat, 1e-9)
		assert.JSONEq(t, `{"mag": 5.2}`, string(got.Raw))
	})

	t.Run("by source and external id", func(t *testing.T) {
		got, err := st.ItemBySourceExternalID(ctx, "usgs", "ext-i1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "i1", got.ID)

		missing, err := st.ItemBySourceExternalID(ctx, "usgs", "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("recent title hash", func(t *testing.T) {
		seen, err := st.HasRecentTitleHash(ctx, "usgs", "th-i1", want.FetchedAt.Add(-time.Hour))
		require.NoError(t, err)
		assert.True(t, seen)

		seen, err = st.HasRecentTitleHash(ctx, "usgs", "th-i1", want.FetchedAt.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, seen)
	})

	t.Run("update in place", func(t *testing.T) {
		want.Title = "M 5.4 earthquake near Tokyo (revised)"
		want.Simhash = 0x1111
		require.NoError(t, st.UpdateItem(ctx, want))

		got, err := st.ItemByURL(ctx, want.URL)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want.Title, got.Title)
		assert.Equal(t, uint64(0x1111), got.Simhash)
	})
}

func testIncident(id, category string, simhash uint64, lastItem time.Time) domain.Incident {
	lat, lon := 35.6, 139.7
	return domain.Incident{
		ID:                 id,
		Title:              "Earthquake near Tokyo",
		Summary:            "Cluster of quake reports.",
		Category:           category,
		FirstSeenAt:        lastItem.Add(-time.Hour),
		LastSeenAt:         lastItem,
		LastItemAt:         lastItem,
		Status:             domain.StatusActive,
		SeverityScore:      60,
		Lat:                &lat,
		Lon:                &lon,
		LocationConfidence: domain.ConfidenceExact,
		Simhash:            simhash,
		TokenSignature:     "earthquake near tokyo",
		ItemCount:          1,
		SourceCount:        1,
	}
}

func TestIncidents_CRUDAndCandidates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	h1 := uint64(0xABCD)<<48 | 0x0F
	h2 := uint64(0x1234)<<48 | 0x0F
	in1 := testIncident("inc1", "earthquake", h1, now)
	in2 := testIncident("inc2", "earthquake", h2, now)
	in3 := testIncident("inc3", "wildfire", h1, now)
	require.NoError(t, st.InsertIncident(ctx, in1))
	require.NoError(t, st.InsertIncident(ctx, in2))
	require.NoError(t, st.InsertIncident(ctx, in3))

	t.Run("get", func(t *testing.T) {
		got, err := st.GetIncident(ctx, "inc1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, h1, got.Simhash)
		assert.Equal(t, domain.StatusActive, got.Status)
		require.True(t, got.HasPoint())

		missing, err := st.GetIncident(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("candidates match category and bucket", func(t *testing.T) {
		got, err := st.CandidateIncidents(ctx, "earthquake", domain.SimhashBucket(h1), now.Add(-time.Hour), 200)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "inc1", got[0].ID)
	})

	t.Run("candidates respect lookback", func(t *testing.T) {
		got, err := st.CandidateIncidents(ctx, "earthquake", domain.SimhashBucket(h1), now.Add(time.Hour), 200)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("update rewrites bucket", func(t *testing.T) {
		in2.Simhash = h1
		in2.SeverityScore = 75
		require.NoError(t, st.UpdateIncident(ctx, in2))

		got, err := st.CandidateIncidents(ctx, "earthquake", domain.SimhashBucket(h1), now.Add(-time.Hour), 200)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestIncidentMembership(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedSource(t, st, "usgs")
	seedSource(t, st, "gdacs")
	require.NoError(t, st.InsertItem(ctx, testItem("usgs", "i1")))
	require.NoError(t, st.InsertItem(ctx, testItem("gdacs", "i2")))
	require.NoError(t, st.InsertIncident(ctx, testIncident("inc1", "earthquake", 0xF0F0, now)))

	require.NoError(t, st.AttachItem(ctx, "inc1", "i1", now))
	require.NoError(t, st.AttachItem(ctx, "inc1", "i2", now.Add(time.Minute)))
	// Attaching twice is a no-op.
	require.NoError(t, st.AttachItem(ctx, "inc1", "i1", now))

	items, err := st.IncidentItems(ctx, "inc1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "i1", items[0].ID)
	assert.Equal(t, "i2", items[1].ID)

	n, err := st.IncidentSourceCount(ctx, "inc1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	incID, err := st.IncidentIDForItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "inc1", incID)

	incID, err = st.IncidentIDForItem(ctx, "unclustered")
	require.NoError(t, err)
	assert.Empty(t, incID)
}

func TestMergeIncidents(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedSource(t, st, "usgs")
	require.NoError(t, st.InsertItem(ctx, testItem("usgs", "i1")))
	require.NoError(t, st.InsertItem(ctx, testItem("usgs", "i2")))
	require.NoError(t, st.InsertIncident(ctx, testIncident("winner", "earthquake", 0x01, now)))
	require.NoError(t, st.InsertIncident(ctx, testIncident("loser", "earthquake", 0x03, now)))
	require.NoError(t, st.AttachItem(ctx, "winner", "i1", now))
	require.NoError(t, st.AttachItem(ctx, "loser", "i2", now))

	require.NoError(t, st.MergeIncidents(ctx, "winner", "loser", 1, 12.5, now))

	gone, err := st.GetIncident(ctx, "loser")
	require.NoError(t, err)
	assert.Nil(t, gone)

	items, err := st.IncidentItems(ctx, "winner")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	var winner, loser string
	var hamming int
	var distance float64
	require.NoError(t, st.Conn().QueryRow(
		`SELECT winner_id, loser_id, hamming, distance_km FROM incident_merges`,
	).Scan(&winner, &loser, &hamming, &distance))
	assert.Equal(t, "winner", winner)
	assert.Equal(t, "loser", loser)
	assert.Equal(t, 1, hamming)
	assert.InDelta(t, 12.5, distance, 1e-9)
}

func TestLifecycleQueries(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	stale := testIncident("stale", "earthquake", 0x01, now.Add(-48*time.Hour))
	fresh := testIncident("fresh", "earthquake", 0x02, now.Add(-time.Hour))
	require.NoError(t, st.InsertIncident(ctx, stale))
	require.NoError(t, st.InsertIncident(ctx, fresh))

	due, err := st.IncidentsForTransition(ctx, domain.StatusActive, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "stale", due[0].ID)

	require.NoError(t, st.SetIncidentStatus(ctx, "stale", domain.StatusResolved))

	deleted, err := st.DeleteResolvedBefore(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	gone, err := st.GetIncident(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDeleteItemsBefore_KeepsLiveIncidentMembers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seedSource(t, st, "usgs")
	old1 := testItem("usgs", "old-linked")
	old1.FetchedAt = now.Add(-40 * 24 * time.Hour)
	old2 := testItem("usgs", "old-loose")
	old2.FetchedAt = now.Add(-40 * 24 * time.Hour)
	require.NoError(t, st.InsertItem(ctx, old1))
	require.NoError(t, st.InsertItem(ctx, old2))

	require.NoError(t, st.InsertIncident(ctx, testIncident("inc1", "earthquake", 0x01, now)))
	require.NoError(t, st.AttachItem(ctx, "inc1", "old-linked", now))

	deleted, err := st.DeleteItemsBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	kept, err := st.ItemByURL(ctx, old1.URL)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestListIncidents_Filters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	quake := testIncident("quake", "earthquake", 0x01, now)
	quake.Title = "Strong earthquake strikes near Tokyo"
	fire := testIncident("fire", "wildfire", 0x02, now.Add(-2*time.Hour))
	fire.Title = "Wildfire spreads in California hills"
	fire.SeverityScore = 40
	la, lo := 36.7, -119.4
	fire.Lat, fire.Lon = &la, &lo
	require.NoError(t, st.InsertIncident(ctx, quake))
	require.NoError(t, st.InsertIncident(ctx, fire))

	t.Run("no filter returns newest first", func(t *testing.T) {
		got, err := st.ListIncidents(ctx, IncidentFilter{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "quake", got[0].ID)
	})

	t.Run("category", func(t *testing.T) {
		got, err := st.ListIncidents(ctx, IncidentFilter{Categories: []string{"wildfire"}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "fire", got[0].ID)
	})

	t.Run("since excludes older", func(t *testing.T) {
		got, err := st.ListIncidents(ctx, IncidentFilter{Since: now.Add(-time.Hour)})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "quake", got[0].ID)
	})

	t.Run("min severity", func(t *testing.T) {
		got, err := st.ListIncidents(ctx, IncidentFilter{MinSeverity: 50})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "quake", got[0].ID)
	})

	t.Run("bbox", func(t *testing.T) {
		box := domain.BBox{MinLon: -125, MinLat: 32, MaxLon: -114, MaxLat: 42}
		got, err := st.ListIncidents(ctx, IncidentFilter{BBox: &box})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "fire", got[0].ID)
	})

	t.Run("full text", func(t *testing.T) {
		got, err := st.ListIncidents(ctx, IncidentFilter{Query: "wildfire California"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "fire", got[0].ID)
	})

	t.Run("full text tracks updates", func(t *testing.T) {
		fire.Title = "Brushfire contained near Fresno"
		require.NoError(t, st.UpdateIncident(ctx, fire))

		got, err := st.ListIncidents(ctx, IncidentFilter{Query: "Fresno"})
		require.NoError(t, err)
		require.Len(t, got, 1)

		got, err = st.ListIncidents(ctx, IncidentFilter{Query: "California hills"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("stopword-only query matches nothing", func(t *testing.T) {
		got, err := st.ListIncidents(ctx, IncidentFilter{Query: "the of a"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestSearchItems(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedSource(t, st, "usgs")

	fire := testItem("usgs", "fire1")
	fire.Title = "Wildfire burns near Athens suburbs"
	fire.Summary = "Strong winds push flames toward homes."
	fire.Content = "Evacuations ordered for the northern districts."
	fire.PublishedAt = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertItem(ctx, fire))

	quake := testItem("usgs", "quake1")
	quake.Title = "M 6.1 earthquake off Honshu"
	quake.Summary = "No tsunami warning issued."
	quake.Content = ""
	quake.PublishedAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertItem(ctx, quake))

	t.Run("matches title", func(t *testing.T) {
		got, err := st.SearchItems(ctx, "athens wildfire", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "fire1", got[0].ID)
	})

	t.Run("matches content column", func(t *testing.T) {
		got, err := st.SearchItems(ctx, "evacuations", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "fire1", got[0].ID)
	})

	t.Run("empty query matches nothing", func(t *testing.T) {
		got, err := st.SearchItems(ctx, "the an of", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("index follows updates", func(t *testing.T) {
		quake.Title = "M 6.1 earthquake shakes Athens region"
		require.NoError(t, st.UpdateItem(ctx, quake))

		got, err := st.SearchItems(ctx, "athens", 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "quake1", got[0].ID, "newest published first")
	})

	t.Run("index follows deletes", func(t *testing.T) {
		_, err := st.DeleteItemsBefore(ctx, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)

		got, err := st.SearchItems(ctx, "athens", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestRecentItems(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedSource(t, st, "usgs")

	for i, id := range []string{"a", "b", "c"} {
		it := testItem("usgs", id)
		it.PublishedAt = time.Date(2026, 3, 1, 10+i, 0, 0, 0, time.UTC)
		require.NoError(t, st.InsertItem(ctx, it))
	}

	got, err := st.RecentItems(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestListIncidents_HonorsExplicitLimit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 250; i++ {
		inc := testIncident(fmt.Sprintf("inc%03d", i), "earthquake", uint64(i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, st.InsertIncident(ctx, inc))
	}

	got, err := st.ListIncidents(ctx, IncidentFilter{Limit: 300})
	require.NoError(t, err)
	assert.Len(t, got, 250, "explicit limits above the default are honored")

	got, err = st.ListIncidents(ctx, IncidentFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 200, "no limit falls back to the default")

	got, err = st.ListIncidents(ctx, IncidentFilter{Limit: 220})
	require.NoError(t, err)
	assert.Len(t, got, 220)
}

func TestCategoryStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	require.NoError(t, st.InsertIncident(ctx, testIncident("a", "earthquake", 0x01, now)))
	require.NoError(t, st.InsertIncident(ctx, testIncident("b", "earthquake", 0x02, now)))
	require.NoError(t, st.InsertIncident(ctx, testIncident("c", "wildfire", 0x03, now)))

	stats, err := st.CategoryStats(ctx, now.Add(-time.Hour), "hour")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "2026-03-01T12:00:00Z", stats[0].Bucket)
	assert.Equal(t, "earthquake", stats[0].Category)
	assert.Equal(t, 2, stats[0].Count)
	assert.Equal(t, "wildfire", stats[1].Category)

	daily, err := st.CategoryStats(ctx, now.Add(-time.Hour), "day")
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "2026-03-01", daily[0].Bucket)
}

func TestPlaces(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.InsertPlace(ctx, domain.Place{
		Name: "Georgia", NormalizedName: "georgia", Kind: "country",
		CountryCode: "GE", Lat: 42.3, Lon: 43.4, Importance: 0.6,
	}))
	require.NoError(t, st.InsertPlace(ctx, domain.Place{
		Name: "Georgia", NormalizedName: "georgia", Kind: "admin1",
		CountryCode: "US", Admin1: "Georgia", Lat: 32.7, Lon: -83.2, Importance: 0.4,
	}))

	places, err := st.PlacesByNormalizedName(ctx, "georgia")
	require.NoError(t, err)
	require.Len(t, places, 2)
	assert.Equal(t, "GE", places[0].CountryCode)

	country, err := st.CountryByCode(ctx, "GE")
	require.NoError(t, err)
	require.NotNil(t, country)
	assert.Equal(t, "Georgia", country.Name)

	missing, err := st.CountryByCode(ctx, "ZZ")
	require.NoError(t, err)
	assert.Nil(t, missing)

	n, err := st.PlaceCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBuildFTSQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"drops stopwords and short words", "the fire in LA", `"fire"`},
		{"joins with OR", "earthquake tsunami", `"earthquake" OR "tsunami"`},
		{"trims punctuation", "quake, (Tokyo)", `"quake" OR "Tokyo"`},
		{"empty when nothing survives", "a an of", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildFTSQuery(tt.query))
		})
	}
}
