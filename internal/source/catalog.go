package source

import (
	"net/url"
	"time"
)

// CatalogConfig carries the settings the built-in catalog needs.
type CatalogConfig struct {
	FirmsAPIKey string
	NVDAPIKey   string
}

// Catalog returns the built-in source plugins. Key-gated sources are
// registered disabled when their key is absent so operators can see them in
// the source list.
func Catalog(cfg CatalogConfig) []Plugin {
	plugins := []Plugin{
		{
			ID:           "usgs_all_hour",
			Name:         "USGS Earthquakes (Past Hour)",
			Type:         "geojson_api",
			URL:          "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_hour.geojson",
			PollInterval: 60 * time.Second,
			Enabled:      true,
			Category:     "earthquake",
			Items:        usgsQuakeItems("usgs_all_hour"),
		},
		{
			ID:           "usgs_45_day",
			Name:         "USGS Earthquakes (M4.5+, Past Day)",
			Type:         "geojson_api",
			URL:          "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/4.5_day.geojson",
			PollInterval: 10 * time.Minute,
			Enabled:      true,
			Category:     "earthquake",
			Items:        usgsQuakeItems("usgs_45_day"),
		},
		{
			ID:           "nws_alerts_active",
			Name:         "NWS Active Alerts",
			Type:         "geojson_api",
			URL:          "https://api.weather.gov/alerts/active",
			PollInterval: 60 * time.Second,
			Enabled:      true,
			Category:     "weather_alert",
			Items:        nwsAlertItems("nws_alerts_active"),
		},
		{
			ID:           "nhc_gtwo",
			Name:         "NHC Tropical Weather Outlook",
			Type:         "xml_api",
			URL:          "https://www.nhc.noaa.gov/gtwo.xml",
			PollInterval: 5 * time.Minute,
			Enabled:      true,
			Category:     "tropical_cyclone",
			Items:        cycloneItems("nhc_gtwo"),
		},
		{
			ID:           "nhc_gis_at",
			Name:         "NHC GIS Atlantic",
			Type:         "xml_api",
			URL:          "https://www.nhc.noaa.gov/gis-at.xml",
			PollInterval: 5 * time.Minute,
			Enabled:      true,
			Category:     "tropical_cyclone",
			Items:        cycloneItems("nhc_gis_at"),
		},
		{
			ID:           "tsunami_ntwc_atom",
			Name:         "Tsunami.gov NTWC (Atom)",
			Type:         "xml_api",
			URL:          "https://tsunami.gov/events/xml/PAAQAtom.xml",
			PollInterval: 5 * time.Minute,
			Enabled:      true,
			Category:     "tsunami",
			Items:        tsunamiAtomItems("tsunami_ntwc_atom"),
		},
		{
			ID:           "tsunami_ptwc_cap",
			Name:         "Tsunami.gov PTWC (CAP)",
			Type:         "xml_api",
			URL:          "https://tsunami.gov/events/xml/PHEBCAP.xml",
			PollInterval: 5 * time.Minute,
			Enabled:      true,
			Category:     "tsunami",
			Items:        tsunamiCAPItems("tsunami_ptwc_cap"),
		},
		{
			ID:           "gdacs_rss",
			Name:         "GDACS (Global Disaster Alerts)",
			Type:         "rss",
			URL:          "https://www.gdacs.org/xml/rss.xml",
			PollInterval: 5 * time.Minute,
			Enabled:      true,
			Category:     "disaster",
			Items:        gdacsItems("gdacs_rss"),
		},
		{
			ID:           "eonet_open_events",
			Name:         "NASA EONET (Open Events)",
			Type:         "json_api",
			URL:          "https://eonet.gsfc.nasa.gov/api/v3/events?status=open",
			PollInterval: 15 * time.Minute,
			Enabled:      true,
			Category:     "disaster",
			Items:        eonetEventItems("eonet_open_events"),
		},
		{
			ID:           "hans_elevated_volcanoes",
			Name:         "USGS HANS (Elevated Volcanoes)",
			Type:         "json_api",
			URL:          "https://volcanoes.usgs.gov/hans-public/api/volcano/getElevatedVolcanoes",
			PollInterval: 5 * time.Minute,
			Enabled:      true,
			Category:     "volcano",
			Items:        volcanoNoticeItems("hans_elevated_volcanoes"),
		},
		{
			ID:           "smartraveller_do_not_travel",
			Name:         "Smartraveller Do Not Travel",
			Type:         "rss",
			URL:          "https://www.smartraveller.gov.au/countries/documents/do-not-travel.rss",
			PollInterval: time.Hour,
			Enabled:      true,
			Category:     "travel_advisory",
			Items:        advisoryRSSItems("smartraveller_do_not_travel", "travel_advisory", "do_not_travel", "smartraveller"),
		},
		{
			ID:           "smartraveller_reconsider",
			Name:         "Smartraveller Reconsider Your Need to Travel",
			Type:         "rss",
			URL:          "https://www.smartraveller.gov.au/countries/documents/reconsider-your-need-to-travel.rss",
			PollInterval: time.Hour,
			Enabled:      true,
			Category:     "travel_advisory",
			Items:        advisoryRSSItems("smartraveller_reconsider", "travel_advisory", "reconsider_your_need_to_travel", "smartraveller"),
		},
		{
			ID:           "travel_us_state",
			Name:         "US State Dept Travel Advisories",
			Type:         "rss",
			URL:          "https://travel.state.gov/_res/rss/TAs.xml",
			PollInterval: time.Hour,
			Enabled:      true,
			Category:     "travel_advisory",
			Items:        advisoryRSSItems("travel_us_state", "travel_advisory", "", "us_state"),
		},
		{
			ID:           "cdc_travel_notices",
			Name:         "CDC Travel Health Notices",
			Type:         "rss",
			URL:          "https://wwwnc.cdc.gov/travel/rss/notices.xml",
			PollInterval: time.Hour,
			Enabled:      true,
			Category:     "health_advisory",
			Items:        advisoryRSSItems("cdc_travel_notices", "health_advisory", "", "cdc"),
		},
		{
			ID:           "who_afro_emergencies",
			Name:         "WHO AFRO Emergencies",
			Type:         "rss",
			URL:          "https://www.afro.who.int/rss/emergencies.xml",
			PollInterval: time.Hour,
			Enabled:      true,
			Category:     "health_advisory",
			Items:        advisoryRSSItems("who_afro_emergencies", "health_advisory", "", "who"),
		},
		{
			ID:           "faa_airport_status",
			Name:         "FAA NAS Status (Airport Status)",
			Type:         "xml_api",
			URL:          "https://nasstatus.faa.gov/api/airport-status-information",
			PollInterval: 3 * time.Minute,
			Enabled:      true,
			Category:     "aviation_disruption",
			Items:        faaAirportItems("faa_airport_status"),
		},
		{
			ID:           "govuk_travel_advice",
			Name:         "GOV.UK Foreign Travel Advice (Index)",
			Type:         "json_api",
			URL:          "https://www.gov.uk/api/content/foreign-travel-advice",
			PollInterval: 4 * time.Hour,
			Enabled:      true,
			Category:     "travel_advisory",
			Items:        govukTravelAdviceItems("govuk_travel_advice"),
		},
		{
			ID:           "cisa_kev",
			Name:         "CISA Known Exploited Vulnerabilities",
			Type:         "json_api",
			URL:          "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json",
			PollInterval: 6 * time.Hour,
			Enabled:      true,
			Category:     "cyber_kev",
			Items:        kevItems("cisa_kev"),
		},
	}

	// The NVD key only lifts rate limits, so the source stays enabled
	// without one. The request window starts at the last successful fetch,
	// overlapping 15 minutes to absorb late index updates.
	nvdBase := "https://services.nvd.nist.gov/rest/json/cves/2.0"
	nvd := Plugin{
		ID:           "nvd_cves",
		Name:         "NVD CVE API (Recent Changes)",
		Type:         "json_api",
		URL:          nvdBase,
		PollInterval: 15 * time.Minute,
		Enabled:      true,
		Category:     "cyber_cve",
		BuildURL: func(cursor string, now time.Time) string {
			start := now.Add(-time.Hour)
			if t, err := time.Parse(time.RFC3339, cursor); err == nil {
				start = t.Add(-15 * time.Minute)
			}
			q := url.Values{}
			q.Set("lastModStartDate", nvdTimestamp(start))
			q.Set("lastModEndDate", nvdTimestamp(now))
			q.Set("resultsPerPage", "2000")
			return nvdBase + "?" + q.Encode()
		},
		NextCursor: func(_ string, now time.Time) string {
			return now.UTC().Format(time.RFC3339)
		},
		Items: nvdCVEItems("nvd_cves"),
	}
	if cfg.NVDAPIKey != "" {
		nvd.Headers = map[string]string{"apiKey": cfg.NVDAPIKey}
	}
	plugins = append(plugins, nvd)

	firmsBase := "https://firms.modaps.eosdis.nasa.gov/api/area/csv/"
	plugins = append(plugins, Plugin{
		ID:           "firms_hotspots",
		Name:         "NASA FIRMS (Wildfire Hotspots)",
		Type:         "csv_api",
		URL:          firmsBase + "{FIRMS_API_KEY}/VIIRS_SNPP_NRT/world/1",
		PollInterval: 15 * time.Minute,
		Enabled:      cfg.FirmsAPIKey != "",
		Category:     "wildfire",
		BuildURL: func(string, time.Time) string {
			return firmsBase + cfg.FirmsAPIKey + "/VIIRS_SNPP_NRT/world/1"
		},
		Items: firmsHotspotItems("firms_hotspots"),
	})

	return plugins
}
