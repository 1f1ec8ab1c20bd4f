package source

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

// recordListKeys are the wrapper keys JSON APIs use around their record
// arrays, tried in order when the document is an object.
var recordListKeys = []string{
	"destinations", "countries", "items", "events", "vulnerabilities",
	"volcanoes", "data",
}

// parseJSONRecords accepts either a bare array or an object wrapping one.
func parseJSONRecords(sourceID string, body []byte) ([]map[string]any, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &ParseError{SourceID: sourceID, Err: err}
	}

	toRecords := func(list []any) []map[string]any {
		records := make([]map[string]any, 0, len(list))
		for _, v := range list {
			if rec, ok := v.(map[string]any); ok {
				records = append(records, rec)
			}
		}
		return records
	}

	switch v := doc.(type) {
	case []any:
		return toRecords(v), nil
	case map[string]any:
		for _, key := range recordListKeys {
			if list, ok := v[key].([]any); ok {
				return toRecords(list), nil
			}
		}
	}
	return nil, nil
}

// eonetCategories maps EONET category IDs to our incident categories.
var eonetCategories = map[string]string{
	"wildfires":     "wildfire",
	"volcanoes":     "volcano",
	"severeStorms":  "tropical_cyclone",
	"earthquakes":   "earthquake",
	"floods":        "disaster",
	"landslides":    "disaster",
	"seaLakeIce":    "disaster",
	"snow":          "disaster",
	"drought":       "disaster",
	"dustHaze":      "disaster",
	"manmade":       "disaster",
	"waterColor":    "disaster",
	"tempExtremes":  "disaster",
}

// eonetEventItems normalizes NASA EONET open events. The latest geometry
// entry carries the current position.
func eonetEventItems(sourceID string) func([]byte, time.Time) ([]domain.Item, error) {
	return func(body []byte, fetchedAt time.Time) ([]domain.Item, error) {
		records, err := parseJSONRecords(sourceID, body)
		if err != nil {
			return nil, err
		}

		items := make([]domain.Item, 0, len(records))
		for _, rec := range records {
			fields := propFields(rec)
			title := fields.str("title")
			if title == "" {
				continue
			}

			category := "disaster"
			if cats, ok := rec["categories"].([]any); ok && len(cats) > 0 {
				if cat, ok := cats[0].(map[string]any); ok {
					if mapped, ok := eonetCategories[propFields(cat).str("id")]; ok {
						category = mapped
					}
				}
			}

			it := domain.Item{
				SourceID:    sourceID,
				SourceType:  "json_api",
				ExternalID:  fields.str("id"),
				URL:         firstNonEmpty(fields.str("link"), "eonet:"+fields.str("id")),
				Title:       title,
				Summary:     fields.str("description"),
				PublishedAt: fetchedAt,
				FetchedAt:   fetchedAt,
				Category:    category,
				Tags:        []string{"eonet", category},
			}

			if geoms, ok := rec["geometry"].([]any); ok && len(geoms) > 0 {
				if latest, ok := geoms[len(geoms)-1].(map[string]any); ok {
					if g := decodeInlineGeometry(latest); g != nil {
						applyGeometry(&it, g, domain.ConfidenceExact, "EONET event geometry")
					}
					if date := propFields(latest).str("date"); date != "" {
						it.PublishedAt = timeOr(parseTime(date), fetchedAt)
					}
				}
			}
			if it.LocationConfidence == "" {
				it.LocationConfidence = domain.ConfidenceUnknown
				it.LocationRationale = "EONET event without geometry"
			}
			finishItem(&it)
			items = append(items, it)
		}
		return items, nil
	}
}

// volcanoNoticeItems normalizes elevated-volcano notices. Records carry the
// volcano name, coordinates, and a 1-5 alert level.
func volcanoNoticeItems(sourceID string) func([]byte, time.Time) ([]domain.Item, error) {
	return func(body []byte, fetchedAt time.Time) ([]domain.Item, error) {
		records, err := parseJSONRecords(sourceID, body)
		if err != nil {
			return nil, err
		}

		items := make([]domain.Item, 0, len(records))
		for _, rec := range records {
			fields := propFields(rec)
			name := firstNonEmpty(fields.str("volcanoName"), fields.str("vName"), fields.str("name"))
			if name == "" {
				continue
			}

			alertLevel := firstNonEmpty(fields.str("alertLevel"), fields.str("alert_level"))
			colorCode := firstNonEmpty(fields.str("colorCode"), fields.str("color_code"))
			title := name + " volcano at elevated alert"
			if alertLevel != "" {
				title = name + " volcano alert level " + alertLevel
			}

			it := domain.Item{
				SourceID:     sourceID,
				SourceType:   "json_api",
				ExternalID:   firstNonEmpty(fields.str("vnum"), name),
				URL:          "volcano:" + firstNonEmpty(fields.str("vnum"), name),
				Title:        title,
				Summary:      firstNonEmpty(fields.str("noticeSynopsis"), colorCode),
				PublishedAt:  fetchedAt,
				FetchedAt:    fetchedAt,
				Category:     "volcano",
				Tags:         []string{"volcano", "usgs_hans"},
				LocationName: name,
			}
			it.Raw = marshalRaw(map[string]any{
				"alert_level":        alertLevel,
				"color_code":         colorCode,
				"severity_level_1_5": volcanoSeverityLevel(alertLevel, colorCode),
			})

			lat, okLat := fields.float("latitude")
			lon, okLon := fields.float("longitude")
			if okLat && okLon {
				applyGeometry(&it, domain.NewPoint(lat, lon), domain.ConfidenceExact, "volcano observatory coordinates")
			} else {
				it.LocationConfidence = domain.ConfidenceUnknown
				it.LocationRationale = "volcano notice without coordinates"
			}
			finishItem(&it)
			items = append(items, it)
		}
		return items, nil
	}
}

// volcanoSeverityLevel maps alert levels or aviation color codes onto a 1-5
// scale used by the severity heuristics.
func volcanoSeverityLevel(alertLevel, colorCode string) int {
	if n, err := strconv.Atoi(alertLevel); err == nil && n >= 1 && n <= 5 {
		return n
	}
	switch alertLevel {
	case "NORMAL":
		return 1
	case "ADVISORY":
		return 2
	case "WATCH":
		return 3
	case "WARNING":
		return 4
	}
	switch colorCode {
	case "GREEN":
		return 1
	case "YELLOW":
		return 2
	case "ORANGE":
		return 3
	case "RED":
		return 4
	}
	return 3
}

// kevItems normalizes the known-exploited-vulnerabilities catalog. These are
// global, never geolocated.
func kevItems(sourceID string) func([]byte, time.Time) ([]domain.Item, error) {
	return func(body []byte, fetchedAt time.Time) ([]domain.Item, error) {
		records, err := parseJSONRecords(sourceID, body)
		if err != nil {
			return nil, err
		}

		items := make([]domain.Item, 0, len(records))
		for _, rec := range records {
			fields := propFields(rec)
			cveID := fields.str("cveID")
			if cveID == "" {
				continue
			}

			title := cveID
			if name := fields.str("vulnerabilityName"); name != "" {
				title = cveID + ": " + name
			}

			it := domain.Item{
				SourceID:           sourceID,
				SourceType:         "json_api",
				ExternalID:         cveID,
				URL:                "https://nvd.nist.gov/vuln/detail/" + cveID,
				Title:              title,
				Summary:            truncate(fields.str("shortDescription"), 300),
				Content:            fields.str("requiredAction"),
				PublishedAt:        timeOr(parseTime(fields.str("dateAdded")), fetchedAt),
				FetchedAt:          fetchedAt,
				Category:           "cyber_kev",
				Tags:               []string{"cisa", "cyber_kev"},
				LocationConfidence: domain.ConfidenceUnknown,
				LocationRationale:  "vulnerabilities are not geographic",
			}
			it.Raw = marshalRaw(map[string]any{
				"vendor_project": rec["vendorProject"],
				"product":        rec["product"],
				"due_date":       rec["dueDate"],
			})
			finishItem(&it)
			items = append(items, it)
		}
		return items, nil
	}
}

// nvdTimestamp renders the millisecond-precision UTC form the NVD API
// requires for its lastModified window parameters.
func nvdTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// nvdCVEItems normalizes NVD CVE API responses. Each record wraps the CVE
// under a "cve" key; like the KEV catalog these are never geolocated.
func nvdCVEItems(sourceID string) func([]byte, time.Time) ([]domain.Item, error) {
	return func(body []byte, fetchedAt time.Time) ([]domain.Item, error) {
		records, err := parseJSONRecords(sourceID, body)
		if err != nil {
			return nil, err
		}

		items := make([]domain.Item, 0, len(records))
		for _, rec := range records {
			cve, ok := rec["cve"].(map[string]any)
			if !ok {
				continue
			}
			fields := propFields(cve)
			cveID := fields.str("id")
			if cveID == "" {
				continue
			}

			desc := nvdEnglishDescription(cve["descriptions"])
			title := cveID
			if desc != "" {
				title = cveID + ": " + truncate(desc, 120)
			}

			it := domain.Item{
				SourceID:           sourceID,
				SourceType:         "json_api",
				ExternalID:         cveID,
				URL:                "https://nvd.nist.gov/vuln/detail/" + cveID,
				Title:              title,
				Summary:            truncate(desc, 300),
				PublishedAt:        timeOr(parseTime(fields.str("published")), fetchedAt),
				UpdatedAt:          parseTime(fields.str("lastModified")),
				FetchedAt:          fetchedAt,
				Category:           "cyber_cve",
				Tags:               []string{"nvd", "cyber_cve"},
				LocationConfidence: domain.ConfidenceUnknown,
				LocationRationale:  "vulnerabilities are not geographic",
			}
			raw := map[string]any{"vuln_status": fields.str("vulnStatus")}
			if score, ok := nvdBaseScore(cve["metrics"]); ok {
				raw["base_score"] = score
			}
			it.Raw = marshalRaw(raw)
			finishItem(&it)
			items = append(items, it)
		}
		return items, nil
	}
}

// nvdEnglishDescription picks the "en" entry from a CVE descriptions list.
func nvdEnglishDescription(v any) string {
	list, ok := v.([]any)
	if !ok {
		return ""
	}
	for _, entry := range list {
		d, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		fields := propFields(d)
		if fields.str("lang") == "en" {
			return fields.str("value")
		}
	}
	return ""
}

// nvdBaseScore digs the CVSS base score out of the metrics block, newest
// metric version first.
func nvdBaseScore(v any) (float64, bool) {
	metrics, ok := v.(map[string]any)
	if !ok {
		return 0, false
	}
	for _, key := range []string{"cvssMetricV31", "cvssMetricV30", "cvssMetricV2"} {
		list, ok := metrics[key].([]any)
		if !ok || len(list) == 0 {
			continue
		}
		entry, ok := list[0].(map[string]any)
		if !ok {
			continue
		}
		data, ok := entry["cvssData"].(map[string]any)
		if !ok {
			continue
		}
		if score, ok := propFields(data).float("baseScore"); ok {
			return score, true
		}
	}
	return 0, false
}

// govukTravelAdviceItems normalizes the foreign-travel-advice content index.
// The document links one child per country page.
func govukTravelAdviceItems(sourceID string) func([]byte, time.Time) ([]domain.Item, error) {
	return func(body []byte, fetchedAt time.Time) ([]domain.Item, error) {
		var doc struct {
			Links struct {
				Children []map[string]any `json:"children"`
			} `json:"links"`
		}
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, &ParseError{SourceID: sourceID, Err: err}
		}

		items := make([]domain.Item, 0, len(doc.Links.Children))
		for _, rec := range doc.Links.Children {
			fields := propFields(rec)
			title := fields.str("title")
			basePath := fields.str("base_path")
			if title == "" || basePath == "" {
				continue
			}
			// Child titles may be bare country names or already suffixed.
			country := firstNonEmpty(strings.TrimSpace(strings.TrimSuffix(title, "travel advice")), title)

			it := domain.Item{
				SourceID:           sourceID,
				SourceType:         "json_api",
				ExternalID:         basePath,
				URL:                "https://www.gov.uk" + basePath,
				Title:              country + " travel advice",
				Summary:            truncate(fields.str("description"), 300),
				PublishedAt:        timeOr(parseTime(fields.str("public_updated_at")), fetchedAt),
				FetchedAt:          fetchedAt,
				Category:           "travel_advisory",
				Tags:               []string{"govuk", "travel_advisory"},
				LocationName:       country,
				LocationConfidence: domain.ConfidenceCountry,
				LocationRationale:  "advisory index names the country",
			}
			finishItem(&it)
			items = append(items, it)
		}
		return items, nil
	}
}

// decodeInlineGeometry converts a decoded {"type","coordinates"} map back
// into a Geometry.
func decodeInlineGeometry(m map[string]any) *domain.Geometry {
	typ, _ := m["type"].(string)
	coords, ok := m["coordinates"]
	if typ == "" || !ok {
		return nil
	}
	raw, err := json.Marshal(coords)
	if err != nil {
		return nil
	}
	return &domain.Geometry{Type: typ, Coordinates: raw}
}
