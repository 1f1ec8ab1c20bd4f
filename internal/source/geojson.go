package source

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

type geoFeature struct {
	ID         string           `json:"id"`
	Properties map[string]any   `json:"properties"`
	Geometry   *domain.Geometry `json:"geometry"`
}

type featureCollection struct {
	Features []geoFeature `json:"features"`
}

func parseFeatureCollection(sourceID string, body []byte) ([]geoFeature, error) {
	var fc featureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, &ParseError{SourceID: sourceID, Err: err}
	}
	return fc.Features, nil
}

// usgsQuakeItems normalizes a USGS earthquake summary feed.
func usgsQuakeItems(sourceID string) func([]byte, time.Time) ([]domain.Item, error) {
	return func(body []byte, fetchedAt time.Time) ([]domain.Item, error) {
		features, err := parseFeatureCollection(sourceID, body)
		if err != nil {
			return nil, err
		}

		items := make([]domain.Item, 0, len(features))
		for _, f := range features {
			props := propFields(f.Properties)
			title := props.str("title")
			if title == "" || f.Geometry == nil {
				continue
			}

			it := domain.Item{
				SourceID:    sourceID,
				SourceType:  "geojson_api",
				ExternalID:  f.ID,
				URL:         props.str("url"),
				Title:       title,
				Summary:     props.str("place"),
				PublishedAt: timeOr(epochMillis(props, "time"), fetchedAt),
				UpdatedAt:   epochMillis(props, "updated"),
				FetchedAt:   fetchedAt,
				Category:    "earthquake",
				Tags:        []string{"usgs", "earthquake"},
			}
			if mag, ok := props.float("mag"); ok {
				it.Tags = append(it.Tags, fmt.Sprintf("mag:%.1f", mag))
			}
			it.Raw = marshalRaw(map[string]any{
				"mag":      f.Properties["mag"],
				"place":    f.Properties["place"],
				"time":     f.Properties["time"],
				"updated":  f.Properties["updated"],
				"usgs_url": f.Properties["url"],
			})

			it.LocationName = it.Summary
			applyGeometry(&it, f.Geometry, domain.ConfidenceExact, "USGS GeoJSON coordinates")
			finishItem(&it)
			items = append(items, it)
		}
		return items, nil
	}
}

// nwsAlertItems normalizes active alerts from the NWS API.
func nwsAlertItems(sourceID string) func([]byte, time.Time) ([]domain.Item, error) {
	return func(body []byte, fetchedAt time.Time) ([]domain.Item, error) {
		features, err := parseFeatureCollection(sourceID, body)
		if err != nil {
			return nil, err
		}

		items := make([]domain.Item, 0, len(features))
		for _, f := range features {
			props := propFields(f.Properties)
			title := firstNonEmpty(props.str("headline"), props.str("event"))
			if title == "" {
				continue
			}

			externalID := firstNonEmpty(f.ID, props.str("id"))
			content := props.str("description")
			if instruction := props.str("instruction"); instruction != "" {
				if content != "" {
					content += "\n\n" + instruction
				} else {
					content = instruction
				}
			}

			it := domain.Item{
				SourceID:   sourceID,
				SourceType: "geojson_api",
				ExternalID: externalID,
				URL:        externalID,
				Title:      title,
				Summary:    title,
				Content:    content,
				PublishedAt: timeOr(parseTime(firstNonEmpty(
					props.str("effective"), props.str("onset"), props.str("sent"))), fetchedAt),
				UpdatedAt: parseTime(firstNonEmpty(props.str("sent"), props.str("effective"))),
				FetchedAt: fetchedAt,
				Category:  "weather_alert",
				Tags: []string{
					"nws", "weather_alert",
					"severity:" + props.str("severity"),
					"urgency:" + props.str("urgency"),
				},
				LocationName: props.str("areaDesc"),
			}
			it.Raw = marshalRaw(map[string]any{
				"event":     f.Properties["event"],
				"severity":  f.Properties["severity"],
				"urgency":   f.Properties["urgency"],
				"certainty": f.Properties["certainty"],
				"areaDesc":  f.Properties["areaDesc"],
				"expires":   f.Properties["expires"],
				"ends":      f.Properties["ends"],
				"headline":  f.Properties["headline"],
			})

			if f.Geometry != nil {
				applyGeometry(&it, f.Geometry, domain.ConfidenceExact, "NWS polygon geometry")
			} else {
				it.LocationConfidence = domain.ConfidenceUnknown
				it.LocationRationale = "NWS alert without geometry"
			}
			finishItem(&it)
			items = append(items, it)
		}
		return items, nil
	}
}

// applyGeometry attaches structured geometry and derives the centroid point.
func applyGeometry(it *domain.Item, g *domain.Geometry, confidence domain.Confidence, rationale string) {
	it.Geometry = g
	it.LocationConfidence = confidence
	it.LocationRationale = rationale
	if lat, lon, ok := g.Centroid(); ok {
		it.SetPoint(lat, lon)
	}
}

// propFields wraps a decoded properties object with forgiving accessors.
type propFields map[string]any

func (p propFields) str(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}

func (p propFields) float(key string) (float64, bool) {
	if v, ok := p[key].(float64); ok {
		return v, true
	}
	return 0, false
}

func epochMillis(p propFields, key string) time.Time {
	ms, ok := p.float(key)
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}

func marshalRaw(fields map[string]any) json.RawMessage {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return b
}
