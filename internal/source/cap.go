package source

import (
	"encoding/json"
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

// CAP (Common Alerting Protocol) alert documents. A feed may wrap several
// alerts or be a single alert at the root.
type capDocument struct {
	XMLName xml.Name
	Alerts  []capAlert `xml:"alert"`

	// Set when the root element itself is the alert.
	Identifier string    `xml:"identifier"`
	Sent       string    `xml:"sent"`
	Status     string    `xml:"status"`
	MsgType    string    `xml:"msgType"`
	Info       []capInfo `xml:"info"`
}

type capAlert struct {
	Identifier string    `xml:"identifier"`
	Sent       string    `xml:"sent"`
	Status     string    `xml:"status"`
	MsgType    string    `xml:"msgType"`
	Info       []capInfo `xml:"info"`
}

type capInfo struct {
	Event       string    `xml:"event"`
	Headline    string    `xml:"headline"`
	Description string    `xml:"description"`
	Severity    string    `xml:"severity"`
	Areas       []capArea `xml:"area"`
}

type capArea struct {
	AreaDesc string   `xml:"areaDesc"`
	Polygons []string `xml:"polygon"`
}

func parseCAP(sourceID string, body []byte) ([]capAlert, error) {
	var doc capDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, &ParseError{SourceID: sourceID, Err: err}
	}
	if len(doc.Alerts) > 0 {
		return doc.Alerts, nil
	}
	if doc.XMLName.Local == "alert" {
		return []capAlert{{
			Identifier: doc.Identifier,
			Sent:       doc.Sent,
			Status:     doc.Status,
			MsgType:    doc.MsgType,
			Info:       doc.Info,
		}}, nil
	}
	return nil, nil
}

// capPolygonGeometry converts CAP "lat,lon lat,lon ..." polygon strings into
// a Polygon or MultiPolygon geometry.
func capPolygonGeometry(areas []capArea) *domain.Geometry {
	var rings [][][2]float64
	for _, area := range areas {
		for _, polygon := range area.Polygons {
			var ring [][2]float64
			for _, pair := range strings.Fields(polygon) {
				latStr, lonStr, found := strings.Cut(pair, ",")
				if !found {
					continue
				}
				lat, errLat := strconv.ParseFloat(latStr, 64)
				lon, errLon := strconv.ParseFloat(lonStr, 64)
				if errLat != nil || errLon != nil {
					continue
				}
				ring = append(ring, [2]float64{lon, lat})
			}
			if len(ring) >= 3 {
				rings = append(rings, ring)
			}
		}
	}

	switch len(rings) {
	case 0:
		return nil
	case 1:
		return domain.NewPolygon(rings[0])
	default:
		// Each CAP polygon is an independent outer ring.
		polys := make([][][][2]float64, 0, len(rings))
		for _, ring := range rings {
			if ring[0] != ring[len(ring)-1] {
				ring = append(ring, ring[0])
			}
			polys = append(polys, [][][2]float64{ring})
		}
		coords, err := json.Marshal(polys)
		if err != nil {
			return nil
		}
		return &domain.Geometry{Type: "MultiPolygon", Coordinates: coords}
	}
}

// tsunamiCAPItems normalizes tsunami warning-center CAP documents.
func tsunamiCAPItems(sourceID string) func([]byte, time.Time) ([]domain.Item, error) {
	return func(body []byte, fetchedAt time.Time) ([]domain.Item, error) {
		alerts, err := parseCAP(sourceID, body)
		if err != nil {
			return nil, err
		}

		items := make([]domain.Item, 0, len(alerts))
		for _, alert := range alerts {
			if len(alert.Info) == 0 {
				continue
			}
			info := alert.Info[0]
			title := firstNonEmpty(info.Headline, info.Event)
			if title == "" {
				continue
			}

			var areaDesc string
			for _, area := range info.Areas {
				if area.AreaDesc != "" {
					areaDesc = area.AreaDesc
					break
				}
			}

			it := domain.Item{
				SourceID:     sourceID,
				SourceType:   "xml_api",
				ExternalID:   alert.Identifier,
				URL:          "cap:" + alert.Identifier,
				Title:        title,
				Summary:      truncate(strings.TrimSpace(info.Description), 300),
				PublishedAt:  timeOr(parseTime(alert.Sent), fetchedAt),
				FetchedAt:    fetchedAt,
				Category:     "tsunami",
				Tags:         []string{"tsunami_gov", "tsunami", "cap"},
				LocationName: areaDesc,
			}
			it.Raw = marshalRaw(map[string]any{
				"status":   alert.Status,
				"msg_type": alert.MsgType,
				"event":    info.Event,
				"severity": info.Severity,
			})

			if g := capPolygonGeometry(info.Areas); g != nil {
				applyGeometry(&it, g, domain.ConfidenceExact, "CAP area polygon")
			} else {
				it.LocationConfidence = domain.ConfidenceUnknown
				it.LocationRationale = "CAP alert without polygon"
			}
			finishItem(&it)
			items = append(items, it)
		}
		return items, nil
	}
}
