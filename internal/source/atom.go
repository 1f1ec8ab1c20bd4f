package source

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID          string     `xml:"id"`
	Title       string     `xml:"title"`
	Summary     string     `xml:"summary"`
	Content     string     `xml:"content"`
	Published   string     `xml:"published"`
	Updated     string     `xml:"updated"`
	Links       []atomLink `xml:"link"`
	GeoRSSPoint string     `xml:"http://www.georss.org/georss point"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

func (e atomEntry) linkURL() string {
	for _, l := range e.Links {
		if l.Href == "" {
			continue
		}
		if l.Rel == "" || l.Rel == "alternate" {
			return l.Href
		}
	}
	return ""
}

func (e atomEntry) pointGeometry() *domain.Geometry {
	fields := strings.Fields(e.GeoRSSPoint)
	if len(fields) != 2 {
		return nil
	}
	lat, errLat := strconv.ParseFloat(fields[0], 64)
	lon, errLon := strconv.ParseFloat(fields[1], 64)
	if errLat != nil || errLon != nil {
		return nil
	}
	return domain.NewPoint(lat, lon)
}

func parseAtom(sourceID string, body []byte) ([]atomEntry, error) {
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, &ParseError{SourceID: sourceID, Err: err}
	}
	return feed.Entries, nil
}

// tsunamiAtomItems normalizes tsunami warning-center Atom feeds, which carry
// a GeoRSS point for the triggering event.
func tsunamiAtomItems(sourceID string) func([]byte, time.Time) ([]domain.Item, error) {
	return func(body []byte, fetchedAt time.Time) ([]domain.Item, error) {
		entries, err := parseAtom(sourceID, body)
		if err != nil {
			return nil, err
		}

		items := make([]domain.Item, 0, len(entries))
		for _, e := range entries {
			if e.Title == "" {
				continue
			}
			link := e.linkURL()
			it := domain.Item{
				SourceID:    sourceID,
				SourceType:  "xml_api",
				ExternalID:  firstNonEmpty(e.ID, link),
				URL:         firstNonEmpty(link, "tsunami:"+e.ID),
				Title:       e.Title,
				Summary:     truncate(strings.TrimSpace(firstNonEmpty(e.Summary, e.Content)), 300),
				PublishedAt: timeOr(parseTime(e.Published), fetchedAt),
				UpdatedAt:   parseTime(e.Updated),
				FetchedAt:   fetchedAt,
				Category:    "tsunami",
				Tags:        []string{"tsunami_gov", "tsunami"},
			}
			if g := e.pointGeometry(); g != nil {
				applyGeometry(&it, g, domain.ConfidenceExact, "warning center GeoRSS point")
			} else {
				it.LocationConfidence = domain.ConfidenceUnknown
				it.LocationRationale = "tsunami bulletin without GeoRSS"
			}
			finishItem(&it)
			items = append(items, it)
		}
		return items, nil
	}
}
