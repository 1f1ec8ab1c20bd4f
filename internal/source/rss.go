package source

import (
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

type rssFeed struct {
	Channel struct {
		Items []rssEntry `xml:"item"`
	} `xml:"channel"`
}

type rssEntry struct {
	GUID           string `xml:"guid"`
	Link           string `xml:"link"`
	Title          string `xml:"title"`
	Description    string `xml:"description"`
	PubDate        string `xml:"pubDate"`
	ContentEncoded string `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
	GeoRSSPoint    string `xml:"http://www.georss.org/georss point"`
	GeoRSSPolygon  string `xml:"http://www.georss.org/georss polygon"`
	GeoLat         string `xml:"http://www.w3.org/2003/01/geo/wgs84_pos# lat"`
	GeoLong        string `xml:"http://www.w3.org/2003/01/geo/wgs84_pos# long"`
}

func parseRSS(sourceID string, body []byte) ([]rssEntry, error) {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, &ParseError{SourceID: sourceID, Err: err}
	}
	return feed.Channel.Items, nil
}

// georssGeometry builds a geometry from the GeoRSS or W3C geo extensions.
// GeoRSS coordinates are "lat lon" pairs, the opposite of GeoJSON order.
func (e rssEntry) georssGeometry() *domain.Geometry {
	if fields := strings.Fields(e.GeoRSSPoint); len(fields) == 2 {
		lat, errLat := strconv.ParseFloat(fields[0], 64)
		lon, errLon := strconv.ParseFloat(fields[1], 64)
		if errLat == nil && errLon == nil {
			return domain.NewPoint(lat, lon)
		}
	}

	if fields := strings.Fields(e.GeoRSSPolygon); len(fields) >= 6 && len(fields)%2 == 0 {
		ring := make([][2]float64, 0, len(fields)/2)
		ok := true
		for i := 0; i < len(fields); i += 2 {
			lat, errLat := strconv.ParseFloat(fields[i], 64)
			lon, errLon := strconv.ParseFloat(fields[i+1], 64)
			if errLat != nil || errLon != nil {
				ok = false
				break
			}
			ring = append(ring, [2]float64{lon, lat})
		}
		if ok {
			return domain.NewPolygon(ring)
		}
	}

	if e.GeoLat != "" && e.GeoLong != "" {
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(e.GeoLat), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(e.GeoLong), 64)
		if errLat == nil && errLon == nil {
			return domain.NewPoint(lat, lon)
		}
	}

	return nil
}

func (e rssEntry) externalID() string {
	return firstNonEmpty(strings.TrimSpace(e.GUID), strings.TrimSpace(e.Link))
}

// gdacsItems normalizes the GDACS global disaster alert feed, which carries
// GeoRSS points for every event.
func gdacsItems(sourceID string) func([]byte, time.Time) ([]domain.Item, error) {
	return func(body []byte, fetchedAt time.Time) ([]domain.Item, error) {
		entries, err := parseRSS(sourceID, body)
		if err != nil {
			return nil, err
		}

		items := make([]domain.Item, 0, len(entries))
		for _, e := range entries {
			if e.Title == "" {
				continue
			}
			it := domain.Item{
				SourceID:    sourceID,
				SourceType:  "rss",
				ExternalID:  e.externalID(),
				URL:         e.Link,
				Title:       e.Title,
				Summary:     truncate(strings.TrimSpace(e.Description), 300),
				PublishedAt: timeOr(parseTime(e.PubDate), fetchedAt),
				FetchedAt:   fetchedAt,
				Category:    "disaster",
				Tags:        []string{"gdacs", "disaster"},
			}
			if g := e.georssGeometry(); g != nil {
				applyGeometry(&it, g, domain.ConfidenceExact, "GDACS GeoRSS point")
			} else {
				it.LocationConfidence = domain.ConfidenceUnknown
				it.LocationRationale = "GDACS entry without GeoRSS"
			}
			finishItem(&it)
			items = append(items, it)
		}
		return items, nil
	}
}

// cycloneItems normalizes hurricane-center outlook and GIS feeds. Entries
// with GeoRSS geometry are exact; the rest are basin-wide.
func cycloneItems(sourceID string) func([]byte, time.Time) ([]domain.Item, error) {
	return func(body []byte, fetchedAt time.Time) ([]domain.Item, error) {
		entries, err := parseRSS(sourceID, body)
		if err != nil {
			return nil, err
		}

		items := make([]domain.Item, 0, len(entries))
		for _, e := range entries {
			if e.Title == "" {
				continue
			}
			it := domain.Item{
				SourceID:    sourceID,
				SourceType:  "xml_api",
				ExternalID:  e.externalID(),
				URL:         firstNonEmpty(e.Link, "nhc:"+e.externalID()),
				Title:       e.Title,
				Summary:     truncate(strings.TrimSpace(e.Description), 300),
				PublishedAt: timeOr(parseTime(e.PubDate), fetchedAt),
				FetchedAt:   fetchedAt,
				Category:    "tropical_cyclone",
				Tags:        []string{"nhc", "tropical_cyclone"},
			}
			if g := e.georssGeometry(); g != nil {
				applyGeometry(&it, g, domain.ConfidenceExact, "NHC GIS GeoRSS geometry")
			} else {
				it.LocationConfidence = domain.ConfidenceSourceDefault
				it.LocationRationale = "NHC feed (basin-wide)"
			}
			finishItem(&it)
			items = append(items, it)
		}
		return items, nil
	}
}

// genericRSSItems normalizes any plain RSS feed into the given category.
// Tier-B geotagging happens downstream; these entries have no structured geo.
func genericRSSItems(sourceID, category string, tags ...string) func([]byte, time.Time) ([]domain.Item, error) {
	return func(body []byte, fetchedAt time.Time) ([]domain.Item, error) {
		entries, err := parseRSS(sourceID, body)
		if err != nil {
			return nil, err
		}

		items := make([]domain.Item, 0, len(entries))
		for _, e := range entries {
			if e.Title == "" {
				continue
			}
			it := domain.Item{
				SourceID:    sourceID,
				SourceType:  "rss",
				ExternalID:  e.externalID(),
				URL:         e.Link,
				Title:       e.Title,
				Summary:     strings.TrimSpace(e.Description),
				Content:     strings.TrimSpace(e.ContentEncoded),
				PublishedAt: timeOr(parseTime(e.PubDate), fetchedAt),
				FetchedAt:   fetchedAt,
				Category:    category,
				Tags:        append([]string{"rss", sourceID}, tags...),
			}
			if g := e.georssGeometry(); g != nil {
				applyGeometry(&it, g, domain.ConfidenceExact, "GeoRSS geometry")
			} else {
				it.LocationConfidence = domain.ConfidenceUnknown
				it.LocationRationale = "RSS without structured geo"
			}
			finishItem(&it)
			items = append(items, it)
		}
		return items, nil
	}
}

// Advisory titles lead with the country, e.g. "Fiji - exercise normal safety
// precautions".
var advisoryCountryRe = regexp.MustCompile(`^([A-Za-z .()'-]+?)\s*[-:\x{2013}\x{2014}]\s+`)

// advisoryRSSItems normalizes country-level advisory feeds. The advice level,
// when known, feeds the severity heuristics.
func advisoryRSSItems(sourceID, category, adviceLevel string, tags ...string) func([]byte, time.Time) ([]domain.Item, error) {
	return func(body []byte, fetchedAt time.Time) ([]domain.Item, error) {
		entries, err := parseRSS(sourceID, body)
		if err != nil {
			return nil, err
		}

		items := make([]domain.Item, 0, len(entries))
		for _, e := range entries {
			if e.Title == "" {
				continue
			}
			it := domain.Item{
				SourceID:    sourceID,
				SourceType:  "rss",
				ExternalID:  e.externalID(),
				URL:         e.Link,
				Title:       e.Title,
				Summary:     strings.TrimSpace(e.Description),
				PublishedAt: timeOr(parseTime(e.PubDate), fetchedAt),
				FetchedAt:   fetchedAt,
				Category:    category,
				Tags:        append([]string{sourceID, category}, tags...),
			}
			if adviceLevel != "" {
				it.Tags = append(it.Tags, adviceLevel)
				it.Raw = marshalRaw(map[string]any{"advice_level": adviceLevel})
			}

			if m := advisoryCountryRe.FindStringSubmatch(e.Title); m != nil {
				it.LocationName = strings.TrimSpace(m[1])
				it.LocationConfidence = domain.ConfidenceCountry
				it.LocationRationale = "advisory title names the country"
			} else {
				it.LocationConfidence = domain.ConfidenceUnknown
				it.LocationRationale = "no country detected in title"
			}
			finishItem(&it)
			items = append(items, it)
		}
		return items, nil
	}
}
