package source

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

// faaAirportStatus is one <AirportStatus> element from the FAA NAS status
// document. Only the first <Status> per airport is considered.
type faaAirportStatus struct {
	Name       string `xml:"Name"`
	IATA       string `xml:"IATA"`
	ICAO       string `xml:"ICAO"`
	City       string `xml:"City"`
	State      string `xml:"State"`
	UpdateTime string `xml:"UpdateTime"`
	Status     struct {
		Delay    string `xml:"Delay"`
		Reason   string `xml:"Reason"`
		AvgDelay string `xml:"AvgDelay"`
		Trend    string `xml:"Trend"`
		Type     string `xml:"Type"`
		Program  string `xml:"Program"`
		EndTime  string `xml:"EndTime"`
	} `xml:"Status"`
}

// parseAirportStatuses streams the document for <AirportStatus> elements,
// which the FAA nests at varying depths depending on the delay program.
func parseAirportStatuses(sourceID string, body []byte) ([]faaAirportStatus, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var statuses []faaAirportStatus
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return statuses, nil
		}
		if err != nil {
			return nil, &ParseError{SourceID: sourceID, Err: err}
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "AirportStatus" {
			continue
		}
		var st faaAirportStatus
		if err := dec.DecodeElement(&st, &se); err != nil {
			return nil, &ParseError{SourceID: sourceID, Err: err}
		}
		statuses = append(statuses, st)
	}
}

// faaSeverityKind buckets the free-text status type for the severity
// heuristics.
func faaSeverityKind(statusType string) string {
	t := strings.ToLower(statusType)
	switch {
	case strings.Contains(t, "closure") || strings.Contains(t, "closed"):
		return "closure"
	case strings.Contains(t, "ground stop"):
		return "ground_stop"
	case strings.Contains(t, "ground delay"):
		return "gdp"
	case t == "":
		return ""
	default:
		return "delay"
	}
}

var faaDelayRe = regexp.MustCompile(`(\d+)\s*(hour|minute)`)

// faaAvgDelayMinutes parses delay phrasings like "45 minutes" or
// "1 hour and 26 minutes". Zero when nothing parses.
func faaAvgDelayMinutes(s string) int {
	total := 0
	for _, m := range faaDelayRe.FindAllStringSubmatch(strings.ToLower(s), -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if m[2] == "hour" {
			n *= 60
		}
		total += n
	}
	return total
}

// faaAirportItems normalizes the NAS airport-status document. Airports
// without an active delay are dropped.
func faaAirportItems(sourceID string) func([]byte, time.Time) ([]domain.Item, error) {
	return func(body []byte, fetchedAt time.Time) ([]domain.Item, error) {
		statuses, err := parseAirportStatuses(sourceID, body)
		if err != nil {
			return nil, err
		}

		items := make([]domain.Item, 0, len(statuses))
		for _, st := range statuses {
			if !strings.EqualFold(strings.TrimSpace(st.Status.Delay), "true") {
				continue
			}
			code := firstNonEmpty(strings.TrimSpace(st.IATA), strings.TrimSpace(st.ICAO))
			name := firstNonEmpty(strings.TrimSpace(st.Name), code)
			if name == "" {
				continue
			}

			kind := faaSeverityKind(st.Status.Type)
			title := firstNonEmpty(strings.TrimSpace(st.Status.Type), "Delay") + " at " + name
			if code != "" {
				title += " (" + code + ")"
			}

			locationName := strings.TrimSpace(st.City)
			if state := strings.TrimSpace(st.State); state != "" {
				if locationName != "" {
					locationName += ", " + state
				} else {
					locationName = state
				}
			}

			it := domain.Item{
				SourceID:           sourceID,
				SourceType:         "xml_api",
				ExternalID:         firstNonEmpty(code, name) + ":" + kind,
				URL:                "faa:" + firstNonEmpty(code, name),
				Title:              title,
				Summary:            truncate(strings.TrimSpace(st.Status.Reason), 300),
				PublishedAt:        timeOr(parseTime(st.UpdateTime), fetchedAt),
				FetchedAt:          fetchedAt,
				Category:           "aviation_disruption",
				Tags:               []string{"faa", "aviation_disruption"},
				LocationName:       locationName,
				LocationConfidence: domain.ConfidenceUnknown,
				LocationRationale:  "airport status without coordinates",
			}
			raw := map[string]any{
				"severity_kind": kind,
				"trend":         strings.TrimSpace(st.Status.Trend),
				"program":       strings.TrimSpace(st.Status.Program),
			}
			if minutes := faaAvgDelayMinutes(st.Status.AvgDelay); minutes > 0 {
				raw["avg_delay_min"] = minutes
			}
			it.Raw = marshalRaw(raw)
			finishItem(&it)
			items = append(items, it)
		}
		return items, nil
	}
}
