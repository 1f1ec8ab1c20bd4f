package source

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

// parseCSVRecords reads a headered CSV body into field maps.
func parseCSVRecords(sourceID string, body []byte) ([]map[string]string, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, &ParseError{SourceID: sourceID, Err: err}
	}

	var records []map[string]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{SourceID: sourceID, Err: err}
		}
		rec := make(map[string]string, len(header))
		for i, key := range header {
			if i < len(row) {
				rec[key] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// firmsHotspotItems normalizes satellite wildfire hotspot CSV rows. Each row
// is one detection with exact coordinates and fire radiative power.
func firmsHotspotItems(sourceID string) func([]byte, time.Time) ([]domain.Item, error) {
	return func(body []byte, fetchedAt time.Time) ([]domain.Item, error) {
		records, err := parseCSVRecords(sourceID, body)
		if err != nil {
			return nil, err
		}

		items := make([]domain.Item, 0, len(records))
		for _, rec := range records {
			lat, errLat := strconv.ParseFloat(rec["latitude"], 64)
			lon, errLon := strconv.ParseFloat(rec["longitude"], 64)
			if errLat != nil || errLon != nil {
				continue
			}

			acqDate := rec["acq_date"]
			acqTime := rec["acq_time"]
			externalID := fmt.Sprintf("%s:%s:%.4f:%.4f", acqDate, acqTime, lat, lon)

			it := domain.Item{
				SourceID:    sourceID,
				SourceType:  "csv_api",
				ExternalID:  externalID,
				URL:         "firms:" + externalID,
				Title:       fmt.Sprintf("Wildfire hotspot at %.3f, %.3f", lat, lon),
				Summary:     fmt.Sprintf("Satellite hotspot detection (%s %s UTC)", acqDate, acqTime),
				PublishedAt: timeOr(parseAcquisition(acqDate, acqTime), fetchedAt),
				FetchedAt:   fetchedAt,
				Category:    "wildfire",
				Tags:        []string{"firms", "wildfire"},
			}
			it.Raw = marshalRaw(map[string]any{
				"frp":        rec["frp"],
				"confidence": rec["confidence"],
				"satellite":  rec["satellite"],
				"daynight":   rec["daynight"],
			})
			applyGeometry(&it, domain.NewPoint(lat, lon), domain.ConfidenceExact, "FIRMS hotspot coordinates")
			finishItem(&it)
			items = append(items, it)
		}
		return items, nil
	}
}

// parseAcquisition combines FIRMS acq_date ("2026-03-01") and acq_time
// ("0142", minutes may be 1-4 digits) into a UTC timestamp.
func parseAcquisition(date, hhmm string) time.Time {
	if date == "" {
		return time.Time{}
	}
	for len(hhmm) < 4 {
		hhmm = "0" + hhmm
	}
	t, err := time.Parse("2006-01-02 1504", date+" "+hhmm)
	if err != nil {
		return parseTime(date)
	}
	return t.UTC()
}
