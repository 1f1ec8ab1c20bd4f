package geotag

import (
	"regexp"
	"strconv"
)

var (
	// decimalPairRe matches a signed decimal latitude/longitude pair such as
	// "-33.87, 151.21" or "35.68 139.69". Both sides need a fractional part
	// so plain counts and years do not match.
	decimalPairRe = regexp.MustCompile(`(-?\d{1,2}\.\d+)\s*[, ]\s*(-?\d{1,3}\.\d+)`)

	// degreePairRe matches hemisphere-lettered pairs such as
	// "12.34N 56.78E" or "12.34 S, 56.78 W".
	degreePairRe = regexp.MustCompile(`(?i)(\d{1,2}(?:\.\d+)?)\s*°?\s*([NS])[, ]\s*(\d{1,3}(?:\.\d+)?)\s*°?\s*([EW])`)
)

// extractCoords scans text for an embedded coordinate pair and returns the
// first valid one. Hemisphere-lettered pairs are preferred over bare decimal
// pairs since they are unambiguous.
func extractCoords(text string) (lat, lon float64, ok bool) {
	if m := degreePairRe.FindStringSubmatch(text); m != nil {
		lat, _ = strconv.ParseFloat(m[1], 64)
		lon, _ = strconv.ParseFloat(m[3], 64)
		if m[2] == "S" || m[2] == "s" {
			lat = -lat
		}
		if m[4] == "W" || m[4] == "w" {
			lon = -lon
		}
		if validCoords(lat, lon) {
			return lat, lon, true
		}
	}

	for _, m := range decimalPairRe.FindAllStringSubmatch(text, 4) {
		lat, _ = strconv.ParseFloat(m[1], 64)
		lon, _ = strconv.ParseFloat(m[2], 64)
		if validCoords(lat, lon) {
			return lat, lon, true
		}
	}
	return 0, 0, false
}

func validCoords(lat, lon float64) bool {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	// 0,0 is overwhelmingly a placeholder, not a real location.
	return lat != 0 || lon != 0
}
