package geotag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCoords(t *testing.T) {
	tests := []struct {
		name string
		text string
		lat  float64
		lon  float64
		ok   bool
	}{
		{"decimal pair comma", "epicenter at 38.322, 142.369 offshore", 38.322, 142.369, true},
		{"decimal pair space", "located 35.68 139.69 at depth 10km", 35.68, 139.69, true},
		{"negative decimal", "center near -33.87, 151.21", -33.87, 151.21, true},
		{"hemisphere letters", "near 12.3N 56.78E moving west", 12.3, 56.78, true},
		{"south west hemispheres", "position 8.5S, 74.2W", -8.5, -74.2, true},
		{"degree symbols", "at 19.4° N, 155.6° W", 19.4, -155.6, true},
		{"latitude out of range rejected", "value pair 95.123, 10.456 in table", 0, 0, false},
		{"null island rejected", "grid 0.000, 0.000 placeholder", 0, 0, false},
		{"integers do not match", "magnitude 5 at 10 km depth", 0, 0, false},
		{"no coordinates", "heavy rain expected across the region", 0, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lat, lon, ok := extractCoords(tc.text)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.InDelta(t, tc.lat, lat, 0.0001)
				assert.InDelta(t, tc.lon, lon, 0.0001)
			}
		})
	}
}
