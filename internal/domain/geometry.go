package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Geometry is a GeoJSON geometry with lazily-decoded coordinates.
// Coordinates follow GeoJSON order: [lon, lat].
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// NewPoint builds a Point geometry from a lat/lon pair.
func NewPoint(lat, lon float64) *Geometry {
	coords, _ := json.Marshal([2]float64{lon, lat})
	return &Geometry{Type: "Point", Coordinates: coords}
}

// NewPolygon builds a single-ring Polygon from [lon, lat] vertices, closing
// the ring if the input is open.
func NewPolygon(ring [][2]float64) *Geometry {
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	coords, _ := json.Marshal([][][2]float64{ring})
	return &Geometry{Type: "Polygon", Coordinates: coords}
}

// BoundingBox computes the lon/lat bounding box of the geometry.
// Returns false for unsupported types or empty coordinates.
func (g *Geometry) BoundingBox() (BBox, bool) {
	if g == nil {
		return BBox{}, false
	}

	// GeoJSON positions may carry altitude as a third element (USGS quake
	// feeds do), so positions decode as variable-length slices.
	var points [][]float64
	switch g.Type {
	case "Point":
		var p []float64
		if err := json.Unmarshal(g.Coordinates, &p); err != nil {
			return BBox{}, false
		}
		points = append(points, p)
	case "LineString", "MultiPoint":
		var line [][]float64
		if err := json.Unmarshal(g.Coordinates, &line); err != nil {
			return BBox{}, false
		}
		points = line
	case "Polygon", "MultiLineString":
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return BBox{}, false
		}
		for _, ring := range rings {
			points = append(points, ring...)
		}
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return BBox{}, false
		}
		for _, poly := range polys {
			for _, ring := range poly {
				points = append(points, ring...)
			}
		}
	default:
		return BBox{}, false
	}

	first := true
	var box BBox
	for _, p := range points {
		if len(p) < 2 {
			continue
		}
		if first {
			box = BBox{MinLon: p[0], MinLat: p[1], MaxLon: p[0], MaxLat: p[1]}
			first = false
			continue
		}
		box.MinLon = math.Min(box.MinLon, p[0])
		box.MinLat = math.Min(box.MinLat, p[1])
		box.MaxLon = math.Max(box.MaxLon, p[0])
		box.MaxLat = math.Max(box.MaxLat, p[1])
	}
	if first {
		return BBox{}, false
	}
	return box, true
}

// Centroid returns the bbox-center point of the geometry.
func (g *Geometry) Centroid() (lat, lon float64, ok bool) {
	box, ok := g.BoundingBox()
	if !ok {
		return 0, 0, false
	}
	lat, lon = box.Center()
	return lat, lon, true
}

// BBox is a lon/lat bounding box.
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Center returns the box's midpoint.
func (b BBox) Center() (lat, lon float64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// Union extends the box to cover another box.
func (b BBox) Union(other BBox) BBox {
	return BBox{
		MinLon: math.Min(b.MinLon, other.MinLon),
		MinLat: math.Min(b.MinLat, other.MinLat),
		MaxLon: math.Max(b.MaxLon, other.MaxLon),
		MaxLat: math.Max(b.MaxLat, other.MaxLat),
	}
}

// Contains reports whether the point lies inside the box (inclusive).
func (b BBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// String encodes the box as "minLon,minLat,maxLon,maxLat".
func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// ParseBBox decodes a "minLon,minLat,maxLon,maxLat" string.
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("bbox: expected 4 comma-separated values, got %q", s)
	}
	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("bbox: %w", err)
		}
		vals[i] = v
	}
	return BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}, nil
}

// HaversineKm computes the great-circle distance in kilometers.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
