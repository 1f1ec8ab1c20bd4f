// Command seedplaces loads a Natural Earth countries GeoJSON file into the
// gazetteer. Each feature becomes one country entry whose point is the center
// of the feature's bounding box.
//
// Usage:
//
//	go run ./cmd/seedplaces \
//	  -db incidents.db \
//	  -geojson data/ne_110m_admin_0_countries.geojson
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/couchcryptid/incident-feed/internal/domain"
	"github.com/couchcryptid/incident-feed/internal/store"
)

// feature is the subset of a GeoJSON country feature the gazetteer needs.
type feature struct {
	Properties struct {
		NameEN string `json:"NAME_EN"`
		Name   string `json:"NAME"`
		ISOA2  string `json:"ISO_A2"`
	} `json:"properties"`
	BBox []float64 `json:"bbox"`
}

type featureCollection struct {
	Features []feature `json:"features"`
}

func main() {
	dbPath := flag.String("db", "incidents.db", "path to the sqlite database")
	geojsonPath := flag.String("geojson", "", "path to a Natural Earth admin-0 countries GeoJSON file")
	force := flag.Bool("force", false, "seed even when the gazetteer already has entries")
	flag.Parse()

	if *geojsonPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(*dbPath, *geojsonPath, *force); err != nil {
		fmt.Fprintln(os.Stderr, "seedplaces:", err)
		os.Exit(1)
	}
}

func run(dbPath, geojsonPath string, force bool) error {
	ctx := context.Background()

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if !force {
		n, err := st.PlaceCount(ctx)
		if err != nil {
			return fmt.Errorf("count places: %w", err)
		}
		if n > 0 {
			fmt.Printf("gazetteer already has %d entries, use -force to seed anyway\n", n)
			return nil
		}
	}

	data, err := os.ReadFile(geojsonPath)
	if err != nil {
		return err
	}
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", geojsonPath, err)
	}

	inserted := 0
	for _, f := range fc.Features {
		p, ok := countryPlace(f)
		if !ok {
			continue
		}
		if err := st.InsertPlace(ctx, p); err != nil {
			return err
		}
		inserted++

		// Natural Earth names the US "United States of America"; feeds
		// usually say "United States".
		if p.CountryCode == "US" {
			alias := p
			alias.Name = "United States"
			alias.NormalizedName = domain.NormalizeTitle(alias.Name)
			if err := st.InsertPlace(ctx, alias); err != nil {
				return err
			}
			inserted++
		}
	}

	fmt.Printf("seeded %d country entries from %s\n", inserted, geojsonPath)
	return nil
}

// countryPlace converts a GeoJSON feature into a gazetteer entry. Features
// with no usable name or bounding box are skipped.
func countryPlace(f feature) (domain.Place, bool) {
	name := f.Properties.NameEN
	if name == "" {
		name = f.Properties.Name
	}
	if name == "" || len(f.BBox) != 4 {
		return domain.Place{}, false
	}

	code := f.Properties.ISOA2
	if code == "-99" {
		code = ""
	}

	return domain.Place{
		Name:           name,
		NormalizedName: domain.NormalizeTitle(name),
		Kind:           "country",
		CountryCode:    code,
		Lat:            (f.BBox[1] + f.BBox[3]) / 2,
		Lon:            (f.BBox[0] + f.BBox[2]) / 2,
		Importance:     0.6,
	}, true
}
