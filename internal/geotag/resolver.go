// Package geotag assigns a location and confidence tier to each item, from
// structured geometry down through text extraction to coarse country-level
// fallbacks. Every resolution records a rationale naming the rule that fired.
package geotag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/couchcryptid/incident-feed/internal/domain"
)

const (
	defaultCacheEntries = 4096

	// maxScanTokens bounds how much of the item text the gazetteer pass reads.
	maxScanTokens = 80

	// ambiguityMargin is the score gap under which two cross-country gazetteer
	// candidates are considered a tie. Ties resolve down to a country tier,
	// never up by guessing.
	ambiguityMargin = 0.05
)

// gazetteer is the slice of the store the resolver needs.
type gazetteer interface {
	PlacesByNormalizedName(ctx context.Context, normalized string) ([]domain.Place, error)
	CountryByCode(ctx context.Context, code string) (*domain.Place, error)
}

// Resolver walks an item down the confidence tiers until one resolves.
type Resolver struct {
	gaz    gazetteer
	cache  *lruCache
	logger *slog.Logger
}

func NewResolver(gaz gazetteer, logger *slog.Logger) *Resolver {
	return &Resolver{
		gaz:    gaz,
		cache:  newLRUCache(defaultCacheEntries),
		logger: logger,
	}
}

// Resolve fills in the item's point, confidence tier, and rationale in place.
// Items that already carry structured geometry or a source-assigned tier keep
// it; the resolver only ever raises precision within its own tier rules.
func (r *Resolver) Resolve(ctx context.Context, it *domain.Item, src domain.Source) error {
	// Tier A: structured geometry from the upstream payload.
	if it.Geometry != nil {
		if !it.HasPoint() {
			if lat, lon, ok := it.Geometry.Centroid(); ok {
				it.SetPoint(lat, lon)
			}
		}
		it.LocationConfidence = domain.ConfidenceExact
		if it.LocationRationale == "" {
			it.LocationRationale = "structured geometry from source payload"
		}
		return nil
	}

	// A plugin may have named a country without coordinates (advisory feeds).
	// Keep its tier and just fill in the centroid.
	if it.LocationConfidence == domain.ConfidenceCountry && it.LocationName != "" && !it.HasPoint() {
		if p, err := r.lookupCountry(ctx, it.LocationName); err != nil {
			return err
		} else if p != nil {
			it.SetPoint(p.Lat, p.Lon)
		}
		return nil
	}
	if it.LocationConfidence == domain.ConfidenceSourceDefault {
		return nil
	}

	// Tier B: coordinates embedded in the text.
	text := scanText(it)
	if lat, lon, ok := extractCoords(text); ok {
		it.SetPoint(lat, lon)
		it.LocationConfidence = domain.ConfidenceCoordsInText
		it.LocationRationale = fmt.Sprintf("coordinates %.4f, %.4f extracted from text", lat, lon)
		return nil
	}

	// Tier B: gazetteer place-name match with disambiguation. A winning
	// country entry is not a place match; it feeds the country tier below.
	matches, err := r.placeMatches(ctx, text)
	if err != nil {
		return err
	}
	best, ambiguous := pickPlace(matches)
	if best != nil && best.place.Kind != "country" {
		it.SetPoint(best.place.Lat, best.place.Lon)
		it.LocationName = best.place.Name
		it.LocationConfidence = domain.ConfidencePlaceMatch
		it.LocationRationale = fmt.Sprintf("gazetteer match on %q (%s)", best.gram, best.place.Kind)
		return nil
	}

	// Tier C: source default country, for inherently country-scoped feeds.
	if src.DefaultCountry != "" {
		if p, err := r.lookupCountry(ctx, src.DefaultCountry); err != nil {
			return err
		} else if p != nil {
			it.SetPoint(p.Lat, p.Lon)
			it.LocationName = p.Name
		} else {
			it.LocationName = src.DefaultCountry
		}
		it.LocationConfidence = domain.ConfidenceSourceDefault
		it.LocationRationale = fmt.Sprintf("source default country %q", src.DefaultCountry)
		return nil
	}

	// Tier C: a country detected in the text, either as the winning candidate
	// or as the sole country named among otherwise ambiguous matches.
	country := soleCountry(matches)
	if best != nil && best.place.Kind == "country" {
		country = &best.place
	}
	if country != nil {
		it.SetPoint(country.Lat, country.Lon)
		it.LocationName = country.Name
		it.LocationConfidence = domain.ConfidenceCountry
		it.LocationRationale = fmt.Sprintf("country token %q in text", country.Name)
		return nil
	}

	it.LocationConfidence = domain.ConfidenceUnknown
	if ambiguous {
		it.LocationRationale = "ambiguous gazetteer candidates, no corroborating context"
	} else {
		it.LocationRationale = "no location signal in payload or text"
	}
	return nil
}

// match is one gazetteer hit with the n-gram that produced it.
type match struct {
	place domain.Place
	gram  string
	grams int // token count of the matching n-gram
	score float64
}

// placeMatches runs 1..3 token windows over the text against the gazetteer.
func (r *Resolver) placeMatches(ctx context.Context, text string) ([]match, error) {
	toks := domain.Tokens(text)
	if len(toks) > maxScanTokens {
		toks = toks[:maxScanTokens]
	}

	byPlace := map[int64]match{}
	for n := 3; n >= 1; n-- {
		for i := 0; i+n <= len(toks); i++ {
			gram := strings.Join(toks[i:i+n], " ")
			if skipGram(toks[i:i+n]) {
				continue
			}
			places, err := r.lookup(ctx, gram)
			if err != nil {
				return nil, err
			}
			for _, p := range places {
				if prev, ok := byPlace[p.ID]; ok && prev.grams >= n {
					continue
				}
				byPlace[p.ID] = match{place: p, gram: gram, grams: n}
			}
		}
	}

	matches := make([]match, 0, len(byPlace))
	for _, m := range byPlace {
		matches = append(matches, m)
	}
	scoreMatches(matches)
	return matches, nil
}

// scoreMatches weighs importance, n-gram length, and country co-occurrence:
// a candidate whose country is named by other matched grams beats a
// same-named place with no corroboration.
func scoreMatches(matches []match) {
	support := map[string]map[string]struct{}{}
	for _, m := range matches {
		cc := m.place.CountryCode
		if support[cc] == nil {
			support[cc] = map[string]struct{}{}
		}
		support[cc][m.gram] = struct{}{}
	}
	for i := range matches {
		m := &matches[i]
		corroborating := len(support[m.place.CountryCode]) - 1 // exclude own gram
		if corroborating > 2 {
			corroborating = 2
		}
		m.score = m.place.Importance + 0.25*float64(m.grams-1) + 0.3*float64(corroborating)
	}
}

// pickPlace returns the best-scored candidate, flagging cross-country ties.
// A tie never resolves by ordering; it falls down to a coarser tier.
func pickPlace(matches []match) (*match, bool) {
	if len(matches) == 0 {
		return nil, false
	}
	scored := make([]match, len(matches))
	copy(scored, matches)
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].place.ID < scored[j].place.ID
	})
	best := scored[0]
	if len(scored) > 1 {
		second := scored[1]
		if best.score-second.score < ambiguityMargin && best.place.CountryCode != second.place.CountryCode {
			return nil, true
		}
	}
	return &best, false
}

// soleCountry returns the country place when the matches name exactly one
// distinct country, the basis for the C_country tier.
func soleCountry(matches []match) *domain.Place {
	var found *domain.Place
	for i := range matches {
		p := matches[i].place
		if p.Kind != "country" {
			continue
		}
		if found != nil && found.CountryCode != p.CountryCode {
			return nil
		}
		if found == nil {
			found = &matches[i].place
		}
	}
	return found
}

func (r *Resolver) lookup(ctx context.Context, gram string) ([]domain.Place, error) {
	if places, ok := r.cache.get(gram); ok {
		return places, nil
	}
	places, err := r.gaz.PlacesByNormalizedName(ctx, gram)
	if err != nil {
		return nil, fmt.Errorf("geotag: gazetteer lookup %q: %w", gram, err)
	}
	// Empty results are cached too: feed text is dominated by non-place words.
	r.cache.put(gram, places)
	return places, nil
}

func (r *Resolver) lookupCountry(ctx context.Context, name string) (*domain.Place, error) {
	// Feed packs may give an ISO code instead of a country name.
	if code := strings.ToUpper(strings.TrimSpace(name)); len(code) == 2 && isLetters(code) {
		return r.gaz.CountryByCode(ctx, code)
	}
	places, err := r.lookup(ctx, domain.NormalizeTitle(name))
	if err != nil {
		return nil, err
	}
	for i := range places {
		if places[i].Kind == "country" {
			return &places[i], nil
		}
	}
	if len(places) == 0 {
		r.logger.Debug("country not in gazetteer", slog.String("name", name))
	}
	return nil, nil
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func scanText(it *domain.Item) string {
	parts := []string{it.Title, it.Summary}
	if it.Content != "" && len(it.Content) <= 2000 {
		parts = append(parts, it.Content)
	}
	return strings.Join(parts, " ")
}

// gramStopwords are tokens that never start or form a place lookup on their own.
var gramStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "near": {}, "from": {},
	"into": {}, "over": {}, "this": {}, "that": {}, "after": {}, "during": {},
	"new": {}, "north": {}, "south": {}, "east": {}, "west": {},
}

// skipGram rejects grams that cannot name a place: short or stopword single
// tokens, and grams made of nothing but stopwords. A stopword inside a longer
// gram is kept so names like "South Africa" or "New Zealand" still match.
func skipGram(toks []string) bool {
	if len(toks) == 1 && len(toks[0]) < 4 {
		return true
	}
	for _, t := range toks {
		if _, stop := gramStopwords[t]; !stop {
			return false
		}
	}
	return true
}
