// Package domain models the ingestion-to-incident data flow.
//
// # Records and clusters
//
// An Item is one normalized record from one upstream source event: a quake
// feed feature, a CAP alert, an RSS entry. Items are immutable once stored,
// except that re-fetching the same external_id refreshes updated_at and the
// raw payload.
//
// An Incident is a cluster of Items believed to describe the same real-world
// event. Incidents carry a rolling 64-bit similarity fingerprint (simhash)
// over title+summary text; near-duplicate text yields a small Hamming
// distance between fingerprints, which is what the clustering engine keys on.
//
// # Location confidence tiers
//
// Geotagging is strictly tiered and never promotes silently:
//
//	A_exact          structured geometry supplied by the source
//	B_coords_in_text coordinate pattern extracted from title/summary text
//	B_place_match    gazetteer n-gram match, importance + co-occurrence scored
//	C_country        country token detected, country centroid used
//	C_source_default source-level default country
//	U_unknown        nothing matched
//
// Every resolution writes a human-readable rationale naming the rule that
// fired.
package domain
