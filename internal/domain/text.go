package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

var (
	tokenRe = regexp.MustCompile(`[a-z0-9]+`)
	punctRe = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	wsRe    = regexp.MustCompile(`\s+`)
)

// trackingParams are query parameters stripped during URL canonicalization,
// in addition to any parameter with a "utm_" prefix.
var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"mkt_tok": {},
}

// NormalizeTitle casefolds, strips punctuation, and collapses whitespace.
func NormalizeTitle(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = punctRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// CanonicalizeURL lowercases scheme and host, drops fragments, and removes
// tracking query parameters so URLs differing only by trackers compare equal.
// Unparseable input is returned unchanged.
func CanonicalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" {
		return strings.TrimSpace(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		kept := url.Values{}
		for key, vals := range u.Query() {
			lower := strings.ToLower(key)
			if strings.HasPrefix(lower, "utm_") {
				continue
			}
			if _, tracked := trackingParams[lower]; tracked {
				continue
			}
			for _, v := range vals {
				kept.Add(key, v)
			}
		}
		u.RawQuery = kept.Encode()
	}

	return u.String()
}

// Tokens splits text into lowercase alphanumeric tokens.
func Tokens(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

// TokenJaccard computes set-overlap similarity between the token sets of two
// strings. Returns 0 when either side has no tokens.
func TokenJaccard(a, b string) float64 {
	as := tokenSet(a)
	bs := tokenSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	inter := 0
	for t := range as {
		if _, ok := bs[t]; ok {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokens(s) {
		set[t] = struct{}{}
	}
	return set
}

// TokenSignature returns the first n tokens of text joined by spaces, used as
// a short human-scannable cluster signature.
func TokenSignature(text string, n int) string {
	toks := Tokens(text)
	if len(toks) > n {
		toks = toks[:n]
	}
	return strings.Join(toks, " ")
}

// HashText returns the hex sha256 of text, used for hard-dedup content hashes.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
