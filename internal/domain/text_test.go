package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"whitespace and punctuation", "  Hello,   World!! ", "hello world"},
		{"already clean", "magnitude 5 quake", "magnitude 5 quake"},
		{"unicode punctuation", "Fires — near Athens…", "fires near athens"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTitle(tt.in))
		})
	}
}

func TestCanonicalizeURL(t *testing.T) {
	t.Run("strips tracking parameters and fragment", func(t *testing.T) {
		url := "https://Example.com/path?a=1&utm_source=x&fbclid=y#frag"
		assert.Equal(t, "https://example.com/path?a=1", CanonicalizeURL(url))
	})

	t.Run("tracking-only variants collapse to the same form", func(t *testing.T) {
		a := CanonicalizeURL("https://example.com/story?utm_campaign=a&utm_medium=b")
		b := CanonicalizeURL("https://example.com/story?gclid=zzz")
		c := CanonicalizeURL("https://EXAMPLE.com/story")
		assert.Equal(t, a, b)
		assert.Equal(t, b, c)
	})

	t.Run("keeps meaningful query parameters", func(t *testing.T) {
		assert.Equal(t, "https://example.com/q?id=42", CanonicalizeURL("https://example.com/q?id=42"))
	})

	t.Run("unparseable input returned as-is", func(t *testing.T) {
		assert.Equal(t, "not a url", CanonicalizeURL(" not a url "))
	})
}

func TestTokenJaccard(t *testing.T) {
	assert.Equal(t, 1.0, TokenJaccard("quake near tokyo", "Quake near Tokyo!"))
	assert.Equal(t, 0.0, TokenJaccard("", "anything"))
	assert.InDelta(t, 0.5, TokenJaccard("a b c d", "a b"), 1e-9)
}

func TestTokenSignature(t *testing.T) {
	assert.Equal(t, "m 5 2 earthquake near", TokenSignature("M 5.2 earthquake near Tokyo, Japan", 5))
	assert.Equal(t, "", TokenSignature("", 6))
}
