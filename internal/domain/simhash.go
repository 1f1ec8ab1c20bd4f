package domain

import (
	"hash/fnv"
	"math/bits"
)

// Simhash64 computes a 64-bit locality-sensitive fingerprint over the token
// bag of text: each token's 64-bit hash votes per bit, weighted by frequency,
// and the sign of each bit-sum becomes the output bit. Identical text always
// yields the identical fingerprint; a small edit flips few bits.
func Simhash64(text string) uint64 {
	toks := Tokens(text)
	if len(toks) == 0 {
		return 0
	}

	weights := make(map[string]int, len(toks))
	for _, t := range toks {
		weights[t]++
	}

	var vector [64]int
	for tok, weight := range weights {
		h := fnv.New64a()
		h.Write([]byte(tok))
		th := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if th&(1<<uint(bit)) != 0 {
				vector[bit] += weight
			} else {
				vector[bit] -= weight
			}
		}
	}

	var out uint64
	for bit, v := range vector {
		if v > 0 {
			out |= 1 << uint(bit)
		}
	}
	return out
}

// HammingDistance counts differing bits between two fingerprints.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// SimhashBucket returns the coarse prefix bucket (top 16 bits) used for
// candidate retrieval without a full incident scan.
func SimhashBucket(h uint64) uint16 {
	return uint16(h >> 48)
}
