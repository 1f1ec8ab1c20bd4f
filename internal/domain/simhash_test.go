package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimhash64_Deterministic(t *testing.T) {
	a := Simhash64("M 5.2 earthquake near Tokyo, Japan")
	b := Simhash64("M 5.2 earthquake near Tokyo, Japan")
	assert.Equal(t, a, b)
	assert.NotZero(t, a)
}

func TestSimhash64_Empty(t *testing.T) {
	assert.Equal(t, uint64(0), Simhash64(""))
	assert.Equal(t, uint64(0), Simhash64("!!! ---"))
}

func TestSimhash64_DistanceSanity(t *testing.T) {
	a := Simhash64("earthquake near tokyo")
	b := Simhash64("earthquake near tokyo japan")
	c := Simhash64("sports results premier league")

	assert.LessOrEqual(t, HammingDistance(a, b), 12, "near-duplicate text should stay close")
	assert.Greater(t, HammingDistance(a, c), 12, "unrelated text should stay far")
}

func TestSimhash64_SingleEditStaysClose(t *testing.T) {
	a := Simhash64("Severe thunderstorm warning for Travis County until 9 PM")
	b := Simhash64("Severe thunderstorm warning for Travis County until 8 PM")
	assert.LessOrEqual(t, HammingDistance(a, b), 12)
}

func TestHammingDistance(t *testing.T) {
	assert.Equal(t, 0, HammingDistance(0xDEAD, 0xDEAD))
	assert.Equal(t, 64, HammingDistance(0, ^uint64(0)))
	assert.Equal(t, 1, HammingDistance(0b1000, 0b0000))
}

func TestSimhashBucket(t *testing.T) {
	assert.Equal(t, uint16(0xABCD), SimhashBucket(0xABCD_0000_0000_0000))
	assert.Equal(t, SimhashBucket(Simhash64("same text")), SimhashBucket(Simhash64("same text")))
}
