package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint(1000, 7, 4, []string{"SB1", "SB0"})
	b := Fingerprint(1000, 7, 4, []string{"SB0", "SB1"})

	assert.Len(t, a, FingerprintLength)
	assert.Equal(t, a, b, "constituent order must not change the fingerprint")
	assert.NotEqual(t, a, Fingerprint(1000, 7, 8, []string{"SB0", "SB1"}))
	assert.NotEqual(t, a, Fingerprint(999, 7, 4, []string{"SB0", "SB1"}))
	assert.NotEqual(t, a, Fingerprint(1000, 7, 4, []string{"SB0"}))
}

func TestNewRunID(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, len("20060102T150405")+1+8)
}
