package id

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FingerprintLength is the number of hex characters kept from a dataset fingerprint
const FingerprintLength = 16

// NewUUID generates a new UUID v4
func NewUUID() string {
	return uuid.New().String()
}

// NewRunID generates a run identifier that sorts by creation time
func NewRunID() string {
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405"), uuid.New().String()[:8])
}

// Fingerprint derives the identifier of a partitioning from the shape of the
// source dataset and the requested partition count. Names are sorted so the
// order of the constituent datasets does not matter.
func Fingerprint(rows, columns, partitions int, names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%d|%s", rows, columns, partitions, strings.Join(sorted, ","))
	return hex.EncodeToString(h.Sum(nil))[:FingerprintLength]
}
