package util

import (
	"hash/fnv"
	"strconv"
)

// Fingerprint utilities for global-state deduplication
// Uses FNV-1a (64 bit) over the canonical state encoding

// Fingerprint computes a 64-bit FNV-1a hash of the given encoding
func Fingerprint(encoding string) uint64 {
	h := fnv.New64a()
	// hash.Hash never returns an error on Write
	_, _ = h.Write([]byte(encoding))
	return h.Sum64()
}

// FormatFingerprint renders a fingerprint for traces and reports
func FormatFingerprint(fp uint64) string {
	return strconv.FormatUint(fp, 16)
}
