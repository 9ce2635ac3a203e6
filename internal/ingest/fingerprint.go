// Package ingest implements the deduplicating ingestion pipeline: payload
// fingerprinting, intra-batch and store-backed duplicate detection, lot
// partitioning and the orchestration of export and identifier recording.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint derives the stable digest of a QR payload used in place of the
// raw text for comparison and storage. SHA-256, rendered as 64 lowercase hex
// characters. The output format must never change: every stored identifier
// carries one of these digests and a format change would invalidate all past
// duplicate detection.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
