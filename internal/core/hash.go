package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Domain prefixes for content-addressed identity. The version suffix enables
// future algorithm migration.
const (
	DomainSnapshot = "triage/snapshot/v1"
	DomainArtifact = "triage/artifact/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents domain/data
// boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FormatFloat renders a float for canonical JSON, which forbids raw floats.
// strconv's shortest round-trip representation keeps the rendering stable
// across runtimes.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// SnapshotVersion computes the content-derived version id of a trained model
// snapshot from its sample count, accuracy, F1 score, and training
// timestamp. Identical training results always produce the same id.
func SnapshotVersion(sampleCount int, accuracy, f1 float64, trainedAt time.Time) (string, error) {
	obj := map[string]any{
		"sample_count": int64(sampleCount),
		"accuracy":     FormatFloat(accuracy),
		"f1":           FormatFloat(f1),
		"trained_at":   trainedAt.UTC().Format(time.RFC3339Nano),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("SnapshotVersion: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainSnapshot, canonical), nil
}

// ArtifactChecksum computes the integrity checksum stored inside a model
// artifact bundle, over the serialized parameter payload.
func ArtifactChecksum(payload []byte) string {
	return hashWithDomain(DomainArtifact, payload)
}
