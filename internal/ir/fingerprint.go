package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainMatrix = "corpusql/matrix/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes a stable content hash of a matrix. Two matrices with
// the same constraints produce the same fingerprint regardless of map order
// or Unicode normalization form of their patterns.
func Fingerprint(m Matrix) (string, error) {
	canonical, err := MarshalCanonical(matrixObject(m))
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainMatrix, canonical), nil
}

// MustFingerprint is Fingerprint for matrices known to be well formed.
func MustFingerprint(m Matrix) string {
	fp, err := Fingerprint(m)
	if err != nil {
		panic(err)
	}
	return fp
}

func matrixObject(m Matrix) map[string]any {
	cols := make([]any, len(m.Columns))
	for i, c := range m.Columns {
		layers := make(map[string]any, len(c.Layers))
		ids := make([]string, 0, len(c.Layers))
		for id := range c.Layers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			matches := make([]any, len(c.Layers[id]))
			for j, lm := range c.Layers[id] {
				matches[j] = layerMatchObject(lm)
			}
			layers[id] = matches
		}
		cols[i] = map[string]any{
			"layers": layers,
			"adj":    c.Adjacency(),
		}
	}

	obj := map[string]any{
		"columns":               cols,
		"participant_query":     m.ParticipantQuery,
		"transcript_query":      m.TranscriptQuery,
		"main_participant_only": m.MainParticipantOnly,
		"max_matches":           m.MaxMatches,
	}
	if m.MinAnchorConfidence != nil {
		obj["min_anchor_confidence"] = *m.MinAnchorConfidence
	}
	return obj
}

func layerMatchObject(lm LayerMatch) map[string]any {
	obj := map[string]any{
		"pattern":      lm.Pattern,
		"not":          lm.Not,
		"anchor_start": lm.AnchorStart,
		"anchor_end":   lm.AnchorEnd,
		"target":       lm.Target,
	}
	if lm.Min != nil {
		obj["min"] = formatNumber(*lm.Min)
	}
	if lm.Max != nil {
		obj["max"] = formatNumber(*lm.Max)
	}
	return obj
}

// formatNumber renders a float as a shortest round-trip decimal string.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
