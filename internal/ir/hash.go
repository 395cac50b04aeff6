package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for fingerprints. The version suffix tracks
// RendererVersion.
const (
	DomainQueryText = "relq/querytext/v" + RendererVersion
	DomainRowSet    = "relq/rowset/v" + RendererVersion
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint hashes the canonical JSON form of v under a domain prefix.
// Equal logical inputs always produce equal fingerprints.
func Fingerprint(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// RowSetFingerprint hashes an ordered row set. Two executions that return
// the same rows in the same order share a fingerprint regardless of the
// engine that produced them.
func RowSetFingerprint(rows []Row) (string, error) {
	items := make([]any, len(rows))
	for i, r := range rows {
		cols := make([]any, len(r.Columns))
		for j, c := range r.Columns {
			cols[j] = []any{c, r.Values[j]}
		}
		items[i] = cols
	}
	return Fingerprint(DomainRowSet, items)
}
