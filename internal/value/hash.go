package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Digest computes a domain-separated SHA-256 over the canonical JSON of tree.
// Format: SHA256(domain + 0x00 + canonical(tree)), hex encoded.
//
// The null separator keeps the domain/data boundary unambiguous. Domains carry
// a version suffix, e.g. "difftrace/trace/v1".
func Digest(domain string, tree any) (string, error) {
	canonical, err := MarshalCanonical(tree)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
