package semcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// KeyFunc derives a canonical exact-match key from a request's text and
// metadata. Implementations must be deterministic: the same text and
// metadata always yield the same key.
type KeyFunc func(text string, metadata map[string]any) string

// CanonicalKey is the default KeyFunc. It hashes the whitespace-normalized,
// lowercased request text together with sorted metadata pairs, so key
// equality is insensitive to word casing, surrounding whitespace and
// metadata map iteration order.
//
// Example key input: "generate unit tests|model=gpt-4|temperature=0.2"
func CanonicalKey(text string, metadata map[string]any) string {
	parts := []string{normalizeText(text)}

	// Add metadata pairs (sorted for determinism)
	if len(metadata) > 0 {
		metaKeys := make([]string, 0, len(metadata))
		for key := range metadata {
			metaKeys = append(metaKeys, key)
		}
		sort.Strings(metaKeys)

		for _, key := range metaKeys {
			parts = append(parts, fmt.Sprintf("%s=%v", key, metadata[key]))
		}
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// normalizeText lowercases text and collapses runs of whitespace.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
