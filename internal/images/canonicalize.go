// Package images implements the Image Lifecycle Manager (C2): given a
// project's dependency manifest, it returns the image tag that satisfies
// it, building a new image on cache miss.
package images

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Canonicalize normalizes raw manifest text: split on line breaks, trim
// each line, drop blanks and comment lines (leading '#'), sort
// lexicographically, and rejoin with single newlines. Canonicalization is
// idempotent: Canonicalize(Canonicalize(x)) == Canonicalize(x).
func Canonicalize(raw string) string {
	lines := strings.Split(raw, "\n")
	var kept []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		kept = append(kept, trimmed)
	}
	sort.Strings(kept)
	return strings.Join(kept, "\n")
}

// Hash returns the content-addressed build key for canonical text.
func Hash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Tag returns the per-project image tag for a given content hash. The
// hash is truncated to 12 hex characters, leaving distinct hashes
// effectively impossible to collide on while keeping tags short.
func Tag(prefix, projectID, hash string) string {
	n := 12
	if len(hash) < n {
		n = len(hash)
	}
	return prefix + "-" + projectID + "-" + hash[:n]
}
