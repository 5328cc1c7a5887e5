// Package identity computes the three-tier identity of a piece of
// content: a canonical sha256 over the exact bytes, the same digest over
// normalized text, and a simhash fingerprint tolerant of small edits.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"daon/internal/domain"
)

const (
	// MinContentBytes rejects trivially short submissions; anything under
	// this is too little signal for the perceptual tier to mean anything.
	MinContentBytes = 100
	// MaxContentBytes caps a single work at 10 MiB.
	MaxContentBytes = 10 * 1024 * 1024

	exactPrefix      = "sha256:"
	perceptualPrefix = "simhash:"

	shingleWidth = 3
)

var contentHashPattern = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

// Compute validates content and returns its three hashes. The exact hash
// is computed over the raw UTF-8 bytes with any leading BOM stripped.
func Compute(content string) (domain.ContentIdentity, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	if len(content) > MaxContentBytes {
		return domain.ContentIdentity{}, domain.ErrContentTooLarge
	}
	if len(strings.TrimSpace(content)) < MinContentBytes {
		return domain.ContentIdentity{}, domain.ErrContentTooShort
	}

	normalized := Normalize(content)
	return domain.ContentIdentity{
		Exact:      exactPrefix + sha256Hex(content),
		Normalized: exactPrefix + sha256Hex(normalized),
		Perceptual: fmt.Sprintf("%s%016x", perceptualPrefix, simhash(normalized)),
	}, nil
}

// ValidateHash checks the canonical content-hash wire format
// ("sha256:" + 64 hex digits).
func ValidateHash(hash string) error {
	if !contentHashPattern.MatchString(hash) {
		return domain.ErrInvalidContentHash
	}
	return nil
}

// Normalize lower-cases the text, unifies typographic quotes and dashes,
// drops the remaining punctuation, and collapses whitespace runs, so that
// pure re-formatting of a work maps to the same normalized digest.
func Normalize(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	for _, r := range strings.ToLower(content) {
		switch r {
		case '‘', '’', '‚', '′':
			b.WriteRune('\'')
		case '“', '”', '„', '″':
			b.WriteRune('"')
		case '–', '—', '―':
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()

	var out strings.Builder
	out.Grow(len(cleaned))
	lastSpace := true
	for _, r := range cleaned {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if !lastSpace {
				out.WriteRune(' ')
				lastSpace = true
			}
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r > 127:
			out.WriteRune(r)
			lastSpace = false
		default:
			// punctuation dropped
		}
	}
	return strings.TrimRight(out.String(), " ")
}

// simhash computes a 64-bit locality-sensitive fingerprint over
// fixed-width word shingles. Texts sharing most shingles produce
// fingerprints that are identical or a few bits apart.
func simhash(normalized string) uint64 {
	words := strings.Fields(normalized)
	var counts [64]int
	accumulate := func(token string) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if sum&(1<<uint(bit)) != 0 {
				counts[bit]++
			} else {
				counts[bit]--
			}
		}
	}

	if len(words) < shingleWidth {
		for _, w := range words {
			accumulate(w)
		}
	} else {
		for i := 0; i+shingleWidth <= len(words); i++ {
			accumulate(strings.Join(words[i:i+shingleWidth], " "))
		}
	}

	var fingerprint uint64
	for bit := 0; bit < 64; bit++ {
		if counts[bit] > 0 {
			fingerprint |= 1 << uint(bit)
		}
	}
	return fingerprint
}

// HammingDistance counts differing bits between two perceptual hashes.
// Returns -1 when either value is not a simhash fingerprint.
func HammingDistance(a, b string) int {
	fa, okA := parseFingerprint(a)
	fb, okB := parseFingerprint(b)
	if !okA || !okB {
		return -1
	}
	x := fa ^ fb
	count := 0
	for x != 0 {
		x &= x - 1
		count++
	}
	return count
}

func parseFingerprint(s string) (uint64, bool) {
	raw, ok := strings.CutPrefix(s, perceptualPrefix)
	if !ok || len(raw) != 16 {
		return 0, false
	}
	var v uint64
	if _, err := fmt.Sscanf(raw, "%016x", &v); err != nil {
		return 0, false
	}
	return v, true
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
