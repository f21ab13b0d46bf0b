// Package fingerprint derives stable content identities for postings.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// ExternalID hashes the normalized URL and title into a stable external
// identifier, so retries of the same underlying post map to the same
// identity even when wording shifts slightly. This is a heuristic, not
// guaranteed collision-free.
func ExternalID(rawURL, title string) string {
	seed := NormalizeURL(rawURL) + "|" + normalizeText(title)
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// NormalizeURL lowercases the host, strips query, fragment, and any trailing
// slash. Invalid URLs fall back to trimmed lowercase input.
func NormalizeURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(trimmed, "/"))
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
