package utils

import (
	"strings"

	"golang.org/x/net/idna"
)

// CanonicalHostname returns a hostname in canonical form:
// - Trimmed of surrounding whitespace
// - Lowercased
// - No trailing dot, so "example.com." and "example.com" compare equal
// - Internationalized labels converted to their ASCII (punycode) form
//
// Names the IDNA lookup profile rejects (IP literals, underscores) are
// returned lowercased and otherwise untouched.
func CanonicalHostname(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for strings.HasSuffix(name, ".") {
		name = strings.TrimSuffix(name, ".")
	}
	if name == "" {
		return ""
	}
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil || ascii == "" {
		return name
	}
	return ascii
}
