package domain

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/haukened/rr-block/internal/block/common/utils"
)

// DefaultScheme is prefixed to input that carries no scheme, so a bare
// hostname such as "example.org" is stored as "https://example.org".
const DefaultScheme = "https"

// NormalizeRuleURL validates user input and returns the URL a BlockRule stores.
//
// Rules:
//   - surrounding whitespace is trimmed; empty input is rejected
//   - input without "://" is treated as a bare host and gets DefaultScheme
//   - the result must parse as an absolute URL with a non-empty hostname
//
// Every failure is a *ValidationError.
func NormalizeRuleURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &ValidationError{Input: raw, Reason: "url must not be empty"}
	}
	if !strings.Contains(s, "://") {
		s = DefaultScheme + "://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", &ValidationError{Input: raw, Reason: "url does not parse", Err: err}
	}
	if !u.IsAbs() || u.Hostname() == "" {
		return "", &ValidationError{Input: raw, Reason: "url must be absolute and name a host"}
	}
	return u.String(), nil
}

// RequestHost extracts the canonical hostname from an absolute URL.
// Relative or unparsable input yields an error; callers in the request path
// treat that as allow.
func RequestHost(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if !u.IsAbs() || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q", ErrNotAbsolute, raw)
	}
	host := utils.CanonicalHostname(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: %q", ErrNotAbsolute, raw)
	}
	return host, nil
}
