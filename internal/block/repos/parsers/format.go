package parsers

import (
	"fmt"
	"io"
	"strings"

	logpkg "github.com/haukened/rr-block/internal/block/common/log"
)

// Format names a supported list syntax.
type Format string

const (
	// FormatPlain is one hostname or URL per line.
	FormatPlain Format = "plain"
	// FormatHosts is /etc/hosts syntax: an address followed by hostnames.
	FormatHosts Format = "hosts"
)

// ParseFormat converts a string into a Format. Empty input selects FormatPlain.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatPlain:
		return FormatPlain, nil
	case FormatHosts:
		return FormatHosts, nil
	default:
		return "", fmt.Errorf("unsupported list format: %q", s)
	}
}

// Parse dispatches to the parser for format.
func Parse(format Format, r io.Reader, source string, logger logpkg.Logger) ([]string, error) {
	switch format {
	case FormatPlain:
		return ParsePlainList(r, source, logger)
	case FormatHosts:
		return ParseHostsFile(r, source, logger)
	default:
		return nil, fmt.Errorf("unsupported list format: %q", string(format))
	}
}
