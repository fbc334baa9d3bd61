package parsers

import (
	"strings"
	"unicode"

	"github.com/haukened/rr-block/internal/block/common/utils"
	"github.com/haukened/rr-block/internal/block/domain"
)

// isValidFQDN checks whether the provided string is a usable hostname for a list entry.
// It enforces the following rules:
//   - The total length must not exceed 255 characters.
//   - The name must contain at least two labels (separated by dots).
//   - Each label must be between 1 and 63 characters long.
//   - The first label must start with a letter or number.
func isValidFQDN(name string) bool {
	if len(name) > 255 {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) > 63 || len(label) == 0 {
			return false
		}
	}
	first := []rune(labels[0])
	return isAlphaNumeric(first[0])
}

// isAlphaNumeric reports whether r is a letter or digit.
func isAlphaNumeric(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// isWildcardToken reports list syntax this blocker cannot honor: "*.", a
// leading "." or any '*' asks for subdomain matching.
func isWildcardToken(raw string) bool {
	return strings.HasPrefix(raw, ".") || strings.Contains(raw, "*")
}

// hostFromToken canonicalizes a list token. Tokens carrying a scheme are
// parsed as URLs and reduced to their hostname.
func hostFromToken(raw string) string {
	if strings.Contains(raw, "://") {
		h, err := domain.RequestHost(raw)
		if err != nil {
			return ""
		}
		return h
	}
	return utils.CanonicalHostname(raw)
}

// stripLineBOM removes a UTF-8 byte order mark at the start of a line.
func stripLineBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// classifyLine reports whether the line is blank or a whole-line comment.
func classifyLine(line string) (isEmpty, isComment bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true, false
	}
	return false, strings.HasPrefix(trimmed, "#")
}

// stripInlineComment drops everything from the first '#'.
func stripInlineComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}
