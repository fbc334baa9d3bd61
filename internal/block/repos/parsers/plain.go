package parsers

import (
	"bufio"
	"io"
	"strings"

	logpkg "github.com/haukened/rr-block/internal/block/common/log"
)

// ParsePlainList parses a newline-delimited list of hostnames or URLs.
//
// Behavior:
// - Supports comments starting with '#' (inline or whole-line)
// - Lines with a scheme ("https://example.com/x") contribute their hostname
// - Wildcard or leading-dot entries are skipped; matching is exact-host only
// - De-duplicates by canonical hostname while preserving first-seen order
func ParsePlainList(r io.Reader, source string, logger logpkg.Logger) ([]string, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]string, 0, 64)
	logger.Debug(map[string]any{"source": source}, "parse_plain_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())

		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			continue
		}

		s := strings.TrimSpace(stripInlineComment(line))
		if s == "" {
			continue
		}
		if isWildcardToken(s) {
			logger.Debug(map[string]any{"line": lineNum, "raw": s}, "skip_wildcard")
			continue
		}

		name := hostFromToken(s)
		if !isValidFQDN(name) {
			logger.Debug(map[string]any{"line": lineNum, "raw": s, "name": name}, "skip_invalid_fqdn")
			continue
		}
		if _, ok := seen[name]; ok {
			logger.Debug(map[string]any{"line": lineNum, "name": name}, "skip_duplicate")
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
		logger.Debug(map[string]any{"line": lineNum, "name": name}, "emit_host")
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_plain_list_scan_error")
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_plain_list_done")
	return out, nil
}
