package parsers

import (
	"bufio"
	"io"
	"strings"

	logpkg "github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/common/utils"
)

// ParseHostsFile parses /etc/hosts-style files and returns the listed hostnames.
//
// Rules:
// - Ignore the address field; take one or more hostnames following it
// - Skip comments (whole-line or inline after '#') and blank lines
// - Skip wildcard tokens and names starting with '.'
// - Canonicalize, validate, and de-duplicate preserving first-seen order
func ParseHostsFile(r io.Reader, source string, logger logpkg.Logger) ([]string, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]string, 0, 64)

	logger.Debug(map[string]any{"source": source}, "parse_hosts_start")

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())

		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			continue
		}

		fields := strings.Fields(stripInlineComment(line))
		if len(fields) < 2 {
			logger.Debug(map[string]any{"line": lineNum}, "hosts_no_hostnames")
			continue
		}

		// fields[0] is the address
		for _, raw := range fields[1:] {
			if isWildcardToken(raw) {
				logger.Debug(map[string]any{"line": lineNum, "raw": raw}, "hosts_skip_invalid_token")
				continue
			}
			name := utils.CanonicalHostname(raw)
			if !isValidFQDN(name) {
				logger.Debug(map[string]any{"line": lineNum, "name": name}, "hosts_skip_invalid_fqdn")
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_hosts_scan_error")
		return nil, err
	}

	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_hosts_done")
	return out, nil
}
