package domain

import "fmt"

// BlockRule pairs a target URL with an on/off flag.
//
// Notes:
// - ID is opaque and assigned once at creation; it is never reused.
// - URL is stored in the normalized form produced by NormalizeRuleURL.
// - IsBlocked=false keeps the rule listed without any blocking effect.
//
// The JSON names match the persisted entry written by earlier clients.
type BlockRule struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	IsBlocked bool   `json:"isBlocked"`
}

// NewBlockRule validates rawURL and returns a blocking rule with the given id.
// URL problems are reported as *ValidationError.
func NewBlockRule(id, rawURL string) (BlockRule, error) {
	if id == "" {
		return BlockRule{}, fmt.Errorf("rule id must not be empty")
	}
	u, err := NormalizeRuleURL(rawURL)
	if err != nil {
		return BlockRule{}, err
	}
	return BlockRule{ID: id, URL: u, IsBlocked: true}, nil
}

// Validate checks a rule read back from storage.
func (r BlockRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id must not be empty")
	}
	if _, err := RequestHost(r.URL); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return nil
}

// Hostname returns the canonical hostname of the rule URL, or "" if the
// stored URL no longer parses.
func (r BlockRule) Hostname() string {
	h, err := RequestHost(r.URL)
	if err != nil {
		return ""
	}
	return h
}

// Toggled returns a copy of r with IsBlocked flipped.
func (r BlockRule) Toggled() BlockRule {
	r.IsBlocked = !r.IsBlocked
	return r
}

// Matches reports whether r blocks requests to the canonical host.
func (r BlockRule) Matches(host string) bool {
	return r.IsBlocked && host != "" && r.Hostname() == host
}
