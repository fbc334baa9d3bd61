package domain

// BlockDecision represents the outcome of evaluating a request URL against the rules.
// Pure value type, no external dependencies.
type BlockDecision struct {
	Blocked     bool   `json:"blocked"`
	Host        string `json:"host,omitempty"`        // canonical request hostname, empty if unparsable
	MatchedRule string `json:"matchedRule,omitempty"` // id of the rule that blocked the request
}

// IsBlocked is a convenience accessor.
func (d BlockDecision) IsBlocked() bool { return d.Blocked }

// EmptyDecision returns a not-blocked decision.
func EmptyDecision() BlockDecision { return BlockDecision{Blocked: false} }

// AllowDecision returns a not-blocked decision for a parsed host.
func AllowDecision(host string) BlockDecision { return BlockDecision{Host: host} }
