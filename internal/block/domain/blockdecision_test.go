package domain

import "testing"

func TestBlockDecision_IsBlocked(t *testing.T) {
	if !(BlockDecision{Blocked: true}).IsBlocked() {
		t.Fatalf("expected true")
	}
	if (BlockDecision{}).IsBlocked() {
		t.Fatalf("expected false")
	}
}

func TestEmptyDecision(t *testing.T) {
	d := EmptyDecision()
	if d.Blocked || d.MatchedRule != "" || d.Host != "" {
		t.Fatalf("empty decision should be an allow with empty fields: %+v", d)
	}
}

func TestAllowDecision(t *testing.T) {
	d := AllowDecision("example.com")
	if d.Blocked || d.Host != "example.com" || d.MatchedRule != "" {
		t.Fatalf("unexpected allow decision: %+v", d)
	}
}
