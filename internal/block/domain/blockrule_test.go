package domain

import (
	"errors"
	"testing"
)

func TestNewBlockRule_Valid(t *testing.T) {
	r, err := NewBlockRule("id-1", "example.org")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ID != "id-1" {
		t.Errorf("ID = %q, want id-1", r.ID)
	}
	if r.URL != "https://example.org" {
		t.Errorf("URL = %q, want https://example.org", r.URL)
	}
	if !r.IsBlocked {
		t.Errorf("IsBlocked = false, want true for a new rule")
	}
}

func TestNewBlockRule_Invalid(t *testing.T) {
	if _, err := NewBlockRule("", "example.org"); err == nil {
		t.Fatalf("expected error for empty id")
	}
	_, err := NewBlockRule("id-1", "")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError for empty url, got %v", err)
	}
	if ve.Input != "" {
		t.Errorf("ValidationError.Input = %q, want empty", ve.Input)
	}
}

func TestBlockRule_Validate(t *testing.T) {
	cases := []struct {
		name    string
		rule    BlockRule
		wantErr bool
	}{
		{"ok", BlockRule{ID: "a", URL: "https://example.com", IsBlocked: true}, false},
		{"ok allowed", BlockRule{ID: "a", URL: "https://example.com"}, false},
		{"missing id", BlockRule{URL: "https://example.com"}, true},
		{"relative url", BlockRule{ID: "a", URL: "example.com"}, true},
		{"garbage url", BlockRule{ID: "a", URL: "not a url"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err=%v, wantErr=%v", err, tc.wantErr)
			}
		})
	}
}

func TestBlockRule_HostnameAndMatches(t *testing.T) {
	r := BlockRule{ID: "a", URL: "https://Example.COM/path", IsBlocked: true}
	if got := r.Hostname(); got != "example.com" {
		t.Fatalf("Hostname() = %q, want example.com", got)
	}
	if !r.Matches("example.com") {
		t.Errorf("expected match on exact host")
	}
	if r.Matches("sub.example.com") {
		t.Errorf("subdomains must not match")
	}
	if r.Matches("") {
		t.Errorf("empty host must not match")
	}
	if r.Toggled().Matches("example.com") {
		t.Errorf("allowed rule must not match")
	}

	broken := BlockRule{ID: "b", URL: "::", IsBlocked: true}
	if broken.Hostname() != "" {
		t.Errorf("expected empty hostname for broken url")
	}
	if broken.Matches("") {
		t.Errorf("broken rule must never match")
	}
}

func TestBlockRule_ToggledTwiceIsIdentity(t *testing.T) {
	r := BlockRule{ID: "a", URL: "https://example.com", IsBlocked: true}
	if r.Toggled().IsBlocked {
		t.Fatalf("expected single toggle to flip")
	}
	if r.Toggled().Toggled() != r {
		t.Fatalf("expected double toggle to restore original")
	}
}
