package parsers

import (
	"reflect"
	"strings"
	"testing"

	"github.com/haukened/rr-block/internal/block/common/log"
)

func TestParseHostsFile_Basics(t *testing.T) {
	input := `
# Standard hosts
127.0.0.1   localhost
0.0.0.0     ads.example.com tracker.Example.net.   # inline
0.0.0.0     *.wild.example.com .dot.example.com
::1         ip6.example.org
0.0.0.0
0.0.0.0     ads.example.com
`
	got, err := ParseHostsFile(strings.NewReader(input), "hosts", log.NewNoopLogger())
	if err != nil {
		t.Fatalf("ParseHostsFile returned error: %v", err)
	}
	want := []string{"ads.example.com", "tracker.example.net", "ip6.example.org"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseHostsFile_ScanError(t *testing.T) {
	if _, err := ParseHostsFile(errReader{}, "s", log.NewNoopLogger()); err == nil {
		t.Fatalf("expected scan error")
	}
}
