package parsers

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/haukened/rr-block/internal/block/common/log"
)

func TestParsePlainList_Basics(t *testing.T) {
	input := "\uFEFF# comment at top\n" + `
Example.COM   
example.com.#inline comment

	sub.Example.com.
https://News.example.org/articles?id=1
# wildcard markers are not supported
*.wild.example.com
.root.example.org
localhost
not a host
example.com   # duplicate
`

	got, err := ParsePlainList(bytes.NewBufferString(input), "test-source", log.NewNoopLogger())
	if err != nil {
		t.Fatalf("ParsePlainList returned error: %v", err)
	}
	want := []string{"example.com", "sub.example.com", "news.example.org"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParsePlainList_EmptyAndCommentsOnly(t *testing.T) {
	got, err := ParsePlainList(strings.NewReader("\n# only\n   \n#another\n"), "s", log.NewNoopLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no hosts, got %v", got)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("read failure") }

func TestParsePlainList_ScanError(t *testing.T) {
	if _, err := ParsePlainList(errReader{}, "s", log.NewNoopLogger()); err == nil {
		t.Fatalf("expected scan error")
	}
}
