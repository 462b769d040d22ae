package names

import (
	"strings"
	"testing"

	"github.com/lanbeacon/mdnsd/internal/protocol"
)

func TestAlternativeHostName(t *testing.T) {
	cases := map[string]string{
		"printer":   "printer-2",
		"printer-2": "printer-3",
		"printer-9": "printer-10",
	}
	for in, want := range cases {
		if got := AlternativeHostName(in); got != want {
			t.Errorf("AlternativeHostName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAlternativeName(t *testing.T) {
	cases := map[string]string{
		"My Printer":    "My Printer #2",
		"My Printer #2": "My Printer #3",
	}
	for in, want := range cases {
		if got := AlternativeName(in); got != want {
			t.Errorf("AlternativeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAlternativeNamePreservesLabelLimit(t *testing.T) {
	long := strings.Repeat("x", protocol.MaxLabelLength)
	got := AlternativeName(long)
	if len(EscapeLabel(got)) > protocol.MaxLabelLength {
		t.Errorf("alternative of a max-length name is %d bytes escaped", len(EscapeLabel(got)))
	}
	if !strings.HasSuffix(got, " #2") {
		t.Errorf("expected counter suffix, got %q", got)
	}

	hostGot := AlternativeHostName(long)
	if len(hostGot) > protocol.MaxLabelLength {
		t.Errorf("alternative host name is %d bytes", len(hostGot))
	}
	if !strings.HasSuffix(hostGot, "-2") {
		t.Errorf("expected -2 suffix, got %q", hostGot)
	}
}
