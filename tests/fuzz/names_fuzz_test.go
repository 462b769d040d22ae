package fuzz

import (
	"testing"

	"github.com/lanbeacon/mdnsd/internal/names"
)

// FuzzUnescapeLabel checks the label unescaper never panics and that
// escaping its output round-trips.
func FuzzUnescapeLabel(f *testing.F) {
	f.Add(`foo\.bar`)
	f.Add(`back\\slash`)
	f.Add(`byte\009tab`)
	f.Add(`trailing\`)
	f.Add(`huge\300`)
	f.Add("plain")

	f.Fuzz(func(t *testing.T, label string) {
		raw, err := names.UnescapeLabel(label)
		if err != nil {
			return
		}
		back, err := names.UnescapeLabel(names.EscapeLabel(raw))
		if err != nil {
			t.Fatalf("escape of unescaped %q does not re-unescape: %v", label, err)
		}
		if back != raw {
			t.Fatalf("escape/unescape round trip changed %q to %q", raw, back)
		}
	})
}

// FuzzNormalize checks normalization never panics and is idempotent
// (testable property #2) for any input the splitter accepts.
func FuzzNormalize(f *testing.F) {
	f.Add("Host.Local.")
	f.Add(`Mixed\.Case.local`)
	f.Add(`digit\065escape.local`)
	f.Add("")

	f.Fuzz(func(t *testing.T, name string) {
		once := names.Normalize(name)
		twice := names.Normalize(once)
		if once != twice {
			t.Fatalf("Normalize not idempotent: %q -> %q -> %q", name, once, twice)
		}
	})
}
