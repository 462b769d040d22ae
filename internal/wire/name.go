// Package wire implements the DNS/mDNS message codec: header, question and
// resource-record encoding and decoding, including name compression on both
// the encode and decode paths.
//
package wire

import (
	"strings"

	"github.com/lanbeacon/mdnsd/internal/errors"
	"github.com/lanbeacon/mdnsd/internal/names"
	"github.com/lanbeacon/mdnsd/internal/protocol"
)

// Name is a DNS name as an ordered sequence of raw label bytes, exactly as
// they would appear on the wire (unescaped). Use NameFromPresentation /
// Presentation to cross to and from the dotted, backslash-escaped form used
// at the API boundary.
type Name []string

// NameFromPresentation parses a presentation-format name (escaped, dotted)
// into wire labels.
func NameFromPresentation(s string) (Name, error) {
	labels := names.SplitLabels(s)
	out := make(Name, 0, len(labels))
	for _, l := range labels {
		u, err := names.UnescapeLabel(l)
		if err != nil {
			return nil, errors.InvalidDomainName(s)
		}
		if len(u) > protocol.MaxLabelLength {
			return nil, errors.InvalidDomainName(s)
		}
		out = append(out, u)
	}
	return out, nil
}

// Presentation renders n back to escaped, dotted form.
func (n Name) Presentation() string {
	labels := make([]string, len(n))
	for i, l := range n {
		labels[i] = names.EscapeLabel(l)
	}
	return names.JoinLabels(labels)
}

// EqualFold compares two wire names the way DNS compares names: label count
// and content equal under ASCII case-folding.
func (n Name) EqualFold(o Name) bool {
	if len(n) != len(o) {
		return false
	}
	for i := range n {
		if !strings.EqualFold(n[i], o[i]) {
			return false
		}
	}
	return true
}

// IsSubtreeOf reports whether n is equal to or a strict descendant of base,
// i.e. base's labels are n's trailing labels.
func (n Name) IsSubtreeOf(base Name) bool {
	if len(n) < len(base) {
		return false
	}
	return n[len(n)-len(base):].EqualFold(base)
}

func (n Name) key() string {
	var b strings.Builder
	for _, l := range n {
		b.WriteString(strings.ToLower(l))
		b.WriteByte(0)
	}
	return b.String()
}
