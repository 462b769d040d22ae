package names

import (
	"strings"

	"github.com/lanbeacon/mdnsd/internal/errors"
	"github.com/lanbeacon/mdnsd/internal/protocol"
)

var errBadEscape = errors.InvalidDomainName("truncated or malformed escape sequence")

// WireLength returns the length the name would occupy on the wire
// (uncompressed): one length byte plus content per label, plus the root
// terminator.
func WireLength(labels []string) int {
	n := 1
	for _, l := range labels {
		unescaped, err := UnescapeLabel(l)
		if err != nil {
			return protocol.MaxNameLength + 1
		}
		n += 1 + len(unescaped)
	}
	return n
}

// IsValidFQDN validates a fully qualified domain name per RFC 1035 §3.1:
// each label 1-63 bytes after unescaping, total wire length <=255, and only
// label content a DNS message can carry.
func IsValidFQDN(name string) bool {
	if name == "" {
		return false
	}
	labels := SplitLabels(name)
	if len(labels) == 0 {
		return false
	}
	if WireLength(labels) > protocol.MaxNameLength {
		return false
	}
	for _, l := range labels {
		if !isValidLabel(l) {
			return false
		}
	}
	return true
}

func isValidLabel(label string) bool {
	unescaped, err := UnescapeLabel(label)
	if err != nil {
		return false
	}
	if len(unescaped) == 0 || len(unescaped) > protocol.MaxLabelLength {
		return false
	}
	return true
}

// IsValidHostName validates a host name of the form "<label>.local" (or any
// single-label host name joined to a base domain by the caller): the label
// portion must be a strict DNS hostname label — letters, digits, hyphen,
// not starting or ending with a hyphen.
func IsValidHostName(label string) bool {
	if label == "" || len(label) > protocol.MaxLabelLength {
		return false
	}
	if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return false
	}
	for _, ch := range label {
		if !isHostNameChar(ch) {
			return false
		}
	}
	return true
}

func isHostNameChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') || ch == '-'
}

// IsValidServiceInstanceName validates the instance-name portion of a DNS-SD
// service name (RFC 6763 §4.1.1). Unlike host names, instance names permit
// arbitrary printable UTF-8, including spaces, and are limited only by the
// 63-byte wire label ceiling once escaped.
func IsValidServiceInstanceName(name string) bool {
	if name == "" {
		return false
	}
	escaped := EscapeLabel(name)
	return len(escaped) <= protocol.MaxLabelLength
}

// IsValidServiceType validates a service type of the form "_service._proto"
// per RFC 6763 §7: each of the two labels starts with an underscore,
// followed by 1-15 further characters drawn from letters, digits and
// hyphen, and the protocol label is literally "_tcp" or "_udp".
func IsValidServiceType(serviceType string) bool {
	labels := SplitLabels(serviceType)
	if len(labels) != 2 {
		return false
	}
	if !isValidServiceLabel(labels[0]) {
		return false
	}
	proto := strings.ToLower(labels[1])
	return proto == "_tcp" || proto == "_udp"
}

// IsValidSubtype validates a single service subtype label such as
// "_printer" (RFC 6763 §7.1), with the same rules as a service label. A
// full subtype name such as "_printer._sub._http._tcp" is not accepted.
func IsValidSubtype(label string) bool {
	return isValidServiceLabel(label)
}

func isValidServiceLabel(label string) bool {
	if !strings.HasPrefix(label, "_") {
		return false
	}
	body := label[1:]
	if len(body) < 1 || len(body) > 15 {
		return false
	}
	for _, ch := range body {
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') || ch == '-') {
			return false
		}
	}
	return true
}
