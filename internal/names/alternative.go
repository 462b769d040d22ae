package names

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/lanbeacon/mdnsd/internal/protocol"
)

var (
	serviceCounter = regexp.MustCompile(`^(.*) #(\d+)$`)
	hostCounter    = regexp.MustCompile(`^(.*)-(\d+)$`)
)

// AlternativeName generates the next candidate service instance name to
// try after a probe collision: the first retry appends " #2", subsequent
// retries increment the counter ("name #2" -> "name #3"), trimming the
// base if the result would exceed the 63-byte label ceiling, the same
// scheme avahi's avahi_alternative_service_name uses.
func AlternativeName(name string) string {
	base, n := name, 2
	if m := serviceCounter.FindStringSubmatch(name); m != nil {
		base = m[1]
		prev, _ := strconv.Atoi(m[2])
		n = prev + 1
	}
	return clampLabel(base, fmt.Sprintf(" #%d", n))
}

// AlternativeHostName is the host-name flavor of AlternativeName: host
// labels cannot contain spaces, so the counter is appended with a hyphen
// ("host" -> "host-2" -> "host-3"), matching avahi_alternative_host_name.
func AlternativeHostName(label string) string {
	base, n := label, 2
	if m := hostCounter.FindStringSubmatch(label); m != nil {
		base = m[1]
		prev, _ := strconv.Atoi(m[2])
		n = prev + 1
	}
	return clampLabel(base, fmt.Sprintf("-%d", n))
}

// clampLabel appends suffix to base, trimming base bytes as needed so the
// escaped result still fits a single DNS label.
func clampLabel(base, suffix string) string {
	for len(EscapeLabel(base+suffix)) > protocol.MaxLabelLength && base != "" {
		base = base[:len(base)-1]
	}
	return base + suffix
}
