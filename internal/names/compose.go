package names

import "fmt"

// ComposeServiceName builds the full owner name of a DNS-SD service
// instance: "<escaped instance>.<service type>.<domain>", per RFC 6763
// §4.1.
func ComposeServiceName(instance, serviceType, domain string) string {
	return fmt.Sprintf("%s.%s.%s", EscapeLabel(instance), serviceType, domain)
}

// ComposeServiceTypeName builds the enumeration name for a service type,
// e.g. "_http._tcp.local".
func ComposeServiceTypeName(serviceType, domain string) string {
	return fmt.Sprintf("%s.%s", serviceType, domain)
}

// MetaQueryName is the well-known name browsed to enumerate all service
// types advertised in a domain, per RFC 6763 §9.
func MetaQueryName(domain string) string {
	return fmt.Sprintf("_services._dns-sd._udp.%s", domain)
}

// DomainEnumeration selects which of RFC 6763 §11's four PTR enumerations a
// domain browser subscribes to.
type DomainEnumeration int

const (
	// DomainBrowse enumerates domains recommended for browsing
	// ("b._dns-sd._udp.<domain>").
	DomainBrowse DomainEnumeration = iota
	// DomainBrowseDefault enumerates the single recommended default browse
	// domain ("db._dns-sd._udp.<domain>").
	DomainBrowseDefault
	// DomainRegister enumerates domains recommended for registration
	// ("r._dns-sd._udp.<domain>").
	DomainRegister
	// DomainRegisterDefault enumerates the single recommended default
	// registration domain ("dr._dns-sd._udp.<domain>").
	DomainRegisterDefault
	// DomainLegacyBrowse is the legacy browse enumeration some older
	// implementations publish ("lb._dns-sd._udp.<domain>").
	DomainLegacyBrowse
)

// MetaDomainQueryName builds the RFC 6763 §11 enumeration name for kind
// within domain, the name a domain browser subscribes to.
func MetaDomainQueryName(kind DomainEnumeration, domain string) string {
	var prefix string
	switch kind {
	case DomainBrowseDefault:
		prefix = "db"
	case DomainRegister:
		prefix = "r"
	case DomainRegisterDefault:
		prefix = "dr"
	case DomainLegacyBrowse:
		prefix = "lb"
	default:
		prefix = "b"
	}
	return fmt.Sprintf("%s._dns-sd._udp.%s", prefix, domain)
}
