// Package protocol defines mDNS/DNS-SD wire and timing constants per
// RFC 6762 (Multicast DNS) and RFC 6763 (DNS-Based Service Discovery).
//
// PRIMARY TECHNICAL AUTHORITY: RFC 6762, RFC 6763, RFC 1035.
package protocol

import (
	"net"
	"time"
)

// Network constants per RFC 6762 §5.
const (
	// Port is the mDNS port number (5353) for both IPv4 and IPv6.
	Port = 5353

	// MulticastAddrIPv4 is the mDNS IPv4 multicast address (224.0.0.251).
	MulticastAddrIPv4 = "224.0.0.251"

	// MulticastAddrIPv6 is the mDNS IPv6 multicast address (ff02::fb), link-local scope.
	MulticastAddrIPv6 = "ff02::fb"
)

// MulticastGroupIPv4 returns the mDNS IPv4 multicast group address.
func MulticastGroupIPv4() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(MulticastAddrIPv4), Port: Port}
}

// MulticastGroupIPv6 returns the mDNS IPv6 multicast group address, scoped to
// the given interface (required for a link-local multicast destination).
func MulticastGroupIPv6(zone string) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(MulticastAddrIPv6), Port: Port, Zone: zone}
}

// RecordType represents a DNS record type per RFC 1035 §3.2.2.
type RecordType uint16

const (
	RecordTypeA     RecordType = 1
	RecordTypeNS    RecordType = 2
	RecordTypeCNAME RecordType = 5
	RecordTypePTR   RecordType = 12
	RecordTypeHINFO RecordType = 13
	RecordTypeTXT   RecordType = 16
	RecordTypeAAAA  RecordType = 28
	RecordTypeSRV   RecordType = 33
	RecordTypeNSEC  RecordType = 47
	RecordTypeANY   RecordType = 255
)

func (rt RecordType) String() string {
	switch rt {
	case RecordTypeA:
		return "A"
	case RecordTypeNS:
		return "NS"
	case RecordTypeCNAME:
		return "CNAME"
	case RecordTypePTR:
		return "PTR"
	case RecordTypeHINFO:
		return "HINFO"
	case RecordTypeTXT:
		return "TXT"
	case RecordTypeAAAA:
		return "AAAA"
	case RecordTypeSRV:
		return "SRV"
	case RecordTypeNSEC:
		return "NSEC"
	case RecordTypeANY:
		return "ANY"
	default:
		return "UNKNOWN"
	}
}

// IsSupported reports whether rt is a type this responder can originate or
// cache (as opposed to merely passing through opaque rdata for).
func (rt RecordType) IsSupported() bool {
	switch rt {
	case RecordTypeA, RecordTypeNS, RecordTypeCNAME, RecordTypePTR, RecordTypeHINFO,
		RecordTypeTXT, RecordTypeAAAA, RecordTypeSRV, RecordTypeNSEC, RecordTypeANY:
		return true
	default:
		return false
	}
}

// DNSClass represents a DNS class per RFC 1035 §3.2.4.
type DNSClass uint16

const (
	ClassIN DNSClass = 1

	// ClassCacheFlush is the top bit of the class field in an mDNS resource
	// record, per RFC 6762 §10.2: it marks the record set for this name/type
	// as authoritative, telling receivers to flush any older records they
	// cached for the same name/type/class that did not appear in this answer.
	ClassCacheFlush DNSClass = 0x8000

	// ClassUnicastResponse is the top bit of the class field in an mDNS
	// question, per RFC 6762 §5.4 (the "QU" bit): it asks the responder to
	// reply by unicast rather than multicast.
	ClassUnicastResponse DNSClass = 0x8000

	// ClassMask strips the top bit to recover the plain DNS class.
	ClassMask DNSClass = 0x7fff
)

// DNS header flags per RFC 1035 §4.1.1 and RFC 6762 §18.
const (
	FlagQR uint16 = 1 << 15 // Query/Response
	FlagAA uint16 = 1 << 10 // Authoritative Answer
	FlagTC uint16 = 1 << 9  // Truncated
	FlagRD uint16 = 1 << 8  // Recursion Desired
	FlagRA uint16 = 1 << 7  // Recursion Available
)

const (
	OpcodeQuery uint16 = 0
)

const (
	RCodeNoError uint16 = 0
)

// Name constraints per RFC 1035 §3.1 and RFC 6762 §16.
const (
	MaxLabelLength         = 63
	MaxNameLength          = 255
	MaxCompressionPointers = 256
)

// CompressionMask identifies a compression pointer: the first two bits of
// the length octet are both set (RFC 1035 §4.1.4).
const CompressionMask byte = 0xC0

// MaxMessageSize is the absolute ceiling on an mDNS message size, matching
// the largest reassembled jumbogram this responder will construct or parse,
// per RFC 6762 §17.
const MaxMessageSize = 9000

// TTL values per RFC 6762 §10.
const (
	// TTLHostName is used for records whose owner name is a host name, or
	// whose rdata embeds one (A, AAAA, HINFO, SRV, reverse PTR).
	TTLHostName uint32 = 120

	// TTLOther is used for all other records (service PTR, TXT, the
	// _services._dns-sd._udp meta-PTR).
	TTLOther uint32 = 4500

	// TTLGoodbye signals immediate removal: a record announced with TTL=0
	// asks receivers to purge it from their caches (RFC 6762 §10.1).
	TTLGoodbye uint32 = 0

	// TTLWire is the IP TTL / hop-limit every mDNS packet is sent with and,
	// when CheckResponseTTL is enabled, the only value an inbound packet is
	// accepted with (RFC 6762 §11's defense against off-link packets).
	TTLWire = 255

	// TTLLegacyUnicastMax caps the record TTL handed back to a legacy
	// unicast querier, short enough that a one-shot resolver with no cache
	// maintenance of its own won't hold a stale answer long (RFC 6762
	// §6.7).
	TTLLegacyUnicastMax uint32 = 10
)

// Probe timing per RFC 6762 §8.1.
const (
	ProbeInterval    = 250 * time.Millisecond
	ProbeCount       = 3
	ProbeStartJitter = 250 * time.Millisecond
)

// Announcement timing per RFC 6762 §8.3.
const (
	AnnounceInitialCount = 2
	AnnounceInitialDelay = 1 * time.Second
	AnnounceMaxInterval  = 60 * time.Second
)

// Query scheduler timing per RFC 6762 §7.2.
const (
	QueryDefer          = 20 * time.Millisecond
	QueryDeferJitterMax = 120 * time.Millisecond
	QueryHistoryWindow  = 100 * time.Millisecond
)

// Response scheduler timing per RFC 6762 §6.
const (
	ResponseDeferBase        = 20 * time.Millisecond
	ResponseDeferJitterMax   = 100 * time.Millisecond
	ResponseHistoryWindow    = 500 * time.Millisecond
	ResponseSuppressedWindow = 700 * time.Millisecond
)

// Cache maintenance query offsets, as a fraction of the record's original
// TTL, per RFC 6762 §5.2: refresh queries are issued at 80%, 85%, 90% and
// 95% of the TTL, each with up to ±2% random jitter.
var CacheRefreshFractions = [4]float64{0.80, 0.85, 0.90, 0.95}

const CacheRefreshJitterFraction = 0.02

// Subscription re-query backoff: a browser re-posts its query at 1s, 2s,
// 4s, ... doubling each time, capped at 60 minutes, until the caller
// cancels; finding a result does not stop the re-posts.
const (
	BrowseQueryInitialInterval = 1 * time.Second
	BrowseQueryMaxInterval     = 60 * time.Minute
)

// ServiceResolverTimeout is the overall window a service resolver waits,
// from creation or from its last matching cache event, before giving up
// with FAILURE.
const ServiceResolverTimeout = 1 * time.Second
