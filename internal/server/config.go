package server

import (
	"github.com/lanbeacon/mdnsd/internal/iface"
	"github.com/lanbeacon/mdnsd/internal/log"
)

// Config carries every engine knob. The WithXxx options of package
// responder (the public functional-options facade) set most fields, some
// options setting several at once; Interfaces has no option.
type Config struct {
	HostName   string
	DomainName string

	UseIPv4 bool
	UseIPv6 bool

	// CheckResponseTTL rejects incoming responses whose IP TTL is not 255,
	// RFC 6762 §11's defense against off-link spoofed packets.
	CheckResponseTTL bool

	// UseIfRunning additionally requires IFF_RUNNING (carrier present), not
	// just IFF_UP, before treating an interface as relevant.
	UseIfRunning bool

	// EnableReflector relays packets between interfaces, turning the
	// responder into an mDNS repeater across routed network segments,
	// avahi's reflector mode.
	EnableReflector bool

	// ReflectIPv additionally relays between address families (an IPv4
	// packet reflected onto IPv6 links and vice versa), which only makes
	// sense once EnableReflector is set.
	ReflectIPv bool

	PublishAddresses   bool
	PublishHINFO       bool
	PublishWorkstation bool
	PublishDomain      bool

	CacheEntriesMax int
	AnnounceNum     int
	ProbeNum        int

	RateLimitThreshold  int
	RateLimitCooldownMS int
	RateLimitMaxEntries int

	// Interfaces pins the exact links the server runs on instead of
	// enumerating the host's, the analogue of avahi-daemon.conf's
	// allow-interfaces. Interface-change events are ignored while set.
	Interfaces []*iface.Interface

	Logger log.Logger
}

// DefaultConfig returns the out-of-the-box behavior: both address
// families, address/HINFO publication on, reflector off, RFC 6762 §11
// TTL checking on.
func DefaultConfig(hostName string) Config {
	return Config{
		HostName:            hostName,
		DomainName:          "local",
		UseIPv4:             true,
		UseIPv6:             true,
		CheckResponseTTL:    true,
		UseIfRunning:        true,
		PublishAddresses:    true,
		PublishHINFO:        true,
		PublishDomain:       true,
		CacheEntriesMax:     4096,
		AnnounceNum:         2,
		ProbeNum:            3,
		RateLimitThreshold:  100,
		RateLimitCooldownMS: 60_000,
		RateLimitMaxEntries: 10_000,
		Logger:              log.Nop{},
	}
}

func (c Config) logger() log.Logger {
	if c.Logger == nil {
		return log.Nop{}
	}
	return c.Logger
}
