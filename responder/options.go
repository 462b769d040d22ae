package responder

import (
	"time"

	"github.com/lanbeacon/mdnsd/internal/log"
	"github.com/lanbeacon/mdnsd/internal/server"
)

// Option is a functional option for configuring a Server, applied to the
// engine configuration before it starts.
type Option func(*server.Config) error

// WithHostName sets the host's unqualified hostname (the "foo" in
// "foo.local"); if unset, New derives one from os.Hostname.
func WithHostName(name string) Option {
	return func(cfg *server.Config) error {
		cfg.HostName = name
		return nil
	}
}

// WithDomainName overrides the registration domain, "local" by default per
// RFC 6762.
func WithDomainName(domain string) Option {
	return func(cfg *server.Config) error {
		cfg.DomainName = domain
		return nil
	}
}

// WithIPv4 enables or disables IPv4 operation. Both families are on by
// default; at least one must remain enabled.
func WithIPv4(enabled bool) Option {
	return func(cfg *server.Config) error { cfg.UseIPv4 = enabled; return nil }
}

// WithIPv6 enables or disables IPv6 operation.
func WithIPv6(enabled bool) Option {
	return func(cfg *server.Config) error { cfg.UseIPv6 = enabled; return nil }
}

// WithCheckResponseTTL toggles RFC 6762 §11's rejection of responses whose
// IP TTL is not 255, a defense against off-link spoofed packets. On by
// default.
func WithCheckResponseTTL(enabled bool) Option {
	return func(cfg *server.Config) error { cfg.CheckResponseTTL = enabled; return nil }
}

// WithRequireCarrier additionally requires IFF_RUNNING (carrier present),
// not just IFF_UP, before treating an interface as relevant.
func WithRequireCarrier(enabled bool) Option {
	return func(cfg *server.Config) error { cfg.UseIfRunning = enabled; return nil }
}

// WithReflector turns the responder into an mDNS repeater, relaying
// packets between interfaces. crossFamily additionally relays between
// IPv4 and IPv6 links.
func WithReflector(enabled, crossFamily bool) Option {
	return func(cfg *server.Config) error {
		cfg.EnableReflector = enabled
		cfg.ReflectIPv = crossFamily
		return nil
	}
}

// WithImplicitPublication toggles the implicit per-interface records
// published automatically at startup: host addresses, HINFO, the
// _workstation._tcp service, and the domain-browsing PTRs (RFC 6763 §11).
func WithImplicitPublication(addresses, hinfo, workstation, domain bool) Option {
	return func(cfg *server.Config) error {
		cfg.PublishAddresses = addresses
		cfg.PublishHINFO = hinfo
		cfg.PublishWorkstation = workstation
		cfg.PublishDomain = domain
		return nil
	}
}

// WithCacheLimit caps the number of entries any one interface's cache may
// hold, evicting the oldest on overflow.
func WithCacheLimit(maxEntries int) Option {
	return func(cfg *server.Config) error { cfg.CacheEntriesMax = maxEntries; return nil }
}

// WithAnnounceCount sets how many times each record is announced
// unsolicited on commit, per RFC 6762 §8.3.
func WithAnnounceCount(n int) Option {
	return func(cfg *server.Config) error { cfg.AnnounceNum = n; return nil }
}

// WithProbeCount sets how many probe queries are sent before announcing a
// unique record, per RFC 6762 §8.1.
func WithProbeCount(n int) Option {
	return func(cfg *server.Config) error { cfg.ProbeNum = n; return nil }
}

// WithRateLimit configures the per-source query rate limiter (RFC 6762
// §6's storm defense): threshold queries per second before cooldown kicks
// in, and the cooldown duration.
func WithRateLimit(threshold int, cooldown time.Duration) Option {
	return func(cfg *server.Config) error {
		cfg.RateLimitThreshold = threshold
		cfg.RateLimitCooldownMS = int(cooldown / time.Millisecond)
		return nil
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l log.Logger) Option {
	return func(cfg *server.Config) error { cfg.Logger = l; return nil }
}
