package querier

import (
	"net/netip"

	"github.com/lanbeacon/mdnsd/internal/browse"
	"github.com/lanbeacon/mdnsd/internal/names"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
)

// EventKind identifies what a browser or resolver callback is reporting.
type EventKind int

const (
	// EventNew reports a result the caller has not previously seen.
	EventNew EventKind = iota
	// EventRemove reports a previously-delivered result's withdrawal.
	EventRemove
	// EventCacheExhausted reports that every result known at subscription
	// time has been replayed; more
	// NEW/REMOVE events may still follow.
	EventCacheExhausted
)

func fromInternal(k browse.EventKind) EventKind { return EventKind(k) }

// RecordBrowser subscribes to every advertised record matching one
// (name, class, type) key.
type RecordBrowser struct{ rb *browse.RecordBrowser }

// RecordEvent reports one matching record found or withdrawn.
type RecordEvent struct {
	Kind      EventKind
	Name      string
	Type      protocol.RecordType
	LinkIndex int
}

// NewRecordBrowser starts browsing name/class/type on fam, delivering
// cb for each match and once the initial cache replay is exhausted.
func (c *Client) NewRecordBrowser(name string, rtype protocol.RecordType, fam Family, cb func(RecordEvent)) *RecordBrowser {
	key := records.NewKey(name, protocol.ClassIN, rtype)
	rb := browse.NewRecordBrowser(c.eng, key, fam.toEngineFam(), func(ev browse.Event) {
		if ev.Kind == browse.EventCacheExhausted {
			cb(RecordEvent{Kind: EventCacheExhausted})
			return
		}
		cb(RecordEvent{Kind: fromInternal(ev.Kind), Name: name, Type: rtype, LinkIndex: ev.LinkIndex})
	})
	return &RecordBrowser{rb: rb}
}

// Close cancels the browser.
func (b *RecordBrowser) Close() { b.rb.Close() }

// DomainEvent reports one browse/registration domain found or withdrawn.
type DomainEvent struct {
	Kind   EventKind
	Domain string
}

// DomainEnumeration selects which of RFC 6763 §11's domain enumeration
// PTRs to browse.
type DomainEnumeration names.DomainEnumeration

const (
	DomainBrowse          = DomainEnumeration(names.DomainBrowse)
	DomainBrowseDefault   = DomainEnumeration(names.DomainBrowseDefault)
	DomainRegister        = DomainEnumeration(names.DomainRegister)
	DomainRegisterDefault = DomainEnumeration(names.DomainRegisterDefault)
	DomainLegacyBrowse    = DomainEnumeration(names.DomainLegacyBrowse)
)

// DomainBrowser browses one domain enumeration kind within domain.
type DomainBrowser struct{ b *browse.DomainBrowser }

// NewDomainBrowser starts browsing domain's enumeration of kind.
func (c *Client) NewDomainBrowser(kind DomainEnumeration, domain string, fam Family, cb func(DomainEvent)) *DomainBrowser {
	b := browse.NewDomainBrowser(c.eng, names.DomainEnumeration(kind), domain, fam.toEngineFam(), func(ev browse.DomainEvent) {
		cb(DomainEvent{Kind: fromInternal(ev.Kind), Domain: ev.Domain})
	})
	return &DomainBrowser{b: b}
}

// Close cancels the browser.
func (b *DomainBrowser) Close() { b.b.Close() }

// ServiceTypeEvent reports one service type found or withdrawn.
type ServiceTypeEvent struct {
	Kind        EventKind
	ServiceType string
	Domain      string
}

// ServiceTypeBrowser browses a domain's advertised service types
// (RFC 6763 §9).
type ServiceTypeBrowser struct{ b *browse.ServiceTypeBrowser }

// NewServiceTypeBrowser starts browsing domain for advertised service
// types.
func (c *Client) NewServiceTypeBrowser(domain string, fam Family, cb func(ServiceTypeEvent)) *ServiceTypeBrowser {
	b := browse.NewServiceTypeBrowser(c.eng, domain, fam.toEngineFam(), func(ev browse.ServiceTypeEvent) {
		cb(ServiceTypeEvent{Kind: fromInternal(ev.Kind), ServiceType: ev.ServiceType, Domain: ev.Domain})
	})
	return &ServiceTypeBrowser{b: b}
}

// Close cancels the browser.
func (b *ServiceTypeBrowser) Close() { b.b.Close() }

// ServiceEvent reports one service instance found or withdrawn.
type ServiceEvent struct {
	Kind        EventKind
	Instance    string
	ServiceType string
	Domain      string
}

// ServiceBrowser browses "<type>.<domain>" (RFC 6763 §4) for advertised
// service instances.
type ServiceBrowser struct{ b *browse.ServiceBrowser }

// NewServiceBrowser starts browsing serviceType within domain.
func (c *Client) NewServiceBrowser(serviceType, domain string, fam Family, cb func(ServiceEvent)) *ServiceBrowser {
	b := browse.NewServiceBrowser(c.eng, serviceType, domain, fam.toEngineFam(), func(ev browse.ServiceEvent) {
		cb(ServiceEvent{Kind: fromInternal(ev.Kind), Instance: ev.Instance, ServiceType: ev.ServiceType, Domain: ev.Domain})
	})
	return &ServiceBrowser{b: b}
}

// Close cancels the browser.
func (b *ServiceBrowser) Close() { b.b.Close() }

// AddressEvent reports one address found or withdrawn for a host name.
type AddressEvent struct {
	Kind EventKind
	Addr netip.Addr
}

// HostNameResolver resolves one host name to its A/AAAA addresses.
type HostNameResolver struct{ r *browse.HostNameResolver }

// NewHostNameResolver starts resolving hostName to its addresses.
func (c *Client) NewHostNameResolver(hostName string, fam Family, cb func(AddressEvent)) *HostNameResolver {
	r := browse.NewHostNameResolver(c.eng, hostName, fam.toEngineFam(), func(ev browse.AddressEvent) {
		cb(AddressEvent{Kind: fromInternal(ev.Kind), Addr: ev.Addr})
	})
	return &HostNameResolver{r: r}
}

// Close cancels the resolver.
func (r *HostNameResolver) Close() { r.r.Close() }

// HostNameEvent reports one host name found or withdrawn for an address.
type HostNameEvent struct {
	Kind     EventKind
	HostName string
}

// AddressResolver resolves one address to its host name(s) via reverse
// DNS (in-addr.arpa/ip6.arpa).
type AddressResolver struct{ r *browse.AddressResolver }

// NewAddressResolver starts resolving addr to its host name(s).
func (c *Client) NewAddressResolver(addr netip.Addr, fam Family, cb func(HostNameEvent)) *AddressResolver {
	r := browse.NewAddressResolver(c.eng, addr, fam.toEngineFam(), func(ev browse.HostNameEvent) {
		cb(HostNameEvent{Kind: fromInternal(ev.Kind), HostName: ev.HostName})
	})
	return &AddressResolver{r: r}
}

// Close cancels the resolver.
func (r *AddressResolver) Close() { r.r.Close() }

// ServiceResolverKind distinguishes a completed resolution from a
// timed-out one.
type ServiceResolverKind int

const (
	ServiceFound   = ServiceResolverKind(browse.ServiceFound)
	ServiceFailure = ServiceResolverKind(browse.ServiceFailure)
)

// ServiceResolverEvent is delivered once a service resolver either
// completes (SRV + TXT + at least one address all present) or times out
// after one second with no progress.
type ServiceResolverEvent struct {
	Kind ServiceResolverKind

	Instance    string
	ServiceType string
	Domain      string

	Host     string
	Priority uint16
	Weight   uint16
	Port     uint16
	TXT      map[string]string
	Addrs    []netip.Addr
}

// ServiceResolver joins a service instance's SRV, TXT, and address
// records into one result.
type ServiceResolver struct{ r *browse.ServiceResolver }

// NewServiceResolver starts resolving one service instance.
func (c *Client) NewServiceResolver(instance, serviceType, domain string, fam Family, cb func(ServiceResolverEvent)) *ServiceResolver {
	r := browse.NewServiceResolver(c.eng, instance, serviceType, domain, fam.toEngineFam(), func(ev browse.ServiceResolverEvent) {
		cb(ServiceResolverEvent{
			Kind:        ServiceResolverKind(ev.Kind),
			Instance:    ev.Instance,
			ServiceType: ev.ServiceType,
			Domain:      ev.Domain,
			Host:        ev.Host,
			Priority:    ev.Priority,
			Weight:      ev.Weight,
			Port:        ev.Port,
			TXT:         ev.TXT.Map(),
			Addrs:       ev.Addrs,
		})
	})
	return &ServiceResolver{r: r}
}

// Close cancels the resolver and every browser it holds.
func (r *ServiceResolver) Close() { r.r.Close() }
