package browse

import (
	"net/netip"
	"sync"
	"time"

	"github.com/lanbeacon/mdnsd/internal/iface"
	"github.com/lanbeacon/mdnsd/internal/names"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// AddressEvent reports one address found (or withdrawn) by a
// HostNameResolver.
type AddressEvent struct {
	Kind EventKind
	Addr netip.Addr
}

// HostNameResolver is a thin wrapper around an A and an AAAA RecordBrowser
// anchored to one host name.
type HostNameResolver struct {
	a4 *RecordBrowser
	a6 *RecordBrowser
}

// NewHostNameResolver starts resolving hostName to its addresses.
func NewHostNameResolver(eng Engine, hostName string, fam int, cb func(AddressEvent)) *HostNameResolver {
	deliver := func(ev Event) {
		if ev.Kind == EventCacheExhausted {
			cb(AddressEvent{Kind: EventCacheExhausted})
			return
		}
		var addr netip.Addr
		switch d := ev.Entry.Record.Data.(type) {
		case wire.ARecord:
			addr = d.Addr
		case wire.AAAARecord:
			addr = d.Addr
		default:
			return
		}
		cb(AddressEvent{Kind: ev.Kind, Addr: addr})
	}
	r := &HostNameResolver{}
	r.a4 = NewRecordBrowser(eng, records.NewKey(hostName, protocol.ClassIN, protocol.RecordTypeA), fam, deliver)
	r.a6 = NewRecordBrowser(eng, records.NewKey(hostName, protocol.ClassIN, protocol.RecordTypeAAAA), fam, deliver)
	return r
}

// Close cancels both address browsers.
func (r *HostNameResolver) Close() {
	r.a4.Close()
	r.a6.Close()
}

// HostNameEvent reports one host name found (or withdrawn) for an address
// by an AddressResolver.
type HostNameEvent struct {
	Kind     EventKind
	HostName string
}

// AddressResolver is a thin wrapper around a reverse-PTR RecordBrowser
// anchored to one address.
type AddressResolver struct {
	rb *RecordBrowser
}

// NewAddressResolver starts resolving addr to its host name(s).
func NewAddressResolver(eng Engine, addr netip.Addr, fam int, cb func(HostNameEvent)) *AddressResolver {
	key := records.NewKey(iface.ReverseName(addr), protocol.ClassIN, protocol.RecordTypePTR)
	rb := NewRecordBrowser(eng, key, fam, func(ev Event) {
		if ev.Kind == EventCacheExhausted {
			cb(HostNameEvent{Kind: EventCacheExhausted})
			return
		}
		ptr, ok := ev.Entry.Record.Data.(wire.PTRRecord)
		if !ok {
			return
		}
		cb(HostNameEvent{Kind: ev.Kind, HostName: ptr.Target.Presentation()})
	})
	return &AddressResolver{rb: rb}
}

// Close cancels the browser.
func (r *AddressResolver) Close() { r.rb.Close() }

// ServiceResolverKind distinguishes a completed resolution from a timed-out
// one.
type ServiceResolverKind int

const (
	ServiceFound ServiceResolverKind = iota
	ServiceFailure
)

// ServiceResolverEvent is delivered once a service resolver either
// completes (SRV + TXT + at least one address all present) or times out.
type ServiceResolverEvent struct {
	Kind ServiceResolverKind

	Instance    string
	ServiceType string
	Domain      string

	Host     string
	Priority uint16
	Weight   uint16
	Port     uint16
	TXT      wire.TXTList
	Addrs    []netip.Addr
}

// ServiceResolver combines a SRV browser, a TXT browser, and a
// HostNameResolver anchored to the SRV target, emitting FOUND only once
// all three are present and FAILURE on a 1-second overall timeout that
// resets on every matching arrival.
type ServiceResolver struct {
	srvB  *RecordBrowser
	txtB  *RecordBrowser
	hostR *HostNameResolver

	mu       sync.Mutex
	srv      *wire.SRVRecord
	txt      wire.TXTList
	haveTXT  bool
	addrs    map[netip.Addr]bool
	cb       func(ServiceResolverEvent)
	clock    clockQueue
	timeout  timerHandle
	done     bool
	instance string
	svcType  string
	domain   string
}

// clockQueue/timerHandle narrow internal/clock.Queue/Event to the two
// operations ServiceResolver needs, so it only depends on Engine.
type clockQueue interface {
	After(d time.Duration, fn func(time.Time)) timerHandle
}
type timerHandle interface{ Cancel(); Reschedule(time.Time) }

// engineClock adapts Engine.Clock() (a concrete *clock.Queue) to clockQueue.
type engineClock struct{ eng Engine }

func (c engineClock) After(d time.Duration, fn func(time.Time)) timerHandle {
	return c.eng.Clock().After(d, fn)
}

// NewServiceResolver starts resolving one service instance's SRV, TXT, and
// address records.
func NewServiceResolver(eng Engine, instance, serviceType, domain string, fam int, cb func(ServiceResolverEvent)) *ServiceResolver {
	instanceName := names.ComposeServiceName(instance, serviceType, domain)
	r := &ServiceResolver{
		cb:       cb,
		clock:    engineClock{eng},
		addrs:    make(map[netip.Addr]bool),
		instance: instance,
		svcType:  serviceType,
		domain:   domain,
	}

	r.timeout = r.clock.After(protocol.ServiceResolverTimeout, func(time.Time) { r.fail() })

	r.srvB = NewRecordBrowser(eng, records.NewKey(instanceName, protocol.ClassIN, protocol.RecordTypeSRV), fam, func(ev Event) {
		if ev.Kind != EventNew {
			return
		}
		srv, ok := ev.Entry.Record.Data.(wire.SRVRecord)
		if !ok {
			return
		}
		r.mu.Lock()
		r.srv = &srv
		r.mu.Unlock()
		r.armHostResolver(eng, fam)
		r.progress()
	})

	r.txtB = NewRecordBrowser(eng, records.NewKey(instanceName, protocol.ClassIN, protocol.RecordTypeTXT), fam, func(ev Event) {
		if ev.Kind != EventNew {
			return
		}
		txt, ok := ev.Entry.Record.Data.(wire.TXTRecord)
		if !ok {
			return
		}
		r.mu.Lock()
		r.txt = txt.Strings
		r.haveTXT = true
		r.mu.Unlock()
		r.progress()
	})

	return r
}

// armHostResolver starts the address resolver for the SRV target, called
// once the SRV record arrives. Only the first SRV record arms it.
func (r *ServiceResolver) armHostResolver(eng Engine, fam int) {
	r.mu.Lock()
	if r.hostR != nil {
		r.mu.Unlock()
		return
	}
	target := r.srv.Target.Presentation()
	r.mu.Unlock()

	hostR := NewHostNameResolver(eng, target, fam, func(ev AddressEvent) {
		if ev.Kind != EventNew {
			return
		}
		r.mu.Lock()
		r.addrs[ev.Addr] = true
		r.mu.Unlock()
		r.progress()
	})

	r.mu.Lock()
	r.hostR = hostR
	r.mu.Unlock()
}

// progress resets the timeout (it runs from creation or from the last
// matching arrival) and, once SRV+TXT+an address are all present,
// delivers FOUND.
func (r *ServiceResolver) progress() {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	if r.timeout != nil {
		r.timeout.Reschedule(time.Now().Add(protocol.ServiceResolverTimeout))
	}
	complete := r.srv != nil && r.haveTXT && len(r.addrs) > 0
	if !complete {
		r.mu.Unlock()
		return
	}
	ev := r.snapshotLocked(ServiceFound)
	r.done = true
	r.mu.Unlock()

	r.cb(ev)
}

func (r *ServiceResolver) fail() {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	ev := r.snapshotLocked(ServiceFailure)
	r.done = true
	r.mu.Unlock()

	r.cb(ev)
}

// snapshotLocked builds the event to deliver. Called with r.mu held.
func (r *ServiceResolver) snapshotLocked(kind ServiceResolverKind) ServiceResolverEvent {
	ev := ServiceResolverEvent{
		Kind:        kind,
		Instance:    r.instance,
		ServiceType: r.svcType,
		Domain:      r.domain,
		TXT:         r.txt,
	}
	if r.srv != nil {
		ev.Host = r.srv.Target.Presentation()
		ev.Priority = r.srv.Priority
		ev.Weight = r.srv.Weight
		ev.Port = r.srv.Port
	}
	for a := range r.addrs {
		ev.Addrs = append(ev.Addrs, a)
	}
	return ev
}

// Close cancels every browser this resolver holds and its timeout.
func (r *ServiceResolver) Close() {
	r.mu.Lock()
	r.done = true
	hostR := r.hostR
	timeout := r.timeout
	r.mu.Unlock()

	r.srvB.Close()
	r.txtB.Close()
	if hostR != nil {
		hostR.Close()
	}
	if timeout != nil {
		timeout.Cancel()
	}
}
