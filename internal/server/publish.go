package server

import (
	"strings"
	"time"

	"github.com/lanbeacon/mdnsd/internal/announce"
	"github.com/lanbeacon/mdnsd/internal/iface"
	"github.com/lanbeacon/mdnsd/internal/names"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/transport"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// WorkstationPort is the port the _workstation._tcp presence service
// advertises; nothing listens there, the record only announces the host's
// existence, following avahi-daemon's workstation publication.
const WorkstationPort = 9

// hostFQDN returns the host's fully qualified name in the configured
// domain ("myhost" -> "myhost.local"), leaving an already-qualified
// HostName override untouched.
func (s *Server) hostFQDN() string {
	s.mu.Lock()
	host, domain := s.cfg.HostName, s.cfg.DomainName
	s.mu.Unlock()
	if strings.Contains(host, ".") {
		return host
	}
	return host + "." + domain
}

// hostLabel returns the first label of the configured host name.
func (s *Server) hostLabel() string {
	s.mu.Lock()
	host := s.cfg.HostName
	s.mu.Unlock()
	if i := strings.IndexByte(host, '.'); i >= 0 {
		return host[:i]
	}
	return host
}

// publishImplicit builds and commits the group of records this responder
// always publishes for a relevant link on its own: the host's address
// record(s), their reverse PTR, and (if enabled) HINFO and the
// _workstation._tcp SRV/TXT, all probed as unique records; then, once
// committed, the shared records that are exempt from probing (the
// workstation service PTRs and the RFC 6763 §11 browse-domain PTRs). A
// previously published implicit group for the link is withdrawn with
// goodbyes first.
func (s *Server) publishImplicit(l *link) {
	fqdn := s.hostFQDN()
	name, err := wire.NameFromPresentation(fqdn)
	if err != nil {
		s.logger.Errorf("invalid host name %q: %v", fqdn, err)
		return
	}

	group := announce.NewGroup(s.clockQ, l.probeS, l.responseS,
		func(announce.GroupState) {},
		func(e *announce.Entry) { s.hostNameConflict(l, e) },
	)
	group.SetAnnounceCount(s.cfg.AnnounceNum)

	now := time.Now()
	if s.cfg.PublishAddresses {
		for _, prefix := range l.iface.Addrs {
			addr := prefix.Addr()
			if l.iface.Family == iface.FamilyIPv4 && !addr.Is4() {
				continue
			}
			if l.iface.Family == iface.FamilyIPv6 && (!addr.Is6() || addr.Is4In6()) {
				continue
			}
			_, rec := iface.HostRecord(fqdn, addr, now)
			group.Add(&announce.Entry{Name: name, Record: rec})

			ptrKey, ptrRec := iface.ReversePTRRecord(addr, fqdn, now)
			ptrName, err := wire.NameFromPresentation(ptrKey.Name)
			if err != nil {
				continue
			}
			group.Add(&announce.Entry{Name: ptrName, Record: ptrRec})
		}
	}
	if s.cfg.PublishHINFO {
		_, rec := iface.HINFORecord(fqdn, transport.KernelRelease(), now)
		group.Add(&announce.Entry{Name: name, Record: rec})
	}
	if s.cfg.PublishWorkstation {
		s.addWorkstation(group, fqdn, now)
	}

	l.mu.Lock()
	old := l.implicit
	l.implicit = group
	l.mu.Unlock()
	if old != nil {
		old.Goodbye()
	}

	if len(group.Entries()) > 0 {
		group.Commit()
	}

	// Shared records join the group only after Commit has snapshotted its
	// probe set, since RFC 6762 §8.1 exempts them from probing.
	if s.cfg.PublishWorkstation {
		s.addWorkstationPTRs(l, group, now)
	}
	if s.cfg.PublishDomain {
		s.addBrowseDomains(l, group, now)
	}
}

// addShared appends a shared (non-probed) record to group, marks it
// announcing, and posts an announcement for it on l.
func (s *Server) addShared(l *link, group *announce.Group, key records.Key, rec *records.Record, now time.Time) {
	name, err := wire.NameFromPresentation(key.Name)
	if err != nil {
		return
	}
	e := &announce.Entry{Name: name, Record: rec}
	group.Add(e)
	e.State = announce.StateAnnouncing
	l.responseS.Post(e.RR(), now)
}

// addWorkstation registers the unique half of the _workstation._tcp
// presence service — its SRV and TXT under the host's own name — the way
// avahi-daemon always advertises a workstation record for browsable
// hosts. The shared PTRs follow post-commit in addWorkstationPTRs.
func (s *Server) addWorkstation(group *announce.Group, fqdn string, now time.Time) {
	s.mu.Lock()
	domain := s.cfg.DomainName
	s.mu.Unlock()

	instanceName := names.ComposeServiceName(s.hostLabel(), "_workstation._tcp", domain)
	instance, err := wire.NameFromPresentation(instanceName)
	if err != nil {
		return
	}
	target, err := wire.NameFromPresentation(fqdn)
	if err != nil {
		return
	}

	srvKey := records.NewKey(instanceName, protocol.ClassIN, protocol.RecordTypeSRV)
	group.Add(&announce.Entry{Name: instance, Record: &records.Record{
		Key: srvKey, TTL: records.DefaultTTL(protocol.RecordTypeSRV), CacheFlush: true,
		Data: wire.SRVRecord{Port: WorkstationPort, Target: target}, CreatedAt: now,
	}})

	txtKey := records.NewKey(instanceName, protocol.ClassIN, protocol.RecordTypeTXT)
	group.Add(&announce.Entry{Name: instance, Record: &records.Record{
		Key: txtKey, TTL: records.DefaultTTL(protocol.RecordTypeTXT), CacheFlush: true,
		Data: wire.TXTRecord{Strings: wire.TXTList{}}, CreatedAt: now,
	}})
}

// addWorkstationPTRs publishes the shared records pointing at the
// workstation service: the <type> -> <instance> PTR and the RFC 6763 §9
// meta-PTR enumerating the type.
func (s *Server) addWorkstationPTRs(l *link, group *announce.Group, now time.Time) {
	s.mu.Lock()
	domain := s.cfg.DomainName
	s.mu.Unlock()

	typeName := names.ComposeServiceTypeName("_workstation._tcp", domain)
	instanceName := names.ComposeServiceName(s.hostLabel(), "_workstation._tcp", domain)
	instance, err := wire.NameFromPresentation(instanceName)
	if err != nil {
		return
	}

	ptrKey := records.NewKey(typeName, protocol.ClassIN, protocol.RecordTypePTR)
	s.addShared(l, group, ptrKey, &records.Record{
		Key: ptrKey, TTL: records.DefaultTTL(protocol.RecordTypePTR),
		Data: wire.PTRRecord{Target: instance}, CreatedAt: now,
	}, now)

	metaKey, metaRec := iface.MetaPTRRecord(domain, typeName, now)
	s.addShared(l, group, metaKey, metaRec, now)
}

// addBrowseDomains publishes the RFC 6763 §11 domain-enumeration PTRs
// ("b"/"db"._dns-sd._udp.<domain> -> <domain>) announcing the configured
// domain as browsable, the way avahi-daemon's publish_domain does for its
// own domain.
func (s *Server) addBrowseDomains(l *link, group *announce.Group, now time.Time) {
	s.mu.Lock()
	domain := s.cfg.DomainName
	s.mu.Unlock()
	target, err := wire.NameFromPresentation(domain)
	if err != nil {
		return
	}

	for _, kind := range []names.DomainEnumeration{names.DomainBrowse, names.DomainBrowseDefault} {
		owner := names.MetaDomainQueryName(kind, domain)
		key := records.NewKey(owner, protocol.ClassIN, protocol.RecordTypePTR)
		s.addShared(l, group, key, &records.Record{
			Key: key, TTL: records.DefaultTTL(protocol.RecordTypePTR),
			Data: wire.PTRRecord{Target: target}, CreatedAt: now,
		}, now)
	}
}

// ensureMetaPTR makes sure every relevant link carries the
// _services._dns-sd._udp meta-PTR entry for serviceTypeName (RFC 6763
// §9), adding it to the link's implicit group if missing. Called whenever
// a public EntryGroup registers a new service type.
func (s *Server) ensureMetaPTR(serviceTypeName string) {
	for _, l := range s.allLinks() {
		l.mu.Lock()
		group := l.implicit
		l.mu.Unlock()
		if group == nil {
			continue
		}
		metaKey, metaRec := iface.MetaPTRRecord(s.cfg.DomainName, serviceTypeName, time.Now())
		dup := false
		for _, e := range group.Entries() {
			if e.Record.Key == metaKey {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		// The meta-PTR is a shared record (RFC 6762 §8.1 exempts it from
		// probing), so it skips the probe sequence entirely.
		s.addShared(l, group, metaKey, metaRec, time.Now())
	}
}

// hostNameConflict is the implicit group's onConflict hook: a peer owns a
// record under our host name with different rdata, so pick the next
// alternative host name and republish the implicit records on every link
// under it, per RFC 6762 §9's rename-and-retry policy.
func (s *Server) hostNameConflict(l *link, e *announce.Entry) {
	s.mu.Lock()
	old := s.cfg.HostName
	label, rest := old, ""
	if i := strings.IndexByte(old, '.'); i >= 0 {
		label, rest = old[:i], old[i:]
	}
	s.cfg.HostName = names.AlternativeHostName(label) + rest
	fresh := s.cfg.HostName
	s.mu.Unlock()

	s.logger.Warnf("conflict on %s for %s: renaming host %q -> %q and reprobing",
		l.iface.Name, e.Name.Presentation(), old, fresh)

	for _, lk := range s.allLinks() {
		s.publishImplicit(lk)
	}
}
