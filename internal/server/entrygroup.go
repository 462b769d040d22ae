package server

import (
	"net/netip"
	"sync"
	"time"

	"github.com/lanbeacon/mdnsd/internal/announce"
	"github.com/lanbeacon/mdnsd/internal/errors"
	"github.com/lanbeacon/mdnsd/internal/iface"
	"github.com/lanbeacon/mdnsd/internal/names"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// entrySpec is one record a caller has asked an EntryGroup to publish,
// kept in presentation form until Commit resolves it against the links
// currently up (interface index unspecified=all, protocol
// unspecified=both).
type entrySpec struct {
	name       string
	key        records.Key
	data       wire.RData
	ttl        uint32
	cacheFlush bool
	ifIndex    int         // -1 = every interface
	family     iface.Family // -1 = both families (AllFamilies)
}

// AllInterfaces and AllFamilies mark an entrySpec (and the public
// responder.EntryGroup wrapper's AddXxx calls) as unscoped.
const AllInterfaces = -1

// AllFamilies is iface.Family(-1), meaning "both IPv4 and IPv6".
var AllFamilies = iface.Family(-1)

// EntryGroup is a set of records registered, probed and announced as a
// unit, fanned out across every (interface,family) link it applies to,
// with avahi's entry-group commit/reset lifecycle. Unlike
// internal/announce.Group (strictly one link), this is
// the multi-link composite the public-facing API is built on.
type EntryGroup struct {
	srv *Server

	mu      sync.Mutex
	specs   []entrySpec
	dedup   *records.Set
	perLink map[*link]*announce.Group
	state   announce.GroupState
	onState func(announce.GroupState)
}

// NewEntryGroup creates an empty, uncommitted group.
func (s *Server) NewEntryGroup(onState func(announce.GroupState)) *EntryGroup {
	return &EntryGroup{srv: s, onState: onState, dedup: records.NewSet()}
}

// AddAddress registers a hostname -> address record, used to publish an
// address for a name other than the link's own implicit host record
// (e.g. a CNAME-style alias).
func (g *EntryGroup) AddAddress(hostName string, addr netip.Addr, ifIndex int, fam iface.Family) error {
	var rtype protocol.RecordType
	var data wire.RData
	switch {
	case addr.Is4():
		rtype, data = protocol.RecordTypeA, wire.ARecord{Addr: addr}
	case addr.Is6():
		rtype, data = protocol.RecordTypeAAAA, wire.AAAARecord{Addr: addr}
	default:
		return errors.InvalidAddress(addr.String())
	}
	return g.addRaw(hostName, records.NewKey(hostName, protocol.ClassIN, rtype), data, records.DefaultTTL(rtype), true, ifIndex, fam)
}

// AddService registers a service instance's PTR+SRV+TXT triple, per
// RFC 6763 §4/§6: <instance>.<type>.<domain> SRV pointing at host:port,
// TXT carrying the key/value metadata, and <type>.<domain> PTR pointing
// at the instance name.
func (g *EntryGroup) AddService(instance, serviceType, domain, host string, port uint16, txt map[string]string, ifIndex int, fam iface.Family) error {
	if !names.IsValidServiceType(serviceType) {
		return errors.InvalidServiceType(serviceType)
	}
	if !names.IsValidServiceInstanceName(instance) {
		return errors.InvalidServiceName(instance)
	}
	if port == 0 {
		return errors.InvalidPort(int(port))
	}
	svcTypeName := names.ComposeServiceTypeName(serviceType, domain)
	instanceName := names.ComposeServiceName(instance, serviceType, domain)

	hostName, err := wire.NameFromPresentation(host)
	if err != nil {
		return errors.InvalidHostName(host)
	}

	if err := g.addRaw(svcTypeName, records.NewKey(svcTypeName, protocol.ClassIN, protocol.RecordTypePTR), wire.PTRRecord{Target: mustName(instanceName)}, records.DefaultTTL(protocol.RecordTypePTR), false, ifIndex, fam); err != nil {
		return err
	}
	if err := g.addRaw(instanceName, records.NewKey(instanceName, protocol.ClassIN, protocol.RecordTypeSRV), wire.SRVRecord{Priority: 0, Weight: 0, Port: port, Target: hostName}, records.DefaultTTL(protocol.RecordTypeSRV), true, ifIndex, fam); err != nil {
		return err
	}
	txtEntries := make([]string, 0, len(txt))
	for k, v := range txt {
		if v == "" {
			txtEntries = append(txtEntries, k)
			continue
		}
		txtEntries = append(txtEntries, k+"="+v)
	}
	txtData := wire.TXTRecord{Strings: wire.NewTXTList(txtEntries...)}
	if err := g.addRaw(instanceName, records.NewKey(instanceName, protocol.ClassIN, protocol.RecordTypeTXT), txtData, records.DefaultTTL(protocol.RecordTypeTXT), true, ifIndex, fam); err != nil {
		return err
	}
	g.srv.ensureMetaPTR(svcTypeName)
	return nil
}

// AddRecord registers an arbitrary caller-supplied record, the raw
// escape hatch for record types this package has no dedicated helper
// for.
func (g *EntryGroup) AddRecord(name string, rtype protocol.RecordType, data wire.RData, ttl uint32, cacheFlush bool, ifIndex int, fam iface.Family) error {
	if err := protocol.ValidateRecordType(uint16(rtype)); err != nil {
		return err
	}
	return g.addRaw(name, records.NewKey(name, protocol.ClassIN, rtype), data, ttl, cacheFlush, ifIndex, fam)
}

func (g *EntryGroup) addRaw(name string, key records.Key, data wire.RData, ttl uint32, cacheFlush bool, ifIndex int, fam iface.Family) error {
	if _, err := wire.NameFromPresentation(name); err != nil {
		return errors.InvalidRecord(name)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.perLink != nil {
		return errors.BadState("cannot add records to an entry group after Commit; Reset first")
	}
	if !g.dedup.Add(&records.Record{Key: key, TTL: ttl, CacheFlush: cacheFlush, Data: data}) {
		return errors.RecordExists(key.String())
	}
	g.specs = append(g.specs, entrySpec{name: name, key: key, data: data, ttl: ttl, cacheFlush: cacheFlush, ifIndex: ifIndex, family: fam})
	return nil
}

func mustName(s string) wire.Name {
	n, err := wire.NameFromPresentation(s)
	if err != nil {
		return wire.Name{s}
	}
	return n
}

// Commit starts probing (for unique records) and announcing (for shared
// ones) every spec this group holds, on every link it applies to.
func (g *EntryGroup) Commit() error {
	g.mu.Lock()
	if g.perLink != nil {
		g.mu.Unlock()
		return errors.BadState("entry group already committed")
	}
	specs := append([]entrySpec(nil), g.specs...)
	g.perLink = make(map[*link]*announce.Group)
	g.mu.Unlock()

	if len(specs) == 0 {
		return errors.BadState("cannot commit an empty entry group")
	}

	now := time.Now()
	for _, l := range g.srv.allLinks() {
		var entries []*announce.Entry
		for _, spec := range specs {
			if spec.ifIndex != AllInterfaces && spec.ifIndex != l.key.index {
				continue
			}
			if spec.family != AllFamilies && spec.family != l.key.family {
				continue
			}
			name, err := wire.NameFromPresentation(spec.name)
			if err != nil {
				continue
			}
			rec := &records.Record{Key: spec.key, TTL: spec.ttl, CacheFlush: spec.cacheFlush, Data: spec.data, CreatedAt: now}
			entries = append(entries, &announce.Entry{Name: name, Record: rec})
		}
		if len(entries) == 0 {
			continue
		}

		lg := announce.NewGroup(g.srv.clockQ, l.probeS, l.responseS,
			func(announce.GroupState) { g.recomputeState() },
			func(e *announce.Entry) {
				// The group's COLLISION state (delivered via recomputeState)
				// tells the owner to rename and re-commit; renaming is the
				// owner's policy, not the server's (RFC 6762 §9).
				g.srv.logger.Warnf("record %s lost probing on %s; entry group enters collision",
					e.Name.Presentation(), l.iface.Name)
			},
		)
		lg.SetAnnounceCount(g.srv.cfg.AnnounceNum)
		for _, e := range entries {
			lg.Add(e)
		}
		l.addGroup(lg)

		g.mu.Lock()
		g.perLink[l] = lg
		g.mu.Unlock()

		lg.Commit()
	}
	return nil
}

// recomputeState aggregates every per-link group's state into the
// group's composite GroupState: COLLISION if any link is in collision,
// ESTABLISHED only once every link is, REGISTERING otherwise.
func (g *EntryGroup) recomputeState() {
	g.mu.Lock()
	links := make([]*announce.Group, 0, len(g.perLink))
	for _, lg := range g.perLink {
		links = append(links, lg)
	}
	cb := g.onState
	g.mu.Unlock()

	state := announce.GroupEstablished
	for _, lg := range links {
		switch lg.State() {
		case announce.GroupCollision:
			state = announce.GroupCollision
		case announce.GroupRegistering:
			if state != announce.GroupCollision {
				state = announce.GroupRegistering
			}
		}
	}

	g.mu.Lock()
	g.state = state
	g.mu.Unlock()

	if cb != nil {
		cb(state)
	}
}

// State returns the group's current composite lifecycle state.
func (g *EntryGroup) State() announce.GroupState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Reset withdraws every record this group published (if committed) and
// returns it to empty and UNCOMMITTED so it can be refilled for a fresh
// Commit.
func (g *EntryGroup) Reset() {
	g.mu.Lock()
	perLink := g.perLink
	g.perLink = nil
	g.specs = nil
	g.dedup = records.NewSet()
	g.state = announce.GroupUncommitted
	g.mu.Unlock()

	for l, lg := range perLink {
		lg.Reset()
		l.removeGroup(lg)
	}
}

// Free withdraws every record (sending goodbyes) and detaches the group
// permanently.
func (g *EntryGroup) Free() {
	g.mu.Lock()
	perLink := g.perLink
	g.perLink = nil
	g.mu.Unlock()

	for l, lg := range perLink {
		lg.Goodbye()
		l.removeGroup(lg)
	}
}
