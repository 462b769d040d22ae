package responder

import (
	"net/netip"

	"github.com/lanbeacon/mdnsd/internal/announce"
	"github.com/lanbeacon/mdnsd/internal/iface"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/server"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// Family scopes a record to one address family, or both.
type Family int

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

// AllFamilies scopes a record to both IPv4 and IPv6 links.
const AllFamilies Family = -1

// AllInterfaces scopes a record to every interface, rather than one by
// index.
const AllInterfaces = server.AllInterfaces

func (f Family) toIface() iface.Family {
	if f == AllFamilies {
		return server.AllFamilies
	}
	if f == FamilyIPv6 {
		return iface.FamilyIPv6
	}
	return iface.FamilyIPv4
}

// GroupState is an EntryGroup's commit lifecycle per RFC 6762 §8:
// UNCOMMITTED before Commit, REGISTERING while probing/announcing,
// ESTABLISHED once every link has announced, COLLISION if any link's
// probe lost to a conflicting record.
type GroupState announce.GroupState

const (
	GroupUncommitted = GroupState(announce.GroupUncommitted)
	GroupRegistering = GroupState(announce.GroupRegistering)
	GroupEstablished = GroupState(announce.GroupEstablished)
	GroupCollision   = GroupState(announce.GroupCollision)
)

func (s GroupState) String() string { return announce.GroupState(s).String() }

// EntryGroup is a set of records registered, probed, and announced as a
// unit, with avahi's entry-group commit/reset lifecycle. Records
// are added with AddAddress/AddService/AddRecord while uncommitted; Commit
// starts probing and announcing them together.
type EntryGroup struct {
	g *server.EntryGroup
}

// AddAddress registers a hostname -> address record, for publishing an
// address under a name other than the host's own implicit record (e.g.
// a CNAME-style alias). ifIndex is AllInterfaces or a specific interface
// index; fam is AllFamilies or one specific family.
func (g *EntryGroup) AddAddress(hostName string, addr netip.Addr, ifIndex int, fam Family) error {
	return g.g.AddAddress(hostName, addr, ifIndex, fam.toIface())
}

// AddService registers a service instance's PTR+SRV+TXT triple per
// RFC 6763 §4/§6: serviceType is e.g. "_http._tcp", domain is usually
// "local", host is the target hostname (e.g. "myhost.local"), and txt
// carries the instance's key/value metadata (an empty value publishes a
// boolean key).
func (g *EntryGroup) AddService(instance, serviceType, domain, host string, port uint16, txt map[string]string, ifIndex int, fam Family) error {
	return g.g.AddService(instance, serviceType, domain, host, port, txt, ifIndex, fam.toIface())
}

// AddRecord registers an arbitrary record this package has no dedicated
// helper for, identified by its raw RecordType and wire.RData payload —
// the escape hatch for record types without a dedicated helper.
func (g *EntryGroup) AddRecord(name string, rtype protocol.RecordType, data wire.RData, ttl uint32, cacheFlush bool, ifIndex int, fam Family) error {
	return g.g.AddRecord(name, rtype, data, ttl, cacheFlush, ifIndex, fam.toIface())
}

// Commit starts probing (for unique records) and announcing (for shared
// ones) every record this group holds, on every link it applies to. A
// group can only be committed once; call Reset first to reuse it.
func (g *EntryGroup) Commit() error { return g.g.Commit() }

// State returns the group's current composite lifecycle state.
func (g *EntryGroup) State() GroupState { return GroupState(g.g.State()) }

// Reset withdraws every record this group published and returns it to
// UNCOMMITTED so it can be reused for a fresh Commit.
func (g *EntryGroup) Reset() { g.g.Reset() }

// Free withdraws every record (sending goodbyes) and detaches the group
// permanently.
func (g *EntryGroup) Free() { g.g.Free() }
