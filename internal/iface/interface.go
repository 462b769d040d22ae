// Package iface watches the host's network interfaces and addresses and
// decides which of them are relevant to mDNS: up, not loopback, not
// point-to-point, capable of multicast, and carrying at least one address
// in the family being watched. The IFF_RUNNING (carrier) check is applied
// by internal/server when its Config.UseIfRunning is set.
//
package iface

import (
	"net"
	"net/netip"
)

// Interface is one (link, address family) pair this responder treats as
// a participant: its up/running state, MTU, and current addresses for
// the family it was created for.
type Interface struct {
	Index    int
	Name     string
	Flags    net.Flags
	MTU      int
	Family   Family
	Addrs    []netip.Prefix
}

// Relevant reports whether the interface should currently be joined to
// the mDNS multicast group: up, not loopback, not point-to-point,
// capable of multicast, and carrying at least one address in its family.
// It does not check IFF_RUNNING; internal/server does that when
// Config.UseIfRunning is set.
func (i *Interface) Relevant() bool {
	if i.Flags&net.FlagUp == 0 {
		return false
	}
	if i.Flags&net.FlagLoopback != 0 {
		return false
	}
	if i.Flags&net.FlagPointToPoint != 0 {
		return false
	}
	if i.Flags&net.FlagMulticast == 0 {
		return false
	}
	for _, a := range i.Addrs {
		if i.Family == FamilyIPv6 && a.Addr().Is6() && !a.Addr().Is4In6() {
			return true
		}
		if i.Family == FamilyIPv4 && a.Addr().Is4() {
			return true
		}
	}
	return false
}

// PrimaryAddr returns the first address usable as this interface's
// advertised address, or the zero value and false if it has none.
func (i *Interface) PrimaryAddr() (netip.Addr, bool) {
	for _, a := range i.Addrs {
		if i.Family == FamilyIPv6 && a.Addr().Is6() && !a.Addr().Is4In6() {
			return a.Addr(), true
		}
		if i.Family == FamilyIPv4 && a.Addr().Is4() {
			return a.Addr(), true
		}
	}
	return netip.Addr{}, false
}

// Family mirrors transport.Family without importing the transport
// package, which keeps iface usable in contexts (tests, the netlink
// monitor) that never open a socket.
type Family int

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

func (f Family) String() string {
	if f == FamilyIPv6 {
		return "ipv6"
	}
	return "ipv4"
}
