// Package transport implements the per-address-family multicast sockets:
// one UDP socket per family bound to port 5353, joined to the mDNS group
// on every relevant interface, with outgoing TTL always 255 and incoming
// TTL read off each datagram's control message so the dispatch layer can
// enforce RFC 6762 §11's defense against off-link packets.
//
// Both families are built on golang.org/x/net's ipv4/ipv6 PacketConn,
// the primitive that gives per-packet control messages (ingress
// interface index, TTL/hop-limit) and per-interface group membership;
// per-OS SO_REUSEADDR/SO_REUSEPORT setup lives in the socket_*.go files.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/lanbeacon/mdnsd/internal/errors"
	"github.com/lanbeacon/mdnsd/internal/protocol"
)

// Family identifies which IP address family a Conn carries.
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

// Packet is one datagram read off a multicast socket, annotated with the
// metadata the server dispatch layer needs: which link it arrived on and
// its IP TTL/hop-limit for the RFC 6762 §11 check.
type Packet struct {
	Data    []byte
	Src     netip.AddrPort
	IfIndex int
	TTL     int
}

// Conn is implemented by both the real multicast socket (below) and
// MockConn, so internal/iface and internal/server can be exercised without
// opening real sockets.
type Conn interface {
	Family() Family
	JoinGroup(ifi *net.Interface) error
	LeaveGroup(ifi *net.Interface) error
	SendTo(ifIndex int, data []byte, dst netip.AddrPort) error
	ReadPacket() (*Packet, error)
	Close() error
}

// udpConn is the real multicast socket for one address family.
type udpConn struct {
	family Family
	pc     net.PacketConn
	p4     *ipv4.PacketConn
	p6     *ipv6.PacketConn
}

// Listen opens and configures the mDNS multicast socket for family,
// binding port 5353 with SO_REUSEADDR/SO_REUSEPORT so other mDNS
// responders on the same host (avahi, systemd-resolved, Bonjour) are not
// locked out.
func Listen(family Family) (Conn, error) {
	network, addr := "udp4", fmt.Sprintf(":%d", protocol.Port)
	if family == FamilyIPv6 {
		network, addr = "udp6", fmt.Sprintf(":%d", protocol.Port)
	}

	lc := net.ListenConfig{Control: PlatformControl}
	pc, err := lc.ListenPacket(context.Background(), network, addr)
	if err != nil {
		return nil, errors.OSError("listen "+network, err)
	}

	c := &udpConn{family: family, pc: pc}
	switch family {
	case FamilyIPv4:
		c.p4 = ipv4.NewPacketConn(pc)
		if err := c.p4.SetMulticastTTL(255); err != nil {
			_ = pc.Close()
			return nil, errors.OSError("set multicast ttl", err)
		}
		if err := c.p4.SetMulticastLoopback(true); err != nil {
			_ = pc.Close()
			return nil, errors.OSError("set multicast loopback", err)
		}
		if err := c.p4.SetControlMessage(ipv4.FlagInterface|ipv4.FlagTTL, true); err != nil {
			_ = pc.Close()
			return nil, errors.OSError("set control message", err)
		}
	case FamilyIPv6:
		c.p6 = ipv6.NewPacketConn(pc)
		if err := c.p6.SetMulticastHopLimit(255); err != nil {
			_ = pc.Close()
			return nil, errors.OSError("set multicast hop limit", err)
		}
		if err := c.p6.SetMulticastLoopback(true); err != nil {
			_ = pc.Close()
			return nil, errors.OSError("set multicast loopback", err)
		}
		if err := c.p6.SetControlMessage(ipv6.FlagInterface|ipv6.FlagHopLimit, true); err != nil {
			_ = pc.Close()
			return nil, errors.OSError("set control message", err)
		}
	}
	return c, nil
}

func (c *udpConn) Family() Family { return c.family }

// JoinGroup joins the mDNS multicast group (224.0.0.251 or ff02::fb) on
// ifi, done once per relevant interface.
func (c *udpConn) JoinGroup(ifi *net.Interface) error {
	switch c.family {
	case FamilyIPv4:
		return c.p4.JoinGroup(ifi, protocol.MulticastGroupIPv4())
	default:
		group := protocol.MulticastGroupIPv6(ifi.Name)
		return c.p6.JoinGroup(ifi, group)
	}
}

// LeaveGroup undoes JoinGroup, called when an interface stops being
// relevant (goes down, loses its last usable address).
func (c *udpConn) LeaveGroup(ifi *net.Interface) error {
	switch c.family {
	case FamilyIPv4:
		return c.p4.LeaveGroup(ifi, protocol.MulticastGroupIPv4())
	default:
		group := protocol.MulticastGroupIPv6(ifi.Name)
		return c.p6.LeaveGroup(ifi, group)
	}
}

// SendTo transmits data out the interface identified by ifIndex to dst,
// with TTL/hop-limit 255 as set at socket creation; RFC 6762 §11
// recommends MSG_DONTROUTE, which golang.org/x/net's PacketConn does not
// expose, so outbound packets rely on the explicit interface selection via
// the control message instead.
func (c *udpConn) SendTo(ifIndex int, data []byte, dst netip.AddrPort) error {
	udpDst := net.UDPAddrFromAddrPort(dst)
	switch c.family {
	case FamilyIPv4:
		cm := &ipv4.ControlMessage{IfIndex: ifIndex}
		_, err := c.p4.WriteTo(data, cm, udpDst)
		if err != nil {
			return errors.OSError("send", err)
		}
		return nil
	default:
		cm := &ipv6.ControlMessage{IfIndex: ifIndex}
		_, err := c.p6.WriteTo(data, cm, udpDst)
		if err != nil {
			return errors.OSError("send", err)
		}
		return nil
	}
}

// ReadPacket blocks for the next datagram, reporting the ingress
// interface index and TTL/hop-limit it arrived with.
func (c *udpConn) ReadPacket() (*Packet, error) {
	bufPtr := GetBuffer()
	defer PutBuffer(bufPtr)
	buf := *bufPtr

	var n, ifIndex, ttl int
	var src net.Addr
	var err error
	switch c.family {
	case FamilyIPv4:
		var cm *ipv4.ControlMessage
		n, cm, src, err = c.p4.ReadFrom(buf)
		if cm != nil {
			ifIndex, ttl = cm.IfIndex, cm.TTL
		}
	default:
		var cm *ipv6.ControlMessage
		n, cm, src, err = c.p6.ReadFrom(buf)
		if cm != nil {
			ifIndex, ttl = cm.IfIndex, cm.HopLimit
		}
	}
	if err != nil {
		return nil, errors.OSError("receive", err)
	}

	udpAddr, ok := src.(*net.UDPAddr)
	if !ok {
		return nil, errors.OSError("receive", fmt.Errorf("unexpected source address type %T", src))
	}
	addrPort := udpAddr.AddrPort()

	data := make([]byte, n)
	copy(data, buf[:n])
	return &Packet{Data: data, Src: addrPort, IfIndex: ifIndex, TTL: ttl}, nil
}

func (c *udpConn) Close() error {
	if err := c.pc.Close(); err != nil {
		return errors.OSError("close socket", err)
	}
	return nil
}
