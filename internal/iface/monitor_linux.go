//go:build linux

package iface

import (
	"net"
	"net/netip"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const pollFallbackInterval = 1 * time.Second

// netlinkMonitor watches RTM_NEWLINK/DELLINK and RTM_NEWADDR/DELADDR
// notifications on an AF_NETLINK/NETLINK_ROUTE socket, translating them
// into the portable Event stream.
type netlinkMonitor struct {
	fd      int
	events  chan Event
	closeCh chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func newPlatformMonitor() (Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, unix.NETLINK_ROUTE)
	if err != nil {
		return newPollMonitor(pollFallbackInterval), nil
	}

	sa := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: unix.RTMGRP_LINK | unix.RTMGRP_IPV4_IFADDR | unix.RTMGRP_IPV6_IFADDR,
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return newPollMonitor(pollFallbackInterval), nil
	}

	m := &netlinkMonitor{
		fd:      fd,
		events:  make(chan Event, 64),
		closeCh: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m, nil
}

func (m *netlinkMonitor) Events() <-chan Event { return m.events }

func (m *netlinkMonitor) Close() error {
	m.once.Do(func() {
		close(m.closeCh)
		_ = unix.Close(m.fd)
	})
	m.wg.Wait()
	close(m.events)
	return nil
}

func (m *netlinkMonitor) run() {
	defer m.wg.Done()
	buf := make([]byte, unix.Getpagesize())
	for {
		n, _, err := unix.Recvfrom(m.fd, buf, 0)
		if err != nil {
			select {
			case <-m.closeCh:
				return
			default:
				continue
			}
		}
		msgs, err := unix.ParseNetlinkMessage(buf[:n])
		if err != nil {
			continue
		}
		for _, msg := range msgs {
			m.dispatch(msg)
		}
	}
}

func (m *netlinkMonitor) dispatch(msg unix.NetlinkMessage) {
	switch msg.Header.Type {
	case unix.RTM_NEWLINK, unix.RTM_DELLINK:
		m.handleLink(msg)
	case unix.RTM_NEWADDR, unix.RTM_DELADDR:
		m.handleAddr(msg)
	}
}

func (m *netlinkMonitor) handleLink(msg unix.NetlinkMessage) {
	if len(msg.Data) < unix.SizeofIfInfomsg {
		return
	}
	info := (*unix.IfInfomsg)(unsafe.Pointer(&msg.Data[0]))
	name := ""
	attrs, err := unix.ParseRouteAttr(msg.Data[unix.SizeofIfInfomsg:])
	if err == nil {
		for _, a := range attrs {
			if a.Attr.Type == unix.IFLA_IFNAME {
				name = nullTerminated(a.Value)
			}
		}
	}

	if name == "" {
		name = interfaceName(int(info.Index))
	}

	kind := EventLinkDown
	if msg.Header.Type == unix.RTM_NEWLINK && info.Flags&unix.IFF_UP != 0 {
		kind = EventLinkUp
	}
	m.emit(Event{Kind: kind, Index: int(info.Index), Name: name, Flags: info.Flags})
}

func (m *netlinkMonitor) handleAddr(msg unix.NetlinkMessage) {
	if len(msg.Data) < unix.SizeofIfAddrmsg {
		return
	}
	info := (*unix.IfAddrmsg)(unsafe.Pointer(&msg.Data[0]))
	attrs, err := unix.ParseRouteAttr(msg.Data[unix.SizeofIfAddrmsg:])
	if err != nil {
		return
	}

	var addr netip.Addr
	for _, a := range attrs {
		if a.Attr.Type == unix.IFA_ADDRESS || a.Attr.Type == unix.IFA_LOCAL {
			if ip, ok := netip.AddrFromSlice(a.Value); ok {
				addr = ip.Unmap()
			}
		}
	}
	if !addr.IsValid() {
		return
	}

	kind := EventAddrRemoved
	if msg.Header.Type == unix.RTM_NEWADDR {
		kind = EventAddrAdded
	}
	prefix := netip.PrefixFrom(addr, int(info.Prefixlen))
	m.emit(Event{Kind: kind, Index: int(info.Index), Addr: prefix})
}

func (m *netlinkMonitor) emit(ev Event) {
	select {
	case m.events <- ev:
	case <-m.closeCh:
	}
}

func nullTerminated(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// interfaceName resolves an index to a name via the standard library,
// used when a netlink message's attributes did not carry IFLA_IFNAME.
func interfaceName(index int) string {
	ifi, err := net.InterfaceByIndex(index)
	if err != nil {
		return ""
	}
	return ifi.Name
}
