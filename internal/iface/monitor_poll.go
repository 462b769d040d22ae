package iface

import (
	"net"
	"net/netip"
	"sync"
	"time"
)

// pollMonitor is the portable fallback: it snapshots net.Interfaces and
// net.InterfaceAddrs every interval and diffs against the previous
// snapshot, emitting the same Event stream the netlink monitor produces.
type pollMonitor struct {
	interval time.Duration
	events   chan Event
	closeCh  chan struct{}
	wg       sync.WaitGroup
}

// newPollMonitor starts a pollMonitor at the given interval. 1s is
// the usual wake-up cadence for interfaces that cannot be watched
// natively.
func newPollMonitor(interval time.Duration) *pollMonitor {
	m := &pollMonitor{
		interval: interval,
		events:   make(chan Event, 64),
		closeCh:  make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

func (m *pollMonitor) Events() <-chan Event { return m.events }

func (m *pollMonitor) Close() error {
	close(m.closeCh)
	m.wg.Wait()
	close(m.events)
	return nil
}

type linkState struct {
	flags net.Flags
	addrs map[netip.Prefix]bool
}

func (m *pollMonitor) run() {
	defer m.wg.Done()
	prev := map[int]linkState{}

	emit := func(ev Event) {
		select {
		case m.events <- ev:
		case <-m.closeCh:
		}
	}

	scan := func() {
		ifs, err := net.Interfaces()
		if err != nil {
			return
		}
		seen := map[int]bool{}
		for _, ifi := range ifs {
			seen[ifi.Index] = true
			addrs, err := ifi.Addrs()
			cur := linkState{flags: ifi.Flags, addrs: map[netip.Prefix]bool{}}
			if err == nil {
				for _, a := range addrs {
					if ipnet, ok := a.(*net.IPNet); ok {
						if p, ok := prefixFromIPNet(ipnet); ok {
							cur.addrs[p] = true
						}
					}
				}
			}

			old, existed := prev[ifi.Index]
			if !existed {
				if cur.flags&net.FlagUp != 0 {
					emit(Event{Kind: EventLinkUp, Index: ifi.Index, Name: ifi.Name})
				}
				for p := range cur.addrs {
					emit(Event{Kind: EventAddrAdded, Index: ifi.Index, Name: ifi.Name, Addr: p})
				}
				prev[ifi.Index] = cur
				continue
			}

			wasUp := old.flags&net.FlagUp != 0
			isUp := cur.flags&net.FlagUp != 0
			if isUp && !wasUp {
				emit(Event{Kind: EventLinkUp, Index: ifi.Index, Name: ifi.Name})
			} else if !isUp && wasUp {
				emit(Event{Kind: EventLinkDown, Index: ifi.Index, Name: ifi.Name})
			}
			for p := range cur.addrs {
				if !old.addrs[p] {
					emit(Event{Kind: EventAddrAdded, Index: ifi.Index, Name: ifi.Name, Addr: p})
				}
			}
			for p := range old.addrs {
				if !cur.addrs[p] {
					emit(Event{Kind: EventAddrRemoved, Index: ifi.Index, Name: ifi.Name, Addr: p})
				}
			}
			prev[ifi.Index] = cur
		}

		for idx, old := range prev {
			if !seen[idx] {
				if old.flags&net.FlagUp != 0 {
					emit(Event{Kind: EventLinkDown, Index: idx})
				}
				for p := range old.addrs {
					emit(Event{Kind: EventAddrRemoved, Index: idx, Addr: p})
				}
				delete(prev, idx)
			}
		}
	}

	scan()
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-m.closeCh:
			return
		case <-t.C:
			scan()
		}
	}
}

func prefixFromIPNet(n *net.IPNet) (netip.Prefix, bool) {
	addr, ok := netip.AddrFromSlice(n.IP)
	if !ok {
		return netip.Prefix{}, false
	}
	addr = addr.Unmap()
	ones, _ := n.Mask.Size()
	return netip.PrefixFrom(addr, ones), true
}
