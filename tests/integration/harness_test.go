// Package integration exercises the full engine — event loop, transport,
// cache, schedulers, announce, browse — by wiring two or more servers
// together over in-memory transports and pumping each one's outgoing
// packets into the others, a two-host LAN in a test process.
package integration

import (
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/lanbeacon/mdnsd/internal/iface"
	"github.com/lanbeacon/mdnsd/internal/server"
	"github.com/lanbeacon/mdnsd/internal/transport"
)

// host is one simulated mDNS participant: an engine, its mock transport,
// and the link-local address it sends from.
type host struct {
	srv  *server.Server
	conn *transport.MockConn
	addr netip.Addr
	idx  int
}

var nextIndex = 10

// newHost starts a server named hostName on a fresh simulated interface
// with the given link-local address.
func newHost(t *testing.T, hostName string, addr netip.Addr, mutate func(*server.Config)) *host {
	t.Helper()

	idx := nextIndex
	nextIndex++

	cfg := server.DefaultConfig(hostName)
	cfg.UseIPv6 = false
	cfg.AnnounceNum = 1
	cfg.PublishHINFO = false
	cfg.PublishDomain = false
	cfg.Interfaces = []*iface.Interface{{
		Index:  idx,
		Name:   "sim" + hostName,
		Flags:  net.FlagUp | net.FlagMulticast | net.FlagRunning,
		MTU:    1500,
		Family: iface.FamilyIPv4,
		Addrs:  []netip.Prefix{netip.PrefixFrom(addr, 16)},
	}}
	if mutate != nil {
		mutate(&cfg)
	}

	srv := server.New(cfg)
	conn := transport.NewMockConn(transport.FamilyIPv4, 64)
	if err := srv.StartWithConns(conn, nil, nil); err != nil {
		t.Fatalf("StartWithConns: %v", err)
	}
	h := &host{srv: srv, conn: conn, addr: addr, idx: idx}
	t.Cleanup(srv.Close)
	return h
}

// pump relays every multicast packet each host sends to every other host,
// as the shared link would, until the test ends.
func pump(t *testing.T, hosts ...*host) {
	t.Helper()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	t.Cleanup(func() {
		close(stop)
		wg.Wait()
	})
	for _, src := range hosts {
		src := src
		seen := 0
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(10 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
				}
				sent := src.conn.Sent()
				for _, p := range sent[seen:] {
					if p.Dst.Addr().IsMulticast() {
						for _, dst := range hosts {
							if dst == src {
								continue
							}
							dst.conn.Inject(&transport.Packet{
								Data:    p.Data,
								Src:     netip.AddrPortFrom(src.addr, 5353),
								IfIndex: dst.idx,
								TTL:     255,
							})
						}
					}
				}
				seen = len(sent)
			}
		}()
	}
}
