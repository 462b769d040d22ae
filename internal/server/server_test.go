package server

import (
	"bytes"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/lanbeacon/mdnsd/internal/announce"
	"github.com/lanbeacon/mdnsd/internal/iface"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/transport"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// newTestServer builds a Server around a MockConn and one synthetic IPv4
// link, bypassing Start's real sockets and interface snapshot so every
// test is deterministic regardless of the host's network state. Probe and
// announce counts are turned down to one so the implicit records reach
// ESTABLISHED quickly.
func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *transport.MockConn, *link) {
	t.Helper()

	cfg := DefaultConfig("host")
	cfg.UseIPv6 = false
	cfg.ProbeNum = 1
	cfg.AnnounceNum = 1
	cfg.PublishHINFO = false
	cfg.PublishDomain = false
	if mutate != nil {
		mutate(&cfg)
	}

	s := New(cfg)
	mock := transport.NewMockConn(transport.FamilyIPv4, 16)
	s.connIPv4 = mock
	t.Cleanup(func() { s.clockQ.Close() })

	s.createLink(&iface.Interface{
		Index:  7,
		Name:   "mock0",
		Flags:  net.FlagUp | net.FlagMulticast | net.FlagRunning,
		MTU:    1500,
		Family: iface.FamilyIPv4,
		Addrs:  []netip.Prefix{netip.MustParsePrefix("192.168.1.5/24")},
	})
	l := s.linkFor(7, iface.FamilyIPv4)
	if l == nil {
		t.Fatal("createLink did not register the test link")
	}
	return s, mock, l
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// inject decodes-and-dispatches msg as if it had arrived on the link from
// src with the given IP TTL.
func inject(t *testing.T, s *Server, msg *wire.Message, src netip.AddrPort, ttl int) {
	t.Helper()
	data, err := wire.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s.handlePacket(&transport.Packet{Data: data, Src: src, IfIndex: 7, TTL: ttl}, iface.FamilyIPv4)
}

func peerAddr() netip.AddrPort { return netip.MustParseAddrPort("169.254.1.9:5353") }

func decodeSent(t *testing.T, mock *transport.MockConn) []*wire.Message {
	t.Helper()
	var out []*wire.Message
	for _, p := range mock.Sent() {
		m, err := wire.Decode(p.Data)
		if err != nil {
			t.Fatalf("sent packet does not decode: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func findAnswer(msgs []*wire.Message, name string, rtype protocol.RecordType) *wire.RR {
	for _, m := range msgs {
		for i := range m.Answers {
			rr := &m.Answers[i]
			if rr.Type == rtype && strings.EqualFold(rr.Name.Presentation(), name) {
				return rr
			}
		}
	}
	return nil
}

func mustPresName(t *testing.T, s string) wire.Name {
	t.Helper()
	n, err := wire.NameFromPresentation(s)
	if err != nil {
		t.Fatalf("NameFromPresentation(%q): %v", s, err)
	}
	return n
}

func TestImplicitRecordsReachEstablished(t *testing.T) {
	s, mock, l := newTestServer(t, nil)
	_ = s

	waitFor(t, 3*time.Second, "implicit group established", func() bool {
		l.mu.Lock()
		g := l.implicit
		l.mu.Unlock()
		return g != nil && g.State() == announce.GroupEstablished
	})

	msgs := decodeSent(t, mock)
	if findAnswer(msgs, "host.local", protocol.RecordTypeA) == nil {
		t.Error("no A announcement for host.local seen on the wire")
	}
	if findAnswer(msgs, "5.1.168.192.in-addr.arpa", protocol.RecordTypePTR) == nil {
		t.Error("no reverse PTR announcement seen on the wire")
	}
}

// Publishing a service instance must yield the RFC 6763 record set: the
// type PTR, the instance SRV and TXT, and the _services._dns-sd._udp
// meta-PTR, all committed through one entry group.
func TestServicePublication(t *testing.T) {
	s, mock, l := newTestServer(t, nil)

	g := s.NewEntryGroup(nil)
	err := g.AddService("My Printer", "_ipp._tcp", "local", "host-1.local", 631,
		map[string]string{"txtvers": "1"}, AllInterfaces, AllFamilies)
	if err != nil {
		t.Fatalf("AddService: %v", err)
	}
	if err := g.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	waitFor(t, 3*time.Second, "entry group established", func() bool {
		return g.State() == announce.GroupEstablished
	})

	msgs := decodeSent(t, mock)
	ptr := findAnswer(msgs, "_ipp._tcp.local", protocol.RecordTypePTR)
	if ptr == nil {
		t.Fatal("no service PTR announced")
	}
	if target := ptr.Data.(wire.PTRRecord).Target.Presentation(); !strings.EqualFold(target, `My\ Printer._ipp._tcp.local`) && !strings.EqualFold(target, "My Printer._ipp._tcp.local") {
		t.Errorf("PTR target = %q", target)
	}
	srv := findAnswer(msgs, "My Printer._ipp._tcp.local", protocol.RecordTypeSRV)
	if srv == nil {
		t.Fatal("no SRV announced for the instance")
	}
	if data := srv.Data.(wire.SRVRecord); data.Port != 631 || !strings.EqualFold(data.Target.Presentation(), "host-1.local") {
		t.Errorf("SRV rdata = %+v", data)
	}
	if findAnswer(msgs, "My Printer._ipp._tcp.local", protocol.RecordTypeTXT) == nil {
		t.Error("no TXT announced for the instance")
	}
	if findAnswer(msgs, "_services._dns-sd._udp.local", protocol.RecordTypePTR) == nil {
		t.Error("no meta-PTR announced for the service type")
	}
	_ = l
}

func TestQueryAnsweredWithAuxiliaryRecords(t *testing.T) {
	s, mock, _ := newTestServer(t, nil)

	g := s.NewEntryGroup(nil)
	if err := g.AddService("My Printer", "_ipp._tcp", "local", "host.local", 631, nil, AllInterfaces, AllFamilies); err != nil {
		t.Fatalf("AddService: %v", err)
	}
	if err := g.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	waitFor(t, 3*time.Second, "entry group established", func() bool {
		return g.State() == announce.GroupEstablished
	})
	before := len(mock.Sent())

	inject(t, s, &wire.Message{
		Header:    wire.Header{QDCount: 1},
		Questions: []wire.Question{{Name: mustPresName(t, "_ipp._tcp.local"), Type: protocol.RecordTypePTR}},
	}, peerAddr(), 255)

	waitFor(t, time.Second, "query response", func() bool {
		return len(mock.Sent()) > before
	})

	msgs := decodeSent(t, mock)[before:]
	var resp *wire.Message
	for _, m := range msgs {
		if m.Header.IsResponse() && findAnswer([]*wire.Message{m}, "_ipp._tcp.local", protocol.RecordTypePTR) != nil {
			resp = m
			break
		}
	}
	if resp == nil {
		t.Fatal("no response carrying the service PTR")
	}
	if resp.Header.Flags&protocol.FlagAA == 0 {
		t.Error("response missing AA bit")
	}
	var haveSRV, haveTXT bool
	for _, rr := range resp.Additionals {
		switch rr.Type {
		case protocol.RecordTypeSRV:
			haveSRV = true
		case protocol.RecordTypeTXT:
			haveTXT = true
		}
	}
	if !haveSRV || !haveTXT {
		t.Errorf("PTR response missing dependent records: SRV=%v TXT=%v", haveSRV, haveTXT)
	}
}

// A query whose known-answer section already lists the record with at
// least half its TTL remaining must not be answered again.
func TestKnownAnswerSuppression(t *testing.T) {
	s, mock, _ := newTestServer(t, nil)

	g := s.NewEntryGroup(nil)
	if err := g.AddService("My Printer", "_ipp._tcp", "local", "host.local", 631, nil, AllInterfaces, AllFamilies); err != nil {
		t.Fatalf("AddService: %v", err)
	}
	if err := g.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	waitFor(t, 3*time.Second, "entry group established", func() bool {
		return g.State() == announce.GroupEstablished
	})
	before := len(mock.Sent())

	known := wire.RR{
		Name: mustPresName(t, "_ipp._tcp.local"), Type: protocol.RecordTypePTR,
		Class: protocol.ClassIN, TTL: protocol.TTLOther,
		Data: wire.PTRRecord{Target: mustPresName(t, "My Printer._ipp._tcp.local")},
	}
	inject(t, s, &wire.Message{
		Header:    wire.Header{QDCount: 1, ANCount: 1},
		Questions: []wire.Question{{Name: mustPresName(t, "_ipp._tcp.local"), Type: protocol.RecordTypePTR}},
		Answers:   []wire.RR{known},
	}, peerAddr(), 255)

	time.Sleep(400 * time.Millisecond)
	if msgs := decodeSent(t, mock)[before:]; findAnswer(msgs, "_ipp._tcp.local", protocol.RecordTypePTR) != nil {
		t.Error("responder answered a query whose known-answer section already held the record")
	}
}

// A query from a source port other than 5353 is a legacy one-shot
// resolver: the reply goes unicast back to the source with a short TTL
// and without the usual multicast defer.
func TestLegacyUnicastQuery(t *testing.T) {
	s, mock, _ := newTestServer(t, nil)

	g := s.NewEntryGroup(nil)
	if err := g.AddService("My Printer", "_ipp._tcp", "local", "host.local", 631, nil, AllInterfaces, AllFamilies); err != nil {
		t.Fatalf("AddService: %v", err)
	}
	if err := g.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	waitFor(t, 3*time.Second, "entry group established", func() bool {
		return g.State() == announce.GroupEstablished
	})
	before := len(mock.Sent())

	legacySrc := netip.MustParseAddrPort("169.254.1.9:40000")
	inject(t, s, &wire.Message{
		Header:    wire.Header{QDCount: 1},
		Questions: []wire.Question{{Name: mustPresName(t, "_ipp._tcp.local"), Type: protocol.RecordTypePTR}},
	}, legacySrc, 255)

	waitFor(t, time.Second, "legacy unicast reply", func() bool {
		for _, p := range mock.Sent()[before:] {
			if p.Dst == legacySrc {
				return true
			}
		}
		return false
	})

	for _, p := range mock.Sent()[before:] {
		if p.Dst != legacySrc {
			continue
		}
		m, err := wire.Decode(p.Data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		for _, rr := range m.Answers {
			if rr.TTL > protocol.TTLLegacyUnicastMax {
				t.Errorf("legacy unicast answer TTL = %d, want <= %d", rr.TTL, protocol.TTLLegacyUnicastMax)
			}
		}
	}
}

func TestPacketWithWrongTTLDropped(t *testing.T) {
	s, mock, _ := newTestServer(t, nil)
	before := len(mock.Sent())

	inject(t, s, &wire.Message{
		Header:    wire.Header{QDCount: 1},
		Questions: []wire.Question{{Name: mustPresName(t, "host.local"), Type: protocol.RecordTypeA}},
	}, peerAddr(), 64)

	time.Sleep(300 * time.Millisecond)
	if len(mock.Sent()) > before {
		msgs := decodeSent(t, mock)[before:]
		if findAnswer(msgs, "host.local", protocol.RecordTypeA) != nil {
			t.Error("responder answered a packet with IP TTL 64 while CheckResponseTTL is on")
		}
	}
}

// Losing a probe tie-break for the host name renames the host with the
// alternative-name generator and reprobes under the new name.
func TestHostNameConflictRenames(t *testing.T) {
	s, _, l := newTestServer(t, func(cfg *Config) {
		cfg.ProbeNum = 3 // keep the implicit group in PROBING long enough to collide
	})

	// A peer already owns host.local with a lexicographically greater A
	// record; our probe must lose (RFC 6762 §8.2).
	inject(t, s, &wire.Message{
		Header: wire.Header{Flags: protocol.FlagQR | protocol.FlagAA, ANCount: 1},
		Answers: []wire.RR{{
			Name: mustPresName(t, "host.local"), Type: protocol.RecordTypeA,
			Class: protocol.ClassIN, CacheFlush: true, TTL: protocol.TTLHostName,
			Data: wire.ARecord{Addr: netip.MustParseAddr("200.1.1.1")},
		}},
	}, peerAddr(), 255)

	waitFor(t, 2*time.Second, "host rename", func() bool {
		return s.hostFQDN() == "host-2.local"
	})

	waitFor(t, 2*time.Second, "republished implicit group", func() bool {
		l.mu.Lock()
		g := l.implicit
		l.mu.Unlock()
		if g == nil {
			return false
		}
		for _, e := range g.Entries() {
			if e.Record.Key.Type == protocol.RecordTypeA && e.Record.Key.Name == "host-2.local" {
				return true
			}
		}
		return false
	})
}

func TestDumpListsLinkAndRecords(t *testing.T) {
	s, _, l := newTestServer(t, nil)
	waitFor(t, 3*time.Second, "implicit group established", func() bool {
		l.mu.Lock()
		g := l.implicit
		l.mu.Unlock()
		return g != nil && g.State() == announce.GroupEstablished
	})

	var buf bytes.Buffer
	if err := s.Dump(&buf); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "interface mock0") {
		t.Errorf("dump missing interface header:\n%s", out)
	}
	if !strings.Contains(out, "host.local") {
		t.Errorf("dump missing published host record:\n%s", out)
	}
}

func TestEntryGroupRejectsAddAfterCommit(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	g := s.NewEntryGroup(nil)
	if err := g.AddService("My Printer", "_ipp._tcp", "local", "host.local", 631, nil, AllInterfaces, AllFamilies); err != nil {
		t.Fatalf("AddService: %v", err)
	}
	if err := g.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := g.AddAddress("alias.local", netip.MustParseAddr("192.168.1.7"), AllInterfaces, AllFamilies); err == nil {
		t.Fatal("expected BadState adding to a committed group")
	}
	if err := g.Commit(); err == nil {
		t.Fatal("expected BadState on double Commit")
	}

	g.Reset()
	if err := g.AddAddress("alias.local", netip.MustParseAddr("192.168.1.7"), AllInterfaces, AllFamilies); err != nil {
		t.Fatalf("add after Reset: %v", err)
	}
}

func TestAddServiceValidatesArguments(t *testing.T) {
	s, _, _ := newTestServer(t, nil)
	g := s.NewEntryGroup(nil)

	if err := g.AddService("Printer", "ipp._tcp", "local", "host.local", 631, nil, AllInterfaces, AllFamilies); err == nil {
		t.Error("service type without leading underscore accepted")
	}
	if err := g.AddService("", "_ipp._tcp", "local", "host.local", 631, nil, AllInterfaces, AllFamilies); err == nil {
		t.Error("empty instance name accepted")
	}
	if err := g.AddService("Printer", "_ipp._tcp", "local", "host.local", 0, nil, AllInterfaces, AllFamilies); err == nil {
		t.Error("port 0 accepted")
	}

	// A dotted instance stays one label on the wire.
	if err := g.AddService("web.site", "_http._tcp", "local", "host.local", 80, nil, AllInterfaces, AllFamilies); err != nil {
		t.Fatalf("dotted instance rejected: %v", err)
	}
}

func TestEntryGroupRejectsDuplicateRecord(t *testing.T) {
	s, _, _ := newTestServer(t, nil)

	g := s.NewEntryGroup(nil)
	addr := netip.MustParseAddr("192.168.1.7")
	if err := g.AddAddress("alias.local", addr, AllInterfaces, AllFamilies); err != nil {
		t.Fatalf("AddAddress: %v", err)
	}
	if err := g.AddAddress("alias.local", addr, AllInterfaces, AllFamilies); err == nil {
		t.Fatal("expected RecordExists for an identical record")
	}
	// Same name with different rdata is a distinct record and fine.
	if err := g.AddAddress("alias.local", netip.MustParseAddr("192.168.1.8"), AllInterfaces, AllFamilies); err != nil {
		t.Fatalf("distinct rdata rejected: %v", err)
	}
}
