package transport_test

import (
	"net"
	"net/netip"
	"testing"

	"github.com/lanbeacon/mdnsd/internal/transport"
)

func TestMockConnImplementsConn(t *testing.T) {
	var _ transport.Conn = (*transport.MockConn)(nil)
}

func TestMockConnSendRecordsPacket(t *testing.T) {
	m := transport.NewMockConn(transport.FamilyIPv4, 1)
	dst := netip.MustParseAddrPort("224.0.0.251:5353")
	if err := m.SendTo(2, []byte("hello"), dst); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	sent := m.Sent()
	if len(sent) != 1 || string(sent[0].Data) != "hello" || sent[0].IfIndex != 2 {
		t.Fatalf("unexpected sent packets: %+v", sent)
	}
}

func TestMockConnInjectReadPacket(t *testing.T) {
	m := transport.NewMockConn(transport.FamilyIPv4, 1)
	src := netip.MustParseAddrPort("192.168.1.5:5353")
	m.Inject(&transport.Packet{Data: []byte("abc"), Src: src, IfIndex: 3, TTL: 255})

	pkt, err := m.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if string(pkt.Data) != "abc" || pkt.IfIndex != 3 || pkt.TTL != 255 {
		t.Fatalf("unexpected packet: %+v", pkt)
	}
}

func TestMockConnJoinLeaveGroup(t *testing.T) {
	m := transport.NewMockConn(transport.FamilyIPv4, 1)
	ifi := &net.Interface{Index: 1, Name: "eth0"}
	if err := m.JoinGroup(ifi); err != nil {
		t.Fatalf("JoinGroup: %v", err)
	}
	if !m.Joined(ifi.Name) {
		t.Fatalf("expected interface to be joined")
	}
	if err := m.LeaveGroup(ifi); err != nil {
		t.Fatalf("LeaveGroup: %v", err)
	}
	if m.Joined(ifi.Name) {
		t.Fatalf("expected interface to no longer be joined")
	}
}
