package transport

import (
	"net"
	"net/netip"
	"sync"
)

// SentPacket records one SendTo call, for test assertions.
type SentPacket struct {
	IfIndex int
	Data    []byte
	Dst     netip.AddrPort
}

// MockConn is a Conn test double: it records every SendTo call and lets
// the test feed ReadPacket results through Inject, so internal/iface and
// internal/server can be exercised without real sockets.
type MockConn struct {
	family Family

	mu      sync.Mutex
	sent    []SentPacket
	joined  map[string]bool
	packets chan *Packet
	closed  bool
}

// NewMockConn creates a MockConn for family with a buffered inject
// queue of the given capacity.
func NewMockConn(family Family, queue int) *MockConn {
	return &MockConn{
		family:  family,
		joined:  make(map[string]bool),
		packets: make(chan *Packet, queue),
	}
}

func (m *MockConn) Family() Family { return m.family }

func (m *MockConn) JoinGroup(ifi *net.Interface) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joined[ifi.Name] = true
	return nil
}

func (m *MockConn) LeaveGroup(ifi *net.Interface) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.joined, ifi.Name)
	return nil
}

// Joined reports whether JoinGroup was called for ifaceName and not since
// undone by LeaveGroup.
func (m *MockConn) Joined(ifaceName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joined[ifaceName]
}

func (m *MockConn) SendTo(ifIndex int, data []byte, dst netip.AddrPort) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.sent = append(m.sent, SentPacket{IfIndex: ifIndex, Data: cp, Dst: dst})
	m.mu.Unlock()
	return nil
}

// Sent returns every packet recorded by SendTo so far.
func (m *MockConn) Sent() []SentPacket {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentPacket, len(m.sent))
	copy(out, m.sent)
	return out
}

// Inject queues pkt to be returned by a future ReadPacket call, simulating
// a datagram arriving from the network. Like UDP itself, a full queue or a
// closed conn drops the packet.
func (m *MockConn) Inject(pkt *Packet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.packets <- pkt:
	default:
	}
}

func (m *MockConn) ReadPacket() (*Packet, error) {
	pkt, ok := <-m.packets
	if !ok {
		return nil, errClosed
	}
	return pkt, nil
}

func (m *MockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.packets)
	}
	return nil
}

var errClosed = &closedError{}

type closedError struct{}

func (*closedError) Error() string { return "transport: connection closed" }

var _ Conn = (*MockConn)(nil)
