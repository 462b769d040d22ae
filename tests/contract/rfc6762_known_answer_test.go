package contract

import (
	"net/netip"
	"testing"
	"time"

	"github.com/lanbeacon/mdnsd/internal/clock"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/sched"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

func ptrRR(t *testing.T, owner, target string, ttl uint32) wire.RR {
	t.Helper()
	o, err := wire.NameFromPresentation(owner)
	if err != nil {
		t.Fatalf("NameFromPresentation(%q): %v", owner, err)
	}
	tg, err := wire.NameFromPresentation(target)
	if err != nil {
		t.Fatalf("NameFromPresentation(%q): %v", target, err)
	}
	return wire.RR{Name: o, Type: protocol.RecordTypePTR, Class: protocol.ClassIN, TTL: ttl,
		Data: wire.PTRRecord{Target: tg}}
}

// TestRFC6762_KnownAnswer_SuppressesResponse verifies RFC 6762 §7.1: a
// querier that lists a record in its known-answer section with at least
// half the original TTL remaining must not receive that record again, for
// the 700 ms suppression window.
func TestRFC6762_KnownAnswer_SuppressesResponse(t *testing.T) {
	q := clock.New()
	defer q.Close()

	sent := make(chan wire.RR, 4)
	s := sched.NewResponseScheduler(q, func(rr wire.RR) { sent <- rr })

	rr := ptrRR(t, "_printer._tcp.local", "Printer._printer._tcp.local", protocol.TTLOther)

	now := time.Now()
	s.SuppressKnownAnswer(rr, now)
	s.Post(rr, now)

	select {
	case <-sent:
		t.Fatal("known-answer-suppressed record was sent anyway")
	case <-time.After(300 * time.Millisecond):
	}
}

// TestRFC6762_KnownAnswer_CancelsPendingResponse verifies the other
// arrival order: a response already scheduled when the known answer comes
// in is withdrawn rather than sent.
func TestRFC6762_KnownAnswer_CancelsPendingResponse(t *testing.T) {
	q := clock.New()
	defer q.Close()

	sent := make(chan wire.RR, 4)
	s := sched.NewResponseScheduler(q, func(rr wire.RR) { sent <- rr })

	rr := ptrRR(t, "_printer._tcp.local", "Printer._printer._tcp.local", protocol.TTLOther)
	now := time.Now()
	s.Post(rr, now)
	s.SuppressKnownAnswer(rr, now)

	select {
	case <-sent:
		t.Fatal("pending response survived a known-answer observation")
	case <-time.After(300 * time.Millisecond):
	}
}

// TestRFC6762_KnownAnswer_MuchLargerTTLStillSent verifies the escape
// hatch: if our record's TTL is much larger than what the querier holds,
// the answer is sent so the querier's cache gets refreshed.
func TestRFC6762_KnownAnswer_MuchLargerTTLStillSent(t *testing.T) {
	q := clock.New()
	defer q.Close()

	sent := make(chan wire.RR, 4)
	s := sched.NewResponseScheduler(q, func(rr wire.RR) { sent <- rr })

	stale := ptrRR(t, "_printer._tcp.local", "Printer._printer._tcp.local", 60)
	fresh := stale
	fresh.TTL = protocol.TTLOther // far beyond 2x the known answer's TTL

	now := time.Now()
	s.SuppressKnownAnswer(stale, now)
	s.Post(fresh, now)

	select {
	case got := <-sent:
		if got.TTL != protocol.TTLOther {
			t.Errorf("sent TTL = %d, want %d", got.TTL, protocol.TTLOther)
		}
	case <-time.After(time.Second):
		t.Fatal("record with much larger TTL was wrongly suppressed")
	}
}

// TestRFC6762_DuplicateAnswer_Suppression verifies RFC 6762 §6: seeing
// another responder multicast the same answer cancels our own pending
// copy (testable property #4's 500 ms single-response window).
func TestRFC6762_DuplicateAnswer_Suppression(t *testing.T) {
	q := clock.New()
	defer q.Close()

	sent := make(chan wire.RR, 4)
	s := sched.NewResponseScheduler(q, func(rr wire.RR) { sent <- rr })

	addr, _ := wire.NameFromPresentation("host.local")
	rr := wire.RR{Name: addr, Type: protocol.RecordTypeA, Class: protocol.ClassIN, TTL: protocol.TTLHostName,
		Data: wire.ARecord{Addr: netip.MustParseAddr("192.168.1.40")}}

	now := time.Now()
	s.Post(rr, now)
	s.ObserveIncomingAnswer(rr, now)

	select {
	case <-sent:
		t.Fatal("duplicate answer sent despite a peer answering first")
	case <-time.After(300 * time.Millisecond):
	}

	// And within the history window a re-post stays quiet too.
	s.Post(rr, time.Now())
	select {
	case <-sent:
		t.Fatal("re-post within the 500 ms history window was sent")
	case <-time.After(200 * time.Millisecond):
	}
}
