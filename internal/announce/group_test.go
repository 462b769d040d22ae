package announce

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/lanbeacon/mdnsd/internal/clock"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/sched"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// sink collects everything the schedulers transmit for a group under test.
type sink struct {
	mu      sync.Mutex
	probes  int
	records []wire.RR
}

func (s *sink) sendProbe([]wire.Question, []wire.RR) {
	s.mu.Lock()
	s.probes++
	s.mu.Unlock()
}

func (s *sink) sendRecord(rr wire.RR) {
	s.mu.Lock()
	s.records = append(s.records, rr)
	s.mu.Unlock()
}

func (s *sink) sentRecords() []wire.RR {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.RR, len(s.records))
	copy(out, s.records)
	return out
}

func testEntry(t *testing.T) *Entry {
	t.Helper()
	name, err := wire.NameFromPresentation("host.local")
	if err != nil {
		t.Fatalf("NameFromPresentation: %v", err)
	}
	key := records.NewKey("host.local", protocol.ClassIN, protocol.RecordTypeA)
	rec := &records.Record{Key: key, TTL: protocol.TTLHostName, CacheFlush: true,
		Data: wire.ARecord{Addr: netip.MustParseAddr("192.168.1.5")}, CreatedAt: time.Now()}
	return &Entry{Name: name, Record: rec}
}

func newTestGroup(t *testing.T, out *sink, onState StateChangeFunc, onConflict func(*Entry)) (*Group, *clock.Queue) {
	t.Helper()
	q := clock.New()
	t.Cleanup(q.Close)
	probes := sched.NewProbeScheduler(q, out.sendProbe)
	responses := sched.NewResponseScheduler(q, out.sendRecord)
	return NewGroup(q, probes, responses, onState, onConflict), q
}

func TestGroupCommitProbesThenAnnouncesThenEstablishes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping multi-second probe/announce cycle in short mode")
	}

	out := &sink{}
	established := make(chan struct{})
	g, _ := newTestGroup(t, out, func(s GroupState) {
		if s == GroupEstablished {
			close(established)
		}
	}, nil)
	g.Add(testEntry(t))
	g.Commit()

	select {
	case <-established:
	case <-time.After(5 * time.Second):
		t.Fatal("group never reached ESTABLISHED")
	}

	out.mu.Lock()
	probes := out.probes
	out.mu.Unlock()
	if probes != protocol.ProbeCount {
		t.Errorf("expected %d probes before announcing, got %d", protocol.ProbeCount, probes)
	}
	if sent := out.sentRecords(); len(sent) != protocol.AnnounceInitialCount {
		t.Errorf("expected %d announcements, got %d", protocol.AnnounceInitialCount, len(sent))
	}
	for _, e := range g.Entries() {
		if e.State != StateEstablished {
			t.Errorf("entry state = %v, want established", e.State)
		}
	}
}

func TestGroupSetAnnounceCount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping probe/announce cycle in short mode")
	}

	out := &sink{}
	established := make(chan struct{})
	g, _ := newTestGroup(t, out, func(s GroupState) {
		if s == GroupEstablished {
			close(established)
		}
	}, nil)
	g.SetAnnounceCount(1)
	g.Add(testEntry(t))
	g.Commit()

	select {
	case <-established:
	case <-time.After(5 * time.Second):
		t.Fatal("group never reached ESTABLISHED")
	}
	if sent := out.sentRecords(); len(sent) != 1 {
		t.Errorf("expected a single announcement, got %d", len(sent))
	}
}

func TestGroupHandleConflictRaisesCollision(t *testing.T) {
	out := &sink{}
	var stateMu sync.Mutex
	var states []GroupState
	conflicted := make(chan *Entry, 1)

	g, _ := newTestGroup(t, out, func(s GroupState) {
		stateMu.Lock()
		states = append(states, s)
		stateMu.Unlock()
	}, func(e *Entry) { conflicted <- e })

	e := testEntry(t)
	g.Add(e)
	g.Commit()
	g.HandleConflict(e)

	select {
	case got := <-conflicted:
		if got != e {
			t.Error("onConflict delivered a different entry")
		}
	case <-time.After(time.Second):
		t.Fatal("onConflict never invoked")
	}
	if g.State() != GroupCollision {
		t.Errorf("group state = %v, want collision", g.State())
	}
	if e.State != StateCollision {
		t.Errorf("entry state = %v, want collision", e.State)
	}

	// The aborted probe run must not complete: no announcements follow.
	time.Sleep(1200 * time.Millisecond)
	if sent := out.sentRecords(); len(sent) != 0 {
		t.Errorf("expected no announcements after collision, got %d", len(sent))
	}
}

func TestGroupGoodbyeSendsZeroTTL(t *testing.T) {
	out := &sink{}
	g, _ := newTestGroup(t, out, nil, nil)
	g.Add(testEntry(t))
	g.Goodbye()

	sent := out.sentRecords()
	if len(sent) != 1 {
		t.Fatalf("expected 1 goodbye record, got %d", len(sent))
	}
	if sent[0].TTL != protocol.TTLGoodbye {
		t.Errorf("goodbye TTL = %d, want 0", sent[0].TTL)
	}
}

func TestGroupResetReturnsToUncommitted(t *testing.T) {
	out := &sink{}
	g, _ := newTestGroup(t, out, nil, nil)
	g.Add(testEntry(t))
	g.Commit()
	g.Reset()

	if g.State() != GroupUncommitted {
		t.Errorf("state after Reset = %v, want uncommitted", g.State())
	}
	if len(g.Entries()) != 0 {
		t.Error("Reset did not clear entries")
	}
}
