package announce

import (
	"sync"
	"time"

	"github.com/lanbeacon/mdnsd/internal/clock"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/sched"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// StateChangeFunc is invoked whenever a Group transitions state.
type StateChangeFunc func(GroupState)

// Group is the set of records registered together and probed/announced as
// a unit on one link.
type Group struct {
	mu      sync.Mutex
	entries []*Entry
	state   GroupState

	probeScheduler    *sched.ProbeScheduler
	responseScheduler *sched.ResponseScheduler
	clockQ            *clock.Queue

	onStateChange StateChangeFunc
	onConflict    func(e *Entry)

	announceCount int

	run *sched.Run
}

// SetAnnounceCount overrides how many unsolicited announcements Announce
// sends before marking the group ESTABLISHED. Values below one fall back
// to the RFC 6762 §8.3 default of two.
func (g *Group) SetAnnounceCount(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n < 1 {
		n = protocol.AnnounceInitialCount
	}
	g.announceCount = n
}

// NewGroup creates an uncommitted group. Add entries with Add before
// calling Commit.
func NewGroup(q *clock.Queue, probes *sched.ProbeScheduler, responses *sched.ResponseScheduler, onStateChange StateChangeFunc, onConflict func(*Entry)) *Group {
	return &Group{
		clockQ:            q,
		probeScheduler:    probes,
		responseScheduler: responses,
		onStateChange:     onStateChange,
		onConflict:        onConflict,
		announceCount:     protocol.AnnounceInitialCount,
	}
}

// Add registers e as part of this group. Must be called before Commit.
func (g *Group) Add(e *Entry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e.State = StateProbing
	g.entries = append(g.entries, e)
}

// State returns the group's current lifecycle state.
func (g *Group) State() GroupState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Entries returns a snapshot of the group's entries.
func (g *Group) Entries() []*Entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Entry, len(g.entries))
	copy(out, g.entries)
	return out
}

func (g *Group) setState(s GroupState) {
	g.mu.Lock()
	g.state = s
	cb := g.onStateChange
	g.mu.Unlock()
	// Unlocked before invoking the callback: a caller reacting to the
	// state change (e.g. committing a replacement group) may need to call
	// back into this group.
	if cb != nil {
		cb(s)
	}
}

// Commit starts probing every entry in the group, per RFC 6762 §8.1.
// Groups holding only shared records with nothing to defend (e.g. the
// _services._dns-sd._udp PTR) should skip straight to Announce instead.
func (g *Group) Commit() {
	g.setState(GroupRegistering)

	g.mu.Lock()
	entries := append([]*Entry(nil), g.entries...)
	g.mu.Unlock()

	questions := make([]wire.Question, len(entries))
	proposed := make([]wire.RR, len(entries))
	for i, e := range entries {
		questions[i] = e.probeQuestion()
		proposed[i] = e.RR()
	}

	g.run = g.probeScheduler.Start(questions, proposed, func(int) {
		g.mu.Lock()
		for _, e := range entries {
			e.State = StateProbing
		}
		g.mu.Unlock()
	}, func() {
		g.Announce()
	})
}

// HandleConflict aborts any in-flight probe run, moves the group into
// the COLLISION state and calls the group's onConflict hook, which
// decides whether to retry under an alternative name (internal/server
// renames the host via internal/names.AlternativeHostName for its
// implicit records and leaves user entry groups for their owner to rename).
func (g *Group) HandleConflict(e *Entry) {
	if g.run != nil {
		g.run.Cancel()
	}
	g.mu.Lock()
	e.State = StateCollision
	g.mu.Unlock()
	g.setState(GroupCollision)
	if g.onConflict != nil {
		g.onConflict(e)
	}
}

// Announce sends the RFC 6762 §8.3 initial announcement burst
// (announceCount multicast responses, two by default, one second apart;
// each record keeps its own cache-flush bit) and then marks the group
// ESTABLISHED.
func (g *Group) Announce() {
	g.mu.Lock()
	for _, e := range g.entries {
		e.State = StateAnnouncing
	}
	entries := append([]*Entry(nil), g.entries...)
	g.mu.Unlock()
	g.setState(GroupRegistering)

	g.scheduleAnnouncement(entries, 0, protocol.AnnounceInitialDelay)
}

func (g *Group) scheduleAnnouncement(entries []*Entry, sent int, nextDelay time.Duration) {
	g.mu.Lock()
	count := g.announceCount
	g.mu.Unlock()

	send := func(time.Time) {
		for _, e := range entries {
			g.responseScheduler.ForceFlush(e.RR(), time.Now())
		}
		sent++
		if sent >= count {
			g.mu.Lock()
			for _, e := range g.entries {
				e.State = StateEstablished
			}
			g.mu.Unlock()
			g.setState(GroupEstablished)
			return
		}
		// RFC 6762 §8.3: the announcements of this burst are a fixed
		// nextDelay (1s) apart; this package has no later re-announcement
		// path with exponential backoff.
		g.scheduleAnnouncement(entries, sent, nextDelay)
	}
	if sent == 0 {
		// The first announcement goes out immediately on entering the
		// ANNOUNCING state.
		send(time.Now())
		return
	}
	g.clockQ.After(nextDelay, send)
}

// Goodbye sends a TTL=0 removal for every entry in the group (RFC 6762
// §10.1), used when unregistering or shutting down.
func (g *Group) Goodbye() {
	g.mu.Lock()
	entries := append([]*Entry(nil), g.entries...)
	g.mu.Unlock()

	for _, e := range entries {
		rr := e.RR()
		rr.TTL = protocol.TTLGoodbye
		g.responseScheduler.ForceFlush(rr, time.Now())
	}
}

// Reset clears the group back to UNCOMMITTED so it can be reused for a
// fresh Commit.
func (g *Group) Reset() {
	if g.run != nil {
		g.run.Cancel()
		g.run = nil
	}
	g.mu.Lock()
	g.entries = nil
	g.mu.Unlock()
	g.setState(GroupUncommitted)
}
