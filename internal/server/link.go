package server

import (
	"net"
	"sync"

	"github.com/lanbeacon/mdnsd/internal/announce"
	"github.com/lanbeacon/mdnsd/internal/cache"
	"github.com/lanbeacon/mdnsd/internal/iface"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/sched"
	"github.com/lanbeacon/mdnsd/internal/security"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// linkKey identifies one (link, address family) pair.
type linkKey struct {
	index  int
	family iface.Family
}

// link is the per-interface engine instance: its own cache and the three
// schedulers, plus the implicit host records (address/reverse-PTR/HINFO/
// meta-PTR) this responder publishes on it.
type link struct {
	mu sync.Mutex

	key   linkKey
	iface *iface.Interface

	cache     *cache.Cache
	queryS    *sched.QueryScheduler
	responseS *sched.ResponseScheduler
	probeS    *sched.ProbeScheduler

	rateLimiter  *security.RateLimiter
	sourceFilter *security.SourceFilter

	// implicit holds the group publishing this link's host A/AAAA, reverse
	// PTR and HINFO records, torn down and rebuilt whenever the link's
	// address set changes.
	implicit *announce.Group

	// groups tracks every user-committed announce.Group running on this
	// link, so the link can be told to send goodbyes when it goes down.
	groups map[*announce.Group]bool
}

func (l *link) netInterface() *net.Interface {
	return &net.Interface{Index: l.iface.Index, Name: l.iface.Name, MTU: l.iface.MTU, Flags: l.iface.Flags}
}

func (l *link) addGroup(g *announce.Group) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.groups == nil {
		l.groups = make(map[*announce.Group]bool)
	}
	l.groups[g] = true
}

func (l *link) removeGroup(g *announce.Group) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.groups, g)
}

// goodbyeAll sends a withdrawal for every entry on this link, used when it
// stops being relevant (RFC 6762 §8.4's "wake up to goodbye" obligation
// applied to link-down rather than shutdown).
func (l *link) goodbyeAll() {
	l.mu.Lock()
	groups := make([]*announce.Group, 0, len(l.groups))
	for g := range l.groups {
		groups = append(groups, g)
	}
	implicit := l.implicit
	l.mu.Unlock()

	if implicit != nil {
		implicit.Goodbye()
	}
	for _, g := range groups {
		g.Goodbye()
	}
}

// groupsSnapshot returns every group running on this link: the implicit
// host-record group (if built yet) plus every user-committed group.
func (l *link) groupsSnapshot() []*announce.Group {
	l.mu.Lock()
	defer l.mu.Unlock()
	groups := make([]*announce.Group, 0, len(l.groups)+1)
	if l.implicit != nil {
		groups = append(groups, l.implicit)
	}
	for g := range l.groups {
		groups = append(groups, g)
	}
	return groups
}

// matchLocal walks every entry published on this link (implicit and
// user-committed) looking for ones matching q's key or, for an ANY-type
// question, every entry under q's name (RFC 6762 §6).
func (l *link) matchLocal(q wire.Question) []*announce.Entry {
	groups := l.groupsSnapshot()

	var out []*announce.Entry
	for _, g := range groups {
		for _, e := range g.Entries() {
			if e.State != announce.StateAnnouncing && e.State != announce.StateEstablished {
				continue
			}
			if !e.Name.EqualFold(q.Name) {
				continue
			}
			if q.Type != protocol.RecordTypeANY && e.Record.Key.Type != q.Type {
				continue
			}
			out = append(out, e)
		}
	}
	return out
}
