// Package browse implements the subscription layer: a record browser
// built directly on internal/server's cache observer hook and query
// scheduler, plus the domain/service-type/service browsers and the
// service/host-name/address resolvers built on top of it. A browser is a
// long-lived, callback-driven subscription: it replays the cache, then
// re-posts its query at 1s/2s/4s/.../60m backoff until the caller
// cancels.
package browse

import (
	"sync"
	"time"

	"github.com/lanbeacon/mdnsd/internal/cache"
	"github.com/lanbeacon/mdnsd/internal/clock"
	"github.com/lanbeacon/mdnsd/internal/iface"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/server"
)

// EventKind identifies what a browser callback is reporting.
type EventKind int

const (
	// EventNew reports a cache entry the browser has not previously
	// delivered, whether seen at subscription time or learned afterward.
	EventNew EventKind = iota
	// EventRemove reports a cache entry's removal (goodbye or expiry).
	EventRemove
	// EventCacheExhausted reports that the browser has replayed every
	// entry the cache held at subscription time; more NEW/REMOVE events
	// may still follow as the network changes.
	EventCacheExhausted
)

// Event is delivered to a RecordBrowser (and, wrapped, to the browsers
// built on it) for each matching cache transition.
type Event struct {
	Kind      EventKind
	Entry     *cache.Entry // nil for EventCacheExhausted
	LinkIndex int
	Family    iface.Family
}

// Engine is the seam RecordBrowser is built on, satisfied by
// *internal/server.Server. Expressed as an interface so tests can supply a
// lighter fake.
type Engine interface {
	Observe(fn func(index int, fam iface.Family, e *cache.Entry, removed bool)) (unobserve func())
	PostQuery(key records.Key, fam int)
	LookupCache(key records.Key, fam int) []*cache.Entry
	WalkCache(pattern records.Key, fn func(*cache.Entry))
	Clock() *clock.Queue
}

var _ Engine = (*server.Server)(nil)

// RecordBrowser subscribes to every cache entry matching one (name, class,
// type) key, replaying existing matches and then observing further
// arrivals and removals.
type RecordBrowser struct {
	eng Engine
	key records.Key
	fam int
	cb  func(Event)

	mu        sync.Mutex
	closed    bool
	unobserve func()
	repost    *clock.Event
	seen      map[*cache.Entry]bool
}

// NewRecordBrowser creates and starts a browser for key on fam (iface.Family
// cast to int, or -1 for both families), delivering events to cb. cb may be
// invoked synchronously from within this call (for the initial replay) and
// from arbitrary engine goroutines afterward; it must not block.
func NewRecordBrowser(eng Engine, key records.Key, fam int, cb func(Event)) *RecordBrowser {
	b := &RecordBrowser{
		eng:  eng,
		key:  key,
		fam:  fam,
		cb:   cb,
		seen: make(map[*cache.Entry]bool),
	}

	if key.Type == protocol.RecordTypeANY {
		// An ANY-typed key is a pattern subscription: replay across every
		// concrete type under the name.
		eng.WalkCache(key, func(e *cache.Entry) {
			b.markSeen(e)
			cb(Event{Kind: EventNew, Entry: e})
		})
	} else {
		for _, e := range eng.LookupCache(key, fam) {
			b.markSeen(e)
			cb(Event{Kind: EventNew, Entry: e})
		}
	}
	cb(Event{Kind: EventCacheExhausted})

	b.unobserve = eng.Observe(func(index int, famOf iface.Family, e *cache.Entry, removed bool) {
		b.handle(index, famOf, e, removed)
	})

	eng.PostQuery(key, fam)
	b.scheduleRepost(protocol.BrowseQueryInitialInterval)

	return b
}

func (b *RecordBrowser) matches(e *cache.Entry, famOf iface.Family) bool {
	if b.fam >= 0 && int(famOf) != b.fam {
		return false
	}
	if b.key.Type == protocol.RecordTypeANY {
		return e.Record.Key.Name == b.key.Name && e.Record.Key.Class == b.key.Class
	}
	return e.Record.Key == b.key
}

func (b *RecordBrowser) markSeen(e *cache.Entry) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen[e] {
		return false
	}
	b.seen[e] = true
	return true
}

func (b *RecordBrowser) forget(e *cache.Entry) {
	b.mu.Lock()
	delete(b.seen, e)
	b.mu.Unlock()
}

func (b *RecordBrowser) handle(index int, famOf iface.Family, e *cache.Entry, removed bool) {
	if !b.matches(e, famOf) {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if removed {
		b.forget(e)
		b.cb(Event{Kind: EventRemove, Entry: e, LinkIndex: index, Family: famOf})
		return
	}
	if !b.markSeen(e) {
		// A refresh of an entry already delivered: no new information for
		// the subscriber.
		return
	}
	b.cb(Event{Kind: EventNew, Entry: e, LinkIndex: index, Family: famOf})
}

// scheduleRepost arms the next backoff re-query, doubling the interval each
// time up to protocol.BrowseQueryMaxInterval.
func (b *RecordBrowser) scheduleRepost(interval time.Duration) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	ev := b.eng.Clock().After(interval, func(time.Time) {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
		b.eng.PostQuery(b.key, b.fam)
		next := interval * 2
		if next > protocol.BrowseQueryMaxInterval {
			next = protocol.BrowseQueryMaxInterval
		}
		b.scheduleRepost(next)
	})
	b.repost = ev
	b.mu.Unlock()
}

// Close cancels the browser: no further callback is delivered on its
// behalf, synchronously, even if called re-entrantly from inside cb.
func (b *RecordBrowser) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	unobserve := b.unobserve
	repost := b.repost
	b.mu.Unlock()

	if unobserve != nil {
		unobserve()
	}
	if repost != nil {
		repost.Cancel()
	}
}
