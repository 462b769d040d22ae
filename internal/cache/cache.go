// Package cache implements the per-interface mDNS record cache: bounded
// storage of records learned from the network, with the refresh/expiry
// state machine RFC 6762 §5.2 describes (maintenance queries at 80/85/90/
// 95% of TTL, final expiry at 100%) and the cache-flush-bit replacement
// semantics of §10.2.
package cache

import (
	"net/netip"
	"sync"
	"time"

	"github.com/lanbeacon/mdnsd/internal/clock"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
)

// State is a cache entry's position in the refresh lifecycle.
type State int

const (
	StateValid State = iota
	StateExpiry1
	StateExpiry2
	StateExpiry3
	StateFinal
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateExpiry1:
		return "expiry1"
	case StateExpiry2:
		return "expiry2"
	case StateExpiry3:
		return "expiry3"
	case StateFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Entry is one cached record plus its refresh-FSM bookkeeping; the
// record's Origin identifies the host it was learned from.
type Entry struct {
	Record    *records.Record
	State     State
	ArrivedAt time.Time

	cache  *Cache
	events []*clock.Event
}

// RefreshQueryFunc is invoked when the cache wants a maintenance query sent
// for key (entering EXPIRY1/2/3), so the query scheduler can post it.
type RefreshQueryFunc func(key records.Key)

// ExpireFunc is invoked when an entry reaches FINAL and is removed.
type ExpireFunc func(e *Entry)

// UpdateFunc is invoked whenever Update inserts a new entry or refreshes an
// existing one back to VALID, the hook internal/browse's record browsers
// observe to deliver NEW events.
type UpdateFunc func(e *Entry)

// Cache holds every record learned on one interface.
type Cache struct {
	mu         sync.Mutex
	byKey      map[records.Key][]*Entry
	clock      *clock.Queue
	maxEntries int
	count      int
	onRefresh  RefreshQueryFunc
	onExpire   ExpireFunc
	onUpdate   UpdateFunc
}

// New creates a Cache bounded to maxEntries total records, scheduling its
// refresh/expiry timers on q. onUpdate may be nil if nothing observes
// arrivals.
func New(q *clock.Queue, maxEntries int, onRefresh RefreshQueryFunc, onExpire ExpireFunc, onUpdate UpdateFunc) *Cache {
	return &Cache{
		byKey:      make(map[records.Key][]*Entry),
		clock:      q,
		maxEntries: maxEntries,
		onRefresh:  onRefresh,
		onExpire:   onExpire,
		onUpdate:   onUpdate,
	}
}

// Lookup returns the cached entries under key.
func (c *Cache) Lookup(key records.Key) []*Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.byKey[key]
	out := make([]*Entry, len(list))
	copy(out, list)
	return out
}

// Update applies an observed record to the cache, implementing RFC 6762
// §10.2's cache-flush replacement and §5.2's refresh scheduling:
//
//  1. If the incoming record carries the cache-flush bit, remove every
//     other entry under its key received from the same origin and older
//     than one second. The age cutoff is RFC 6762 §10.2's guard against
//     a flush racing a just-arrived identical record; the origin match
//     keeps one host's flush from evicting a different host's
//     independent record under a shared key.
//  2. A TTL=0 ("goodbye") record schedules the matching entry for removal
//     one second out (§10.1) instead of removing it immediately, so a
//     flurry of goodbye packets doesn't cause flapping.
//  3. Otherwise the entry is inserted or refreshed in place and its
//     refresh timers (80/85/90/95%, ±2% jitter) and final-expiry timer are
//     (re)armed.
func (c *Cache) Update(r *records.Record, now time.Time) {
	c.mu.Lock()

	var refreshed *Entry
	for _, e := range c.byKey[r.Key] {
		if e.Record.Equal(r) {
			e.refresh(r, now)
			refreshed = e
			break
		}
	}

	var flushed []*Entry
	if r.CacheFlush {
		flushed = c.flushStaleLocked(r.Key, refreshed, r.Origin, now)
	}

	if refreshed != nil {
		c.mu.Unlock()
		c.notifyExpired(flushed)
		if c.onUpdate != nil {
			c.onUpdate(refreshed)
		}
		return
	}

	if r.IsGoodbye() {
		// Nothing cached for this identity; a goodbye for an unknown
		// record is a no-op.
		c.mu.Unlock()
		c.notifyExpired(flushed)
		return
	}

	if c.maxEntries > 0 && c.count >= c.maxEntries {
		c.evictOldestLocked()
	}

	e := &Entry{Record: r, State: StateValid, ArrivedAt: now, cache: c}
	c.byKey[r.Key] = append(c.byKey[r.Key], e)
	c.count++
	e.armLocked(now)
	c.mu.Unlock()
	c.notifyExpired(flushed)
	if c.onUpdate != nil {
		c.onUpdate(e)
	}
}

// flushStaleLocked removes entries under key received from origin and
// older than one second (sparing keep, the entry the flushing record
// itself refreshed), called with c.mu held; the removals are returned so
// the caller can deliver onExpire outside the lock.
func (c *Cache) flushStaleLocked(key records.Key, keep *Entry, origin netip.Addr, now time.Time) []*Entry {
	list := c.byKey[key]
	kept := list[:0]
	var removed []*Entry
	for _, e := range list {
		if e == keep || e.Record.Origin != origin || now.Sub(e.ArrivedAt) < time.Second {
			kept = append(kept, e)
			continue
		}
		e.cancelLocked()
		e.State = StateFinal
		c.count--
		removed = append(removed, e)
	}
	c.byKey[key] = kept
	return removed
}

func (c *Cache) notifyExpired(entries []*Entry) {
	if c.onExpire == nil {
		return
	}
	for _, e := range entries {
		c.onExpire(e)
	}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey records.Key
	var oldestEntry *Entry
	var oldestIdx int
	for key, list := range c.byKey {
		for i, e := range list {
			if e.State != StateValid {
				continue
			}
			if oldestEntry == nil || e.ArrivedAt.Before(oldestEntry.ArrivedAt) {
				oldestEntry = e
				oldestKey = key
				oldestIdx = i
			}
		}
	}
	if oldestEntry == nil {
		return
	}
	oldestEntry.cancelLocked()
	list := c.byKey[oldestKey]
	c.byKey[oldestKey] = append(list[:oldestIdx], list[oldestIdx+1:]...)
	c.count--
}

// removeLocked deletes e from its key's list. Called with c.mu held.
func (c *Cache) removeLocked(e *Entry) {
	list := c.byKey[e.Record.Key]
	for i, cand := range list {
		if cand == e {
			c.byKey[e.Record.Key] = append(list[:i], list[i+1:]...)
			c.count--
			return
		}
	}
}

// Walk visits every currently-cached entry. A CNAME payload is delivered
// as-is; following the alias is the caller's job (one hop is enough for
// the resolvers built on top), since the cache rewriting keys silently
// would corrupt observer bookkeeping.
func (c *Cache) Walk(fn func(*Entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, list := range c.byKey {
		for _, e := range list {
			fn(e)
		}
	}
}

// Len returns the total number of cached entries across all keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (e *Entry) cancelLocked() {
	for _, ev := range e.events {
		ev.Cancel()
	}
	e.events = nil
}

// refresh updates an existing entry with a freshly observed identical
// record, resetting it to VALID and rearming its timers.
func (e *Entry) refresh(r *records.Record, now time.Time) {
	e.cancelLocked()
	e.Record = r
	e.ArrivedAt = now
	e.State = StateValid
	e.armLocked(now)
}

// armLocked schedules the four maintenance-query events and the final
// expiry event for a freshly (re)inserted entry. Called with c.cache.mu
// held.
func (e *Entry) armLocked(now time.Time) {
	ttl := time.Duration(e.Record.TTL) * time.Second
	if ttl <= 0 {
		// A zero-TTL record (a goodbye that raced ahead of any prior
		// positive record) expires almost immediately per §10.1.
		e.events = append(e.events, e.cache.clock.After(time.Second, func(time.Time) {
			e.finalize()
		}))
		return
	}

	states := [4]State{StateExpiry1, StateExpiry2, StateExpiry3, StateFinal}
	for i, fraction := range protocol.CacheRefreshFractions {
		at := clock.JitterFraction(time.Duration(float64(ttl)*fraction), protocol.CacheRefreshJitterFraction)
		state := states[i]
		key := e.Record.Key
		ev := e.cache.clock.After(at, func(time.Time) {
			e.enterState(state, key)
		})
		e.events = append(e.events, ev)
	}
	e.events = append(e.events, e.cache.clock.After(ttl, func(time.Time) {
		e.finalize()
	}))
}

func (e *Entry) enterState(state State, key records.Key) {
	e.cache.mu.Lock()
	e.State = state
	cb := e.cache.onRefresh
	e.cache.mu.Unlock()
	if cb != nil {
		cb(key)
	}
}

func (e *Entry) finalize() {
	e.cache.mu.Lock()
	e.State = StateFinal
	e.cache.removeLocked(e)
	cb := e.cache.onExpire
	e.cache.mu.Unlock()
	if cb != nil {
		cb(e)
	}
}
