package browse

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/lanbeacon/mdnsd/internal/cache"
	"github.com/lanbeacon/mdnsd/internal/clock"
	"github.com/lanbeacon/mdnsd/internal/iface"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// fakeEngine is a minimal Engine backed by a real internal/cache.Cache and
// internal/clock.Queue, so RecordBrowser exercises the exact refresh/expiry
// timing the real server produces instead of a hand-rolled substitute.
type fakeEngine struct {
	clockQ *clock.Queue
	cache  *cache.Cache

	mu        sync.Mutex
	observers map[uint64]func(int, iface.Family, *cache.Entry, bool)
	nextID    uint64
	queries   []records.Key
}

var _ Engine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	e := &fakeEngine{
		clockQ:    clock.New(),
		observers: make(map[uint64]func(int, iface.Family, *cache.Entry, bool)),
	}
	e.cache = cache.New(e.clockQ, 0, nil,
		func(entry *cache.Entry) { e.notify(entry, true) },
		func(entry *cache.Entry) { e.notify(entry, false) },
	)
	return e
}

func (e *fakeEngine) Observe(fn func(int, iface.Family, *cache.Entry, bool)) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.observers[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.observers, id)
		e.mu.Unlock()
	}
}

func (e *fakeEngine) PostQuery(key records.Key, fam int) {
	e.mu.Lock()
	e.queries = append(e.queries, key)
	e.mu.Unlock()
}

func (e *fakeEngine) LookupCache(key records.Key, fam int) []*cache.Entry {
	return e.cache.Lookup(key)
}

func (e *fakeEngine) WalkCache(pattern records.Key, fn func(*cache.Entry)) {
	e.cache.Walk(func(entry *cache.Entry) {
		if pattern.Name != "" && entry.Record.Key.Name != pattern.Name {
			return
		}
		if pattern.Type != protocol.RecordTypeANY && entry.Record.Key.Type != pattern.Type {
			return
		}
		fn(entry)
	})
}

func (e *fakeEngine) Clock() *clock.Queue { return e.clockQ }

func (e *fakeEngine) notify(entry *cache.Entry, removed bool) {
	e.mu.Lock()
	obs := make([]func(int, iface.Family, *cache.Entry, bool), 0, len(e.observers))
	for _, fn := range e.observers {
		obs = append(obs, fn)
	}
	e.mu.Unlock()
	for _, fn := range obs {
		fn(0, iface.FamilyIPv4, entry, removed)
	}
}

func (e *fakeEngine) update(r *records.Record) { e.cache.Update(r, time.Now()) }

func (e *fakeEngine) close() { e.clockQ.Close() }

func testKey() records.Key {
	return records.Key{Name: "_http._tcp.local.", Class: protocol.ClassIN, Type: protocol.RecordTypePTR}
}

func testRecord(target string) *records.Record {
	name, err := wire.NameFromPresentation(target)
	if err != nil {
		panic(err)
	}
	return &records.Record{
		Key:       testKey(),
		TTL:       120,
		Data:      wire.PTRRecord{Target: name},
		CreatedAt: time.Now(),
	}
}

func TestRecordBrowserReplaysExistingCacheAsNew(t *testing.T) {
	eng := newFakeEngine()
	defer eng.close()

	eng.update(testRecord("instance1._http._tcp.local."))

	var mu sync.Mutex
	var kinds []EventKind
	b := NewRecordBrowser(eng, testKey(), -1, func(ev Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})
	defer b.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 2 || kinds[0] != EventNew || kinds[1] != EventCacheExhausted {
		t.Fatalf("expected [New Exhausted], got %v", kinds)
	}
}

func TestRecordBrowserPostsInitialQuery(t *testing.T) {
	eng := newFakeEngine()
	defer eng.close()

	b := NewRecordBrowser(eng, testKey(), -1, func(Event) {})
	defer b.Close()

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if len(eng.queries) != 1 || eng.queries[0] != testKey() {
		t.Fatalf("expected one posted query for the browsed key, got %v", eng.queries)
	}
}

func TestRecordBrowserDeliversNewArrivalAndSuppressesDuplicateRefresh(t *testing.T) {
	eng := newFakeEngine()
	defer eng.close()

	var mu sync.Mutex
	var kinds []EventKind
	b := NewRecordBrowser(eng, testKey(), -1, func(ev Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})
	defer b.Close()

	rec := testRecord("instance1._http._tcp.local.")
	eng.update(rec)
	eng.update(rec) // identical record refreshed: no new information

	mu.Lock()
	defer mu.Unlock()
	// [Exhausted (empty replay), New, (duplicate refresh suppressed)]
	if len(kinds) != 2 || kinds[0] != EventCacheExhausted || kinds[1] != EventNew {
		t.Fatalf("expected [Exhausted New], got %v", kinds)
	}
}

func TestRecordBrowserDeliversRemoveOnExpiry(t *testing.T) {
	eng := newFakeEngine()
	defer eng.close()

	var mu sync.Mutex
	var kinds []EventKind
	done := make(chan struct{})
	b := NewRecordBrowser(eng, testKey(), -1, func(ev Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		n := len(kinds)
		mu.Unlock()
		if ev.Kind == EventRemove && n > 0 {
			close(done)
		}
	})
	defer b.Close()

	// TTL=1 so the entry's final-expiry timer fires about a second after
	// arrival, exercising the real cache refresh/expiry schedule rather
	// than a synthetic shortcut.
	name, _ := wire.NameFromPresentation("instance1._http._tcp.local.")
	rec := &records.Record{Key: testKey(), TTL: 1, Data: wire.PTRRecord{Target: name}, CreatedAt: time.Now()}
	eng.update(rec)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("never observed a REMOVE event for the expired entry")
	}

	mu.Lock()
	defer mu.Unlock()
	if kinds[len(kinds)-1] != EventRemove {
		t.Fatalf("expected last event to be Remove, got %v", kinds)
	}
}

func TestRecordBrowserCloseStopsFurtherCallbacks(t *testing.T) {
	eng := newFakeEngine()
	defer eng.close()

	var mu sync.Mutex
	var count int
	b := NewRecordBrowser(eng, testKey(), -1, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	b.Close()
	b.Close() // idempotent

	eng.update(testRecord("instance1._http._tcp.local."))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	// The only replay-time callback (CacheExhausted, since nothing was
	// cached yet) happened before Close; nothing delivered afterward.
	if count != 1 {
		t.Fatalf("expected exactly 1 callback (the initial CacheExhausted), got %d", count)
	}
}

func TestRecordBrowserANYPatternMatchesEveryType(t *testing.T) {
	eng := newFakeEngine()
	defer eng.close()

	aKey := records.Key{Name: "host.local", Class: protocol.ClassIN, Type: protocol.RecordTypeA}
	txtKey := records.Key{Name: "host.local", Class: protocol.ClassIN, Type: protocol.RecordTypeTXT}
	eng.update(&records.Record{Key: aKey, TTL: 120, Data: wire.ARecord{Addr: netip.MustParseAddr("192.168.1.4")}, CreatedAt: time.Now()})
	eng.update(&records.Record{Key: txtKey, TTL: 120, Data: wire.TXTRecord{Strings: wire.NewTXTList("x")}, CreatedAt: time.Now()})

	var mu sync.Mutex
	var news int
	pattern := records.Key{Name: "host.local", Class: protocol.ClassIN, Type: protocol.RecordTypeANY}
	b := NewRecordBrowser(eng, pattern, -1, func(ev Event) {
		if ev.Kind != EventNew {
			return
		}
		mu.Lock()
		news++
		mu.Unlock()
	})
	defer b.Close()

	mu.Lock()
	defer mu.Unlock()
	if news != 2 {
		t.Fatalf("ANY pattern replayed %d entries, want 2", news)
	}
}

func TestRecordBrowserRepostsQueryOnBackoff(t *testing.T) {
	eng := newFakeEngine()
	defer eng.close()

	b := NewRecordBrowser(eng, testKey(), -1, func(Event) {})
	defer b.Close()

	// protocol.BrowseQueryInitialInterval is 1 second; wait past it to
	// observe the first backoff repost beyond the initial query.
	time.Sleep(protocol.BrowseQueryInitialInterval + 200*time.Millisecond)

	eng.mu.Lock()
	n := len(eng.queries)
	eng.mu.Unlock()
	if n < 2 {
		t.Fatalf("expected at least one repost beyond the initial query, got %d total", n)
	}
}
