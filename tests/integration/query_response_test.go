package integration

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/lanbeacon/mdnsd/internal/browse"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/server"
)

// TestServiceResolvedAcrossHosts runs a publisher and an observer on a
// simulated link: the publisher registers a printer, the observer's
// service resolver must deliver FOUND with the SRV, TXT and address all
// correlated (testable property #8's positive half).
func TestServiceResolvedAcrossHosts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping multi-host integration test in short mode")
	}

	pub := newHost(t, "printhost", netip.MustParseAddr("169.254.1.5"), func(cfg *server.Config) {
		cfg.ProbeNum = 1 // keep probing well inside the resolver's 1 s window
	})
	obs := newHost(t, "observer", netip.MustParseAddr("169.254.1.9"), nil)
	pump(t, pub, obs)

	g := pub.srv.NewEntryGroup(nil)
	err := g.AddService("My Printer", "_ipp._tcp", "local", "printhost.local", 631,
		map[string]string{"txtvers": "1"}, server.AllInterfaces, server.AllFamilies)
	if err != nil {
		t.Fatalf("AddService: %v", err)
	}
	if err := g.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	found := make(chan browse.ServiceResolverEvent, 1)
	r := browse.NewServiceResolver(obs.srv, "My Printer", "_ipp._tcp", "local", -1, func(ev browse.ServiceResolverEvent) {
		select {
		case found <- ev:
		default:
		}
	})
	defer r.Close()

	select {
	case ev := <-found:
		if ev.Kind != browse.ServiceFound {
			t.Fatalf("resolver delivered %v, want FOUND", ev.Kind)
		}
		if ev.Port != 631 {
			t.Errorf("resolved port = %d, want 631", ev.Port)
		}
		if v, ok := ev.TXT.Get("txtvers"); !ok || v != "1" {
			t.Errorf("resolved TXT missing txtvers=1: %v", ev.TXT)
		}
		if len(ev.Addrs) == 0 {
			t.Error("resolver reported FOUND with no address")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("service never resolved")
	}
}

// TestResolverTimesOutWithoutService verifies property #8's negative
// half: with nothing publishing the instance, the resolver reports
// FAILURE no later than about a second after creation.
func TestResolverTimesOutWithoutService(t *testing.T) {
	obs := newHost(t, "lonely", netip.MustParseAddr("169.254.2.9"), nil)

	done := make(chan browse.ServiceResolverEvent, 1)
	start := time.Now()
	r := browse.NewServiceResolver(obs.srv, "Ghost", "_ipp._tcp", "local", -1, func(ev browse.ServiceResolverEvent) {
		select {
		case done <- ev:
		default:
		}
	})
	defer r.Close()

	select {
	case ev := <-done:
		if ev.Kind != browse.ServiceFailure {
			t.Fatalf("resolver delivered %v, want FAILURE", ev.Kind)
		}
		if elapsed := time.Since(start); elapsed > 3*time.Second {
			t.Errorf("FAILURE after %v, want about 1 s", elapsed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("resolver never gave up")
	}
}

// TestGoodbyeEvictsPeerCache verifies testable property #6: after a host
// announces a record and then withdraws it with TTL 0, the observer's
// cache drops the entry within about a second.
func TestGoodbyeEvictsPeerCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping multi-host integration test in short mode")
	}

	pub := newHost(t, "transient", netip.MustParseAddr("169.254.3.5"), nil)
	obs := newHost(t, "watcher", netip.MustParseAddr("169.254.3.9"), nil)
	pump(t, pub, obs)

	key := records.NewKey("transient.local", protocol.ClassIN, protocol.RecordTypeA)

	var mu sync.Mutex
	var sawNew, sawRemove bool
	removed := make(chan struct{}, 1)
	b := browse.NewRecordBrowser(obs.srv, key, -1, func(ev browse.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Kind {
		case browse.EventNew:
			sawNew = true
		case browse.EventRemove:
			sawRemove = true
			select {
			case removed <- struct{}{}:
			default:
			}
		}
	})
	defer b.Close()

	// Wait for the publisher's implicit A record to reach the observer.
	deadline := time.Now().Add(10 * time.Second)
	for {
		mu.Lock()
		ok := sawNew
		mu.Unlock()
		if ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("observer never cached the publisher's address record")
		}
		time.Sleep(20 * time.Millisecond)
	}

	// Withdrawing the publisher sends goodbyes for everything it owns.
	pub.srv.Close()

	select {
	case <-removed:
	case <-time.After(5 * time.Second):
		t.Fatal("observer cache kept the record after its goodbye")
	}
	mu.Lock()
	defer mu.Unlock()
	if !sawRemove {
		t.Error("browser never delivered REMOVE")
	}
}
