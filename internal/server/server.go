// Package server ties the per-interface record engine (internal/cache,
// internal/sched, internal/announce), the interface/address monitor
// (internal/iface) and packet I/O (internal/transport) together into one
// process-wide object that owns every interface's engine instance,
// dispatches inbound packets, and exposes the entry-group/browser
// operations the public responder/querier facades wrap.
package server

import (
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/lanbeacon/mdnsd/internal/announce"
	"github.com/lanbeacon/mdnsd/internal/cache"
	"github.com/lanbeacon/mdnsd/internal/clock"
	"github.com/lanbeacon/mdnsd/internal/errors"
	"github.com/lanbeacon/mdnsd/internal/eventloop"
	"github.com/lanbeacon/mdnsd/internal/iface"
	"github.com/lanbeacon/mdnsd/internal/log"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/sched"
	"github.com/lanbeacon/mdnsd/internal/security"
	"github.com/lanbeacon/mdnsd/internal/transport"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// Server is the responder/querier engine for one host: it owns one
// Conn per enabled address family, one link (cache+schedulers+
// announcements) per relevant (interface,family) pair, and the entry
// groups and subscriptions running on top of them.
type Server struct {
	cfg    Config
	logger log.Logger

	clockQ *clock.Queue
	loop   *eventloop.Loop

	monitor iface.Monitor

	connIPv4 transport.Conn
	connIPv6 transport.Conn

	mu    sync.Mutex
	links map[linkKey]*link

	// observers are invoked for every cache.Entry transition on any link,
	// the hook internal/browse's RecordBrowser is built on. Keyed by an
	// incrementing id so Unobserve can remove exactly one registration.
	observersMu sync.Mutex
	observers   map[uint64]func(linkIndex int, fam iface.Family, e *cache.Entry, removed bool)
	nextObsID   uint64

	closed bool
}

// New creates a Server from cfg but does not yet open sockets or start
// dispatch; call Start to do that. Splitting construction from Start
// lets tests build a Server around transport.MockConn instead of a real
// socket (see server_test.go).
func New(cfg Config) *Server {
	return &Server{
		cfg:       cfg,
		logger:    cfg.logger(),
		clockQ:    clock.New(),
		links:     make(map[linkKey]*link),
		observers: make(map[uint64]func(int, iface.Family, *cache.Entry, bool)),
	}
}

// Start opens the multicast sockets for every enabled family, begins
// watching interfaces, and starts the dispatch loop. It returns
// errors.NoNetwork if neither family is enabled.
func (s *Server) Start() error {
	if !s.cfg.UseIPv4 && !s.cfg.UseIPv6 {
		return errors.NoNetwork()
	}

	s.loop = eventloop.New(s.clockQ)

	if s.cfg.UseIPv4 {
		c, err := transport.Listen(transport.FamilyIPv4)
		if err != nil {
			return err
		}
		s.connIPv4 = c
		s.watchConn(c, iface.FamilyIPv4)
	}
	if s.cfg.UseIPv6 {
		c, err := transport.Listen(transport.FamilyIPv6)
		if err != nil {
			return err
		}
		s.connIPv6 = c
		s.watchConn(c, iface.FamilyIPv6)
	}

	mon, err := iface.NewMonitor()
	if err != nil {
		return err
	}
	s.monitor = mon
	s.watchMonitor(mon)

	s.reconcile()
	return nil
}

// StartWithConns wires the server to caller-supplied Conns (used by
// tests with transport.MockConn) instead of opening real sockets.
func (s *Server) StartWithConns(v4, v6 transport.Conn, mon iface.Monitor) error {
	s.loop = eventloop.New(s.clockQ)
	s.connIPv4, s.connIPv6 = v4, v6
	if v4 != nil {
		s.watchConn(v4, iface.FamilyIPv4)
	}
	if v6 != nil {
		s.watchConn(v6, iface.FamilyIPv6)
	}
	s.monitor = mon
	if mon != nil {
		s.watchMonitor(mon)
	}
	s.reconcile()
	return nil
}

func (s *Server) watchConn(c transport.Conn, fam iface.Family) {
	lg := log.WithPrefix(s.logger, "["+fam.String()+"] ")
	s.loop.AddWatch(
		func() (any, error) { return c.ReadPacket() },
		func(item any) { s.handlePacket(item.(*transport.Packet), fam) },
		func(err error) { lg.Warnf("transport read error: %v", err) },
	)
}

func (s *Server) watchMonitor(mon iface.Monitor) {
	s.loop.AddWatch(
		func() (any, error) {
			ev, ok := <-mon.Events()
			if !ok {
				return nil, errMonitorClosed
			}
			return ev, nil
		},
		func(item any) { s.handleLinkEvent(item.(iface.Event)) },
		func(err error) { s.logger.Warnf("iface monitor: %v", err) },
	)
}

type monitorClosedError struct{}

func (monitorClosedError) Error() string { return "server: interface monitor closed" }

var errMonitorClosed = monitorClosedError{}

// Close tears down every link (sending goodbyes), stops watching for
// interface changes, and closes the sockets.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	links := make([]*link, 0, len(s.links))
	for _, l := range s.links {
		links = append(links, l)
	}
	s.mu.Unlock()

	for _, l := range links {
		l.goodbyeAll()
	}
	// RFC 6762 §10.1 asks goodbyes to actually reach the wire before the
	// process that sent them goes away.
	time.Sleep(50 * time.Millisecond)

	// Close the blocking read sources first so their watch goroutines
	// unblock and exit; only then wait for them via loop.Close.
	if s.monitor != nil {
		_ = s.monitor.Close()
	}
	if s.connIPv4 != nil {
		_ = s.connIPv4.Close()
	}
	if s.connIPv6 != nil {
		_ = s.connIPv6.Close()
	}
	if s.loop != nil {
		s.loop.Close()
	}
	s.clockQ.Close()
}

// reconcile snapshots the host's interfaces (or the pinned Config set)
// and creates/destroys links to match, the startup-time counterpart of
// handleLinkEvent.
func (s *Server) reconcile() {
	if len(s.cfg.Interfaces) > 0 {
		for _, ifc := range s.cfg.Interfaces {
			s.syncLink(ifc)
		}
		return
	}
	snap, err := iface.Snapshot()
	if err != nil {
		s.logger.Errorf("interface snapshot: %v", err)
		return
	}
	for _, ifc := range snap {
		s.syncLink(ifc)
	}
}

func (s *Server) handleLinkEvent(ev iface.Event) {
	if len(s.cfg.Interfaces) > 0 {
		return
	}
	snap, err := iface.Snapshot()
	if err != nil {
		return
	}
	for _, ifc := range snap {
		if ifc.Index == ev.Index {
			s.syncLink(ifc)
		}
	}
	if ev.Kind == iface.EventLinkDown {
		s.dropLink(ev.Index, iface.FamilyIPv4)
		s.dropLink(ev.Index, iface.FamilyIPv6)
	}
}

// syncLink brings the link for ifc.Index/ifc.Family in line with ifc's
// current relevance: creating it (joining the multicast group, publishing
// implicit records) if newly relevant, tearing it down if no longer so.
func (s *Server) syncLink(ifc *iface.Interface) {
	if (ifc.Family == iface.FamilyIPv4 && !s.cfg.UseIPv4) ||
		(ifc.Family == iface.FamilyIPv6 && !s.cfg.UseIPv6) {
		return
	}
	key := linkKey{index: ifc.Index, family: ifc.Family}

	s.mu.Lock()
	l, exists := s.links[key]
	s.mu.Unlock()

	relevant := ifc.Relevant()
	if s.cfg.UseIfRunning && relevant && ifc.Flags&net.FlagRunning == 0 {
		relevant = false
	}

	if !relevant {
		if exists {
			s.dropLink(ifc.Index, ifc.Family)
		}
		return
	}

	if exists {
		l.mu.Lock()
		l.iface = ifc
		l.mu.Unlock()
		return
	}

	s.createLink(ifc)
}

func (s *Server) createLink(ifc *iface.Interface) {
	conn := s.connFor(ifc.Family)
	if conn == nil {
		return
	}
	if err := conn.JoinGroup(&net.Interface{Index: ifc.Index, Name: ifc.Name, MTU: ifc.MTU, Flags: ifc.Flags}); err != nil {
		s.logger.Warnf("join multicast group on %s: %v", ifc.Name, err)
		return
	}

	key := linkKey{index: ifc.Index, family: ifc.Family}
	l := &link{key: key, iface: ifc, groups: make(map[*announce.Group]bool)}

	l.cache = cache.New(s.clockQ, s.cfg.CacheEntriesMax,
		func(k records.Key) { s.refreshKey(l, k) },
		func(e *cache.Entry) { s.notifyObservers(l, e, true) },
		func(e *cache.Entry) { s.notifyObservers(l, e, false) },
	)
	l.queryS = sched.NewQueryScheduler(s.clockQ, func(q wire.Question, known []wire.RR) { s.sendQuery(l, q, known) })
	l.responseS = sched.NewResponseScheduler(s.clockQ, func(rr wire.RR) { s.sendRecord(l, rr, netip.AddrPort{}, 0) })
	l.probeS = sched.NewProbeScheduler(s.clockQ, func(qs []wire.Question, proposed []wire.RR) { s.sendProbe(l, qs, proposed) })
	l.probeS.SetCount(s.cfg.ProbeNum)

	ifiNet := net.Interface{Index: ifc.Index, Name: ifc.Name, MTU: ifc.MTU, Flags: ifc.Flags}
	if sf, err := security.NewSourceFilter(ifiNet); err == nil {
		l.sourceFilter = sf
	}
	l.rateLimiter = security.NewRateLimiter(
		nonZero(s.cfg.RateLimitThreshold, 100),
		time.Duration(nonZero(s.cfg.RateLimitCooldownMS, 60_000))*time.Millisecond,
		nonZero(s.cfg.RateLimitMaxEntries, 10_000),
	)

	s.mu.Lock()
	s.links[key] = l
	s.mu.Unlock()

	s.publishImplicit(l)
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (s *Server) dropLink(index int, fam iface.Family) {
	key := linkKey{index: index, family: fam}
	s.mu.Lock()
	l, ok := s.links[key]
	if ok {
		delete(s.links, key)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	l.goodbyeAll()
	if conn := s.connFor(fam); conn != nil {
		_ = conn.LeaveGroup(l.netInterface())
	}
}

func (s *Server) connFor(fam iface.Family) transport.Conn {
	if fam == iface.FamilyIPv6 {
		return s.connIPv6
	}
	return s.connIPv4
}

func (s *Server) linkFor(index int, fam iface.Family) *link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links[linkKey{index: index, family: fam}]
}

func (s *Server) allLinks() []*link {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*link, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l)
	}
	return out
}

// multicastDest returns the mDNS multicast group address for fam, scoped
// to ifaceName for IPv6's link-local destination.
func multicastDest(fam iface.Family, ifaceName string) netip.AddrPort {
	if fam == iface.FamilyIPv6 {
		addr := netip.MustParseAddr(protocol.MulticastAddrIPv6).WithZone(ifaceName)
		return netip.AddrPortFrom(addr, protocol.Port)
	}
	return netip.AddrPortFrom(netip.MustParseAddr(protocol.MulticastAddrIPv4), protocol.Port)
}

func (s *Server) sendQuery(l *link, q wire.Question, known []wire.RR) {
	msg := &wire.Message{
		Header:    wire.Header{ID: 0},
		Questions: []wire.Question{q},
		Answers:   known,
	}
	s.transmit(l, msg, netip.AddrPort{})
}

// sendRecord multicasts rr (querier unset) or unicasts it back to a
// legacy/QU querier, echoing id so a one-shot resolver can match the
// reply to its query; multicast responses carry ID 0 (RFC 6762 §18.1).
func (s *Server) sendRecord(l *link, rr wire.RR, querier netip.AddrPort, id uint16) {
	msg := &wire.Message{
		Header:  wire.Header{ID: id, Flags: protocol.FlagQR | protocol.FlagAA},
		Answers: []wire.RR{rr},
	}
	s.withAuxiliary(l, msg)
	s.transmit(l, msg, querier)
}

func (s *Server) sendProbe(l *link, qs []wire.Question, proposed []wire.RR) {
	msg := &wire.Message{
		Header:      wire.Header{},
		Questions:   qs,
		Authorities: proposed,
	}
	s.transmit(l, msg, netip.AddrPort{})
}

// withAuxiliary appends the dependent records RFC 6763 §12.1/§12.2
// recommend alongside a PTR or SRV answer: an SRV's target A/AAAA, and a
// PTR's target SRV+TXT, so a resolver rarely needs a second round trip.
func (s *Server) withAuxiliary(l *link, msg *wire.Message) {
	for _, ans := range msg.Answers {
		switch data := ans.Data.(type) {
		case wire.SRVRecord:
			for _, e := range l.matchLocal(wire.Question{Name: data.Target, Type: protocol.RecordTypeANY}) {
				if e.Record.Key.Type == protocol.RecordTypeA || e.Record.Key.Type == protocol.RecordTypeAAAA {
					msg.Additionals = append(msg.Additionals, e.RR())
				}
			}
		case wire.PTRRecord:
			for _, e := range l.matchLocal(wire.Question{Name: data.Target, Type: protocol.RecordTypeANY}) {
				if e.Record.Key.Type == protocol.RecordTypeSRV || e.Record.Key.Type == protocol.RecordTypeTXT {
					msg.Additionals = append(msg.Additionals, e.RR())
				}
			}
		}
	}
}

// transmit encodes msg and sends it to querier (if set) or the mDNS
// multicast group otherwise.
func (s *Server) transmit(l *link, msg *wire.Message, querier netip.AddrPort) {
	data, err := wire.Encode(msg)
	if err != nil {
		s.logger.Warnf("encode outgoing message: %v", err)
		return
	}
	if len(data) > protocol.MaxMessageSize {
		s.logger.Warnf("outgoing message of %d bytes exceeds %d byte ceiling, dropping", len(data), protocol.MaxMessageSize)
		return
	}

	conn := s.connFor(l.key.family)
	if conn == nil {
		return
	}
	dst := querier
	if !dst.IsValid() {
		dst = multicastDest(l.key.family, l.iface.Name)
	}
	if err := conn.SendTo(l.key.index, data, dst); err != nil {
		s.logger.Warnf("send on %s: %v", l.iface.Name, err)
	}
}

// refreshKey is the cache's RefreshQueryFunc: it posts an immediate
// maintenance query for key through the link's query scheduler (RFC 6762
// §5.2).
func (s *Server) refreshKey(l *link, key records.Key) {
	name, err := wire.NameFromPresentation(key.Name)
	if err != nil {
		return
	}
	l.queryS.Post(wire.Question{Name: name, Type: key.Type}, nil, 0, time.Now())
}

// Observe registers fn to be called whenever any link's cache gains or
// loses an entry, the seam internal/browse's RecordBrowser is built on. The
// returned func deregisters fn; calling it more than once is a no-op.
func (s *Server) Observe(fn func(index int, fam iface.Family, e *cache.Entry, removed bool)) (unobserve func()) {
	s.observersMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.observersMu.Unlock()

	return func() {
		s.observersMu.Lock()
		delete(s.observers, id)
		s.observersMu.Unlock()
	}
}

func (s *Server) notifyObservers(l *link, e *cache.Entry, removed bool) {
	s.observersMu.Lock()
	obs := make([]func(int, iface.Family, *cache.Entry, bool), 0, len(s.observers))
	for _, fn := range s.observers {
		obs = append(obs, fn)
	}
	s.observersMu.Unlock()
	for _, fn := range obs {
		fn(l.key.index, l.key.family, e, removed)
	}
}

// Clock exposes the server's shared time-event queue, used by
// internal/browse's re-query backoff timers.
func (s *Server) Clock() *clock.Queue { return s.clockQ }

// Links returns a snapshot of every link currently up, for internal/browse
// to post queries on and internal/server's own walk helpers.
func (s *Server) Links() []*link { return s.allLinks() }

// PostQuery posts q (with known answers drawn from every link's cache) on
// every link matching fam (iface.Family(-1) meaning both), the operation
// subscriptions drive.
func (s *Server) PostQuery(key records.Key, fam int) {
	name, err := wire.NameFromPresentation(key.Name)
	if err != nil {
		return
	}
	q := wire.Question{Name: name, Type: key.Type}
	for _, l := range s.allLinks() {
		if fam >= 0 && int(l.key.family) != fam {
			continue
		}
		var known []wire.RR
		for _, e := range l.cache.Lookup(key) {
			if e.Record.RemainingTTL(time.Now()) > time.Duration(e.Record.TTL)*time.Second/2 {
				known = append(known, e.Record.RR(name))
			}
		}
		l.queryS.Post(q, known, queryPostDelay(), time.Now())
	}
}

// queryPostDelay is a small random initial defer for user-posted queries,
// matching the query scheduler's own non-immediate default.
func queryPostDelay() time.Duration {
	return protocol.QueryDefer + clock.Jitter(protocol.QueryDeferJitterMax)
}

// LookupCache returns a snapshot of every cache.Entry matching key across
// every link (fam < 0 for both families), used to replay ALL_FOR_NOW on
// subscription creation.
func (s *Server) LookupCache(key records.Key, fam int) []*cache.Entry {
	var out []*cache.Entry
	for _, l := range s.allLinks() {
		if fam >= 0 && int(l.key.family) != fam {
			continue
		}
		out = append(out, l.cache.Lookup(key)...)
	}
	return out
}

// WalkCache invokes fn for every cache entry across every link whose key
// matches the ANY-typed/classed pattern key.
func (s *Server) WalkCache(pattern records.Key, fn func(*cache.Entry)) {
	for _, l := range s.allLinks() {
		l.cache.Walk(func(e *cache.Entry) {
			if pattern.Name != "" && e.Record.Key.Name != pattern.Name {
				return
			}
			if pattern.Type != protocol.RecordTypeANY && e.Record.Key.Type != pattern.Type {
				return
			}
			fn(e)
		})
	}
}
