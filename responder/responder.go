package responder

import (
	"io"
	"os"

	"github.com/lanbeacon/mdnsd/internal/announce"
	"github.com/lanbeacon/mdnsd/internal/server"
)

// Server publishes this host's mDNS/DNS-SD records. It owns one multicast
// socket per enabled address family and one engine per relevant
// interface; construction, probing, announcing, conflict handling, and
// the query/response schedulers are internal/server's job — Server is
// the public handle onto that engine.
type Server struct {
	eng *server.Server
}

// New creates and starts a Server: it opens the configured address
// families' multicast sockets, begins watching for interface changes, and
// publishes each relevant interface's implicit records (host address,
// HINFO, etc., per the WithImplicitPublication defaults).
func New(opts ...Option) (*Server, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	cfg := server.DefaultConfig(hostname)
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	eng := server.New(cfg)
	if err := eng.Start(); err != nil {
		return nil, err
	}
	return &Server{eng: eng}, nil
}

// Close withdraws every published record with a goodbye (RFC 6762
// §10.1) and releases every socket and background goroutine. Safe to
// call more than once.
func (s *Server) Close() { s.eng.Close() }

// NewEntryGroup creates an empty, uncommitted EntryGroup. onState, if
// non-nil, is called whenever the group's composite lifecycle state
// changes (REGISTERING, ESTABLISHED, or COLLISION on a name conflict).
func (s *Server) NewEntryGroup(onState func(GroupState)) *EntryGroup {
	var cb func(announce.GroupState)
	if onState != nil {
		cb = func(st announce.GroupState) { onState(GroupState(st)) }
	}
	return &EntryGroup{g: s.eng.NewEntryGroup(cb)}
}

// Dump writes a human-readable snapshot of every interface's published
// records and cache contents to w, for debugging.
func (s *Server) Dump(w io.Writer) error { return s.eng.Dump(w) }

// Engine exposes the underlying internal/server.Server so the querier
// package can browse and resolve against the same cache and schedulers
// this Server publishes on, instead of opening a second set of sockets.
func (s *Server) Engine() *server.Server { return s.eng }
