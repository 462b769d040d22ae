package querier

import (
	"github.com/lanbeacon/mdnsd/internal/browse"
	"github.com/lanbeacon/mdnsd/internal/server"
)

// Family restricts a browser or resolver to one address family, or both.
type Family int

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

// AllFamilies matches cache entries and posts queries on both families.
const AllFamilies Family = -1

func (f Family) toEngineFam() int {
	if f == AllFamilies {
		return -1
	}
	return int(f)
}

// Client is the entry point for every browser and resolver this package
// provides. It holds no state of its own beyond the engine it browses
// against; a process typically creates one Client per *responder.Server.
type Client struct {
	eng browse.Engine
}

// engineAccessor is satisfied by *responder.Server without querier
// importing package responder (which would create an import cycle if
// responder ever needed querier); responder.Server.Engine already returns
// the concrete *server.Server this needs.
type engineAccessor interface {
	Engine() *server.Server
}

// New creates a Client that browses against srv's cache and query
// scheduler. srv must already be running (see responder.New).
func New(srv engineAccessor) *Client {
	return &Client{eng: srv.Engine()}
}

// NewFromEngine creates a Client directly from an internal engine,
// exposed for tests that construct a *server.Server themselves without
// going through package responder.
func NewFromEngine(eng browse.Engine) *Client { return &Client{eng: eng} }
