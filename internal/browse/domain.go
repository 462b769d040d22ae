package browse

import (
	"github.com/lanbeacon/mdnsd/internal/names"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// DomainEvent reports one browse/registration domain found (or withdrawn)
// by a DomainBrowser.
type DomainEvent struct {
	Kind   EventKind
	Domain string
}

// DomainBrowser subscribes to one of RFC 6763 §11's domain enumeration PTRs
// ("b"/"db"/"r"/"dr"/"lb._dns-sd._udp.<domain>"), delivering each
// advertised domain name.
type DomainBrowser struct {
	rb *RecordBrowser
}

// NewDomainBrowser starts browsing domain's enumeration of kind, calling cb
// for each domain found/removed and once CacheExhausted has replayed.
func NewDomainBrowser(eng Engine, kind names.DomainEnumeration, domain string, fam int, cb func(DomainEvent)) *DomainBrowser {
	key := records.NewKey(names.MetaDomainQueryName(kind, domain), protocol.ClassIN, protocol.RecordTypePTR)
	rb := NewRecordBrowser(eng, key, fam, func(ev Event) {
		if ev.Kind == EventCacheExhausted {
			cb(DomainEvent{Kind: EventCacheExhausted})
			return
		}
		ptr, ok := ev.Entry.Record.Data.(wire.PTRRecord)
		if !ok {
			return
		}
		cb(DomainEvent{Kind: ev.Kind, Domain: ptr.Target.Presentation()})
	})
	return &DomainBrowser{rb: rb}
}

// Close cancels the browser.
func (b *DomainBrowser) Close() { b.rb.Close() }
