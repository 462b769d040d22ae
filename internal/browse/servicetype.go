package browse

import (
	"strings"

	"github.com/lanbeacon/mdnsd/internal/names"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// ServiceTypeEvent reports one service type found (or withdrawn) by a
// ServiceTypeBrowser.
type ServiceTypeEvent struct {
	Kind        EventKind
	ServiceType string // e.g. "_ipp._tcp"
	Domain      string
}

// ServiceTypeBrowser subscribes to "_services._dns-sd._udp.<domain>"
// (RFC 6763 §9), delivering every distinct service type advertised there.
type ServiceTypeBrowser struct {
	rb *RecordBrowser
}

// NewServiceTypeBrowser starts browsing domain for advertised service
// types.
func NewServiceTypeBrowser(eng Engine, domain string, fam int, cb func(ServiceTypeEvent)) *ServiceTypeBrowser {
	key := records.NewKey(names.MetaQueryName(domain), protocol.ClassIN, protocol.RecordTypePTR)
	rb := NewRecordBrowser(eng, key, fam, func(ev Event) {
		if ev.Kind == EventCacheExhausted {
			cb(ServiceTypeEvent{Kind: EventCacheExhausted})
			return
		}
		ptr, ok := ev.Entry.Record.Data.(wire.PTRRecord)
		if !ok {
			return
		}
		pres := ptr.Target.Presentation()
		svcType := strings.TrimSuffix(pres, "."+domain)
		cb(ServiceTypeEvent{Kind: ev.Kind, ServiceType: svcType, Domain: domain})
	})
	return &ServiceTypeBrowser{rb: rb}
}

// Close cancels the browser.
func (b *ServiceTypeBrowser) Close() { b.rb.Close() }
