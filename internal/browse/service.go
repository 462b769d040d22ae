package browse

import (
	"github.com/lanbeacon/mdnsd/internal/names"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// ServiceEvent reports one service instance found (or withdrawn) by a
// ServiceBrowser.
type ServiceEvent struct {
	Kind        EventKind
	Instance    string
	ServiceType string
	Domain      string
}

// ServiceBrowser subscribes to "<type>.<domain>" (RFC 6763 §4), delivering
// every instance name advertised under that service type.
type ServiceBrowser struct {
	rb *RecordBrowser
}

// NewServiceBrowser starts browsing serviceType within domain.
func NewServiceBrowser(eng Engine, serviceType, domain string, fam int, cb func(ServiceEvent)) *ServiceBrowser {
	key := records.NewKey(names.ComposeServiceTypeName(serviceType, domain), protocol.ClassIN, protocol.RecordTypePTR)
	rb := NewRecordBrowser(eng, key, fam, func(ev Event) {
		if ev.Kind == EventCacheExhausted {
			cb(ServiceEvent{Kind: EventCacheExhausted})
			return
		}
		ptr, ok := ev.Entry.Record.Data.(wire.PTRRecord)
		if !ok || len(ptr.Target) == 0 {
			return
		}
		// A well-formed instance name lives directly under the browsed
		// type; anything else is a stray PTR not worth delivering.
		if typeName, err := wire.NameFromPresentation(names.ComposeServiceTypeName(serviceType, domain)); err == nil {
			if !ptr.Target.IsSubtreeOf(typeName) {
				return
			}
		}
		cb(ServiceEvent{
			Kind:        ev.Kind,
			Instance:    ptr.Target[0],
			ServiceType: serviceType,
			Domain:      domain,
		})
	})
	return &ServiceBrowser{rb: rb}
}

// Close cancels the browser.
func (b *ServiceBrowser) Close() { b.rb.Close() }
