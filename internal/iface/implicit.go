package iface

import (
	"fmt"
	"net/netip"
	"runtime"
	"strings"
	"time"

	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// HostRecord builds the A or AAAA record advertising addr under
// hostName, one of the implicit records published per interface.
func HostRecord(hostName string, addr netip.Addr, now time.Time) (records.Key, *records.Record) {
	if addr.Is4() {
		key := records.NewKey(hostName, protocol.ClassIN, protocol.RecordTypeA)
		return key, records.New(key, wire.ARecord{Addr: addr}, true, now)
	}
	key := records.NewKey(hostName, protocol.ClassIN, protocol.RecordTypeAAAA)
	return key, records.New(key, wire.AAAARecord{Addr: addr}, true, now)
}

// ReverseName builds the in-addr.arpa / ip6.arpa owner name that
// resolves addr back to a host name, per RFC 1035 §3.5 and RFC 3596 §2.5.
func ReverseName(addr netip.Addr) string {
	if addr.Is4() {
		b := addr.As4()
		return fmt.Sprintf("%d.%d.%d.%d.in-addr.arpa", b[3], b[2], b[1], b[0])
	}
	b := addr.As16()
	var nibbles []string
	for i := len(b) - 1; i >= 0; i-- {
		nibbles = append(nibbles, fmt.Sprintf("%x.%x", b[i]&0x0f, b[i]>>4))
	}
	return strings.Join(nibbles, ".") + ".ip6.arpa"
}

// ReversePTRRecord builds the PTR record mapping ReverseName(addr) to
// hostName, the reverse-lookup counterpart of HostRecord.
func ReversePTRRecord(addr netip.Addr, hostName string, now time.Time) (records.Key, *records.Record) {
	name, err := wire.NameFromPresentation(hostName)
	if err != nil {
		name = wire.Name{hostName}
	}
	key := records.NewKey(ReverseName(addr), protocol.ClassIN, protocol.RecordTypePTR)
	return key, records.New(key, wire.PTRRecord{Target: name}, true, now)
}

// HINFORecord builds this host's HINFO record: CPU architecture and a
// short OS description.
func HINFORecord(hostName, osInfo string, now time.Time) (records.Key, *records.Record) {
	cpu := strings.ToUpper(runtime.GOARCH)
	if osInfo == "" {
		osInfo = runtime.GOOS
	}
	key := records.NewKey(hostName, protocol.ClassIN, protocol.RecordTypeHINFO)
	return key, records.New(key, wire.HINFORecord{CPU: cpu, OS: osInfo}, true, now)
}

// MetaPTRRecord builds one _services._dns-sd._udp.<domain> PTR pointing
// at serviceTypeName, the enumeration record RFC 6763 §9 requires
// alongside every advertised service type.
func MetaPTRRecord(domain, serviceTypeName string, now time.Time) (records.Key, *records.Record) {
	metaName := fmt.Sprintf("_services._dns-sd._udp.%s", domain)
	target, err := wire.NameFromPresentation(serviceTypeName)
	if err != nil {
		target = wire.Name{serviceTypeName}
	}
	key := records.NewKey(metaName, protocol.ClassIN, protocol.RecordTypePTR)
	return key, records.New(key, wire.PTRRecord{Target: target}, false, now)
}
