// Package records defines the Key/Record data model shared by the local
// record store and the cache: a Key identifies a name/class/type tuple and
// a Record is the immutable rdata payload plus TTL owned under that key.
//
// Set keeps records in per-key lists; internal/server's entry groups use
// it to reject duplicate records. internal/cache keeps its own per-key
// entry lists and does not use Set.
package records

import (
	"net/netip"
	"time"

	"github.com/lanbeacon/mdnsd/internal/names"
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// Key identifies a resource record by owner name, class and type, the
// three fields a DNS cache or local store indexes on. Name is always
// stored normalized (internal/names.Normalize) so two observations of the
// same logical name differing only in ASCII case collapse into one Key —
// Go's plain struct equality and map hashing are exact-byte, so every Key
// must be built through NewKey rather than a bare struct literal.
type Key struct {
	Name  string
	Class protocol.DNSClass
	Type  protocol.RecordType
}

// NewKey returns the Key for (name, class, rtype) with name normalized,
// so two observations of the same logical name yield equal Keys.
func NewKey(name string, class protocol.DNSClass, rtype protocol.RecordType) Key {
	return Key{Name: names.Normalize(name), Class: class, Type: rtype}
}

func (k Key) String() string { return k.Name + "/" + k.Type.String() }

// Record is an immutable resource record value: a Key plus its rdata and
// TTL. Records are shared by reference — callers must treat a *Record as
// read-only and replace rather than mutate it.
type Record struct {
	Key        Key
	TTL        uint32
	CacheFlush bool
	Data       wire.RData
	// Origin is the address of the host this record was learned from,
	// the zero value for records this host originates. Cache-flush
	// replacement applies only among records sharing an Origin
	// (RFC 6762 §10.2).
	Origin netip.Addr
	// CreatedAt is when this Record value was produced, used to compute
	// elapsed/remaining TTL fractions.
	CreatedAt time.Time
}

// IsGoodbye reports whether this record announces its own removal.
func (r *Record) IsGoodbye() bool { return r.TTL == protocol.TTLGoodbye }

// RemainingTTL returns the TTL remaining at now, floored at zero.
func (r *Record) RemainingTTL(now time.Time) time.Duration {
	elapsed := now.Sub(r.CreatedAt)
	remaining := time.Duration(r.TTL)*time.Second - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Equal reports whether two records carry the same key, cache-flush flag
// and rdata (TTL and
// CreatedAt are not compared — RFC 6762 §8.2's conflict/duplicate checks
// operate on the record's identity, not its remaining lifetime).
func (r *Record) Equal(o *Record) bool {
	if r.Key != o.Key || r.CacheFlush != o.CacheFlush {
		return false
	}
	cmp, err := wire.CompareRData(r.Data, o.Data)
	return err == nil && cmp == 0
}

// RR renders the record as a wire.RR ready for encoding.
func (r *Record) RR(name wire.Name) wire.RR {
	return wire.RR{
		Name:       name,
		Type:       r.Key.Type,
		Class:      r.Key.Class,
		CacheFlush: r.CacheFlush,
		TTL:        r.TTL,
		Data:       r.Data,
	}
}

// DefaultTTL returns the RFC 6762 §10 recommended TTL for rt: 120 seconds
// for records whose name or rdata embeds a host name, 4500 seconds for
// everything else.
func DefaultTTL(rt protocol.RecordType) uint32 {
	switch rt {
	case protocol.RecordTypeA, protocol.RecordTypeAAAA, protocol.RecordTypeHINFO, protocol.RecordTypeSRV:
		return protocol.TTLHostName
	default:
		return protocol.TTLOther
	}
}

// New builds a Record with the default TTL for its type and CreatedAt set
// to now.
func New(key Key, data wire.RData, cacheFlush bool, now time.Time) *Record {
	return &Record{
		Key:        key,
		TTL:        DefaultTTL(key.Type),
		CacheFlush: cacheFlush,
		Data:       data,
		CreatedAt:  now,
	}
}
