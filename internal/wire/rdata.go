package wire

import (
	"fmt"
	"net/netip"

	"github.com/lanbeacon/mdnsd/internal/errors"
	"github.com/lanbeacon/mdnsd/internal/protocol"
)

// RData is implemented by every typed resource-data payload this codec
// knows how to encode. Encode appends the rdata body (not the RDLENGTH
// prefix, which Writer.WriteRR backpatches) to w.
type RData interface {
	Encode(w *Writer) error
	String() string
}

// ARecord is an IPv4 address record (RFC 1035 §3.4.1).
type ARecord struct{ Addr netip.Addr }

func (a ARecord) Encode(w *Writer) error {
	if !a.Addr.Is4() {
		return errors.InvalidAddress(a.Addr.String())
	}
	b := a.Addr.As4()
	w.WriteBytes(b[:])
	return nil
}
func (a ARecord) String() string { return a.Addr.String() }

// AAAARecord is an IPv6 address record (RFC 3596).
type AAAARecord struct{ Addr netip.Addr }

func (a AAAARecord) Encode(w *Writer) error {
	if !a.Addr.Is6() {
		return errors.InvalidAddress(a.Addr.String())
	}
	b := a.Addr.As16()
	w.WriteBytes(b[:])
	return nil
}
func (a AAAARecord) String() string { return a.Addr.String() }

// PTRRecord points at another owner name (RFC 1035 §3.3.12).
type PTRRecord struct{ Target Name }

func (p PTRRecord) Encode(w *Writer) error { return w.WriteName(p.Target) }
func (p PTRRecord) String() string         { return p.Target.Presentation() }

// CNAMERecord is a canonical-name alias (RFC 1035 §3.3.1).
type CNAMERecord struct{ Target Name }

func (c CNAMERecord) Encode(w *Writer) error { return w.WriteName(c.Target) }
func (c CNAMERecord) String() string         { return c.Target.Presentation() }

// SRVRecord locates a service instance (RFC 2782).
type SRVRecord struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   Name
}

func (s SRVRecord) Encode(w *Writer) error {
	w.WriteUint16(s.Priority)
	w.WriteUint16(s.Weight)
	w.WriteUint16(s.Port)
	return w.WriteName(s.Target)
}
func (s SRVRecord) String() string {
	return fmt.Sprintf("%d %d %d %s", s.Priority, s.Weight, s.Port, s.Target.Presentation())
}

// TXTRecord carries a list of opaque character-strings (RFC 1035 §3.3.14),
// conventionally "key=value" pairs for DNS-SD (RFC 6763 §6).
type TXTRecord struct{ Strings TXTList }

func (t TXTRecord) Encode(w *Writer) error { return t.Strings.encode(w) }
func (t TXTRecord) String() string         { return t.Strings.String() }

// HINFORecord carries CPU/OS identification strings (RFC 1035 §3.3.2).
type HINFORecord struct {
	CPU string
	OS  string
}

func (h HINFORecord) Encode(w *Writer) error {
	if err := writeCharString(w, h.CPU); err != nil {
		return err
	}
	return writeCharString(w, h.OS)
}
func (h HINFORecord) String() string { return h.CPU + " " + h.OS }

// OpaqueRecord preserves rdata this codec does not interpret, so messages
// containing record types outside the supported set can still be relayed
// or round-tripped without data loss.
type OpaqueRecord struct {
	RRType protocol.RecordType
	Raw    []byte
}

func (o OpaqueRecord) Encode(w *Writer) error { w.WriteBytes(o.Raw); return nil }
func (o OpaqueRecord) String() string         { return fmt.Sprintf("\\# %d %x", len(o.Raw), o.Raw) }

func writeCharString(w *Writer, s string) error {
	if len(s) > 255 {
		return errors.InvalidRecord("character-string exceeds 255 bytes")
	}
	w.WriteBytes([]byte{byte(len(s))})
	w.WriteBytes([]byte(s))
	return nil
}

func decodeRData(r *Reader, rtype protocol.RecordType, rdlen int) (RData, error) {
	switch rtype {
	case protocol.RecordTypeA:
		b, err := r.ReadBytes(4)
		if err != nil {
			return nil, err
		}
		addr, ok := netip.AddrFromSlice(b)
		if !ok {
			return nil, errors.InvalidRecord("malformed A rdata")
		}
		return ARecord{Addr: addr}, nil

	case protocol.RecordTypeAAAA:
		b, err := r.ReadBytes(16)
		if err != nil {
			return nil, err
		}
		addr, ok := netip.AddrFromSlice(b)
		if !ok {
			return nil, errors.InvalidRecord("malformed AAAA rdata")
		}
		return AAAARecord{Addr: addr}, nil

	case protocol.RecordTypePTR:
		name, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		return PTRRecord{Target: name}, nil

	case protocol.RecordTypeCNAME:
		name, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		return CNAMERecord{Target: name}, nil

	case protocol.RecordTypeSRV:
		prio, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		weight, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		port, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		target, err := r.ReadName()
		if err != nil {
			return nil, err
		}
		return SRVRecord{Priority: prio, Weight: weight, Port: port, Target: target}, nil

	case protocol.RecordTypeTXT:
		end := r.Pos() + rdlen
		list, err := decodeTXTList(r, end)
		if err != nil {
			return nil, err
		}
		return TXTRecord{Strings: list}, nil

	case protocol.RecordTypeHINFO:
		cpu, err := readCharString(r)
		if err != nil {
			return nil, err
		}
		os, err := readCharString(r)
		if err != nil {
			return nil, err
		}
		return HINFORecord{CPU: cpu, OS: os}, nil

	default:
		raw, err := r.ReadBytes(rdlen)
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return OpaqueRecord{RRType: rtype, Raw: cp}, nil
	}
}

func readCharString(r *Reader) (string, error) {
	lenB, err := r.ReadBytes(1)
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(lenB[0]))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
