package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/lanbeacon/mdnsd/internal/errors"
	"github.com/lanbeacon/mdnsd/internal/protocol"
)

// Reader decodes an incoming DNS message, following compression pointers
// per RFC 1035 §4.1.4 with a jump-count guard against loops.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Len() int  { return len(r.buf) }
func (r *Reader) Pos() int  { return r.pos }
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) ReadUint16() (uint16, error) {
	if r.pos+2 > len(r.buf) {
		return 0, errors.InvalidRecord("truncated message reading uint16")
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, errors.InvalidRecord("truncated message reading uint32")
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, errors.InvalidRecord("truncated message reading rdata")
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadHeader() (Header, error) {
	var h Header
	var err error
	if h.ID, err = r.ReadUint16(); err != nil {
		return h, err
	}
	if h.Flags, err = r.ReadUint16(); err != nil {
		return h, err
	}
	if h.QDCount, err = r.ReadUint16(); err != nil {
		return h, err
	}
	if h.ANCount, err = r.ReadUint16(); err != nil {
		return h, err
	}
	if h.NSCount, err = r.ReadUint16(); err != nil {
		return h, err
	}
	if h.ARCount, err = r.ReadUint16(); err != nil {
		return h, err
	}
	return h, nil
}

// ReadName decodes a (possibly compressed) name starting at the reader's
// current position, advancing past the name (or past the first compression
// pointer that referenced it, per RFC 1035 §4.1.4).
func (r *Reader) ReadName() (Name, error) {
	var labels []string
	pos := r.pos
	jumps := 0
	jumped := false
	newPos := pos

	for {
		if pos >= len(r.buf) {
			return nil, errors.InvalidRecord("name runs past end of message")
		}
		length := r.buf[pos]

		if length&protocol.CompressionMask == protocol.CompressionMask {
			if pos+1 >= len(r.buf) {
				return nil, errors.InvalidRecord("truncated compression pointer")
			}
			target := int(r.buf[pos]&^protocol.CompressionMask)<<8 | int(r.buf[pos+1])
			if target >= pos {
				return nil, errors.InvalidRecord(fmt.Sprintf("forward/self compression pointer at %d -> %d", pos, target))
			}
			if !jumped {
				newPos = pos + 2
				jumped = true
			}
			pos = target
			jumps++
			if jumps > protocol.MaxCompressionPointers {
				return nil, errors.InvalidRecord("too many compression jumps")
			}
			continue
		}

		if length == 0 {
			if !jumped {
				newPos = pos + 1
			}
			break
		}

		if length > protocol.MaxLabelLength {
			return nil, errors.InvalidRecord(fmt.Sprintf("label length %d exceeds %d", length, protocol.MaxLabelLength))
		}
		if pos+1+int(length) > len(r.buf) {
			return nil, errors.InvalidRecord("truncated label")
		}
		labels = append(labels, string(r.buf[pos+1:pos+1+int(length)]))
		pos += 1 + int(length)
	}

	r.pos = newPos
	n := Name(labels)
	if len(n.Presentation()) > protocol.MaxNameLength {
		return nil, errors.InvalidRecord("name exceeds maximum length")
	}
	return n, nil
}

func (r *Reader) ReadQuestion() (Question, error) {
	var q Question
	name, err := r.ReadName()
	if err != nil {
		return q, err
	}
	qtype, err := r.ReadUint16()
	if err != nil {
		return q, err
	}
	qclass, err := r.ReadUint16()
	if err != nil {
		return q, err
	}
	q.Name = name
	q.Type = protocol.RecordType(qtype)
	q.Unicast = qclass&uint16(protocol.ClassUnicastResponse) != 0
	return q, nil
}

// ReadRR decodes one resource record, dispatching rdata parsing by type.
func (r *Reader) ReadRR() (RR, error) {
	var rr RR
	name, err := r.ReadName()
	if err != nil {
		return rr, err
	}
	rtype, err := r.ReadUint16()
	if err != nil {
		return rr, err
	}
	class, err := r.ReadUint16()
	if err != nil {
		return rr, err
	}
	ttl, err := r.ReadUint32()
	if err != nil {
		return rr, err
	}
	rdlen, err := r.ReadUint16()
	if err != nil {
		return rr, err
	}
	if r.pos+int(rdlen) > len(r.buf) {
		return rr, errors.InvalidRecord("rdlength runs past end of message")
	}
	rdataEnd := r.pos + int(rdlen)

	data, err := decodeRData(r, protocol.RecordType(rtype), int(rdlen))
	if err != nil {
		return rr, err
	}
	if r.pos != rdataEnd {
		// Tolerate rdata decoders that used compression and thus consumed
		// fewer bytes than RDLENGTH accounts for (a pointer is 2 bytes on
		// the wire regardless of the name it expands to); always resync to
		// the declared boundary rather than trusting decoder bookkeeping.
		r.pos = rdataEnd
	}

	rr.Name = name
	rr.Type = protocol.RecordType(rtype)
	rr.Class = protocol.DNSClass(class) & protocol.ClassMask
	rr.CacheFlush = protocol.DNSClass(class)&protocol.ClassCacheFlush != 0
	rr.TTL = ttl
	rr.Data = data
	return rr, nil
}
