package wire

import "github.com/lanbeacon/mdnsd/internal/protocol"

// Header is the 12-byte DNS message header per RFC 1035 §4.1.1.
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

func (h Header) IsQuery() bool    { return h.Flags&protocol.FlagQR == 0 }
func (h Header) IsResponse() bool { return h.Flags&protocol.FlagQR != 0 }
func (h Header) RCode() uint16    { return h.Flags & 0x000F }
func (h Header) Opcode() uint16   { return (h.Flags >> 11) & 0x0F }

// Question is a question-section entry (RFC 1035 §4.1.2), with the class
// field reduced to the IN/QU split that is all mDNS ever uses (RFC 6762
// §18.12 requires QCLASS=IN; bit 15 is the unicast-response "QU" bit of
// §5.4).
type Question struct {
	Name    Name
	Type    protocol.RecordType
	Unicast bool
}

// RR is one answer/authority/additional-section resource record (RFC 1035
// §4.1.3), with the rdata as a typed union via the RData interface.
type RR struct {
	Name       Name
	Type       protocol.RecordType
	Class      protocol.DNSClass
	CacheFlush bool
	TTL        uint32
	Data       RData
}

// IsGoodbye reports whether this record announces its own removal
// (TTL=0), per RFC 6762 §10.1.
func (rr RR) IsGoodbye() bool { return rr.TTL == protocol.TTLGoodbye }

// Message is a complete decoded or to-be-encoded DNS message.
type Message struct {
	Header      Header
	Questions   []Question
	Answers     []RR
	Authorities []RR
	Additionals []RR
}

// Encode serializes m to wire format, applying name compression across the
// whole message (a PTR target can point back at a name first seen in the
// question section, for instance).
func Encode(m *Message) ([]byte, error) {
	w := NewWriter()
	h := m.Header
	h.QDCount = uint16(len(m.Questions))
	h.ANCount = uint16(len(m.Answers))
	h.NSCount = uint16(len(m.Authorities))
	h.ARCount = uint16(len(m.Additionals))
	w.WriteHeader(h)

	for _, q := range m.Questions {
		if err := w.WriteQuestion(q); err != nil {
			return nil, err
		}
	}
	for _, sec := range [][]RR{m.Answers, m.Authorities, m.Additionals} {
		for _, rr := range sec {
			if err := w.WriteRR(rr); err != nil {
				return nil, err
			}
		}
	}
	return w.Bytes(), nil
}

// Decode parses buf into a Message.
func Decode(buf []byte) (*Message, error) {
	r := NewReader(buf)
	h, err := r.ReadHeader()
	if err != nil {
		return nil, err
	}
	m := &Message{Header: h}

	m.Questions = make([]Question, 0, h.QDCount)
	for i := uint16(0); i < h.QDCount; i++ {
		q, err := r.ReadQuestion()
		if err != nil {
			return nil, err
		}
		m.Questions = append(m.Questions, q)
	}

	readSection := func(count uint16) ([]RR, error) {
		out := make([]RR, 0, count)
		for i := uint16(0); i < count; i++ {
			rr, err := r.ReadRR()
			if err != nil {
				return nil, err
			}
			out = append(out, rr)
		}
		return out, nil
	}

	if m.Answers, err = readSection(h.ANCount); err != nil {
		return nil, err
	}
	if m.Authorities, err = readSection(h.NSCount); err != nil {
		return nil, err
	}
	if m.Additionals, err = readSection(h.ARCount); err != nil {
		return nil, err
	}
	return m, nil
}
