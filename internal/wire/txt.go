package wire

import (
	"strings"

	"github.com/lanbeacon/mdnsd/internal/errors"
)

// TXTList is a sequence of opaque DNS character-strings: a TXT record is
// not a single string but an ordered list of independently
// length-prefixed byte strings, conventionally ("key=value" or bare
// "key") pairs.
type TXTList [][]byte

// NewTXTList builds a TXTList from plain Go strings ("key=value" or bare
// flag strings), the shape callers most often have in hand.
func NewTXTList(entries ...string) TXTList {
	out := make(TXTList, len(entries))
	for i, e := range entries {
		out[i] = []byte(e)
	}
	return out
}

// Get returns the value for key (case-insensitive, per RFC 6763 §6.4), and
// whether the key was present at all (a bare "key" with no '=' is present
// with an empty value but distinguishable from key absence by ok).
func (t TXTList) Get(key string) (value string, ok bool) {
	for _, e := range t {
		s := string(e)
		if eq := strings.IndexByte(s, '='); eq >= 0 {
			if strings.EqualFold(s[:eq], key) {
				return s[eq+1:], true
			}
		} else if strings.EqualFold(s, key) {
			return "", true
		}
	}
	return "", false
}

// Map flattens the list into a key/value map, for callers that want
// RFC 6763 §6.4 key/value access without walking the ordered list
// themselves; a bare "key" entry maps to "". Duplicate keys keep the
// first occurrence, per RFC 6763 §6.4's reader guidance.
func (t TXTList) Map() map[string]string {
	m := make(map[string]string, len(t))
	for _, e := range t {
		s := string(e)
		var k, v string
		if eq := strings.IndexByte(s, '='); eq >= 0 {
			k, v = s[:eq], s[eq+1:]
		} else {
			k = s
		}
		if _, exists := m[k]; !exists {
			m[k] = v
		}
	}
	return m
}

func (t TXTList) String() string {
	parts := make([]string, len(t))
	for i, e := range t {
		parts[i] = string(e)
	}
	return strings.Join(parts, " ")
}

func (t TXTList) encode(w *Writer) error {
	if len(t) == 0 {
		// RFC 6763 §6.1: an empty TXT record is encoded as one zero-length
		// character-string, never zero character-strings.
		w.WriteBytes([]byte{0})
		return nil
	}
	for _, e := range t {
		if len(e) > 255 {
			return errors.InvalidRecord("TXT character-string exceeds 255 bytes")
		}
		w.WriteBytes([]byte{byte(len(e))})
		w.WriteBytes(e)
	}
	return nil
}

func decodeTXTList(r *Reader, end int) (TXTList, error) {
	var list TXTList
	for r.Pos() < end {
		lenB, err := r.ReadBytes(1)
		if err != nil {
			return nil, err
		}
		n := int(lenB[0])
		if r.Pos()+n > end {
			return nil, errors.InvalidRecord("TXT character-string runs past RDLENGTH")
		}
		b, err := r.ReadBytes(n)
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		list = append(list, cp)
	}
	return list, nil
}
