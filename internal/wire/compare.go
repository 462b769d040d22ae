package wire

import (
	"bytes"
	"strings"
)

// canonicalEncode renders data with no compression (a fresh Writer per
// record, so no suffix from an earlier record can be reused as a pointer)
// and with any embedded names lowercased, so comparison operates on the
// record's canonical uncompressed form.
func canonicalEncode(data RData) ([]byte, error) {
	w := NewWriter()
	if data == nil {
		return nil, nil
	}
	if err := canonicalRData(data).Encode(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// canonicalRData lowercases the names embedded in name-bearing rdata so
// two observations of the same target differing only in ASCII case
// compare equal; every other payload is already canonical byte-for-byte.
func canonicalRData(data RData) RData {
	switch v := data.(type) {
	case PTRRecord:
		return PTRRecord{Target: v.Target.lower()}
	case CNAMERecord:
		return CNAMERecord{Target: v.Target.lower()}
	case SRVRecord:
		v.Target = v.Target.lower()
		return v
	}
	return data
}

func (n Name) lower() Name {
	out := make(Name, len(n))
	for i, l := range n {
		out[i] = strings.ToLower(l)
	}
	return out
}

// CompareRData returns -1, 0 or 1 comparing a and b byte-wise over their
// canonical uncompressed encodings, the tie-break rule RFC 6762 §8.2 uses
// to decide which of two simultaneous probes wins: the lexicographically
// greater record wins.
func CompareRData(a, b RData) (int, error) {
	ab, err := canonicalEncode(a)
	if err != nil {
		return 0, err
	}
	bb, err := canonicalEncode(b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ab, bb), nil
}

// CompareRR implements the full RFC 6762 §8.2 lexicographical comparison
// used during simultaneous probing: compare CLASS, then TYPE, then the
// canonical rdata bytes.
func CompareRR(a, b RR) (int, error) {
	if a.Class != b.Class {
		if a.Class < b.Class {
			return -1, nil
		}
		return 1, nil
	}
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1, nil
		}
		return 1, nil
	}
	return CompareRData(a.Data, b.Data)
}
