// Package fuzz exercises the wire codec and name utilities with random
// inputs: malformed packets must produce errors, never panics, and a
// message that decodes cleanly must re-encode without error.
package fuzz

import (
	"testing"

	"github.com/lanbeacon/mdnsd/internal/wire"
)

// FuzzDecode feeds random byte sequences to the message decoder. The
// decoder must reject anything malformed with an error — truncated
// headers, counts that overrun the buffer, compression pointers that
// loop or point forward — and must never panic or hang.
//
// Run with: go test -fuzz=FuzzDecode -fuzztime=10000x ./tests/fuzz/
func FuzzDecode(f *testing.F) {
	// Valid response: one answer, "test.local" A 192.168.1.100.
	f.Add([]byte{
		0x12, 0x34, // ID
		0x84, 0x00, // Flags: QR=1, AA=1
		0x00, 0x00, // QDCOUNT
		0x00, 0x01, // ANCOUNT
		0x00, 0x00, // NSCOUNT
		0x00, 0x00, // ARCOUNT
		0x04, 't', 'e', 's', 't',
		0x05, 'l', 'o', 'c', 'a', 'l',
		0x00,
		0x00, 0x01, // TYPE = A
		0x80, 0x01, // CLASS = IN with cache-flush
		0x00, 0x00, 0x00, 0x78, // TTL = 120
		0x00, 0x04, // RDLENGTH
		192, 168, 1, 100,
	})
	// Query with a compression pointer back into the question section.
	f.Add([]byte{
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x04, 'h', 'o', 's', 't',
		0x05, 'l', 'o', 'c', 'a', 'l',
		0x00,
		0x00, 0x01, 0x00, 0x01,
		0xC0, 0x0C, // pointer to offset 12
		0x00, 0x1C, 0x00, 0x01,
	})
	// Self-referential pointer (must be rejected).
	f.Add([]byte{
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0xC0, 0x0C,
		0x00, 0x01, 0x00, 0x01,
	})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		msg, err := wire.Decode(data)
		if err != nil {
			return
		}
		// Whatever decoded cleanly must re-encode without error; the
		// re-encoding may legitimately differ byte-for-byte (different
		// compression choices), but it must itself decode.
		out, err := wire.Encode(msg)
		if err != nil {
			t.Fatalf("decoded message failed to re-encode: %v", err)
		}
		if _, err := wire.Decode(out); err != nil {
			t.Fatalf("re-encoded message failed to decode: %v", err)
		}
	})
}
