package protocol

import (
	"fmt"

	"github.com/lanbeacon/mdnsd/internal/errors"
)

// ValidateRecordType reports whether recordType is one this responder
// understands well enough to originate or cache structurally.
func ValidateRecordType(recordType uint16) error {
	if !RecordType(recordType).IsSupported() {
		return errors.InvalidRecord(fmt.Sprintf("unsupported record type %d", recordType))
	}
	return nil
}

// ValidateMessageFlags checks the header flag combination an incoming
// message carries against RFC 6762 §18, for the parts of the header that
// are invariant regardless of whether the message is a query or a
// response (OPCODE and RCODE).
func ValidateMessageFlags(flags uint16) error {
	opcode := (flags >> 11) & 0x0F
	if opcode != OpcodeQuery {
		return errors.InvalidFlags(fmt.Sprintf("opcode %d, expected %d per RFC 6762 §18.3", opcode, OpcodeQuery))
	}

	rcode := flags & 0x000F
	if rcode != RCodeNoError {
		return errors.InvalidFlags(fmt.Sprintf("rcode %d, expected %d per RFC 6762 §18.11", rcode, RCodeNoError))
	}

	return nil
}

// ValidateResponseFlags additionally requires QR=1, per RFC 6762 §18.2:
// messages this responder treats as answers must be marked as responses.
func ValidateResponseFlags(flags uint16) error {
	if flags&FlagQR == 0 {
		return errors.InvalidFlags("QR bit is 0, expected 1 for a response per RFC 6762 §18.2")
	}
	return ValidateMessageFlags(flags)
}
