package announce

import (
	"github.com/lanbeacon/mdnsd/internal/protocol"
	"github.com/lanbeacon/mdnsd/internal/records"
	"github.com/lanbeacon/mdnsd/internal/wire"
)

// Entry is one record this host owns and is probing for, announcing, or
// defending.
type Entry struct {
	Name   wire.Name
	Record *records.Record
	State  EntryState
}

// RR renders the entry's current record as an outgoing wire.RR.
func (e *Entry) RR() wire.RR {
	return e.Record.RR(e.Name)
}

// probeQuestion builds the ANY-type probe question for this entry's name, per
// RFC 6762 §8.1.
func (e *Entry) probeQuestion() wire.Question {
	return wire.Question{Name: e.Name, Type: protocol.RecordTypeANY}
}
