package server

import (
	"time"

	"github.com/lanbeacon/mdnsd/internal/wire"
)

// reflect relays msg's questions and answers (not its authority or
// additional records) onto every other relevant link, the
// optional repeater mode (avahi's "reflector") that bridges mDNS across
// routed network segments. The relay replays the decoded records rather
// than re-transmitting the raw datagram, since decoding already happened
// by the time dispatch gets here.
func (s *Server) reflect(origin *link, msg *wire.Message) {
	now := time.Now()
	for _, l := range s.allLinks() {
		if l == origin {
			continue
		}
		if l.key.family != origin.key.family && !s.cfg.ReflectIPv {
			continue
		}
		if l.key.family != origin.key.family {
			if !crossFamilyReflectable(msg) {
				continue
			}
		}
		for _, q := range msg.Questions {
			l.queryS.Post(q, nil, 0, now)
		}
		for _, rr := range msg.Answers {
			l.responseS.ForceFlush(rr, now)
		}
	}
}

// crossFamilyReflectable reports whether msg carries only records whose
// rdata does not embed a family-specific address, since an A record
// replayed onto an IPv6-only link (or vice versa) is meaningless.
func crossFamilyReflectable(msg *wire.Message) bool {
	for _, rr := range msg.Answers {
		switch rr.Data.(type) {
		case wire.ARecord, wire.AAAARecord:
			return false
		}
	}
	return true
}
